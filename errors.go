// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import "errors"

var (
	// ErrNotAtStart is returned when an entry stream is requested on an
	// archive whose read position is not zero.
	ErrNotAtStart = errors.New("cannot read entries unless archive is at position 0")

	// ErrTruncatedHeader is returned when the stream ends in the middle of
	// a 512-byte header record.
	ErrTruncatedHeader = errors.New("truncated tar header")

	// ErrUnexpectedEnd is returned when the stream ends while content is
	// still expected, e.g. mid-skip or mid-entry.
	ErrUnexpectedEnd = errors.New("unexpected end of tar stream")

	// ErrChecksumMismatch is returned when a header checksum does not match
	// the computed sum. It indicates corruption and is not retried.
	ErrChecksumMismatch = errors.New("archive header checksum mismatch")

	// ErrInvalidHeader is returned when a header field cannot be decoded.
	ErrInvalidHeader = errors.New("invalid tar header field")

	// ErrDuplicateContinuation is returned when two long-name, two long-link
	// or two pax-extension records describe the same upcoming member.
	ErrDuplicateContinuation = errors.New("two continuation records describing the same member")

	// ErrMisalignedFragment is returned when a sparse fragment does not
	// begin on a 512-byte boundary of the entry's physical data.
	ErrMisalignedFragment = errors.New("sparse fragment not aligned to 512-byte boundary")

	// ErrOutOfOrderFragment is returned for out of order or overlapping
	// sparse fragments.
	ErrOutOfOrderFragment = errors.New("out of order or overlapping sparse fragments")

	// ErrOverrunFragment is returned when sparse fragments consume more
	// physical data than the header listed.
	ErrOverrunFragment = errors.New("sparse fragments consume more data than the header listed")

	// ErrOffsetOverflow is returned when a sparse fragment's end offset
	// does not fit in an int64.
	ErrOffsetOverflow = errors.New("more bytes listed in sparse fragments than int64 can hold")

	// ErrSparseSizeMismatch is returned when the sparse fragment list does
	// not add up to the sizes declared in the header.
	ErrSparseSizeMismatch = errors.New("mismatch between sparse fragments and size in header")

	// ErrMaxEntriesExceeded is returned when an archive holds more entries
	// than configured.
	ErrMaxEntriesExceeded = errors.New("maximum entries exceeded")

	// ErrMaxExtractionSizeExceeded is returned when the extracted content
	// exceeds the configured maximum.
	ErrMaxExtractionSizeExceeded = errors.New("maximum extraction size exceeded")

	// ErrUnsupportedFile is returned when an entry type cannot be
	// extracted on the current platform or configuration.
	ErrUnsupportedFile = errors.New("unsupported file type")
)
