// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"fmt"
	"io"
)

// entryStream is the resumable header-reading state shared by [Entries] and
// [RawEntries]: the absolute offset of the next unread header, plus the
// in-progress header record and the fill offset within it. A partial fill
// interrupted by the underlying reader is resumed on the next pull without
// re-reading or losing bytes.
type entryStream struct {
	archive *Archive
	next    int64
	hdr     *block
	hdrOff  int
}

// nextRaw reads the next header record from the stream and produces the
// entry it describes, without any continuation or sparse handling. It
// returns io.EOF at the end of the archive: either the stream ended cleanly
// on a record boundary, or a zero-filled terminator record was read and
// zero-record skipping is not configured.
func (s *entryStream) nextRaw() (*Entry, error) {
	headerPos := s.next
	for {
		// Seek to the start of the next header, past any unread
		// content of the previous entry.
		if s.hdr == nil {
			delta := s.next - s.archive.Position()
			if err := s.archive.skip(delta); err != nil {
				return nil, err
			}
			s.hdr = new(block)
			s.hdrOff = 0
		}

		ok, err := s.archive.fillBlock(s.hdr[:], &s.hdrOff)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.EOF
		}

		if !s.hdr.isZero() {
			s.next += blockSize
			break
		}

		// A zero record terminates the archive unless zero records are
		// ignored to support concatenated archives.
		if !s.archive.cfg.IgnoreZeros() {
			return nil, io.EOF
		}
		s.next += blockSize
		headerPos = s.next
	}

	hdr := Header{raw: *s.hdr}
	s.hdr = nil

	// Verify the checksum, counting the checksum field as spaces.
	sum := hdr.raw.computeChecksum()
	cksum, err := hdr.Cksum()
	if err != nil {
		return nil, err
	}
	if sum != cksum {
		return nil, ErrChecksumMismatch
	}

	size, err := hdr.Size()
	if err != nil {
		return nil, err
	}

	filePos := s.next
	// The next header sits after the entry data, rounded up to a full
	// record.
	s.next += size + blockPadding(size)

	return &Entry{
		archive:   s.archive,
		header:    hdr,
		headerPos: headerPos,
		filePos:   filePos,
		size:      size,
		physical:  size,
		segments:  []Segment{{Length: size}},
	}, nil
}

// Entries is a pull-based stream of fully resolved archive entries. GNU
// long-name, long-link and PAX extension records are absorbed into the
// entry they describe and never yielded; GNU sparse entries are yielded
// with their logical content reconstructed.
//
// A stream is terminal after its first error and after the end of the
// archive; further pulls repeat the error or io.EOF respectively.
type Entries struct {
	stream entryStream

	gnuLongName []byte
	gnuLongLink []byte
	paxBlob     []byte

	ext    *block
	extOff int

	done bool
	err  error
}

// Next returns the next resolved entry, or io.EOF once the archive is
// exhausted.
func (e *Entries) Next() (*Entry, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.done {
		return nil, io.EOF
	}

	ent, err := e.next()
	switch {
	case err == io.EOF:
		e.done = true
		return nil, io.EOF
	case err != nil:
		e.err = err
		return nil, err
	}
	return ent, nil
}

func (e *Entries) next() (*Entry, error) {
	for {
		ent, err := e.stream.nextRaw()
		if err != nil {
			return nil, err
		}

		// Continuation type flags are only honored on records carrying
		// a ustar or GNU magic; on unrecognized records they are plain
		// file types.
		if ent.header.isRecognized() {
			switch ent.header.Typeflag() {
			case TypeGNULongName:
				if e.gnuLongName != nil {
					return nil, ErrDuplicateContinuation
				}
				if e.gnuLongName, err = ent.readAll(); err != nil {
					return nil, err
				}
				continue
			case TypeGNULongLink:
				if e.gnuLongLink != nil {
					return nil, ErrDuplicateContinuation
				}
				if e.gnuLongLink, err = ent.readAll(); err != nil {
					return nil, err
				}
				continue
			case TypeXHeader:
				if e.paxBlob != nil {
					return nil, ErrDuplicateContinuation
				}
				if e.paxBlob, err = ent.readAll(); err != nil {
					return nil, err
				}
				continue
			}
		}

		// An ordinary entry: attach the pending continuation payloads
		// and clear them.
		ent.longPathname = e.gnuLongName
		ent.longLinkname = e.gnuLongLink
		e.gnuLongName = nil
		e.gnuLongLink = nil

		if e.paxBlob != nil {
			pax, err := parsePAX(e.paxBlob)
			if err != nil {
				return nil, err
			}
			ent.paxHeaders = pax
			e.paxBlob = nil
		}

		if err := e.resolveSparse(ent); err != nil {
			return nil, err
		}

		return ent, nil
	}
}

// RawEntries is a pull-based stream of entries exactly as described by
// their header records: continuation records are yielded as visible entries
// and sparse files keep their physical, not logical, content. It is used
// when continuation and sparse records must be inspected by the caller.
type RawEntries struct {
	stream entryStream
	done   bool
	err    error
}

// Next returns the next raw entry, or io.EOF once the archive is exhausted.
func (r *RawEntries) Next() (*Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}

	ent, err := r.stream.nextRaw()
	switch {
	case err == io.EOF:
		r.done = true
		return nil, io.EOF
	case err != nil:
		r.err = fmt.Errorf("failed to read next entry: %w", err)
		return nil, r.err
	}
	return ent, nil
}
