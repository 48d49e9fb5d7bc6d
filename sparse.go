// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"fmt"
	"math"
)

// resolveSparse reconstructs the logical content of a GNU sparse entry from
// its fragment descriptors: the ones embedded in the header first, then, if
// the header's extended flag is set, the chain of 512-byte extension
// records that follow it in the stream. Entries that are not GNU sparse are
// left untouched.
//
// Fragments describe runs of physically stored data in the logical file;
// the gaps between them become zero-fill segments that consume nothing from
// the stream. On success the entry's size is replaced by the logical
// real-size and its segment list by the reconstructed sequence.
func (e *Entries) resolveSparse(ent *Entry) error {
	if ent.header.Typeflag() != TypeGNUSparse || !ent.header.IsGNU() {
		return nil
	}

	size := ent.physical
	cursor := int64(0)
	remaining := size
	var segments []Segment

	addFragment := func(el sparseElem) error {
		if el.isEmpty() {
			return nil
		}
		offset, err := parseNumeric(el.offset())
		if err != nil {
			return err
		}
		length, err := parseNumeric(el.length())
		if err != nil {
			return err
		}

		// Alignment is judged by the physical bytes consumed so far,
		// not by the fragment's own offset; existing archives depend
		// on this exact computation.
		if (size-remaining)%blockSize != 0 {
			return ErrMisalignedFragment
		}
		if offset < cursor {
			return ErrOutOfOrderFragment
		}
		if offset > cursor {
			segments = append(segments, Segment{Hole: true, Length: offset - cursor})
		}
		if offset > math.MaxInt64-length {
			return ErrOffsetOverflow
		}
		if length > remaining {
			return ErrOverrunFragment
		}
		remaining -= length
		segments = append(segments, Segment{Length: length})
		cursor = offset + length
		return nil
	}

	embedded := ent.header.raw.gnu().sparse()
	for i := 0; i < embedded.maxEntries(); i++ {
		if err := addFragment(embedded.entry(i)); err != nil {
			return err
		}
	}

	if embedded.isExtended() {
		if e.ext == nil {
			e.ext = new(block)
			e.extOff = 0
		}
		for {
			ok, err := e.stream.archive.fillBlock(e.ext[:], &e.extOff)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed to read sparse extension record: %w", ErrTruncatedHeader)
			}
			e.stream.next += blockSize

			chained := e.ext.extSparse()
			for i := 0; i < chained.maxEntries(); i++ {
				if err := addFragment(chained.entry(i)); err != nil {
					return err
				}
			}
			if !chained.isExtended() {
				break
			}
		}
		e.ext = nil
	}

	realSize, err := ent.header.RealSize()
	if err != nil {
		return err
	}
	if cursor != realSize {
		return fmt.Errorf("%w: fragments describe %d bytes, header lists %d", ErrSparseSizeMismatch, cursor, realSize)
	}
	if remaining > 0 {
		return fmt.Errorf("%w: %d physical bytes not covered by fragments", ErrSparseSizeMismatch, remaining)
	}

	ent.size = cursor
	ent.segments = segments
	return nil
}
