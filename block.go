// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// blockSize is the size of each block in a tar stream.
const blockSize = 512

// blockPadding computes the number of bytes needed to pad offset up to the
// next multiple of blockSize.
func blockPadding(offset int64) int64 {
	return -offset & (blockSize - 1)
}

// block is a single 512-byte record of a tar stream. The same record is
// interpreted as a classic (v7), ustar or GNU header depending on its magic
// bytes; the typed views below reinterpret the record in place without
// copying.
type block [blockSize]byte

func (b *block) v7() *headerV7       { return (*headerV7)(b) }
func (b *block) ustar() *headerUSTAR { return (*headerUSTAR)(b) }
func (b *block) gnu() *headerGNU     { return (*headerGNU)(b) }

// extSparse views the whole block as a chained GNU extended sparse record:
// 21 fragment descriptors followed by an "is extended" flag byte.
func (b *block) extSparse() sparseArray { return sparseArray(b[:]) }

// isZero reports whether the block consists entirely of zero bytes, which
// marks the end of the archive.
func (b *block) isZero() bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// computeChecksum sums all bytes of the block with the eight checksum-field
// bytes counted as ASCII space (0x20) each, matching how tar writers zero
// the field before summing.
func (b *block) computeChecksum() int64 {
	var sum int64
	for i, c := range b {
		if i >= 148 && i < 156 {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

// isUSTAR reports whether the record carries the ustar magic and version.
func (b *block) isUSTAR() bool {
	magic := string(b.ustar().magic())
	version := string(b.ustar().version())
	return magic == magicUSTAR && version == versionUSTAR
}

// isGNU reports whether the record carries the GNU magic and version.
func (b *block) isGNU() bool {
	magic := string(b.gnu().magic())
	version := string(b.gnu().version())
	return magic == magicGNU && version == versionGNU
}

const (
	magicGNU     = "ustar "
	versionGNU   = " \x00"
	magicUSTAR   = "ustar\x00"
	versionUSTAR = "00"
)

type headerV7 [blockSize]byte

func (h *headerV7) name() []byte     { return h[000:][:100] }
func (h *headerV7) mode() []byte     { return h[100:][:8] }
func (h *headerV7) uid() []byte      { return h[108:][:8] }
func (h *headerV7) gid() []byte      { return h[116:][:8] }
func (h *headerV7) size() []byte     { return h[124:][:12] }
func (h *headerV7) modTime() []byte  { return h[136:][:12] }
func (h *headerV7) chksum() []byte   { return h[148:][:8] }
func (h *headerV7) typeFlag() byte   { return h[156] }
func (h *headerV7) linkName() []byte { return h[157:][:100] }

type headerUSTAR [blockSize]byte

func (h *headerUSTAR) magic() []byte     { return h[257:][:6] }
func (h *headerUSTAR) version() []byte   { return h[263:][:2] }
func (h *headerUSTAR) userName() []byte  { return h[265:][:32] }
func (h *headerUSTAR) groupName() []byte { return h[297:][:32] }
func (h *headerUSTAR) devMajor() []byte  { return h[329:][:8] }
func (h *headerUSTAR) devMinor() []byte  { return h[337:][:8] }
func (h *headerUSTAR) prefix() []byte    { return h[345:][:155] }

type headerGNU [blockSize]byte

func (h *headerGNU) magic() []byte      { return h[257:][:6] }
func (h *headerGNU) version() []byte    { return h[263:][:2] }
func (h *headerGNU) userName() []byte   { return h[265:][:32] }
func (h *headerGNU) groupName() []byte  { return h[297:][:32] }
func (h *headerGNU) devMajor() []byte   { return h[329:][:8] }
func (h *headerGNU) devMinor() []byte   { return h[337:][:8] }
func (h *headerGNU) accessTime() []byte { return h[345:][:12] }
func (h *headerGNU) changeTime() []byte { return h[357:][:12] }

// sparse returns the four fragment descriptors embedded in the header plus
// the trailing "is extended" flag byte.
func (h *headerGNU) sparse() sparseArray { return sparseArray(h[386:][:24*4+1]) }
func (h *headerGNU) realSize() []byte    { return h[483:][:12] }

// sparseArray is a view over a run of 24-byte sparse fragment descriptors
// followed by a one-byte "is extended" flag. It covers both the descriptors
// embedded in a GNU header and a full chained extension block.
type sparseArray []byte

func (s sparseArray) entry(i int) sparseElem { return sparseElem(s[i*24:]) }
func (s sparseArray) isExtended() bool       { return s[24*s.maxEntries()] != 0 }
func (s sparseArray) maxEntries() int        { return len(s) / 24 }

// sparseElem is one (offset, length) fragment descriptor.
type sparseElem []byte

func (s sparseElem) offset() []byte { return s[00:][:12] }
func (s sparseElem) length() []byte { return s[12:][:12] }

// isEmpty reports whether the descriptor is a zero-valued sentinel that
// carries no fragment.
func (s sparseElem) isEmpty() bool {
	empty := func(b []byte) bool {
		for _, c := range b {
			if c != 0 && c != ' ' && c != '0' {
				return false
			}
		}
		return true
	}
	return empty(s.offset()) && empty(s.length())
}

// parseNumeric decodes a numeric field that is either zero-padded octal or,
// if the leading byte has its top bit set, GNU binary (base-256).
func parseNumeric(b []byte) (int64, error) {
	if len(b) > 0 && b[0]&0x80 != 0 {
		// base-256 with a two's complement encoding
		var x int64
		for i, c := range b {
			if i == 0 {
				c &= 0x7f
			}
			if (x >> 56) > 0 {
				return 0, fmt.Errorf("%w: base-256 value out of range", ErrInvalidHeader)
			}
			x = x<<8 | int64(c)
		}
		if (x >> 63) > 0 {
			return 0, fmt.Errorf("%w: base-256 value out of range", ErrInvalidHeader)
		}
		return x, nil
	}
	return parseOctal(b)
}

// parseOctal decodes an octal field padded with leading spaces or NULs and
// terminated by a space or NUL.
func parseOctal(b []byte) (int64, error) {
	b = bytes.Trim(b, " \x00")
	if len(b) == 0 {
		return 0, nil
	}
	x, err := strconv.ParseUint(parseString(b), 8, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidHeader, err)
	}
	return int64(x), nil
}

// parseString decodes a NUL-terminated string field.
func parseString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}
