// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"errors"
	"testing"
)

func TestBlockPadding(t *testing.T) {
	tests := []struct {
		offset int64
		want   int64
	}{
		{0, 0},
		{1, 511},
		{511, 1},
		{512, 0},
		{513, 511},
		{1024, 0},
	}

	for _, test := range tests {
		if got := blockPadding(test.offset); got != test.want {
			t.Errorf("blockPadding(%d) = %d, want %d", test.offset, got, test.want)
		}
	}
}

func TestParseOctal(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		want        int64
		expectError bool
	}{
		{name: "zero padded", input: []byte("0000644\x00"), want: 0644},
		{name: "space padded", input: []byte("   644 \x00"), want: 0644},
		{name: "empty field", input: []byte("\x00\x00\x00\x00"), want: 0},
		{name: "all spaces", input: []byte("        "), want: 0},
		{name: "invalid digits", input: []byte("00abc\x00"), expectError: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := parseOctal(test.input)
			if test.expectError {
				if !errors.Is(err, ErrInvalidHeader) {
					t.Errorf("error = %v, want ErrInvalidHeader", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOctal failed: %v", err)
			}
			if got != test.want {
				t.Errorf("parseOctal = %d, want %d", got, test.want)
			}
		})
	}
}

func TestParseNumericBase256(t *testing.T) {
	// a set top bit in the first byte switches to base-256
	input := make([]byte, 12)
	input[0] = 0x80
	input[10] = 0x01
	input[11] = 0x00

	got, err := parseNumeric(input)
	if err != nil {
		t.Fatalf("parseNumeric failed: %v", err)
	}
	if got != 256 {
		t.Errorf("parseNumeric = %d, want 256", got)
	}

	// a value that does not fit into int64 is rejected
	overflow := make([]byte, 12)
	overflow[0] = 0xff
	for i := 1; i < 12; i++ {
		overflow[i] = 0xff
	}
	if _, err := parseNumeric(overflow); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("overflow error = %v, want ErrInvalidHeader", err)
	}
}

func TestBlockChecksum(t *testing.T) {
	var b block
	copy(b[:], "somefile")
	copy(b[148:156], "junkjunk")

	// the checksum field itself is counted as eight spaces
	withJunk := b.computeChecksum()
	copy(b[148:156], "        ")
	withSpaces := b.computeChecksum()
	if withJunk != withSpaces {
		t.Errorf("checksum depends on the checksum field: %d != %d", withJunk, withSpaces)
	}
}

func TestBlockIsZero(t *testing.T) {
	var b block
	if !b.isZero() {
		t.Errorf("zero block not recognized")
	}
	b[511] = 1
	if b.isZero() {
		t.Errorf("non-zero block reported as zero")
	}
}

func TestBlockMagicDetection(t *testing.T) {
	var b block
	copy(b[257:], "ustar\x0000")
	if !b.isUSTAR() || b.isGNU() {
		t.Errorf("ustar magic misdetected: ustar=%v gnu=%v", b.isUSTAR(), b.isGNU())
	}

	var g block
	copy(g[257:], "ustar  \x00")
	if !g.isGNU() || g.isUSTAR() {
		t.Errorf("gnu magic misdetected: ustar=%v gnu=%v", g.isUSTAR(), g.isGNU())
	}
}

func TestHeaderGNUTimes(t *testing.T) {
	var h Header
	copy(h.raw[257:], "ustar  \x00")
	copy(h.raw[345:], "00000001750\x00") // atime
	copy(h.raw[357:], "00000003750\x00") // ctime

	atime, err := h.AccessTime()
	if err != nil {
		t.Fatalf("AccessTime failed: %v", err)
	}
	if atime.Unix() != 0o1750 {
		t.Errorf("AccessTime = %d, want %d", atime.Unix(), 0o1750)
	}
	ctime, err := h.ChangeTime()
	if err != nil {
		t.Fatalf("ChangeTime failed: %v", err)
	}
	if ctime.Unix() != 0o3750 {
		t.Errorf("ChangeTime = %d, want %d", ctime.Unix(), 0o3750)
	}

	// non-GNU records have no such fields
	var u Header
	copy(u.raw[257:], "ustar\x0000")
	copy(u.raw[345:], "00000001750\x00") // ustar prefix field
	atime, err = u.AccessTime()
	if err != nil {
		t.Fatalf("AccessTime failed: %v", err)
	}
	if !atime.IsZero() {
		t.Errorf("AccessTime on ustar header = %v, want zero time", atime)
	}
}

func TestSparseElemIsEmpty(t *testing.T) {
	elem := make(sparseElem, 24)
	if !elem.isEmpty() {
		t.Errorf("all-NUL descriptor not empty")
	}
	copy(elem, "000000000000")
	copy(elem[12:], "000000000000")
	if !elem.isEmpty() {
		t.Errorf("all-zero-digit descriptor not empty")
	}
	copy(elem, "000000001000")
	if elem.isEmpty() {
		t.Errorf("descriptor with offset reported empty")
	}
}
