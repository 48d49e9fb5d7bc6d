// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream_test

import (
	"archive/tar"
	"bytes"
	"fmt"
	"testing"
)

// archiveContent describes one entry of a test archive
type archiveContent struct {
	Name       string
	Content    []byte
	Mode       int64
	Filetype   byte
	Linktarget string
}

// packTar creates a tar archive with the given content, using the stdlib
// writer. The writer appends the terminating zero records on Close.
func packTar(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	writeBuffer := bytes.NewBuffer([]byte{})
	tw := tar.NewWriter(writeBuffer)

	for _, c := range content {
		fileType := c.Filetype
		if fileType == 0 {
			fileType = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     c.Name,
			Mode:     c.Mode,
			Size:     int64(len(c.Content)),
			Linkname: c.Linktarget,
			Typeflag: fileType,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("error writing tar header: %v", err)
		}
		if _, err := tw.Write(c.Content); err != nil {
			t.Fatalf("error writing tar data: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("error closing tar writer: %v", err)
	}

	return writeBuffer.Bytes()
}

// putOctal writes v as a NUL-terminated zero-padded octal number into field
func putOctal(field []byte, v int64) {
	s := fmt.Sprintf("%0*o", len(field)-1, v)
	copy(field, s)
	field[len(field)-1] = 0
}

// finalizeChecksum computes the header checksum with the checksum field
// counted as spaces and stores it in the conventional "%06o\x00 " form.
func finalizeChecksum(b []byte) {
	var sum int64
	for i, c := range b {
		if i >= 148 && i < 156 {
			c = ' '
		}
		sum += int64(c)
	}
	copy(b[148:156], fmt.Sprintf("%06o\x00 ", sum))
}

// rawHeader builds a raw 512-byte header record with the given magic bytes
// at offset 257.
func rawHeader(name string, typeflag byte, size int64, magic string) []byte {
	b := make([]byte, 512)
	copy(b[0:100], name)
	putOctal(b[100:108], 0640) // mode
	putOctal(b[108:116], 0)    // uid
	putOctal(b[116:124], 0)    // gid
	putOctal(b[124:136], size)
	putOctal(b[136:148], 0) // mtime
	b[156] = typeflag
	copy(b[257:], magic)
	finalizeChecksum(b)
	return b
}

// gnuHeader builds a raw header carrying the old GNU magic and version
func gnuHeader(name string, typeflag byte, size int64) []byte {
	return rawHeader(name, typeflag, size, "ustar  \x00")
}

// ustarHeader builds a raw header carrying the ustar magic and version
func ustarHeader(name string, typeflag byte, size int64) []byte {
	return rawHeader(name, typeflag, size, "ustar\x0000")
}

// putSparse writes the i-th (offset, length) fragment descriptor of the
// 24-byte descriptor run starting at region.
func putSparse(region []byte, i int, offset, length int64) {
	putOctal(region[i*24:][:12], offset)
	putOctal(region[i*24+12:][:12], length)
}

// gnuSparseHeader builds an old GNU sparse header: up to four fragment
// descriptors at offset 386, the extended flag at 482 and the real size at
// 483. finalize must be called after any further field edits.
func gnuSparseHeader(name string, size, realSize int64, frags [][2]int64, extended bool) []byte {
	b := make([]byte, 512)
	copy(b[0:100], name)
	putOctal(b[100:108], 0640)
	putOctal(b[108:116], 0)
	putOctal(b[116:124], 0)
	putOctal(b[124:136], size)
	putOctal(b[136:148], 0)
	b[156] = 'S'
	copy(b[257:], "ustar  \x00")
	for i, f := range frags {
		putSparse(b[386:], i, f[0], f[1])
	}
	if extended {
		b[482] = 1
	}
	putOctal(b[483:495], realSize)
	finalizeChecksum(b)
	return b
}

// sparseExtRecord builds a chained 512-byte sparse extension record: up to
// 21 fragment descriptors and the extended flag at 504.
func sparseExtRecord(frags [][2]int64, extended bool) []byte {
	b := make([]byte, 512)
	for i, f := range frags {
		putSparse(b, i, f[0], f[1])
	}
	if extended {
		b[504] = 1
	}
	return b
}

// paxRecords encodes key/value pairs as length-prefixed pax extension
// records, the length counting the full record including itself.
func paxRecords(pairs [][2]string) []byte {
	var out []byte
	for _, p := range pairs {
		base := len(" " + p[0] + "=" + p[1] + "\n")
		length := base
		for length != base+len(fmt.Sprint(length)) {
			length = base + len(fmt.Sprint(length))
		}
		out = append(out, fmt.Sprintf("%d %s=%s\n", length, p[0], p[1])...)
	}
	return out
}

// padTo512 pads data with zero bytes up to the next record boundary
func padTo512(data []byte) []byte {
	if rest := len(data) % 512; rest != 0 {
		data = append(data, make([]byte, 512-rest)...)
	}
	return data
}

// terminator returns the two zero records that end an archive
func terminator() []byte {
	return make([]byte, 1024)
}
