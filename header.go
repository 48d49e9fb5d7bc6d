// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"io/fs"
	"strings"
	"time"
)

// Type flags as stored in byte 156 of a header record.
const (
	// TypeReg is a regular file.
	TypeReg = '0'

	// TypeRegA is a regular file in pre-ustar archives, which use a NUL
	// type flag and a trailing slash on the name to mark directories.
	TypeRegA = '\x00'

	// TypeLink is a hard link.
	TypeLink = '1'

	// TypeSymlink is a symbolic link.
	TypeSymlink = '2'

	// TypeChar is a character device node.
	TypeChar = '3'

	// TypeBlock is a block device node.
	TypeBlock = '4'

	// TypeDir is a directory.
	TypeDir = '5'

	// TypeFifo is a FIFO node.
	TypeFifo = '6'

	// TypeCont is a reserved (contiguous file) type.
	TypeCont = '7'

	// TypeXHeader is a PAX extended header applying to the next entry.
	TypeXHeader = 'x'

	// TypeXGlobalHeader is a PAX global header.
	TypeXGlobalHeader = 'g'

	// TypeGNULongName is a GNU record carrying the long pathname of the
	// next entry.
	TypeGNULongName = 'L'

	// TypeGNULongLink is a GNU record carrying the long linkname of the
	// next entry.
	TypeGNULongLink = 'K'

	// TypeGNUSparse is a GNU sparse regular file.
	TypeGNUSparse = 'S'
)

// Header is a validated 512-byte tar header record. It keeps the raw record
// and decodes fields on demand; the record is never mutated after the
// checksum has been verified.
type Header struct {
	raw block
}

// Bytes returns the raw 512-byte record.
func (h *Header) Bytes() []byte { return h.raw[:] }

// Typeflag returns the entry type tag of the record.
func (h *Header) Typeflag() byte { return h.raw.v7().typeFlag() }

// IsUSTAR reports whether the record is interpretable as a ustar header.
func (h *Header) IsUSTAR() bool { return h.raw.isUSTAR() }

// IsGNU reports whether the record is interpretable as a GNU header.
func (h *Header) IsGNU() bool { return h.raw.isGNU() }

// isRecognized reports whether the record carries one of the known magics.
// Continuation type flags are only honored on recognized records.
func (h *Header) isRecognized() bool { return h.raw.isUSTAR() || h.raw.isGNU() }

// Name returns the entry name stored in the header, including the ustar
// prefix field when present. Long GNU names live in a continuation record
// and are resolved on [Entry], not here.
func (h *Header) Name() string {
	name := parseString(h.raw.v7().name())
	if h.raw.isUSTAR() {
		if prefix := parseString(h.raw.ustar().prefix()); len(prefix) > 0 {
			name = prefix + "/" + name
		}
	}
	return name
}

// Linkname returns the link target stored in the header.
func (h *Header) Linkname() string { return parseString(h.raw.v7().linkName()) }

// Size returns the declared size of the entry's physical data in the
// stream. For sparse entries this is the stored size, not the logical one.
func (h *Header) Size() (int64, error) { return parseNumeric(h.raw.v7().size()) }

// RealSize returns the declared logical size of a GNU sparse entry.
func (h *Header) RealSize() (int64, error) { return parseNumeric(h.raw.gnu().realSize()) }

// Mode returns the permission bits of the entry.
func (h *Header) Mode() (fs.FileMode, error) {
	m, err := parseOctal(h.raw.v7().mode())
	return fs.FileMode(m).Perm(), err
}

// UID returns the numeric user id of the entry.
func (h *Header) UID() (int, error) {
	v, err := parseNumeric(h.raw.v7().uid())
	return int(v), err
}

// GID returns the numeric group id of the entry.
func (h *Header) GID() (int, error) {
	v, err := parseNumeric(h.raw.v7().gid())
	return int(v), err
}

// Uname returns the user name of the entry, if the record carries one.
func (h *Header) Uname() string {
	if !h.isRecognized() {
		return ""
	}
	return parseString(h.raw.ustar().userName())
}

// Gname returns the group name of the entry, if the record carries one.
func (h *Header) Gname() string {
	if !h.isRecognized() {
		return ""
	}
	return parseString(h.raw.ustar().groupName())
}

// ModTime returns the modification time of the entry.
func (h *Header) ModTime() (time.Time, error) {
	v, err := parseNumeric(h.raw.v7().modTime())
	return time.Unix(v, 0), err
}

// AccessTime returns the access time stored in GNU headers; the zero time
// for other formats.
func (h *Header) AccessTime() (time.Time, error) {
	if !h.IsGNU() {
		return time.Time{}, nil
	}
	v, err := parseNumeric(h.raw.gnu().accessTime())
	return time.Unix(v, 0), err
}

// ChangeTime returns the change time stored in GNU headers; the zero time
// for other formats.
func (h *Header) ChangeTime() (time.Time, error) {
	if !h.IsGNU() {
		return time.Time{}, nil
	}
	v, err := parseNumeric(h.raw.gnu().changeTime())
	return time.Unix(v, 0), err
}

// Devmajor returns the major device number for character and block nodes.
func (h *Header) Devmajor() (int64, error) {
	if !h.isRecognized() {
		return 0, nil
	}
	return parseNumeric(h.raw.ustar().devMajor())
}

// Devminor returns the minor device number for character and block nodes.
func (h *Header) Devminor() (int64, error) {
	if !h.isRecognized() {
		return 0, nil
	}
	return parseNumeric(h.raw.ustar().devMinor())
}

// Cksum returns the checksum stored in the record.
func (h *Header) Cksum() (int64, error) { return parseOctal(h.raw.v7().chksum()) }

// IsDir reports whether the entry is a directory, honoring the pre-ustar
// trailing-slash convention.
func (h *Header) IsDir() bool {
	switch h.Typeflag() {
	case TypeDir:
		return true
	case TypeRegA:
		return strings.HasSuffix(parseString(h.raw.v7().name()), "/")
	}
	return false
}
