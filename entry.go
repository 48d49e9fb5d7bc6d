// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

// Segment is one piece of an entry's logical content: either Length bytes
// read from the underlying stream, or, when Hole is set, Length zero bytes
// that consume nothing from the stream.
type Segment struct {
	Hole   bool
	Length int64
}

// Entry is one fully resolved member of an archive: its validated header,
// its absolute positions in the stream, its logical content and the
// long-name/long-link/PAX payloads of the continuation records that
// preceded it.
//
// An entry's content is read lazily from the shared archive stream, so
// entries must be consumed in the order they were yielded and before the
// stream is advanced past them.
type Entry struct {
	archive *Archive
	header  Header

	headerPos int64
	filePos   int64

	// size is the resolved logical content size; for GNU sparse entries
	// it is the real size, everywhere else it equals physical.
	size     int64
	physical int64

	longPathname []byte
	longLinkname []byte
	paxHeaders   map[string]string

	segments []Segment
	seg      int
	segRead  int64
}

// Header returns the entry's validated header record.
func (e *Entry) Header() *Header { return &e.header }

// HeaderPos returns the absolute stream offset of the entry's header.
func (e *Entry) HeaderPos() int64 { return e.headerPos }

// FilePos returns the absolute stream offset of the first byte following
// the entry's header.
func (e *Entry) FilePos() int64 { return e.filePos }

// Size returns the entry's resolved logical content size in bytes.
func (e *Entry) Size() int64 { return e.size }

// Segments returns the entry's logical content layout. The segment lengths
// always sum to [Entry.Size].
func (e *Entry) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// IsSparse reports whether the entry's content contains reconstructed
// zero-fill segments.
func (e *Entry) IsSparse() bool {
	for _, s := range e.segments {
		if s.Hole {
			return true
		}
	}
	return false
}

// Name returns the entry's resolved name: the GNU long-name payload if one
// was attached, else the PAX path record, else the name stored in the
// header.
func (e *Entry) Name() string {
	if e.longPathname != nil {
		return parseString(e.longPathname)
	}
	if v, ok := e.paxHeaders[paxPath]; ok {
		return v
	}
	return e.header.Name()
}

// Linkname returns the entry's resolved link target, with the same
// precedence as [Entry.Name].
func (e *Entry) Linkname() string {
	if e.longLinkname != nil {
		return parseString(e.longLinkname)
	}
	if v, ok := e.paxHeaders[paxLinkpath]; ok {
		return v
	}
	return e.header.Linkname()
}

// PaxExtensions returns the PAX key/value records attached to the entry,
// or nil if none were present.
func (e *Entry) PaxExtensions() map[string]string { return e.paxHeaders }

// Uname returns the entry's resolved user name.
func (e *Entry) Uname() string {
	if v, ok := e.paxHeaders[paxUname]; ok {
		return v
	}
	return e.header.Uname()
}

// Gname returns the entry's resolved group name.
func (e *Entry) Gname() string {
	if v, ok := e.paxHeaders[paxGname]; ok {
		return v
	}
	return e.header.Gname()
}

// UID returns the entry's resolved numeric user id.
func (e *Entry) UID() (int, error) {
	if v, ok := e.paxHeaders[paxUID]; ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: malformed pax uid", ErrInvalidHeader)
		}
		return id, nil
	}
	return e.header.UID()
}

// GID returns the entry's resolved numeric group id.
func (e *Entry) GID() (int, error) {
	if v, ok := e.paxHeaders[paxGID]; ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: malformed pax gid", ErrInvalidHeader)
		}
		return id, nil
	}
	return e.header.GID()
}

// ModTime returns the entry's resolved modification time.
func (e *Entry) ModTime() (time.Time, error) {
	if v, ok := e.paxHeaders[paxMtime]; ok {
		sec, err := paxTime(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(sec, 0), nil
	}
	return e.header.ModTime()
}

// Mode returns the entry's permission bits.
func (e *Entry) Mode() (fs.FileMode, error) { return e.header.Mode() }

// Xattrs returns the extended attributes carried in the entry's PAX
// records, keyed by attribute name.
func (e *Entry) Xattrs() map[string]string {
	var attrs map[string]string
	for k, v := range e.paxHeaders {
		if name, ok := strings.CutPrefix(k, paxSchilyXattr); ok {
			if attrs == nil {
				attrs = make(map[string]string)
			}
			attrs[name] = v
		}
	}
	return attrs
}

// continuationRecords returns the number of continuation records that
// were absorbed into the entry.
func (e *Entry) continuationRecords() int64 {
	var n int64
	if e.longPathname != nil {
		n++
	}
	if e.longLinkname != nil {
		n++
	}
	if e.paxHeaders != nil {
		n++
	}
	return n
}

// Read reads the entry's logical content. Data segments are served from
// the shared archive stream, advancing its position; hole segments emit
// zero bytes without any stream consumption. After exactly [Entry.Size]
// bytes the reader returns io.EOF.
func (e *Entry) Read(p []byte) (int, error) {
	for e.seg < len(e.segments) {
		current := e.segments[e.seg]
		left := current.Length - e.segRead
		if left == 0 {
			e.seg++
			e.segRead = 0
			continue
		}
		if int64(len(p)) > left {
			p = p[:left]
		}
		if len(p) == 0 {
			return 0, nil
		}

		if current.Hole {
			for i := range p {
				p[i] = 0
			}
			e.segRead += int64(len(p))
			return len(p), nil
		}

		n, err := e.archive.Read(p)
		e.segRead += int64(n)
		if n == 0 {
			if err == nil || err == io.EOF {
				return 0, fmt.Errorf("%w: archive ended before entry content", ErrUnexpectedEnd)
			}
			return 0, err
		}
		return n, nil
	}
	return 0, io.EOF
}

// readAll drains the entry's full content, used to buffer continuation
// record payloads.
func (e *Entry) readAll() ([]byte, error) {
	buf, err := io.ReadAll(e)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
