// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"
)

// TargetMemory is an in-memory [Target] implementation. It is a map of
// paths to [MemoryEntry] values holding the file information, data and
// extended attributes. Permissions on entries are stored but not enforced.
// Entries can be accessed with m.Open(<path>), making the target usable as
// an [fs.FS] in tests.
type TargetMemory struct {
	files sync.Map // map[string]*MemoryEntry
}

// NewTargetMemory creates a new in-memory extraction target.
func NewTargetMemory() *TargetMemory {
	return &TargetMemory{}
}

// MemoryEntry is an entry in the in-memory filesystem
type MemoryEntry struct {
	FileInfo *MemoryFileInfo
	Data     []byte
	Xattrs   map[string]string
}

// CreateFile creates a new file in the in-memory filesystem. If the
// overwrite flag is set to false and the file already exists, an error is
// returned. The maxSize parameter can be used to limit the size of the
// file; if the file exceeds maxSize, an error is returned. The number of
// bytes written is returned.
func (m *TargetMemory) CreateFile(path string, src io.Reader, mode fs.FileMode, overwrite bool, maxSize int64) (int64, error) {
	if !fs.ValidPath(path) {
		return 0, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if !overwrite {
		if _, ok := m.files.Load(path); ok {
			return 0, fmt.Errorf("%w: %s", fs.ErrExist, path)
		}
	}

	// buffer content, bounded by maxSize
	var buf bytes.Buffer
	w := limitWriter(&buf, maxSize)
	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	m.files.Store(path, &MemoryEntry{
		FileInfo: &MemoryFileInfo{name: filepath.Base(path), size: n, mode: mode.Perm(), modTime: time.Now()},
		Data:     buf.Bytes(),
	})

	return n, nil
}

// CreateDir creates a new directory in the in-memory filesystem. If the
// directory already exists, nothing is done.
func (m *TargetMemory) CreateDir(path string, mode fs.FileMode) error {
	if !fs.ValidPath(path) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if _, ok := m.files.Load(path); ok {
		return nil
	}
	m.files.Store(path, &MemoryEntry{
		FileInfo: &MemoryFileInfo{name: filepath.Base(path), mode: mode.Perm() | fs.ModeDir},
	})
	return nil
}

// CreateSymlink creates a new symlink in the in-memory filesystem. The
// link target is stored as the entry data.
func (m *TargetMemory) CreateSymlink(oldName string, newName string, overwrite bool) error {
	if !fs.ValidPath(newName) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, newName)
	}
	if !overwrite {
		if _, ok := m.files.Load(newName); ok {
			return fmt.Errorf("%w: %s", fs.ErrExist, newName)
		}
	}
	m.files.Store(newName, &MemoryEntry{
		FileInfo: &MemoryFileInfo{name: filepath.Base(newName), mode: 0777 | fs.ModeSymlink},
		Data:     []byte(oldName),
	})
	return nil
}

// CreateHardlink creates a hard link by copying the data of the existing
// entry at oldName.
func (m *TargetMemory) CreateHardlink(oldName string, newName string, overwrite bool) error {
	if !fs.ValidPath(newName) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, newName)
	}
	if !overwrite {
		if _, ok := m.files.Load(newName); ok {
			return fmt.Errorf("%w: %s", fs.ErrExist, newName)
		}
	}
	e, ok := m.files.Load(oldName)
	if !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, oldName)
	}
	me := e.(*MemoryEntry)
	m.files.Store(newName, &MemoryEntry{
		FileInfo: &MemoryFileInfo{name: filepath.Base(newName), size: me.FileInfo.size, mode: me.FileInfo.mode, modTime: me.FileInfo.modTime},
		Data:     me.Data,
	})
	return nil
}

// CreateSpecial stores a device or fifo node as an empty entry with the
// matching mode bits.
func (m *TargetMemory) CreateSpecial(path string, typeflag byte, mode fs.FileMode, devmajor, devminor int64) error {
	if !fs.ValidPath(path) {
		return fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	var typeBits fs.FileMode
	switch typeflag {
	case TypeChar:
		typeBits = fs.ModeDevice | fs.ModeCharDevice
	case TypeBlock:
		typeBits = fs.ModeDevice
	case TypeFifo:
		typeBits = fs.ModeNamedPipe
	default:
		return unsupportedFile(path)
	}
	m.files.Store(path, &MemoryEntry{
		FileInfo: &MemoryFileInfo{name: filepath.Base(path), mode: mode.Perm() | typeBits},
	})
	return nil
}

// Lstat returns the FileInfo for the given path without following symlinks.
func (m *TargetMemory) Lstat(path string) (fs.FileInfo, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if e, ok := m.files.Load(path); ok {
		return e.(*MemoryEntry).FileInfo, nil
	}
	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
}

// Stat returns the FileInfo for the given path, following symlinks.
func (m *TargetMemory) Stat(path string) (fs.FileInfo, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if e, ok := m.files.Load(path); ok {
		me := e.(*MemoryEntry)
		if me.FileInfo.Mode()&fs.ModeSymlink != 0 {
			linkTarget := filepath.Join(filepath.Dir(path), string(me.Data))
			return m.Stat(linkTarget)
		}
		return me.FileInfo, nil
	}
	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
}

// Chmod changes the permission bits of the entry at the given path.
func (m *TargetMemory) Chmod(path string, mode fs.FileMode) error {
	e, ok := m.files.Load(path)
	if !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	me := e.(*MemoryEntry)
	me.FileInfo.mode = me.FileInfo.mode.Type() | mode.Perm()
	return nil
}

// Chtimes changes the modification time of the entry at the given path.
func (m *TargetMemory) Chtimes(path string, atime, mtime time.Time) error {
	e, ok := m.files.Load(path)
	if !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	e.(*MemoryEntry).FileInfo.modTime = mtime
	return nil
}

// Lchtimes changes the modification time of the entry at the given path
// without following symlinks; symlinks are plain entries in memory.
func (m *TargetMemory) Lchtimes(path string, atime, mtime time.Time) error {
	return m.Chtimes(path, atime, mtime)
}

// Chown records the owner of the entry at the given path; ownership is not
// enforced in memory.
func (m *TargetMemory) Chown(path string, uid, gid int) error {
	if _, ok := m.files.Load(path); !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	return nil
}

// SetXattr stores the named extended attribute on the entry at path.
func (m *TargetMemory) SetXattr(path string, name string, value []byte) error {
	e, ok := m.files.Load(path)
	if !ok {
		return fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	me := e.(*MemoryEntry)
	if me.Xattrs == nil {
		me.Xattrs = make(map[string]string)
	}
	me.Xattrs[name] = string(value)
	return nil
}

// Open opens the named file for reading. If the file is a symlink, the
// target of the symlink is opened. If the file does not exist, or is a
// directory, an error is returned.
func (m *TargetMemory) Open(path string) (fs.File, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	e, ok := m.files.Load(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
	}
	me := e.(*MemoryEntry)
	if me.FileInfo.Mode()&fs.ModeDir != 0 {
		return nil, fmt.Errorf("cannot open directory")
	}
	if me.FileInfo.Mode()&fs.ModeSymlink != 0 {
		linkTarget := filepath.Join(filepath.Dir(path), string(me.Data))
		return m.Open(linkTarget)
	}

	// return a copy so reads don't consume the stored entry
	return &MemoryEntry{FileInfo: me.FileInfo, Data: me.Data, Xattrs: me.Xattrs}, nil
}

// ReadFile returns the content of the entry at the given path.
func (m *TargetMemory) ReadFile(path string) ([]byte, error) {
	if !fs.ValidPath(path) {
		return nil, fmt.Errorf("%w: %s", fs.ErrInvalid, path)
	}
	if e, ok := m.files.Load(path); ok {
		me := e.(*MemoryEntry)
		if me.FileInfo.Mode()&fs.ModeDir != 0 {
			return nil, fmt.Errorf("cannot read directory")
		}
		return me.Data, nil
	}
	return nil, fmt.Errorf("%w: %s", fs.ErrNotExist, path)
}

func (me *MemoryEntry) Name() string { return me.FileInfo.Name() }

func (me *MemoryEntry) Stat() (fs.FileInfo, error) { return me.FileInfo, nil }

func (me *MemoryEntry) Read(p []byte) (int, error) {
	n := copy(p, me.Data)
	if n == 0 {
		return 0, io.EOF
	}
	me.Data = me.Data[n:]
	return n, nil
}

func (me *MemoryEntry) Close() error { return nil }

// MemoryFileInfo is a FileInfo implementation for the in-memory filesystem
type MemoryFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

// Name returns the name of the file
func (fi *MemoryFileInfo) Name() string { return fi.name }

// Size returns the size of the file
func (fi *MemoryFileInfo) Size() int64 { return fi.size }

// Mode returns the mode of the file
func (fi *MemoryFileInfo) Mode() fs.FileMode { return fi.mode }

// ModTime returns the modification time of the file
func (fi *MemoryFileInfo) ModTime() time.Time { return fi.modTime }

// IsDir returns true if the file is a directory
func (fi *MemoryFileInfo) IsDir() bool { return fi.mode.IsDir() }

// Sys returns the underlying data source (nil for in-memory filesystem)
func (fi *MemoryFileInfo) Sys() any { return nil }
