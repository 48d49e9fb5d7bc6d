// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package tarstream

import (
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// lchtimes modifies the access and modified timestamps on a target path
// This capability is only available on unix as of now.
func lchtimes(path string, atime, mtime time.Time) error {
	return unix.Lutimes(path, []unix.Timeval{
		unixTimeval(atime),
		unixTimeval(mtime),
	})
}

// unixTimeval converts a time.Time to a unix.Timeval. Note that it always rounds
// up to the nearest microsecond, so even one nanosecond past the previous nanosecond
// will be rounded up to the next microsecond.
// See the implementation of unix.NsecToTimeval for details on how this happens.
func unixTimeval(t time.Time) unix.Timeval {
	return unix.NsecToTimeval(t.UnixNano())
}

// canMaintainSymlinkTimestamps determines whether is is possible to change
// timestamps on symlinks for the the current platform. For regular files
// and directories, attempts are made to restore permissions and timestamps
// after extraction. But for symbolic links, go's cross-platform
// packages (Chmod and Chtimes) are not capable of changing symlink info
// because those methods follow the symlinks. However, a platform-dependent option
// is provided for unix (see Lchtimes)
const canMaintainSymlinkTimestamps = true

// createSpecialNode creates a character device, block device or fifo node
// through mknod/mkfifo.
func createSpecialNode(path string, typeflag byte, mode fs.FileMode, devmajor, devminor int64) error {
	perm := uint32(mode.Perm())
	switch typeflag {
	case TypeChar:
		dev := unix.Mkdev(uint32(devmajor), uint32(devminor))
		if err := unix.Mknod(path, unix.S_IFCHR|perm, int(dev)); err != nil {
			return fmt.Errorf("failed to create character device: %w", err)
		}
	case TypeBlock:
		dev := unix.Mkdev(uint32(devmajor), uint32(devminor))
		if err := unix.Mknod(path, unix.S_IFBLK|perm, int(dev)); err != nil {
			return fmt.Errorf("failed to create block device: %w", err)
		}
	case TypeFifo:
		if err := unix.Mkfifo(path, perm); err != nil {
			return fmt.Errorf("failed to create fifo: %w", err)
		}
	default:
		return unsupportedFile(path)
	}
	return nil
}
