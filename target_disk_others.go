// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package tarstream

import (
	"io/fs"
	"time"
)

// lchtimes is a noop on non-unix platforms.
func lchtimes(path string, atime, mtime time.Time) error {
	return nil
}

// canMaintainSymlinkTimestamps is false on platforms without Lutimes.
const canMaintainSymlinkTimestamps = false

// createSpecialNode is not available on non-unix platforms.
func createSpecialNode(path string, typeflag byte, mode fs.FileMode, devmajor, devminor int64) error {
	return unsupportedFile(path)
}
