// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// referenced by the telemetry capture and swapped out in tests
var now = time.Now

// Unpack reads a tar archive from src and extracts its contents below dst
// on the local disk. The provided config controls limits, permission and
// ownership handling and how errors are treated.
func Unpack(ctx context.Context, src io.Reader, dst string, cfg *Config) error {
	return UnpackTo(ctx, NewTargetDisk(), dst, src, cfg)
}

// UnpackTo reads a tar archive from src and extracts its contents below
// dst on the given [Target].
func UnpackTo(ctx context.Context, t Target, dst string, src io.Reader, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}

	// prepare telemetry capturing
	td := &TelemetryData{}
	defer cfg.TelemetryHook()(ctx, td)
	defer captureExtractionDuration(td, now())

	// start extraction
	a := NewArchive(src, cfg)
	defer captureInputSize(td, a.lr)
	return extract(ctx, t, dst, a, cfg, td)
}

// deferredDir is a directory entry whose metadata is applied after the
// walk, so a restrictive mode or an old modification time cannot interfere
// with the extraction of its descendants.
type deferredDir struct {
	name  string
	entry *Entry
}

// extract checks ctx for cancellation while it walks the resolved entries
// of the archive and extracts them to dst.
func extract(ctx context.Context, t Target, dst string, a *Archive, c *Config, td *TelemetryData) error {
	// check if dst needs to be created
	if c.CreateDestination() {
		if err := t.CreateDir(dst, c.CustomCreateDirMode()); err != nil {
			return handleError(c, td, "cannot create destination", err)
		}
	}

	// check if dst exist
	if _, err := t.Lstat(dst); err != nil {
		return handleError(c, td, "destination does not exist", err)
	}

	entries, err := a.Entries()
	if err != nil {
		return handleError(c, td, "cannot open entry stream", err)
	}

	// collect non-terminal errors when extraction continues on error
	var collected *multierror.Error
	handle := func(msg string, err error) error {
		err = handleError(c, td, msg, err)
		if err != nil && c.ContinueOnError() {
			collected = multierror.Append(collected, err)
			return nil
		}
		return err
	}

	// start extraction
	c.Logger().Info("start extraction", "dst", dst)
	var entryCounter int64
	var extractedBytes int64
	var deferred []deferredDir

	for {
		// check if context is canceled
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// get next entry
		ent, err := entries.Next()

		switch {

		// if no more entries are found exit loop
		case err == io.EOF:
			// apply directory metadata deepest-first, then finish
			if err := applyDeferred(t, dst, deferred, c); err != nil {
				if err := handle("failed to restore directory metadata", err); err != nil {
					return err
				}
			}
			return collected.ErrorOrNil()

		// return any other error
		case err != nil:
			return handleError(c, td, "error reading", err)
		}

		// check if maximum of entries is exceeded
		entryCounter++
		if err := c.CheckMaxEntries(entryCounter); err != nil {
			return handleError(c, td, "max entries check failed", err)
		}

		td.EntriesDecoded++
		td.ContinuationRecords += ent.continuationRecords()
		name := ent.Name()

		// check if entry needs to match patterns
		match, err := checkPatterns(c.Patterns(), name)
		if err != nil {
			return handleError(c, td, "cannot check pattern", err)
		}
		if !match {
			c.Logger().Info("skipping entry (pattern mismatch)", "name", name)
			td.PatternMismatches++
			continue
		}

		hdr := ent.Header()
		mode, err := ent.Mode()
		if err != nil {
			if err := handle("cannot parse entry mode", err); err != nil {
				return err
			}
			continue
		}

		c.Logger().Debug("extract", "name", name, "type", string(hdr.Typeflag()))
		switch {

		// if its a dir and it doesn't exist create it
		case hdr.IsDir():

			// created writable so descendants can land inside, the
			// recorded mode is restored in the deferred pass
			if err := createDir(t, dst, name, mode.Perm()|0700, c); err != nil {
				if err := handle("failed to create safe directory", err); err != nil {
					return err
				}

				// do not end on error
				continue
			}

			deferred = append(deferred, deferredDir{name: name, entry: ent})

			// store telemetry and continue
			td.ExtractedDirs++
			continue

		// if it's a regular file create it
		case hdr.Typeflag() == TypeReg || hdr.Typeflag() == TypeRegA ||
			hdr.Typeflag() == TypeGNUSparse || hdr.Typeflag() == TypeCont:

			// check extraction size
			if err := c.CheckExtractionSize(extractedBytes + ent.Size()); err != nil {
				return handleError(c, td, "max extraction size exceeded", err)
			}

			if ent.IsSparse() {
				td.SparseEntries++
			}

			// create file
			writtenBytes, err := createFile(t, dst, name, ent, mode.Perm(), c.MaxExtractionSize()-extractedBytes, c)
			if err != nil {
				if err := handle("failed to create file", err); err != nil {
					return err
				}

				// do not end on error
				continue
			}
			extractedBytes = extractedBytes + writtenBytes

			if err := applyMetadata(t, dst, name, ent, false, c); err != nil {
				if err := handle("failed to restore file metadata", err); err != nil {
					return err
				}
				continue
			}

			// store telemetry
			td.ExtractionSize = extractedBytes
			td.ExtractedFiles++
			continue

		// its a symlink !!
		case hdr.Typeflag() == TypeSymlink:

			// check if symlinks are allowed
			if c.DenySymlinkExtraction() {
				c.Logger().Info("skipped symlink extraction", "name", name, "target", ent.Linkname())
				td.UnsupportedFiles++
				td.LastUnsupportedFile = name
				continue
			}

			// create link
			if err := createSymlink(t, dst, name, ent.Linkname(), c); err != nil {
				if err := handle("failed to create symlink", err); err != nil {
					return err
				}

				// do not end on error
				continue
			}

			if err := applyMetadata(t, dst, name, ent, true, c); err != nil {
				if err := handle("failed to restore symlink metadata", err); err != nil {
					return err
				}
				continue
			}

			// store telemetry and continue
			td.ExtractedSymlinks++
			continue

		// hard link to an already extracted entry
		case hdr.Typeflag() == TypeLink:

			if err := createHardlink(t, dst, name, ent.Linkname(), c); err != nil {
				if err := handle("failed to create hardlink", err); err != nil {
					return err
				}

				// do not end on error
				continue
			}

			// store telemetry and continue
			td.ExtractedFiles++
			continue

		// device and fifo nodes
		case hdr.Typeflag() == TypeChar || hdr.Typeflag() == TypeBlock || hdr.Typeflag() == TypeFifo:

			devmajor, _ := hdr.Devmajor()
			devminor, _ := hdr.Devminor()
			if err := createSpecial(t, dst, name, hdr.Typeflag(), mode.Perm(), devmajor, devminor, c); err != nil {
				if err := handle("failed to create special file", err); err != nil {
					return err
				}

				// do not end on error
				continue
			}

			if err := applyMetadata(t, dst, name, ent, false, c); err != nil {
				if err := handle("failed to restore special file metadata", err); err != nil {
					return err
				}
				continue
			}

			// store telemetry and continue
			td.ExtractedSpecials++
			continue

		default:

			// tar specific: skip git comment entries of type `g`
			if hdr.Typeflag() == TypeXGlobalHeader {
				c.Logger().Debug("skipping global extended header", "name", name)
				continue
			}

			// increase error counter, set error and end if necessary
			td.UnsupportedFiles++
			td.LastUnsupportedFile = name
			if err := handle("cannot extract entry", unsupportedFile(name)); err != nil {
				return err
			}

			// do not end on error
			continue
		}
	}
}

// applyMetadata restores mode, ownership, timestamps and extended
// attributes on the extracted entry, as far as the config asks for it.
func applyMetadata(t Target, dst string, name string, ent *Entry, symlink bool, c *Config) error {
	path := filepath.Join(dst, filepath.Join(splitSlash(name)...))

	if c.PreservePermissions() && !symlink {
		mode, err := ent.Mode()
		if err != nil {
			return fmt.Errorf("cannot parse mode: %w", err)
		}
		if err := t.Chmod(path, mode.Perm()); err != nil {
			return fmt.Errorf("failed to chmod: %w", err)
		}
	}

	if c.PreserveOwner() {
		uid, err := ent.UID()
		if err != nil {
			return fmt.Errorf("cannot parse uid: %w", err)
		}
		gid, err := ent.GID()
		if err != nil {
			return fmt.Errorf("cannot parse gid: %w", err)
		}
		if err := t.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("failed to chown: %w", err)
		}
	}

	if c.PreserveXattrs() {
		for attr, value := range ent.Xattrs() {
			if err := t.SetXattr(path, attr, []byte(value)); err != nil {
				return fmt.Errorf("failed to set xattr %s: %w", attr, err)
			}
		}
	}

	if c.PreserveModTime() {
		mtime, err := ent.ModTime()
		if err != nil {
			return fmt.Errorf("cannot parse modification time: %w", err)
		}
		if symlink {
			if err := t.Lchtimes(path, mtime, mtime); err != nil {
				return fmt.Errorf("failed to change symlink times: %w", err)
			}
			return nil
		}
		if err := t.Chtimes(path, mtime, mtime); err != nil {
			return fmt.Errorf("failed to change times: %w", err)
		}
	}

	return nil
}

// applyDeferred restores directory metadata after all descendants have
// been extracted. Directories are handled deepest-first so a restored
// read-only mode or modification time is not disturbed afterwards.
func applyDeferred(t Target, dst string, deferred []deferredDir, c *Config) error {
	sort.Slice(deferred, func(i, j int) bool {
		return deferred[i].name > deferred[j].name
	})

	for _, d := range deferred {
		path := filepath.Join(dst, filepath.Join(splitSlash(d.name)...))

		// the directory was created writable, always restore the
		// recorded mode
		mode, err := d.entry.Mode()
		if err != nil {
			return fmt.Errorf("cannot parse mode of %s: %w", d.name, err)
		}
		if err := t.Chmod(path, mode.Perm()); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", d.name, err)
		}

		if c.PreserveOwner() {
			uid, err := d.entry.UID()
			if err != nil {
				return fmt.Errorf("cannot parse uid of %s: %w", d.name, err)
			}
			gid, err := d.entry.GID()
			if err != nil {
				return fmt.Errorf("cannot parse gid of %s: %w", d.name, err)
			}
			if err := t.Chown(path, uid, gid); err != nil {
				return fmt.Errorf("failed to chown %s: %w", d.name, err)
			}
		}

		if c.PreserveXattrs() {
			for attr, value := range d.entry.Xattrs() {
				if err := t.SetXattr(path, attr, []byte(value)); err != nil {
					return fmt.Errorf("failed to set xattr %s on %s: %w", attr, d.name, err)
				}
			}
		}

		if c.PreserveModTime() {
			mtime, err := d.entry.ModTime()
			if err != nil {
				return fmt.Errorf("cannot parse modification time of %s: %w", d.name, err)
			}
			if err := t.Chtimes(path, mtime, mtime); err != nil {
				return fmt.Errorf("failed to change times of %s: %w", d.name, err)
			}
		}
	}

	return nil
}

// handleError increases the error counter, sets the latest error and
// decides if extraction should continue.
func handleError(c *Config, td *TelemetryData, msg string, err error) error {
	// increase error counter and set error
	td.ExtractionErrors++
	td.LastExtractionError = fmt.Errorf("%s: %w", msg, err)

	// do not end on error
	if c.ContinueOnError() {
		c.Logger().Error(msg, "error", err)
	}

	return td.LastExtractionError
}

// checkPatterns checks if the given path matches any of the given patterns.
// If no patterns are given, the function returns true.
func checkPatterns(patterns []string, path string) (bool, error) {
	// no patterns given
	if len(patterns) == 0 {
		return true, nil
	}

	// check if path matches any pattern
	for _, pattern := range patterns {
		if match, err := filepath.Match(pattern, path); err != nil {
			return false, fmt.Errorf("failed to match pattern: %s", err)
		} else if match {
			return true, nil
		}
	}
	return false, nil
}

// splitSlash splits an archive path on forward slashes so it can be
// re-joined with the platform separator.
func splitSlash(name string) []string {
	return strings.Split(name, "/")
}

// captureExtractionDuration captures the duration of the extraction
func captureExtractionDuration(td *TelemetryData, start time.Time) {
	stop := now()
	td.ExtractionDuration = stop.Sub(start)
}

// captureInputSize captures the input size of the extraction
func captureInputSize(td *TelemetryData, ler *limitErrorReader) {
	td.InputSize = int64(ler.ReadBytes())
}
