// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	tarstream "github.com/hashicorp/go-tarstream"
)

func TestUnpack(t *testing.T) {
	// generate canceled context
	canceledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		content     []byte
		opts        []tarstream.ConfigOption
		expectError bool
		ctx         context.Context
	}{
		{
			name:        "unpack normal tar",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "test", Mode: 0640, Filetype: tar.TypeReg}}),
			expectError: false,
		},
		{
			name:        "unpack normal tar, but pattern mismatch",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "test", Mode: 0640, Filetype: tar.TypeReg}}),
			opts:        []tarstream.ConfigOption{tarstream.WithPatterns("*foo")},
			expectError: false,
		},
		{
			name:        "unpack normal tar, but context canceled",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "test", Mode: 0640, Filetype: tar.TypeReg}}),
			ctx:         canceledCtx,
			expectError: true,
		},
		{
			name: "unpack normal tar with 5 files",
			content: packTar(t, []archiveContent{
				{Content: []byte("foobar content"), Name: "test1", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test2", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test3", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test4", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test5", Mode: 0640, Filetype: tar.TypeReg},
			}),
			expectError: false,
		},
		{
			name: "unpack normal tar with 5 files, but entry limit",
			content: packTar(t, []archiveContent{
				{Content: []byte("foobar content"), Name: "test1", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test2", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test3", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test4", Mode: 0640, Filetype: tar.TypeReg},
				{Content: []byte("foobar content"), Name: "test5", Mode: 0640, Filetype: tar.TypeReg},
			}),
			opts:        []tarstream.ConfigOption{tarstream.WithMaxEntries(4)},
			expectError: true,
		},
		{
			name:        "unpack normal tar, but extraction size exceeded",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "test", Mode: 0640, Filetype: tar.TypeReg}}),
			opts:        []tarstream.ConfigOption{tarstream.WithMaxExtractionSize(1)},
			expectError: true,
		},
		{
			name:        "unpack malicious tar, with traversal",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "../test", Mode: 0640, Filetype: tar.TypeReg}}),
			expectError: true,
		},
		{
			name:        "unpack normal tar with symlink",
			content:     packTar(t, []archiveContent{{Name: "testLink", Filetype: tar.TypeSymlink, Linktarget: "testTarget"}}),
			expectError: false,
		},
		{
			name:        "unpack tar with traversal in directory",
			content:     packTar(t, []archiveContent{{Name: "../test", Filetype: tar.TypeDir}}),
			expectError: true,
		},
		{
			name:        "unpack tar with traversal in directory, but continue on error",
			content:     packTar(t, []archiveContent{{Name: "../test", Filetype: tar.TypeDir}}),
			opts:        []tarstream.ConfigOption{tarstream.WithContinueOnError(true)},
			expectError: true,
		},
		{
			name:        "unpack normal tar with symlink, but symlinks are denied",
			content:     packTar(t, []archiveContent{{Name: "testLink", Filetype: tar.TypeSymlink, Linktarget: "testTarget"}}),
			opts:        []tarstream.ConfigOption{tarstream.WithDenySymlinkExtraction(true)},
			expectError: false,
		},
		{
			name:        "unpack normal tar with absolute path in symlink",
			content:     packTar(t, []archiveContent{{Name: "testLink", Filetype: tar.TypeSymlink, Linktarget: "/absolute-target"}}),
			expectError: runtime.GOOS != "windows",
		},
		{
			name:        "malicious tar with symlink name path traversal",
			content:     packTar(t, []archiveContent{{Name: "../testLink", Filetype: tar.TypeSymlink, Linktarget: "target"}}),
			expectError: true,
		},
		{
			name:        "malicious tar with .. as filename",
			content:     packTar(t, []archiveContent{{Content: []byte("foobar content"), Name: "..", Filetype: tar.TypeReg}}),
			expectError: true,
		},
		{
			name: "malicious tar with zip slip attack",
			content: packTar(t, []archiveContent{
				{Name: "sub/to-parent", Filetype: tar.TypeSymlink, Linktarget: "../"},
				{Name: "sub/to-parent/one-above", Filetype: tar.TypeSymlink, Linktarget: "../"},
			}),
			expectError: true,
		},
		{
			name:        "tar with legit git pax_global_header",
			content:     packTar(t, []archiveContent{{Content: []byte(""), Name: "pax_global_header", Filetype: tar.TypeXGlobalHeader}}),
			expectError: false,
		},
		{
			name: "extract a directory",
			content: packTar(t, []archiveContent{
				{Name: "test", Filetype: tar.TypeDir},
			}),
			expectError: false,
		},
		{
			name: "extract a file with traversal, but continue on error",
			content: packTar(t, []archiveContent{
				{Content: []byte("foobar content"), Name: "../test", Mode: 0640, Filetype: tar.TypeReg},
			}),
			opts:        []tarstream.ConfigOption{tarstream.WithContinueOnError(true)},
			expectError: true,
		},
		{
			name: "tar with hard link to previous entry",
			content: packTar(t, []archiveContent{
				{Content: []byte("foobar content"), Name: "original", Mode: 0640, Filetype: tar.TypeReg},
				{Name: "hardlink", Filetype: tar.TypeLink, Linktarget: "original"},
			}),
			expectError: false,
		},
		{
			name: "tar with dangling hard link, but continue on error",
			content: packTar(t, []archiveContent{
				{Name: "testLink", Filetype: tar.TypeLink, Linktarget: "testTarget"},
			}),
			opts:        []tarstream.ConfigOption{tarstream.WithContinueOnError(true)},
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// create testing directory
			testDir := t.TempDir()

			if test.ctx == nil {
				test.ctx = context.Background()
			}
			ctx := test.ctx

			// perform actual tests
			want := test.expectError
			err := tarstream.Unpack(ctx, bytes.NewReader(test.content), testDir, tarstream.NewConfig(test.opts...))
			got := err != nil
			if got != want {
				t.Errorf("error = %v, wantErr %v", err, want)
			}
		})
	}
}

func TestUnpackToMemory(t *testing.T) {
	content := packTar(t, []archiveContent{
		{Name: "dir", Filetype: tar.TypeDir, Mode: 0750},
		{Content: []byte("foobar content"), Name: "dir/test", Mode: 0640, Filetype: tar.TypeReg},
		{Name: "link", Filetype: tar.TypeSymlink, Linktarget: "dir/test"},
	})

	m := tarstream.NewTargetMemory()
	cfg := tarstream.NewConfig(tarstream.WithCreateDestination(true))
	if err := tarstream.UnpackTo(context.Background(), m, ".", bytes.NewReader(content), cfg); err != nil {
		t.Fatalf("UnpackTo failed: %v", err)
	}

	data, err := m.ReadFile("dir/test")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "foobar content" {
		t.Errorf("content = %q, want %q", data, "foobar content")
	}

	fi, err := m.Lstat("link")
	if err != nil {
		t.Fatalf("Lstat failed: %v", err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected symlink, got %v", fi.Mode())
	}
}

// a directory that carries a read-only mode must not block the extraction
// of its own content; the mode is applied after the walk
func TestUnpackReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}

	content := packTar(t, []archiveContent{
		{Name: "locked", Filetype: tar.TypeDir, Mode: 0500},
		{Content: []byte("inside"), Name: "locked/file", Mode: 0640, Filetype: tar.TypeReg},
	})

	testDir := t.TempDir()
	if err := tarstream.Unpack(context.Background(), bytes.NewReader(content), testDir, tarstream.NewConfig()); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	// restore the mode so the test cleanup can remove the directory
	lockedDir := filepath.Join(testDir, "locked")
	defer os.Chmod(lockedDir, 0750)

	fi, err := os.Stat(lockedDir)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if fi.Mode().Perm() != 0500 {
		t.Errorf("dir mode = %o, want 0500", fi.Mode().Perm())
	}

	data, err := os.ReadFile(filepath.Join(lockedDir, "file"))
	if err != nil {
		t.Fatalf("reading extracted file failed: %v", err)
	}
	if string(data) != "inside" {
		t.Errorf("content = %q, want %q", data, "inside")
	}
}

func TestUnpackSparseToDisk(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 512)
	var content []byte
	content = append(content, gnuSparseHeader("sparse", 512, 1024, [][2]int64{{512, 512}}, false)...)
	content = append(content, data...)
	content = append(content, terminator()...)

	testDir := t.TempDir()
	if err := tarstream.Unpack(context.Background(), bytes.NewReader(content), testDir, tarstream.NewConfig()); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(testDir, "sparse"))
	if err != nil {
		t.Fatalf("reading extracted file failed: %v", err)
	}
	want := append(make([]byte, 512), data...)
	if !bytes.Equal(got, want) {
		t.Errorf("sparse content mismatch: %d bytes extracted", len(got))
	}
}

func TestUnpackTelemetry(t *testing.T) {
	content := packTar(t, []archiveContent{
		{Name: "dir", Filetype: tar.TypeDir},
		{Content: []byte("foobar content"), Name: "dir/test", Mode: 0640, Filetype: tar.TypeReg},
		{Name: "link", Filetype: tar.TypeSymlink, Linktarget: "dir/test"},
		{Content: []byte("skipped"), Name: "other", Mode: 0640, Filetype: tar.TypeReg},
	})

	var captured tarstream.TelemetryData
	cfg := tarstream.NewConfig(
		tarstream.WithCreateDestination(true),
		tarstream.WithPatterns("dir", "dir/*", "link"),
		tarstream.WithTelemetryHook(func(ctx context.Context, td *tarstream.TelemetryData) {
			captured = *td
		}),
	)

	m := tarstream.NewTargetMemory()
	if err := tarstream.UnpackTo(context.Background(), m, ".", bytes.NewReader(content), cfg); err != nil {
		t.Fatalf("UnpackTo failed: %v", err)
	}

	if captured.EntriesDecoded != 4 {
		t.Errorf("EntriesDecoded = %d, want 4", captured.EntriesDecoded)
	}
	if captured.ExtractedDirs != 1 {
		t.Errorf("ExtractedDirs = %d, want 1", captured.ExtractedDirs)
	}
	if captured.ExtractedFiles != 1 {
		t.Errorf("ExtractedFiles = %d, want 1", captured.ExtractedFiles)
	}
	if captured.ExtractedSymlinks != 1 {
		t.Errorf("ExtractedSymlinks = %d, want 1", captured.ExtractedSymlinks)
	}
	if captured.PatternMismatches != 1 {
		t.Errorf("PatternMismatches = %d, want 1", captured.PatternMismatches)
	}
	// decoding stops at the first terminator record, the second one is
	// never read
	if captured.InputSize != int64(len(content)-512) {
		t.Errorf("InputSize = %d, want %d", captured.InputSize, len(content)-512)
	}
}
