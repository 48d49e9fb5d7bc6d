// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream_test

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	tarstream "github.com/hashicorp/go-tarstream"
)

// TestCheckMaxEntries implements test cases
func TestCheckMaxEntries(t *testing.T) {
	// prepare test cases
	cases := []struct {
		name        string
		input       int64
		config      *tarstream.Config
		expectError bool
	}{
		{
			name:        "less entries than maximum",
			input:       5,
			config:      tarstream.NewConfig(tarstream.WithMaxEntries(10)),
			expectError: false,
		},
		{
			name:        "more entries than maximum",
			input:       15,
			config:      tarstream.NewConfig(tarstream.WithMaxEntries(10)),
			expectError: true,
		},
		{
			name:        "disable entry counter check",
			input:       5000,
			config:      tarstream.NewConfig(tarstream.WithMaxEntries(-1)),
			expectError: false,
		},
	}

	// run cases
	for i, tc := range cases {
		t.Run(fmt.Sprintf("tc %d", i), func(t *testing.T) {
			want := tc.expectError
			got := tc.config.CheckMaxEntries(tc.input) != nil
			if got != want {
				t.Errorf("test case %d failed: %s", i, tc.name)
			}
		})
	}
}

// TestCheckExtractionSize implements test cases
func TestCheckExtractionSize(t *testing.T) {
	cases := []struct {
		name        string
		input       int64
		config      *tarstream.Config
		expectError bool
	}{
		{
			name:        "within limit",
			input:       512,
			config:      tarstream.NewConfig(tarstream.WithMaxExtractionSize(1024)),
			expectError: false,
		},
		{
			name:        "over limit",
			input:       2048,
			config:      tarstream.NewConfig(tarstream.WithMaxExtractionSize(1024)),
			expectError: true,
		},
		{
			name:        "disabled check",
			input:       1 << 40,
			config:      tarstream.NewConfig(tarstream.WithMaxExtractionSize(-1)),
			expectError: false,
		},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("tc %d", i), func(t *testing.T) {
			want := tc.expectError
			got := tc.config.CheckExtractionSize(tc.input) != nil
			if got != want {
				t.Errorf("test case %d failed: %s", i, tc.name)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := tarstream.NewConfig()

	if cfg.ContinueOnError() {
		t.Errorf("expected ContinueOnError to default to false")
	}
	if cfg.IgnoreZeros() {
		t.Errorf("expected IgnoreZeros to default to false")
	}
	if cfg.Overwrite() {
		t.Errorf("expected Overwrite to default to false")
	}
	if !cfg.PreserveModTime() {
		t.Errorf("expected PreserveModTime to default to true")
	}
	if cfg.PreserveOwner() || cfg.PreservePermissions() || cfg.PreserveXattrs() {
		t.Errorf("expected ownership, permission and xattr restoration to default to off")
	}
	if cfg.MaxEntries() != 100000 {
		t.Errorf("MaxEntries = %d, want 100000", cfg.MaxEntries())
	}
	if cfg.Logger() == nil {
		t.Errorf("expected a default logger")
	}
	if cfg.TelemetryHook() == nil {
		t.Errorf("expected a default telemetry hook")
	}
}

func TestConfigOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := tarstream.NewConfig(
		tarstream.WithContinueOnError(true),
		tarstream.WithCreateDestination(true),
		tarstream.WithCustomCreateDirMode(0700),
		tarstream.WithDenySymlinkExtraction(true),
		tarstream.WithIgnoreZeros(true),
		tarstream.WithInsecureTraverseSymlinks(true),
		tarstream.WithLogger(logger),
		tarstream.WithMaxEntries(7),
		tarstream.WithMaxExtractionSize(1024),
		tarstream.WithMaxInputSize(2048),
		tarstream.WithOverwrite(true),
		tarstream.WithPatterns("*.go", "*.md"),
		tarstream.WithPreserveModTime(false),
		tarstream.WithPreserveOwner(true),
		tarstream.WithPreservePermissions(true),
		tarstream.WithPreserveXattrs(true),
	)

	if !cfg.ContinueOnError() || !cfg.CreateDestination() || !cfg.DenySymlinkExtraction() {
		t.Errorf("boolean options not applied")
	}
	if cfg.CustomCreateDirMode() != 0700 {
		t.Errorf("CustomCreateDirMode = %o, want 0700", cfg.CustomCreateDirMode())
	}
	if !cfg.IgnoreZeros() || !cfg.TraverseSymlinks() || !cfg.Overwrite() {
		t.Errorf("boolean options not applied")
	}
	if cfg.MaxEntries() != 7 || cfg.MaxExtractionSize() != 1024 || cfg.MaxInputSize() != 2048 {
		t.Errorf("limits not applied")
	}
	if len(cfg.Patterns()) != 2 {
		t.Errorf("patterns = %v, want two entries", cfg.Patterns())
	}
	if cfg.PreserveModTime() {
		t.Errorf("expected PreserveModTime to be disabled")
	}
	if !cfg.PreserveOwner() || !cfg.PreservePermissions() || !cfg.PreserveXattrs() {
		t.Errorf("preserve options not applied")
	}
	if cfg.Logger() != logger {
		t.Errorf("logger not applied")
	}
}
