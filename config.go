// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the
// configuration.
//
// The configuration holds the decoding options consumed by the core (zero
// record handling, input limits) as well as the extraction options that are
// forwarded untouched to the extraction target (permission, modification
// time and extended attribute preservation, traversal policy).
type Config struct {
	// continueOnError decides if the extraction should be continued even if an error occurred
	continueOnError bool

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories, that are not defined in the archive (respecting umask)
	customCreateDirMode fs.FileMode

	// denySymlinkExtraction offers the option to enable/disable the extraction of symlinks
	denySymlinkExtraction bool

	// ignoreZeros decides if zero-filled records are skipped instead of
	// terminating the archive, to support concatenated archives
	ignoreZeros bool

	// logger stream for decoding and extraction
	logger logger

	// maxEntries is the maximum number of entries (including continuation
	// records) decoded from an archive.
	// Set value to -1 to disable the check.
	maxEntries int64

	// maxExtractionSize is the maximum size over all extracted content.
	// Set value to -1 to disable the check.
	maxExtractionSize int64

	// maxInputSize is the maximum size of the input
	// Set value to -1 to disable the check.
	maxInputSize int64

	// Define if files should be overwritten in the destination
	overwrite bool

	// patterns is a list of file patterns to match files to extract
	patterns []string

	// preserveModTime is a flag to restore the modification time of extracted files
	preserveModTime bool

	// preserveOwner is a flag to preserve the owner of the extracted files
	preserveOwner bool

	// preservePermissions is a flag to restore the permission bits of extracted files
	preservePermissions bool

	// preserveXattrs is a flag to restore extended file attributes carried
	// in PAX records
	preserveXattrs bool

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook

	// traverseSymlinks traverses symlinks to directories during extraction
	traverseSymlinks bool
}

// CheckMaxEntries checks if counter exceeds the configured maximum. If the
// maximum is exceeded, a [ErrMaxEntriesExceeded] error is returned.
func (c *Config) CheckMaxEntries(counter int64) error {

	// check if disabled
	if c.MaxEntries() == -1 {
		return nil
	}

	// check value
	if counter > c.MaxEntries() {
		return ErrMaxEntriesExceeded
	}
	return nil
}

// CheckExtractionSize checks if fileSize exceeds the configured maximum. If
// the maximum is exceeded, a [ErrMaxExtractionSizeExceeded] error is
// returned.
func (c *Config) CheckExtractionSize(fileSize int64) error {

	// check if disabled
	if c.MaxExtractionSize() == -1 {
		return nil
	}

	// check value
	if fileSize > c.MaxExtractionSize() {
		return ErrMaxExtractionSizeExceeded
	}
	return nil
}

// ContinueOnError returns true if the extraction should continue on error.
func (c *Config) ContinueOnError() bool {
	return c.continueOnError
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories,
// that are not defined in the archive. (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// DenySymlinkExtraction returns true if symlinks are NOT allowed.
func (c *Config) DenySymlinkExtraction() bool {
	return c.denySymlinkExtraction
}

// IgnoreZeros returns true if zero-filled records are skipped instead of
// terminating the archive.
func (c *Config) IgnoreZeros() bool {
	return c.ignoreZeros
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxEntries returns the maximum number of decoded entries.
func (c *Config) MaxEntries() int64 {
	return c.maxEntries
}

// MaxExtractionSize returns the maximum size over all extracted content.
func (c *Config) MaxExtractionSize() int64 {
	return c.maxExtractionSize
}

// MaxInputSize returns the maximum size of the input.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Patterns returns a list of unix-filepath patterns to match files to extract
// Patterns are matched using [filepath.Match](https://golang.org/pkg/path/filepath/#Match).
func (c *Config) Patterns() []string {
	return c.patterns
}

// PreserveModTime returns true if the modification time of extracted files
// should be restored.
func (c *Config) PreserveModTime() bool {
	return c.preserveModTime
}

// PreserveOwner returns true if the owner of the extracted files should
// be preserved. This option is only available on Unix systems requiring
// root privileges.
func (c *Config) PreserveOwner() bool {
	return c.preserveOwner
}

// PreservePermissions returns true if the permission bits of extracted
// files should be restored.
func (c *Config) PreservePermissions() bool {
	return c.preservePermissions
}

// PreserveXattrs returns true if extended file attributes carried in PAX
// records should be restored.
func (c *Config) PreserveXattrs() bool {
	return c.preserveXattrs
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return func(ctx context.Context, d *TelemetryData) {
			// noop
		}
	}
	return c.telemetryHook
}

// TraverseSymlinks returns true if symlinks should be traversed during extraction.
func (c *Config) TraverseSymlinks() bool {
	return c.traverseSymlinks
}

const (
	defaultContinueOnError       = false         // stop on error and return error
	defaultCreateDestination     = false         // don't create destination directory
	defaultCustomCreateDirMode   = 0750          // default directory permissions rwxr-x---
	defaultDenySymlinkExtraction = false         // allow symlink extraction
	defaultIgnoreZeros           = false         // a zero record terminates the archive
	defaultMaxEntries            = 100000        // 100k entries
	defaultMaxExtractionSize     = 1 << (10 * 3) // 1 Gb
	defaultMaxInputSize          = 1 << (10 * 3) // 1 Gb
	defaultOverwrite             = false         // don't overwrite existing files
	defaultPreserveModTime       = true          // restore modification times
	defaultPreserveOwner         = false         // don't preserve owner
	defaultPreservePermissions   = false         // don't restore permission bits
	defaultPreserveXattrs        = false         // don't restore extended attributes
	defaultTraverseSymlinks      = false         // don't traverse symlinks
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		continueOnError:       defaultContinueOnError,
		createDestination:     defaultCreateDestination,
		customCreateDirMode:   defaultCustomCreateDirMode,
		denySymlinkExtraction: defaultDenySymlinkExtraction,
		ignoreZeros:           defaultIgnoreZeros,
		logger:                defaultLogger,
		maxEntries:            defaultMaxEntries,
		maxExtractionSize:     defaultMaxExtractionSize,
		maxInputSize:          defaultMaxInputSize,
		overwrite:             defaultOverwrite,
		preserveModTime:       defaultPreserveModTime,
		preserveOwner:         defaultPreserveOwner,
		preservePermissions:   defaultPreservePermissions,
		preserveXattrs:        defaultPreserveXattrs,
		telemetryHook:         defaultTelemetryHook,
		traverseSymlinks:      defaultTraverseSymlinks,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithContinueOnError options pattern function to continue on error during
// extraction. If set to true, the error is logged and the extraction
// continues. If set to false, the extraction stops and returns the error.
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		c.continueOnError = yes
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories, that are not defined in the archive. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithDenySymlinkExtraction options pattern function to deny symlink extraction.
func WithDenySymlinkExtraction(deny bool) ConfigOption {
	return func(c *Config) {
		c.denySymlinkExtraction = deny
	}
}

// WithIgnoreZeros options pattern function to skip zero-filled records,
// which would otherwise indicate the end of the archive. This can be used
// in case multiple tar archives have been concatenated together.
func WithIgnoreZeros(ignore bool) ConfigOption {
	return func(c *Config) {
		c.ignoreZeros = ignore
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxEntries options pattern function to set the maximum number of
// entries decoded from an archive. (-1 to disable check)
func WithMaxEntries(maxEntries int64) ConfigOption {
	return func(c *Config) {
		c.maxEntries = maxEntries
	}
}

// WithMaxExtractionSize options pattern function to set maximum size over
// all extracted content. (-1 to disable check)
func WithMaxExtractionSize(maxExtractionSize int64) ConfigOption {
	return func(c *Config) {
		c.maxExtractionSize = maxExtractionSize
	}
}

// WithMaxInputSize options pattern function to set MaxInputSize for the
// archive input. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPatterns options pattern function to set filepath pattern, that files need to match to be extracted.
// Patterns are matched using [pkg/path/filepath.Match].
func WithPatterns(pattern ...string) ConfigOption {
	return func(c *Config) {
		c.patterns = append(c.patterns, pattern...)
	}
}

// WithPreserveModTime options pattern function to restore the modification
// time of extracted files. Enabled by default.
func WithPreserveModTime(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preserveModTime = preserve
	}
}

// WithPreserveOwner options pattern function to preserve the owner of
// the extracted files. This option is only available on Unix systems
// requiring root privileges.
func WithPreserveOwner(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preserveOwner = preserve
	}
}

// WithPreservePermissions options pattern function to restore the
// permission bits of extracted files.
func WithPreservePermissions(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preservePermissions = preserve
	}
}

// WithPreserveXattrs options pattern function to restore extended file
// attributes (xattrs on Unix) carried in the archive's PAX records.
func WithPreserveXattrs(preserve bool) ConfigOption {
	return func(c *Config) {
		c.preserveXattrs = preserve
	}
}

// WithInsecureTraverseSymlinks options pattern function to traverse symlinks during extraction.
func WithInsecureTraverseSymlinks(traverse bool) ConfigOption {
	return func(c *Config) {
		c.traverseSymlinks = traverse
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook],
// which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
