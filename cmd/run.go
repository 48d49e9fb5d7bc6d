// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	tarstream "github.com/hashicorp/go-tarstream"
)

// CLI are the cli parameters for the go-tarstream binary
type CLI struct {
	Archive           string           `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	ContinueOnError   bool             `short:"C" help:"Continue extraction on error."`
	CreateDestination bool             `short:"c" help:"Create destination directory if it does not exist."`
	DenySymlinks      bool             `short:"D" help:"Deny symlink extraction."`
	Destination       string           `arg:"" name:"destination" default:"." help:"Output directory."`
	IgnoreZeros       bool             `short:"i" help:"Keep reading past zero filler blocks (concatenated archives)."`
	List              bool             `short:"t" help:"List archive contents instead of extracting."`
	MaxEntries        int64            `optional:"" default:"100000" help:"Maximum entries that are extracted before stop. (disable check: -1)"`
	MaxExtractionSize int64            `optional:"" default:"1073741824" help:"Maximum extraction size that is allowed (in bytes). (disable check: -1)"`
	MaxExtractionTime int64            `optional:"" default:"60" help:"Maximum time that an extraction should take (in seconds). (disable check: -1)"`
	MaxInputSize      int64            `optional:"" default:"1073741824" help:"Maximum input size that is allowed (in bytes). (disable check: -1)"`
	NoPreserveTimes   bool             `optional:"" help:"Do not restore modification times."`
	Overwrite         bool             `short:"O" help:"Overwrite if exist."`
	Patterns          []string         `short:"p" optional:"" help:"Only process entries matching the given shell patterns."`
	PreserveOwner     bool             `short:"o" help:"Restore user and group of extracted entries (requires privileges)."`
	PreserveXattrs    bool             `short:"x" help:"Restore extended attributes from pax records."`
	Telemetry         bool             `short:"T" optional:"" default:"false" help:"Print telemetry data to log after extraction."`
	TraverseSymlinks  bool             `short:"F" help:"[Dangerous!] Follow symlinks to directories during extraction."`
	Verbose           bool             `short:"v" optional:"" help:"Verbose logging."`
	Version           kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// Run is the entrypoint into go-tarstream as a cli tool
func Run(version, commit, date string) {
	ctx := context.Background()
	var cli CLI
	kong.Parse(&cli,
		kong.Description("A resumable tar stream decoder and extraction utility"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *tarstream.TelemetryData) {
		if cli.Telemetry {
			logger.Info("extraction finished", "telemetry", td)
		}
	}

	// process cli params
	cfg := tarstream.NewConfig(
		tarstream.WithContinueOnError(cli.ContinueOnError),
		tarstream.WithCreateDestination(cli.CreateDestination),
		tarstream.WithDenySymlinkExtraction(cli.DenySymlinks),
		tarstream.WithIgnoreZeros(cli.IgnoreZeros),
		tarstream.WithInsecureTraverseSymlinks(cli.TraverseSymlinks),
		tarstream.WithLogger(logger),
		tarstream.WithMaxEntries(cli.MaxEntries),
		tarstream.WithMaxExtractionSize(cli.MaxExtractionSize),
		tarstream.WithMaxInputSize(cli.MaxInputSize),
		tarstream.WithOverwrite(cli.Overwrite),
		tarstream.WithPatterns(cli.Patterns...),
		tarstream.WithPreserveModTime(!cli.NoPreserveTimes),
		tarstream.WithPreserveOwner(cli.PreserveOwner),
		tarstream.WithPreserveXattrs(cli.PreserveXattrs),
		tarstream.WithTelemetryHook(telemetryToLog),
	)

	// open archive
	var archive io.Reader
	if cli.Archive == "-" {
		archive = bufio.NewReader(os.Stdin)
	} else {
		var err error
		if archive, err = os.Open(cli.Archive); err != nil {
			logger.Error("opening archive failed", "err", err)
			os.Exit(-1)
		} else {
			defer archive.(*os.File).Close()
		}
	}

	if cli.MaxExtractionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), (time.Second * time.Duration(cli.MaxExtractionTime)))
		defer cancel()
	}

	// list archive contents
	if cli.List {
		if err := list(archive, cfg); err != nil {
			log.Println(fmt.Errorf("error during listing: %w", err))
			os.Exit(-1)
		}
		return
	}

	// extract archive
	if err := tarstream.Unpack(ctx, archive, cli.Destination, cfg); err != nil {
		log.Println(fmt.Errorf("error during extraction: %w", err))
		os.Exit(-1)
	}
}

// list walks the resolved entries of the archive and prints one line per
// entry. Entry content is skipped implicitly by the decoder.
func list(src io.Reader, cfg *tarstream.Config) error {
	entries, err := tarstream.NewArchive(src, cfg).Entries()
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for {
		ent, err := entries.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		mode, err := ent.Mode()
		if err != nil {
			return err
		}
		mtime, err := ent.ModTime()
		if err != nil {
			return err
		}

		name := ent.Name()
		if link := ent.Linkname(); link != "" {
			name = fmt.Sprintf("%s -> %s", name, link)
		}
		sparse := ""
		if ent.IsSparse() {
			sparse = " (sparse)"
		}
		perms := mode.Perm().String()[1:]
		fmt.Fprintf(w, "%c%s %10d %s %s%s\n",
			typeIndicator(ent.Header().Typeflag()), perms,
			ent.Size(), mtime.Format(time.DateTime), name, sparse)
	}
}

// typeIndicator maps a tar type flag to the character `ls -l` would show
func typeIndicator(typeflag byte) byte {
	switch typeflag {
	case tarstream.TypeDir:
		return 'd'
	case tarstream.TypeSymlink:
		return 'l'
	case tarstream.TypeLink:
		return 'h'
	case tarstream.TypeChar:
		return 'c'
	case tarstream.TypeBlock:
		return 'b'
	case tarstream.TypeFifo:
		return 'p'
	default:
		return '-'
	}
}
