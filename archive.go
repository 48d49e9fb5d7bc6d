// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tarstream

import (
	"fmt"
	"io"
	"sync"
)

// Archive is a handle on a tar-formatted byte stream. It owns the absolute
// read position into the stream; the position advances only by bytes that
// were actually delivered by the underlying reader.
//
// The entry stream returned by [Archive.Entries] and the content readers it
// hands out all funnel their reads through the archive, guarded by a single
// lock, so positions stay monotonic as long as entries are consumed in the
// order they are yielded.
type Archive struct {
	inner *archiveInner
	cfg   *Config
	lr    *limitErrorReader
}

// archiveInner is the mutable decode state shared between the entry stream
// and entry content readers.
type archiveInner struct {
	mu  sync.Mutex
	pos int64
	obj io.Reader
}

// NewArchive creates an archive decoding src. If cfg is nil a default
// configuration is used. The stream is consumed forward-only and exactly
// once; restarting requires a fresh reader positioned at offset 0.
func NewArchive(src io.Reader, cfg *Config) *Archive {
	if cfg == nil {
		cfg = NewConfig()
	}
	lr := newLimitErrorReader(src, cfg.MaxInputSize())
	return &Archive{
		inner: &archiveInner{obj: lr},
		cfg:   cfg,
		lr:    lr,
	}
}

// Config returns the configuration the archive was created with.
func (a *Archive) Config() *Config { return a.cfg }

// Position returns the absolute number of bytes read from the stream so far.
func (a *Archive) Position() int64 {
	a.inner.mu.Lock()
	defer a.inner.mu.Unlock()
	return a.inner.pos
}

// Entries returns the stream of resolved entries in the archive. The
// archive must be at position 0.
//
// Entries must be consumed in the order they are yielded: an entry's
// content is read lazily from the shared stream, and reading entries out of
// order corrupts the content of every entry that follows.
func (a *Archive) Entries() (*Entries, error) {
	if a.Position() != 0 {
		return nil, ErrNotAtStart
	}
	return &Entries{stream: entryStream{archive: a}}, nil
}

// RawEntries returns the stream of raw entries in the archive: continuation
// records are yielded as-is and sparse entries are not reconstructed. The
// archive must be at position 0. The same in-order consumption requirement
// as for [Archive.Entries] applies.
func (a *Archive) RawEntries() (*RawEntries, error) {
	if a.Position() != 0 {
		return nil, ErrNotAtStart
	}
	return &RawEntries{stream: entryStream{archive: a}}, nil
}

// Read performs a single read against the underlying stream and advances
// the archive position by the bytes delivered. A single call may deliver
// fewer bytes than requested; resumption from partial progress is the
// caller's job.
func (a *Archive) Read(p []byte) (int, error) {
	a.inner.mu.Lock()
	defer a.inner.mu.Unlock()
	n, err := a.inner.obj.Read(p)
	a.inner.pos += int64(n)
	return n, err
}

// fillBlock fills buf from the stream, resuming at *off and advancing *off
// by every partial read so an interrupted fill can be re-entered. It
// returns false if the stream ended cleanly before the first byte of the
// record; a stream that ends mid-record is an error.
func (a *Archive) fillBlock(buf []byte, off *int) (bool, error) {
	for *off < len(buf) {
		n, err := a.Read(buf[*off:])
		*off += n
		if n == 0 {
			if err == nil || err == io.EOF {
				if *off == 0 {
					return false, nil
				}
				return false, fmt.Errorf("failed to read entire record: %w", ErrTruncatedHeader)
			}
			return false, err
		}
	}
	*off = 0
	return true, nil
}

// skip discards exactly amt bytes from the stream through bounded reads
// into a scratch buffer.
func (a *Archive) skip(amt int64) error {
	if amt == 0 {
		return nil
	}
	buf := make([]byte, 32*1024)
	for amt > 0 {
		n := int64(len(buf))
		if amt < n {
			n = amt
		}
		read, err := a.Read(buf[:n])
		amt -= int64(read)
		if read == 0 {
			if err == nil || err == io.EOF {
				return fmt.Errorf("%w: EOF during skip", ErrUnexpectedEnd)
			}
			return err
		}
	}
	return nil
}
