// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package tarstream decodes tar-formatted byte streams into a lazy,
// forward-only sequence of logical entries, and can extract those entries
// to the underlying OS, in-memory, or a custom filesystem target.
//
// The decoder reads 512-byte header records incrementally, validates their
// checksums, merges GNU long-name, long-link and PAX continuation records
// into the entry they describe, and reconstructs the logical content of GNU
// sparse files from their physically stored fragments. Every multi-step
// read keeps explicit partial-progress state, so a source that delivers
// short reads never causes re-reading or data loss.
//
// Configuration is done using the [Config], which controls zero-record
// handling for concatenated archives, input and extraction limits, the
// logger, the telemetry hook, and which file attributes are restored during
// extraction. The collection of [TelemetryData] happens during decoding and
// extraction and is handed to the configured [TelemetryHook].
package tarstream
