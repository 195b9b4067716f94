// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package argrep walks files that may be nested inside an arbitrary depth of archives.
//
// The [Extractor] opens an archive, detects its format from the leading magic bytes and
// streams the entries to disk one at a time through [Contents]. The [Walker] builds on top
// of that: every extracted entry is classified by content, and entries that turn out to be
// archives themselves are opened and walked recursively. The result is a flat, lazily
// evaluated sequence of [WalkEntry] values that a caller pulls with [Walk.Next] or ranges
// over with [Walk.All].
//
// Configuration is done using the [Config], which holds limits, extraction flags, the
// skippable formats set, the logger and the telemetry hook. Telemetry data is captured
// for every archive session and handed to the [TelemetryHook] once the session is released.
package argrep
