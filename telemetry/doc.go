// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package telemetry provides sinks for the [argrep.TelemetryData] that is emitted
// once per extracted archive.
//
// [LogHook] writes the data to a structured logger, [CloudWatchHook] submits it as
// Amazon EventBridge (CloudWatch Events) event and [Summary] aggregates the data of
// a whole run. Hooks are combined with [Chain].
package telemetry
