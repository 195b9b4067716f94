// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"

	"github.com/hashicorp/go-argrep"
)

// Logger is the logging interface used by the hooks. It is satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// NoopHook is a telemetry hook without effect.
func NoopHook(ctx context.Context, d *argrep.TelemetryData) {
	// noop
}

// LogHook returns a hook that logs the telemetry data of every archive at info level.
func LogHook(logger Logger) argrep.TelemetryHook {
	return func(ctx context.Context, td *argrep.TelemetryData) {
		logger.Info("archive extracted",
			"archive", td.ArchivePath,
			"type", td.ExtractedType,
			"files", td.ExtractedFiles,
			"dirs", td.ExtractedDirs,
			"symlinks", td.ExtractedSymlinks,
			"size", td.ExtractionSize,
			"duration", td.ExtractionDuration,
			"errors", td.ExtractionErrors,
			"warnings", td.ExtractionWarnings,
		)
	}
}

// Chain returns a hook that calls hooks in order. Nil hooks are skipped.
func Chain(hooks ...argrep.TelemetryHook) argrep.TelemetryHook {
	return func(ctx context.Context, td *argrep.TelemetryData) {
		for _, h := range hooks {
			if h != nil {
				h(ctx, td)
			}
		}
	}
}
