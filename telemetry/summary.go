// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-argrep"
)

// Totals are the aggregated counters of a [Summary].
type Totals struct {
	Archives  int64            `json:"archives"`
	Files     int64            `json:"files"`
	Bytes     int64            `json:"bytes"`
	Errors    int64            `json:"errors"`
	Warnings  int64            `json:"warnings"`
	Duration  time.Duration    `json:"duration"`
	ByType    map[string]int64 `json:"by_type"`
	LastError string           `json:"last_error,omitempty"`
}

// Summary aggregates the telemetry data of all archives of a run. It is safe for
// concurrent use by walks running in parallel.
type Summary struct {
	mu     sync.Mutex
	totals Totals
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{totals: Totals{ByType: map[string]int64{}}}
}

// Hook returns the telemetry hook that feeds the summary.
func (s *Summary) Hook() argrep.TelemetryHook {
	return func(ctx context.Context, td *argrep.TelemetryData) {
		s.mu.Lock()
		defer s.mu.Unlock()
		t := &s.totals
		t.Archives++
		t.Files += td.ExtractedFiles
		t.Bytes += td.ExtractionSize
		t.Errors += td.ExtractionErrors
		t.Warnings += td.ExtractionWarnings
		t.Duration += td.ExtractionDuration
		t.ByType[td.ExtractedType]++
		if td.LastExtractionError != nil {
			t.LastError = td.LastExtractionError.Error()
		}
	}
}

// Totals returns a copy of the current counters.
func (s *Summary) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.totals
	t.ByType = make(map[string]int64, len(s.totals.ByType))
	for k, v := range s.totals.ByType {
		t.ByType[k] = v
	}
	return t
}
