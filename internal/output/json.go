// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/hashicorp/go-argrep/search"
)

// JSON prints one JSON object per line. Results are written to out under "data",
// diagnostics to errOut under "wrn" and "err". Every line carries the run id.
type JSON struct {
	mu     sync.Mutex
	out    *json.Encoder
	errOut *json.Encoder
	runID  string
}

type jsonMatch struct {
	Path  string `json:"path"`
	Line  int    `json:"line"`
	Match string `json:"match"`
}

type jsonLine struct {
	Run  string      `json:"run,omitempty"`
	Data interface{} `json:"data,omitempty"`
	Wrn  string      `json:"wrn,omitempty"`
	Err  string      `json:"err,omitempty"`
}

// NewJSON creates a JSON lines sink.
func NewJSON(out, errOut io.Writer, runID string) *JSON {
	return &JSON{
		out:    json.NewEncoder(out),
		errOut: json.NewEncoder(errOut),
		runID:  runID,
	}
}

// Match implements [Sink].
func (j *JSON) Match(displayPath string, m search.Match) error {
	return j.write(j.out, jsonLine{Data: jsonMatch{Path: displayPath, Line: m.Line, Match: m.Text}})
}

// Entry implements [Sink].
func (j *JSON) Entry(e Entry) error {
	return j.write(j.out, jsonLine{Data: e})
}

// Warn implements [Sink].
func (j *JSON) Warn(msg string) error {
	return j.write(j.errOut, jsonLine{Wrn: msg})
}

// Error implements [Sink].
func (j *JSON) Error(msg string) error {
	return j.write(j.errOut, jsonLine{Err: msg})
}

func (j *JSON) write(enc *json.Encoder, l jsonLine) error {
	l.Run = j.runID
	j.mu.Lock()
	defer j.mu.Unlock()
	return enc.Encode(l)
}
