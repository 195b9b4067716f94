// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package search finds pattern matches in files. A [Dispatcher] picks the
// [Variant] of a file from its MIME type and hands it to a [Backend]: [Builtin]
// searches in process, [Exec] runs the grep tool of the variant.
package search

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-argrep"
)

// Match is a matching line.
type Match struct {
	// Path is the searched file
	Path string `json:"path"`

	// Line is the 1-based line number
	Line int `json:"line"`

	// Text is the line without the line break
	Text string `json:"match"`
}

// Backend searches a single file.
type Backend interface {
	Search(ctx context.Context, path string, v Variant) ([]Match, error)
}

// Dispatcher selects the variant of a file and searches it with a backend.
type Dispatcher struct {
	backend    Backend
	classifier argrep.Classifier
}

// NewDispatcher creates a dispatcher. A nil classifier is replaced with a
// [argrep.MIMEClassifier].
func NewDispatcher(backend Backend, classifier argrep.Classifier) *Dispatcher {
	if classifier == nil {
		classifier = argrep.NewMIMEClassifier()
	}
	return &Dispatcher{backend: backend, classifier: classifier}
}

// Search searches path. contentType is the MIME type of the file if already known,
// otherwise the file is classified first. An unclassifiable file is searched as
// [Plain].
func (d *Dispatcher) Search(ctx context.Context, path string, contentType string) ([]Match, error) {
	if len(contentType) == 0 {
		ct, err := d.classifier.Classify(path)
		if err == nil {
			contentType = ct
		}
	}
	v := VariantFor(contentType)
	matches, err := d.backend.Search(ctx, path, v)
	if err != nil {
		return matches, fmt.Errorf("cannot search %s with %s: %w", path, v.Tool(), err)
	}
	return matches, nil
}
