// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

//go:generate mockgen -source=classifier.go -destination=mock_classifier_test.go -package=argrep_test

// Classifier determines the content type of a file on disk by its content.
type Classifier interface {
	// Classify returns the MIME type of the file at path, without parameters.
	// Failures are reported as [*ClassificationError].
	Classify(path string) (string, error)
}

// MIMEClassifier is a [Classifier] that sniffs the leading bytes of a file.
type MIMEClassifier struct{}

// NewMIMEClassifier returns a content sniffing [Classifier].
func NewMIMEClassifier() *MIMEClassifier {
	return &MIMEClassifier{}
}

// Classify implements [Classifier].
func (c *MIMEClassifier) Classify(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", &ClassificationError{Path: path, Err: err}
	}
	return mediaType(mt.String()), nil
}

// mediaType strips parameters like the charset from a MIME type.
func mediaType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}
