// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package filter decides which walked files are searched. A [Filter] holds three
// allow-lists matched against the full path, the base name and the extension of a
// file. Patterns are regular expressions unless prefixed with "glob:".
package filter

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// GlobPrefix marks a pattern as shell glob. In glob patterns "*" stops at "/"
// and "**" does not.
const GlobPrefix = "glob:"

// Matcher matches a single string.
type Matcher interface {
	Match(s string) bool
}

// PatternError is returned for a pattern that does not compile.
type PatternError struct {
	Pattern string
	Err     error
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("couldn't construct matcher from pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap returns the compile error.
func (e *PatternError) Unwrap() error {
	return e.Err
}

// Filter is an immutable set of allow-lists. The zero value matches everything.
type Filter struct {
	paths []Matcher
	names []Matcher
	exts  []Matcher
}

// New compiles the three pattern lists. Patterns that fail to compile are skipped
// and reported as joined [*PatternError] values; the returned filter is built from
// the valid patterns and is never nil.
func New(paths, names, exts []string) (*Filter, error) {
	var errs []error
	f := &Filter{
		paths: compileAll(paths, &errs),
		names: compileAll(names, &errs),
		exts:  compileAll(exts, &errs),
	}
	return f, errors.Join(errs...)
}

// Compile compiles a single pattern.
func Compile(pattern string) (Matcher, error) {
	if g, ok := strings.CutPrefix(pattern, GlobPrefix); ok {
		m, err := glob.Compile(g, '/')
		if err != nil {
			return nil, &PatternError{Pattern: pattern, Err: err}
		}
		return m, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return regexpMatcher{re}, nil
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(s string) bool {
	return m.re.MatchString(s)
}

func compileAll(patterns []string, errs *[]error) []Matcher {
	var ms []Matcher
	for _, p := range patterns {
		m, err := Compile(p)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		ms = append(ms, m)
	}
	return ms
}

// Match reports whether p passes all non-empty allow-lists. p is a slash separated
// path. The extension list is matched against the extension including the dot, a
// file without extension is matched as "".
func (f *Filter) Match(p string) bool {
	if f == nil {
		return true
	}
	return anyMatch(f.paths, p) &&
		anyMatch(f.names, path.Base(p)) &&
		anyMatch(f.exts, path.Ext(p))
}

// Empty reports whether the filter has no patterns.
func (f *Filter) Empty() bool {
	return f == nil || len(f.paths)+len(f.names)+len(f.exts) == 0
}

func anyMatch(ms []Matcher, s string) bool {
	if len(ms) == 0 {
		return true
	}
	for _, m := range ms {
		if m.Match(s) {
			return true
		}
	}
	return false
}
