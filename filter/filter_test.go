// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package filter_test

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-argrep/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		names []string
		exts  []string
		path  string
		want  bool
	}{
		{name: "no patterns", path: "a/b.txt", want: true},
		{name: "path regex", paths: []string{"^logs/"}, path: "logs/app.log", want: true},
		{name: "path regex miss", paths: []string{"^logs/"}, path: "src/app.log", want: false},
		{name: "one of many", paths: []string{"^x/", "inner\\.zip/"}, path: "root.zip/inner.zip/b.txt", want: true},
		{name: "name regex", names: []string{"^b\\."}, path: "root.zip/inner.zip/b.txt", want: true},
		{name: "name regex ignores dirs", names: []string{"inner"}, path: "root.zip/inner.zip/b.txt", want: false},
		{name: "ext regex", exts: []string{"^\\.txt$"}, path: "a/b.txt", want: true},
		{name: "ext regex miss", exts: []string{"^\\.txt$"}, path: "a/b.log", want: false},
		{name: "no ext", exts: []string{"^$"}, path: "a/Makefile", want: true},
		{name: "all lists", paths: []string{"^a/"}, names: []string{"^b"}, exts: []string{"txt"}, path: "a/b.txt", want: true},
		{name: "all lists one miss", paths: []string{"^a/"}, names: []string{"^c"}, exts: []string{"txt"}, path: "a/b.txt", want: false},
		{name: "glob path", paths: []string{"glob:root.zip/**/*.txt"}, path: "root.zip/inner.zip/b.txt", want: true},
		{name: "glob star stops at slash", paths: []string{"glob:root.zip/*.txt"}, path: "root.zip/inner.zip/b.txt", want: false},
		{name: "glob name", names: []string{"glob:{a,b}.txt"}, path: "x/b.txt", want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := filter.New(tc.paths, tc.names, tc.exts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.Match(tc.path))
		})
	}
}

func TestInvalidPatterns(t *testing.T) {
	f, err := filter.New([]string{"(", "^a/"}, nil, []string{"glob:[", "txt"})
	require.Error(t, err)
	require.NotNil(t, f)

	var pe *filter.PatternError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "(", pe.Pattern)
	assert.Contains(t, err.Error(), `"glob:["`)

	// valid patterns stay in effect
	assert.True(t, f.Match("a/b.txt"))
	assert.False(t, f.Match("b/b.txt"))
	assert.False(t, f.Match("a/b.log"))
}

func TestNilFilter(t *testing.T) {
	var f *filter.Filter
	assert.True(t, f.Match("anything"))
	assert.True(t, f.Empty())

	f, err := filter.New(nil, []string{"x"}, nil)
	require.NoError(t, err)
	assert.False(t, f.Empty())
}
