// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package output_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hashicorp/go-argrep/internal/output"
	"github.com/hashicorp/go-argrep/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	var out, errOut bytes.Buffer
	s := output.NewText(&out, &errOut, false)

	require.NoError(t, s.Match("root.zip/inner.zip/b.txt", search.Match{Path: "/tmp/x/b.txt", Line: 3, Text: "needle: here"}))
	require.NoError(t, s.Entry(output.Entry{Path: "root.zip/inner.zip", IsArchive: true, Format: "zip"}))
	require.NoError(t, s.Entry(output.Entry{Path: "root.zip/a.txt", Warning: "short payload"}))
	require.NoError(t, s.Warn("no matches found"))
	require.NoError(t, s.Error("cannot open root"))

	assert.Equal(t, "root.zip/inner.zip/b.txt#3: needle: here\n"+
		"root.zip/inner.zip [zip]\n"+
		"root.zip/a.txt (short payload)\n", out.String())
	assert.Equal(t, "[WRN] no matches found\n[ERR] cannot open root\n", errOut.String())
}

func TestTextColor(t *testing.T) {
	var out bytes.Buffer
	s := output.NewText(&out, &out, true)
	require.NoError(t, s.Match("a.txt", search.Match{Line: 1, Text: "x"}))
	assert.Contains(t, out.String(), "\x1b[")
	assert.True(t, strings.HasSuffix(out.String(), ": x\n"))
}

func TestJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	s := output.NewJSON(&out, &errOut, "run-1")

	require.NoError(t, s.Match("root.zip/b.txt", search.Match{Line: 2, Text: "needle"}))
	require.NoError(t, s.Entry(output.Entry{Path: "root.zip/inner.zip", IsArchive: true, Format: "zip", Size: 10}))
	require.NoError(t, s.Warn("careful"))
	require.NoError(t, s.Error("broken"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"run":"run-1","data":{"path":"root.zip/b.txt","line":2,"match":"needle"}}`, lines[0])
	assert.JSONEq(t, `{"run":"run-1","data":{"path":"root.zip/inner.zip","is_archive":true,"format":"zip","size":10}}`, lines[1])

	var diag []map[string]string
	for _, l := range strings.Split(strings.TrimSpace(errOut.String()), "\n") {
		var m map[string]string
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		diag = append(diag, m)
	}
	assert.Equal(t, []map[string]string{
		{"run": "run-1", "wrn": "careful"},
		{"run": "run-1", "err": "broken"},
	}, diag)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &output.JSON{}, output.New(true, "id", &buf, &buf))
	assert.IsType(t, &output.Text{}, output.New(false, "id", &buf, &buf))
}
