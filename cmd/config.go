// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is read if it exists, --config selects another file.
const defaultConfigFile = "~/.config/argrep/config.yaml"

// fileConfig holds the values of a YAML configuration file. Keys are flag names,
// with "-" or "_" as word separator:
//
//	td: /var/tmp
//	max-depth: 3
//	regexp: [secret, token]
//	fe: ['\.env$']
type fileConfig struct {
	values map[string]interface{}
}

// loader returns a kong configuration loader that also keeps the parsed values,
// list values are merged by [fileConfig.list] after parsing.
func (c *fileConfig) loader(r io.Reader) (kong.Resolver, error) {
	values := map[string]interface{}{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "cannot parse configuration file")
	}
	if c.values == nil {
		c.values = map[string]interface{}{}
	}
	for k, v := range values {
		c.values[normalizeKey(k)] = v
	}

	var f kong.ResolverFunc = func(context *kong.Context, parent *kong.Path, flag *kong.Flag) (interface{}, error) {
		v, ok := values[flag.Name]
		if !ok {
			v, ok = values[strings.ReplaceAll(flag.Name, "-", "_")]
		}
		if !ok {
			return nil, nil
		}
		switch v := v.(type) {
		case []interface{}, map[string]interface{}:
			// lists are merged after parsing
			return nil, nil
		case nil:
			return nil, nil
		default:
			return fmt.Sprint(v), nil
		}
	}
	return f, nil
}

// list returns the list value of key, a scalar value is a single element list.
func (c *fileConfig) list(key string) []string {
	v, ok := c.values[normalizeKey(key)]
	if !ok {
		return nil
	}
	switch v := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "_", "-")
}
