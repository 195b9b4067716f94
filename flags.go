// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package argrep

import (
	"fmt"
	"strings"
)

// ExtractionFlags selects which entry attributes are restored on disk.
type ExtractionFlags uint8

const (
	// ExtractPerm restores the permission bits of files and directories.
	ExtractPerm ExtractionFlags = 1 << iota

	// ExtractTime restores the modification and access times.
	ExtractTime

	// ExtractOwner restores uid and gid. Requires root privileges.
	ExtractOwner

	// ExtractACL requests access control lists. Go has no portable API for them, the flag
	// is accepted but not applied.
	ExtractACL

	// ExtractFFlags requests file flags (chflags). Go has no portable API for them, the flag
	// is accepted but not applied.
	ExtractFFlags
)

// DefaultExtractionFlags are used if no flags are configured.
const DefaultExtractionFlags = ExtractPerm | ExtractTime | ExtractACL | ExtractFFlags

// Has reports whether all bits of o are set in f.
func (f ExtractionFlags) Has(o ExtractionFlags) bool {
	return f&o == o
}

var flagNames = []struct {
	flag ExtractionFlags
	name string
}{
	{ExtractPerm, "perm"},
	{ExtractTime, "time"},
	{ExtractOwner, "owner"},
	{ExtractACL, "acl"},
	{ExtractFFlags, "fflags"},
}

// ParseExtractionFlags parses flag names separated by "|" or ",", e.g. "perm|time".
// "none" and the empty string select no flag.
func ParseExtractionFlags(s string) (ExtractionFlags, error) {
	var f ExtractionFlags
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "none" || len(name) == 0 {
			continue
		}
		found := false
		for _, n := range flagNames {
			if n.name == name {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown extraction flag %q", name)
		}
	}
	return f, nil
}

// String returns the names of the set flags joined by "|".
func (f ExtractionFlags) String() string {
	var set []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}

// unappliedFlags returns the requested flags that have no effect on this platform.
func (f ExtractionFlags) unappliedFlags() ExtractionFlags {
	return f & (ExtractACL | ExtractFFlags)
}
