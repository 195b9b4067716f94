// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/hashicorp/go-argrep/cmd"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main starts the archive grep tool
func main() {
	cmd.Run(version, commit, date)
}
