// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package main

import (
	"os"
)

// Set by -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
