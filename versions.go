// Copyright (c) 2025 Michael D Henderson. All rights reserved.

// Package salesingest loads sales files from a staging folder into a relational table,
// keeping a ledger so that each file is loaded at most once.
package salesingest

import (
	"github.com/maloquacious/semver"
)

var (
	version = semver.Version{
		Major: 0,
		Minor: 2,
		Patch: 0,
		Build: semver.Commit(),
	}
)

func Version() semver.Version {
	return version
}
