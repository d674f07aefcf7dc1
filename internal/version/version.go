// SPDX-License-Identifier: MIT

// Package version exposes build identification set via -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of the build.
	Version = "v0.3.0"
	// Commit is the git commit the binary was built from.
	Commit = "none"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String returns a human readable version line.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
