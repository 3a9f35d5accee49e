// Package version exposes build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info returns the display version
func Info() string {
	return Version
}

// Full returns the version with the commit hash when known
func Full() string {
	if GitCommit != "" && GitCommit != "unknown" && len(GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", Version, GitCommit[:7])
	}
	return Version
}

// UserAgent returns a user agent string for HTTP clients
func UserAgent() string {
	return fmt.Sprintf("deckhand/%s", Version)
}
