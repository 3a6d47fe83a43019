// Package version carries build metadata stamped via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// DetectorModel identifies the rule set that produced stored events, so
// sessions recorded by different builds can be told apart.
func DetectorModel() string {
	return fmt.Sprintf("rule-based-%s", Version)
}

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("attention %s (%s, built %s)", Version, GitSHA, BuildTime)
}
