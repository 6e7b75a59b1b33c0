// Package version holds build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag of the acquire binary.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the metadata for a -version flag.
func String(name string) string {
	return fmt.Sprintf("%s %s (%s, built %s)", name, Version, GitSHA, BuildTime)
}
