// Package version exposes build metadata stamped via -ldflags.
package version

var (
	// Version is the semantic version of the dm-ticket binary.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
