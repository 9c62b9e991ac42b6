// Package version holds build metadata stamped in via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
