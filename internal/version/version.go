// Package version carries the build metadata stamped into the sramlab
// binaries via -ldflags.
package version

var (
	// Version is the sramlab release version
	Version = "dev"
	// GitSHA is the git commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
