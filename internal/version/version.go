// Package version exposes build metadata injected at link time.
package version

var (
	// Version is the release version of the surface.report binary.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns the composite version line printed by -version.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
