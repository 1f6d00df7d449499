// Package version carries build information injected at link time, e.g.
//
//	go build -ldflags "-X forgeloop/pkg/version.Version=v0.3.0 -X forgeloop/pkg/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

//nolint:gochecknoglobals // must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String returns the one-line build description.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
