// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// These variables are populated by the Go linker (LDFLAGS) at build time.
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// String formats the build metadata for `fobot version`.
func String() string {
	return fmt.Sprintf("fobot %s (commit %s, built %s, %s %s/%s)",
		Version, CommitHash, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
