// Package version holds the build metadata printed by adp version.
// Release builds set the variables with -ldflags; a plain `go install`
// falls back to the module version recorded in the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Resolved returns Version, or the main module version when Version was not
// set at link time and the binary was built from a tagged module.
func Resolved() string {
	if Version != "dev" {
		return Version
	}
	if bi, ok := readBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return Version
}

// Info returns the text printed by adp version.
func Info() string {
	return fmt.Sprintf("adp version %s\ncommit: %s\nbuilt: %s\n", Resolved(), Commit, Date)
}
