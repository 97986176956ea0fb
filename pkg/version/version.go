// Package version carries build metadata injected through -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build metadata. Release builds override these with
// -ldflags "-X github.com/Sumatoshi-tech/rbkit/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// InitBinaryVersion fills in metadata left at its defaults from the module
// build info embedded by the go toolchain.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String formats the metadata for the version command.
func String() string {
	return fmt.Sprintf("rbkit %s (commit: %s, built: %s)", Version, Commit, Date)
}
