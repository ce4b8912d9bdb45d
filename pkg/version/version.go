// Package version holds build metadata for the fastblame binary.
package version

import "runtime/debug"

const unknown = "unknown"

// Build metadata, normally set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

const (
	settingRevision = "vcs.revision"
	settingTime     = "vcs.time"
	shortCommitLen  = 12
)

// InitBinaryVersion fills metadata the linker did not set from the module
// build info embedded by the go tool.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case settingRevision:
			if Commit == unknown && setting.Value != "" {
				Commit = setting.Value
				if len(Commit) > shortCommitLen {
					Commit = Commit[:shortCommitLen]
				}
			}
		case settingTime:
			if Date == unknown && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

// String formats the metadata for the version command.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
