package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/Gateworks/gst-gateworks-apps/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" example:"1.4.0" doc:"Release version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Source revision"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build or commit time"`
	Modified  bool   `json:"modified,omitempty" doc:"Built from a dirty tree"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

// Get returns the build metadata. Revision and time come from the Go
// toolchain's VCS stamp when not set with ldflags.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		stamp(&info, bi.Settings)
	}
	return info
}

func stamp(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
				if len(info.GitCommit) > 12 {
					info.GitCommit = info.GitCommit[:12]
				}
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String returns the release version.
func String() string {
	return Version
}

// Banner is the line printed by --version.
func Banner() string {
	info := Get()
	if info.GitCommit == "unknown" {
		return fmt.Sprintf("%s (%s, %s)", info.Version, info.GoVersion, info.Platform)
	}
	commit := info.GitCommit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s, %s)",
		info.Version, commit, info.BuildDate, info.GoVersion, info.Platform)
}
