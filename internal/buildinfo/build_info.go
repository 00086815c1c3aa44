// Package buildinfo reports the version of the fixpoint binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

const unknown = "<unknown>"

// BuildInfo holds the version, the VCS revision and the build time of a binary.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New returns the build info set at link time, filling the blanks from the information the Go
// toolchain embeds into the binary.
func New(version, commitHash, buildDate string) BuildInfo {
	info := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.merge(bi)
	}
	return info.withDefaults()
}

func (i BuildInfo) merge(bi *debug.BuildInfo) BuildInfo {
	if i.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	i.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == "" {
				i.CommitHash = s.Value
				if len(i.CommitHash) > 12 {
					i.CommitHash = i.CommitHash[:12]
				}
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

func (i BuildInfo) withDefaults() BuildInfo {
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.CommitHash == "" {
		i.CommitHash = "n/a"
	}
	if i.BuildDate == "" {
		i.BuildDate = unknown
	}
	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	s := fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
	if i.GoVersion != "" {
		s += " with " + i.GoVersion
	}
	return s
}
