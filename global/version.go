package global

import (
	"fmt"
	"runtime/debug"
)

const (
	// Version has the following structure: vA.B.C[-<label>]
	// A is major version, B is minor version (breaking change), C is subversion
	Version        = "v0.2.1-alpha"
	bannerTemplate = "starting ledgerchat client version %s, commit hash: %s, commit time: %s"
)

var (
	CommitHash = "N/A"
	CommitTime = "N/A"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				CommitHash = setting.Value
			}
			if setting.Key == "vcs.time" {
				CommitTime = setting.Value
			}
		}
	}
}

func BannerString() string {
	return fmt.Sprintf(bannerTemplate, Version, CommitHash, CommitTime)
}
