// Package version exposes build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info is the version payload served by the admin API.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	UptimeSec int64  `json:"uptime_seconds"`
}

// GetInfo returns the build metadata plus process uptime.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		UptimeSec: int64(time.Since(startTime).Seconds()),
	}
}

// String returns the one-line form used by the -version flag.
func String() string {
	return fmt.Sprintf("balancerd %s (commit: %s, built: %s)", Version, GitCommit, BuildTime)
}
