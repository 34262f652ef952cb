// FILE: loglayer/src/internal/version/version.go
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is set at compile time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the build description served on the admin status endpoint
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build description of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}

// String describes the running binary
func String() string {
	return Get().String()
}

// Short returns just the version tag
func Short() string {
	return Version
}

// UserAgent names a loglayer component on the wire, e.g. "loglayer-admin/1.2.0".
// Admin servers and clients send it so either side can spot a version skew.
func UserAgent(component string) string {
	return fmt.Sprintf("loglayer-%s/%s", component, Version)
}
