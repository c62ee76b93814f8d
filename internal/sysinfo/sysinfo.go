// Package sysinfo reports build and host information for echoprobe.
package sysinfo

import (
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// Version is the echoprobe version, set at build time via ldflags.
	// Example: go build -ldflags="-X github.com/postalsys/echoprobe/internal/sysinfo.Version=v1.0.0"
	Version = "dev"

	// startTime is when the process started.
	startTime     time.Time
	startTimeOnce sync.Once
)

func init() {
	startTimeOnce.Do(func() {
		startTime = time.Now()
	})
	if Version == "dev" {
		Version = enhanceDevVersion()
	}
}

// enhanceDevVersion derives dev-<commit>[-dirty] from the embedded VCS
// stamp, or dev-<start timestamp> when the binary carries none.
func enhanceDevVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var dirty bool
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				revision = s.Value
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
		if revision != "" {
			if len(revision) > 7 {
				revision = revision[:7]
			}
			if dirty {
				return "dev-" + revision + "-dirty"
			}
			return "dev-" + revision
		}
	}
	return "dev-" + startTime.UTC().Format("20060102-150405")
}

// Info describes the running process.
type Info struct {
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	StartTime int64  `json:"start_time"`
	Uptime    int64  `json:"uptime_seconds"`
}

// Collect gathers local system information.
func Collect() Info {
	hostname, _ := os.Hostname()

	return Info{
		Version:   Version,
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		StartTime: startTime.Unix(),
		Uptime:    UptimeSeconds(),
	}
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// Uptime returns the process uptime as a duration.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// UptimeSeconds returns the process uptime in seconds.
func UptimeSeconds() int64 {
	return int64(Uptime().Seconds())
}
