// Package version reports build metadata for the triage binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/triage/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/triage/internal/version.Commit=abc123
//	  -X github.com/soyeahso/triage/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the JSON form served on /health and by `triage version --json`.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

// Current returns the build metadata. Without ldflags the commit falls back
// to the VCS revision recorded by the Go toolchain, if any.
func Current() Build {
	return Build{
		Version:   Version,
		Commit:    short(commit()),
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a formatted version string.
func Info() string {
	b := Current()
	return fmt.Sprintf("triage %s (commit: %s, built: %s, %s)", b.Version, b.Commit, b.Date, b.Platform)
}

func commit() string {
	if Commit != "unknown" && Commit != "" {
		return Commit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
