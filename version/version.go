// Package version reports how the paysync binary was built.
//
// Release builds stamp Version, CommitHash and BuildTime through ldflags:
//
//	go build -ldflags "-X github.com/teranos/paysync/version.Version=1.2.0 \
//	    -X github.com/teranos/paysync/version.CommitHash=$(git rev-parse HEAD)"
//
// A plain `go install` leaves them unset; the VCS stamp embedded by the Go
// toolchain fills the commit and time instead.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time via ldflags
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running binary. It is sent, shortened, as the
// User-Agent of every payroll API request.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Modified   bool   `json:"modified,omitempty"` // built from a dirty tree
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the build information, falling back to the VCS stamp
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withVCS(info, bi.Settings)
	}
	return info
}

func withVCS(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.CommitHash == "" {
				info.CommitHash = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short returns the abbreviated commit, "unknown" when none was recorded
func (i Info) Short() string {
	c := i.CommitHash
	if c == "" {
		return "unknown"
	}
	if len(c) > 7 {
		c = c[:7]
	}
	if i.Modified {
		c += "-dirty"
	}
	return c
}

// String returns the one-line form printed by `paysync version`
func (i Info) String() string {
	parts := []string{i.Short()}
	if i.BuildTime != "" {
		parts = append(parts, "built "+i.BuildTime)
	}
	return fmt.Sprintf("paysync %s (%s)", i.Version, strings.Join(parts, ", "))
}

// UserAgent identifies paysync on outbound API requests
func (i Info) UserAgent() string {
	return fmt.Sprintf("paysync/%s (%s; %s)", i.Version, i.Short(), i.Platform)
}
