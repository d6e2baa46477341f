// Package version exposes build metadata injected at link time:
//
//	go build -ldflags "-X github.com/vibeacademy/vidarr/internal/version.Version=x.y.z \
//	                   -X github.com/vibeacademy/vidarr/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/vibeacademy/vidarr/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp, RFC3339.
	Date = "unknown"
)

// ApplicationName is the binary's canonical name.
const ApplicationName = "vidarr"

// Info is the structured form served by the version command and the
// OpenAPI document.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo collects build and runtime metadata.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the long form used by `vidarr version`.
func String() string {
	info := GetInfo()
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)",
		ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short renders the one-line form used for --version.
func Short() string {
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, c)
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// UserAgent is the User-Agent value for outbound API calls.
func UserAgent() string {
	return ApplicationName + "/" + Version
}

func shortCommit() (string, bool) {
	if Commit == "unknown" || len(Commit) < 8 {
		return "", false
	}
	return Commit[:8], true
}
