package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"
)

// Binaries holds the resolved encoder and prober executables.
type Binaries struct {
	FFmpeg  string `json:"ffmpeg"`
	FFprobe string `json:"ffprobe"`
	Version string `json:"version,omitempty"`
}

const (
	envFFmpegBinary  = "VIDARR_FFMPEG_BINARY"
	envFFprobeBinary = "VIDARR_FFPROBE_BINARY"
)

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// Locate resolves the ffmpeg and ffprobe binaries, preferring the VIDARR_*
// environment overrides over PATH lookup. The reported encoder version is
// recorded best-effort.
func Locate(ctx context.Context) (*Binaries, error) {
	ffmpegPath, err := findBinary("ffmpeg", envFFmpegBinary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobePath, err := findBinary("ffprobe", envFFprobeBinary)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	bins := &Binaries{
		FFmpeg:  ffmpegPath,
		FFprobe: ffprobePath,
	}
	bins.Version = detectVersion(ctx, ffmpegPath)
	return bins, nil
}

// findBinary resolves a binary from an environment override or PATH.
func findBinary(name, envVar string) (string, error) {
	if path := os.Getenv(envVar); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s=%s: %w", envVar, path, err)
		}
		return path, nil
	}
	return exec.LookPath(name)
}

// detectVersion parses the version string from `ffmpeg -version`. Returns
// empty on any failure; version is informational only.
func detectVersion(ctx context.Context, ffmpegPath string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return ""
	}
	if m := versionRe.FindSubmatch(output); len(m) > 1 {
		return string(m[1])
	}
	return ""
}
