package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the parsed prober output for a media file.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeStream contains per-stream information.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	SampleRate   string `json:"sample_rate,omitempty"`
	Channels     int    `json:"channels,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

// Prober runs ffprobe against project artifacts.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a prober for the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the per-probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe inspects a media file and returns format and stream details.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	return parseProbeOutput(output)
}

// Duration returns a file's duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	duration := result.Duration()
	if duration <= 0 {
		return 0, fmt.Errorf("no duration reported for %s", path)
	}
	return duration, nil
}

func parseProbeOutput(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing probe output: %w", err)
	}
	return &result, nil
}

// Duration returns the container duration in seconds, 0 if unknown.
func (r *ProbeResult) Duration() float64 {
	if r.Format.Duration == "" {
		return 0
	}
	duration, err := strconv.ParseFloat(r.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return duration
}

// VideoStream returns the first video stream, nil if none.
func (r *ProbeResult) VideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, nil if none.
func (r *ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// HasAudio reports whether any audio stream is present.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioStream() != nil
}

// HasVideo reports whether any video stream is present.
func (r *ProbeResult) HasVideo() bool {
	return r.VideoStream() != nil
}

// Framerate returns the stream frame rate in frames per second.
func (s *ProbeStream) Framerate() float64 {
	if fps := parseFramerate(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseFramerate(s.RFrameRate)
}

// parseFramerate parses a frame rate ratio like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	if fr == "" {
		return 0
	}
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
