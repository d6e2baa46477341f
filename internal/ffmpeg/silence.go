package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Interval is a half-open [Start, End) time range in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the interval length in seconds.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// TotalDuration sums the lengths of the given intervals.
func TotalDuration(intervals []Interval) float64 {
	var total float64
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}

// SilenceDetector finds silent spans in a media file via the encoder's
// silencedetect filter.
type SilenceDetector struct {
	ffmpegPath string

	// Noise is the silence threshold, e.g. "-30dB".
	Noise string
	// MinSilence is the minimum silence length in seconds to report.
	MinSilence float64
}

// NewSilenceDetector creates a detector with the default threshold of
// -30dB over at least one second.
func NewSilenceDetector(ffmpegPath string) *SilenceDetector {
	return &SilenceDetector{
		ffmpegPath: ffmpegPath,
		Noise:      "-30dB",
		MinSilence: 1.0,
	}
}

// ThresholdDB returns the numeric noise threshold, e.g. -30 for "-30dB".
func (d *SilenceDetector) ThresholdDB() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSuffix(d.Noise, "dB"), 64)
	return v
}

// Detect runs a decode-only pass over the input and returns the detected
// silence intervals in order. An interval with End < 0 means the file ended
// while still silent.
func (d *SilenceDetector) Detect(ctx context.Context, input string) ([]Interval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%s:d=%s",
		d.Noise, strconv.FormatFloat(d.MinSilence, 'f', -1, 64))

	// Full stderr is kept here rather than a ring buffer: every silence
	// line matters and long recordings produce many of them.
	args := []string{
		"-hide_banner", "-nostats",
		"-i", input,
		"-af", filter,
		"-f", "null", "-",
	}
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExitError{
			Cmd:        d.ffmpegPath + " " + filter,
			Err:        err,
			StderrTail: tailString(stderr.String(), StderrTailLimit),
		}
	}

	return ParseSilence(stderr.String()), nil
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?[\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?[\d.]+)`)
)

// ParseSilence extracts silence intervals from silencedetect stderr output.
// A trailing silence_start without a matching silence_end yields an open
// interval with End = -1.
func ParseSilence(output string) []Interval {
	var intervals []Interval
	pendingStart := math.NaN()

	for _, line := range regexp.MustCompile(`\r?\n`).Split(output, -1) {
		if m := silenceStartRe.FindStringSubmatch(line); len(m) > 1 {
			if start, err := strconv.ParseFloat(m[1], 64); err == nil {
				pendingStart = start
			}
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); len(m) > 1 {
			end, err := strconv.ParseFloat(m[1], 64)
			if err != nil || math.IsNaN(pendingStart) {
				continue
			}
			intervals = append(intervals, Interval{Start: pendingStart, End: end})
			pendingStart = math.NaN()
		}
	}

	if !math.IsNaN(pendingStart) {
		intervals = append(intervals, Interval{Start: pendingStart, End: -1})
	}

	return intervals
}

// SpeechSegments inverts silence intervals into kept speech segments over a
// file of the given total duration. Each segment is padded symmetrically,
// clamped to the media bounds; segments whose gap falls under mergeGap are
// merged; segments not longer than minLength are dropped. Open-ended
// silences (End < 0) extend to the end of the file.
func SpeechSegments(silences []Interval, total, padding, mergeGap, minLength float64) []Interval {
	if total <= 0 {
		return nil
	}

	resolved := make([]Interval, 0, len(silences))
	for _, s := range silences {
		end := s.End
		if end < 0 || end > total {
			end = total
		}
		start := math.Max(s.Start, 0)
		if start >= end {
			continue
		}
		resolved = append(resolved, Interval{Start: start, End: end})
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Start < resolved[j].Start })

	var speech []Interval
	cursor := 0.0
	for _, s := range resolved {
		if s.Start > cursor {
			speech = append(speech, Interval{Start: cursor, End: s.Start})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < total {
		speech = append(speech, Interval{Start: cursor, End: total})
	}

	for i := range speech {
		speech[i].Start = math.Max(0, speech[i].Start-padding)
		speech[i].End = math.Min(total, speech[i].End+padding)
	}

	var merged []Interval
	for _, seg := range speech {
		if n := len(merged); n > 0 && seg.Start-merged[n-1].End < mergeGap {
			if seg.End > merged[n-1].End {
				merged[n-1].End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}

	kept := merged[:0]
	for _, seg := range merged {
		if seg.Duration() > minLength {
			kept = append(kept, seg)
		}
	}
	return kept
}
