// Package ffmpeg wraps the external encoder and prober binaries: a fluent
// command builder, process control with stderr capture, progress parsing,
// and the silencedetect output parser the silence stage consumes.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StderrTailLimit is how many trailing bytes of encoder stderr get attached
// to an ExitError. Encoder failures explain themselves in the last few
// lines; the full log is noise.
const StderrTailLimit = 500

// maxStderrLines bounds the in-memory stderr ring buffer per command.
const maxStderrLines = 100

// ExitError reports an encoder process that exited non-zero.
type ExitError struct {
	Cmd        string
	Err        error
	StderrTail string
}

func (e *ExitError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, e.StderrTail)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Progress is a snapshot of the encoder's periodic stats line.
type Progress struct {
	Frame int64         `json:"frame"`
	FPS   float64       `json:"fps"`
	Time  time.Duration `json:"time"`
	Speed float64       `json:"speed"`
}

type commandInput struct {
	args []string
	path string
}

// CommandBuilder builds encoder invocations with a fluent API. Argument
// order in the built command is fixed: loglevel, global args, -y, then per
// input its options followed by -i, then -filter_complex / -vf / -af,
// -map entries, output args, and the output path.
type CommandBuilder struct {
	binary           string
	logLevel         string
	globalArgs       []string
	overwrite        bool
	pendingInputArgs []string
	inputs           []commandInput
	filterComplex    string
	videoFilters     []string
	audioFilters     []string
	maps             []string
	outputArgs       []string
	output           string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the encoder log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner suppresses the encoder banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// InputArgs stages options for the next Input call, e.g. a -ss seek or the
// concat demuxer flags.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.pendingInputArgs = append(b.pendingInputArgs, args...)
	return b
}

// Input adds an input path, consuming any staged input options.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.inputs = append(b.inputs, commandInput{args: b.pendingInputArgs, path: path})
	b.pendingInputArgs = nil
	return b
}

// FilterComplex sets the filter graph. Mutually exclusive with VideoFilter
// and AudioFilter in practice; the builder does not enforce it, the encoder
// rejects the combination.
func (b *CommandBuilder) FilterComplex(graph string) *CommandBuilder {
	b.filterComplex = graph
	return b
}

// VideoFilter appends a filter to the -vf chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.videoFilters = append(b.videoFilters, filter)
	return b
}

// AudioFilter appends a filter to the -af chain.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.audioFilters = append(b.audioFilters, filter)
	return b
}

// Map adds a -map stream selector.
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.maps = append(b.maps, spec)
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// NoAudio drops all audio streams from the output.
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// CRF sets the constant rate factor.
func (b *CommandBuilder) CRF(crf int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-crf", strconv.Itoa(crf))
	return b
}

// FrameRate sets the output frame rate.
func (b *CommandBuilder) FrameRate(fps int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-r", strconv.Itoa(fps))
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// AudioChannels sets the number of audio channels.
func (b *CommandBuilder) AudioChannels(channels int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ac", strconv.Itoa(channels))
	return b
}

// AudioSampleRate sets the audio sample rate in Hz.
func (b *CommandBuilder) AudioSampleRate(hz int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(hz))
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// Format sets the output container format.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// Duration limits the output duration in seconds.
func (b *CommandBuilder) Duration(seconds float64) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-t", strconv.FormatFloat(seconds, 'f', -1, 64))
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}
	if b.filterComplex != "" {
		args = append(args, "-filter_complex", b.filterComplex)
	}
	if len(b.videoFilters) > 0 {
		args = append(args, "-vf", strings.Join(b.videoFilters, ","))
	}
	if len(b.audioFilters) > 0 {
		args = append(args, "-af", strings.Join(b.audioFilters, ","))
	}
	for _, m := range b.maps {
		args = append(args, "-map", m)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}

	return &Command{
		binary:      b.binary,
		args:        args,
		stderrLines: make([]string, 0, maxStderrLines),
	}
}

// Command is a built encoder invocation. A Command can be run once.
type Command struct {
	binary string
	args   []string

	mu      sync.RWMutex
	cmd     *exec.Cmd
	started time.Time

	stderrMu    sync.RWMutex
	stderrLines []string
}

// Args returns the argument list the process will receive.
func (c *Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// String returns the command line for logging.
func (c *Command) String() string {
	return c.binary + " " + strings.Join(c.args, " ")
}

// Run executes the command and waits for completion. Cancelling the context
// kills the process. A non-zero exit returns an ExitError carrying the tail
// of the captured stderr.
func (c *Command) Run(ctx context.Context) error {
	return c.run(ctx, nil)
}

// RunWithProgress runs the command and reports parsed stats lines on
// progressCh. Sends never block; a slow consumer just misses snapshots.
func (c *Command) RunWithProgress(ctx context.Context, progressCh chan<- Progress) error {
	return c.run(ctx, progressCh)
}

func (c *Command) run(ctx context.Context, progressCh chan<- Progress) error {
	c.mu.Lock()
	cmd := exec.CommandContext(ctx, c.binary, c.args...)
	cmd.WaitDelay = 5 * time.Second
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("getting stderr pipe: %w", err)
	}
	c.cmd = cmd
	c.started = time.Now()
	c.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.binary, err)
	}

	done := make(chan struct{})
	go c.captureStderr(stderr, progressCh, done)

	waitErr := cmd.Wait()
	<-done

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExitError{
			Cmd:        c.String(),
			Err:        waitErr,
			StderrTail: c.StderrTail(StderrTailLimit),
		}
	}
	return nil
}

// Kill terminates the encoder process if it is running.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// RunDuration returns how long the command has been running.
func (c *Command) RunDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// captureStderr stores encoder stderr lines in a bounded ring buffer and,
// when progressCh is set, parses stats lines into Progress snapshots.
func (c *Command) captureStderr(r io.Reader, progressCh chan<- Progress, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	var progress Progress

	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxStderrLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()

		if progressCh != nil && parseProgressLine(line, &progress) {
			select {
			case progressCh <- progress:
			default:
			}
		}
	}
}

// StderrLines returns a copy of the captured stderr lines.
func (c *Command) StderrLines() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// StderrTail returns up to the last n bytes of the captured stderr.
func (c *Command) StderrTail(n int) string {
	return tailString(strings.Join(c.StderrLines(), "\n"), n)
}

// tailString returns the last n bytes of s.
func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

var (
	progressFrameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	progressFPSRe   = regexp.MustCompile(`fps=\s*([\d.]+)`)
	progressTimeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	progressSpeedRe = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgressLine updates progress from an encoder stats line. Returns
// true when the line carried any progress fields.
func parseProgressLine(line string, progress *Progress) bool {
	matched := false

	if m := progressFrameRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
		matched = true
	}
	if m := progressFPSRe.FindStringSubmatch(line); len(m) > 1 {
		progress.FPS, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	}
	if m := progressTimeRe.FindStringSubmatch(line); len(m) > 4 {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		centis, _ := strconv.Atoi(m[4])
		progress.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond
		matched = true
	}
	if m := progressSpeedRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Speed, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	}

	return matched
}
