package shorts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
	"github.com/vibeacademy/vidarr/internal/subtitle"
)

// Output geometry: vertical 1080x1920, screen on top, webcam below.
const (
	shortWidth  = 1080
	shortHeight = 1920
	paneHeight  = shortHeight / 2
)

// Camera motion over the zoomed screen pane. The crop window drifts on two
// incommensurate sine periods so the pan never visibly loops.
const (
	screenZoom = 3.0
	webcamZoom = 1.3
	panXExpr   = "(iw-ow)/2*(1+sin(n*0.005))"
	panYExpr   = "(ih-oh)/2*(1+cos(n*0.004))"
)

// outroAsset is the channel outro clip under the assets directory.
const outroAsset = "outro.mp4"

// renderShort renders one short: trim the window out of both trimmed
// sources, stack them vertically with karaoke captions burned in, then
// append the outro by stream copy. Returns the sandbox-relative path.
func (s *Stage) renderShort(ctx context.Context, state *core.State, index int, sug Suggestion, transcript *speech.Transcription) (string, error) {
	if err := state.Sandbox.MkdirAll(storage.DirTemp); err != nil {
		return "", err
	}

	assName := fmt.Sprintf("%s/short_%d.ass", storage.DirTemp, index)
	script := subtitle.KaraokeASS(toSubtitleSegments(transcript.Segments), sug.Start, sug.End)
	if err := state.Sandbox.WriteFile(assName, []byte(script)); err != nil {
		return "", err
	}
	assPath, err := state.Sandbox.ResolvePath(assName)
	if err != nil {
		return "", err
	}

	contentName := fmt.Sprintf("%s/short_content_%d.mp4", storage.DirTemp, index)
	if err := s.renderContent(ctx, state, sug, assPath, contentName); err != nil {
		return "", err
	}

	finalName := fmt.Sprintf("%s/short_%d.mp4", storage.DirShorts, index)

	outroName, err := s.prepareOutro(ctx, state)
	if err != nil {
		// A broken outro asset costs the outro, not the short.
		state.AddError(fmt.Errorf("preparing outro: %w", err))
		outroName = ""
	}
	if outroName == "" {
		if err := state.Sandbox.Rename(contentName, finalName); err != nil {
			return "", err
		}
		return finalName, nil
	}

	if err := s.concat(ctx, state, index, contentName, outroName, finalName); err != nil {
		return "", err
	}
	if err := state.Sandbox.Remove(contentName); err != nil {
		s.logger.Warn("temp content not removed", "error", err)
	}
	return finalName, nil
}

// renderContent encodes the highlight window as a vertical clip with the
// captions burned in.
func (s *Stage) renderContent(ctx context.Context, state *core.State, sug Suggestion, assPath, outputName string) error {
	screen, err := state.Sandbox.ResolvePath(storage.FileScreenTrimmed)
	if err != nil {
		return err
	}
	output, err := state.Sandbox.ResolvePath(outputName)
	if err != nil {
		return err
	}

	hasWebcam, err := state.Sandbox.Exists(storage.FileWebcamTrimmed)
	if err != nil {
		return err
	}

	builder := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(screen)

	var graph string
	if hasWebcam {
		webcam, err := state.Sandbox.ResolvePath(storage.FileWebcamTrimmed)
		if err != nil {
			return err
		}
		builder.Input(webcam)
		graph = stackedGraph(sug.Start, sug.End, assPath)
	} else {
		graph = screenOnlyGraph(sug.Start, sug.End, assPath)
	}

	cmd := builder.
		FilterComplex(graph).
		Map("[vout]").
		Map("[aout]").
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18).
		FrameRate(30).
		PixelFormat("yuv420p").
		AudioCodec("aac").
		AudioBitrate("192k").
		AudioSampleRate(44100).
		OutputArgs("-movflags", "+faststart").
		Output(output).
		Build()

	return shared.RunLogged(ctx, s.logger, cmd, "short content")
}

// stackedGraph trims the window out of both sources and stacks the zoomed
// screen over the zoomed webcam.
func stackedGraph(start, end float64, assPath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[0:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS,crop=iw/%.1f:ih/%.1f:x='%s':y='%s',scale=%d:%d,setsar=1[screen];",
		start, end, screenZoom, screenZoom, panXExpr, panYExpr, shortWidth, paneHeight)
	fmt.Fprintf(&sb, "[1:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS,crop=iw/%.1f:ih/%.1f,scale=%d:%d,setsar=1[cam];",
		start, end, webcamZoom, webcamZoom, shortWidth, paneHeight)
	fmt.Fprintf(&sb, "[screen][cam]vstack=inputs=2,ass=%s[vout];", assPath)
	fmt.Fprintf(&sb, "[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[aout]", start, end)
	return sb.String()
}

// screenOnlyGraph center-crops the screen to portrait when no webcam track
// exists.
func screenOnlyGraph(start, end float64, assPath string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[0:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS,crop=ih*9/16:ih,scale=%d:%d,setsar=1,ass=%s[vout];",
		start, end, shortWidth, shortHeight, assPath)
	fmt.Fprintf(&sb, "[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[aout]", start, end)
	return sb.String()
}

// prepareOutro re-encodes the outro asset once per run to match the content
// clips, so the final join is a stream copy. Returns "" when the channel has
// no outro asset.
func (s *Stage) prepareOutro(ctx context.Context, state *core.State) (string, error) {
	if s.outroName != "" {
		return s.outroName, nil
	}
	if s.deps.AssetsDir == "" {
		return "", nil
	}

	source := filepath.Join(s.deps.AssetsDir, outroAsset)
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	outroName := storage.DirTemp + "/short_outro.mp4"
	output, err := state.Sandbox.ResolvePath(outroName)
	if err != nil {
		return "", err
	}

	graph := fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[vout];"+
			"[0:a]anull[aout]",
		shortWidth, shortHeight, shortWidth, shortHeight)

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(source).
		FilterComplex(graph).
		Map("[vout]").
		Map("[aout]").
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18).
		FrameRate(30).
		PixelFormat("yuv420p").
		AudioCodec("aac").
		AudioBitrate("192k").
		AudioSampleRate(44100).
		Duration(outroSeconds).
		Output(output).
		Build()

	if err := shared.RunLogged(ctx, s.logger, cmd, "short outro"); err != nil {
		return "", err
	}

	s.outroName = outroName
	return outroName, nil
}

// concat joins content and outro with the concat demuxer, stream copied.
func (s *Stage) concat(ctx context.Context, state *core.State, index int, contentName, outroName, finalName string) error {
	content, err := state.Sandbox.ResolvePath(contentName)
	if err != nil {
		return err
	}
	outro, err := state.Sandbox.ResolvePath(outroName)
	if err != nil {
		return err
	}
	final, err := state.Sandbox.ResolvePath(finalName)
	if err != nil {
		return err
	}

	listName := fmt.Sprintf("%s/short_concat_%d.txt", storage.DirTemp, index)
	list := fmt.Sprintf("file '%s'\nfile '%s'\n", content, outro)
	if err := state.Sandbox.WriteFile(listName, []byte(list)); err != nil {
		return err
	}
	listPath, err := state.Sandbox.ResolvePath(listName)
	if err != nil {
		return err
	}
	defer func() {
		if err := state.Sandbox.Remove(listName); err != nil {
			s.logger.Warn("concat list not removed", "error", err)
		}
	}()

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		InputArgs("-f", "concat", "-safe", "0").
		Input(listPath).
		OutputArgs("-c", "copy").
		Output(final).
		Build()

	return cmd.Run(ctx)
}

// toSubtitleSegments converts transcript spans for the caption renderer.
func toSubtitleSegments(segments []speech.Segment) []subtitle.Segment {
	out := make([]subtitle.Segment, len(segments))
	for i, seg := range segments {
		out[i] = subtitle.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	return out
}
