// Package illustrate implements the b-roll overlay stage: the stock clips
// downloaded earlier get normalized to the canvas format and burned over
// the trimmed recording at their suggested timestamps.
package illustrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/broll"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 7
	// StageID is the unique identifier for this stage.
	StageID = "illustrate"
	// StageName is the human-readable name for this stage.
	StageName = "Illustrate"
)

// Overlay geometry and bounds. Clips longer than maxOverlaySeconds get cut;
// a longer cutaway hides too much of the lesson.
const (
	canvasWidth       = 1920
	canvasHeight      = 1080
	overlayFrameRate  = 30
	maxOverlaySeconds = 3.0
)

// overlayClip is one normalized clip scheduled on the main timeline.
type overlayClip struct {
	path  string
	start float64
	end   float64
}

// Stage burns b-roll overlays into the trimmed recording.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new illustrate stage.
func New(deps *core.Dependencies) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageIndex, StageID, StageName),
		deps:      deps,
		logger:    deps.Logger.With("stage", StageID),
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps)
	}
}

var _ core.Stage = (*Stage)(nil)

// Execute produces illustrated.mp4. Without usable clips the trimmed
// recording is carried over untouched, so every later stage can rely on the
// artifact existing.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	duration, err := s.deps.Prober.Duration(ctx, mustResolve(state, storage.FileNoSilence))
	if err != nil {
		return result, fmt.Errorf("probing recording: %w", err)
	}

	clips, err := s.loadClips(state, duration)
	if err != nil {
		return result, err
	}

	if len(clips) == 0 {
		if err := s.carryOver(state); err != nil {
			return result, err
		}
		result.Outputs["illustrated"] = storage.FileIllustrated
		result.Message = "no b-roll clips, recording carried over"
		return result, nil
	}

	normalized, err := s.normalizeClips(ctx, state, clips)
	if err != nil {
		return result, err
	}
	defer func() {
		for _, clip := range normalized {
			if err := state.Sandbox.Remove(clip.path); err != nil {
				s.logger.Warn("temp clip not removed", "error", err)
			}
		}
	}()

	if err := s.overlay(ctx, state, normalized, duration); err != nil {
		return result, fmt.Errorf("overlaying clips: %w", err)
	}

	result.Outputs["illustrated"] = storage.FileIllustrated
	result.ItemsProcessed = len(normalized)
	result.Message = fmt.Sprintf("%d clips overlaid", len(normalized))
	return result, nil
}

// loadClips reads the b-roll manifest and drops entries that fall outside
// the recording or whose file is missing.
func (s *Stage) loadClips(state *core.State, duration float64) ([]broll.DownloadedClip, error) {
	exists, err := state.Sandbox.Exists(broll.ClipsFile)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var doc broll.ClipsDoc
	if err := shared.ReadJSON(state.Sandbox, broll.ClipsFile, &doc); err != nil {
		return nil, fmt.Errorf("reading clip manifest: %w", err)
	}

	var usable []broll.DownloadedClip
	for _, clip := range doc.Clips {
		if clip.Timestamp < 0 || clip.Timestamp >= duration {
			s.logger.Warn("clip timestamp outside recording, dropped",
				slog.String("keyword", clip.Keyword), slog.Float64("timestamp", clip.Timestamp))
			continue
		}
		present, err := state.Sandbox.Exists(clip.File)
		if err != nil {
			return nil, err
		}
		if !present {
			s.logger.Warn("clip file missing, dropped", slog.String("file", clip.File))
			continue
		}
		usable = append(usable, clip)
	}
	return usable, nil
}

// carryOver copies the trimmed recording to the illustrated artifact.
func (s *Stage) carryOver(state *core.State) error {
	src, err := state.Sandbox.OpenFile(storage.FileNoSilence, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer src.Close()
	return state.Sandbox.AtomicWriteReader(storage.FileIllustrated, src)
}

// normalizeClips re-encodes every clip to the canvas format: letterboxed
// 1920x1080, 30 fps, silent, cut to the overlay duration bound.
func (s *Stage) normalizeClips(ctx context.Context, state *core.State, clips []broll.DownloadedClip) ([]overlayClip, error) {
	if err := state.Sandbox.MkdirAll(storage.DirTemp); err != nil {
		return nil, err
	}

	out := make([]overlayClip, 0, len(clips))
	for i, clip := range clips {
		length := clip.Duration
		if length <= 0 || length > maxOverlaySeconds {
			length = maxOverlaySeconds
		}

		name := fmt.Sprintf("%s/broll_norm_%d.mp4", storage.DirTemp, i)
		output, err := state.Sandbox.ResolvePath(name)
		if err != nil {
			return nil, err
		}

		cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
			HideBanner().
			Overwrite().
			Input(mustResolve(state, clip.File)).
			VideoFilter(letterboxFilter()).
			VideoCodec("libx264").
			VideoPreset("fast").
			CRF(18).
			PixelFormat("yuv420p").
			NoAudio().
			Duration(length).
			Output(output).
			Build()
		if err := shared.RunLogged(ctx, s.logger, cmd, "b-roll normalize"); err != nil {
			return nil, fmt.Errorf("normalizing clip %d: %w", i, err)
		}

		out = append(out, overlayClip{path: name, start: clip.Timestamp, end: clip.Timestamp + length})
	}
	return out, nil
}

// letterboxFilter scales into the canvas keeping aspect, pads the rest, and
// locks the frame rate.
func letterboxFilter() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		canvasWidth, canvasHeight, canvasWidth, canvasHeight, overlayFrameRate)
}

// overlay burns all clips over the recording in one encode. Each overlay
// input gets its presentation timestamps shifted to its slot and is only
// enabled inside that window; audio is copied straight from the recording.
func (s *Stage) overlay(ctx context.Context, state *core.State, clips []overlayClip, duration float64) error {
	builder := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(mustResolve(state, storage.FileNoSilence))
	for _, clip := range clips {
		builder.Input(mustResolve(state, clip.path))
	}

	cmd := builder.
		FilterComplex(overlayGraph(clips)).
		Map("[vout]").
		Map("0:a").
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18).
		PixelFormat("yuv420p").
		OutputArgs("-c:a", "copy").
		Duration(duration).
		OutputArgs("-movflags", "+faststart").
		Output(mustResolve(state, storage.FileIllustrated)).
		Build()

	return shared.RunLogged(ctx, s.logger, cmd, "b-roll overlay")
}

// overlayGraph chains one shifted overlay per clip onto the main video.
func overlayGraph(clips []overlayClip) string {
	var sb strings.Builder
	last := "[0:v]"
	for i, clip := range clips {
		fmt.Fprintf(&sb, "[%d:v]setpts=PTS+%.3f/TB[c%d];", i+1, clip.start, i)
		label := fmt.Sprintf("[v%d]", i)
		if i == len(clips)-1 {
			label = "[vout]"
		}
		fmt.Fprintf(&sb, "%s[c%d]overlay=0:0:enable='between(t,%.3f,%.3f)':eof_action=pass%s",
			last, i, clip.start, clip.end, label)
		if i < len(clips)-1 {
			sb.WriteString(";")
		}
		last = label
	}
	return sb.String()
}

// mustResolve resolves a known-good sandbox name. The names passed here are
// package constants or manifest entries already validated by Exists.
func mustResolve(state *core.State, name string) string {
	path, err := state.Sandbox.ResolvePath(name)
	if err != nil {
		return name
	}
	return path
}
