// Package convert implements the source normalization stage: raw uploads
// are re-encoded to constant-framerate H.264 so every later stage works
// against predictable inputs.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 0
	// StageID is the unique identifier for this stage.
	StageID = "convert"
	// StageName is the human-readable name for this stage.
	StageName = "Convert"
)

// Stage normalizes the raw screen and webcam recordings.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new convert stage.
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

// Execute re-encodes the raw uploads into screen.mp4 and webcam.mp4.
// The screen recording is required; the webcam is optional (screen-only
// layouts). Raw inputs are deleted once their normalized copy exists.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	rawScreen, err := findRaw(state.Sandbox, storage.RawScreenPrefix)
	if err != nil {
		return result, err
	}
	rawWebcam, err := findRaw(state.Sandbox, storage.RawWebcamPrefix)
	if err != nil {
		return result, err
	}

	if rawScreen == "" {
		return result, fmt.Errorf("%w: no %s.* upload found", core.ErrMissingArtifact, storage.RawScreenPrefix)
	}

	if err := s.normalize(ctx, state, rawScreen, storage.FileScreen, false); err != nil {
		return result, fmt.Errorf("normalizing screen recording: %w", err)
	}
	result.Outputs["screen"] = storage.FileScreen
	result.ItemsProcessed++

	if rawWebcam != "" {
		// The webcam track's audio is a duplicate of the screen capture;
		// drop it here so downstream filters never pick the wrong stream.
		if err := s.normalize(ctx, state, rawWebcam, storage.FileWebcam, true); err != nil {
			return result, fmt.Errorf("normalizing webcam recording: %w", err)
		}
		result.Outputs["webcam"] = storage.FileWebcam
		result.ItemsProcessed++
	}

	for _, raw := range []string{rawScreen, rawWebcam} {
		if raw == "" {
			continue
		}
		if err := state.Sandbox.Remove(raw); err != nil {
			state.AddError(fmt.Errorf("removing raw upload %s: %w", raw, err))
			s.logger.Warn("raw upload not removed", "file", raw, "error", err)
		}
	}

	result.Message = fmt.Sprintf("normalized %d source(s)", result.ItemsProcessed)
	return result, nil
}

// normalize re-encodes one raw recording to the pipeline's mezzanine
// format: 60 fps constant framerate H.264 with faststart.
func (s *Stage) normalize(ctx context.Context, state *core.State, rawName, outName string, dropAudio bool) error {
	inPath, err := state.Sandbox.ResolvePath(rawName)
	if err != nil {
		return err
	}
	outPath, err := state.Sandbox.ResolvePath(outName)
	if err != nil {
		return err
	}

	b := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(inPath).
		FrameRate(60).
		OutputArgs("-vsync", "cfr").
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18)
	if dropAudio {
		b.NoAudio()
	} else {
		b.AudioCodec("aac").AudioBitrate("192k")
	}
	cmd := b.OutputArgs("-movflags", "+faststart").
		Output(outPath).
		Build()

	if err := shared.RunLogged(ctx, state.Logger, cmd, "convert "+rawName); err != nil {
		return err
	}
	return nil
}

// findRaw returns the first root entry whose name starts with prefix,
// or "" if none exists.
func findRaw(sandbox *storage.Sandbox, prefix string) (string, error) {
	entries, err := sandbox.List(".")
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix+".") {
			return entry.Name(), nil
		}
	}
	return "", nil
}
