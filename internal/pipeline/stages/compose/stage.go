// Package compose implements the composition stage: the normalized screen
// and webcam recordings are merged into one canvas according to the
// project's layout, or the pre-composited canvas recording is normalized.
package compose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vibeacademy/vidarr/internal/config"
	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 1
	// StageID is the unique identifier for this stage.
	StageID = "compose"
	// StageName is the human-readable name for this stage.
	StageName = "Compose"
)

// Hard defaults when neither the project nor the config override them.
const (
	defaultWebcamX     = 1486
	defaultWebcamY     = 645
	defaultWebcamSize  = 389
	defaultShape       = "circle"
	defaultBorderColor = "#FFB6C1"
	defaultBorderWidth = 4
)

// Stage composes the project's sources into original.mp4.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new compose stage.
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

// Execute produces original.mp4 from the project's sources.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if state.Project.CanvasMode {
		if err := s.normalizeCanvas(ctx, state); err != nil {
			return result, fmt.Errorf("normalizing canvas recording: %w", err)
		}
		result.Outputs["original"] = storage.FileOriginal
		result.Message = "canvas recording normalized"
		return result, nil
	}

	p := resolveParams(state.Project.Config, s.deps.Compose)

	hasWebcam, err := state.Sandbox.Exists(storage.FileWebcam)
	if err != nil {
		return result, err
	}

	switch {
	case p.layout == "screen_only" || !hasWebcam:
		if err := s.remuxScreen(ctx, state); err != nil {
			return result, fmt.Errorf("remuxing screen recording: %w", err)
		}
		result.Message = "screen-only composition"
	default:
		if err := s.composeLayout(ctx, state, p); err != nil {
			return result, fmt.Errorf("composing %s layout: %w", p.layout, err)
		}
		result.Message = fmt.Sprintf("%s layout composed", p.layout)
	}

	result.Outputs["original"] = storage.FileOriginal
	return result, nil
}

// resolveParams layers project config over global defaults over the
// built-in geometry.
func resolveParams(cfg models.ProjectConfig, defaults config.ComposeConfig) params {
	p := params{
		layout:      cfg.Layout,
		webcamX:     firstPositive(cfg.WebcamX, defaults.WebcamX, defaultWebcamX),
		webcamY:     firstPositive(cfg.WebcamY, defaults.WebcamY, defaultWebcamY),
		webcamSize:  firstPositive(cfg.WebcamSize, defaults.WebcamSize, defaultWebcamSize),
		shape:       firstNonEmpty(cfg.WebcamShape, defaults.WebcamShape, defaultShape),
		borderColor: firstNonEmpty(cfg.BorderColor, defaults.BorderColor, defaultBorderColor),
		borderWidth: firstPositive(cfg.BorderWidth, defaults.BorderWidth, defaultBorderWidth),
		switches:    cfg.LayoutSwitches,
	}
	if p.layout == "" || p.layout == "composite" {
		p.layout = "overlay"
	}
	return p
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// normalizeCanvas re-encodes the browser's pre-composited recording into
// the pipeline's mezzanine format.
func (s *Stage) normalizeCanvas(ctx context.Context, state *core.State) error {
	in, err := state.Sandbox.ResolvePath(storage.FileCombined)
	if err != nil {
		return err
	}
	out, err := state.Sandbox.ResolvePath(storage.FileOriginal)
	if err != nil {
		return err
	}

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(in).
		VideoFilter(fmt.Sprintf("fps=30,scale=%d:%d:flags=lanczos", canvasWidth, canvasHeight)).
		VideoCodec("libx264").
		VideoPreset("medium").
		CRF(18).
		AudioCodec("aac").
		AudioBitrate("256k").
		AudioSampleRate(48000).
		OutputArgs("-movflags", "+faststart").
		Output(out).
		Build()

	return shared.RunLogged(ctx, state.Logger, cmd, "compose canvas")
}

// remuxScreen copies the screen recording straight through; nothing to
// composite.
func (s *Stage) remuxScreen(ctx context.Context, state *core.State) error {
	in, err := state.Sandbox.ResolvePath(storage.FileScreen)
	if err != nil {
		return err
	}
	out, err := state.Sandbox.ResolvePath(storage.FileOriginal)
	if err != nil {
		return err
	}

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(in).
		OutputArgs("-c", "copy").
		Output(out).
		Build()

	return cmd.Run(ctx)
}

// composeLayout runs the two-input filtergraph for the resolved layout.
func (s *Stage) composeLayout(ctx context.Context, state *core.State, p params) error {
	screen, err := state.Sandbox.ResolvePath(storage.FileScreen)
	if err != nil {
		return err
	}
	webcam, err := state.Sandbox.ResolvePath(storage.FileWebcam)
	if err != nil {
		return err
	}
	out, err := state.Sandbox.ResolvePath(storage.FileOriginal)
	if err != nil {
		return err
	}

	var graph string
	switch p.layout {
	case "webcam_only":
		graph = webcamOnlyGraph(p)
	case "side_by_side":
		graph = sideBySideGraph()
	default:
		duration := 0.0
		if len(p.switches) > 0 {
			duration, err = s.deps.Prober.Duration(ctx, screen)
			if err != nil {
				return fmt.Errorf("probing screen duration: %w", err)
			}
		}
		graph = overlayGraph(p, duration)
	}

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(screen).
		Input(webcam).
		FilterComplex(graph).
		Map("[vout]").
		Map("0:a?").
		VideoCodec("libx264").
		VideoPreset("medium").
		CRF(18).
		AudioCodec("aac").
		AudioBitrate("256k").
		AudioSampleRate(48000).
		OutputArgs("-movflags", "+faststart").
		Output(out).
		Build()

	return shared.RunLogged(ctx, state.Logger, cmd, "compose "+p.layout)
}
