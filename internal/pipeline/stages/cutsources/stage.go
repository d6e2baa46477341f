// Package cutsources implements the source-cut stage: the silence cut
// plan is replayed against the separate screen and webcam recordings so
// the shorts stage can recompose them vertically.
package cutsources

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
	StageIndex = 3
	// StageID is the unique identifier for this stage.
	StageID = "cut_sources"
	// StageName is the human-readable name for this stage.
	StageName = "Cut Sources"
)

// Stage applies the silence cut plan to the separate sources.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new cut-sources stage.
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

// Execute cuts screen.mp4 and webcam.mp4 with the ranges from
// segments.json. The plan must exist: the silence stage is its sole
// producer, so a missing plan means the chain is broken. Canvas projects
// have no separate sources and succeed with zero outputs.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	planExists, err := state.Sandbox.Exists(storage.FileSegments)
	if err != nil {
		return result, err
	}
	if !planExists {
		return result, fmt.Errorf("%w: %s", core.ErrMissingArtifact, storage.FileSegments)
	}

	var doc shared.SegmentsDoc
	if err := shared.ReadJSON(state.Sandbox, storage.FileSegments, &doc); err != nil {
		return result, err
	}
	if len(doc.Segments) == 0 {
		return result, fmt.Errorf("cut plan %s holds no segments", storage.FileSegments)
	}

	hasScreen, err := state.Sandbox.Exists(storage.FileScreen)
	if err != nil {
		return result, err
	}
	if !hasScreen {
		// Canvas recordings never had separate sources to cut.
		result.Message = "no separate sources, nothing to cut"
		return result, nil
	}

	if err := s.cut(ctx, state, doc.Segments, storage.FileScreen, storage.FileScreenTrimmed, false); err != nil {
		return result, fmt.Errorf("cutting screen recording: %w", err)
	}
	result.Outputs["screen_trimmed"] = storage.FileScreenTrimmed
	result.ItemsProcessed++

	hasWebcam, err := state.Sandbox.Exists(storage.FileWebcam)
	if err != nil {
		return result, err
	}
	if hasWebcam {
		if err := s.cut(ctx, state, doc.Segments, storage.FileWebcam, storage.FileWebcamTrimmed, true); err != nil {
			return result, fmt.Errorf("cutting webcam recording: %w", err)
		}
		result.Outputs["webcam_trimmed"] = storage.FileWebcamTrimmed
		result.ItemsProcessed++
	}

	result.Message = fmt.Sprintf("cut %d source(s) into %d segments", result.ItemsProcessed, len(doc.Segments))
	return result, nil
}

// cut replays the kept ranges against one source. The webcam's audio was
// already dropped at normalization; keep it dropped here too.
func (s *Stage) cut(ctx context.Context, state *core.State, segments []shared.Segment, inName, outName string, dropAudio bool) error {
	in, err := state.Sandbox.ResolvePath(inName)
	if err != nil {
		return err
	}
	out, err := state.Sandbox.ResolvePath(outName)
	if err != nil {
		return err
	}

	expr := selectExpr(segments)
	b := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(in).
		VideoFilter(fmt.Sprintf("select='%s',setpts=N/FRAME_RATE/TB", expr))
	if dropAudio {
		b.NoAudio()
	} else {
		b.AudioFilter(fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", expr)).
			AudioCodec("aac").
			AudioBitrate("192k")
	}
	cmd := b.VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18).
		OutputArgs("-movflags", "+faststart").
		Output(out).
		Build()

	return shared.RunLogged(ctx, state.Logger, cmd, "cut "+inName)
}

// selectExpr renders the kept ranges as a select/aselect expression.
func selectExpr(segments []shared.Segment) string {
	terms := make([]string, 0, len(segments))
	for _, seg := range segments {
		terms = append(terms, fmt.Sprintf("between(t,%g,%g)", seg.Start, seg.End))
	}
	return strings.Join(terms, "+")
}
