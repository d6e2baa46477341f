// Package silence implements the silence trimming stage: dead air in the
// composed recording is detected, the kept speech ranges are written to
// segments.json, and the trimmed cut lands in nosilence.mp4.
package silence

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
	StageIndex = 2
	// StageID is the unique identifier for this stage.
	StageID = "silence"
	// StageName is the human-readable name for this stage.
	StageName = "Trim Silence"
)

// Cut plan tuning. Padding keeps a breath around each kept range, the
// merge gap absorbs micro-pauses, and the minimum length drops blips.
const (
	paddingSeconds = 0.1
	mergeGap       = 0.5
	minSegment     = 0.1
)

// Stage trims silences out of the composed recording.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new silence stage.
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

// Execute detects silences in original.mp4, persists the cut plan, and
// encodes nosilence.mp4. The plan is written before the encode so a
// failed encode still leaves segments.json for the source-cut stage and
// for inspection.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	input, err := state.Sandbox.ResolvePath(storage.FileOriginal)
	if err != nil {
		return result, err
	}

	total, err := s.deps.Prober.Duration(ctx, input)
	if err != nil {
		return result, fmt.Errorf("probing recording duration: %w", err)
	}

	silences, err := s.deps.Silence.Detect(ctx, input)
	if err != nil {
		return result, fmt.Errorf("detecting silences: %w", err)
	}

	kept := ffmpeg.SpeechSegments(silences, total, paddingSeconds, mergeGap, minSegment)
	if len(kept) == 0 {
		return result, fmt.Errorf("recording contains no speech to keep")
	}

	doc := buildDoc(kept, silences, total)
	doc.ThresholdDB = s.deps.Silence.ThresholdDB()
	doc.MinSilence = s.deps.Silence.MinSilence
	doc.Padding = paddingSeconds
	if err := shared.WriteJSON(state.Sandbox, storage.FileSegments, &doc); err != nil {
		return result, fmt.Errorf("writing cut plan: %w", err)
	}
	result.Outputs["segments"] = storage.FileSegments

	output, err := state.Sandbox.ResolvePath(storage.FileNoSilence)
	if err != nil {
		return result, err
	}

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(input).
		VideoFilter(fmt.Sprintf("select='%s',setpts=N/FRAME_RATE/TB", selectExpr(doc.Segments))).
		AudioFilter(fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", selectExpr(doc.Segments))).
		VideoCodec("libx264").
		VideoPreset("fast").
		CRF(18).
		AudioCodec("aac").
		AudioBitrate("192k").
		OutputArgs("-movflags", "+faststart").
		Output(output).
		Build()

	if err := shared.RunLogged(ctx, state.Logger, cmd, "trim silence"); err != nil {
		return result, err
	}

	result.Outputs["nosilence"] = storage.FileNoSilence
	result.ItemsProcessed = len(doc.Segments)
	result.Message = fmt.Sprintf("%d segments kept, %.1f%% trimmed", len(doc.Segments), doc.ReductionPct)

	s.logger.Info("silence trimmed",
		slog.Int("segments", len(doc.Segments)),
		slog.Float64("total_s", total),
		slog.Float64("kept_s", doc.KeptDuration),
	)
	return result, nil
}

// buildDoc converts the detector's intervals into the segments.json
// artifact with its reduction summary. Open-ended silences are clamped
// to the end of the recording.
func buildDoc(kept, silences []ffmpeg.Interval, total float64) shared.SegmentsDoc {
	doc := shared.SegmentsDoc{
		Segments:         make([]shared.Segment, 0, len(kept)),
		Silences:         make([]shared.Segment, 0, len(silences)),
		OriginalDuration: total,
	}
	for _, iv := range kept {
		doc.Segments = append(doc.Segments, shared.Segment{Start: iv.Start, End: iv.End})
		doc.KeptDuration += iv.Duration()
	}
	for _, iv := range silences {
		end := iv.End
		if end < 0 || end > total {
			end = total
		}
		doc.Silences = append(doc.Silences, shared.Segment{Start: iv.Start, End: end})
	}
	if total > 0 {
		doc.ReductionPct = (1 - doc.KeptDuration/total) * 100
	}
	return doc
}

// selectExpr renders the kept ranges as a select/aselect expression.
func selectExpr(segments []shared.Segment) string {
	terms := make([]string, 0, len(segments))
	for _, seg := range segments {
		terms = append(terms, fmt.Sprintf("between(t,%g,%g)", seg.Start, seg.End))
	}
	return strings.Join(terms, "+")
}
