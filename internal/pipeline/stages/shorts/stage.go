// Package shorts implements the vertical shorts stage: the language model
// proposes highlight windows over the transcript, and each one is rendered
// as a 1080x1920 short with karaoke captions and the channel outro.
package shorts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 5
	// StageID is the unique identifier for this stage.
	StageID = "shorts"
	// StageName is the human-readable name for this stage.
	StageName = "Shorts"
)

// Duration budget: the platform caps shorts at 30 s, the outro takes its
// fixed share, content gets the rest. Anything under three seconds has no
// room to make a point and is dropped.
const (
	outroSeconds      = 4.0
	maxContentSeconds = 26.0
	minContentSeconds = 3.0
	fallbackWindow    = 15.0
)

// DefaultMaxShorts caps suggestions when nothing else does.
const DefaultMaxShorts = 3

// SuggestionsFile is the shorts plan artifact.
const SuggestionsFile = "shorts_suggestions.json"

// Suggestion is one proposed highlight window, in trimmed-timeline seconds.
// The description is the model's own summary of the moment; downstream
// metadata generation uses it as context.
type Suggestion struct {
	Title       string  `json:"title"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Description string  `json:"description,omitempty"`
}

// SuggestionsDoc is the shorts_suggestions.json artifact.
type SuggestionsDoc struct {
	Suggestions []Suggestion `json:"suggestions"`
	Rendered    []string     `json:"rendered"`
}

// Stage renders vertical shorts from the trimmed sources.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger

	// outroName caches the re-encoded outro path for the current run.
	outroName string
}

// New creates a new shorts stage.
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

// Execute proposes and renders shorts. Zero rendered shorts is success:
// a lesson without a strong highlight simply publishes without them, and
// canvas projects have no separate sources to recompose.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	hasScreen, err := state.Sandbox.Exists(storage.FileScreenTrimmed)
	if err != nil {
		return result, err
	}
	if !hasScreen {
		result.Message = "no separate sources, skipping shorts"
		return result, nil
	}

	if s.deps.LLM == nil || !s.deps.LLM.Configured() {
		result.Message = "language model not configured, skipping shorts"
		return result, nil
	}

	var transcript speech.Transcription
	if err := shared.ReadJSON(state.Sandbox, storage.FileTranscription, &transcript); err != nil {
		return result, fmt.Errorf("reading transcript: %w", err)
	}

	maxShorts := state.Project.Config.MaxShorts
	if maxShorts <= 0 {
		maxShorts = s.deps.MaxShorts
	}
	if maxShorts <= 0 {
		maxShorts = DefaultMaxShorts
	}

	suggestions, err := s.suggest(ctx, &transcript, maxShorts)
	if err != nil {
		return result, fmt.Errorf("suggesting shorts: %w", err)
	}

	for i := range suggestions {
		suggestions[i] = normalizeWindow(suggestions[i], transcript.Segments)
	}

	doc := SuggestionsDoc{Suggestions: suggestions}
	if err := state.Sandbox.MkdirAll(storage.DirShorts); err != nil {
		return result, err
	}

	for i, sug := range suggestions {
		if state.WindingDown() {
			s.logger.Warn("soft deadline passed, stopping short rendering",
				slog.Int("rendered", len(doc.Rendered)))
			break
		}
		if d := sug.End - sug.Start; d < minContentSeconds || d > maxContentSeconds {
			state.AddError(fmt.Errorf("short %d: window %.1f-%.1fs lands outside the %g-%gs budget", i, sug.Start, sug.End, minContentSeconds, maxContentSeconds))
			s.logger.Warn("short window rejected",
				slog.Int("index", i), slog.Float64("duration_s", d))
			continue
		}
		relPath, err := s.renderShort(ctx, state, i, sug, &transcript)
		if err != nil {
			// One bad short never sinks the batch.
			state.AddError(fmt.Errorf("rendering short %d: %w", i, err))
			s.logger.Warn("short rendering failed", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		doc.Rendered = append(doc.Rendered, relPath)
		result.Outputs[fmt.Sprintf("short_%d", i)] = relPath
	}

	if err := shared.WriteJSON(state.Sandbox, SuggestionsFile, &doc); err != nil {
		return result, err
	}
	result.Outputs["shorts_suggestions"] = SuggestionsFile
	result.ItemsProcessed = len(doc.Rendered)
	result.Message = fmt.Sprintf("%d of %d shorts rendered", len(doc.Rendered), len(suggestions))
	return result, nil
}

// suggest asks the language model for highlight windows.
func (s *Stage) suggest(ctx context.Context, transcript *speech.Transcription, maxShorts int) ([]Suggestion, error) {
	answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.TextMessage("user", suggestionPrompt(transcript, maxShorts))},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return nil, err
	}

	var suggestions []Suggestion
	if err := shared.UnmarshalModelJSON(answer, &suggestions); err != nil {
		return nil, fmt.Errorf("parsing suggestions: %w", err)
	}
	if len(suggestions) > maxShorts {
		suggestions = suggestions[:maxShorts]
	}
	for i := range suggestions {
		title := strings.TrimSpace(suggestions[i].Title)
		if !strings.Contains(strings.ToLower(title), "#shorts") {
			title += " #shorts"
		}
		suggestions[i].Title = title
	}
	return suggestions, nil
}

// suggestionPrompt renders the timestamped transcript with the ask.
func suggestionPrompt(transcript *speech.Transcription, maxShorts int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Voici la transcription horodatee d'une lecon video. ")
	fmt.Fprintf(&sb, "Propose jusqu'a %d extraits percutants de 15 a %.0f secondes pour des Shorts verticaux. ", maxShorts, maxContentSeconds)
	sb.WriteString("Chaque extrait doit commencer au debut d'une phrase et finir a la fin d'une phrase, en reprenant exactement les timestamps fournis. ")
	sb.WriteString("Reponds uniquement avec un tableau JSON d'objets {\"title\", \"start\", \"end\", \"description\"} (secondes).\n\n")
	for _, seg := range transcript.Segments {
		fmt.Fprintf(&sb, "[%.1f - %.1f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	return sb.String()
}

// normalizeWindow aligns one suggested window onto transcript sentence
// boundaries so a short never cuts mid-phrase: the start moves to the
// nearest segment start, the end to the nearest segment end. A window
// inverted by snapping falls back to a fixed length.
func normalizeWindow(sug Suggestion, segments []speech.Segment) Suggestion {
	if len(segments) == 0 {
		return sug
	}

	starts := make([]float64, len(segments))
	ends := make([]float64, len(segments))
	for i, seg := range segments {
		starts[i] = seg.Start
		ends[i] = seg.End
	}

	sug.Start = snap(sug.Start, starts)
	sug.End = snap(sug.End, ends)
	if sug.End <= sug.Start {
		sug.End = sug.Start + fallbackWindow
	}
	return sug
}

// snap moves v to the nearest boundary by absolute distance.
func snap(v float64, boundaries []float64) float64 {
	if len(boundaries) == 0 {
		return v
	}
	best := boundaries[0]
	bestDist := math.Abs(v - best)
	for _, b := range boundaries[1:] {
		if d := math.Abs(v - b); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}
