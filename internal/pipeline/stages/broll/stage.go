// Package broll implements the b-roll sourcing stage: the language model
// proposes illustration moments over the transcript and each keyword gets a
// stock clip pulled from Pexels into the project's broll directory.
package broll

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 6
	// StageID is the unique identifier for this stage.
	StageID = "broll"
	// StageName is the human-readable name for this stage.
	StageName = "B-Roll"
)

// Clip duration bounds in seconds, matching what the overlay stage will
// accept.
const (
	minClipSeconds = 2.0
	maxClipSeconds = 4.0
)

// DefaultMaxClips caps suggestions when nothing else does.
const DefaultMaxClips = 5

// Artifact names.
const (
	SuggestionsFile = "broll_suggestions.json"
	ClipsFile       = "broll_clips.json"
)

// Suggestion is one proposed illustration moment. The keyword is in English
// because the stock library searches English terms regardless of the lesson
// language.
type Suggestion struct {
	Keyword     string  `json:"keyword"`
	Timestamp   float64 `json:"timestamp"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// DownloadedClip records one fetched stock clip.
type DownloadedClip struct {
	Keyword      string  `json:"keyword"`
	Timestamp    float64 `json:"timestamp"`
	Duration     float64 `json:"duration"`
	File         string  `json:"file"`
	SourceURL    string  `json:"source_url"`
	Photographer string  `json:"photographer,omitempty"`
}

// ClipsDoc is the broll_clips.json artifact.
type ClipsDoc struct {
	Clips []DownloadedClip `json:"clips"`
}

// Stage sources stock footage for the lesson.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new b-roll stage.
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

// Execute proposes b-roll moments and downloads a clip per keyword. No
// suggestions is success, and a failed search or download only skips that
// one clip.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if s.deps.LLM == nil || !s.deps.LLM.Configured() {
		result.Message = "language model not configured, skipping b-roll"
		return result, nil
	}
	if s.deps.Stock == nil || !s.deps.Stock.Configured() {
		result.Message = "stock footage service not configured, skipping b-roll"
		return result, nil
	}

	var transcript speech.Transcription
	if err := shared.ReadJSON(state.Sandbox, storage.FileTranscription, &transcript); err != nil {
		return result, fmt.Errorf("reading transcript: %w", err)
	}

	maxClips := state.Project.Config.MaxBrollClips
	if maxClips <= 0 {
		maxClips = s.deps.MaxBrollClips
	}
	if maxClips <= 0 {
		maxClips = DefaultMaxClips
	}

	suggestions, err := s.suggest(ctx, &transcript, maxClips)
	if err != nil {
		return result, fmt.Errorf("suggesting b-roll: %w", err)
	}
	if err := shared.WriteJSON(state.Sandbox, SuggestionsFile, suggestions); err != nil {
		return result, err
	}
	result.Outputs["broll_suggestions"] = SuggestionsFile

	if len(suggestions) == 0 {
		if err := shared.WriteJSON(state.Sandbox, ClipsFile, &ClipsDoc{Clips: []DownloadedClip{}}); err != nil {
			return result, err
		}
		result.Outputs["broll_clips"] = ClipsFile
		result.Message = "no b-roll moments suggested"
		return result, nil
	}

	if err := state.Sandbox.MkdirAll(storage.DirBroll); err != nil {
		return result, err
	}

	doc := ClipsDoc{Clips: []DownloadedClip{}}
	for i, sug := range suggestions {
		if state.WindingDown() {
			s.logger.Warn("soft deadline passed, stopping clip downloads",
				slog.Int("downloaded", len(doc.Clips)))
			break
		}
		clip, err := s.fetchClip(ctx, state, i, sug)
		if err != nil {
			state.AddError(fmt.Errorf("fetching clip for %q: %w", sug.Keyword, err))
			s.logger.Warn("clip skipped", slog.String("keyword", sug.Keyword), slog.String("error", err.Error()))
			continue
		}
		if clip == nil {
			s.logger.Info("no stock footage found", slog.String("keyword", sug.Keyword))
			continue
		}
		doc.Clips = append(doc.Clips, *clip)
	}

	if err := shared.WriteJSON(state.Sandbox, ClipsFile, &doc); err != nil {
		return result, err
	}
	result.Outputs["broll_clips"] = ClipsFile
	result.ItemsProcessed = len(doc.Clips)
	result.Message = fmt.Sprintf("%d of %d clips downloaded", len(doc.Clips), len(suggestions))
	return result, nil
}

// suggest asks the language model for illustration moments.
func (s *Stage) suggest(ctx context.Context, transcript *speech.Transcription, maxClips int) ([]Suggestion, error) {
	answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.TextMessage("user", suggestionPrompt(transcript, maxClips))},
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return nil, err
	}

	var suggestions []Suggestion
	if err := shared.UnmarshalModelJSON(answer, &suggestions); err != nil {
		return nil, fmt.Errorf("parsing suggestions: %w", err)
	}
	if len(suggestions) > maxClips {
		suggestions = suggestions[:maxClips]
	}

	out := suggestions[:0]
	for _, sug := range suggestions {
		sug.Keyword = strings.TrimSpace(sug.Keyword)
		if sug.Keyword == "" {
			continue
		}
		if sug.Duration < minClipSeconds {
			sug.Duration = minClipSeconds
		}
		if sug.Duration > maxClipSeconds {
			sug.Duration = maxClipSeconds
		}
		out = append(out, sug)
	}
	return out, nil
}

// suggestionPrompt renders the timestamped transcript with the ask. The
// keyword must be an English search term for the stock library.
func suggestionPrompt(transcript *speech.Transcription, maxClips int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Voici la transcription horodatee d'une lecon video. ")
	fmt.Fprintf(&sb, "Propose jusqu'a %d moments ou une courte video d'illustration (b-roll) renforcerait le propos. ", maxClips)
	sb.WriteString("Pour chaque moment donne un mot-cle de recherche EN ANGLAIS, simple et visuel. ")
	sb.WriteString("Reponds uniquement avec un tableau JSON d'objets ")
	sb.WriteString("{\"keyword\", \"timestamp\", \"duration\", \"description\"} ")
	fmt.Fprintf(&sb, "(secondes, duration entre %.0f et %.0f).\n\n", minClipSeconds, maxClipSeconds)
	for _, seg := range transcript.Segments {
		fmt.Fprintf(&sb, "[%.1f - %.1f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	return sb.String()
}

// fetchClip searches and downloads one clip. A keyword with no results
// returns (nil, nil).
func (s *Stage) fetchClip(ctx context.Context, state *core.State, index int, sug Suggestion) (*DownloadedClip, error) {
	clip, err := s.deps.Stock.Search(ctx, sug.Keyword)
	if err != nil {
		return nil, err
	}
	if clip == nil || clip.URL == "" {
		return nil, nil
	}

	name := clipName(index, sug.Keyword)
	f, err := state.Sandbox.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Stock.Download(ctx, clip.URL, f); err != nil {
		f.Close()
		if rmErr := state.Sandbox.Remove(name); rmErr != nil {
			s.logger.Warn("partial clip not removed", "error", rmErr)
		}
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return &DownloadedClip{
		Keyword:      sug.Keyword,
		Timestamp:    sug.Timestamp,
		Duration:     sug.Duration,
		File:         name,
		SourceURL:    clip.URL,
		Photographer: clip.Photographer,
	}, nil
}

// clipName builds the sandbox-relative clip path, with the keyword's spaces
// folded to underscores.
func clipName(index int, keyword string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(keyword)), " ", "_")
	return fmt.Sprintf("%s/clip_%d_%s.mp4", storage.DirBroll, index, slug)
}
