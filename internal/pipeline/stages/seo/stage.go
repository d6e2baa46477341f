// Package seo implements the metadata stage: the language model writes the
// publication title, description, tags and pinned comment for the main
// video and the equivalent copy for each rendered short, and the channel
// sign-off gets appended to every
// description. A model that misbehaves twice is replaced by a skeleton so
// publication never blocks on copywriting.
package seo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/shorts"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 8
	// StageID is the unique identifier for this stage.
	StageID = "seo"
	// StageName is the human-readable name for this stage.
	StageName = "SEO"
)

// Token budgets per call. The main description deserves room; a short's
// blurb does not.
const (
	videoMaxTokens = 1500
	shortMaxTokens = 500
)

// shortContextTail extends the transcript slice past the short's window so
// the model sees how the thought concludes.
const shortContextTail = 5.0

// Channel sign-offs appended to every description.
const (
	videoSignOff = "\n\n---\nPour aller plus loin, retrouve toutes mes formations sur https://vibe.academy\nUne nouvelle astuce automatisation chaque semaine : abonne-toi !"
	shortSignOff = "\n\nToutes mes astuces sur la chaine. Abonne-toi !"
)

// shortsTag is forced into every short's title and hashtags.
const shortsTag = "#shorts"

// Metadata is the publication copy for the main video.
type Metadata struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Category      string   `json:"category"`
	PinnedComment string   `json:"pinned_comment"`
}

// ShortMetadata is the copy for one rendered short. Shorts carry hashtags
// instead of tags; the platform surfaces them differently.
type ShortMetadata struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Hashtags      []string `json:"hashtags"`
	PinnedComment string   `json:"pinned_comment"`
	File          string   `json:"file"`
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
}

// Doc is the seo.json artifact.
type Doc struct {
	Video  Metadata        `json:"main_video"`
	Shorts []ShortMetadata `json:"shorts"`
}

// Stage writes the publication metadata.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new SEO stage.
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

// Execute writes seo.json covering the main video and every rendered short.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	var transcript speech.Transcription
	if err := shared.ReadJSON(state.Sandbox, storage.FileTranscription, &transcript); err != nil {
		return result, fmt.Errorf("reading transcript: %w", err)
	}

	doc := Doc{Shorts: []ShortMetadata{}}
	doc.Video = s.videoMetadata(ctx, state, &transcript)
	doc.Video.Description += videoSignOff

	for _, entry := range s.renderedShorts(state) {
		meta := s.shortMetadata(ctx, state, &transcript, entry)
		meta.Title = forceShortsTag(meta.Title)
		meta.Hashtags = forceShortsHashtag(meta.Hashtags)
		meta.Description += shortSignOff
		doc.Shorts = append(doc.Shorts, meta)
	}

	if err := shared.WriteJSON(state.Sandbox, storage.FileSEO, &doc); err != nil {
		return result, err
	}

	result.Outputs["seo"] = storage.FileSEO
	result.ItemsProcessed = 1 + len(doc.Shorts)
	result.Message = fmt.Sprintf("metadata for video and %d shorts", len(doc.Shorts))
	return result, nil
}

// renderedShort pairs a suggestion with its rendered file.
type renderedShort struct {
	suggestion shorts.Suggestion
	file       string
}

// renderedShorts loads the shorts plan and keeps the entries whose clip was
// actually rendered.
func (s *Stage) renderedShorts(state *core.State) []renderedShort {
	exists, err := state.Sandbox.Exists(shorts.SuggestionsFile)
	if err != nil || !exists {
		return nil
	}
	var plan shorts.SuggestionsDoc
	if err := shared.ReadJSON(state.Sandbox, shorts.SuggestionsFile, &plan); err != nil {
		s.logger.Warn("shorts plan unreadable", "error", err)
		return nil
	}

	rendered := make(map[string]bool, len(plan.Rendered))
	for _, file := range plan.Rendered {
		rendered[file] = true
	}

	var out []renderedShort
	for i, sug := range plan.Suggestions {
		file := fmt.Sprintf("%s/short_%d.mp4", storage.DirShorts, i)
		if rendered[file] {
			out = append(out, renderedShort{suggestion: sug, file: file})
		}
	}
	return out
}

// videoMetadata generates the main video copy, falling back to a skeleton
// after one retry.
func (s *Stage) videoMetadata(ctx context.Context, state *core.State, transcript *speech.Transcription) Metadata {
	var meta Metadata
	if err := s.generate(ctx, videoPrompt(state.Project.Name, transcript.Text), videoMaxTokens, &meta); err != nil {
		state.AddError(fmt.Errorf("video metadata: %w", err))
		s.logger.Warn("video metadata fell back to skeleton", "error", err)
		return skeletonMetadata(state.Project.Name, transcript.Text)
	}
	return meta
}

// shortMetadata generates one short's copy, falling back to a skeleton
// built from the suggestion title.
func (s *Stage) shortMetadata(ctx context.Context, state *core.State, transcript *speech.Transcription, entry renderedShort) ShortMetadata {
	slice := transcriptSlice(transcript.Segments, entry.suggestion.Start, entry.suggestion.End+shortContextTail)
	prompt := shortPrompt(entry.suggestion.Title, entry.suggestion.Description, slice)

	var meta ShortMetadata
	if err := s.generate(ctx, prompt, shortMaxTokens, &meta); err != nil {
		state.AddError(fmt.Errorf("short metadata for %s: %w", entry.file, err))
		s.logger.Warn("short metadata fell back to skeleton", slog.String("file", entry.file), slog.String("error", err.Error()))
		meta = ShortMetadata{
			Title:         entry.suggestion.Title,
			Description:   slice,
			Hashtags:      []string{shortsTag},
			PinnedComment: "Tu en penses quoi ?",
		}
	}

	meta.File = entry.file
	meta.Start = entry.suggestion.Start
	meta.End = entry.suggestion.End
	return meta
}

// titled is the common shape of a model metadata answer.
type titled interface {
	headline() string
}

func (m *Metadata) headline() string      { return m.Title }
func (m *ShortMetadata) headline() string { return m.Title }

// generate runs one metadata completion with a single retry, decoding the
// answer into out.
func (s *Stage) generate(ctx context.Context, prompt string, maxTokens int, out titled) error {
	if s.deps.LLM == nil || !s.deps.LLM.Configured() {
		return fmt.Errorf("language model not configured")
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
			Messages:    []llm.Message{llm.TextMessage("user", prompt)},
			Temperature: llm.Temp(0.7),
			MaxTokens:   maxTokens,
		})
		if err != nil {
			lastErr = err
			continue
		}

		if err := shared.UnmarshalModelJSON(answer, out); err != nil {
			lastErr = fmt.Errorf("parsing metadata: %w", err)
			continue
		}
		if strings.TrimSpace(out.headline()) == "" {
			lastErr = fmt.Errorf("metadata missing title")
			continue
		}
		return nil
	}
	return lastErr
}

// videoPrompt asks for the main video copy.
func videoPrompt(projectName, transcript string) string {
	var sb strings.Builder
	sb.WriteString("Tu rediges les metadonnees YouTube d'un tutoriel d'automatisation. ")
	fmt.Fprintf(&sb, "Le projet s'appelle %q. ", projectName)
	sb.WriteString("Donne un titre accrocheur, une description structuree avec des sauts de ligne, ")
	sb.WriteString("15 a 25 tags, la categorie (Education, Science & Technology ou Howto & Style) ")
	sb.WriteString("et un commentaire engageant a epingler. Reponds uniquement avec un objet JSON ")
	sb.WriteString("{\"title\", \"description\", \"tags\", \"category\", \"pinned_comment\"}.\n\nTranscription:\n")
	sb.WriteString(transcript)
	return sb.String()
}

// shortPrompt asks for one short's copy.
func shortPrompt(title, summary, slice string) string {
	var sb strings.Builder
	sb.WriteString("Tu rediges les metadonnees YouTube d'un Short vertical. ")
	fmt.Fprintf(&sb, "Titre de travail: %q. ", title)
	if summary != "" {
		fmt.Fprintf(&sb, "Le moment montre: %s ", summary)
	}
	sb.WriteString("Donne un titre percutant, une description de deux phrases, 3 a 5 hashtags ")
	sb.WriteString("et un commentaire court a epingler. ")
	sb.WriteString("Reponds uniquement avec un objet JSON {\"title\", \"description\", \"hashtags\", \"pinned_comment\"}.\n\nExtrait:\n")
	sb.WriteString(slice)
	return sb.String()
}

// transcriptSlice joins the segments overlapping the [start, end] window.
func transcriptSlice(segments []speech.Segment, start, end float64) string {
	var parts []string
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// skeletonMetadata is the no-model fallback for the main video.
func skeletonMetadata(projectName, transcript string) Metadata {
	description := transcript
	if len(description) > 400 {
		description = description[:400]
	}
	return Metadata{
		Title:         projectName,
		Description:   description,
		Tags:          []string{"automatisation", "nocode", "tutoriel"},
		Category:      "Education",
		PinnedComment: "Qu'en pensez-vous ?",
	}
}

// forceShortsTag guarantees the title carries the shorts marker.
func forceShortsTag(title string) string {
	if strings.Contains(strings.ToLower(title), shortsTag) {
		return title
	}
	return strings.TrimSpace(title) + " " + shortsTag
}

// forceShortsHashtag guarantees the hashtag list carries the shorts marker.
func forceShortsHashtag(hashtags []string) []string {
	for _, tag := range hashtags {
		if strings.EqualFold(strings.TrimSpace(tag), shortsTag) {
			return hashtags
		}
	}
	return append(hashtags, shortsTag)
}
