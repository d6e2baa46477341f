// Package transcribe implements the transcription stage: the trimmed
// recording's audio goes through the speech service, the raw transcript
// gets an LLM correction pass, and the result lands in transcription.json
// plus a plain-text rendering.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 4
	// StageID is the unique identifier for this stage.
	StageID = "transcribe"
	// StageName is the human-readable name for this stage.
	StageName = "Transcribe"
)

// DefaultLanguage is the transcription language when config leaves it unset.
const DefaultLanguage = "fr"

// Correction tolerances. A pass that rewrites the whole transcript is
// rejected outright; a single segment that drifts too far keeps its raw
// text while the rest of the corrections stand.
const (
	globalWordTolerance  = 3
	segmentWordTolerance = 2
)

// tempAudioName is the extracted audio handed to the speech service.
const tempAudioName = "temp/transcribe_audio.mp3"

// glossary lists product nouns the correction pass must preserve.
var glossary = []string{"Notion", "Airtable", "Zapier", "Make", "n8n", "Slack", "Figma"}

// Stage produces the timestamped transcript.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
}

// New creates a new transcribe stage.
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

// Execute extracts the audio track, transcribes it, runs the correction
// pass, and writes transcription.json and transcription.txt.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if !s.deps.Speech.Configured() {
		return result, fmt.Errorf("speech service not configured")
	}

	input, err := state.Sandbox.ResolvePath(storage.FileNoSilence)
	if err != nil {
		return result, err
	}
	audioPath, err := state.Sandbox.ResolvePath(tempAudioName)
	if err != nil {
		return result, err
	}
	if err := state.Sandbox.MkdirAll(storage.DirTemp); err != nil {
		return result, err
	}

	if err := s.extractAudio(ctx, input, audioPath); err != nil {
		return result, fmt.Errorf("extracting audio: %w", err)
	}
	defer func() {
		if err := state.Sandbox.Remove(tempAudioName); err != nil {
			s.logger.Warn("temp audio not removed", "error", err)
		}
	}()

	language := s.deps.Language
	if language == "" {
		language = DefaultLanguage
	}

	transcript, err := s.deps.Speech.Transcribe(ctx, audioPath, language)
	if err != nil {
		return result, fmt.Errorf("transcribing audio: %w", err)
	}

	if s.deps.LLM != nil && s.deps.LLM.Configured() {
		corrected, err := s.correct(ctx, transcript)
		if err != nil {
			// A failed correction never blocks the pipeline; the raw
			// transcript is still usable.
			state.AddError(err)
			s.logger.Warn("transcript correction skipped", "error", err)
		} else if corrected != nil {
			transcript = corrected
		}
	}

	if err := shared.WriteJSON(state.Sandbox, storage.FileTranscription, transcript); err != nil {
		return result, err
	}
	if err := state.Sandbox.AtomicWrite(storage.FileTranscriptText, []byte(speech.PlainText(transcript))); err != nil {
		return result, err
	}

	result.Outputs["transcription"] = storage.FileTranscription
	result.Outputs["transcript_text"] = storage.FileTranscriptText
	result.ItemsProcessed = len(transcript.Segments)
	result.Message = fmt.Sprintf("%d transcript segments", len(transcript.Segments))
	return result, nil
}

// extractAudio pulls the audio track as mp3 for the speech service.
func (s *Stage) extractAudio(ctx context.Context, input, output string) error {
	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		Input(input).
		OutputArgs("-vn", "-q:a", "2").
		Output(output).
		Build()
	return cmd.Run(ctx)
}

// correct asks the language model to fix transcription typos segment by
// segment, keeping timestamps untouched. Returns nil (no error) when the
// whole answer drifts past the global word tolerance; individual segments
// that drift past theirs keep their raw text.
func (s *Stage) correct(ctx context.Context, transcript *speech.Transcription) (*speech.Transcription, error) {
	texts := make([]string, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		texts[i] = seg.Text
	}

	prompt := correctionPrompt(texts)
	answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.TextMessage("user", prompt)},
		Temperature: llm.Temp(0.1),
	})
	if err != nil {
		return nil, fmt.Errorf("correction call: %w", err)
	}

	var corrected []string
	if err := shared.UnmarshalModelJSON(answer, &corrected); err != nil {
		return nil, fmt.Errorf("parsing correction: %w", err)
	}

	if len(corrected) != len(texts) {
		s.logger.Warn("correction rejected, segment count changed")
		return nil, nil
	}
	if drift := wordDrift(strings.Join(texts, " "), strings.Join(corrected, " ")); drift > globalWordTolerance {
		s.logger.Warn("correction rejected, word counts drifted", slog.Int("drift", drift))
		return nil, nil
	}

	out := *transcript
	out.Segments = make([]speech.Segment, len(transcript.Segments))
	copy(out.Segments, transcript.Segments)
	for i := range out.Segments {
		if drift := wordDrift(texts[i], corrected[i]); drift > segmentWordTolerance {
			// This one rewrote instead of correcting; its raw text stays.
			s.logger.Warn("segment correction rejected",
				slog.Int("segment", i), slog.Int("drift", drift))
			continue
		}
		out.Segments[i].Text = strings.TrimSpace(corrected[i])
	}
	out.Text = speech.PlainText(&out)
	return &out, nil
}

// correctionPrompt builds the typo-fix instruction around the segment list.
func correctionPrompt(texts []string) string {
	var sb strings.Builder
	sb.WriteString("Corrige les fautes de transcription dans ces segments ")
	sb.WriteString("(noms de produits, homophones, ponctuation). ")
	sb.WriteString("Ne reformule pas, ne fusionne pas les segments. ")
	sb.WriteString("Conserve exactement ces noms: ")
	sb.WriteString(strings.Join(glossary, ", "))
	sb.WriteString(".\nReponds uniquement avec un tableau JSON de chaines, ")
	sb.WriteString("une par segment, dans le meme ordre.\n\n")
	for i, t := range texts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(t))
	}
	return sb.String()
}

// wordDrift is the absolute word-count difference between two texts.
func wordDrift(a, b string) int {
	d := len(strings.Fields(a)) - len(strings.Fields(b))
	if d < 0 {
		d = -d
	}
	return d
}
