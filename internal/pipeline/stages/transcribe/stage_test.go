package transcribe

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/storage"
)

type stubSpeech struct {
	transcript *speech.Transcription
	err        error
	gotPath    string
	gotLang    string
}

func (s *stubSpeech) Configured() bool { return true }

func (s *stubSpeech) Transcribe(ctx context.Context, audioPath, language string) (*speech.Transcription, error) {
	s.gotPath = audioPath
	s.gotLang = language
	return s.transcript, s.err
}

type stubLLM struct {
	answer string
	err    error
}

func (s *stubLLM) Configured() bool { return true }

func (s *stubLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	return s.answer, s.err
}

func (s *stubLLM) GenerateImage(ctx context.Context, prompt string, refs ...string) (*llm.ImageResult, error) {
	return nil, nil
}

func fakeEncoder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor a; do last=$a; done\ntouch \"$last\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newState(t *testing.T) *core.State {
	t.Helper()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile(storage.FileNoSilence, []byte("mp4")))
	project := &models.Project{Name: "lesson", FolderName: "lesson"}
	return core.NewState(project, sandbox, "chain-1", slog.Default())
}

func sampleTranscript() *speech.Transcription {
	return &speech.Transcription{
		Text:     "bonjour a tous on va voir notion",
		Language: "fr",
		Segments: []speech.Segment{
			{Start: 0, End: 2, Text: "bonjour a tous"},
			{Start: 2, End: 5, Text: "on va voir notion"},
		},
	}
}

func TestStage_Execute_WritesTranscript(t *testing.T) {
	state := newState(t)
	sp := &stubSpeech{transcript: sampleTranscript()}
	model := &stubLLM{answer: `["bonjour à tous", "on va voir Notion"]`}

	stage := New(&core.Dependencies{
		FFmpeg: &ffmpeg.Binaries{FFmpeg: fakeEncoder(t)},
		Speech: sp,
		LLM:    model,
		Logger: slog.Default(),
	})

	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, "fr", sp.gotLang)
	assert.Equal(t, storage.FileTranscription, result.Outputs["transcription"])
	assert.Equal(t, storage.FileTranscriptText, result.Outputs["transcript_text"])
	assert.Equal(t, 2, result.ItemsProcessed)

	var saved speech.Transcription
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileTranscription, &saved))
	assert.Equal(t, "on va voir Notion", saved.Segments[1].Text)

	text, err := state.Sandbox.ReadFile(storage.FileTranscriptText)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Notion")

	// The extracted audio is transient.
	exists, err := state.Sandbox.Exists(tempAudioName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStage_Execute_RejectsGlobalDrift(t *testing.T) {
	state := newState(t)
	sp := &stubSpeech{transcript: sampleTranscript()}
	// Five extra words overall: the whole pass is a rewrite, drop it.
	model := &stubLLM{answer: `["bonjour a tous", "on va voir Notion et aussi plein d'autres outils"]`}

	stage := New(&core.Dependencies{
		FFmpeg: &ffmpeg.Binaries{FFmpeg: fakeEncoder(t)},
		Speech: sp,
		LLM:    model,
		Logger: slog.Default(),
	})

	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	var saved speech.Transcription
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileTranscription, &saved))
	assert.Equal(t, "on va voir notion", saved.Segments[1].Text)
}

func TestStage_Execute_DriftingSegmentKeepsRawText(t *testing.T) {
	state := newState(t)
	sp := &stubSpeech{transcript: sampleTranscript()}
	// The first segment grows by three words, past its own tolerance but
	// inside the global one; only it reverts, the second correction holds.
	model := &stubLLM{answer: `["bonjour à tous les amis développeurs", "on va voir Notion"]`}

	stage := New(&core.Dependencies{
		FFmpeg: &ffmpeg.Binaries{FFmpeg: fakeEncoder(t)},
		Speech: sp,
		LLM:    model,
		Logger: slog.Default(),
	})

	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	var saved speech.Transcription
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileTranscription, &saved))
	assert.Equal(t, "bonjour a tous", saved.Segments[0].Text)
	assert.Equal(t, "on va voir Notion", saved.Segments[1].Text)
}

func TestStage_Execute_CorrectionFailureIsNonFatal(t *testing.T) {
	state := newState(t)
	sp := &stubSpeech{transcript: sampleTranscript()}
	model := &stubLLM{answer: "not json at all"}

	stage := New(&core.Dependencies{
		FFmpeg: &ffmpeg.Binaries{FFmpeg: fakeEncoder(t)},
		Speech: sp,
		LLM:    model,
		Logger: slog.Default(),
	})

	_, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, state.HasErrors())
}

func TestWordDrift(t *testing.T) {
	assert.Zero(t, wordDrift("un deux", "un deux"))
	assert.Equal(t, 1, wordDrift("on va voir notion", "on va voir Notion aujourd'hui"))
	assert.Equal(t, 3, wordDrift("un deux trois quatre cinq", "un deux"))
}

func TestCorrectionPrompt(t *testing.T) {
	prompt := correctionPrompt([]string{"premier", "second"})
	assert.Contains(t, prompt, "1. premier")
	assert.Contains(t, prompt, "2. second")
	assert.Contains(t, prompt, "Notion")
	assert.Contains(t, prompt, "tableau JSON")
}
