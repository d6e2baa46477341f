package broll

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/services/stockvideo"
	"github.com/vibeacademy/vidarr/internal/storage"
)

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

type stubStock struct {
	clips   map[string]*stockvideo.Clip
	payload []byte
	downErr error
	queries []string
}

func (s *stubStock) Configured() bool { return true }

func (s *stubStock) Search(ctx context.Context, query string) (*stockvideo.Clip, error) {
	s.queries = append(s.queries, query)
	return s.clips[query], nil
}

func (s *stubStock) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	if s.downErr != nil {
		return 0, s.downErr
	}
	n, err := w.Write(s.payload)
	return int64(n), err
}

func newState(t *testing.T) *core.State {
	t.Helper()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	project := &models.Project{Name: "lesson", FolderName: "lesson"}
	state := core.NewState(project, sandbox, "chain-1", slog.Default())

	transcript := speech.Transcription{
		Language: "fr",
		Segments: []speech.Segment{{Start: 0, End: 10, Text: "on automatise avec notion"}},
	}
	require.NoError(t, shared.WriteJSON(sandbox, storage.FileTranscription, &transcript))
	return state
}

func TestStage_Execute_DownloadsClips(t *testing.T) {
	state := newState(t)
	model := &stubLLM{answer: `[
		{"keyword":"office work","timestamp":3,"duration":3,"description":"typing"},
		{"keyword":"coffee","timestamp":8,"duration":10,"description":"break"}
	]`}
	stock := &stubStock{
		clips: map[string]*stockvideo.Clip{
			"office work": {URL: "https://cdn/office.mp4", Photographer: "Ana"},
			"coffee":      {URL: "https://cdn/coffee.mp4"},
		},
		payload: []byte("clip-bytes"),
	}

	stage := New(&core.Dependencies{LLM: model, Stock: stock, Logger: slog.Default()})
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, []string{"office work", "coffee"}, stock.queries)

	var doc ClipsDoc
	require.NoError(t, shared.ReadJSON(state.Sandbox, ClipsFile, &doc))
	require.Len(t, doc.Clips, 2)
	assert.Equal(t, "broll/clip_0_office_work.mp4", doc.Clips[0].File)
	assert.Equal(t, "Ana", doc.Clips[0].Photographer)
	// Out-of-range durations get clamped.
	assert.Equal(t, 4.0, doc.Clips[1].Duration)

	data, err := state.Sandbox.ReadFile(doc.Clips[0].File)
	require.NoError(t, err)
	assert.Equal(t, "clip-bytes", string(data))
}

func TestStage_Execute_NoSuggestionsIsSuccess(t *testing.T) {
	state := newState(t)
	stage := New(&core.Dependencies{
		LLM:    &stubLLM{answer: `[]`},
		Stock:  &stubStock{},
		Logger: slog.Default(),
	})

	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Zero(t, result.ItemsProcessed)

	var doc ClipsDoc
	require.NoError(t, shared.ReadJSON(state.Sandbox, ClipsFile, &doc))
	assert.Empty(t, doc.Clips)
}

func TestStage_Execute_MissingFootageIsSkipped(t *testing.T) {
	state := newState(t)
	model := &stubLLM{answer: `[{"keyword":"unicorn","timestamp":1,"duration":3,"description":"none"}]`}
	stage := New(&core.Dependencies{
		LLM:    model,
		Stock:  &stubStock{clips: map[string]*stockvideo.Clip{}},
		Logger: slog.Default(),
	})

	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Zero(t, result.ItemsProcessed)
	assert.False(t, state.HasErrors())
}

func TestStage_Execute_DownloadFailureIsNonFatal(t *testing.T) {
	state := newState(t)
	model := &stubLLM{answer: `[{"keyword":"coffee","timestamp":1,"duration":3,"description":"break"}]`}
	stage := New(&core.Dependencies{
		LLM:    model,
		Stock:  &stubStock{clips: map[string]*stockvideo.Clip{"coffee": {URL: "https://cdn/c.mp4"}}, downErr: assert.AnError},
		Logger: slog.Default(),
	})

	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Zero(t, result.ItemsProcessed)
	assert.True(t, state.HasErrors())
}

func TestClipName(t *testing.T) {
	assert.Equal(t, "broll/clip_2_office_work.mp4", clipName(2, " Office Work "))
}

func TestSuggestionPrompt(t *testing.T) {
	transcript := speech.Transcription{
		Segments: []speech.Segment{{Start: 0, End: 4, Text: "bonjour"}},
	}
	prompt := suggestionPrompt(&transcript, 5)
	assert.Contains(t, prompt, "EN ANGLAIS")
	assert.Contains(t, prompt, "[0.0 - 4.0] bonjour")
}
