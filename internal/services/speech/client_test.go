package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not-really-mp3"), 0640))
	return path
}

func TestClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, Model, r.FormValue("model"))
		assert.Equal(t, "fr", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.mp3", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "Bonjour tout le monde",
			"language": "french",
			"segments": [
				{"start": 0.0, "end": 2.5, "text": " Bonjour"},
				{"start": 2.5, "end": 4.0, "text": " tout le monde"}
			]
		}`))
	}))
	defer server.Close()

	client := New(nil, "groq-key").WithBaseURL(server.URL)

	result, err := client.Transcribe(context.Background(), writeTestAudio(t), "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour tout le monde", result.Text)
	require.Len(t, result.Segments, 2)
	assert.InDelta(t, 2.5, result.Segments[0].End, 0.001)
	assert.Equal(t, "french", result.Language)
}

func TestClient_Transcribe_NotConfigured(t *testing.T) {
	client := New(nil, "")
	_, err := client.Transcribe(context.Background(), "audio.mp3", "fr")
	assert.ErrorContains(t, err, "not configured")
}

func TestClient_Transcribe_MissingFile(t *testing.T) {
	client := New(nil, "groq-key")
	_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), "fr")
	assert.ErrorContains(t, err, "opening audio")
}

func TestClient_Transcribe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"file too large"}}`))
	}))
	defer server.Close()

	client := New(nil, "groq-key").WithBaseURL(server.URL)
	_, err := client.Transcribe(context.Background(), writeTestAudio(t), "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")
}

func TestPlainText(t *testing.T) {
	result := &Transcription{
		Text: "fallback",
		Segments: []Segment{
			{Text: " Bonjour "},
			{Text: ""},
			{Text: "tout le monde"},
		},
	}
	assert.Equal(t, "Bonjour\ntout le monde", PlainText(result))

	assert.Equal(t, "fallback", PlainText(&Transcription{Text: " fallback "}))
}
