package videohost

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "illustrated.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video-bytes"), 0640))
	return path
}

func TestBuildMetadata(t *testing.T) {
	t.Run("short gets suffix", func(t *testing.T) {
		meta := buildMetadata(UploadRequest{Title: "Ma lecon", Privacy: "public", IsShort: true})
		assert.Equal(t, "Ma lecon #Shorts", meta.Snippet.Title)
	})

	t.Run("existing suffix kept", func(t *testing.T) {
		meta := buildMetadata(UploadRequest{Title: "Ma lecon #shorts", IsShort: true})
		assert.Equal(t, "Ma lecon #shorts", meta.Snippet.Title)
	})

	t.Run("scheduled public goes up private", func(t *testing.T) {
		at := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
		meta := buildMetadata(UploadRequest{Title: "t", Privacy: "public", PublishAt: &at})
		assert.Equal(t, "private", meta.Status.PrivacyStatus)
		assert.Equal(t, "2026-09-01T18:00:00.000Z", meta.Status.PublishAt)
	})

	t.Run("unlisted ignores schedule", func(t *testing.T) {
		at := time.Now()
		meta := buildMetadata(UploadRequest{Title: "t", Privacy: "unlisted", PublishAt: &at})
		assert.Equal(t, "unlisted", meta.Status.PrivacyStatus)
		assert.Empty(t, meta.Status.PublishAt)
	})

	t.Run("limits applied", func(t *testing.T) {
		meta := buildMetadata(UploadRequest{
			Title:       strings.Repeat("x", 150),
			Description: strings.Repeat("d", 6000),
		})
		assert.Len(t, meta.Snippet.Title, maxTitleLen)
		assert.Len(t, meta.Snippet.Description, maxDescriptionLen)
		assert.Equal(t, DefaultCategoryID, meta.Snippet.CategoryID)
		assert.Equal(t, "private", meta.Status.PrivacyStatus)
	})
}

func TestClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/youtube/v3/videos", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "Bearer host-token", r.Header.Get("Authorization"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		require.NoError(t, err)
		metaJSON, _ := io.ReadAll(metaPart)
		assert.Contains(t, string(metaJSON), `"title":"Ma lecon"`)

		videoPart, err := mr.NextPart()
		require.NoError(t, err)
		videoBytes, _ := io.ReadAll(videoPart)
		assert.Equal(t, "video-bytes", string(videoBytes))

		w.Write([]byte(`{"id":"vid123","snippet":{"title":"Ma lecon"},"status":{"privacyStatus":"private"}}`))
	}))
	defer server.Close()

	client := New(nil, "host-token").WithUploadBaseURL(server.URL)

	at := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	result, err := client.Upload(context.Background(), writeTestVideo(t), UploadRequest{
		Title:     "Ma lecon",
		Privacy:   "public",
		PublishAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, "vid123", result.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid123", result.URL)
	assert.Equal(t, "private", result.Status)
	require.NotNil(t, result.ScheduledFor)
	assert.True(t, result.ScheduledFor.Equal(at))
}

func TestClient_Upload_NotConfigured(t *testing.T) {
	client := New(nil, "")
	_, err := client.Upload(context.Background(), "video.mp4", UploadRequest{})
	assert.ErrorContains(t, err, "not configured")
}

func TestClient_Upload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	client := New(nil, "host-token").WithUploadBaseURL(server.URL)
	_, err := client.Upload(context.Background(), writeTestVideo(t), UploadRequest{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_SetThumbnail(t *testing.T) {
	thumbPath := filepath.Join(t.TempDir(), "thumbnail.png")
	require.NoError(t, os.WriteFile(thumbPath, []byte("png-bytes"), 0640))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/youtube/v3/thumbnails/set", r.URL.Path)
		assert.Equal(t, "vid123", r.URL.Query().Get("videoId"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "png-bytes", string(body))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(nil, "host-token").WithUploadBaseURL(server.URL)
	require.NoError(t, client.SetThumbnail(context.Background(), "vid123", thumbPath))
}

func TestClient_SetThumbnail_MissingFile(t *testing.T) {
	client := New(nil, "host-token")
	err := client.SetThumbnail(context.Background(), "vid123", filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorContains(t, err, "reading thumbnail")
}
