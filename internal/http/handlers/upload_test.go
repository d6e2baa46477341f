package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/storage"
)

func newUploadServer(t *testing.T) (*handlerFixture, *httptest.Server) {
	t.Helper()
	f := newHandlerFixture(t)
	router := chi.NewRouter()
	NewUploadHandler(f.service, f.store, nil).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return f, server
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUploadHandler_UploadScreenRecording(t *testing.T) {
	f, server := newUploadServer(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	require.NoError(t, f.projects.Create(context.Background(), project))

	body, contentType := multipartBody(t, "capture.MKV", []byte("video-bytes"))
	resp, err := http.Post(server.URL+"/api/v1/projects/"+project.ID.String()+"/upload/screen", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sandbox, err := f.store.Project("lesson")
	require.NoError(t, err)
	data, err := sandbox.ReadFile(storage.RawScreenPrefix + ".mkv")
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), data)

	// First upload flips the project into the uploading state.
	stored, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusUploading, stored.Status)
}

func TestUploadHandler_UploadCombinedIgnoresClientExtension(t *testing.T) {
	f, server := newUploadServer(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	require.NoError(t, f.projects.Create(context.Background(), project))

	body, contentType := multipartBody(t, "whatever.mov", []byte("canvas"))
	resp, err := http.Post(server.URL+"/api/v1/projects/"+project.ID.String()+"/upload/combined", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sandbox, err := f.store.Project("lesson")
	require.NoError(t, err)
	exists, err := sandbox.Exists(storage.FileCombined)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUploadHandler_UploadRejectsUnknownKind(t *testing.T) {
	f, server := newUploadServer(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	require.NoError(t, f.projects.Create(context.Background(), project))

	body, contentType := multipartBody(t, "capture.webm", []byte("x"))
	resp, err := http.Post(server.URL+"/api/v1/projects/"+project.ID.String()+"/upload/desktop", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadHandler_UploadUnknownProject(t *testing.T) {
	_, server := newUploadServer(t)

	body, contentType := multipartBody(t, "capture.webm", []byte("x"))
	resp, err := http.Post(server.URL+"/api/v1/projects/"+models.NewULID().String()+"/upload/screen", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadHandler_Complete(t *testing.T) {
	f, server := newUploadServer(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson", Status: models.ProjectStatusUploading}
	require.NoError(t, f.projects.Create(context.Background(), project))

	resp, err := http.Post(server.URL+"/api/v1/projects/"+project.ID.String()+"/upload-complete", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := f.projects.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusConverting, stored.Status)
}

func TestTargetName(t *testing.T) {
	tests := []struct {
		kind     string
		filename string
		want     string
		wantErr  bool
	}{
		{"screen", "capture.webm", storage.RawScreenPrefix + ".webm", false},
		{"screen", "capture.MP4", storage.RawScreenPrefix + ".mp4", false},
		{"screen", "noextension", storage.RawScreenPrefix + ".webm", false},
		{"screen", "weird.tar.verylong", storage.RawScreenPrefix + ".webm", false},
		{"webcam", "face.mov", storage.RawWebcamPrefix + ".mov", false},
		{"combined", "anything.avi", storage.FileCombined, false},
		{"desktop", "capture.webm", "", true},
	}
	for _, tt := range tests {
		got, err := targetName(tt.kind, tt.filename)
		if tt.wantErr {
			assert.Error(t, err, tt.kind)
			continue
		}
		require.NoError(t, err, tt.kind+"/"+tt.filename)
		assert.Equal(t, tt.want, got, tt.kind+"/"+tt.filename)
	}
}
