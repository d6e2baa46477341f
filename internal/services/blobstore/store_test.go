package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vibeacademy/vidarr/internal/storage"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"illustrated.mp4", "video/mp4"},
		{"combined.webm", "video/webm"},
		{"thumbnail.PNG", "image/png"},
		{"frame.jpg", "image/jpeg"},
		{"seo.json", "application/json"},
		{"transcription.txt", "text/plain"},
		{"mystery.bin", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, contentTypeFor(tt.path))
		})
	}
}

func TestMirrorFiles_CoversKeyArtifacts(t *testing.T) {
	assert.Contains(t, mirrorFiles, storage.FileIllustrated)
	assert.Contains(t, mirrorFiles, storage.FileThumbnail)
	assert.Contains(t, mirrorFiles, storage.FileSchedule)
	// Raw trimmed intermediates stay local only.
	assert.NotContains(t, mirrorFiles, storage.FileScreenTrimmed)
	assert.NotContains(t, mirrorFiles, storage.FileSegments)
}
