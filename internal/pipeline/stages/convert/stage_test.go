package convert

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
	"github.com/vibeacademy/vidarr/internal/storage"
)

// fakeEncoder writes a stub ffmpeg that touches its output file (the last
// argument) so stages see their artifacts appear.
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
	project := &models.Project{Name: "lesson", FolderName: "lesson"}
	return core.NewState(project, sandbox, "chain-1", slog.Default())
}

func newStage(t *testing.T, ffmpegPath string) *Stage {
	t.Helper()
	return New(&core.Dependencies{
		FFmpeg: &ffmpeg.Binaries{FFmpeg: ffmpegPath, FFprobe: ffmpegPath},
		Logger: slog.Default(),
	})
}

func TestStage_Identity(t *testing.T) {
	stage := newStage(t, "ffmpeg")
	assert.Equal(t, 0, stage.Index())
	assert.Equal(t, "convert", stage.ID())
	assert.Equal(t, "Convert", stage.Name())
}

func TestStage_Execute_NormalizesBothSources(t *testing.T) {
	state := newState(t)
	require.NoError(t, state.Sandbox.WriteFile("raw_screen.webm", []byte("screen")))
	require.NoError(t, state.Sandbox.WriteFile("raw_webcam.webm", []byte("webcam")))

	stage := newStage(t, fakeEncoder(t))
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, storage.FileScreen, result.Outputs["screen"])
	assert.Equal(t, storage.FileWebcam, result.Outputs["webcam"])

	for _, name := range []string{storage.FileScreen, storage.FileWebcam} {
		exists, err := state.Sandbox.Exists(name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	for _, name := range []string{"raw_screen.webm", "raw_webcam.webm"} {
		exists, err := state.Sandbox.Exists(name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}
}

func TestStage_Execute_WebcamOptional(t *testing.T) {
	state := newState(t)
	require.NoError(t, state.Sandbox.WriteFile("raw_screen.mkv", []byte("screen")))

	stage := newStage(t, fakeEncoder(t))
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ItemsProcessed)
	assert.NotContains(t, result.Outputs, "webcam")
}

func TestStage_Execute_MissingScreenFails(t *testing.T) {
	state := newState(t)

	stage := newStage(t, fakeEncoder(t))
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingArtifact)
}

func TestStage_Execute_EncoderFailure(t *testing.T) {
	state := newState(t)
	require.NoError(t, state.Sandbox.WriteFile("raw_screen.webm", []byte("screen")))

	stage := newStage(t, "false")
	_, err := stage.Execute(context.Background(), state)
	require.Error(t, err)

	var exitErr *ffmpeg.ExitError
	assert.ErrorAs(t, err, &exitErr)
}

func TestFindRaw(t *testing.T) {
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile("raw_screen.webm", []byte("x")))
	require.NoError(t, sandbox.WriteFile("raw_screenshot.png", []byte("x")))

	name, err := findRaw(sandbox, storage.RawScreenPrefix)
	require.NoError(t, err)
	assert.Equal(t, "raw_screen.webm", name)

	name, err = findRaw(sandbox, storage.RawWebcamPrefix)
	require.NoError(t, err)
	assert.Empty(t, name)
}
