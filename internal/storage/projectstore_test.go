package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ProjectStore {
	t.Helper()
	store, err := NewProjectStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestProjectStore_Project(t *testing.T) {
	store := newTestStore(t)

	sandbox, err := store.Project("lesson-12")
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile(FileConfig, []byte("{}")))

	exists, err := store.Exists("lesson-12")
	require.NoError(t, err)
	assert.True(t, exists)

	t.Run("empty folder name", func(t *testing.T) {
		_, err := store.Project("")
		assert.Error(t, err)
	})

	t.Run("traversal folder name", func(t *testing.T) {
		_, err := store.Project("../escape")
		assert.Error(t, err)
	})
}

func TestProjectStore_Delete(t *testing.T) {
	store := newTestStore(t)

	sandbox, err := store.Project("lesson-12")
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile(FileOriginal, []byte("x")))

	require.NoError(t, store.Delete("lesson-12"))

	exists, err := store.Exists("lesson-12")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProjectStore_Reboot(t *testing.T) {
	store := newTestStore(t)

	sandbox, err := store.Project("lesson-12")
	require.NoError(t, err)

	// Seed files plus derived artifacts.
	seed := []string{FileConfig, FileScreen, FileWebcam}
	derived := []string{
		FileOriginal, FileNoSilence, FileSegments, FileTranscription,
		FileSEO, FileThumbnail, FileSchedule, FileIllustrated,
		"shorts/short_1.mp4", "broll/clip_1.mp4", "temp/scratch.bin",
	}
	for _, name := range append(append([]string{}, seed...), derived...) {
		require.NoError(t, sandbox.WriteFile(name, []byte("x")))
	}

	require.NoError(t, store.Reboot("lesson-12"))

	for _, name := range seed {
		exists, err := sandbox.Exists(name)
		require.NoError(t, err)
		assert.True(t, exists, "seed file %s should survive reboot", name)
	}
	for _, name := range derived {
		exists, err := sandbox.Exists(name)
		require.NoError(t, err)
		assert.False(t, exists, "derived artifact %s should be removed", name)
	}
}

func TestProjectStore_Reboot_KeepsCanvasSource(t *testing.T) {
	store := newTestStore(t)

	sandbox, err := store.Project("canvas-demo")
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile(FileConfig, []byte("{}")))
	require.NoError(t, sandbox.WriteFile(FileCombined, []byte("webm")))
	require.NoError(t, sandbox.WriteFile(FileOriginal, []byte("x")))

	require.NoError(t, store.Reboot("canvas-demo"))

	exists, err := sandbox.Exists(FileCombined)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = sandbox.Exists(FileOriginal)
	require.NoError(t, err)
	assert.False(t, exists)
}
