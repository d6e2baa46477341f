package publish

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/schedule"
	"github.com/vibeacademy/vidarr/internal/services/videohost"
	"github.com/vibeacademy/vidarr/internal/storage"
)

type uploadCall struct {
	path string
	req  videohost.UploadRequest
}

type stubHost struct {
	uploads    []uploadCall
	thumbnails []string
	uploadErr  map[string]error
	nextID     int
}

func (s *stubHost) Configured() bool { return true }

func (s *stubHost) Upload(ctx context.Context, path string, req videohost.UploadRequest) (*videohost.UploadResult, error) {
	s.uploads = append(s.uploads, uploadCall{path: path, req: req})
	if err := s.uploadErr[req.Title]; err != nil {
		return nil, err
	}
	s.nextID++
	return &videohost.UploadResult{ID: "vid-" + req.Title, URL: "https://host/watch?v=" + req.Title}, nil
}

func (s *stubHost) SetThumbnail(ctx context.Context, videoID, thumbnailPath string) error {
	s.thumbnails = append(s.thumbnails, videoID)
	return nil
}

var now = time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)

func futureSlot() *time.Time {
	t := now.Add(48 * time.Hour)
	return &t
}

func pastSlot() *time.Time {
	t := now.Add(-2 * time.Hour)
	return &t
}

func newState(t *testing.T, uploads []schedule.Upload) *core.State {
	t.Helper()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sandbox.WriteFile(storage.FileIllustrated, []byte("mp4")))
	require.NoError(t, sandbox.WriteFile(storage.FileThumbnail, []byte("png")))
	require.NoError(t, sandbox.MkdirAll(storage.DirShorts))
	require.NoError(t, sandbox.WriteFile("shorts/short_0.mp4", []byte("mp4")))

	doc := schedule.Doc{CreatedAt: now, Status: schedule.StatusReady, Uploads: uploads}
	require.NoError(t, shared.WriteJSON(sandbox, storage.FileSchedule, &doc))

	project := &models.Project{Name: "lesson", FolderName: "lesson"}
	return core.NewState(project, sandbox, "chain-1", slog.Default())
}

func newStage(t *testing.T, host core.VideoHost) *Stage {
	t.Helper()
	stage := New(&core.Dependencies{Host: host, Logger: slog.Default()})
	stage.now = func() time.Time { return now }
	return stage
}

func defaultUploads() []schedule.Upload {
	return []schedule.Upload{
		{
			Kind: schedule.KindVideo, File: storage.FileIllustrated,
			Title: "main", Visibility: schedule.VisibilityPublic,
			Tags: []string{"notion", "make"}, Category: "Education",
			PublishAt: futureSlot(), Thumbnail: true,
		},
		{
			Kind: schedule.KindClassroom, File: storage.FileIllustrated,
			Title: "classroom", Visibility: schedule.VisibilityUnlisted,
			PublishAt: futureSlot(), Thumbnail: true,
		},
		{
			Kind: schedule.KindShort, File: "shorts/short_0.mp4",
			Title: "short", Visibility: schedule.VisibilityPublic,
			Hashtags:  []string{"#shorts"},
			PublishAt: futureSlot(),
		},
	}
}

func TestStage_Execute_PublishesPlan(t *testing.T) {
	state := newState(t, defaultUploads())
	host := &stubHost{}

	result, err := newStage(t, host).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemsProcessed)

	require.Len(t, host.uploads, 3)

	// Scheduled public video goes up private with the slot attached; its
	// tags and category travel to the host.
	main := host.uploads[0].req
	assert.Equal(t, "private", main.Privacy)
	assert.Equal(t, []string{"notion", "make"}, main.Tags)
	assert.Equal(t, "27", main.CategoryID)
	require.NotNil(t, main.PublishAt)
	assert.Equal(t, *futureSlot(), *main.PublishAt)

	// Unlisted stays unlisted and unscheduled.
	classroom := host.uploads[1].req
	assert.Equal(t, "unlisted", classroom.Privacy)
	assert.Nil(t, classroom.PublishAt)

	// Shorts have no tags of their own; their hashtags stand in.
	short := host.uploads[2].req
	assert.True(t, short.IsShort)
	assert.Equal(t, []string{"#shorts"}, short.Tags)

	// Thumbnails only for the flagged uploads.
	assert.Equal(t, []string{"vid-main", "vid-classroom"}, host.thumbnails)

	var doc schedule.Doc
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileSchedule, &doc))
	require.Len(t, doc.Results, 3)
	assert.Equal(t, "vid-main", doc.Results[0].VideoID)
	require.NotNil(t, doc.UploadedAt)
	assert.Equal(t, now, *doc.UploadedAt)
}

func TestStage_Execute_PastSlotPushedForward(t *testing.T) {
	uploads := defaultUploads()
	uploads[0].PublishAt = pastSlot()
	state := newState(t, uploads)
	host := &stubHost{}

	_, err := newStage(t, host).Execute(context.Background(), state)
	require.NoError(t, err)

	main := host.uploads[0].req
	require.NotNil(t, main.PublishAt)
	assert.Equal(t, now.Add(time.Hour), *main.PublishAt)
}

func TestStage_Execute_PartialFailureSucceeds(t *testing.T) {
	state := newState(t, defaultUploads())
	host := &stubHost{uploadErr: map[string]error{"short": assert.AnError}}

	result, err := newStage(t, host).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsProcessed)
	assert.True(t, state.HasErrors())

	var doc schedule.Doc
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileSchedule, &doc))
	assert.NotEmpty(t, doc.Results[2].Error)
}

func TestStage_Execute_AllFailuresFail(t *testing.T) {
	uploads := defaultUploads()[:1]
	state := newState(t, uploads)
	host := &stubHost{uploadErr: map[string]error{"main": assert.AnError}}

	_, err := newStage(t, host).Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 uploads failed")
}

func TestStage_Execute_MissingFileRecorded(t *testing.T) {
	uploads := defaultUploads()
	uploads[2].File = "shorts/short_9.mp4"
	state := newState(t, uploads)
	host := &stubHost{}

	result, err := newStage(t, host).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsProcessed)

	var doc schedule.Doc
	require.NoError(t, shared.ReadJSON(state.Sandbox, storage.FileSchedule, &doc))
	assert.Contains(t, doc.Results[2].Error, "file missing")
}
