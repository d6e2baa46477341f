// Package publish implements the final stage: every planned upload from
// schedule.json goes to the video host, results are folded back into the
// plan, and the run succeeds as long as at least one upload made it.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/schedule"
	"github.com/vibeacademy/vidarr/internal/services/videohost"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 11
	// StageID is the unique identifier for this stage.
	StageID = "publish"
	// StageName is the human-readable name for this stage.
	StageName = "Publish"
)

// pastSlotGrace replaces a publish time that already slipped by. An upload
// scheduled in the past would go public mid-upload otherwise.
const pastSlotGrace = time.Hour

// Stage pushes the planned uploads to the video host.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new publish stage.
func New(deps *core.Dependencies) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageIndex, StageID, StageName),
		deps:      deps,
		logger:    deps.Logger.With("stage", StageID),
		now:       time.Now,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps)
	}
}

var _ core.Stage = (*Stage)(nil)

// Execute uploads every planned video. Individual failures land in the
// plan's results; the stage only fails when nothing uploaded at all.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if s.deps.Host == nil || !s.deps.Host.Configured() {
		return result, core.NewConfigurationError("videohost", "publication requires a configured video host")
	}

	var doc schedule.Doc
	if err := shared.ReadJSON(state.Sandbox, storage.FileSchedule, &doc); err != nil {
		return result, fmt.Errorf("reading upload plan: %w", err)
	}
	if len(doc.Uploads) == 0 {
		return result, fmt.Errorf("upload plan is empty")
	}

	doc.Results = doc.Results[:0]
	succeeded := 0
	for _, upload := range doc.Uploads {
		res := s.publishOne(ctx, state, upload)
		if res.Error == "" {
			succeeded++
		} else {
			state.AddError(fmt.Errorf("uploading %s: %s", upload.File, res.Error))
		}
		doc.Results = append(doc.Results, res)
	}

	uploadedAt := s.now()
	doc.UploadedAt = &uploadedAt
	if err := shared.WriteJSON(state.Sandbox, storage.FileSchedule, &doc); err != nil {
		return result, err
	}
	result.Outputs["schedule"] = storage.FileSchedule

	if succeeded == 0 {
		return result, fmt.Errorf("all %d uploads failed", len(doc.Uploads))
	}

	result.ItemsProcessed = succeeded
	result.Message = fmt.Sprintf("%d of %d uploads published", succeeded, len(doc.Uploads))
	return result, nil
}

// publishOne uploads a single planned video and its thumbnail.
func (s *Stage) publishOne(ctx context.Context, state *core.State, upload schedule.Upload) schedule.UploadResult {
	res := schedule.UploadResult{Kind: upload.Kind, File: upload.File}

	path, err := state.Sandbox.ResolvePath(upload.File)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	exists, err := state.Sandbox.Exists(upload.File)
	if err != nil || !exists {
		res.Error = fmt.Sprintf("file missing: %s", upload.File)
		return res
	}

	hosted, err := s.deps.Host.Upload(ctx, path, s.uploadRequest(upload))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.VideoID = hosted.ID
	res.URL = hosted.URL

	if upload.Thumbnail {
		if err := s.setThumbnail(ctx, state, hosted.ID); err != nil {
			// The video is up; a missing thumbnail is not worth a retry of
			// the whole upload.
			state.AddError(fmt.Errorf("thumbnail for %s: %w", hosted.ID, err))
			s.logger.Warn("thumbnail not set", slog.String("video_id", hosted.ID), slog.String("error", err.Error()))
		}
	}
	return res
}

// categoryIDs maps the editorial category names to the host's numeric ids.
var categoryIDs = map[string]string{
	"Education":            "27",
	"Science & Technology": "28",
	"Howto & Style":        "26",
}

// uploadRequest translates a planned upload into the host's terms. A public
// video with a future slot goes up private and the host flips it public on
// schedule; unlisted videos are never scheduled.
func (s *Stage) uploadRequest(upload schedule.Upload) videohost.UploadRequest {
	tags := upload.Tags
	if len(tags) == 0 {
		tags = upload.Hashtags
	}
	req := videohost.UploadRequest{
		Title:       upload.Title,
		Description: upload.Description,
		Tags:        tags,
		CategoryID:  categoryIDs[upload.Category],
		Privacy:     upload.Visibility,
		IsShort:     upload.Kind == schedule.KindShort,
	}

	if upload.Visibility == schedule.VisibilityPublic && upload.PublishAt != nil {
		slot := *upload.PublishAt
		if slot.Before(s.now()) {
			slot = s.now().Add(pastSlotGrace)
		}
		req.Privacy = "private"
		req.PublishAt = &slot
	}
	return req
}

// setThumbnail attaches the generated thumbnail to a hosted video.
func (s *Stage) setThumbnail(ctx context.Context, state *core.State, videoID string) error {
	exists, err := state.Sandbox.Exists(storage.FileThumbnail)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", core.ErrMissingArtifact, storage.FileThumbnail)
	}
	path, err := state.Sandbox.ResolvePath(storage.FileThumbnail)
	if err != nil {
		return err
	}
	return s.deps.Host.SetThumbnail(ctx, videoID, path)
}
