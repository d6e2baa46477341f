// Package schedule implements the scheduling stage: the illustrated lesson,
// its classroom copy, and every rendered short get a publication slot, and
// the resulting upload plan lands in schedule.json for the publish stage.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/seo"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 10
	// StageID is the unique identifier for this stage.
	StageID = "schedule"
	// StageName is the human-readable name for this stage.
	StageName = "Schedule"
)

// Upload kinds.
const (
	KindVideo     = "video"
	KindClassroom = "classroom"
	KindShort     = "short"
)

// Visibility values as the host understands them.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
)

// StatusReady marks a plan awaiting publication.
const StatusReady = "ready"

// preferredHours are publication hours in descending audience order; a
// plan's nth upload rotates through them so two videos never collide.
var preferredHours = []int{18, 19, 20, 17, 12, 13}

// bestDays are the weekdays the audience actually shows up.
var bestDays = map[time.Weekday]bool{
	time.Tuesday:   true,
	time.Wednesday: true,
	time.Thursday:  true,
	time.Saturday:  true,
}

// scanDays bounds the slot search.
const scanDays = 14

// classroomHour is when the unlisted classroom copy goes up.
const classroomHour = 10

// classroomTitlePrefix marks the classroom copy.
const classroomTitlePrefix = "[Classroom] "

// classroomPreamble opens the classroom description.
const classroomPreamble = "Bonjour la classe ! Voici la lecon complete en acces direct, avant sa sortie publique. Bonne pratique !\n\n"

// Upload is one planned publication. The main lesson carries tags and a
// category; shorts carry hashtags instead.
type Upload struct {
	Kind          string     `json:"kind"`
	File          string     `json:"file"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Tags          []string   `json:"tags,omitempty"`
	Hashtags      []string   `json:"hashtags,omitempty"`
	Category      string     `json:"category,omitempty"`
	PinnedComment string     `json:"pinned_comment,omitempty"`
	Visibility    string     `json:"visibility"`
	PublishAt     *time.Time `json:"publish_at,omitempty"`
	Thumbnail     bool       `json:"thumbnail"`
}

// UploadResult is filled in by the publish stage.
type UploadResult struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	VideoID string `json:"video_id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Doc is the schedule.json artifact. The publish stage appends its results
// and stamps uploaded_at.
type Doc struct {
	CreatedAt  time.Time      `json:"created_at"`
	Status     string         `json:"status"`
	Uploads    []Upload       `json:"uploads"`
	Results    []UploadResult `json:"upload_results,omitempty"`
	UploadedAt *time.Time     `json:"uploaded_at,omitempty"`
}

// Stage plans the publications.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a new schedule stage.
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

// Execute writes the upload plan. The main lesson goes public on the first
// good day, the classroom copy goes unlisted the same morning, and each
// short lands on a later good day. Mirroring the project to the blob store
// is attempted but never blocks the plan.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	var meta seo.Doc
	if err := shared.ReadJSON(state.Sandbox, storage.FileSEO, &meta); err != nil {
		return result, fmt.Errorf("reading metadata: %w", err)
	}
	hasIllustrated, err := state.Sandbox.Exists(storage.FileIllustrated)
	if err != nil {
		return result, err
	}
	if !hasIllustrated {
		return result, fmt.Errorf("%w: %s", core.ErrMissingArtifact, storage.FileIllustrated)
	}

	now := s.now()
	mainSlot := nextSlot(now, 0)
	classroomSlot := time.Date(mainSlot.Year(), mainSlot.Month(), mainSlot.Day(),
		classroomHour, 0, 0, 0, mainSlot.Location())

	doc := Doc{
		CreatedAt: now,
		Status:    StatusReady,
		Uploads: []Upload{
			{
				Kind:          KindVideo,
				File:          storage.FileIllustrated,
				Title:         meta.Video.Title,
				Description:   meta.Video.Description,
				Tags:          meta.Video.Tags,
				Category:      meta.Video.Category,
				PinnedComment: meta.Video.PinnedComment,
				Visibility:    VisibilityPublic,
				PublishAt:     &mainSlot,
				Thumbnail:     true,
			},
		},
	}

	// The classroom copy is the raw trimmed lesson, without b-roll or
	// illustrations; it only goes up when that cut exists.
	hasClassroom, err := state.Sandbox.Exists(storage.FileNoSilence)
	if err != nil {
		return result, err
	}
	if hasClassroom {
		doc.Uploads = append(doc.Uploads, Upload{
			Kind:        KindClassroom,
			File:        storage.FileNoSilence,
			Title:       classroomTitlePrefix + meta.Video.Title,
			Description: classroomPreamble + meta.Video.Description,
			Visibility:  VisibilityUnlisted,
			PublishAt:   &classroomSlot,
			Thumbnail:   true,
		})
	}

	for i, short := range meta.Shorts {
		slot := nextSlot(now, 1+i)
		doc.Uploads = append(doc.Uploads, Upload{
			Kind:          KindShort,
			File:          short.File,
			Title:         short.Title,
			Description:   short.Description,
			Hashtags:      short.Hashtags,
			PinnedComment: short.PinnedComment,
			Visibility:    VisibilityPublic,
			PublishAt:     &slot,
		})
	}

	if err := shared.WriteJSON(state.Sandbox, storage.FileSchedule, &doc); err != nil {
		return result, err
	}

	if s.deps.Blob != nil {
		mirrored := s.deps.Blob.MirrorProject(ctx, state.Project.FolderName, state.Sandbox)
		s.logger.Info("project mirrored", slog.Int("files", len(mirrored)))
	}

	result.Outputs["schedule"] = storage.FileSchedule
	result.ItemsProcessed = len(doc.Uploads)
	result.Message = fmt.Sprintf("%d uploads planned, main video on %s",
		len(doc.Uploads), mainSlot.Format("Mon 2 Jan 15:04"))
	return result, nil
}

// nextSlot finds the offset-th publication slot: starting the day after
// tomorrow's offset, the first preferred weekday within the scan window, at
// a preferred hour rotated by offset. When no preferred day falls in the
// window the first candidate day is used as is.
func nextSlot(now time.Time, offset int) time.Time {
	hour := preferredHours[offset%len(preferredHours)]
	base := now.AddDate(0, 0, 1+offset)

	for d := 0; d < scanDays; d++ {
		day := base.AddDate(0, 0, d)
		if bestDays[day.Weekday()] {
			return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location())
		}
	}
	return time.Date(base.Year(), base.Month(), base.Day(), hour, 0, 0, 0, now.Location())
}
