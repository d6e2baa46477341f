package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/thumbnail"
	"github.com/vibeacademy/vidarr/internal/repository"
	"github.com/vibeacademy/vidarr/internal/storage"
)

var (
	// ErrPublishNotAllowed indicates the project is not in a publishable state.
	ErrPublishNotAllowed = errors.New("publication requires a finished pipeline run")

	// ErrProjectBusy indicates an operation that needs exclusive access was
	// attempted while a chain is executing.
	ErrProjectBusy = errors.New("project has a running chain")

	// ErrInvalidStageRange indicates a partial submission outside the
	// resumable stage range.
	ErrInvalidStageRange = errors.New("invalid stage range")
)

// StageExecutor runs a single stage synchronously. Implemented by the
// pipeline orchestrator; used for on-demand operations like thumbnail
// regeneration that bypass the queue.
type StageExecutor interface {
	ExecuteStage(ctx context.Context, project *models.Project, chainID string, stageIndex int, metadata map[string]any) (*core.StageResult, error)
}

// BlobDeleter removes a project's mirrored objects from the blob store.
type BlobDeleter interface {
	DeleteProject(ctx context.Context, folderName string) error
}

// ProjectService owns the project lifecycle: creation, raw-input state
// transitions, chain submissions, revocation, and reboot. Chain submission
// is the only place job rows are created.
type ProjectService struct {
	projects repository.ProjectRepository
	jobs     repository.JobRepository
	store    *storage.ProjectStore
	executor StageExecutor
	blob     BlobDeleter
	logger   *slog.Logger
	// retryAttempts is the per-job attempt budget for submitted chains.
	// Zero leaves the job model's default in place.
	retryAttempts int
}

// NewProjectService creates a new project service.
func NewProjectService(
	projects repository.ProjectRepository,
	jobs repository.JobRepository,
	store *storage.ProjectStore,
	executor StageExecutor,
) *ProjectService {
	return &ProjectService{
		projects: projects,
		jobs:     jobs,
		store:    store,
		executor: executor,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *ProjectService) WithLogger(logger *slog.Logger) *ProjectService {
	s.logger = logger
	return s
}

// WithBlobStore enables blob-store cleanup on project deletion.
func (s *ProjectService) WithBlobStore(blob BlobDeleter) *ProjectService {
	s.blob = blob
	return s
}

// WithRetryAttempts sets the per-job attempt budget for submitted chains.
func (s *ProjectService) WithRetryAttempts(attempts int) *ProjectService {
	if attempts > 0 {
		s.retryAttempts = attempts
	}
	return s
}

// Create registers a new project and creates its artifact directory.
func (s *ProjectService) Create(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	if _, err := s.store.Project(project.FolderName); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	s.logger.Info("created project",
		"id", project.ID.String(),
		"name", project.Name,
		"folder", project.FolderName,
	)
	return nil
}

// Get retrieves a project by ID.
func (s *ProjectService) Get(ctx context.Context, id models.ULID) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return project, nil
}

// List retrieves all projects, newest first.
func (s *ProjectService) List(ctx context.Context) ([]*models.Project, error) {
	return s.projects.GetAll(ctx)
}

// Delete revokes any running chain, removes the artifact directory and the
// blob-store mirror, then deletes the registry record. Blob cleanup is
// best-effort.
func (s *ProjectService) Delete(ctx context.Context, id models.ULID) error {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	if project.TaskHandle != "" {
		s.cancelChain(ctx, project.TaskHandle)
	}

	if err := s.store.Delete(project.FolderName); err != nil {
		return fmt.Errorf("deleting artifact directory: %w", err)
	}
	if s.blob != nil {
		if err := s.blob.DeleteProject(ctx, project.FolderName); err != nil {
			s.logger.Warn("deleting blob mirror", "folder", project.FolderName, "error", err)
		}
	}

	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	s.logger.Info("deleted project", "id", id.String(), "name", project.Name)
	return nil
}

// BeginUpload marks the project as receiving raw inputs.
func (s *ProjectService) BeginUpload(ctx context.Context, id models.ULID) error {
	return s.setStatus(ctx, id, models.ProjectStatusUploading)
}

// FinishUpload marks the raw inputs complete. The caller follows up with
// SubmitFull.
func (s *ProjectService) FinishUpload(ctx context.Context, id models.ULID) error {
	return s.setStatus(ctx, id, models.ProjectStatusConverting)
}

// SubmitFull submits the automatic pipeline: stages 0 through 10 for a
// project with separate raw sources, 1 through 10 for a canvas project.
// Publication never runs automatically; it is a separate submission.
func (s *ProjectService) SubmitFull(ctx context.Context, id models.ULID) (string, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading project: %w", err)
	}

	start := 0
	if project.CanvasMode {
		start = 1
	}
	return s.submit(ctx, project, start, models.TotalStages-2)
}

// SubmitPartial submits stages start through end inclusive. Used to resume
// after a failure or rerun from an arbitrary stage once the artifact
// directory is in a suitable state. Publication is excluded; use
// SubmitPublication.
func (s *ProjectService) SubmitPartial(ctx context.Context, id models.ULID, start, end int) (string, error) {
	if start < 0 || end < start || end > models.TotalStages-2 {
		return "", fmt.Errorf("%w: [%d..%d]", ErrInvalidStageRange, start, end)
	}

	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading project: %w", err)
	}
	return s.submit(ctx, project, start, end)
}

// SubmitPublication submits the publication stage alone. Publication is
// irreversible, so it is gated on a finished pipeline run.
func (s *ProjectService) SubmitPublication(ctx context.Context, id models.ULID) (string, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading project: %w", err)
	}
	if !project.CanPublish() {
		return "", fmt.Errorf("%w: status is %s", ErrPublishNotAllowed, project.Status)
	}
	return s.submit(ctx, project, models.TotalStages-1, models.TotalStages-1)
}

// submit records the new chain handle on the project, moves it to
// processing, and only then creates the chain [start..end]. A previous
// chain's queued jobs are cancelled before the handle is overwritten; its
// running stage observes the new handle and exits on its own.
func (s *ProjectService) submit(ctx context.Context, project *models.Project, start, end int) (string, error) {
	if project.TaskHandle != "" {
		s.cancelChain(ctx, project.TaskHandle)
	}

	chainID := uuid.NewString()
	chain := make([]*models.Job, 0, end-start+1)
	for i := start; i <= end; i++ {
		job, err := models.NewStageJob(project, chainID, i, i == start)
		if err != nil {
			return "", fmt.Errorf("building stage %d job: %w", i, err)
		}
		if s.retryAttempts > 0 {
			job.MaxAttempts = s.retryAttempts
		}
		chain = append(chain, job)
	}

	// The handle goes on record before any job is claimable: a worker that
	// grabs the head job must already see this chain as the current one, or
	// it would cancel the fresh chain as superseded.
	project.TaskHandle = chainID
	project.Status = models.ProjectStatusProcessing
	project.CurrentStep = start
	project.Error = ""
	if err := s.projects.Update(ctx, project); err != nil {
		return "", fmt.Errorf("recording task handle: %w", err)
	}

	if err := s.jobs.CreateChain(ctx, chain); err != nil {
		project.TaskHandle = ""
		project.Status = models.ProjectStatusFailed
		project.Error = err.Error()
		if uerr := s.projects.Update(ctx, project); uerr != nil {
			s.logger.Error("clearing task handle after failed submission", "error", uerr)
		}
		return "", fmt.Errorf("submitting chain: %w", err)
	}

	s.logger.Info("submitted chain",
		"project", project.Name,
		"chain_id", chainID,
		"stages", fmt.Sprintf("[%d..%d]", start, end),
	)
	return chainID, nil
}

// Revoke terminates the project's current chain: queued jobs are cancelled
// immediately, the running stage (if any) observes the cleared handle and
// exits without mutating artifacts. All artifacts are preserved.
func (s *ProjectService) Revoke(ctx context.Context, id models.ULID) error {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	if project.TaskHandle != "" {
		s.cancelChain(ctx, project.TaskHandle)
	}

	project.TaskHandle = ""
	project.Status = models.ProjectStatusStopped
	if err := s.projects.Update(ctx, project); err != nil {
		return fmt.Errorf("recording stop: %w", err)
	}

	s.logger.Info("revoked project chain", "id", id.String(), "name", project.Name)
	return nil
}

// Reboot revokes the current chain, trims the artifact directory back to
// its seed set, resets the registry record, and submits a fresh full run.
func (s *ProjectService) Reboot(ctx context.Context, id models.ULID) (string, error) {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("loading project: %w", err)
	}

	if project.TaskHandle != "" {
		s.cancelChain(ctx, project.TaskHandle)
		project.TaskHandle = ""
	}

	if err := s.store.Reboot(project.FolderName); err != nil {
		return "", fmt.Errorf("trimming artifact directory: %w", err)
	}

	project.ResetForReboot()
	if err := s.projects.Update(ctx, project); err != nil {
		return "", fmt.Errorf("resetting project: %w", err)
	}

	s.logger.Info("rebooted project", "id", id.String(), "name", project.Name)

	start := 0
	if project.CanvasMode {
		start = 1
	}
	return s.submit(ctx, project, start, models.TotalStages-2)
}

// RegenerateThumbnail reruns the thumbnail stage synchronously with user
// corrections appended to the prompt. The reference frame and palette draw
// are rebuilt by the stage itself. Rejected while a chain is executing so
// the stage does not race a queued thumbnail run.
func (s *ProjectService) RegenerateThumbnail(ctx context.Context, id models.ULID, corrections string) error {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	if project.IsProcessing() {
		return ErrProjectBusy
	}

	var metadata map[string]any
	if corrections != "" {
		metadata = map[string]any{thumbnail.CorrectionsKey: corrections}
	}

	// An empty chain id skips the revocation checks: this run is not part
	// of any chain.
	if _, err := s.executor.ExecuteStage(ctx, project, "", thumbnail.StageIndex, metadata); err != nil {
		return fmt.Errorf("regenerating thumbnail: %w", err)
	}
	return nil
}

func (s *ProjectService) setStatus(ctx context.Context, id models.ULID, status models.ProjectStatus) error {
	project, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}
	project.Status = status
	if err := s.projects.Update(ctx, project); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	return nil
}

func (s *ProjectService) cancelChain(ctx context.Context, chainID string) {
	cancelled, err := s.jobs.CancelChain(ctx, chainID)
	if err != nil {
		s.logger.Warn("cancelling previous chain", "chain_id", chainID, "error", err)
		return
	}
	if cancelled > 0 {
		s.logger.Info("cancelled previous chain", "chain_id", chainID, "jobs", cancelled)
	}
}
