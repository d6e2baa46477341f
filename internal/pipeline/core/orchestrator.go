package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/repository"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// DefaultSoftTimeout is the wind-down deadline handed to stages.
const DefaultSoftTimeout = 50 * time.Minute

// Orchestrator executes one pipeline stage against a project with full
// registry bookkeeping: revocation checks at entry and exit, step state
// transitions, progress, and the manifest merge.
type Orchestrator struct {
	factory     StageFactory
	projects    repository.ProjectRepository
	store       *storage.ProjectStore
	logger      *slog.Logger
	softTimeout time.Duration
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(factory StageFactory, projects repository.ProjectRepository, store *storage.ProjectStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		factory:     factory,
		projects:    projects,
		store:       store,
		logger:      logger,
		softTimeout: DefaultSoftTimeout,
	}
}

// WithSoftTimeout overrides the wind-down deadline.
func (o *Orchestrator) WithSoftTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.softTimeout = d
	}
	return o
}

// ExecuteStage runs the stage at stageIndex for the given project.
// chainID identifies the submission this execution belongs to; when the
// project's task handle no longer matches, the execution exits cleanly
// with ErrChainSuperseded and the registry record stays untouched.
// metadata is merged into the stage state (nil is fine).
func (o *Orchestrator) ExecuteStage(ctx context.Context, project *models.Project, chainID string, stageIndex int, metadata map[string]any) (*StageResult, error) {
	if chainID != "" && project.TaskHandle != chainID {
		o.logger.InfoContext(ctx, "skipping superseded chain stage",
			slog.String("project_id", project.ID.String()),
			slog.String("chain_id", chainID),
			slog.Int("stage_index", stageIndex),
		)
		return nil, ErrChainSuperseded
	}

	stage, err := o.factory.StageFor(stageIndex)
	if err != nil {
		return nil, err
	}

	sandbox, err := o.store.Project(project.FolderName)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With(
		slog.String("project_id", project.ID.String()),
		slog.String("stage_id", stage.ID()),
	)

	project.MarkStepProcessing(stageIndex, stage.Name())
	if err := o.projects.Update(ctx, project); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "executing stage",
		slog.Int("stage_num", stageIndex+1),
		slog.Int("total_stages", models.TotalStages),
		slog.String("stage_name", stage.Name()),
	)

	state := NewState(project, sandbox, chainID, logger)
	state.SoftDeadline = state.StartTime.Add(o.softTimeout)
	for k, v := range metadata {
		state.Metadata[k] = v
	}

	result, execErr := stage.Execute(ctx, state)
	if result == nil {
		result = &StageResult{}
	}
	result.Duration = time.Since(state.StartTime)

	if cleanupErr := stage.Cleanup(ctx); cleanupErr != nil {
		logger.Warn("stage cleanup failed", slog.String("error", cleanupErr.Error()))
	}

	// Exit revocation check: a revoke-and-resubmit may have landed while
	// the stage ran. The newer chain owns the registry record now.
	if chainID != "" {
		if superseded, err := o.superseded(ctx, project.ID, chainID); err == nil && superseded {
			logger.InfoContext(ctx, "chain superseded during stage execution, discarding result")
			return result, ErrChainSuperseded
		}
	}

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, ErrChainSuperseded) {
			return result, execErr
		}
		logger.ErrorContext(ctx, "stage failed",
			slog.String("error", execErr.Error()),
			slog.Duration("duration", result.Duration),
		)
		project.MarkStepFailed(stage.Name(), execErr)
		if err := o.projects.Update(ctx, project); err != nil {
			logger.Warn("recording stage failure", slog.String("error", err.Error()))
		}
		return result, NewStageError(stage.ID(), stage.Name(), execErr)
	}

	for name, relPath := range result.Outputs {
		project.RecordOutput(name, relPath)
	}
	project.MarkStepCompleted(stageIndex, stage.Name())

	// Scheduling and publication pin the lifecycle anchors.
	switch stageIndex {
	case models.TotalStages - 2:
		project.Status = models.ProjectStatusReadyToUpload
	case models.TotalStages - 1:
		project.Status = models.ProjectStatusCompleted
		now := models.Now()
		project.CompletedAt = &now
	}

	if err := o.projects.Update(ctx, project); err != nil {
		return result, err
	}

	logger.InfoContext(ctx, "stage completed",
		slog.Duration("duration", result.Duration),
		slog.Int("items_processed", result.ItemsProcessed),
		slog.Int("outputs", len(result.Outputs)),
	)
	return result, nil
}

// superseded reports whether the project's live task handle moved past
// chainID.
func (o *Orchestrator) superseded(ctx context.Context, projectID models.ULID, chainID string) (bool, error) {
	fresh, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return false, err
	}
	return fresh.TaskHandle != chainID, nil
}
