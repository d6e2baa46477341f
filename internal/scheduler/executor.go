// Package scheduler runs submitted pipeline chains: a worker pool claims
// stage jobs from the queue, the executor dispatches each to the pipeline
// orchestrator, and chain bookkeeping (unblocking the next stage, cancelling
// the rest on failure) happens here.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/repository"
)

// StageRunner executes one pipeline stage for a project. Implemented by the
// pipeline orchestrator.
type StageRunner interface {
	ExecuteStage(ctx context.Context, project *models.Project, chainID string, stageIndex int, metadata map[string]any) (*core.StageResult, error)
}

// Executor runs claimed jobs and keeps their chains moving.
type Executor struct {
	stages   StageRunner
	jobs     repository.JobRepository
	projects repository.ProjectRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(stages StageRunner, jobs repository.JobRepository, projects repository.ProjectRepository) *Executor {
	return &Executor{
		stages:   stages,
		jobs:     jobs,
		projects: projects,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// Execute runs one claimed job and updates its status, its history record,
// and the rest of its chain.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	e.logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("project", job.ProjectName),
		slog.Int("stage", job.StageIndex))

	project, err := e.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		return e.failJob(ctx, job, fmt.Errorf("loading project: %w", err))
	}

	result, err := e.stages.ExecuteStage(ctx, project, job.ChainID, job.StageIndex, nil)
	switch {
	case err == nil:
		return e.completeJob(ctx, job, result.Message)

	case errors.Is(err, core.ErrChainSuperseded):
		// A newer submission owns the project now; this whole chain is
		// obsolete.
		e.logger.Info("chain superseded",
			slog.String("job_id", job.ID.String()),
			slog.String("chain_id", job.ChainID))
		job.MarkCancelled()
		if uerr := e.jobs.Update(ctx, job); uerr != nil {
			return fmt.Errorf("updating cancelled job: %w", uerr)
		}
		e.recordHistory(ctx, job)
		e.cancelChain(ctx, job.ChainID)
		return nil

	default:
		return e.failJob(ctx, job, err)
	}
}

// completeJob marks the job done and promotes the chain's next stage. When
// no stage is left the chain is finalized.
func (e *Executor) completeJob(ctx context.Context, job *models.Job, result string) error {
	e.logger.Info("job completed",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("result", result))

	job.MarkCompleted(result)
	if err := e.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("updating completed job: %w", err)
	}
	e.recordHistory(ctx, job)

	promoted, err := e.jobs.UnblockNext(ctx, job.ChainID, job.StageIndex)
	if err != nil {
		return fmt.Errorf("unblocking next stage: %w", err)
	}
	if promoted != nil {
		e.logger.Debug("next stage unblocked",
			slog.String("chain_id", job.ChainID),
			slog.Int("stage", promoted.StageIndex))
		return nil
	}

	e.finalizeChain(ctx, job)
	return nil
}

// failJob marks the job failed, schedules a retry when attempts remain, and
// otherwise cancels the rest of the chain and the project.
func (e *Executor) failJob(ctx context.Context, job *models.Job, jobErr error) error {
	e.logger.Error("job failed",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.Any("error", jobErr))

	job.MarkFailed(jobErr)
	if job.CanRetry() {
		job.ScheduleRetry()
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", job.ID.String()),
			slog.Int("attempt", job.AttemptCount),
			slog.Time("next_run", job.NextRunAt.UTC()))
		if err := e.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("updating retried job: %w", err)
		}
		return nil
	}

	if err := e.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("updating failed job: %w", err)
	}
	e.recordHistory(ctx, job)
	e.cancelChain(ctx, job.ChainID)
	return nil
}

// finalizeChain settles the project's lifecycle state when its chain has no
// stages left. Full runs already land on ready_to_upload or completed
// through the stage bookkeeping; a partial chain that ends mid-pipeline
// drops the project back to an idle, resumable state.
func (e *Executor) finalizeChain(ctx context.Context, job *models.Job) {
	project, err := e.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		e.logger.Error("finalizing chain: loading project", slog.Any("error", err))
		return
	}
	if project.TaskHandle != job.ChainID || project.Status != models.ProjectStatusProcessing {
		return
	}

	if project.Progress >= models.ProgressForStage(models.TotalStages-2) {
		project.Status = models.ProjectStatusReadyToUpload
	} else {
		project.Status = models.ProjectStatusCreated
	}
	if err := e.projects.Update(ctx, project); err != nil {
		e.logger.Error("finalizing chain: updating project", slog.Any("error", err))
	}

	e.logger.Info("chain finished",
		slog.String("chain_id", job.ChainID),
		slog.String("project", job.ProjectName),
		slog.String("status", string(project.Status)))
}

// cancelChain cancels the unfinished remainder of a chain.
func (e *Executor) cancelChain(ctx context.Context, chainID string) {
	cancelled, err := e.jobs.CancelChain(ctx, chainID)
	if err != nil {
		e.logger.Error("cancelling chain", slog.String("chain_id", chainID), slog.Any("error", err))
		return
	}
	if cancelled > 0 {
		e.logger.Info("chain cancelled",
			slog.String("chain_id", chainID),
			slog.Int64("jobs", cancelled))
	}
}

// recordHistory creates the job history record for a finished job.
func (e *Executor) recordHistory(ctx context.Context, job *models.Job) {
	history := &models.JobHistory{
		JobID:         job.ID,
		Type:          job.Type,
		ProjectID:     job.ProjectID,
		ProjectName:   job.ProjectName,
		ChainID:       job.ChainID,
		StageIndex:    job.StageIndex,
		Status:        job.Status,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		DurationMs:    job.DurationMs,
		AttemptNumber: job.AttemptCount,
		Error:         job.LastError,
		Result:        job.Result,
	}

	if err := e.jobs.CreateHistory(ctx, history); err != nil {
		e.logger.Error("creating job history",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
	}
}
