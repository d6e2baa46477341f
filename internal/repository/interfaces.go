// Package repository defines data access interfaces for vidarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/vibeacademy/vidarr/internal/models"
)

// ProjectRepository defines operations for project persistence.
type ProjectRepository interface {
	// Create creates a new project.
	Create(ctx context.Context, project *models.Project) error
	// GetByID retrieves a project by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Project, error)
	// GetByFolderName retrieves a project by its artifact directory name.
	GetByFolderName(ctx context.Context, folderName string) (*models.Project, error)
	// GetAll retrieves all projects, newest first.
	GetAll(ctx context.Context) ([]*models.Project, error)
	// GetByStatus retrieves projects with the given lifecycle state.
	GetByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error)
	// Update updates an existing project.
	Update(ctx context.Context, project *models.Project) error
	// UpdateProgress updates only the step tracking columns, bypassing
	// full-record saves so concurrent stage updates don't clobber each other.
	UpdateProgress(ctx context.Context, id models.ULID, currentStep int, stepName string, progress int) error
	// SetTaskHandle records the chain id of the most recent submission.
	SetTaskHandle(ctx context.Context, id models.ULID, taskHandle string) error
	// Delete deletes a project by ID.
	Delete(ctx context.Context, id models.ULID) error
	// Count returns the total number of projects.
	Count(ctx context.Context) (int64, error)
}

// JobRepository defines operations for job persistence.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// CreateChain creates all jobs of one chain in a single transaction.
	CreateChain(ctx context.Context, jobs []*models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetPending retrieves all pending/scheduled jobs ready for execution.
	GetPending(ctx context.Context) ([]*models.Job, error)
	// GetByStatus retrieves jobs by status.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// GetByProjectID retrieves jobs for a specific project, newest first.
	GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.Job, error)
	// GetByChainID retrieves the jobs of one chain in stage order.
	GetByChainID(ctx context.Context, chainID string) ([]*models.Job, error)
	// GetRunning retrieves all currently running jobs.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// Update updates an existing job.
	Update(ctx context.Context, job *models.Job) error
	// Delete deletes a job by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteCompleted deletes finished jobs older than the specified time.
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)
	// AcquireJob atomically acquires a claimable job (sets status to running).
	// Returns nil if no jobs are available or if another worker acquired it first.
	AcquireJob(ctx context.Context, workerID string) (*models.Job, error)
	// ReleaseJob releases a job lock (used when a worker fails unexpectedly).
	ReleaseJob(ctx context.Context, id models.ULID) error
	// UnblockNext promotes the lowest-indexed blocked job of a chain above
	// the given stage index to pending. Returns the promoted job, or nil
	// when the chain has no further stages.
	UnblockNext(ctx context.Context, chainID string, afterIndex int) (*models.Job, error)
	// CancelChain cancels every unfinished job of a chain. Running jobs are
	// left alone; they observe revocation through the project task handle.
	CancelChain(ctx context.Context, chainID string) (int64, error)
	// CreateHistory creates a job history record.
	CreateHistory(ctx context.Context, history *models.JobHistory) error
	// GetHistory retrieves job history with pagination.
	GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error)
	// DeleteHistory deletes history records older than the specified time.
	DeleteHistory(ctx context.Context, before time.Time) (int64, error)
}
