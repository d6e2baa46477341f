package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
)

func runningJob(t *testing.T, jobRepo *mockJobRepo, project *models.Project, chainID string, stageIndex int) *models.Job {
	t.Helper()
	job, err := models.NewStageJob(project, chainID, stageIndex, true)
	require.NoError(t, err)
	job.MarkRunning("worker-test")
	return jobRepo.add(job)
}

func TestExecutor_Execute_CompletesAndUnblocksNext(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	runner := &mockStageRunner{result: &core.StageResult{Message: "trimmed 4 silences"}}
	executor := NewExecutor(runner, jobRepo, projectRepo)

	project := projectRepo.add(&models.Project{
		Name:       "Lesson",
		FolderName: "lesson",
		Status:     models.ProjectStatusProcessing,
		TaskHandle: "chain-1",
	})
	job := runningJob(t, jobRepo, project, "chain-1", 2)

	next, err := models.NewStageJob(project, "chain-1", 3, false)
	require.NoError(t, err)
	next = jobRepo.add(next)

	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Equal(t, []int{2}, runner.calls)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "trimmed 4 silences", job.Result)
	assert.Equal(t, models.JobStatusPending, next.Status)

	require.Len(t, jobRepo.history, 1)
	assert.Equal(t, models.JobStatusCompleted, jobRepo.history[0].Status)
	assert.Equal(t, "chain-1", jobRepo.history[0].ChainID)

	// The chain is not over, so the project stays processing.
	assert.Equal(t, models.ProjectStatusProcessing, project.Status)
}

func TestExecutor_Execute_FinalizesFinishedChain(t *testing.T) {
	tests := []struct {
		name       string
		progress   int
		wantStatus models.ProjectStatus
	}{
		{"full run lands ready to upload", models.ProgressForStage(models.TotalStages - 2), models.ProjectStatusReadyToUpload},
		{"partial run drops back to idle", models.ProgressForStage(4), models.ProjectStatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobRepo := newMockJobRepo()
			projectRepo := newMockProjectRepo()
			executor := NewExecutor(&mockStageRunner{}, jobRepo, projectRepo)

			project := projectRepo.add(&models.Project{
				Name:       "Lesson",
				FolderName: "lesson",
				Status:     models.ProjectStatusProcessing,
				TaskHandle: "chain-1",
				Progress:   tt.progress,
			})
			job := runningJob(t, jobRepo, project, "chain-1", 4)

			require.NoError(t, executor.Execute(context.Background(), job))
			assert.Equal(t, tt.wantStatus, project.Status)
		})
	}
}

func TestExecutor_Execute_FinalizeSkipsSupersededChain(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	executor := NewExecutor(&mockStageRunner{}, jobRepo, projectRepo)

	// The project already belongs to a newer submission.
	project := projectRepo.add(&models.Project{
		Name:       "Lesson",
		FolderName: "lesson",
		Status:     models.ProjectStatusProcessing,
		TaskHandle: "chain-2",
	})
	job := runningJob(t, jobRepo, project, "chain-1", 4)

	require.NoError(t, executor.Execute(context.Background(), job))
	assert.Equal(t, models.ProjectStatusProcessing, project.Status)
}

func TestExecutor_Execute_SupersededCancelsChain(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	runner := &mockStageRunner{err: core.ErrChainSuperseded}
	executor := NewExecutor(runner, jobRepo, projectRepo)

	project := projectRepo.add(&models.Project{
		Name:       "Lesson",
		FolderName: "lesson",
		Status:     models.ProjectStatusProcessing,
		TaskHandle: "chain-2",
	})
	job := runningJob(t, jobRepo, project, "chain-1", 2)

	blocked, err := models.NewStageJob(project, "chain-1", 3, false)
	require.NoError(t, err)
	blocked = jobRepo.add(blocked)

	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, models.JobStatusCancelled, blocked.Status)
	require.Len(t, jobRepo.history, 1)
	assert.Equal(t, models.JobStatusCancelled, jobRepo.history[0].Status)
}

func TestExecutor_Execute_FailureCancelsRemainder(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	runner := &mockStageRunner{err: errors.New("encode failed")}
	executor := NewExecutor(runner, jobRepo, projectRepo)

	project := projectRepo.add(&models.Project{
		Name:       "Lesson",
		FolderName: "lesson",
		Status:     models.ProjectStatusProcessing,
		TaskHandle: "chain-1",
	})
	job := runningJob(t, jobRepo, project, "chain-1", 1)

	blocked, err := models.NewStageJob(project, "chain-1", 2, false)
	require.NoError(t, err)
	blocked = jobRepo.add(blocked)

	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "encode failed")
	assert.Equal(t, models.JobStatusCancelled, blocked.Status)
	require.Len(t, jobRepo.history, 1)
	assert.Equal(t, models.JobStatusFailed, jobRepo.history[0].Status)
}

func TestExecutor_Execute_FailureSchedulesRetry(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	runner := &mockStageRunner{err: errors.New("transient")}
	executor := NewExecutor(runner, jobRepo, projectRepo)

	project := projectRepo.add(&models.Project{
		Name:       "Lesson",
		FolderName: "lesson",
		Status:     models.ProjectStatusProcessing,
		TaskHandle: "chain-1",
	})
	job := runningJob(t, jobRepo, project, "chain-1", 0)
	job.MaxAttempts = 3

	blocked, err := models.NewStageJob(project, "chain-1", 1, false)
	require.NoError(t, err)
	blocked = jobRepo.add(blocked)

	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Equal(t, models.JobStatusScheduled, job.Status)
	require.NotNil(t, job.NextRunAt)
	// A retried job keeps the rest of the chain intact.
	assert.Equal(t, models.JobStatusBlocked, blocked.Status)
	assert.Empty(t, jobRepo.history)
}

func TestExecutor_Execute_ProjectLoadFailureFailsJob(t *testing.T) {
	jobRepo := newMockJobRepo()
	projectRepo := newMockProjectRepo()
	projectRepo.getErr = errors.New("database down")
	runner := &mockStageRunner{}
	executor := NewExecutor(runner, jobRepo, projectRepo)

	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	project.ID = models.NewULID()
	job := runningJob(t, jobRepo, project, "chain-1", 0)

	require.NoError(t, executor.Execute(context.Background(), job))

	assert.Empty(t, runner.calls)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "database down")
}
