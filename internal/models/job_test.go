package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_TableName(t *testing.T) {
	job := Job{}
	assert.Equal(t, "jobs", job.TableName())
}

func TestJobHistory_TableName(t *testing.T) {
	history := JobHistory{}
	assert.Equal(t, "job_history", history.TableName())
}

func TestJobTypeForStage(t *testing.T) {
	tests := []struct {
		stageIndex int
		want       JobType
		wantErr    bool
	}{
		{0, JobTypeConvert, false},
		{1, JobTypeCompose, false},
		{2, JobTypeSilence, false},
		{3, JobTypeCutSources, false},
		{4, JobTypeTranscribe, false},
		{5, JobTypeShorts, false},
		{6, JobTypeBroll, false},
		{7, JobTypeIllustrate, false},
		{8, JobTypeSEO, false},
		{9, JobTypeThumbnail, false},
		{10, JobTypeSchedule, false},
		{11, JobTypePublish, false},
		{-1, "", true},
		{12, "", true},
	}

	for _, tt := range tests {
		got, err := JobTypeForStage(tt.stageIndex)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidStageIndex)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestJob_StatusChecks(t *testing.T) {
	tests := []struct {
		name       string
		status     JobStatus
		isPending  bool
		isRunning  bool
		isFinished bool
	}{
		{"pending", JobStatusPending, true, false, false},
		{"blocked", JobStatusBlocked, false, false, false},
		{"scheduled", JobStatusScheduled, true, false, false},
		{"running", JobStatusRunning, false, true, false},
		{"completed", JobStatusCompleted, false, false, true},
		{"failed", JobStatusFailed, false, false, true},
		{"cancelled", JobStatusCancelled, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.status}
			assert.Equal(t, tt.isPending, job.IsPending())
			assert.Equal(t, tt.isRunning, job.IsRunning())
			assert.Equal(t, tt.isFinished, job.IsFinished())
		})
	}
}

func TestJob_MarkRunning(t *testing.T) {
	job := &Job{Status: JobStatusPending, LastError: "previous error"}
	job.MarkRunning("worker-1")

	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Equal(t, "worker-1", job.LockedBy)
	assert.NotNil(t, job.LockedAt)
	assert.NotNil(t, job.StartedAt)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Empty(t, job.LastError)
}

func TestJob_MarkCompleted(t *testing.T) {
	started := Now().Add(-2 * time.Second)
	job := &Job{Status: JobStatusRunning, StartedAt: &started, LockedBy: "worker-1"}
	job.MarkCompleted(`{"shorts": 3}`)

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, `{"shorts": 3}`, job.Result)
	assert.NotNil(t, job.CompletedAt)
	assert.GreaterOrEqual(t, job.DurationMs, int64(2000))
	assert.Empty(t, job.LockedBy)
	assert.Nil(t, job.LockedAt)
}

func TestJob_MarkFailed(t *testing.T) {
	started := Now()
	job := &Job{Status: JobStatusRunning, StartedAt: &started, LockedBy: "worker-1"}
	job.MarkFailed(errors.New("encoder exited with status 1"))

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "encoder exited with status 1", job.LastError)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.LockedBy)
}

func TestJob_MarkCancelled(t *testing.T) {
	job := &Job{Status: JobStatusBlocked, LockedBy: "worker-1"}
	job.MarkCancelled()

	assert.Equal(t, JobStatusCancelled, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.LockedBy)
}

func TestJob_CanRetry(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		attempts int
		max      int
		want     bool
	}{
		{"failed under budget", JobStatusFailed, 1, 3, true},
		{"failed at budget", JobStatusFailed, 3, 3, false},
		{"failed with no retries", JobStatusFailed, 1, 1, false},
		{"completed never retries", JobStatusCompleted, 0, 3, false},
		{"running never retries", JobStatusRunning, 1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.status, AttemptCount: tt.attempts, MaxAttempts: tt.max}
			assert.Equal(t, tt.want, job.CanRetry())
		})
	}
}

func TestJob_CalculateNextBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     int
		attempts int
		want     time.Duration
	}{
		{"first attempt", 60, 1, 60 * time.Second},
		{"second attempt doubles", 60, 2, 120 * time.Second},
		{"third attempt quadruples", 60, 3, 240 * time.Second},
		{"capped at one hour", 60, 10, 3600 * time.Second},
		{"zero base defaults to a minute", 0, 1, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{BackoffSeconds: tt.base, AttemptCount: tt.attempts}
			assert.Equal(t, tt.want, job.CalculateNextBackoff())
		})
	}
}

func TestJob_ScheduleRetry(t *testing.T) {
	t.Run("schedules when retryable", func(t *testing.T) {
		job := &Job{
			Status:         JobStatusFailed,
			AttemptCount:   1,
			MaxAttempts:    3,
			BackoffSeconds: 60,
			LockedBy:       "worker-1",
		}
		job.ScheduleRetry()

		assert.Equal(t, JobStatusScheduled, job.Status)
		require.NotNil(t, job.NextRunAt)
		assert.True(t, job.NextRunAt.After(Now()))
		assert.Empty(t, job.LockedBy)
	})

	t.Run("no-op when retry budget exhausted", func(t *testing.T) {
		job := &Job{Status: JobStatusFailed, AttemptCount: 1, MaxAttempts: 1}
		job.ScheduleRetry()

		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Nil(t, job.NextRunAt)
	})
}

func TestJob_Validate(t *testing.T) {
	projectID := NewULID()

	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{
			name: "valid",
			job:  Job{Type: JobTypeConvert, ProjectID: projectID, StageIndex: 0},
		},
		{
			name:    "missing type",
			job:     Job{ProjectID: projectID},
			wantErr: ErrJobTypeRequired,
		},
		{
			name:    "missing project",
			job:     Job{Type: JobTypeConvert},
			wantErr: ErrProjectIDRequired,
		},
		{
			name:    "stage index out of range",
			job:     Job{Type: JobTypeConvert, ProjectID: projectID, StageIndex: 12},
			wantErr: ErrInvalidStageIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewStageJob(t *testing.T) {
	project := &Project{
		BaseModel:  BaseModel{ID: NewULID()},
		Name:       "lesson-12",
		FolderName: "lesson-12",
	}

	first, err := NewStageJob(project, "chain-abc", 0, true)
	require.NoError(t, err)
	assert.Equal(t, JobTypeConvert, first.Type)
	assert.Equal(t, JobStatusPending, first.Status)
	assert.Equal(t, "chain-abc", first.ChainID)
	assert.Equal(t, project.ID, first.ProjectID)

	rest, err := NewStageJob(project, "chain-abc", 1, false)
	require.NoError(t, err)
	assert.Equal(t, JobTypeCompose, rest.Type)
	assert.Equal(t, JobStatusBlocked, rest.Status)

	_, err = NewStageJob(project, "chain-abc", 99, false)
	assert.ErrorIs(t, err, ErrInvalidStageIndex)
}
