package models

import (
	"time"

	"gorm.io/gorm"
)

// JobType represents the pipeline stage a job executes.
type JobType string

const (
	// JobTypeConvert normalizes raw recordings (stage 0).
	JobTypeConvert JobType = "stage_convert"
	// JobTypeCompose overlays webcam on screen (stage 1).
	JobTypeCompose JobType = "stage_compose"
	// JobTypeSilence trims silences (stage 2).
	JobTypeSilence JobType = "stage_silence"
	// JobTypeCutSources applies the silence cuts to the separate sources (stage 3).
	JobTypeCutSources JobType = "stage_cut_sources"
	// JobTypeTranscribe produces the timestamped transcript (stage 4).
	JobTypeTranscribe JobType = "stage_transcribe"
	// JobTypeShorts renders vertical shorts (stage 5).
	JobTypeShorts JobType = "stage_shorts"
	// JobTypeBroll discovers and downloads stock footage (stage 6).
	JobTypeBroll JobType = "stage_broll"
	// JobTypeIllustrate overlays B-roll onto the main cut (stage 7).
	JobTypeIllustrate JobType = "stage_illustrate"
	// JobTypeSEO generates publication metadata (stage 8).
	JobTypeSEO JobType = "stage_seo"
	// JobTypeThumbnail generates the thumbnail image (stage 9).
	JobTypeThumbnail JobType = "stage_thumbnail"
	// JobTypeSchedule builds the publication schedule (stage 10).
	JobTypeSchedule JobType = "stage_schedule"
	// JobTypePublish uploads scheduled items to the video host (stage 11).
	JobTypePublish JobType = "stage_publish"
)

// stageJobTypes maps stage index to job type, in pipeline order.
var stageJobTypes = [TotalStages]JobType{
	JobTypeConvert,
	JobTypeCompose,
	JobTypeSilence,
	JobTypeCutSources,
	JobTypeTranscribe,
	JobTypeShorts,
	JobTypeBroll,
	JobTypeIllustrate,
	JobTypeSEO,
	JobTypeThumbnail,
	JobTypeSchedule,
	JobTypePublish,
}

// JobTypeForStage returns the job type executing the given stage index.
func JobTypeForStage(stageIndex int) (JobType, error) {
	if stageIndex < 0 || stageIndex >= TotalStages {
		return "", ErrInvalidStageIndex
	}
	return stageJobTypes[stageIndex], nil
}

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is claimable.
	JobStatusPending JobStatus = "pending"
	// JobStatusBlocked indicates the job waits for an earlier chain stage.
	JobStatusBlocked JobStatus = "blocked"
	// JobStatusScheduled indicates the job is scheduled for future execution.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled (revocation or
	// short-circuit after an earlier chain stage failed).
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents one stage invocation within a submitted chain.
// A chain is the ordered set of jobs sharing a ChainID; only the
// lowest-indexed pending job of a chain is claimable at any time.
type Job struct {
	BaseModel

	// Type indicates which stage this job executes.
	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// ProjectID is the project this job operates on.
	ProjectID ULID `gorm:"type:varchar(26);not null;index" json:"project_id"`

	// ProjectName is a human-readable name for display purposes.
	ProjectName string `gorm:"size:255" json:"project_name,omitempty"`

	// ChainID groups the jobs of one submission. It doubles as the
	// task handle recorded on the project.
	ChainID string `gorm:"not null;size:36;index" json:"chain_id"`

	// StageIndex is the pipeline position of this job, 0-11.
	StageIndex int `gorm:"not null" json:"stage_index"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// NextRunAt is the timestamp when the job should next execute.
	NextRunAt *Time `gorm:"index" json:"next_run_at,omitempty"`

	// StartedAt is the timestamp when the job started executing.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job completed (successfully or with error).
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// AttemptCount is the number of times this job has been attempted.
	AttemptCount int `gorm:"default:0" json:"attempt_count"`

	// MaxAttempts is the maximum number of attempts (0 = no retries).
	// Stage failures are usually deterministic, so the default is 1:
	// the user resumes with a partial resubmission instead.
	MaxAttempts int `gorm:"default:1" json:"max_attempts"`

	// BackoffSeconds is the initial backoff duration in seconds for retries.
	// Each retry doubles the backoff up to a maximum.
	BackoffSeconds int `gorm:"default:60" json:"backoff_seconds"`

	// LastError contains the error message from the last failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// Result contains optional result data (e.g., counts, metrics).
	Result string `gorm:"size:4096" json:"result,omitempty"`

	// Priority determines execution order (higher = more important).
	Priority int `gorm:"default:0;index" json:"priority"`

	// LockedBy is the worker ID that has claimed this job.
	LockedBy string `gorm:"size:100;index" json:"locked_by,omitempty"`

	// LockedAt is the timestamp when the job was claimed.
	LockedAt *Time `json:"locked_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsPending returns true if the job is claimable or scheduled.
func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusScheduled
}

// IsRunning returns true if the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsFinished returns true if the job has completed (successfully or not).
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.AttemptCount < j.MaxAttempts
}

// MarkRunning marks the job as running.
func (j *Job) MarkRunning(workerID string) {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.LockedBy = workerID
	j.LockedAt = &now
	j.AttemptCount++
	j.LastError = ""
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted(result string) {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.Result = result
	j.LastError = ""

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now

	if err != nil {
		j.LastError = err.Error()
	}

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}

	j.LockedBy = ""
	j.LockedAt = nil
}

// MarkCancelled marks the job as cancelled.
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := Now()
	j.CompletedAt = &now
	j.LockedBy = ""
	j.LockedAt = nil
}

// CalculateNextBackoff returns the backoff duration for the next retry.
// Uses exponential backoff: base * 2^(attemptCount-1), capped at 1 hour.
func (j *Job) CalculateNextBackoff() time.Duration {
	if j.BackoffSeconds <= 0 {
		j.BackoffSeconds = 60 // Default 1 minute
	}

	// Ensure attemptCount is at least 1 to avoid negative shift
	attempts := j.AttemptCount
	if attempts < 1 {
		attempts = 1
	}

	multiplier := 1 << (attempts - 1) // 2^(attempts-1)
	if multiplier < 1 {
		multiplier = 1
	}

	backoffSecs := j.BackoffSeconds * multiplier

	// Cap at 1 hour
	maxBackoff := 3600
	if backoffSecs > maxBackoff {
		backoffSecs = maxBackoff
	}

	return time.Duration(backoffSecs) * time.Second
}

// ScheduleRetry schedules the job for retry with exponential backoff.
func (j *Job) ScheduleRetry() {
	if !j.CanRetry() {
		return
	}

	backoff := j.CalculateNextBackoff()
	nextRun := Now().Add(backoff)
	j.NextRunAt = &nextRun
	j.Status = JobStatusScheduled
	j.LockedBy = ""
	j.LockedAt = nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if j.ProjectID.IsZero() {
		return ErrProjectIDRequired
	}
	if j.StageIndex < 0 || j.StageIndex >= TotalStages {
		return ErrInvalidStageIndex
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates a ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook that validates the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}

// JobHistory stores historical execution records for completed jobs.
// This is separate from the main Job table to keep it lean.
type JobHistory struct {
	BaseModel

	// JobID is the ID of the original job.
	JobID ULID `gorm:"not null;index" json:"job_id"`

	// Type indicates which stage this job executed.
	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// ProjectID is the project the job operated on.
	ProjectID ULID `gorm:"type:varchar(26);index" json:"project_id,omitempty"`

	// ProjectName is a human-readable name for the project.
	ProjectName string `gorm:"size:255" json:"project_name,omitempty"`

	// ChainID groups the jobs of one submission.
	ChainID string `gorm:"size:36;index" json:"chain_id,omitempty"`

	// StageIndex is the pipeline position of the job.
	StageIndex int `json:"stage_index"`

	// Status indicates the final status of the job execution.
	Status JobStatus `gorm:"not null;size:20" json:"status"`

	// StartedAt is the timestamp when the job started executing.
	StartedAt *Time `gorm:"index" json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job completed.
	CompletedAt *Time `gorm:"index" json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// AttemptNumber is which attempt this was (1 = first attempt).
	AttemptNumber int `json:"attempt_number"`

	// Error contains the error message if the job failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// Result contains optional result data.
	Result string `gorm:"size:4096" json:"result,omitempty"`
}

// TableName returns the table name for JobHistory.
func (JobHistory) TableName() string {
	return "job_history"
}

// NewStageJob creates a job for one stage of a chain.
// Jobs after the chain's first stage start blocked; the executor
// unblocks each as its predecessor completes.
func NewStageJob(project *Project, chainID string, stageIndex int, first bool) (*Job, error) {
	jobType, err := JobTypeForStage(stageIndex)
	if err != nil {
		return nil, err
	}
	status := JobStatusBlocked
	if first {
		status = JobStatusPending
	}
	return &Job{
		Type:        jobType,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		ChainID:     chainID,
		StageIndex:  stageIndex,
		Status:      status,
	}, nil
}
