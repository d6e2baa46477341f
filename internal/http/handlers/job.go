package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/repository"
	"github.com/vibeacademy/vidarr/internal/scheduler"
)

// JobHandler exposes the queue for inspection: live jobs, execution
// history, and runner status.
type JobHandler struct {
	jobs   repository.JobRepository
	runner *scheduler.Runner
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs repository.JobRepository, runner *scheduler.Runner) *JobHandler {
	return &JobHandler{jobs: jobs, runner: runner}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns all live queue rows",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listJobHistory",
		Method:      "GET",
		Path:        "/api/v1/jobs/history",
		Summary:     "Job execution history",
		Tags:        []string{"Jobs"},
	}, h.History)

	huma.Register(api, huma.Operation{
		OperationID: "getRunnerStatus",
		Method:      "GET",
		Path:        "/api/v1/jobs/runner",
		Summary:     "Runner status",
		Tags:        []string{"Jobs"},
	}, h.RunnerStatus)
}

// JobResponse represents a queue row in API responses.
type JobResponse struct {
	ID          models.ULID      `json:"id"`
	Type        models.JobType   `json:"type"`
	ProjectID   models.ULID      `json:"project_id"`
	ProjectName string           `json:"project_name,omitempty"`
	ChainID     string           `json:"chain_id"`
	StageIndex  int              `json:"stage_index"`
	Status      models.JobStatus `json:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	Result      string           `json:"result,omitempty"`
}

func jobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Type:        j.Type,
		ProjectID:   j.ProjectID,
		ProjectName: j.ProjectName,
		ChainID:     j.ChainID,
		StageIndex:  j.StageIndex,
		Status:      j.Status,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		DurationMs:  j.DurationMs,
		Attempts:    j.AttemptCount,
		LastError:   j.LastError,
		Result:      j.Result,
	}
}

// ListJobsInput filters the job list by status.
type ListJobsInput struct {
	Status string `query:"status" enum:"pending,blocked,scheduled,running,completed,failed,cancelled," doc:"Filter by status"`
}

// ListJobsOutput is the output for the job list.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns the live queue rows, optionally filtered by status.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var (
		jobs []*models.Job
		err  error
	)
	if input.Status != "" {
		jobs, err = h.jobs.GetByStatus(ctx, models.JobStatus(input.Status))
	} else {
		jobs, err = h.jobs.GetAll(ctx)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("listing jobs", err)
	}

	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out.Body.Jobs = append(out.Body.Jobs, jobFromModel(j))
	}
	return out, nil
}

// HistoryInput paginates the history list.
type HistoryInput struct {
	Type  string `query:"type" doc:"Filter by job type"`
	Page  int    `query:"page" default:"1" minimum:"1"`
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
}

// HistoryOutput is the output for the history list.
type HistoryOutput struct {
	Body struct {
		History []models.JobHistory `json:"history"`
		Total   int64               `json:"total"`
	}
}

// History returns job execution records, newest first.
func (h *JobHandler) History(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	var jobType *models.JobType
	if input.Type != "" {
		t := models.JobType(input.Type)
		jobType = &t
	}

	offset := (input.Page - 1) * input.Limit
	records, total, err := h.jobs.GetHistory(ctx, jobType, offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing job history", err)
	}

	out := &HistoryOutput{}
	out.Body.Total = total
	out.Body.History = make([]models.JobHistory, 0, len(records))
	for _, r := range records {
		out.Body.History = append(out.Body.History, *r)
	}
	return out, nil
}

// RunnerStatusOutput is the output for the runner status endpoint.
type RunnerStatusOutput struct {
	Body scheduler.RunnerStatus
}

// RunnerStatus returns the worker pool status.
func (h *JobHandler) RunnerStatus(ctx context.Context, _ *struct{}) (*RunnerStatusOutput, error) {
	return &RunnerStatusOutput{Body: h.runner.GetStatus()}, nil
}
