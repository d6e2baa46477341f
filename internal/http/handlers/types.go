// Package handlers provides the HTTP API handlers for vidarr. Handlers stay
// thin: validate input, call the service layer, serialize registry state.
package handlers

import (
	"time"

	"github.com/vibeacademy/vidarr/internal/models"
)

// ProjectResponse represents a project in API responses.
type ProjectResponse struct {
	ID          models.ULID                 `json:"id"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	Name        string                      `json:"name"`
	FolderName  string                      `json:"folder_name"`
	Status      models.ProjectStatus        `json:"status"`
	CurrentStep int                         `json:"current_step"`
	StepName    string                      `json:"step_name,omitempty"`
	Progress    int                         `json:"progress"`
	CanvasMode  bool                        `json:"canvas_mode"`
	Config      models.ProjectConfig        `json:"config"`
	Steps       map[string]models.StepState `json:"steps,omitempty"`
	Outputs     map[string]string           `json:"outputs,omitempty"`
	Error       string                      `json:"error,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// ProjectFromModel converts a registry record to a response.
func ProjectFromModel(p *models.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Name:        p.Name,
		FolderName:  p.FolderName,
		Status:      p.Status,
		CurrentStep: p.CurrentStep,
		StepName:    p.StepName,
		Progress:    p.Progress,
		CanvasMode:  p.CanvasMode,
		Config:      p.Config,
		Steps:       p.Steps,
		Outputs:     p.Outputs,
		Error:       p.Error,
		CompletedAt: p.CompletedAt,
	}
}

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Name       string               `json:"name" doc:"Human-readable project name" minLength:"1" maxLength:"255"`
	FolderName string               `json:"folder_name,omitempty" doc:"Artifact directory name; derived from the name when empty" maxLength:"255"`
	CanvasMode bool                 `json:"canvas_mode,omitempty" doc:"True when the recording is a single pre-composited file"`
	Config     models.ProjectConfig `json:"config,omitempty" doc:"Compositing parameters"`
}

// ProgressResponse is the polling payload for the capture frontend.
type ProgressResponse struct {
	Status      models.ProjectStatus `json:"status"`
	CurrentStep int                  `json:"current_step"`
	StepName    string               `json:"step_name,omitempty"`
	Progress    int                  `json:"progress"`
	Error       string               `json:"error,omitempty"`
}
