package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/service"
)

// ProjectHandler handles project API endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// Register registers the project routes with the API.
func (h *ProjectHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listProjects",
		Method:      "GET",
		Path:        "/api/v1/projects",
		Summary:     "List projects",
		Tags:        []string{"Projects"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createProject",
		Method:        "POST",
		Path:          "/api/v1/projects",
		Summary:       "Create project",
		Description:   "Registers a project and creates its artifact directory",
		Tags:          []string{"Projects"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getProject",
		Method:      "GET",
		Path:        "/api/v1/projects/{id}",
		Summary:     "Get project",
		Tags:        []string{"Projects"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "deleteProject",
		Method:      "DELETE",
		Path:        "/api/v1/projects/{id}",
		Summary:     "Delete project",
		Description: "Deletes the registry record, the artifact directory, and the blob mirror",
		Tags:        []string{"Projects"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "getProjectProgress",
		Method:      "GET",
		Path:        "/api/v1/projects/{id}/progress",
		Summary:     "Get project progress",
		Description: "Lightweight polling endpoint for the capture frontend",
		Tags:        []string{"Projects"},
	}, h.Progress)

	huma.Register(api, huma.Operation{
		OperationID: "startProject",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/start",
		Summary:     "Start processing",
		Description: "Submits the automatic pipeline (through scheduling; publication is separate)",
		Tags:        []string{"Projects"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopProject",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/stop",
		Summary:     "Stop processing",
		Description: "Revokes the running chain; artifacts are preserved",
		Tags:        []string{"Projects"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "rebootProject",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/reboot",
		Summary:     "Reboot project",
		Description: "Trims the artifact directory to its seed set and restarts the full pipeline",
		Tags:        []string{"Projects"},
	}, h.Reboot)

	huma.Register(api, huma.Operation{
		OperationID: "rerunProjectStages",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/rerun",
		Summary:     "Rerun a stage range",
		Description: "Resubmits stages [start..end] of the pipeline",
		Tags:        []string{"Projects"},
	}, h.Rerun)

	huma.Register(api, huma.Operation{
		OperationID: "publishProject",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/publish",
		Summary:     "Publish project",
		Description: "Submits the publication stage; requires a finished pipeline run",
		Tags:        []string{"Projects"},
	}, h.Publish)

	huma.Register(api, huma.Operation{
		OperationID: "regenerateThumbnail",
		Method:      "POST",
		Path:        "/api/v1/projects/{id}/thumbnail",
		Summary:     "Regenerate thumbnail",
		Description: "Reruns the thumbnail stage with optional user corrections",
		Tags:        []string{"Projects"},
	}, h.RegenerateThumbnail)
}

// ListProjectsOutput is the output for the list endpoint.
type ListProjectsOutput struct {
	Body struct {
		Projects []ProjectResponse `json:"projects"`
	}
}

// List returns all projects.
func (h *ProjectHandler) List(ctx context.Context, _ *struct{}) (*ListProjectsOutput, error) {
	projects, err := h.projects.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing projects", err)
	}

	out := &ListProjectsOutput{}
	out.Body.Projects = make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out.Body.Projects = append(out.Body.Projects, ProjectFromModel(p))
	}
	return out, nil
}

// CreateProjectInput is the input for the create endpoint.
type CreateProjectInput struct {
	Body CreateProjectRequest
}

// ProjectOutput wraps a single project response.
type ProjectOutput struct {
	Body ProjectResponse
}

// Create registers a new project.
func (h *ProjectHandler) Create(ctx context.Context, input *CreateProjectInput) (*ProjectOutput, error) {
	folderName := input.Body.FolderName
	if folderName == "" {
		folderName = slugify(input.Body.Name)
	}

	project := &models.Project{
		Name:       input.Body.Name,
		FolderName: folderName,
		CanvasMode: input.Body.CanvasMode,
		Config:     input.Body.Config,
	}
	if err := h.projects.Create(ctx, project); err != nil {
		return nil, huma.Error422UnprocessableEntity("creating project", err)
	}
	return &ProjectOutput{Body: ProjectFromModel(project)}, nil
}

type projectIDInput struct {
	ID string `path:"id" doc:"Project ID"`
}

// Get returns a project by ID.
func (h *ProjectHandler) Get(ctx context.Context, input *projectIDInput) (*ProjectOutput, error) {
	project, err := h.load(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ProjectOutput{Body: ProjectFromModel(project)}, nil
}

// DeleteOutput is the output for deletion.
type DeleteOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// Delete removes a project and all of its artifacts.
func (h *ProjectHandler) Delete(ctx context.Context, input *projectIDInput) (*DeleteOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.projects.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrProjectNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("project %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("deleting project", err)
	}
	out := &DeleteOutput{}
	out.Body.Deleted = true
	return out, nil
}

// ProgressOutput is the output for the progress endpoint.
type ProgressOutput struct {
	Body ProgressResponse
}

// Progress returns the step tracking state of a project.
func (h *ProjectHandler) Progress(ctx context.Context, input *projectIDInput) (*ProgressOutput, error) {
	project, err := h.load(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ProgressOutput{Body: ProgressResponse{
		Status:      project.Status,
		CurrentStep: project.CurrentStep,
		StepName:    project.StepName,
		Progress:    project.Progress,
		Error:       project.Error,
	}}, nil
}

// SubmissionOutput reports a chain submission.
type SubmissionOutput struct {
	Body struct {
		ChainID string `json:"chain_id"`
	}
}

// Start submits the automatic pipeline for a project.
func (h *ProjectHandler) Start(ctx context.Context, input *projectIDInput) (*SubmissionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	chainID, err := h.projects.SubmitFull(ctx, id)
	if err != nil {
		return nil, submissionError(input.ID, err)
	}
	return submissionOutput(chainID), nil
}

// Stop revokes a project's running chain.
func (h *ProjectHandler) Stop(ctx context.Context, input *projectIDInput) (*ProjectOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.projects.Revoke(ctx, id); err != nil {
		if errors.Is(err, models.ErrProjectNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("project %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("stopping project", err)
	}
	project, err := h.projects.Get(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading project", err)
	}
	return &ProjectOutput{Body: ProjectFromModel(project)}, nil
}

// Reboot trims a project back to its seed inputs and restarts processing.
func (h *ProjectHandler) Reboot(ctx context.Context, input *projectIDInput) (*SubmissionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	chainID, err := h.projects.Reboot(ctx, id)
	if err != nil {
		return nil, submissionError(input.ID, err)
	}
	return submissionOutput(chainID), nil
}

// RerunInput is the input for a partial resubmission.
type RerunInput struct {
	ID   string `path:"id" doc:"Project ID"`
	Body struct {
		Start int `json:"start" minimum:"0" doc:"First stage index to run"`
		End   int `json:"end" minimum:"0" doc:"Last stage index to run (inclusive)"`
	}
}

// Rerun resubmits a stage range.
func (h *ProjectHandler) Rerun(ctx context.Context, input *RerunInput) (*SubmissionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	chainID, err := h.projects.SubmitPartial(ctx, id, input.Body.Start, input.Body.End)
	if err != nil {
		return nil, submissionError(input.ID, err)
	}
	return submissionOutput(chainID), nil
}

// Publish submits the publication stage.
func (h *ProjectHandler) Publish(ctx context.Context, input *projectIDInput) (*SubmissionOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	chainID, err := h.projects.SubmitPublication(ctx, id)
	if err != nil {
		return nil, submissionError(input.ID, err)
	}
	return submissionOutput(chainID), nil
}

// RegenerateThumbnailInput is the input for thumbnail regeneration.
type RegenerateThumbnailInput struct {
	ID   string `path:"id" doc:"Project ID"`
	Body struct {
		Corrections string `json:"corrections,omitempty" doc:"Free-form corrections appended to the generation prompt" maxLength:"2000"`
	}
}

// RegenerateOutput reports a synchronous regeneration.
type RegenerateOutput struct {
	Body struct {
		Regenerated bool `json:"regenerated"`
	}
}

// RegenerateThumbnail reruns the thumbnail stage with user corrections.
func (h *ProjectHandler) RegenerateThumbnail(ctx context.Context, input *RegenerateThumbnailInput) (*RegenerateOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	if err := h.projects.RegenerateThumbnail(ctx, id, input.Body.Corrections); err != nil {
		switch {
		case errors.Is(err, models.ErrProjectNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("project %s not found", input.ID))
		case errors.Is(err, service.ErrProjectBusy):
			return nil, huma.Error409Conflict("project has a running chain")
		default:
			return nil, huma.Error500InternalServerError("regenerating thumbnail", err)
		}
	}
	out := &RegenerateOutput{}
	out.Body.Regenerated = true
	return out, nil
}

func (h *ProjectHandler) load(ctx context.Context, rawID string) (*models.Project, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}
	project, err := h.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrProjectNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("project %s not found", rawID))
		}
		return nil, huma.Error500InternalServerError("loading project", err)
	}
	return project, nil
}

func submissionOutput(chainID string) *SubmissionOutput {
	out := &SubmissionOutput{}
	out.Body.ChainID = chainID
	return out
}

func submissionError(rawID string, err error) error {
	switch {
	case errors.Is(err, models.ErrProjectNotFound):
		return huma.Error404NotFound(fmt.Sprintf("project %s not found", rawID))
	case errors.Is(err, service.ErrPublishNotAllowed):
		return huma.Error409Conflict("publication requires a finished pipeline run", err)
	case errors.Is(err, service.ErrInvalidStageRange):
		return huma.Error422UnprocessableEntity("invalid stage range", err)
	default:
		return huma.Error500InternalServerError("submitting chain", err)
	}
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// slugify derives an artifact directory name from a project name.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = slugUnsafe.ReplaceAllString(s, "")
	s = strings.Trim(s, "_-")
	if s == "" {
		s = "project"
	}
	return s
}
