package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/service"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// fakeProjectRepo is an in-memory repository.ProjectRepository.
type fakeProjectRepo struct {
	projects map[models.ULID]*models.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: make(map[models.ULID]*models.Project)}
}

func (r *fakeProjectRepo) Create(ctx context.Context, p *models.Project) error {
	if p.ID.IsZero() {
		p.ID = models.NewULID()
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusCreated
	}
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, models.ErrProjectNotFound
	}
	return p, nil
}

func (r *fakeProjectRepo) GetByFolderName(ctx context.Context, folderName string) (*models.Project, error) {
	for _, p := range r.projects {
		if p.FolderName == folderName {
			return p, nil
		}
	}
	return nil, models.ErrProjectNotFound
}

func (r *fakeProjectRepo) GetAll(ctx context.Context) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProjectRepo) GetByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range r.projects {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeProjectRepo) Update(ctx context.Context, p *models.Project) error {
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) UpdateProgress(ctx context.Context, id models.ULID, currentStep int, stepName string, progress int) error {
	return nil
}

func (r *fakeProjectRepo) SetTaskHandle(ctx context.Context, id models.ULID, taskHandle string) error {
	if p, ok := r.projects[id]; ok {
		p.TaskHandle = taskHandle
	}
	return nil
}

func (r *fakeProjectRepo) Delete(ctx context.Context, id models.ULID) error {
	delete(r.projects, id)
	return nil
}

func (r *fakeProjectRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(r.projects)), nil
}

// fakeJobRepo records chain submissions; everything else is a no-op.
type fakeJobRepo struct {
	chains [][]*models.Job
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.Job) error { return nil }
func (r *fakeJobRepo) CreateChain(ctx context.Context, jobs []*models.Job) error {
	r.chains = append(r.chains, jobs)
	return nil
}
func (r *fakeJobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) GetAll(ctx context.Context) ([]*models.Job, error)     { return nil, nil }
func (r *fakeJobRepo) GetPending(ctx context.Context) ([]*models.Job, error) { return nil, nil }
func (r *fakeJobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) GetByChainID(ctx context.Context, chainID string) ([]*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) { return nil, nil }
func (r *fakeJobRepo) Update(ctx context.Context, job *models.Job) error     { return nil }
func (r *fakeJobRepo) Delete(ctx context.Context, id models.ULID) error      { return nil }
func (r *fakeJobRepo) DeleteCompleted(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeJobRepo) AcquireJob(ctx context.Context, workerID string) (*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) ReleaseJob(ctx context.Context, id models.ULID) error { return nil }
func (r *fakeJobRepo) UnblockNext(ctx context.Context, chainID string, afterIndex int) (*models.Job, error) {
	return nil, nil
}
func (r *fakeJobRepo) CancelChain(ctx context.Context, chainID string) (int64, error) {
	return 0, nil
}
func (r *fakeJobRepo) CreateHistory(ctx context.Context, history *models.JobHistory) error {
	return nil
}
func (r *fakeJobRepo) GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error) {
	return nil, 0, nil
}
func (r *fakeJobRepo) DeleteHistory(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type noopExecutor struct{}

func (noopExecutor) ExecuteStage(ctx context.Context, project *models.Project, chainID string, stageIndex int, metadata map[string]any) (*core.StageResult, error) {
	return &core.StageResult{}, nil
}

type handlerFixture struct {
	handler  *ProjectHandler
	service  *service.ProjectService
	projects *fakeProjectRepo
	jobs     *fakeJobRepo
	store    *storage.ProjectStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store, err := storage.NewProjectStore(t.TempDir())
	require.NoError(t, err)

	projects := newFakeProjectRepo()
	jobs := &fakeJobRepo{}
	svc := service.NewProjectService(projects, jobs, store, noopExecutor{})
	return &handlerFixture{
		handler:  NewProjectHandler(svc),
		service:  svc,
		projects: projects,
		jobs:     jobs,
		store:    store,
	}
}

func TestProjectHandler_CreateDerivesFolderName(t *testing.T) {
	f := newHandlerFixture(t)

	input := &CreateProjectInput{}
	input.Body.Name = "Ma Leçon Notion!"

	out, err := f.handler.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "Ma Leçon Notion!", out.Body.Name)
	assert.Equal(t, "ma_leon_notion", out.Body.FolderName)
	assert.Equal(t, models.ProjectStatusCreated, out.Body.Status)

	exists, err := f.store.Exists(out.Body.FolderName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProjectHandler_GetNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	_, err := f.handler.Get(context.Background(), &projectIDInput{ID: models.NewULID().String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = f.handler.Get(context.Background(), &projectIDInput{ID: "not-a-ulid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ID")
}

func TestProjectHandler_StartSubmitsChain(t *testing.T) {
	f := newHandlerFixture(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	require.NoError(t, f.projects.Create(context.Background(), project))

	out, err := f.handler.Start(context.Background(), &projectIDInput{ID: project.ID.String()})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Body.ChainID)
	require.Len(t, f.jobs.chains, 1)
	assert.Len(t, f.jobs.chains[0], models.TotalStages-1)
}

func TestProjectHandler_PublishGated(t *testing.T) {
	f := newHandlerFixture(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson", Status: models.ProjectStatusProcessing}
	require.NoError(t, f.projects.Create(context.Background(), project))

	_, err := f.handler.Publish(context.Background(), &projectIDInput{ID: project.ID.String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished pipeline run")
}

func TestProjectHandler_RerunRejectsBadRange(t *testing.T) {
	f := newHandlerFixture(t)
	project := &models.Project{Name: "Lesson", FolderName: "lesson"}
	require.NoError(t, f.projects.Create(context.Background(), project))

	input := &RerunInput{ID: project.ID.String()}
	input.Body.Start = 4
	input.Body.End = models.TotalStages - 1

	_, err := f.handler.Rerun(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stage range")
}

func TestProjectHandler_Progress(t *testing.T) {
	f := newHandlerFixture(t)
	project := &models.Project{
		Name:        "Lesson",
		FolderName:  "lesson",
		Status:      models.ProjectStatusProcessing,
		CurrentStep: 4,
		StepName:    "Transcription",
		Progress:    41,
	}
	require.NoError(t, f.projects.Create(context.Background(), project))

	out, err := f.handler.Progress(context.Background(), &projectIDInput{ID: project.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusProcessing, out.Body.Status)
	assert.Equal(t, 4, out.Body.CurrentStep)
	assert.Equal(t, "Transcription", out.Body.StepName)
	assert.Equal(t, 41, out.Body.Progress)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ma Super Formation", "ma_super_formation"},
		{"  Notion 101  ", "notion_101"},
		{"___", "project"},
		{"déjà-vu", "dj-vu"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}
