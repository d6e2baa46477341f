package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
)

// mockJobRepo implements repository.JobRepository for testing. The mutex
// matters for the runner tests, where workers touch the map concurrently.
type mockJobRepo struct {
	mu         sync.Mutex
	jobs       map[models.ULID]*models.Job
	history    []*models.JobHistory
	acquireErr error
	updateErr  error
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{
		jobs: make(map[models.ULID]*models.Job),
	}
}

func (m *mockJobRepo) add(job *models.Job) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = models.NewULID()
	}
	m.jobs[job.ID] = job
	return job
}

func (m *mockJobRepo) pendingLocked() []*models.Job {
	var jobs []*models.Job
	for _, j := range m.jobs {
		if j.IsPending() {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.Job) error {
	m.add(job)
	return nil
}

func (m *mockJobRepo) CreateChain(ctx context.Context, jobs []*models.Job) error {
	for _, job := range jobs {
		m.add(job)
	}
	return nil
}

func (m *mockJobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}

func (m *mockJobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.Job
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (m *mockJobRepo) GetPending(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked(), nil
}

func (m *mockJobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.Job
	for _, j := range m.jobs {
		if j.Status == status {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (m *mockJobRepo) GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.Job
	for _, j := range m.jobs {
		if j.ProjectID == projectID {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (m *mockJobRepo) GetByChainID(ctx context.Context, chainID string) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.Job
	for _, j := range m.jobs {
		if j.ChainID == chainID {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StageIndex < jobs[b].StageIndex })
	return jobs, nil
}

func (m *mockJobRepo) GetRunning(ctx context.Context) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.Job
	for _, j := range m.jobs {
		if j.IsRunning() {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (m *mockJobRepo) Update(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepo) Delete(ctx context.Context, id models.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockJobRepo) DeleteCompleted(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, j := range m.jobs {
		if j.IsFinished() && j.CompletedAt != nil && j.CompletedAt.Before(before) {
			delete(m.jobs, id)
			count++
		}
	}
	return count, nil
}

func (m *mockJobRepo) AcquireJob(ctx context.Context, workerID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	pending := m.pendingLocked()
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(a, b int) bool { return pending[a].StageIndex < pending[b].StageIndex })
	job := pending[0]
	job.MarkRunning(workerID)
	return job, nil
}

func (m *mockJobRepo) ReleaseJob(ctx context.Context, id models.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		job.Status = models.JobStatusPending
		job.LockedBy = ""
		job.LockedAt = nil
	}
	return nil
}

func (m *mockJobRepo) UnblockNext(ctx context.Context, chainID string, afterIndex int) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *models.Job
	for _, j := range m.jobs {
		if j.ChainID != chainID || j.Status != models.JobStatusBlocked || j.StageIndex <= afterIndex {
			continue
		}
		if next == nil || j.StageIndex < next.StageIndex {
			next = j
		}
	}
	if next != nil {
		next.Status = models.JobStatusPending
	}
	return next, nil
}

func (m *mockJobRepo) CancelChain(ctx context.Context, chainID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, j := range m.jobs {
		if j.ChainID == chainID && !j.IsFinished() && !j.IsRunning() {
			j.MarkCancelled()
			count++
		}
	}
	return count, nil
}

func (m *mockJobRepo) CreateHistory(ctx context.Context, history *models.JobHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, history)
	return nil
}

func (m *mockJobRepo) GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history, int64(len(m.history)), nil
}

func (m *mockJobRepo) DeleteHistory(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.JobHistory
	var count int64
	for _, h := range m.history {
		if h.CompletedAt != nil && h.CompletedAt.Before(before) {
			count++
			continue
		}
		kept = append(kept, h)
	}
	m.history = kept
	return count, nil
}

// mockProjectRepo implements repository.ProjectRepository for testing.
type mockProjectRepo struct {
	projects map[models.ULID]*models.Project
	getErr   error
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{
		projects: make(map[models.ULID]*models.Project),
	}
}

func (m *mockProjectRepo) add(project *models.Project) *models.Project {
	if project.ID.IsZero() {
		project.ID = models.NewULID()
	}
	m.projects[project.ID] = project
	return project
}

func (m *mockProjectRepo) Create(ctx context.Context, project *models.Project) error {
	m.add(project)
	return nil
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.projects[id], nil
}

func (m *mockProjectRepo) GetByFolderName(ctx context.Context, folderName string) (*models.Project, error) {
	for _, p := range m.projects {
		if p.FolderName == folderName {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockProjectRepo) GetAll(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	for _, p := range m.projects {
		projects = append(projects, p)
	}
	return projects, nil
}

func (m *mockProjectRepo) GetByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	var projects []*models.Project
	for _, p := range m.projects {
		if p.Status == status {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

func (m *mockProjectRepo) Update(ctx context.Context, project *models.Project) error {
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectRepo) UpdateProgress(ctx context.Context, id models.ULID, currentStep int, stepName string, progress int) error {
	if p, ok := m.projects[id]; ok {
		p.CurrentStep = currentStep
		p.StepName = stepName
		p.Progress = progress
	}
	return nil
}

func (m *mockProjectRepo) SetTaskHandle(ctx context.Context, id models.ULID, taskHandle string) error {
	if p, ok := m.projects[id]; ok {
		p.TaskHandle = taskHandle
	}
	return nil
}

func (m *mockProjectRepo) Delete(ctx context.Context, id models.ULID) error {
	delete(m.projects, id)
	return nil
}

func (m *mockProjectRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.projects)), nil
}

// mockStageRunner implements StageRunner for testing.
type mockStageRunner struct {
	result *core.StageResult
	err    error
	calls  []int
}

func (m *mockStageRunner) ExecuteStage(ctx context.Context, project *models.Project, chainID string, stageIndex int, metadata map[string]any) (*core.StageResult, error) {
	m.calls = append(m.calls, stageIndex)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &core.StageResult{Message: "ok"}, nil
}
