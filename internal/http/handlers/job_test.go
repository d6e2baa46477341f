package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
)

// listingJobRepo layers canned list/history results over fakeJobRepo.
type listingJobRepo struct {
	fakeJobRepo
	jobs    []*models.Job
	history []*models.JobHistory
}

func (r *listingJobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	return r.jobs, nil
}

func (r *listingJobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var out []*models.Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *listingJobRepo) GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error) {
	records := r.history
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if limit < len(records) {
		records = records[:limit]
	}
	return records, int64(len(r.history)), nil
}

func TestJobHandler_List(t *testing.T) {
	repo := &listingJobRepo{
		jobs: []*models.Job{
			{Type: models.JobTypeConvert, ChainID: "chain-1", StageIndex: 0, Status: models.JobStatusRunning},
			{Type: models.JobTypeCompose, ChainID: "chain-1", StageIndex: 1, Status: models.JobStatusBlocked},
		},
	}
	handler := NewJobHandler(repo, nil)

	out, err := handler.List(context.Background(), &ListJobsInput{})
	require.NoError(t, err)
	require.Len(t, out.Body.Jobs, 2)
	assert.Equal(t, "chain-1", out.Body.Jobs[0].ChainID)

	out, err = handler.List(context.Background(), &ListJobsInput{Status: "running"})
	require.NoError(t, err)
	require.Len(t, out.Body.Jobs, 1)
	assert.Equal(t, models.JobStatusRunning, out.Body.Jobs[0].Status)
}

func TestJobHandler_HistoryPagination(t *testing.T) {
	repo := &listingJobRepo{}
	for i := 0; i < 5; i++ {
		repo.history = append(repo.history, &models.JobHistory{
			BaseModel: models.BaseModel{ID: models.NewULID()},
			Type:      models.JobTypeConvert,
			Status:    models.JobStatusCompleted,
		})
	}
	handler := NewJobHandler(repo, nil)

	out, err := handler.History(context.Background(), &HistoryInput{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Body.Total)
	assert.Len(t, out.Body.History, 2)
}
