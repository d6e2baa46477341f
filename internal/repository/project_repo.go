package repository

import (
	"context"
	"fmt"

	"github.com/vibeacademy/vidarr/internal/models"
	"gorm.io/gorm"
)

// projectRepo implements ProjectRepository using GORM.
type projectRepo struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *gorm.DB) *projectRepo {
	return &projectRepo{db: db}
}

// Create creates a new project.
func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID.
func (r *projectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting project by ID: %w", err)
	}
	return &project, nil
}

// GetByFolderName retrieves a project by its artifact directory name.
func (r *projectRepo) GetByFolderName(ctx context.Context, folderName string) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("folder_name = ?", folderName).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting project by folder name: %w", err)
	}
	return &project, nil
}

// GetAll retrieves all projects, newest first.
func (r *projectRepo) GetAll(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("getting all projects: %w", err)
	}
	return projects, nil
}

// GetByStatus retrieves projects with the given lifecycle state.
func (r *projectRepo) GetByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	var projects []*models.Project
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("getting projects by status: %w", err)
	}
	return projects, nil
}

// Update updates an existing project.
func (r *projectRepo) Update(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return nil
}

// UpdateProgress updates only the step tracking columns.
func (r *projectRepo) UpdateProgress(ctx context.Context, id models.ULID, currentStep int, stepName string, progress int) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"current_step": currentStep,
			"step_name":    stepName,
			"progress":     progress,
		})

	if result.Error != nil {
		return fmt.Errorf("updating project progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrProjectNotFound
	}
	return nil
}

// SetTaskHandle records the chain id of the most recent submission.
// Stages compare their chain id against this column to detect revocation,
// so the write must be visible before the chain is queued.
func (r *projectRepo) SetTaskHandle(ctx context.Context, id models.ULID, taskHandle string) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).
		UpdateColumn("task_handle", taskHandle)

	if result.Error != nil {
		return fmt.Errorf("setting task handle: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrProjectNotFound
	}
	return nil
}

// Delete deletes a project by ID.
func (r *projectRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Project{}).Error; err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return nil
}

// Count returns the total number of projects.
func (r *projectRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Project{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return count, nil
}

// Ensure projectRepo implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepo)(nil)
