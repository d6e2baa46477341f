package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibeacademy/vidarr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupProjectTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Project{})
	require.NoError(t, err)

	return db
}

func TestProjectRepo_Create(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{
		Name:       "lesson-12",
		FolderName: "lesson-12",
		Status:     models.ProjectStatusCreated,
		Config: models.ProjectConfig{
			Layout:      "overlay",
			WebcamX:     1486,
			WebcamY:     645,
			WebcamSize:  389,
			WebcamShape: "circle",
		},
	}

	err := repo.Create(ctx, project)
	require.NoError(t, err)
	assert.False(t, project.ID.IsZero())

	found, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "lesson-12", found.Name)
	assert.Equal(t, "circle", found.Config.WebcamShape)
	assert.Equal(t, 1486, found.Config.WebcamX)
}

func TestProjectRepo_Create_DuplicateFolderName(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	first := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, first))

	dup := &models.Project{Name: "lesson-12 again", FolderName: "lesson-12"}
	err := repo.Create(ctx, dup)
	assert.Error(t, err)
}

func TestProjectRepo_GetByFolderName(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, project))

	t.Run("existing project", func(t *testing.T) {
		found, err := repo.GetByFolderName(ctx, "lesson-12")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, project.ID, found.ID)
	})

	t.Run("non-existent project", func(t *testing.T) {
		found, err := repo.GetByFolderName(ctx, "no-such-folder")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestProjectRepo_GetByStatus(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	projects := []*models.Project{
		{Name: "a", FolderName: "a", Status: models.ProjectStatusProcessing},
		{Name: "b", FolderName: "b", Status: models.ProjectStatusProcessing},
		{Name: "c", FolderName: "c", Status: models.ProjectStatusReadyToUpload},
	}
	for _, project := range projects {
		require.NoError(t, repo.Create(ctx, project))
	}

	processing, err := repo.GetByStatus(ctx, models.ProjectStatusProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 2)

	ready, err := repo.GetByStatus(ctx, models.ProjectStatusReadyToUpload)
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestProjectRepo_Update_PersistsStepsAndOutputs(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, project))

	project.MarkStepProcessing(0, "convert")
	project.MarkStepCompleted(0, "convert")
	project.RecordOutput("screen", "screen.mp4")
	require.NoError(t, repo.Update(ctx, project))

	found, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.StepStatusCompleted, found.Steps["convert"].Status)
	assert.Equal(t, "screen.mp4", found.Outputs["screen"])
	assert.Equal(t, 8, found.Progress)
}

func TestProjectRepo_UpdateProgress(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, project))

	require.NoError(t, repo.UpdateProgress(ctx, project.ID, 4, "transcribe", 41))

	found, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, found.CurrentStep)
	assert.Equal(t, "transcribe", found.StepName)
	assert.Equal(t, 41, found.Progress)

	t.Run("missing project", func(t *testing.T) {
		err := repo.UpdateProgress(ctx, models.NewULID(), 1, "compose", 16)
		assert.ErrorIs(t, err, models.ErrProjectNotFound)
	})
}

func TestProjectRepo_SetTaskHandle(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, project))

	handle := models.NewULID().String()
	require.NoError(t, repo.SetTaskHandle(ctx, project.ID, handle))

	found, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, handle, found.TaskHandle)

	t.Run("missing project", func(t *testing.T) {
		err := repo.SetTaskHandle(ctx, models.NewULID(), handle)
		assert.ErrorIs(t, err, models.ErrProjectNotFound)
	})
}

func TestProjectRepo_Delete(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, repo.Create(ctx, project))

	require.NoError(t, repo.Delete(ctx, project.ID))

	found, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestProjectRepo_Count(t *testing.T) {
	db := setupProjectTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, repo.Create(ctx, &models.Project{Name: "a", FolderName: "a"}))
	require.NoError(t, repo.Create(ctx, &models.Project{Name: "b", FolderName: "b"}))

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
