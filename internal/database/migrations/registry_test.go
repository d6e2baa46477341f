package migrations

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

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	versions := make(map[string]bool)

	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate version: %s", m.Version)
		versions[m.Version] = true
	}
}

func TestAllMigrations_VersionsAreOrdered(t *testing.T) {
	migrations := AllMigrations()

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version,
			"migrations should be in ascending version order")
	}
}

func TestMigrator_Up_AllMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	require.NoError(t, migrator.Up(ctx))

	for _, table := range []string{"projects", "jobs", "job_history", "schema_migrations"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}

	// Chain columns exist after migration 002.
	assert.True(t, db.Migrator().HasColumn(&models.Job{}, "chain_id"))
	assert.True(t, db.Migrator().HasColumn(&models.Job{}, "stage_index"))
}

func TestMigrator_Up_IsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Up(ctx))

	var count int64
	require.NoError(t, db.Model(&MigrationRecord{}).Count(&count).Error)
	assert.Equal(t, int64(len(AllMigrations())), count)
}

func TestMigrator_Status(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, status := range statuses {
		assert.False(t, status.Applied)
	}

	require.NoError(t, migrator.Up(ctx))

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)
	for _, status := range statuses {
		assert.True(t, status.Applied)
		assert.NotNil(t, status.AppliedAt)
	}
}

func TestMigrator_Down_RollsBackLast(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Down(ctx))

	var count int64
	require.NoError(t, db.Model(&MigrationRecord{}).Count(&count).Error)
	assert.Equal(t, int64(len(AllMigrations())-1), count)
}

func TestMigrator_SchemaSupportsRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())
	require.NoError(t, migrator.Up(ctx))

	project := &models.Project{Name: "lesson-12", FolderName: "lesson-12"}
	require.NoError(t, db.Create(project).Error)

	job, err := models.NewStageJob(project, models.NewULID().String(), 0, true)
	require.NoError(t, err)
	require.NoError(t, db.Create(job).Error)

	var stored models.Job
	require.NoError(t, db.First(&stored, "chain_id = ?", job.ChainID).Error)
	assert.Equal(t, models.JobTypeConvert, stored.Type)
}
