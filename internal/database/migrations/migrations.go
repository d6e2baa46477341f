// Package migrations tracks schema versions for vidarr. Each migration is
// a pair of Up/Down functions applied inside a transaction and recorded in
// the schema_migrations table.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration is one versioned schema change. Down may be nil for
// irreversible changes.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// MigrationRecord is the persisted marker for an applied migration.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus pairs a registered migration with its applied state.
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a Migrator over db.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}
}

// RegisterAll adds migrations to the registry. Registration order does not
// matter; versions are sorted before applying.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
}

// Init ensures the tracking table exists.
func (m *Migrator) Init(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{})
}

// Up applies every registered migration that has not been recorded yet,
// in ascending version order. Each migration runs in its own transaction
// together with its record insert, so a failure leaves the schema at the
// last fully applied version.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", mig.Version),
			slog.String("description", mig.Description),
		)

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mig.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", mig.Version, err)
		}
	}

	return nil
}

// Down reverts the most recently applied migration. A migration without a
// Down function cannot be reverted.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var record MigrationRecord
	if err := m.db.WithContext(ctx).Order("version DESC").First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.logger.InfoContext(ctx, "no migrations to roll back")
			return nil
		}
		return fmt.Errorf("finding last migration: %w", err)
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == record.Version {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no registered migration for version %s", record.Version)
	}
	if target.Down == nil {
		return fmt.Errorf("migration %s is irreversible", record.Version)
	}

	m.logger.InfoContext(ctx, "rolling back migration",
		slog.String("version", target.Version),
		slog.String("description", target.Description),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", target.Version).Delete(&MigrationRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", target.Version, err)
	}

	return nil
}

// Status reports every registered migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing migrations table: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		status := MigrationStatus{Version: mig.Version, Description: mig.Description}
		if record, ok := applied[mig.Version]; ok {
			status.Applied = true
			at := record.AppliedAt
			status.AppliedAt = &at
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// applied loads the recorded migrations keyed by version.
func (m *Migrator) applied(ctx context.Context) (map[string]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading applied migrations: %w", err)
	}
	byVersion := make(map[string]MigrationRecord, len(records))
	for _, record := range records {
		byVersion[record.Version] = record
	}
	return byVersion, nil
}
