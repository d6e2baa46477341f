package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vibeacademy/vidarr/internal/repository"
)

// Maintenance runs the queue's periodic housekeeping on cron schedules:
// deleting finished jobs past their retention and recovering jobs whose
// worker died mid-stage.
type Maintenance struct {
	mu sync.Mutex

	jobRepo repository.JobRepository
	logger  *slog.Logger

	retention   time.Duration
	lockTimeout time.Duration

	cleanupSpec  string
	recoverySpec string

	cron *cron.Cron
	ctx  context.Context
}

// MaintenanceConfig holds configuration for the maintenance schedules.
type MaintenanceConfig struct {
	// Retention is how long finished jobs and their history are kept.
	// Default: 24 hours
	Retention time.Duration

	// LockTimeout is the age after which a running job's lock counts as
	// abandoned. Must exceed the runner's job timeout.
	// Default: 90 minutes
	LockTimeout time.Duration

	// CleanupSpec is the cron schedule for retention cleanup.
	// Default: hourly
	CleanupSpec string

	// RecoverySpec is the cron schedule for stale lock recovery.
	// Default: every 5 minutes
	RecoverySpec string
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Retention:    24 * time.Hour,
		LockTimeout:  90 * time.Minute,
		CleanupSpec:  "@hourly",
		RecoverySpec: "@every 5m",
	}
}

// NewMaintenance creates the maintenance component.
func NewMaintenance(jobRepo repository.JobRepository) *Maintenance {
	config := DefaultMaintenanceConfig()
	return &Maintenance{
		jobRepo:      jobRepo,
		logger:       slog.Default(),
		retention:    config.Retention,
		lockTimeout:  config.LockTimeout,
		cleanupSpec:  config.CleanupSpec,
		recoverySpec: config.RecoverySpec,
	}
}

// WithLogger sets a custom logger.
func (m *Maintenance) WithLogger(logger *slog.Logger) *Maintenance {
	m.logger = logger
	return m
}

// WithConfig applies configuration to the maintenance component.
func (m *Maintenance) WithConfig(config MaintenanceConfig) *Maintenance {
	if config.Retention > 0 {
		m.retention = config.Retention
	}
	if config.LockTimeout > 0 {
		m.lockTimeout = config.LockTimeout
	}
	if config.CleanupSpec != "" {
		m.cleanupSpec = config.CleanupSpec
	}
	if config.RecoverySpec != "" {
		m.recoverySpec = config.RecoverySpec
	}
	return m
}

// Start registers and starts the cron schedules.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return fmt.Errorf("maintenance already started")
	}

	m.ctx = ctx
	m.cron = cron.New()

	if _, err := m.cron.AddFunc(m.cleanupSpec, m.runCleanup); err != nil {
		m.cron = nil
		return fmt.Errorf("invalid cleanup schedule %q: %w", m.cleanupSpec, err)
	}
	if _, err := m.cron.AddFunc(m.recoverySpec, m.runStaleRecovery); err != nil {
		m.cron = nil
		return fmt.Errorf("invalid recovery schedule %q: %w", m.recoverySpec, err)
	}

	m.cron.Start()
	m.logger.Info("maintenance started",
		slog.Duration("retention", m.retention),
		slog.String("cleanup", m.cleanupSpec),
		slog.String("recovery", m.recoverySpec))
	return nil
}

// Stop stops the cron schedules and waits for running entries.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
	m.logger.Info("maintenance stopped")
}

// runCleanup deletes finished jobs and history past the retention window.
func (m *Maintenance) runCleanup() {
	cutoff := time.Now().Add(-m.retention)

	jobsDeleted, err := m.jobRepo.DeleteCompleted(m.ctx, cutoff)
	if err != nil {
		m.logger.Error("cleaning up old jobs", slog.Any("error", err))
	} else if jobsDeleted > 0 {
		m.logger.Info("cleaned up old jobs", slog.Int64("deleted", jobsDeleted))
	}

	historyDeleted, err := m.jobRepo.DeleteHistory(m.ctx, cutoff)
	if err != nil {
		m.logger.Error("cleaning up old history", slog.Any("error", err))
	} else if historyDeleted > 0 {
		m.logger.Info("cleaned up old history", slog.Int64("deleted", historyDeleted))
	}
}

// runStaleRecovery fails running jobs whose lock outlived the timeout, so a
// crashed worker cannot wedge a chain forever.
func (m *Maintenance) runStaleRecovery() {
	running, err := m.jobRepo.GetRunning(m.ctx)
	if err != nil {
		m.logger.Error("listing running jobs for stale recovery", slog.Any("error", err))
		return
	}

	cutoff := time.Now().Add(-m.lockTimeout)
	for _, job := range running {
		if job.LockedAt == nil || !job.LockedAt.Before(cutoff) {
			continue
		}

		m.logger.Warn("recovering stale job",
			slog.String("job_id", job.ID.String()),
			slog.String("locked_by", job.LockedBy),
			slog.Time("locked_at", job.LockedAt.UTC()))

		lockedAt := *job.LockedAt
		job.MarkFailed(fmt.Errorf("job stale: locked since %s", lockedAt.Format(time.RFC3339)))
		retrying := job.CanRetry()
		if retrying {
			job.ScheduleRetry()
		}
		if err := m.jobRepo.Update(m.ctx, job); err != nil {
			m.logger.Error("recovering stale job",
				slog.String("job_id", job.ID.String()),
				slog.Any("error", err))
			continue
		}

		// The rest of the chain would wait on a job that will never
		// complete.
		if !retrying {
			if _, err := m.jobRepo.CancelChain(m.ctx, job.ChainID); err != nil {
				m.logger.Error("cancelling chain of stale job",
					slog.String("chain_id", job.ChainID),
					slog.Any("error", err))
			}
		}
	}
}
