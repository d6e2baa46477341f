package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vibeacademy/vidarr/internal/repository"
)

// Runner manages a pool of workers that execute jobs.
type Runner struct {
	mu sync.RWMutex

	jobRepo  repository.JobRepository
	executor *Executor
	logger   *slog.Logger

	workerCount  int
	pollInterval time.Duration
	workerID     string
	jobTimeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// WorkerCount is the number of concurrent workers. Two encodes at a
	// time keeps the machine responsive while a second project catches up.
	// Default: 2
	WorkerCount int

	// PollInterval is how often workers poll for jobs.
	// Default: 5 seconds
	PollInterval time.Duration

	// WorkerID is a unique identifier for this runner instance, used for
	// job locking.
	// Default: randomly generated
	WorkerID string

	// JobTimeout is the hard ceiling for a single stage execution.
	// Default: 1 hour
	JobTimeout time.Duration
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:  2,
		PollInterval: 5 * time.Second,
		WorkerID:     fmt.Sprintf("worker-%d", time.Now().UnixNano()),
		JobTimeout:   time.Hour,
	}
}

// NewRunner creates a new job runner.
func NewRunner(jobRepo repository.JobRepository, executor *Executor) *Runner {
	config := DefaultRunnerConfig()
	return &Runner{
		jobRepo:      jobRepo,
		executor:     executor,
		logger:       slog.Default(),
		workerCount:  config.WorkerCount,
		pollInterval: config.PollInterval,
		workerID:     config.WorkerID,
		jobTimeout:   config.JobTimeout,
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithConfig applies configuration to the runner.
func (r *Runner) WithConfig(config RunnerConfig) *Runner {
	if config.WorkerCount > 0 {
		r.workerCount = config.WorkerCount
	}
	if config.PollInterval > 0 {
		r.pollInterval = config.PollInterval
	}
	if config.WorkerID != "" {
		r.workerID = config.WorkerID
	}
	if config.JobTimeout > 0 {
		r.jobTimeout = config.JobTimeout
	}
	return r
}

// Start begins the runner with the configured number of workers.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.workerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", r.workerID, i)
		r.wg.Add(1)
		go r.worker(workerID)
	}

	r.logger.Info("runner started",
		slog.Int("workers", r.workerCount),
		slog.Duration("poll_interval", r.pollInterval),
		slog.String("worker_id", r.workerID))

	return nil
}

// Stop stops the runner and waits for workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("runner stopped")
}

// worker is the main worker loop.
func (r *Runner) worker(workerID string) {
	defer r.wg.Done()

	r.logger.Debug("worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("worker stopping", slog.String("worker_id", workerID))
			return
		default:
			if err := r.processJob(workerID); err != nil {
				if err != errNoJobs {
					r.logger.Error("error processing job",
						slog.String("worker_id", workerID),
						slog.Any("error", err))
				}

				select {
				case <-r.ctx.Done():
					return
				case <-time.After(r.pollInterval):
				}
			}
		}
	}
}

var errNoJobs = fmt.Errorf("no jobs available")

// processJob acquires and executes a single job under the hard timeout.
func (r *Runner) processJob(workerID string) error {
	job, err := r.jobRepo.AcquireJob(r.ctx, workerID)
	if err != nil {
		return fmt.Errorf("acquiring job: %w", err)
	}
	if job == nil {
		return errNoJobs
	}

	r.logger.Debug("acquired job",
		slog.String("worker_id", workerID),
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)))

	jobCtx, cancel := context.WithTimeout(r.ctx, r.jobTimeout)
	defer cancel()

	if err := r.executor.Execute(jobCtx, job); err != nil {
		return fmt.Errorf("executing job: %w", err)
	}
	return nil
}

// GetStatus returns the current runner status.
func (r *Runner) GetStatus() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := r.ctx != nil && r.ctx.Err() == nil

	var pendingCount, runningCount int64
	if running {
		pending, _ := r.jobRepo.GetPending(r.ctx)
		pendingCount = int64(len(pending))
		runningJobs, _ := r.jobRepo.GetRunning(r.ctx)
		runningCount = int64(len(runningJobs))
	}

	return RunnerStatus{
		Running:      running,
		WorkerCount:  r.workerCount,
		WorkerID:     r.workerID,
		PendingJobs:  pendingCount,
		RunningJobs:  runningCount,
		PollInterval: r.pollInterval,
	}
}

// RunnerStatus represents the current state of the runner.
type RunnerStatus struct {
	Running      bool          `json:"running"`
	WorkerCount  int           `json:"worker_count"`
	WorkerID     string        `json:"worker_id"`
	PendingJobs  int64         `json:"pending_jobs"`
	RunningJobs  int64         `json:"running_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}
