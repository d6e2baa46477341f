// Package core provides the stage execution framework for the publishing
// pipeline: the Stage interface, per-execution State, the stage factory,
// and the orchestrator that runs one stage with registry bookkeeping.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// Stage represents a single step in the publishing pipeline.
// Each stage reads artifacts from the project directory and produces new ones.
type Stage interface {
	// Index returns the pipeline position of the stage, 0-11.
	Index() int

	// ID returns a unique identifier for the stage (e.g., "cut_sources").
	ID() string

	// Name returns a human-readable name for the stage (e.g., "Cut Sources").
	Name() string

	// Execute performs the stage's work against the project's artifact
	// directory.
	Execute(ctx context.Context, state *State) (*StageResult, error)

	// Cleanup performs any necessary cleanup after execution.
	// Called regardless of success or failure.
	Cleanup(ctx context.Context) error
}

// State holds everything one stage execution operates on.
type State struct {
	// Project is the registry record, loaded at job claim time.
	Project *models.Project

	// Sandbox is the project's artifact directory.
	Sandbox *storage.Sandbox

	// ChainID is the chain this execution belongs to. Stages and the
	// orchestrator compare it against the project's task handle to detect
	// revocation.
	ChainID string

	// Logger carries the project and stage context.
	Logger *slog.Logger

	// StartTime records when stage execution began.
	StartTime time.Time

	// SoftDeadline is the wind-down point. Stages with long item loops
	// check it between encoder invocations and stop starting new work
	// once it has passed.
	SoftDeadline time.Time

	// Errors collects non-fatal errors during execution.
	Errors []error

	// Metadata stores arbitrary stage-specific data, e.g. user
	// corrections for a thumbnail regeneration.
	Metadata map[string]any
}

// NewState creates a new execution state for one stage run.
func NewState(project *models.Project, sandbox *storage.Sandbox, chainID string, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		Project:   project,
		Sandbox:   sandbox,
		ChainID:   chainID,
		Logger:    logger,
		StartTime: time.Now(),
		Errors:    make([]error, 0),
		Metadata:  make(map[string]any),
	}
}

// AddError adds a non-fatal error to the state.
func (s *State) AddError(err error) {
	if err != nil {
		s.Errors = append(s.Errors, err)
	}
}

// HasErrors returns true if any non-fatal errors were recorded.
func (s *State) HasErrors() bool {
	return len(s.Errors) > 0
}

// Duration returns the elapsed time since stage start.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}

// WindingDown reports whether the soft deadline has passed.
func (s *State) WindingDown() bool {
	return !s.SoftDeadline.IsZero() && time.Now().After(s.SoftDeadline)
}

// SetMetadata stores a value in the metadata map.
func (s *State) SetMetadata(key string, value any) {
	s.Metadata[key] = value
}

// GetMetadata retrieves a value from the metadata map.
func (s *State) GetMetadata(key string) (any, bool) {
	v, ok := s.Metadata[key]
	return v, ok
}

// MetadataString retrieves a string value from the metadata map.
func (s *State) MetadataString(key string) string {
	if v, ok := s.Metadata[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// StageResult contains the outcome of a stage execution.
type StageResult struct {
	// Outputs maps artifact names to their paths relative to the project
	// directory. The orchestrator merges them into the project manifest.
	Outputs map[string]string

	// ItemsProcessed is the count of items handled (segments, clips,
	// uploads).
	ItemsProcessed int

	// Duration is the execution time.
	Duration time.Duration

	// Message is an optional summary message stored on the job record.
	Message string
}
