package core

import (
	"errors"
	"fmt"
)

var (
	// ErrChainSuperseded means the project's task handle no longer matches
	// this execution's chain: a newer submission replaced it and every
	// remaining job in the old chain must stop.
	ErrChainSuperseded = errors.New("chain superseded by a newer submission")

	// ErrStageNotFound means the requested stage index has no registered
	// constructor.
	ErrStageNotFound = errors.New("stage not found")

	// ErrMissingArtifact means an upstream artifact the stage depends on is
	// absent from the project directory.
	ErrMissingArtifact = errors.New("required artifact missing")
)

// StageError tags a failure with the stage it happened in. The executor
// records the message verbatim in job history, so the stage name leads.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage identity.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{StageID: stageID, StageName: stageName, Err: err}
}

// ConfigurationError reports a dependency that a stage needs but the
// deployment did not configure, such as a missing API key.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a ConfigurationError for field.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}
