package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrFolderNameRequired indicates a required folder name field is empty.
	ErrFolderNameRequired = errors.New("folder_name is required")

	// ErrInvalidProjectStatus indicates an unknown project status value.
	ErrInvalidProjectStatus = errors.New("invalid project status")

	// ErrInvalidLayout indicates an unknown composition layout.
	ErrInvalidLayout = errors.New("invalid layout: must be one of overlay, composite, screen_only, webcam_only, side_by_side")

	// ErrInvalidWebcamShape indicates an unknown webcam mask shape.
	ErrInvalidWebcamShape = errors.New("invalid webcam shape: must be one of circle, rounded, square")

	// ErrJobTypeRequired indicates a required job type field is empty.
	ErrJobTypeRequired = errors.New("job type is required")

	// ErrProjectIDRequired indicates a required project ID field is zero.
	ErrProjectIDRequired = errors.New("project_id is required")

	// ErrInvalidStageIndex indicates a stage index outside the pipeline range.
	ErrInvalidStageIndex = errors.New("invalid stage index")

	// ErrProjectNotFound indicates a project was not found.
	ErrProjectNotFound = errors.New("project not found")
)
