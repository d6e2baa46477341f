package models

import (
	"gorm.io/gorm"
)

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	// ProjectStatusCreated indicates the project exists but has no raw inputs yet.
	ProjectStatusCreated ProjectStatus = "created"
	// ProjectStatusUploading indicates raw inputs are being written.
	ProjectStatusUploading ProjectStatus = "uploading"
	// ProjectStatusConverting indicates raw inputs are complete and a chain is about to be submitted.
	ProjectStatusConverting ProjectStatus = "converting"
	// ProjectStatusProcessing indicates a pipeline chain is executing.
	ProjectStatusProcessing ProjectStatus = "processing"
	// ProjectStatusReadyToUpload indicates the automatic pipeline finished through scheduling.
	ProjectStatusReadyToUpload ProjectStatus = "ready_to_upload"
	// ProjectStatusCompleted indicates publication finished.
	ProjectStatusCompleted ProjectStatus = "completed"
	// ProjectStatusFailed indicates a stage failed terminally.
	ProjectStatusFailed ProjectStatus = "failed"
	// ProjectStatusStopped indicates the chain was revoked by the user.
	ProjectStatusStopped ProjectStatus = "stopped"
)

// validProjectStatuses is the closed set of lifecycle states.
var validProjectStatuses = map[ProjectStatus]bool{
	ProjectStatusCreated:       true,
	ProjectStatusUploading:     true,
	ProjectStatusConverting:    true,
	ProjectStatusProcessing:    true,
	ProjectStatusReadyToUpload: true,
	ProjectStatusCompleted:     true,
	ProjectStatusFailed:        true,
	ProjectStatusStopped:       true,
}

// StepStatus represents the per-stage execution state recorded on the project.
type StepStatus string

const (
	// StepStatusPending indicates the stage has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusProcessing indicates the stage is executing.
	StepStatusProcessing StepStatus = "processing"
	// StepStatusCompleted indicates the stage finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the stage failed.
	StepStatusFailed StepStatus = "failed"
)

// StepState records one stage's execution on a project.
type StepState struct {
	Status      StepStatus `json:"status"`
	StartedAt   *Time      `json:"started_at,omitempty"`
	CompletedAt *Time      `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// LayoutSwitch is a timed layout change during composition.
type LayoutSwitch struct {
	Timestamp float64 `json:"timestamp"`
	Layout    string  `json:"layout"` // overlay, webcam_only
}

// ProjectConfig holds the compositing parameters set at creation.
// It mirrors the config.json artifact written into the project directory.
type ProjectConfig struct {
	Layout         string         `json:"layout"` // overlay, composite, screen_only, webcam_only, side_by_side
	WebcamX        int            `json:"webcam_x"`
	WebcamY        int            `json:"webcam_y"`
	WebcamSize     int            `json:"webcam_size"`
	WebcamShape    string         `json:"webcam_shape"` // circle, rounded, square
	BorderColor    string         `json:"border_color"`
	BorderWidth    int            `json:"border_width"`
	LayoutSwitches []LayoutSwitch `json:"layout_switches,omitempty"`
	MaxShorts      int            `json:"max_shorts,omitempty"`
	MaxBrollClips  int            `json:"max_broll_clips,omitempty"`
}

// validLayouts is the closed set of composition layouts.
var validLayouts = map[string]bool{
	"":             true, // defaulted to overlay by the composition stage
	"overlay":      true,
	"composite":    true,
	"screen_only":  true,
	"webcam_only":  true,
	"side_by_side": true,
}

// validWebcamShapes is the closed set of webcam mask shapes.
var validWebcamShapes = map[string]bool{
	"":        true, // defaulted to circle by the composition stage
	"circle":  true,
	"rounded": true,
	"square":  true,
}

// TotalStages is the number of pipeline stages (0 through 11).
const TotalStages = 12

// Project is the registry record for one recording being processed.
// It is created on upload, mutated by worker stages and explicit user
// actions (stop, reboot, publish), and never deleted by workers.
type Project struct {
	BaseModel

	// Name is the human-readable project name.
	Name string `gorm:"not null;size:255" json:"name"`

	// FolderName is the artifact directory's base name and the
	// namespacing key in the blob store.
	FolderName string `gorm:"not null;uniqueIndex;size:255" json:"folder_name"`

	// Status is the lifecycle state.
	Status ProjectStatus `gorm:"not null;default:'created';size:20;index" json:"status"`

	// CurrentStep is the index of the active (or last active) stage, 0-11.
	CurrentStep int `gorm:"default:0" json:"current_step"`

	// StepName is a human-readable label for the active stage.
	StepName string `gorm:"size:100" json:"step_name"`

	// Progress is a coarse percentage derived from CurrentStep.
	Progress int `gorm:"default:0" json:"progress"`

	// TaskHandle identifies the most recently submitted chain.
	// Stages compare their chain id against this at entry and exit
	// cleanly on mismatch (revocation detection).
	TaskHandle string `gorm:"size:36;index" json:"task_handle,omitempty"`

	// CanvasMode is true when the project was created from a single
	// pre-composited recording instead of separate screen/webcam sources.
	CanvasMode bool `gorm:"default:false" json:"canvas_mode"`

	// Config holds the compositing parameters set at creation.
	Config ProjectConfig `gorm:"type:text;serializer:json" json:"config"`

	// Steps maps stage name to its execution record.
	Steps map[string]StepState `gorm:"type:text;serializer:json" json:"steps"`

	// Outputs is the artifact manifest: named products and their
	// relative paths within the artifact directory.
	Outputs map[string]string `gorm:"type:text;serializer:json" json:"outputs"`

	// Error holds the last terminal failure message.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// CompletedAt is set when publication finishes.
	CompletedAt *Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// IsProcessing returns true if a chain is currently executing.
func (p *Project) IsProcessing() bool {
	return p.Status == ProjectStatusProcessing
}

// CanPublish returns true if submit_publication is permitted.
// Publication is irreversible and must be user-gated.
func (p *Project) CanPublish() bool {
	switch p.Status {
	case ProjectStatusReadyToUpload, ProjectStatusCompleted, ProjectStatusFailed:
		return true
	default:
		return false
	}
}

// ProgressForStage returns the coarse progress percentage for a stage index.
// Scheduling and publication pin the anchors 90 and 100.
func ProgressForStage(stageIndex int) int {
	switch {
	case stageIndex >= TotalStages-1:
		return 100
	case stageIndex == TotalStages-2:
		return 90
	default:
		return (stageIndex + 1) * 100 / TotalStages
	}
}

// MarkStepProcessing records stage entry on the project.
func (p *Project) MarkStepProcessing(stageIndex int, stepName string) {
	if p.Steps == nil {
		p.Steps = make(map[string]StepState)
	}
	now := Now()
	p.Steps[stepName] = StepState{Status: StepStatusProcessing, StartedAt: &now}
	p.CurrentStep = stageIndex
	p.StepName = stepName
	p.Status = ProjectStatusProcessing
}

// MarkStepCompleted records stage success on the project.
// Progress only moves forward within a chain execution.
func (p *Project) MarkStepCompleted(stageIndex int, stepName string) {
	if p.Steps == nil {
		p.Steps = make(map[string]StepState)
	}
	now := Now()
	step := p.Steps[stepName]
	step.Status = StepStatusCompleted
	step.CompletedAt = &now
	step.Error = ""
	p.Steps[stepName] = step

	if progress := ProgressForStage(stageIndex); progress > p.Progress {
		p.Progress = progress
	}
}

// MarkStepFailed records stage failure on the project and moves the
// project to failed.
func (p *Project) MarkStepFailed(stepName string, err error) {
	if p.Steps == nil {
		p.Steps = make(map[string]StepState)
	}
	now := Now()
	step := p.Steps[stepName]
	step.Status = StepStatusFailed
	step.CompletedAt = &now
	if err != nil {
		step.Error = err.Error()
		p.Error = err.Error()
	}
	p.Steps[stepName] = step
	p.Status = ProjectStatusFailed
}

// ResetForReboot trims the registry record back to its created state.
// The caller is responsible for trimming the artifact directory.
func (p *Project) ResetForReboot() {
	p.Status = ProjectStatusCreated
	p.CurrentStep = 0
	p.StepName = ""
	p.Progress = 0
	p.Error = ""
	p.Steps = make(map[string]StepState)
	p.Outputs = make(map[string]string)
	p.CompletedAt = nil
}

// RecordOutput adds an artifact to the project manifest.
func (p *Project) RecordOutput(name, relPath string) {
	if p.Outputs == nil {
		p.Outputs = make(map[string]string)
	}
	p.Outputs[name] = relPath
}

// Validate performs basic validation on the project.
func (p *Project) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.FolderName == "" {
		return ErrFolderNameRequired
	}
	if p.Status != "" && !validProjectStatuses[p.Status] {
		return ErrInvalidProjectStatus
	}
	if !validLayouts[p.Config.Layout] {
		return ErrInvalidLayout
	}
	if !validWebcamShapes[p.Config.WebcamShape] {
		return ErrInvalidWebcamShape
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the project and generates a ULID.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return p.Validate()
}

// BeforeUpdate is a GORM hook that validates the project before update.
func (p *Project) BeforeUpdate(tx *gorm.DB) error {
	return p.Validate()
}
