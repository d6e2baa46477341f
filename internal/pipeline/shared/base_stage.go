package shared

import (
	"context"

	"github.com/vibeacademy/vidarr/internal/pipeline/core"
)

// BaseStage provides common functionality for pipeline stages.
// Embed this in stage implementations to get default behaviors.
type BaseStage struct {
	index int
	id    string
	name  string
}

// NewBaseStage creates a new BaseStage.
func NewBaseStage(index int, id, name string) BaseStage {
	return BaseStage{
		index: index,
		id:    id,
		name:  name,
	}
}

// Index returns the pipeline position of the stage.
func (b *BaseStage) Index() int {
	return b.index
}

// ID returns the stage identifier.
func (b *BaseStage) ID() string {
	return b.id
}

// Name returns the human-readable stage name.
func (b *BaseStage) Name() string {
	return b.name
}

// Cleanup provides a default no-op cleanup implementation.
func (b *BaseStage) Cleanup(ctx context.Context) error {
	return nil
}

// NewResult creates a new StageResult with an empty output manifest.
func NewResult() *core.StageResult {
	return &core.StageResult{
		Outputs: make(map[string]string),
	}
}
