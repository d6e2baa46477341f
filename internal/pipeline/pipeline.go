// Package pipeline wires the processing stages together. A lesson moves
// through twelve stages, from raw upload normalization to publication; each
// stage runs as its own queued job and the factory here is how the
// orchestrator finds them.
package pipeline

import (
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/broll"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/compose"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/convert"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/cutsources"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/illustrate"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/publish"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/schedule"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/seo"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/shorts"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/silence"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/thumbnail"
	"github.com/vibeacademy/vidarr/internal/pipeline/stages/transcribe"
)

// NewDefaultFactory returns a factory with every stage registered at its
// pipeline index.
func NewDefaultFactory(deps *core.Dependencies) *core.Factory {
	factory := core.NewFactory(deps)
	factory.RegisterStage(convert.StageIndex, convert.NewConstructor())
	factory.RegisterStage(compose.StageIndex, compose.NewConstructor())
	factory.RegisterStage(silence.StageIndex, silence.NewConstructor())
	factory.RegisterStage(cutsources.StageIndex, cutsources.NewConstructor())
	factory.RegisterStage(transcribe.StageIndex, transcribe.NewConstructor())
	factory.RegisterStage(shorts.StageIndex, shorts.NewConstructor())
	factory.RegisterStage(broll.StageIndex, broll.NewConstructor())
	factory.RegisterStage(illustrate.StageIndex, illustrate.NewConstructor())
	factory.RegisterStage(seo.StageIndex, seo.NewConstructor())
	factory.RegisterStage(thumbnail.StageIndex, thumbnail.NewConstructor())
	factory.RegisterStage(schedule.StageIndex, schedule.NewConstructor())
	factory.RegisterStage(publish.StageIndex, publish.NewConstructor())
	return factory
}
