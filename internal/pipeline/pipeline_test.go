package pipeline

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeacademy/vidarr/internal/models"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
)

func TestNewDefaultFactory_CoversEveryStage(t *testing.T) {
	factory := NewDefaultFactory(&core.Dependencies{Logger: slog.Default()})

	indexes := factory.Registered()
	require.Len(t, indexes, models.TotalStages)

	seen := make(map[string]bool)
	for i := 0; i < models.TotalStages; i++ {
		stage, err := factory.StageFor(i)
		require.NoError(t, err, "stage %d", i)
		assert.Equal(t, i, stage.Index())
		assert.False(t, seen[stage.ID()], "duplicate stage id %s", stage.ID())
		seen[stage.ID()] = true
	}

	_, err := factory.StageFor(models.TotalStages)
	assert.ErrorIs(t, err, core.ErrStageNotFound)
}
