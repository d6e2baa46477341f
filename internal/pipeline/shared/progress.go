package shared

import (
	"context"
	"log/slog"
	"time"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
)

// progressLogInterval throttles encoder progress logging.
const progressLogInterval = 15 * time.Second

// RunLogged runs an encoder command, streaming parsed progress snapshots
// into debug logs at most every few seconds. Failures come back as the
// command's ExitError with the stderr tail attached.
func RunLogged(ctx context.Context, logger *slog.Logger, cmd *ffmpeg.Command, label string) error {
	if logger == nil {
		return cmd.Run(ctx)
	}

	progressCh := make(chan ffmpeg.Progress, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		last := time.Time{}
		for p := range progressCh {
			if time.Since(last) < progressLogInterval {
				continue
			}
			last = time.Now()
			logger.Debug("encoder progress",
				slog.String("op", label),
				slog.Int64("frame", p.Frame),
				slog.Float64("fps", p.FPS),
				slog.Duration("time", p.Time),
				slog.Float64("speed", p.Speed),
			)
		}
	}()

	err := cmd.RunWithProgress(ctx, progressCh)
	close(progressCh)
	<-done
	return err
}
