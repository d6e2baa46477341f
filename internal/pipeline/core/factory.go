package core

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/vibeacademy/vidarr/internal/config"
	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/repository"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/services/speech"
	"github.com/vibeacademy/vidarr/internal/services/stockvideo"
	"github.com/vibeacademy/vidarr/internal/services/videohost"
	"github.com/vibeacademy/vidarr/internal/storage"
)

// LanguageModel is the completion surface stages consume for metadata
// generation, transcript correction, and thumbnail synthesis.
type LanguageModel interface {
	Configured() bool
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
	GenerateImage(ctx context.Context, prompt string, referenceDataURLs ...string) (*llm.ImageResult, error)
}

// Transcriber produces timestamped transcripts from audio files.
type Transcriber interface {
	Configured() bool
	Transcribe(ctx context.Context, audioPath, language string) (*speech.Transcription, error)
}

// StockFootage searches and downloads stock video clips.
type StockFootage interface {
	Configured() bool
	Search(ctx context.Context, query string) (*stockvideo.Clip, error)
	Download(ctx context.Context, clipURL string, w io.Writer) (int64, error)
}

// VideoHost uploads finished videos and thumbnails to the hosting platform.
type VideoHost interface {
	Configured() bool
	Upload(ctx context.Context, videoPath string, req videohost.UploadRequest) (*videohost.UploadResult, error)
	SetThumbnail(ctx context.Context, videoID, thumbnailPath string) error
}

// Mirror copies project artifacts into the blob store. Mirroring is
// best-effort; implementations report what made it, never an error.
type Mirror interface {
	MirrorProject(ctx context.Context, folderName string, sandbox *storage.Sandbox) map[string]string
}

// ImageConverter validates and re-encodes generated images.
type ImageConverter interface {
	// ToPNG decodes raw image bytes and re-encodes them as a PNG scaled
	// to the given size.
	ToPNG(data []byte, width, height int) ([]byte, error)
}

// Dependencies bundles all dependencies needed by pipeline stages.
// This reduces parameter count and makes dependency injection cleaner.
type Dependencies struct {
	Projects repository.ProjectRepository
	Store    *storage.ProjectStore

	FFmpeg  *ffmpeg.Binaries
	Prober  *ffmpeg.Prober
	Silence *ffmpeg.SilenceDetector

	LLM    LanguageModel
	Speech Transcriber
	Stock  StockFootage
	Host   VideoHost
	// Blob is optional; nil disables mirroring.
	Blob   Mirror
	Images ImageConverter

	// Compose holds the default overlay geometry; projects override
	// per-submission.
	Compose config.ComposeConfig

	// Language is the transcription language code (default "fr").
	Language string

	// AssetsDir holds shared static assets: logo.png, outro.mp4.
	AssetsDir string

	// MaxShorts and MaxBrollClips cap suggestion counts when the project
	// config leaves them unset.
	MaxShorts     int
	MaxBrollClips int

	Logger *slog.Logger
}

// StageConstructor is a function that creates a stage given dependencies.
type StageConstructor func(deps *Dependencies) Stage

// Factory creates stages by pipeline index.
type Factory struct {
	deps         *Dependencies
	constructors map[int]StageConstructor
}

// NewFactory creates a new pipeline Factory.
func NewFactory(deps *Dependencies) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{
		deps:         deps,
		constructors: make(map[int]StageConstructor),
	}
}

// RegisterStage binds a stage constructor to a pipeline index.
func (f *Factory) RegisterStage(index int, constructor StageConstructor) {
	f.constructors[index] = constructor
}

// StageFor creates the stage at the given pipeline index.
func (f *Factory) StageFor(index int) (Stage, error) {
	constructor, ok := f.constructors[index]
	if !ok {
		return nil, ErrStageNotFound
	}
	return constructor(f.deps), nil
}

// Registered returns the registered stage indexes in order.
func (f *Factory) Registered() []int {
	indexes := make([]int, 0, len(f.constructors))
	for i := range f.constructors {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return indexes
}

// StageFactory defines the interface for creating stages by index.
type StageFactory interface {
	StageFor(index int) (Stage, error)
}

// Ensure Factory implements StageFactory.
var _ StageFactory = (*Factory)(nil)
