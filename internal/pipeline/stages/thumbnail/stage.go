// Package thumbnail implements the thumbnail stage: a webcam frame from the
// middle of the lesson anchors the presenter's likeness, the image model
// repaints it into a staged scene from a randomized palette, and the result
// is validated and normalized to a 1280x720 PNG.
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibeacademy/vidarr/internal/ffmpeg"
	"github.com/vibeacademy/vidarr/internal/pipeline/core"
	"github.com/vibeacademy/vidarr/internal/pipeline/shared"
	"github.com/vibeacademy/vidarr/internal/services/llm"
	"github.com/vibeacademy/vidarr/internal/storage"
)

const (
	// StageIndex is the pipeline position of this stage.
	StageIndex = 9
	// StageID is the unique identifier for this stage.
	StageID = "thumbnail"
	// StageName is the human-readable name for this stage.
	StageName = "Thumbnail"
)

// Output dimensions, per the platform's thumbnail format.
const (
	thumbWidth  = 1280
	thumbHeight = 720
)

// CorrectionsKey is the state metadata key carrying user corrections for a
// regeneration run.
const CorrectionsKey = "corrections"

// debugFile captures the raw model response when image generation returns
// nothing usable.
const debugFile = "gemini_debug.json"

// frameName is the extracted reference frame.
const frameName = "temp/thumb_frame.jpg"

// logoAsset is the channel logo under the assets directory.
const logoAsset = "logo.png"

// Scene palettes. One entry of each list is drawn at random per run, so
// regenerated thumbnails land on a fresh look without prompt engineering.
var (
	colorSchemes = []string{
		"electric blue and white",
		"warm orange and charcoal",
		"mint green and cream",
		"purple and gold",
		"red and off-white",
	}
	positions = []string{
		"on the left third, facing the camera",
		"on the right third, half turned toward the center",
		"centered, leaning slightly forward",
	}
	backgrounds = []string{
		"a blurred modern startup office",
		"a clean home studio with soft LED accents",
		"a minimal desk setup with two monitors",
		"a bright coworking space",
	}
	situations = []string{
		"pointing at a floating UI mockup",
		"holding a laptop and smiling",
		"gesturing toward bold text space",
		"arms crossed with a confident look",
	}
	clothing = []string{
		"a plain dark t-shirt",
		"a casual button-up shirt",
		"a hoodie in a neutral tone",
	}
)

// fallbackBackgroundKeyword stands in when the model cannot name one.
const fallbackBackgroundKeyword = "modern office desk"

// palette is one drawn scene combination.
type palette struct {
	ColorScheme string
	Position    string
	Background  string
	Situation   string
	Clothing    string
}

func drawPalette(rng *rand.Rand) palette {
	return palette{
		ColorScheme: colorSchemes[rng.Intn(len(colorSchemes))],
		Position:    positions[rng.Intn(len(positions))],
		Background:  backgrounds[rng.Intn(len(backgrounds))],
		Situation:   situations[rng.Intn(len(situations))],
		Clothing:    clothing[rng.Intn(len(clothing))],
	}
}

// Stage generates the video thumbnail.
type Stage struct {
	shared.BaseStage
	deps   *core.Dependencies
	logger *slog.Logger
	rng    *rand.Rand
}

// New creates a new thumbnail stage.
func New(deps *core.Dependencies) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageIndex, StageID, StageName),
		deps:      deps,
		logger:    deps.Logger.With("stage", StageID),
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		return New(deps)
	}
}

var _ core.Stage = (*Stage)(nil)

// Execute renders thumbnail.png. When the state carries corrections from a
// regeneration request they are appended to the prompt; the reference frame
// and palette flow stays the same, so the presenter's likeness is preserved.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if s.deps.LLM == nil || !s.deps.LLM.Configured() {
		return result, core.NewConfigurationError("llm", "image generation requires a configured language model")
	}

	frame, err := s.extractFrame(ctx, state)
	if err != nil {
		return result, fmt.Errorf("extracting reference frame: %w", err)
	}
	defer func() {
		if err := state.Sandbox.Remove(frameName); err != nil {
			s.logger.Warn("reference frame not removed", "error", err)
		}
	}()

	title, err := s.catchyTitle(ctx, state.Project.Name)
	if err != nil {
		state.AddError(fmt.Errorf("catchy title: %w", err))
		title = fallbackTitle(state.Project.Name)
	}
	keyword, err := s.backgroundKeyword(ctx, state.Project.Name)
	if err != nil {
		state.AddError(fmt.Errorf("background keyword: %w", err))
		keyword = fallbackBackgroundKeyword
	}

	prompt := buildPrompt(title, keyword, drawPalette(s.rng), state.MetadataString(CorrectionsKey))

	refs := []string{llm.DataURL("image/jpeg", frame)}
	if logo := s.loadLogo(); logo != nil {
		refs = append(refs, llm.DataURL("image/png", logo))
	}

	generated, err := s.deps.LLM.GenerateImage(ctx, prompt, refs...)
	if err != nil {
		return result, fmt.Errorf("generating thumbnail: %w", err)
	}
	if generated == nil || len(generated.Image) == 0 {
		if generated != nil && len(generated.RawResponse) > 0 {
			if werr := state.Sandbox.AtomicWrite(debugFile, generated.RawResponse); werr != nil {
				s.logger.Warn("debug response not written", "error", werr)
			}
		}
		return result, fmt.Errorf("image model returned no image, raw response saved to %s", debugFile)
	}

	png, err := s.deps.Images.ToPNG(generated.Image, thumbWidth, thumbHeight)
	if err != nil {
		return result, fmt.Errorf("normalizing thumbnail: %w", err)
	}
	if err := state.Sandbox.AtomicWrite(storage.FileThumbnail, png); err != nil {
		return result, err
	}

	result.Outputs["thumbnail"] = storage.FileThumbnail
	result.ItemsProcessed = 1
	result.Message = fmt.Sprintf("thumbnail titled %q", title)
	return result, nil
}

// extractFrame pulls one frame from the middle of the raw webcam recording,
// or the trimmed lesson when the project has no webcam.
func (s *Stage) extractFrame(ctx context.Context, state *core.State) ([]byte, error) {
	source := storage.FileWebcam
	exists, err := state.Sandbox.Exists(source)
	if err != nil {
		return nil, err
	}
	if !exists {
		source = storage.FileNoSilence
	}

	input, err := state.Sandbox.ResolvePath(source)
	if err != nil {
		return nil, err
	}
	duration, err := s.deps.Prober.Duration(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := state.Sandbox.MkdirAll(storage.DirTemp); err != nil {
		return nil, err
	}
	output, err := state.Sandbox.ResolvePath(frameName)
	if err != nil {
		return nil, err
	}

	cmd := ffmpeg.NewCommandBuilder(s.deps.FFmpeg.FFmpeg).
		HideBanner().
		Overwrite().
		InputArgs("-ss", fmt.Sprintf("%.3f", duration/2)).
		Input(input).
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(output).
		Build()
	if err := cmd.Run(ctx); err != nil {
		return nil, err
	}

	return state.Sandbox.ReadFile(frameName)
}

// catchyTitle asks the model for the 4-6 word hook painted on the image.
func (s *Stage) catchyTitle(ctx context.Context, projectName string) (string, error) {
	answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{llm.TextMessage("user",
			fmt.Sprintf("Donne un titre choc de 4 a 6 mots, en majuscules, pour la miniature d'une video intitulee %q. Reponds uniquement avec le titre.", projectName))},
		Temperature: llm.Temp(0.8),
		MaxTokens:   50,
	})
	if err != nil {
		return "", err
	}

	title := strings.ToUpper(strings.Trim(strings.TrimSpace(llm.StripCodeFences(answer)), `"`))
	words := strings.Fields(title)
	if len(words) < 2 || len(words) > 8 {
		return "", fmt.Errorf("unusable title %q", title)
	}
	return title, nil
}

// fallbackTitle uppercases the leading words of the project name.
func fallbackTitle(projectName string) string {
	words := strings.Fields(strings.ToUpper(projectName))
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// backgroundKeyword asks the model for a scene keyword matching the topic.
func (s *Stage) backgroundKeyword(ctx context.Context, projectName string) (string, error) {
	answer, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{llm.TextMessage("user",
			fmt.Sprintf("Give a short English scene keyword (2-4 words) for the background of a thumbnail about %q. Answer with the keyword only.", projectName))},
		Temperature: llm.Temp(0.8),
		MaxTokens:   20,
	})
	if err != nil {
		return "", err
	}

	keyword := strings.Trim(strings.TrimSpace(llm.StripCodeFences(answer)), `"`)
	if keyword == "" || len(strings.Fields(keyword)) > 6 {
		return "", fmt.Errorf("unusable keyword %q", keyword)
	}
	return keyword, nil
}

// buildPrompt assembles the image generation instruction.
func buildPrompt(title, keyword string, p palette, corrections string) string {
	var sb strings.Builder
	sb.WriteString("Create a YouTube thumbnail, 1280x720. ")
	sb.WriteString("Keep the exact face and likeness of the person in the first reference image. ")
	fmt.Fprintf(&sb, "Place them %s, wearing %s, %s. ", p.Position, p.Clothing, p.Situation)
	fmt.Fprintf(&sb, "Background: %s, themed around %s. ", p.Background, keyword)
	fmt.Fprintf(&sb, "Color scheme: %s. ", p.ColorScheme)
	fmt.Fprintf(&sb, "Render the text %q in huge bold letters. ", title)
	sb.WriteString("If a logo image is provided, place it small in a corner. ")
	sb.WriteString("High contrast, crisp, no watermark.")
	if corrections != "" {
		sb.WriteString("\n\nApply these corrections from the author: ")
		sb.WriteString(corrections)
	}
	return sb.String()
}

// loadLogo reads the channel logo if the assets directory carries one.
func (s *Stage) loadLogo() []byte {
	if s.deps.AssetsDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(s.deps.AssetsDir, logoAsset))
	if err != nil {
		return nil
	}
	return data
}
