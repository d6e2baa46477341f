// Package service holds the orchestration layer between the HTTP API and
// the pipeline: project lifecycle operations and small supporting helpers.
package service

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Register decoders for the formats image models return.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageConverter decodes generated images and re-encodes them as PNG at a
// target size. Image models occasionally return JPEG or WebP regardless of
// the requested format, so every byte blob goes through a full decode.
type ImageConverter struct{}

// NewImageConverter creates a new ImageConverter.
func NewImageConverter() *ImageConverter {
	return &ImageConverter{}
}

// ToPNG decodes raw image bytes and re-encodes them as a PNG scaled to
// width x height. Decoding doubles as validation: truncated or non-image
// responses fail here instead of producing a corrupt artifact.
func (c *ImageConverter) ToPNG(data []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png (source format %s): %w", format, err)
	}
	return buf.Bytes(), nil
}

// Dimensions returns the pixel size of an encoded image without a full
// decode.
func (c *ImageConverter) Dimensions(data []byte) (int, int, error) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decoding image config: %w", err)
	}
	return config.Width, config.Height, nil
}
