// Package imaging turns uploaded bytes into pixels and cuts detected regions
// out of them.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	apperrors "go-style-scout/internal/errors"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// RGBChannels is the channel count the detector and embedder are fed.
const RGBChannels = 3

// DefaultMaxPixels rejects images whose header announces more pixels than this.
const DefaultMaxPixels = 50_000_000

// DecodedImage is the per-request pixel buffer plus its geometry.
type DecodedImage struct {
	Pixels   image.Image
	Width    int
	Height   int
	Channels int
	Format   string
	Raw      []byte
}

// MIMEType returns the content type of the original bytes.
func (d *DecodedImage) MIMEType() string {
	switch d.Format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Decoder converts raw upload bytes into a DecodedImage.
type Decoder struct {
	maxPixels int
}

// NewDecoder creates a decoder; maxPixels <= 0 selects DefaultMaxPixels.
func NewDecoder(maxPixels int) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{maxPixels: maxPixels}
}

// Decode reads the image geometry first and fails with a decode error when it
// cannot be determined, before any pixel work is done.
func (d *Decoder) Decode(data []byte) (*DecodedImage, error) {
	if len(data) == 0 {
		return nil, apperrors.NewDecodeError("No image data provided.", nil)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("Could not determine image dimensions.", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.NewDecodeError("Could not determine image dimensions.",
			fmt.Errorf("invalid geometry %dx%d", cfg.Width, cfg.Height))
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return nil, apperrors.NewDecodeError("Image is too large.",
			fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.maxPixels))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("Could not decode image.", err)
	}

	bounds := img.Bounds()
	return &DecodedImage{
		Pixels:   img,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Channels: RGBChannels,
		Format:   format,
		Raw:      data,
	}, nil
}
