// Package detection localizes clothing in a decoded image. Backends are
// external models reached through the Detector interface.
package detection

import (
	"context"

	"go-style-scout/internal/imaging"
)

// Region is one detected object with a relative (0..1) bounding box.
type Region struct {
	Label      string              `json:"label"`
	Confidence float64             `json:"score"`
	Box        imaging.RelativeBox `json:"box"`
}

// Detector returns the regions found in img whose confidence is at least the
// backend's configured threshold.
type Detector interface {
	Detect(ctx context.Context, img *imaging.DecodedImage) ([]Region, error)
}

// AboveThreshold keeps regions with confidence >= threshold, preserving order.
func AboveThreshold(regions []Region, threshold float64) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Confidence >= threshold {
			out = append(out, r)
		}
	}
	return out
}
