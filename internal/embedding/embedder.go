// Package embedding turns cropped regions into unit-length feature vectors.
package embedding

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrEmptyVector is returned when a backend produced no usable values.
var ErrEmptyVector = errors.New("embedding is empty")

// Embedder converts a crop into an L2-normalized vector. Identical pixels must
// produce identical vectors.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
}

// Normalize scales v to unit length in place and returns it. A zero vector is
// an error since it cannot be compared by cosine similarity.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}

	var sum float64
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, errors.New("embedding contains non-finite values")
		}
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, errors.New("embedding has zero magnitude")
	}

	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

// MeanPool averages a sequence of equally sized token vectors.
func MeanPool(tokens [][]float32) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, ErrEmptyVector
	}

	dim := len(tokens[0])
	sums := make([]float64, dim)
	for _, tok := range tokens {
		if len(tok) != dim {
			return nil, errors.New("token vectors differ in length")
		}
		for i, x := range tok {
			sums[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	for i, s := range sums {
		out[i] = float32(s / float64(len(tokens)))
	}
	return out, nil
}
