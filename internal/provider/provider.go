// Package provider holds the process-wide model and catalog clients. Each one
// is created on first use, exactly once, and then shared by all requests.
package provider

import (
	"context"
	"image"
	"sync"

	"go-style-scout/internal/detection"
	"go-style-scout/internal/embedding"
	"go-style-scout/internal/imaging"
	"go-style-scout/internal/logger"
	"go-style-scout/internal/search"
	"go-style-scout/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// InitFunc builds the value a Provider holds.
type InitFunc[T any] func(ctx context.Context) (T, error)

// Provider lazily initializes a value. Concurrent first callers share a single
// init; a failed init is not remembered, so the next Get tries again.
type Provider[T any] struct {
	name  string
	init  InitFunc[T]
	mu    sync.Mutex
	value T
	ready bool
}

// New creates a provider named name for logging.
func New[T any](name string, init InitFunc[T]) *Provider[T] {
	return &Provider[T]{name: name, init: init}
}

// Name returns the provider name.
func (p *Provider[T]) Name() string {
	return p.name
}

// Get returns the value, initializing it if needed.
func (p *Provider[T]) Get(ctx context.Context) (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return p.value, nil
	}

	logger.WithField("provider", p.name).Info("Initializing provider")
	v, err := p.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	p.value = v
	p.ready = true
	logger.WithField("provider", p.name).Info("Provider ready")
	return v, nil
}

// Ready reports whether the value has been initialized.
func (p *Provider[T]) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Close closes the held value if it was initialized and implements io.Closer.
func (p *Provider[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return nil
	}
	if c, ok := any(p.value).(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Warmer is anything WarmUp can initialize.
type Warmer interface {
	Name() string
	warm(ctx context.Context) error
}

func (p *Provider[T]) warm(ctx context.Context) error {
	_, err := p.Get(ctx)
	return err
}

// WarmUp initializes all providers concurrently. Failures are logged and
// returned; providers that failed are retried on first use.
func WarmUp(ctx context.Context, providers ...Warmer) error {
	// A failing provider must not cancel the others.
	var g errgroup.Group
	for _, p := range providers {
		g.Go(func() error {
			if err := p.warm(ctx); err != nil {
				logger.WithFields(logrus.Fields{
					"provider": p.Name(),
					"error":    err.Error(),
				}).Warn("Provider warm-up failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// LazyDetector is a Detector backed by a provider.
type LazyDetector struct {
	P *Provider[detection.Detector]
}

// Detect implements detection.Detector.
func (l LazyDetector) Detect(ctx context.Context, img *imaging.DecodedImage) ([]detection.Region, error) {
	d, err := l.P.Get(ctx)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, img)
}

// LazyEmbedder is an Embedder backed by a provider.
type LazyEmbedder struct {
	P *Provider[embedding.Embedder]
}

// Embed implements embedding.Embedder.
func (l LazyEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	e, err := l.P.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, img)
}

// LazySearcher is a Searcher backed by a provider.
type LazySearcher struct {
	P *Provider[search.Searcher]
}

// Search implements search.Searcher.
func (l LazySearcher) Search(ctx context.Context, vector []float32, threshold float64, count int) ([]models.MatchCandidate, error) {
	s, err := l.P.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vector, threshold, count)
}
