package container

import (
	"context"
	"net/http"

	"go-style-scout/internal/config"
	"go-style-scout/internal/detection"
	"go-style-scout/internal/embedding"
	"go-style-scout/internal/factory"
	"go-style-scout/internal/imaging"
	"go-style-scout/internal/logger"
	"go-style-scout/internal/observer"
	"go-style-scout/internal/provider"
	"go-style-scout/internal/search"
	"go-style-scout/internal/service"
	"go-style-scout/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config        *config.Config
	detector      *provider.Provider[detection.Detector]
	embedder      *provider.Provider[embedding.Embedder]
	searcher      *provider.Provider[search.Searcher]
	metrics       *observer.MetricsObserver
	searchService service.OutfitSearchService
	handler       http.Handler
}

// NewContainer creates a new dependency injection container. Capability
// clients are not created here; they are built on first use or by WarmUp.
func NewContainer(cfg *config.Config) (*Container, error) {
	components := factory.NewComponentFactory(cfg)
	caps := components.CapabilityFactory

	detector := provider.New[detection.Detector]("detector", caps.CreateDetector)
	embedder := provider.New[embedding.Embedder]("embedder", caps.CreateEmbedder)
	searcher := provider.New[search.Searcher]("searcher", caps.CreateSearcher)

	imageRepository, err := components.StorageFactory.CreateImageRepository()
	if err != nil {
		return nil, err
	}

	metrics := observer.NewMetricsObserver()
	// Inline delivery keeps one request's log lines in pipeline order.
	events := observer.NewSyncEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	searchService := service.NewOutfitSearchService(
		imageRepository,
		service.Capabilities{
			Decoder:  imaging.NewDecoder(imaging.DefaultMaxPixels),
			Detector: provider.LazyDetector{P: detector},
			Embedder: provider.LazyEmbedder{P: embedder},
			Searcher: provider.LazySearcher{P: searcher},
		},
		service.Options{
			RelevantLabels:     cfg.Pipeline.RelevantLabels,
			DetectionThreshold: cfg.Pipeline.DetectionThreshold,
			MatchThreshold:     cfg.Pipeline.MatchThreshold,
			MatchCount:         cfg.Pipeline.MatchCount,
			SearchTimeout:      cfg.SearchTimeout,
		},
		events,
	)

	return &Container{
		config:        cfg,
		detector:      detector,
		embedder:      embedder,
		searcher:      searcher,
		metrics:       metrics,
		searchService: searchService,
		handler:       transport.NewHandler(searchService, metrics, cfg),
	}, nil
}

// WarmUp initializes the capability clients ahead of the first request.
func (c *Container) WarmUp(ctx context.Context) error {
	return provider.WarmUp(ctx, c.detector, c.embedder, c.searcher)
}

// Close releases the capability clients that hold connections.
func (c *Container) Close() {
	for _, closer := range []interface {
		Name() string
		Close() error
	}{c.detector, c.embedder, c.searcher} {
		if err := closer.Close(); err != nil {
			logger.WithError(err).WithField("provider", closer.Name()).Warn("Failed to close provider")
		}
	}
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}
