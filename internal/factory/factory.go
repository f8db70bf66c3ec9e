package factory

import (
	"context"
	"fmt"

	"go-style-scout/internal/config"
	"go-style-scout/internal/detection"
	"go-style-scout/internal/embedding"
	"go-style-scout/internal/repository"
	"go-style-scout/internal/search"
	"go-style-scout/internal/storage"
	"go-style-scout/pkg/validation"
)

// CapabilityFactory creates the model and catalog clients the pipeline uses.
type CapabilityFactory interface {
	CreateDetector(ctx context.Context) (detection.Detector, error)
	CreateEmbedder(ctx context.Context) (embedding.Embedder, error)
	CreateSearcher(ctx context.Context) (search.Searcher, error)
}

// StorageFactory creates the remote image source for the URL endpoint.
type StorageFactory interface {
	CreateImageRepository() (repository.ImageRepository, error)
}

// capabilityFactory implements CapabilityFactory
type capabilityFactory struct {
	cfg *config.Config
}

// NewCapabilityFactory creates a new capability factory
func NewCapabilityFactory(cfg *config.Config) CapabilityFactory {
	return &capabilityFactory{cfg: cfg}
}

// CreateDetector creates a detector based on the configured backend
func (f *capabilityFactory) CreateDetector(ctx context.Context) (detection.Detector, error) {
	p := f.cfg.Pipeline
	switch f.cfg.Detector.Backend {
	case config.DetectorHTTP:
		return detection.NewHTTPDetector(f.cfg.Detector.URL, p.DetectionThreshold), nil
	case config.DetectorGemini:
		return detection.NewGeminiDetector(ctx, f.cfg.Detector.GeminiAPIKey, f.cfg.Detector.GeminiModel, p.DetectionThreshold, p.RelevantLabels)
	default:
		return nil, fmt.Errorf("unsupported detector backend: %s", f.cfg.Detector.Backend)
	}
}

// CreateEmbedder creates the embedding client
func (f *capabilityFactory) CreateEmbedder(ctx context.Context) (embedding.Embedder, error) {
	return embedding.NewHTTPEmbedder(f.cfg.Embedder.URL, f.cfg.Embedder.MaxSide), nil
}

// CreateSearcher creates a searcher based on the configured backend
func (f *capabilityFactory) CreateSearcher(ctx context.Context) (search.Searcher, error) {
	s := f.cfg.Search
	switch s.Backend {
	case config.SearchPostgres:
		return search.NewPostgresSearcher(ctx, s.DatabaseURL, s.MatchFunction)
	case config.SearchSupabase:
		return search.NewSupabaseSearcher(s.SupabaseURL, s.SupabaseKey, s.MatchFunction), nil
	default:
		return nil, fmt.Errorf("unsupported search backend: %s", s.Backend)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateImageRepository wires HTTP fetching and, when credentials are set,
// Azure Blob downloads behind one repository.
func (f *storageFactory) CreateImageRepository() (repository.ImageRepository, error) {
	validator := validation.NewURLValidatorWithOptions([]string{"http", "https"}, f.cfg.ImageHostAllowlist).
		WithPrivateHosts(f.cfg.AllowPrivateImageHosts)
	fetcher := storage.NewHTTPImageFetcher(f.cfg.ImageFetchTimeout, f.cfg.MaxRequestBodySize,
		storage.WithPrivateNetworks(f.cfg.AllowPrivateImageHosts),
		storage.WithRedirectValidator(validator.ValidateImageURL),
	)

	var blobs storage.BlobStorage
	if f.cfg.Azure.Enabled() {
		var err error
		blobs, err = storage.NewAzureStorage(f.cfg.Azure.AccountName, f.cfg.Azure.AccountKey, f.cfg.MaxRequestBodySize)
		if err != nil {
			return nil, fmt.Errorf("azure storage: %w", err)
		}
	}

	return repository.NewRemoteImageRepository(fetcher, blobs, validator), nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	CapabilityFactory CapabilityFactory
	StorageFactory    StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		CapabilityFactory: NewCapabilityFactory(cfg),
		StorageFactory:    NewStorageFactory(cfg),
	}
}
