package repository

import (
	"context"
	"fmt"

	"go-style-scout/internal/storage"
	"go-style-scout/pkg/validation"
)

// RemoteImageRepository routes Azure Blob URLs to blob storage and everything
// else to plain HTTP.
type RemoteImageRepository struct {
	fetcher   storage.ImageFetcher
	blobs     storage.BlobStorage
	validator *validation.URLValidator
}

// NewRemoteImageRepository creates a repository. blobs may be nil when no
// Azure account is configured; blob URLs are then fetched over HTTP.
func NewRemoteImageRepository(fetcher storage.ImageFetcher, blobs storage.BlobStorage, validator *validation.URLValidator) ImageRepository {
	return &RemoteImageRepository{
		fetcher:   fetcher,
		blobs:     blobs,
		validator: validator,
	}
}

// FetchImage retrieves an image from a URL
func (r *RemoteImageRepository) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if r.blobs != nil && storage.IsBlobURL(imageURL) {
		return r.blobs.GetImage(ctx, imageURL)
	}
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: no HTTP fetcher", ErrRepositoryUnavailable)
	}
	return r.fetcher.FetchImage(ctx, imageURL)
}

// ValidateImageURL validates if the provided URL is acceptable
func (r *RemoteImageRepository) ValidateImageURL(imageURL string) error {
	if imageURL == "" {
		return ErrInvalidImageURL
	}
	return r.validator.ValidateImageURL(imageURL)
}
