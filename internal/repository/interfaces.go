package repository

import "context"

// ImageRepository defines the interface for remote image access
type ImageRepository interface {
	// FetchImage retrieves the raw bytes of the image at imageURL
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)

	// ValidateImageURL validates if the provided URL is acceptable
	ValidateImageURL(imageURL string) error
}
