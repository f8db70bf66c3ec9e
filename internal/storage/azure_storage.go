package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// BlobStorage reads images stored in Azure Blob Storage.
type BlobStorage interface {
	GetImage(ctx context.Context, blobURL string) ([]byte, error)
}

type azureStorage struct {
	client   *azblob.Client
	maxBytes int64
}

func NewAzureStorage(accountName string, accountKey string, maxBytes int64) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureStorage{client: client, maxBytes: maxBytes}, nil
}

// IsBlobURL reports whether rawURL points at Azure Blob Storage.
func IsBlobURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".blob.core.windows.net")
}

// GetImage downloads https://<account>.blob.core.windows.net/<container>/<blob>.
func (s *azureStorage) GetImage(ctx context.Context, blobURL string) ([]byte, error) {
	parts, err := azblob.ParseURL(blobURL)
	if err != nil {
		return nil, fmt.Errorf("invalid blob URL: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return nil, fmt.Errorf("blob URL must name a container and a blob")
	}

	downloadResponse, err := s.client.DownloadStream(ctx, parts.ContainerName, parts.BlobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	return readLimited(retryReader, s.maxBytes)
}
