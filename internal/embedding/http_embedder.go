package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go-style-scout/internal/imaging"
)

// HTTPEmbedder sends crops to an image feature-extraction service. The crop
// is downscaled to maxSide and uploaded as PNG in the multipart field "file".
// The service may answer with a pooled vector {"embedding": [...]} or with
// per-token vectors {"embeddings": [[...], ...]}, which are mean-pooled here.
type HTTPEmbedder struct {
	inferenceURL string
	maxSide      int
	client       *http.Client
}

// NewHTTPEmbedder creates an embedder for the service at inferenceURL.
func NewHTTPEmbedder(inferenceURL string, maxSide int) *HTTPEmbedder {
	return &HTTPEmbedder{
		inferenceURL: inferenceURL,
		maxSide:      maxSide,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

type embedResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	data, err := imaging.EncodePNG(imaging.Downscale(img, e.maxSide))
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "crop.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy crop data: %w", err)
	}
	_ = writer.WriteField("pooling", "mean")
	_ = writer.WriteField("normalize", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vec := out.Embedding
	if len(vec) == 0 && len(out.Embeddings) > 0 {
		if vec, err = MeanPool(out.Embeddings); err != nil {
			return nil, err
		}
	}
	// Normalized again locally; services differ in whether they honour the flag.
	return Normalize(vec)
}
