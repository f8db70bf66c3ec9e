package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"go-style-scout/internal/imaging"
)

// HTTPDetector runs object detection on an external inference service. The
// service receives the image as multipart field "file" and answers with
// {"detections": [{"label", "score", "box": {"xmin","ymin","xmax","ymax"}}]}
// in relative coordinates.
type HTTPDetector struct {
	inferenceURL string
	threshold    float64
	client       *http.Client
}

// NewHTTPDetector creates a detector for the service at inferenceURL.
func NewHTTPDetector(inferenceURL string, threshold float64) *HTTPDetector {
	return &HTTPDetector{
		inferenceURL: inferenceURL,
		threshold:    threshold,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

type detectResponse struct {
	Detections []Region `json:"detections"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, img *imaging.DecodedImage) ([]Region, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image."+img.Format)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img.Raw); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	_ = writer.WriteField("threshold", strconv.FormatFloat(d.threshold, 'f', -1, 64))
	_ = writer.WriteField("percentage", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The service is asked for the threshold but not trusted to apply it.
	return AboveThreshold(out.Detections, d.threshold), nil
}
