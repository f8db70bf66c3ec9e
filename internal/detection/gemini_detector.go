package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go-style-scout/internal/imaging"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiAttempts = 3

// geminiBoxScale is the coordinate range Gemini uses for box_2d.
const geminiBoxScale = 1000.0

const geminiSystemPrompt = `You are an object detector for clothing in photographs.
Return every visible clothing item as a JSON array. Each element must be:
{"label": string, "confidence": number between 0 and 1, "box_2d": [ymin, xmin, ymax, xmax]}
where box_2d coordinates are integers normalized to 0-1000.
Use only these labels: %s.
Skip items that match none of them. Output JSON only.`

// GeminiDetector asks a Gemini vision model for clothing bounding boxes.
// The client is created once and shared by all requests.
type GeminiDetector struct {
	client     *genai.Client
	generate   func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	backoff    time.Duration
	threshold  float64
	normalizer *LabelNormalizer
}

// NewGeminiDetector connects to Gemini. vocabulary is the label set the model
// is instructed to use.
func NewGeminiDetector(ctx context.Context, apiKey, modelName string, threshold float64, vocabulary []string) (*GeminiDetector, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(apiKey)))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	m := cl.GenerativeModel(strings.TrimSpace(modelName))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(geminiSystemPrompt, strings.Join(vocabulary, ", ")))},
	}

	return &GeminiDetector{
		client:     cl,
		generate:   m.GenerateContent,
		backoff:    300 * time.Millisecond,
		threshold:  threshold,
		normalizer: NewLabelNormalizer(vocabulary),
	}, nil
}

type geminiDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box2D      []float64 `json:"box_2d"`
}

// Detect implements Detector.
func (d *GeminiDetector) Detect(ctx context.Context, img *imaging.DecodedImage) ([]Region, error) {
	parts := []genai.Part{
		genai.Text("Detect the clothing items in this photo."),
		genai.Blob{MIMEType: img.MIMEType(), Data: img.Raw},
	}

	// Retry transient failures
	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		resp, err := d.generate(ctx, parts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !isTransient(err) {
				return nil, fmt.Errorf("gemini detect: %w", err)
			}
			lastErr = err
			if attempt == geminiAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * d.backoff):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, errors.New("gemini detect: empty response")
		}
		return d.parse(txt)
	}
	return nil, fmt.Errorf("gemini detect after %d attempts: %w", geminiAttempts, lastErr)
}

// isTransient reports whether a Gemini call is worth repeating: timeouts,
// rate limiting and server-side failures.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return retryableStatus(coded.HTTPCode())
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (d *GeminiDetector) parse(txt string) ([]Region, error) {
	var raw []geminiDetection
	if err := json.Unmarshal([]byte(stripCodeFences(txt)), &raw); err != nil {
		return nil, fmt.Errorf("gemini detect: bad JSON: %w", err)
	}

	regions := make([]Region, 0, len(raw))
	for _, det := range raw {
		if len(det.Box2D) != 4 {
			continue
		}
		regions = append(regions, Region{
			Label:      d.normalizer.Normalize(det.Label),
			Confidence: det.Confidence,
			Box: imaging.RelativeBox{
				YMin: det.Box2D[0] / geminiBoxScale,
				XMin: det.Box2D[1] / geminiBoxScale,
				YMax: det.Box2D[2] / geminiBoxScale,
				XMax: det.Box2D[3] / geminiBoxScale,
			},
		})
	}
	return AboveThreshold(regions, d.threshold), nil
}

// Close releases the Gemini client.
func (d *GeminiDetector) Close() error {
	return d.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
