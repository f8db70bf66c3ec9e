package embedding

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func testCrop(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	return img
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	if err != nil {
		t.Fatalf("Expected normalize to succeed, got %v", err)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Expected [0.6 0.8], got %v", v)
	}

	failures := [][]float32{nil, {0, 0, 0}, {float32(math.NaN()), 1}}
	for _, f := range failures {
		if _, err := Normalize(f); err == nil {
			t.Errorf("Expected error for %v", f)
		}
	}
}

func TestMeanPool(t *testing.T) {
	got, err := MeanPool([][]float32{{1, 2}, {3, 6}})
	if err != nil {
		t.Fatalf("Expected pooling to succeed, got %v", err)
	}
	if got[0] != 2 || got[1] != 4 {
		t.Errorf("Expected [2 4], got %v", got)
	}

	if _, err := MeanPool([][]float32{{1, 2}, {3}}); err == nil {
		t.Error("Expected error for ragged token vectors")
	}
}

func TestHTTPEmbedder_PooledResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Expected crop upload: %v", err)
		}
		defer file.Close()
		if header.Filename != "crop.png" {
			t.Errorf("Unexpected filename %s", header.Filename)
		}
		if r.FormValue("pooling") != "mean" {
			t.Errorf("Expected mean pooling to be requested")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0, 5, 0, 0}})
	}))
	defer server.Close()

	e := NewHTTPEmbedder(server.URL, 64)
	vec, err := e.Embed(context.Background(), testCrop(200, 100))
	if err != nil {
		t.Fatalf("Expected embedding to succeed, got %v", err)
	}
	if len(vec) != 4 || vec[1] != 1 {
		t.Errorf("Expected unit vector along axis 1, got %v", vec)
	}
}

func TestHTTPEmbedder_TokenResponseIsPooled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float32{{1, 0, 2}, {1, 0, 0}},
		})
	}))
	defer server.Close()

	vec, err := NewHTTPEmbedder(server.URL, 64).Embed(context.Background(), testCrop(8, 8))
	if err != nil {
		t.Fatalf("Expected embedding to succeed, got %v", err)
	}
	if math.Abs(magnitude(vec)-1) > 1e-6 {
		t.Errorf("Expected unit length, got %f", magnitude(vec))
	}
	if math.Abs(float64(vec[0]-vec[2])) > 1e-6 {
		t.Errorf("Expected equal components after pooling, got %v", vec)
	}
}

func TestHTTPEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"empty vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding": []}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			if _, err := NewHTTPEmbedder(server.URL, 64).Embed(context.Background(), testCrop(4, 4)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
