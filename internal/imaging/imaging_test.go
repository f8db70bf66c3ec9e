package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	apperrors "go-style-scout/internal/errors"
)

// createTestImage creates a simple test image for testing purposes
func createTestImage(width, height int, fillColor color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fillColor)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeTestImage(t *testing.T, width, height int) *DecodedImage {
	t.Helper()
	img, err := NewDecoder(0).Decode(encodePNG(t, createTestImage(width, height, color.RGBA{200, 10, 10, 255})))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func TestDecode_PNG(t *testing.T) {
	img := decodeTestImage(t, 640, 480)

	if img.Width != 640 || img.Height != 480 {
		t.Errorf("Expected 640x480, got %dx%d", img.Width, img.Height)
	}
	if img.Channels != RGBChannels {
		t.Errorf("Expected %d channels, got %d", RGBChannels, img.Channels)
	}
	if img.Format != "png" || img.MIMEType() != "image/png" {
		t.Errorf("Expected png format, got %s (%s)", img.Format, img.MIMEType())
	}
}

func TestDecode_JPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(32, 16, color.RGBA{0, 0, 255, 255}), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	img, err := NewDecoder(0).Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Expected JPEG to decode, got %v", err)
	}
	if img.MIMEType() != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", img.MIMEType())
	}
}

func TestDecode_Failures(t *testing.T) {
	valid := encodePNG(t, createTestImage(4, 4, color.RGBA{1, 2, 3, 255}))

	tests := []struct {
		name    string
		data    []byte
		decoder *Decoder
	}{
		{"empty", nil, NewDecoder(0)},
		{"garbage", []byte("definitely not an image"), NewDecoder(0)},
		{"truncated png", valid[:len(valid)/2], NewDecoder(0)},
		{"too many pixels", valid, NewDecoder(8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decoder.Decode(tt.data)
			if err == nil {
				t.Fatal("Expected decode error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
				t.Errorf("Expected decode error type, got %v", err)
			}
			if apperrors.GetStatusCode(err) != 400 {
				t.Errorf("Expected 400, got %d", apperrors.GetStatusCode(err))
			}
		})
	}
}

func TestAbsoluteBox_Rect(t *testing.T) {
	tests := []struct {
		name string
		box  RelativeBox
		want image.Rectangle
	}{
		{"inside", RelativeBox{0.25, 0.5, 0.75, 1.0}, image.Rect(100, 100, 300, 200)},
		{"inverted", RelativeBox{0.75, 1.0, 0.25, 0.5}, image.Rect(100, 100, 300, 200)},
		{"out of range", RelativeBox{-0.5, -1, 1.5, 2}, image.Rect(0, 0, 400, 200)},
		{"fractional", RelativeBox{0.001, 0.001, 0.999, 0.999}, image.Rect(0, 0, 400, 200)},
		{"nan", RelativeBox{math.NaN(), 0, 0.5, 0.5}, image.Rect(0, 0, 200, 100)},
		{"degenerate", RelativeBox{0.5, 0.5, 0.5, 0.5}, image.Rectangle{}},
		{"fully outside", RelativeBox{1.2, 1.2, 1.5, 1.5}, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAbsolute(tt.box, 400, 200).Rect(400, 200)
			if tt.want.Empty() {
				if !got.Empty() {
					t.Errorf("Expected empty rect, got %v", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestToAbsolute_Scales(t *testing.T) {
	abs := ToAbsolute(RelativeBox{0.1, 0.2, 0.5, 0.6}, 1000, 500)
	if abs.XMin != 100 || abs.YMin != 100 || abs.XMax != 500 || abs.YMax != 300 {
		t.Errorf("Unexpected absolute box %+v", abs)
	}
}

func TestCrop_IndependentBuffer(t *testing.T) {
	img := decodeTestImage(t, 100, 50)

	crop, _, err := Crop(img, RelativeBox{0.1, 0.2, 0.5, 0.8})
	if err != nil {
		t.Fatalf("Expected crop to succeed, got %v", err)
	}
	if crop.Bounds().Dx() != 40 || crop.Bounds().Dy() != 30 {
		t.Errorf("Expected 40x30 crop, got %v", crop.Bounds())
	}

	before := color.RGBAModel.Convert(img.Pixels.At(10, 10)).(color.RGBA)
	crop.Set(0, 0, color.RGBA{0, 255, 0, 255})
	after := color.RGBAModel.Convert(img.Pixels.At(10, 10)).(color.RGBA)
	if before != after {
		t.Error("Expected crop to own its pixels")
	}
	if got := crop.RGBAAt(5, 5); got != (color.RGBA{200, 10, 10, 255}) {
		t.Errorf("Expected source colour in crop, got %v", got)
	}
}

func TestCrop_EmptyRegion(t *testing.T) {
	img := decodeTestImage(t, 10, 10)

	if _, _, err := Crop(img, RelativeBox{2, 2, 3, 3}); err != ErrEmptyRegion {
		t.Errorf("Expected ErrEmptyRegion, got %v", err)
	}
}

func TestDownscale(t *testing.T) {
	src := createTestImage(1000, 500, color.RGBA{9, 9, 9, 255})

	small := Downscale(src, 200)
	if small.Bounds().Dx() != 200 || small.Bounds().Dy() != 100 {
		t.Errorf("Expected 200x100, got %v", small.Bounds())
	}
	if Downscale(src, 0) != image.Image(src) {
		t.Error("Expected maxSide <= 0 to return the input")
	}
	if Downscale(src, 2000) != image.Image(src) {
		t.Error("Expected small images to be returned untouched")
	}
}

func TestEncodePNG_Deterministic(t *testing.T) {
	img := createTestImage(8, 8, color.RGBA{1, 2, 3, 255})
	a, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, _ := EncodePNG(img)
	if !bytes.Equal(a, b) {
		t.Error("Expected identical pixels to encode identically")
	}
}
