package imaging

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrEmptyRegion is returned when a box has no area left after clamping.
var ErrEmptyRegion = errors.New("region is empty after clamping to image bounds")

// RelativeBox holds corner coordinates as fractions of width and height.
type RelativeBox struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// AbsoluteBox holds pixel coordinates.
type AbsoluteBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// ToAbsolute scales a relative box by the image size. No clamping is applied.
func ToAbsolute(box RelativeBox, width, height int) AbsoluteBox {
	w, h := float64(width), float64(height)
	return AbsoluteBox{
		XMin: box.XMin * w,
		YMin: box.YMin * h,
		XMax: box.XMax * w,
		YMax: box.YMax * h,
	}
}

// Rect clamps the box into [0,width]x[0,height] and returns the covered pixel
// rectangle. Inverted corners are swapped and NaN coordinates collapse to 0.
func (b AbsoluteBox) Rect(width, height int) image.Rectangle {
	x0, x1 := ordered(clamp(b.XMin, width), clamp(b.XMax, width))
	y0, y1 := ordered(clamp(b.YMin, height), clamp(b.YMax, height))

	return image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	).Intersect(image.Rect(0, 0, width, height))
}

func clamp(v float64, limit int) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, float64(limit)))
}

func ordered(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Crop copies the region described by box out of img into a new buffer that
// does not share memory with the source.
func Crop(img *DecodedImage, box RelativeBox) (*image.RGBA, AbsoluteBox, error) {
	abs := ToAbsolute(box, img.Width, img.Height)
	rect := abs.Rect(img.Width, img.Height)
	if rect.Empty() {
		return nil, abs, ErrEmptyRegion
	}

	src := rect.Add(img.Pixels.Bounds().Min)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Copy(dst, image.Point{}, img.Pixels, src, xdraw.Src, nil)
	return dst, abs, nil
}
