// Package geometry implements the page-size-independent coordinate space shared
// by the detector, the interactive editor and the PDF compositor.
//
// A Rect spans 0..1000 on both axes with a top-left origin. Pixel space (raster
// images, editor containers) also has a top-left origin; PDF point space has a
// bottom-left origin, so ToPDFBox inverts Y.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
)

const (
	// Scale is the extent of the normalized space on each axis.
	Scale = 1000.0

	// MinExtent is the smallest width/height an edit may leave a field with.
	MinExtent = 20.0

	// MinCreateExtent is the threshold a freshly drawn rect must exceed on both
	// axes to become a field. It is looser than MinExtent because it is checked
	// on the raw gesture.
	MinCreateExtent = 10.0
)

// Rect is a bounding box in normalized space. The JSON form is the detector's
// [yMin, xMin, yMax, xMax] array.
type Rect struct {
	YMin float64
	XMin float64
	YMax float64
	XMax float64
}

// PixelBox is a rect in a top-left-origin pixel container
type PixelBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PDFBox is a rect in PDF point space. TopY is the Y coordinate of the box's
// top edge measured from the page bottom.
type PDFBox struct {
	X      float64 `json:"x"`
	TopY   float64 `json:"top_y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Mode selects how a pointer delta is applied to a rect
type Mode int

const (
	ModeMove Mode = iota
	ModeResizeTopRight
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeMove:
		return "move"
	case ModeResizeTopRight:
		return "resize-top-right"
	default:
		return "unknown"
	}
}

// NewRect builds a rect from the detector's component order
func NewRect(yMin, xMin, yMax, xMax float64) Rect {
	return Rect{YMin: yMin, XMin: xMin, YMax: yMax, XMax: xMax}
}

// FromArray builds a rect from a [yMin, xMin, yMax, xMax] slice. ok is false
// when the slice does not hold exactly four values.
func FromArray(box []float64) (Rect, bool) {
	if len(box) != 4 {
		return Rect{}, false
	}
	return NewRect(box[0], box[1], box[2], box[3]), true
}

// FromPoints returns the rect spanned by two corners in any order
func FromPoints(y0, x0, y1, x1 float64) Rect {
	r := r2.RectFromPoints(r2.Point{X: x0, Y: y0}, r2.Point{X: x1, Y: y1})
	return Rect{YMin: r.Y.Lo, XMin: r.X.Lo, YMax: r.Y.Hi, XMax: r.X.Hi}
}

// Array returns the [yMin, xMin, yMax, xMax] form
func (r Rect) Array() [4]float64 {
	return [4]float64{r.YMin, r.XMin, r.YMax, r.XMax}
}

// Width returns the horizontal extent
func (r Rect) Width() float64 {
	return r.XMax - r.XMin
}

// Height returns the vertical extent
func (r Rect) Height() float64 {
	return r.YMax - r.YMin
}

// Contains reports whether the normalized point lies inside r, edges included
func (r Rect) Contains(y, x float64) bool {
	return r.r2().ContainsPoint(r2.Point{X: x, Y: y})
}

func (r Rect) r2() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: r.XMin, Hi: r.XMax},
		Y: r1.Interval{Lo: r.YMin, Hi: r.YMax},
	}
}

// Normalize swaps inverted components so that min <= max on both axes
func (r Rect) Normalize() Rect {
	if r.XMin > r.XMax {
		r.XMin, r.XMax = r.XMax, r.XMin
	}
	if r.YMin > r.YMax {
		r.YMin, r.YMax = r.YMax, r.YMin
	}
	return r
}

// Clamp limits every component to [0, Scale]
func (r Rect) Clamp() Rect {
	return Rect{
		YMin: clamp(r.YMin, 0, Scale),
		XMin: clamp(r.XMin, 0, Scale),
		YMax: clamp(r.YMax, 0, Scale),
		XMax: clamp(r.XMax, 0, Scale),
	}
}

// Validate reports a GeometryValidationError when any component is NaN or infinite
func (r Rect) Validate() error {
	for _, c := range r.Array() {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return ferrors.GeometryValidation(fmt.Sprintf("non-finite component in %s", r))
		}
	}
	return nil
}

// String returns the array form
func (r Rect) String() string {
	return fmt.Sprintf("[%g %g %g %g]", r.YMin, r.XMin, r.YMax, r.XMax)
}

// MarshalJSON encodes the rect as [yMin, xMin, yMax, xMax]
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Array())
}

// UnmarshalJSON decodes the [yMin, xMin, yMax, xMax] array form
func (r *Rect) UnmarshalJSON(data []byte) error {
	var box []float64
	if err := json.Unmarshal(data, &box); err != nil {
		return fmt.Errorf("rect must be an array of 4 numbers: %w", err)
	}
	parsed, ok := FromArray(box)
	if !ok {
		return fmt.Errorf("rect must have 4 components, got %d", len(box))
	}
	*r = parsed
	return nil
}

// ToPixelBox maps r into a container of w x h pixels
func ToPixelBox(r Rect, w, h float64) PixelBox {
	return PixelBox{
		Top:    r.YMin / Scale * h,
		Left:   r.XMin / Scale * w,
		Width:  r.Width() / Scale * w,
		Height: r.Height() / Scale * h,
	}
}

// FromPixelBox is the inverse of ToPixelBox. Container dimensions must be positive.
func FromPixelBox(b PixelBox, w, h float64) Rect {
	yMin := b.Top / h * Scale
	xMin := b.Left / w * Scale
	return Rect{
		YMin: yMin,
		XMin: xMin,
		YMax: yMin + b.Height/h*Scale,
		XMax: xMin + b.Width/w*Scale,
	}
}

// FromPointerDelta applies a pixel displacement, measured from the start of a
// gesture, to the rect captured at that start.
//
// ModeMove translates the rect and keeps it inside the page. ModeResizeTopRight
// keeps the bottom-left corner (YMax, XMin) fixed and moves YMin and XMax, never
// letting height or width drop below MinExtent.
func FromPointerDelta(r Rect, dx, dy, w, h float64, mode Mode) Rect {
	if w <= 0 || h <= 0 {
		return r
	}

	dxNorm := dx / w * Scale
	dyNorm := dy / h * Scale

	switch mode {
	case ModeMove:
		height := r.Height()
		width := r.Width()
		newY := clamp(r.YMin+dyNorm, 0, Scale-height)
		newX := clamp(r.XMin+dxNorm, 0, Scale-width)
		return Rect{YMin: newY, XMin: newX, YMax: newY + height, XMax: newX + width}

	case ModeResizeTopRight:
		newYMin := clamp(r.YMin+dyNorm, 0, r.YMax-MinExtent)
		newXMax := clamp(r.XMax+dxNorm, r.XMin+MinExtent, Scale)
		return Rect{YMin: newYMin, XMin: r.XMin, YMax: r.YMax, XMax: newXMax}

	default:
		return r
	}
}

// ToPDFBox maps r onto a page of pageW x pageH points
func ToPDFBox(r Rect, pageW, pageH float64) PDFBox {
	return PDFBox{
		X:      r.XMin / Scale * pageW,
		TopY:   pageH - r.YMin/Scale*pageH,
		Width:  r.Width() / Scale * pageW,
		Height: r.Height() / Scale * pageH,
	}
}

// clamp bounds v to [lo, hi]. When the bounds cross, lo wins.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
