// Package detect proposes fillable fields for rendered pages.
//
// A Detector turns one page into raw detection items. The Pipeline runs a
// detector over a document page by page and seeds a field store with the
// results, tolerating failures on individual pages.
package detect

import (
	"context"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

// Detector finds field candidates on a single page. Boxes are returned in
// normalized [yMin, xMin, yMax, xMax] form, in the order they should be asked.
type Detector interface {
	Detect(ctx context.Context, page raster.Page) ([]fields.Detection, error)
	Name() string
}

// Kind names a detector implementation
type Kind string

const (
	KindNone     Kind = "none"
	KindAcroForm Kind = "acroform"
	KindVision   Kind = "vision"
)

// ParseKind validates a detector name
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindNone, KindAcroForm, KindVision:
		return Kind(s), true
	default:
		return "", false
	}
}

// Func adapts a function to the Detector interface
type Func func(ctx context.Context, page raster.Page) ([]fields.Detection, error)

// Detect implements Detector
func (f Func) Detect(ctx context.Context, page raster.Page) ([]fields.Detection, error) {
	return f(ctx, page)
}

// Name implements Detector
func (Func) Name() string { return "func" }
