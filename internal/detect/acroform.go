package detect

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4.2)
const (
	flagRequired   = 1 << 1
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

// maxParentDepth bounds the walk up the field hierarchy
const maxParentDepth = 16

// SignaturePrefix marks detections made from signature widgets so the
// store's signature filter excludes them.
const SignaturePrefix = "Signature: "

// PageBox is a page's media box in default user space
type PageBox struct {
	X0, Y0        float64
	Width, Height float64
}

// AcroFormDetector reports the widget annotations a PDF already carries.
// It needs no model and works on the source document rather than the raster.
type AcroFormDetector struct {
	pages map[int][]fields.Detection
	log   logrus.FieldLogger
}

// NewAcroFormDetector reads every widget annotation of src up front
func NewAcroFormDetector(src []byte, log logrus.FieldLogger) (*AcroFormDetector, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(src), conf)
	if err != nil {
		return nil, ferrors.DocumentParse(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, ferrors.DocumentParse(err)
	}

	d := &AcroFormDetector{pages: make(map[int][]fields.Detection), log: log}
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		dets, err := d.readPage(ctx, pageNr)
		if err != nil {
			log.WithField("page", pageNr-1).WithError(err).Warn("Skipping page widgets")
			continue
		}
		if len(dets) > 0 {
			d.pages[pageNr-1] = dets
		}
	}
	return d, nil
}

// Name implements Detector
func (d *AcroFormDetector) Name() string { return string(KindAcroForm) }

// Count returns the number of widgets found across all pages
func (d *AcroFormDetector) Count() int {
	n := 0
	for _, dets := range d.pages {
		n += len(dets)
	}
	return n
}

// Detect implements Detector
func (d *AcroFormDetector) Detect(ctx context.Context, page raster.Page) ([]fields.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dets := d.pages[page.Index]
	out := make([]fields.Detection, len(dets))
	copy(out, dets)
	return out, nil
}

func (d *AcroFormDetector) readPage(ctx *model.Context, pageNr int) ([]fields.Detection, error) {
	pageDict, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("read page dict: %w", err)
	}
	if pageDict == nil {
		return nil, nil
	}

	box, err := pageBox(ctx, pageNr, inh)
	if err != nil {
		return nil, err
	}

	annotsObj, found := pageDict.Find("Annots")
	if !found {
		return nil, nil
	}
	annots, err := ctx.DereferenceArray(annotsObj)
	if err != nil {
		return nil, fmt.Errorf("dereference Annots: %w", err)
	}

	var dets []fields.Detection
	for _, obj := range annots {
		annot, err := ctx.DereferenceDict(obj)
		if err != nil || annot == nil {
			continue
		}
		if subtype := annot.NameEntry("Subtype"); subtype == nil || *subtype != "Widget" {
			continue
		}
		det, ok := d.widgetDetection(ctx, annot, box)
		if ok {
			dets = append(dets, det)
		}
	}
	return dets, nil
}

// widgetDetection converts one widget annotation. Attributes missing on the
// widget are inherited from its parent field.
func (d *AcroFormDetector) widgetDetection(ctx *model.Context, widget types.Dict, box PageBox) (fields.Detection, bool) {
	rect, ok := widgetRect(ctx, widget)
	if !ok {
		return fields.Detection{}, false
	}

	fieldType := inheritedName(ctx, widget, "FT")
	flags := inheritedInt(ctx, widget, "Ff")
	label := inheritedText(ctx, widget, "TU")
	if label == "" {
		label = inheritedText(ctx, widget, "T")
	}

	det := fields.Detection{
		Label: strings.TrimSpace(label),
		Kind:  fields.KindText,
	}

	switch fieldType {
	case "Btn":
		if flags&flagPushbutton != 0 {
			return fields.Detection{}, false
		}
		det.Kind = fields.KindCheckbox
	case "Sig":
		det.Label = SignaturePrefix + det.Label
	case "Tx", "Ch":
	default:
		return fields.Detection{}, false
	}

	if flags&flagRequired != 0 {
		required := true
		det.Required = &required
	}

	r := NormalizeRect(rect, box)
	a := r.Array()
	det.Box = fields.Box(a[:])
	return det, true
}

// NormalizeRect converts a PDF rectangle [llx lly urx ury] on a page into the
// normalized top-left-origin space, clamped to the page.
func NormalizeRect(rect [4]float64, box PageBox) geometry.Rect {
	if box.Width <= 0 || box.Height <= 0 {
		return geometry.Rect{}
	}
	top := box.Y0 + box.Height
	r := geometry.FromPoints(
		(top-rect[3])/box.Height*geometry.Scale,
		(rect[0]-box.X0)/box.Width*geometry.Scale,
		(top-rect[1])/box.Height*geometry.Scale,
		(rect[2]-box.X0)/box.Width*geometry.Scale,
	)
	return r.Clamp()
}

func pageBox(ctx *model.Context, pageNr int, inh *model.InheritedPageAttrs) (PageBox, error) {
	if inh != nil && inh.MediaBox != nil {
		mb := inh.MediaBox
		return PageBox{X0: mb.LL.X, Y0: mb.LL.Y, Width: mb.Width(), Height: mb.Height()}, nil
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return PageBox{}, fmt.Errorf("page dimensions: %w", err)
	}
	if pageNr-1 >= len(dims) {
		return PageBox{}, fmt.Errorf("no dimensions for page %d", pageNr)
	}
	return PageBox{Width: dims[pageNr-1].Width, Height: dims[pageNr-1].Height}, nil
}

func widgetRect(ctx *model.Context, widget types.Dict) ([4]float64, bool) {
	var rect [4]float64
	obj, found := widget.Find("Rect")
	if !found {
		return rect, false
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil || len(arr) != 4 {
		return rect, false
	}
	for i, c := range arr {
		f, err := ctx.DereferenceNumber(c)
		if err != nil {
			return rect, false
		}
		rect[i] = f
	}
	return rect, true
}

// lookup finds key on dict or the nearest ancestor field that defines it
func lookup(ctx *model.Context, dict types.Dict, key string) (types.Object, bool) {
	for depth := 0; dict != nil && depth < maxParentDepth; depth++ {
		if obj, found := dict.Find(key); found {
			return obj, true
		}
		parentObj, found := dict.Find("Parent")
		if !found {
			return nil, false
		}
		parent, err := ctx.DereferenceDict(parentObj)
		if err != nil {
			return nil, false
		}
		dict = parent
	}
	return nil, false
}

func inheritedName(ctx *model.Context, dict types.Dict, key string) string {
	obj, ok := lookup(ctx, dict, key)
	if !ok {
		return ""
	}
	name, err := ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return name.Value()
}

func inheritedText(ctx *model.Context, dict types.Dict, key string) string {
	obj, ok := lookup(ctx, dict, key)
	if !ok {
		return ""
	}
	s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func inheritedInt(ctx *model.Context, dict types.Dict, key string) int {
	obj, ok := lookup(ctx, dict, key)
	if !ok {
		return 0
	}
	i, err := ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0
	}
	return i.Value()
}
