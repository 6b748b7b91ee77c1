package compositor

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
)

// Output is the result of a composition
type Output struct {
	PDF    []byte  `json:"-"`
	Plan   *Plan   `json:"plan"`
	Report *Report `json:"report"`
}

// Compositor stamps field values onto a copy of the source PDF
type Compositor struct {
	layout  Layout
	planner *Planner
	log     logrus.FieldLogger
}

// Option configures a Compositor
type Option func(*Compositor)

// WithMeasurer overrides the text measurer
func WithMeasurer(m Measurer) Option {
	return func(c *Compositor) { c.planner.measurer = m }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Compositor) {
		c.log = log
		c.planner.log = log
	}
}

// New creates a compositor for the given layout
func New(layout Layout, opts ...Option) (*Compositor, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	log := logrus.StandardLogger()
	c := &Compositor{
		layout:  layout,
		planner: NewPlanner(layout, nil, log),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Layout returns the compositor's layout
func (c *Compositor) Layout() Layout {
	return c.layout
}

// Compose overlays the values of fs onto src and returns the new document.
// The source slice is never modified. When nothing is drawn the output is a
// byte-identical copy of src. The output depends only on src and the plan, so
// fields that draw nothing never change it. Failure to read or write the
// document is a PDFGenerationError; per-field problems only show up in the
// report.
func (c *Compositor) Compose(ctx context.Context, src []byte, fs []fields.Field) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := newConfiguration()

	pages, err := PageSizes(src, conf)
	if err != nil {
		return nil, ferrors.PDFGeneration(err)
	}

	plan, report := c.planner.Plan(fs, pages)
	out := &Output{Plan: plan, Report: report}

	if plan.Empty() {
		out.PDF = append([]byte(nil), src...)
		return out, nil
	}

	pdf, err := c.stamp(ctx, src, plan, conf)
	if err != nil {
		return nil, err
	}
	out.PDF = pdf

	c.log.WithFields(logrus.Fields{
		"fields":    report.FieldsDrawn,
		"lines":     report.LinesDrawn,
		"skipped":   len(report.Skipped),
		"truncated": report.TruncatedLines,
	}).Info("Composed filled document")

	return out, nil
}

// stamp draws the planned lines onto a copy of src. Pages are stamped one at a
// time in page order so that object numbering does not depend on map order,
// and the values pdfcpu derives from the clock are pinned afterwards.
func (c *Compositor) stamp(ctx context.Context, src []byte, plan *Plan, conf *model.Configuration) ([]byte, error) {
	conf.Cmd = model.ADDWATERMARKS
	// the trailer and info dict stay uncompressed so they can be pinned
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(src), conf)
	if err != nil {
		return nil, ferrors.PDFGeneration(fmt.Errorf("failed to read document: %w", err))
	}
	pinnedDate := sourceDate(pdfCtx)

	byPage := plan.ByPage()
	pageIndexes := make([]int, 0, len(byPage))
	for pageIndex := range byPage {
		pageIndexes = append(pageIndexes, pageIndex)
	}
	sort.Ints(pageIndexes)

	for _, pageIndex := range pageIndexes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stamps, err := c.watermarks(pageIndex, byPage[pageIndex])
		if err != nil {
			return nil, err
		}
		if err := pdfcpu.AddWatermarksSliceMap(pdfCtx, map[int][]*model.Watermark{pageIndex + 1: stamps}); err != nil {
			return nil, ferrors.PDFGeneration(fmt.Errorf("failed to stamp values: %w", err)).WithPage(pageIndex)
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, ferrors.PDFGeneration(fmt.Errorf("failed to write document: %w", err))
	}
	return pinVolatile(buf.Bytes(), pdfCtx, pinnedDate, fingerprint(src, plan)), nil
}

// watermarks converts the planned lines of one page into pdfcpu stamps
func (c *Compositor) watermarks(pageIndex int, lines []Line) ([]*model.Watermark, error) {
	stamps := make([]*model.Watermark, 0, len(lines))
	for _, line := range lines {
		wm, err := api.TextWatermark(line.Text, c.describe(line), true, false, types.POINTS)
		if err != nil {
			return nil, ferrors.PDFGeneration(fmt.Errorf("failed to build stamp for field %s: %w", line.FieldID, err)).
				WithField(line.FieldID).WithPage(pageIndex)
		}
		stamps = append(stamps, wm)
	}
	return stamps, nil
}

// describe renders the pdfcpu stamp description for one line. pdfcpu sets
// bottom-anchored text one rounded-up descent above the stamp's lower edge,
// so the stamp is lowered by that much to put the text on the baseline.
func (c *Compositor) describe(line Line) string {
	return fmt.Sprintf(
		"fontname:%s, points:%d, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:%s, opacity:1",
		c.layout.FontName, c.layout.FontSize, line.X, line.Baseline-c.stampDescent(), c.layout.inkHex(),
	)
}

// stampDescent is the distance between a text stamp's lower edge and its baseline
func (c *Compositor) stampDescent() float64 {
	return math.Ceil(font.Descent(c.layout.FontName, c.layout.FontSize))
}

// epochDate replaces clock-derived dates when the source carries no usable one
const epochDate = "D:20000101000000+00'00'"

// sourceDate returns the creation date of the document as read, or ""
func sourceDate(pdfCtx *model.Context) string {
	if pdfCtx.Info == nil {
		return ""
	}
	d, err := pdfCtx.DereferenceDict(*pdfCtx.Info)
	if err != nil || d == nil {
		return ""
	}
	for _, key := range []string{"CreationDate", "ModDate"} {
		if s, ok := d[key].(types.StringLiteral); ok {
			return string(s)
		}
	}
	return ""
}

// fingerprint identifies a composition by its inputs
func fingerprint(src []byte, plan *Plan) string {
	h := md5.New()
	h.Write(src)
	for _, line := range plan.Lines {
		fmt.Fprintf(h, "%d|%.2f|%.2f|%s\n", line.PageIndex, line.X, line.Baseline, line.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// pinVolatile replaces the file identifier and info dates pdfcpu generated
// while writing with values derived from the inputs. Replacements keep their
// length so the cross-reference offsets stay valid.
func pinVolatile(pdf []byte, pdfCtx *model.Context, date, id string) []byte {
	if len(pdfCtx.ID) == 2 {
		if fresh, ok := pdfCtx.ID[1].(types.HexLiteral); ok && len(fresh) == len(id) {
			pdf = bytes.ReplaceAll(pdf, []byte("<"+string(fresh)+">"), []byte("<"+id+">"))
		}
	}

	if pdfCtx.Info == nil {
		return pdf
	}
	d, err := pdfCtx.DereferenceDict(*pdfCtx.Info)
	if err != nil || d == nil {
		return pdf
	}
	for _, key := range []string{"CreationDate", "ModDate"} {
		now, ok := d[key].(types.StringLiteral)
		if !ok {
			continue
		}
		pinned := date
		if len(pinned) != len(now) {
			pinned = epochDate
		}
		if len(pinned) != len(now) {
			continue
		}
		pdf = bytes.ReplaceAll(pdf, []byte("("+string(now)+")"), []byte("("+pinned+")"))
	}
	return pdf
}

// PageSizes returns the media size of every page of a PDF
func PageSizes(src []byte, conf *model.Configuration) ([]PageSize, error) {
	if conf == nil {
		conf = newConfiguration()
	}
	dims, err := api.PageDims(bytes.NewReader(src), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	pages := make([]PageSize, len(dims))
	for i, d := range dims {
		pages[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	return pages, nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
