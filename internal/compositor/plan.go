package compositor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
)

// PageSize is a page's media size in points
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Line is one line of text positioned on a page. X and Baseline are in PDF
// point space with a bottom-left origin.
type Line struct {
	FieldID   string  `json:"field_id"`
	PageIndex int     `json:"page_index"`
	Text      string  `json:"text"`
	X         float64 `json:"x"`
	Baseline  float64 `json:"baseline"`
	Width     float64 `json:"width"`
}

// Plan is the ordered list of lines to draw
type Plan struct {
	Lines []Line `json:"lines"`
}

// Empty reports whether the plan draws nothing
func (p *Plan) Empty() bool {
	return p == nil || len(p.Lines) == 0
}

// ByPage groups lines by 0-based page index, preserving order
func (p *Plan) ByPage() map[int][]Line {
	pages := make(map[int][]Line)
	for _, line := range p.Lines {
		pages[line.PageIndex] = append(pages[line.PageIndex], line)
	}
	return pages
}

// SkipReason says why a field produced no output
type SkipReason string

const (
	SkipPageOutOfRange SkipReason = "page_out_of_range"
	SkipInvalidRect    SkipReason = "invalid_rect"
	SkipNoRoom         SkipReason = "no_room_on_page"
)

// Skip records a field left out of the output
type Skip struct {
	FieldID   string     `json:"field_id"`
	Label     string     `json:"label"`
	PageIndex int        `json:"page_index"`
	Reason    SkipReason `json:"reason"`
}

// Report summarizes what a plan dropped
type Report struct {
	FieldsDrawn    int    `json:"fields_drawn"`
	LinesDrawn     int    `json:"lines_drawn"`
	Skipped        []Skip `json:"skipped,omitempty"`
	TruncatedLines int    `json:"truncated_lines"`
}

// SkippedBy counts skipped fields with the given reason
func (r *Report) SkippedBy(reason SkipReason) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

// Planner lays out field values on pages
type Planner struct {
	layout   Layout
	measurer Measurer
	log      logrus.FieldLogger
}

// NewPlanner creates a planner. A nil measurer uses core font metrics.
func NewPlanner(layout Layout, measurer Measurer, log logrus.FieldLogger) *Planner {
	if measurer == nil {
		measurer = CoreFontMeasurer{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{layout: layout, measurer: measurer, log: log}
}

// Plan places the values of fs on pages. Fields with an empty value draw
// nothing and are not reported. Invalid fields are skipped and reported,
// never failing the plan.
func (p *Planner) Plan(fs []fields.Field, pages []PageSize) (*Plan, *Report) {
	plan := &Plan{}
	report := &Report{}

	for _, f := range fs {
		text := p.displayText(f)
		if text == "" {
			continue
		}

		logger := p.log.WithFields(logrus.Fields{"field_id": f.ID, "page": f.PageIndex})

		if f.PageIndex < 0 || f.PageIndex >= len(pages) {
			logger.WithField("reason", SkipPageOutOfRange).Warn("Skipping field")
			report.Skipped = append(report.Skipped, skipOf(f, SkipPageOutOfRange))
			continue
		}
		if err := f.Rect.Validate(); err != nil {
			logger.WithField("reason", SkipInvalidRect).WithError(err).Warn("Skipping field")
			report.Skipped = append(report.Skipped, skipOf(f, SkipInvalidRect))
			continue
		}

		page := pages[f.PageIndex]
		lines, truncated := p.place(f, text, page)
		report.TruncatedLines += truncated
		if truncated > 0 {
			logger.WithField("truncated_lines", truncated).Debug("Value truncated at page bottom")
		}
		if len(lines) == 0 {
			report.Skipped = append(report.Skipped, skipOf(f, SkipNoRoom))
			continue
		}

		plan.Lines = append(plan.Lines, lines...)
		report.FieldsDrawn++
		report.LinesDrawn += len(lines)
	}

	return plan, report
}

// place wraps text into the field's box and positions lines top-down
func (p *Planner) place(f fields.Field, text string, page PageSize) ([]Line, int) {
	box := geometry.ToPDFBox(f.Rect.Normalize(), page.Width, page.Height)
	wrapped := Wrap(text, p.layout, p.measurer, box.Width-2*p.layout.Padding)

	x := box.X + p.layout.Padding
	y := box.TopY - p.layout.Padding - float64(p.layout.FontSize)

	lines := make([]Line, 0, len(wrapped))
	for i, s := range wrapped {
		if y < p.layout.BottomMargin {
			return lines, len(wrapped) - i
		}
		lines = append(lines, Line{
			FieldID:   f.ID,
			PageIndex: f.PageIndex,
			Text:      s,
			X:         x,
			Baseline:  y,
			Width:     p.measurer.Width(s, p.layout.FontName, p.layout.FontSize),
		})
		y -= p.layout.lineAdvance()
	}
	return lines, 0
}

func (p *Planner) displayText(f fields.Field) string {
	if f.IsCheckbox() && p.layout.CheckMark != "" {
		if f.Checked() {
			return p.layout.CheckMark
		}
		return ""
	}
	return f.Value
}

func skipOf(f fields.Field, reason SkipReason) Skip {
	return Skip{FieldID: f.ID, Label: f.Label, PageIndex: f.PageIndex, Reason: reason}
}

// String summarizes the report on one line
func (r *Report) String() string {
	return fmt.Sprintf("%d fields drawn (%d lines), %d skipped, %d lines truncated",
		r.FieldsDrawn, r.LinesDrawn, len(r.Skipped), r.TruncatedLines)
}
