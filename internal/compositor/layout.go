// Package compositor overlays field values onto the pages of the source PDF.
//
// Composition is split in two steps. Plan is pure: it maps every field rect to
// PDF point space, wraps the value and places each line. Compose reads the
// source document, plans, and stamps the planned lines onto a copy.
package compositor

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// Layout controls text placement inside a field box. Sizes are in points.
type Layout struct {
	FontName       string
	FontSize       int
	Padding        float64
	LineHeight     float64 // multiple of FontSize
	MinUsableWidth float64
	BottomMargin   float64
	Ink            string // hex colour
	// CheckMark is drawn for ticked checkboxes. Unticked checkboxes draw
	// nothing. An empty CheckMark draws the raw "true"/"false" value.
	CheckMark string
}

// DefaultLayout returns the fixed-size layout used for exports
func DefaultLayout() Layout {
	return Layout{
		FontName:       "Helvetica",
		FontSize:       10,
		Padding:        4,
		LineHeight:     1.2,
		MinUsableWidth: 20,
		BottomMargin:   10,
		Ink:            "#000000",
		CheckMark:      "X",
	}
}

// Validate checks the layout before use
func (l Layout) Validate() error {
	if l.FontName == "" {
		return fmt.Errorf("font name is required")
	}
	if l.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %d", l.FontSize)
	}
	if l.Padding < 0 {
		return fmt.Errorf("padding cannot be negative, got %g", l.Padding)
	}
	if l.LineHeight <= 0 {
		return fmt.Errorf("line height must be positive, got %g", l.LineHeight)
	}
	if l.MinUsableWidth <= 0 {
		return fmt.Errorf("minimum usable width must be positive, got %g", l.MinUsableWidth)
	}
	if _, err := colorful.Hex(l.Ink); err != nil {
		return fmt.Errorf("invalid ink colour %q: %w", l.Ink, err)
	}
	return nil
}

// inkHex returns the ink colour in the #rrggbb form pdfcpu expects
func (l Layout) inkHex() string {
	c, err := colorful.Hex(l.Ink)
	if err != nil {
		return "#000000"
	}
	return c.Clamped().Hex()
}

// lineAdvance is the baseline-to-baseline distance
func (l Layout) lineAdvance() float64 {
	return float64(l.FontSize) * l.LineHeight
}

// Measurer reports the rendered width of text in points
type Measurer interface {
	Width(text string, fontName string, fontSize int) float64
}

// CoreFontMeasurer measures with the metrics of the PDF core fonts
type CoreFontMeasurer struct{}

// Width implements Measurer
func (CoreFontMeasurer) Width(text string, fontName string, fontSize int) float64 {
	return font.TextWidth(text, fontName, fontSize)
}

// Wrap breaks text into lines whose measured width stays under maxWidth.
// maxWidth is floored at the layout's minimum usable width. Words are never
// split, so a single word wider than the line occupies a line of its own.
func Wrap(text string, l Layout, m Measurer, maxWidth float64) []string {
	if maxWidth < l.MinUsableWidth {
		maxWidth = l.MinUsableWidth
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if m.Width(candidate, l.FontName, l.FontSize) < maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
