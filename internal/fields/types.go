package fields

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
)

// Kind distinguishes free-text fields from tick boxes
type Kind string

const (
	KindText     Kind = "text"
	KindCheckbox Kind = "checkbox"
)

// Checkbox values are persisted as strings, identically to text values.
const (
	CheckboxChecked   = "true"
	CheckboxUnchecked = "false"
)

// DefaultLabel is used when a detector returns an item without a label
const DefaultLabel = "Unknown Field"

// Field is one answerable region on a page. JSON names match the persisted
// session format.
type Field struct {
	ID           string        `json:"id"`
	Label        string        `json:"label"`
	Value        string        `json:"value"`
	Rect         geometry.Rect `json:"rect"`
	PageIndex    int           `json:"pageIndex"`
	Required     bool          `json:"required,omitempty"`
	Kind         Kind          `json:"type,omitempty"`
	GroupLabel   string        `json:"groupLabel,omitempty"`
	Section      string        `json:"section,omitempty"`
	SemanticType string        `json:"commonType,omitempty"`
}

// IsCheckbox reports whether the field holds a "true"/"false" value
func (f Field) IsCheckbox() bool {
	return f.Kind == KindCheckbox
}

// Checked reports whether a checkbox field is ticked
func (f Field) Checked() bool {
	return f.IsCheckbox() && f.Value == CheckboxChecked
}

// Detection is one raw item of a detection batch as produced by a detector
type Detection struct {
	Label        string `json:"label"`
	Section      string `json:"section,omitempty"`
	GroupLabel   string `json:"group_label,omitempty"`
	Kind         Kind   `json:"type,omitempty"`
	SemanticType string `json:"common_type,omitempty"`
	Box          Box    `json:"box_2d"`
	Required     *bool  `json:"required,omitempty"`
}

// Box is a detector bounding box in [yMin, xMin, yMax, xMax] order. Decoding is
// lenient: anything other than an array of four numbers decodes to a nil Box so
// the item survives with a degenerate rect.
type Box []float64

// UnmarshalJSON decodes a box, tolerating malformed input
func (b *Box) UnmarshalJSON(data []byte) error {
	*b = nil

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) != 4 {
		return nil
	}

	box := make(Box, 0, 4)
	for _, item := range raw {
		item = bytes.Trim(item, `"`)
		v, err := strconv.ParseFloat(strings.TrimSpace(string(item)), 64)
		if err != nil {
			return nil
		}
		box = append(box, v)
	}
	*b = box
	return nil
}

// Rect returns the box as a rect, or the degenerate rect when malformed
func (b Box) Rect() geometry.Rect {
	r, ok := geometry.FromArray(b)
	if !ok {
		return geometry.Rect{}
	}
	return r
}
