package interaction

import (
	"math"

	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
)

// minDisplayExtent keeps degenerate detections visible and grabbable
const minDisplayExtent = geometry.MinExtent

// OverlayItem describes how one field is drawn over the page image
type OverlayItem struct {
	FieldID          string            `json:"field_id"`
	Label            string            `json:"label"`
	Value            string            `json:"value,omitempty"`
	Box              geometry.PixelBox `json:"box"`
	Active           bool              `json:"active"`
	ShowLabel        bool              `json:"show_label"`
	ShowValueControl bool              `json:"show_value_control"`
	ShowResizeHandle bool              `json:"show_resize_handle"`
	ShowDelete       bool              `json:"show_delete"`
}

// Overlay returns the overlay items for the controller's page in store order
func (c *Controller) Overlay() []OverlayItem {
	w, h := c.container.Size()
	pageFields := c.store.FieldsForPage(c.page)
	items := make([]OverlayItem, 0, len(pageFields))

	for _, f := range pageFields {
		box := geometry.ToPixelBox(f.Rect, w, h)
		box.Width = math.Max(box.Width, minDisplayExtent/geometry.Scale*w)
		box.Height = math.Max(box.Height, minDisplayExtent/geometry.Scale*h)

		active := f.ID == c.selected
		item := OverlayItem{
			FieldID:          f.ID,
			Label:            f.Label,
			Box:              box,
			Active:           active,
			ShowLabel:        active,
			ShowResizeHandle: true,
		}
		switch c.context {
		case ContextSetup:
			item.ShowDelete = true
		case ContextReview:
			item.ShowValueControl = true
			item.Value = f.Value
		}
		items = append(items, item)
	}
	return items
}
