// Package interaction translates raw pointer events on a rendered page into
// geometry mutations of the field store.
package interaction

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
)

// State is the active gesture classification
type State int

const (
	StateIdle State = iota
	StateMoving
	StateResizing
	StateDrawing
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateResizing:
		return "resizing"
	case StateDrawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// Target identifies what a pointer-down landed on
type Target int

const (
	TargetBackground Target = iota
	TargetBody
	TargetValueControl
	TargetResizeHandle
)

// Context selects which affordances a field overlay offers
type Context int

const (
	// ContextSetup shows move, resize and delete affordances only
	ContextSetup Context = iota
	// ContextReview hosts the value-entry control inside each field
	ContextReview
)

// PointerEvent is a pointer position in container pixels (top-left origin)
type PointerEvent struct {
	PointerID int
	X         float64
	Y         float64
}

// Container reports the current pixel size of the rendered page
type Container interface {
	Size() (width, height float64)
}

// PointerCapture is the platform's pointer capture facility
type PointerCapture interface {
	Capture(pointerID int) error
	Release(pointerID int) error
}

// LabelPrompter asks the user to name a newly drawn field. ok is false when
// the user declined.
type LabelPrompter interface {
	PromptLabel(rect geometry.Rect, pageIndex int) (label string, ok bool)
}

// gesture is the snapshot taken when a gesture starts. Every later pointer
// position is interpreted relative to it.
type gesture struct {
	fieldID   string
	pointerID int
	startX    float64
	startY    float64
	startRect geometry.Rect
	current   geometry.Rect
}

// Controller is the single-active-interaction state machine for one page view
type Controller struct {
	store     *fields.Store
	container Container
	capture   PointerCapture
	prompter  LabelPrompter
	context   Context
	log       logrus.FieldLogger

	page      int
	state     State
	drawArmed bool
	selected  string
	active    gesture
}

// Option configures a Controller
type Option func(*Controller)

// WithContext sets the rendering context
func WithContext(ctx Context) Option {
	return func(c *Controller) { c.context = ctx }
}

// WithPointerCapture installs the platform pointer capture
func WithPointerCapture(pc PointerCapture) Option {
	return func(c *Controller) { c.capture = pc }
}

// WithLabelPrompter installs the label prompt used after a draw gesture
func WithLabelPrompter(p LabelPrompter) Option {
	return func(c *Controller) { c.prompter = p }
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// NewController creates an idle controller for page 0
func NewController(store *fields.Store, container Container, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		container: container,
		capture:   noCapture{},
		log:       logrus.StandardLogger(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current gesture state
func (c *Controller) State() State {
	return c.state
}

// Selected returns the id of the selected field, or ""
func (c *Controller) Selected() string {
	return c.selected
}

// Page returns the page the controller edits
func (c *Controller) Page() int {
	return c.page
}

// SetPage switches to another page. It fails while a gesture is active.
func (c *Controller) SetPage(pageIndex int) error {
	if c.state != StateIdle {
		return fmt.Errorf("cannot change page while %s", c.state)
	}
	c.page = pageIndex
	c.selected = ""
	return nil
}

// ArmDraw makes the next background pointer-down start a new field
func (c *Controller) ArmDraw() {
	c.drawArmed = true
}

// DisarmDraw cancels draw mode
func (c *Controller) DisarmDraw() {
	c.drawArmed = false
}

// DrawArmed reports whether draw mode is armed
func (c *Controller) DrawArmed() bool {
	return c.drawArmed
}

// PointerDown starts a gesture. fieldID names the field under the pointer and
// is ignored for TargetBackground. It returns false when the event did not
// start a gesture.
func (c *Controller) PointerDown(ev PointerEvent, target Target, fieldID string) bool {
	if c.state != StateIdle {
		return false
	}

	switch target {
	case TargetBackground:
		c.selected = ""
		if !c.drawArmed {
			return false
		}
		y, x := c.toNormalized(ev)
		c.begin(StateDrawing, ev, "", geometry.NewRect(y, x, y, x))
		return true

	case TargetValueControl:
		if c.context == ContextReview {
			// The value control keeps the pointer for text entry.
			if _, ok := c.store.Get(fieldID); ok {
				c.selected = fieldID
			}
			return false
		}
		return c.beginOnField(StateMoving, ev, fieldID)

	case TargetBody:
		return c.beginOnField(StateMoving, ev, fieldID)

	case TargetResizeHandle:
		return c.beginOnField(StateResizing, ev, fieldID)
	}

	return false
}

// PointerMove advances the active gesture. Events from a pointer other than
// the one that started the gesture are ignored.
func (c *Controller) PointerMove(ev PointerEvent) {
	if c.state == StateIdle || ev.PointerID != c.active.pointerID {
		return
	}

	switch c.state {
	case StateMoving, StateResizing:
		w, h := c.container.Size()
		mode := geometry.ModeMove
		if c.state == StateResizing {
			mode = geometry.ModeResizeTopRight
		}
		rect := geometry.FromPointerDelta(c.active.startRect,
			ev.X-c.active.startX, ev.Y-c.active.startY, w, h, mode)
		if err := c.store.UpdateRect(c.active.fieldID, rect); err != nil {
			c.log.WithField("field_id", c.active.fieldID).WithError(err).Debug("Field vanished during gesture")
			c.reset(ev.PointerID)
			return
		}
		c.active.current = rect

	case StateDrawing:
		y, x := c.toNormalized(ev)
		start := c.active.startRect
		c.active.current = geometry.FromPoints(start.YMin, start.XMin, y, x)
	}
}

// PointerUp ends the active gesture. For a draw gesture it returns the new
// field and true when one was created.
func (c *Controller) PointerUp(ev PointerEvent) (fields.Field, bool) {
	if c.state == StateIdle || ev.PointerID != c.active.pointerID {
		return fields.Field{}, false
	}

	state := c.state
	drawn := c.active.current
	c.reset(ev.PointerID)

	if state != StateDrawing {
		return fields.Field{}, false
	}
	return c.commitDraw(drawn)
}

// Cancel aborts the active gesture, restoring the rect captured at its start
func (c *Controller) Cancel() {
	if c.state == StateIdle {
		return
	}
	if c.state == StateMoving || c.state == StateResizing {
		if err := c.store.UpdateRect(c.active.fieldID, c.active.startRect); err != nil {
			c.log.WithField("field_id", c.active.fieldID).WithError(err).Debug("Could not restore rect on cancel")
		}
	}
	c.reset(c.active.pointerID)
}

// Delete removes a field through the controller so that selection and any
// gesture on it are dropped too.
func (c *Controller) Delete(fieldID string) {
	if c.state != StateIdle && c.active.fieldID == fieldID {
		c.reset(c.active.pointerID)
	}
	if c.selected == fieldID {
		c.selected = ""
	}
	c.store.Delete(fieldID)
}

// DraftRect returns the rect of an in-progress draw gesture
func (c *Controller) DraftRect() (geometry.Rect, bool) {
	if c.state != StateDrawing {
		return geometry.Rect{}, false
	}
	return c.active.current, true
}

func (c *Controller) beginOnField(state State, ev PointerEvent, fieldID string) bool {
	field, ok := c.store.Get(fieldID)
	if !ok {
		return false
	}
	c.begin(state, ev, fieldID, field.Rect)
	c.selected = fieldID
	return true
}

func (c *Controller) begin(state State, ev PointerEvent, fieldID string, rect geometry.Rect) {
	if err := c.capture.Capture(ev.PointerID); err != nil {
		c.log.WithField("pointer_id", ev.PointerID).WithError(err).Debug("Pointer capture failed")
	}
	c.state = state
	c.active = gesture{
		fieldID:   fieldID,
		pointerID: ev.PointerID,
		startX:    ev.X,
		startY:    ev.Y,
		startRect: rect,
		current:   rect,
	}
}

// reset returns to idle. A failed capture release is harmless: the platform
// may already have released the pointer.
func (c *Controller) reset(pointerID int) {
	if err := c.capture.Release(pointerID); err != nil {
		c.log.WithField("pointer_id", pointerID).WithError(err).Debug("Pointer capture already released")
	}
	c.state = StateIdle
	c.active = gesture{}
}

func (c *Controller) commitDraw(rect geometry.Rect) (fields.Field, bool) {
	rect = rect.Normalize().Clamp()
	if rect.Height() <= geometry.MinCreateExtent || rect.Width() <= geometry.MinCreateExtent {
		return fields.Field{}, false
	}
	if c.prompter == nil {
		return fields.Field{}, false
	}

	label, ok := c.prompter.PromptLabel(rect, c.page)
	if !ok || label == "" {
		return fields.Field{}, false
	}

	field, err := c.store.AddManual(rect, c.page, label)
	if err != nil {
		c.log.WithError(err).Debug("Drawn field rejected")
		return fields.Field{}, false
	}
	c.drawArmed = false
	c.selected = field.ID
	return field, true
}

func (c *Controller) toNormalized(ev PointerEvent) (y, x float64) {
	w, h := c.container.Size()
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	r := geometry.NewRect(ev.Y/h*geometry.Scale, ev.X/w*geometry.Scale, 0, 0).Clamp()
	return r.YMin, r.XMin
}

type noCapture struct{}

func (noCapture) Capture(int) error { return nil }
func (noCapture) Release(int) error { return nil }
