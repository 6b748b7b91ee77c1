package formfill

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/interaction"
)

// pageView is a rendered page of fixed pixel size
type pageView struct {
	width, height float64
}

func (v pageView) Size() (float64, float64) {
	return v.width, v.height
}

// EditField moves, resizes, adds or deletes one field of a saved session
func (s *Service) EditField(ctx context.Context, req EditFieldRequest) (*EditFieldResult, error) {
	defer s.sessions.Lock(req.SessionID)()
	b, err := s.sessions.Load(req.SessionID)
	if err != nil {
		return nil, err
	}
	store, err := b.Restore(s.log)
	if err != nil {
		return nil, err
	}

	result := &EditFieldResult{Op: req.Op}
	switch req.Op {
	case EditMove, EditResize:
		field, err := s.drag(store, req)
		if err != nil {
			return nil, err
		}
		result.Field = &field

	case EditAdd:
		if req.PageIndex < 0 {
			return nil, ferrors.New(ferrors.ErrorTypeInvalidInput, fmt.Sprintf("invalid page index %d", req.PageIndex))
		}
		field, err := store.AddManual(req.Rect, req.PageIndex, req.Label)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.ErrorTypeInvalidInput, "invalid field", err).WithPage(req.PageIndex)
		}
		result.Field = &field

	case EditDelete:
		if _, ok := store.Get(req.FieldID); !ok {
			return nil, fmt.Errorf("%w: %s", fields.ErrFieldNotFound, req.FieldID)
		}
		store.Delete(req.FieldID)

	default:
		return nil, ferrors.New(ferrors.ErrorTypeInvalidInput,
			fmt.Sprintf("unknown edit %q: use move, resize, add or delete", req.Op))
	}

	b.Fields = store.Fields()
	if err := s.sessions.Save(b); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	entry := s.log.WithFields(logrus.Fields{"session": b.ID, "op": req.Op})
	if result.Field != nil {
		entry = entry.WithField("field_id", result.Field.ID)
	}
	entry.Debug("Field edited")

	result.Session = sessionResult(b, store)
	return result, nil
}

// drag replays a move or resize as one pointer gesture on the field
func (s *Service) drag(store *fields.Store, req EditFieldRequest) (fields.Field, error) {
	if req.ContainerWidth <= 0 || req.ContainerHeight <= 0 {
		return fields.Field{}, ferrors.New(ferrors.ErrorTypeInvalidInput, "container_width and container_height must be positive")
	}
	if math.IsNaN(req.DX) || math.IsInf(req.DX, 0) || math.IsNaN(req.DY) || math.IsInf(req.DY, 0) {
		return fields.Field{}, ferrors.New(ferrors.ErrorTypeInvalidInput, "dx and dy must be finite")
	}

	target := interaction.TargetBody
	if req.Op == EditResize {
		target = interaction.TargetResizeHandle
	}

	ctrl := interaction.NewController(store, pageView{req.ContainerWidth, req.ContainerHeight},
		interaction.WithLogger(s.log))
	if !ctrl.PointerDown(interaction.PointerEvent{}, target, req.FieldID) {
		return fields.Field{}, fmt.Errorf("%w: %s", fields.ErrFieldNotFound, req.FieldID)
	}
	end := interaction.PointerEvent{X: req.DX, Y: req.DY}
	ctrl.PointerMove(end)
	ctrl.PointerUp(end)

	field, _ := store.Get(req.FieldID)
	return field, nil
}
