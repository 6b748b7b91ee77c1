// Package fields holds the authoritative, ordered collection of field regions
// for one document editing session.
package fields

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
)

var (
	// ErrFieldNotFound is returned by mutations addressed to an unknown id
	ErrFieldNotFound = errors.New("field not found")

	// ErrFieldTooSmall is returned by AddManual for rects under the creation threshold
	ErrFieldTooSmall = errors.New("field is too small")

	// ErrEmptyLabel is returned by AddManual when no label was supplied
	ErrEmptyLabel = errors.New("field label cannot be empty")
)

// signatureTerms mark items that need a wet signature rather than overlaid text
var signatureTerms = []string{"signature", "sign here"}

// AddResult reports what a detection batch contributed to the store
type AddResult struct {
	Added    []Field `json:"added"`
	Excluded int     `json:"excluded"` // signature items
	Dropped  int     `json:"dropped"`  // items without a usable rect
}

// Store is the ordered field collection of one session. Insertion order is
// iteration order. A Store is owned by a single session and is not safe for
// concurrent use.
type Store struct {
	fields []Field
	index  map[string]int
	issued map[string]struct{}
	seq    int
	log    logrus.FieldLogger
}

// NewStore creates an empty store
func NewStore(log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		fields: make([]Field, 0),
		index:  make(map[string]int),
		issued: make(map[string]struct{}),
		log:    log,
	}
}

// IsSignatureLabel reports whether a label names a signature line
func IsSignatureLabel(label string) bool {
	lower := strings.ToLower(label)
	for _, term := range signatureTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// AddDetected appends the fields of one page's detection batch.
//
// Items without a section inherit the last section seen earlier in the same
// batch. Signature items are excluded. Missing or malformed boxes become the
// degenerate [0,0,0,0] rect; boxes with non-finite numbers are dropped.
func (s *Store) AddDetected(batch []Detection, pageIndex int) AddResult {
	result := AddResult{Added: make([]Field, 0, len(batch))}
	currentSection := ""

	for i, item := range batch {
		if item.Section != "" {
			currentSection = item.Section
		}

		label := strings.TrimSpace(item.Label)
		if label == "" {
			label = DefaultLabel
		}

		if IsSignatureLabel(label) {
			result.Excluded++
			continue
		}

		rect := item.Box.Rect()
		if err := rect.Validate(); err != nil {
			s.log.WithFields(logrus.Fields{
				"page":  pageIndex,
				"item":  i,
				"label": label,
			}).WithError(err).Warn("Dropping detected field without a usable rect")
			result.Dropped++
			continue
		}

		kind := item.Kind
		if kind != KindCheckbox {
			kind = KindText
		}
		value := ""
		if kind == KindCheckbox {
			value = CheckboxUnchecked
		}

		field := Field{
			ID:           s.nextID(fmt.Sprintf("field-%d", pageIndex)),
			Label:        label,
			Value:        value,
			Rect:         rect,
			PageIndex:    pageIndex,
			Required:     item.Required != nil && *item.Required,
			Kind:         kind,
			GroupLabel:   item.GroupLabel,
			Section:      currentSection,
			SemanticType: item.SemanticType,
		}
		s.append(field)
		result.Added = append(result.Added, field)
	}

	return result
}

// AddManual creates an empty text field drawn by the user. The rect is
// normalized first; it is rejected when its width or height is below
// geometry.MinCreateExtent.
func (s *Store) AddManual(rect geometry.Rect, pageIndex int, label string) (Field, error) {
	if err := rect.Validate(); err != nil {
		return Field{}, err
	}
	rect = rect.Normalize()
	if rect.Width() < geometry.MinCreateExtent || rect.Height() < geometry.MinCreateExtent {
		return Field{}, fmt.Errorf("%w: %.1f x %.1f units", ErrFieldTooSmall, rect.Width(), rect.Height())
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return Field{}, ErrEmptyLabel
	}

	field := Field{
		ID:        s.nextID("manual"),
		Label:     label,
		Rect:      rect,
		PageIndex: pageIndex,
		Kind:      KindText,
	}
	s.append(field)
	return field, nil
}

// UpdateRect replaces a field's rect without re-validating its size
func (s *Store) UpdateRect(id string, rect geometry.Rect) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	s.fields[i].Rect = rect
	return nil
}

// UpdateValue replaces a field's value
func (s *Store) UpdateValue(id, value string) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	s.fields[i].Value = value
	return nil
}

// Delete removes a field. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	s.fields = append(s.fields[:i], s.fields[i+1:]...)
	s.reindex()
}

// Get returns a copy of the field with the given id
func (s *Store) Get(id string) (Field, bool) {
	i, ok := s.index[id]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// FieldsForPage returns the fields of one page in insertion order
func (s *Store) FieldsForPage(pageIndex int) []Field {
	out := make([]Field, 0)
	for _, f := range s.fields {
		if f.PageIndex == pageIndex {
			out = append(out, f)
		}
	}
	return out
}

// Fields returns a copy of all fields in insertion order
func (s *Store) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields
func (s *Store) Len() int {
	return len(s.fields)
}

// Restore replaces the store contents with previously saved fields. Restored
// ids are reserved so that later additions never collide with them.
func (s *Store) Restore(saved []Field) error {
	seen := make(map[string]struct{}, len(saved))
	for _, f := range saved {
		if f.ID == "" {
			return fmt.Errorf("restored field %q has no id", f.Label)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	s.fields = make([]Field, len(saved))
	copy(s.fields, saved)
	for id := range seen {
		s.issued[id] = struct{}{}
	}
	s.reindex()
	return nil
}

func (s *Store) append(f Field) {
	s.index[f.ID] = len(s.fields)
	s.fields = append(s.fields, f)
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.fields))
	for i, f := range s.fields {
		s.index[f.ID] = i
	}
}

// nextID issues an id never handed out or restored before in this store
func (s *Store) nextID(prefix string) string {
	for {
		s.seq++
		id := fmt.Sprintf("%s-%d", prefix, s.seq)
		if _, used := s.issued[id]; !used {
			s.issued[id] = struct{}{}
			return id
		}
	}
}
