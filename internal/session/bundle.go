// Package session persists in-progress form sessions so that a user can
// leave and resume editing later.
package session

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
)

// Step is the workflow stage a session was saved in
type Step string

const (
	StepUpload    Step = "upload"
	StepAnalyzing Step = "analyzing"
	StepSetup     Step = "setup"
	StepInterview Step = "interview"
	StepReview    Step = "review"
	StepExporting Step = "exporting"
)

// Valid reports whether s is a known step
func (s Step) Valid() bool {
	switch s {
	case StepUpload, StepAnalyzing, StepSetup, StepInterview, StepReview, StepExporting:
		return true
	default:
		return false
	}
}

// Bundle is the persisted state of one form session. Images are page
// renders as data URLs; Source is the PDF the fields refer to.
type Bundle struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Fields    []fields.Field `json:"fields"`
	Images    []string       `json:"images"`
	Step      Step           `json:"step"`
	Source    []byte         `json:"source,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NewBundle snapshots a store
func NewBundle(id, name string, store *fields.Store, images []string, step Step) *Bundle {
	return &Bundle{
		ID:     id,
		Name:   name,
		Fields: store.Fields(),
		Images: append([]string(nil), images...),
		Step:   step,
	}
}

// Validate checks the bundle before it is saved or after it is loaded
func (b *Bundle) Validate() error {
	if err := ValidateID(b.ID); err != nil {
		return err
	}
	if b.Step != "" && !b.Step.Valid() {
		return fmt.Errorf("unknown step %q", b.Step)
	}
	return nil
}

// Restore rebuilds a field store from the bundle. The new store never issues
// an id already present in the bundle.
func (b *Bundle) Restore(log logrus.FieldLogger) (*fields.Store, error) {
	store := fields.NewStore(log)
	if err := store.Restore(b.Fields); err != nil {
		return nil, fmt.Errorf("restore fields of session %s: %w", b.ID, err)
	}
	return store, nil
}

// Summary is the listing entry of a saved session
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Step      Step      `json:"step"`
	Fields    int       `json:"fields"`
	Answered  int       `json:"answered"`
	Pages     int       `json:"pages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summarize returns the listing entry for b
func (b *Bundle) Summarize() Summary {
	s := Summary{
		ID:        b.ID,
		Name:      b.Name,
		Step:      b.Step,
		Fields:    len(b.Fields),
		Pages:     len(b.Images),
		UpdatedAt: b.UpdatedAt,
	}
	for _, f := range b.Fields {
		if f.Value != "" && (!f.IsCheckbox() || f.Checked()) {
			s.Answered++
		}
	}
	return s
}
