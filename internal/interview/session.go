// Package interview walks a user through the fields of a store one question
// at a time and records their answers. It never changes field geometry.
package interview

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
)

var (
	// ErrNoFields is returned when the store is empty
	ErrNoFields = errors.New("no fields to answer")

	// ErrNotCheckbox is returned when a checkbox operation targets a text field
	ErrNotCheckbox = errors.New("current field is not a checkbox")
)

// Session is a cursor over the fields of one store
type Session struct {
	store *fields.Store
	index int
}

// New starts a session at the first field
func New(store *fields.Store) *Session {
	return &Session{store: store}
}

// Len returns the number of questions
func (s *Session) Len() int {
	return s.store.Len()
}

// Index returns the 0-based position of the current question
func (s *Session) Index() int {
	return s.index
}

// Current returns the field under the cursor
func (s *Session) Current() (fields.Field, bool) {
	all := s.store.Fields()
	if len(all) == 0 {
		return fields.Field{}, false
	}
	if s.index >= len(all) {
		s.index = len(all) - 1
	}
	return all[s.index], true
}

// Next advances to the following question. It returns true when the cursor
// was already on the last question, meaning the interview is complete.
// Required fields do not block navigation.
func (s *Session) Next() bool {
	if s.index >= s.store.Len()-1 {
		return true
	}
	s.index++
	return false
}

// Prev moves back one question and reports whether it moved
func (s *Session) Prev() bool {
	if s.index == 0 {
		return false
	}
	s.index--
	return true
}

// Goto jumps to question i
func (s *Session) Goto(i int) error {
	if i < 0 || i >= s.store.Len() {
		return fmt.Errorf("question %d out of range [0, %d)", i, s.store.Len())
	}
	s.index = i
	return nil
}

// Prefix returns the human-facing question number, e.g. "Question 3A"
func (s *Session) Prefix() string {
	return fields.QuestionPrefix(s.store.Fields(), s.index)
}

// Prompt returns the sentence read out for the current question
func (s *Session) Prompt() string {
	f, ok := s.Current()
	if !ok {
		return ""
	}
	prompt := fmt.Sprintf("%s. %s.", s.Prefix(), f.Label)
	if f.Required {
		prompt += " Required."
	}
	return prompt
}

// AppendTranscript adds a recognized speech chunk to the current answer. A
// single space is inserted unless the answer is empty or either side already
// has whitespace at the join. Checkbox answers ignore speech.
func (s *Session) AppendTranscript(chunk string) error {
	f, ok := s.Current()
	if !ok {
		return ErrNoFields
	}
	if f.IsCheckbox() || strings.TrimSpace(chunk) == "" {
		return nil
	}
	return s.store.UpdateValue(f.ID, JoinTranscript(f.Value, chunk))
}

// JoinTranscript appends chunk to value using the speech spacing rule
func JoinTranscript(value, chunk string) string {
	if value == "" || endsWithSpace(value) || startsWithSpace(chunk) {
		return value + chunk
	}
	return value + " " + chunk
}

// SetValue replaces the current answer
func (s *Session) SetValue(value string) error {
	f, ok := s.Current()
	if !ok {
		return ErrNoFields
	}
	if f.IsCheckbox() && value != fields.CheckboxChecked && value != fields.CheckboxUnchecked {
		return fmt.Errorf("checkbox value must be %q or %q", fields.CheckboxChecked, fields.CheckboxUnchecked)
	}
	return s.store.UpdateValue(f.ID, value)
}

// ToggleCheckbox flips the current checkbox between "true" and "false"
func (s *Session) ToggleCheckbox() error {
	f, ok := s.Current()
	if !ok {
		return ErrNoFields
	}
	if !f.IsCheckbox() {
		return ErrNotCheckbox
	}
	next := fields.CheckboxChecked
	if f.Checked() {
		next = fields.CheckboxUnchecked
	}
	return s.store.UpdateValue(f.ID, next)
}

// Clear resets the current answer
func (s *Session) Clear() error {
	f, ok := s.Current()
	if !ok {
		return ErrNoFields
	}
	value := ""
	if f.IsCheckbox() {
		value = fields.CheckboxUnchecked
	}
	return s.store.UpdateValue(f.ID, value)
}

// Progress describes how far the interview has come
type Progress struct {
	Current         int      `json:"current"` // 1-based
	Total           int      `json:"total"`
	Answered        int      `json:"answered"`
	Percent         float64  `json:"percent"`
	MissingRequired []string `json:"missing_required,omitempty"`
}

// Progress reports the cursor position and answer counts. A checkbox counts
// as answered once ticked.
func (s *Session) Progress() Progress {
	all := s.store.Fields()
	p := Progress{Total: len(all)}
	if len(all) == 0 {
		return p
	}

	p.Current = s.index + 1
	p.Percent = float64(p.Current) / float64(p.Total) * 100
	for _, f := range all {
		answered := strings.TrimSpace(f.Value) != "" && (!f.IsCheckbox() || f.Checked())
		if answered {
			p.Answered++
		} else if f.Required {
			p.MissingRequired = append(p.MissingRequired, f.ID)
		}
	}
	return p
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
