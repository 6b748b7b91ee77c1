package errors

import "fmt"

// ErrorCollection gathers recovered per-field and per-page failures so that a
// multi-field or multi-page operation can report what it skipped.
type ErrorCollection struct {
	Errors   []*FormError `json:"errors"`
	Warnings []*FormError `json:"warnings"`
}

// NewErrorCollection creates an empty collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors:   make([]*FormError, 0),
		Warnings: make([]*FormError, 0),
	}
}

// Add files err by severity
func (ec *ErrorCollection) Add(err *FormError) {
	if err == nil {
		return
	}
	severity := err.GetSeverity()
	if severity == SeverityWarning || severity == SeverityInfo {
		ec.Warnings = append(ec.Warnings, err)
	} else {
		ec.Errors = append(ec.Errors, err)
	}
}

// Count returns the total number of errors and warnings
func (ec *ErrorCollection) Count() (errors, warnings int) {
	return len(ec.Errors), len(ec.Warnings)
}

// Len returns errors plus warnings
func (ec *ErrorCollection) Len() int {
	return len(ec.Errors) + len(ec.Warnings)
}

// CountByType returns how many collected entries have the given type
func (ec *ErrorCollection) CountByType(errorType ErrorType) int {
	n := 0
	for _, e := range ec.Errors {
		if e.Type == errorType {
			n++
		}
	}
	for _, e := range ec.Warnings {
		if e.Type == errorType {
			n++
		}
	}
	return n
}

// Summary returns a text summary of all errors and warnings
func (ec *ErrorCollection) Summary() string {
	errorCount, warningCount := ec.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)
}
