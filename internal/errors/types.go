package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// FormError is a typed failure raised by the form-filling engine. Message is
// safe to show to an end user; Cause carries the underlying library error.
type FormError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	FieldID   string    `json:"field_id,omitempty"`
	PageIndex int       `json:"page_index"`
	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// ErrorType represents the categories of engine failures
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeDocumentParse
	ErrorTypeDetection
	ErrorTypeGeometryValidation
	ErrorTypePDFGeneration
	ErrorTypeInvalidInput
	ErrorTypeTimeout
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Sentinels usable with errors.Is against any *FormError of the same type.
var (
	ErrDocumentParse      = &FormError{Type: ErrorTypeDocumentParse}
	ErrDetection          = &FormError{Type: ErrorTypeDetection}
	ErrGeometryValidation = &FormError{Type: ErrorTypeGeometryValidation}
	ErrPDFGeneration      = &FormError{Type: ErrorTypePDFGeneration}
	ErrInvalidInput       = &FormError{Type: ErrorTypeInvalidInput}
)

// Error implements the error interface
func (e *FormError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Type.String()
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type.String(), msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type.String(), msg)
}

// Unwrap exposes the underlying cause
func (e *FormError) Unwrap() error {
	return e.Cause
}

// Is matches any FormError with the same type
func (e *FormError) Is(target error) bool {
	t, ok := target.(*FormError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeDocumentParse:
		return "DOCUMENT_PARSE"
	case ErrorTypeDetection:
		return "DETECTION"
	case ErrorTypeGeometryValidation:
		return "GEOMETRY_VALIDATION"
	case ErrorTypePDFGeneration:
		return "PDF_GENERATION"
	case ErrorTypeInvalidInput:
		return "INVALID_INPUT"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeGeometryValidation:
		return SeverityWarning
	case ErrorTypeDetection, ErrorTypeTimeout:
		return SeverityError
	case ErrorTypeDocumentParse, ErrorTypePDFGeneration:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether the engine continues after this kind of error.
// Per-field geometry problems and per-page detection failures are recovered
// locally; whole-document failures are not.
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypeGeometryValidation, ErrorTypeDetection, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// New creates a FormError with a user-facing message
func New(errorType ErrorType, message string) *FormError {
	return &FormError{
		Type:      errorType,
		Message:   message,
		PageIndex: -1,
		Timestamp: time.Now(),
	}
}

// Wrap creates a FormError around an underlying cause
func Wrap(errorType ErrorType, message string, cause error) *FormError {
	e := New(errorType, message)
	e.Cause = cause
	return e
}

// DocumentParse reports a source that cannot be rasterized or read
func DocumentParse(cause error) *FormError {
	return Wrap(ErrorTypeDocumentParse,
		"could not read this document; try re-exporting it as a PDF and upload it again", cause)
}

// PDFGeneration reports a fatal compositing failure
func PDFGeneration(cause error) *FormError {
	return Wrap(ErrorTypePDFGeneration,
		"failed to generate the filled PDF", cause)
}

// GeometryValidation reports a malformed rect
func GeometryValidation(context string) *FormError {
	e := New(ErrorTypeGeometryValidation, "invalid field geometry")
	e.Context = context
	return e
}

// WithContext adds context to an existing FormError
func (e *FormError) WithContext(context string) *FormError {
	e.Context = context
	return e
}

// WithField adds the field id to an existing FormError
func (e *FormError) WithField(id string) *FormError {
	e.FieldID = id
	return e
}

// WithPage adds the 0-based page index to an existing FormError
func (e *FormError) WithPage(pageIndex int) *FormError {
	e.PageIndex = pageIndex
	return e
}

// GetSeverity returns the severity of this specific error
func (e *FormError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// Recoverable reports whether processing may continue after e
func (e *FormError) Recoverable() bool {
	return e.Type.IsRecoverable()
}

// IsType reports whether err is, or wraps, a FormError of the given type
func IsType(err error, errorType ErrorType) bool {
	var fe *FormError
	if !stderrors.As(err, &fe) {
		return false
	}
	return fe.Type == errorType
}

// UserMessage returns the user-facing message of err when it is a FormError,
// or err.Error() otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FormError
	if stderrors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
