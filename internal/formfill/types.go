package formfill

import (
	"time"

	"github.com/a3tai/mcp-pdf-formfill/internal/cache"
	"github.com/a3tai/mcp-pdf-formfill/internal/compositor"
	"github.com/a3tai/mcp-pdf-formfill/internal/detect"
	"github.com/a3tai/mcp-pdf-formfill/internal/document"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/interview"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
	"github.com/a3tai/mcp-pdf-formfill/internal/session"
)

// FileInfo represents a form file found in the configured directory
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// Request Types

// InspectRequest represents a request to inspect a form
type InspectRequest struct {
	Path string `json:"path"`
}

// RasterizeRequest represents a request to render a form's pages
type RasterizeRequest struct {
	Path string `json:"path"`
	// IncludeImages returns the page images as data URLs
	IncludeImages bool `json:"include_images"`
}

// DetectRequest represents a request to detect a form's fields
type DetectRequest struct {
	Path     string `json:"path"`
	Detector string `json:"detector,omitempty"` // defaults to the configured detector
	// SessionID saves the detected fields as a new session when set
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// FillRequest represents a request to write field values into a form. The
// source and fields come from the session when SessionID is set; explicit
// Path and Fields take precedence.
type FillRequest struct {
	Path       string         `json:"path,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Fields     []fields.Field `json:"fields,omitempty"`
	OutputPath string         `json:"output_path,omitempty"`
}

// SaveSessionRequest represents a request to persist a session
type SaveSessionRequest struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Path   string         `json:"path,omitempty"`
	Fields []fields.Field `json:"fields"`
	Step   session.Step   `json:"step,omitempty"`
	// IncludeImages stores page renders with the session
	IncludeImages bool `json:"include_images"`
}

// LoadSessionRequest represents a request to resume a session
type LoadSessionRequest struct {
	ID string `json:"id"`
}

// DeleteSessionRequest represents a request to remove a session
type DeleteSessionRequest struct {
	ID string `json:"id"`
}

// AnswerRequest sets the value of one field of a saved session. Index is the
// 0-based position of the field; FieldID takes precedence when set.
type AnswerRequest struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id,omitempty"`
	Index     int    `json:"index"`
	Value     string `json:"value"`
	// Append joins Value to the current value the way dictated speech is joined
	Append bool `json:"append"`
	// Format tidies the value by the field's semantic type (ssn, phone, zip, email)
	Format bool `json:"format"`
}

// EditOp names a change to the field layout of a saved session
type EditOp string

const (
	EditMove   EditOp = "move"
	EditResize EditOp = "resize"
	EditAdd    EditOp = "add"
	EditDelete EditOp = "delete"
)

// EditFieldRequest changes one field of a saved session. Move and resize take
// a pointer displacement in pixels on a page shown at ContainerWidth x
// ContainerHeight; resize drags the top-right corner. Add takes a normalized
// rect, a page and a label.
type EditFieldRequest struct {
	SessionID       string        `json:"session_id"`
	Op              EditOp        `json:"op"`
	FieldID         string        `json:"field_id,omitempty"`
	DX              float64       `json:"dx"`
	DY              float64       `json:"dy"`
	ContainerWidth  float64       `json:"container_width"`
	ContainerHeight float64       `json:"container_height"`
	Rect            geometry.Rect `json:"rect"`
	PageIndex       int           `json:"page_index"`
	Label           string        `json:"label,omitempty"`
}

// EditFieldResult is the session after an edit. Field is the moved, resized
// or added field and is nil after a delete.
type EditFieldResult struct {
	Op      EditOp         `json:"op"`
	Field   *fields.Field  `json:"field,omitempty"`
	Session *SessionResult `json:"session"`
}

// SearchRequest represents a request to find forms in the configured directory
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// ServerInfoRequest represents a request for server information
type ServerInfoRequest struct{}

// Response Types

// InspectResult represents the result of inspecting a form
type InspectResult struct {
	Path           string            `json:"path"`
	Source         raster.SourceKind `json:"source"`
	Info           *document.Info    `json:"info"`
	Suggested      detect.Kind       `json:"suggested_detector"`
	AcroFormFields int               `json:"acroform_fields"`
	Hint           string            `json:"hint,omitempty"`
}

// PageImage is one rendered page
type PageImage struct {
	Index       int     `json:"index"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	PointWidth  float64 `json:"point_width"`
	PointHeight float64 `json:"point_height"`
	DataURL     string  `json:"data_url,omitempty"`
}

// RasterizeResult represents the result of rendering a form
type RasterizeResult struct {
	Path       string               `json:"path"`
	Pages      []PageImage          `json:"pages"`
	TotalPages int                  `json:"total_pages"`
	Truncated  int                  `json:"truncated"`
	Failed     []raster.PageFailure `json:"failed,omitempty"`
}

// DetectResult represents the result of field detection
type DetectResult struct {
	Path      string         `json:"path"`
	Fields    []fields.Field `json:"fields"`
	Report    *detect.Report `json:"report"`
	SessionID string         `json:"session_id,omitempty"`
}

// FillResult represents the result of writing values into a form
type FillResult struct {
	OutputPath string             `json:"output_path"`
	Size       int64              `json:"size"`
	Report     *compositor.Report `json:"report"`
	Summary    string             `json:"summary"`
}

// SessionResult describes a loaded or saved session
type SessionResult struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Step      session.Step       `json:"step"`
	Fields    []fields.Field     `json:"fields"`
	Pages     int                `json:"pages"`
	HasSource bool               `json:"has_source"`
	Progress  interview.Progress `json:"progress"`
	Next      string             `json:"next_question,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ListSessionsResult lists saved sessions
type ListSessionsResult struct {
	Sessions   []session.Summary `json:"sessions"`
	TotalCount int               `json:"total_count"`
	Directory  string            `json:"directory"`
}

// SearchResult lists forms found in the configured directory
type SearchResult struct {
	Files      []FileInfo `json:"files"`
	TotalCount int        `json:"total_count"`
	Directory  string     `json:"directory"`
	Query      string     `json:"query,omitempty"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName        string       `json:"server_name"`
	Version           string       `json:"version"`
	DefaultDirectory  string       `json:"default_directory"`
	SessionDirectory  string       `json:"session_directory"`
	MaxFileSize       int64        `json:"max_file_size"`
	Detector          string       `json:"detector"`
	AvailableTools    []ToolInfo   `json:"available_tools"`
	DirectoryContents []FileInfo   `json:"directory_contents"`
	UsageGuidance     string       `json:"usage_guidance"`
	SupportedFormats  []string     `json:"supported_formats"`
	RenderCache       *cache.Stats `json:"render_cache,omitempty"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
