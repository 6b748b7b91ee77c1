package formfill

import (
	"context"
	"fmt"
	"time"

	"github.com/a3tai/mcp-pdf-formfill/internal/descriptions"
)

const (
	directoryScanLimit   = 100
	directoryScanTimeout = 5 * time.Second
)

// ServerInfo returns server information and usage guidance. The directory
// listing is best effort: a slow or failing scan yields an empty list.
func (s *Service) ServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	scanCtx, cancel := context.WithTimeout(ctx, directoryScanTimeout)
	defer cancel()

	contents, err := s.search.Find(scanCtx, s.guard.Root(), "", directoryScanLimit)
	if err != nil {
		s.log.WithError(err).Debug("Directory scan failed")
		contents = []FileInfo{}
	}

	result := &ServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  s.guard.Root(),
		SessionDirectory:  s.sessions.Dir(),
		MaxFileSize:       s.validator.MaxFileSize(),
		Detector:          string(s.cfg.DetectorKind()),
		AvailableTools:    availableTools(),
		DirectoryContents: contents,
		UsageGuidance:     s.usageGuidance(),
		SupportedFormats:  []string{"pdf", "png", "jpeg", "gif", "webp"},
	}
	if stats, ok := s.rasterizer.CacheStats(); ok {
		result.RenderCache = &stats
	}
	return result, nil
}

func availableTools() []ToolInfo {
	params := map[string]string{
		descriptions.ToolInspect:   "path (required): path of the form, relative to the configured directory or absolute inside it",
		descriptions.ToolRasterize: "path (required), include_images (optional): return pages as data URLs",
		descriptions.ToolDetect: "path (required), detector (optional): none, acroform or vision, " +
			"session_id (optional): save the result as a session, name (optional)",
		descriptions.ToolFill: "path or session_id (one required), fields (optional): JSON array of fields, " +
			"output_path (optional)",
		descriptions.ToolAnswer: "session_id (required), field_id or index, value (required), " +
			"append (optional), format (optional)",
		descriptions.ToolFieldEdit: "session_id (required), op (required): move, resize, add or delete, " +
			"field_id (move, resize, delete), dx, dy, container_width, container_height (move, resize), " +
			"rect, page_index, label (add)",
		descriptions.ToolSessionSave: "id (required), fields (required): JSON array, name, path, step, " +
			"include_images (all optional)",
		descriptions.ToolSessionLoad:   "id (required)",
		descriptions.ToolSessionList:   "none",
		descriptions.ToolSessionDelete: "id (required)",
		descriptions.ToolSearch:        "query (optional), limit (optional)",
		descriptions.ToolServerInfo:    "none",
	}

	names := descriptions.GetAllToolNames()
	tools := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		tools = append(tools, ToolInfo{
			Name:        name,
			Description: firstLine(descriptions.GetToolDescription(name)),
			Usage:       descriptions.GetToolDescription(name),
			Parameters:  params[name],
		})
	}
	return tools
}

func (s *Service) usageGuidance() string {
	return `PDF Form Fill MCP Server Usage Guide:

1. FIND THE FORM:
   - Use 'form_search_directory' or the directory listing below

2. INSPECT IT:
   - Use 'form_inspect'; follow 'suggested_detector'
     * "acroform": the form has interactive fields
     * "vision": scanned or flat form, a vision model locates fields
     * "none": no automatic detection is possible

3. DETECT FIELDS:
   - Use 'form_detect' with a session_id to start a session

4. COLLECT ANSWERS:
   - Use 'form_answer' once per question; read out 'next_question'
   - Checkboxes take "true" or "false"
   - Use 'form_field_edit' to move, resize, add or delete a misplaced field

5. EXPORT:
   - Use 'form_fill' with the session_id; check the report for skipped fields
     and truncated lines

IMPORTANT NOTES:
- Paths are confined to the configured directory
- The server accepts files up to ` + fmt.Sprintf("%d", s.validator.MaxFileSize()/(1024*1024)) + `MB
- Signature lines are never filled; sign the printed form by hand`
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
