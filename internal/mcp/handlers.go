package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/session"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// Handler functions

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Inspect(ctx, formfill.InspectRequest{Path: path})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatInspectResult(result)), nil
}

func (s *Server) handleRasterize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Rasterize(ctx, formfill.RasterizeRequest{
		Path:          path,
		IncludeImages: request.GetBool("include_images", false),
	})
	if err != nil {
		return toolError(err), nil
	}

	content := []mcp.Content{mcp.NewTextContent(formatRasterizeResult(result))}
	for _, page := range result.Pages {
		if page.DataURL == "" {
			continue
		}
		content = append(content, mcp.NewImageContent(strings.TrimPrefix(page.DataURL, dataURLPrefix), "image/jpeg"))
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (s *Server) handleDetect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Detect(ctx, formfill.DetectRequest{
		Path:      path,
		Detector:  request.GetString("detector", ""),
		SessionID: request.GetString("session_id", ""),
		Name:      request.GetString("name", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatDetectResult(result)), nil
}

func (s *Server) handleFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := fieldsArgument(request, "fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := formfill.FillRequest{
		Path:       request.GetString("path", ""),
		SessionID:  request.GetString("session_id", ""),
		Fields:     list,
		OutputPath: request.GetString("output_path", ""),
	}
	if req.Path == "" && req.SessionID == "" {
		return mcp.NewToolResultError("either path or session_id is required"), nil
	}

	result, err := s.service.Fill(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatFillResult(result)), nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := formfill.AnswerRequest{
		SessionID: sessionID,
		FieldID:   request.GetString("field_id", ""),
		Index:     request.GetInt("index", 0),
		Value:     value,
		Append:    request.GetBool("append", false),
		Format:    request.GetBool("format", false),
	}
	result, err := s.service.Answer(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatSessionResult("Answer recorded", result)), nil
}

func (s *Server) handleFieldEdit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := request.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := formfill.EditFieldRequest{
		SessionID:       sessionID,
		Op:              formfill.EditOp(op),
		FieldID:         request.GetString("field_id", ""),
		DX:              request.GetFloat("dx", 0),
		DY:              request.GetFloat("dy", 0),
		ContainerWidth:  request.GetFloat("container_width", 0),
		ContainerHeight: request.GetFloat("container_height", 0),
		PageIndex:       request.GetInt("page_index", 0),
		Label:           request.GetString("label", ""),
	}
	if req.Op == formfill.EditAdd {
		rect, err := rectArgument(request, "rect")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Rect = rect
	}

	result, err := s.service.EditField(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatEditFieldResult(result)), nil
}

func (s *Server) handleSessionSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := fieldsArgument(request, "fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if list == nil {
		return mcp.NewToolResultError("required argument \"fields\" not found"), nil
	}

	result, err := s.service.SaveSession(ctx, formfill.SaveSessionRequest{
		ID:            id,
		Name:          request.GetString("name", ""),
		Path:          request.GetString("path", ""),
		Fields:        list,
		Step:          session.Step(request.GetString("step", "")),
		IncludeImages: request.GetBool("include_images", false),
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatSessionResult("Session saved", result)), nil
}

func (s *Server) handleSessionLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.LoadSession(ctx, formfill.LoadSessionRequest{ID: id})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatSessionResult("Session loaded", result)), nil
}

func (s *Server) handleSessionList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.service.ListSessions(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatListSessionsResult(result)), nil
}

func (s *Server) handleSessionDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.service.DeleteSession(ctx, formfill.DeleteSessionRequest{ID: id}); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s deleted", id)), nil
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := formfill.SearchRequest{
		Query: request.GetString("query", ""),
		Limit: request.GetInt("limit", 0),
	}

	result, err := s.service.SearchForms(ctx, req)
	if err != nil {
		return toolError(err), nil
	}

	if result.TotalCount == 0 {
		text := fmt.Sprintf("No forms found in directory: %s", result.Directory)
		if result.Query != "" {
			text += fmt.Sprintf(" (searched for: %s)", result.Query)
		}
		return mcp.NewToolResultText(text), nil
	}
	return mcp.NewToolResultText(formatSearchResult(result)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.service.ServerInfo(ctx, s.config.ServerName, s.config.Version)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(formatServerInfoResult(result)), nil
}

// toolError reports err to the client. Typed errors already name their type.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// jsonArgument returns an argument given either as a JSON string or as a
// JSON value. A missing or blank argument yields nil.
func jsonArgument(request mcp.CallToolRequest, key string) ([]byte, error) {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s argument: %w", key, err)
		}
		return encoded, nil
	}
}

// rectArgument decodes a required [y_min, x_min, y_max, x_max] box
func rectArgument(request mcp.CallToolRequest, key string) (geometry.Rect, error) {
	data, err := jsonArgument(request, key)
	if err != nil {
		return geometry.Rect{}, err
	}
	if data == nil {
		return geometry.Rect{}, fmt.Errorf("required argument %q not found", key)
	}
	var r geometry.Rect
	if err := json.Unmarshal(data, &r); err != nil {
		return geometry.Rect{}, fmt.Errorf("invalid %s argument: must be [y_min, x_min, y_max, x_max]: %w", key, err)
	}
	return r, nil
}

// fieldsArgument decodes a field list given either as a JSON string or as a
// JSON array. A missing argument yields nil.
func fieldsArgument(request mcp.CallToolRequest, key string) ([]fields.Field, error) {
	data, err := jsonArgument(request, key)
	if err != nil || data == nil {
		return nil, err
	}

	list := []fields.Field{}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("invalid %s argument: must be a JSON array of fields: %w", key, err)
	}
	return list, nil
}
