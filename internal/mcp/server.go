package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/descriptions"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *formfill.Service
	mcpServer *server.MCPServer
	log       logrus.FieldLogger

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *formfill.Service, log logrus.FieldLogger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		log:       log,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.addTool(mcp.NewTool(
		descriptions.ToolInspect,
		mcp.WithDescription(descriptions.InspectDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the form (PDF or image), relative to the form directory"),
		),
	), s.handleInspect)

	s.addTool(mcp.NewTool(
		descriptions.ToolRasterize,
		mcp.WithDescription(descriptions.RasterizeDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the form (PDF or image)"),
		),
		mcp.WithBoolean("include_images",
			mcp.Description("Return the rendered pages as JPEG images"),
		),
	), s.handleRasterize)

	s.addTool(mcp.NewTool(
		descriptions.ToolDetect,
		mcp.WithDescription(descriptions.DetectDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the form (PDF or image)"),
		),
		mcp.WithString("detector",
			mcp.Description("Detector to run (uses the configured detector if empty)"),
			mcp.Enum("none", "acroform", "vision"),
		),
		mcp.WithString("session_id",
			mcp.Description("Save the detected fields and the document as this session"),
		),
		mcp.WithString("name",
			mcp.Description("Display name of the session (defaults to the file name)"),
		),
	), s.handleDetect)

	s.addTool(mcp.NewTool(
		descriptions.ToolFill,
		mcp.WithDescription(descriptions.FillDescription),
		mcp.WithString("path",
			mcp.Description("Path of the source form (uses the session's document if empty)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session providing the document and the field values"),
		),
		mcp.WithString("fields",
			mcp.Description("JSON array of fields overriding the session's fields"),
		),
		mcp.WithString("output_path",
			mcp.Description("Where to write the filled PDF (defaults to <name>_filled.pdf)"),
		),
	), s.handleFill)

	s.addTool(mcp.NewTool(
		descriptions.ToolAnswer,
		mcp.WithDescription(descriptions.AnswerDescription),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session holding the question"),
		),
		mcp.WithString("field_id",
			mcp.Description("Id of the field to answer (takes precedence over index)"),
		),
		mcp.WithNumber("index",
			mcp.Description("Zero-based question index"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The answer; \"true\" or \"false\" for checkboxes"),
		),
		mcp.WithBoolean("append",
			mcp.Description("Append to the current answer instead of replacing it"),
		),
		mcp.WithBoolean("format",
			mcp.Description("Tidy SSNs, phone numbers, ZIP codes and email addresses"),
		),
	), s.handleAnswer)

	s.addTool(mcp.NewTool(
		descriptions.ToolFieldEdit,
		mcp.WithDescription(descriptions.FieldEditDescription),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session holding the field"),
		),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Edit to apply"),
			mcp.Enum(string(formfill.EditMove), string(formfill.EditResize), string(formfill.EditAdd), string(formfill.EditDelete)),
		),
		mcp.WithString("field_id",
			mcp.Description("Field to move, resize or delete"),
		),
		mcp.WithNumber("dx",
			mcp.Description("Horizontal drag in pixels, positive to the right"),
		),
		mcp.WithNumber("dy",
			mcp.Description("Vertical drag in pixels, positive downwards"),
		),
		mcp.WithNumber("container_width",
			mcp.Description("Pixel width of the page render the drag was measured on"),
		),
		mcp.WithNumber("container_height",
			mcp.Description("Pixel height of the page render the drag was measured on"),
		),
		mcp.WithString("rect",
			mcp.Description("New field box as a JSON array [y_min, x_min, y_max, x_max] in 0-1000 page units"),
		),
		mcp.WithNumber("page_index",
			mcp.Description("Zero-based page of the new field"),
		),
		mcp.WithString("label",
			mcp.Description("Label of the new field"),
		),
	), s.handleFieldEdit)

	s.addTool(mcp.NewTool(
		descriptions.ToolSessionSave,
		mcp.WithDescription(descriptions.SessionSaveDescription),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session id (letters, digits, '-' and '_')"),
		),
		mcp.WithString("fields",
			mcp.Required(),
			mcp.Description("JSON array of fields"),
		),
		mcp.WithString("name",
			mcp.Description("Display name of the session"),
		),
		mcp.WithString("path",
			mcp.Description("Form document to store with the session"),
		),
		mcp.WithString("step",
			mcp.Description("Workflow step"),
			mcp.Enum("upload", "analyzing", "setup", "interview", "review", "exporting"),
		),
		mcp.WithBoolean("include_images",
			mcp.Description("Store page renders with the session"),
		),
	), s.handleSessionSave)

	s.addTool(mcp.NewTool(
		descriptions.ToolSessionLoad,
		mcp.WithDescription(descriptions.SessionLoadDescription),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	), s.handleSessionLoad)

	s.addTool(mcp.NewTool(
		descriptions.ToolSessionList,
		mcp.WithDescription(descriptions.SessionListDescription),
	), s.handleSessionList)

	s.addTool(mcp.NewTool(
		descriptions.ToolSessionDelete,
		mcp.WithDescription(descriptions.SessionDeleteDescription),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	), s.handleSessionDelete)

	s.addTool(mcp.NewTool(
		descriptions.ToolSearch,
		mcp.WithDescription(descriptions.SearchDescription),
		mcp.WithString("query",
			mcp.Description("Optional search query for fuzzy matching"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of files to return"),
		),
	), s.handleSearch)

	s.addTool(mcp.NewTool(
		descriptions.ToolServerInfo,
		mcp.WithDescription(descriptions.ServerInfoDescription),
	), s.handleServerInfo)
}

// addTool registers a handler and logs each call
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	name := tool.Name
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)

		logger := s.log.WithFields(logrus.Fields{"tool": name, "duration": time.Since(start).Round(time.Millisecond)})
		switch {
		case err != nil:
			logger.WithError(err).Error("Tool call failed")
		case result != nil && result.IsError:
			logger.Warn("Tool call returned an error")
		default:
			logger.Debug("Tool call finished")
		}
		return result, err
	})
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	switch {
	case s.config.IsServerMode():
		return s.runServerMode(ctx)
	case s.config.IsStdioMode():
		return s.runStdioMode(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", s.config.Mode)
	}
}

// runStdioMode serves the protocol on stdin/stdout until ctx ends or input closes
func (s *Server) runStdioMode(ctx context.Context) error {
	s.log.WithField("directory", s.config.Directory).Debug("Starting form fill MCP server in stdio mode")

	errorLog, closeErrorLog := s.transportErrorLogger("stdio")
	defer closeErrorLog()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(errorLog)

	if err := stdio.Listen(ctx, s.stdin, s.stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves the protocol over HTTP with server-sent events
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	errorLog, closeErrorLog := s.transportErrorLogger("sse")
	defer closeErrorLog()

	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           sse,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errorLog,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("address", addr).Info("Starting form fill MCP server in SSE mode")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Event streams stay open until their clients leave.
		s.log.WithError(err).Warn("Graceful shutdown timed out, closing connections")
		return srv.Close()
	}
	s.log.Info("Server stopped")
	return nil
}

// transportErrorLogger routes a transport's standard library error log to
// logrus at error level. The returned func releases the pipe behind it.
func (s *Server) transportErrorLogger(transport string) (*stdlog.Logger, func()) {
	w := s.log.WithField("transport", transport).WriterLevel(logrus.ErrorLevel)
	return stdlog.New(w, "", 0), func() { w.Close() }
}
