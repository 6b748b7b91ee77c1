// Package formfill exposes the form-filling engine as a set of request and
// result operations: inspect, render, detect, fill, and session management.
package formfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/a3tai/mcp-pdf-formfill/internal/compositor"
	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/detect"
	"github.com/a3tai/mcp-pdf-formfill/internal/document"
	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/intelligence"
	"github.com/a3tai/mcp-pdf-formfill/internal/interview"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
	"github.com/a3tai/mcp-pdf-formfill/internal/security"
	"github.com/a3tai/mcp-pdf-formfill/internal/session"
)

const filledSuffix = "_filled.pdf"

// Service handles form operations by orchestrating the engine components
type Service struct {
	cfg        *config.Config
	guard      *security.PathGuard
	validator  *document.Validator
	rasterizer *raster.Rasterizer
	compositor *compositor.Compositor
	sessions   *session.Store
	search     *Search
	log        logrus.FieldLogger

	modelMu sync.Mutex
	model   llms.Model
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithModel sets the vision model instead of building one from configuration
func WithModel(model llms.Model) Option {
	return func(s *Service) { s.model = model }
}

// NewService creates a form service with all components
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}

	guard, err := security.NewPathGuard(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path guard: %w", err)
	}
	s.guard = guard
	s.validator = document.NewValidator(cfg.MaxFileSize)
	s.search = NewSearch(s.validator)

	s.rasterizer, err = raster.New(cfg.Raster, cfg.CacheSize, s.log)
	if err != nil {
		return nil, err
	}
	s.compositor, err = compositor.New(cfg.Layout(), compositor.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.sessions, err = session.NewStore(cfg.SessionDirectory, s.log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Inspect reports page geometry, text-layer content and the detector best
// suited to a form
func (s *Service) Inspect(ctx context.Context, req InspectRequest) (*InspectResult, error) {
	src, resolved, kind, err := s.loadSource(req.Path)
	if err != nil {
		return nil, err
	}

	info, err := document.Inspect(src, s.log)
	if err != nil {
		return nil, err
	}

	result := &InspectResult{Path: resolved, Source: kind, Info: info, Suggested: detect.KindNone}
	if acro, err := detect.NewAcroFormDetector(src, s.log); err == nil {
		result.AcroFormFields = acro.Count()
	} else {
		s.log.WithError(err).Debug("AcroForm widgets unavailable")
	}

	switch {
	case result.AcroFormFields > 0:
		result.Suggested = detect.KindAcroForm
		result.Hint = fmt.Sprintf("The form has %d interactive fields; form_detect with detector 'acroform' reads them directly.",
			result.AcroFormFields)
	case s.cfg.LLM.Model != "":
		result.Suggested = detect.KindVision
		result.Hint = "The form has no interactive fields; form_detect with detector 'vision' locates them on the rendered pages."
	default:
		result.Hint = "The form has no interactive fields and no vision model is configured; fields must be supplied by hand."
	}
	return result, nil
}

// Rasterize renders a form's pages
func (s *Service) Rasterize(ctx context.Context, req RasterizeRequest) (*RasterizeResult, error) {
	src, resolved, _, err := s.loadSource(req.Path)
	if err != nil {
		return nil, err
	}

	res, err := s.rasterizer.Rasterize(ctx, src)
	if err != nil {
		return nil, err
	}

	result := &RasterizeResult{
		Path:       resolved,
		Pages:      make([]PageImage, 0, len(res.Pages)),
		TotalPages: res.TotalPages,
		Truncated:  res.Truncated,
		Failed:     res.Failed,
	}
	for _, p := range res.Pages {
		img := PageImage{
			Index:       p.Index,
			Width:       p.Width,
			Height:      p.Height,
			PointWidth:  p.PointWidth,
			PointHeight: p.PointHeight,
		}
		if req.IncludeImages {
			img.DataURL = p.DataURL()
		}
		result.Pages = append(result.Pages, img)
	}
	return result, nil
}

// Detect locates the fields of a form and optionally saves them as a session
func (s *Service) Detect(ctx context.Context, req DetectRequest) (*DetectResult, error) {
	kind := s.cfg.DetectorKind()
	if req.Detector != "" {
		k, ok := detect.ParseKind(strings.ToLower(req.Detector))
		if !ok {
			return nil, ferrors.New(ferrors.ErrorTypeInvalidInput, "unknown detector").
				WithContext(fmt.Sprintf("%q (must be one of: none, acroform, vision)", req.Detector))
		}
		kind = k
	}
	if req.SessionID != "" {
		if err := session.ValidateID(req.SessionID); err != nil {
			return nil, ferrors.Wrap(ferrors.ErrorTypeInvalidInput, "invalid session id", err)
		}
	}

	src, resolved, _, err := s.loadSource(req.Path)
	if err != nil {
		return nil, err
	}

	store := fields.NewStore(s.log)
	report := &detect.Report{Detector: string(kind)}
	var images []string

	if kind != detect.KindNone {
		detector, err := s.newDetector(kind, src)
		if err != nil {
			return nil, err
		}
		pages, err := s.detectionPages(ctx, kind, src)
		if err != nil {
			return nil, err
		}
		if kind == detect.KindVision {
			images = make([]string, 0, len(pages))
			for _, p := range pages {
				images = append(images, p.DataURL())
			}
		}

		pipeline := detect.NewPipeline(detector, s.cfg.PipelineOptions(), s.log)
		report, err = pipeline.Run(ctx, pages, store)
		if err != nil {
			return nil, err
		}
	}

	result := &DetectResult{Path: resolved, Fields: store.Fields(), Report: report}

	if req.SessionID != "" {
		name := req.Name
		if name == "" {
			name = filepath.Base(resolved)
		}
		bundle := session.NewBundle(req.SessionID, name, store, images, session.StepSetup)
		bundle.Source = src
		defer s.sessions.Lock(req.SessionID)()
		if err := s.sessions.Save(bundle); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		result.SessionID = req.SessionID
	}

	s.log.WithFields(logrus.Fields{
		"path":     resolved,
		"detector": report.Detector,
		"fields":   report.FieldsAdded,
		"failed":   len(report.Failed),
	}).Info("Field detection finished")
	return result, nil
}

// Fill writes field values into a copy of the form and saves it inside the
// configured directory
func (s *Service) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	var (
		src        []byte
		list       []fields.Field
		sourcePath string
	)

	if req.SessionID != "" {
		b, err := s.sessions.Load(req.SessionID)
		if err != nil {
			return nil, err
		}
		src = b.Source
		list = b.Fields
	}
	if req.Path != "" {
		var err error
		src, sourcePath, _, err = s.loadSource(req.Path)
		if err != nil {
			return nil, err
		}
	}
	if req.Fields != nil {
		list = req.Fields
	}
	if len(src) == 0 {
		return nil, ferrors.New(ferrors.ErrorTypeInvalidInput,
			"no source document: pass a path or a session that stores its document")
	}

	out, err := s.compositor.Compose(ctx, src, list)
	if err != nil {
		return nil, err
	}

	outPath, err := s.outputPath(req.OutputPath, sourcePath, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), config.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, out.PDF, 0o600); err != nil {
		return nil, ferrors.PDFGeneration(fmt.Errorf("write %s: %w", outPath, err))
	}

	return &FillResult{
		OutputPath: outPath,
		Size:       int64(len(out.PDF)),
		Report:     out.Report,
		Summary:    out.Report.String(),
	}, nil
}

// SaveSession persists fields, and optionally the document and its page
// renders, under an id. Document and renders of an existing session are kept
// when the request does not replace them.
func (s *Service) SaveSession(ctx context.Context, req SaveSessionRequest) (*SessionResult, error) {
	store := fields.NewStore(s.log)
	if err := store.Restore(req.Fields); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeInvalidInput, "invalid fields", err)
	}

	var previous *session.Bundle
	if req.ID != "" {
		defer s.sessions.Lock(req.ID)()
		b, err := s.sessions.Load(req.ID)
		switch {
		case err == nil:
			previous = b
		case !errors.Is(err, session.ErrNotFound):
			s.log.WithField("session", req.ID).WithError(err).Warn("Replacing unreadable session")
		}
	}

	step := req.Step
	if step == "" {
		step = session.StepSetup
		if previous != nil && previous.Step != "" {
			step = previous.Step
		}
	}

	bundle := session.NewBundle(req.ID, req.Name, store, nil, step)
	if previous != nil {
		bundle.Source = previous.Source
		bundle.Images = previous.Images
		if bundle.Name == "" {
			bundle.Name = previous.Name
		}
	}

	if req.Path != "" {
		src, resolved, _, err := s.loadSource(req.Path)
		if err != nil {
			return nil, err
		}
		bundle.Source = src
		bundle.Images = nil
		if bundle.Name == "" {
			bundle.Name = filepath.Base(resolved)
		}
	}
	if req.IncludeImages && len(bundle.Source) > 0 && len(bundle.Images) == 0 {
		res, err := s.rasterizer.Rasterize(ctx, bundle.Source)
		if err != nil {
			return nil, err
		}
		for _, p := range res.Pages {
			bundle.Images = append(bundle.Images, p.DataURL())
		}
	}

	if err := s.sessions.Save(bundle); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sessionResult(bundle, store), nil
}

// LoadSession restores a saved session
func (s *Service) LoadSession(ctx context.Context, req LoadSessionRequest) (*SessionResult, error) {
	b, err := s.sessions.Load(req.ID)
	if err != nil {
		return nil, err
	}
	store, err := b.Restore(s.log)
	if err != nil {
		return nil, err
	}
	return sessionResult(b, store), nil
}

// ListSessions lists saved sessions, most recent first
func (s *Service) ListSessions(ctx context.Context) (*ListSessionsResult, error) {
	list, err := s.sessions.List()
	if err != nil {
		return nil, err
	}
	return &ListSessionsResult{Sessions: list, TotalCount: len(list), Directory: s.sessions.Dir()}, nil
}

// DeleteSession removes a saved session
func (s *Service) DeleteSession(ctx context.Context, req DeleteSessionRequest) error {
	return s.sessions.Delete(req.ID)
}

// Answer records the value of one question of a saved session
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*SessionResult, error) {
	defer s.sessions.Lock(req.SessionID)()
	b, err := s.sessions.Load(req.SessionID)
	if err != nil {
		return nil, err
	}
	store, err := b.Restore(s.log)
	if err != nil {
		return nil, err
	}

	iv := interview.New(store)
	index := req.Index
	if req.FieldID != "" {
		index = indexOf(store.Fields(), req.FieldID)
		if index < 0 {
			return nil, fmt.Errorf("%w: %s", fields.ErrFieldNotFound, req.FieldID)
		}
	}
	if err := iv.Goto(index); err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeInvalidInput, "invalid question", err)
	}

	field, _ := iv.Current()
	value := req.Value
	if req.Format {
		semantic := field.SemanticType
		if semantic == "" {
			semantic = intelligence.InferType(field.Label)
		}
		value = interview.Format(semantic, value)
	}
	switch {
	case field.IsCheckbox():
		err = iv.SetValue(strings.ToLower(strings.TrimSpace(value)))
	case req.Append:
		err = iv.AppendTranscript(value)
	default:
		err = iv.SetValue(value)
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeInvalidInput, "invalid answer", err).WithField(field.ID)
	}

	b.Fields = store.Fields()
	if b.Step == "" || b.Step == session.StepUpload || b.Step == session.StepAnalyzing || b.Step == session.StepSetup {
		b.Step = session.StepInterview
	}
	if err := s.sessions.Save(b); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sessionResult(b, store), nil
}

// SearchForms finds forms in the configured directory
func (s *Service) SearchForms(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	files, err := s.search.Find(ctx, s.guard.Root(), req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Files: files, TotalCount: len(files), Directory: s.guard.Root(), Query: req.Query}, nil
}

// Directory returns the configured form directory
func (s *Service) Directory() string {
	return s.guard.Root()
}

// MaxFileSize returns the upload size limit
func (s *Service) MaxFileSize() int64 {
	return s.validator.MaxFileSize()
}

// loadSource resolves, validates and reads a form, converting images to PDF
func (s *Service) loadSource(path string) ([]byte, string, raster.SourceKind, error) {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("security validation failed: %w", err)
	}
	data, err := s.validator.ReadFile(resolved)
	if err != nil {
		return nil, "", "", err
	}
	src, kind, err := raster.Prepare(data)
	if err != nil {
		return nil, "", "", err
	}
	return src, resolved, kind, nil
}

func (s *Service) newDetector(kind detect.Kind, src []byte) (detect.Detector, error) {
	switch kind {
	case detect.KindAcroForm:
		return detect.NewAcroFormDetector(src, s.log)
	case detect.KindVision:
		model, err := s.visionModel()
		if err != nil {
			return nil, err
		}
		return detect.NewVisionDetector(model,
			detect.WithProvider(s.cfg.LLM.Provider),
			detect.WithVisionLogger(s.log),
		), nil
	default:
		return nil, fmt.Errorf("no detector for %q", kind)
	}
}

// detectionPages returns the pages handed to a detector. Only the vision
// detector needs page images; the others work from page sizes.
func (s *Service) detectionPages(ctx context.Context, kind detect.Kind, src []byte) ([]raster.Page, error) {
	if kind == detect.KindVision {
		res, err := s.rasterizer.Rasterize(ctx, src)
		if err != nil {
			return nil, err
		}
		for _, f := range res.Failed {
			s.log.WithFields(logrus.Fields{"page": f.Index, "reason": f.Error}).Warn("Page not rendered, skipping detection")
		}
		return res.Pages, nil
	}

	sizes, err := compositor.PageSizes(src, nil)
	if err != nil {
		return nil, ferrors.DocumentParse(err)
	}
	if limit := s.rasterizer.Options().MaxPages; len(sizes) > limit {
		sizes = sizes[:limit]
	}
	pages := make([]raster.Page, len(sizes))
	for i, size := range sizes {
		pages[i] = raster.Page{Index: i, PointWidth: size.Width, PointHeight: size.Height}
	}
	return pages, nil
}

func (s *Service) visionModel() (llms.Model, error) {
	s.modelMu.Lock()
	defer s.modelMu.Unlock()

	if s.model != nil {
		return s.model, nil
	}
	model, err := detect.NewModel(s.cfg.LLMConfig())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeDetection, "vision model unavailable", err)
	}
	s.model = model
	return model, nil
}

// outputPath picks where a filled form is written. Explicit paths are
// confined to the configured directory.
func (s *Service) outputPath(requested, sourcePath, sessionID string) (string, error) {
	if requested == "" {
		switch {
		case sourcePath != "":
			base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
			requested = base + filledSuffix
		case sessionID != "":
			requested = filepath.Join(s.guard.Root(), sessionID+filledSuffix)
		default:
			requested = filepath.Join(s.guard.Root(), "form"+filledSuffix)
		}
	}
	if !strings.EqualFold(filepath.Ext(requested), ".pdf") {
		requested += ".pdf"
	}
	resolved, err := s.guard.Resolve(requested)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	return resolved, nil
}

func sessionResult(b *session.Bundle, store *fields.Store) *SessionResult {
	iv := interview.New(store)
	if i := firstOpen(store.Fields()); i >= 0 {
		_ = iv.Goto(i)
	}

	result := &SessionResult{
		ID:        b.ID,
		Name:      b.Name,
		Step:      b.Step,
		Fields:    store.Fields(),
		Pages:     len(b.Images),
		HasSource: len(b.Source) > 0,
		Progress:  iv.Progress(),
		UpdatedAt: b.UpdatedAt,
	}
	if firstOpen(result.Fields) >= 0 {
		result.Next = iv.Prompt()
	}
	return result
}

// firstOpen returns the index of the first unanswered field, or -1
func firstOpen(list []fields.Field) int {
	for i, f := range list {
		if strings.TrimSpace(f.Value) == "" || (f.IsCheckbox() && !f.Checked() && f.Required) {
			return i
		}
	}
	return -1
}

func indexOf(list []fields.Field, id string) int {
	for i, f := range list {
		if f.ID == id {
			return i
		}
	}
	return -1
}
