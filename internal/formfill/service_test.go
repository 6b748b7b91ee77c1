package formfill

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/descriptions"
	"github.com/a3tai/mcp-pdf-formfill/internal/detect"
	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
	"github.com/a3tai/mcp-pdf-formfill/internal/session"
	"github.com/a3tai/mcp-pdf-formfill/internal/testutil"
)

type stubModel struct {
	response string
	calls    int
}

func (m *stubModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Directory = dir
	cfg.SessionDirectory = filepath.Join(dir, ".sessions")
	cfg.Detector = string(detect.KindNone)
	cfg.LLM = config.LLMConfig{}
	cfg.DetectRetries = 0
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config, opts ...Option) *Service {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	svc, err := NewService(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return svc
}

func writeForm(t *testing.T, svc *Service, name string, pages int) string {
	t.Helper()
	path := filepath.Join(svc.Directory(), name)
	require.NoError(t, os.WriteFile(path, testutil.BlankPDF(t, pages, 612, 792), 0o600))
	return path
}

func sampleFields() []fields.Field {
	return []fields.Field{
		{ID: "f1", Label: "SSN", SemanticType: "ssn", Required: true, Kind: fields.KindText,
			Rect: geometry.NewRect(100, 100, 150, 500)},
		{ID: "f2", Label: "Address", Kind: fields.KindText, Rect: geometry.NewRect(200, 100, 260, 900)},
		{ID: "f3", Label: "Agree", Kind: fields.KindCheckbox, Value: fields.CheckboxUnchecked,
			Rect: geometry.NewRect(300, 100, 320, 120), PageIndex: 1},
	}
}

func TestService_PathConfinement(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Inspect(ctx, InspectRequest{Path: "../outside.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security validation failed")

	_, err = svc.Rasterize(ctx, RasterizeRequest{Path: "/etc/passwd"})
	assert.Error(t, err)

	_, err = svc.Inspect(ctx, InspectRequest{Path: "missing.pdf"})
	assert.Error(t, err)
}

func TestService_Inspect(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	writeForm(t, svc, "blank.pdf", 2)

	res, err := svc.Inspect(context.Background(), InspectRequest{Path: "blank.pdf"})
	require.NoError(t, err)
	assert.Equal(t, raster.SourcePDF, res.Source)
	assert.Equal(t, 2, res.Info.Pages)
	assert.Equal(t, 0, res.AcroFormFields)
	assert.Equal(t, detect.KindNone, res.Suggested)
	assert.NotEmpty(t, res.Hint)

	cfg.LLM.Model = "gpt-4o"
	res, err = svc.Inspect(context.Background(), InspectRequest{Path: "blank.pdf"})
	require.NoError(t, err)
	assert.Equal(t, detect.KindVision, res.Suggested)
}

func TestService_InspectImage(t *testing.T) {
	svc := newTestService(t, nil)
	path := filepath.Join(svc.Directory(), "scan.png")
	require.NoError(t, os.WriteFile(path, testutil.PNG(t, 300, 400), 0o600))

	res, err := svc.Inspect(context.Background(), InspectRequest{Path: path})
	if err != nil {
		t.Skipf("image conversion unavailable: %v", err)
	}
	assert.Equal(t, raster.SourceImage, res.Source)
	assert.Equal(t, 1, res.Info.Pages)
}

func TestService_DetectUnknownDetector(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "form.pdf", 1)

	_, err := svc.Detect(context.Background(), DetectRequest{Path: "form.pdf", Detector: "psychic"})
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))

	_, err = svc.Detect(context.Background(), DetectRequest{Path: "form.pdf", SessionID: "../x"})
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))
}

func TestService_DetectNoneSavesSession(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "form.pdf", 1)
	ctx := context.Background()

	res, err := svc.Detect(ctx, DetectRequest{Path: "form.pdf", SessionID: "manual-1"})
	require.NoError(t, err)
	assert.Empty(t, res.Fields)
	assert.Equal(t, "none", res.Report.Detector)
	assert.Equal(t, "manual-1", res.SessionID)

	loaded, err := svc.LoadSession(ctx, LoadSessionRequest{ID: "manual-1"})
	require.NoError(t, err)
	assert.True(t, loaded.HasSource)
	assert.Equal(t, "form.pdf", loaded.Name)
	assert.Equal(t, session.StepSetup, loaded.Step)
}

func TestService_DetectAcroFormOnFlatForm(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "flat.pdf", 3)

	res, err := svc.Detect(context.Background(), DetectRequest{Path: "flat.pdf", Detector: "acroform"})
	require.NoError(t, err)
	assert.Empty(t, res.Fields)
	assert.Equal(t, 3, res.Report.PagesAttempted)
	assert.Empty(t, res.Report.Failed)
}

func TestService_DetectVision(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rendering in short mode")
	}
	model := &stubModel{response: `[
		{"label": "Full name", "section": "Part 1", "type": "text", "box_2d": [100, 50, 140, 600]},
		{"label": "Signature of applicant", "box_2d": [800, 50, 840, 600]},
		{"label": "Married", "type": "checkbox", "box_2d": [200, 50, 220, 70]}
	]`}
	svc := newTestService(t, nil, WithModel(model))
	path := filepath.Join(svc.Directory(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, testutil.BlankPDF(t, 1, 200, 200), 0o600))

	res, err := svc.Detect(context.Background(), DetectRequest{Path: "scan.pdf", Detector: "vision", SessionID: "scan"})
	require.NoError(t, err)

	require.Len(t, res.Fields, 2)
	assert.Equal(t, "Full name", res.Fields[0].Label)
	assert.Equal(t, "Part 1", res.Fields[1].Section)
	assert.Equal(t, fields.CheckboxUnchecked, res.Fields[1].Value)
	assert.Equal(t, 1, res.Report.Excluded)
	assert.Equal(t, 1, model.calls)

	loaded, err := svc.LoadSession(context.Background(), LoadSessionRequest{ID: "scan"})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Pages)
}

func TestService_SessionWorkflow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	saved, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "w9", Name: "W-9", Fields: sampleFields()})
	require.NoError(t, err)
	assert.Equal(t, session.StepSetup, saved.Step)
	assert.Equal(t, "Question 1. SSN. Required.", saved.Next)
	assert.Equal(t, []string{"f1"}, saved.Progress.MissingRequired)
	assert.False(t, saved.HasSource)

	res, err := svc.Answer(ctx, AnswerRequest{SessionID: "w9", Index: 0, Value: "123 45 6789", Format: true})
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", res.Fields[0].Value)
	assert.Equal(t, session.StepInterview, res.Step)
	assert.Equal(t, "Question 2. Address.", res.Next)

	_, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", FieldID: "f2", Value: "12 Main St"})
	require.NoError(t, err)
	res, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", FieldID: "f2", Value: "Springfield", Append: true})
	require.NoError(t, err)
	assert.Equal(t, "12 Main St Springfield", res.Fields[1].Value)

	res, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", FieldID: "f3", Value: " TRUE "})
	require.NoError(t, err)
	assert.Equal(t, fields.CheckboxChecked, res.Fields[2].Value)
	assert.Equal(t, 3, res.Progress.Answered)
	assert.Empty(t, res.Next)

	_, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", FieldID: "f3", Value: "maybe"})
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))
	_, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", FieldID: "nope", Value: "x"})
	assert.ErrorIs(t, err, fields.ErrFieldNotFound)
	_, err = svc.Answer(ctx, AnswerRequest{SessionID: "w9", Index: 7, Value: "x"})
	assert.Error(t, err)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list.TotalCount)
	assert.Equal(t, 3, list.Sessions[0].Answered)

	require.NoError(t, svc.DeleteSession(ctx, DeleteSessionRequest{ID: "w9"}))
	_, err = svc.LoadSession(ctx, LoadSessionRequest{ID: "w9"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestService_ConcurrentAnswersKeepEveryValue(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	list := make([]fields.Field, 0, 8)
	for i := 0; i < 8; i++ {
		list = append(list, fields.Field{
			ID: fmt.Sprintf("f%d", i), Label: fmt.Sprintf("Field %d", i), Kind: fields.KindText,
			Rect: geometry.NewRect(float64(100+i*50), 100, float64(140+i*50), 500),
		})
	}
	_, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "busy", Fields: list})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, f := range list {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Answer(ctx, AnswerRequest{SessionID: "busy", FieldID: id, Value: "value " + id})
			assert.NoError(t, err)
		}(f.ID)
	}
	wg.Wait()

	res, err := svc.LoadSession(ctx, LoadSessionRequest{ID: "busy"})
	require.NoError(t, err)
	require.Len(t, res.Fields, len(list))
	for _, f := range res.Fields {
		assert.Equal(t, "value "+f.ID, f.Value)
	}
}

func TestService_SaveSessionKeepsSource(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "form.pdf", 1)
	ctx := context.Background()

	_, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "s1", Path: "form.pdf", Fields: sampleFields()})
	require.NoError(t, err)

	res, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "s1", Fields: sampleFields()[:1], Step: session.StepReview})
	require.NoError(t, err)
	assert.True(t, res.HasSource)
	assert.Equal(t, "form.pdf", res.Name)
	assert.Equal(t, session.StepReview, res.Step)
	assert.Len(t, res.Fields, 1)

	dup := []fields.Field{{ID: "a", Label: "A"}, {ID: "a", Label: "B"}}
	_, err = svc.SaveSession(ctx, SaveSessionRequest{ID: "s2", Fields: dup})
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))
}

func TestService_Fill(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "form.pdf", 2)
	ctx := context.Background()

	_, err := svc.Fill(ctx, FillRequest{Fields: sampleFields()})
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))

	_, err = svc.Fill(ctx, FillRequest{Path: "form.pdf", OutputPath: "../escaped.pdf"})
	assert.Error(t, err)

	if testing.Short() {
		t.Skip("skipping PDF stamping in short mode")
	}

	list := sampleFields()
	list[0].Value = "123-45-6789"
	list[2].Value = fields.CheckboxChecked
	_, err = svc.SaveSession(ctx, SaveSessionRequest{ID: "w9", Path: "form.pdf", Fields: list})
	require.NoError(t, err)

	res, err := svc.Fill(ctx, FillRequest{SessionID: "w9"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Directory(), "w9_filled.pdf"), res.OutputPath)
	assert.Equal(t, 2, res.Report.FieldsDrawn)
	assert.NotEmpty(t, res.Summary)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.True(t, raster.IsPDF(data))

	res, err = svc.Fill(ctx, FillRequest{Path: "form.pdf", Fields: list, OutputPath: "out/done"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Directory(), "out", "done.pdf"), res.OutputPath)
	assert.FileExists(t, res.OutputPath)
}

func TestService_SearchForms(t *testing.T) {
	svc := newTestService(t, nil)
	dir := svc.Directory()
	for _, name := range []string{"tax-form-2024.pdf", "lease.pdf", "notes.txt", "scan.PNG"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "secret.pdf"), []byte("%PDF-1.4"), 0o600))

	ctx := context.Background()
	all, err := svc.SearchForms(ctx, SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalCount)

	tax, err := svc.SearchForms(ctx, SearchRequest{Query: "tax 2024"})
	require.NoError(t, err)
	require.Len(t, tax.Files, 1)
	assert.Equal(t, "tax-form-2024.pdf", tax.Files[0].Name)

	limited, err := svc.SearchForms(ctx, SearchRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Files, 1)
}

func TestMatchesQuery(t *testing.T) {
	tests := []struct {
		filename string
		query    string
		want     bool
	}{
		{"w9.pdf", "", true},
		{"w9.pdf", "w9", true},
		{"tax_form_2024.pdf", "form 2024", true},
		{"tax_form_2024.pdf", "form 2023", false},
		{"Lease (signed).pdf", "signed", true},
	}
	for _, tt := range tests {
		t.Run(tt.filename+"/"+tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesQuery(tt.filename, tt.query))
		})
	}
}

func TestService_ServerInfo(t *testing.T) {
	svc := newTestService(t, nil)
	writeForm(t, svc, "form.pdf", 1)

	info, err := svc.ServerInfo(context.Background(), "mcp-pdf-formfill", "1.0.0")
	require.NoError(t, err)

	assert.Equal(t, "mcp-pdf-formfill", info.ServerName)
	assert.Equal(t, svc.Directory(), info.DefaultDirectory)
	assert.Len(t, info.AvailableTools, len(descriptions.ToolDescriptions))
	for _, tool := range info.AvailableTools {
		assert.NotEmpty(t, tool.Parameters, tool.Name)
		assert.NotContains(t, tool.Description, "\n")
	}
	require.Len(t, info.DirectoryContents, 1)
	assert.Equal(t, "form.pdf", info.DirectoryContents[0].Name)
	assert.Contains(t, info.UsageGuidance, "100MB")
	assert.NotNil(t, info.RenderCache)
}

func TestService_AnswerFormatsByLabel(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	list := []fields.Field{
		{ID: "p", Label: "Home phone", Kind: fields.KindText, Rect: geometry.NewRect(100, 100, 150, 500)},
		{ID: "z", Label: "ZIP code", Kind: fields.KindText, Rect: geometry.NewRect(200, 100, 250, 500)},
	}
	_, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "contact", Fields: list})
	require.NoError(t, err)

	res, err := svc.Answer(ctx, AnswerRequest{SessionID: "contact", FieldID: "p", Value: "1 555 123 4567", Format: true})
	require.NoError(t, err)
	assert.Equal(t, "(555) 123-4567", res.Fields[0].Value)
	assert.Empty(t, res.Fields[0].SemanticType, "inference does not rewrite the stored field")

	res, err = svc.Answer(ctx, AnswerRequest{SessionID: "contact", FieldID: "z", Value: "12345 6789"})
	require.NoError(t, err)
	assert.Equal(t, "12345 6789", res.Fields[1].Value, "unformatted without the format flag")
}

func TestService_EditField(t *testing.T) {
	tests := []struct {
		name    string
		req     EditFieldRequest
		wantLen int
		check   func(t *testing.T, res *EditFieldResult)
	}{
		{
			name: "move by pixel delta",
			req: EditFieldRequest{Op: EditMove, FieldID: "f1", DX: 50, DY: 100,
				ContainerWidth: 500, ContainerHeight: 1000},
			wantLen: 3,
			check: func(t *testing.T, res *EditFieldResult) {
				require.NotNil(t, res.Field)
				assert.Equal(t, geometry.NewRect(200, 200, 250, 600), res.Field.Rect)
			},
		},
		{
			name: "resize keeps the minimum extent",
			req: EditFieldRequest{Op: EditResize, FieldID: "f1", DX: -1000, DY: -50,
				ContainerWidth: 500, ContainerHeight: 1000},
			wantLen: 3,
			check: func(t *testing.T, res *EditFieldResult) {
				require.NotNil(t, res.Field)
				assert.Equal(t, geometry.NewRect(50, 100, 150, 100+geometry.MinExtent), res.Field.Rect)
			},
		},
		{
			name:    "add a drawn field",
			req:     EditFieldRequest{Op: EditAdd, Rect: geometry.NewRect(450, 400, 400, 100), PageIndex: 1, Label: " Signature "},
			wantLen: 4,
			check: func(t *testing.T, res *EditFieldResult) {
				require.NotNil(t, res.Field)
				assert.Equal(t, "Signature", res.Field.Label)
				assert.Equal(t, geometry.NewRect(400, 100, 450, 400), res.Field.Rect)
				assert.Equal(t, 1, res.Field.PageIndex)
				assert.Equal(t, res.Field.ID, res.Session.Fields[3].ID)
			},
		},
		{
			name:    "delete",
			req:     EditFieldRequest{Op: EditDelete, FieldID: "f2"},
			wantLen: 2,
			check: func(t *testing.T, res *EditFieldResult) {
				assert.Nil(t, res.Field)
				for _, f := range res.Session.Fields {
					assert.NotEqual(t, "f2", f.ID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, nil)
			ctx := context.Background()
			_, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "edit", Fields: sampleFields()})
			require.NoError(t, err)

			tt.req.SessionID = "edit"
			res, err := svc.EditField(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.req.Op, res.Op)
			assert.Len(t, res.Session.Fields, tt.wantLen)
			tt.check(t, res)

			loaded, err := svc.LoadSession(ctx, LoadSessionRequest{ID: "edit"})
			require.NoError(t, err)
			assert.Equal(t, res.Session.Fields, loaded.Fields, "edit is persisted")
		})
	}
}

func TestService_EditFieldRejects(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.SaveSession(ctx, SaveSessionRequest{ID: "edit", Fields: sampleFields()})
	require.NoError(t, err)

	tests := []struct {
		name         string
		req          EditFieldRequest
		invalidInput bool
		wantErr      error
	}{
		{"move unknown field", EditFieldRequest{Op: EditMove, FieldID: "nope", ContainerWidth: 10, ContainerHeight: 10}, false, fields.ErrFieldNotFound},
		{"delete unknown field", EditFieldRequest{Op: EditDelete, FieldID: "nope"}, false, fields.ErrFieldNotFound},
		{"move without container", EditFieldRequest{Op: EditMove, FieldID: "f1"}, true, nil},
		{"add too small", EditFieldRequest{Op: EditAdd, Rect: geometry.NewRect(0, 0, 5, 5), Label: "x"}, true, fields.ErrFieldTooSmall},
		{"add without label", EditFieldRequest{Op: EditAdd, Rect: geometry.NewRect(0, 0, 50, 50)}, true, nil},
		{"add on negative page", EditFieldRequest{Op: EditAdd, Rect: geometry.NewRect(0, 0, 50, 50), Label: "x", PageIndex: -1}, true, nil},
		{"unknown operation", EditFieldRequest{Op: "rotate", FieldID: "f1"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SessionID = "edit"
			_, err := svc.EditField(ctx, tt.req)
			require.Error(t, err)
			if tt.invalidInput {
				assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput), "got %v", err)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	res, err := svc.LoadSession(ctx, LoadSessionRequest{ID: "edit"})
	require.NoError(t, err)
	assert.Equal(t, sampleFields()[0].Rect, res.Fields[0].Rect, "rejected edits leave the session untouched")
	assert.Len(t, res.Fields, 3)

	_, err = svc.EditField(ctx, EditFieldRequest{SessionID: "missing", Op: EditDelete, FieldID: "f1"})
	assert.ErrorIs(t, err, session.ErrNotFound)
}
