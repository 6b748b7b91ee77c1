package detect

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
	"github.com/a3tai/mcp-pdf-formfill/internal/testutil"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// stubModel answers every request with a canned response
type stubModel struct {
	response string
	err      error
	messages []llms.MessageContent
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func testPage(index int) raster.Page {
	return raster.Page{Index: index, Image: []byte{0xff, 0xd8, 0xff}, Width: 10, Height: 10}
}

func TestParseDetections(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"label":"Name","type":"text","box_2d":[1,2,3,4]}]`, 1, false},
		{"json fence", "```json\n[{\"label\":\"A\"},{\"label\":\"B\"}]\n```", 2, false},
		{"plain fence", "```\n[]\n```", 0, false},
		{"prose around array", "Here are the fields:\n[{\"label\":\"A\"}]\nDone.", 1, false},
		{"wrapped object", `{"fields":[{"label":"A"}]}`, 1, false},
		{"reasoning block", "<think>looking</think>[{\"label\":\"A\"}]", 1, false},
		{"garbage", "I cannot help with that", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDetections(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestVisionDetector(t *testing.T) {
	model := &stubModel{response: "```json\n" + `[
		{"label": "Name", "section": "Part 1", "type": "text", "common_type": "name", "box_2d": [100, 50, 130, 600]},
		{"label": "C Corp", "type": "checkbox", "box_2d": [200, 50, 220, 70], "required": true}
	]` + "\n```"}

	d := NewVisionDetector(model, WithVisionLogger(quietLogger()))
	got, err := d.Detect(context.Background(), testPage(0))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Part 1", got[0].Section)
	assert.Equal(t, fields.KindCheckbox, got[1].Kind)
	require.NotNil(t, got[1].Required)
	assert.True(t, *got[1].Required)
	assert.Equal(t, geometry.NewRect(100, 50, 130, 600), got[0].Box.Rect())

	require.Len(t, model.messages, 1)
	parts := model.messages[0].Parts
	require.Len(t, parts, 2)
	_, isBinary := parts[0].(llms.BinaryContent)
	assert.True(t, isBinary)
	assert.Equal(t, llms.TextPart(DefaultPrompt), parts[1])
}

func TestVisionDetector_OpenAIUsesImageURL(t *testing.T) {
	model := &stubModel{response: "[]"}
	d := NewVisionDetector(model, WithProvider("OpenAI"), WithPrompt("find fields"), WithVisionLogger(quietLogger()))

	_, err := d.Detect(context.Background(), testPage(0))
	require.NoError(t, err)

	parts := model.messages[0].Parts
	url, ok := parts[0].(llms.ImageURLContent)
	require.True(t, ok)
	assert.Contains(t, url.URL, "data:image/jpeg;base64,")
	assert.Equal(t, llms.TextPart("find fields"), parts[1])
}

func TestVisionDetector_Errors(t *testing.T) {
	d := NewVisionDetector(&stubModel{err: errors.New("rate limited")}, WithVisionLogger(quietLogger()))
	_, err := d.Detect(context.Background(), testPage(0))
	assert.ErrorContains(t, err, "rate limited")

	d = NewVisionDetector(&stubModel{response: "no idea"}, WithVisionLogger(quietLogger()))
	_, err = d.Detect(context.Background(), testPage(0))
	assert.Error(t, err)

	_, err = d.Detect(context.Background(), raster.Page{Index: 3})
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))
}

func TestNewModel_Validation(t *testing.T) {
	_, err := NewModel(LLMConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = NewModel(LLMConfig{Provider: "gemini", Model: "x"})
	assert.ErrorContains(t, err, "unsupported")
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestPipeline(d Detector, opts PipelineOptions) *Pipeline {
	p := NewPipeline(d, opts, quietLogger())
	p.sleep = noSleep
	return p
}

func box(r geometry.Rect) fields.Box {
	a := r.Array()
	return fields.Box(a[:])
}

func TestPipeline_OrderAndSectionsPerPage(t *testing.T) {
	r := geometry.NewRect(100, 100, 150, 400)
	d := Func(func(_ context.Context, page raster.Page) ([]fields.Detection, error) {
		if page.Index == 0 {
			return []fields.Detection{{Label: "A", Section: "Part 1", Box: box(r)}, {Label: "Signature", Box: box(r)}}, nil
		}
		return []fields.Detection{{Label: "B", Box: box(r)}}, nil
	})

	store := fields.NewStore(quietLogger())
	report, err := newTestPipeline(d, DefaultPipelineOptions()).Run(context.Background(),
		[]raster.Page{testPage(0), testPage(1)}, store)
	require.NoError(t, err)

	assert.Equal(t, 2, report.FieldsAdded)
	assert.Equal(t, 1, report.Excluded)
	got := store.Fields()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Label)
	assert.Equal(t, 0, got[0].PageIndex)
	assert.Equal(t, "B", got[1].Label)
	assert.Equal(t, "", got[1].Section, "sections do not carry across pages")
}

func TestPipeline_RetryThenSuccess(t *testing.T) {
	var calls int32
	d := Func(func(context.Context, raster.Page) ([]fields.Detection, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("temporary")
		}
		return []fields.Detection{{Label: "A", Box: fields.Box{1, 1, 50, 50}}}, nil
	})

	store := fields.NewStore(quietLogger())
	report, err := newTestPipeline(d, PipelineOptions{Retries: 2}).Run(context.Background(), []raster.Page{testPage(0)}, store)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, report.FieldsAdded)
	assert.Empty(t, report.Failed)
}

func TestPipeline_PartialSuccessIsKept(t *testing.T) {
	d := Func(func(_ context.Context, page raster.Page) ([]fields.Detection, error) {
		if page.Index == 1 {
			return nil, errors.New("model overloaded")
		}
		return []fields.Detection{{Label: "A", Box: fields.Box{1, 1, 50, 50}}}, nil
	})

	store := fields.NewStore(quietLogger())
	report, err := newTestPipeline(d, PipelineOptions{Retries: 1}).Run(context.Background(),
		[]raster.Page{testPage(0), testPage(1), testPage(2)}, store)
	require.NoError(t, err)

	assert.Equal(t, 2, report.FieldsAdded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 1, report.Failed[0].PageIndex)
	assert.Equal(t, 2, report.Failed[0].Attempts)
}

func TestPipeline_AllPagesFailed(t *testing.T) {
	d := Func(func(context.Context, raster.Page) ([]fields.Detection, error) {
		return nil, errors.New("model unavailable")
	})

	report, err := newTestPipeline(d, PipelineOptions{}).Run(context.Background(),
		[]raster.Page{testPage(0), testPage(1)}, fields.NewStore(quietLogger()))
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeDetection))
	assert.ErrorContains(t, err, "model unavailable")
	assert.Len(t, report.Failed, 2)
}

func TestPipeline_EmptyFormIsNotAnError(t *testing.T) {
	d := Func(func(context.Context, raster.Page) ([]fields.Detection, error) { return nil, nil })

	report, err := newTestPipeline(d, PipelineOptions{}).Run(context.Background(),
		[]raster.Page{testPage(0)}, fields.NewStore(quietLogger()))
	require.NoError(t, err)
	assert.Zero(t, report.FieldsAdded)
}

func TestPipeline_Timeout(t *testing.T) {
	var calls int32
	d := Func(func(ctx context.Context, _ raster.Page) ([]fields.Detection, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	report, err := newTestPipeline(d, PipelineOptions{Timeout: 10 * time.Millisecond, Retries: 1}).Run(
		context.Background(), []raster.Page{testPage(0)}, fields.NewStore(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Error, "timed out")
}

func TestPipeline_CancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := Func(func(context.Context, raster.Page) ([]fields.Detection, error) {
		cancel()
		return nil, context.Canceled
	})

	_, err := newTestPipeline(d, PipelineOptions{Retries: 3}).Run(ctx,
		[]raster.Page{testPage(0), testPage(1)}, fields.NewStore(quietLogger()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeRect(t *testing.T) {
	letter := PageBox{Width: 612, Height: 792}

	// A widget 72pt from the left and 72pt below the top, 144x36pt.
	r := NormalizeRect([4]float64{72, 792 - 72 - 36, 216, 792 - 72}, letter)
	assert.InDelta(t, 72.0/792*1000, r.YMin, 1e-9)
	assert.InDelta(t, 108.0/792*1000, r.YMax, 1e-9)
	assert.InDelta(t, 72.0/612*1000, r.XMin, 1e-9)
	assert.InDelta(t, 216.0/612*1000, r.XMax, 1e-9)

	// Inverted corners and an offset media box.
	shifted := PageBox{X0: 100, Y0: 100, Width: 200, Height: 200}
	r = NormalizeRect([4]float64{300, 300, 100, 100}, shifted)
	assert.Equal(t, geometry.NewRect(0, 0, 1000, 1000), r)

	// Off-page widgets are clamped.
	r = NormalizeRect([4]float64{-50, -50, 50, 50}, PageBox{Width: 100, Height: 100})
	assert.Equal(t, geometry.NewRect(500, 0, 1000, 500), r)

	assert.Equal(t, geometry.Rect{}, NormalizeRect([4]float64{1, 2, 3, 4}, PageBox{}))
}

func TestAcroFormDetector_NoForm(t *testing.T) {
	src := testutil.BlankPDF(t, 2, 200, 200)

	d, err := NewAcroFormDetector(src, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, d.Count())

	got, err := d.Detect(context.Background(), testPage(0))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewAcroFormDetector([]byte("nope"), quietLogger())
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeDocumentParse))
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"none", "acroform", "vision"} {
		k, ok := ParseKind(s)
		assert.True(t, ok)
		assert.Equal(t, Kind(s), k)
	}
	_, ok := ParseKind("magic")
	assert.False(t, ok)
}

func TestPipeline_InfersTypesFromLabels(t *testing.T) {
	r := geometry.NewRect(100, 100, 150, 400)
	d := Func(func(context.Context, raster.Page) ([]fields.Detection, error) {
		return []fields.Detection{
			{Label: "Daytime phone", Box: box(r)},
			{Label: "Home address", SemanticType: "name", Box: box(r)},
			{Label: "Favourite colour", Box: box(r)},
		}, nil
	})

	store := fields.NewStore(quietLogger())
	_, err := newTestPipeline(d, DefaultPipelineOptions()).Run(context.Background(), []raster.Page{testPage(0)}, store)
	require.NoError(t, err)

	got := store.Fields()
	require.Len(t, got, 3)
	assert.Equal(t, "phone", got[0].SemanticType)
	assert.Equal(t, "name", got[1].SemanticType, "detector types win")
	assert.Equal(t, "", got[2].SemanticType)
}
