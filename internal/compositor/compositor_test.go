package compositor

import (
	"bytes"
	"context"
	"io"
	"math"
	"regexp"
	"strconv"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/geometry"
	"github.com/a3tai/mcp-pdf-formfill/internal/testutil"
)

// monoMeasurer gives every rune the same advance
type monoMeasurer float64

func (m monoMeasurer) Width(text string, _ string, _ int) float64 {
	return float64(len([]rune(text))) * float64(m)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func textField(id string, page int, r geometry.Rect, value string) fields.Field {
	return fields.Field{ID: id, Label: id, Value: value, Rect: r, PageIndex: page, Kind: fields.KindText}
}

func TestWrap(t *testing.T) {
	l := DefaultLayout()
	m := monoMeasurer(5)

	tests := []struct {
		name     string
		text     string
		maxWidth float64
		want     []string
	}{
		{"fits on one line", "ab cd", 100, []string{"ab cd"}},
		{"breaks greedily", "aa bb cc dd", 30, []string{"aa bb", "cc dd"}},
		{"width equal to limit breaks", "aa bb", 25, []string{"aa", "bb"}},
		{"long word keeps its own line", "a verylongword b", 30, []string{"a", "verylongword", "b"}},
		{"minimum usable width", "aa bb", 0, []string{"aa", "bb"}},
		{"collapses whitespace", "  aa \n bb  ", 100, []string{"aa bb"}},
		{"empty", "   ", 100, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.text, l, m, tt.maxWidth))
		})
	}
}

func TestPlan_LongSentenceWrapsInsideUsableWidth(t *testing.T) {
	p := NewPlanner(DefaultLayout(), CoreFontMeasurer{}, quietLogger())
	value := "A very long sentence that should wrap across multiple lines within a narrow box"
	// 100 normalized units of a 1000pt page is a 100pt wide box.
	f := textField("f1", 0, geometry.NewRect(0, 0, 300, 100), value)

	plan, report := p.Plan([]fields.Field{f}, []PageSize{{Width: 1000, Height: 1000}})

	usable := 100 - 2*DefaultLayout().Padding
	require.Greater(t, len(plan.Lines), 1)
	for _, line := range plan.Lines {
		assert.Less(t, line.Width, usable, "line %q", line.Text)
	}
	assert.Equal(t, 1, report.FieldsDrawn)
	assert.Equal(t, len(plan.Lines), report.LinesDrawn)
	assert.Zero(t, report.TruncatedLines)
}

func TestPlan_Placement(t *testing.T) {
	p := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger())
	// Page 600x800, box from x=60 and 80pt below the top.
	f := textField("f1", 0, geometry.NewRect(100, 100, 300, 200), "aaaa bbbb cccc")

	plan, _ := p.Plan([]fields.Field{f}, []PageSize{{Width: 600, Height: 800}})

	require.Len(t, plan.Lines, 2)
	assert.Equal(t, "aaaa bbbb", plan.Lines[0].Text)
	assert.InDelta(t, 64.0, plan.Lines[0].X, 1e-9)
	assert.InDelta(t, 800-80-4-10, plan.Lines[0].Baseline, 1e-9)
	assert.InDelta(t, plan.Lines[0].Baseline-12, plan.Lines[1].Baseline, 1e-9)
	assert.InDelta(t, 45.0, plan.Lines[0].Width, 1e-9)
}

func TestPlan_InvertedRectMatchesNormalized(t *testing.T) {
	p := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger())
	pages := []PageSize{{Width: 600, Height: 800}}

	inverted, _ := p.Plan([]fields.Field{textField("f", 0, geometry.NewRect(300, 200, 100, 100), "hello world")}, pages)
	normal, _ := p.Plan([]fields.Field{textField("f", 0, geometry.NewRect(100, 100, 300, 200), "hello world")}, pages)

	assert.Equal(t, normal, inverted)
}

func TestPlan_BottomOfPageTruncation(t *testing.T) {
	p := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger())
	pages := []PageSize{{Width: 1000, Height: 100}}
	words := "aaaa bbbb cccc dddd"

	// Box top 30pt above the bottom: first baseline at 16, the next at 4.
	plan, report := p.Plan([]fields.Field{textField("low", 0, geometry.NewRect(700, 0, 1000, 30), words)}, pages)
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, 3, report.TruncatedLines)
	for _, line := range plan.Lines {
		assert.GreaterOrEqual(t, line.Baseline, DefaultLayout().BottomMargin)
	}

	// Box top 20pt above the bottom: nothing fits.
	plan, report = p.Plan([]fields.Field{textField("lower", 0, geometry.NewRect(800, 0, 1000, 30), words)}, pages)
	assert.True(t, plan.Empty())
	assert.Equal(t, 4, report.TruncatedLines)
	assert.Equal(t, 1, report.SkippedBy(SkipNoRoom))
}

func TestPlan_OutOfRangePageEqualsOmission(t *testing.T) {
	p := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger())
	pages := []PageSize{{Width: 600, Height: 800}, {Width: 600, Height: 800}}
	valid := textField("ok", 1, geometry.NewRect(100, 100, 200, 500), "present")

	for _, page := range []int{2, 17, -1} {
		bad := textField("bad", page, geometry.NewRect(100, 100, 200, 500), "dropped")

		with, report := p.Plan([]fields.Field{valid, bad}, pages)
		without, _ := p.Plan([]fields.Field{valid}, pages)

		assert.Equal(t, without, with)
		require.Len(t, report.Skipped, 1)
		assert.Equal(t, SkipPageOutOfRange, report.Skipped[0].Reason)
		assert.Equal(t, "bad", report.Skipped[0].FieldID)
	}
}

func TestPlan_NonFiniteRectSkipped(t *testing.T) {
	p := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger())
	pages := []PageSize{{Width: 600, Height: 800}}

	plan, report := p.Plan([]fields.Field{
		textField("nan", 0, geometry.NewRect(math.NaN(), 0, 100, 100), "x"),
		textField("inf", 0, geometry.NewRect(0, 0, math.Inf(1), 100), "y"),
		textField("ok", 0, geometry.NewRect(0, 0, 100, 100), "z"),
	}, pages)

	require.Len(t, plan.Lines, 1)
	assert.Equal(t, "ok", plan.Lines[0].FieldID)
	assert.Equal(t, 2, report.SkippedBy(SkipInvalidRect))
}

func TestPlan_EmptyValuesAndCheckboxes(t *testing.T) {
	r := geometry.NewRect(100, 100, 200, 300)
	pages := []PageSize{{Width: 600, Height: 800}}
	fs := []fields.Field{
		textField("empty", 0, r, ""),
		{ID: "ticked", Kind: fields.KindCheckbox, Value: fields.CheckboxChecked, Rect: r},
		{ID: "unticked", Kind: fields.KindCheckbox, Value: fields.CheckboxUnchecked, Rect: r},
	}

	plan, report := NewPlanner(DefaultLayout(), monoMeasurer(5), quietLogger()).Plan(fs, pages)
	require.Len(t, plan.Lines, 1)
	assert.Equal(t, "ticked", plan.Lines[0].FieldID)
	assert.Equal(t, "X", plan.Lines[0].Text)
	assert.Empty(t, report.Skipped)

	raw := DefaultLayout()
	raw.CheckMark = ""
	plan, _ = NewPlanner(raw, monoMeasurer(5), quietLogger()).Plan(fs, pages)
	require.Len(t, plan.Lines, 2)
	assert.Equal(t, "false", plan.Lines[1].Text)
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Layout)
		wantErr bool
	}{
		{"default", func(*Layout) {}, false},
		{"short hex ink", func(l *Layout) { l.Ink = "#f00" }, false},
		{"no font", func(l *Layout) { l.FontName = "" }, true},
		{"zero font size", func(l *Layout) { l.FontSize = 0 }, true},
		{"negative padding", func(l *Layout) { l.Padding = -1 }, true},
		{"zero line height", func(l *Layout) { l.LineHeight = 0 }, true},
		{"zero usable width", func(l *Layout) { l.MinUsableWidth = 0 }, true},
		{"bad ink", func(l *Layout) { l.Ink = "black" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLayout()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	l := DefaultLayout()
	l.Ink = "#FF0000"
	assert.Equal(t, "#ff0000", l.inkHex())
}

func TestCompose(t *testing.T) {
	src := testutil.BlankPDF(t, 2, 612, 792)
	original := append([]byte(nil), src...)

	c, err := New(DefaultLayout(), WithLogger(quietLogger()))
	require.NoError(t, err)

	t.Run("nothing to draw returns identical bytes", func(t *testing.T) {
		out, err := c.Compose(context.Background(), src, []fields.Field{
			textField("bad", 5, geometry.NewRect(100, 100, 200, 500), "dropped"),
		})
		require.NoError(t, err)
		assert.Equal(t, src, out.PDF)
		assert.Equal(t, 1, out.Report.SkippedBy(SkipPageOutOfRange))
	})

	t.Run("stamps values", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping stamping in short mode")
		}
		fs := []fields.Field{
			textField("name", 0, geometry.NewRect(100, 100, 150, 600), "Ada Lovelace"),
			textField("notes", 1, geometry.NewRect(500, 100, 600, 400), "First page of notes"),
		}
		out, err := c.Compose(context.Background(), src, fs)
		require.NoError(t, err)
		assert.NotEqual(t, src, out.PDF)
		assert.Equal(t, 2, out.Report.FieldsDrawn)

		pages, err := PageSizes(out.PDF, nil)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.InDelta(t, 612.0, pages[0].Width, 0.5)
		assert.InDelta(t, 792.0, pages[0].Height, 0.5)

		plan, _ := c.planner.Plan(fs, pages)
		require.NotEmpty(t, plan.Lines)
		for pageIndex, want := range plan.ByPage() {
			got := stampedLines(t, out.PDF, pageIndex+1)
			require.Len(t, got, len(want), "page %d", pageIndex)
			for i, line := range want {
				assert.Equal(t, line.Text, got[i].text)
				assert.InDelta(t, line.X, got[i].x, 0.01, "x of %q", line.Text)
				assert.InDelta(t, line.Baseline, got[i].baseline, 0.01, "baseline of %q", line.Text)
				assert.Equal(t, [3]float64{0, 0, 0}, got[i].ink)
			}
		}
	})

	assert.Equal(t, original, src, "source bytes must not be modified")
}

func TestCompose_InkColour(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stamping in short mode")
	}
	l := DefaultLayout()
	l.Ink = "#FF0000"
	c, err := New(l, WithLogger(quietLogger()))
	require.NoError(t, err)

	out, err := c.Compose(context.Background(), testutil.BlankPDF(t, 1, 612, 792), []fields.Field{
		textField("name", 0, geometry.NewRect(100, 100, 150, 600), "Red"),
	})
	require.NoError(t, err)

	got := stampedLines(t, out.PDF, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Red", got[0].text)
	assert.Equal(t, [3]float64{1, 0, 0}, got[0].ink)
}

func TestCompose_Deterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stamping in short mode")
	}
	src := testutil.BlankPDF(t, 2, 612, 792)
	c, err := New(DefaultLayout(), WithLogger(quietLogger()))
	require.NoError(t, err)

	drawn := []fields.Field{
		textField("name", 0, geometry.NewRect(100, 100, 150, 600), "Ada Lovelace"),
		textField("notes", 1, geometry.NewRect(500, 100, 600, 400), "First page of notes"),
		textField("city", 0, geometry.NewRect(200, 100, 250, 400), "London"),
	}
	withOutOfRange := append(append([]fields.Field(nil), drawn...),
		textField("bad", 5, geometry.NewRect(100, 100, 200, 500), "dropped"))

	tests := []struct {
		name string
		fs   []fields.Field
	}{
		{"same fields twice", drawn},
		{"out of range page included", withOutOfRange},
	}

	want, err := c.Compose(context.Background(), src, drawn)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compose(context.Background(), src, tt.fs)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(want.PDF, got.PDF), "output bytes differ")
		})
	}
}

// stampedText is one text stamp recovered from a page's content
type stampedText struct {
	text     string
	x        float64
	baseline float64
	ink      [3]float64
}

var (
	placeRe = regexp.MustCompile(`([-0-9.]+) ([-0-9.]+) cm /[^ ]+ gs /([^ ]+) Do`)
	formRe  = regexp.MustCompile(`([-0-9.]+) ([-0-9.]+) cm BT`)
	textRe  = regexp.MustCompile(`([0-9.]+) ([0-9.]+) ([0-9.]+) rg ([-0-9.]+) ([-0-9.]+) Td \d+ Tr \((.*?)\) Tj`)
)

// stampedLines decodes the text stamps drawn on a 1-based page, in drawing order
func stampedLines(t *testing.T, pdf []byte, pageNr int) []stampedText {
	t.Helper()

	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConfiguration())
	require.NoError(t, err)

	d, _, inh, err := ctx.PageDict(pageNr, true)
	require.NoError(t, err)
	content, err := ctx.PageContent(d, pageNr)
	require.NoError(t, err)

	xobjects, err := ctx.DereferenceDict(inh.Resources["XObject"])
	require.NoError(t, err)

	var out []stampedText
	for _, m := range placeRe.FindAllStringSubmatch(string(content), -1) {
		sd, _, err := ctx.DereferenceStreamDict(xobjects[m[3]])
		require.NoError(t, err)
		require.NotNil(t, sd, "form %s", m[3])
		require.NoError(t, sd.Decode())

		form := string(sd.Content)
		fm := formRe.FindStringSubmatch(form)
		require.NotNil(t, fm, "form %s has no placement", m[3])
		tm := textRe.FindStringSubmatch(form)
		require.NotNil(t, tm, "form %s has no text", m[3])

		out = append(out, stampedText{
			text:     tm[6],
			x:        num(t, m[1]) + num(t, fm[1]) + num(t, tm[4]),
			baseline: num(t, m[2]) + num(t, fm[2]) + num(t, tm[5]),
			ink:      [3]float64{num(t, tm[1]), num(t, tm[2]), num(t, tm[3])},
		})
	}
	return out
}

func num(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return f
}

func TestCompose_Failures(t *testing.T) {
	c, err := New(DefaultLayout(), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = c.Compose(context.Background(), []byte("not a pdf"), nil)
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypePDFGeneration))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Compose(ctx, []byte("%PDF-1.7"), nil)
	assert.ErrorIs(t, err, context.Canceled)

	bad := DefaultLayout()
	bad.FontSize = 0
	_, err = New(bad)
	assert.Error(t, err)
}
