package document

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/testutil"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   int
		images int
		want   ContentType
	}{
		{"nothing", 0, 0, ContentNone},
		{"short text only", 10, 0, ContentNone},
		{"scan", 0, 3, ContentScannedImages},
		{"scan with stray text", 20, 1, ContentScannedImages},
		{"text", 500, 0, ContentText},
		{"text and images", 500, 2, ContentMixed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.text, tt.images))
		})
	}
}

func TestInspect_BlankScan(t *testing.T) {
	src := testutil.BlankPDF(t, 2, 612, 792)

	info, err := Inspect(src, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, info.Pages)
	require.Len(t, info.PageInfo, 2)
	assert.InDelta(t, 612, info.PageInfo[0].Width, 1)
	assert.InDelta(t, 792, info.PageInfo[0].Height, 1)
	assert.False(t, info.PageInfo[1].HasText)
	assert.True(t, info.NeedsVision())
	assert.Equal(t, int64(len(src)), info.Size)
}

func TestInspect_NotAPDF(t *testing.T) {
	_, err := Inspect([]byte("hello"), quietLogger())
	require.Error(t, err)
	assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeDocumentParse))
}

func TestValidator_ValidateBytes(t *testing.T) {
	v := NewValidator(1024)
	png := testutil.PNG(t, 4, 4)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"empty", nil, true},
		{"pdf header", []byte("%PDF-1.7\n"), false},
		{"png", png, false},
		{"text", []byte("just some text"), true},
		{"too large", append([]byte("%PDF-1.7\n"), make([]byte, 2048)...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateBytes(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ferrors.IsType(err, ferrors.ErrorTypeInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidator_ReadFile(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator(1024)

	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o600))
		return p
	}

	good := write("form.pdf", []byte("%PDF-1.4\n%%EOF"))
	wrongExt := write("notes.txt", []byte("%PDF-1.4\n"))
	empty := write("empty.pdf", nil)
	fake := write("fake.png", []byte("not an image"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.pdf"), 0o750))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid", good, false},
		{"empty path", "", true},
		{"missing", filepath.Join(dir, "missing.pdf"), true},
		{"wrong extension", wrongExt, true},
		{"empty file", empty, true},
		{"directory", filepath.Join(dir, "folder.pdf"), true},
		{"bad magic", fake, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := v.ReadFile(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})
	}
}
