// Package testutil builds small PDF fixtures for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PNG returns a white w x h PNG
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// BlankPDF returns a PDF with the given number of blank w x h point pages.
// The test is skipped when pdfcpu cannot produce the fixture.
func BlankPDF(t testing.TB, pages, w, h int) []byte {
	t.Helper()

	imgs := make([]io.Reader, pages)
	for i := range imgs {
		imgs[i] = bytes.NewReader(PNG(t, w, h))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	conf := model.NewDefaultConfiguration()
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, imgs, imp, conf); err != nil {
		t.Skipf("cannot build PDF fixture: %v", err)
	}
	return buf.Bytes()
}
