package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
)

// SourceKind identifies what a caller uploaded
type SourceKind string

const (
	SourcePDF   SourceKind = "pdf"
	SourceImage SourceKind = "image"
)

// imageJPEGQuality is used when re-encoding uploaded images into a PDF
const imageJPEGQuality = 90

var pdfMagic = []byte("%PDF-")

// Prepare returns src as PDF bytes. Images are converted to a one-page PDF so
// that they flow through the same pipeline as documents.
func Prepare(src []byte) ([]byte, SourceKind, error) {
	if IsPDF(src) {
		return src, SourcePDF, nil
	}

	if _, format, err := image.DecodeConfig(bytes.NewReader(src)); err != nil {
		return nil, "", ferrors.New(ferrors.ErrorTypeInvalidInput,
			"unsupported file type: expected a PDF or an image").WithContext(err.Error())
	} else if format == "" {
		return nil, "", ferrors.New(ferrors.ErrorTypeInvalidInput, "unrecognized image format")
	}

	pdf, err := ImageToPDF(src)
	if err != nil {
		return nil, "", err
	}
	return pdf, SourceImage, nil
}

// IsPDF reports whether data starts with the PDF header, ignoring leading
// whitespace some producers emit.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n\x00"), pdfMagic)
}

// ImageToPDF converts a PNG, JPEG, GIF or WebP image into a single-page PDF
// whose page size in points equals the image size in pixels. Transparent
// areas become white.
func ImageToPDF(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, ferrors.DocumentParse(fmt.Errorf("decode image: %w", err))
	}

	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, flat, &jpeg.Options{Quality: imageJPEGQuality}); err != nil {
		return nil, ferrors.DocumentParse(fmt.Errorf("encode image: %w", err))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	conf := model.NewDefaultConfiguration()
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, []io.Reader{&jpg}, imp, conf); err != nil {
		return nil, ferrors.DocumentParse(fmt.Errorf("build PDF from image: %w", err))
	}
	return out.Bytes(), nil
}
