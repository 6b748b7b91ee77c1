// Package document inspects uploaded files before any rendering or
// detection work is done on them.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
)

// ContentType summarizes what a document is made of
type ContentType string

const (
	ContentText          ContentType = "text"
	ContentScannedImages ContentType = "scanned_images"
	ContentMixed         ContentType = "mixed"
	ContentNone          ContentType = "no_content"
)

// minMeaningfulText is the shortest text layer considered real content
const minMeaningfulText = 50

// PageInfo describes one page
type PageInfo struct {
	Index      int     `json:"index"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	HasText    bool    `json:"has_text"`
	TextLength int     `json:"text_length"`
	ImageCount int     `json:"image_count"`
}

// Info is the result of inspecting a PDF
type Info struct {
	Pages       int         `json:"pages"`
	PageInfo    []PageInfo  `json:"page_info"`
	ContentType ContentType `json:"content_type"`
	ImageCount  int         `json:"image_count"`
	Size        int64       `json:"size"`
}

// NeedsVision reports whether the text layer is too thin for text-based work
func (i *Info) NeedsVision() bool {
	return i.ContentType == ContentScannedImages || i.ContentType == ContentNone
}

// Inspect reads page geometry with pdfcpu and the text layer with
// ledongthuc/pdf. A failing text layer degrades to "no text" rather than
// failing the inspection.
func Inspect(src []byte, log logrus.FieldLogger) (*Info, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	dims, err := api.PageDims(bytes.NewReader(src), conf)
	if err != nil {
		return nil, ferrors.DocumentParse(fmt.Errorf("read page dimensions: %w", err))
	}

	info := &Info{
		Pages:    len(dims),
		PageInfo: make([]PageInfo, len(dims)),
		Size:     int64(len(src)),
	}
	for i, d := range dims {
		info.PageInfo[i] = PageInfo{Index: i, Width: d.Width, Height: d.Height}
	}

	totalText := 0
	if err := scanTextLayer(src, info, &totalText); err != nil {
		log.WithError(err).Debug("Text layer unavailable")
	}

	for _, p := range info.PageInfo {
		info.ImageCount += p.ImageCount
	}
	info.ContentType = classify(totalText, info.ImageCount)
	return info, nil
}

func scanTextLayer(src []byte, info *Info, total *int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text layer parser panicked: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		return err
	}

	n := reader.NumPage()
	if n > len(info.PageInfo) {
		n = len(info.PageInfo)
	}
	for i := 0; i < n; i++ {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		info.PageInfo[i].ImageCount = countImages(page)

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		info.PageInfo[i].TextLength = len(text)
		info.PageInfo[i].HasText = text != ""
		*total += len(text)
	}
	return nil
}

func countImages(page pdf.Page) (count int) {
	defer func() {
		if recover() != nil {
			count = 0
		}
	}()

	resources := page.V.Key("Resources")
	if resources.IsNull() {
		return 0
	}
	xObjects := resources.Key("XObject")
	if xObjects.IsNull() || xObjects.Kind() != pdf.Dict {
		return 0
	}
	for _, key := range xObjects.Keys() {
		if xObjects.Key(key).Key("Subtype").Name() == "Image" {
			count++
		}
	}
	return count
}

func classify(textLength, images int) ContentType {
	switch {
	case textLength < minMeaningfulText && images > 0:
		return ContentScannedImages
	case textLength < minMeaningfulText:
		return ContentNone
	case images > 0:
		return ContentMixed
	default:
		return ContentText
	}
}
