// Package raster renders document pages to JPEG images for detection and
// on-screen editing.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"runtime"

	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/mcp-pdf-formfill/internal/cache"
	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
)

const (
	// DefaultScale renders at 144 DPI
	DefaultScale = 2.0
	// DefaultQuality is the JPEG quality of rendered pages
	DefaultQuality = 80
	// DefaultMaxPages bounds the pages rendered per document
	DefaultMaxPages = 50

	pointsPerInch = 72.0
)

// Options controls rendering
type Options struct {
	Scale    float64 // multiple of 72 DPI
	Quality  int     // JPEG quality 1..100
	MaxPages int
	Workers  int
	// MaxEdge downsamples pages whose longer side exceeds it, in pixels.
	// Zero disables downsampling.
	MaxEdge int
}

// DefaultOptions returns the standard rendering options
func DefaultOptions() Options {
	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	return Options{
		Scale:    DefaultScale,
		Quality:  DefaultQuality,
		MaxPages: DefaultMaxPages,
		Workers:  workers,
	}
}

// Validate checks the options
func (o Options) Validate() error {
	if o.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", o.Scale)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", o.Quality)
	}
	if o.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive, got %d", o.MaxPages)
	}
	if o.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	}
	if o.MaxEdge < 0 {
		return fmt.Errorf("max edge cannot be negative, got %d", o.MaxEdge)
	}
	return nil
}

// Page is one rendered page
type Page struct {
	Index       int     `json:"index"`
	Image       []byte  `json:"-"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	PointWidth  float64 `json:"point_width"`
	PointHeight float64 `json:"point_height"`
}

// DataURL returns the image as a data URL
func (p Page) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(p.Image)
}

// PageFailure records a page that could not be rendered
type PageFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Result holds the rendered pages in page order
type Result struct {
	Pages      []Page        `json:"pages"`
	TotalPages int           `json:"total_pages"`
	Truncated  int           `json:"truncated"`
	Failed     []PageFailure `json:"failed,omitempty"`
}

// Rasterizer renders documents with a fixed set of options
type Rasterizer struct {
	opts  Options
	cache *cache.LRU[*Result]
	log   logrus.FieldLogger
}

// New creates a rasterizer. cacheSize 0 disables result caching.
func New(opts Options, cacheSize int, log logrus.FieldLogger) (*Rasterizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid raster options: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Rasterizer{opts: opts, log: log}
	if cacheSize > 0 {
		r.cache = cache.New[*Result](cacheSize)
	}
	return r, nil
}

// Options returns the rasterizer's options
func (r *Rasterizer) Options() Options {
	return r.opts
}

// CacheStats reports cache effectiveness. ok is false when caching is disabled.
func (r *Rasterizer) CacheStats() (cache.Stats, bool) {
	if r.cache == nil {
		return cache.Stats{}, false
	}
	return r.cache.Stats(), true
}

// Rasterize renders up to MaxPages pages of a PDF. Pages beyond the cap are
// counted in Result.Truncated. Individual page failures are recorded in
// Result.Failed; the call fails with a DocumentParseError only when the
// document cannot be opened or no page renders.
func (r *Rasterizer) Rasterize(ctx context.Context, src []byte) (*Result, error) {
	if r.cache == nil {
		return r.rasterize(ctx, src)
	}
	return r.cache.GetOrLoadContext(ctx, cache.Key(src), func(ctx context.Context) (*Result, error) {
		return r.rasterize(ctx, src)
	})
}

func (r *Rasterizer) rasterize(ctx context.Context, src []byte) (*Result, error) {
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		return nil, ferrors.DocumentParse(err)
	}
	total := doc.NumPage()
	doc.Close()

	if total <= 0 {
		return nil, ferrors.DocumentParse(errors.New("document has no pages"))
	}

	n := total
	if n > r.opts.MaxPages {
		n = r.opts.MaxPages
	}
	workers := r.opts.Workers
	if workers > n {
		workers = n
	}

	pages := make([]*Page, n)
	failures := make([]error, n)

	// Each worker owns a document handle; fitz serializes calls per handle.
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		first := w
		g.Go(func() error {
			d, err := fitz.NewFromMemory(src)
			if err != nil {
				return ferrors.DocumentParse(err)
			}
			defer d.Close()

			for i := first; i < n; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				page, err := r.renderPage(d, i)
				if err != nil {
					failures[i] = err
					continue
				}
				pages[i] = page
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{TotalPages: total, Truncated: total - n}
	for i := 0; i < n; i++ {
		if failures[i] != nil {
			r.log.WithFields(logrus.Fields{"page": i}).WithError(failures[i]).Warn("Page render failed")
			result.Failed = append(result.Failed, PageFailure{Index: i, Error: failures[i].Error()})
			continue
		}
		result.Pages = append(result.Pages, *pages[i])
	}

	if len(result.Pages) == 0 {
		return nil, ferrors.DocumentParse(fmt.Errorf("none of %d pages could be rendered", n))
	}
	if result.Truncated > 0 {
		r.log.WithFields(logrus.Fields{"total": total, "rendered": n}).Warn("Page limit reached, remaining pages skipped")
	}
	return result, nil
}

func (r *Rasterizer) renderPage(d *fitz.Document, i int) (*Page, error) {
	bounds, err := d.Bound(i)
	if err != nil {
		return nil, fmt.Errorf("page %d bounds: %w", i, err)
	}

	img, err := d.ImageDPI(i, pointsPerInch*r.opts.Scale)
	if err != nil {
		return nil, fmt.Errorf("page %d render: %w", i, err)
	}

	var out image.Image = img
	if r.opts.MaxEdge > 0 {
		out = downsample(img, r.opts.MaxEdge)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		return nil, fmt.Errorf("page %d encode: %w", i, err)
	}

	size := out.Bounds().Size()
	return &Page{
		Index:       i,
		Image:       buf.Bytes(),
		Width:       size.X,
		Height:      size.Y,
		PointWidth:  float64(bounds.Dx()),
		PointHeight: float64(bounds.Dy()),
	}, nil
}

// downsample scales img so that its longer side is at most maxEdge
func downsample(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if longest <= maxEdge {
		return img
	}

	ratio := float64(maxEdge) / float64(longest)
	w := int(float64(b.Dx())*ratio + 0.5)
	h := int(float64(b.Dy())*ratio + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
