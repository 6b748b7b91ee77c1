package detect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/intelligence"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

// PipelineOptions bounds each page's detection round trip
type PipelineOptions struct {
	Timeout time.Duration // per attempt; zero disables
	Retries int           // extra attempts after the first
	Backoff time.Duration // delay before the first retry, doubled per retry
}

// DefaultPipelineOptions returns the standard retry policy
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Timeout: 60 * time.Second,
		Retries: 2,
		Backoff: time.Second,
	}
}

// PageFailure records a page whose detection failed after all attempts
type PageFailure struct {
	PageIndex int    `json:"page_index"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

// Report summarizes a pipeline run
type Report struct {
	Detector       string         `json:"detector"`
	PagesAttempted int            `json:"pages_attempted"`
	FieldsAdded    int            `json:"fields_added"`
	Excluded       int            `json:"excluded_signatures"`
	Dropped        int            `json:"dropped_invalid"`
	Failed         []PageFailure  `json:"failed,omitempty"`
	Added          []fields.Field `json:"-"`
}

// Pipeline runs a detector over rendered pages in page order
type Pipeline struct {
	detector Detector
	opts     PipelineOptions
	log      logrus.FieldLogger
	sleep    func(ctx context.Context, d time.Duration) error
	typer    func(label string) string
}

// NewPipeline creates a pipeline
func NewPipeline(detector Detector, opts PipelineOptions, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Pipeline{detector: detector, opts: opts, log: log, sleep: sleepContext, typer: intelligence.InferType}
}

// Run detects fields page by page and appends them to store. A failed page is
// logged and skipped. Run returns a DetectionError only when no field was
// recovered and at least one page failed; cancellation of ctx aborts the run.
func (p *Pipeline) Run(ctx context.Context, pages []raster.Page, store *fields.Store) (*Report, error) {
	report := &Report{Detector: p.detector.Name()}
	var lastErr error

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.PagesAttempted++

		detections, attempts, err := p.detectPage(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			lastErr = err
			p.log.WithFields(logrus.Fields{"page": page.Index, "attempts": attempts}).
				WithError(err).Warn("Detection failed for page")
			report.Failed = append(report.Failed, PageFailure{PageIndex: page.Index, Attempts: attempts, Error: err.Error()})
			continue
		}

		p.inferTypes(detections)
		result := store.AddDetected(detections, page.Index)
		report.FieldsAdded += len(result.Added)
		report.Excluded += result.Excluded
		report.Dropped += result.Dropped
		report.Added = append(report.Added, result.Added...)
	}

	if report.FieldsAdded == 0 && len(report.Failed) > 0 {
		return report, ferrors.Wrap(ferrors.ErrorTypeDetection,
			"could not detect any fields in this document; try again or draw the fields by hand",
			fmt.Errorf("%d of %d pages failed: %w", len(report.Failed), report.PagesAttempted, lastErr))
	}
	return report, nil
}

// inferTypes fills in the semantic type of detections the detector left
// untyped, judging by their labels
func (p *Pipeline) inferTypes(detections []fields.Detection) {
	if p.typer == nil {
		return
	}
	for i := range detections {
		if detections[i].SemanticType == "" {
			detections[i].SemanticType = p.typer(detections[i].Label)
		}
	}
}

// detectPage calls the detector with a per-attempt timeout and retries with
// exponential backoff. It returns the number of attempts made.
func (p *Pipeline) detectPage(ctx context.Context, page raster.Page) ([]fields.Detection, int, error) {
	delay := p.opts.Backoff
	var err error

	for attempt := 1; attempt <= p.opts.Retries+1; attempt++ {
		var detections []fields.Detection
		detections, err = p.attempt(ctx, page)
		if err == nil {
			return detections, attempt, nil
		}
		if ctx.Err() != nil || attempt > p.opts.Retries {
			return nil, attempt, err
		}

		p.log.WithFields(logrus.Fields{"page": page.Index, "attempt": attempt}).
			WithError(err).Debug("Retrying detection")
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return nil, attempt, sleepErr
		}
		delay *= 2
	}
	return nil, p.opts.Retries + 1, err
}

func (p *Pipeline) attempt(ctx context.Context, page raster.Page) ([]fields.Detection, error) {
	if p.opts.Timeout <= 0 {
		return p.detector.Detect(ctx, page)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	detections, err := p.detector.Detect(attemptCtx, page)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeTimeout,
			fmt.Sprintf("detection timed out after %s", p.opts.Timeout), err).WithPage(page.Index)
	}
	return detections, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
