package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	ferrors "github.com/a3tai/mcp-pdf-formfill/internal/errors"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

// DefaultPrompt asks a vision model for the page's data-entry fields
const DefaultPrompt = `Analyze this form page image and extract the data entry fields.
Rules:
1. Segmented fields: a field split into boxes (e.g. | | |) is ONE field.
2. Checkboxes: only mark square boxes as "checkbox". "Business name" is "text", "C Corp" is "checkbox".
3. Ignore noise: no fields for "Office Use Only" areas or page numbers.
4. No signatures: no fields for signatures, "Sign Here", "Signature of Applicant" or "By:" lines.
5. Types: set common_type to one of ssn, email, phone, date, name, address, zip when it applies.
6. When several fields answer one numbered question, set group_label to that number (e.g. "3").
7. Set section to the heading a field appears under, only on the first field of that section.

Respond with a JSON array only:
[{"label": "Social Security Number", "section": "Part 1", "group_label": "1", "type": "text",
  "common_type": "ssn", "required": true, "box_2d": [ymin, xmin, ymax, xmax]}]
box_2d values are on a 0-1000 scale with the origin at the top-left of the image.`

// LLMConfig selects and configures a vision model provider
type LLMConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// NewModel creates a langchaingo model for the configured provider
func NewModel(cfg LLMConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("vision model name is required")
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	case "anthropic":
		return anthropic.New(anthropic.WithModel(cfg.Model), anthropic.WithToken(cfg.APIKey))
	case "mistral":
		return mistral.New(mistral.WithModel(cfg.Model), mistral.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("unsupported vision LLM provider: %s", cfg.Provider)
	}
}

// VisionDetector asks a multimodal language model to locate fields
type VisionDetector struct {
	model     llms.Model
	provider  string
	prompt    string
	maxTokens int
	log       logrus.FieldLogger
}

// VisionOption configures a VisionDetector
type VisionOption func(*VisionDetector)

// WithPrompt replaces the default prompt
func WithPrompt(prompt string) VisionOption {
	return func(d *VisionDetector) { d.prompt = prompt }
}

// WithMaxTokens bounds the model response
func WithMaxTokens(n int) VisionOption {
	return func(d *VisionDetector) { d.maxTokens = n }
}

// WithProvider records the provider name, which selects how the image is attached
func WithProvider(name string) VisionOption {
	return func(d *VisionDetector) { d.provider = strings.ToLower(name) }
}

// WithVisionLogger sets the logger
func WithVisionLogger(log logrus.FieldLogger) VisionOption {
	return func(d *VisionDetector) { d.log = log }
}

// NewVisionDetector wraps a language model
func NewVisionDetector(model llms.Model, opts ...VisionOption) *VisionDetector {
	d := &VisionDetector{
		model:  model,
		prompt: DefaultPrompt,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Detector
func (d *VisionDetector) Name() string { return string(KindVision) }

// Detect implements Detector
func (d *VisionDetector) Detect(ctx context.Context, page raster.Page) ([]fields.Detection, error) {
	if len(page.Image) == 0 {
		return nil, ferrors.New(ferrors.ErrorTypeInvalidInput, "page has no image").WithPage(page.Index)
	}

	logger := d.log.WithFields(logrus.Fields{"page": page.Index, "provider": d.provider})

	// OpenAI-compatible APIs only accept images by URL.
	var imagePart llms.ContentPart
	if d.provider == "openai" || d.provider == "mistral" {
		imagePart = llms.ImageURLPart(page.DataURL())
	} else {
		imagePart = llms.BinaryPart("image/jpeg", page.Image)
	}

	callOpts := []llms.CallOption{llms.WithTemperature(0)}
	if d.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(d.maxTokens))
	}

	logger.Debug("Sending page to vision model")
	resp, err := d.model.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{imagePart, llms.TextPart(d.prompt)},
		},
	}, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("vision model request failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("vision model returned no choices")
	}

	detections, err := ParseDetections(resp.Choices[0].Content)
	if err != nil {
		logger.WithError(err).Debug("Unparseable vision model response")
		return nil, err
	}
	logger.WithField("count", len(detections)).Debug("Vision model returned detections")
	return detections, nil
}

var (
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// ParseDetections extracts a detection array from a model response. The
// array may be bare, wrapped in a markdown fence, surrounded by prose, or
// nested under a "fields" key.
func ParseDetections(text string) ([]fields.Detection, error) {
	text = strings.TrimSpace(thinkPattern.ReplaceAllString(text, ""))
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var detections []fields.Detection
	if err := json.Unmarshal([]byte(text), &detections); err == nil {
		return detections, nil
	}

	var wrapped struct {
		Fields []fields.Detection `json:"fields"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Fields != nil {
		return wrapped.Fields, nil
	}

	start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &detections); err == nil {
			return detections, nil
		}
	}

	return nil, fmt.Errorf("response is not a JSON array of fields: %.80q", text)
}
