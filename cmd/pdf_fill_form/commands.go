package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/fields"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
)

// InspectCmd prints what the engine knows about a form
type InspectCmd struct {
	Input string `arg:"" name:"input" type:"path" help:"Path to the form (PDF or image)"`
}

func (c *InspectCmd) Run(g *Globals) error {
	cfg, err := g.config(c.Input)
	if err != nil {
		return err
	}
	svc, err := g.service(cfg)
	if err != nil {
		return err
	}

	result, err := svc.Inspect(context.Background(), formfill.InspectRequest{Path: c.Input})
	if err != nil {
		return err
	}
	return g.writeJSON(result)
}

// RasterizeCmd writes each rendered page as <base>-<page>.jpg
type RasterizeCmd struct {
	Input    string  `arg:"" name:"input" type:"path" help:"Path to the form (PDF or image)"`
	Output   string  `short:"o" type:"path" help:"Directory for the page images (defaults to the input's directory)"`
	BaseName string  `short:"n" help:"Base name of saved images (defaults to the input's name)"`
	Scale    float64 `short:"s" default:"2" help:"Render scale (multiple of 72 DPI)"`
	Quality  int     `short:"q" default:"85" help:"JPEG quality"`
	MaxPages int     `default:"50" help:"Maximum pages rendered"`
}

func (c *RasterizeCmd) Run(g *Globals) error {
	cfg, err := g.config(c.Input)
	if err != nil {
		return err
	}
	cfg.Raster.Scale = c.Scale
	cfg.Raster.Quality = c.Quality
	cfg.Raster.MaxPages = c.MaxPages
	svc, err := g.service(cfg)
	if err != nil {
		return err
	}

	result, err := svc.Rasterize(context.Background(), formfill.RasterizeRequest{Path: c.Input, IncludeImages: true})
	if err != nil {
		return err
	}

	outDir := c.Output
	if outDir == "" {
		outDir = filepath.Dir(c.Input)
	}
	if err := os.MkdirAll(outDir, config.DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := c.BaseName
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(c.Input), filepath.Ext(c.Input))
	}

	written := make([]string, 0, len(result.Pages))
	for i := range result.Pages {
		page := &result.Pages[i]
		data, err := decodeDataURL(page.DataURL)
		if err != nil {
			return fmt.Errorf("page %d: %w", page.Index+1, err)
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s-%d.jpg", base, page.Index+1))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
		page.DataURL = ""
	}

	return g.writeJSON(struct {
		*formfill.RasterizeResult
		Files []string `json:"files"`
	}{result, written})
}

// DetectCmd prints the detected fields, optionally saving them as a session
type DetectCmd struct {
	Input    string `arg:"" name:"input" type:"path" help:"Path to the form (PDF or image)"`
	Detector string `short:"d" default:"acroform" enum:"none,acroform,vision" help:"Field detector"`
	Session  string `short:"s" help:"Save the fields and the document as this session"`

	Provider string        `name:"llm-provider" default:"openai" enum:"openai,ollama,anthropic,mistral" env:"MCP_FORMFILL_LLM_PROVIDER" help:"Vision model provider"`
	Model    string        `name:"llm-model" env:"MCP_FORMFILL_LLM_MODEL" help:"Vision model name"`
	Key      string        `name:"llm-key" env:"MCP_FORMFILL_LLM_KEY" help:"Vision model API key"`
	URL      string        `name:"llm-url" env:"MCP_FORMFILL_LLM_URL" help:"Vision model base URL"`
	Timeout  time.Duration `default:"60s" help:"Per-page detection timeout"`
	Retries  int           `default:"2" help:"Detection retries per page"`
}

func (c *DetectCmd) Run(g *Globals) error {
	cfg, err := g.config(c.Input)
	if err != nil {
		return err
	}
	cfg.Detector = c.Detector
	cfg.LLM = config.LLMConfig{Provider: c.Provider, Model: c.Model, APIKey: c.Key, BaseURL: c.URL}
	cfg.DetectTimeout = c.Timeout
	cfg.DetectRetries = c.Retries
	svc, err := g.service(cfg)
	if err != nil {
		return err
	}

	result, err := svc.Detect(context.Background(), formfill.DetectRequest{
		Path:      c.Input,
		Detector:  c.Detector,
		SessionID: c.Session,
	})
	if err != nil {
		return err
	}
	return g.writeJSON(result)
}

// FillCmd writes values onto a copy of the form
type FillCmd struct {
	Input    string  `arg:"" name:"input" type:"path" help:"Path to the form (PDF or image)"`
	Fields   string  `short:"f" type:"path" help:"JSON file with the fields and their values"`
	Session  string  `short:"s" help:"Session providing the fields"`
	Output   string  `short:"o" type:"path" help:"Path of the filled PDF (defaults to <input>_filled.pdf)"`
	FontSize int     `default:"12" help:"Font size in points"`
	Padding  float64 `default:"2" help:"Padding inside field boxes in points"`
	Ink      string  `default:"#000000" help:"Text colour as hex"`
}

func (c *FillCmd) Run(g *Globals) error {
	if c.Fields == "" && c.Session == "" {
		return fmt.Errorf("either --fields or --session is required")
	}

	cfg, err := g.config(c.Input)
	if err != nil {
		return err
	}
	cfg.FontSize = c.FontSize
	cfg.Padding = c.Padding
	cfg.Ink = c.Ink
	svc, err := g.service(cfg)
	if err != nil {
		return err
	}

	req := formfill.FillRequest{Path: c.Input, SessionID: c.Session, OutputPath: c.Output}
	if c.Fields != "" {
		req.Fields, err = readFields(c.Fields)
		if err != nil {
			return err
		}
	}

	result, err := svc.Fill(context.Background(), req)
	if err != nil {
		return err
	}
	return g.writeJSON(result)
}

// readFields loads a field list, bare or under a "fields" key as written by
// the detect command
func readFields(path string) ([]fields.Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields: %w", err)
	}

	var list []fields.Field
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Fields []fields.Field `json:"fields"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid fields file %s: %w", path, err)
	}
	return wrapped.Fields, nil
}

func decodeDataURL(url string) ([]byte, error) {
	i := strings.Index(url, ";base64,")
	if !strings.HasPrefix(url, "data:") || i < 0 {
		return nil, fmt.Errorf("not a base64 data URL")
	}
	return base64.StdEncoding.DecodeString(url[i+len(";base64,"):])
}
