// Command pdf_fill_form detects and fills form fields in local PDFs and
// images without an MCP client.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
)

// Globals are flags shared by every command
type Globals struct {
	Dir        string `short:"C" type:"path" help:"Directory that file arguments are confined to (defaults to the input's directory)"`
	SessionDir string `type:"path" help:"Directory for saved sessions (defaults to the user cache directory)"`
	Verbose    bool   `short:"V" help:"Log progress to stderr"`

	// out receives command output; stdout unless a test replaces it
	out io.Writer
}

type cli struct {
	Globals

	Inspect   InspectCmd   `cmd:"" help:"Report pages, text layer and interactive fields of a form"`
	Rasterize RasterizeCmd `cmd:"" help:"Render the pages of a form to JPEG files"`
	Detect    DetectCmd    `cmd:"" help:"Find the fillable fields of a form"`
	Fill      FillCmd      `cmd:"" help:"Write field values onto a copy of a form"`
}

func main() {
	var args cli
	ctx := kong.Parse(&args,
		kong.Name("pdf_fill_form"),
		kong.Description("Detect and fill form fields in PDF documents and scanned images."),
		kong.UsageOnError(),
	)
	args.out = os.Stdout
	ctx.FatalIfErrorf(ctx.Run(&args.Globals))
}

// newLogger logs to stderr, quietly unless verbose
func (g *Globals) newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if g.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// config builds an engine configuration confined to the directory of input
// unless --dir names another
func (g *Globals) config(input string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Directory = g.Dir
	if cfg.Directory == "" {
		cfg.Directory = filepath.Dir(input)
	}

	cfg.SessionDirectory = g.SessionDir
	if cfg.SessionDirectory == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("no session directory: %w", err)
		}
		cfg.SessionDirectory = filepath.Join(cacheDir, cfg.ServerName, "sessions")
	}
	return cfg, nil
}

// service validates cfg and creates the engine
func (g *Globals) service(cfg *config.Config) (*formfill.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return formfill.NewService(cfg, formfill.WithLogger(g.newLogger()))
}

func (g *Globals) writeJSON(v any) error {
	out := g.out
	if out == nil {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
