package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/a3tai/mcp-pdf-formfill/internal/config"
	"github.com/a3tai/mcp-pdf-formfill/internal/formfill"
	"github.com/a3tai/mcp-pdf-formfill/internal/logging"
	"github.com/a3tai/mcp-pdf-formfill/internal/mcp"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// run builds the service and serves until ctx ends or the transport closes
func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	service, err := formfill.NewService(cfg, formfill.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create form service: %w", err)
	}

	server, err := mcp.NewServer(cfg, service, log)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	log.WithFields(logrus.Fields{
		"mode":      cfg.Mode,
		"directory": cfg.Directory,
		"sessions":  cfg.SessionDirectory,
		"detector":  cfg.Detector,
	}).Info("Starting form fill server")

	return server.Run(ctx)
}

// wantsVersion reports whether a version flag is present
func wantsVersion(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

func main() {
	// Check for version flag before parsing other flags
	if wantsVersion(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	log.WithField("config", cfg.String()).Debug("Loaded configuration")

	// In stdio mode the parent process controls our lifecycle; signals only
	// matter for the HTTP server but are harmless for both.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Server error")
		stop()
		os.Exit(1)
	}
	log.Info("Server stopped successfully")
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP PDF Form Fill\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
