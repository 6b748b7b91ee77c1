package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-pdf-formfill/internal/compositor"
	"github.com/a3tai/mcp-pdf-formfill/internal/detect"
	"github.com/a3tai/mcp-pdf-formfill/internal/raster"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultCacheSize   = 8
	DefaultSessionDir  = ".formfill-sessions"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_FORMFILL"
)

// LLMConfig selects the vision model used by the vision detector
type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// Config holds all configuration for the form-filling MCP server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Directories
	Directory        string // uploads and exports are confined here
	SessionDirectory string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum upload size in bytes

	// Rendering
	Raster    raster.Options
	CacheSize int

	// Detection
	Detector      string
	LLM           LLMConfig
	DetectTimeout time.Duration
	DetectRetries int

	// Export
	FontSize int
	Padding  float64
	Ink      string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	layout := compositor.DefaultLayout()
	pipeline := detect.DefaultPipelineOptions()

	return &Config{
		Mode:             ModeStdio, // Default to stdio mode for MCP compatibility
		Host:             DefaultHost,
		Port:             DefaultPort,
		Directory:        currentDir,
		SessionDirectory: filepath.Join(currentDir, DefaultSessionDir),
		Version:          "1.0.0",
		ServerName:       "mcp-pdf-formfill",
		LogLevel:         DefaultLogLevel,
		MaxFileSize:      DefaultMaxFileSize,
		Raster:           raster.DefaultOptions(),
		CacheSize:        DefaultCacheSize,
		Detector:         string(detect.KindAcroForm),
		LLM:              LLMConfig{Provider: "openai"},
		DetectTimeout:    pipeline.Timeout,
		DetectRetries:    pipeline.Retries,
		FontSize:         layout.FontSize,
		Padding:          layout.Padding,
		Ink:              layout.Ink,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)
	if cfg.SessionDirectory == "" && cfg.Directory != "" {
		cfg.SessionDirectory = filepath.Join(cfg.Directory, DefaultSessionDir)
	}

	// Expand paths if needed
	for _, p := range []*string{&cfg.Directory, &cfg.SessionDirectory} {
		if *p == "" {
			continue
		}
		if expandedPath, err := filepath.Abs(*p); err == nil {
			*p = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.Directory)
	viper.SetDefault("session-dir", "")
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("scale", cfg.Raster.Scale)
	viper.SetDefault("quality", cfg.Raster.Quality)
	viper.SetDefault("max-pages", cfg.Raster.MaxPages)
	viper.SetDefault("workers", cfg.Raster.Workers)
	viper.SetDefault("cache-size", cfg.CacheSize)
	viper.SetDefault("detector", cfg.Detector)
	viper.SetDefault("llm-provider", cfg.LLM.Provider)
	viper.SetDefault("llm-model", cfg.LLM.Model)
	viper.SetDefault("llm-key", cfg.LLM.APIKey)
	viper.SetDefault("llm-url", cfg.LLM.BaseURL)
	viper.SetDefault("detect-timeout", cfg.DetectTimeout)
	viper.SetDefault("detect-retries", cfg.DetectRetries)
	viper.SetDefault("font-size", cfg.FontSize)
	viper.SetDefault("padding", cfg.Padding)
	viper.SetDefault("ink", cfg.Ink)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.Directory, "Directory containing forms; file arguments are confined to it")
	pflag.String("session-dir", "", "Directory for saved form sessions (default <dir>/"+DefaultSessionDir+")")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum upload size in bytes")
	pflag.Float64("scale", cfg.Raster.Scale, "Page render scale (multiple of 72 DPI)")
	pflag.Int("quality", cfg.Raster.Quality, "JPEG quality of page renders (1-100)")
	pflag.Int("max-pages", cfg.Raster.MaxPages, "Maximum pages rendered per document")
	pflag.Int("workers", cfg.Raster.Workers, "Parallel page renderers")
	pflag.Int("cache-size", cfg.CacheSize, "Rendered documents kept in memory")
	pflag.String("detector", cfg.Detector, "Field detector: none, acroform or vision")
	pflag.String("llm-provider", cfg.LLM.Provider, "Vision LLM provider: openai, ollama, anthropic or mistral")
	pflag.String("llm-model", cfg.LLM.Model, "Vision LLM model name")
	pflag.String("llm-key", cfg.LLM.APIKey, "Vision LLM API key")
	pflag.String("llm-url", cfg.LLM.BaseURL, "Vision LLM base URL")
	pflag.Duration("detect-timeout", cfg.DetectTimeout, "Per-page detection timeout")
	pflag.Int("detect-retries", cfg.DetectRetries, "Detection retries per page")
	pflag.Int("font-size", cfg.FontSize, "Export font size in points")
	pflag.Float64("padding", cfg.Padding, "Export padding inside field boxes in points")
	pflag.String("ink", cfg.Ink, "Export text colour as hex")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	pflag.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Form Fill - A Model Context Protocol server for detecting and filling form fields\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                         "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/forms                    "+
			"# stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --detector=vision --llm-model=gpt-4o    "+
			"# detect fields with a vision model\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081 # server on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  Every option can be set as %s_<OPTION>, with '-' replaced by '_'\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  (for example %s_LLM_MODEL or %s_SESSION_DIR).\n", envPrefix, envPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.Directory = viper.GetString("dir")
	cfg.SessionDirectory = viper.GetString("session-dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Raster.Scale = viper.GetFloat64("scale")
	cfg.Raster.Quality = viper.GetInt("quality")
	cfg.Raster.MaxPages = viper.GetInt("max-pages")
	cfg.Raster.Workers = viper.GetInt("workers")
	cfg.CacheSize = viper.GetInt("cache-size")
	cfg.Detector = viper.GetString("detector")
	cfg.LLM.Provider = viper.GetString("llm-provider")
	cfg.LLM.Model = viper.GetString("llm-model")
	cfg.LLM.APIKey = viper.GetString("llm-key")
	cfg.LLM.BaseURL = viper.GetString("llm-url")
	cfg.DetectTimeout = viper.GetDuration("detect-timeout")
	cfg.DetectRetries = viper.GetInt("detect-retries")
	cfg.FontSize = viper.GetInt("font-size")
	cfg.Padding = viper.GetFloat64("padding")
	cfg.Ink = viper.GetString("ink")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.Directory == "" {
		return errors.New("form directory cannot be empty")
	}
	if c.SessionDirectory == "" {
		return errors.New("session directory cannot be empty")
	}
	for _, dir := range []string{c.Directory, c.SessionDirectory} {
		if err := ensureDir(dir); err != nil {
			return err
		}
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if err := c.Raster.Validate(); err != nil {
		return fmt.Errorf("invalid render options: %w", err)
	}
	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}

	kind, ok := detect.ParseKind(c.Detector)
	if !ok {
		return fmt.Errorf("invalid detector: %s (must be one of: none, acroform, vision)", c.Detector)
	}
	if kind == detect.KindVision && c.LLM.Model == "" {
		return errors.New("the vision detector requires an LLM model")
	}
	if c.DetectTimeout < 0 {
		return errors.New("detection timeout cannot be negative")
	}
	if c.DetectRetries < 0 {
		return errors.New("detection retries cannot be negative")
	}

	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid export layout: %w", err)
	}

	return nil
}

func ensureDir(dir string) error {
	// Create the directory if it doesn't exist
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Layout returns the export layout derived from the configuration
func (c *Config) Layout() compositor.Layout {
	l := compositor.DefaultLayout()
	l.FontSize = c.FontSize
	l.Padding = c.Padding
	l.Ink = c.Ink
	return l
}

// PipelineOptions returns the detection retry policy
func (c *Config) PipelineOptions() detect.PipelineOptions {
	opts := detect.DefaultPipelineOptions()
	opts.Timeout = c.DetectTimeout
	opts.Retries = c.DetectRetries
	return opts
}

// DetectorKind returns the configured detector
func (c *Config) DetectorKind() detect.Kind {
	kind, ok := detect.ParseKind(c.Detector)
	if !ok {
		return detect.KindNone
	}
	return kind
}

// LLMConfig returns the vision model configuration
func (c *Config) LLMConfig() detect.LLMConfig {
	return detect.LLMConfig{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	}
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration. The LLM key
// is never printed.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Directory: %s, SessionDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, Detector: %s, LLM: %s/%s}",
		c.Mode, c.Host, c.Port, c.Directory, c.SessionDirectory,
		c.LogLevel, c.MaxFileSize, c.Detector, c.LLM.Provider, c.LLM.Model)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
