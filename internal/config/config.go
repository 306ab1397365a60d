// Package config loads the gerberstack configuration file.
//
// The file is TOML. Every setting has a default, so a missing file is valid
// and yields the built-in behavior. A handful of environment variables
// override the file for container deployments:
//
//	GERBERSTACK_ADDR          server.addr
//	GERBERSTACK_RENDERER      render.backend
//	GERBERSTACK_RENDERER_URL  render.url
//	GERBERSTACK_HISTORY       history.backend
//	GERBERSTACK_REDIS_URL     history.redis_url
//	GERBERSTACK_MONGO_URI     history.mongo_uri
//
// Example:
//
//	[server]
//	addr = ":4000"
//	cors_origins = ["http://localhost:5173"]
//
//	[render]
//	backend = "http"
//	url = "http://renderer:8080/render"
//	timeout = "90s"
//
//	[layers]
//	allowed_exts = [".gtl", ".gbl", ".gtp", ".gbp", ".drl"]
//	default_format = "%FSLAX24Y24*%"
//
//	[history]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/gerber"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/pipeline"
	"github.com/stentech/gerberstack/pkg/render"
)

const appName = "gerberstack"

// Renderer backends.
const (
	RendererNode = "node"
	RendererHTTP = "http"
)

// Config is the complete configuration.
type Config struct {
	Server  ServerConfig   `toml:"server"`
	Render  RenderConfig   `toml:"render"`
	Layers  LayersConfig   `toml:"layers"`
	History history.Config `toml:"history"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	MaxUploadMB     int64         `toml:"max_upload_mb"`
	CORSOrigins     []string      `toml:"cors_origins"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// MaxUploadBytes returns the request body limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

// RenderConfig selects and configures the stackup renderer.
type RenderConfig struct {
	Backend  string        `toml:"backend"`
	NodeBin  string        `toml:"node_bin"`
	Script   string        `toml:"script"`
	NodePath string        `toml:"node_path"`
	WorkDir  string        `toml:"work_dir"`
	URL      string        `toml:"url"`
	BoardID  string        `toml:"board_id"`
	Timeout  time.Duration `toml:"timeout"`
}

// LayersConfig holds the extension policy and normalization settings.
type LayersConfig struct {
	layer.Policy
	gerber.Config
	MaxEntryMB int64 `toml:"max_entry_mb"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":4000",
			MaxUploadMB:     50,
			CORSOrigins:     []string{"http://localhost:5173"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    pipeline.DefaultTimeout + 30*time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Render: RenderConfig{
			Backend: RendererNode,
			NodeBin: "node",
			BoardID: pipeline.DefaultBoardID,
			Timeout: pipeline.DefaultTimeout,
		},
		Layers: LayersConfig{
			Policy:     layer.DefaultPolicy(),
			Config:     gerber.DefaultConfig(),
			MaxEntryMB: 64,
		},
		History: history.DefaultConfig(),
	}
}

// DefaultPath returns the XDG config file location
// (~/.config/gerberstack/config.toml).
func DefaultPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. An empty path loads DefaultPath if it exists; an
// explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		switch {
		case err == nil:
		case !explicit && stderrors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "load config %s", path)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"GERBERSTACK_ADDR", &c.Server.Addr},
		{"GERBERSTACK_RENDERER", &c.Render.Backend},
		{"GERBERSTACK_RENDERER_URL", &c.Render.URL},
		{"GERBERSTACK_HISTORY", &c.History.Backend},
		{"GERBERSTACK_REDIS_URL", &c.History.RedisURL},
		{"GERBERSTACK_MONGO_URI", &c.History.MongoURI},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return invalid("server.max_upload_mb must be positive")
	}
	switch c.Render.Backend {
	case RendererNode:
	case RendererHTTP:
		if c.Render.URL == "" {
			return invalid("render.url is required for the http backend")
		}
	default:
		return invalid("unknown render.backend %q (must be one of: node, http)", c.Render.Backend)
	}
	if err := errors.ValidateBoardID(c.Render.BoardID); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "render.board_id")
	}
	if err := c.Layers.Policy.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "layers")
	}
	if err := c.Layers.Config.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "layers.default_format")
	}
	if err := c.History.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "history")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidInput, format, args...)
}

// =============================================================================
// Component Factories
// =============================================================================

// Aggregator builds the layer aggregator for the configured policy.
func (c Config) Aggregator(logger *log.Logger) *aggregate.Aggregator {
	return aggregate.New(c.Layers.Policy,
		aggregate.WithLogger(logger),
		aggregate.WithNormalizer(gerber.NewNormalizer(c.Layers.Config)),
		aggregate.WithMaxEntrySize(c.Layers.MaxEntryMB<<20),
	)
}

// Renderer builds the configured renderer backend.
func (c Config) Renderer(logger *log.Logger) (render.Renderer, error) {
	switch c.Render.Backend {
	case RendererHTTP:
		r := render.NewHTTPRenderer(c.Render.URL)
		if c.Render.Timeout > 0 {
			r.Client.Timeout = c.Render.Timeout + 5*time.Second
		}
		return r, nil
	case RendererNode:
		return &render.NodeRenderer{
			Node:     c.Render.NodeBin,
			Script:   c.Render.Script,
			NodePath: c.Render.NodePath,
			WorkDir:  c.Render.WorkDir,
			Logger:   logger,
		}, nil
	default:
		return nil, invalid("unknown render.backend %q", c.Render.Backend)
	}
}

// Runner wires aggregator, renderer and history store into a pipeline runner.
// The caller owns the returned store and must close it.
func (c Config) Runner(ctx context.Context, logger *log.Logger) (*pipeline.Runner, history.Store, error) {
	r, err := c.Renderer(logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(ctx, c.History)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	runner := pipeline.NewRunner(c.Aggregator(logger), r, logger)
	runner.History = store
	return runner, store, nil
}

// PipelineOptions returns the per-request defaults from the render section.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		BoardID: c.Render.BoardID,
		Timeout: c.Render.Timeout,
	}
}
