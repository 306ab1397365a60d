// Package cli implements the gerberstack command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/stentech/gerberstack/internal/config"
	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/buildinfo"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/pipeline"
	"github.com/stentech/gerberstack/pkg/render"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display and completion.
	appName = "gerberstack"

	// sourceCLI labels CLI runs in render history.
	sourceCLI = "cli"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string

	// renderer replaces the configured backend when set.
	renderer render.Renderer
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Gerberstack renders PCB Gerber uploads as stackup previews",
		Long: `Gerberstack collects Gerber layers from loose files and ZIP archives, classifies
them by extension, and renders top and bottom board previews through pcb-stackup.
It runs as an HTTP service (serve) or directly on local files (render, inspect).`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/gerberstack/config.toml)")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Factories
// =============================================================================

func (c *CLI) loadConfig() (config.Config, error) {
	return config.Load(c.configPath)
}

// newRunner wires a pipeline runner from cfg. The caller closes the store.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config, logger *log.Logger) (*pipeline.Runner, history.Store, error) {
	runner, store, err := cfg.Runner(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	if c.renderer != nil {
		runner.Renderer = c.renderer
	}
	return runner, store, nil
}

// =============================================================================
// Inputs
// =============================================================================

// fileItems turns command arguments into upload items. A directory
// contributes its regular files (not recursively) in name order.
func fileItems(args []string) ([]aggregate.Item, error) {
	var items []aggregate.Item
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if !info.IsDir() {
			items = append(items, aggregate.FileItem(filepath.Base(arg), arg))
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read input dir: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				items = append(items, aggregate.FileItem(e.Name(), filepath.Join(arg, e.Name())))
			}
		}
	}
	return items, nil
}
