package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/stentech/gerberstack/internal/config"
	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/pipeline"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output      string        // output path prefix; "-top.svg" and "-bottom.svg" are appended
	boardID     string        // board id passed to the renderer
	pasteColor  string        // CSS color for solder paste
	disable     []string      // layer names to skip
	configJSON  string        // path to a client config JSON file
	pick        bool          // choose layers interactively
	renderer    string        // backend override: node or http
	rendererURL string        // URL for the http backend
	timeout     time.Duration // renderer timeout
}

// renderCommand creates the render command for local files and archives.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOpts{output: "board"}

	cmd := &cobra.Command{
		Use:   "render <file-or-dir>...",
		Short: "Render Gerber files or ZIP archives to top and bottom SVGs",
		Long: `Render Gerber files or ZIP archives to top and bottom SVGs.

Arguments may be layer files, ZIP archives or directories (their files are
used, not recursively). Layers are recognized by extension; the first file
with a given name wins.

Examples:
  gerberstack render gerbers.zip
  gerberstack render top.gtl bottom.gbl paste.gtp --paste-color "#c0c0c0"
  gerberstack render ./fab --disable board.drl -o out/rev-b
  gerberstack render gerbers.zip --pick`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", opts.output, "output path prefix")
	cmd.Flags().StringVar(&opts.boardID, "board-id", "", "board id (overrides render.board_id)")
	cmd.Flags().StringVar(&opts.pasteColor, "paste-color", "", "CSS color for solder paste")
	cmd.Flags().StringSliceVar(&opts.disable, "disable", nil, "layer names to skip (repeatable)")
	cmd.Flags().StringVar(&opts.configJSON, "config-json", "", "layer config JSON file, as sent by the web client")
	cmd.Flags().BoolVar(&opts.pick, "pick", false, "choose layers interactively")
	cmd.Flags().StringVar(&opts.renderer, "renderer", "", "renderer backend: node or http (overrides render.backend)")
	cmd.Flags().StringVar(&opts.rendererURL, "renderer-url", "", "renderer URL for the http backend")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "renderer timeout (overrides render.timeout)")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, args []string, opts renderOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(&cfg); err != nil {
		return err
	}

	items, err := fileItems(args)
	if err != nil {
		return err
	}
	clientCfg, err := opts.clientConfig(logger.Warnf)
	if err != nil {
		return err
	}

	runner, store, err := c.newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.pick {
		set, err := runner.Aggregator.Discover(ctx, items)
		if err != nil {
			var empty *aggregate.EmptyLayerSetError
			if errors.As(err, &empty) {
				printWarnings(empty.Warnings)
			}
			return err
		}
		if clientCfg, err = pickLayers(ctx, set.Manifest, clientCfg); err != nil {
			return err
		}
	}

	pipeOpts := cfg.PipelineOptions()
	pipeOpts.Config = clientCfg
	pipeOpts.Source = sourceCLI
	pipeOpts.Logger = logger

	prog := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rendering %d input(s)...", len(items)))
	spinner.Start()
	res, err := runner.Execute(ctx, items, pipeOpts)
	spinner.Stop()
	if err != nil {
		if m := pipeline.ManifestOf(err); len(m) > 0 {
			fmt.Println(manifestTable(m, clientCfg))
		}
		return err
	}
	prog.done(fmt.Sprintf("Rendered %d layers", res.Stats.EnabledCount))

	fmt.Println(manifestTable(res.Manifest, clientCfg))
	printWarnings(res.Warnings)

	paths, err := writeSVGs(opts.output, res)
	if err != nil {
		return err
	}
	printSuccess("Rendered %s", layerSummary(res.Manifest))
	for _, p := range paths {
		printFile(p)
	}
	printRenderStats(res)
	return nil
}

// apply folds command-line overrides into cfg and revalidates it.
func (o renderOpts) apply(cfg *config.Config) error {
	if o.renderer != "" {
		cfg.Render.Backend = o.renderer
	}
	if o.rendererURL != "" {
		cfg.Render.URL = o.rendererURL
	}
	if o.boardID != "" {
		cfg.Render.BoardID = o.boardID
	}
	if o.timeout != 0 {
		cfg.Render.Timeout = o.timeout
	}
	return cfg.Validate()
}

// clientConfig builds the per-layer configuration from --config-json,
// --paste-color and --disable, in that order of precedence (later wins).
// A malformed JSON file is reported through warn and ignored, like a
// malformed config field on the API.
func (o renderOpts) clientConfig(warn func(string, ...any)) (layer.ClientConfig, error) {
	var cfg layer.ClientConfig
	if o.configJSON != "" {
		data, err := os.ReadFile(o.configJSON)
		if err != nil {
			return cfg, fmt.Errorf("read layer config: %w", err)
		}
		if cfg, err = layer.ParseClientConfig(data); err != nil {
			warn("Ignoring layer config %s: %v", o.configJSON, err)
		}
	}
	if o.pasteColor != "" {
		cfg.PasteColor = o.pasteColor
	}
	if len(o.disable) > 0 {
		cfg = cfg.Disable(o.disable...)
	}
	return cfg, nil
}

// writeSVGs writes the non-empty sides of res next to prefix.
func writeSVGs(prefix string, res *pipeline.Result) ([]string, error) {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	var paths []string
	for _, side := range []struct {
		name string
		svg  string
	}{
		{"top", res.TopSVG},
		{"bottom", res.BottomSVG},
	} {
		if side.svg == "" {
			continue
		}
		path := prefix + "-" + side.name + ".svg"
		if err := os.WriteFile(path, []byte(side.svg), 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		return nil, errors.New("renderer returned no SVG output")
	}
	return paths, nil
}
