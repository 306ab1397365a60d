package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/observability"
	"github.com/stentech/gerberstack/pkg/render"
	"github.com/stentech/gerberstack/pkg/svgpost"
)

// Runner executes render requests. It holds no per-request state.
type Runner struct {
	Aggregator *aggregate.Aggregator
	Renderer   render.Renderer
	History    history.Store
	Logger     *log.Logger
}

// NewRunner creates a runner. A nil aggregator uses the default layer policy;
// history is disabled until History is set.
func NewRunner(agg *aggregate.Aggregator, r render.Renderer, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if agg == nil {
		agg = aggregate.New(layer.DefaultPolicy(), aggregate.WithLogger(logger))
	}
	return &Runner{
		Aggregator: agg,
		Renderer:   r,
		History:    history.Null{},
		Logger:     logger,
	}
}

// Execute runs the complete aggregate → render → recolor pipeline for one
// upload batch.
//
// Errors carry a code from package errors: NO_INPUT_FILES for an empty batch,
// EMPTY_LAYER_SET (as *aggregate.EmptyLayerSetError) when nothing can be
// rendered, RENDER_FAILED (as *RenderFailedError) when the renderer fails.
// Every outcome is recorded in the runner's history store.
func (r *Runner) Execute(ctx context.Context, items []aggregate.Item, opts Options) (result *Result, err error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	rec := history.NewRecord(opts.BoardID, opts.Source)
	defer func() { r.record(ctx, rec, result, err) }()

	if len(items) == 0 {
		return nil, errors.New(errors.ErrCodeNoInputFiles, "no files uploaded")
	}

	// Stage 1: Aggregate
	set, err := r.Aggregate(ctx, items, opts.Config)
	if set != nil {
		rec.Manifest = set.Manifest
		rec.Enabled = len(set.Layers)
		rec.Warnings = len(set.Warnings)
		rec.AggregateTime = set.Duration
	}
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("aggregated layers",
		"recognized", len(set.Manifest),
		"enabled", len(set.Layers),
		"duration", set.Duration)

	result = &Result{
		Manifest: set.Manifest,
		Layers:   set.Names(),
		Warnings: set.Warnings,
		Stats: Stats{
			LayerCount:    len(set.Manifest),
			EnabledCount:  len(set.Layers),
			AggregateTime: set.Duration,
		},
	}

	// Stage 2: Render
	renderStart := time.Now()
	stackup, err := r.Render(ctx, set, opts)
	result.Stats.RenderTime = time.Since(renderStart)
	rec.RenderTime = result.Stats.RenderTime
	if err != nil {
		return nil, err
	}
	result.TopSVG = stackup.Top.SVG
	result.BottomSVG = stackup.Bottom.SVG
	opts.Logger.Info("rendered stackup",
		"renderer", render.Name(r.Renderer),
		"duration", result.Stats.RenderTime)

	// Stage 3: Recolor
	r.recolor(result, set, opts)
	return result, nil
}

// Aggregate runs the aggregation stage with hooks.
func (r *Runner) Aggregate(ctx context.Context, items []aggregate.Item, cfg layer.ClientConfig) (*aggregate.Set, error) {
	agg := r.Aggregator
	if agg == nil {
		agg = aggregate.New(layer.DefaultPolicy(), aggregate.WithLogger(r.logger()))
	}
	hooks := observability.Pipeline()
	hooks.OnAggregateStart(ctx, len(items))
	set, err := agg.Aggregate(ctx, items, cfg)
	if set != nil {
		hooks.OnAggregateComplete(ctx, len(set.Manifest), len(set.Layers), set.Duration, err)
	} else {
		hooks.OnAggregateComplete(ctx, 0, 0, 0, err)
	}
	return set, err
}

// Render makes exactly one renderer call for set. The call is bounded by
// opts.Timeout and every failure is returned as *RenderFailedError.
func (r *Runner) Render(ctx context.Context, set *aggregate.Set, opts Options) (*render.Stackup, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if r.Renderer == nil {
		return nil, &RenderFailedError{
			Manifest: set.Manifest,
			Cause:    errors.New(errors.ErrCodeUnsupported, "no renderer configured"),
		}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	layers := make([]render.Layer, len(set.Layers))
	for i, doc := range set.Layers {
		layers[i] = render.Layer{Filename: doc.Name, Content: strings.NewReader(doc.Content)}
	}

	name := render.Name(r.Renderer)
	hooks := observability.Pipeline()
	hooks.OnRenderStart(ctx, name, len(layers))
	start := time.Now()
	stackup, err := r.Renderer.Render(ctx, layers, render.Options{BoardID: opts.BoardID})
	hooks.OnRenderComplete(ctx, name, time.Since(start), err)

	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrap(errors.ErrCodeTimeout, err, "renderer did not finish within %s", opts.Timeout)
		}
		opts.Logger.Error("render failed", "renderer", name, "err", err)
		return nil, &RenderFailedError{Manifest: set.Manifest, Cause: err}
	}
	if stackup == nil {
		stackup = &render.Stackup{}
	}
	return stackup, nil
}

// recolor applies the requested paste color. An invalid color is dropped with
// a warning; a valid one is skipped when no paste layer was rendered.
func (r *Runner) recolor(result *Result, set *aggregate.Set, opts Options) {
	color := opts.Config.PasteColor
	if color == "" {
		return
	}
	if err := errors.ValidateColor(color); err != nil {
		opts.Logger.Warn("ignoring paste color", "color", color, "err", err)
		result.Warnings = append(result.Warnings, aggregate.Warning{
			Name:    "pasteColor",
			Code:    errors.ErrCodeInvalidColor,
			Message: err.Error(),
		})
		return
	}
	if !hasPaste(set) {
		opts.Logger.Debug("no paste layer rendered, skipping recolor")
		return
	}
	result.TopSVG = svgpost.RecolorPaste(result.TopSVG, color, opts.BoardID)
	result.BottomSVG = svgpost.RecolorPaste(result.BottomSVG, color, opts.BoardID)
	result.Recolored = true
}

func hasPaste(set *aggregate.Set) bool {
	for _, doc := range set.Layers {
		if doc.Type == layer.TypePaste {
			return true
		}
	}
	return false
}

// record stores the outcome of a request. Failures are logged only.
func (r *Runner) record(ctx context.Context, rec *history.Record, result *Result, err error) {
	if r.History == nil {
		return
	}
	if err != nil {
		rec.Outcome = string(errors.GetCode(err))
		if rec.Outcome == "" {
			rec.Outcome = string(errors.ErrCodeInternal)
		}
	} else if result != nil {
		rec.Warnings = len(result.Warnings)
	}
	storeErr := r.History.Add(context.WithoutCancel(ctx), rec)
	observability.History().OnRecord(ctx, history.Name(r.History), storeErr)
	if storeErr != nil {
		r.logger().Warn("failed to record render", "id", rec.ID, "err", storeErr)
	}
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.logger()
	}
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}
