// Package pipeline runs one render request end to end.
//
// This package implements the aggregate → render → recolor pipeline shared by
// the CLI and the HTTP API, so both entry points report the same manifest,
// warnings and error codes for the same upload.
//
// # Stages
//
//  1. Aggregate: expand archives, normalize and classify layers, apply the
//     client's enable/disable choices (see package aggregate)
//  2. Render: exactly one call to the configured [render.Renderer], bounded by
//     Options.Timeout
//  3. Recolor: when a paste color was requested and paste layers were
//     rendered, restyle the paste group in both SVGs
//
// # Usage
//
//	runner := pipeline.NewRunner(agg, renderer, logger)
//	result, err := runner.Execute(ctx, items, pipeline.Options{Config: cfg})
//	if err != nil {
//	    var empty *aggregate.EmptyLayerSetError
//	    if errors.As(err, &empty) {
//	        // show empty.Manifest so the user can re-enable layers
//	    }
//	}
//
// Nothing is cached between calls. A Runner holds only its collaborators and
// may be shared by concurrent requests.
package pipeline

import (
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/render"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultBoardID namespaces the renderer's CSS classes.
	DefaultBoardID = render.DefaultBoardID

	// DefaultTimeout bounds the renderer call.
	DefaultTimeout = 2 * time.Minute
)

// =============================================================================
// Options - Request Configuration
// =============================================================================

// Options configures one pipeline run.
type Options struct {
	// BoardID is passed to the renderer and determines the paste class name.
	BoardID string `json:"board_id,omitempty"`

	// Config holds the client's per-layer choices and paste color.
	Config layer.ClientConfig `json:"config"`

	// Timeout bounds the renderer call. Zero means DefaultTimeout; a negative
	// value disables the bound.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Source labels the entry point in history records ("api", "cli").
	Source string `json:"-"`

	Logger *log.Logger `json:"-"`

	validated bool
}

// ValidateAndSetDefaults applies defaults and checks the board id.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.BoardID == "" {
		o.BoardID = DefaultBoardID
	}
	if err := errors.ValidateBoardID(o.BoardID); err != nil {
		return err
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Source == "" {
		o.Source = "lib"
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// =============================================================================
// Results
// =============================================================================

// Result contains the outputs of a successful run.
type Result struct {
	// TopSVG and BottomSVG are the (possibly recolored) renderer outputs.
	// Either may be empty.
	TopSVG    string
	BottomSVG string

	// Manifest lists every recognized layer, enabled or not.
	Manifest layer.Manifest

	// Layers names the layers that were rendered, in order.
	Layers []string

	// Warnings lists absorbed per-item problems and ignored options.
	Warnings []aggregate.Warning

	// Recolored reports whether a paste style was injected.
	Recolored bool

	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	LayerCount    int
	EnabledCount  int
	AggregateTime time.Duration
	RenderTime    time.Duration
}

// RenderFailedError reports a renderer failure. It carries the manifest so
// callers can still show what was uploaded.
type RenderFailedError struct {
	Manifest layer.Manifest
	Cause    error
}

// Error implements the error interface.
func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Cause)
}

// Unwrap returns the underlying renderer error.
func (e *RenderFailedError) Unwrap() error {
	return e.Cause
}

// Code returns the error code for this error type.
func (e *RenderFailedError) Code() errors.Code {
	return errors.ErrCodeRenderFailed
}

// ManifestOf returns the manifest attached to a pipeline error, if any.
func ManifestOf(err error) layer.Manifest {
	var empty *aggregate.EmptyLayerSetError
	if stderrors.As(err, &empty) {
		return empty.Manifest
	}
	var failed *RenderFailedError
	if stderrors.As(err, &failed) {
		return failed.Manifest
	}
	return nil
}
