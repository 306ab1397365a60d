// Package aggregate turns an upload batch into the layer set fed to the
// renderer and the discovery manifest shown to clients.
//
// # Processing
//
// Items are visited in upload order. An item with an archive extension is
// expanded and each accepted entry becomes a candidate named by its base name.
// An item with a layer extension is itself a candidate named by its filename.
// Anything else is ignored without error.
//
// Every candidate is recorded in the manifest once per distinct name (the
// first occurrence decides the type). Enabled candidates are read, normalized
// and appended to the render set; the first readable occurrence of a name
// supplies its content and later duplicates are dropped.
//
// # Failure policy
//
// Per-item failures never abort a batch. An archive that cannot be opened
// contributes nothing (ARCHIVE_UNREADABLE); a layer that cannot be read is
// skipped (FILE_UNREADABLE). Both are logged and returned as [Warning] values.
// Only an empty result is fatal: [EmptyLayerSetError] carries the manifest so
// callers can show what was found.
package aggregate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stentech/gerberstack/pkg/archive"
	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/gerber"
	"github.com/stentech/gerberstack/pkg/layer"
)

// Set is the outcome of one aggregation pass.
type Set struct {
	// Layers holds the enabled documents in discovery order.
	Layers []layer.Document

	// Manifest lists every recognized layer, enabled or not.
	Manifest layer.Manifest

	// Warnings records the per-item failures that were absorbed.
	Warnings []Warning

	// Duration is the wall time spent aggregating.
	Duration time.Duration
}

// Names returns the names of the enabled layers in render order.
func (s *Set) Names() []string {
	names := make([]string, len(s.Layers))
	for i, doc := range s.Layers {
		names[i] = doc.Name
	}
	return names
}

// Warning is a recovered per-item failure.
type Warning struct {
	Name    string      `json:"name"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// EmptyLayerSetError reports that aggregation produced nothing to render.
type EmptyLayerSetError struct {
	Manifest layer.Manifest
	Warnings []Warning
}

// Error implements the error interface.
func (e *EmptyLayerSetError) Error() string {
	if len(e.Manifest) == 0 {
		return "no recognized Gerber/Excellon files found in the upload; " +
			"if you used a ZIP, ensure it contains .gtp/.gbr/.gtl/etc. files"
	}
	return fmt.Sprintf("none of the %d recognized layers is enabled or readable; "+
		"enable at least one layer and try again", len(e.Manifest))
}

// Code returns the error code for this error type.
func (e *EmptyLayerSetError) Code() errors.Code {
	return errors.ErrCodeEmptyLayerSet
}

// Aggregator builds layer sets. It holds only immutable policy and is safe for
// concurrent use; no state is carried between calls.
type Aggregator struct {
	policy     layer.Policy
	normalizer *gerber.Normalizer
	expander   *archive.Expander
	logger     *log.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for absorbed failures.
func WithLogger(l *log.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithNormalizer replaces the default format normalizer.
func WithNormalizer(n *gerber.Normalizer) Option {
	return func(a *Aggregator) {
		if n != nil {
			a.normalizer = n
		}
	}
}

// WithMaxEntrySize caps the bytes read from a single archive entry.
func WithMaxEntrySize(n int64) Option {
	return func(a *Aggregator) { a.expander.MaxEntrySize = n }
}

// New creates an aggregator for the given extension policy.
func New(policy layer.Policy, opts ...Option) *Aggregator {
	a := &Aggregator{
		policy:     policy,
		normalizer: gerber.NewNormalizer(gerber.DefaultConfig()),
		logger:     log.New(io.Discard),
	}
	a.expander = archive.NewExpander(policy.IsAllowed)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the extension policy in use.
func (a *Aggregator) Policy() layer.Policy {
	return a.policy
}

// Aggregate processes items against cfg. On success the returned set has at
// least one layer. When nothing can be rendered the error is an
// *EmptyLayerSetError and the returned set still carries the manifest.
func (a *Aggregator) Aggregate(ctx context.Context, items []Item, cfg layer.ClientConfig) (*Set, error) {
	start := time.Now()
	p := newPass(a, cfg, true)
	if err := p.run(ctx, items); err != nil {
		return nil, err
	}
	set := p.set
	set.Duration = time.Since(start)

	if len(set.Layers) == 0 {
		return set, &EmptyLayerSetError{Manifest: set.Manifest, Warnings: set.Warnings}
	}
	a.logger.Debug("aggregated layers",
		"recognized", len(set.Manifest),
		"enabled", len(set.Layers),
		"warnings", len(set.Warnings),
		"duration", set.Duration)
	return set, nil
}

// Discover builds only the manifest. Loose files are never read; archives are
// opened to list their entries.
func (a *Aggregator) Discover(ctx context.Context, items []Item) (*Set, error) {
	start := time.Now()
	p := newPass(a, layer.ClientConfig{}, false)
	if err := p.run(ctx, items); err != nil {
		return nil, err
	}
	p.set.Duration = time.Since(start)
	if len(p.set.Manifest) == 0 {
		return p.set, &EmptyLayerSetError{Warnings: p.set.Warnings}
	}
	return p.set, nil
}

// pass is the per-call state of one aggregation.
type pass struct {
	a        *Aggregator
	cfg      layer.ClientConfig
	read     bool
	set      *Set
	seen     map[string]layer.Type
	rendered map[string]bool
}

func newPass(a *Aggregator, cfg layer.ClientConfig, read bool) *pass {
	return &pass{
		a:        a,
		cfg:      cfg,
		read:     read,
		set:      &Set{},
		seen:     make(map[string]layer.Type),
		rendered: make(map[string]bool),
	}
}

func (p *pass) run(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case p.a.policy.IsArchive(item.Name):
			p.expand(item)
		case p.a.policy.IsAllowed(item.Name):
			p.candidate(item.Name, item.read)
		default:
			p.a.logger.Debug("ignoring unrecognized upload", "file", item.Name)
		}
	}
	return nil
}

func (p *pass) expand(item Item) {
	data, err := item.read()
	if err != nil {
		p.warn(item.Name, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "read archive %s", item.Name))
		return
	}
	entries, err := p.a.expander.Expand(data)
	if err != nil {
		p.warn(item.Name, errors.Wrap(errors.ErrCodeArchiveUnreadable, err, "failed to unzip %s", item.Name))
		return
	}
	p.a.logger.Debug("expanded archive", "file", item.Name, "entries", len(entries))
	for _, entry := range entries {
		p.candidate(entry.BaseName(), entry.Read)
	}
}

func (p *pass) candidate(name string, read func() ([]byte, error)) {
	typ, ok := p.seen[name]
	if !ok {
		typ = p.a.policy.Classify(name)
		p.seen[name] = typ
		p.set.Manifest = append(p.set.Manifest, layer.Info{Name: name, Type: typ})
	}

	if !p.read || !p.cfg.Enabled(name) {
		return
	}
	if p.rendered[name] {
		p.a.logger.Debug("skipping duplicate layer", "layer", name)
		return
	}

	data, err := read()
	if err != nil {
		p.warn(name, errors.Wrap(errors.ErrCodeFileUnreadable, err, "failed to read %s", name))
		return
	}
	text := string(data)
	if p.a.normalizer.Injected(text) {
		p.a.logger.Debug("injected default coordinate format", "layer", name)
	}
	p.set.Layers = append(p.set.Layers, layer.Document{
		Name:    name,
		Content: p.a.normalizer.Normalize(text),
		Type:    typ,
	})
	p.rendered[name] = true
}

func (p *pass) warn(name string, err *errors.Error) {
	p.a.logger.Warn(err.Message, "file", name, "err", err.Cause)
	p.set.Warnings = append(p.set.Warnings, Warning{
		Name:    name,
		Code:    err.Code,
		Message: err.Error(),
	})
}
