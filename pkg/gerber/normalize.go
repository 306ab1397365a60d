// Package gerber normalizes raw layer documents before they reach the renderer.
//
// Some CAM exports omit the coordinate-format declaration (%FS...*%). Renderers
// that cannot infer an implicit format fail outright on such files, so
// [Normalizer.Normalize] prepends a fixed default declaration when none is
// present.
//
// The default is a best-effort guess, not a derivation from the file: boards
// exported with a different implicit precision will render at the wrong scale
// or position. Excellon drill files never carry %FS and receive the header as
// well; the renderer ignores it for drill input.
package gerber

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultFormat declares leading-zero omission, absolute coordinates and a
// 2.4 fixed-point format for X and Y.
const DefaultFormat = "%FSLAX24Y24*%"

// Config controls normalization.
type Config struct {
	// DefaultFormat is the declaration injected when a document has none.
	DefaultFormat string `toml:"default_format"`
}

// DefaultConfig returns the standard normalization settings.
func DefaultConfig() Config {
	return Config{DefaultFormat: DefaultFormat}
}

// Validate rejects a default declaration that would not itself be detected
// as a format declaration, which would make normalization inject it twice.
func (c Config) Validate() error {
	if c.DefaultFormat == "" {
		return nil
	}
	if !HasFormat(c.DefaultFormat) || strings.Contains(c.DefaultFormat, "\n") {
		return fmt.Errorf("gerber: default format %q must be a single %%FS declaration", c.DefaultFormat)
	}
	return nil
}

// formatMarker detects a coordinate-format declaration anywhere in a document.
var formatMarker = regexp.MustCompile(`(?i)%FS`)

// HasFormat reports whether text already declares a coordinate format.
func HasFormat(text string) bool {
	return formatMarker.MatchString(text)
}

// Normalizer guarantees every document carries a coordinate-format declaration.
// The zero value uses DefaultFormat.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a normalizer. An empty DefaultFormat falls back to the
// package default.
func NewNormalizer(cfg Config) *Normalizer {
	if strings.TrimSpace(cfg.DefaultFormat) == "" {
		cfg.DefaultFormat = DefaultFormat
	}
	return &Normalizer{cfg: cfg}
}

// Normalize returns text unchanged when it already declares a format.
// Otherwise it returns the default declaration, a newline, then text; empty
// input therefore becomes just the declaration. For any Config that passes
// Validate, Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(text string) string {
	if HasFormat(text) {
		return text
	}
	return n.format() + "\n" + text
}

// Injected reports whether Normalize would change text.
func (n *Normalizer) Injected(text string) bool {
	return !HasFormat(text)
}

func (n *Normalizer) format() string {
	if n == nil || n.cfg.DefaultFormat == "" {
		return DefaultFormat
	}
	return n.cfg.DefaultFormat
}
