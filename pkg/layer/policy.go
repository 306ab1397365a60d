package layer

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// Policy is the fixed extension table that decides which files are layers,
// which are archives, and which extensions feed classification.
//
// All extensions are lowercase and include the leading dot.
type Policy struct {
	// Allowed lists extensions recognized as layer documents, both as loose
	// uploads and as archive entries.
	Allowed []string `toml:"allowed_exts" json:"allowed"`

	// Archives lists extensions that are expanded rather than read directly.
	Archives []string `toml:"archive_exts" json:"archives"`

	// Paste, Top and Bottom drive the classifier rules.
	Paste  []string `toml:"paste_exts" json:"paste"`
	Top    []string `toml:"top_exts" json:"top"`
	Bottom []string `toml:"bottom_exts" json:"bottom"`
}

// DefaultPolicy returns the standard Gerber/Excellon extension table: copper,
// solder mask, paste, silkscreen, outline/mill, generic Gerber and drill files.
func DefaultPolicy() Policy {
	return Policy{
		Allowed: []string{
			".gtl", ".gbl",         // copper
			".gts", ".gbs",         // solder mask
			".gtp", ".gbp",         // paste
			".gto", ".gbo",         // silkscreen
			".gml", ".gko", ".gm1", // outline / mill
			".gbr",                 // generic gerber
			".drl", ".txt", ".xln", // drill
		},
		Archives: []string{".zip"},
		Paste:    []string{".gtp", ".gbp"},
		Top:      []string{".gtl", ".gto"},
		Bottom:   []string{".gbl", ".gbo"},
	}
}

var defaultPolicy = DefaultPolicy()

// Classify infers a layer type with the default policy.
func Classify(name string) Type {
	return defaultPolicy.Classify(name)
}

// Ext returns the lowercase extension of name, including the dot.
// Both slash and backslash separated paths are accepted.
func Ext(name string) string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
}

// BaseName returns the last element of an archive entry path.
func BaseName(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

// IsAllowed reports whether name has a recognized layer extension.
func (p Policy) IsAllowed(name string) bool {
	return slices.Contains(p.Allowed, Ext(name))
}

// IsArchive reports whether name has an archive extension.
func (p Policy) IsArchive(name string) bool {
	return slices.Contains(p.Archives, Ext(name))
}

// Classify infers the layer type from name. It is pure and total: every input
// maps to exactly one type and TypeOther is the catch-all.
func (p Policy) Classify(name string) Type {
	n := strings.ToLower(name)
	ext := Ext(n)

	switch {
	case strings.Contains(n, "paste") || slices.Contains(p.Paste, ext):
		return TypePaste
	case strings.Contains(n, "top") && slices.Contains(p.Top, ext):
		return TypeTop
	case strings.Contains(n, "bot") && slices.Contains(p.Bottom, ext):
		return TypeBottom
	default:
		return TypeOther
	}
}

// Validate checks that the policy can recognize at least one layer and that
// every extension is well formed.
func (p Policy) Validate() error {
	if len(p.Allowed) == 0 {
		return fmt.Errorf("layer policy: allowed extensions cannot be empty")
	}
	for _, group := range [][]string{p.Allowed, p.Archives, p.Paste, p.Top, p.Bottom} {
		for _, ext := range group {
			if !strings.HasPrefix(ext, ".") || ext != strings.ToLower(ext) || strings.ContainsAny(ext, "/\\ ") {
				return fmt.Errorf("layer policy: invalid extension %q (want lowercase with leading dot)", ext)
			}
		}
	}
	for _, ext := range p.Archives {
		if slices.Contains(p.Allowed, ext) {
			return fmt.Errorf("layer policy: %q cannot be both a layer and an archive extension", ext)
		}
	}
	return nil
}
