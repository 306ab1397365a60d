// Package layer defines the canonical layer model shared by the aggregation,
// rendering and API packages.
//
// A board upload is reduced to a set of named [Document] values, each carrying
// normalized layer text and a semantic [Type]. Alongside it travels a
// [Manifest]: one [Info] per distinct layer name in first-discovery order,
// regardless of whether that layer is enabled for rendering.
//
// # Classification
//
// [Policy.Classify] infers a [Type] from a filename alone. Rules are evaluated
// in order and the first match wins:
//
//  1. name contains "paste" or has a paste extension (.gtp, .gbp) → paste
//  2. name contains "top" and has a top copper/silk extension → top
//  3. name contains "bot" and has a bottom copper/silk extension → bottom
//  4. anything else → other
//
// Matching is case-insensitive and never inspects file contents.
package layer

// Type is the semantic role inferred for a layer.
type Type string

// Layer types.
const (
	TypePaste  Type = "paste"
	TypeTop    Type = "top"
	TypeBottom Type = "bottom"
	TypeOther  Type = "other"
)

// Valid reports whether t is one of the known layer types.
func (t Type) Valid() bool {
	switch t {
	case TypePaste, TypeTop, TypeBottom, TypeOther:
		return true
	}
	return false
}

// Document is one normalized layer ready for the renderer.
type Document struct {
	Name    string // display name, unique within a batch
	Content string // normalized layer text
	Type    Type
}

// Info describes a discovered layer for clients.
type Info struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Manifest lists every recognized layer in first-discovery order.
type Manifest []Info

// Contains reports whether the manifest lists name.
func (m Manifest) Contains(name string) bool {
	_, ok := m.Lookup(name)
	return ok
}

// Lookup returns the entry for name.
func (m Manifest) Lookup(name string) (Info, bool) {
	for _, info := range m {
		if info.Name == name {
			return info, true
		}
	}
	return Info{}, false
}

// Names returns the layer names in manifest order.
func (m Manifest) Names() []string {
	names := make([]string, len(m))
	for i, info := range m {
		names[i] = info.Name
	}
	return names
}

// CountByType tallies manifest entries per type.
func (m Manifest) CountByType() map[Type]int {
	counts := make(map[Type]int, 4)
	for _, info := range m {
		counts[info.Type]++
	}
	return counts
}
