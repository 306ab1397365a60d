package layer

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/stentech/gerberstack/pkg/errors"
)

// ConfigEntry is one client-declared layer preference. It never creates or
// renames layers; it only decides whether a discovered layer is rendered.
type ConfigEntry struct {
	Name string `json:"name"`

	// Enabled is nil when the client did not say; nil counts as enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// LayerType is an optional client-side hint. It does not override the
	// classifier.
	LayerType Type `json:"layerType,omitempty"`
}

// IsEnabled reports whether the entry enables its layer. Only an explicit
// false disables.
func (e ConfigEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// UnmarshalJSON decodes an entry leniently: a non-boolean "enabled" value is
// treated as absent, and a non-string "layerType" is ignored.
func (e *ConfigEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      json.RawMessage `json:"name"`
		Enabled   json.RawMessage `json:"enabled"`
		LayerType json.RawMessage `json:"layerType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = ConfigEntry{}
	_ = json.Unmarshal(raw.Name, &e.Name)
	var enabled bool
	if len(raw.Enabled) > 0 && json.Unmarshal(raw.Enabled, &enabled) == nil {
		e.Enabled = &enabled
	}
	var lt string
	if len(raw.LayerType) > 0 && json.Unmarshal(raw.LayerType, &lt) == nil {
		e.LayerType = Type(lt)
	}
	return nil
}

// ClientConfig is the validated form of the JSON configuration a client sends
// with an upload.
//
// Defaulting rules:
//   - a missing or non-array "layers" is an empty list
//   - an entry without "enabled" is enabled
//   - a missing or non-string "pasteColor" means no recolouring
type ClientConfig struct {
	Layers     []ConfigEntry `json:"layers"`
	PasteColor string        `json:"pasteColor,omitempty"`
}

// ParseClientConfig decodes a configuration payload. An empty payload yields
// the zero config. A malformed payload also yields the zero config, together
// with an ErrCodeConfigParse error the caller is expected to log and ignore.
func ParseClientConfig(data []byte) (ClientConfig, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ClientConfig{}, nil
	}

	var raw struct {
		Layers     json.RawMessage `json:"layers"`
		PasteColor json.RawMessage `json:"pasteColor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientConfig{}, errors.Wrap(errors.ErrCodeConfigParse, err, "decode client config")
	}

	var cfg ClientConfig
	var items []json.RawMessage
	if len(raw.Layers) > 0 && json.Unmarshal(raw.Layers, &items) == nil {
		for _, item := range items {
			var entry ConfigEntry
			if err := json.Unmarshal(item, &entry); err != nil || entry.Name == "" {
				continue
			}
			cfg.Layers = append(cfg.Layers, entry)
		}
	}
	var color string
	if len(raw.PasteColor) > 0 && json.Unmarshal(raw.PasteColor, &color) == nil {
		cfg.PasteColor = strings.TrimSpace(color)
	}
	return cfg, nil
}

// Enabled reports whether the layer called name should be rendered. With no
// entries, or no entry for name, every layer is enabled. The first entry
// matching name decides.
func (c ClientConfig) Enabled(name string) bool {
	for _, entry := range c.Layers {
		if entry.Name == name {
			return entry.IsEnabled()
		}
	}
	return true
}

// Disable returns a copy of c with an explicit disabled entry for each name.
// Existing entries for those names are replaced.
func (c ClientConfig) Disable(names ...string) ClientConfig {
	off := false
	out := ClientConfig{PasteColor: c.PasteColor}
	for _, entry := range c.Layers {
		if !slices.Contains(names, entry.Name) {
			out.Layers = append(out.Layers, entry)
		}
	}
	for _, name := range names {
		out.Layers = append(out.Layers, ConfigEntry{Name: name, Enabled: &off})
	}
	return out
}
