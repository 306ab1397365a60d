package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/stentech/gerberstack/pkg/layer"
)

// errPickerAborted is returned when the user quits the layer picker.
var errPickerAborted = errors.New("layer selection aborted")

var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// LayerPickerModel - Interactive layer selection
// =============================================================================

// LayerPickerModel is the bubbletea model for choosing which discovered
// layers to render.
type LayerPickerModel struct {
	Layers    layer.Manifest
	Enabled   []bool
	Cursor    int
	Offset    int
	Height    int
	Confirmed bool
}

// NewLayerPickerModel starts with the enabled state cfg gives each layer.
func NewLayerPickerModel(m layer.Manifest, cfg layer.ClientConfig) LayerPickerModel {
	enabled := make([]bool, len(m))
	for i, info := range m {
		enabled[i] = cfg.Enabled(info.Name)
	}
	return LayerPickerModel{Layers: m, Enabled: enabled, Height: 15}
}

func (m LayerPickerModel) Init() tea.Cmd {
	return nil
}

func (m LayerPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Layers)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Enabled) > 0 {
				m.Enabled[m.Cursor] = !m.Enabled[m.Cursor]
			}
		case "a":
			m.setAll(true)
		case "n":
			m.setAll(false)
		case "enter":
			if m.EnabledCount() == 0 {
				return m, nil
			}
			m.Confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
	}
	return m, nil
}

func (m *LayerPickerModel) setAll(on bool) {
	for i := range m.Enabled {
		m.Enabled[i] = on
	}
}

// EnabledCount returns how many layers are currently selected.
func (m LayerPickerModel) EnabledCount() int {
	n := 0
	for _, on := range m.Enabled {
		if on {
			n++
		}
	}
	return n
}

// Disabled returns the names of the layers the user switched off.
func (m LayerPickerModel) Disabled() []string {
	var names []string
	for i, on := range m.Enabled {
		if !on {
			names = append(names, m.Layers[i].Name)
		}
	}
	return names
}

func (m LayerPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Layers"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  space toggle  a all  n none  ⏎ render  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Layers))
	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		check := "[ ]"
		if m.Enabled[i] {
			check = "[x]"
		}
		rows = append(rows, []string{cursor, check, m.Layers[i].Name, string(m.Layers[i].Type)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "", "Layer", "Type").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			idx := m.Offset + row
			if idx < 0 || idx >= len(m.Layers) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if idx == m.Cursor {
				base = base.Bold(true)
			}
			if !m.Enabled[idx] {
				return base.Foreground(colorDim)
			}
			if col == 3 {
				return base.Inherit(typeStyles[m.Layers[idx].Type])
			}
			return base.Foreground(colorGreen)
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d of %d layers selected", m.EnabledCount(), len(m.Layers))))
	return b.String()
}

// pickLayers runs the picker. The picker's choices replace the layer entries
// of cfg; the paste color is kept.
func pickLayers(ctx context.Context, m layer.Manifest, cfg layer.ClientConfig) (layer.ClientConfig, error) {
	final, err := tea.NewProgram(NewLayerPickerModel(m, cfg), tea.WithContext(ctx)).Run()
	if err != nil {
		return cfg, fmt.Errorf("layer picker: %w", err)
	}
	picked, ok := final.(LayerPickerModel)
	if !ok || !picked.Confirmed {
		return cfg, errPickerAborted
	}
	return layer.ClientConfig{PasteColor: cfg.PasteColor}.Disable(picked.Disabled()...), nil
}
