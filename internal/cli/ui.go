package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/stentech/gerberstack/pkg/aggregate"
	"github.com/stentech/gerberstack/pkg/history"
	"github.com/stentech/gerberstack/pkg/layer"
	"github.com/stentech/gerberstack/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)
	StyleDim       = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue     = lipgloss.NewStyle().Foreground(colorWhite)
	StyleSuccess   = lipgloss.NewStyle().Foreground(colorGreen)
	StyleWarning   = lipgloss.NewStyle().Foreground(colorYellow)
	StyleError     = lipgloss.NewStyle().Foreground(colorRed)
)

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)

	// layer type colors in manifest tables
	typeStyles = map[layer.Type]lipgloss.Style{
		layer.TypeTop:    lipgloss.NewStyle().Foreground(colorCyan),
		layer.TypeBottom: lipgloss.NewStyle().Foreground(colorBlue),
		layer.TypePaste:  lipgloss.NewStyle().Foreground(colorYellow),
		layer.TypeOther:  lipgloss.NewStyle().Foreground(colorGray),
	}
)

// headerRow is the row index lipgloss/table passes for the header.
const headerRow = -1

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(format string, args ...any) {
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Println(styleIconError.Render(iconError) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

func printInfo(format string, args ...any) {
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(format string, args ...any) {
	fmt.Println("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a file output line.
func printFile(path string) {
	fmt.Println("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// =============================================================================
// Layers
// =============================================================================

// manifestTable renders the manifest with each layer's type and whether cfg
// enables it.
func manifestTable(m layer.Manifest, cfg layer.ClientConfig) string {
	rows := make([][]string, 0, len(m))
	for _, info := range m {
		state := iconSuccess
		if !cfg.Enabled(info.Name) {
			state = "off"
		}
		rows = append(rows, []string{info.Name, string(info.Type), state})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Layer", "Type", "Render").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if row < 0 || row >= len(m) {
				return base
			}
			if !cfg.Enabled(m[row].Name) {
				return base.Foreground(colorDim)
			}
			switch col {
			case 1:
				return base.Inherit(typeStyles[m[row].Type])
			case 2:
				return base.Foreground(colorGreen)
			}
			return base.Foreground(colorWhite)
		}).
		Render()
}

// layerSummary formats per-type counts, e.g. "2 top · 1 paste · 3 other".
func layerSummary(m layer.Manifest) string {
	counts := m.CountByType()
	var parts []string
	for _, t := range []layer.Type{layer.TypeTop, layer.TypeBottom, layer.TypePaste, layer.TypeOther} {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, t))
		}
	}
	if len(parts) == 0 {
		return "no layers"
	}
	return strings.Join(parts, StyleDim.Render(" · "))
}

func printWarnings(warnings []aggregate.Warning) {
	for _, w := range warnings {
		printWarning("%s: %s", w.Name, w.Message)
	}
}

// printRenderStats prints pipeline timings on a single line.
func printRenderStats(res *pipeline.Result) {
	parts := []string{
		fmt.Sprintf("%d/%d layers", res.Stats.EnabledCount, res.Stats.LayerCount),
		"aggregate " + res.Stats.AggregateTime.Round(time.Millisecond).String(),
		"render " + res.Stats.RenderTime.Round(time.Millisecond).String(),
	}
	if res.Recolored {
		parts = append(parts, "paste recolored")
	}
	fmt.Println("  " + StyleDim.Render(strings.Join(parts, " · ")))
}

// =============================================================================
// History
// =============================================================================

func historyTable(recs []*history.Record) string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("Jan 2 15:04:05"),
			r.BoardID,
			r.Source,
			strconv.Itoa(r.Enabled) + "/" + strconv.Itoa(len(r.Manifest)),
			r.Outcome,
			r.RenderTime.Round(time.Millisecond).String(),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Time", "Board", "Source", "Layers", "Outcome", "Render").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return styleHeader
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if col == 4 && row >= 0 && row < len(recs) {
				if recs[row].OK() {
					return base.Foreground(colorGreen)
				}
				return base.Foreground(colorRed)
			}
			if col == 0 {
				return base.Foreground(colorGray)
			}
			return base
		}).
		Render()
}
