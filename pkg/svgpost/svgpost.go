// Package svgpost rewrites rendered board SVGs.
//
// The only rewrite is recoloring: a scoped <style> block is inserted right
// after the root element's opening tag so that one renderer class is drawn in
// a caller-chosen color. The renderer draws paste pads with currentColor, so
// setting the CSS color property of the group is enough.
package svgpost

import (
	"strings"

	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/render"
)

// Recolor returns svg with a style rule setting the color of class. It
// returns svg unchanged when svg, color or class is empty, when color is not
// an accepted CSS color, or when no root element can be found.
func Recolor(svg, color, class string) string {
	color = strings.TrimSpace(color)
	if svg == "" || color == "" || class == "" {
		return svg
	}
	if errors.ValidateColor(color) != nil {
		return svg
	}
	at := rootTagEnd(svg)
	if at < 0 {
		return svg
	}
	return svg[:at] + styleBlock(class, color) + svg[at:]
}

// RecolorPaste recolors the solder paste group of the given board.
func RecolorPaste(svg, color, boardID string) string {
	return Recolor(svg, color, render.PasteClass(boardID))
}

func styleBlock(class, color string) string {
	var b strings.Builder
	b.WriteString("\n<style>\n  .")
	b.WriteString(class)
	b.WriteString(" {\n    color: ")
	b.WriteString(color)
	b.WriteString(" !important;\n  }\n</style>")
	return b.String()
}

// rootTagEnd returns the offset just past the '>' closing the first element's
// opening tag, skipping the XML declaration, processing instructions,
// comments and DOCTYPE. It returns -1 if there is no element.
func rootTagEnd(doc string) int {
	i := 0
	for {
		lt := strings.IndexByte(doc[i:], '<')
		if lt < 0 {
			return -1
		}
		i += lt
		rest := doc[i:]
		switch {
		case strings.HasPrefix(rest, "<?"):
			end := strings.Index(rest, "?>")
			if end < 0 {
				return -1
			}
			i += end + 2
		case strings.HasPrefix(rest, "<!--"):
			end := strings.Index(rest, "-->")
			if end < 0 {
				return -1
			}
			i += end + 3
		case strings.HasPrefix(rest, "<!"):
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return -1
			}
			i += end + 1
		default:
			return tagEnd(doc, i)
		}
	}
}

// tagEnd scans an opening tag starting at doc[start] == '<', honoring quoted
// attribute values.
func tagEnd(doc string, start int) int {
	var quote byte
	for i := start + 1; i < len(doc); i++ {
		c := doc[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + 1
		}
	}
	return -1
}
