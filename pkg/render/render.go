package render

import (
	"context"
	"io"
)

// DefaultBoardID is the board identifier used when none is configured.
const DefaultBoardID = "stentech-board"

// GroupSolderPaste is the renderer's group suffix for solder paste layers.
const GroupSolderPaste = "sp"

// Layer is one named layer stream handed to the renderer.
type Layer struct {
	Filename string
	Content  io.Reader
}

// Options configures a single render call.
type Options struct {
	// BoardID namespaces the CSS classes of the generated SVGs.
	BoardID string
}

// Side is one rendered view of the board.
type Side struct {
	SVG string `json:"svg"`
}

// Stackup is the renderer output. Either side may be empty when the renderer
// produced nothing for it.
type Stackup struct {
	Top    Side `json:"top"`
	Bottom Side `json:"bottom"`
}

// Renderer turns an ordered set of layers into top and bottom SVG views.
// Implementations must not retain layers after returning.
type Renderer interface {
	Render(ctx context.Context, layers []Layer, opts Options) (*Stackup, error)
}

// Func adapts an ordinary function to the Renderer interface.
type Func func(ctx context.Context, layers []Layer, opts Options) (*Stackup, error)

// Render calls f.
func (f Func) Render(ctx context.Context, layers []Layer, opts Options) (*Stackup, error) {
	return f(ctx, layers, opts)
}

// Name returns a short backend name for logs and hooks.
func Name(r Renderer) string {
	if n, ok := r.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}

// ClassName returns the CSS class the renderer assigns to a layer group of
// the given board.
func ClassName(boardID, group string) string {
	return boardID + "_" + group
}

// PasteClass returns the CSS class of the solder paste group.
func PasteClass(boardID string) string {
	return ClassName(boardID, GroupSolderPaste)
}
