// Package render is the boundary to the external stackup renderer.
//
// # Overview
//
// Turning Gerber layers into board images is delegated to pcb-stackup, a
// JavaScript library. This package defines the [Renderer] contract the rest of
// the module programs against and provides two backends:
//
//   - [NodeRenderer] runs an embedded helper script under node in a per-job
//     temporary directory.
//   - [HTTPRenderer] posts the layers to a renderer sidecar that wraps the same
//     library behind HTTP.
//
// [Func] adapts a plain function, which is what tests use.
//
// # Class names
//
// The renderer namespaces every layer group of a board with the board id:
// group g of board "b" is drawn with CSS class "b_g". [ClassName] is the only
// place that convention is encoded; [PasteClass] applies it to the solder
// paste group, which is what the SVG post-processor recolors.
//
//	class := render.PasteClass("stentech-board") // "stentech-board_sp"
//
// # Failures
//
// Renderers return plain errors. The pipeline wraps them into RENDER_FAILED and
// never retries: the renderer is deterministic for a given input.
package render
