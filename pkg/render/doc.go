// Package render draws a layout tree into an SVG figure.
//
// # Overview
//
// Rendering is a pure function of the tree, the figure size and a
// [Registry] of drawing functions. Every leaf of the tree names a registered
// function; the renderer computes the leaf's rectangle from the split ratios
// and lets the function draw into it.
//
//	reg := render.Builtin()
//	svg, err := render.SVG(tree, layout.FigureSize{Width: 8, Height: 6}, reg)
//
// The figure size is given in inches and converted to pixels with [WithDPI]
// (72 by default).
//
// # Tree Diagrams
//
// The [nodelink] subpackage renders the structure of a tree (not its
// geometry) with Graphviz, which is what the CLI tree command prints.
//
// [nodelink]: github.com/matzehuels/panelgrid/pkg/render/nodelink
package render
