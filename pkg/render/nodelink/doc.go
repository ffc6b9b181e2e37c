// Package nodelink renders the structure of a layout tree as a node-link
// diagram.
//
// # Overview
//
// Splits appear as ellipses labelled with their orientation and ratios,
// leaves as boxes labelled with their drawing function. Edges are labelled
// with the child index, so reading the child indices from the root down to a
// box spells out that panel's path.
//
// # Usage
//
//	dot := nodelink.ToDOT(tree, nodelink.Options{Paths: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
