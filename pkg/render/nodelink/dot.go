package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Paths adds each node's path to its label.
	Paths bool
	// Highlight marks the nodes at these paths, e.g. the two panels of a
	// pending merge.
	Highlight []layout.Path
}

// ToDOT converts a tree to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG].
func ToDOT(tree layout.Node, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [fontname=\"sans-serif\", fontsize=18, style=filled, fillcolor=white];\n")
	buf.WriteString("  edge [fontname=\"sans-serif\", fontsize=14];\n")
	buf.WriteString("  ranksep=0.4;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	var edges []string
	layout.Walk(tree, func(p layout.Path, n layout.Node) bool {
		attrs := fmtAttrs(p, n, opts)
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeID(p), strings.Join(attrs, ", "))
		if !p.IsRoot() {
			edges = append(edges, fmt.Sprintf("  %q -> %q [label=\"%d\"];\n", nodeID(p.Parent()), nodeID(p), p.Last()))
		}
		return true
	})

	buf.WriteString("\n")
	for _, e := range edges {
		buf.WriteString(e)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(p layout.Path) string { return "n:" + p.String() }

func fmtLabel(p layout.Path, n layout.Node, withPath bool) string {
	var label string
	switch n := n.(type) {
	case layout.Leaf:
		label = n.ID
	case *layout.Split:
		label = fmt.Sprintf("%s\n%.4g / %.4g", n.Orient, n.Ratio[0], n.Ratio[1])
	}
	if withPath {
		label = p.String() + "\n" + label
	}
	return label
}

func fmtAttrs(p layout.Path, n layout.Node, opts Options) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(p, n, opts.Paths))}
	if layout.IsLeaf(n) {
		attrs = append(attrs, "shape=box", "style=\"rounded,filled\"")
	} else {
		attrs = append(attrs, "shape=ellipse", "fillcolor=\"#eeeeee\"")
	}
	for _, h := range opts.Highlight {
		if h.Equal(p) {
			attrs = append(attrs, "color=\"#ff7f0e\"", "penwidth=3")
			break
		}
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with a pixel
// one anchored at the origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
