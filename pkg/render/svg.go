package render

import (
	"bytes"
	"fmt"
	"html"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// DefaultDPI converts figure inches to SVG pixels.
const DefaultDPI = 72.0

// SVGOption configures [SVG].
type SVGOption func(*svgRenderer)

type svgRenderer struct {
	dpi        float64
	margin     float64
	handles    bool
	background string
}

// WithDPI sets the pixels per inch. Non-positive values are ignored.
func WithDPI(dpi float64) SVGOption {
	return func(r *svgRenderer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// WithMargin sets the padding in pixels between a panel's box and its content.
func WithMargin(px float64) SVGOption { return func(r *svgRenderer) { r.margin = px } }

// WithHandles draws a separator line for every split. Each line carries the
// split's path and orientation as data attributes so a front end can turn it
// into a drag handle.
func WithHandles() SVGOption { return func(r *svgRenderer) { r.handles = true } }

// WithBackground fills the figure with color before drawing panels.
func WithBackground(color string) SVGOption { return func(r *svgRenderer) { r.background = color } }

func newSVGRenderer(opts ...SVGOption) svgRenderer {
	r := svgRenderer{dpi: DefaultDPI, margin: 6}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// SVG renders tree at the given figure size. Every leaf must name a
// function of reg; unknown names are a validation failure.
func SVG(tree layout.Node, size layout.FigureSize, reg *Registry, opts ...SVGOption) ([]byte, error) {
	if !size.Valid() {
		return nil, errors.New(errors.ErrCodeValidation, "invalid figure size %s", size)
	}
	if err := layout.Validate(tree, reg.Has); err != nil {
		return nil, err
	}
	r := newSVGRenderer(opts...)
	w, h := size.Width*r.dpi, size.Height*r.dpi

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.1f %.1f" width="%.0f" height="%.0f">`+"\n",
		w, h, w, h)
	if r.background != "" {
		fmt.Fprintf(&buf, `  <rect width="100%%" height="100%%" fill="%s"/>`+"\n", html.EscapeString(r.background))
	}

	var handles bytes.Buffer
	var visit func(n layout.Node, p layout.Path, b Rect) error
	visit = func(n layout.Node, p layout.Path, b Rect) error {
		switch n := n.(type) {
		case layout.Leaf:
			if b.W <= 0 || b.H <= 0 {
				return errors.New(errors.ErrCodeValidation, "leaf at %s has a zero-length edge", p)
			}
			fn, _ := reg.Lookup(n.ID)
			fmt.Fprintf(&buf, `  <g id="panel-%s" data-path="%s" data-func="%s">`+"\n",
				p, p, html.EscapeString(n.ID))
			fn(&buf, b.Inset(r.margin), n.ID)
			buf.WriteString("  </g>\n")
			return nil
		case *layout.Split:
			first, second := splitRect(b, n.Orient, n.Ratio)
			if r.handles {
				writeHandle(&handles, p, n.Orient, first)
			}
			if err := visit(n.Children[0], p.Child(0), first); err != nil {
				return err
			}
			return visit(n.Children[1], p.Child(1), second)
		}
		return errors.New(errors.ErrCodeValidation, "node at %s is missing", p)
	}
	if err := visit(tree, layout.Root, Rect{W: w, H: h}); err != nil {
		return nil, err
	}
	buf.Write(handles.Bytes())
	buf.WriteString("</svg>\n")
	return buf.Bytes(), nil
}

func splitRect(b Rect, o layout.Orientation, ratio layout.Ratio) (Rect, Rect) {
	f := ratio.Fraction()
	if o == layout.Row {
		cut := b.W * f
		return Rect{X: b.X, Y: b.Y, W: cut, H: b.H}, Rect{X: b.X + cut, Y: b.Y, W: b.W - cut, H: b.H}
	}
	cut := b.H * f
	return Rect{X: b.X, Y: b.Y, W: b.W, H: cut}, Rect{X: b.X, Y: b.Y + cut, W: b.W, H: b.H - cut}
}

// writeHandle draws the border between the first child box and its sibling.
func writeHandle(buf *bytes.Buffer, p layout.Path, o layout.Orientation, first Rect) {
	x1, y1, x2, y2 := first.X+first.W, first.Y, first.X+first.W, first.Y+first.H
	if o == layout.Column {
		x1, y1, x2, y2 = first.X, first.Y+first.H, first.X+first.W, first.Y+first.H
	}
	fmt.Fprintf(buf, `  <line class="handle" data-path="%s" data-orient="%s" x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#999999" stroke-width="2" stroke-dasharray="4 2"/>`+"\n",
		p, o, x1, y1, x2, y2)
}
