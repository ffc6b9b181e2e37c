package layout

import (
	"fmt"

	"github.com/matzehuels/panelgrid/pkg/errors"
)

// Edge is an interval along one axis.
type Edge struct {
	Min, Max float64
}

// Size returns the length of the interval.
func (e Edge) Size() float64 { return e.Max - e.Min }

// BoundingBox is an axis-aligned rectangle in unit coordinates. The origin
// is the top-left corner of the figure; y grows downwards.
type BoundingBox struct {
	XMin, XMax, YMin, YMax float64
}

// UnitBox covers the whole figure.
var UnitBox = BoundingBox{XMin: 0, XMax: 1, YMin: 0, YMax: 1}

// Edge returns the extent of b along the axis that o lays children out on:
// x for Row, y for Column.
func (b BoundingBox) Edge(o Orientation) Edge {
	if o == Row {
		return Edge{b.XMin, b.XMax}
	}
	return Edge{b.YMin, b.YMax}
}

// WithEdge returns b with its extent along o's axis replaced by e.
func (b BoundingBox) WithEdge(o Orientation, e Edge) BoundingBox {
	if o == Row {
		b.XMin, b.XMax = e.Min, e.Max
	} else {
		b.YMin, b.YMax = e.Min, e.Max
	}
	return b
}

// Union returns the smallest box containing b and other.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	return BoundingBox{
		XMin: min(b.XMin, other.XMin),
		XMax: max(b.XMax, other.XMax),
		YMin: min(b.YMin, other.YMin),
		YMax: max(b.YMax, other.YMax),
	}
}

// Degenerate reports whether b has a zero-length side.
func (b BoundingBox) Degenerate() bool {
	return b.XMin == b.XMax || b.YMin == b.YMax
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.3f,%.3f]x[%.3f,%.3f]", b.XMin, b.XMax, b.YMin, b.YMax)
}

// Boxes returns the bounding box of every leaf, keyed by the leaf's
// [Path.String], within the given outer box.
func Boxes(tree Node, outer BoundingBox) (map[string]BoundingBox, error) {
	out := make(map[string]BoundingBox)
	var visit func(n Node, p Path, b BoundingBox) error
	visit = func(n Node, p Path, b BoundingBox) error {
		switch n := n.(type) {
		case Leaf:
			if b.Degenerate() {
				return errors.New(errors.ErrCodeValidation, "leaf at %s has a zero-length edge", p)
			}
			out[p.String()] = b
			return nil
		case *Split:
			for i, part := range SplitBox(b, n.Orient, n.Ratio) {
				if err := visit(n.Children[i], p.Child(i), part); err != nil {
					return err
				}
			}
			return nil
		default:
			return errors.New(errors.ErrCodeValidation, "node at %s is missing", p)
		}
	}
	if err := visit(tree, Root, outer); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitBox divides b between the two children of a split.
func SplitBox(b BoundingBox, o Orientation, r Ratio) [2]BoundingBox {
	e := b.Edge(o)
	f := r.Fraction()
	cut := e.Min + e.Size()*f
	return [2]BoundingBox{
		b.WithEdge(o, Edge{e.Min, cut}),
		b.WithEdge(o, Edge{cut, e.Max}),
	}
}
