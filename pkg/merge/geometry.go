package merge

import (
	"math"
	"sort"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// MinTouchRatio is the share of the shorter edge two boxes must have in
// common to count as touching.
const MinTouchRatio = 0.9

func almostEqual(a, b float64) bool { return layout.AlmostEqual(a, b) }

// Touching reports whether b1 and b2 share an edge long enough to be merged.
// The returned orientation is the one the merged pair needs: Row when the
// boxes sit side by side, Column when they are stacked. Boxes that share only
// a corner, or overlap less than MinTouchRatio of the shorter edge, do not
// touch; the reason is returned for logging.
func Touching(b1, b2 layout.BoundingBox) (layout.Orientation, string, bool) {
	xTouch := almostEqual(b1.XMax, b2.XMin) || almostEqual(b2.XMax, b1.XMin)
	yTouch := almostEqual(b1.YMax, b2.YMin) || almostEqual(b2.YMax, b1.YMin)

	if !xTouch && !yTouch {
		return "", "bounding boxes do not touch", false
	}
	if xTouch && yTouch {
		return "", "bounding boxes share only a corner", false
	}

	children, edgeAxis := layout.Row, layout.Column
	if yTouch {
		children, edgeAxis = layout.Column, layout.Row
	}
	e1, e2 := b1.Edge(edgeAxis), b2.Edge(edgeAxis)
	overlap := math.Max(0, math.Min(e1.Max, e2.Max)-math.Max(e1.Min, e2.Min))
	if overlap == 0 {
		return "", "bounding boxes do not overlap", false
	}
	if overlap/math.Min(e1.Size(), e2.Size()) < MinTouchRatio {
		return "", "bounding boxes do not overlap enough", false
	}
	return children, "", true
}

// Rectify aligns box along the axis the merged pair does not lay out on.
// Borders of box that coincide with a border of b1 or b2 snap to the union
// extent of b1 and b2, which keeps every cut line straight across the layout.
func Rectify(box layout.BoundingBox, o layout.Orientation, b1, b2 layout.BoundingBox) (layout.BoundingBox, error) {
	other := o.Flip()
	e1, e2 := b1.Edge(other), b2.Edge(other)
	targetMin := math.Min(e1.Min, e2.Min)
	targetMax := math.Max(e1.Max, e2.Max)

	cur := box.Edge(other)
	lo, hi := cur.Min, cur.Max

	if almostEqual(lo, e1.Min) || almostEqual(lo, e2.Min) {
		lo = targetMin
	}
	if almostEqual(lo, e1.Max) || almostEqual(lo, e2.Max) {
		lo = targetMax
	}
	if almostEqual(hi, e1.Min) || almostEqual(hi, e2.Min) {
		hi = targetMin
	}
	if almostEqual(hi, e1.Max) || almostEqual(hi, e2.Max) {
		hi = targetMax
	}

	out := box.WithEdge(other, layout.Edge{Min: lo, Max: hi})
	if out.Degenerate() || hi < lo {
		return box, errors.New(errors.ErrCodeMerge, "rectification collapses box %s", box)
	}
	return out, nil
}

// extent returns the size of the union of boxes along o's axis.
func extent(boxes map[string]layout.BoundingBox, o layout.Orientation) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, b := range boxes {
		e := b.Edge(o)
		lo = math.Min(lo, e.Min)
		hi = math.Max(hi, e.Max)
	}
	return hi - lo
}

// Partition rebuilds a binary space partition from the given boxes. Each leaf
// of the result has the key of its box as ID. Vertical cuts are tried before
// horizontal ones, each from the smallest coordinate up. Layouts that cannot
// be cut by a straight line fail with MERGE_FAILED.
func Partition(boxes map[string]layout.BoundingBox) (layout.Node, error) {
	switch len(boxes) {
	case 0:
		return nil, errors.New(errors.ErrCodeMerge, "no bounding boxes to partition")
	case 1:
		for k := range boxes {
			return layout.Leaf{ID: k}, nil
		}
	}

	for _, o := range []layout.Orientation{layout.Row, layout.Column} {
		for _, cut := range cutCandidates(boxes, o) {
			first := make(map[string]layout.BoundingBox)
			second := make(map[string]layout.BoundingBox)
			for k, b := range boxes {
				e := b.Edge(o)
				switch {
				case e.Max <= cut+layout.Epsilon:
					first[k] = b
				case e.Min >= cut-layout.Epsilon:
					second[k] = b
				}
			}
			if len(first) == 0 || len(second) == 0 || len(first)+len(second) != len(boxes) {
				continue
			}
			return partitionNode(o, first, second)
		}
	}
	return nil, errors.New(errors.ErrCodeMerge, "non-guillotine layout: no straight cut separates the panels")
}

func partitionNode(o layout.Orientation, first, second map[string]layout.BoundingBox) (layout.Node, error) {
	a, err := Partition(first)
	if err != nil {
		return nil, err
	}
	b, err := Partition(second)
	if err != nil {
		return nil, err
	}
	s1, s2 := extent(first, o), extent(second, o)
	total := s1 + s2
	return &layout.Split{
		Orient:   o,
		Children: [2]layout.Node{a, b},
		Ratio:    layout.Ratio{100 * s1 / total, 100 * s2 / total},
	}, nil
}

// cutCandidates returns the distinct far edges of boxes along o's axis in
// ascending order, without the outermost one.
func cutCandidates(boxes map[string]layout.BoundingBox, o layout.Orientation) []float64 {
	values := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		values = append(values, b.Edge(o).Max)
	}
	sort.Float64s(values)

	out := values[:0]
	for _, v := range values {
		if len(out) == 0 || !almostEqual(out[len(out)-1], v) {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}
