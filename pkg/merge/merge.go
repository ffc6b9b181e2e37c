// Package merge joins two touching, non-sibling panels of a layout into one
// split.
//
// The shape of the merged tree is not determined by the two paths alone: the
// panels' bounding boxes are aligned, the enclosing subtree is partitioned
// anew, and the two panels are placed side by side in the slot their union
// occupies. [Rebuild] then expresses the difference as a list of elementary
// [edit.Change] values whose reversed inverse is the recipe for undoing the
// merge.
package merge

import (
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

var (
	// ErrSamePath is returned when both paths address the same panel.
	ErrSamePath = errors.New(errors.ErrCodeNoop, "paths are the same")
	// ErrSiblings is returned when the panels already share a parent.
	ErrSiblings = errors.New(errors.ErrCodeNoop, "paths are already siblings")
)

// mergedKey marks the union box during partitioning. Path strings never
// contain it.
const mergedKey = "*"

// Paths merges the leaves at a and b and returns the new tree together with
// the path of their lowest common ancestor, which bounds the changed region.
// The input tree is not modified.
func Paths(tree layout.Node, a, b layout.Path) (layout.Node, layout.Path, error) {
	if a.Equal(b) {
		return nil, nil, ErrSamePath
	}
	if a.IsSiblingOf(b) {
		return nil, nil, ErrSiblings
	}
	if _, err := layout.GetLeaf(tree, a); err != nil {
		return nil, nil, err
	}
	if _, err := layout.GetLeaf(tree, b); err != nil {
		return nil, nil, err
	}

	lcaPath := layout.LCAPath(a, b)
	lca, err := layout.GetSplit(tree, lcaPath)
	if err != nil {
		return nil, nil, err
	}
	relA, relB := layout.Path(a[len(lcaPath):]), layout.Path(b[len(lcaPath):])
	keyA, keyB := relA.String(), relB.String()

	boxes, err := layout.Boxes(lca, layout.UnitBox)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeMerge, err, "cannot compute panel bounds")
	}
	boxA, boxB := boxes[keyA], boxes[keyB]

	orient, reason, ok := Touching(boxA, boxB)
	if !ok {
		return nil, nil, errors.New(errors.ErrCodeMerge,
			"bounding boxes must touch and overlap at least %d %% (%s)", int(100*MinTouchRatio), reason)
	}

	rectified := make(map[string]layout.BoundingBox, len(boxes))
	for k, box := range boxes {
		r, err := Rectify(box, orient, boxA, boxB)
		if err != nil {
			return nil, nil, err
		}
		rectified[k] = r
	}
	rectA, rectB := rectified[keyA], rectified[keyB]
	delete(rectified, keyA)
	delete(rectified, keyB)
	rectified[mergedKey] = rectA.Union(rectB)

	partitioned, err := Partition(rectified)
	if err != nil {
		return nil, nil, err
	}

	eA, eB := rectA.Edge(orient), rectB.Edge(orient)
	first, second := relA, relB
	if eA.Min > eB.Min {
		eA, eB = eB, eA
		first, second = second, first
	}
	total := eA.Size() + eB.Size()

	nodeA, _ := layout.GetAt(lca, first)
	nodeB, _ := layout.GetAt(lca, second)
	pair := &layout.Split{
		Orient:   orient,
		Children: [2]layout.Node{nodeA, nodeB},
		Ratio:    layout.Ratio{100 * eA.Size() / total, 100 * eB.Size() / total},
	}

	sub, err := resolve(partitioned, lca, pair)
	if err != nil {
		return nil, nil, err
	}
	out, err := layout.Replace(tree, lcaPath, sub)
	if err != nil {
		return nil, nil, err
	}
	return out, lcaPath, nil
}

// resolve turns a partition whose leaves are box keys back into layout
// nodes: path keys map to the nodes of lca, the merged key to pair.
func resolve(n layout.Node, lca layout.Node, pair layout.Node) (layout.Node, error) {
	switch n := n.(type) {
	case layout.Leaf:
		if n.ID == mergedKey {
			return pair, nil
		}
		p, err := layout.ParsePath(n.ID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "unexpected partition key %q", n.ID)
		}
		return layout.GetAt(lca, p)
	case *layout.Split:
		a, err := resolve(n.Children[0], lca, pair)
		if err != nil {
			return nil, err
		}
		b, err := resolve(n.Children[1], lca, pair)
		if err != nil {
			return nil, err
		}
		c := n.Clone()
		c.Children = [2]layout.Node{a, b}
		return c, nil
	default:
		return nil, errors.New(errors.ErrCodeInternal, "partition produced an empty node")
	}
}

// Result is the outcome of [Merge].
type Result struct {
	Tree    layout.Node
	LCA     layout.Path
	Forward []edit.Change
	Inverse []edit.Change
}

// Merge merges the leaves at a and b and derives the change lists that lead
// from tree to the merged tree and back. The forward list is replayed and
// checked against the merged tree before it is returned.
func Merge(tree layout.Node, a, b layout.Path) (*Result, error) {
	if layout.IsLeaf(tree) {
		return nil, errors.New(errors.ErrCodeMerge, "cannot merge an unsplit root")
	}
	target, lcaPath, err := Paths(tree, a, b)
	if err != nil {
		return nil, err
	}
	rebuilt, forward, backward, err := Rebuild(tree, lcaPath, target)
	if err != nil {
		return nil, err
	}
	replayed, _, inverse, err := edit.Apply(tree, layout.DefaultSize, forward)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "replaying merge changes")
	}
	if !layout.Equal(rebuilt, target) || !layout.Equal(replayed, target) || len(inverse) != len(backward) {
		return nil, errors.New(errors.ErrCodeInternal, "rebuilding the merged layout failed")
	}
	return &Result{Tree: target, LCA: lcaPath, Forward: forward, Inverse: backward}, nil
}

// Rebuild derives the elementary changes that turn the subtree of tree at
// lcaPath into the subtree of target at the same path. It returns the
// rebuilt tree, the forward changes and the backward changes, the latter
// already in the order that undoes the forward list.
func Rebuild(tree layout.Node, lcaPath layout.Path, target layout.Node) (layout.Node, []edit.Change, []edit.Change, error) {
	r := &rebuilder{tree: tree}

	start, err := layout.GetAt(tree, lcaPath)
	if err != nil {
		return nil, nil, nil, err
	}
	startTarget, err := layout.GetAt(target, lcaPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.rebuild(start, startTarget, lcaPath.Clone()); err != nil {
		return nil, nil, nil, err
	}

	backward := make([]edit.Change, len(r.backward))
	for i, c := range r.backward {
		backward[len(backward)-1-i] = c
	}
	return r.tree, r.forward, backward, nil
}

type rebuilder struct {
	tree     layout.Node
	forward  []edit.Change
	backward []edit.Change
}

func (r *rebuilder) step(c edit.Change) error {
	next, _, inv, err := edit.ApplyOne(r.tree, layout.DefaultSize, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "rebuild step %s", c)
	}
	r.tree = next
	r.forward = append(r.forward, c)
	r.backward = append(r.backward, inv)
	return nil
}

func (r *rebuilder) rebuild(elem, want layout.Node, p layout.Path) error {
	if l, ok := elem.(layout.Leaf); ok {
		if wl, ok := want.(layout.Leaf); ok {
			if l.ID == wl.ID {
				return nil
			}
			return r.step(edit.Change{Kind: edit.KindReplace, Path: p, Value: wl})
		}
		ws := want.(*layout.Split)
		if err := r.step(edit.Change{Kind: edit.KindSplit, Path: p, Orient: ws.Orient}); err != nil {
			return err
		}
		elem, _ = layout.GetAt(r.tree, p)
	} else if _, ok := want.(layout.Leaf); ok {
		if err := r.step(edit.Change{Kind: edit.KindDelete, Path: p.Child(1)}); err != nil {
			return err
		}
		cur, _ := layout.GetAt(r.tree, p)
		if layout.Equal(cur, want) {
			return nil
		}
		return r.step(edit.Change{Kind: edit.KindReplace, Path: p, Value: want})
	}

	s, ws := elem.(*layout.Split), want.(*layout.Split)
	if s.Orient != ws.Orient {
		if err := r.step(edit.Change{Kind: edit.KindRotate, Path: p}); err != nil {
			return err
		}
	}
	if !s.Ratio.AlmostEqual(ws.Ratio) {
		if err := r.step(edit.Change{Kind: edit.KindRestructure, Path: p, Ratio: ws.Ratio}); err != nil {
			return err
		}
	}
	if err := r.rebuild(s.Children[0], ws.Children[0], p.Child(0)); err != nil {
		return err
	}
	return r.rebuild(s.Children[1], ws.Children[1], p.Child(1))
}
