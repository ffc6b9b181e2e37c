package edit

import (
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Split replaces the node at p by a split of orientation o whose two
// children are both the original node, with the default ratio. The root
// path is allowed.
func Split(t layout.Node, p layout.Path, o layout.Orientation) (layout.Node, Change, error) {
	if !o.Valid() {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "invalid orientation %q", o)
	}
	n, err := layout.GetAt(t, p)
	if err != nil {
		return nil, Change{}, err
	}
	out, err := layout.Replace(t, p, layout.NewSplit(o, n, n))
	if err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindDelete, Path: p.Child(1)}, nil
}

// Delete removes the subtree at the non-empty path p; its parent collapses
// into the remaining sibling.
func Delete(t layout.Node, p layout.Path) (layout.Node, Change, error) {
	if p.IsRoot() {
		return nil, Change{}, errors.New(errors.ErrCodeInvalidPath, "the root cannot be deleted")
	}
	parentPath := p.Parent()
	parent, err := layout.GetSplit(t, parentPath)
	if err != nil {
		return nil, Change{}, err
	}
	idx := p.Last()
	if idx != 0 && idx != 1 {
		return nil, Change{}, errors.New(errors.ErrCodeInvalidPath, "path %s: index %d out of range", p, idx)
	}
	removed := parent.Children[idx]
	sibling := parent.Children[1-idx]

	out, err := layout.Replace(t, parentPath, sibling)
	if err != nil {
		return nil, Change{}, err
	}
	inv := Change{
		Kind:   KindInsert,
		Path:   p.Clone(),
		Orient: parent.Orient,
		Ratio:  parent.Ratio,
		Value:  removed,
	}
	return out, inv, nil
}

// DeleteLeaf is [Delete] restricted to leaves. Removing a split through the
// user-facing delete is rejected with INVALID_PATH.
func DeleteLeaf(t layout.Node, p layout.Path) (layout.Node, Change, error) {
	if _, err := layout.GetLeaf(t, p); err != nil {
		return nil, Change{}, err
	}
	return Delete(t, p)
}

// Insert recreates a split at the parent of p: value is placed at index
// p.Last() and the node currently at the parent moves to the other index.
func Insert(t layout.Node, p layout.Path, o layout.Orientation, r layout.Ratio, value layout.Node) (layout.Node, Change, error) {
	if p.IsRoot() {
		return nil, Change{}, errors.New(errors.ErrCodeInvalidPath, "cannot insert at the root path")
	}
	if !o.Valid() {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "invalid orientation %q", o)
	}
	if !r.Valid() {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "invalid ratios %v", r)
	}
	if value == nil {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "insert requires a value")
	}
	idx := p.Last()
	if idx != 0 && idx != 1 {
		return nil, Change{}, errors.New(errors.ErrCodeInvalidPath, "path %s: index %d out of range", p, idx)
	}

	parentPath := p.Parent()
	old, err := layout.GetAt(t, parentPath)
	if err != nil {
		return nil, Change{}, err
	}
	s := &layout.Split{Orient: o, Ratio: r}
	s.Children[idx] = value
	s.Children[1-idx] = old

	out, err := layout.Replace(t, parentPath, s)
	if err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindDelete, Path: p.Clone()}, nil
}

// Swap exchanges the subtrees at a and b. Identical paths are a no-op.
// Paths where one contains the other cannot be swapped.
func Swap(t layout.Node, a, b layout.Path) (layout.Node, Change, error) {
	if a.Equal(b) {
		return nil, Change{}, noop("swapping %s with itself", a)
	}
	if a.Related(b) {
		return nil, Change{}, errors.New(errors.ErrCodeInvalidPath, "cannot swap %s with its own ancestor or descendant %s", a, b)
	}
	na, err := layout.GetAt(t, a)
	if err != nil {
		return nil, Change{}, err
	}
	nb, err := layout.GetAt(t, b)
	if err != nil {
		return nil, Change{}, err
	}
	out, err := layout.SetChildAt(t, a, nb)
	if err != nil {
		return nil, Change{}, err
	}
	if out, err = layout.SetChildAt(out, b, na); err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindSwap, Path: b.Clone(), PathB: a.Clone()}, nil
}

// SwapLeaves is [Swap] restricted to two leaves.
func SwapLeaves(t layout.Node, a, b layout.Path) (layout.Node, Change, error) {
	if a.Equal(b) {
		return nil, Change{}, noop("swapping %s with itself", a)
	}
	if _, err := layout.GetLeaf(t, a); err != nil {
		return nil, Change{}, err
	}
	if _, err := layout.GetLeaf(t, b); err != nil {
		return nil, Change{}, err
	}
	return Swap(t, a, b)
}

// Replace sets the function of the leaf at p to id.
func Replace(t layout.Node, p layout.Path, id string) (layout.Node, Change, error) {
	if err := errors.ValidateFunctionName(id); err != nil {
		return nil, Change{}, err
	}
	if _, err := layout.GetLeaf(t, p); err != nil {
		return nil, Change{}, err
	}
	return ReplaceNode(t, p, layout.Leaf{ID: id})
}

// ReplaceNode replaces whatever subtree is at p by value. It backs change
// list replay, where whole subtrees may be exchanged.
func ReplaceNode(t layout.Node, p layout.Path, value layout.Node) (layout.Node, Change, error) {
	if value == nil {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "replace requires a value")
	}
	prev, err := layout.GetAt(t, p)
	if err != nil {
		return nil, Change{}, err
	}
	if layout.Equal(prev, value) {
		return nil, Change{}, noop("node at %s already is %v", p, value)
	}
	out, err := layout.Replace(t, p, value)
	if err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindReplace, Path: p.Clone(), Value: prev}, nil
}

// Rotate flips the orientation of the split at p. Children and ratio are
// untouched.
func Rotate(t layout.Node, p layout.Path) (layout.Node, Change, error) {
	s, err := layout.GetSplit(t, p)
	if err != nil {
		return nil, Change{}, err
	}
	c := s.Clone()
	c.Orient = s.Orient.Flip()
	out, err := layout.Replace(t, p, c)
	if err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindRotate, Path: p.Clone()}, nil
}

// Restructure sets the ratio of the split at p.
func Restructure(t layout.Node, p layout.Path, r layout.Ratio) (layout.Node, Change, error) {
	if !r.Valid() {
		return nil, Change{}, errors.New(errors.ErrCodeValidation, "invalid ratios %v", r)
	}
	s, err := layout.GetSplit(t, p)
	if err != nil {
		return nil, Change{}, err
	}
	if s.Ratio.AlmostEqual(r) {
		return nil, Change{}, noop("split at %s already has ratios %v", p, r)
	}
	c := s.Clone()
	c.Ratio = r
	out, err := layout.Replace(t, p, c)
	if err != nil {
		return nil, Change{}, err
	}
	return out, Change{Kind: KindRestructure, Path: p.Clone(), Ratio: s.Ratio}, nil
}

// Resize sets the figure size. It is independent of the tree.
func Resize(size, next layout.FigureSize) (layout.FigureSize, Change, error) {
	if !next.Valid() {
		return size, Change{}, errors.New(errors.ErrCodeValidation, "invalid figure size %s", next)
	}
	if size.Equal(next) {
		return size, Change{}, noop("figure already has size %s", next)
	}
	return next, Change{Kind: KindResize, Size: size}, nil
}
