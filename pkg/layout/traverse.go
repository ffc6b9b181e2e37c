package layout

import (
	"github.com/matzehuels/panelgrid/pkg/errors"
)

// GetAt returns the node at path p.
//
// It fails with INVALID_PATH if a step indexes into a leaf or an index is
// not 0 or 1.
func GetAt(tree Node, p Path) (Node, error) {
	n := tree
	for depth, idx := range p {
		s, ok := n.(*Split)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidPath, "path %s: node at %s is a leaf", p, p[:depth])
		}
		if idx != 0 && idx != 1 {
			return nil, errors.New(errors.ErrCodeInvalidPath, "path %s: index %d out of range", p, idx)
		}
		n = s.Children[idx]
	}
	if n == nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %s: node is missing", p)
	}
	return n, nil
}

// GetSplit returns the split at path p, failing with INVALID_PATH when the
// node there is a leaf.
func GetSplit(tree Node, p Path) (*Split, error) {
	n, err := GetAt(tree, p)
	if err != nil {
		return nil, err
	}
	s, ok := n.(*Split)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %s addresses a leaf, not a split", p)
	}
	return s, nil
}

// GetLeaf returns the leaf at path p, failing with INVALID_PATH when the
// node there is a split.
func GetLeaf(tree Node, p Path) (Leaf, error) {
	n, err := GetAt(tree, p)
	if err != nil {
		return Leaf{}, err
	}
	l, ok := n.(Leaf)
	if !ok {
		return Leaf{}, errors.New(errors.ErrCodeInvalidPath, "path %s addresses a split, not a leaf", p)
	}
	return l, nil
}

// SetChildAt returns a copy of tree with the node at the non-empty path p
// replaced by value. Splits along p are cloned; every other subtree is shared
// with the input, which is left untouched.
func SetChildAt(tree Node, p Path, value Node) (Node, error) {
	if len(p) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidPath, "cannot set child at the root path")
	}
	if value == nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, "cannot set nil node at %s", p)
	}
	return setChildAt(tree, p, 0, value)
}

func setChildAt(n Node, p Path, depth int, value Node) (Node, error) {
	s, ok := n.(*Split)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %s: node at %s is a leaf", p, p[:depth])
	}
	idx := p[depth]
	if idx != 0 && idx != 1 {
		return nil, errors.New(errors.ErrCodeInvalidPath, "path %s: index %d out of range", p, idx)
	}

	c := s.Clone()
	if depth == len(p)-1 {
		c.Children[idx] = value
		return c, nil
	}
	child, err := setChildAt(s.Children[idx], p, depth+1, value)
	if err != nil {
		return nil, err
	}
	c.Children[idx] = child
	return c, nil
}

// Replace returns a copy of tree with the node at p replaced by value.
// Unlike [SetChildAt] the empty path is accepted and yields value itself.
func Replace(tree Node, p Path, value Node) (Node, error) {
	if len(p) == 0 {
		if value == nil {
			return nil, errors.New(errors.ErrCodeInvalidPath, "cannot replace root with nil")
		}
		return value, nil
	}
	return SetChildAt(tree, p, value)
}

// Walk calls fn for every node in depth-first order, first child first.
// Returning false from fn skips the node's children.
func Walk(tree Node, fn func(p Path, n Node) bool) {
	walk(tree, Root, fn)
}

func walk(n Node, p Path, fn func(Path, Node) bool) {
	if !fn(p, n) {
		return
	}
	if s, ok := n.(*Split); ok {
		walk(s.Children[0], p.Child(0), fn)
		walk(s.Children[1], p.Child(1), fn)
	}
}

// Leaves returns the paths of all leaves in depth-first order.
func Leaves(tree Node) []Path {
	var out []Path
	Walk(tree, func(p Path, n Node) bool {
		if _, ok := n.(Leaf); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Count returns the number of leaves.
func Count(tree Node) int {
	switch n := tree.(type) {
	case Leaf:
		return 1
	case *Split:
		return Count(n.Children[0]) + Count(n.Children[1])
	default:
		return 0
	}
}

// Depth returns the length of the longest path. A single leaf has depth 0.
func Depth(tree Node) int {
	s, ok := tree.(*Split)
	if !ok {
		return 0
	}
	return 1 + max(Depth(s.Children[0]), Depth(s.Children[1]))
}

// Equal reports whether a and b have the same shape, orientations and leaf
// ids, with ratios compared by their fractions.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case Leaf:
		y, ok := b.(Leaf)
		return ok && x.ID == y.ID
	case *Split:
		y, ok := b.(*Split)
		if !ok {
			return false
		}
		if x == y {
			return true
		}
		return x.Orient == y.Orient &&
			x.Ratio.AlmostEqual(y.Ratio) &&
			Equal(x.Children[0], y.Children[0]) &&
			Equal(x.Children[1], y.Children[1])
	default:
		return a == nil && b == nil
	}
}
