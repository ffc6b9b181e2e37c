// Package layout provides the binary space partition that describes a grid of
// plotting panels.
//
// A layout is a tree of [Node] values. A [Leaf] names a registered drawing
// function; a [*Split] divides its area between exactly two children, either
// side by side ([Row]) or stacked ([Column]), weighted by a [Ratio].
//
// # Addressing
//
// Nodes carry no identity of their own. They are addressed by a [Path], the
// sequence of child indices (0 or 1) leading from the root. The empty path is
// the root. Paths are only meaningful against the tree they were computed on;
// any structural edit may invalidate previously captured paths.
//
//	tree := &layout.Split{
//	    Orient:   layout.Row,
//	    Children: [2]layout.Node{layout.Leaf{ID: "draw_sine"}, layout.Leaf{ID: "draw_scatter"}},
//	    Ratio:    layout.DefaultRatio,
//	}
//	leaf, err := layout.GetLeaf(tree, layout.Path{1}) // draw_scatter
//
// # Immutability
//
// Trees are treated as immutable values. [SetChildAt] clones the ancestors on
// the path and shares every untouched sibling, so a tree handed to another
// goroutine is never modified behind its back.
//
// # Wire Format
//
// A leaf encodes as a bare JSON string and a split as
//
//	{"orient": "row", "children": ["draw_sine", "draw_scatter"], "ratios": [50, 50]}
//
// Use [Tree] to decode the union from JSON.
package layout
