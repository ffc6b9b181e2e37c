package layout

import (
	"fmt"
	"strings"

	"github.com/matzehuels/panelgrid/pkg/errors"
)

// Validate checks the structural invariants of tree: every split has a valid
// orientation, positive ratios and two non-nil children. When known is not
// nil, every leaf id must also satisfy it.
func Validate(tree Node, known func(id string) bool) error {
	if tree == nil {
		return errors.New(errors.ErrCodeValidation, "layout is empty")
	}
	var err error
	Walk(tree, func(p Path, n Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case Leaf:
			if n.ID == "" {
				err = errors.New(errors.ErrCodeValidation, "leaf at %s has no function", p)
			} else if known != nil && !known(n.ID) {
				err = errors.New(errors.ErrCodeValidation, "unknown function %q at %s", n.ID, p)
			}
		case *Split:
			switch {
			case n == nil:
				err = errors.New(errors.ErrCodeValidation, "split at %s is nil", p)
				return false
			case !n.Orient.Valid():
				err = errors.New(errors.ErrCodeValidation, "split at %s has invalid orientation %q", p, n.Orient)
			case !n.Ratio.Valid():
				err = errors.New(errors.ErrCodeValidation, "split at %s has invalid ratios %v", p, n.Ratio)
			case n.Children[0] == nil || n.Children[1] == nil:
				err = errors.New(errors.ErrCodeValidation, "split at %s is missing a child", p)
				return false
			}
		default:
			err = errors.New(errors.ErrCodeValidation, "node at %s is missing", p)
		}
		return err == nil
	})
	return err
}

// Format renders tree as an indented outline, one node per line.
//
//	root  row 70/30
//	  0     column 30/70
//	  0.0     f1l
func Format(tree Node) string {
	var b strings.Builder
	Walk(tree, func(p Path, n Node) bool {
		indent := strings.Repeat("  ", len(p))
		switch n := n.(type) {
		case Leaf:
			fmt.Fprintf(&b, "%s%-6s %s\n", indent, p, n.ID)
		case *Split:
			r := n.Ratio.Normalize()
			fmt.Fprintf(&b, "%s%-6s %s %.4g/%.4g\n", indent, p, n.Orient, r[0], r[1])
		}
		return true
	})
	return b.String()
}
