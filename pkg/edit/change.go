// Package edit implements the edit algebra of layout trees.
//
// Every operation is a pure function over an immutable [layout.Node]: it
// returns the edited tree together with the [Change] that undoes it. Changes
// are plain data, so lists of them can be serialized, sent over the wire and
// replayed with [Apply].
//
// Operations that would not alter the tree (swapping a path with itself,
// replacing a leaf by the same function, setting an equal ratio) fail with a
// NO_OP error; callers never record them in history. Use [IsNoop] to detect
// them.
package edit

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Kind names an edit operation.
type Kind string

const (
	KindSplit       Kind = "split"
	KindDelete      Kind = "delete"
	KindInsert      Kind = "insert"
	KindReplace     Kind = "replace"
	KindRotate      Kind = "rotate"
	KindResize      Kind = "resize"
	KindRestructure Kind = "restructure"
	KindSwap        Kind = "swap"
	KindMerge       Kind = "merge"
	KindUnmerge     Kind = "unmerge"
)

// Change describes one edit. Only the fields used by Kind are set:
//
//	split       Path, Orient
//	delete      Path
//	insert      Path, Orient, Ratio, Value
//	replace     Path, Value
//	rotate      Path
//	restructure Path, Ratio
//	swap        Path, PathB
//	resize      Size
//
// Merge and unmerge are computed by the service and expand to lists of the
// kinds above.
type Change struct {
	Kind   Kind
	Path   layout.Path
	PathB  layout.Path
	Orient layout.Orientation
	Ratio  layout.Ratio
	Value  layout.Node
	Size   layout.FigureSize
}

func (c Change) String() string {
	switch c.Kind {
	case KindSplit:
		return fmt.Sprintf("split(%s, %s)", c.Path, c.Orient)
	case KindInsert:
		return fmt.Sprintf("insert(%s, %s, %v, %v)", c.Path, c.Orient, c.Ratio, c.Value)
	case KindReplace:
		return fmt.Sprintf("replace(%s, %v)", c.Path, c.Value)
	case KindRestructure:
		return fmt.Sprintf("restructure(%s, %v)", c.Path, c.Ratio)
	case KindSwap:
		return fmt.Sprintf("swap(%s, %s)", c.Path, c.PathB)
	case KindResize:
		return fmt.Sprintf("resize(%s)", c.Size)
	default:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Path)
	}
}

type changeJSON struct {
	Kind   Kind               `json:"kind"`
	Path   layout.Path        `json:"path"`
	PathB  layout.Path        `json:"pathB,omitempty"`
	Orient layout.Orientation `json:"orient,omitempty"`
	Ratios *layout.Ratio      `json:"ratios,omitempty"`
	Value  *layout.Tree       `json:"value,omitempty"`
	Size   *layout.FigureSize `json:"figsize,omitempty"`
}

// MarshalJSON encodes the change as {"kind", "path", ...} with only the
// fields used by its kind.
func (c Change) MarshalJSON() ([]byte, error) {
	out := changeJSON{Kind: c.Kind, Path: c.Path}
	switch c.Kind {
	case KindSplit:
		out.Orient = c.Orient
	case KindInsert:
		out.Orient = c.Orient
		out.Ratios = &c.Ratio
		out.Value = &layout.Tree{Root: c.Value}
	case KindReplace:
		out.Value = &layout.Tree{Root: c.Value}
	case KindRestructure:
		out.Ratios = &c.Ratio
	case KindSwap:
		out.PathB = c.PathB
	case KindResize:
		out.Size = &c.Size
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a change and checks that its kind is known.
func (c *Change) UnmarshalJSON(data []byte) error {
	var in changeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "invalid change")
	}
	switch in.Kind {
	case KindSplit, KindDelete, KindInsert, KindReplace, KindRotate,
		KindRestructure, KindSwap, KindResize:
	default:
		return errors.New(errors.ErrCodeValidation, "unknown change kind %q", in.Kind)
	}
	*c = Change{Kind: in.Kind, Path: in.Path, PathB: in.PathB, Orient: in.Orient}
	if in.Ratios != nil {
		c.Ratio = *in.Ratios
	}
	if in.Value != nil {
		c.Value = in.Value.Root
	}
	if in.Size != nil {
		c.Size = *in.Size
	}
	return nil
}

// IsNoop reports whether err signals an edit without effect.
func IsNoop(err error) bool {
	return errors.Is(err, errors.ErrCodeNoop)
}

func noop(format string, args ...any) error {
	return errors.New(errors.ErrCodeNoop, format, args...)
}
