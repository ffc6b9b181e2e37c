package edit

import (
	"encoding/json"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// ApplyOne applies a single change and returns its inverse.
func ApplyOne(t layout.Node, size layout.FigureSize, c Change) (layout.Node, layout.FigureSize, Change, error) {
	var (
		out layout.Node
		inv Change
		err error
	)
	switch c.Kind {
	case KindSplit:
		out, inv, err = Split(t, c.Path, c.Orient)
	case KindDelete:
		out, inv, err = Delete(t, c.Path)
	case KindInsert:
		out, inv, err = Insert(t, c.Path, c.Orient, c.Ratio, c.Value)
	case KindReplace:
		out, inv, err = ReplaceNode(t, c.Path, c.Value)
	case KindRotate:
		out, inv, err = Rotate(t, c.Path)
	case KindRestructure:
		out, inv, err = Restructure(t, c.Path, c.Ratio)
	case KindSwap:
		out, inv, err = Swap(t, c.Path, c.PathB)
	case KindResize:
		next, rinv, rerr := Resize(size, c.Size)
		return t, next, rinv, rerr
	default:
		return t, size, Change{}, errors.New(errors.ErrCodeValidation, "cannot apply change of kind %q", c.Kind)
	}
	if err != nil {
		return t, size, Change{}, err
	}
	return out, size, inv, nil
}

// Apply applies changes in order. It returns the final tree and size plus
// the list of inverse changes, already reversed so that applying it undoes
// the whole list. Changes without effect are skipped. On failure the input
// values are returned unchanged together with the error.
func Apply(t layout.Node, size layout.FigureSize, changes []Change) (layout.Node, layout.FigureSize, []Change, error) {
	curTree, curSize := t, size
	inverse := make([]Change, 0, len(changes))
	for i, c := range changes {
		nt, ns, inv, err := ApplyOne(curTree, curSize, c)
		if IsNoop(err) {
			continue
		}
		if err != nil {
			return t, size, nil, errors.Wrap(errors.GetCodeOr(err, errors.ErrCodeValidation), err, "change %d (%s)", i, c.Kind)
		}
		curTree, curSize = nt, ns
		inverse = append(inverse, inv)
	}
	for i, j := 0, len(inverse)-1; i < j; i, j = i+1, j-1 {
		inverse[i], inverse[j] = inverse[j], inverse[i]
	}
	return curTree, curSize, inverse, nil
}

// DecodeChanges decodes a JSON change list.
func DecodeChanges(data []byte) ([]Change, error) {
	var out []Change
	if err := json.Unmarshal(data, &out); err != nil {
		if errors.GetCode(err) != "" {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid change list")
	}
	return out, nil
}

// =============================================================================
// Batched restructure
// =============================================================================

// RestructureChange sets the ratio of the split at Path. It encodes as the
// two-element array [path, ratios].
type RestructureChange struct {
	Path  layout.Path
	Ratio layout.Ratio
}

// MarshalJSON encodes [path, ratios].
func (r RestructureChange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Path, r.Ratio})
}

// UnmarshalJSON decodes [path, ratios].
func (r *RestructureChange) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) != 2 {
		return errors.New(errors.ErrCodeValidation, "restructure info must be [path, ratios]")
	}
	if err := json.Unmarshal(raw[0], &r.Path); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &r.Ratio); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "invalid ratios")
	}
	return nil
}

// Restructure2 applies at most one row-oriented and one column-oriented
// ratio change in a single step. The row change must address a row split
// and the column change a column split; both may not name the same split.
// The returned inverses hold the ratios the splits had before the call, read
// from t. A change without effect yields a nil inverse; if neither change
// has an effect the call is a no-op.
func Restructure2(t layout.Node, row, column *RestructureChange) (layout.Node, *RestructureChange, *RestructureChange, error) {
	if row != nil && column != nil && row.Path.Equal(column.Path) {
		return t, nil, nil, errors.New(errors.ErrCodeInvalidPath, "row and column changes both address %s", row.Path)
	}
	for _, slot := range []struct {
		c *RestructureChange
		o layout.Orientation
	}{{row, layout.Row}, {column, layout.Column}} {
		if slot.c == nil {
			continue
		}
		s, err := layout.GetSplit(t, slot.c.Path)
		if err != nil {
			return t, nil, nil, err
		}
		if s.Orient != slot.o {
			return t, nil, nil, errors.New(errors.ErrCodeInvalidPath, "path %s addresses a %s split, want %s", slot.c.Path, s.Orient, slot.o)
		}
	}
	out := t
	var inv [2]*RestructureChange
	applied := 0
	for i, c := range []*RestructureChange{row, column} {
		if c == nil {
			continue
		}
		next, ch, err := Restructure(out, c.Path, c.Ratio)
		if IsNoop(err) {
			continue
		}
		if err != nil {
			return t, nil, nil, err
		}
		out = next
		inv[i] = &RestructureChange{Path: ch.Path, Ratio: ch.Ratio}
		applied++
	}
	if applied == 0 {
		return t, nil, nil, noop("restructure changes nothing")
	}
	return out, inv[0], inv[1], nil
}
