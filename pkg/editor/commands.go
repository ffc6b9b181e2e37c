package editor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matzehuels/panelgrid/pkg/coalesce"
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// call is one round trip.
type call func(ctx context.Context) (history.Result, error)

func command(do, undo call) history.Command {
	return history.Func{
		DoFunc:   func(ctx context.Context, _ history.State) (history.Result, error) { return do(ctx) },
		UndoFunc: func(ctx context.Context, _ history.State) (history.Result, error) { return undo(ctx) },
	}
}

// Split divides the node at p into two copies of itself arranged by o.
func (e *Editor) Split(ctx context.Context, p layout.Path, o layout.Orientation) (history.Outcome, error) {
	p = p.Clone()
	return e.engine.Execute(ctx, edit.KindSplit, func(present history.State) (history.Command, error) {
		_, inv, err := edit.Split(present.Tree, p, o)
		if err != nil {
			return nil, err
		}
		target, _ := layout.GetAt(present.Tree, p)
		undo := func(ctx context.Context) (history.Result, error) {
			return e.remote.Delete(ctx, inv.Path)
		}
		if !layout.IsLeaf(target) {
			// The service only deletes leaves; restore the previous state
			// as a whole instead.
			undo = func(ctx context.Context) (history.Result, error) {
				return e.remote.Render(ctx, present)
			}
		}
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Split(ctx, p, o)
		}, undo), nil
	})
}

// Delete removes the leaf at p; its parent collapses into the sibling.
func (e *Editor) Delete(ctx context.Context, p layout.Path) (history.Outcome, error) {
	p = p.Clone()
	return e.engine.Execute(ctx, edit.KindDelete, func(present history.State) (history.Command, error) {
		_, inv, err := edit.DeleteLeaf(present.Tree, p)
		if err != nil {
			return nil, err
		}
		removed := inv.Value.(layout.Leaf)
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Delete(ctx, p)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Insert(ctx, inv.Path, removed.ID, inv.Orient, inv.Ratio)
		}), nil
	})
}

// Insert wraps the parent of p in a new split holding a leaf drawn by value
// at index p.Last().
func (e *Editor) Insert(ctx context.Context, p layout.Path, value string, o layout.Orientation, r layout.Ratio) (history.Outcome, error) {
	p = p.Clone()
	return e.engine.Execute(ctx, edit.KindInsert, func(present history.State) (history.Command, error) {
		if err := e.requireKnown(value); err != nil {
			return nil, err
		}
		_, inv, err := edit.Insert(present.Tree, p, o, r, layout.Leaf{ID: value})
		if err != nil {
			return nil, err
		}
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Insert(ctx, p, value, o, r)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Delete(ctx, inv.Path)
		}), nil
	})
}

// Swap exchanges the leaves at a and b. Identical paths are a no-op.
func (e *Editor) Swap(ctx context.Context, a, b layout.Path) (history.Outcome, error) {
	a, b = a.Clone(), b.Clone()
	return e.engine.Execute(ctx, edit.KindSwap, func(present history.State) (history.Command, error) {
		if _, _, err := edit.SwapLeaves(present.Tree, a, b); err != nil {
			return nil, err
		}
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Swap(ctx, a, b)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Swap(ctx, b, a)
		}), nil
	})
}

// Replace sets the function of the leaf at p.
func (e *Editor) Replace(ctx context.Context, p layout.Path, value string) (history.Outcome, error) {
	p = p.Clone()
	return e.engine.Execute(ctx, edit.KindReplace, func(present history.State) (history.Command, error) {
		if err := e.requireKnown(value); err != nil {
			return nil, err
		}
		_, inv, err := edit.Replace(present.Tree, p, value)
		if err != nil {
			return nil, err
		}
		prev := inv.Value.(layout.Leaf)
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Replace(ctx, p, value)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Replace(ctx, p, prev.ID)
		}), nil
	})
}

// Rotate flips the orientation of the split at p.
func (e *Editor) Rotate(ctx context.Context, p layout.Path) (history.Outcome, error) {
	p = p.Clone()
	return e.engine.Execute(ctx, edit.KindRotate, func(present history.State) (history.Command, error) {
		if _, _, err := edit.Rotate(present.Tree, p); err != nil {
			return nil, err
		}
		rotate := func(ctx context.Context) (history.Result, error) { return e.remote.Rotate(ctx, p) }
		return command(rotate, rotate), nil
	})
}

// Resize sets the figure size.
func (e *Editor) Resize(ctx context.Context, size layout.FigureSize) (history.Outcome, error) {
	return e.engine.Execute(ctx, edit.KindResize, func(present history.State) (history.Command, error) {
		_, inv, err := edit.Resize(present.Size, size)
		if err != nil {
			return nil, err
		}
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Resize(ctx, size)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Resize(ctx, inv.Size)
		}), nil
	})
}

// Restructure sets at most one row and one column ratio in a single edit.
// The ratios to restore are read from the present when the edit is built.
func (e *Editor) Restructure(ctx context.Context, row, column *edit.RestructureChange) (history.Outcome, error) {
	return e.engine.Execute(ctx, edit.KindRestructure, func(present history.State) (history.Command, error) {
		for _, c := range []*edit.RestructureChange{row, column} {
			if c != nil && !c.Ratio.Valid() {
				return nil, errors.New(errors.ErrCodeValidation, "invalid ratios %v", c.Ratio)
			}
		}
		_, rowInv, colInv, err := edit.Restructure2(present.Tree, row, column)
		if err != nil {
			return nil, err
		}
		// Send only the changes that have an effect.
		fwdRow, fwdCol := row, column
		if rowInv == nil {
			fwdRow = nil
		}
		if colInv == nil {
			fwdCol = nil
		}
		return command(func(ctx context.Context) (history.Result, error) {
			return e.remote.Restructure(ctx, fwdRow, fwdCol)
		}, func(ctx context.Context) (history.Result, error) {
			return e.remote.Restructure(ctx, rowInv, colInv)
		}), nil
	})
}

// Drag proposes a ratio for the split at p while a separator is being
// dragged. Proposals are debounced and committed as one restructure edit;
// failures of that commit go to the notify function. It reports whether the
// proposal was kept.
func (e *Editor) Drag(p layout.Path, r layout.Ratio) (bool, error) {
	return e.drag.Propose(coalesce.Proposal{Path: p.Clone(), Ratio: r})
}

// FlushDrag commits pending drag proposals now.
func (e *Editor) FlushDrag(ctx context.Context) error { return e.drag.Flush(ctx) }

// DragPending reports whether drag proposals wait for their commit.
func (e *Editor) DragPending() bool { return e.drag.Pending() }

func (e *Editor) commitDrag(ctx context.Context, row, column *edit.RestructureChange) error {
	_, err := e.Restructure(ctx, row, column)
	if edit.IsNoop(err) {
		return nil
	}
	return err
}

// =============================================================================
// Merge
// =============================================================================

// Merge merges the leaves at a and b into one panel. Identical paths and
// siblings are a no-op. The service computes the new tree and the inverse.
func (e *Editor) Merge(ctx context.Context, a, b layout.Path) (history.Outcome, error) {
	a, b = a.Clone(), b.Clone()
	return e.engine.Execute(ctx, edit.KindMerge, func(present history.State) (history.Command, error) {
		if _, err := layout.GetLeaf(present.Tree, a); err != nil {
			return nil, err
		}
		if _, err := layout.GetLeaf(present.Tree, b); err != nil {
			return nil, err
		}
		if a.Equal(b) {
			return nil, errors.New(errors.ErrCodeNoop, "merging %s with itself", a)
		}
		if a.IsSiblingOf(b) {
			return nil, errors.New(errors.ErrCodeNoop, "%s and %s are already siblings", a, b)
		}
		return &mergeCommand{remote: e.remote, a: a, b: b}, nil
	})
}

// mergeCommand keeps the inverse of its last Do together with the epoch it
// was obtained in.
type mergeCommand struct {
	remote Remote
	a, b   layout.Path

	mu      sync.Mutex
	inverse json.RawMessage
	epoch   uint64
}

func (m *mergeCommand) Do(ctx context.Context, _ history.State) (history.Result, error) {
	epoch := m.remote.Epoch()
	res, inverse, err := m.remote.Merge(ctx, m.a, m.b)
	if err != nil {
		return history.Result{}, err
	}
	m.mu.Lock()
	m.inverse, m.epoch = inverse, epoch
	m.mu.Unlock()
	return res, nil
}

func (m *mergeCommand) Undo(ctx context.Context, _ history.State) (history.Result, error) {
	m.mu.Lock()
	inverse, epoch := m.inverse, m.epoch
	m.mu.Unlock()
	if inverse == nil || epoch != m.remote.Epoch() {
		return history.Result{}, errors.New(errors.ErrCodeStaleInverse, "merge of %s and %s belongs to a previous session", m.a, m.b)
	}
	return m.remote.Unmerge(ctx, inverse)
}

func (m *mergeCommand) stale(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch != epoch
}
