// Package history implements undo/redo over remotely applied edits.
//
// Every edit is a [Command] whose Do and Undo each perform a round trip to
// the rendering service and return the state the service settled on. The
// [Engine] keeps the classic three lists (past, present, future) and only
// ever installs service-returned state as the present, so the client never
// diverges from the server mirror even when ratios are rounded remotely.
//
// Round trips run outside the engine's lock. Operations that overlap are
// reconciled with generation numbers: whichever operation started last owns
// the present, and results of older operations are recorded in history but
// do not overwrite it.
package history

import (
	"context"

	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// State is the tree and figure size shared with the service.
type State struct {
	Tree layout.Node
	Size layout.FigureSize
}

// Equal compares two states structurally.
func (s State) Equal(other State) bool {
	return layout.Equal(s.Tree, other.Tree) && s.Size.Equal(other.Size)
}

// Result is what a round trip returns: the authoritative state and the
// artifact rendered from it.
type Result struct {
	State
	Artifact string
}

// Command is a reversible edit. Both methods receive the present state at
// the time they are invoked and return the service's resulting state.
type Command interface {
	Do(ctx context.Context, present State) (Result, error)
	Undo(ctx context.Context, present State) (Result, error)
}

// Func adapts two functions to [Command].
type Func struct {
	DoFunc   func(ctx context.Context, present State) (Result, error)
	UndoFunc func(ctx context.Context, present State) (Result, error)
}

func (f Func) Do(ctx context.Context, present State) (Result, error) {
	return f.DoFunc(ctx, present)
}

func (f Func) Undo(ctx context.Context, present State) (Result, error) {
	return f.UndoFunc(ctx, present)
}

// Builder creates a command from the present state. Local preconditions are
// checked here: a builder error aborts the edit before any round trip.
type Builder func(present State) (Command, error)

// Entry is one recorded edit.
type Entry struct {
	Kind    edit.Kind
	Command Command

	id uint64
}
