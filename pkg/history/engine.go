package history

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/panelgrid/pkg/edit"
)

// DefaultLimit is the number of undoable entries kept.
const DefaultLimit = 50

// Snapshot is a consistent view of the engine.
type Snapshot struct {
	Present  State
	Artifact string
	Past     int
	Future   int
}

// Outcome describes what an operation did.
type Outcome struct {
	// Applied is false when Undo or Redo had nothing to do.
	Applied bool
	// Superseded is set when a newer operation installed its present first.
	// History was still updated, but the present was left alone.
	Superseded bool
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLimit sets the number of undoable entries kept. Values below one are
// ignored.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine is the past/present/future state machine. It is safe for
// concurrent use.
type Engine struct {
	mu       sync.Mutex
	past     []Entry
	future   []Entry
	present  State
	artifact string

	limit  int
	logger *log.Logger

	gen       uint64 // last generation handed out
	installed uint64 // generation of the current present
	nextID    uint64

	listeners []func(Snapshot)
}

// New returns an engine whose present is initial.
func New(initial State, artifact string, opts ...Option) *Engine {
	e := &Engine{
		present:  initial,
		artifact: artifact,
		limit:    DefaultLimit,
		logger:   log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnChange registers fn to be called after every change of the engine's
// state. It runs outside the engine's lock.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Present returns the current state.
func (e *Engine) Present() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.present
}

// Artifact returns the artifact rendered from the present.
func (e *Engine) Artifact() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.artifact
}

// Snapshot returns the present and the sizes of both lists.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{Present: e.present, Artifact: e.artifact, Past: len(e.past), Future: len(e.future)}
}

// CanUndo reports whether past is non-empty.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past) > 0
}

// CanRedo reports whether future is non-empty.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.future) > 0
}

// Len returns the number of past and future entries.
func (e *Engine) Len() (past, future int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past), len(e.future)
}

// Kinds returns the kinds of the past entries, oldest first.
func (e *Engine) Kinds() []edit.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]edit.Kind, len(e.past))
	for i, en := range e.past {
		out[i] = en.Kind
	}
	return out
}

// Execute builds a command from the present, runs its Do and records it.
// On success future is cleared and the returned state becomes the present.
// Builder and Do errors leave the engine unchanged and are returned as is.
func (e *Engine) Execute(ctx context.Context, kind edit.Kind, build Builder) (Outcome, error) {
	e.mu.Lock()
	present := e.present
	gen := e.nextGen()
	e.mu.Unlock()

	cmd, err := build(present)
	if err != nil {
		return Outcome{}, err
	}

	res, err := cmd.Do(ctx, present)
	if err != nil {
		e.logger.Warn("edit failed", "kind", kind, "error", err)
		return Outcome{}, err
	}

	e.mu.Lock()
	e.nextID++
	e.past = append(e.past, Entry{Kind: kind, Command: cmd, id: e.nextID})
	if over := len(e.past) - e.limit; over > 0 {
		e.past = append([]Entry(nil), e.past[over:]...)
	}
	e.future = nil
	out := Outcome{Applied: true, Superseded: !e.install(gen, res)}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug("edit executed", "kind", kind, "past", snap.Past, "superseded", out.Superseded)
	e.notify(snap)
	return out, nil
}

// Undo reverts the most recent entry. It does nothing when past is empty.
// On failure the engine is unchanged.
func (e *Engine) Undo(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	if len(e.past) == 0 {
		e.mu.Unlock()
		return Outcome{}, nil
	}
	entry := e.past[len(e.past)-1]
	present := e.present
	gen := e.nextGen()
	e.mu.Unlock()

	res, err := entry.Command.Undo(ctx, present)
	if err != nil {
		e.logger.Warn("undo failed", "kind", entry.Kind, "error", err)
		return Outcome{}, err
	}

	e.mu.Lock()
	if n := len(e.past); n == 0 || e.past[n-1].id != entry.id {
		// The service already reverted the entry; it must not run again.
		e.consume(entry.id)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.logger.Debug("undo result discarded", "kind", entry.Kind)
		e.notify(snap)
		return Outcome{Applied: true, Superseded: true}, nil
	}
	e.past = e.past[:len(e.past)-1]
	e.future = append([]Entry{entry}, e.future...)
	out := Outcome{Applied: true, Superseded: !e.install(gen, res)}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug("undo", "kind", entry.Kind, "past", snap.Past, "future", snap.Future)
	e.notify(snap)
	return out, nil
}

// Redo re-applies the most recently undone entry. It does nothing when
// future is empty. On failure the engine is unchanged.
func (e *Engine) Redo(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	if len(e.future) == 0 {
		e.mu.Unlock()
		return Outcome{}, nil
	}
	entry := e.future[0]
	present := e.present
	gen := e.nextGen()
	e.mu.Unlock()

	res, err := entry.Command.Do(ctx, present)
	if err != nil {
		e.logger.Warn("redo failed", "kind", entry.Kind, "error", err)
		return Outcome{}, err
	}

	e.mu.Lock()
	if len(e.future) == 0 || e.future[0].id != entry.id {
		e.consume(entry.id)
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.logger.Debug("redo result discarded", "kind", entry.Kind)
		e.notify(snap)
		return Outcome{Applied: true, Superseded: true}, nil
	}
	e.future = e.future[1:]
	e.past = append(e.past, entry)
	if over := len(e.past) - e.limit; over > 0 {
		e.past = append([]Entry(nil), e.past[over:]...)
	}
	out := Outcome{Applied: true, Superseded: !e.install(gen, res)}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug("redo", "kind", entry.Kind, "past", snap.Past, "future", snap.Future)
	e.notify(snap)
	return out, nil
}

// Reset clears both lists and installs state directly. It is not undoable
// and supersedes every operation still in flight.
func (e *Engine) Reset(state State, artifact string) {
	e.mu.Lock()
	e.past, e.future = nil, nil
	e.present, e.artifact = state, artifact
	e.installed = e.nextGen()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug("history reset")
	e.notify(snap)
}

// Drop removes every entry for which discard returns true from both lists
// without touching the present.
func (e *Engine) Drop(discard func(Entry) bool) int {
	e.mu.Lock()
	n := 0
	keep := func(in []Entry) []Entry {
		out := in[:0:0]
		for _, en := range in {
			if discard(en) {
				n++
				continue
			}
			out = append(out, en)
		}
		return out
	}
	e.past, e.future = keep(e.past), keep(e.future)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if n > 0 {
		e.notify(snap)
	}
	return n
}

// consume removes the entry with id from both lists. Callers hold e.mu.
func (e *Engine) consume(id uint64) {
	other := func(en Entry) bool { return en.id == id }
	e.past = slices.DeleteFunc(e.past, other)
	e.future = slices.DeleteFunc(e.future, other)
}

func (e *Engine) nextGen() uint64 {
	e.gen++
	return e.gen
}

// install sets the present from res if gen is newer than the installed one.
// Callers hold e.mu.
func (e *Engine) install(gen uint64, res Result) bool {
	if gen < e.installed {
		return false
	}
	e.present = res.State
	e.artifact = res.Artifact
	e.installed = gen
	return true
}

func (e *Engine) notify(s Snapshot) {
	e.mu.Lock()
	ls := slices.Clone(e.listeners)
	e.mu.Unlock()
	for _, fn := range ls {
		fn(s)
	}
}
