// Package editor is the client core of panelgrid.
//
// An [Editor] ties together the service client, the history engine, the
// drag coalescer and the persisted state. Every user operation becomes a
// reversible command whose Do and Undo each call the service; local
// preconditions are checked with package edit before anything is sent, so an
// invalid path never reaches the network and an edit without effect is never
// recorded.
//
// The present state shown to the user is always the one the service
// returned. Each change of it is saved to the configured [storage.Store]
// together with the session token.
//
// Merge inverses are opaque server data that refer to the session they were
// produced in. They carry the client's epoch; once the session has been
// replaced, undoing such a merge fails with STALE_INVERSE without a round
// trip and the entry is dropped. When [Editor.Reconnect] has to create a new
// session the whole history is cleared, since the new mirror starts from the
// present.
package editor

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/panelgrid/pkg/client"
	"github.com/matzehuels/panelgrid/pkg/coalesce"
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/preset"
	"github.com/matzehuels/panelgrid/pkg/storage"
)

// Remote is the service as seen by the editor. [*client.Client] implements it.
type Remote interface {
	Functions(ctx context.Context) ([]string, error)
	EnsureSession(ctx context.Context, state history.State) (history.Result, bool, error)
	Render(ctx context.Context, state history.State) (history.Result, error)

	Split(ctx context.Context, p layout.Path, o layout.Orientation) (history.Result, error)
	Delete(ctx context.Context, p layout.Path) (history.Result, error)
	Insert(ctx context.Context, p layout.Path, value string, o layout.Orientation, r layout.Ratio) (history.Result, error)
	Replace(ctx context.Context, p layout.Path, value string) (history.Result, error)
	Rotate(ctx context.Context, p layout.Path) (history.Result, error)
	Resize(ctx context.Context, size layout.FigureSize) (history.Result, error)
	Restructure(ctx context.Context, row, column *edit.RestructureChange) (history.Result, error)
	Swap(ctx context.Context, a, b layout.Path) (history.Result, error)
	Merge(ctx context.Context, a, b layout.Path) (history.Result, json.RawMessage, error)
	Unmerge(ctx context.Context, inverse json.RawMessage) (history.Result, error)

	Preset(ctx context.Context, name string) (*preset.Preset, error)
	SavePreset(ctx context.Context, p *preset.Preset) error

	Token() string
	SetToken(token string)
	Epoch() uint64
}

var _ Remote = (*client.Client)(nil)

// DefaultState is the state of a new figure.
func DefaultState() history.State {
	return history.State{Tree: layout.Leaf{ID: layout.DefaultLeaf}, Size: layout.DefaultSize}
}

// Option configures an [Editor].
type Option func(*Editor)

// WithStore persists the present to s. Defaults to a [storage.MemoryStore].
func WithStore(s storage.Store) Option {
	return func(e *Editor) {
		if s != nil {
			e.store = s
		}
	}
}

// WithLogger sets the logger, also used by the engine and the coalescer.
func WithLogger(l *log.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistory passes options to the history engine.
func WithHistory(opts ...history.Option) Option {
	return func(e *Editor) { e.historyOpts = append(e.historyOpts, opts...) }
}

// WithCoalescer passes options to the drag coalescer.
func WithCoalescer(opts ...coalesce.Option) Option {
	return func(e *Editor) { e.coalesceOpts = append(e.coalesceOpts, opts...) }
}

// WithNotify sets the function that receives failures of edits committed in
// the background, i.e. debounced drags.
func WithNotify(fn func(error)) Option {
	return func(e *Editor) { e.notify = fn }
}

// Editor is the context object of an editing session. It is safe for
// concurrent use.
type Editor struct {
	remote Remote
	engine *history.Engine
	drag   *coalesce.Coalescer
	store  storage.Store
	logger *log.Logger
	notify func(error)

	historyOpts  []history.Option
	coalesceOpts []coalesce.Option

	mu          sync.RWMutex
	functions   []string
	known       map[string]bool
	showHandles bool
}

// New returns an editor on remote. Call [Editor.Bootstrap] before editing.
func New(remote Remote, opts ...Option) *Editor {
	e := &Editor{
		remote: remote,
		store:  storage.NewMemoryStore(),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}

	hopts := append([]history.Option{history.WithLogger(e.logger)}, e.historyOpts...)
	e.engine = history.New(DefaultState(), "", hopts...)
	e.engine.OnChange(e.persist)

	copts := append([]coalesce.Option{
		coalesce.WithLogger(e.logger),
		coalesce.OnCommit(func(err error) {
			if err != nil && e.notify != nil {
				e.notify(err)
			}
		}),
	}, e.coalesceOpts...)
	e.drag = coalesce.New(func() layout.Node { return e.engine.Present().Tree }, e.commitDrag, copts...)
	return e
}

// Close stops the drag coalescer, dropping pending proposals.
func (e *Editor) Close() { e.drag.Close() }

// =============================================================================
// Bootstrap and session
// =============================================================================

// Bootstrap restores the persisted state, fetches the function registry and
// revalidates the stored session or creates a new one. The service's answer
// becomes the present; history starts empty.
func (e *Editor) Bootstrap(ctx context.Context) error {
	state := DefaultState()
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Warn("could not load saved state, starting fresh", "error", err)
	}
	if snap != nil {
		state = history.State{Tree: snap.Tree, Size: snap.Size}
		e.mu.Lock()
		e.showHandles = snap.ShowHandles
		e.mu.Unlock()
		if snap.Token != "" {
			e.remote.SetToken(snap.Token)
		}
	}

	names, err := e.remote.Functions(ctx)
	if err != nil {
		return err
	}
	e.setFunctions(names)

	if err := layout.Validate(state.Tree, e.Known); err != nil || !state.Size.Valid() {
		e.logger.Warn("saved layout is not valid here, starting fresh", "error", err)
		state = DefaultState()
	}

	res, created, err := e.remote.EnsureSession(ctx, state)
	if err != nil {
		return err
	}
	if !created {
		if res, err = e.remote.Render(ctx, state); err != nil {
			return err
		}
	}
	e.logger.Debug("bootstrapped", "new_session", created, "panels", len(layout.Leaves(res.Tree)))
	e.engine.Reset(res.State, res.Artifact)
	return nil
}

// Reconnect checks the session and recreates it from the present if the
// service no longer knows it. A recreated session clears the history and
// reports true.
func (e *Editor) Reconnect(ctx context.Context) (bool, error) {
	res, created, err := e.remote.EnsureSession(ctx, e.engine.Present())
	if err != nil || !created {
		return false, err
	}
	e.logger.Info("session recreated, history cleared")
	e.engine.Reset(res.State, res.Artifact)
	return true, nil
}

func (e *Editor) setFunctions(names []string) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	e.mu.Lock()
	e.functions = append([]string(nil), names...)
	e.known = known
	e.mu.Unlock()
}

// Functions returns the drawing functions offered by the service.
func (e *Editor) Functions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.functions...)
}

// Known reports whether id is a drawing function of the service. Before
// Bootstrap every id is accepted.
func (e *Editor) Known(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.known == nil || e.known[id]
}

func (e *Editor) requireKnown(id string) error {
	if err := errors.ValidateFunctionName(id); err != nil {
		return err
	}
	if !e.Known(id) {
		return errors.New(errors.ErrCodeValidation, "unknown function %q", id)
	}
	return nil
}

// =============================================================================
// State access
// =============================================================================

// Present returns the current tree and size.
func (e *Editor) Present() history.State { return e.engine.Present() }

// Artifact returns the SVG rendered from the present.
func (e *Editor) Artifact() string { return e.engine.Artifact() }

// Snapshot returns the present and the history sizes.
func (e *Editor) Snapshot() history.Snapshot { return e.engine.Snapshot() }

// History returns the underlying engine.
func (e *Editor) History() *history.Engine { return e.engine }

// ShowHandles returns the persisted drag-handle preference.
func (e *Editor) ShowHandles() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.showHandles
}

// SetShowHandles changes the drag-handle preference and persists it.
func (e *Editor) SetShowHandles(v bool) {
	e.mu.Lock()
	e.showHandles = v
	e.mu.Unlock()
	e.persist(e.engine.Snapshot())
}

func (e *Editor) persist(snap history.Snapshot) {
	s := &storage.Snapshot{
		Tree:        snap.Present.Tree,
		Size:        snap.Present.Size,
		Token:       e.remote.Token(),
		ShowHandles: e.ShowHandles(),
	}
	if err := e.store.Save(context.Background(), s); err != nil {
		e.logger.Warn("could not save state", "error", err)
	}
}

// =============================================================================
// Undo, redo, reset
// =============================================================================

// Undo reverts the last edit. A merge whose inverse belongs to a replaced
// session cannot be undone: it fails with STALE_INVERSE and every such
// entry is removed from history.
func (e *Editor) Undo(ctx context.Context) (history.Outcome, error) {
	out, err := e.engine.Undo(ctx)
	if errors.Is(err, errors.ErrCodeStaleInverse) {
		epoch := e.remote.Epoch()
		n := e.engine.Drop(func(en history.Entry) bool {
			m, ok := en.Command.(*mergeCommand)
			return ok && m.stale(epoch)
		})
		e.logger.Warn("dropped merges of a previous session", "count", n)
	}
	return out, err
}

// Redo re-applies the last undone edit.
func (e *Editor) Redo(ctx context.Context) (history.Outcome, error) {
	return e.engine.Redo(ctx)
}

// Reset installs the default figure and clears history.
func (e *Editor) Reset(ctx context.Context) error {
	e.drag.Cancel()
	return e.install(ctx, DefaultState())
}

// install renders state on the service and makes the answer the new,
// history-less present.
func (e *Editor) install(ctx context.Context, state history.State) error {
	res, err := e.remote.Render(ctx, state)
	if err != nil {
		return err
	}
	e.engine.Reset(res.State, res.Artifact)
	return nil
}

// =============================================================================
// Configurations and presets
// =============================================================================

// LoadConfig imports a JSON configuration {"layout": ..., "figsize": [w, h]}.
// Data that does not describe a valid tree of known functions fails with
// VALIDATION_FAILED and leaves everything unchanged.
func (e *Editor) LoadConfig(ctx context.Context, data []byte) error {
	p, err := preset.Decode(data, e.Known)
	if err != nil {
		return err
	}
	e.drag.Cancel()
	return e.install(ctx, history.State{Tree: p.Layout, Size: p.FigSize})
}

// ExportConfig returns the present as a JSON configuration.
func (e *Editor) ExportConfig() ([]byte, error) {
	s := e.engine.Present()
	return preset.Encode(&preset.Preset{Layout: s.Tree, FigSize: s.Size})
}

// LoadPreset installs the named preset from the service.
func (e *Editor) LoadPreset(ctx context.Context, name string) error {
	p, err := e.remote.Preset(ctx, name)
	if err != nil {
		return err
	}
	if err := p.Validate(e.Known); err != nil {
		return err
	}
	e.drag.Cancel()
	return e.install(ctx, history.State{Tree: p.Layout, Size: p.FigSize})
}

// SavePreset stores the present on the service under name.
func (e *Editor) SavePreset(ctx context.Context, name string) error {
	s := e.engine.Present()
	return e.remote.SavePreset(ctx, &preset.Preset{Name: name, Layout: s.Tree, FigSize: s.Size})
}
