package render

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/matzehuels/panelgrid/pkg/errors"
)

// Rect is a panel rectangle in pixels, origin at the top left.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of r.
func (r Rect) Center() (float64, float64) { return r.X + r.W/2, r.Y + r.H/2 }

// Inset shrinks r by m on every side. Rects too small to inset are returned
// collapsed to their center.
func (r Rect) Inset(m float64) Rect {
	if r.W <= 2*m || r.H <= 2*m {
		cx, cy := r.Center()
		return Rect{X: cx, Y: cy}
	}
	return Rect{X: r.X + m, Y: r.Y + m, W: r.W - 2*m, H: r.H - 2*m}
}

// DrawFunc writes the SVG elements of one panel into buf. id is the name
// the function is registered under.
type DrawFunc func(buf *bytes.Buffer, r Rect, id string)

// Registry maps function names to drawing functions. Names keep their
// registration order. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	funcs map[string]DrawFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]DrawFunc)}
}

// Builtin returns a registry holding the built-in drawing functions.
func Builtin() *Registry {
	r := NewRegistry()
	for _, b := range builtins {
		r.Register(b.name, b.fn)
	}
	return r
}

// Register adds fn under name. If name is taken, the first free name of
// the form name_1, name_2, ... is used instead. It returns the name fn was
// registered under.
func (r *Registry) Register(name string, fn DrawFunc) (string, error) {
	if err := errors.ValidateFunctionName(name); err != nil {
		return "", err
	}
	if fn == nil {
		return "", errors.New(errors.ErrCodeInvalidInput, "nil draw function for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	unique := name
	for i := 1; r.funcs[unique] != nil; i++ {
		unique = fmt.Sprintf("%s_%d", name, i)
	}
	r.funcs[unique] = fn
	r.order = append(r.order, unique)
	return unique, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.funcs[name] != nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (DrawFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
