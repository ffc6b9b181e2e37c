// Package coalesce turns the stream of ratio proposals produced by a drag
// gesture into single restructure commits.
//
// Proposals are sorted into two buckets by the orientation of the split they
// address, so that a row and a column separator can be dragged at the same
// time. Each bucket has its own debounce timer. When either timer settles,
// everything pending is committed as one batch and both buckets start over.
package coalesce

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

const (
	// DefaultEpsilon is the smallest change of a split's first share that
	// is forwarded.
	DefaultEpsilon = 0.01
	// DefaultDelay is the debounce window.
	DefaultDelay = 50 * time.Millisecond
)

// Proposal is a requested ratio for the split at Path.
type Proposal struct {
	Path  layout.Path
	Ratio layout.Ratio
}

// Commit applies a batch of at most one row and one column change.
type Commit func(ctx context.Context, row, column *edit.RestructureChange) error

// Option configures a [Coalescer].
type Option func(*Coalescer)

// WithClock replaces the real clock, e.g. with a [clock.Mock] in tests.
func WithClock(c clock.Clock) Option { return func(co *Coalescer) { co.clock = c } }

// WithDelay sets the debounce window.
func WithDelay(d time.Duration) Option {
	return func(co *Coalescer) {
		if d > 0 {
			co.delay = d
		}
	}
}

// WithEpsilon sets the jitter filter threshold.
func WithEpsilon(eps float64) Option {
	return func(co *Coalescer) {
		if eps >= 0 {
			co.epsilon = eps
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(co *Coalescer) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithContext sets the context timer-triggered commits run with.
func WithContext(ctx context.Context) Option { return func(co *Coalescer) { co.ctx = ctx } }

// OnCommit registers a callback for the result of every commit, including
// those triggered by timers.
func OnCommit(fn func(error)) Option { return func(co *Coalescer) { co.onCommit = fn } }

type bucket struct {
	change *edit.RestructureChange
	timer  *clock.Timer
}

// Coalescer debounces ratio proposals. It is safe for concurrent use.
type Coalescer struct {
	present func() layout.Node
	commit  Commit

	clock    clock.Clock
	delay    time.Duration
	epsilon  float64
	logger   *log.Logger
	ctx      context.Context
	onCommit func(error)

	mu      sync.Mutex
	buckets [2]bucket // indexed by bucketIndex
	gesture uint64
	closed  bool
}

// New returns a coalescer. present must return the live tree; it is read on
// every proposal to pick the bucket and filter jitter.
func New(present func() layout.Node, commit Commit, opts ...Option) *Coalescer {
	c := &Coalescer{
		present: present,
		commit:  commit,
		clock:   clock.New(),
		delay:   DefaultDelay,
		epsilon: DefaultEpsilon,
		logger:  log.NewWithOptions(io.Discard, log.Options{}),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func bucketIndex(o layout.Orientation) int {
	if o == layout.Row {
		return 0
	}
	return 1
}

// Propose records a ratio for the split at p.Path and restarts that
// bucket's timer. Proposals within epsilon of the split's current ratio are
// dropped; if such a proposal addresses the split its bucket is pending
// for, the pending change is discarded since the gesture returned to where
// it started. It reports whether the proposal was kept.
func (c *Coalescer) Propose(p Proposal) (bool, error) {
	if !p.Ratio.Valid() {
		return false, errors.New(errors.ErrCodeValidation, "invalid ratios %v", p.Ratio)
	}
	s, err := layout.GetSplit(c.present(), p.Path)
	if err != nil {
		return false, err
	}
	idx := bucketIndex(s.Orient)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, errors.New(errors.ErrCodeInternal, "coalescer is closed")
	}
	b := &c.buckets[idx]

	if math.Abs(p.Ratio.Fraction()-s.Ratio.Fraction()) < c.epsilon {
		if b.change != nil && b.change.Path.Equal(p.Path) {
			c.stopLocked(idx)
			c.logger.Debug("drag returned to start", "path", p.Path)
		}
		return false, nil
	}

	b.change = &edit.RestructureChange{Path: p.Path.Clone(), Ratio: p.Ratio}
	if b.timer != nil {
		b.timer.Stop()
	}
	gesture := c.gesture
	b.timer = c.clock.AfterFunc(c.delay, func() { c.fire(gesture) })
	return true, nil
}

// Pending reports whether any bucket holds a change.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets[0].change != nil || c.buckets[1].change != nil
}

// Flush commits pending changes immediately. It returns nil when nothing is
// pending.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	row, column := c.takeLocked()
	c.mu.Unlock()
	return c.run(ctx, row, column)
}

// Cancel drops all pending changes.
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	c.takeLocked()
	c.mu.Unlock()
}

// Close cancels pending changes and rejects further proposals.
func (c *Coalescer) Close() {
	c.mu.Lock()
	c.takeLocked()
	c.closed = true
	c.mu.Unlock()
}

func (c *Coalescer) fire(gesture uint64) {
	c.mu.Lock()
	if gesture != c.gesture {
		// Already flushed together with the other bucket.
		c.mu.Unlock()
		return
	}
	row, column := c.takeLocked()
	c.mu.Unlock()
	_ = c.run(c.ctx, row, column)
}

func (c *Coalescer) run(ctx context.Context, row, column *edit.RestructureChange) error {
	if row == nil && column == nil {
		return nil
	}
	err := c.commit(ctx, row, column)
	if err != nil {
		c.logger.Warn("restructure commit failed", "error", err)
	}
	if c.onCommit != nil {
		c.onCommit(err)
	}
	return err
}

// takeLocked empties both buckets, stops their timers and starts a new
// gesture.
func (c *Coalescer) takeLocked() (row, column *edit.RestructureChange) {
	row, column = c.buckets[0].change, c.buckets[1].change
	c.stopLocked(0)
	c.stopLocked(1)
	c.gesture++
	return row, column
}

func (c *Coalescer) stopLocked(idx int) {
	b := &c.buckets[idx]
	if b.timer != nil {
		b.timer.Stop()
	}
	*b = bucket{}
}
