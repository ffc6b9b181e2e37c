package coalesce

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// row(column(a, b) 30/70, c) 70/30
func sample() layout.Node {
	return &layout.Split{
		Orient: layout.Row,
		Children: [2]layout.Node{
			&layout.Split{
				Orient:   layout.Column,
				Children: [2]layout.Node{layout.Leaf{ID: "a"}, layout.Leaf{ID: "b"}},
				Ratio:    layout.Ratio{30, 70},
			},
			layout.Leaf{ID: "c"},
		},
		Ratio: layout.Ratio{70, 30},
	}
}

type batch struct {
	row, column *edit.RestructureChange
}

type recorder struct {
	mu      sync.Mutex
	tree    layout.Node
	batches []batch
	err     error
}

func (r *recorder) present() layout.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree
}

func (r *recorder) commit(_ context.Context, row, column *edit.RestructureChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch{row, column})
	if r.err != nil {
		return r.err
	}
	next, _, _, err := edit.Restructure2(r.tree, row, column)
	if err != nil {
		return err
	}
	r.tree = next
	return nil
}

func (r *recorder) committed() []batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batch(nil), r.batches...)
}

// waitBatches waits until n batches were committed. Mock timers may run
// their callbacks on another goroutine.
func (r *recorder) waitBatches(t *testing.T, n int) []batch {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		b := r.committed()
		if len(b) >= n || time.Now().After(deadline) {
			if len(b) != n {
				t.Fatalf("batches = %d, want %d", len(b), n)
			}
			return b
		}
		time.Sleep(time.Millisecond)
	}
}

func setup(opts ...Option) (*Coalescer, *recorder, *clock.Mock) {
	rec := &recorder{tree: sample()}
	mock := clock.NewMock()
	c := New(rec.present, rec.commit, append([]Option{WithClock(mock)}, opts...)...)
	return c, rec, mock
}

func TestDebounceSingleCommit(t *testing.T) {
	c, rec, clock := setup()

	for _, r := range []layout.Ratio{{60, 40}, {55, 45}, {50, 50}} {
		ok, err := c.Propose(Proposal{Path: layout.Root, Ratio: r})
		if err != nil || !ok {
			t.Fatalf("Propose(%v) = %v, %v", r, ok, err)
		}
		clock.Add(20 * time.Millisecond)
	}
	if n := len(rec.committed()); n != 0 {
		t.Fatalf("committed before the window settled: %d", n)
	}

	clock.Add(DefaultDelay)
	b := rec.waitBatches(t, 1)[0]
	if b.column != nil {
		t.Errorf("column change = %v, want nil", b.column)
	}
	if b.row == nil || !b.row.Ratio.AlmostEqual(layout.Ratio{50, 50}) {
		t.Errorf("row change = %v, want 50/50", b.row)
	}
	if c.Pending() {
		t.Error("buckets not reset after commit")
	}
}

func TestCommitInverseRestoresStart(t *testing.T) {
	c, rec, clock := setup()
	start := rec.present()

	inverses := make(chan *edit.RestructureChange, 1)
	c.commit = func(_ context.Context, row, column *edit.RestructureChange) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		next, rowInv, _, err := edit.Restructure2(rec.tree, row, column)
		if err != nil {
			return err
		}
		rec.tree = next
		inverses <- rowInv
		return nil
	}

	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{59.5, 40.5}})
	clock.Add(DefaultDelay)

	var inverse *edit.RestructureChange
	select {
	case inverse = <-inverses:
	case <-time.After(time.Second):
		t.Fatal("no commit after the window settled")
	}
	if inverse == nil || !inverse.Ratio.AlmostEqual(layout.Ratio{70, 30}) {
		t.Fatalf("inverse = %v, want the ratio before the first proposal", inverse)
	}
	undone, _, _, err := edit.Restructure2(rec.present(), inverse, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !layout.Equal(undone, start) {
		t.Errorf("undo = %s, want %s", layout.Format(undone), layout.Format(start))
	}
}

func TestEpsilonFilter(t *testing.T) {
	c, rec, clock := setup()

	ok, err := c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{70.5, 29.5}})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("jitter below epsilon was kept")
	}
	clock.Add(time.Second)
	if n := len(rec.committed()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}
}

func TestReturnToStartDiscards(t *testing.T) {
	c, rec, clock := setup()

	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
	if ok, _ := c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{70, 30}}); ok {
		t.Error("proposal at the current ratio was kept")
	}
	clock.Add(time.Second)
	if n := len(rec.committed()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}
}

func TestTwoBucketsOneBatch(t *testing.T) {
	c, rec, clock := setup()

	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
	clock.Add(30 * time.Millisecond)
	c.Propose(Proposal{Path: layout.Path{0}, Ratio: layout.Ratio{50, 50}})

	// The row timer fires first and takes the column change with it.
	clock.Add(25 * time.Millisecond)
	b := rec.waitBatches(t, 1)[0]
	if b.row == nil || b.column == nil {
		t.Fatalf("batch = %+v, want both buckets", b)
	}
	if !b.column.Path.Equal(layout.Path{0}) {
		t.Errorf("column path = %v", b.column.Path)
	}

	clock.Add(time.Second)
	if n := len(rec.committed()); n != 1 {
		t.Errorf("stale column timer committed again: %d", n)
	}
	if c.Pending() {
		t.Error("buckets still pending after the batch")
	}
}

func TestBucketByLiveOrientation(t *testing.T) {
	c, rec, clock := setup()

	// Rotate the root so it is now a column split.
	rec.tree, _, _ = edit.Rotate(rec.tree, layout.Root)

	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
	clock.Add(DefaultDelay)
	if b := rec.waitBatches(t, 1)[0]; b.row != nil || b.column == nil {
		t.Errorf("batch = %+v, want the column bucket", b)
	}
}

func TestFlushCancelClose(t *testing.T) {
	t.Run("flush", func(t *testing.T) {
		c, rec, clock := setup()
		c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
		if err := c.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
		if n := len(rec.committed()); n != 1 {
			t.Fatalf("batches = %d, want 1", n)
		}
		clock.Add(time.Second)
		if len(rec.committed()) != 1 {
			t.Errorf("timer committed after flush")
		}
		if err := c.Flush(context.Background()); err != nil {
			t.Errorf("empty flush = %v", err)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		c, rec, clock := setup()
		c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
		c.Cancel()
		clock.Add(time.Second)
		if n := len(rec.committed()); n != 0 {
			t.Errorf("batches = %d, want 0", n)
		}
	})

	t.Run("close", func(t *testing.T) {
		c, _, _ := setup()
		c.Close()
		if _, err := c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}}); err == nil {
			t.Error("Propose after Close succeeded")
		}
	})
}

func TestOnCommitReportsFailure(t *testing.T) {
	remote := stderrors.New("offline")
	got := make(chan error, 1)
	c, rec, clock := setup(OnCommit(func(err error) { got <- err }))
	rec.err = remote

	c.Propose(Proposal{Path: layout.Root, Ratio: layout.Ratio{60, 40}})
	clock.Add(DefaultDelay)

	select {
	case err := <-got:
		if !stderrors.Is(err, remote) {
			t.Fatalf("OnCommit got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnCommit not called")
	}
	if c.Pending() {
		t.Error("buckets not reset after failed commit")
	}
	if !layout.Equal(rec.present(), sample()) {
		t.Error("tree changed after failed commit")
	}
}

func TestProposeErrors(t *testing.T) {
	c, _, _ := setup()

	tests := []struct {
		name string
		p    Proposal
		code errors.Code
	}{
		{"leaf", Proposal{Path: layout.Path{1}, Ratio: layout.Ratio{60, 40}}, errors.ErrCodeInvalidPath},
		{"missing", Proposal{Path: layout.Path{1, 0}, Ratio: layout.Ratio{60, 40}}, errors.ErrCodeInvalidPath},
		{"ratio", Proposal{Path: layout.Root, Ratio: layout.Ratio{0, 100}}, errors.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Propose(tt.p)
			if !errors.Is(err, tt.code) {
				t.Errorf("Propose() = %v, want %s", err, tt.code)
			}
		})
	}
}
