// Package storage persists the editor's client-side state between runs.
//
// The snapshot holds what a restarted editor needs to pick up where it left
// off: the present tree and figure size, the session token and UI
// preferences. History is never persisted.
package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Snapshot is the persisted client state.
type Snapshot struct {
	Tree        layout.Node
	Size        layout.FigureSize
	Token       string
	ShowHandles bool
}

type snapshotJSON struct {
	Layout      *layout.Tree       `json:"layout"`
	Size        *layout.FigureSize `json:"figsize"`
	Token       string             `json:"token,omitempty"`
	ShowHandles bool               `json:"showHandles"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Layout:      &layout.Tree{Root: s.Tree},
		Size:        &s.Size,
		Token:       s.Token,
		ShowHandles: s.ShowHandles,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "decode state")
	}
	if raw.Layout == nil || raw.Layout.Root == nil || raw.Size == nil {
		return errors.New(errors.ErrCodeValidation, "state lacks layout or figsize")
	}
	*s = Snapshot{Tree: raw.Layout.Root, Size: *raw.Size, Token: raw.Token, ShowHandles: raw.ShowHandles}
	return nil
}

// Store loads and saves the snapshot.
type Store interface {
	// Load returns the saved snapshot, or nil, nil when nothing was saved.
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in memory.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Snapshot) error {
	cp := *s
	m.mu.Lock()
	m.snap = &cp
	m.saves++
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.snap = nil
	m.mu.Unlock()
	return nil
}

// Saves returns the number of Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ Store = (*MemoryStore)(nil)
