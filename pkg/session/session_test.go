package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/panelgrid/pkg/layout"
)

func sampleTree() layout.Node {
	return layout.NewSplit(layout.Row, layout.Leaf{ID: "draw_sine"}, layout.Leaf{ID: "draw_empty"})
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
	}
	if addr := os.Getenv("PANELGRID_REDIS_ADDR"); addr != "" {
		rdb, err := DialRedis(context.Background(), addr)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { rdb.Close() })
		out["redis"] = NewRedisStore(rdb, "panelgrid:test:session:")
	}
	return out
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess := New(sampleTree(), layout.FigureSize{Width: 8, Height: 6}, DefaultTTL)
			if err := store.Set(ctx, sess); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := store.Get(ctx, sess.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil {
				t.Fatal("Get returned nil for stored session")
			}
			if !layout.Equal(got.Tree, sess.Tree) {
				t.Errorf("Tree = %s, want %s", layout.Format(got.Tree), layout.Format(sess.Tree))
			}
			if !got.Size.Equal(sess.Size) {
				t.Errorf("Size = %v, want %v", got.Size, sess.Size)
			}

			if err := store.Delete(ctx, sess.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if got, _ := store.Get(ctx, sess.ID); got != nil {
				t.Error("Get after Delete returned a session")
			}
		})
	}
}

func TestStoreExpired(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		if name == "redis" {
			// Set refuses already expired sessions.
			continue
		}
		t.Run(name, func(t *testing.T) {
			sess := New(layout.Leaf{ID: "draw_empty"}, layout.DefaultSize, -time.Minute)
			if err := store.Set(ctx, sess); err != nil {
				t.Fatal(err)
			}
			got, err := store.Get(ctx, sess.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got != nil {
				t.Error("expired session was returned")
			}
		})
	}
}

func TestStoreUnknown(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{New(nil, layout.DefaultSize, DefaultTTL).ID, "../etc/passwd", ""} {
				got, err := store.Get(ctx, id)
				if err != nil || got != nil {
					t.Errorf("Get(%q) = %v, %v; want nil, nil", id, got, err)
				}
			}
		})
	}
}

func TestMemoryCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, New(layout.Leaf{ID: "a"}, layout.DefaultSize, -time.Second))
	store.Set(ctx, New(layout.Leaf{ID: "b"}, layout.DefaultSize, time.Hour))

	if err := store.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d after cleanup, want 1", store.Len())
	}
}

func TestFileCleanup(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	expired := New(layout.Leaf{ID: "a"}, layout.DefaultSize, -time.Second)
	live := New(layout.Leaf{ID: "b"}, layout.DefaultSize, time.Hour)
	store.Set(ctx, expired)
	store.Set(ctx, live)
	corrupt := filepath.Join(store.Path(), "corrupt.json")
	os.WriteFile(corrupt, []byte("{"), 0o600)

	if err := store.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(store.Path())
	if len(entries) != 1 || entries[0].Name() != live.ID+".json" {
		t.Errorf("files after cleanup = %v, want only %s.json", entries, live.ID)
	}
}

func TestTouch(t *testing.T) {
	sess := New(layout.Leaf{ID: "a"}, layout.DefaultSize, time.Millisecond)
	sess.Touch(time.Hour)
	if sess.IsExpired() || time.Until(sess.ExpiresAt) < 59*time.Minute {
		t.Errorf("ExpiresAt = %v after Touch", sess.ExpiresAt)
	}
}

func TestValidID(t *testing.T) {
	if !ValidID(New(nil, layout.DefaultSize, 0).ID) {
		t.Error("generated id is not valid")
	}
	for _, id := range []string{"", "abc", "../x"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true", id)
		}
	}
}
