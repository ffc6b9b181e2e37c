// Package session holds the service-side mirrors of client layouts.
//
// Every client works against exactly one session. The session id is a
// random uuid and doubles as the bearer token the client presents on each
// call. Sessions expire after a period of inactivity; each successful access
// pushes the expiry forward.
//
// Backends:
//   - [MemoryStore]: in-process map for single-instance deployments and tests
//   - [FileStore]: JSON file per session, survives restarts
//   - [RedisStore]: shared store for multi-instance deployments
//
// # Usage
//
//	store := session.NewMemoryStore()
//	sess := session.New(tree, size, session.DefaultTTL)
//	if err := store.Set(ctx, sess); err != nil {
//	    return err
//	}
//
//	sess, err := store.Get(ctx, token)
//	if err != nil {
//	    return err
//	}
//	if sess == nil {
//	    // unknown or expired token
//	}
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// DefaultTTL is the inactivity period after which a session expires.
const DefaultTTL = 30 * time.Minute

// Session is the service's copy of one client's tree and figure size.
type Session struct {
	ID        string
	Tree      layout.Node
	Size      layout.FigureSize
	CreatedAt time.Time
	ExpiresAt time.Time
}

type sessionJSON struct {
	ID        string            `json:"id"`
	Layout    layout.Tree       `json:"layout"`
	Size      layout.FigureSize `json:"figsize"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:        s.ID,
		Layout:    layout.Tree{Root: s.Tree},
		Size:      s.Size,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "decode session")
	}
	*s = Session{
		ID:        raw.ID,
		Tree:      raw.Layout.Root,
		Size:      raw.Size,
		CreatedAt: raw.CreatedAt,
		ExpiresAt: raw.ExpiresAt,
	}
	return nil
}

// New creates a session for tree and size with a fresh uuid.
func New(tree layout.Node, size layout.FigureSize, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Tree:      tree,
		Size:      size,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Touch pushes the expiry to ttl from now.
func (s *Session) Touch(ttl time.Duration) {
	s.ExpiresAt = time.Now().Add(ttl)
}

// ValidID reports whether id has the shape of a session id. Stores use it
// to reject tokens before building keys or paths from them.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID.
	// Returns nil, nil if the session doesn't exist or has expired.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session.
	Set(ctx context.Context, session *Session) error

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error

	// Cleanup removes expired sessions (optional, may be no-op for Redis).
	Cleanup(ctx context.Context) error
}
