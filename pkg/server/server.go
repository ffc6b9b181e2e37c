// Package server implements the panelgrid rendering and edit service.
//
// The service keeps a mirror of each client's layout tree in a session,
// applies the edits the client requests, renders the result and answers
// with the new tree, size and SVG. Routes and payloads are defined in
// package api.
//
// # Sessions
//
// POST /session creates a session and returns its token. Every other
// state-bearing route requires the token as a bearer credential. Sessions
// expire after [session.DefaultTTL] without access. Requests on the same
// session are serialized; different sessions run in parallel.
//
// # Live preview
//
// GET /ws?token=... upgrades to a websocket that receives an [api.Update]
// for every artifact the session produces. With a [Relay] configured,
// updates travel through Redis so that any instance can serve the socket.
package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/cache"
	"github.com/matzehuels/panelgrid/pkg/preset"
	"github.com/matzehuels/panelgrid/pkg/render"
	"github.com/matzehuels/panelgrid/pkg/session"
)

const (
	// DefaultCacheTTL is how long rendered artifacts are kept.
	DefaultCacheTTL = time.Hour

	cleanupInterval = time.Minute
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Options configures a [Server]. Zero values select in-memory defaults.
type Options struct {
	// Sessions holds the session mirrors. Defaults to a [session.MemoryStore].
	Sessions session.Store
	// Cache memoizes rendered SVGs. Defaults to [cache.NullCache].
	Cache cache.Cache
	// CacheTTL is the lifetime of cached artifacts. Defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	// Presets serves /presets. When nil those routes answer 501.
	Presets preset.Store
	// Registry holds the drawing functions. Defaults to [render.Builtin].
	Registry *render.Registry
	// SessionTTL defaults to [session.DefaultTTL].
	SessionTTL time.Duration
	// Relay distributes live updates between instances. When nil updates
	// go to the local hub only.
	Relay Relay
	// AllowedOrigins lists browser origins allowed by CORS and the websocket
	// upgrader. Empty allows any origin.
	AllowedOrigins []string
	Logger         *log.Logger
}

// Server is the HTTP service. Create it with [New].
type Server struct {
	sessions session.Store
	cache    cache.Cache
	cacheTTL time.Duration
	keyer    cache.Keyer
	presets  preset.Store
	registry *render.Registry
	ttl      time.Duration
	relay    Relay
	origins  []string
	logger   *log.Logger

	hub    *Hub
	locksMu sync.Mutex
	locks   map[string]*sessionLock
	router chi.Router
}

// New builds a server and its routes.
func New(opts Options) *Server {
	s := &Server{
		sessions: opts.Sessions,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		keyer:    cache.NewDefaultKeyer(),
		presets:  opts.Presets,
		registry: opts.Registry,
		ttl:      opts.SessionTTL,
		relay:    opts.Relay,
		origins:  opts.AllowedOrigins,
		logger:   opts.Logger,
		locks:    make(map[string]*sessionLock),
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore()
	}
	if s.cache == nil {
		s.cache = cache.NewNullCache()
	}
	s.cache = cache.Instrument(s.cache, "artifact")
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.registry == nil {
		s.registry = render.Builtin()
	}
	if s.ttl <= 0 {
		s.ttl = session.DefaultTTL
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	s.hub = NewHub(s.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(s.origins))

	r.Get(api.RouteFunctions, s.handleFunctions)
	r.Post(api.RouteSession, s.handleSession)

	r.Route(api.RoutePresets, func(r chi.Router) {
		r.Get("/", s.handlePresetList)
		r.Get("/{name}", s.handlePresetGet)
		r.Put("/{name}", s.handlePresetPut)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth)
		r.Get(api.RouteHealth, s.handleHealth)
		r.Post(api.RouteRender, s.handleRender)
		r.Get(api.RouteWS, s.handleWS)

		r.Post(api.RouteSplit, s.handleSplit)
		r.Post(api.RouteDelete, s.handleDelete)
		r.Post(api.RouteInsert, s.handleInsert)
		r.Post(api.RouteReplace, s.handleReplace)
		r.Post(api.RouteRotate, s.handleRotate)
		r.Post(api.RouteResize, s.handleResize)
		r.Post(api.RouteRestructure, s.handleRestructure)
		r.Post(api.RouteSwap, s.handleSwap)
		r.Post(api.RouteMerge, s.handleMerge)
		r.Post(api.RouteUnmerge, s.handleUnmerge)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the live preview hub.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It also runs the relay subscription and the periodic session
// cleanup.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.relay != nil {
		go func() {
			if err := s.relay.Run(ctx, s.hub.Broadcast); err != nil && ctx.Err() == nil {
				s.logger.Error("relay stopped", "error", err)
			}
		}()
	}
	go s.cleanupLoop(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sessions.Cleanup(ctx); err != nil {
				s.logger.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

// sessionLock is the mutex of one session and the number of requests
// holding or waiting for it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes requests on one session. The entry is dropped when its
// last holder unlocks.
func (s *Server) lock(id string) func() {
	s.locksMu.Lock()
	l := s.locks[id]
	if l == nil {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}
