package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/cache"
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/merge"
	"github.com/matzehuels/panelgrid/pkg/observability"
	"github.com/matzehuels/panelgrid/pkg/preset"
	"github.com/matzehuels/panelgrid/pkg/render"
	"github.com/matzehuels/panelgrid/pkg/session"
)

// mutation computes the next session state from the current one.
type mutation func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error)

// =============================================================================
// Rendering
// =============================================================================

// render returns the SVG for tree and size, from the cache when possible.
func (s *Server) render(ctx context.Context, tree layout.Node, size layout.FigureSize) (string, error) {
	key := s.keyer.ArtifactKey(tree, size, cache.ArtifactKeyOpts{Format: "svg", DPI: render.DefaultDPI})
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("artifact cache read failed", "error", err)
	} else if ok {
		return string(data), nil
	}

	start := time.Now()
	svg, err := render.SVG(tree, size, s.registry)
	observability.Edit().OnRender(ctx, len(layout.Leaves(tree)), time.Since(start), err)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, key, svg, s.cacheTTL); err != nil {
		s.logger.Warn("artifact cache write failed", "error", err)
	}
	return string(svg), nil
}

// known reports whether id names a registered drawing function.
func (s *Server) known(id string) bool { return s.registry.Has(id) }

func (s *Server) validateConfig(c api.Config) error {
	if !c.FigSize.Valid() {
		return errors.New(errors.ErrCodeValidation, "invalid figsize %s", c.FigSize)
	}
	return layout.Validate(c.Layout.Root, s.known)
}

// publish pushes the new state to live preview sockets.
func (s *Server) publish(ctx context.Context, id string, tree layout.Node, size layout.FigureSize, svg string) {
	msg, err := json.Marshal(api.Update{Layout: layout.Tree{Root: tree}, FigSize: size, SVG: svg})
	if err != nil {
		s.logger.Warn("encode update", "error", err)
		return
	}
	if s.relay == nil {
		s.hub.Broadcast(id, msg)
		return
	}
	if err := s.relay.Publish(ctx, id, msg); err != nil {
		s.logger.Warn("relay publish failed", "session", id, "error", err)
	}
}

// =============================================================================
// Session routes
// =============================================================================

func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Names())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req api.Config
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validateConfig(req); err != nil {
		s.fail(w, r, err)
		return
	}
	svg, err := s.render(r.Context(), req.Layout.Root, req.FigSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess := session.New(req.Layout.Root, req.FigSize, s.ttl)
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInternal, err, "store session"))
		return
	}
	s.logger.Debug("session created", "session", sess.ID)
	writeJSON(w, http.StatusOK, api.FullResponse{
		Token:   sess.ID,
		SVG:     svg,
		FigSize: sess.Size,
		Layout:  layout.Tree{Root: sess.Tree},
	})
}

// load returns the live session or a session error.
func (s *Server) load(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "load session")
	}
	if sess == nil {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "Session not found")
	}
	return sess, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.load(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess.Touch(s.ttl)
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInternal, err, "store session"))
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// handleRender installs a full configuration into the session. When it
// equals what the session already holds only the artifact is returned.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req api.Config
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validateConfig(req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, "render", func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		if layout.Equal(tree, req.Layout.Root) && size.Equal(req.FigSize) {
			return tree, size, errUnchanged
		}
		return req.Layout.Root, req.FigSize, nil
	})
}

var errUnchanged = errors.New(errors.ErrCodeNoop, "configuration unchanged")

// =============================================================================
// Edit routes
// =============================================================================

// apply runs fn on the session under its lock, renders the result, stores
// it and notifies live sockets. An edit without effect answers with the
// unchanged state.
func (s *Server) apply(ctx context.Context, id, kind string, fn mutation) (*api.FullResponse, error) {
	unlock := s.lock(id)
	defer unlock()

	start := time.Now()
	observability.Edit().OnEditStart(ctx, kind, id)
	res, err := s.applyLocked(ctx, id, kind, fn)
	observability.Edit().OnEditComplete(ctx, kind, id, time.Since(start), err)
	return res, err
}

func (s *Server) applyLocked(ctx context.Context, id, kind string, fn mutation) (*api.FullResponse, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	tree, size, err := fn(sess.Tree, sess.Size)
	changed := true
	if edit.IsNoop(err) {
		s.logger.Debug("edit has no effect", "kind", kind, "session", id, "reason", errors.UserMessage(err))
		tree, size, err, changed = sess.Tree, sess.Size, nil, false
	}
	if err != nil {
		return nil, err
	}

	svg, err := s.render(ctx, tree, size)
	if err != nil {
		return nil, err
	}

	sess.Tree, sess.Size = tree, size
	sess.Touch(s.ttl)
	if err := s.sessions.Set(ctx, sess); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "store session")
	}
	if changed {
		s.publish(ctx, id, tree, size, svg)
	}
	return &api.FullResponse{SVG: svg, FigSize: size, Layout: layout.Tree{Root: tree}}, nil
}

// mutate is apply for handlers that answer with a plain FullResponse.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, kind string, fn mutation) {
	res, err := s.apply(r.Context(), sessionID(r), kind, fn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// treeOnly adapts an edit that leaves the figure size alone.
func treeOnly(fn func(layout.Node) (layout.Node, edit.Change, error)) mutation {
	return func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		out, _, err := fn(tree)
		if err != nil {
			return tree, size, err
		}
		return out, size, nil
	}
}

func (s *Server) requireFunction(id string) error {
	if !s.known(id) {
		return errors.New(errors.ErrCodeRemoteRejected, "Unknown function %q", id)
	}
	return nil
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req api.PathOrientRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindSplit), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		return edit.Split(t, req.Path, req.Orient)
	}))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req api.PathRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindDelete), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		n, err := layout.GetAt(t, req.Path)
		if err != nil {
			return nil, edit.Change{}, err
		}
		if !layout.IsLeaf(n) {
			return nil, edit.Change{}, errors.New(errors.ErrCodeRemoteRejected, "Cannot delete nodes via API")
		}
		return edit.Delete(t, req.Path)
	}))
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req api.InsertRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.requireFunction(req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	ratio := req.Ratios
	if ratio == (layout.Ratio{}) {
		ratio = layout.DefaultRatio
	}
	s.mutate(w, r, string(edit.KindInsert), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		return edit.Insert(t, req.Path, req.Orient, ratio, layout.Leaf{ID: req.Value})
	}))
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	var req api.ReplaceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindReplace), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		n, err := layout.GetAt(t, req.Path)
		if err != nil {
			return nil, edit.Change{}, err
		}
		if !layout.IsLeaf(n) {
			return nil, edit.Change{}, errors.New(errors.ErrCodeRemoteRejected, "Cannot replace nodes via API")
		}
		if err := s.requireFunction(req.Value); err != nil {
			return nil, edit.Change{}, err
		}
		return edit.Replace(t, req.Path, req.Value)
	}))
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req api.PathRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindRotate), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		return edit.Rotate(t, req.Path)
	}))
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req api.ResizeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindResize), func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		next, _, err := edit.Resize(size, req.FigSize)
		if err != nil {
			return tree, size, err
		}
		return tree, next, nil
	})
}

func (s *Server) handleRestructure(w http.ResponseWriter, r *http.Request) {
	var req api.RestructureRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindRestructure), func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		out, _, _, err := edit.Restructure2(tree, req.Row, req.Column)
		if err != nil {
			return tree, size, err
		}
		return out, size, nil
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req api.PathsRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindSwap), treeOnly(func(t layout.Node) (layout.Node, edit.Change, error) {
		return edit.Swap(t, req.PathA, req.PathB)
	}))
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req api.PathsRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var inverse []edit.Change
	res, err := s.apply(r.Context(), sessionID(r), string(edit.KindMerge), func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		m, err := merge.Merge(tree, req.PathA, req.PathB)
		if err != nil {
			return tree, size, err
		}
		inverse = m.Inverse
		return m.Tree, size, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if inverse == nil {
		inverse = []edit.Change{}
	}
	data, err := json.Marshal(inverse)
	if err != nil {
		s.fail(w, r, errors.Wrap(errors.ErrCodeInternal, err, "encode inverse"))
		return
	}
	writeJSON(w, http.StatusOK, api.MergeResponse{FullResponse: *res, Inverse: data})
}

func (s *Server) handleUnmerge(w http.ResponseWriter, r *http.Request) {
	var req api.UnmergeRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	changes, err := edit.DecodeChanges(req.Inverse)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mutate(w, r, string(edit.KindUnmerge), func(tree layout.Node, size layout.FigureSize) (layout.Node, layout.FigureSize, error) {
		out, next, _, err := edit.Apply(tree, size, changes)
		if err != nil {
			return tree, size, errors.Wrap(errors.ErrCodeRemoteRejected, err, "inverse does not apply to the current layout")
		}
		return out, next, nil
	})
}

// =============================================================================
// Presets
// =============================================================================

func (s *Server) presetStore(w http.ResponseWriter, r *http.Request) bool {
	if s.presets == nil {
		s.fail(w, r, errors.New(errors.ErrCodeUnsupported, "presets are not configured"))
		return false
	}
	return true
}

func (s *Server) handlePresetList(w http.ResponseWriter, r *http.Request) {
	if !s.presetStore(w, r) {
		return
	}
	list, err := s.presets.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*preset.Preset{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePresetGet(w http.ResponseWriter, r *http.Request) {
	if !s.presetStore(w, r) {
		return
	}
	p, err := s.presets.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePresetPut(w http.ResponseWriter, r *http.Request) {
	if !s.presetStore(w, r) {
		return
	}
	var p preset.Preset
	if err := decode(w, r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	p.Name = chi.URLParam(r, "name")
	if err := p.Validate(s.known); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.presets.Put(r.Context(), &p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

// =============================================================================
// Live preview
// =============================================================================

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	sess, err := s.load(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return originAllowed(s.origins, r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	// The first message is the current state.
	if svg, err := s.render(r.Context(), sess.Tree, sess.Size); err == nil {
		if msg, err := json.Marshal(api.Update{Layout: layout.Tree{Root: sess.Tree}, FigSize: sess.Size, SVG: svg}); err == nil {
			c.send <- msg
		}
	}
	if !s.hub.add(id, c) {
		conn.Close()
		return
	}
	s.logger.Debug("preview connected", "session", id)

	go c.writePump()
	c.readPump()
	s.hub.remove(id, c)
	s.logger.Debug("preview disconnected", "session", id)
}
