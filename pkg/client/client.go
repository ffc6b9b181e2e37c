// Package client talks to the panelgrid service.
//
// A [Client] holds the session token and attaches it to every call. The
// token is shared mutable state: it is read under a lock before each request
// and only ever replaced as a whole, when a session is created.
//
// Errors are classified with codes from package errors:
//
//   - NETWORK_UNAVAILABLE: the service could not be reached
//   - SESSION_INVALID: the service does not know the token (401)
//   - NOT_FOUND: a named resource such as a preset does not exist (404)
//   - REMOTE_REJECTED: any other refusal, with the service's detail
//   - VALIDATION_FAILED: the service answered with a body that does not decode
//
// No call is retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/buildinfo"
	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/history"
	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/observability"
)

const httpTimeout = 30 * time.Second

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithToken starts the client with a previously issued session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client is a service client. It is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger

	mu    sync.RWMutex
	token string
	epoch uint64

	sessions singleflight.Group
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if err := errors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid service URL")
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: httpTimeout},
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string { return c.base.String() }

// Token returns the current session token, empty before the first session.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Epoch counts the token changes of this client. Results that refer to
// server-side positions, such as merge inverses, are only valid within the
// epoch they were obtained in.
func (c *Client) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// SetToken replaces the session token, for example with one restored from
// persisted state. Every token change starts a new epoch.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.epoch++
	c.mu.Unlock()
}

// =============================================================================
// Session lifecycle
// =============================================================================

// Functions returns the names of the drawing functions the service knows.
func (c *Client) Functions(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, api.RouteFunctions, false, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Health checks that the current session is alive.
func (c *Client) Health(ctx context.Context) error {
	if c.Token() == "" {
		return errors.New(errors.ErrCodeSessionInvalid, "no session")
	}
	var ok bool
	if err := c.do(ctx, http.MethodGet, api.RouteHealth, true, nil, &ok); err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.ErrCodeSessionInvalid, "session is not healthy")
	}
	return nil
}

// CreateSession opens a session mirroring state and installs its token.
func (c *Client) CreateSession(ctx context.Context, state history.State) (history.Result, error) {
	var res api.FullResponse
	err := c.do(ctx, http.MethodPost, api.RouteSession, false, configOf(state), &res)
	if err != nil {
		return history.Result{}, err
	}
	if res.Token == "" {
		return history.Result{}, errors.New(errors.ErrCodeValidation, "session response has no token")
	}
	c.SetToken(res.Token)
	c.logger.Debug("session created", "epoch", c.Epoch())
	return resultOf(res)
}

// EnsureSession keeps the current session if it is healthy and otherwise
// creates a new one from state. created reports whether a session was
// created, in which case res holds the new mirror's state. Concurrent
// callers share a single creation.
//
// Only a missing or rejected session leads to a new one; a network failure
// is returned as is.
func (c *Client) EnsureSession(ctx context.Context, state history.State) (res history.Result, created bool, err error) {
	err = c.Health(ctx)
	if err == nil {
		return history.Result{}, false, nil
	}
	if !errors.Is(err, errors.ErrCodeSessionInvalid) {
		return history.Result{}, false, err
	}
	stale := c.Token()
	v, err, _ := c.sessions.Do("session", func() (any, error) {
		// Another caller may have replaced the token while we checked.
		if tok := c.Token(); tok != "" && tok != stale {
			return nil, nil
		}
		c.logger.Info("creating session")
		return c.CreateSession(ctx, state)
	})
	if err != nil {
		return history.Result{}, false, err
	}
	if v == nil {
		return history.Result{}, false, nil
	}
	return v.(history.Result), true, nil
}

// Render installs state in the session and returns the artifact.
func (c *Client) Render(ctx context.Context, state history.State) (history.Result, error) {
	return c.full(ctx, api.RouteRender, configOf(state))
}

// =============================================================================
// Edits
// =============================================================================

func (c *Client) Split(ctx context.Context, p layout.Path, o layout.Orientation) (history.Result, error) {
	return c.full(ctx, api.RouteSplit, api.PathOrientRequest{Path: p, Orient: o})
}

func (c *Client) Delete(ctx context.Context, p layout.Path) (history.Result, error) {
	return c.full(ctx, api.RouteDelete, api.PathRequest{Path: p})
}

func (c *Client) Insert(ctx context.Context, p layout.Path, value string, o layout.Orientation, r layout.Ratio) (history.Result, error) {
	return c.full(ctx, api.RouteInsert, api.InsertRequest{Path: p, Value: value, Orient: o, Ratios: r})
}

func (c *Client) Replace(ctx context.Context, p layout.Path, value string) (history.Result, error) {
	return c.full(ctx, api.RouteReplace, api.ReplaceRequest{Path: p, Value: value})
}

func (c *Client) Rotate(ctx context.Context, p layout.Path) (history.Result, error) {
	return c.full(ctx, api.RouteRotate, api.PathRequest{Path: p})
}

func (c *Client) Resize(ctx context.Context, size layout.FigureSize) (history.Result, error) {
	return c.full(ctx, api.RouteResize, api.ResizeRequest{FigSize: size})
}

func (c *Client) Restructure(ctx context.Context, row, column *edit.RestructureChange) (history.Result, error) {
	return c.full(ctx, api.RouteRestructure, api.RestructureRequest{Row: row, Column: column})
}

func (c *Client) Swap(ctx context.Context, a, b layout.Path) (history.Result, error) {
	return c.full(ctx, api.RouteSwap, api.PathsRequest{PathA: a, PathB: b})
}

// Merge merges the leaves at a and b. The returned inverse is opaque and
// must be passed back unchanged to [Client.Unmerge].
func (c *Client) Merge(ctx context.Context, a, b layout.Path) (history.Result, json.RawMessage, error) {
	var res api.MergeResponse
	if err := c.do(ctx, http.MethodPost, api.RouteMerge, true, api.PathsRequest{PathA: a, PathB: b}, &res); err != nil {
		return history.Result{}, nil, err
	}
	if len(res.Inverse) == 0 {
		return history.Result{}, nil, errors.New(errors.ErrCodeValidation, "merge response has no inverse")
	}
	out, err := resultOf(res.FullResponse)
	return out, res.Inverse, err
}

// Unmerge applies an inverse returned by [Client.Merge].
func (c *Client) Unmerge(ctx context.Context, inverse json.RawMessage) (history.Result, error) {
	return c.full(ctx, api.RouteUnmerge, api.UnmergeRequest{Inverse: inverse})
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) full(ctx context.Context, route string, body any) (history.Result, error) {
	var res api.FullResponse
	if err := c.do(ctx, http.MethodPost, route, true, body, &res); err != nil {
		return history.Result{}, err
	}
	return resultOf(res)
}

// do performs one request and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, route string, auth bool, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "encode request")
		}
		rd = bytes.NewReader(data)
	}
	u := c.base.JoinPath(route)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		tok := c.Token()
		if tok == "" {
			return errors.New(errors.ErrCodeSessionInvalid, "no session")
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, method, u.Host, route)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, u.Host, route, err)
		return errors.Wrap(errors.ErrCodeNetwork, err, "service unreachable")
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, method, u.Host, route, resp.StatusCode, time.Since(start))
	c.logger.Debug("request", "method", method, "route", route, "status", resp.StatusCode)

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.GetCode(err) == errors.ErrCodeValidation {
			return err
		}
		return errors.Wrap(errors.ErrCodeValidation, err, "decode %s response", route)
	}
	return nil
}

// checkStatus maps non-2xx answers to coded errors carrying the service's
// detail.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail := readDetail(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrCodeSessionInvalid, "%s", detail)
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.ErrCodeNotFound, "%s", detail)
	case resp.StatusCode >= 500:
		return errors.Wrap(errors.ErrCodeRemoteRejected,
			fmt.Errorf("status %d: %s", resp.StatusCode, detail), "service error")
	default:
		return errors.New(errors.ErrCodeRemoteRejected, "%s", detail)
	}
}

func readDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e api.ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return http.StatusText(resp.StatusCode)
}

func configOf(s history.State) api.Config {
	return api.Config{Layout: layout.Tree{Root: s.Tree}, FigSize: s.Size}
}

func resultOf(res api.FullResponse) (history.Result, error) {
	if res.Layout.Root == nil || !res.FigSize.Valid() {
		return history.Result{}, errors.New(errors.ErrCodeValidation, "service returned an incomplete state")
	}
	return history.Result{
		State:    history.State{Tree: res.Layout.Root, Size: res.FigSize},
		Artifact: res.SVG,
	}, nil
}
