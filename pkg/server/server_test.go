package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/preset"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func decodeFull(t *testing.T, data []byte) api.FullResponse {
	t.Helper()
	var res api.FullResponse
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return res
}

func detail(t *testing.T, data []byte) string {
	t.Helper()
	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode error %s: %v", data, err)
	}
	return e.Detail
}

func createSession(t *testing.T, srv *httptest.Server, tree layout.Node) string {
	t.Helper()
	status, data := do(t, srv, http.MethodPost, api.RouteSession, "", api.Config{Layout: layout.Tree{Root: tree}, FigSize: layout.DefaultSize})
	if status != http.StatusOK {
		t.Fatalf("create session: %d %s", status, data)
	}
	res := decodeFull(t, data)
	if res.Token == "" || !strings.Contains(res.SVG, "<svg") {
		t.Fatalf("session response = %+v", res)
	}
	return res.Token
}

func leaf(id string) layout.Leaf { return layout.Leaf{ID: id} }

func TestFunctions(t *testing.T) {
	srv := newTestServer(t, Options{})
	status, data := do(t, srv, http.MethodGet, api.RouteFunctions, "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != layout.DefaultLeaf {
		t.Errorf("functions = %v", names)
	}
}

func TestSessionAuth(t *testing.T) {
	srv := newTestServer(t, Options{})
	token := createSession(t, srv, leaf(layout.DefaultLeaf))

	if status, data := do(t, srv, http.MethodGet, api.RouteHealth, token, nil); status != http.StatusOK || strings.TrimSpace(string(data)) != "true" {
		t.Errorf("health = %d %s", status, data)
	}

	tests := []struct {
		name   string
		token  string
		detail string
	}{
		{"missing", "", "No authorization header"},
		{"malformed", "not-a-session", "Session not found"},
		{"unknown", "6f1c1c9e-3c55-4a4c-9d3e-7b1e2f0a9c11", "Session not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := do(t, srv, http.MethodGet, api.RouteHealth, tt.token, nil)
			if status != http.StatusUnauthorized || detail(t, data) != tt.detail {
				t.Errorf("health = %d %s, want 401 %q", status, data, tt.detail)
			}
		})
	}
}

func TestSessionRejectsInvalidConfig(t *testing.T) {
	srv := newTestServer(t, Options{})
	tests := []struct {
		name string
		body string
	}{
		{"unknown function", `{"layout": "plot_everything", "figsize": [8, 8]}`},
		{"bad size", `{"layout": "draw_empty", "figsize": [0, 8]}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := srv.Client().Post(srv.URL+api.RouteSession, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSplitReplaceDelete(t *testing.T) {
	srv := newTestServer(t, Options{})
	token := createSession(t, srv, leaf(layout.DefaultLeaf))

	status, data := do(t, srv, http.MethodPost, api.RouteSplit, token, api.PathOrientRequest{Path: layout.Root, Orient: layout.Row})
	if status != http.StatusOK {
		t.Fatalf("split: %d %s", status, data)
	}
	want := layout.NewSplit(layout.Row, leaf(layout.DefaultLeaf), leaf(layout.DefaultLeaf))
	if got := decodeFull(t, data).Layout.Root; !layout.Equal(got, want) {
		t.Fatalf("after split = %s", layout.Format(got))
	}

	status, data = do(t, srv, http.MethodPost, api.RouteReplace, token, api.ReplaceRequest{Path: layout.Path{1}, Value: "draw_sine"})
	if status != http.StatusOK {
		t.Fatalf("replace: %d %s", status, data)
	}
	want = layout.NewSplit(layout.Row, leaf(layout.DefaultLeaf), leaf("draw_sine"))
	if got := decodeFull(t, data).Layout.Root; !layout.Equal(got, want) {
		t.Fatalf("after replace = %s", layout.Format(got))
	}

	status, data = do(t, srv, http.MethodPost, api.RouteDelete, token, api.PathRequest{Path: layout.Path{1}})
	if status != http.StatusOK {
		t.Fatalf("delete: %d %s", status, data)
	}
	if got := decodeFull(t, data).Layout.Root; !layout.Equal(got, leaf(layout.DefaultLeaf)) {
		t.Fatalf("after delete = %s", layout.Format(got))
	}
}

func TestEditRejections(t *testing.T) {
	srv := newTestServer(t, Options{})
	tree := layout.NewSplit(layout.Row, layout.NewSplit(layout.Column, leaf("draw_text"), leaf("draw_bars")), leaf("draw_sine"))
	token := createSession(t, srv, tree)

	tests := []struct {
		name   string
		route  string
		body   any
		detail string
	}{
		{"delete split", api.RouteDelete, api.PathRequest{Path: layout.Path{0}}, "Cannot delete nodes via API"},
		{"replace split", api.RouteReplace, api.ReplaceRequest{Path: layout.Path{0}, Value: "draw_sine"}, "Cannot replace nodes via API"},
		{"replace unknown", api.RouteReplace, api.ReplaceRequest{Path: layout.Path{1}, Value: "plot_all"}, `Unknown function "plot_all"`},
		{"insert unknown", api.RouteInsert, api.InsertRequest{Path: layout.Path{1}, Value: "plot_all", Orient: layout.Row}, `Unknown function "plot_all"`},
		{"bad path", api.RouteRotate, api.PathRequest{Path: layout.Path{1, 0}}, ""},
		{"delete root", api.RouteDelete, api.PathRequest{Path: layout.Root}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := do(t, srv, http.MethodPost, tt.route, token, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d %s, want 400", status, data)
			}
			if tt.detail != "" && detail(t, data) != tt.detail {
				t.Errorf("detail = %q, want %q", detail(t, data), tt.detail)
			}
		})
	}

	// Rejected edits leave the session alone.
	status, data := do(t, srv, http.MethodPost, api.RouteRender, token, api.Config{Layout: layout.Tree{Root: tree}, FigSize: layout.DefaultSize})
	if status != http.StatusOK || !layout.Equal(decodeFull(t, data).Layout.Root, tree) {
		t.Errorf("session changed after rejected edits: %d %s", status, data)
	}
}

func TestSwapIdenticalIsNoop(t *testing.T) {
	srv := newTestServer(t, Options{})
	tree := layout.NewSplit(layout.Row, leaf("draw_text"), leaf("draw_sine"))
	token := createSession(t, srv, tree)

	status, data := do(t, srv, http.MethodPost, api.RouteSwap, token, api.PathsRequest{PathA: layout.Path{0}, PathB: layout.Path{0}})
	if status != http.StatusOK || !layout.Equal(decodeFull(t, data).Layout.Root, tree) {
		t.Fatalf("swap identical = %d %s", status, data)
	}

	status, data = do(t, srv, http.MethodPost, api.RouteSwap, token, api.PathsRequest{PathA: layout.Path{0}, PathB: layout.Path{1}})
	want := layout.NewSplit(layout.Row, leaf("draw_sine"), leaf("draw_text"))
	if status != http.StatusOK || !layout.Equal(decodeFull(t, data).Layout.Root, want) {
		t.Fatalf("swap = %d %s", status, data)
	}
}

func TestRotateResizeRestructureInsert(t *testing.T) {
	srv := newTestServer(t, Options{})
	token := createSession(t, srv, layout.NewSplit(layout.Row, leaf("draw_text"), leaf("draw_sine")))

	_, data := do(t, srv, http.MethodPost, api.RouteRotate, token, api.PathRequest{Path: layout.Root})
	if s := decodeFull(t, data).Layout.Root.(*layout.Split); s.Orient != layout.Column {
		t.Errorf("rotate orient = %s", s.Orient)
	}

	_, data = do(t, srv, http.MethodPost, api.RouteResize, token, api.ResizeRequest{FigSize: layout.FigureSize{Width: 12, Height: 4}})
	if got := decodeFull(t, data).FigSize; !got.Equal(layout.FigureSize{Width: 12, Height: 4}) {
		t.Errorf("resize = %v", got)
	}

	body := `{"rowRestructureInfo": null, "columnRestructureInfo": [[], [70, 30]]}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+api.RouteRestructure, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var res api.FullResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if s := res.Layout.Root.(*layout.Split); !s.Ratio.AlmostEqual(layout.Ratio{70, 30}) {
		t.Errorf("restructure ratio = %v", s.Ratio)
	}

	status, data := do(t, srv, http.MethodPost, api.RouteInsert, token, api.InsertRequest{
		Path: layout.Path{1, 1}, Value: "draw_bars", Orient: layout.Row, Ratios: layout.Ratio{60, 40},
	})
	if status != http.StatusOK {
		t.Fatalf("insert: %d %s", status, data)
	}
	inner, err := layout.GetSplit(decodeFull(t, data).Layout.Root, layout.Path{1})
	if err != nil {
		t.Fatal(err)
	}
	if !layout.Equal(inner.Children[0], leaf("draw_sine")) || !layout.Equal(inner.Children[1], leaf("draw_bars")) {
		t.Errorf("after insert = %s", layout.Format(decodeFull(t, data).Layout.Root))
	}
}

func TestSessionLocksAreReleased(t *testing.T) {
	s := New(Options{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	token := createSession(t, srv, leaf(layout.DefaultLeaf))

	for _, p := range []layout.Path{layout.Root, {0}, {1}} {
		if status, data := do(t, srv, http.MethodPost, api.RouteSplit, token, api.PathOrientRequest{Path: p, Orient: layout.Row}); status != http.StatusOK {
			t.Fatalf("split %s: %d %s", p, status, data)
		}
	}

	var wg sync.WaitGroup
	held := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.lock("shared")
			held++
			unlock()
		}()
	}
	wg.Wait()
	if held != 8 {
		t.Errorf("held = %d, want 8", held)
	}

	s.locksMu.Lock()
	n := len(s.locks)
	s.locksMu.Unlock()
	if n != 0 {
		t.Errorf("%d session locks left after all requests finished", n)
	}
}

func TestMergeUnmerge(t *testing.T) {
	srv := newTestServer(t, Options{})
	tree := &layout.Split{
		Orient: layout.Column,
		Children: [2]layout.Node{
			leaf("draw_text"),
			&layout.Split{Orient: layout.Column, Children: [2]layout.Node{leaf("draw_sine"), leaf("draw_bars")}, Ratio: layout.Ratio{50, 50}},
		},
		Ratio: layout.Ratio{30, 70},
	}
	token := createSession(t, srv, tree)

	status, data := do(t, srv, http.MethodPost, api.RouteMerge, token, api.PathsRequest{PathA: layout.Path{0}, PathB: layout.Path{1, 0}})
	if status != http.StatusOK {
		t.Fatalf("merge: %d %s", status, data)
	}
	var merged api.MergeResponse
	if err := json.Unmarshal(data, &merged); err != nil {
		t.Fatal(err)
	}
	if layout.Equal(merged.Layout.Root, tree) || len(merged.Inverse) == 0 {
		t.Fatalf("merge response = %s", data)
	}
	// Merging keeps every leaf and makes the two merged leaves siblings.
	found := map[string]layout.Path{}
	layout.Walk(merged.Layout.Root, func(p layout.Path, n layout.Node) bool {
		if l, ok := n.(layout.Leaf); ok {
			found[l.ID] = p.Clone()
		}
		return true
	})
	if len(found) != 3 {
		t.Errorf("merged leaves = %v, want 3", found)
	}
	if a, b := found["draw_text"], found["draw_sine"]; !a.IsSiblingOf(b) {
		t.Errorf("merged leaves at %s and %s, want siblings", a, b)
	}

	status, data = do(t, srv, http.MethodPost, api.RouteUnmerge, token, api.UnmergeRequest{Inverse: merged.Inverse})
	if status != http.StatusOK {
		t.Fatalf("unmerge: %d %s", status, data)
	}
	if got := decodeFull(t, data).Layout.Root; !layout.Equal(got, tree) {
		t.Errorf("after unmerge = %s", layout.Format(got))
	}

	status, _ = do(t, srv, http.MethodPost, api.RouteUnmerge, token, api.UnmergeRequest{Inverse: json.RawMessage(`[{"kind": "explode"}]`)})
	if status != http.StatusBadRequest {
		t.Errorf("bad inverse status = %d, want 400", status)
	}
}

func TestRenderInstallsConfig(t *testing.T) {
	srv := newTestServer(t, Options{})
	token := createSession(t, srv, leaf(layout.DefaultLeaf))

	next := api.Config{Layout: layout.Tree{Root: layout.NewSplit(layout.Column, leaf("draw_text"), leaf("draw_bars"))}, FigSize: layout.FigureSize{Width: 6, Height: 3}}
	status, data := do(t, srv, http.MethodPost, api.RouteRender, token, next)
	if status != http.StatusOK {
		t.Fatalf("render: %d %s", status, data)
	}
	first := decodeFull(t, data)
	if !layout.Equal(first.Layout.Root, next.Layout.Root) || !first.FigSize.Equal(next.FigSize) {
		t.Fatalf("render response = %+v", first)
	}

	_, data = do(t, srv, http.MethodPost, api.RouteRender, token, next)
	if again := decodeFull(t, data); again.SVG != first.SVG {
		t.Error("unchanged render produced a different artifact")
	}
}

func TestPresets(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		srv := newTestServer(t, Options{})
		if status, _ := do(t, srv, http.MethodGet, api.RoutePresets, "", nil); status != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", status)
		}
	})

	store, err := preset.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, Options{Presets: store})
	cfg := api.Config{Layout: layout.Tree{Root: layout.NewSplit(layout.Row, leaf("draw_text"), leaf("draw_sine"))}, FigSize: layout.DefaultSize}

	if status, data := do(t, srv, http.MethodPut, api.RoutePresets+"/two-up", "", cfg); status != http.StatusOK {
		t.Fatalf("put: %d %s", status, data)
	}
	if status, _ := do(t, srv, http.MethodPut, api.RoutePresets+"/bad", "", api.Config{Layout: layout.Tree{Root: leaf("plot_all")}, FigSize: layout.DefaultSize}); status != http.StatusBadRequest {
		t.Errorf("put unknown function status = %d, want 400", status)
	}

	status, data := do(t, srv, http.MethodGet, api.RoutePresets, "", nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, data)
	}
	var list []*preset.Preset
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "two-up" {
		t.Fatalf("list = %s", data)
	}

	status, data = do(t, srv, http.MethodGet, api.RoutePresets+"/two-up", "", nil)
	var got preset.Preset
	if status != http.StatusOK || json.Unmarshal(data, &got) != nil || !layout.Equal(got.Layout, cfg.Layout.Root) {
		t.Errorf("get = %d %s", status, data)
	}
	if status, _ := do(t, srv, http.MethodGet, api.RoutePresets+"/missing", "", nil); status != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+api.RouteSplit, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, srv.URL+api.RouteSplit, nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestLivePreview(t *testing.T) {
	srv := newTestServer(t, Options{})
	token := createSession(t, srv, leaf(layout.DefaultLeaf))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + api.RouteWS + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	read := func() api.Update {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var u api.Update
		if err := conn.ReadJSON(&u); err != nil {
			t.Fatal(err)
		}
		return u
	}

	if first := read(); !layout.Equal(first.Layout.Root, leaf(layout.DefaultLeaf)) {
		t.Fatalf("initial update = %s", layout.Format(first.Layout.Root))
	}

	do(t, srv, http.MethodPost, api.RouteSplit, token, api.PathOrientRequest{Path: layout.Root, Orient: layout.Column})
	next := read()
	if s, ok := next.Layout.Root.(*layout.Split); !ok || s.Orient != layout.Column || !strings.Contains(next.SVG, "<svg") {
		t.Errorf("update after split = %s", layout.Format(next.Layout.Root))
	}
}

func TestLivePreviewRequiresSession(t *testing.T) {
	srv := newTestServer(t, Options{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + api.RouteWS + "?token=6f1c1c9e-3c55-4a4c-9d3e-7b1e2f0a9c11"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
