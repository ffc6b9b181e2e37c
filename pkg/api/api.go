// Package api defines the JSON wire format of the panelgrid service.
//
// The service and its client share these types so both sides agree on field
// names without importing each other. Trees travel as [layout.Tree] (a leaf is
// a function-name string, a split is {"orient", "children", "ratios"}), figure
// sizes as [width, height] arrays and paths as integer arrays.
//
// Every authenticated route expects an "Authorization: Bearer <token>" header
// carrying the token returned by [RouteSession]. Errors are answered with
// [ErrorResponse].
package api

import (
	"encoding/json"

	"github.com/matzehuels/panelgrid/pkg/edit"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Routes served by the service.
const (
	RouteFunctions = "/functions"
	RouteHealth    = "/health"
	RouteSession   = "/session"
	RouteRender    = "/render"
	RoutePresets   = "/presets"
	RouteWS        = "/ws"

	RouteSplit       = "/edit/split"
	RouteDelete      = "/edit/delete"
	RouteInsert      = "/edit/insert"
	RouteReplace     = "/edit/replace"
	RouteRotate      = "/edit/rotate"
	RouteResize      = "/edit/resize"
	RouteRestructure = "/edit/restructure"
	RouteSwap        = "/edit/swap"
	RouteMerge       = "/edit/merge"
	RouteUnmerge     = "/edit/unmerge"
)

// Config is a tree with its figure size. It is the body of /session and
// /render and the stored form of a preset.
type Config struct {
	Layout  layout.Tree       `json:"layout"`
	FigSize layout.FigureSize `json:"figsize"`
}

// FullResponse is the answer to every state-changing call: the tree and size
// the service now holds and the artifact rendered from them. Token is only
// set by /session.
type FullResponse struct {
	Token   string            `json:"token,omitempty"`
	SVG     string            `json:"svg"`
	FigSize layout.FigureSize `json:"figsize"`
	Layout  layout.Tree       `json:"layout"`
}

// MergeResponse adds the change list that undoes a merge. Clients treat the
// inverse as opaque and send it back unchanged to /edit/unmerge.
type MergeResponse struct {
	FullResponse
	Inverse json.RawMessage `json:"inverse"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// PathRequest addresses one node. Used by /edit/delete and /edit/rotate.
type PathRequest struct {
	Path layout.Path `json:"path"`
}

// PathOrientRequest is the body of /edit/split.
type PathOrientRequest struct {
	Path   layout.Path        `json:"path"`
	Orient layout.Orientation `json:"orient"`
}

// PathsRequest addresses two nodes. Used by /edit/swap and /edit/merge.
type PathsRequest struct {
	PathA layout.Path `json:"pathA"`
	PathB layout.Path `json:"pathB"`
}

// ReplaceRequest sets the function of the leaf at Path.
type ReplaceRequest struct {
	Path  layout.Path `json:"path"`
	Value string      `json:"value"`
}

// InsertRequest wraps the node at Path in a new split whose second child is
// a leaf drawn by Value.
type InsertRequest struct {
	Path   layout.Path        `json:"path"`
	Value  string             `json:"value"`
	Orient layout.Orientation `json:"orient"`
	Ratios layout.Ratio       `json:"ratios"`
}

// ResizeRequest is the body of /edit/resize.
type ResizeRequest struct {
	FigSize layout.FigureSize `json:"figsize"`
}

// RestructureRequest sets at most one row and one column ratio at once.
// Either side may be null.
type RestructureRequest struct {
	Row    *edit.RestructureChange `json:"rowRestructureInfo"`
	Column *edit.RestructureChange `json:"columnRestructureInfo"`
}

// UnmergeRequest carries an inverse previously returned by /edit/merge.
type UnmergeRequest struct {
	Inverse json.RawMessage `json:"inverse"`
}

// Update is pushed over /ws whenever the session's artifact changes.
type Update struct {
	Layout  layout.Tree       `json:"layout"`
	FigSize layout.FigureSize `json:"figsize"`
	SVG     string            `json:"svg"`
}
