// Package pkg holds the libraries behind panelgrid.
//
// # Overview
//
// A figure is a binary tree of row and column splits whose leaves name
// drawing functions. The client edits the tree with an undo history; the
// service mirrors it per session and renders it to SVG.
//
//  1. [layout] - the tree, paths, ratios and figure size
//  2. [edit] and [merge] - tree edits with their inverses
//  3. [history] and [coalesce] - undo/redo engine and drag debouncing
//  4. [render] - drawing functions and SVG composition
//  5. [server], [client] and [api] - the HTTP service and its wire types
//  6. [session], [cache], [preset] and [storage] - persistence backends
//
// # Data flow
//
//	key press / script step
//	         ↓
//	    [editor] builds a command on the present state
//	         ↓
//	    [client] sends the edit; [server] applies it to the session mirror
//	         ↓
//	    [render] draws the new tree; the SVG comes back with the tree
//	         ↓
//	    [history] records the step and [storage] saves the editor state
//
// # Errors
//
// All packages report failures through [errors] codes, so that callers can
// tell a local precondition failure from a rejected edit or an unreachable
// service.
package pkg
