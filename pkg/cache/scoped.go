package cache

import "github.com/matzehuels/panelgrid/pkg/layout"

// ScopedKeyer wraps a Keyer with a prefix, so that services with different
// function registries sharing one Redis never exchange artifacts.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "registry:"+registryHash+":")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(tree layout.Node, size layout.FigureSize, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(tree, size, opts)
}
