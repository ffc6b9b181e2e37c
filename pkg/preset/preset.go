// Package preset stores named layout configurations.
//
// A configuration is the pair the editor exchanges with the service: a
// layout tree and a figure size, in JSON as {"layout": ..., "figsize": [w, h]}.
// A preset is a configuration with a name. Presets are what the editor's
// import and export functions read and write and what the service offers
// under /presets.
package preset

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// Preset is a named configuration.
type Preset struct {
	Name      string
	Layout    layout.Node
	FigSize   layout.FigureSize
	UpdatedAt time.Time
}

type presetJSON struct {
	Name      string             `json:"name,omitempty"`
	Layout    *layout.Tree       `json:"layout"`
	FigSize   *layout.FigureSize `json:"figsize"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
}

func (p *Preset) MarshalJSON() ([]byte, error) {
	out := presetJSON{
		Name:    p.Name,
		Layout:  &layout.Tree{Root: p.Layout},
		FigSize: &p.FigSize,
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = &p.UpdatedAt
	}
	return json.Marshal(out)
}

func (p *Preset) UnmarshalJSON(data []byte) error {
	var raw presetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "decode configuration")
	}
	if raw.Layout == nil || raw.Layout.Root == nil {
		return errors.New(errors.ErrCodeValidation, "configuration has no layout")
	}
	if raw.FigSize == nil {
		return errors.New(errors.ErrCodeValidation, "configuration has no figsize")
	}
	*p = Preset{Name: raw.Name, Layout: raw.Layout.Root, FigSize: *raw.FigSize}
	if raw.UpdatedAt != nil {
		p.UpdatedAt = *raw.UpdatedAt
	}
	return nil
}

// Decode parses and validates an imported configuration. When known is not
// nil every leaf must name a known drawing function. A name in the data is
// kept but not required.
func Decode(data []byte, known func(string) bool) (*Preset, error) {
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid configuration")
	}
	if err := p.Validate(known); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode returns the configuration form of p, indented for files.
func Encode(p *Preset) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Validate checks the tree and the figure size. The name is checked only
// when set.
func (p *Preset) Validate(known func(string) bool) error {
	if p.Name != "" {
		if err := errors.ValidatePresetName(p.Name); err != nil {
			return err
		}
	}
	if !p.FigSize.Valid() {
		return errors.New(errors.ErrCodeValidation, "invalid figsize %s", p.FigSize)
	}
	return layout.Validate(p.Layout, known)
}

// Store is the interface for preset storage backends.
type Store interface {
	// List returns all presets ordered by name.
	List(ctx context.Context) ([]*Preset, error)

	// Get returns the preset with the given name, or a NOT_FOUND error.
	Get(ctx context.Context, name string) (*Preset, error)

	// Put creates or replaces a preset and sets its UpdatedAt.
	Put(ctx context.Context, p *Preset) error

	// Delete removes a preset. Deleting a missing preset is not an error.
	Delete(ctx context.Context, name string) error
}

func notFound(name string) error {
	return errors.New(errors.ErrCodeNotFound, "preset %q not found", name)
}
