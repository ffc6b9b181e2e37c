package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matzehuels/panelgrid/pkg/api"
	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/preset"
)

// Presets lists the presets stored by the service.
func (c *Client) Presets(ctx context.Context) ([]*preset.Preset, error) {
	var out []*preset.Preset
	if err := c.do(ctx, http.MethodGet, api.RoutePresets, false, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Preset fetches one preset by name.
func (c *Client) Preset(ctx context.Context, name string) (*preset.Preset, error) {
	if err := errors.ValidatePresetName(name); err != nil {
		return nil, err
	}
	var p preset.Preset
	if err := c.do(ctx, http.MethodGet, api.RoutePresets+"/"+url.PathEscape(name), false, nil, &p); err != nil {
		return nil, err
	}
	p.Name = name
	return &p, nil
}

// SavePreset stores p under p.Name and updates p with the stored copy.
func (c *Client) SavePreset(ctx context.Context, p *preset.Preset) error {
	if err := errors.ValidatePresetName(p.Name); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, api.RoutePresets+"/"+url.PathEscape(p.Name), false, p, p)
}
