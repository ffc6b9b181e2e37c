package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/panelgrid/pkg/layout"
	"github.com/matzehuels/panelgrid/pkg/preset"
)

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "—"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-49 * time.Hour), "2d ago"},
		{now.Add(-30 * 24 * time.Hour), "Feb 8, 2026"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.t, now); got != tt.want {
			t.Errorf("formatRelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestPresetTable(t *testing.T) {
	now := time.Now()
	list := []*preset.Preset{
		{
			Name:      "two-up",
			Layout:    layout.NewSplit(layout.Row, layout.Leaf{ID: "draw_sine"}, layout.Leaf{ID: "draw_bars"}),
			FigSize:   layout.FigureSize{Width: 12, Height: 4},
			UpdatedAt: now.Add(-2 * time.Hour),
		},
		{Name: "single", Layout: layout.Leaf{ID: "draw_text"}, FigSize: layout.DefaultSize},
	}

	out := presetTable(list, now)
	for _, want := range []string{"Preset", "two-up", "single", "2h ago", list[0].FigSize.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("presetTable() missing %q:\n%s", want, out)
		}
	}
}
