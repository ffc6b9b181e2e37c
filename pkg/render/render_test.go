package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matzehuels/panelgrid/pkg/errors"
	"github.com/matzehuels/panelgrid/pkg/layout"
)

// row(column(draw_sine, draw_scatter) 30/70, draw_text) 70/30
func sample() layout.Node {
	return &layout.Split{
		Orient: layout.Row,
		Children: [2]layout.Node{
			&layout.Split{
				Orient:   layout.Column,
				Children: [2]layout.Node{layout.Leaf{ID: "draw_sine"}, layout.Leaf{ID: "draw_scatter"}},
				Ratio:    layout.Ratio{30, 70},
			},
			layout.Leaf{ID: "draw_text"},
		},
		Ratio: layout.Ratio{70, 30},
	}
}

func TestRegisterUniqueNames(t *testing.T) {
	r := NewRegistry()
	var got []string
	for i := 0; i < 3; i++ {
		name, err := r.Register("draw_sine", DrawSine)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, name)
	}
	want := []string{"draw_sine", "draw_sine_1", "draw_sine_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Register #%d = %q, want %q", i, got[i], want[i])
		}
	}
	if names := r.Names(); strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestRegisterErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("bad name", DrawText); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("Register(bad name) = %v", err)
	}
	if _, err := r.Register("ok", nil); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Register(nil) = %v", err)
	}
}

func TestBuiltin(t *testing.T) {
	r := Builtin()
	if r.Names()[0] != layout.DefaultLeaf {
		t.Errorf("first builtin = %q, want %q", r.Names()[0], layout.DefaultLeaf)
	}
	for _, name := range []string{"draw_empty", "draw_text", "draw_sine", "draw_scatter", "draw_bars"} {
		if !r.Has(name) {
			t.Errorf("builtin %q missing", name)
		}
	}
}

func TestSVG(t *testing.T) {
	svg, err := SVG(sample(), layout.FigureSize{Width: 10, Height: 5}, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	s := string(svg)
	if !strings.HasPrefix(s, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 720.0 360.0" width="720" height="360">`) {
		t.Errorf("unexpected header: %.120s", s)
	}
	for _, want := range []string{
		`id="panel-0.0" data-path="0.0" data-func="draw_sine"`,
		`id="panel-0.1" data-path="0.1" data-func="draw_scatter"`,
		`id="panel-1" data-path="1" data-func="draw_text"`,
		"<polyline",
		"<circle",
		">draw_text</text>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("svg lacks %q", want)
		}
	}
	if strings.Contains(s, `class="handle"`) {
		t.Error("handles drawn without WithHandles")
	}
}

func TestSVGDeterministic(t *testing.T) {
	a, _ := SVG(sample(), layout.DefaultSize, Builtin())
	b, _ := SVG(sample(), layout.DefaultSize, Builtin())
	if !bytes.Equal(a, b) {
		t.Error("two renders of the same tree differ")
	}
}

func TestSVGHandles(t *testing.T) {
	svg, err := SVG(sample(), layout.FigureSize{Width: 10, Height: 10}, Builtin(), WithHandles(), WithDPI(10))
	if err != nil {
		t.Fatal(err)
	}
	s := string(svg)
	// The root row split sits at 70% of the width.
	if !strings.Contains(s, `data-path="root" data-orient="row" x1="70.0" y1="0.0" x2="70.0" y2="100.0"`) {
		t.Errorf("root handle missing:\n%s", s)
	}
	if !strings.Contains(s, `data-path="0" data-orient="column" x1="0.0" y1="30.0" x2="70.0" y2="30.0"`) {
		t.Errorf("column handle missing:\n%s", s)
	}
}

func TestSVGErrors(t *testing.T) {
	tests := []struct {
		name string
		tree layout.Node
		size layout.FigureSize
	}{
		{"unknown function", layout.Leaf{ID: "draw_nothing"}, layout.DefaultSize},
		{"empty tree", nil, layout.DefaultSize},
		{"bad size", layout.Leaf{ID: "draw_empty"}, layout.FigureSize{Width: 0, Height: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SVG(tt.tree, tt.size, Builtin())
			if !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("SVG() = %v, want VALIDATION_FAILED", err)
			}
		})
	}
}

func TestRectInset(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 100, H: 50}.Inset(5)
	if r != (Rect{X: 5, Y: 5, W: 90, H: 40}) {
		t.Errorf("Inset = %+v", r)
	}
	tiny := Rect{X: 0, Y: 0, W: 4, H: 4}.Inset(5)
	if tiny.W != 0 || tiny.H != 0 || tiny.X != 2 {
		t.Errorf("tiny Inset = %+v", tiny)
	}
}
