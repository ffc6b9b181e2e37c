package cli

import (
	"strings"
	"testing"

	"github.com/matzehuels/panelgrid/pkg/layout"
)

func TestFormatTree(t *testing.T) {
	n := &layout.Split{
		Orient: layout.Row,
		Ratio:  layout.Ratio{1, 2},
		Children: [2]layout.Node{
			layout.Leaf{ID: "draw_text"},
			&layout.Split{
				Orient:   layout.Column,
				Ratio:    layout.DefaultRatio,
				Children: [2]layout.Node{layout.Leaf{ID: "draw_sine"}, layout.Leaf{ID: "draw_bars"}},
			},
		},
	}

	out := formatTree(n, plainLabels(true))
	for _, want := range []string{"draw_text", "draw_sine", "draw_bars", "row", "column", "1.0", "1/2"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatTree() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTreeLeaf(t *testing.T) {
	out := formatTree(layout.Leaf{ID: layout.DefaultLeaf}, plainLabels(false))
	if !strings.Contains(out, layout.DefaultLeaf) {
		t.Errorf("formatTree() = %q", out)
	}
}

func TestOrStdout(t *testing.T) {
	if got := orStdout(""); got != "-" {
		t.Errorf(`orStdout("") = %q, want "-"`, got)
	}
	if got := orStdout("a.svg"); got != "a.svg" {
		t.Errorf(`orStdout("a.svg") = %q`, got)
	}
}
