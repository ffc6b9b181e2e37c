package render

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"html"
	"math"
	"math/rand/v2"
	"strings"
)

var builtins = []struct {
	name string
	fn   DrawFunc
}{
	{"draw_empty", DrawEmpty},
	{"draw_text", DrawText},
	{"draw_sine", DrawSine},
	{"draw_scatter", DrawScatter},
	{"draw_bars", DrawBars},
}

const (
	lineColor    = "#007bff"
	scatterColor = "#ff7f0e"
	barColor     = "#2ca02c"
	axisColor    = "#444444"
)

// DrawEmpty draws nothing. It is the default leaf value.
func DrawEmpty(*bytes.Buffer, Rect, string) {}

// DrawText writes id centered in the panel.
func DrawText(buf *bytes.Buffer, r Rect, id string) {
	cx, cy := r.Center()
	size := math.Max(8, math.Min(r.H/6, 18))
	fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-family="sans-serif" font-size="%.1f" text-anchor="middle" dominant-baseline="middle">%s</text>`+"\n",
		cx, cy, size, html.EscapeString(id))
}

// DrawSine plots one period and a half of a sine wave.
func DrawSine(buf *bytes.Buffer, r Rect, id string) {
	plot := axes(buf, r, "Sine Wave")
	const samples = 100
	pts := make([]string, 0, samples)
	for i := 0; i < samples; i++ {
		t := float64(i) / (samples - 1)
		x := plot.X + t*plot.W
		y := plot.Y + plot.H/2 - math.Sin(t*10)*plot.H/2
		pts = append(pts, fmt.Sprintf("%.1f,%.1f", x, y))
	}
	fmt.Fprintf(buf, `    <polyline points="%s" fill="none" stroke="%s" stroke-width="1.5"/>`+"\n",
		strings.Join(pts, " "), lineColor)
}

// DrawScatter plots twenty points. The points are seeded by id so a panel
// looks the same on every render.
func DrawScatter(buf *bytes.Buffer, r Rect, id string) {
	plot := axes(buf, r, "Random Distribution")
	rng := seeded(id)
	for i := 0; i < 20; i++ {
		x := plot.X + rng.Float64()*plot.W
		y := plot.Y + rng.Float64()*plot.H
		fmt.Fprintf(buf, `    <circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`+"\n", x, y, scatterColor)
	}
}

// DrawBars draws five bars of seeded height.
func DrawBars(buf *bytes.Buffer, r Rect, id string) {
	plot := axes(buf, r, "Bars")
	rng := seeded(id)
	const n = 5
	slot := plot.W / n
	for i := 0; i < n; i++ {
		h := (0.2 + 0.8*rng.Float64()) * plot.H
		fmt.Fprintf(buf, `    <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`+"\n",
			plot.X+float64(i)*slot+slot*0.15, plot.Y+plot.H-h, slot*0.7, h, barColor)
	}
}

// axes draws a frame with a title and returns the plotting area inside it.
func axes(buf *bytes.Buffer, r Rect, title string) Rect {
	titleH := math.Min(16, r.H/8)
	plot := Rect{X: r.X, Y: r.Y + titleH, W: r.W, H: r.H - titleH}.Inset(4)
	fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-family="sans-serif" font-size="%.1f" text-anchor="middle">%s</text>`+"\n",
		r.X+r.W/2, r.Y+titleH*0.8, math.Max(6, titleH*0.8), html.EscapeString(title))
	fmt.Fprintf(buf, `    <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="none" stroke="%s" stroke-width="0.8"/>`+"\n",
		plot.X, plot.Y, plot.W, plot.H, axisColor)
	return plot
}

func seeded(id string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(id))
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s>>1|1))
}
