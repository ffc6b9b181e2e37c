package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/matzehuels/panelgrid/pkg/errors"
)

// Epsilon is the tolerance used when comparing ratios and coordinates.
const Epsilon = 1e-9

// DefaultRatio is the ratio of a freshly split node.
var DefaultRatio = Ratio{50, 50}

// DefaultLeaf is the drawing function used for empty panels.
const DefaultLeaf = "draw_empty"

// =============================================================================
// Orientation
// =============================================================================

// Orientation determines how a split arranges its two children.
type Orientation string

const (
	// Row places children side by side along the x axis.
	Row Orientation = "row"
	// Column stacks children along the y axis.
	Column Orientation = "column"
)

// Flip returns the other orientation.
func (o Orientation) Flip() Orientation {
	if o == Row {
		return Column
	}
	return Row
}

// Valid reports whether o is Row or Column.
func (o Orientation) Valid() bool {
	return o == Row || o == Column
}

// ParseOrientation parses "row" or "column".
func ParseOrientation(s string) (Orientation, error) {
	o := Orientation(s)
	if !o.Valid() {
		return "", errors.New(errors.ErrCodeValidation, "invalid orientation %q (must be 'row' or 'column')", s)
	}
	return o, nil
}

// =============================================================================
// Ratio
// =============================================================================

// Ratio is the relative weight of the two children of a split.
// Only the relative magnitude matters: {50, 50} and {1, 1} are equivalent.
type Ratio [2]float64

// Valid reports whether both weights are positive finite numbers.
func (r Ratio) Valid() bool {
	for _, v := range r {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Fraction returns the share of the first child, in (0, 1).
func (r Ratio) Fraction() float64 {
	return r[0] / (r[0] + r[1])
}

// AlmostEqual reports whether r and other divide the space the same way.
func (r Ratio) AlmostEqual(other Ratio) bool {
	return AlmostEqual(r.Fraction(), other.Fraction())
}

// Normalize scales the ratio so that both weights sum to 100.
func (r Ratio) Normalize() Ratio {
	f := r.Fraction()
	return Ratio{100 * f, 100 * (1 - f)}
}

// FromFraction builds a ratio summing to 100 whose first share is f.
func FromFraction(f float64) Ratio {
	return Ratio{100 * f, 100 * (1 - f)}
}

// AlmostEqual compares two floats with the package tolerance.
func AlmostEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// =============================================================================
// FigureSize
// =============================================================================

// FigureSize is the physical size of the rendered figure, in inches.
// It encodes as a two-element JSON array.
type FigureSize struct {
	Width  float64
	Height float64
}

// DefaultSize is the size of a new figure.
var DefaultSize = FigureSize{Width: 8, Height: 8}

// Valid reports whether both dimensions are positive finite numbers.
func (s FigureSize) Valid() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Equal compares two sizes with the package tolerance.
func (s FigureSize) Equal(other FigureSize) bool {
	return AlmostEqual(s.Width, other.Width) && AlmostEqual(s.Height, other.Height)
}

func (s FigureSize) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// MarshalJSON encodes the size as [width, height].
func (s FigureSize) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Width, s.Height})
}

// UnmarshalJSON decodes [width, height].
func (s *FigureSize) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "figure size must be [width, height]")
	}
	if len(v) != 2 {
		return errors.New(errors.ErrCodeValidation, "figure size must have 2 elements, got %d", len(v))
	}
	s.Width, s.Height = v[0], v[1]
	return nil
}

// =============================================================================
// Node
// =============================================================================

// Node is a layout tree node: either a [Leaf] or a [*Split].
// The unexported method closes the union to these two variants.
type Node interface {
	isNode()
}

// Leaf is a panel drawn by the registered function named ID.
type Leaf struct {
	ID string
}

func (Leaf) isNode() {}

func (l Leaf) String() string { return l.ID }

// MarshalJSON encodes the leaf as a bare string.
func (l Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.ID)
}

// Split divides its area between two children.
type Split struct {
	Orient   Orientation
	Children [2]Node
	Ratio    Ratio
}

func (*Split) isNode() {}

// splitJSON is the wire shape of a split.
type splitJSON struct {
	Orient   Orientation `json:"orient"`
	Children [2]Tree     `json:"children"`
	Ratios   Ratio       `json:"ratios"`
}

// MarshalJSON encodes the split as {"orient", "children", "ratios"}.
func (s *Split) MarshalJSON() ([]byte, error) {
	return json.Marshal(splitJSON{
		Orient:   s.Orient,
		Children: [2]Tree{{s.Children[0]}, {s.Children[1]}},
		Ratios:   s.Ratio,
	})
}

// Clone returns a shallow copy of s. Children are shared.
func (s *Split) Clone() *Split {
	c := *s
	return &c
}

// NewSplit returns a split with the default ratio.
func NewSplit(o Orientation, a, b Node) *Split {
	return &Split{Orient: o, Children: [2]Node{a, b}, Ratio: DefaultRatio}
}

// IsLeaf reports whether n is a leaf.
func IsLeaf(n Node) bool {
	_, ok := n.(Leaf)
	return ok
}

// =============================================================================
// JSON
// =============================================================================

// Tree wraps a Node for JSON decoding of the leaf/split union.
type Tree struct {
	Root Node
}

// MarshalJSON encodes the wrapped node.
func (t Tree) MarshalJSON() ([]byte, error) {
	if t.Root == nil {
		return nil, errors.New(errors.ErrCodeValidation, "layout is empty")
	}
	return json.Marshal(t.Root)
}

// UnmarshalJSON decodes a leaf string or a split object.
func (t *Tree) UnmarshalJSON(data []byte) error {
	n, err := Unmarshal(data)
	if err != nil {
		return err
	}
	t.Root = n
	return nil
}

// Marshal encodes a node to its wire format.
func Marshal(n Node) ([]byte, error) {
	return json.Marshal(Tree{n})
}

// Unmarshal decodes a node from its wire format.
// Malformed input yields a VALIDATION_FAILED error.
func Unmarshal(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.New(errors.ErrCodeValidation, "layout is empty")
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid leaf")
		}
		return Leaf{ID: id}, nil
	}

	var raw struct {
		Orient   Orientation       `json:"orient"`
		Children []json.RawMessage `json:"children"`
		Ratios   []float64         `json:"ratios"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid layout node")
	}
	if !raw.Orient.Valid() {
		return nil, errors.New(errors.ErrCodeValidation, "invalid orientation %q", raw.Orient)
	}
	if len(raw.Children) != 2 {
		return nil, errors.New(errors.ErrCodeValidation, "split must have exactly 2 children, got %d", len(raw.Children))
	}
	if len(raw.Ratios) != 2 {
		return nil, errors.New(errors.ErrCodeValidation, "split must have exactly 2 ratios, got %d", len(raw.Ratios))
	}

	s := &Split{Orient: raw.Orient, Ratio: Ratio{raw.Ratios[0], raw.Ratios[1]}}
	if !s.Ratio.Valid() {
		return nil, errors.New(errors.ErrCodeValidation, "ratios must be positive, got %v", raw.Ratios)
	}
	for i, c := range raw.Children {
		child, err := Unmarshal(c)
		if err != nil {
			return nil, err
		}
		s.Children[i] = child
	}
	return s, nil
}
