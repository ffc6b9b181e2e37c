package layout

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/matzehuels/panelgrid/pkg/errors"
)

// Path locates a node by the child indices leading to it from the root.
// The empty path is the root. A nil and an empty path are equivalent.
type Path []int

// Root is the empty path.
var Root = Path{}

// Child returns a new path extended by index i. p is not modified.
func (p Path) Child(i int) Path {
	c := make(Path, len(p)+1)
	copy(c, p)
	c[len(p)] = i
	return c
}

// Parent returns the path of the parent node. The root has no parent and
// returns itself.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Root
	}
	return p.Clone()[:len(p)-1]
}

// Last returns the final index of p, or -1 for the root.
func (p Path) Last() int {
	if len(p) == 0 {
		return -1
	}
	return p[len(p)-1]
}

// Sibling returns the path of the other child of p's parent.
func (p Path) Sibling() Path {
	if len(p) == 0 {
		return Root
	}
	s := p.Clone()
	s[len(s)-1] = 1 - s[len(s)-1]
	return s
}

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Clone returns a copy of p that shares no memory with it.
func (p Path) Clone() Path {
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Equal reports whether p and other address the same position.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of p or equal to it.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// Related reports whether one path is an ancestor of the other or both are equal.
func (p Path) Related(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

// IsSiblingOf reports whether p and other are the two children of one split.
func (p Path) IsSiblingOf(other Path) bool {
	if len(p) == 0 || len(p) != len(other) {
		return false
	}
	return p.Parent().Equal(other.Parent()) && p.Last() != other.Last()
}

// String formats p as dot-separated indices, or "root" for the empty path.
func (p Path) String() string {
	if len(p) == 0 {
		return "root"
	}
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// ParsePath parses the format produced by [Path.String]. The strings "",
// "root" and "." all denote the root.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "root" || s == "." {
		return Root, nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || (v != 0 && v != 1) {
			return nil, errors.New(errors.ErrCodeInvalidPath, "invalid path %q: element %q must be 0 or 1", s, part)
		}
		p[i] = v
	}
	return p, nil
}

// MarshalJSON encodes p as an array of indices. The root encodes as [].
func (p Path) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(p))
}

// UnmarshalJSON decodes an array of indices, rejecting anything but 0 and 1.
func (p *Path) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "path must be an array of 0/1 indices")
	}
	for _, i := range v {
		if i != 0 && i != 1 {
			return errors.New(errors.ErrCodeInvalidPath, "path %v: index %d out of range", v, i)
		}
	}
	if v == nil {
		v = []int{}
	}
	*p = Path(v)
	return nil
}

// LCAPath returns the longest common prefix of a and b.
func LCAPath(a, b Path) Path {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i].Clone()
}
