package core

import (
	"fmt"
	"strings"
)

// WildcardDim marks a dimension whose extent is not yet known. Shapes
// containing wildcard dimensions cannot be allocated.
const WildcardDim = -1

// Shape describes the extents of a dataset, outermost dimension first.
type Shape []int

// Resolved reports whether every dimension has a concrete, positive extent.
func (s Shape) Resolved() bool {
	for _, n := range s {
		if n < 0 {
			return false
		}
	}
	return true
}

// NumElements returns the product of all extents. The shape must be
// resolved; calling NumElements on a wildcard shape panics.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		if d < 0 {
			panic(fmt.Sprintf("core: NumElements on unresolved shape %v", s))
		}
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Concat returns the concatenation of s and o as a new shape.
func (s Shape) Concat(o Shape) Shape {
	out := make(Shape, 0, len(s)+len(o))
	out = append(out, s...)
	out = append(out, o...)
	return out
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
