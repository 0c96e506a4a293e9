// Package scan describes how linear frame indices map to positions in a
// multi-dimensional scan.
package scan

import (
	"fmt"

	"github.com/avanrossum/diffract/pkg/core"
)

// Order selects which dimension of the scan varies fastest when frames are
// enumerated linearly. Deployments differ on this, so it is an explicit
// policy rather than an assumption.
type Order int

const (
	// RowMajor enumerates the last dimension fastest.
	RowMajor Order = iota
	// ColumnMajor enumerates the first dimension fastest.
	ColumnMajor
)

func (o Order) String() string {
	switch o {
	case RowMajor:
		return "row-major"
	case ColumnMajor:
		return "column-major"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// ParseOrder converts a string form ("row-major", "column-major") to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "row-major":
		return RowMajor, nil
	case "column-major":
		return ColumnMajor, nil
	}
	return 0, core.Configf("unknown scan ordering %q", s)
}

// Dimension is one axis of the scan.
type Dimension struct {
	Label  string  `yaml:"label"`
	Points int     `yaml:"points"`
	Offset float64 `yaml:"offset"`
	Delta  float64 `yaml:"delta"`
	Unit   string  `yaml:"unit,omitempty"`
}

// Geometry is an ordered sequence of per-dimension point counts together
// with the linear enumeration policy. It is consumed read-only by the
// execution engine.
type Geometry struct {
	Dims  []Dimension
	Order Order
}

// New builds a geometry from bare point counts with row-major ordering.
func New(points ...int) *Geometry {
	g := &Geometry{Order: RowMajor}
	for i, n := range points {
		g.Dims = append(g.Dims, Dimension{
			Label:  fmt.Sprintf("axis_%d", i),
			Points: n,
			Delta:  1,
		})
	}
	return g
}

// Validate checks that every dimension has at least one point.
func (g *Geometry) Validate() error {
	if len(g.Dims) == 0 {
		return core.Configf("scan geometry has no dimensions")
	}
	for i, d := range g.Dims {
		if d.Points < 1 {
			return core.Configf("scan dimension %d (%q) has %d points; at least 1 required",
				i, d.Label, d.Points)
		}
	}
	return nil
}

// NumDims returns the number of scan dimensions.
func (g *Geometry) NumDims() int { return len(g.Dims) }

// NumFrames returns the total frame count, the product of all point counts.
func (g *Geometry) NumFrames() int {
	n := 1
	for _, d := range g.Dims {
		n *= d.Points
	}
	return n
}

// Shape returns the scan's point counts as a core.Shape.
func (g *Geometry) Shape() core.Shape {
	out := make(core.Shape, len(g.Dims))
	for i, d := range g.Dims {
		out[i] = d.Points
	}
	return out
}

// Coordinate decomposes a linear frame index into a scan coordinate under
// the geometry's ordering policy. An out-of-range index is a configuration
// error.
func (g *Geometry) Coordinate(index int) ([]int, error) {
	n := g.NumFrames()
	if index < 0 || index >= n {
		return nil, core.Configf("frame index %d outside scan of %d frames", index, n)
	}
	coord := make([]int, len(g.Dims))
	switch g.Order {
	case RowMajor:
		for i := len(g.Dims) - 1; i >= 0; i-- {
			coord[i] = index % g.Dims[i].Points
			index /= g.Dims[i].Points
		}
	case ColumnMajor:
		for i := 0; i < len(g.Dims); i++ {
			coord[i] = index % g.Dims[i].Points
			index /= g.Dims[i].Points
		}
	}
	return coord, nil
}

// Index composes a scan coordinate back into a linear frame index. It is
// the exact inverse of Coordinate.
func (g *Geometry) Index(coord []int) (int, error) {
	if len(coord) != len(g.Dims) {
		return 0, core.Configf("coordinate rank %d does not match scan of %d dimensions",
			len(coord), len(g.Dims))
	}
	for i, c := range coord {
		if c < 0 || c >= g.Dims[i].Points {
			return 0, core.Configf("coordinate %d out of range for scan dimension %d (%d points)",
				c, i, g.Dims[i].Points)
		}
	}
	index := 0
	switch g.Order {
	case RowMajor:
		for i := 0; i < len(g.Dims); i++ {
			index = index*g.Dims[i].Points + coord[i]
		}
	case ColumnMajor:
		for i := len(g.Dims) - 1; i >= 0; i-- {
			index = index*g.Dims[i].Points + coord[i]
		}
	}
	return index, nil
}

// Position returns the physical axis values for a linear frame index, using
// each dimension's offset and step size.
func (g *Geometry) Position(index int) ([]float64, error) {
	coord, err := g.Coordinate(index)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(coord))
	for i, c := range coord {
		out[i] = g.Dims[i].Offset + float64(c)*g.Dims[i].Delta
	}
	return out, nil
}

// Clone returns an independent copy of the geometry.
func (g *Geometry) Clone() *Geometry {
	out := &Geometry{Order: g.Order, Dims: make([]Dimension, len(g.Dims))}
	copy(out.Dims, g.Dims)
	return out
}
