// Package mosaic assembles individual detector frames into one large
// composite image for quick visual inspection of a whole scan.
package mosaic

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/avanrossum/diffract/pkg/core"
)

// Direction selects how consecutive frame indices tile the composite.
type Direction int

const (
	// FillX advances along x first, wrapping to the next row.
	FillX Direction = iota
	// FillY advances along y first, wrapping to the next column.
	FillY
)

// Composite is an nx × ny tiling of equally shaped 2-d frames.
type Composite struct {
	nx, ny   int
	tile     core.Shape
	dir      Direction
	image    *core.Dataset
	inserted int
}

// New allocates a composite for nx × ny tiles of the given 2-d tile shape.
func New(nx, ny int, tile core.Shape, dir Direction) (*Composite, error) {
	if nx < 1 || ny < 1 {
		return nil, core.Configf("composite dimensions must be positive, got nx=%d ny=%d", nx, ny)
	}
	if len(tile) != 2 || !tile.Resolved() {
		return nil, core.Configf("composite tiles must be 2-d with resolved shape, got %v", tile)
	}
	return &Composite{
		nx:    nx,
		ny:    ny,
		tile:  tile.Clone(),
		dir:   dir,
		image: core.Zeros(core.Shape{ny * tile[0], nx * tile[1]}),
	}, nil
}

// NumTiles returns the total capacity of the composite.
func (c *Composite) NumTiles() int { return c.nx * c.ny }

// Image returns the backing composite image.
func (c *Composite) Image() *core.Dataset { return c.image }

// InsertImage places a frame at the tile position derived from its linear
// index. Re-inserting the same index overwrites the earlier frame.
func (c *Composite) InsertImage(img *core.Dataset, index int) error {
	if index < 0 || index >= c.NumTiles() {
		return core.Configf("tile index %d outside composite of %d tiles", index, c.NumTiles())
	}
	if !img.Shape().Equal(c.tile) {
		return core.Configf("frame shape %v does not match composite tile shape %v", img.Shape(), c.tile)
	}
	var ix, iy int
	switch c.dir {
	case FillX:
		ix, iy = index%c.nx, index/c.nx
	case FillY:
		iy, ix = index%c.ny, index/c.ny
	}
	y0, x0 := iy*c.tile[0], ix*c.tile[1]
	for y := 0; y < c.tile[0]; y++ {
		for x := 0; x < c.tile[1]; x++ {
			c.image.Set(img.At(y, x), y0+y, x0+x)
		}
	}
	c.inserted++
	return nil
}

// ApplyThresholds clamps the composite to [low, high]. Either bound may be
// NaN to leave that side open.
func (c *Composite) ApplyThresholds(low, high float64) {
	vals := c.image.Values()
	for i, v := range vals {
		if !math.IsNaN(low) && v < low {
			vals[i] = low
		}
		if !math.IsNaN(high) && v > high {
			vals[i] = high
		}
	}
}

// Range returns the minimum and maximum value of the composite.
func (c *Composite) Range() (float64, float64) {
	vals := c.image.Values()
	return floats.Min(vals), floats.Max(vals)
}

// ExportPNG writes the composite as a 16-bit grayscale PNG, scaled to the
// current data range.
func (c *Composite) ExportPNG(path string) error {
	lo, hi := c.Range()
	scale := 0.0
	if hi > lo {
		scale = math.MaxUint16 / (hi - lo)
	}
	h, w := c.image.Shape()[0], c.image.Shape()[1]
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16((c.image.At(y, x) - lo) * scale)
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode composite: %w", err)
	}
	return nil
}
