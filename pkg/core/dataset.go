package core

import "fmt"

// Dataset is a dense n-dimensional float64 array with row-major layout
// (last dimension varies fastest). It is the unit of data passed between
// processing plugins and stored in result buffers.
type Dataset struct {
	shape Shape
	data  []float64
}

// Zeros allocates a zero-filled dataset. The shape must be resolved.
func Zeros(shape Shape) *Dataset {
	return &Dataset{
		shape: shape.Clone(),
		data:  make([]float64, shape.NumElements()),
	}
}

// NewDataset wraps existing values in a dataset. The length of data must
// match the number of elements implied by shape.
func NewDataset(shape Shape, data []float64) (*Dataset, error) {
	if !shape.Resolved() {
		return nil, Configf("cannot build dataset with unresolved shape %v", shape)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("dataset shape %v requires %d values, got %d",
			shape, shape.NumElements(), len(data))
	}
	return &Dataset{shape: shape.Clone(), data: data}, nil
}

// Scalar returns a zero-dimensional dataset holding a single value.
func Scalar(v float64) *Dataset {
	return &Dataset{shape: Shape{}, data: []float64{v}}
}

// Shape returns the dataset's shape. The returned slice must not be mutated.
func (d *Dataset) Shape() Shape { return d.shape }

// NDim returns the number of dimensions.
func (d *Dataset) NDim() int { return len(d.shape) }

// Len returns the total number of elements.
func (d *Dataset) Len() int { return len(d.data) }

// Values returns the backing slice in row-major order. Mutations are
// visible to the dataset.
func (d *Dataset) Values() []float64 { return d.data }

// offset translates a full coordinate into a linear position, panicking on
// rank mismatch or out-of-range indices (following the access conventions
// of gonum matrices).
func (d *Dataset) offset(coord []int) int {
	if len(coord) != len(d.shape) {
		panic(fmt.Sprintf("core: coordinate rank %d does not match shape %v", len(coord), d.shape))
	}
	off := 0
	for i, c := range coord {
		if c < 0 || c >= d.shape[i] {
			panic(fmt.Sprintf("core: index %d out of range for dimension %d of shape %v", c, i, d.shape))
		}
		off = off*d.shape[i] + c
	}
	return off
}

// At returns the element at the given coordinate.
func (d *Dataset) At(coord ...int) float64 { return d.data[d.offset(coord)] }

// Set assigns the element at the given coordinate.
func (d *Dataset) Set(v float64, coord ...int) { d.data[d.offset(coord)] = v }

// Fill sets every element to v.
func (d *Dataset) Fill(v float64) {
	for i := range d.data {
		d.data[i] = v
	}
}

// Copy returns a deep, independent copy of the dataset.
func (d *Dataset) Copy() *Dataset {
	out := &Dataset{shape: d.shape.Clone(), data: make([]float64, len(d.data))}
	copy(out.data, d.data)
	return out
}

// WriteBlock copies src's elements into the dataset starting at linear
// offset off. Used by result buffers to place one cell's worth of data.
func (d *Dataset) WriteBlock(off int, src *Dataset) error {
	if off < 0 || off+src.Len() > len(d.data) {
		return fmt.Errorf("block [%d:%d) outside dataset of %d elements", off, off+src.Len(), len(d.data))
	}
	copy(d.data[off:off+src.Len()], src.data)
	return nil
}

// BlockAt returns a copy of the block of n elements starting at linear
// offset off, shaped as blockShape.
func (d *Dataset) BlockAt(off int, blockShape Shape) (*Dataset, error) {
	n := blockShape.NumElements()
	if off < 0 || off+n > len(d.data) {
		return nil, fmt.Errorf("block [%d:%d) outside dataset of %d elements", off, off+n, len(d.data))
	}
	out := make([]float64, n)
	copy(out, d.data[off:off+n])
	return NewDataset(blockShape, out)
}

// Reshaped returns a view-copy of the dataset with a new shape holding the
// same number of elements.
func (d *Dataset) Reshaped(shape Shape) (*Dataset, error) {
	if shape.NumElements() != len(d.data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", d.shape, len(d.data), shape)
	}
	out := d.Copy()
	out.shape = shape.Clone()
	return out, nil
}
