// Package results collects per-frame leaf outputs into pre-allocated
// multi-dimensional buffers indexed by scan coordinate.
package results

import (
	"sort"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/scan"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// Aggregator owns one dense result buffer per workflow leaf, each of shape
// scanShape + leafShape. Buffers are allocated by UpdateShapes and written
// by Store; the aggregator is exclusively owned and mutated by the
// controller, never by workers.
type Aggregator struct {
	buffers    map[int]*core.Dataset
	leafShapes map[int]core.Shape
	geom       *scan.Geometry
	hash       uint64
}

// NewAggregator creates an aggregator with no allocated buffers.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// UpdateShapes recomputes the composite source hash of (geometry, tree
// topology, resolved shapes) and, if it changed, re-allocates one buffer
// per leaf and discards buffers for leaves no longer present. Allocation
// requires every leaf shape to be fully resolved.
func (a *Aggregator) UpdateShapes(geom *scan.Geometry, tree *workflow.Tree) error {
	if err := geom.Validate(); err != nil {
		return err
	}
	leafShapes, err := tree.LeafShapes()
	if err != nil {
		return err
	}
	h := SourceHash(geom, tree)
	if h == a.hash && a.buffers != nil {
		return nil
	}

	scanShape := geom.Shape()
	buffers := make(map[int]*core.Dataset, len(leafShapes))
	shapes := make(map[int]core.Shape, len(leafShapes))
	for id, leafShape := range leafShapes {
		buffers[id] = core.Zeros(scanShape.Concat(leafShape))
		shapes[id] = leafShape.Clone()
	}
	a.buffers = buffers
	a.leafShapes = shapes
	a.geom = geom.Clone()
	a.hash = h
	return nil
}

// SourceHash returns the hash the current buffers were allocated for, or 0
// if no allocation has happened yet.
func (a *Aggregator) SourceHash() uint64 { return a.hash }

// LeafIDs returns the ids of all leaves with allocated buffers, ascending.
func (a *Aggregator) LeafIDs() []int {
	out := make([]int, 0, len(a.buffers))
	for id := range a.buffers {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Store writes each leaf result into its buffer at the scan coordinate
// derived from the task index. Delivery order is irrelevant because
// placement is keyed by coordinate; re-delivery of the same task
// overwrites idempotently. Storing against an unknown leaf or without
// allocated buffers is a configuration error.
func (a *Aggregator) Store(task int, leafResults map[int]*core.Dataset) error {
	if a.geom == nil {
		return core.Configf("no result buffers allocated; call UpdateShapes first")
	}
	coord, err := a.geom.Coordinate(task)
	if err != nil {
		return err
	}
	for id, val := range leafResults {
		buf, ok := a.buffers[id]
		if !ok {
			return core.Configf("leaf node %d is not part of the current result shapes", id)
		}
		want := a.leafShapes[id]
		if !val.Shape().Equal(want) {
			return core.Configf("leaf node %d: result shape %v does not match allocated shape %v",
				id, val.Shape(), want)
		}
		off := a.cellOffset(coord) * want.NumElements()
		if err := buf.WriteBlock(off, val); err != nil {
			return err
		}
	}
	return nil
}

// cellOffset computes the linear position of a scan coordinate in the
// buffer's row-major layout.
func (a *Aggregator) cellOffset(coord []int) int {
	off := 0
	for i, c := range coord {
		off = off*a.geom.Dims[i].Points + c
	}
	return off
}

// Get returns a copy of a leaf's buffer. A non-empty prefix selects along
// the leading scan dimensions; collapse flattens the remaining scan
// dimensions into a single timeline axis in buffer memory order.
func (a *Aggregator) Get(leafID int, prefix []int, collapse bool) (*core.Dataset, error) {
	buf, ok := a.buffers[leafID]
	if !ok {
		return nil, core.Configf("leaf node %d is not part of the current result shapes", leafID)
	}
	scanShape := a.geom.Shape()
	if len(prefix) > len(scanShape) {
		return nil, core.Configf("selection rank %d exceeds scan rank %d", len(prefix), len(scanShape))
	}

	remaining := scanShape[len(prefix):].Clone()
	blockShape := remaining.Concat(a.leafShapes[leafID])

	off := 0
	for i, c := range prefix {
		if c < 0 || c >= scanShape[i] {
			return nil, core.Configf("selection index %d out of range for scan dimension %d (%d points)",
				c, i, scanShape[i])
		}
		off = off*scanShape[i] + c
	}
	for _, d := range scanShape[len(prefix):] {
		off *= d
	}
	off *= a.leafShapes[leafID].NumElements()

	out, err := buf.BlockAt(off, blockShape)
	if err != nil {
		return nil, err
	}
	if collapse && len(remaining) > 1 {
		flat := core.Shape{remaining.NumElements()}.Concat(a.leafShapes[leafID])
		return out.Reshaped(flat)
	}
	return out, nil
}

// GetFrame returns a copy of one leaf's result for a single task index.
func (a *Aggregator) GetFrame(leafID, task int) (*core.Dataset, error) {
	buf, ok := a.buffers[leafID]
	if !ok {
		return nil, core.Configf("leaf node %d is not part of the current result shapes", leafID)
	}
	coord, err := a.geom.Coordinate(task)
	if err != nil {
		return nil, err
	}
	leafShape := a.leafShapes[leafID]
	off := a.cellOffset(coord) * leafShape.NumElements()
	return buf.BlockAt(off, leafShape)
}
