// Package frames resolves per-frame read metadata and loads frame data
// from a file series or a synthetic generator.
package frames

import (
	"github.com/avanrossum/diffract/pkg/core"
)

// ROI is a rectangular region of interest on the raw detector image.
type ROI struct {
	Y0 int `yaml:"y0"`
	Y1 int `yaml:"y1"`
	X0 int `yaml:"x0"`
	X1 int `yaml:"x1"`
}

// Metadata describes how raw frames are stored and pre-processed before
// they enter a workflow: how many images live in one file, the optional
// crop region and the binning factor.
type Metadata struct {
	ImagesPerFile int  `yaml:"images_per_file"`
	RawHeight     int  `yaml:"raw_height"`
	RawWidth      int  `yaml:"raw_width"`
	ROI           *ROI `yaml:"roi,omitempty"`
	Binning       int  `yaml:"binning,omitempty"`
}

// Validate checks the metadata for internal consistency.
func (m *Metadata) Validate() error {
	if m.ImagesPerFile < 1 {
		return core.Configf("images per file must be >= 1, got %d", m.ImagesPerFile)
	}
	if m.RawHeight < 1 || m.RawWidth < 1 {
		return core.Configf("invalid raw frame shape (%d, %d)", m.RawHeight, m.RawWidth)
	}
	if m.ROI != nil {
		r := m.ROI
		if r.Y0 < 0 || r.X0 < 0 || r.Y1 > m.RawHeight || r.X1 > m.RawWidth ||
			r.Y1 <= r.Y0 || r.X1 <= r.X0 {
			return core.Configf("roi y=[%d,%d) x=[%d,%d) invalid for raw frame (%d, %d)",
				r.Y0, r.Y1, r.X0, r.X1, m.RawHeight, m.RawWidth)
		}
	}
	if m.Binning < 0 {
		return core.Configf("binning must be >= 1, got %d", m.Binning)
	}
	return nil
}

// FinalShape returns the post-crop, post-binning frame shape.
func (m *Metadata) FinalShape() core.Shape {
	h, w := m.RawHeight, m.RawWidth
	if m.ROI != nil {
		h = m.ROI.Y1 - m.ROI.Y0
		w = m.ROI.X1 - m.ROI.X0
	}
	if m.Binning > 1 {
		h /= m.Binning
		w /= m.Binning
	}
	return core.Shape{h, w}
}

// Source provides frame data by linear frame index.
type Source interface {
	// NumFrames returns the total number of frames available.
	NumFrames() int
	// FrameShape returns the shape of every loaded frame.
	FrameShape() core.Shape
	// Load reads and pre-processes the frame with the given index.
	Load(index int) (*core.Dataset, error)
}

// LiveSource is a Source whose frames may arrive while processing runs.
// Resolve maps a frame index to its backing file; Ready reports whether
// that file is complete. It feeds the execution contract's carry-on gate.
type LiveSource interface {
	Source
	Resolve(index int) error
	Ready() bool
}
