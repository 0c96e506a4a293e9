package frames

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/filelist"
)

// SyntheticSource generates frames procedurally. It backs tests, demos and
// dry runs where no detector data is available.
type SyntheticSource struct {
	Frames int
	Shape  core.Shape
	// Fill computes the value at (frame, flat element index). When nil, a
	// frame-dependent gradient is used.
	Fill func(frame, i int) float64
}

// NumFrames returns the configured frame count.
func (s *SyntheticSource) NumFrames() int { return s.Frames }

// FrameShape returns the configured frame shape.
func (s *SyntheticSource) FrameShape() core.Shape { return s.Shape.Clone() }

// Load generates the frame with the given index.
func (s *SyntheticSource) Load(index int) (*core.Dataset, error) {
	if index < 0 || index >= s.Frames {
		return nil, core.Configf("frame index %d outside source of %d frames", index, s.Frames)
	}
	d := core.Zeros(s.Shape)
	vals := d.Values()
	for i := range vals {
		if s.Fill != nil {
			vals[i] = s.Fill(index, i)
			continue
		}
		vals[i] = float64(index) + float64(i)/float64(len(vals))
	}
	return d, nil
}

// RawSource reads frames stored as flat little-endian float32 arrays, one
// or more frames per file, through an ordered file list. It applies the
// metadata's crop and binning before handing the frame out.
type RawSource struct {
	Files *filelist.Manager
	Meta  Metadata

	current string // file backing the most recently resolved index
}

// NewRawSource validates the metadata and wraps the file list.
func NewRawSource(files *filelist.Manager, meta Metadata) (*RawSource, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &RawSource{Files: files, Meta: meta}, nil
}

// NumFrames returns files × images-per-file.
func (s *RawSource) NumFrames() int {
	return s.Files.NFiles() * s.Meta.ImagesPerFile
}

// FrameShape returns the post-crop, post-binning frame shape.
func (s *RawSource) FrameShape() core.Shape { return s.Meta.FinalShape() }

// Resolve maps a frame index to its backing file. Side effect only; heavy
// reading happens in Load.
func (s *RawSource) Resolve(index int) error {
	fname, err := s.Files.Filename(index / s.Meta.ImagesPerFile)
	if err != nil {
		return err
	}
	s.current = fname
	return nil
}

// Ready reports whether the resolved file exists and is fully written.
func (s *RawSource) Ready() bool {
	if s.current == "" {
		return false
	}
	return s.Files.FileOK(s.current)
}

// Load reads one frame and applies crop and binning.
func (s *RawSource) Load(index int) (*core.Dataset, error) {
	if err := s.Resolve(index); err != nil {
		return nil, err
	}
	frameInFile := index % s.Meta.ImagesPerFile
	raw, err := s.readRaw(s.current, frameInFile)
	if err != nil {
		return nil, err
	}
	return s.preprocess(raw)
}

func (s *RawSource) readRaw(path string, frame int) (*core.Dataset, error) {
	n := s.Meta.RawHeight * s.Meta.RawWidth
	buf := make([]byte, 4*n)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame file: %w", err)
	}
	defer f.Close()
	if _, err := f.ReadAt(buf, int64(4*n*frame)); err != nil {
		return nil, fmt.Errorf("read frame %d from %s: %w", frame, path, err)
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return core.NewDataset(core.Shape{s.Meta.RawHeight, s.Meta.RawWidth}, vals)
}

func (s *RawSource) preprocess(raw *core.Dataset) (*core.Dataset, error) {
	img := raw
	if r := s.Meta.ROI; r != nil {
		out := core.Zeros(core.Shape{r.Y1 - r.Y0, r.X1 - r.X0})
		for y := r.Y0; y < r.Y1; y++ {
			for x := r.X0; x < r.X1; x++ {
				out.Set(img.At(y, x), y-r.Y0, x-r.X0)
			}
		}
		img = out
	}
	if b := s.Meta.Binning; b > 1 {
		h, w := img.Shape()[0]/b, img.Shape()[1]/b
		out := core.Zeros(core.Shape{h, w})
		norm := float64(b * b)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sum := 0.0
				for dy := 0; dy < b; dy++ {
					for dx := 0; dx < b; dx++ {
						sum += img.At(y*b+dy, x*b+dx)
					}
				}
				out.Set(sum/norm, y, x)
			}
		}
		img = out
	}
	return img, nil
}
