package app

import (
	"math"

	"go.uber.org/zap"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/frames"
	"github.com/avanrossum/diffract/pkg/mosaic"
)

// CompositeConfig configures a mosaic assembly run. A value of -1 for Nx
// or Ny derives that dimension from the frame count. A nil threshold
// leaves that bound open.
type CompositeConfig struct {
	Nx            int              `yaml:"nx"`
	Ny            int              `yaml:"ny"`
	Direction     mosaic.Direction `yaml:"direction"`
	ThresholdLow  *float64         `yaml:"threshold_low,omitempty"`
	ThresholdHigh *float64         `yaml:"threshold_high,omitempty"`
}

// CompositeApp assembles every frame of a series into one mosaic image.
// It is the image-mosaic terminal consumer of the execution contract:
// Func loads and masks a frame, StoreResults inserts it into the
// composite, PostRun applies thresholds.
type CompositeApp struct {
	cfg  CompositeConfig
	src  frames.Source
	log  *zap.Logger
	comp *mosaic.Composite

	mask       *core.Dataset
	maskValue  float64
	background *core.Dataset

	tasks []int
}

// NewCompositeApp wires a composite app. logger may be nil.
func NewCompositeApp(cfg CompositeConfig, src frames.Source, logger *zap.Logger) *CompositeApp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompositeApp{cfg: cfg, src: src, log: logger}
}

// SetMask installs a detector mask: wherever mask is non-zero, the frame
// value is replaced by value.
func (a *CompositeApp) SetMask(mask *core.Dataset, value float64) {
	a.mask = mask
	a.maskValue = value
}

// SetBackground installs a background image subtracted from every frame
// at insertion time.
func (a *CompositeApp) SetBackground(bg *core.Dataset) { a.background = bg }

// Composite returns the assembled image, or nil before PreRun.
func (a *CompositeApp) Composite() *mosaic.Composite { return a.comp }

// PreRun sizes and allocates the composite and establishes the task
// universe. Composite dimensions that do not fit the frame count are a
// configuration error.
func (a *CompositeApp) PreRun() error {
	n := a.src.NumFrames()
	if n < 1 {
		return core.Configf("frame source is empty")
	}
	nx, ny := a.cfg.Nx, a.cfg.Ny
	switch {
	case nx == -1 && ny == -1:
		return core.Configf("at least one composite dimension must be given")
	case nx == -1:
		nx = (n + ny - 1) / ny
	case ny == -1:
		ny = (n + nx - 1) / nx
	}
	if nx*ny < n {
		return core.Configf("composite %dx%d too small for %d frames", nx, ny, n)
	}
	if (nx-1)*ny >= n || nx*(ny-1) >= n {
		return core.Configf("composite %dx%d too large for %d frames", nx, ny, n)
	}

	shape := a.src.FrameShape()
	if a.mask != nil && !a.mask.Shape().Equal(shape) {
		return core.Configf("mask shape %v does not match frame shape %v", a.mask.Shape(), shape)
	}
	if a.background != nil && !a.background.Shape().Equal(shape) {
		return core.Configf("background shape %v does not match frame shape %v",
			a.background.Shape(), shape)
	}

	comp, err := mosaic.New(nx, ny, shape, a.cfg.Direction)
	if err != nil {
		return err
	}
	a.comp = comp
	a.tasks = make([]int, n)
	for i := range a.tasks {
		a.tasks[i] = i
	}
	a.log.Info("composite run prepared",
		zap.Int("frames", n), zap.Int("nx", nx), zap.Int("ny", ny))
	return nil
}

// Tasks returns the stable task sequence 0..N-1.
func (a *CompositeApp) Tasks() ([]int, error) {
	if a.tasks == nil {
		return nil, core.Configf("task list not initialized; call PreRun first")
	}
	return a.tasks, nil
}

// PreCycle resolves the frame's backing file when the source supports it.
func (a *CompositeApp) PreCycle(task int) error {
	if live, ok := a.src.(frames.LiveSource); ok {
		return live.Resolve(task)
	}
	return nil
}

// CarryOn reports frame readiness for live sources and true otherwise.
func (a *CompositeApp) CarryOn() (bool, error) {
	if live, ok := a.src.(frames.LiveSource); ok {
		return live.Ready(), nil
	}
	return true, nil
}

// Func loads one frame and applies the detector mask.
func (a *CompositeApp) Func(task int) (*core.Dataset, error) {
	img, err := a.src.Load(task)
	if err != nil {
		return nil, err
	}
	if a.mask != nil {
		maskVals := a.mask.Values()
		vals := img.Values()
		for i, m := range maskVals {
			if m != 0 {
				vals[i] = a.maskValue
			}
		}
	}
	return img, nil
}

// StoreResults subtracts the background and inserts the frame into the
// composite at the tile derived from the task index.
func (a *CompositeApp) StoreResults(task int, img *core.Dataset) error {
	if a.comp == nil {
		return core.Configf("composite not allocated; call PreRun first")
	}
	if a.background != nil {
		bg := a.background.Values()
		vals := img.Values()
		for i := range vals {
			vals[i] -= bg[i]
		}
	}
	return a.comp.InsertImage(img, task)
}

// PostRun applies the configured thresholds. Skipped by drivers on
// cancellation, so a half-finished composite is never clamped.
func (a *CompositeApp) PostRun() error {
	if a.cfg.ThresholdLow == nil && a.cfg.ThresholdHigh == nil {
		return nil
	}
	low, high := math.NaN(), math.NaN()
	if a.cfg.ThresholdLow != nil {
		low = *a.cfg.ThresholdLow
	}
	if a.cfg.ThresholdHigh != nil {
		high = *a.cfg.ThresholdHigh
	}
	a.comp.ApplyThresholds(low, high)
	return nil
}
