package plugin

import (
	"fmt"
	"strconv"

	"github.com/avanrossum/diffract/pkg/core"
)

// RegisterGenerics adds the generic processing plugin types to a registry.
// Hosts with domain-specific plugin sets call Register directly instead.
func RegisterGenerics(r *Registry) {
	r.MustRegister("keep_data", func(Params) (Plugin, error) {
		return &KeepData{}, nil
	})
	r.MustRegister("scale", NewScale)
	r.MustRegister("crop", NewCrop)
	r.MustRegister("rebin", NewRebin)
	r.MustRegister("average", NewAverage)
}

// ─── keep_data ────────────────────────────────────────────────────────────────

// KeepData passes its input through unchanged. It is the canonical output
// plugin: attach it as a leaf to retain a branch's data.
type KeepData struct{}

func (p *KeepData) Name() string       { return "keep_data" }
func (p *KeepData) InputDataDim() int  { return DimAny }
func (p *KeepData) OutputDataDim() int { return DimAny }
func (p *KeepData) PreExecute() error  { return nil }

func (p *KeepData) Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error) {
	return data, kw, nil
}

func (p *KeepData) CalculateResultShape(input core.Shape) (core.Shape, error) {
	if input == nil {
		return core.Shape{core.WildcardDim}, nil
	}
	return input.Clone(), nil
}

// ─── scale ────────────────────────────────────────────────────────────────────

// Scale multiplies every element by a constant factor.
type Scale struct {
	Factor float64
}

// NewScale builds a Scale plugin from params ("factor", default 1).
func NewScale(params Params) (Plugin, error) {
	factor := 1.0
	if s, ok := params["factor"]; ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid factor %q: %w", s, err)
		}
		factor = f
	}
	return &Scale{Factor: factor}, nil
}

func (p *Scale) Name() string       { return "scale" }
func (p *Scale) InputDataDim() int  { return DimAny }
func (p *Scale) OutputDataDim() int { return DimAny }
func (p *Scale) PreExecute() error  { return nil }

func (p *Scale) Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error) {
	vals := data.Values()
	for i := range vals {
		vals[i] *= p.Factor
	}
	return data, kw, nil
}

func (p *Scale) CalculateResultShape(input core.Shape) (core.Shape, error) {
	if input == nil {
		return core.Shape{core.WildcardDim}, nil
	}
	return input.Clone(), nil
}

// ─── crop ─────────────────────────────────────────────────────────────────────

// Crop cuts a rectangular region of interest out of a 2-d image.
type Crop struct {
	Y0, Y1, X0, X1 int
}

// NewCrop builds a Crop plugin from params ("y0", "y1", "x0", "x1").
func NewCrop(params Params) (Plugin, error) {
	p := &Crop{}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"y0", &p.Y0}, {"y1", &p.Y1}, {"x0", &p.X0}, {"x1", &p.X1},
	} {
		s, ok := params[f.key]
		if !ok {
			return nil, fmt.Errorf("missing required parameter %q", f.key)
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.key, s, err)
		}
		*f.dst = v
	}
	if p.Y1 <= p.Y0 || p.X1 <= p.X0 {
		return nil, fmt.Errorf("empty crop region y=[%d,%d) x=[%d,%d)", p.Y0, p.Y1, p.X0, p.X1)
	}
	return p, nil
}

func (p *Crop) Name() string       { return "crop" }
func (p *Crop) InputDataDim() int  { return 2 }
func (p *Crop) OutputDataDim() int { return 2 }
func (p *Crop) PreExecute() error  { return nil }

func (p *Crop) Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error) {
	if data.NDim() != 2 {
		return nil, nil, fmt.Errorf("crop expects 2-d input, got %v", data.Shape())
	}
	h, w := data.Shape()[0], data.Shape()[1]
	if p.Y1 > h || p.X1 > w {
		return nil, nil, fmt.Errorf("crop region y=[%d,%d) x=[%d,%d) exceeds image %v",
			p.Y0, p.Y1, p.X0, p.X1, data.Shape())
	}
	out := core.Zeros(core.Shape{p.Y1 - p.Y0, p.X1 - p.X0})
	for y := p.Y0; y < p.Y1; y++ {
		for x := p.X0; x < p.X1; x++ {
			out.Set(data.At(y, x), y-p.Y0, x-p.X0)
		}
	}
	return out, kw, nil
}

func (p *Crop) CalculateResultShape(core.Shape) (core.Shape, error) {
	return core.Shape{p.Y1 - p.Y0, p.X1 - p.X0}, nil
}

// ─── rebin ────────────────────────────────────────────────────────────────────

// Rebin bins a 2-d image by an integer factor, averaging each bin.
type Rebin struct {
	Bin int
}

// NewRebin builds a Rebin plugin from params ("bin", default 2).
func NewRebin(params Params) (Plugin, error) {
	bin := 2
	if s, ok := params["bin"]; ok {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bin %q: %w", s, err)
		}
		bin = v
	}
	if bin < 1 {
		return nil, fmt.Errorf("bin factor must be >= 1, got %d", bin)
	}
	return &Rebin{Bin: bin}, nil
}

func (p *Rebin) Name() string       { return "rebin" }
func (p *Rebin) InputDataDim() int  { return 2 }
func (p *Rebin) OutputDataDim() int { return 2 }
func (p *Rebin) PreExecute() error  { return nil }

func (p *Rebin) Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error) {
	if data.NDim() != 2 {
		return nil, nil, fmt.Errorf("rebin expects 2-d input, got %v", data.Shape())
	}
	h, w := data.Shape()[0]/p.Bin, data.Shape()[1]/p.Bin
	out := core.Zeros(core.Shape{h, w})
	norm := float64(p.Bin * p.Bin)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for dy := 0; dy < p.Bin; dy++ {
				for dx := 0; dx < p.Bin; dx++ {
					sum += data.At(y*p.Bin+dy, x*p.Bin+dx)
				}
			}
			out.Set(sum/norm, y, x)
		}
	}
	return out, kw, nil
}

func (p *Rebin) CalculateResultShape(input core.Shape) (core.Shape, error) {
	if input == nil {
		return core.Shape{core.WildcardDim, core.WildcardDim}, nil
	}
	if len(input) != 2 {
		return nil, fmt.Errorf("rebin expects 2-d input, got %v", input)
	}
	out := core.Shape{core.WildcardDim, core.WildcardDim}
	for i, d := range input {
		if d >= 0 {
			out[i] = d / p.Bin
		}
	}
	return out, nil
}

// ─── average ──────────────────────────────────────────────────────────────────

// Average collapses one axis of the input by taking the mean along it.
type Average struct {
	Axis int
}

// NewAverage builds an Average plugin from params ("axis", default 0).
func NewAverage(params Params) (Plugin, error) {
	axis := 0
	if s, ok := params["axis"]; ok {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid axis %q: %w", s, err)
		}
		axis = v
	}
	if axis < 0 {
		return nil, fmt.Errorf("axis must be >= 0, got %d", axis)
	}
	return &Average{Axis: axis}, nil
}

func (p *Average) Name() string       { return "average" }
func (p *Average) InputDataDim() int  { return DimAny }
func (p *Average) OutputDataDim() int { return DimAny }
func (p *Average) PreExecute() error  { return nil }

func (p *Average) Execute(data *core.Dataset, kw Kwargs) (*core.Dataset, Kwargs, error) {
	shape := data.Shape()
	if p.Axis >= len(shape) {
		return nil, nil, fmt.Errorf("axis %d out of range for shape %v", p.Axis, shape)
	}
	outShape, err := p.CalculateResultShape(shape)
	if err != nil {
		return nil, nil, err
	}
	out := core.Zeros(outShape)

	// Strides of the collapsed axis in the row-major input layout.
	inner := 1
	for i := p.Axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	outer := data.Len() / (inner * shape[p.Axis])

	src := data.Values()
	dst := out.Values()
	n := float64(shape[p.Axis])
	for o := 0; o < outer; o++ {
		for a := 0; a < shape[p.Axis]; a++ {
			base := (o*shape[p.Axis] + a) * inner
			for i := 0; i < inner; i++ {
				dst[o*inner+i] += src[base+i] / n
			}
		}
	}
	return out, kw, nil
}

func (p *Average) CalculateResultShape(input core.Shape) (core.Shape, error) {
	if input == nil {
		return core.Shape{core.WildcardDim}, nil
	}
	if p.Axis >= len(input) {
		return nil, fmt.Errorf("axis %d out of range for shape %v", p.Axis, input)
	}
	out := make(core.Shape, 0, len(input)-1)
	for i, d := range input {
		if i == p.Axis {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
