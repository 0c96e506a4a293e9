package plugin_test

import (
	"fmt"
	"testing"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
)

// ─── Registry tests ───────────────────────────────────────────────────────────

func TestRegistry_RegisterAndCreate(t *testing.T) {
	reg := plugin.NewRegistry()
	plugin.RegisterGenerics(reg)

	p, err := reg.Create("scale", plugin.Params{"factor": "2.5"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name() != "scale" {
		t.Errorf("name = %q, want scale", p.Name())
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := plugin.NewRegistry()
	if _, err := reg.Create("nope", nil); err == nil {
		t.Error("expected error for unregistered plugin type")
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := plugin.NewRegistry()
	f := func(plugin.Params) (plugin.Plugin, error) { return &plugin.KeepData{}, nil }
	if err := reg.Register("dup", f); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := reg.Register("dup", f); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Register("", func(plugin.Params) (plugin.Plugin, error) { return nil, nil }); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := plugin.NewRegistry()
	plugin.RegisterGenerics(reg)
	names := reg.Names()
	want := []string{"average", "crop", "keep_data", "rebin", "scale"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("Names = %v, want %v", names, want)
	}
}

// ─── Generic plugin tests ─────────────────────────────────────────────────────

func TestKeepData_PassThrough(t *testing.T) {
	p := &plugin.KeepData{}
	in := core.Scalar(5)
	out, _, err := p.Execute(in, plugin.Kwargs{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.At() != 5 {
		t.Errorf("output = %v, want 5", out.At())
	}
	shape, err := p.CalculateResultShape(nil)
	if err != nil {
		t.Fatalf("CalculateResultShape: %v", err)
	}
	if shape.Resolved() {
		t.Errorf("shape for unknown input = %v, want a wildcard", shape)
	}
}

func TestScale_Execute(t *testing.T) {
	p, err := plugin.NewScale(plugin.Params{"factor": "3"})
	if err != nil {
		t.Fatalf("NewScale: %v", err)
	}
	in, _ := core.NewDataset(core.Shape{2}, []float64{1, 2})
	out, _, err := p.Execute(in, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.At(0) != 3 || out.At(1) != 6 {
		t.Errorf("output = %v, want [3 6]", out.Values())
	}
}

func TestScale_InvalidFactor(t *testing.T) {
	if _, err := plugin.NewScale(plugin.Params{"factor": "wat"}); err == nil {
		t.Error("expected error for non-numeric factor")
	}
}

func TestCrop_ShapeAndExecute(t *testing.T) {
	p, err := plugin.NewCrop(plugin.Params{"y0": "1", "y1": "3", "x0": "0", "x1": "2"})
	if err != nil {
		t.Fatalf("NewCrop: %v", err)
	}
	shape, err := p.CalculateResultShape(core.Shape{4, 4})
	if err != nil {
		t.Fatalf("CalculateResultShape: %v", err)
	}
	if !shape.Equal(core.Shape{2, 2}) {
		t.Errorf("shape = %v, want (2, 2)", shape)
	}

	in := core.Zeros(core.Shape{4, 4})
	in.Set(7, 1, 0)
	out, _, err := p.Execute(in, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.At(0, 0) != 7 {
		t.Errorf("cropped (0,0) = %v, want 7", out.At(0, 0))
	}
}

func TestCrop_RegionValidation(t *testing.T) {
	if _, err := plugin.NewCrop(plugin.Params{"y0": "2", "y1": "2", "x0": "0", "x1": "2"}); err == nil {
		t.Error("expected error for empty crop region")
	}
	if _, err := plugin.NewCrop(plugin.Params{"y0": "0", "y1": "2"}); err == nil {
		t.Error("expected error for missing parameters")
	}
	p, _ := plugin.NewCrop(plugin.Params{"y0": "0", "y1": "8", "x0": "0", "x1": "8"})
	if _, _, err := p.Execute(core.Zeros(core.Shape{4, 4}), nil); err == nil {
		t.Error("expected error for crop region exceeding the image")
	}
}

func TestRebin_MeanAndShape(t *testing.T) {
	p, err := plugin.NewRebin(plugin.Params{"bin": "2"})
	if err != nil {
		t.Fatalf("NewRebin: %v", err)
	}
	in, _ := core.NewDataset(core.Shape{2, 2}, []float64{1, 2, 3, 4})
	out, _, err := p.Execute(in, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Shape().Equal(core.Shape{1, 1}) {
		t.Fatalf("shape = %v, want (1, 1)", out.Shape())
	}
	if out.At(0, 0) != 2.5 {
		t.Errorf("binned value = %v, want 2.5", out.At(0, 0))
	}

	shape, err := p.CalculateResultShape(core.Shape{6, core.WildcardDim})
	if err != nil {
		t.Fatalf("CalculateResultShape: %v", err)
	}
	if shape[0] != 3 || shape[1] != core.WildcardDim {
		t.Errorf("shape = %v, want (3, ?)", shape)
	}
}

func TestAverage_CollapseAxis(t *testing.T) {
	p, err := plugin.NewAverage(plugin.Params{"axis": "1"})
	if err != nil {
		t.Fatalf("NewAverage: %v", err)
	}
	in, _ := core.NewDataset(core.Shape{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	out, _, err := p.Execute(in, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Shape().Equal(core.Shape{2}) {
		t.Fatalf("shape = %v, want (2)", out.Shape())
	}
	if out.At(0) != 2 || out.At(1) != 5 {
		t.Errorf("averaged = %v, want [2 5]", out.Values())
	}
}

func TestAverage_AxisOutOfRange(t *testing.T) {
	p, _ := plugin.NewAverage(plugin.Params{"axis": "2"})
	if _, _, err := p.Execute(core.Zeros(core.Shape{2, 2}), nil); err == nil {
		t.Error("expected error for axis past the input rank")
	}
}

func TestKwargs_Copy(t *testing.T) {
	kw := plugin.Kwargs{"frame": 3}
	cp := kw.Copy()
	cp["frame"] = 9
	if kw["frame"] != 3 {
		t.Error("mutating the copy changed the original kwargs")
	}
}
