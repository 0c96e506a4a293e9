package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
	"github.com/avanrossum/diffract/pkg/results"
	"github.com/avanrossum/diffract/pkg/scan"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// ─── Environment settings ─────────────────────────────────────────────────────

func TestLoadEnv_Defaults(t *testing.T) {
	s, err := loadEnv()
	if err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if s.Workers != 4 {
		t.Errorf("Workers = %d, want 4", s.Workers)
	}
	if s.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", s.LogLevel)
	}
	g := s.gate()
	if g.PollInterval != 100*time.Millisecond || g.Timeout != 10*time.Second {
		t.Errorf("gate = %+v, want 100ms/10s", g)
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("DIFFRACT_WORKERS", "8")
	t.Setenv("DIFFRACT_TIMEOUT_MS", "250")
	s, err := loadEnv()
	if err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if s.Workers != 8 {
		t.Errorf("Workers = %d, want 8", s.Workers)
	}
	if s.gate().Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", s.gate().Timeout)
	}
}

func TestLoadEnv_Invalid(t *testing.T) {
	t.Setenv("DIFFRACT_WORKERS", "many")
	if _, err := loadEnv(); err == nil {
		t.Error("expected error for non-numeric worker count")
	}
}

// ─── Wiring ───────────────────────────────────────────────────────────────────

func TestRegistry_HasGenericPlugins(t *testing.T) {
	reg := registry()
	for _, name := range []string{"keep_data", "scale", "crop", "rebin", "average"} {
		if _, err := reg.Create(name, plugin.Params{
			"y0": "0", "y1": "2", "x0": "0", "x1": "2",
		}); err != nil {
			t.Errorf("Create(%q): %v", name, err)
		}
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"run": false, "lint": false, "export": false, "composite": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

// ─── Export ───────────────────────────────────────────────────────────────────

func TestExportLeaves(t *testing.T) {
	geom := scan.New(2)
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	tr.SetInputShape(core.Shape{2})

	agg := results.NewAggregator()
	if err := agg.UpdateShapes(geom, tr); err != nil {
		t.Fatalf("UpdateShapes: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	if err := exportLeaves(agg, dir); err != nil {
		t.Fatalf("exportLeaves: %v", err)
	}
	path := filepath.Join(dir, "leaf_0_2x2.f64")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	// 2 frames of 2 float64 values.
	if info.Size() != 32 {
		t.Errorf("export size = %d, want 32", info.Size())
	}
}
