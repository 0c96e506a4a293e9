package app

import (
	"go.uber.org/zap"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/frames"
	"github.com/avanrossum/diffract/pkg/plugin"
	"github.com/avanrossum/diffract/pkg/results"
	"github.com/avanrossum/diffract/pkg/scan"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// LeafResults is the payload a workflow run produces per task: the output
// of every leaf node, keyed by node id.
type LeafResults = map[int]*core.Dataset

// WorkflowApp executes a workflow tree over every frame of a scan and
// aggregates the leaf outputs. The aggregator is only held by the
// controller instance; worker copies are built with a nil aggregator and
// report their results through the driver instead.
type WorkflowApp struct {
	tree *workflow.Tree
	geom *scan.Geometry
	agg  *results.Aggregator
	src  frames.Source
	log  *zap.Logger

	tasks []int
}

// NewWorkflowApp wires a workflow app from explicitly injected
// collaborators. logger may be nil.
func NewWorkflowApp(tree *workflow.Tree, geom *scan.Geometry, agg *results.Aggregator,
	src frames.Source, logger *zap.Logger) *WorkflowApp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowApp{tree: tree, geom: geom, agg: agg, src: src, log: logger}
}

// WorkflowConfig is the serializable form a worker rebuilds its private
// app from. Workers never receive a live tree or aggregator.
type WorkflowConfig struct {
	// WorkflowDOT is the DOT source of the workflow tree.
	WorkflowDOT string `yaml:"workflow_dot"`
}

// NewWorkflowWorker reconstructs a worker-side app from configuration: a
// fresh tree parsed through the registry, the shared read-only geometry
// and a newly built frame source. No aggregator is attached.
func NewWorkflowWorker(cfg WorkflowConfig, reg *plugin.Registry, geom *scan.Geometry,
	newSource func() (frames.Source, error), logger *zap.Logger) (*WorkflowApp, error) {
	tree, err := workflow.ParseDOT(cfg.WorkflowDOT, reg)
	if err != nil {
		return nil, err
	}
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	return NewWorkflowApp(tree, geom, nil, src, logger), nil
}

// PreRun validates the scan, resolves shapes through the tree, allocates
// result buffers (controller only) and establishes the task universe.
func (a *WorkflowApp) PreRun() error {
	if err := a.geom.Validate(); err != nil {
		return err
	}
	a.tree.SetInputShape(a.src.FrameShape())
	if err := a.tree.PropagateShapes(false); err != nil {
		return err
	}
	if a.agg != nil {
		if err := a.agg.UpdateShapes(a.geom, a.tree); err != nil {
			return err
		}
	}
	if err := a.tree.PrepareExecution(); err != nil {
		return err
	}
	n := a.geom.NumFrames()
	a.tasks = make([]int, n)
	for i := range a.tasks {
		a.tasks[i] = i
	}
	a.log.Info("workflow run prepared",
		zap.Int("frames", n),
		zap.Int("nodes", a.tree.NumNodes()),
		zap.Int("leaves", len(a.tree.Leaves())))
	return nil
}

// Tasks returns the stable, deterministic task sequence 0..N-1.
func (a *WorkflowApp) Tasks() ([]int, error) {
	if a.tasks == nil {
		return nil, core.Configf("task list not initialized; call PreRun first")
	}
	return a.tasks, nil
}

// PreCycle resolves the frame's backing file when the source supports it.
func (a *WorkflowApp) PreCycle(task int) error {
	if live, ok := a.src.(frames.LiveSource); ok {
		return live.Resolve(task)
	}
	return nil
}

// CarryOn reports frame readiness for live sources and true otherwise.
func (a *WorkflowApp) CarryOn() (bool, error) {
	if live, ok := a.src.(frames.LiveSource); ok {
		return live.Ready(), nil
	}
	return true, nil
}

// Func loads the frame and runs the full plugin chain, returning the leaf
// outputs.
func (a *WorkflowApp) Func(task int) (LeafResults, error) {
	data, err := a.src.Load(task)
	if err != nil {
		return nil, err
	}
	return a.tree.RunSingle(task, data, nil)
}

// StoreResults places the leaf outputs into the aggregator at the scan
// coordinate derived from the task. Only the controller instance may call
// this; it is serialized by the driver.
func (a *WorkflowApp) StoreResults(task int, res LeafResults) error {
	if a.agg == nil {
		return core.Configf("worker app has no result aggregator; results must be routed to the controller")
	}
	return a.agg.Store(task, res)
}

// PostRun logs completion. Skipped by drivers on cancellation.
func (a *WorkflowApp) PostRun() error {
	a.log.Info("workflow run finished", zap.Uint64("source_hash", a.SourceHash()))
	return nil
}

// SourceHash exposes the aggregator's staleness fingerprint, or 0 for
// worker copies.
func (a *WorkflowApp) SourceHash() uint64 {
	if a.agg == nil {
		return 0
	}
	return a.agg.SourceHash()
}

// Aggregator returns the result aggregator (controller instances only).
func (a *WorkflowApp) Aggregator() *results.Aggregator { return a.agg }
