// Package pool drives the execution contract across a fixed-size set of
// workers, funneling every result through a single controller.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/avanrossum/diffract/pkg/app"
)

// Factory constructs an independent worker-side App from configuration.
// Workers are never handed the controller's live instance.
type Factory[R any] func() (app.App[R], error)

// Config sizes the pool and bounds the carry-on gate.
type Config struct {
	Workers int `envconfig:"WORKERS" default:"4"`
	Gate    app.Gate
}

// Runner executes one App contract across a pool of workers. Tasks are
// pulled from a shared queue and may complete out of order; the
// controller's StoreResults is the only serialization point.
type Runner[R any] struct {
	cfg        Config
	controller app.App[R]
	factory    Factory[R]
	log        *zap.Logger
}

// NewRunner wires a pool runner. logger may be nil.
func NewRunner[R any](controller app.App[R], factory Factory[R], cfg Config, logger *zap.Logger) *Runner[R] {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner[R]{cfg: cfg, controller: controller, factory: factory, log: logger}
}

// outcome is one worker's report for one task.
type outcome[R any] struct {
	task      int
	result    R
	err       error
	abandoned bool
}

// Run executes the full contract: controller PreRun and task generation,
// parallel per-task execution, serialized stores, then PostRun. On
// cancellation workers finish or abandon their current task and exit;
// already-stored results remain valid and PostRun is skipped.
func (r *Runner[R]) Run(parent context.Context) (app.Report, error) {
	rep := app.Report{RunID: xid.New().String()}
	log := r.log.With(zap.String("run_id", rep.RunID))

	if err := r.controller.PreRun(); err != nil {
		return rep, fmt.Errorf("controller pre-run: %w", err)
	}
	tasks, err := r.controller.Tasks()
	if err != nil {
		return rep, err
	}
	rep.Total = len(tasks)
	log.Info("pool run starting", zap.Int("tasks", len(tasks)), zap.Int("workers", r.cfg.Workers))

	// Each worker reconstructs its own app from configuration and runs its
	// own setup; no live state is shared with the controller.
	workers := make([]app.App[R], r.cfg.Workers)
	for i := range workers {
		wa, err := r.factory()
		if err != nil {
			return rep, fmt.Errorf("build worker %d: %w", i, err)
		}
		if err := wa.PreRun(); err != nil {
			return rep, fmt.Errorf("worker %d pre-run: %w", i, err)
		}
		workers[i] = wa
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	taskCh := make(chan int)
	outCh := make(chan outcome[R])

	var wg sync.WaitGroup
	for i, wa := range workers {
		wg.Add(1)
		go func(id int, wa app.App[R]) {
			defer wg.Done()
			for task := range taskCh {
				oc := r.runTask(ctx, wa, task)
				select {
				case outCh <- oc:
				case <-ctx.Done():
					return
				}
			}
		}(i, wa)
	}
	go func() {
		defer close(taskCh)
		for _, t := range tasks {
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(outCh)
	}()

	var storeErr error
	for oc := range outCh {
		switch {
		case oc.abandoned:
			rep.Failures = append(rep.Failures, app.Failure{Task: oc.task, Abandoned: true})
			log.Warn("task abandoned", zap.Int("task", oc.task))
		case oc.err != nil:
			rep.Failures = append(rep.Failures, app.Failure{Task: oc.task, Err: oc.err})
			log.Warn("task failed", zap.Int("task", oc.task), zap.Error(oc.err))
		case storeErr != nil:
			// A configuration error during store poisons the run; drain the
			// remaining outcomes without storing.
		default:
			if err := r.controller.StoreResults(oc.task, oc.result); err != nil {
				storeErr = err
				cancel()
				continue
			}
			rep.Completed++
		}
	}

	if storeErr != nil {
		return rep, fmt.Errorf("store results: %w", storeErr)
	}
	if parent.Err() != nil {
		rep.Cancelled = true
		log.Info("pool run cancelled",
			zap.Int("completed", rep.Completed), zap.Int("failed", len(rep.Failures)))
		return rep, nil
	}
	if err := r.controller.PostRun(); err != nil {
		return rep, fmt.Errorf("controller post-run: %w", err)
	}
	log.Info("pool run finished",
		zap.Int("completed", rep.Completed), zap.Int("failed", len(rep.Failures)))
	return rep, nil
}

// runTask executes the per-task sequence pre-cycle → gate → compute inside
// one worker. Failures are converted to structured outcomes and never
// escape the worker.
func (r *Runner[R]) runTask(ctx context.Context, wa app.App[R], task int) (oc outcome[R]) {
	oc.task = task
	defer func() {
		if p := recover(); p != nil {
			oc.err = fmt.Errorf("panic during task %d: %v", task, p)
		}
	}()
	if err := wa.PreCycle(task); err != nil {
		oc.err = err
		return oc
	}
	ok, err := app.Await(ctx, wa, r.cfg.Gate)
	if err != nil {
		oc.err = err
		return oc
	}
	if !ok {
		oc.abandoned = true
		return oc
	}
	result, err := wa.Func(task)
	if err != nil {
		oc.err = err
		return oc
	}
	oc.result = result
	return oc
}
