// Package app defines the execution contract a driver (serial loop or
// worker pool) runs once per task, and the reference apps implementing it.
package app

import (
	"context"
	"fmt"
	"time"
)

// App is the per-task state machine. A driver calls PreRun once, pulls the
// task universe from Tasks, then for each dispatched task runs PreCycle,
// the CarryOn gate and Func in that order inside one worker. Results are
// reported back to a single controller which serializes StoreResults.
// PostRun runs once after every task has been reported or abandoned; it is
// deliberately skipped when the run is cancelled.
//
// Func must be safe to execute in any worker holding an independently
// constructed copy of the App, and must not rely on the PreRun side
// effects of other tasks.
type App[R any] interface {
	PreRun() error
	Tasks() ([]int, error)
	PreCycle(task int) error
	CarryOn() (bool, error)
	Func(task int) (R, error)
	StoreResults(task int, result R) error
	PostRun() error
}

// Gate bounds the CarryOn polling loop. A task whose gate never opens
// within Timeout is abandoned and reported as a non-fatal failure.
type Gate struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultGate polls every 100ms for up to 10s.
func DefaultGate() Gate {
	return Gate{PollInterval: 100 * time.Millisecond, Timeout: 10 * time.Second}
}

// Await runs an App's CarryOn gate until it opens, the timeout expires or
// the context is cancelled. It returns false (with nil error) when the
// task must be abandoned.
func Await[R any](ctx context.Context, a App[R], g Gate) (bool, error) {
	poll := g.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(g.Timeout)
	for {
		ok, err := a.CarryOn()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if g.Timeout <= 0 || !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Failure describes one task that did not produce a result. Abandoned
// failures are carry-on gate timeouts; the rest are execution errors.
type Failure struct {
	Task      int
	Err       error
	Abandoned bool
}

func (f Failure) String() string {
	if f.Abandoned {
		return fmt.Sprintf("task %d abandoned: carry-on gate timed out", f.Task)
	}
	return fmt.Sprintf("task %d failed: %v", f.Task, f.Err)
}

// Report summarizes a run. A run with failures is still "completed with N
// failed tasks" unless the host cancelled it.
type Report struct {
	RunID     string
	Total     int
	Completed int
	Failures  []Failure
	Cancelled bool
}

// RunSerial drives an App through the full contract without worker
// processes: setup, gate, compute and report for every task in order.
// Cancellation stops before the next task and skips PostRun.
func RunSerial[R any](ctx context.Context, a App[R], gate Gate) (Report, error) {
	var rep Report
	if err := a.PreRun(); err != nil {
		return rep, fmt.Errorf("pre-run: %w", err)
	}
	tasks, err := a.Tasks()
	if err != nil {
		return rep, err
	}
	rep.Total = len(tasks)

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			rep.Cancelled = true
			return rep, nil
		default:
		}
		if err := a.PreCycle(task); err != nil {
			rep.Failures = append(rep.Failures, Failure{Task: task, Err: err})
			continue
		}
		ok, err := Await(ctx, a, gate)
		if err != nil {
			if ctx.Err() != nil {
				rep.Cancelled = true
				return rep, nil
			}
			rep.Failures = append(rep.Failures, Failure{Task: task, Err: err})
			continue
		}
		if !ok {
			rep.Failures = append(rep.Failures, Failure{Task: task, Abandoned: true})
			continue
		}
		result, err := a.Func(task)
		if err != nil {
			rep.Failures = append(rep.Failures, Failure{Task: task, Err: err})
			continue
		}
		if err := a.StoreResults(task, result); err != nil {
			return rep, fmt.Errorf("store results for task %d: %w", task, err)
		}
		rep.Completed++
	}

	if err := a.PostRun(); err != nil {
		return rep, fmt.Errorf("post-run: %w", err)
	}
	return rep, nil
}
