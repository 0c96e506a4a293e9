package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/avanrossum/diffract/pkg/app"
)

// countingApp is a minimal contract implementation whose behavior per phase
// is scripted by the test.
type countingApp struct {
	n        int
	carry    func(calls int) (bool, error)
	failOn   map[int]bool
	storeErr error

	carryCalls int
	preCycles  []int
	stored     map[int]int
	postRun    bool
}

func newCountingApp(n int) *countingApp {
	return &countingApp{n: n, stored: make(map[int]int)}
}

func (a *countingApp) PreRun() error { return nil }

func (a *countingApp) Tasks() ([]int, error) {
	tasks := make([]int, a.n)
	for i := range tasks {
		tasks[i] = i
	}
	return tasks, nil
}

func (a *countingApp) PreCycle(task int) error {
	a.preCycles = append(a.preCycles, task)
	return nil
}

func (a *countingApp) CarryOn() (bool, error) {
	a.carryCalls++
	if a.carry != nil {
		return a.carry(a.carryCalls)
	}
	return true, nil
}

func (a *countingApp) Func(task int) (int, error) {
	if a.failOn[task] {
		return 0, fmt.Errorf("scripted failure for task %d", task)
	}
	return task * 10, nil
}

func (a *countingApp) StoreResults(task, result int) error {
	if a.storeErr != nil {
		return a.storeErr
	}
	a.stored[task] = result
	return nil
}

func (a *countingApp) PostRun() error {
	a.postRun = true
	return nil
}

// ─── RunSerial ────────────────────────────────────────────────────────────────

func TestRunSerial_AllTasksComplete(t *testing.T) {
	a := newCountingApp(4)
	rep, err := app.RunSerial[int](context.Background(), a, app.Gate{})
	if err != nil {
		t.Fatalf("RunSerial: %v", err)
	}
	if rep.Total != 4 || rep.Completed != 4 || len(rep.Failures) != 0 {
		t.Errorf("report = %+v, want 4/4 completed", rep)
	}
	for task := 0; task < 4; task++ {
		if a.stored[task] != task*10 {
			t.Errorf("stored[%d] = %d, want %d", task, a.stored[task], task*10)
		}
	}
	if !a.postRun {
		t.Error("PostRun not called")
	}
	if len(a.preCycles) != 4 {
		t.Errorf("PreCycle calls = %d, want 4", len(a.preCycles))
	}
}

func TestRunSerial_TaskFailureIsNonFatal(t *testing.T) {
	a := newCountingApp(3)
	a.failOn = map[int]bool{1: true}
	rep, err := app.RunSerial[int](context.Background(), a, app.Gate{})
	if err != nil {
		t.Fatalf("RunSerial: %v", err)
	}
	if rep.Completed != 2 {
		t.Errorf("completed = %d, want 2", rep.Completed)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Task != 1 || rep.Failures[0].Abandoned {
		t.Errorf("failures = %+v, want one error failure for task 1", rep.Failures)
	}
	if !a.postRun {
		t.Error("PostRun must still run after non-fatal failures")
	}
}

func TestRunSerial_StoreErrorAborts(t *testing.T) {
	a := newCountingApp(3)
	a.storeErr = fmt.Errorf("buffer mismatch")
	if _, err := app.RunSerial[int](context.Background(), a, app.Gate{}); err == nil {
		t.Fatal("expected error when StoreResults fails")
	}
	if a.postRun {
		t.Error("PostRun must not run after a store failure")
	}
}

func TestRunSerial_CancelledSkipsPostRun(t *testing.T) {
	a := newCountingApp(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := app.RunSerial[int](ctx, a, app.Gate{})
	if err != nil {
		t.Fatalf("RunSerial: %v", err)
	}
	if !rep.Cancelled {
		t.Error("report not marked cancelled")
	}
	if a.postRun {
		t.Error("PostRun must be skipped on cancellation")
	}
}

func TestRunSerial_ClosedGateAbandonsTask(t *testing.T) {
	a := newCountingApp(2)
	a.carry = func(int) (bool, error) { return false, nil }
	rep, err := app.RunSerial[int](context.Background(), a, app.Gate{Timeout: 0})
	if err != nil {
		t.Fatalf("RunSerial: %v", err)
	}
	if rep.Completed != 0 || len(rep.Failures) != 2 {
		t.Fatalf("report = %+v, want 2 abandoned tasks", rep)
	}
	for _, f := range rep.Failures {
		if !f.Abandoned {
			t.Errorf("failure %+v not marked abandoned", f)
		}
	}
	if !a.postRun {
		t.Error("PostRun must run after abandoned tasks")
	}
}

// ─── Await ────────────────────────────────────────────────────────────────────

func TestAwait_OpensAfterPolling(t *testing.T) {
	a := newCountingApp(1)
	a.carry = func(calls int) (bool, error) { return calls >= 3, nil }
	gate := app.Gate{PollInterval: time.Millisecond, Timeout: time.Second}
	ok, err := app.Await[int](context.Background(), a, gate)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !ok {
		t.Error("gate never opened")
	}
	if a.carryCalls != 3 {
		t.Errorf("carry-on polled %d times, want 3", a.carryCalls)
	}
}

func TestAwait_ZeroTimeoutNeverBlocks(t *testing.T) {
	a := newCountingApp(1)
	a.carry = func(int) (bool, error) { return false, nil }
	ok, err := app.Await[int](context.Background(), a, app.Gate{Timeout: 0})
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if ok {
		t.Error("closed gate reported open")
	}
	if a.carryCalls != 1 {
		t.Errorf("carry-on polled %d times, want exactly 1", a.carryCalls)
	}
}

func TestAwait_CarryOnError(t *testing.T) {
	a := newCountingApp(1)
	a.carry = func(int) (bool, error) { return false, fmt.Errorf("detector offline") }
	if _, err := app.Await[int](context.Background(), a, app.DefaultGate()); err == nil {
		t.Error("expected carry-on error to propagate")
	}
}

func TestAwait_ContextCancellation(t *testing.T) {
	a := newCountingApp(1)
	a.carry = func(int) (bool, error) { return false, nil }
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	gate := app.Gate{PollInterval: time.Millisecond, Timeout: time.Minute}
	if _, err := app.Await[int](ctx, a, gate); err == nil {
		t.Error("expected context error")
	}
}

func TestFailure_String(t *testing.T) {
	f := app.Failure{Task: 3, Abandoned: true}
	if f.String() != "task 3 abandoned: carry-on gate timed out" {
		t.Errorf("String = %q", f.String())
	}
	f = app.Failure{Task: 5, Err: fmt.Errorf("boom")}
	if f.String() != "task 5 failed: boom" {
		t.Errorf("String = %q", f.String())
	}
}
