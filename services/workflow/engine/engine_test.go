// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var spanRecorder = tracetest.NewSpanRecorder()

func TestMain(m *testing.M) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	otel.SetTracerProvider(tp)
	code := m.Run()
	_ = tp.Shutdown(context.Background())
	os.Exit(code)
}

// runLog records the order in which tasks run.
type runLog struct {
	mu  sync.Mutex
	ran []string
}

func (tr *runLog) add(name string) {
	tr.mu.Lock()
	tr.ran = append(tr.ran, name)
	tr.mu.Unlock()
}

func (tr *runLog) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ran...)
}

func (tr *runLog) ok(name string) TaskFunc {
	return func(_ context.Context, _ *Context, _ Helpers) (any, error) {
		tr.add(name)
		return name, nil
	}
}

func (tr *runLog) fail(name string, err error) TaskFunc {
	return func(_ context.Context, _ *Context, _ Helpers) (any, error) {
		tr.add(name)
		return nil, err
	}
}

func mustEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNew_Defaults(t *testing.T) {
	e := mustEngine(t)

	if e.Concurrent() {
		t.Error("default should be sequential")
	}
	if !e.ExitOnError() {
		t.Error("default should exit on error")
	}
	if e.MaxConcurrent() != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent() = %d, want %d", e.MaxConcurrent(), DefaultMaxConcurrent)
	}
}

func TestNew_InvalidMaxConcurrent(t *testing.T) {
	for _, n := range []int{0, -3} {
		_, err := New(WithMaxConcurrent(n))
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("New(WithMaxConcurrent(%d)) error = %v, want *ConfigurationError", n, err)
		}
		if !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("error should wrap ErrInvalidConcurrency, got %v", err)
		}
	}
}

func TestExecute_NilContext(t *testing.T) {
	e := mustEngine(t)
	//nolint:staticcheck // nil context is the case under test
	_, err := e.Execute(nil, nil, nil)
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("error = %v, want ErrNilContext", err)
	}
}

func TestExecute_EmptyBatch(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		e := mustEngine(t, WithConcurrent(concurrent))
		wc := NewContextFrom(map[string]any{"k": 1})

		got, err := e.Execute(context.Background(), nil, wc)
		if err != nil {
			t.Fatalf("concurrent=%v: error = %v", concurrent, err)
		}
		if got != wc {
			t.Error("Execute should return the supplied context")
		}
	}
}

func TestExecute_NilContextStartsEmpty(t *testing.T) {
	e := mustEngine(t)

	wc, err := e.Execute(context.Background(), []Step{
		Leaf("write", func(_ context.Context, wc *Context, _ Helpers) (any, error) {
			wc.Set("written", true)
			return nil, nil
		}),
	}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if v, _ := Value[bool](wc, "written"); !v {
		t.Error("task write should be visible in returned context")
	}
}

// =============================================================================
// Sequential mode
// =============================================================================

func TestSequential_RunsInDeclarationOrder(t *testing.T) {
	tr := &runLog{}
	e := mustEngine(t)

	_, err := e.Execute(context.Background(), []Step{
		Leaf("A", tr.ok("A")),
		Leaf("B", tr.ok("B")),
		Leaf("C", tr.ok("C")),
	}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got, want := tr.list(), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
}

func TestSequential_SkipKeepsOrderOfRemaining(t *testing.T) {
	never := func(*Context) bool { return false }
	always := func(*Context) bool { return true }

	for _, skipB := range []SkipFunc{never, always} {
		tr := &runLog{}
		e := mustEngine(t)

		report, err := e.Run(context.Background(), []Step{
			Leaf("A", tr.ok("A")),
			Leaf("B", tr.ok("B"), WithSkip(skipB)),
			Leaf("C", tr.ok("C")),
		}, nil)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		got := tr.list()
		var want []string
		if skipB(nil) {
			want = []string{"A", "C"}
			if report.Outcomes[1].Status != StatusSkipped {
				t.Errorf("B status = %s, want skipped", report.Outcomes[1].Status)
			}
		} else {
			want = []string{"A", "B", "C"}
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ran %v, want %v", got, want)
		}
	}
}

func TestSequential_ExitOnErrorStopsAtFailure(t *testing.T) {
	tr := &runLog{}
	boom := errors.New("boom")
	e := mustEngine(t, WithExitOnError(true))

	report, err := e.Run(context.Background(), []Step{
		Leaf("A", tr.ok("A")),
		Leaf("B", tr.fail("B", boom)),
		Leaf("C", tr.ok("C")),
	}, nil)

	var sf *StepFailure
	if !errors.As(err, &sf) {
		t.Fatalf("error = %v (%T), want *StepFailure", err, err)
	}
	if sf.Title != "B" {
		t.Errorf("StepFailure.Title = %q, want B", sf.Title)
	}
	if !errors.Is(err, boom) {
		t.Error("StepFailure should wrap the task error")
	}
	if got, want := tr.list(), []string{"A", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v; C must never run", got, want)
	}
	if report.Outcomes[2].Status != StatusPending {
		t.Errorf("C status = %s, want pending", report.Outcomes[2].Status)
	}
}

func TestSequential_CollectAllRunsEverything(t *testing.T) {
	tr := &runLog{}
	boom := errors.New("boom")
	e := mustEngine(t, WithExitOnError(false))

	_, err := e.Execute(context.Background(), []Step{
		Leaf("A", tr.ok("A")),
		Leaf("B", tr.fail("B", boom)),
		Leaf("C", tr.ok("C")),
	}, nil)

	var agg *AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v (%T), want *AggregateFailure", err, err)
	}
	if len(agg.Failures) != 1 || agg.Failures[0].Title != "B" {
		t.Errorf("Failures = %v, want exactly one for B", agg.FailedIDs())
	}
	if !errors.Is(err, boom) {
		t.Error("AggregateFailure should unwrap to the task error")
	}
	if got, want := tr.list(), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
}

func TestSequential_CollectAllFailuresInDeclarationOrder(t *testing.T) {
	tr := &runLog{}
	e := mustEngine(t, WithExitOnError(false))

	_, err := e.Execute(context.Background(), []Step{
		Leaf("first", tr.fail("first", errors.New("e1")), WithID("first")),
		Leaf("ok", tr.ok("ok")),
		Leaf("second", tr.fail("second", errors.New("e2")), WithID("second")),
	}, nil)

	var agg *AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v, want *AggregateFailure", err)
	}
	if got, want := agg.FailedIDs(), []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FailedIDs() = %v, want %v", got, want)
	}
}

func TestSequential_NoopStepSucceeds(t *testing.T) {
	e := mustEngine(t)

	report, err := e.Run(context.Background(), []Step{{Title: "nothing"}}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Outcomes[0].Status != StatusSucceeded {
		t.Errorf("status = %s, want succeeded", report.Outcomes[0].Status)
	}
}

func TestSequential_PanicBecomesStepFailure(t *testing.T) {
	e := mustEngine(t)

	_, err := e.Execute(context.Background(), []Step{
		Leaf("panics", func(context.Context, *Context, Helpers) (any, error) {
			panic("kaboom")
		}),
	}, nil)

	var sf *StepFailure
	if !errors.As(err, &sf) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if !errors.Is(err, ErrStepPanicked) {
		t.Errorf("error should wrap ErrStepPanicked, got %v", err)
	}
}

func TestSkipPanicBecomesStepFailure(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		name := "sequential"
		if concurrent {
			name = "concurrent"
		}
		t.Run(name, func(t *testing.T) {
			var tr runLog
			e := mustEngine(t, WithConcurrent(concurrent), WithExitOnError(false))

			report, err := e.Run(context.Background(), []Step{
				Leaf("bad skip", tr.ok("bad skip"), WithID("a"),
					WithSkip(func(*Context) bool { panic("skip boom") })),
				Leaf("after", tr.ok("after"), WithID("b")),
			}, nil)

			if !errors.Is(err, ErrStepPanicked) {
				t.Fatalf("error = %v, want ErrStepPanicked", err)
			}
			var agg *AggregateFailure
			if !errors.As(err, &agg) || !reflect.DeepEqual(agg.FailedIDs(), []string{"a"}) {
				t.Errorf("error = %v, want one failure for a", err)
			}
			if got := tr.list(); !reflect.DeepEqual(got, []string{"after"}) {
				t.Errorf("ran = %v, want [after]", got)
			}
			if o, _ := report.Find("a"); o.Status != StatusFailed {
				t.Errorf("status of a = %s, want failed", o.Status)
			}
		})
	}
}

func TestSequential_StepTimeout(t *testing.T) {
	e := mustEngine(t, WithStepTimeout(10*time.Millisecond))

	_, err := e.Execute(context.Background(), []Step{
		Leaf("slow", func(ctx context.Context, _ *Context, _ Helpers) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestSequential_CancelledContextInterrupts(t *testing.T) {
	tr := &runLog{}
	e := mustEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := e.Execute(ctx, []Step{
		Leaf("A", func(context.Context, *Context, Helpers) (any, error) {
			tr.add("A")
			cancel()
			return nil, nil
		}),
		Leaf("B", tr.ok("B")),
	}, nil)

	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want ErrInterrupted wrapping context.Canceled", err)
	}
	if got := tr.list(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("ran %v, want [A]", got)
	}
}

// =============================================================================
// Groups
// =============================================================================

func TestGroup_SubtasksShareContextInOrder(t *testing.T) {
	e := mustEngine(t)
	appendTo := func(v string) TaskFunc {
		return func(_ context.Context, wc *Context, _ Helpers) (any, error) {
			wc.Update("seq", func(old any, ok bool) any {
				if !ok {
					return v
				}
				return old.(string) + v
			})
			return nil, nil
		}
	}

	report, err := e.Run(context.Background(), []Step{
		Leaf("a", appendTo("a")),
		Group("g", []Step{
			Leaf("b", appendTo("b")),
			Group("inner", []Step{Leaf("c", appendTo("c"))}),
		}),
		Leaf("d", appendTo("d")),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got, _ := Value[string](report.Context, "seq"); got != "abcd" {
		t.Errorf("seq = %q, want abcd", got)
	}

	g := report.Outcomes[1]
	if len(g.Children) != 2 || g.Children[1].Children[0].Step.PathString() != "1.1.0" {
		t.Errorf("unexpected group outcome tree: %+v", g)
	}
}

func TestGroup_FailsWhenChildFails(t *testing.T) {
	tr := &runLog{}
	boom := errors.New("child failed")
	e := mustEngine(t)

	report, err := e.Run(context.Background(), []Step{
		Group("g", []Step{
			Leaf("c1", tr.fail("c1", boom), WithID("c1")),
			Leaf("c2", tr.ok("c2")),
		}, WithID("g")),
		Leaf("after", tr.ok("after")),
	}, nil)

	var sf *StepFailure
	if !errors.As(err, &sf) || sf.StepID != "g" {
		t.Fatalf("error = %v, want StepFailure for group g", err)
	}
	if !errors.Is(err, boom) {
		t.Error("group failure should wrap the child error")
	}
	if got := tr.list(); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Errorf("ran %v, want [c1]", got)
	}
	if o, _ := report.Find("c1"); o.Status != StatusFailed {
		t.Errorf("c1 status = %s, want failed", o.Status)
	}
}

func TestGroup_SkipSkipsSubtasks(t *testing.T) {
	tr := &runLog{}
	e := mustEngine(t)

	report, err := e.Run(context.Background(), []Step{
		Group("g", []Step{Leaf("c", tr.ok("c"))}, WithSkip(func(*Context) bool { return true })),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tr.list()) != 0 {
		t.Errorf("subtasks of a skipped group ran: %v", tr.list())
	}
	if report.Outcomes[0].Status != StatusSkipped {
		t.Errorf("group status = %s, want skipped", report.Outcomes[0].Status)
	}
}

// =============================================================================
// Concurrent mode
// =============================================================================

func TestConcurrent_FailedDependencyBlocksDependent(t *testing.T) {
	var yRan atomic.Bool
	e := mustEngine(t, WithConcurrent(true), WithExitOnError(false))

	report, err := e.Run(context.Background(), []Step{
		Leaf("x", func(context.Context, *Context, Helpers) (any, error) {
			return nil, errors.New("x failed")
		}, WithID("x")),
		Leaf("y", func(context.Context, *Context, Helpers) (any, error) {
			yRan.Store(true)
			return nil, nil
		}, WithID("y"), WithDependencies("x")),
	}, nil)

	if yRan.Load() {
		t.Error("y must never be invoked")
	}

	y, _ := report.Find("y")
	if y.Status != StatusBlocked {
		t.Errorf("y status = %s, want blocked", y.Status)
	}
	if !reflect.DeepEqual(y.BlockedBy, []string{"x"}) {
		t.Errorf("y BlockedBy = %v, want [x]", y.BlockedBy)
	}

	var agg *AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v, want *AggregateFailure", err)
	}
	if len(agg.Failures) != 1 || agg.Failures[0].StepID != "x" {
		t.Errorf("Failures = %v, want [x]", agg.FailedIDs())
	}
	if len(agg.Blocked) != 1 || agg.Blocked[0].StepID != "y" {
		t.Errorf("Blocked = %+v, want [y]", agg.Blocked)
	}
}

func TestConcurrent_BlockingIsTransitive(t *testing.T) {
	e := mustEngine(t, WithConcurrent(true), WithExitOnError(false))
	tr := &runLog{}

	report, _ := e.Run(context.Background(), []Step{
		// Declared out of dependency order on purpose.
		Leaf("c", tr.ok("c"), WithID("c"), WithDependencies("b")),
		Leaf("b", tr.ok("b"), WithID("b"), WithDependencies("a")),
		Leaf("a", tr.fail("a", errors.New("a failed")), WithID("a")),
		Leaf("free", tr.ok("free"), WithID("free")),
	}, nil)

	for _, id := range []string{"b", "c"} {
		o, _ := report.Find(id)
		if o.Status != StatusBlocked {
			t.Errorf("%s status = %s, want blocked", id, o.Status)
		}
		if !reflect.DeepEqual(o.BlockedBy, []string{"a"}) {
			t.Errorf("%s BlockedBy = %v, want [a]", id, o.BlockedBy)
		}
	}
	if o, _ := report.Find("free"); o.Status != StatusSucceeded {
		t.Errorf("independent step status = %s, want succeeded", o.Status)
	}
}

func TestConcurrent_DependenciesFinishBeforeDependents(t *testing.T) {
	var mu sync.Mutex
	finished := make(map[string]bool)
	violations := make([]string, 0)

	task := func(id string, deps ...string) Step {
		return Leaf(id, func(context.Context, *Context, Helpers) (any, error) {
			mu.Lock()
			for _, d := range deps {
				if !finished[d] {
					violations = append(violations, id+" started before "+d)
				}
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			finished[id] = true
			mu.Unlock()
			return nil, nil
		}, WithID(id), WithDependencies(deps...))
	}

	// Diamond plus a tail, declared in reverse.
	steps := []Step{
		task("tail", "join"),
		task("join", "left", "right"),
		task("right", "root"),
		task("left", "root"),
		task("root"),
	}

	e := mustEngine(t, WithConcurrent(true), WithMaxConcurrent(4))
	if _, err := e.Execute(context.Background(), steps, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(violations) > 0 {
		t.Errorf("dependency order violated: %v", violations)
	}
	if len(finished) != 5 {
		t.Errorf("finished %d steps, want 5", len(finished))
	}
}

func TestConcurrent_RespectsMaxConcurrent(t *testing.T) {
	const limit = 2
	var current, peak atomic.Int64

	steps := make([]Step, 8)
	for i := range steps {
		steps[i] = Leaf("s", func(context.Context, *Context, Helpers) (any, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return nil, nil
		})
	}

	e := mustEngine(t, WithConcurrent(true), WithMaxConcurrent(limit))
	if _, err := e.Execute(context.Background(), steps, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if peak.Load() > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), limit)
	}
}

func TestConcurrent_SkippedDependencySatisfies(t *testing.T) {
	tr := &runLog{}
	e := mustEngine(t, WithConcurrent(true))

	report, err := e.Run(context.Background(), []Step{
		Leaf("a", tr.ok("a"), WithID("a"), WithSkip(func(*Context) bool { return true })),
		Leaf("b", tr.ok("b"), WithID("b"), WithDependencies("a")),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := tr.list(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("ran %v, want [b]", got)
	}
	if report.Count(StatusSkipped) != 1 || report.Count(StatusSucceeded) != 1 {
		t.Errorf("unexpected outcomes: %v", report.Outcomes)
	}
}

func TestConcurrent_ExitOnErrorDrainsAndStops(t *testing.T) {
	var slowDone, laterRan, dependentRan atomic.Bool
	e := mustEngine(t, WithConcurrent(true), WithMaxConcurrent(2), WithExitOnError(true))

	report, err := e.Run(context.Background(), []Step{
		Leaf("fails", func(context.Context, *Context, Helpers) (any, error) {
			time.Sleep(2 * time.Millisecond)
			return nil, errors.New("fast failure")
		}, WithID("fails")),
		Leaf("slow", func(context.Context, *Context, Helpers) (any, error) {
			time.Sleep(50 * time.Millisecond)
			slowDone.Store(true)
			return nil, nil
		}, WithID("slow")),
		Leaf("later", func(context.Context, *Context, Helpers) (any, error) {
			laterRan.Store(true)
			return nil, nil
		}, WithID("later")),
		Leaf("dependent", func(context.Context, *Context, Helpers) (any, error) {
			dependentRan.Store(true)
			return nil, nil
		}, WithID("dependent"), WithDependencies("fails")),
	}, nil)

	if !slowDone.Load() {
		t.Error("in-flight step should drain before Run returns")
	}
	if laterRan.Load() || dependentRan.Load() {
		t.Error("no step may start after the first failure")
	}

	var agg *AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v (%T), want *AggregateFailure", err, err)
	}
	if len(agg.Failures) != 1 || agg.Failures[0].StepID != "fails" {
		t.Errorf("Failures = %v, want [fails]", agg.FailedIDs())
	}
	if len(agg.Blocked) != 1 || agg.Blocked[0].StepID != "dependent" {
		t.Errorf("Blocked = %+v, want [dependent]", agg.Blocked)
	}
	if !reflect.DeepEqual(agg.NotStarted, []string{"later"}) {
		t.Errorf("NotStarted = %v, want [later]", agg.NotStarted)
	}
	if o, _ := report.Find("slow"); o.Status != StatusSucceeded {
		t.Errorf("slow status = %s, want succeeded", o.Status)
	}
	if o, _ := report.Find("later"); o.Status != StatusPending {
		t.Errorf("later status = %s, want pending", o.Status)
	}
}

func TestConcurrent_CollectAllFailuresInDeclarationOrder(t *testing.T) {
	e := mustEngine(t, WithConcurrent(true), WithExitOnError(false))

	_, err := e.Execute(context.Background(), []Step{
		Leaf("slow-fail", func(context.Context, *Context, Helpers) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return nil, errors.New("late")
		}, WithID("slow-fail")),
		Leaf("fast-fail", func(context.Context, *Context, Helpers) (any, error) {
			return nil, errors.New("early")
		}, WithID("fast-fail")),
	}, nil)

	var agg *AggregateFailure
	if !errors.As(err, &agg) {
		t.Fatalf("error = %v, want *AggregateFailure", err)
	}
	if got, want := agg.FailedIDs(), []string{"slow-fail", "fast-fail"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FailedIDs() = %v, want %v", got, want)
	}
}

func TestConcurrent_GroupSubtasksStaySequential(t *testing.T) {
	var running, overlap atomic.Int32
	sub := func(context.Context, *Context, Helpers) (any, error) {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	e := mustEngine(t, WithConcurrent(true), WithMaxConcurrent(4))
	_, err := e.Execute(context.Background(), []Step{
		Group("g", []Step{Leaf("1", sub), Leaf("2", sub), Leaf("3", sub)}),
	}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if overlap.Load() != 0 {
		t.Error("subtasks of one group ran concurrently")
	}
}

// =============================================================================
// Reporting and tracing
// =============================================================================

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished map[string]Status
	titles   []string
	statuses []string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{finished: make(map[string]Status)}
}

func (r *recordingReporter) StepStarted(ref StepRef) Helpers {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ref.Name())
	return &recordingHelpers{r: r}
}

func (r *recordingReporter) StepFinished(ref StepRef, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[ref.Name()] = o.Status
}

type recordingHelpers struct{ r *recordingReporter }

func (h *recordingHelpers) SetTitle(title string) {
	h.r.mu.Lock()
	h.r.titles = append(h.r.titles, title)
	h.r.mu.Unlock()
}

func (h *recordingHelpers) Status(msg string) {
	h.r.mu.Lock()
	h.r.statuses = append(h.r.statuses, msg)
	h.r.mu.Unlock()
}

func TestReporter_ReceivesLifecycleAndHelpers(t *testing.T) {
	rep := newRecordingReporter()
	e := mustEngine(t, WithReporter(rep))

	_, err := e.Execute(context.Background(), []Step{
		Leaf("work", func(_ context.Context, _ *Context, h Helpers) (any, error) {
			h.SetTitle("working hard")
			h.Status("halfway")
			return nil, nil
		}, WithID("work")),
		Leaf("skip", nil, WithID("skip"), WithSkip(func(*Context) bool { return true })),
	}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !reflect.DeepEqual(rep.started, []string{"work"}) {
		t.Errorf("started = %v, want [work]", rep.started)
	}
	if rep.finished["work"] != StatusSucceeded || rep.finished["skip"] != StatusSkipped {
		t.Errorf("finished = %v", rep.finished)
	}
	if !reflect.DeepEqual(rep.titles, []string{"working hard"}) || !reflect.DeepEqual(rep.statuses, []string{"halfway"}) {
		t.Errorf("helpers not forwarded: titles=%v statuses=%v", rep.titles, rep.statuses)
	}
}

func TestRun_EmitsSpans(t *testing.T) {
	e := mustEngine(t)

	report, err := e.Run(context.Background(), []Step{
		Leaf("one", func(context.Context, *Context, Helpers) (any, error) { return 1, nil }, WithID("one")),
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var runSpan, stepSpan bool
	for _, s := range spanRecorder.Ended() {
		var matchesRun bool
		for _, kv := range s.Attributes() {
			if kv.Key == "workflow.run_id" && kv.Value.AsString() == report.RunID {
				matchesRun = true
			}
		}
		if !matchesRun {
			continue
		}
		switch s.Name() {
		case "workflow.Run":
			runSpan = true
		case "workflow.Step":
			stepSpan = true
		}
	}

	if !runSpan || !stepSpan {
		t.Errorf("missing spans for run %s: run=%v step=%v", report.RunID, runSpan, stepSpan)
	}
	if o, _ := report.Find("one"); o.Value != 1 {
		t.Errorf("step value = %v, want 1", o.Value)
	}
}
