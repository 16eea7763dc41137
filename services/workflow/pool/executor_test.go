// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutor_InvalidConcurrency(t *testing.T) {
	for _, k := range []int{0, -1} {
		_, err := NewExecutor[int](k)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "maxConcurrent", cfgErr.Field)
	}
}

func TestExecuteAll_Empty(t *testing.T) {
	exec, err := NewExecutor[int](3)
	require.NoError(t, err)

	results, err := exec.ExecuteAll(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestExecuteAll_NilContext(t *testing.T) {
	exec, _ := NewExecutor[int](1)

	//nolint:staticcheck // nil context is the case under test
	_, err := exec.ExecuteAll(nil, []Task[int]{func(context.Context) (int, error) { return 1, nil }})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestExecuteAll_NilTaskRejectedBeforeStart(t *testing.T) {
	exec, _ := NewExecutor[int](2)
	var ran atomic.Bool

	tasks := []Task[int]{
		func(context.Context) (int, error) { ran.Store(true); return 1, nil },
		nil,
	}

	_, err := exec.ExecuteAll(context.Background(), tasks)
	require.ErrorIs(t, err, ErrNilTask)
	assert.False(t, ran.Load(), "no task should start when input is invalid")
}

func TestExecuteAll_ResultsInInputOrder(t *testing.T) {
	// Delays in milliseconds; each row gives a different completion order.
	permutations := []struct {
		name   string
		delays []time.Duration
	}{
		{"reversed", []time.Duration{40, 30, 20, 10, 0}},
		{"in order", []time.Duration{0, 10, 20, 30, 40}},
		{"interleaved", []time.Duration{20, 0, 40, 10, 30}},
		{"middle last", []time.Duration{0, 10, 40, 10, 0}},
		{"all equal", []time.Duration{5, 5, 5, 5, 5}},
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 5 {
		delays := []time.Duration{0, 10, 20, 30, 40}
		rng.Shuffle(len(delays), func(a, b int) { delays[a], delays[b] = delays[b], delays[a] })
		permutations = append(permutations, struct {
			name   string
			delays []time.Duration
		}{fmt.Sprintf("shuffled %d", i), delays})
	}

	want := []int{0, 100, 200, 300, 400}
	for _, limit := range []int{1, 3, 5} {
		for _, tt := range permutations {
			t.Run(fmt.Sprintf("%s/limit=%d", tt.name, limit), func(t *testing.T) {
				exec, err := NewExecutor[int](limit)
				require.NoError(t, err)

				tasks := make([]Task[int], len(tt.delays))
				for i, d := range tt.delays {
					tasks[i] = func(context.Context) (int, error) {
						time.Sleep(d * time.Millisecond)
						return i * 100, nil
					}
				}

				results, err := exec.ExecuteAll(context.Background(), tasks)
				require.NoError(t, err)
				assert.Equal(t, want, results)
			})
		}
	}
}

func TestExecuteAll_RerunWithResolvedTasks(t *testing.T) {
	exec, err := NewExecutor[string](2)
	require.NoError(t, err)

	values := []string{"a", "b", "c", "d"}
	tasks := make([]Task[string], len(values))
	for i, v := range values {
		tasks[i] = func(context.Context) (string, error) { return v, nil }
	}

	first, err := exec.ExecuteAll(context.Background(), tasks)
	require.NoError(t, err)
	second, err := exec.ExecuteAll(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, values, first)
	assert.Equal(t, first, second)
}

func TestExecuteAll_NeverExceedsBound(t *testing.T) {
	const k = 3
	exec, _ := NewExecutor[struct{}](k)

	var current, peak atomic.Int64
	tasks := make([]Task[struct{}], 20)
	for i := range tasks {
		tasks[i] = func(context.Context) (struct{}, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return struct{}{}, nil
		}
	}

	_, err := exec.ExecuteAll(context.Background(), tasks)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(k))
	assert.Positive(t, peak.Load())
}

func TestExecuteAll_BoundLargerThanInput(t *testing.T) {
	exec, _ := NewExecutor[string](10)

	tasks := []Task[string]{
		func(context.Context) (string, error) { return "a", nil },
		func(context.Context) (string, error) { return "b", nil },
	}

	results, err := exec.ExecuteAll(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, results)
}

func TestExecuteAll_FailureStopsNewStarts(t *testing.T) {
	exec, _ := NewExecutor[int](1)
	boom := errors.New("boom")
	var thirdStarted atomic.Bool

	tasks := []Task[int]{
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 0, boom },
		func(context.Context) (int, error) { thirdStarted.Store(true); return 3, nil },
	}

	results, err := exec.ExecuteAll(context.Background(), tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, 1, taskErr.Index)

	assert.False(t, thirdStarted.Load(), "task after the failure must not start")
	assert.Equal(t, 1, results[0])
}

func TestExecuteAll_InFlightTasksFinishAfterFailure(t *testing.T) {
	exec, _ := NewExecutor[int](2)
	boom := errors.New("boom")
	var slowDone, laterStarted atomic.Bool

	tasks := []Task[int]{
		func(context.Context) (int, error) {
			time.Sleep(5 * time.Millisecond)
			return 0, boom
		},
		func(ctx context.Context) (int, error) {
			time.Sleep(50 * time.Millisecond)
			// Running tasks are not cancelled by a sibling failure.
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			slowDone.Store(true)
			return 2, nil
		},
		func(context.Context) (int, error) { laterStarted.Store(true); return 3, nil },
	}

	results, err := exec.ExecuteAll(context.Background(), tasks)
	require.ErrorIs(t, err, boom)
	assert.True(t, slowDone.Load(), "ExecuteAll returned before the in-flight task settled")
	assert.False(t, laterStarted.Load())
	assert.Equal(t, 2, results[1])
}

func TestExecuteAll_CancelledContextStartsNothing(t *testing.T) {
	exec, _ := NewExecutor[int](2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var started atomic.Int32
	tasks := []Task[int]{
		func(context.Context) (int, error) { started.Add(1); return 1, nil },
		func(context.Context) (int, error) { started.Add(1); return 2, nil },
	}

	_, err := exec.ExecuteAll(ctx, tasks)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, started.Load())
}

func TestExecuteAll_TimeoutAppliesPerTask(t *testing.T) {
	exec, _ := NewExecutor[int](1, WithTimeout(20*time.Millisecond))

	tasks := []Task[int]{
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}

	_, err := exec.ExecuteAll(context.Background(), tasks)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindow_StopPreventsStart(t *testing.T) {
	w, err := NewWindow(2, 0)
	require.NoError(t, err)

	w.Stop()
	ok := w.Go(context.Background(), func(context.Context) error {
		t.Error("stopped window must not run functions")
		return nil
	})
	assert.False(t, ok)
	assert.True(t, w.Stopped())
	assert.NoError(t, w.Wait())
}

func TestWindow_PeakAndLimit(t *testing.T) {
	w, err := NewWindow(2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Limit())

	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		require.True(t, w.Go(context.Background(), func(context.Context) error {
			<-release
			return nil
		}))
	}

	require.Eventually(t, func() bool { return w.InFlight() == 2 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, w.Wait())

	assert.Equal(t, 2, w.Peak())
	assert.Zero(t, w.InFlight())
}
