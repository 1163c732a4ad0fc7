// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/executor"
)

func TestExecutor_SubmitRunsAndReportsResult(t *testing.T) {
	var mu sync.Mutex
	var results []executor.Result
	e := executor.New(2, func(r executor.Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	})

	err := e.Submit(context.Background(), executor.Task{
		RunID: "run-1",
		Run: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, "run-1", results[0].RunID)
	require.NoError(t, results[0].Err)
}

func TestExecutor_CapacityBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})

	e := executor.New(1, func(executor.Result) {})
	task := func(runID string) executor.Task {
		return executor.Task{RunID: runID, Run: func(ctx context.Context) (map[string]any, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			<-release
			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil, nil
		}}
	}

	require.NoError(t, e.Submit(context.Background(), task("run-1")))
	require.NoError(t, e.Submit(context.Background(), task("run-2")))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, maxInFlight, "capacity 1 must serialize tasks")
	mu.Unlock()

	close(release)
	e.Drain()
}

func TestExecutor_CancelSignalsRunningTask(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	e := executor.New(1, func(executor.Result) {})

	require.NoError(t, e.Submit(context.Background(), executor.Task{
		RunID: "run-1",
		Run: func(ctx context.Context) (map[string]any, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		},
	}))

	<-started
	e.Cancel("run-1")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
	e.Drain()
}

func TestExecutor_DrainRejectsNewSubmissions(t *testing.T) {
	e := executor.New(1, func(executor.Result) {})
	e.Drain()

	err := e.Submit(context.Background(), executor.Task{RunID: "run-1", Run: func(ctx context.Context) (map[string]any, error) {
		return nil, nil
	}})
	require.Error(t, err)
}
