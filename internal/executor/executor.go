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

// Package executor is the in-process work pool a submitted run's handler
// actually executes on. It reports terminal status/result back to the
// Dispatcher through an OnComplete callback rather than a return value,
// since Submit may hand work off to a goroutine long before it finishes.
package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"
)

// Task is one unit of admitted work.
type Task struct {
	RunID string
	Run   func(ctx context.Context) (map[string]any, error)
}

// Result is what a Task produced, delivered to OnComplete.
type Result struct {
	RunID  string
	Output map[string]any
	Err    error
}

// Executor gates concurrent task execution with a weighted semaphore.
// Every task takes exactly one unit, so capacity bounds the number of
// tasks running at once.
type Executor struct {
	sem        *semaphore.Weighted
	onComplete func(Result)

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	draining bool
	wg       sync.WaitGroup
}

// New returns an Executor admitting up to capacity units of concurrent
// work. onComplete is invoked exactly once per submitted task, from the
// task's own goroutine.
func New(capacity int64, onComplete func(Result)) *Executor {
	return &Executor{
		sem:        semaphore.NewWeighted(capacity),
		onComplete: onComplete,
		active:     make(map[string]context.CancelFunc),
	}
}

// Submit admits task, blocking on queue admission until a slot frees or
// ctx is cancelled. Once admitted, task.Run executes on its own
// goroutine and is tracked under task.RunID until it completes, so
// Cancel(task.RunID) can reach it.
func (e *Executor) Submit(ctx context.Context, task Task) error {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return &kernelerrors.RuntimeUnavailableError{Reason: "executor is draining"}
	}
	e.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.active[task.RunID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.sem.Release(1)
		defer func() {
			e.mu.Lock()
			delete(e.active, task.RunID)
			e.mu.Unlock()
		}()

		out, err := task.Run(runCtx)
		if e.onComplete != nil {
			e.onComplete(Result{RunID: task.RunID, Output: out, Err: err})
		}
	}()
	return nil
}

// Cancel signals the cancellation token for a still-running task. It is a
// no-op if the task already completed or was never submitted; per the
// cancellation model, a running handler is not hard-killed — it must
// observe ctx.Done() itself.
func (e *Executor) Cancel(runID string) {
	e.mu.Lock()
	cancel, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// Snapshot returns the run_ids currently executing.
func (e *Executor) Snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	return out
}

// Drain stops admitting new tasks and blocks until every in-flight task
// finishes.
func (e *Executor) Drain() {
	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()
	e.wg.Wait()
}
