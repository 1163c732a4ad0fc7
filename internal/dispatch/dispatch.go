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

// Package dispatch translates WorkSpec submissions into durable runs and
// events, enforces idempotency, links retries, and hands admitted work to
// the Executor.
package dispatch

import (
	"context"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/executor"
	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/registry"
	"github.com/conveyorhq/conveyor/internal/runs"
	"github.com/conveyorhq/conveyor/internal/store"
)

// WorkSpec describes one unit of work to submit.
type WorkSpec struct {
	Kind              string
	Name              string
	Params            map[string]any
	Lane              string
	Priority          string
	IdempotencyKey    string
	ParentRunID       string
	CorrelationID     string
	BatchID           string
	MaxRetries        int
	RetryDelaySeconds int
	Metadata          map[string]any

	// RetryOfRunID, when set, links the created run to the run it
	// replaces. DLQ replay sets this to the dead-lettered run's
	// origin_run_id; Submit's own terminal-retry path (idempotency key
	// found in a failed/cancelled state) sets it from the existing run
	// it supersedes instead.
	RetryOfRunID string
	// Attempt overrides the new run's 1-based attempt counter when
	// RetryOfRunID is set. Zero means "attempt 1" (no prior attempt to
	// count from).
	Attempt int

	// Force bypasses the idempotency-key lookup (submit algorithm step 1)
	// and always creates a new run; it does not bypass the DLQ
	// retry-count gate applied once the run eventually fails.
	Force bool

	// SkipIfTerminal controls behavior when a prior run with the same
	// idempotency_key exists in a terminal failed/cancelled state: true
	// returns the existing run, false (default) creates a retry-linked run.
	SkipIfTerminal bool
}

// alreadyRunningStatuses are statuses for which a duplicate submit with
// the same idempotency_key returns the existing run outright.
var alreadyRunningStatuses = map[string]bool{
	store.RunPending:   true,
	store.RunQueued:    true,
	store.RunRunning:   true,
	store.RunCompleted: true,
}

// Dispatcher implements submit/get/list/update_status/cancel/retry/get_children.
type Dispatcher struct {
	runs     *runs.Repository
	ledger   *ledger.Ledger
	exec     *executor.Executor
	registry *registry.Registry
	clock    clock.Source
}

// New returns a Dispatcher with its own Executor of the given capacity,
// wired so handler completions feed back into run status/ledger updates.
func New(r *runs.Repository, l *ledger.Ledger, reg *registry.Registry, c clock.Source, execCapacity int64) *Dispatcher {
	d := &Dispatcher{runs: r, ledger: l, registry: reg, clock: c}
	d.exec = executor.New(execCapacity, d.handleCompletion)
	return d
}

// Drain stops the underlying executor from admitting new work and waits
// for in-flight runs to finish. Call before process shutdown.
func (d *Dispatcher) Drain() {
	d.exec.Drain()
}

// handleCompletion is the Executor's onComplete callback: it transitions
// the run to its terminal status and appends the matching ledger event.
// Run context.Background() here deliberately — a run's own ctx may already
// be cancelled by the time its handler returns, but the bookkeeping write
// must still land.
func (d *Dispatcher) handleCompletion(res executor.Result) {
	ctx := context.Background()
	run, err := d.runs.Get(ctx, res.RunID)
	if err != nil {
		return
	}
	if run.Status != store.RunQueued && run.Status != store.RunRunning {
		return
	}
	if run.Status == store.RunQueued {
		started := d.clock.Now()
		run.StartedAt = &started
		_ = d.runs.UpdateStatus(ctx, run, store.RunRunning)
		_, _ = d.ledger.Append(ctx, res.RunID, ledger.EventStarted, nil)
	}

	now := d.clock.Now()
	run.FinishedAt = &now
	if res.Err != nil {
		run.Error = res.Err.Error()
		_ = d.runs.UpdateStatus(ctx, run, store.RunFailed)
		_, _ = d.ledger.Append(ctx, res.RunID, ledger.EventFailed, map[string]any{"error": res.Err.Error()})
		return
	}
	run.Result = res.Output
	_ = d.runs.UpdateStatus(ctx, run, store.RunCompleted)
	_, _ = d.ledger.Append(ctx, res.RunID, ledger.EventCompleted, nil)
}

// Submit runs the submit algorithm and returns the resulting run_id. It
// does not wait for the run to finish; completion is observed through
// the ledger or a subsequent Get/List.
func (d *Dispatcher) Submit(ctx context.Context, spec WorkSpec) (string, error) {
	if !spec.Force && spec.IdempotencyKey != "" {
		existing, err := d.runs.FindByIdempotencyKey(ctx, spec.Kind, spec.Name, spec.IdempotencyKey)
		if err != nil {
			var notFound *kernelerrors.NotFoundError
			if !kernelerrors.As(err, &notFound) {
				return "", err
			}
		}
		if existing != nil {
			if alreadyRunningStatuses[existing.Status] {
				return existing.RunID, nil
			}
			if spec.SkipIfTerminal {
				return existing.RunID, nil
			}
			return d.createRun(ctx, spec, existing.RunID, existing.Attempt+1)
		}
	}
	attempt := spec.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	return d.createRun(ctx, spec, spec.RetryOfRunID, attempt)
}

func (d *Dispatcher) createRun(ctx context.Context, spec WorkSpec, retryOfRunID string, attempt int) (string, error) {
	lane := spec.Lane
	if lane == "" {
		lane = "default"
	}
	priority := spec.Priority
	if priority == "" {
		priority = "normal"
	}

	run := &store.Run{
		RunID:          d.clock.NewRunID(),
		Kind:           spec.Kind,
		Name:           spec.Name,
		Params:         spec.Params,
		Status:         store.RunPending,
		Lane:           lane,
		Priority:       priority,
		ParentRunID:    spec.ParentRunID,
		CorrelationID:  spec.CorrelationID,
		BatchID:        spec.BatchID,
		IdempotencyKey: spec.IdempotencyKey,
		RetryOfRunID:   retryOfRunID,
		Attempt:        attempt,
		CreatedAt:      d.clock.Now(),
	}
	if err := d.runs.Create(ctx, run); err != nil {
		return "", err
	}
	if _, err := d.ledger.Append(ctx, run.RunID, ledger.EventCreated, map[string]any{"kind": run.Kind, "name": run.Name, "attempt": run.Attempt}); err != nil {
		return "", err
	}

	if err := d.runs.UpdateStatus(ctx, run, store.RunQueued); err != nil {
		return "", err
	}
	if _, err := d.ledger.Append(ctx, run.RunID, ledger.EventQueued, nil); err != nil {
		return "", err
	}

	if d.exec != nil && d.registry != nil {
		handler, _, ok := d.registry.Lookup(run.Kind, run.Name)
		if ok {
			task := executor.Task{
				RunID: run.RunID,
				Run: func(taskCtx context.Context) (map[string]any, error) {
					return handler(taskCtx, run.Params)
				},
			}
			if err := d.exec.Submit(ctx, task); err != nil {
				return "", err
			}
		}
	}

	return run.RunID, nil
}

// Get retrieves a run by id.
func (d *Dispatcher) Get(ctx context.Context, runID string) (*store.Run, error) {
	return d.runs.Get(ctx, runID)
}

// List applies filter and paging.
func (d *Dispatcher) List(ctx context.Context, filter store.RunFilter) ([]*store.Run, store.Page, error) {
	return d.runs.List(ctx, filter)
}

// UpdateStatus validates and persists a status transition, appending the
// matching terminal/lifecycle event.
func (d *Dispatcher) UpdateStatus(ctx context.Context, runID, newStatus string, payload func(*store.Run)) error {
	run, err := d.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if payload != nil {
		payload(run)
	}
	finished := map[string]bool{store.RunCompleted: true, store.RunFailed: true, store.RunCancelled: true, store.RunDeadLettered: true}
	if finished[newStatus] && run.FinishedAt == nil {
		now := d.clock.Now()
		run.FinishedAt = &now
	}
	if err := d.runs.UpdateStatus(ctx, run, newStatus); err != nil {
		return err
	}
	_, err = d.ledger.Append(ctx, runID, newStatus, nil)
	return err
}

// Cancel transitions a non-terminal run to cancelled and signals the
// executor's cancellation token for it.
func (d *Dispatcher) Cancel(ctx context.Context, runID, reason string) error {
	run, err := d.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	cancellable := map[string]bool{store.RunPending: true, store.RunQueued: true, store.RunRunning: true}
	if !cancellable[run.Status] {
		// Cancelling a run already in a terminal state is a no-op success,
		// not an error.
		return nil
	}
	now := d.clock.Now()
	run.FinishedAt = &now
	if err := d.runs.UpdateStatus(ctx, run, store.RunCancelled); err != nil {
		return err
	}
	if _, err := d.ledger.Append(ctx, runID, ledger.EventCancelled, map[string]any{"reason": reason}); err != nil {
		return err
	}
	if d.exec != nil {
		d.exec.Cancel(runID)
	}
	return nil
}

// Retry creates a new run linked to runID via retry_of_run_id with an
// incremented attempt, and submits it.
func (d *Dispatcher) Retry(ctx context.Context, runID string) (string, error) {
	run, err := d.runs.Get(ctx, runID)
	if err != nil {
		return "", err
	}
	spec := WorkSpec{
		Kind:           run.Kind,
		Name:           run.Name,
		Params:         run.Params,
		Lane:           run.Lane,
		Priority:       run.Priority,
		ParentRunID:    run.ParentRunID,
		CorrelationID:  run.CorrelationID,
		BatchID:        run.BatchID,
		IdempotencyKey: run.IdempotencyKey,
		Force:          true,
	}
	return d.createRun(ctx, spec, runID, run.Attempt+1)
}

// GetChildren returns direct children of parentRunID.
func (d *Dispatcher) GetChildren(ctx context.Context, parentRunID string) ([]*store.Run, error) {
	return d.runs.Children(ctx, parentRunID)
}
