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

// Package runs is the run repository: CRUD, idempotency-key lookup, and
// status transitions over internal/store. It has no opinion on how a run
// gets executed; internal/dispatch builds submit/cancel/retry on top of it.
package runs

import (
	"context"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

// validTransitions enumerates the run status state machine. A transition
// not listed here is rejected with a ValidationError.
var validTransitions = map[string]map[string]bool{
	store.RunPending:   {store.RunQueued: true, store.RunCancelled: true},
	store.RunQueued:    {store.RunRunning: true, store.RunCancelled: true},
	store.RunRunning:   {store.RunCompleted: true, store.RunFailed: true, store.RunCancelled: true},
	store.RunFailed:    {store.RunDeadLettered: true},
	store.RunCompleted: {},
	store.RunCancelled: {},
}

// Repository is the run CRUD and status-transition surface.
type Repository struct {
	store interface {
		store.RunStore
		store.RunLister
	}
}

// New returns a Repository over the given backend.
func New(s interface {
	store.RunStore
	store.RunLister
}) *Repository {
	return &Repository{store: s}
}

// Create inserts a new run row.
func (r *Repository) Create(ctx context.Context, run *store.Run) error {
	return r.store.CreateRun(ctx, run)
}

// Get retrieves a run by id.
func (r *Repository) Get(ctx context.Context, runID string) (*store.Run, error) {
	return r.store.GetRun(ctx, runID)
}

// List applies filter and paging.
func (r *Repository) List(ctx context.Context, filter store.RunFilter) ([]*store.Run, store.Page, error) {
	return r.store.ListRuns(ctx, filter)
}

// Children returns direct children of parentRunID: runs whose
// parent_run_id is parentRunID. Retries are linked by retry_of_run_id
// instead and are not listed here.
func (r *Repository) Children(ctx context.Context, parentRunID string) ([]*store.Run, error) {
	return r.store.ListChildren(ctx, parentRunID)
}

// FindByIdempotencyKey looks up an existing run for (kind, name, key).
func (r *Repository) FindByIdempotencyKey(ctx context.Context, kind, name, key string) (*store.Run, error) {
	return r.store.FindRunByIdempotencyKey(ctx, kind, name, key)
}

// UpdateStatus validates newStatus is reachable from run.Status, applies
// the transition and any payload mutation, and persists the row. payload
// may set Result, Error, ErrorCategory, StartedAt, FinishedAt — callers
// populate run's fields before calling UpdateStatus; this just enforces
// the state machine and writes.
func (r *Repository) UpdateStatus(ctx context.Context, run *store.Run, newStatus string) error {
	allowed, known := validTransitions[run.Status]
	if !known || !allowed[newStatus] {
		return &kernelerrors.ValidationError{
			Field:   "status",
			Message: "invalid transition from " + run.Status + " to " + newStatus,
		}
	}
	run.Status = newStatus
	return r.store.UpdateRun(ctx, run)
}
