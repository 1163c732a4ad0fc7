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

// Package dlq is the Dead-Letter Queue: records terminal failures and
// supports replay (resubmission under a new run_id, audit trail kept).
package dlq

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/dispatch"
	"github.com/conveyorhq/conveyor/internal/store"
)

// Queue is the Dead-Letter Queue over a DeadLetterStore.
type Queue struct {
	store      store.DeadLetterStore
	dispatcher *dispatch.Dispatcher
	clock      clock.Source
}

// New returns a Queue backed by the given store. dispatcher is used by
// Replay to resubmit a dead-lettered run's params as a fresh run.
func New(s store.DeadLetterStore, dispatcher *dispatch.Dispatcher, c clock.Source) *Queue {
	return &Queue{store: s, dispatcher: dispatcher, clock: c}
}

// Add records one terminal failure and returns its dlq_id.
func (q *Queue) Add(ctx context.Context, entry *store.DeadLetterEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = q.clock.NewRunID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = q.clock.Now()
	}
	if err := q.store.AddDeadLetter(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Get retrieves a dead-letter entry by id.
func (q *Queue) Get(ctx context.Context, id string) (*store.DeadLetterEntry, error) {
	return q.store.GetDeadLetter(ctx, id)
}

// List returns dead-letter entries for workflow (empty string matches
// every workflow), paged.
func (q *Queue) List(ctx context.Context, workflow string, limit, offset int) ([]*store.DeadLetterEntry, store.Page, error) {
	return q.store.ListDeadLetters(ctx, workflow, limit, offset)
}

// Replay resubmits id's original params as a new run linked via
// retry_of_run_id, increments its retry_count, and records
// replayed_as_run_id on the entry without deleting it.
func (q *Queue) Replay(ctx context.Context, id string) (string, error) {
	entry, err := q.store.GetDeadLetter(ctx, id)
	if err != nil {
		return "", err
	}
	newRunID, err := q.dispatcher.Submit(ctx, dispatch.WorkSpec{
		Kind:         "workflow",
		Name:         entry.Workflow,
		Params:       entry.Params,
		Force:        true,
		RetryOfRunID: entry.OriginRunID,
		Attempt:      entry.RetryCount + 2,
	})
	if err != nil {
		return "", err
	}
	entry.RetryCount++
	entry.ReplayedAsRun = newRunID
	now := q.clock.Now()
	entry.ReplayedAt = &now
	if err := q.store.MarkReplayed(ctx, id, newRunID, now); err != nil {
		return "", err
	}
	return newRunID, nil
}

// ShouldDeadLetter reports whether a terminally failed run should be
// dead-lettered: attempt exceeds max_retries, or its error category is
// non_retryable.
func ShouldDeadLetter(attempt, maxRetries int, errorCategory string) bool {
	return attempt > maxRetries || errorCategory == "non_retryable"
}
