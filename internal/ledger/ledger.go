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

// Package ledger is the append-only event log every run writes to. Events
// are the source of truth; a run's status column is a denormalized cache
// readers must tolerate seeing lag behind the ledger.
package ledger

import (
	"context"
	"time"

	"github.com/conveyorhq/conveyor/internal/store"
)

// Event type names written by the dispatcher, executor, and workflow runner.
const (
	EventCreated       = "created"
	EventQueued        = "queued"
	EventStarted       = "started"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"
	EventCompleted     = "completed"
	EventFailed        = "failed"
	EventCancelled     = "cancelled"
	EventDeadLettered  = "dead_lettered"
	EventRetried       = "retried"
)

// Ledger appends and scans a run's event log. It does not retry failed
// storage operations; callers own retry policy.
type Ledger struct {
	store store.EventStore
}

// New returns a Ledger backed by the given event store.
func New(es store.EventStore) *Ledger {
	return &Ledger{store: es}
}

// Append persists one event for runID and returns its monotonic event_id.
func (l *Ledger) Append(ctx context.Context, runID, eventType string, data map[string]any) (int64, error) {
	return l.store.AppendEvent(ctx, runID, eventType, data)
}

// Scan returns events for runID in append order, starting after afterEventID.
// A limit of 0 returns every remaining event.
func (l *Ledger) Scan(ctx context.Context, runID string, afterEventID int64, limit int) ([]*store.Event, error) {
	return l.store.ScanEvents(ctx, runID, afterEventID, limit)
}

// ScanType returns events of eventType across all runs since the given
// time, oldest first. Used for diagnostics and SLA/anomaly sweeps, not the
// hot dispatch path.
func (l *Ledger) ScanType(ctx context.Context, eventType string, since time.Time, limit int) ([]*store.Event, error) {
	return l.store.ScanEventsByType(ctx, eventType, since, limit)
}
