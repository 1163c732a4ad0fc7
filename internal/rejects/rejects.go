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

// Package rejects records individual rows a handler declined to
// process, keyed by domain and partition, for later inspection or replay.
package rejects

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/store"
)

// Recorder is the reject-row surface over a RejectStore.
type Recorder struct {
	store store.RejectStore
	clock clock.Source
}

// New returns a Recorder backed by the given store.
func New(s store.RejectStore, c clock.Source) *Recorder {
	return &Recorder{store: s, clock: c}
}

// Record logs one rejected row.
func (r *Recorder) Record(ctx context.Context, domain, partitionKey, rowID, reasonCode, stage, detail string) error {
	return r.store.RecordReject(ctx, &store.Reject{
		ID:           r.clock.NewRunID(),
		Domain:       domain,
		PartitionKey: partitionKey,
		RowID:        rowID,
		ReasonCode:   reasonCode,
		Stage:        stage,
		Detail:       detail,
		RecordedAt:   r.clock.Now(),
	})
}

// List returns rejects for (domain, partitionKey), oldest first,
// bounded to limit.
func (r *Recorder) List(ctx context.Context, domain, partitionKey string, limit int) ([]*store.Reject, error) {
	return r.store.ListRejects(ctx, domain, partitionKey, limit)
}
