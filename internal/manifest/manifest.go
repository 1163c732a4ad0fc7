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

// Package manifest makes processing-stage transitions idempotent: a
// handler that marks a (domain, partition_key) pair as having reached a
// named stage can check HasStage before redoing work a retry would
// otherwise repeat.
package manifest

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/store"
)

// Tracker is the manifest surface over a ManifestStore.
type Tracker struct {
	store store.ManifestStore
	clock clock.Source
}

// New returns a Tracker backed by the given store.
func New(s store.ManifestStore, c clock.Source) *Tracker {
	return &Tracker{store: s, clock: c}
}

// MarkStage records that (domain, partitionKey) has reached stage.
func (t *Tracker) MarkStage(ctx context.Context, domain, partitionKey, stage string) error {
	return t.store.MarkStage(ctx, domain, partitionKey, stage, t.clock.Now())
}

// HasStage reports whether (domain, partitionKey) has already reached
// stage.
func (t *Tracker) HasStage(ctx context.Context, domain, partitionKey, stage string) (bool, error) {
	return t.store.HasStage(ctx, domain, partitionKey, stage)
}
