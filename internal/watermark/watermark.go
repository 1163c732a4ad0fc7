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

// Package watermark is the Watermark Store (C13): monotonic high-water
// marks per (domain, source, partition_key), plus gap detection against
// an expected partition-key set.
package watermark

import (
	"context"
	"time"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

// Gap is one expected partition key with no recorded watermark.
type Gap struct {
	Domain       string
	Source       string
	PartitionKey string
}

// Store is the Watermark Store over a WatermarkStore backend.
type Store struct {
	store store.WatermarkStore
}

// New returns a Store backed by the given backend.
func New(s store.WatermarkStore) *Store {
	return &Store{store: s}
}

// Advance upserts the watermark for (domain, source, partitionKey). A
// highWater at or below the current value is a no-op: the existing
// watermark is returned unchanged rather than an error.
func (s *Store) Advance(ctx context.Context, domain, source, partitionKey, highWater, lowWater string, metadata map[string]any) (*store.Watermark, error) {
	wm := &store.Watermark{
		Domain:       domain,
		Source:       source,
		PartitionKey: partitionKey,
		HighWater:    highWater,
		LowWater:     lowWater,
		Metadata:     metadata,
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.store.AdvanceWatermark(ctx, wm)
	if err == nil {
		return wm, nil
	}
	var conflict *kernelerrors.ConflictError
	if !kernelerrors.As(err, &conflict) {
		return nil, err
	}
	return s.store.GetWatermark(ctx, domain, source, partitionKey)
}

// Get returns the watermark for (domain, source, partitionKey), or nil
// if none has been recorded.
func (s *Store) Get(ctx context.Context, domain, source, partitionKey string) (*store.Watermark, error) {
	wm, err := s.store.GetWatermark(ctx, domain, source, partitionKey)
	if err != nil {
		var nf *kernelerrors.NotFoundError
		if kernelerrors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return wm, nil
}

// ListAll returns every watermark, optionally filtered to one domain.
func (s *Store) ListAll(ctx context.Context, domain string) ([]*store.Watermark, error) {
	return s.store.ListWatermarks(ctx, domain, "")
}

// ListGaps returns one Gap per expected partition key that has no
// recorded watermark under (domain, source).
func (s *Store) ListGaps(ctx context.Context, domain, source string, expectedPartitionKeys []string) ([]Gap, error) {
	present, err := s.store.ListWatermarks(ctx, domain, source)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(present))
	for _, wm := range present {
		have[wm.PartitionKey] = true
	}
	var gaps []Gap
	for _, key := range expectedPartitionKeys {
		if !have[key] {
			gaps = append(gaps, Gap{Domain: domain, Source: source, PartitionKey: key})
		}
	}
	return gaps, nil
}

// Delete removes the watermark for (domain, source, partitionKey).
func (s *Store) Delete(ctx context.Context, domain, source, partitionKey string) error {
	return s.store.DeleteWatermark(ctx, domain, source, partitionKey)
}
