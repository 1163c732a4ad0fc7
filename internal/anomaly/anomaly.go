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

// Package anomaly is the Anomaly Recorder (C16): observational
// out-of-band events. Anomalies never block a run on their own; a
// handler that cares has to inspect them explicitly.
package anomaly

import (
	"context"
	"time"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/store"
)

const (
	SeverityDebug    = "debug"
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Recorder is the Anomaly Recorder over an AnomalyStore.
type Recorder struct {
	store store.AnomalyStore
	clock clock.Source
}

// New returns a Recorder backed by the given store.
func New(s store.AnomalyStore, c clock.Source) *Recorder {
	return &Recorder{store: s, clock: c}
}

// Record logs one anomaly and returns its id.
func (r *Recorder) Record(ctx context.Context, stage, partitionKey, severity, category, message string, metadata map[string]any, runID string) (string, error) {
	a := &store.Anomaly{
		ID:           r.clock.NewRunID(),
		Stage:        stage,
		PartitionKey: partitionKey,
		Severity:     severity,
		Category:     category,
		Message:      message,
		Metadata:     metadata,
		RunID:        runID,
		DetectedAt:   r.clock.Now(),
	}
	if err := r.store.RecordAnomaly(ctx, a); err != nil {
		return "", err
	}
	return a.ID, nil
}

// Resolve marks id resolved with an optional note.
func (r *Recorder) Resolve(ctx context.Context, id, resolutionNote string) error {
	return r.store.ResolveAnomaly(ctx, id, resolutionNote, r.clock.Now())
}

// ListUnresolved returns unresolved anomalies, optionally filtered to a
// single stage, most-recently-detected first, bounded to limit (0 means
// unbounded).
func (r *Recorder) ListUnresolved(ctx context.Context, stage string, limit int) ([]*store.Anomaly, error) {
	all, err := r.store.ListUnresolvedAnomalies(ctx, stage)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// CountBySeverity returns a severity-to-count map over anomalies
// detected within the last sinceHours.
func (r *Recorder) CountBySeverity(ctx context.Context, sinceHours int) (map[string]int, error) {
	since := r.clock.Now().Add(-time.Duration(sinceHours) * time.Hour)
	return r.store.CountAnomaliesBySeverity(ctx, since)
}

// HasRecentCritical reports whether any CRITICAL anomaly was detected
// within the last sinceHours.
func (r *Recorder) HasRecentCritical(ctx context.Context, sinceHours int) (bool, error) {
	counts, err := r.CountBySeverity(ctx, sinceHours)
	if err != nil {
		return false, err
	}
	return counts[SeverityCritical] > 0, nil
}
