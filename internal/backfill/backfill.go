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

// Package backfill is the Backfill Planner (C14): tracks a set of
// partitions queued for reprocessing and their per-partition progress.
// A plan auto-completes once every partition key is accounted for, and
// auto-fails if any partition failed and none remain outstanding.
package backfill

import (
	"context"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/store"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Planner is the Backfill Planner over a BackfillStore.
type Planner struct {
	store store.BackfillStore
	clock clock.Source
}

// New returns a Planner backed by the given store.
func New(s store.BackfillStore, c clock.Source) *Planner {
	return &Planner{store: s, clock: c}
}

// Create registers a new plan in PLANNED (pending) status.
func (p *Planner) Create(ctx context.Context, domain, source string, partitionKeys []string, reason, rangeStart, rangeEnd string, metadata map[string]any) (*store.BackfillPlan, error) {
	now := p.clock.Now()
	plan := &store.BackfillPlan{
		PlanID:        p.clock.NewRunID(),
		Domain:        domain,
		Source:        source,
		PartitionKeys: partitionKeys,
		Reason:        reason,
		Status:        StatusPending,
		FailedKeys:    map[string]string{},
		RangeStart:    rangeStart,
		RangeEnd:      rangeEnd,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.store.CreateBackfillPlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Get returns a plan by id.
func (p *Planner) Get(ctx context.Context, planID string) (*store.BackfillPlan, error) {
	return p.store.GetBackfillPlan(ctx, planID)
}

// List returns plans matching the given filters (each empty string
// matches anything).
func (p *Planner) List(ctx context.Context, domain, source, status string) ([]*store.BackfillPlan, error) {
	return p.store.ListBackfillPlans(ctx, domain, source, status)
}

// Start transitions a PLANNED or FAILED plan to RUNNING.
func (p *Planner) Start(ctx context.Context, planID string) error {
	plan, err := p.store.GetBackfillPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.Status != StatusPending && plan.Status != StatusFailed {
		return &kernelerrors.ValidationError{Field: "status", Message: "plan must be pending or failed to start"}
	}
	plan.Status = StatusRunning
	plan.UpdatedAt = p.clock.Now()
	return p.store.UpdateBackfillPlan(ctx, plan)
}

// MarkPartitionDone records key as completed, auto-completing the plan
// once every partition key is accounted for by completed or failed.
func (p *Planner) MarkPartitionDone(ctx context.Context, planID, key string) error {
	plan, err := p.store.GetBackfillPlan(ctx, planID)
	if err != nil {
		return err
	}
	if !contains(plan.CompletedKeys, key) {
		plan.CompletedKeys = append(plan.CompletedKeys, key)
	}
	delete(plan.FailedKeys, key)
	return p.settle(ctx, plan)
}

// MarkPartitionFailed records key (with its error) as failed, auto
// transitioning the plan to FAILED once nothing remains outstanding.
func (p *Planner) MarkPartitionFailed(ctx context.Context, planID, key, errMsg string) error {
	plan, err := p.store.GetBackfillPlan(ctx, planID)
	if err != nil {
		return err
	}
	if plan.FailedKeys == nil {
		plan.FailedKeys = map[string]string{}
	}
	plan.FailedKeys[key] = errMsg
	return p.settle(ctx, plan)
}

// settle recomputes plan.Status from its completed/failed key sets and
// persists the result. Called after every partition-level update.
func (p *Planner) settle(ctx context.Context, plan *store.BackfillPlan) error {
	accountedFor := len(plan.CompletedKeys) + len(plan.FailedKeys)
	if accountedFor >= len(plan.PartitionKeys) {
		if len(plan.FailedKeys) > 0 {
			plan.Status = StatusFailed
		} else {
			plan.Status = StatusCompleted
		}
	}
	plan.UpdatedAt = p.clock.Now()
	return p.store.UpdateBackfillPlan(ctx, plan)
}

// SaveCheckpoint persists an opaque resume cursor for the plan. A caller
// executing remaining_keys can reread it after a crash to pick up where
// it left off.
func (p *Planner) SaveCheckpoint(ctx context.Context, planID, token string) error {
	plan, err := p.store.GetBackfillPlan(ctx, planID)
	if err != nil {
		return err
	}
	plan.Checkpoint = token
	plan.UpdatedAt = p.clock.Now()
	return p.store.UpdateBackfillPlan(ctx, plan)
}

// Cancel transitions a plan to CANCELLED regardless of its current status.
func (p *Planner) Cancel(ctx context.Context, planID string) error {
	plan, err := p.store.GetBackfillPlan(ctx, planID)
	if err != nil {
		return err
	}
	plan.Status = StatusCancelled
	plan.UpdatedAt = p.clock.Now()
	return p.store.UpdateBackfillPlan(ctx, plan)
}

// RemainingKeys returns the partition keys not yet completed or failed,
// in plan order.
func RemainingKeys(plan *store.BackfillPlan) []string {
	done := make(map[string]bool, len(plan.CompletedKeys)+len(plan.FailedKeys))
	for _, k := range plan.CompletedKeys {
		done[k] = true
	}
	for k := range plan.FailedKeys {
		done[k] = true
	}
	var remaining []string
	for _, k := range plan.PartitionKeys {
		if !done[k] {
			remaining = append(remaining, k)
		}
	}
	return remaining
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
