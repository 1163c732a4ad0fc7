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

// Package memory provides an in-memory store.Backend, used as the default
// backend for tests and single-process trials where no database_url is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend is an in-memory store.Backend guarded by a single RWMutex. It
// keeps insertion order for list operations via auxiliary id slices.
type Backend struct {
	mu sync.RWMutex

	runs    map[string]*store.Run
	runIDs  []string
	events  map[string][]*store.Event
	leases  map[string]*store.Lease
	dlq     map[string]*store.DeadLetterEntry
	dlqIDs  []string

	schedules    map[string]*store.Schedule
	scheduleRuns []*store.ScheduleRun

	watermarks map[string]*store.Watermark // key: domain/source/partitionKey
	backfills  map[string]*store.BackfillPlan
	quality    map[string][]*store.QualityResult // key: runID
	anomalies  map[string]*store.Anomaly
	manifest   map[string]time.Time // key: domain/partitionKey/stage
	rejects    []*store.Reject

	calcDeps       []*store.CalcDependency
	expectedScheds []*store.ExpectedSchedule
	readiness      []*store.DataReadinessRecord
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{
		runs:       make(map[string]*store.Run),
		events:     make(map[string][]*store.Event),
		leases:     make(map[string]*store.Lease),
		dlq:        make(map[string]*store.DeadLetterEntry),
		schedules:  make(map[string]*store.Schedule),
		watermarks: make(map[string]*store.Watermark),
		backfills:  make(map[string]*store.BackfillPlan),
		quality:    make(map[string][]*store.QualityResult),
		anomalies:  make(map[string]*store.Anomaly),
		manifest:   make(map[string]time.Time),
	}
}

func wmKey(domain, source, partitionKey string) string {
	return domain + "/" + source + "/" + partitionKey
}

func manifestKey(domain, partitionKey, stage string) string {
	return domain + "/" + partitionKey + "/" + stage
}

// --- RunStore ---

func (b *Backend) CreateRun(ctx context.Context, run *store.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.RunID]; exists {
		return &kernelerrors.ConflictError{Resource: "run", Key: run.RunID, Message: "already exists"}
	}
	cp := *run
	b.runs[run.RunID] = &cp
	b.runIDs = append(b.runIDs, run.RunID)
	return nil
}

func (b *Backend) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, exists := b.runs[runID]
	if !exists {
		return nil, &kernelerrors.NotFoundError{Resource: "run", ID: runID}
	}
	cp := *run
	return &cp, nil
}

func (b *Backend) UpdateRun(ctx context.Context, run *store.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.RunID]; !exists {
		return &kernelerrors.NotFoundError{Resource: "run", ID: run.RunID}
	}
	cp := *run
	b.runs[run.RunID] = &cp
	return nil
}

func (b *Backend) FindRunByIdempotencyKey(ctx context.Context, kind, name, key string) (*store.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if key == "" {
		return nil, &kernelerrors.NotFoundError{Resource: "run", ID: "(no idempotency key)"}
	}
	for _, id := range b.runIDs {
		run := b.runs[id]
		if run.Kind == kind && run.Name == name && run.IdempotencyKey == key {
			cp := *run
			return &cp, nil
		}
	}
	return nil, &kernelerrors.NotFoundError{Resource: "run", ID: key}
}

// --- RunLister ---

func (b *Backend) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, store.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*store.Run
	for _, id := range b.runIDs {
		run := b.runs[id]
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.Name != "" && run.Name != filter.Name {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Lane != "" && run.Lane != filter.Lane {
			continue
		}
		if filter.ParentRunID != "" && run.ParentRunID != filter.ParentRunID {
			continue
		}
		if filter.CorrelationID != "" && run.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.BatchID != "" && run.BatchID != filter.BatchID {
			continue
		}
		cp := *run
		matched = append(matched, &cp)
	}

	total := len(matched)
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	hasMore := false
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
		hasMore = true
	}
	return matched, store.Page{Total: total, HasMore: hasMore}, nil
}

func (b *Backend) ListChildren(ctx context.Context, parentRunID string) ([]*store.Run, error) {
	runs, _, err := b.ListRuns(ctx, store.RunFilter{ParentRunID: parentRunID})
	return runs, err
}

// --- EventStore ---

func (b *Backend) AppendEvent(ctx context.Context, runID, eventType string, data map[string]any) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[runID]; !exists {
		return 0, &kernelerrors.NotFoundError{Resource: "run", ID: runID}
	}
	eventID := int64(len(b.events[runID]) + 1)
	b.events[runID] = append(b.events[runID], &store.Event{
		EventID:   eventID,
		RunID:     runID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	return eventID, nil
}

func (b *Backend) ScanEvents(ctx context.Context, runID string, afterEventID int64, limit int) ([]*store.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Event
	for _, ev := range b.events[runID] {
		if ev.EventID <= afterEventID {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (b *Backend) ScanEventsByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*store.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Event
	for _, id := range b.runIDs {
		for _, ev := range b.events[id] {
			if ev.EventType != eventType || ev.Timestamp.Before(since) {
				continue
			}
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- LeaseStore ---

func (b *Backend) AcquireLease(ctx context.Context, lockKey, ownerRunID, token string, ttl time.Duration) (*store.Lease, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	if existing, held := b.leases[lockKey]; held && existing.ExpiresAt.After(now) {
		return nil, &kernelerrors.LockUnavailableError{LockKey: lockKey, HeldBy: existing.OwnerRunID}
	}
	lease := &store.Lease{
		LockKey:    lockKey,
		Token:      token,
		OwnerRunID: ownerRunID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	b.leases[lockKey] = lease
	cp := *lease
	return &cp, nil
}

func (b *Backend) ReleaseLease(ctx context.Context, lockKey, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, held := b.leases[lockKey]
	if !held {
		return &kernelerrors.NotFoundError{Resource: "lease", ID: lockKey}
	}
	if existing.Token != token {
		return &kernelerrors.ConflictError{Resource: "lease", Key: lockKey, Message: "token mismatch"}
	}
	delete(b.leases, lockKey)
	return nil
}

func (b *Backend) ListLeases(ctx context.Context) ([]*store.Lease, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*store.Lease, 0, len(b.leases))
	for _, l := range b.leases {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockKey < out[j].LockKey })
	return out, nil
}

func (b *Backend) ForceReleaseLease(ctx context.Context, lockKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.leases, lockKey)
	return nil
}

func (b *Backend) ReapExpired(ctx context.Context, now time.Time) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var reaped []string
	for key, l := range b.leases {
		if !l.ExpiresAt.After(now) {
			reaped = append(reaped, key)
			delete(b.leases, key)
		}
	}
	sort.Strings(reaped)
	return reaped, nil
}

// --- DeadLetterStore ---

func (b *Backend) AddDeadLetter(ctx context.Context, entry *store.DeadLetterEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *entry
	b.dlq[entry.ID] = &cp
	b.dlqIDs = append(b.dlqIDs, entry.ID)
	return nil
}

func (b *Backend) GetDeadLetter(ctx context.Context, id string) (*store.DeadLetterEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, exists := b.dlq[id]
	if !exists {
		return nil, &kernelerrors.NotFoundError{Resource: "dead_letter", ID: id}
	}
	cp := *entry
	return &cp, nil
}

func (b *Backend) ListDeadLetters(ctx context.Context, workflow string, limit, offset int) ([]*store.DeadLetterEntry, store.Page, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []*store.DeadLetterEntry
	for _, id := range b.dlqIDs {
		e := b.dlq[id]
		if workflow != "" && e.Workflow != workflow {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	hasMore := false
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
		hasMore = true
	}
	return matched, store.Page{Total: total, HasMore: hasMore}, nil
}

func (b *Backend) MarkReplayed(ctx context.Context, id, replayedAsRunID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.dlq[id]
	if !exists {
		return &kernelerrors.NotFoundError{Resource: "dead_letter", ID: id}
	}
	entry.RetryCount++
	entry.ReplayedAsRun = replayedAsRunID
	entry.ReplayedAt = &at
	return nil
}

// --- ScheduleStore ---

func (b *Backend) CreateSchedule(ctx context.Context, sched *store.Schedule) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.schedules[sched.ScheduleID]; exists {
		return &kernelerrors.ConflictError{Resource: "schedule", Key: sched.ScheduleID, Message: "already exists"}
	}
	cp := *sched
	b.schedules[sched.ScheduleID] = &cp
	return nil
}

func (b *Backend) GetSchedule(ctx context.Context, scheduleID string) (*store.Schedule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, exists := b.schedules[scheduleID]
	if !exists {
		return nil, &kernelerrors.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	cp := *s
	return &cp, nil
}

func (b *Backend) ListSchedules(ctx context.Context, enabledOnly bool) ([]*store.Schedule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*store.Schedule, 0, len(b.schedules))
	for _, s := range b.schedules {
		if enabledOnly && !s.Enabled {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleID < out[j].ScheduleID })
	return out, nil
}

func (b *Backend) UpdateSchedule(ctx context.Context, sched *store.Schedule) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.schedules[sched.ScheduleID]; !exists {
		return &kernelerrors.NotFoundError{Resource: "schedule", ID: sched.ScheduleID}
	}
	cp := *sched
	b.schedules[sched.ScheduleID] = &cp
	return nil
}

func (b *Backend) DeleteSchedule(ctx context.Context, scheduleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.schedules, scheduleID)
	return nil
}

func (b *Backend) ListDue(ctx context.Context, asOf time.Time) ([]*store.Schedule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Schedule
	for _, s := range b.schedules {
		if !s.Enabled || s.NextRunAt == nil {
			continue
		}
		if s.NextRunAt.After(asOf) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduleID < out[j].ScheduleID })
	return out, nil
}

func (b *Backend) RecordScheduleRun(ctx context.Context, run *store.ScheduleRun) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *run
	b.scheduleRuns = append(b.scheduleRuns, &cp)
	return nil
}

func (b *Backend) CountRunningInstances(ctx context.Context, scheduleID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, id := range b.runIDs {
		run := b.runs[id]
		if run.Name == scheduleID && (run.Status == store.RunRunning || run.Status == store.RunQueued) {
			count++
		}
	}
	return count, nil
}

// --- WatermarkStore ---

func (b *Backend) AdvanceWatermark(ctx context.Context, wm *store.Watermark) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := wmKey(wm.Domain, wm.Source, wm.PartitionKey)
	if existing, ok := b.watermarks[key]; ok && wm.HighWater <= existing.HighWater {
		return &kernelerrors.ConflictError{
			Resource: "watermark",
			Key:      key,
			Message:  "high_water must move forward",
		}
	}
	cp := *wm
	b.watermarks[key] = &cp
	return nil
}

func (b *Backend) GetWatermark(ctx context.Context, domain, source, partitionKey string) (*store.Watermark, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	wm, exists := b.watermarks[wmKey(domain, source, partitionKey)]
	if !exists {
		return nil, &kernelerrors.NotFoundError{Resource: "watermark", ID: partitionKey}
	}
	cp := *wm
	return &cp, nil
}

func (b *Backend) ListWatermarks(ctx context.Context, domain, source string) ([]*store.Watermark, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Watermark
	for _, wm := range b.watermarks {
		if domain != "" && wm.Domain != domain {
			continue
		}
		if source != "" && wm.Source != source {
			continue
		}
		cp := *wm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartitionKey < out[j].PartitionKey })
	return out, nil
}

func (b *Backend) DeleteWatermark(ctx context.Context, domain, source, partitionKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watermarks, wmKey(domain, source, partitionKey))
	return nil
}

// --- BackfillStore ---

func (b *Backend) CreateBackfillPlan(ctx context.Context, plan *store.BackfillPlan) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.backfills[plan.PlanID]; exists {
		return &kernelerrors.ConflictError{Resource: "backfill_plan", Key: plan.PlanID, Message: "already exists"}
	}
	cp := *plan
	b.backfills[plan.PlanID] = &cp
	return nil
}

func (b *Backend) GetBackfillPlan(ctx context.Context, planID string) (*store.BackfillPlan, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	plan, exists := b.backfills[planID]
	if !exists {
		return nil, &kernelerrors.NotFoundError{Resource: "backfill_plan", ID: planID}
	}
	cp := *plan
	return &cp, nil
}

func (b *Backend) UpdateBackfillPlan(ctx context.Context, plan *store.BackfillPlan) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.backfills[plan.PlanID]; !exists {
		return &kernelerrors.NotFoundError{Resource: "backfill_plan", ID: plan.PlanID}
	}
	cp := *plan
	b.backfills[plan.PlanID] = &cp
	return nil
}

func (b *Backend) ListBackfillPlans(ctx context.Context, domain, source, status string) ([]*store.BackfillPlan, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.BackfillPlan
	for _, p := range b.backfills {
		if domain != "" && p.Domain != domain {
			continue
		}
		if source != "" && p.Source != source {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out, nil
}

// --- QualityStore ---

func (b *Backend) RecordQualityResult(ctx context.Context, result *store.QualityResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *result
	b.quality[result.RunID] = append(b.quality[result.RunID], &cp)
	return nil
}

func (b *Backend) ListQualityResults(ctx context.Context, runID string) ([]*store.QualityResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*store.QualityResult(nil), b.quality[runID]...), nil
}

// --- AnomalyStore ---

func (b *Backend) RecordAnomaly(ctx context.Context, a *store.Anomaly) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *a
	b.anomalies[a.ID] = &cp
	return nil
}

func (b *Backend) ResolveAnomaly(ctx context.Context, id, note string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, exists := b.anomalies[id]
	if !exists {
		return &kernelerrors.NotFoundError{Resource: "anomaly", ID: id}
	}
	a.ResolvedAt = &at
	a.ResolutionNote = note
	return nil
}

func (b *Backend) ListUnresolvedAnomalies(ctx context.Context, stage string) ([]*store.Anomaly, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Anomaly
	for _, a := range b.anomalies {
		if a.ResolvedAt != nil {
			continue
		}
		if stage != "" && a.Stage != stage {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (b *Backend) CountAnomaliesBySeverity(ctx context.Context, since time.Time) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[string]int)
	for _, a := range b.anomalies {
		if a.DetectedAt.Before(since) {
			continue
		}
		counts[a.Severity]++
	}
	return counts, nil
}

// --- ManifestStore ---

func (b *Backend) MarkStage(ctx context.Context, domain, partitionKey, stage string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manifest[manifestKey(domain, partitionKey, stage)] = at
	return nil
}

func (b *Backend) HasStage(ctx context.Context, domain, partitionKey, stage string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.manifest[manifestKey(domain, partitionKey, stage)]
	return ok, nil
}

// --- RejectStore ---

func (b *Backend) RecordReject(ctx context.Context, r *store.Reject) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *r
	b.rejects = append(b.rejects, &cp)
	return nil
}

func (b *Backend) ListRejects(ctx context.Context, domain, partitionKey string, limit int) ([]*store.Reject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.Reject
	for _, r := range b.rejects {
		if domain != "" && r.Domain != domain {
			continue
		}
		if partitionKey != "" && r.PartitionKey != partitionKey {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- CalcDependencyStore ---

// AddCalcDependency seeds a static dependency declaration. Production
// deployments populate core_calc_dependencies out of band (migration or
// operator tooling); the in-memory backend exposes this setter for tests
// and single-process trials that need to seed the same data.
func (b *Backend) AddCalcDependency(d *store.CalcDependency) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *d
	b.calcDeps = append(b.calcDeps, &cp)
}

func (b *Backend) ListCalcDependencies(ctx context.Context, domain string) ([]*store.CalcDependency, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.CalcDependency
	for _, d := range b.calcDeps {
		if domain != "" && d.Domain != domain {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// --- ExpectedScheduleStore ---

// AddExpectedSchedule seeds an SLA cadence declaration; see
// AddCalcDependency for why this setter exists outside the store.Backend
// interface.
func (b *Backend) AddExpectedSchedule(e *store.ExpectedSchedule) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *e
	b.expectedScheds = append(b.expectedScheds, &cp)
}

func (b *Backend) ListExpectedSchedules(ctx context.Context, domain string) ([]*store.ExpectedSchedule, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.ExpectedSchedule
	for _, e := range b.expectedScheds {
		if domain != "" && e.Domain != domain {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- DataReadinessStore ---

func (b *Backend) RecordReadiness(ctx context.Context, r *store.DataReadinessRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *r
	b.readiness = append(b.readiness, &cp)
	return nil
}

func (b *Backend) ListReadiness(ctx context.Context, domain, partitionKey string) ([]*store.DataReadinessRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*store.DataReadinessRecord
	for i := len(b.readiness) - 1; i >= 0; i-- {
		r := b.readiness[i]
		if r.Domain != domain {
			continue
		}
		if partitionKey != "" && r.PartitionKey != partitionKey {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// --- Migrator ---

func (b *Backend) InitSchema(ctx context.Context) error { return nil }

func (b *Backend) Healthy(ctx context.Context) error { return nil }

func (b *Backend) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	terminal := map[string]bool{
		store.RunCompleted:    true,
		store.RunFailed:       true,
		store.RunCancelled:    true,
		store.RunDeadLettered: true,
	}
	kept := b.runIDs[:0:0]
	purged := 0
	for _, id := range b.runIDs {
		run := b.runs[id]
		if terminal[run.Status] && run.CreatedAt.Before(cutoff) {
			delete(b.runs, id)
			delete(b.events, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	b.runIDs = kept
	return purged, nil
}

// Close releases no resources; it exists to satisfy io.Closer.
func (b *Backend) Close() error { return nil }
