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

// Package ops is the Operations façade (C17): the one API-agnostic
// surface every caller (HTTP, CLI, MCP) goes through. Every function
// takes a typed request and returns a uniform Result envelope so
// transport layers never touch the component packages directly.
package ops

import (
	"context"
	"strings"
	"time"

	"github.com/conveyorhq/conveyor/internal/anomaly"
	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/dispatch"
	"github.com/conveyorhq/conveyor/internal/dlq"
	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/quality"
	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/readiness"
	"github.com/conveyorhq/conveyor/internal/store"
	"github.com/conveyorhq/conveyor/internal/workflow"
)

// ErrorInfo is the error half of a Result envelope.
type ErrorInfo struct {
	Code    string
	Message string
}

// Result is the uniform envelope every operation returns.
type Result[T any] struct {
	Success bool
	Data    T
	Error   *ErrorInfo
	Paging  *store.Page
}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func fail[T any](err error) Result[T] {
	var zero T
	return Result[T]{Success: false, Data: zero, Error: &ErrorInfo{Code: errorCode(err), Message: err.Error()}}
}

// errorCode classifies err against the pkg/errors taxonomy for callers
// that branch on a stable string rather than a Go type.
func errorCode(err error) string {
	var validation *kernelerrors.ValidationError
	var notFound *kernelerrors.NotFoundError
	var conflict *kernelerrors.ConflictError
	var lockUnavailable *kernelerrors.LockUnavailableError
	switch {
	case kernelerrors.As(err, &validation):
		return "validation"
	case kernelerrors.As(err, &notFound):
		return "not_found"
	case kernelerrors.As(err, &conflict):
		return "conflict"
	case kernelerrors.As(err, &lockUnavailable):
		return "lock_unavailable"
	default:
		return "internal"
	}
}

// Facade wires every domain component this operations surface fronts.
type Facade struct {
	Dispatcher     *dispatch.Dispatcher
	Runner         *workflow.Runner
	Workflows      *workflow.Registry
	Schedules      store.ScheduleStore
	DLQ            *dlq.Queue
	Anomalies      *anomaly.Recorder
	Readiness      *readiness.Checker
	Guard          *lease.Guard
	Migrator       store.Migrator
	StoreEvents    EventScanner
	QualityResults store.QualityStore
	Clock          clock.Source
	CalcDeps       store.CalcDependencyStore
	ExpectedScheds store.ExpectedScheduleStore
	ReadinessLog   store.DataReadinessStore
}

// EventScanner is the narrow ledger surface get_run_events needs.
type EventScanner interface {
	Scan(ctx context.Context, runID string, afterEventID int64, limit int) ([]*store.Event, error)
}

// SubmitRunRequest is submit_run's input.
type SubmitRunRequest struct {
	Kind           string
	Name           string
	Params         map[string]any
	Lane           string
	Priority       int
	IdempotencyKey string
	ParentRunID    string
	CorrelationID  string
	BatchID        string
	MaxRetries     int
}

// RunAccepted is submit_run's payload on success.
type RunAccepted struct {
	RunID string
}

// SubmitRun dispatches a new run (or returns an existing one under the
// same idempotency key).
func (f *Facade) SubmitRun(ctx context.Context, req SubmitRunRequest) Result[RunAccepted] {
	runID, err := f.Dispatcher.Submit(ctx, dispatch.WorkSpec{
		Kind:           req.Kind,
		Name:           req.Name,
		Params:         req.Params,
		Lane:           req.Lane,
		Priority:       req.Priority,
		IdempotencyKey: req.IdempotencyKey,
		ParentRunID:    req.ParentRunID,
		CorrelationID:  req.CorrelationID,
		BatchID:        req.BatchID,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		return fail[RunAccepted](err)
	}
	return ok(RunAccepted{RunID: runID})
}

// GetRun fetches a run by id.
func (f *Facade) GetRun(ctx context.Context, runID string) Result[*store.Run] {
	run, err := f.Dispatcher.Get(ctx, runID)
	if err != nil {
		return fail[*store.Run](err)
	}
	return ok(run)
}

// ListRuns returns runs matching filter.
func (f *Facade) ListRuns(ctx context.Context, filter store.RunFilter) Result[[]*store.Run] {
	runs, page, err := f.Dispatcher.List(ctx, filter)
	if err != nil {
		return fail[[]*store.Run](err)
	}
	res := ok(runs)
	res.Paging = &page
	return res
}

// CancelRun cancels a run, stopping its executor task if still running.
func (f *Facade) CancelRun(ctx context.Context, runID, reason string) Result[struct{}] {
	if err := f.Dispatcher.Cancel(ctx, runID, reason); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// RetryRun resubmits a run as a new run linked to it via retry_of_run_id,
// with its attempt counter incremented.
func (f *Facade) RetryRun(ctx context.Context, runID string) Result[RunAccepted] {
	newRunID, err := f.Dispatcher.Retry(ctx, runID)
	if err != nil {
		return fail[RunAccepted](err)
	}
	return ok(RunAccepted{RunID: newRunID})
}

// GetRunEvents returns runID's ledger, paged from afterEventID.
func (f *Facade) GetRunEvents(ctx context.Context, runID string, afterEventID int64, limit int) Result[[]*store.Event] {
	events, err := f.StoreEvents.Scan(ctx, runID, afterEventID, limit)
	if err != nil {
		return fail[[]*store.Event](err)
	}
	return ok(events)
}

// ListWorkflows returns every registered workflow name.
func (f *Facade) ListWorkflows(ctx context.Context) Result[[]string] {
	return ok(f.Workflows.List())
}

// GetWorkflow returns a workflow definition by name.
func (f *Facade) GetWorkflow(ctx context.Context, name string) Result[*workflow.Workflow] {
	wf, err := f.Workflows.Get(name)
	if err != nil {
		return fail[*workflow.Workflow](err)
	}
	return ok(wf)
}

// RunWorkflowRequest is run_workflow's input.
type RunWorkflowRequest struct {
	Name    string
	RunID   string
	Params  map[string]any
	Options workflow.Options
}

// RunWorkflow executes a registered workflow synchronously (in the
// caller's own goroutine) and returns its full Result.
func (f *Facade) RunWorkflow(ctx context.Context, req RunWorkflowRequest) Result[*workflow.Result] {
	wf, err := f.Workflows.Get(req.Name)
	if err != nil {
		return fail[*workflow.Result](err)
	}
	wfctx := workflow.NewContext(req.RunID, req.Name, req.Params)
	res, err := f.Runner.Run(ctx, wf, wfctx, req.Options)
	if err != nil {
		return fail[*workflow.Result](err)
	}
	return ok(res)
}

// CreateSchedule registers a new schedule definition.
func (f *Facade) CreateSchedule(ctx context.Context, sched *store.Schedule) Result[*store.Schedule] {
	now := f.Clock.Now()
	if sched.ScheduleID == "" {
		sched.ScheduleID = f.Clock.NewRunID()
	}
	sched.CreatedAt, sched.UpdatedAt = now, now
	if err := f.Schedules.CreateSchedule(ctx, sched); err != nil {
		return fail[*store.Schedule](err)
	}
	return ok(sched)
}

// ListSchedules returns schedules, optionally restricted to enabled ones.
func (f *Facade) ListSchedules(ctx context.Context, enabledOnly bool) Result[[]*store.Schedule] {
	scheds, err := f.Schedules.ListSchedules(ctx, enabledOnly)
	if err != nil {
		return fail[[]*store.Schedule](err)
	}
	return ok(scheds)
}

// UpdateSchedule persists changes to an existing schedule.
func (f *Facade) UpdateSchedule(ctx context.Context, sched *store.Schedule) Result[*store.Schedule] {
	sched.UpdatedAt = f.Clock.Now()
	if err := f.Schedules.UpdateSchedule(ctx, sched); err != nil {
		return fail[*store.Schedule](err)
	}
	return ok(sched)
}

// DeleteSchedule removes a schedule definition.
func (f *Facade) DeleteSchedule(ctx context.Context, scheduleID string) Result[struct{}] {
	if err := f.Schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// ListDeadLetters returns DLQ entries for workflow (empty matches all).
func (f *Facade) ListDeadLetters(ctx context.Context, workflowName string, limit, offset int) Result[[]*store.DeadLetterEntry] {
	entries, page, err := f.DLQ.List(ctx, workflowName, limit, offset)
	if err != nil {
		return fail[[]*store.DeadLetterEntry](err)
	}
	res := ok(entries)
	res.Paging = &page
	return res
}

// ReplayDeadLetter resubmits a dead-lettered entry as a fresh run.
func (f *Facade) ReplayDeadLetter(ctx context.Context, id string) Result[RunAccepted] {
	runID, err := f.DLQ.Replay(ctx, id)
	if err != nil {
		return fail[RunAccepted](err)
	}
	return ok(RunAccepted{RunID: runID})
}

// ListAnomalies returns unresolved anomalies, optionally filtered by stage.
func (f *Facade) ListAnomalies(ctx context.Context, stage string, limit int) Result[[]*store.Anomaly] {
	items, err := f.Anomalies.ListUnresolved(ctx, stage, limit)
	if err != nil {
		return fail[[]*store.Anomaly](err)
	}
	return ok(items)
}

// ListQualityResults returns the recorded quality-check results for a run.
func (f *Facade) ListQualityResults(ctx context.Context, runID string) Result[[]*store.QualityResult] {
	gate := quality.New(f.QualityResults, f.Clock, runID)
	results, err := gate.Results(ctx)
	if err != nil {
		return fail[[]*store.QualityResult](err)
	}
	return ok(results)
}

// ListLocks returns every currently held lease that is not a
// schedule-scoped lock.
func (f *Facade) ListLocks(ctx context.Context) Result[[]*store.Lease] {
	return f.listLeases(ctx, false)
}

// ListScheduleLocks returns every currently held schedule-scoped lease.
func (f *Facade) ListScheduleLocks(ctx context.Context) Result[[]*store.Lease] {
	return f.listLeases(ctx, true)
}

func (f *Facade) listLeases(ctx context.Context, scheduleOnly bool) Result[[]*store.Lease] {
	all, err := f.Guard.List(ctx)
	if err != nil {
		return fail[[]*store.Lease](err)
	}
	var out []*store.Lease
	for _, l := range all {
		if strings.HasPrefix(l.LockKey, "schedule:") == scheduleOnly {
			out = append(out, l)
		}
	}
	return ok(out)
}

// ReleaseLock force-releases a lock_key regardless of its owner.
func (f *Facade) ReleaseLock(ctx context.Context, lockKey string) Result[struct{}] {
	if err := f.Guard.ForceRelease(ctx, lockKey); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// ReleaseScheduleLock force-releases a schedule's lease by schedule id.
func (f *Facade) ReleaseScheduleLock(ctx context.Context, scheduleID string) Result[struct{}] {
	return f.ReleaseLock(ctx, clock.ScheduleLockKey(scheduleID))
}

// CheckDataReadiness reports whether (domain, source, partition) is
// ready given the most recent run known to have processed it.
func (f *Facade) CheckDataReadiness(ctx context.Context, domain, source, partitionKey, lastRunID string) Result[readiness.Status] {
	status, err := f.Readiness.Certify(ctx, domain, source, partitionKey, lastRunID)
	if err != nil {
		return fail[readiness.Status](err)
	}
	if f.ReadinessLog != nil {
		_ = f.ReadinessLog.RecordReadiness(ctx, &store.DataReadinessRecord{
			ID:           f.Clock.NewRunID(),
			Domain:       domain,
			PartitionKey: partitionKey,
			CertifiedAt:  f.Clock.Now(),
			CertifiedBy:  "check_data_readiness",
		})
	}
	return ok(status)
}

// ListCalcDependencies returns the static dependency graph declared for
// domain (or every domain's dependencies if domain is empty).
func (f *Facade) ListCalcDependencies(ctx context.Context, domain string) Result[[]*store.CalcDependency] {
	deps, err := f.CalcDeps.ListCalcDependencies(ctx, domain)
	if err != nil {
		return fail[[]*store.CalcDependency](err)
	}
	return ok(deps)
}

// ListExpectedSchedules returns the SLA cadences declared for domain (or
// every domain's if domain is empty).
func (f *Facade) ListExpectedSchedules(ctx context.Context, domain string) Result[[]*store.ExpectedSchedule] {
	scheds, err := f.ExpectedScheds.ListExpectedSchedules(ctx, domain)
	if err != nil {
		return fail[[]*store.ExpectedSchedule](err)
	}
	return ok(scheds)
}

// InitializeDatabase creates/migrates core tables.
func (f *Facade) InitializeDatabase(ctx context.Context) Result[struct{}] {
	if err := f.Migrator.InitSchema(ctx); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CheckDatabaseHealth pings the storage backend.
func (f *Facade) CheckDatabaseHealth(ctx context.Context) Result[struct{}] {
	if err := f.Migrator.Healthy(ctx); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// PurgeOldData removes terminal runs (and their events) older than
// olderThan.
func (f *Facade) PurgeOldData(ctx context.Context, olderThan time.Duration) Result[int] {
	cutoff := f.Clock.Now().Add(-olderThan)
	n, err := f.Migrator.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fail[int](err)
	}
	return ok(n)
}
