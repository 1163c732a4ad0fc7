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

// Package scheduler is the Scheduler (C12): a periodic tick that finds
// due schedules, takes a per-schedule lease, submits the target via the
// Dispatcher, and advances next_run_at for cron/interval/date schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/dispatch"
	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/store"
)

const (
	typeCron     = "cron"
	typeInterval = "interval"
	typeDate     = "date"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler runs periodic ticks against a ScheduleStore.
type Scheduler struct {
	store      store.ScheduleStore
	dispatcher *dispatch.Dispatcher
	ledger     *ledger.Ledger
	guard      *lease.Guard
	clock      clock.Source
}

// New returns a Scheduler wired to its collaborators.
func New(s store.ScheduleStore, dispatcher *dispatch.Dispatcher, l *ledger.Ledger, guard *lease.Guard, c clock.Source) *Scheduler {
	return &Scheduler{store: s, dispatcher: dispatcher, ledger: l, guard: guard, clock: c}
}

// Tick evaluates every due schedule once. Callers invoke this
// periodically (e.g. every few seconds) from their own ticker loop.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return err
	}
	for _, sched := range due {
		if err := s.fire(ctx, sched, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, sched *store.Schedule, now time.Time) error {
	lockKey := clock.ScheduleLockKey(sched.ScheduleID)
	ttl := time.Duration(sched.MisfireGraceSeconds+5) * time.Second
	acquired, err := s.guard.Acquire(ctx, lockKey, sched.ScheduleID, ttl)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() { _ = s.guard.Release(ctx, lockKey, sched.ScheduleID) }()

	if sched.NextRunAt == nil {
		return nil
	}
	if now.Sub(*sched.NextRunAt) > time.Duration(sched.MisfireGraceSeconds)*time.Second {
		// No run is ever created for a misfire, so the event lands on the
		// schedule's own firing history rather than a per-run event log.
		if err := s.store.RecordScheduleRun(ctx, &store.ScheduleRun{
			ScheduleID:  sched.ScheduleID,
			ScheduledAt: *sched.NextRunAt,
			Status:      "misfired",
		}); err != nil {
			return err
		}
		sched.NextRunAt = NextRunAt(sched, now)
		sched.LastRunStatus = "misfired"
		return s.store.UpdateSchedule(ctx, sched)
	}

	runID, err := s.dispatcher.Submit(ctx, dispatch.WorkSpec{
		Kind:   sched.TargetKind,
		Name:   sched.TargetName,
		Params: sched.Params,
	})
	if err != nil {
		return err
	}
	if err := s.store.RecordScheduleRun(ctx, &store.ScheduleRun{
		ScheduleID:  sched.ScheduleID,
		ScheduledAt: *sched.NextRunAt,
		RunID:       runID,
		Status:      "dispatched",
	}); err != nil {
		return err
	}

	sched.LastRunAt = &now
	sched.LastRunStatus = store.RunRunning
	sched.NextRunAt = NextRunAt(sched, now)
	return s.store.UpdateSchedule(ctx, sched)
}

// NextRunAt computes the new next_run_at for sched as of now, per its
// schedule_type. A date schedule that has already fired (or whose run_at
// is not in the future) returns nil — it is exhausted.
func NextRunAt(sched *store.Schedule, now time.Time) *time.Time {
	switch sched.ScheduleType {
	case typeCron:
		schedule, err := cronParser.Parse(sched.CronExpression)
		if err != nil {
			return nil
		}
		next := schedule.Next(now)
		return &next
	case typeInterval:
		next := now.Add(time.Duration(sched.IntervalSeconds) * time.Second)
		return &next
	case typeDate:
		if sched.RunAt != nil && sched.RunAt.After(now) {
			t := *sched.RunAt
			return &t
		}
		return nil
	default:
		return nil
	}
}
