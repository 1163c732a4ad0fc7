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

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

var _ store.Backend = (*Store)(nil)

// Store is a store.Backend over database/sql, generic across any Dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an already-open *sql.DB with the given Dialect.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: s.dialect.Name() + " exec", Cause: err}
	}
	return res, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON[T any](ns sql.NullString) (T, error) {
	var out T
	if !ns.Valid || ns.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return out, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func mustTime(ns sql.NullString) time.Time {
	if t := parseTime(ns); t != nil {
		return *t
	}
	return time.Time{}
}

// --- RunStore ---

func (s *Store) CreateRun(ctx context.Context, run *store.Run) error {
	params, err := marshalJSON(run.Params)
	if err != nil {
		return err
	}
	result, err := marshalJSON(run.Result)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO core_executions (
			id, kind, name, params, status, lane, priority, parent_execution_id,
			correlation_id, batch_id, idempotency_key, retry_of_execution_id, retry_count,
			result, error, error_category, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID, run.Kind, run.Name, params, run.Status, run.Lane, run.Priority,
		nullStr(run.ParentRunID), nullStr(run.CorrelationID), nullStr(run.BatchID),
		nullStr(run.IdempotencyKey), nullStr(run.RetryOfRunID), run.Attempt,
		result, nullStr(run.Error), nullStr(run.ErrorCategory),
		nullTime(&run.CreatedAt), nullTime(run.StartedAt), nullTime(run.FinishedAt),
	)
	if err != nil {
		return err
	}
	return nil
}

const runColumns = `id, kind, name, params, status, lane, priority, parent_execution_id,
	correlation_id, batch_id, idempotency_key, retry_of_execution_id, retry_count,
	result, error, error_category, created_at, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*store.Run, error) {
	var run store.Run
	var params, result sql.NullString
	var parentRunID, correlationID, batchID, idempotencyKey, retryOf sql.NullString
	var errStr, errCat sql.NullString
	var createdAt, startedAt, finishedAt sql.NullString

	if err := row.Scan(
		&run.RunID, &run.Kind, &run.Name, &params, &run.Status, &run.Lane, &run.Priority,
		&parentRunID, &correlationID, &batchID, &idempotencyKey, &retryOf, &run.Attempt,
		&result, &errStr, &errCat, &createdAt, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	run.ParentRunID = parentRunID.String
	run.CorrelationID = correlationID.String
	run.BatchID = batchID.String
	run.IdempotencyKey = idempotencyKey.String
	run.RetryOfRunID = retryOf.String
	run.Error = errStr.String
	run.ErrorCategory = errCat.String
	run.CreatedAt = mustTime(createdAt)
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)

	paramsMap, err := unmarshalJSON[map[string]any](params)
	if err != nil {
		return nil, err
	}
	run.Params = paramsMap
	resultMap, err := unmarshalJSON[map[string]any](result)
	if err != nil {
		return nil, err
	}
	run.Result = resultMap
	return &run, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM core_executions WHERE id = ?`), runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "get run", Cause: err}
	}
	return run, nil
}

func (s *Store) UpdateRun(ctx context.Context, run *store.Run) error {
	params, err := marshalJSON(run.Params)
	if err != nil {
		return err
	}
	result, err := marshalJSON(run.Result)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE core_executions SET
			status = ?, lane = ?, priority = ?, params = ?, result = ?, error = ?, error_category = ?,
			started_at = ?, finished_at = ?, retry_count = ?
		WHERE id = ?
	`,
		run.Status, run.Lane, run.Priority, params, result, nullStr(run.Error), nullStr(run.ErrorCategory),
		nullTime(run.StartedAt), nullTime(run.FinishedAt), run.Attempt, run.RunID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "run", ID: run.RunID}
	}
	return nil
}

func (s *Store) FindRunByIdempotencyKey(ctx context.Context, kind, name, key string) (*store.Run, error) {
	if key == "" {
		return nil, &kernelerrors.NotFoundError{Resource: "run", ID: "(no idempotency key)"}
	}
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+runColumns+` FROM core_executions
		WHERE kind = ? AND name = ? AND idempotency_key = ?
	`), kind, name, key)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "run", ID: key}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "find run by idempotency key", Cause: err}
	}
	return run, nil
}

// --- RunLister ---

func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, store.Page, error) {
	where := ""
	var args []any
	add := func(cond string, val any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, val)
	}
	if filter.Kind != "" {
		add("kind = ?", filter.Kind)
	}
	if filter.Name != "" {
		add("name = ?", filter.Name)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.Lane != "" {
		add("lane = ?", filter.Lane)
	}
	if filter.ParentRunID != "" {
		add("parent_execution_id = ?", filter.ParentRunID)
	}
	if filter.CorrelationID != "" {
		add("correlation_id = ?", filter.CorrelationID)
	}
	if filter.BatchID != "" {
		add("batch_id = ?", filter.BatchID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM core_executions`+where), args...).Scan(&total); err != nil {
		return nil, store.Page{}, &kernelerrors.StorageError{Op: "count runs", Cause: err}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + runColumns + ` FROM core_executions` + where + ` ORDER BY created_at ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), append(append([]any{}, args...), limit+1, filter.Offset)...)
	if err != nil {
		return nil, store.Page{}, &kernelerrors.StorageError{Op: "list runs", Cause: err}
	}
	defer rows.Close()

	var out []*store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, store.Page{}, &kernelerrors.StorageError{Op: "scan run", Cause: err}
		}
		out = append(out, run)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, store.Page{Total: total, HasMore: hasMore}, nil
}

func (s *Store) ListChildren(ctx context.Context, parentRunID string) ([]*store.Run, error) {
	runs, _, err := s.ListRuns(ctx, store.RunFilter{ParentRunID: parentRunID, Limit: 10_000})
	return runs, err
}

// --- EventStore ---

func (s *Store) AppendEvent(ctx context.Context, runID, eventType string, data map[string]any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &kernelerrors.StorageError{Op: "begin append event", Cause: err}
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, s.q(`SELECT MAX(event_id) FROM core_execution_events WHERE execution_id = ?`), runID).Scan(&maxID); err != nil {
		return 0, &kernelerrors.StorageError{Op: "next event id", Cause: err}
	}
	nextID := maxID.Int64 + 1

	payload, err := marshalJSON(data)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO core_execution_events (execution_id, event_id, event_type, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
	`), runID, nextID, eventType, now.Format(time.RFC3339Nano), payload); err != nil {
		return 0, &kernelerrors.StorageError{Op: "insert event", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &kernelerrors.StorageError{Op: "commit append event", Cause: err}
	}
	return nextID, nil
}

func (s *Store) ScanEvents(ctx context.Context, runID string, afterEventID int64, limit int) ([]*store.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT execution_id, event_id, event_type, timestamp, data
		FROM core_execution_events
		WHERE execution_id = ? AND event_id > ?
		ORDER BY event_id ASC LIMIT ?
	`), runID, afterEventID, limit)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "scan events", Cause: err}
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func (s *Store) ScanEventsByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*store.Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT execution_id, event_id, event_type, timestamp, data
		FROM core_execution_events
		WHERE event_type = ? AND timestamp >= ?
		ORDER BY timestamp ASC LIMIT ?
	`), eventType, since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "scan events by type", Cause: err}
	}
	defer rows.Close()
	return scanEventRows(rows)
}

func scanEventRows(rows *sql.Rows) ([]*store.Event, error) {
	var out []*store.Event
	for rows.Next() {
		var ev store.Event
		var ts string
		var data sql.NullString
		if err := rows.Scan(&ev.RunID, &ev.EventID, &ev.EventType, &ts, &data); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan event row", Cause: err}
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "parse event timestamp", Cause: err}
		}
		ev.Timestamp = parsed
		dataMap, err := unmarshalJSON[map[string]any](data)
		if err != nil {
			return nil, err
		}
		ev.Data = dataMap
		out = append(out, &ev)
	}
	return out, nil
}

// --- LeaseStore ---

func (s *Store) AcquireLease(ctx context.Context, lockKey, ownerRunID, token string, ttl time.Duration) (*store.Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "begin acquire lease", Cause: err}
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var existingOwner string
	var expiresAt string
	err = tx.QueryRowContext(ctx, s.q(`SELECT owner_execution_id, expires_at FROM core_concurrency_locks WHERE lock_key = ?`), lockKey).
		Scan(&existingOwner, &expiresAt)
	switch {
	case err == nil:
		if exp, perr := time.Parse(time.RFC3339Nano, expiresAt); perr == nil && exp.After(now) {
			return nil, &kernelerrors.LockUnavailableError{LockKey: lockKey, HeldBy: existingOwner}
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE core_concurrency_locks SET owner_execution_id = ?, token = ?, acquired_at = ?, expires_at = ?
			WHERE lock_key = ?
		`), ownerRunID, token, now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano), lockKey); err != nil {
			return nil, &kernelerrors.StorageError{Op: "reclaim lease", Cause: err}
		}
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO core_concurrency_locks (lock_key, owner_execution_id, token, acquired_at, expires_at)
			VALUES (?, ?, ?, ?, ?)
		`), lockKey, ownerRunID, token, now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano)); err != nil {
			return nil, &kernelerrors.StorageError{Op: "insert lease", Cause: err}
		}
	default:
		return nil, &kernelerrors.StorageError{Op: "check lease", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &kernelerrors.StorageError{Op: "commit acquire lease", Cause: err}
	}
	return &store.Lease{LockKey: lockKey, Token: token, OwnerRunID: ownerRunID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}, nil
}

func (s *Store) ReleaseLease(ctx context.Context, lockKey, token string) error {
	res, err := s.exec(ctx, `DELETE FROM core_concurrency_locks WHERE lock_key = ? AND token = ?`, lockKey, token)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "lease", ID: lockKey}
	}
	return nil
}

func (s *Store) ListLeases(ctx context.Context) ([]*store.Lease, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT lock_key, token, owner_execution_id, acquired_at, expires_at FROM core_concurrency_locks ORDER BY lock_key ASC`))
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list leases", Cause: err}
	}
	defer rows.Close()

	var out []*store.Lease
	for rows.Next() {
		var l store.Lease
		var acquiredAt, expiresAt string
		if err := rows.Scan(&l.LockKey, &l.Token, &l.OwnerRunID, &acquiredAt, &expiresAt); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan lease", Cause: err}
		}
		l.AcquiredAt, _ = time.Parse(time.RFC3339Nano, acquiredAt)
		l.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
		out = append(out, &l)
	}
	return out, nil
}

func (s *Store) ForceReleaseLease(ctx context.Context, lockKey string) error {
	_, err := s.exec(ctx, `DELETE FROM core_concurrency_locks WHERE lock_key = ?`, lockKey)
	return err
}

func (s *Store) ReapExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT lock_key FROM core_concurrency_locks WHERE expires_at <= ?`), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "find expired leases", Cause: err}
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, &kernelerrors.StorageError{Op: "scan expired lease", Cause: err}
		}
		keys = append(keys, k)
	}
	rows.Close()

	if _, err := s.exec(ctx, `DELETE FROM core_concurrency_locks WHERE expires_at <= ?`, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	return keys, nil
}

// --- DeadLetterStore ---

func (s *Store) AddDeadLetter(ctx context.Context, entry *store.DeadLetterEntry) error {
	params, err := marshalJSON(entry.Params)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO core_dead_letters (
			id, origin_execution_id, workflow, name, params, error, error_category,
			retry_count, max_retries, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OriginRunID, entry.Workflow, entry.Name, params, entry.Error, entry.ErrorCategory,
		entry.RetryCount, entry.MaxRetries, nullTime(&entry.CreatedAt))
	return err
}

func scanDeadLetter(row interface{ Scan(...any) error }) (*store.DeadLetterEntry, error) {
	var e store.DeadLetterEntry
	var params sql.NullString
	var createdAt, replayedAt sql.NullString
	var replayedAsRun sql.NullString
	if err := row.Scan(
		&e.ID, &e.OriginRunID, &e.Workflow, &e.Name, &params, &e.Error, &e.ErrorCategory,
		&e.RetryCount, &e.MaxRetries, &createdAt, &replayedAsRun, &replayedAt,
	); err != nil {
		return nil, err
	}
	e.CreatedAt = mustTime(createdAt)
	e.ReplayedAsRun = replayedAsRun.String
	e.ReplayedAt = parseTime(replayedAt)
	paramsMap, err := unmarshalJSON[map[string]any](params)
	if err != nil {
		return nil, err
	}
	e.Params = paramsMap
	return &e, nil
}

const dlqColumns = `id, origin_execution_id, workflow, name, params, error, error_category,
	retry_count, max_retries, created_at, replayed_as_execution_id, replayed_at`

func (s *Store) GetDeadLetter(ctx context.Context, id string) (*store.DeadLetterEntry, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+dlqColumns+` FROM core_dead_letters WHERE id = ?`), id)
	e, err := scanDeadLetter(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "dead_letter", ID: id}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "get dead letter", Cause: err}
	}
	return e, nil
}

func (s *Store) ListDeadLetters(ctx context.Context, workflow string, limit, offset int) ([]*store.DeadLetterEntry, store.Page, error) {
	where := ""
	var args []any
	if workflow != "" {
		where = " WHERE workflow = ?"
		args = append(args, workflow)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM core_dead_letters`+where), args...).Scan(&total); err != nil {
		return nil, store.Page{}, &kernelerrors.StorageError{Op: "count dead letters", Cause: err}
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + dlqColumns + ` FROM core_dead_letters` + where + ` ORDER BY created_at ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, s.q(query), append(append([]any{}, args...), limit+1, offset)...)
	if err != nil {
		return nil, store.Page{}, &kernelerrors.StorageError{Op: "list dead letters", Cause: err}
	}
	defer rows.Close()

	var out []*store.DeadLetterEntry
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, store.Page{}, &kernelerrors.StorageError{Op: "scan dead letter", Cause: err}
		}
		out = append(out, e)
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, store.Page{Total: total, HasMore: hasMore}, nil
}

func (s *Store) MarkReplayed(ctx context.Context, id, replayedAsRunID string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE core_dead_letters SET retry_count = retry_count + 1, replayed_as_execution_id = ?, replayed_at = ? WHERE id = ?`,
		replayedAsRunID, nullTime(&at), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "dead_letter", ID: id}
	}
	return nil
}

// --- ScheduleStore ---

const scheduleColumns = `id, name, target_kind, target_name, schedule_type, cron_expression,
	interval_seconds, run_at, timezone, enabled, max_instances, misfire_grace_seconds, params,
	next_run_at, last_run_at, last_run_status, created_at, updated_at`

func (s *Store) CreateSchedule(ctx context.Context, sched *store.Schedule) error {
	params, err := marshalJSON(sched.Params)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO core_schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sched.ScheduleID, sched.Name, sched.TargetKind, sched.TargetName, sched.ScheduleType, nullStr(sched.CronExpression),
		sched.IntervalSeconds, nullTime(sched.RunAt), sched.Timezone, sched.Enabled, sched.MaxInstances,
		sched.MisfireGraceSeconds, params, nullTime(sched.NextRunAt), nullTime(sched.LastRunAt),
		nullStr(sched.LastRunStatus), nullTime(&sched.CreatedAt), nullTime(&sched.UpdatedAt),
	)
	return err
}

func scanSchedule(row interface{ Scan(...any) error }) (*store.Schedule, error) {
	var sc store.Schedule
	var cron, lastRunStatus sql.NullString
	var runAt, nextRunAt, lastRunAt sql.NullString
	var createdAt, updatedAt string
	var params sql.NullString
	var intervalSeconds sql.NullInt64

	if err := row.Scan(
		&sc.ScheduleID, &sc.Name, &sc.TargetKind, &sc.TargetName, &sc.ScheduleType, &cron,
		&intervalSeconds, &runAt, &sc.Timezone, &sc.Enabled, &sc.MaxInstances, &sc.MisfireGraceSeconds,
		&params, &nextRunAt, &lastRunAt, &lastRunStatus, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	sc.CronExpression = cron.String
	sc.IntervalSeconds = intervalSeconds.Int64
	sc.RunAt = parseTime(runAt)
	sc.NextRunAt = parseTime(nextRunAt)
	sc.LastRunAt = parseTime(lastRunAt)
	sc.LastRunStatus = lastRunStatus.String
	sc.CreatedAt = mustTime(sql.NullString{String: createdAt, Valid: true})
	sc.UpdatedAt = mustTime(sql.NullString{String: updatedAt, Valid: true})
	paramsMap, err := unmarshalJSON[map[string]any](params)
	if err != nil {
		return nil, err
	}
	sc.Params = paramsMap
	return &sc, nil
}

func (s *Store) GetSchedule(ctx context.Context, scheduleID string) (*store.Schedule, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+scheduleColumns+` FROM core_schedules WHERE id = ?`), scheduleID)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "get schedule", Cause: err}
	}
	return sc, nil
}

func (s *Store) ListSchedules(ctx context.Context, enabledOnly bool) ([]*store.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM core_schedules`
	if enabledOnly {
		query += ` WHERE enabled = ` + boolLiteral(true)
	}
	query += ` ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query))
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list schedules", Cause: err}
	}
	defer rows.Close()
	var out []*store.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan schedule", Cause: err}
		}
		out = append(out, sc)
	}
	return out, nil
}

func boolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Store) UpdateSchedule(ctx context.Context, sched *store.Schedule) error {
	params, err := marshalJSON(sched.Params)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE core_schedules SET
			target_kind = ?, target_name = ?, schedule_type = ?, cron_expression = ?, interval_seconds = ?,
			run_at = ?, timezone = ?, enabled = ?, max_instances = ?, misfire_grace_seconds = ?, params = ?,
			next_run_at = ?, last_run_at = ?, last_run_status = ?, updated_at = ?
		WHERE id = ?
	`,
		sched.TargetKind, sched.TargetName, sched.ScheduleType, nullStr(sched.CronExpression), sched.IntervalSeconds,
		nullTime(sched.RunAt), sched.Timezone, sched.Enabled, sched.MaxInstances, sched.MisfireGraceSeconds, params,
		nullTime(sched.NextRunAt), nullTime(sched.LastRunAt), nullStr(sched.LastRunStatus), nullTime(&sched.UpdatedAt),
		sched.ScheduleID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "schedule", ID: sched.ScheduleID}
	}
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, scheduleID string) error {
	_, err := s.exec(ctx, `DELETE FROM core_schedules WHERE id = ?`, scheduleID)
	return err
}

func (s *Store) ListDue(ctx context.Context, asOf time.Time) ([]*store.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+scheduleColumns+` FROM core_schedules
		WHERE enabled = `+boolLiteral(true)+` AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC
	`), asOf.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list due schedules", Cause: err}
	}
	defer rows.Close()
	var out []*store.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan due schedule", Cause: err}
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) RecordScheduleRun(ctx context.Context, run *store.ScheduleRun) error {
	_, err := s.exec(ctx, `
		INSERT INTO core_schedule_runs (id, schedule_id, scheduled_at, started_at, execution_id, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.ScheduleID, run.ScheduledAt.UTC().Format(time.RFC3339Nano), nullTime(run.StartedAt), nullStr(run.RunID), run.Status)
	return err
}

func (s *Store) CountRunningInstances(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM core_executions WHERE name = ? AND status IN (?, ?)
	`), scheduleID, store.RunRunning, store.RunQueued).Scan(&count)
	if err != nil {
		return 0, &kernelerrors.StorageError{Op: "count running instances", Cause: err}
	}
	return count, nil
}

// --- WatermarkStore ---

func (s *Store) AdvanceWatermark(ctx context.Context, wm *store.Watermark) error {
	meta, err := marshalJSON(wm.Metadata)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &kernelerrors.StorageError{Op: "begin advance watermark", Cause: err}
	}
	defer tx.Rollback()

	var existingHigh string
	err = tx.QueryRowContext(ctx, s.q(`
		SELECT high_water FROM core_watermarks WHERE domain = ? AND source = ? AND partition_key = ?
	`), wm.Domain, wm.Source, wm.PartitionKey).Scan(&existingHigh)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO core_watermarks (domain, source, partition_key, high_water, low_water, metadata, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), wm.Domain, wm.Source, wm.PartitionKey, wm.HighWater, wm.LowWater, meta, nullTime(&wm.UpdatedAt)); err != nil {
			return &kernelerrors.StorageError{Op: "insert watermark", Cause: err}
		}
	case err != nil:
		return &kernelerrors.StorageError{Op: "check watermark", Cause: err}
	default:
		if wm.HighWater <= existingHigh {
			return &kernelerrors.ConflictError{Resource: "watermark", Key: wm.PartitionKey, Message: "high_water must move forward"}
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE core_watermarks SET high_water = ?, low_water = ?, metadata = ?, updated_at = ?
			WHERE domain = ? AND source = ? AND partition_key = ?
		`), wm.HighWater, wm.LowWater, meta, nullTime(&wm.UpdatedAt), wm.Domain, wm.Source, wm.PartitionKey); err != nil {
			return &kernelerrors.StorageError{Op: "update watermark", Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &kernelerrors.StorageError{Op: "commit advance watermark", Cause: err}
	}
	return nil
}

func scanWatermark(row interface{ Scan(...any) error }) (*store.Watermark, error) {
	var wm store.Watermark
	var meta sql.NullString
	var updatedAt string
	if err := row.Scan(&wm.Domain, &wm.Source, &wm.PartitionKey, &wm.HighWater, &wm.LowWater, &meta, &updatedAt); err != nil {
		return nil, err
	}
	wm.UpdatedAt = mustTime(sql.NullString{String: updatedAt, Valid: true})
	metaMap, err := unmarshalJSON[map[string]any](meta)
	if err != nil {
		return nil, err
	}
	wm.Metadata = metaMap
	return &wm, nil
}

func (s *Store) GetWatermark(ctx context.Context, domain, source, partitionKey string) (*store.Watermark, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT domain, source, partition_key, high_water, low_water, metadata, updated_at
		FROM core_watermarks WHERE domain = ? AND source = ? AND partition_key = ?
	`), domain, source, partitionKey)
	wm, err := scanWatermark(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "watermark", ID: partitionKey}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "get watermark", Cause: err}
	}
	return wm, nil
}

func (s *Store) ListWatermarks(ctx context.Context, domain, source string) ([]*store.Watermark, error) {
	where := ""
	var args []any
	if domain != "" {
		where += " AND domain = ?"
		args = append(args, domain)
	}
	if source != "" {
		where += " AND source = ?"
		args = append(args, source)
	}
	query := `SELECT domain, source, partition_key, high_water, low_water, metadata, updated_at FROM core_watermarks WHERE 1=1` + where + ` ORDER BY partition_key ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list watermarks", Cause: err}
	}
	defer rows.Close()
	var out []*store.Watermark
	for rows.Next() {
		wm, err := scanWatermark(rows)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan watermark", Cause: err}
		}
		out = append(out, wm)
	}
	return out, nil
}

func (s *Store) DeleteWatermark(ctx context.Context, domain, source, partitionKey string) error {
	_, err := s.exec(ctx, `DELETE FROM core_watermarks WHERE domain = ? AND source = ? AND partition_key = ?`, domain, source, partitionKey)
	return err
}

// --- BackfillStore ---

func (s *Store) CreateBackfillPlan(ctx context.Context, plan *store.BackfillPlan) error {
	partitionKeys, err := marshalJSON(plan.PartitionKeys)
	if err != nil {
		return err
	}
	completedKeys, err := marshalJSON(plan.CompletedKeys)
	if err != nil {
		return err
	}
	failedKeys, err := marshalJSON(plan.FailedKeys)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(plan.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO core_backfill_plans (
			id, domain, source, partition_keys, reason, status, completed_keys, failed_keys,
			checkpoint, range_start, range_end, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, plan.PlanID, plan.Domain, plan.Source, partitionKeys, plan.Reason, plan.Status, completedKeys, failedKeys,
		nullStr(plan.Checkpoint), nullStr(plan.RangeStart), nullStr(plan.RangeEnd), meta,
		nullTime(&plan.CreatedAt), nullTime(&plan.UpdatedAt))
	return err
}

const backfillColumns = `id, domain, source, partition_keys, reason, status, completed_keys, failed_keys,
	checkpoint, range_start, range_end, metadata, created_at, updated_at`

func scanBackfillPlan(row interface{ Scan(...any) error }) (*store.BackfillPlan, error) {
	var p store.BackfillPlan
	var partitionKeys, completedKeys, failedKeys, meta sql.NullString
	var checkpoint, rangeStart, rangeEnd sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(
		&p.PlanID, &p.Domain, &p.Source, &partitionKeys, &p.Reason, &p.Status, &completedKeys, &failedKeys,
		&checkpoint, &rangeStart, &rangeEnd, &meta, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	p.Checkpoint = checkpoint.String
	p.RangeStart = rangeStart.String
	p.RangeEnd = rangeEnd.String
	p.CreatedAt = mustTime(sql.NullString{String: createdAt, Valid: true})
	p.UpdatedAt = mustTime(sql.NullString{String: updatedAt, Valid: true})

	var err error
	if p.PartitionKeys, err = unmarshalJSON[[]string](partitionKeys); err != nil {
		return nil, err
	}
	if p.CompletedKeys, err = unmarshalJSON[[]string](completedKeys); err != nil {
		return nil, err
	}
	if p.FailedKeys, err = unmarshalJSON[map[string]string](failedKeys); err != nil {
		return nil, err
	}
	if p.Metadata, err = unmarshalJSON[map[string]any](meta); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetBackfillPlan(ctx context.Context, planID string) (*store.BackfillPlan, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+backfillColumns+` FROM core_backfill_plans WHERE id = ?`), planID)
	p, err := scanBackfillPlan(row)
	if err == sql.ErrNoRows {
		return nil, &kernelerrors.NotFoundError{Resource: "backfill_plan", ID: planID}
	}
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "get backfill plan", Cause: err}
	}
	return p, nil
}

func (s *Store) UpdateBackfillPlan(ctx context.Context, plan *store.BackfillPlan) error {
	completedKeys, err := marshalJSON(plan.CompletedKeys)
	if err != nil {
		return err
	}
	failedKeys, err := marshalJSON(plan.FailedKeys)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE core_backfill_plans SET
			status = ?, completed_keys = ?, failed_keys = ?, checkpoint = ?, updated_at = ?
		WHERE id = ?
	`, plan.Status, completedKeys, failedKeys, nullStr(plan.Checkpoint), nullTime(&plan.UpdatedAt), plan.PlanID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "backfill_plan", ID: plan.PlanID}
	}
	return nil
}

func (s *Store) ListBackfillPlans(ctx context.Context, domain, source, status string) ([]*store.BackfillPlan, error) {
	where := ""
	var args []any
	if domain != "" {
		where += " AND domain = ?"
		args = append(args, domain)
	}
	if source != "" {
		where += " AND source = ?"
		args = append(args, source)
	}
	if status != "" {
		where += " AND status = ?"
		args = append(args, status)
	}
	query := `SELECT ` + backfillColumns + ` FROM core_backfill_plans WHERE 1=1` + where + ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list backfill plans", Cause: err}
	}
	defer rows.Close()
	var out []*store.BackfillPlan
	for rows.Next() {
		p, err := scanBackfillPlan(rows)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan backfill plan", Cause: err}
		}
		out = append(out, p)
	}
	return out, nil
}

// --- QualityStore ---

func (s *Store) RecordQualityResult(ctx context.Context, result *store.QualityResult) error {
	_, err := s.exec(ctx, `
		INSERT INTO core_quality (id, execution_id, check_name, status, message, actual, expected, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, result.RunID, result.CheckName, result.Status, nullStr(result.Message),
		nullStr(result.Actual), nullStr(result.Expected), nullTime(&result.RecordedAt))
	return err
}

func (s *Store) ListQualityResults(ctx context.Context, runID string) ([]*store.QualityResult, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, execution_id, check_name, status, message, actual, expected, recorded_at
		FROM core_quality WHERE execution_id = ? ORDER BY recorded_at ASC
	`), runID)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list quality results", Cause: err}
	}
	defer rows.Close()
	var out []*store.QualityResult
	for rows.Next() {
		var q store.QualityResult
		var message, actual, expected sql.NullString
		var recordedAt string
		if err := rows.Scan(&q.ID, &q.RunID, &q.CheckName, &q.Status, &message, &actual, &expected, &recordedAt); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan quality result", Cause: err}
		}
		q.Message, q.Actual, q.Expected = message.String, actual.String, expected.String
		q.RecordedAt = mustTime(sql.NullString{String: recordedAt, Valid: true})
		out = append(out, &q)
	}
	return out, nil
}

// --- AnomalyStore ---

func (s *Store) RecordAnomaly(ctx context.Context, a *store.Anomaly) error {
	meta, err := marshalJSON(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO core_anomalies (
			id, stage, partition_key, severity, category, message, metadata, execution_id, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Stage, a.PartitionKey, a.Severity, a.Category, nullStr(a.Message), meta, nullStr(a.RunID), nullTime(&a.DetectedAt))
	return err
}

func (s *Store) ResolveAnomaly(ctx context.Context, id, note string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE core_anomalies SET resolved_at = ?, resolution_note = ? WHERE id = ?`, nullTime(&at), nullStr(note), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &kernelerrors.NotFoundError{Resource: "anomaly", ID: id}
	}
	return nil
}

func (s *Store) ListUnresolvedAnomalies(ctx context.Context, stage string) ([]*store.Anomaly, error) {
	where := " WHERE resolved_at IS NULL"
	var args []any
	if stage != "" {
		where += " AND stage = ?"
		args = append(args, stage)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, stage, partition_key, severity, category, message, metadata, execution_id, detected_at, resolved_at, resolution_note
		FROM core_anomalies`+where+` ORDER BY detected_at ASC
	`), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list unresolved anomalies", Cause: err}
	}
	defer rows.Close()
	var out []*store.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan anomaly", Cause: err}
		}
		out = append(out, a)
	}
	return out, nil
}

func scanAnomaly(rows *sql.Rows) (*store.Anomaly, error) {
	var a store.Anomaly
	var message, runID, resolutionNote sql.NullString
	var meta sql.NullString
	var detectedAt string
	var resolvedAt sql.NullString
	if err := rows.Scan(&a.ID, &a.Stage, &a.PartitionKey, &a.Severity, &a.Category, &message, &meta, &runID, &detectedAt, &resolvedAt, &resolutionNote); err != nil {
		return nil, err
	}
	a.Message, a.RunID, a.ResolutionNote = message.String, runID.String, resolutionNote.String
	a.DetectedAt = mustTime(sql.NullString{String: detectedAt, Valid: true})
	a.ResolvedAt = parseTime(resolvedAt)
	metaMap, err := unmarshalJSON[map[string]any](meta)
	if err != nil {
		return nil, err
	}
	a.Metadata = metaMap
	return &a, nil
}

func (s *Store) CountAnomaliesBySeverity(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT severity, COUNT(*) FROM core_anomalies WHERE detected_at >= ? GROUP BY severity
	`), since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "count anomalies by severity", Cause: err}
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan anomaly count", Cause: err}
		}
		out[sev] = count
	}
	return out, nil
}

// --- ManifestStore ---

func (s *Store) MarkStage(ctx context.Context, domain, partitionKey, stage string, at time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO core_manifest (domain, partition_key, stage, marked_at) VALUES (?, ?, ?, ?)
		`+s.dialect.UpsertSuffix("domain, partition_key, stage", []string{"marked_at"}),
		domain, partitionKey, stage, at.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) HasStage(ctx context.Context, domain, partitionKey, stage string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM core_manifest WHERE domain = ? AND partition_key = ? AND stage = ?
	`), domain, partitionKey, stage).Scan(&n)
	if err != nil {
		return false, &kernelerrors.StorageError{Op: "check manifest stage", Cause: err}
	}
	return n > 0, nil
}

// --- RejectStore ---

func (s *Store) RecordReject(ctx context.Context, r *store.Reject) error {
	_, err := s.exec(ctx, `
		INSERT INTO core_rejects (id, domain, partition_key, row_id, reason_code, stage, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Domain, r.PartitionKey, r.RowID, r.ReasonCode, r.Stage, nullStr(r.Detail), nullTime(&r.RecordedAt))
	return err
}

func (s *Store) ListRejects(ctx context.Context, domain, partitionKey string, limit int) ([]*store.Reject, error) {
	where := " WHERE 1=1"
	var args []any
	if domain != "" {
		where += " AND domain = ?"
		args = append(args, domain)
	}
	if partitionKey != "" {
		where += " AND partition_key = ?"
		args = append(args, partitionKey)
	}
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, domain, partition_key, row_id, reason_code, stage, detail, recorded_at
		FROM core_rejects`+where+` ORDER BY recorded_at ASC LIMIT ?
	`), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list rejects", Cause: err}
	}
	defer rows.Close()
	var out []*store.Reject
	for rows.Next() {
		var r store.Reject
		var detail sql.NullString
		var recordedAt string
		if err := rows.Scan(&r.ID, &r.Domain, &r.PartitionKey, &r.RowID, &r.ReasonCode, &r.Stage, &detail, &recordedAt); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan reject", Cause: err}
		}
		r.Detail = detail.String
		r.RecordedAt = mustTime(sql.NullString{String: recordedAt, Valid: true})
		out = append(out, &r)
	}
	return out, nil
}

// --- CalcDependencyStore ---

func (s *Store) ListCalcDependencies(ctx context.Context, domain string) ([]*store.CalcDependency, error) {
	where := ""
	var args []any
	if domain != "" {
		where = " WHERE domain = ?"
		args = append(args, domain)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, domain, partition_key, depends_on_domain, depends_on_partition_key
		FROM core_calc_dependencies`+where+` ORDER BY id ASC
	`), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list calc dependencies", Cause: err}
	}
	defer rows.Close()
	var out []*store.CalcDependency
	for rows.Next() {
		var d store.CalcDependency
		var partitionKey, dependsOnPartitionKey sql.NullString
		if err := rows.Scan(&d.ID, &d.Domain, &partitionKey, &d.DependsOnDomain, &dependsOnPartitionKey); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan calc dependency", Cause: err}
		}
		d.PartitionKey = partitionKey.String
		d.DependsOnPartitionKey = dependsOnPartitionKey.String
		out = append(out, &d)
	}
	return out, nil
}

// --- ExpectedScheduleStore ---

func (s *Store) ListExpectedSchedules(ctx context.Context, domain string) ([]*store.ExpectedSchedule, error) {
	where := ""
	var args []any
	if domain != "" {
		where = " WHERE domain = ?"
		args = append(args, domain)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, domain, cadence, grace_period_seconds
		FROM core_expected_schedules`+where+` ORDER BY id ASC
	`), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list expected schedules", Cause: err}
	}
	defer rows.Close()
	var out []*store.ExpectedSchedule
	for rows.Next() {
		var e store.ExpectedSchedule
		if err := rows.Scan(&e.ID, &e.Domain, &e.Cadence, &e.GracePeriodSeconds); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan expected schedule", Cause: err}
		}
		out = append(out, &e)
	}
	return out, nil
}

// --- DataReadinessStore ---

func (s *Store) RecordReadiness(ctx context.Context, r *store.DataReadinessRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO core_data_readiness (id, domain, partition_key, certified_at, certified_by)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Domain, r.PartitionKey, nullTime(&r.CertifiedAt), nullStr(r.CertifiedBy))
	return err
}

func (s *Store) ListReadiness(ctx context.Context, domain, partitionKey string) ([]*store.DataReadinessRecord, error) {
	where := " WHERE domain = ?"
	args := []any{domain}
	if partitionKey != "" {
		where += " AND partition_key = ?"
		args = append(args, partitionKey)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, domain, partition_key, certified_at, certified_by
		FROM core_data_readiness`+where+` ORDER BY certified_at DESC
	`), args...)
	if err != nil {
		return nil, &kernelerrors.StorageError{Op: "list readiness", Cause: err}
	}
	defer rows.Close()
	var out []*store.DataReadinessRecord
	for rows.Next() {
		var r store.DataReadinessRecord
		var certifiedAt string
		var certifiedBy sql.NullString
		if err := rows.Scan(&r.ID, &r.Domain, &r.PartitionKey, &certifiedAt, &certifiedBy); err != nil {
			return nil, &kernelerrors.StorageError{Op: "scan readiness", Cause: err}
		}
		r.CertifiedAt = mustTime(sql.NullString{String: certifiedAt, Valid: true})
		r.CertifiedBy = certifiedBy.String
		out = append(out, &r)
	}
	return out, nil
}

// --- Migrator ---

func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &kernelerrors.SchemaMismatchError{Table: "(init)", Message: stmt, Cause: err}
		}
	}
	return nil
}

func (s *Store) Healthy(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &kernelerrors.StorageError{Op: "ping", Cause: err}
	}
	return nil
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.exec(ctx, `
		DELETE FROM core_executions WHERE status IN (?, ?, ?, ?) AND created_at < ?
	`, store.RunCompleted, store.RunFailed, store.RunCancelled, store.RunDeadLettered, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) Close() error { return s.db.Close() }
