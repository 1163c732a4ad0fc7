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

// Package sqlite opens a sqlstore.Store backed by modernc.org/sqlite, for
// single-node deployments that set database_url to a file path (or
// ":memory:").
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/conveyorhq/conveyor/internal/store/sqlstore"
)

// Config holds sqlite connection settings.
type Config struct {
	// Path is the database file path, or ":memory:".
	Path string
	// WAL enables Write-Ahead Logging for concurrent reads.
	WAL bool
}

// Open opens the database, configures pragmas, and wraps it in a
// sqlstore.Store. Callers must still call InitSchema if init_schema is set.
func Open(cfg Config) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY churn
	// under the database/sql pool's default concurrent-connection behavior.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if cfg.WAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure pragma %q: %w", p, err)
		}
	}

	return sqlstore.New(db, dialect{}), nil
}

type dialect struct{}

func (dialect) Name() string              { return "sqlite" }
func (dialect) Rebind(query string) string { return query }

func (dialect) UpsertSuffix(conflictCol string, updateCols []string) string {
	suffix := "ON CONFLICT(" + conflictCol + ") DO UPDATE SET "
	for i, col := range updateCols {
		if i > 0 {
			suffix += ", "
		}
		suffix += col + " = excluded." + col
	}
	return suffix
}

func (dialect) Schema() []string { return schema }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS core_executions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		params TEXT,
		status TEXT NOT NULL,
		lane TEXT NOT NULL DEFAULT 'default',
		priority INTEGER NOT NULL DEFAULT 0,
		parent_execution_id TEXT,
		correlation_id TEXT,
		batch_id TEXT,
		idempotency_key TEXT,
		retry_of_execution_id TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		error_category TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_idempotency ON core_executions(kind, name, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_executions_status ON core_executions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_parent ON core_executions(parent_execution_id)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_name ON core_executions(name)`,
	`CREATE TABLE IF NOT EXISTS core_execution_events (
		execution_id TEXT NOT NULL,
		event_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		data TEXT,
		PRIMARY KEY (execution_id, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type_ts ON core_execution_events(event_type, timestamp)`,
	`CREATE TABLE IF NOT EXISTS core_concurrency_locks (
		lock_key TEXT PRIMARY KEY,
		owner_execution_id TEXT NOT NULL,
		token TEXT NOT NULL,
		acquired_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS core_dead_letters (
		id TEXT PRIMARY KEY,
		origin_execution_id TEXT NOT NULL,
		workflow TEXT NOT NULL,
		name TEXT NOT NULL,
		params TEXT,
		error TEXT,
		error_category TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		replayed_as_execution_id TEXT,
		replayed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dead_letters_workflow ON core_dead_letters(workflow)`,
	`CREATE TABLE IF NOT EXISTS core_schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_kind TEXT NOT NULL,
		target_name TEXT NOT NULL,
		schedule_type TEXT NOT NULL,
		cron_expression TEXT,
		interval_seconds INTEGER,
		run_at TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		enabled INTEGER NOT NULL DEFAULT 1,
		max_instances INTEGER NOT NULL DEFAULT 1,
		misfire_grace_seconds INTEGER NOT NULL DEFAULT 0,
		params TEXT,
		next_run_at TEXT,
		last_run_at TEXT,
		last_run_status TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS core_schedule_runs (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		started_at TEXT,
		execution_id TEXT,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_runs_schedule ON core_schedule_runs(schedule_id)`,
	`CREATE TABLE IF NOT EXISTS core_watermarks (
		domain TEXT NOT NULL,
		source TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		high_water TEXT NOT NULL,
		low_water TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (domain, source, partition_key)
	)`,
	`CREATE TABLE IF NOT EXISTS core_backfill_plans (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		source TEXT NOT NULL,
		partition_keys TEXT,
		reason TEXT,
		status TEXT NOT NULL,
		completed_keys TEXT,
		failed_keys TEXT,
		checkpoint TEXT,
		range_start TEXT,
		range_end TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS core_quality (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		check_name TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		actual TEXT,
		expected TEXT,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_execution ON core_quality(execution_id)`,
	`CREATE TABLE IF NOT EXISTS core_anomalies (
		id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		partition_key TEXT,
		severity TEXT NOT NULL,
		category TEXT,
		message TEXT,
		metadata TEXT,
		execution_id TEXT,
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		resolution_note TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_stage ON core_anomalies(stage, resolved_at)`,
	`CREATE TABLE IF NOT EXISTS core_manifest (
		domain TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		stage TEXT NOT NULL,
		marked_at TEXT NOT NULL,
		PRIMARY KEY (domain, partition_key, stage)
	)`,
	`CREATE TABLE IF NOT EXISTS core_rejects (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		partition_key TEXT,
		row_id TEXT,
		reason_code TEXT NOT NULL,
		stage TEXT NOT NULL,
		detail TEXT,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rejects_partition ON core_rejects(domain, partition_key)`,
	`CREATE TABLE IF NOT EXISTS core_work_items (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		step_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS core_calc_dependencies (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		partition_key TEXT,
		depends_on_domain TEXT NOT NULL,
		depends_on_partition_key TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS core_expected_schedules (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		cadence TEXT NOT NULL,
		grace_period_seconds INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS core_data_readiness (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		certified_at TEXT NOT NULL,
		certified_by TEXT
	)`,
}
