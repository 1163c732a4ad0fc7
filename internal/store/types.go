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

// Package store defines the kernel's persistent entities and the segregated
// storage interfaces each component depends on. Concrete backends live in
// sibling packages (sqlite, postgres, memory); callers should depend on the
// interfaces here, not on a specific backend.
package store

import "time"

// Run status values. Transitions: pending -> queued -> running ->
// {completed, failed, cancelled}; failed -> dead_lettered.
const (
	RunPending      = "pending"
	RunQueued       = "queued"
	RunRunning      = "running"
	RunCompleted    = "completed"
	RunFailed       = "failed"
	RunCancelled    = "cancelled"
	RunDeadLettered = "dead_lettered"
)

// Run is a single execution of a workflow or a bare handler invocation.
type Run struct {
	RunID          string
	Kind           string // registry kind, e.g. "task", "pipeline", "workflow", "operation"
	Name           string
	Params         map[string]any
	Status         string
	Lane           string
	Priority       int
	ParentRunID    string
	CorrelationID  string
	BatchID        string
	IdempotencyKey string
	RetryOfRunID   string
	Attempt        int
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Result         map[string]any
	Error          string
	ErrorCategory  string
}

// Event is a single append-only entry in a run's event ledger.
type Event struct {
	EventID   int64
	RunID     string
	EventType string
	Timestamp time.Time
	Data      map[string]any
}

// Lease is a Concurrency Guard lock held by a run over a lock_key.
type Lease struct {
	LockKey    string
	Token      string
	OwnerRunID string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// DeadLetterEntry is a terminally-failed run parked for inspection or replay.
type DeadLetterEntry struct {
	ID             string
	OriginRunID    string
	Workflow       string
	Name           string
	Params         map[string]any
	Error          string
	ErrorCategory  string
	RetryCount     int
	MaxRetries     int
	CreatedAt      time.Time
	ReplayedAsRun  string
	ReplayedAt     *time.Time
}

// Schedule is a recurring or one-shot trigger for a workflow or handler.
type Schedule struct {
	ScheduleID          string
	Name                string
	TargetKind          string
	TargetName          string
	ScheduleType        string // "cron", "interval", "date"
	CronExpression      string
	IntervalSeconds     int64
	RunAt               *time.Time
	Timezone            string
	Enabled             bool
	MaxInstances        int
	MisfireGraceSeconds int64
	Params              map[string]any
	NextRunAt           *time.Time
	LastRunAt           *time.Time
	LastRunStatus       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ScheduleRun records one firing (or misfire) of a Schedule.
type ScheduleRun struct {
	ID          string
	ScheduleID  string
	ScheduledAt time.Time
	StartedAt   *time.Time
	RunID       string
	Status      string // "dispatched", "misfired", "skipped"
}

// Watermark tracks the high/low data-readiness boundary for a source
// partition. Advances must be forward-only within a (domain, source,
// partition_key) tuple.
type Watermark struct {
	Domain       string
	Source       string
	PartitionKey string
	HighWater    string
	LowWater     string
	Metadata     map[string]any
	UpdatedAt    time.Time
}

// BackfillPlan is a set of partitions queued for reprocessing.
type BackfillPlan struct {
	PlanID        string
	Domain        string
	Source        string
	PartitionKeys []string
	Reason        string
	Status        string // "pending", "running", "completed", "failed", "cancelled"
	CompletedKeys []string
	FailedKeys    map[string]string
	Checkpoint    string
	RangeStart    string
	RangeEnd      string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// QualityResult is the outcome of one named quality check for one run.
type QualityResult struct {
	ID          string
	RunID       string
	CheckName   string
	Status      string // "pass", "warn", "fail", "skip"
	Message     string
	Actual      string
	Expected    string
	RecordedAt  time.Time
}

// Anomaly is an out-of-band observation recorded against a stage/partition.
type Anomaly struct {
	ID             string
	Stage          string
	PartitionKey   string
	Severity       string // "debug", "info", "warn", "error", "critical"
	Category       string
	Message        string
	Metadata       map[string]any
	RunID          string
	DetectedAt     time.Time
	ResolvedAt     *time.Time
	ResolutionNote string
}

// ManifestMark records that a (domain, partition_key) pair has reached a
// named processing stage. Used to make stage transitions idempotent.
type ManifestMark struct {
	Domain       string
	PartitionKey string
	Stage        string
	MarkedAt     time.Time
}

// Reject is a single row rejected during processing of a partition.
type Reject struct {
	ID           string
	Domain       string
	PartitionKey string
	RowID        string
	ReasonCode   string
	Stage        string
	Detail       string
	RecordedAt   time.Time
}

// CalcDependency declares a static dependency of one domain partition on
// another, feeding the readiness surface's upstream-gap checks.
type CalcDependency struct {
	ID                    string
	Domain                string
	PartitionKey          string
	DependsOnDomain       string
	DependsOnPartitionKey string
}

// ExpectedSchedule declares the SLA cadence a domain's data is expected to
// arrive on, independent of any concrete Schedule row, so staleness can be
// detected even when no schedule is currently registered for it.
type ExpectedSchedule struct {
	ID                 string
	Domain             string
	Cadence            string
	GracePeriodSeconds int
}

// DataReadinessRecord is a persisted certification of a domain partition,
// written each time CheckDataReadiness finds (or fails to find) a partition
// ready for consumption.
type DataReadinessRecord struct {
	ID           string
	Domain       string
	PartitionKey string
	CertifiedAt  time.Time
	CertifiedBy  string
}

// RunFilter narrows ListRuns. Zero-value fields are unconstrained.
type RunFilter struct {
	Kind          string
	Name          string
	Status        string
	Lane          string
	ParentRunID   string
	CorrelationID string
	BatchID       string
	Limit         int
	Offset        int
}

// Page describes the slice of a result set a List call returned.
type Page struct {
	Total   int
	HasMore bool
}
