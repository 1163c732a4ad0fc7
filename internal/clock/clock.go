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

// Package clock provides monotonic UTC time, sortable ID generation, and
// content hashing for the kernel. Every component that needs "now" or a
// new identifier goes through a Source rather than calling time.Now or
// the id packages directly, so tests can substitute a deterministic clock.
package clock

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Source produces the current time and new identifiers. The default
// implementation (System) wraps time.Now and crypto/rand; tests may supply
// a fixed-time, deterministic-entropy Source for reproducible IDs.
type Source interface {
	// Now returns the current UTC time.
	Now() time.Time

	// NewRunID returns a new ULID string, lexicographically sortable by
	// creation time. Used for run_id, lock owner tokens, DLQ ids, backfill
	// plan ids, and schedule ids.
	NewRunID() string

	// NewToken returns a new random UUID, used where global sort order
	// doesn't matter (lease tokens, idempotency echo ids).
	NewToken() string
}

// System is the production Source: real wall-clock time and a monotonic
// ULID entropy source seeded from crypto/rand.
type System struct {
	entropy io.Reader
}

// NewSystem returns a System clock source.
func NewSystem() *System {
	return &System{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Now returns the current UTC time.
func (s *System) Now() time.Time {
	return time.Now().UTC()
}

// NewRunID returns a new ULID string.
func (s *System) NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(s.Now()), s.entropy).String()
}

// NewToken returns a new random UUID string.
func (s *System) NewToken() string {
	return uuid.NewString()
}

// HashPartition derives a Concurrency Guard lock_key component from an
// arbitrary partition value. Plain strings are used as-is and fmt.Stringer
// values contribute their String() result; anything else is formatted with
// %v and hashed with xxhash into a hex string (not zero-padded).
func HashPartition(partitionKey any) string {
	switch v := partitionKey.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		h := xxhash.New()
		_, _ = io.WriteString(h, fmt.Sprintf("%v", v))
		return strconv.FormatUint(h.Sum64(), 16)
	}
}

// LockKey builds the Concurrency Guard key for a workflow+partition pair,
// combining the workflow name with HashPartition of the partition value so
// concurrent runs of the same workflow over the same partition contend for
// one lease while distinct partitions run independently.
func LockKey(workflowName string, partitionKey any) string {
	return "workflow:" + workflowName + ":" + HashPartition(partitionKey)
}

// ScheduleLockKey builds the per-schedule lease key the Scheduler acquires
// before firing a due schedule, so two scheduler instances never dispatch
// the same tick twice.
func ScheduleLockKey(scheduleID string) string {
	return "schedule:" + scheduleID
}
