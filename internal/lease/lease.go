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

// Package lease is the Concurrency Guard: per-lock_key mutual exclusion
// with self-expiring leases, so a crashed owner can never wedge a key
// indefinitely. It is deliberately not a global leader election — distinct
// lock keys (distinct workflow+partition pairs, distinct schedules) run
// independently.
package lease

import (
	"context"
	"time"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

// Guard is the Concurrency Guard over a LeaseStore. The owner_run_id
// doubles as the lease's storage-level token: Acquire and Release both key
// off it, so two runs racing for the same lock_key never need a separate
// shared secret to prove ownership.
type Guard struct {
	store store.LeaseStore
}

// New returns a Guard over the given lease store.
func New(s store.LeaseStore) *Guard {
	return &Guard{store: s}
}

// Acquire attempts to take lock_key for ownerRunID for ttl. It returns
// false (not an error) when the key is already held by someone else;
// errors are reserved for storage failures.
func (g *Guard) Acquire(ctx context.Context, lockKey, ownerRunID string, ttl time.Duration) (bool, error) {
	_, err := g.store.AcquireLease(ctx, lockKey, ownerRunID, ownerRunID, ttl)
	if err == nil {
		return true, nil
	}
	var lockErr *kernelerrors.LockUnavailableError
	if kernelerrors.As(err, &lockErr) {
		return false, nil
	}
	return false, err
}

// Release gives up lock_key if ownerRunID currently holds it. Releasing a
// lease that is already gone (expired, reaped, or never held) succeeds
// silently, matching the Concurrency Guard's "release is idempotent"
// contract.
func (g *Guard) Release(ctx context.Context, lockKey, ownerRunID string) error {
	err := g.store.ReleaseLease(ctx, lockKey, ownerRunID)
	var notFound *kernelerrors.NotFoundError
	if kernelerrors.As(err, &notFound) {
		return nil
	}
	return err
}

// List returns every held lease.
func (g *Guard) List(ctx context.Context) ([]*store.Lease, error) {
	return g.store.ListLeases(ctx)
}

// ForceRelease is the operator override: drop lock_key regardless of owner.
func (g *Guard) ForceRelease(ctx context.Context, lockKey string) error {
	return g.store.ForceReleaseLease(ctx, lockKey)
}

// ReapExpired releases every lease whose TTL has passed. Backends that
// reap inline on Acquire (the contract's step 1) can still call this
// directly for out-of-band cleanup (e.g. a periodic sweep over a backend
// with a long average time-between-acquires).
func (g *Guard) ReapExpired(ctx context.Context) ([]string, error) {
	return g.store.ReapExpired(ctx, time.Now().UTC())
}
