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

package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/store/memory"
)

func TestGuard_Acquire_SecondOwnerFailsWhileHeld(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "workflow:a:p1", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "workflow:a:p1", "run-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGuard_Release_ThenReacquireSucceeds(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "workflow:a:p1", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, "workflow:a:p1", "run-1"))

	ok, err = g.Acquire(ctx, "workflow:a:p1", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGuard_Release_AlreadyGoneIsSilentSuccess(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	require.NoError(t, g.Release(ctx, "workflow:a:p1", "run-1"))
}

func TestGuard_Acquire_SucceedsAfterExpiry(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "workflow:a:p1", "run-1", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "workflow:a:p1", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGuard_ForceRelease_DropsRegardlessOfOwner(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "workflow:a:p1", "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.ForceRelease(ctx, "workflow:a:p1"))

	ok, err = g.Acquire(ctx, "workflow:a:p1", "run-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGuard_List_ReturnsHeldLeases(t *testing.T) {
	backend := memory.New()
	g := lease.New(backend)
	ctx := context.Background()

	_, err := g.Acquire(ctx, "workflow:a:p1", "run-1", time.Minute)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, "schedule:s1", "run-2", time.Minute)
	require.NoError(t, err)

	leases, err := g.List(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 2)
}
