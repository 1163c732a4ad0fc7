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

package clock_test

import (
	"testing"
	"time"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestSystem_NewRunIDIsSortableByTime(t *testing.T) {
	src := clock.NewSystem()

	first := src.NewRunID()
	time.Sleep(2 * time.Millisecond)
	second := src.NewRunID()

	require.Less(t, first, second, "ULIDs generated later should sort after earlier ones")
}

func TestSystem_NewTokenIsUnique(t *testing.T) {
	src := clock.NewSystem()
	require.NotEqual(t, src.NewToken(), src.NewToken())
}

func TestHashPartition_StringPassesThrough(t *testing.T) {
	require.Equal(t, "AAPL", clock.HashPartition("AAPL"))
}

func TestHashPartition_NonStringIsHashed(t *testing.T) {
	h1 := clock.HashPartition(map[string]any{"tier": "OTC", "week": "2025-12-26"})
	h2 := clock.HashPartition(map[string]any{"tier": "OTC", "week": "2025-12-26"})
	require.NotEmpty(t, h1)
	require.Equal(t, h1, h2, "identical inputs must hash identically")
}

func TestLockKey(t *testing.T) {
	require.Equal(t, "workflow:otc.ingest:AAPL", clock.LockKey("otc.ingest", "AAPL"))
}

func TestScheduleLockKey(t *testing.T) {
	require.Equal(t, "schedule:nightly-ingest", clock.ScheduleLockKey("nightly-ingest"))
}
