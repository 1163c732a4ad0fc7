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

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/store"
	"github.com/conveyorhq/conveyor/internal/store/memory"
)

func TestLedger_AppendAndScanPreservesOrder(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()
	require.NoError(t, backend.CreateRun(ctx, &store.Run{RunID: "run-1", Kind: "workflow", Name: "a", Status: store.RunPending}))

	l := ledger.New(backend)
	_, err := l.Append(ctx, "run-1", ledger.EventCreated, nil)
	require.NoError(t, err)
	_, err = l.Append(ctx, "run-1", ledger.EventQueued, nil)
	require.NoError(t, err)
	id, err := l.Append(ctx, "run-1", ledger.EventStarted, map[string]any{"attempt": 1})
	require.NoError(t, err)
	require.Equal(t, int64(3), id)

	events, err := l.Scan(ctx, "run-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, ledger.EventCreated, events[0].EventType)
	require.Equal(t, ledger.EventStarted, events[2].EventType)
	require.Equal(t, 1, events[2].Data["attempt"])
}

func TestLedger_ScanAfterEventIDExcludesEarlier(t *testing.T) {
	backend := memory.New()
	ctx := context.Background()
	require.NoError(t, backend.CreateRun(ctx, &store.Run{RunID: "run-1", Kind: "workflow", Name: "a", Status: store.RunPending}))
	l := ledger.New(backend)
	id1, _ := l.Append(ctx, "run-1", ledger.EventCreated, nil)
	_, _ = l.Append(ctx, "run-1", ledger.EventQueued, nil)

	events, err := l.Scan(ctx, "run-1", id1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ledger.EventQueued, events[0].EventType)
}
