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

package anomaly_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/anomaly"
	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/store/memory"
)

func TestRecorder_Record_ReturnsID(t *testing.T) {
	r := anomaly.New(memory.New(), clock.NewSystem())
	id, err := r.Record(context.Background(), "ingest", "p1", anomaly.SeverityWarn, "schema_drift", "column added", nil, "run-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)
}

func TestRecorder_Resolve_RemovesFromUnresolvedList(t *testing.T) {
	r := anomaly.New(memory.New(), clock.NewSystem())
	ctx := context.Background()
	id, err := r.Record(ctx, "ingest", "p1", anomaly.SeverityError, "cat", "msg", nil, "run-1")
	require.NoError(t, err)

	unresolved, err := r.ListUnresolved(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	require.NoError(t, r.Resolve(ctx, id, "fixed upstream"))

	unresolved, err = r.ListUnresolved(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, unresolved)
}

func TestRecorder_HasRecentCritical(t *testing.T) {
	r := anomaly.New(memory.New(), clock.NewSystem())
	ctx := context.Background()

	has, err := r.HasRecentCritical(ctx, 24)
	require.NoError(t, err)
	require.False(t, has)

	_, err = r.Record(ctx, "ingest", "p1", anomaly.SeverityCritical, "cat", "msg", nil, "run-1")
	require.NoError(t, err)

	has, err = r.HasRecentCritical(ctx, 24)
	require.NoError(t, err)
	require.True(t, has)
}

func TestRecorder_CountBySeverity(t *testing.T) {
	r := anomaly.New(memory.New(), clock.NewSystem())
	ctx := context.Background()
	_, err := r.Record(ctx, "ingest", "p1", anomaly.SeverityWarn, "cat", "msg", nil, "run-1")
	require.NoError(t, err)
	_, err = r.Record(ctx, "ingest", "p2", anomaly.SeverityWarn, "cat", "msg", nil, "run-1")
	require.NoError(t, err)

	counts, err := r.CountBySeverity(ctx, 24)
	require.NoError(t, err)
	require.Equal(t, 2, counts[anomaly.SeverityWarn])
}
