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

package quality_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/quality"
	"github.com/conveyorhq/conveyor/internal/store/memory"
)

func TestGate_RunAll_RecordsEachCheck(t *testing.T) {
	backend := memory.New()
	g := quality.New(backend, clock.NewSystem(), "run-1")
	g.Add(quality.Check{Name: "row_count", Run: func(ctx context.Context) quality.Result {
		return quality.Result{Status: quality.StatusPass, Actual: "100", Expected: "100"}
	}})
	g.Add(quality.Check{Name: "null_rate", Run: func(ctx context.Context) quality.Result {
		return quality.Result{Status: quality.StatusFail, Message: "too many nulls"}
	}})

	statuses, err := g.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, quality.StatusPass, statuses["row_count"])
	require.Equal(t, quality.StatusFail, statuses["null_rate"])
}

func TestGate_HasFailures_TrueWhenAnyCheckFails(t *testing.T) {
	backend := memory.New()
	g := quality.New(backend, clock.NewSystem(), "run-1")
	g.Add(quality.Check{Name: "a", Run: func(ctx context.Context) quality.Result {
		return quality.Result{Status: quality.StatusPass}
	}})
	g.Add(quality.Check{Name: "b", Run: func(ctx context.Context) quality.Result {
		return quality.Result{Status: quality.StatusFail}
	}})
	_, err := g.RunAll(context.Background())
	require.NoError(t, err)

	has, err := g.HasFailures(context.Background())
	require.NoError(t, err)
	require.True(t, has)
}

func TestSchemaCheck_FailsOnTypeMismatch(t *testing.T) {
	backend := memory.New()
	g := quality.New(backend, clock.NewSystem(), "run-1")
	schemaDef := map[string]any{"type": "object"}
	g.Add(quality.SchemaCheck("output_shape", schemaDef, "not an object"))

	statuses, err := g.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, quality.StatusFail, statuses["output_shape"])
}

func TestSchemaCheck_PassesOnMatch(t *testing.T) {
	backend := memory.New()
	g := quality.New(backend, clock.NewSystem(), "run-1")
	schemaDef := map[string]any{"type": "object"}
	g.Add(quality.SchemaCheck("output_shape", schemaDef, map[string]any{"a": 1}))

	statuses, err := g.RunAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, quality.StatusPass, statuses["output_shape"])
}

func TestGate_HasFailures_FalseWhenNoneFail(t *testing.T) {
	backend := memory.New()
	g := quality.New(backend, clock.NewSystem(), "run-1")
	g.Add(quality.Check{Name: "a", Run: func(ctx context.Context) quality.Result {
		return quality.Result{Status: quality.StatusWarn}
	}})
	_, err := g.RunAll(context.Background())
	require.NoError(t, err)

	has, err := g.HasFailures(context.Background())
	require.NoError(t, err)
	require.False(t, has)
}
