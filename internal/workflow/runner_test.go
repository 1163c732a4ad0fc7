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

package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/registry"
	"github.com/conveyorhq/conveyor/internal/store"
	"github.com/conveyorhq/conveyor/internal/store/memory"
	"github.com/conveyorhq/conveyor/internal/workflow"
)

func newRunner(t *testing.T) (*workflow.Runner, *ledger.Ledger) {
	t.Helper()
	backend := memory.New()
	require.NoError(t, backend.CreateRun(context.Background(), &store.Run{RunID: "run-1", Kind: "workflow", Name: "wf", Status: store.RunPending}))
	l := ledger.New(backend)
	guard := lease.New(backend)
	return workflow.New(registry.New(), nil, l, guard, clock.NewSystem()), l
}

func echoLambda(v any) workflow.LambdaHandler {
	return func(ctx context.Context, wfctx *workflow.Context, config map[string]any) workflow.StepResult {
		return workflow.Ok(map[string]any{"value": v}, nil)
	}
}

func TestRunner_Sequential_RunsInOrder(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name: "wf",
		Steps: []workflow.Step{
			{Name: "a", Type: workflow.StepLambda, Lambda: echoLambda(1)},
			{Name: "b", Type: workflow.StepLambda, Lambda: echoLambda(2)},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, res.Status)
	require.Equal(t, []string{"a", "b"}, res.CompletedSteps)
}

func TestRunner_Sequential_StopsOnFailureByDefault(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name: "wf",
		Steps: []workflow.Step{
			{Name: "a", Type: workflow.StepLambda, Lambda: func(ctx context.Context, wfctx *workflow.Context, config map[string]any) workflow.StepResult {
				return workflow.Fail("boom", "TEST", false)
			}},
			{Name: "b", Type: workflow.StepLambda, Lambda: echoLambda(2)},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusFailed, res.Status)
	require.Equal(t, []string{"a"}, res.FailedSteps)
	require.Empty(t, res.CompletedSteps)
}

func TestRunner_Sequential_ContinueOnErrorKeepsGoing(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name: "wf",
		Steps: []workflow.Step{
			{Name: "a", Type: workflow.StepLambda, OnError: workflow.OnErrorContinue, Lambda: func(ctx context.Context, wfctx *workflow.Context, config map[string]any) workflow.StepResult {
				return workflow.Fail("boom", "TEST", false)
			}},
			{Name: "b", Type: workflow.StepLambda, Lambda: echoLambda(2)},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPartial, res.Status)
	require.Equal(t, []string{"b"}, res.CompletedSteps)
	require.Equal(t, []string{"a"}, res.FailedSteps)
}

func TestRunner_Sequential_ChoiceSkipsUnreachedSteps(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name: "wf",
		Steps: []workflow.Step{
			{Name: "c", Type: workflow.StepChoice, Condition: func(wfctx *workflow.Context) (bool, error) { return true, nil }, ThenStep: "target", ElseStep: "other"},
			{Name: "other", Type: workflow.StepLambda, Lambda: echoLambda("other")},
			{Name: "target", Type: workflow.StepLambda, Lambda: echoLambda("target")},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Contains(t, res.CompletedSteps, "target")
	require.Contains(t, res.SkippedSteps, "other")
}

func TestRunner_DryRun_SkipsHandlersButEvaluatesChoices(t *testing.T) {
	r, _ := newRunner(t)
	called := false
	wf := &workflow.Workflow{
		Name: "wf",
		Steps: []workflow.Step{
			{Name: "a", Type: workflow.StepLambda, Lambda: func(ctx context.Context, wfctx *workflow.Context, config map[string]any) workflow.StepResult {
				called = true
				return workflow.Ok(nil, nil)
			}},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{DryRun: true})
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, workflow.StatusCompleted, res.Status)
}

func TestRunner_DAG_RunsReadySetInParallel(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name:            "wf",
		ExecutionPolicy: workflow.ExecutionPolicy{Mode: workflow.ModeParallel, MaxConcurrency: 2},
		Steps: []workflow.Step{
			{Name: "a", Type: workflow.StepLambda, Lambda: echoLambda(1)},
			{Name: "b", Type: workflow.StepLambda, Lambda: echoLambda(2)},
			{Name: "c", Type: workflow.StepLambda, DependsOn: []string{"a", "b"}, Lambda: echoLambda(3)},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCompleted, res.Status)
	require.ElementsMatch(t, []string{"a", "b", "c"}, res.CompletedSteps)
}

func TestRunner_DAG_ChoicePrunesExclusiveBranch(t *testing.T) {
	r, _ := newRunner(t)
	wf := &workflow.Workflow{
		Name:            "wf",
		ExecutionPolicy: workflow.ExecutionPolicy{Mode: workflow.ModeParallel, MaxConcurrency: 2},
		Steps: []workflow.Step{
			{Name: "choice", Type: workflow.StepChoice, Condition: func(wfctx *workflow.Context) (bool, error) { return true, nil }, ThenStep: "then_only", ElseStep: "else_only"},
			{Name: "then_only", Type: workflow.StepLambda, DependsOn: []string{"choice"}, Lambda: echoLambda("then")},
			{Name: "else_only", Type: workflow.StepLambda, DependsOn: []string{"choice"}, Lambda: echoLambda("else")},
			{Name: "joined", Type: workflow.StepLambda, DependsOn: []string{"then_only"}, Lambda: echoLambda("joined")},
		},
	}
	wfctx := workflow.NewContext("run-1", "wf", nil)
	res, err := r.Run(context.Background(), wf, wfctx, workflow.Options{})
	require.NoError(t, err)
	require.Contains(t, res.CompletedSteps, "then_only")
	require.Contains(t, res.CompletedSteps, "joined")
	require.Contains(t, res.SkippedSteps, "else_only")
	require.NotContains(t, res.CompletedSteps, "else_only")
}

func TestRunner_LockRefusedCancelsRun(t *testing.T) {
	backend := memory.New()
	require.NoError(t, backend.CreateRun(context.Background(), &store.Run{RunID: "run-1", Kind: "workflow", Name: "wf", Status: store.RunPending}))
	guard := lease.New(backend)
	r := workflow.New(registry.New(), nil, ledger.New(backend), guard, clock.NewSystem())
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, "workflow:wf:p1", "run-0", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	wf := &workflow.Workflow{Name: "wf", Steps: []workflow.Step{{Name: "a", Type: workflow.StepLambda, Lambda: echoLambda(1)}}}
	wfctx := workflow.NewContext("run-1", "wf", nil)

	res, err := r.Run(ctx, wf, wfctx, workflow.Options{LockKey: "workflow:wf:p1", LockOwner: "run-1", LockTTL: time.Minute})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusCancelled, res.Status)
}
