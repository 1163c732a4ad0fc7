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

	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/workflow"
)

func lambdaStep(name string, deps ...string) workflow.Step {
	return workflow.Step{
		Name:      name,
		Type:      workflow.StepLambda,
		DependsOn: deps,
		Lambda: func(ctx context.Context, wfctx *workflow.Context, config map[string]any) workflow.StepResult {
			return workflow.Ok(nil, nil)
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := workflow.NewRegistry()
	require.NoError(t, r.Register(&workflow.Workflow{Name: "daily_ingest", Steps: []workflow.Step{lambdaStep("a")}}))

	wf, err := r.Get("daily_ingest")
	require.NoError(t, err)
	require.Equal(t, "daily_ingest", wf.Name)
}

func TestRegistry_Get_UnknownFails(t *testing.T) {
	r := workflow.NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
}

func TestRegistry_List_SortedNames(t *testing.T) {
	r := workflow.NewRegistry()
	require.NoError(t, r.Register(&workflow.Workflow{Name: "b", Steps: []workflow.Step{lambdaStep("a")}}))
	require.NoError(t, r.Register(&workflow.Workflow{Name: "a", Steps: []workflow.Step{lambdaStep("a")}}))
	require.Equal(t, []string{"a", "b"}, r.List())
}

func TestRegistry_Register_ZeroStepsRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "empty"})
	require.Error(t, err)

	_, getErr := r.Get("empty")
	require.Error(t, getErr, "a rejected definition must not be registered")
}

func TestRegistry_Register_DuplicateStepNameRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "dup", Steps: []workflow.Step{lambdaStep("a"), lambdaStep("a")}})
	require.Error(t, err)
}

func TestRegistry_Register_UnknownDependencyRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "dangling", Steps: []workflow.Step{lambdaStep("a", "missing")}})
	require.Error(t, err)
}

func TestRegistry_Register_CycleRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "cyclic", Steps: []workflow.Step{
		lambdaStep("a", "b"),
		lambdaStep("b", "a"),
	}})
	require.Error(t, err)
}

func TestRegistry_Register_ChoiceMissingThenStepRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "bad_choice", Steps: []workflow.Step{
		{Name: "c", Type: workflow.StepChoice, Condition: func(wfctx *workflow.Context) (bool, error) { return true, nil }},
	}})
	require.Error(t, err)
}

func TestRegistry_Register_ChoiceUnknownElseStepRejected(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "bad_else", Steps: []workflow.Step{
		{Name: "c", Type: workflow.StepChoice, Condition: func(wfctx *workflow.Context) (bool, error) { return true, nil }, ThenStep: "a", ElseStep: "missing"},
		lambdaStep("a"),
	}})
	require.Error(t, err)
}

func TestRegistry_Register_ValidChoiceAccepted(t *testing.T) {
	r := workflow.NewRegistry()
	err := r.Register(&workflow.Workflow{Name: "good_choice", Steps: []workflow.Step{
		{Name: "c", Type: workflow.StepChoice, Condition: func(wfctx *workflow.Context) (bool, error) { return true, nil }, ThenStep: "a", ElseStep: "b"},
		lambdaStep("a"),
		lambdaStep("b"),
	}})
	require.NoError(t, err)
}
