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

// Package workflow is the Workflow Runner and Workflow Context: executes a
// registered Workflow definition for one run, sequentially or as a
// parallel DAG, and carries the per-run mutable state handlers read from
// and write to.
package workflow

import (
	"context"
	"time"
)

// StepType is the kind of work a Step performs.
const (
	StepOperation = "operation"
	StepLambda    = "lambda"
	StepChoice    = "choice"
	StepWait      = "wait"
	StepMap       = "map"
)

// ErrorPolicy controls what happens when a step fails.
const (
	OnErrorStop     = "STOP"
	OnErrorContinue = "CONTINUE"
)

// ExecutionMode selects sequential-by-declaration-order or DAG scheduling.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// LambdaHandler is the signature for an in-process `lambda` step handler.
type LambdaHandler func(ctx context.Context, wfctx *Context, config map[string]any) StepResult

// Condition evaluates a boolean expression against the workflow context.
type Condition func(wfctx *Context) (bool, error)

// Step is one unit within a Workflow.
type Step struct {
	Name      string
	Type      string
	DependsOn []string
	OnError   string

	OperationName string
	Config        map[string]any

	Lambda LambdaHandler

	Condition Condition
	ThenStep  string
	ElseStep  string

	WaitDuration time.Duration

	MapItemsParam string
	MapStep       *Step
}

// ExecutionPolicy configures how a Workflow's steps are scheduled.
type ExecutionPolicy struct {
	Mode           string
	MaxConcurrency int
	OnFailure      string
}

// Workflow is a registered, named workflow definition.
type Workflow struct {
	Name            string
	Steps           []Step
	ExecutionPolicy ExecutionPolicy
	Defaults        map[string]any
}

// StepByName returns the step with the given name, if present.
func (w *Workflow) StepByName(name string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// StepResult is what a step's dispatch produces.
type StepResult struct {
	OK             bool
	Output         map[string]any
	ContextUpdates map[string]any
	Error          string
	ErrorCategory  string
	Retryable      bool
}

// Ok builds a successful StepResult.
func Ok(output map[string]any, contextUpdates map[string]any) StepResult {
	return StepResult{OK: true, Output: output, ContextUpdates: contextUpdates}
}

// Fail builds a failed StepResult.
func Fail(err string, category string, retryable bool) StepResult {
	return StepResult{OK: false, Error: err, ErrorCategory: category, Retryable: retryable}
}

// StepExecution records one step's outcome for WorkflowResult.step_executions.
type StepExecution struct {
	StepName   string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Output     map[string]any
	Error      string
}

// Result is the Workflow Runner's output for one run.
type Result struct {
	Status          string
	CompletedSteps  []string
	FailedSteps     []string
	SkippedSteps    []string
	ErrorStep       string
	Error           string
	StepExecutions  []StepExecution
	ContextSnapshot map[string]map[string]any
	StartedAt       time.Time
	FinishedAt      time.Time
}
