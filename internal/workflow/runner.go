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

package workflow

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/condition"
	"github.com/conveyorhq/conveyor/internal/dispatch"
	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/registry"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
)

// Options configures one Run invocation.
type Options struct {
	StartFrom string
	DryRun    bool

	// LockKey, if non-empty, is acquired through the Concurrency Guard
	// before the first step. A refused lock transitions the run to
	// cancelled with a lock_unavailable reason rather than running.
	LockKey   string
	LockOwner string
	LockTTL   time.Duration

	// PollInterval bounds how often the runner polls a child operation
	// run's status and how responsively a wait step checks cancellation.
	// Defaults to 200ms; callers should keep it at or below 1s.
	PollInterval time.Duration
}

// Runner is the Workflow Runner (C9): executes a registered Workflow for
// one run, sequentially or as a parallel DAG.
type Runner struct {
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	ledger     *ledger.Ledger
	guard      *lease.Guard
	clock      clock.Source
	evaluator  *condition.Evaluator
}

// New returns a Runner wired to its collaborators. dispatcher and guard
// may be nil for workflows that use no operation steps or locking.
func New(reg *registry.Registry, dispatcher *dispatch.Dispatcher, l *ledger.Ledger, guard *lease.Guard, c clock.Source) *Runner {
	return &Runner{registry: reg, dispatcher: dispatcher, ledger: l, guard: guard, clock: c, evaluator: condition.New()}
}

// Run executes wf for one run, returning its WorkflowResult.
func (r *Runner) Run(ctx context.Context, wf *Workflow, wfctx *Context, opts Options) (*Result, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	wfctx.IsDryRun = opts.DryRun

	res := &Result{StartedAt: r.clock.Now()}

	if opts.LockKey != "" {
		acquired, err := r.guard.Acquire(ctx, opts.LockKey, opts.LockOwner, opts.LockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			res.Status = StatusCancelled
			res.Error = "lock_unavailable"
			res.FinishedAt = r.clock.Now()
			return res, nil
		}
		defer func() { _ = r.guard.Release(context.Background(), opts.LockKey, opts.LockOwner) }()
	}

	var err error
	if wf.ExecutionPolicy.Mode == ModeParallel {
		err = r.runDAG(ctx, wf, wfctx, opts, res)
	} else {
		err = r.runSequential(ctx, wf, wfctx, opts, res)
	}
	res.FinishedAt = r.clock.Now()
	res.ContextSnapshot = wfctx.Snapshot()
	if err != nil {
		return res, err
	}

	halted := false
	for _, name := range res.FailedSteps {
		if s, ok := wf.StepByName(name); ok && s.OnError != OnErrorContinue && wf.ExecutionPolicy.OnFailure != OnErrorContinue {
			halted = true
		}
	}
	switch {
	case halted:
		res.Status = StatusFailed
	case len(res.FailedSteps) > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusCompleted
	}
	return res, nil
}

// runSequential executes steps in list order. Choice steps skip forward to
// their target; unreached steps in between are marked skipped.
func (r *Runner) runSequential(ctx context.Context, wf *Workflow, wfctx *Context, opts Options, res *Result) error {
	skipTo := ""
	started := opts.StartFrom == ""

	for i := 0; i < len(wf.Steps); i++ {
		step := &wf.Steps[i]
		if !started {
			if step.Name == opts.StartFrom {
				started = true
			} else {
				continue
			}
		}
		if skipTo != "" {
			if step.Name != skipTo {
				res.SkippedSteps = append(res.SkippedSteps, step.Name)
				continue
			}
			skipTo = ""
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		exec, result, target := r.runStep(ctx, step, wfctx, opts)
		res.StepExecutions = append(res.StepExecutions, exec)

		if step.Type == StepChoice {
			if target != "" && target != stepAfter(wf, step.Name) {
				skipTo = target
			}
			continue
		}

		if result.OK {
			res.CompletedSteps = append(res.CompletedSteps, step.Name)
			continue
		}

		res.FailedSteps = append(res.FailedSteps, step.Name)
		if res.ErrorStep == "" {
			res.ErrorStep = step.Name
			res.Error = result.Error
		}
		if step.OnError != OnErrorContinue {
			return nil
		}
	}
	return nil
}

// stepAfter returns the name of the step immediately following named, or
// "" if named is last or not found — used to detect a choice step whose
// taken branch is simply the next step in sequence (no skip needed).
func stepAfter(wf *Workflow, name string) string {
	for i, s := range wf.Steps {
		if s.Name == name && i+1 < len(wf.Steps) {
			return wf.Steps[i+1].Name
		}
	}
	return ""
}

// runStep dispatches one step by type and returns its execution record,
// StepResult, and — for choice steps only — the branch target step name.
func (r *Runner) runStep(ctx context.Context, step *Step, wfctx *Context, opts Options) (StepExecution, StepResult, string) {
	start := r.clock.Now()
	exec := StepExecution{StepName: step.Name, StartedAt: start}

	if _, err := r.ledger.Append(ctx, wfctx.RunID, ledger.EventStepStarted, map[string]any{"step": step.Name, "type": step.Type}); err != nil {
		exec.Status = "failed"
		exec.Error = err.Error()
		exec.FinishedAt = r.clock.Now()
		return exec, Fail(err.Error(), "STORAGE", true), ""
	}

	var result StepResult
	var target string

	switch step.Type {
	case StepChoice:
		ok, err := step.Condition(wfctx)
		if err != nil {
			result = Fail(err.Error(), "CONDITION_ERROR", false)
		} else {
			result = Ok(nil, nil)
			if ok {
				target = step.ThenStep
			} else {
				target = step.ElseStep
			}
		}
	case StepWait:
		result = r.runWait(ctx, step, opts)
	case StepLambda:
		result = r.runLambda(ctx, step, wfctx, opts)
	case StepOperation:
		result = r.runOperation(ctx, step, wfctx, opts)
	case StepMap:
		result = r.runMap(ctx, step, wfctx, opts)
	default:
		result = Fail(fmt.Sprintf("unknown step type %q", step.Type), "VALIDATION", false)
	}

	exec.FinishedAt = r.clock.Now()
	if result.OK {
		exec.Status = "completed"
		exec.Output = result.Output
		wfctx.setOutput(step.Name, result.Output)
		wfctx.mergeParams(result.ContextUpdates)
		_, _ = r.ledger.Append(ctx, wfctx.RunID, ledger.EventStepCompleted, map[string]any{"step": step.Name, "duration_ms": exec.FinishedAt.Sub(start).Milliseconds()})
	} else {
		exec.Status = "failed"
		exec.Error = result.Error
		_, _ = r.ledger.Append(ctx, wfctx.RunID, ledger.EventStepFailed, map[string]any{"step": step.Name, "error": result.Error, "category": result.ErrorCategory, "retryable": result.Retryable})
	}
	return exec, result, target
}

func (r *Runner) runWait(ctx context.Context, step *Step, opts Options) StepResult {
	if opts.DryRun {
		return Ok(nil, nil)
	}
	deadline := time.NewTimer(step.WaitDuration)
	defer deadline.Stop()
	poll := time.NewTicker(opts.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-deadline.C:
			return Ok(nil, nil)
		case <-ctx.Done():
			return Fail("cancelled", "CANCELLED", false)
		case <-poll.C:
		}
	}
}

func (r *Runner) runLambda(ctx context.Context, step *Step, wfctx *Context, opts Options) StepResult {
	if opts.DryRun {
		return Ok(map[string]any{}, nil)
	}
	if step.Lambda == nil {
		return Fail("lambda step has no handler", "VALIDATION", false)
	}
	return step.Lambda(ctx, wfctx, step.Config)
}

func (r *Runner) runOperation(ctx context.Context, step *Step, wfctx *Context, opts Options) StepResult {
	if opts.DryRun {
		return Ok(map[string]any{}, nil)
	}
	if r.dispatcher == nil {
		return Fail("operation step requires a dispatcher", "VALIDATION", false)
	}
	runID, err := r.dispatcher.Submit(ctx, dispatch.WorkSpec{
		Kind:          "operation",
		Name:          step.OperationName,
		Params:        step.Config,
		ParentRunID:   wfctx.RunID,
		CorrelationID: wfctx.CorrelationID,
		BatchID:       wfctx.BatchID,
	})
	if err != nil {
		return Fail(err.Error(), "DISPATCH_ERROR", true)
	}

	poll := time.NewTicker(opts.PollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = r.dispatcher.Cancel(context.Background(), runID, "parent workflow cancelled")
			return Fail("cancelled", "CANCELLED", false)
		case <-poll.C:
			run, err := r.dispatcher.Get(ctx, runID)
			if err != nil {
				return Fail(err.Error(), "STORAGE", true)
			}
			switch run.Status {
			case "completed":
				return Ok(run.Result, nil)
			case "failed", "dead_lettered":
				return Fail(run.Error, run.ErrorCategory, true)
			case "cancelled":
				return Fail("child run cancelled", "CANCELLED", false)
			}
		}
	}
}

func (r *Runner) runMap(ctx context.Context, step *Step, wfctx *Context, opts Options) StepResult {
	raw, _ := wfctx.Output(step.MapItemsParam)
	items, _ := raw["items"].([]any)
	if items == nil {
		if v, ok := wfctx.paramsSnapshot()[step.MapItemsParam]; ok {
			items, _ = v.([]any)
		}
	}
	if opts.DryRun || step.MapStep == nil {
		return Ok(map[string]any{"count": len(items)}, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	outputs := make([]map[string]any, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			child := *step.MapStep
			if child.Config == nil {
				child.Config = map[string]any{}
			}
			child.Config["item"] = item
			childCtx := NewContext(fmt.Sprintf("%s[%d]", wfctx.RunID, i), wfctx.WorkflowName, wfctx.paramsSnapshot())
			_, result, _ := r.runStep(gctx, &child, childCtx, opts)
			if !result.OK {
				return fmt.Errorf("map item %d: %s", i, result.Error)
			}
			outputs[i] = result.Output
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fail(err.Error(), "MAP_FAILURE", true)
	}
	return Ok(map[string]any{"results": outputs}, nil)
}
