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

import "context"

// dagCompletion is what a launched step goroutine sends back once done.
type dagCompletion struct {
	step   string
	exec   StepExecution
	result StepResult
	target string // choice branch target, "" for non-choice steps
}

// runDAG executes wf's steps as a parallel DAG following the ready-set
// algorithm: steps with satisfied dependencies launch up to
// max_concurrency at a time; a choice step's untaken branch is pruned —
// marked skipped and treated as completed for indegree purposes — rather
// than executed, but only while every one of a node's dependencies is
// itself pruned; a node reachable through an already-taken branch too is
// never pruned.
func (r *Runner) runDAG(ctx context.Context, wf *Workflow, wfctx *Context, opts Options, res *Result) error {
	indegree := make(map[string]int, len(wf.Steps))
	dependents := make(map[string][]string, len(wf.Steps))
	byName := make(map[string]*Step, len(wf.Steps))
	for i := range wf.Steps {
		s := &wf.Steps[i]
		byName[s.Name] = s
		indegree[s.Name] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	maxConcurrency := wf.ExecutionPolicy.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	skipped := make(map[string]bool)
	done := make(map[string]bool)
	var ready []string
	for _, s := range wf.Steps {
		if indegree[s.Name] == 0 {
			ready = append(ready, s.Name)
		}
	}

	running := 0
	completions := make(chan dagCompletion, len(wf.Steps))
	failedUnderStop := false

	launch := func(name string) {
		running++
		step := byName[name]
		go func() {
			exec, result, target := r.runStep(ctx, step, wfctx, opts)
			completions <- dagCompletion{step: name, exec: exec, result: result, target: target}
		}()
	}

	// markSkip recursively marks name and any dependent whose every
	// dependency is already skipped, propagating indegree resolution
	// without launching the step.
	var markSkip func(name string)
	markSkip = func(name string) {
		if skipped[name] || done[name] {
			return
		}
		skipped[name] = true
		done[name] = true
		res.SkippedSteps = append(res.SkippedSteps, name)
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] != 0 || done[dep] {
				continue
			}
			if allDepsSkipped(byName[dep], skipped) {
				markSkip(dep)
			} else {
				ready = append(ready, dep)
			}
		}
	}

	for len(ready) > 0 || running > 0 {
		if failedUnderStop {
			break
		}
		for len(ready) > 0 && running < maxConcurrency {
			name := ready[0]
			ready = ready[1:]
			if done[name] {
				continue
			}
			launch(name)
		}
		if running == 0 {
			break
		}

		c := <-completions
		running--
		done[c.step] = true
		res.StepExecutions = append(res.StepExecutions, c.exec)
		step := byName[c.step]

		if step.Type == StepChoice {
			taken := c.target
			untaken := step.ElseStep
			if taken == step.ElseStep {
				untaken = step.ThenStep
			}
			for _, dep := range dependents[c.step] {
				indegree[dep]--
				if indegree[dep] != 0 || done[dep] {
					continue
				}
				switch dep {
				case untaken:
					markSkip(dep)
				default:
					ready = append(ready, dep)
				}
			}
			continue
		}

		if c.result.OK {
			res.CompletedSteps = append(res.CompletedSteps, c.step)
		} else {
			res.FailedSteps = append(res.FailedSteps, c.step)
			if res.ErrorStep == "" {
				res.ErrorStep = c.step
				res.Error = c.result.Error
			}
			if step.OnError != OnErrorContinue && wf.ExecutionPolicy.OnFailure != OnErrorContinue {
				failedUnderStop = true
				break
			}
		}

		for _, dep := range dependents[c.step] {
			indegree[dep]--
			if indegree[dep] != 0 || done[dep] {
				continue
			}
			if allDepsSkipped(byName[dep], skipped) {
				markSkip(dep)
			} else {
				ready = append(ready, dep)
			}
		}
	}

	// Steps never launched because a STOP failure short-circuited the loop
	// are intentionally left out of every list (completed/failed/skipped):
	// they were neither executed nor explicitly pruned by a choice branch.
	return nil
}

// allDepsSkipped reports whether every dependency of step is in skipped.
// A step with no dependencies is never considered all-skipped (it would
// otherwise vacuously prune steps with no predecessors at all).
func allDepsSkipped(step *Step, skipped map[string]bool) bool {
	if step == nil || len(step.DependsOn) == 0 {
		return false
	}
	for _, d := range step.DependsOn {
		if !skipped[d] {
			return false
		}
	}
	return true
}
