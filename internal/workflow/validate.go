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
	"fmt"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"
)

// Validate enforces a workflow's structural invariants: at least one
// step, unique step names, depends_on edges that reference existing
// steps, choice branches that target existing steps, and a cycle-free
// dependency graph. Register calls this before admitting a definition so
// a malformed or cyclic workflow can never reach runDAG's ready-set loop,
// which would otherwise hang waiting on an indegree that never reaches
// zero.
func Validate(wf *Workflow) error {
	if len(wf.Steps) == 0 {
		return &kernelerrors.ValidationError{Field: "steps", Message: fmt.Sprintf("workflow %q has no steps", wf.Name)}
	}

	byName := make(map[string]*Step, len(wf.Steps))
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if _, dup := byName[s.Name]; dup {
			return &kernelerrors.ValidationError{Field: "steps", Message: fmt.Sprintf("duplicate step name %q in workflow %q", s.Name, wf.Name)}
		}
		byName[s.Name] = s
	}

	for i := range wf.Steps {
		s := &wf.Steps[i]
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return &kernelerrors.ValidationError{Field: "depends_on", Message: fmt.Sprintf("step %q depends on unknown step %q", s.Name, dep)}
			}
		}
		if s.Type != StepChoice {
			continue
		}
		if s.ThenStep == "" {
			return &kernelerrors.ValidationError{Field: "then_step", Message: fmt.Sprintf("choice step %q has no then_step", s.Name)}
		}
		if _, ok := byName[s.ThenStep]; !ok {
			return &kernelerrors.ValidationError{Field: "then_step", Message: fmt.Sprintf("choice step %q then_step %q does not exist", s.Name, s.ThenStep)}
		}
		if s.ElseStep != "" {
			if _, ok := byName[s.ElseStep]; !ok {
				return &kernelerrors.ValidationError{Field: "else_step", Message: fmt.Sprintf("choice step %q else_step %q does not exist", s.Name, s.ElseStep)}
			}
		}
	}

	if cycle := findCycle(wf); cycle != "" {
		return &kernelerrors.ValidationError{Field: "depends_on", Message: fmt.Sprintf("dependency cycle detected at step %q in workflow %q", cycle, wf.Name)}
	}

	return nil
}

// findCycle runs Kahn's algorithm over the depends_on edges and returns
// the name of a step whose indegree never resolves to zero if a cycle
// exists, or "" if the graph is acyclic.
func findCycle(wf *Workflow) string {
	indegree := make(map[string]int, len(wf.Steps))
	dependents := make(map[string][]string, len(wf.Steps))
	for i := range wf.Steps {
		s := &wf.Steps[i]
		indegree[s.Name] += len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	var queue []string
	for _, s := range wf.Steps {
		if indegree[s.Name] == 0 {
			queue = append(queue, s.Name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited == len(wf.Steps) {
		return ""
	}
	for _, s := range wf.Steps {
		if indegree[s.Name] > 0 {
			return s.Name
		}
	}
	return ""
}
