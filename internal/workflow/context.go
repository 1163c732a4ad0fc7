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

import "sync"

// Context is the per-run mutable state a Workflow's steps read from and
// write to. Outputs are written by the runner only; handlers receive a
// snapshot, never the live map, so a parallel step cannot observe another
// step's in-flight write.
type Context struct {
	RunID         string
	WorkflowName  string
	Params        map[string]any
	ParentRunID   string
	CorrelationID string
	BatchID       string
	IsDryRun      bool

	mu      sync.RWMutex
	outputs map[string]map[string]any
}

// NewContext returns an empty Context seeded with params.
func NewContext(runID, workflowName string, params map[string]any) *Context {
	return &Context{
		RunID:        runID,
		WorkflowName: workflowName,
		Params:       params,
		outputs:      make(map[string]map[string]any),
	}
}

// Output returns the output map a named step produced, if it has run.
func (c *Context) Output(stepName string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[stepName]
	return out, ok
}

// setOutput commits a step's output. Parallel steps writing the same
// context_updates key is last-writer-wins — handlers should not rely on
// parallel merges.
func (c *Context) setOutput(stepName string, output map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[stepName] = output
}

// mergeParams applies context_updates from a successful step into Params.
func (c *Context) mergeParams(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Params == nil {
		c.Params = make(map[string]any)
	}
	for k, v := range updates {
		c.Params[k] = v
	}
}

// Snapshot returns a deep-copy-safe view of all step outputs, suitable for
// building a per-step expression context or WorkflowResult.context_snapshot.
func (c *Context) Snapshot() map[string]map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]map[string]any, len(c.outputs))
	for k, v := range c.outputs {
		cp := make(map[string]any, len(v))
		for kk, vv := range v {
			cp[kk] = vv
		}
		out[k] = cp
	}
	return out
}

// paramsSnapshot returns a shallow copy of Params for condition/template
// evaluation, avoiding a data race with a concurrent mergeParams call.
func (c *Context) paramsSnapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.Params))
	for k, v := range c.Params {
		out[k] = v
	}
	return out
}

// ExprContext builds the evaluation context expected by
// internal/condition: inputs (params) and steps (committed outputs).
func (c *Context) ExprContext() map[string]any {
	steps := make(map[string]any)
	for k, v := range c.Snapshot() {
		steps[k] = v
	}
	return map[string]any{
		"inputs": c.paramsSnapshot(),
		"steps":  steps,
	}
}
