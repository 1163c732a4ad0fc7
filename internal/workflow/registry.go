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
	"sort"
	"sync"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"
)

// Registry is the process-wide named-workflow-definition store, mirroring
// internal/registry's (kind, name) handler map but keyed on workflow name
// alone.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry returns an empty workflow Registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*Workflow)}
}

// Register validates wf's Workflow/Step invariants and, if valid, adds
// or replaces the definition for wf.Name.
func (r *Registry) Register(wf *Workflow) error {
	if err := Validate(wf); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name] = wf
	return nil
}

// Get looks up a workflow definition by name.
func (r *Registry) Get(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	if !ok {
		return nil, &kernelerrors.NotFoundError{Resource: "workflow", ID: name}
	}
	return wf, nil
}

// List returns every registered workflow name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
