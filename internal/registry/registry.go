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

// Package registry is the handler registry: a (kind, name) lookup for the
// callables the Executor and Workflow Runner dispatch work to.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler is the callable a registered (kind, name) pair resolves to. ctx
// carries cancellation; params is the caller-supplied argument map; the
// return map becomes the run's result on success.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Metadata describes a registered handler for discovery and validation
// (e.g. rejecting a WorkSpec or operation step that names an unknown
// handler before a run is ever created).
type Metadata struct {
	Kind        string
	Name        string
	Description string
}

type entry struct {
	meta    Metadata
	handler Handler
}

// Registry is a concurrency-safe (kind, name) → Handler map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func key(kind, name string) string {
	return kind + ":" + name
}

// Register adds a handler under (kind, name). Registering over an
// existing (kind, name) replaces it; callers that want to forbid
// redefinition should check Lookup first.
func (r *Registry) Register(meta Metadata, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key(meta.Kind, meta.Name)] = entry{meta: meta, handler: h}
}

// Lookup resolves (kind, name) to its handler and metadata.
func (r *Registry) Lookup(kind, name string) (Handler, Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key(kind, name)]
	if !ok {
		return nil, Metadata{}, false
	}
	return e.handler, e.meta, true
}

// MustLookup is Lookup but returns an error instead of a bool, for call
// sites that want to propagate "unknown handler" as a regular error value.
func (r *Registry) MustLookup(kind, name string) (Handler, error) {
	h, _, ok := r.Lookup(kind, name)
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s:%s", kind, name)
	}
	return h, nil
}

// List returns metadata for every registered handler, sorted by
// kind then name.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
