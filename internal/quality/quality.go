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

// Package quality is the Quality Gate (C15): a run-scoped collector of
// named checks, executed together and recorded against the run's id.
package quality

import (
	"context"

	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/schema"
	"github.com/conveyorhq/conveyor/internal/store"
)

const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// Result is one check's outcome.
type Result struct {
	Status   string
	Message  string
	Actual   string
	Expected string
}

// Check is a named, run-scoped quality check.
type Check struct {
	Name string
	Run  func(ctx context.Context) Result
}

// Gate collects checks for one run and records their results.
type Gate struct {
	store  store.QualityStore
	clock  clock.Source
	runID  string
	checks []Check
}

// New returns a Gate scoped to runID.
func New(s store.QualityStore, c clock.Source, runID string) *Gate {
	return &Gate{store: s, clock: c, runID: runID}
}

// Add registers a check to be executed by RunAll.
func (g *Gate) Add(check Check) {
	g.checks = append(g.checks, check)
}

// RunAll executes every registered check, in registration order, and
// records each result against the run's id. It returns a map from check
// name to status.
func (g *Gate) RunAll(ctx context.Context) (map[string]string, error) {
	statuses := make(map[string]string, len(g.checks))
	for _, check := range g.checks {
		result := check.Run(ctx)
		statuses[check.Name] = result.Status
		if err := g.store.RecordQualityResult(ctx, &store.QualityResult{
			RunID:      g.runID,
			CheckName:  check.Name,
			Status:     result.Status,
			Message:    result.Message,
			Actual:     result.Actual,
			Expected:   result.Expected,
			RecordedAt: g.clock.Now(),
		}); err != nil {
			return statuses, err
		}
	}
	return statuses, nil
}

// HasFailures reports whether any check recorded for this run has FAIL
// status.
func (g *Gate) HasFailures(ctx context.Context) (bool, error) {
	results, err := g.store.ListQualityResults(ctx, g.runID)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.Status == StatusFail {
			return true, nil
		}
	}
	return false, nil
}

// Results returns every recorded result for this run.
func (g *Gate) Results(ctx context.Context) ([]*store.QualityResult, error) {
	return g.store.ListQualityResults(ctx, g.runID)
}

// SchemaCheck builds a Check that validates data against schemaDef and
// fails the check on any schema violation.
func SchemaCheck(name string, schemaDef map[string]any, data any) Check {
	return Check{
		Name: name,
		Run: func(ctx context.Context) Result {
			validator := schema.NewValidator()
			if err := validator.Validate(schemaDef, data); err != nil {
				return Result{Status: StatusFail, Message: err.Error()}
			}
			return Result{Status: StatusPass}
		},
	}
}
