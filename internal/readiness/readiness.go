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

// Package readiness composes the Watermark Store and Quality Gate into
// a single certify/is-ready surface for a data partition.
package readiness

import (
	"context"

	kernelerrors "github.com/conveyorhq/conveyor/pkg/errors"

	"github.com/conveyorhq/conveyor/internal/store"
)

// Status is the outcome of certifying one partition.
type Status struct {
	Watermark *store.Watermark
	Quality   []*store.QualityResult
	Ready     bool
}

// Checker composes a WatermarkStore and QualityStore.
type Checker struct {
	watermarks store.WatermarkStore
	quality    store.QualityStore
}

// New returns a Checker backed by the given stores.
func New(w store.WatermarkStore, q store.QualityStore) *Checker {
	return &Checker{watermarks: w, quality: q}
}

// Certify loads the current watermark for (domain, source, partition)
// and the quality results recorded under lastRunID (the most recent run
// known to have processed that partition), and reports overall
// readiness: a watermark must exist and carry a non-empty high_water,
// and none of the quality results (if any) may be FAIL.
func (c *Checker) Certify(ctx context.Context, domain, source, partitionKey, lastRunID string) (Status, error) {
	wm, err := c.watermarks.GetWatermark(ctx, domain, source, partitionKey)
	if err != nil {
		var nf *kernelerrors.NotFoundError
		if !kernelerrors.As(err, &nf) {
			return Status{}, err
		}
		wm = nil
	}

	var results []*store.QualityResult
	if lastRunID != "" {
		results, err = c.quality.ListQualityResults(ctx, lastRunID)
		if err != nil {
			return Status{}, err
		}
	}

	status := Status{Watermark: wm, Quality: results}
	status.Ready = isReady(wm, results)
	return status, nil
}

// IsReady is the boolean-only form of Certify.
func (c *Checker) IsReady(ctx context.Context, domain, source, partitionKey, lastRunID string) (bool, error) {
	status, err := c.Certify(ctx, domain, source, partitionKey, lastRunID)
	if err != nil {
		return false, err
	}
	return status.Ready, nil
}

func isReady(wm *store.Watermark, results []*store.QualityResult) bool {
	if wm == nil || wm.HighWater == "" {
		return false
	}
	for _, r := range results {
		if r.Status == "fail" {
			return false
		}
	}
	return true
}
