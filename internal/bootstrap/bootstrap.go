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

// Package bootstrap wires a Config into a ready-to-use ops.Facade. Both
// conveyord and conveyorctl call Open rather than duplicating backend
// selection and component wiring.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/conveyorhq/conveyor/internal/anomaly"
	"github.com/conveyorhq/conveyor/internal/clock"
	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/dispatch"
	"github.com/conveyorhq/conveyor/internal/dlq"
	"github.com/conveyorhq/conveyor/internal/ledger"
	"github.com/conveyorhq/conveyor/internal/lease"
	"github.com/conveyorhq/conveyor/internal/ops"
	"github.com/conveyorhq/conveyor/internal/readiness"
	"github.com/conveyorhq/conveyor/internal/registry"
	"github.com/conveyorhq/conveyor/internal/runs"
	"github.com/conveyorhq/conveyor/internal/scheduler"
	"github.com/conveyorhq/conveyor/internal/store"
	"github.com/conveyorhq/conveyor/internal/store/memory"
	"github.com/conveyorhq/conveyor/internal/store/postgres"
	"github.com/conveyorhq/conveyor/internal/store/sqlite"
	"github.com/conveyorhq/conveyor/internal/workflow"
)

// Kernel bundles every wired component a host process needs: the
// operations façade for request handling, and the scheduler for hosts
// that also tick it.
type Kernel struct {
	Facade     *ops.Facade
	Scheduler  *scheduler.Scheduler
	Dispatcher *dispatch.Dispatcher
	Workflows  *workflow.Registry
	Backend    store.Backend

	close func()
}

// Close releases the underlying storage connection, if any.
func (k *Kernel) Close() {
	if k.close != nil {
		k.close()
	}
}

// Open builds a Kernel from cfg: selects and optionally migrates the
// storage backend, then wires the registry, ledger, dispatcher,
// scheduler, workflow runner, and operations façade over it.
func Open(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	backend, closeFn, err := openBackend(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open storage backend: %w", err)
	}

	if cfg.InitSchema {
		if err := backend.InitSchema(ctx); err != nil {
			closeFn()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	c := clock.NewSystem()
	reg := registry.New()
	runRepo := runs.New(backend)
	l := ledger.New(backend)
	d := dispatch.New(runRepo, l, reg, c, int64(cfg.MaxConcurrency))
	guard := lease.New(backend)
	sched := scheduler.New(backend, d, l, guard, c)
	runner := workflow.New(reg, d, l, guard, c)
	wfRegistry := workflow.NewRegistry()

	facade := &ops.Facade{
		Dispatcher:     d,
		Runner:         runner,
		Workflows:      wfRegistry,
		Schedules:      backend,
		DLQ:            dlq.New(backend, d, c),
		Anomalies:      anomaly.New(backend, c),
		Readiness:      readiness.New(backend, backend),
		Guard:          guard,
		Migrator:       backend,
		StoreEvents:    l,
		QualityResults: backend,
		Clock:          c,
		CalcDeps:       backend,
		ExpectedScheds: backend,
		ReadinessLog:   backend,
	}

	return &Kernel{
		Facade:     facade,
		Scheduler:  sched,
		Dispatcher: d,
		Workflows:  wfRegistry,
		Backend:    backend,
		close:      closeFn,
	}, nil
}

// openBackend selects a storage driver from databaseURL. Unreachable
// sqlite/postgres targets fall back to the embedded memory backend, per
// the kernel's "falls back to embedded if a server is unreachable" rule.
func openBackend(databaseURL string) (store.Backend, func(), error) {
	switch {
	case databaseURL == "" || databaseURL == "memory":
		return memory.New(), func() {}, nil
	case strings.HasPrefix(databaseURL, "postgresql://") || strings.HasPrefix(databaseURL, "postgres://"):
		st, err := postgres.Open(postgres.Config{DSN: databaseURL})
		if err != nil {
			return memory.New(), func() {}, nil
		}
		return st, func() { st.Close() }, nil
	default:
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		st, err := sqlite.Open(sqlite.Config{Path: path, WAL: true})
		if err != nil {
			return memory.New(), func() {}, nil
		}
		return st, func() { st.Close() }, nil
	}
}
