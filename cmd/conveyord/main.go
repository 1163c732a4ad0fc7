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

// Command conveyord is the kernel daemon: it wires the storage backend,
// dispatcher, scheduler, and workflow runner, then ticks the scheduler
// until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/conveyorhq/conveyor/internal/bootstrap"
	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to conveyor.yaml")
		databaseURL = flag.String("database-url", "", "Override database_url from config")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("conveyord %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *databaseURL != "" {
		cfg.DatabaseURL = *databaseURL
	}

	logger := log.New(&log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format), Output: os.Stderr, AddSource: cfg.Log.AddSource})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kernel, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to start kernel", log.Error(err))
		os.Exit(1)
	}
	defer kernel.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(cfg.SchedulerTickSeconds) * time.Second)
	defer ticker.Stop()

	logger.Info("conveyord started", log.String("database_url", redactURL(cfg.DatabaseURL)))

	for {
		select {
		case <-ticker.C:
			if err := kernel.Scheduler.Tick(ctx); err != nil {
				logger.Error("scheduler tick failed", log.Error(err))
			}
		case sig := <-sigCh:
			logger.Info("received shutdown signal", log.String("signal", sig.String()))
			cancel()
			kernel.Dispatcher.Drain()
			return
		case <-ctx.Done():
			return
		}
	}
}

func redactURL(databaseURL string) string {
	if idx := strings.Index(databaseURL, "@"); idx > 0 {
		return "***redacted***" + databaseURL[idx:]
	}
	return databaseURL
}
