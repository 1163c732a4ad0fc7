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

// Command conveyorctl is a thin, non-interactive CLI over the operations
// façade. Every subcommand opens its own kernel against the configured
// storage backend, issues one request, prints the JSON result, and exits.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/bootstrap"
	"github.com/conveyorhq/conveyor/internal/config"
	"github.com/conveyorhq/conveyor/internal/ops"
	"github.com/conveyorhq/conveyor/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "conveyorctl",
		Short: "Operate a conveyor kernel from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to conveyor.yaml")

	root.AddCommand(newRunCommand(), newWorkflowCommand(), newScheduleCommand(), newDLQCommand(), newDBCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openKernel() (*bootstrap.Kernel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(context.Background(), cfg)
}

func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseParams(pairs []string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		params[k] = v
	}
	return params
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "run", Short: "Manage runs"}

	var kind, name, lane, idempotencyKey string
	var params []string
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new run",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			res := k.Facade.SubmitRun(c.Context(), ops.SubmitRunRequest{
				Kind:           kind,
				Name:           name,
				Lane:           lane,
				IdempotencyKey: idempotencyKey,
				Params:         parseParams(params),
			})
			return printResult(res)
		},
	}
	submit.Flags().StringVar(&kind, "kind", "", "Run kind")
	submit.Flags().StringVar(&name, "name", "", "Run name")
	submit.Flags().StringVar(&lane, "lane", "", "Executor lane")
	submit.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")
	submit.Flags().StringArrayVar(&params, "param", nil, "key=value, repeatable")

	get := &cobra.Command{
		Use:   "get <run_id>",
		Short: "Fetch a run by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.GetRun(c.Context(), args[0]))
		},
	}

	var listKind, listName, listStatus string
	list := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			res := k.Facade.ListRuns(c.Context(), store.RunFilter{Kind: listKind, Name: listName, Status: listStatus})
			return printResult(res)
		},
	}
	list.Flags().StringVar(&listKind, "kind", "", "Filter by kind")
	list.Flags().StringVar(&listName, "name", "", "Filter by name")
	list.Flags().StringVar(&listStatus, "status", "", "Filter by status")

	var cancelReason string
	cancel := &cobra.Command{
		Use:   "cancel <run_id>",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.CancelRun(c.Context(), args[0], cancelReason))
		},
	}
	cancel.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")

	retry := &cobra.Command{
		Use:   "retry <run_id>",
		Short: "Resubmit a failed or dead-lettered run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.RetryRun(c.Context(), args[0]))
		},
	}

	cmd.AddCommand(submit, get, list, cancel, retry)
	return cmd
}

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "workflow", Short: "Inspect and run workflow definitions"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered workflow names",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.ListWorkflows(c.Context()))
		},
	}

	get := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.GetWorkflow(c.Context(), args[0]))
		},
	}

	var runID string
	var params []string
	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Execute a registered workflow synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			res := k.Facade.RunWorkflow(c.Context(), ops.RunWorkflowRequest{
				Name:   args[0],
				RunID:  runID,
				Params: parseParams(params),
			})
			return printResult(res)
		},
	}
	run.Flags().StringVar(&runID, "run-id", "", "Run id to execute under (must already exist)")
	run.Flags().StringArrayVar(&params, "param", nil, "key=value, repeatable")

	cmd.AddCommand(list, get, run)
	return cmd
}

func newScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "schedule", Short: "Manage schedules"}

	var targetKind, targetName, scheduleType, cronExpr string
	var intervalSeconds int64
	var enabled bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			res := k.Facade.CreateSchedule(c.Context(), &store.Schedule{
				TargetKind:      targetKind,
				TargetName:      targetName,
				ScheduleType:    scheduleType,
				CronExpression:  cronExpr,
				IntervalSeconds: intervalSeconds,
				Enabled:         enabled,
			})
			return printResult(res)
		},
	}
	create.Flags().StringVar(&targetKind, "target-kind", "task", "task|pipeline|workflow")
	create.Flags().StringVar(&targetName, "target-name", "", "Target name")
	create.Flags().StringVar(&scheduleType, "type", "interval", "cron|interval|date")
	create.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (type=cron)")
	create.Flags().Int64Var(&intervalSeconds, "interval-seconds", 0, "Interval in seconds (type=interval)")
	create.Flags().BoolVar(&enabled, "enabled", true, "Whether the schedule is active")

	var enabledOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.ListSchedules(c.Context(), enabledOnly))
		},
	}
	list.Flags().BoolVar(&enabledOnly, "enabled-only", false, "Only show enabled schedules")

	del := &cobra.Command{
		Use:   "delete <schedule_id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.DeleteSchedule(c.Context(), args[0]))
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func newDLQCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "dlq", Short: "Inspect and replay dead-lettered runs"}

	var workflowName string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.ListDeadLetters(c.Context(), workflowName, limit, offset))
		},
	}
	list.Flags().StringVar(&workflowName, "workflow", "", "Filter by workflow name")
	list.Flags().IntVar(&limit, "limit", 50, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	replay := &cobra.Command{
		Use:   "replay <id>",
		Short: "Resubmit a dead-lettered entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.ReplayDeadLetter(c.Context(), args[0]))
		},
	}

	cmd.AddCommand(list, replay)
	return cmd
}

func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Manage the storage backend"}

	init := &cobra.Command{
		Use:   "init",
		Short: "Create or migrate core tables",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.InitializeDatabase(c.Context()))
		},
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Check storage backend connectivity",
		RunE: func(c *cobra.Command, args []string) error {
			k, err := openKernel()
			if err != nil {
				return err
			}
			defer k.Close()
			return printResult(k.Facade.CheckDatabaseHealth(c.Context()))
		},
	}

	cmd.AddCommand(init, health)
	return cmd
}
