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

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/conduit/internal/metrics"
	"github.com/tombee/conduit/internal/tracing"
	"github.com/tombee/conduit/pkg/activities"
	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/events"
	"github.com/tombee/conduit/pkg/instance"
	"github.com/tombee/conduit/pkg/registry"
	"github.com/tombee/conduit/pkg/runtime"
	"github.com/tombee/conduit/pkg/store"
	"github.com/tombee/conduit/pkg/store/sqlite"
)

// environment bundles the wired collaborators a command needs.
type environment struct {
	runner   *runtime.Runner
	store    *sqlite.Store
	registry *registry.Registry
	shutdown func(context.Context)
}

// setup wires the runner, store, registry and optional tracing.
func setup(opts *options) (*environment, error) {
	st, err := sqlite.New(sqlite.Config{Path: opts.storePath, WAL: true})
	if err != nil {
		return nil, err
	}

	activityRegistry := runtime.NewActivityRegistry()
	activities.Register(activityRegistry)

	mediator := events.NewMediator()

	runner := runtime.NewRunner(activityRegistry, mediator).
		WithLogger(opts.logger).
		WithContextManager(sqlite.NewContextManager(st)).
		WithMetrics(metrics.NewRecorder(prometheus.NewRegistry()))

	env := &environment{
		runner:   runner,
		store:    st,
		shutdown: func(context.Context) {},
	}

	if opts.workflowsDir != "" {
		provider, err := registry.NewFSProvider(opts.workflowsDir, opts.logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		reg := registry.NewRegistry(provider).
			WithLogger(opts.logger).
			WithMediator(mediator).
			WithInstanceCounter(st)
		runner.WithResolver(reg)
		env.registry = reg
	}

	if opts.trace {
		provider, err := tracing.NewProvider("conduit", opts.version, os.Stderr)
		if err != nil {
			st.Close()
			return nil, err
		}
		runner.WithTracer(provider.Tracer(tracing.TracerName))
		env.shutdown = func(ctx context.Context) {
			_ = provider.Shutdown(ctx)
		}
	}

	return env, nil
}

func (e *environment) close(ctx context.Context) {
	e.shutdown(ctx)
	_ = e.store.Close()
}

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.ParseFile(args[0])
			if err != nil {
				return err
			}
			if _, err := blueprint.NewMaterializer(nil).Materialize(def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d activities, %d connections)\n",
				def.ID, len(def.Activities), len(def.Connections))
			return nil
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	var (
		activityID    string
		input         string
		correlationID string
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a workflow definition from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.ParseFile(args[0])
			if err != nil {
				return err
			}
			bp, err := blueprint.NewMaterializer(nil).Materialize(def)
			if err != nil {
				return err
			}

			env, err := setup(opts)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			var runOpts []runtime.RunOption
			if activityID != "" {
				runOpts = append(runOpts, runtime.WithActivityID(activityID))
			}
			if input != "" {
				runOpts = append(runOpts, runtime.WithInput(input))
			}
			if correlationID != "" {
				runOpts = append(runOpts, runtime.WithCorrelationID(correlationID))
			}

			inst, err := env.runner.RunBlueprint(cmd.Context(), bp, runOpts...)
			if err != nil {
				return err
			}
			if err := env.store.Create(cmd.Context(), inst); err != nil {
				return err
			}

			return printInstance(cmd, inst)
		},
	}

	cmd.Flags().StringVar(&activityID, "activity", "", "start at a specific activity id")
	cmd.Flags().StringVar(&input, "input", "", "input value for the start activity")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "business correlation key for the instance")

	return cmd
}

func newResumeCommand(opts *options) *cobra.Command {
	var (
		activityID string
		input      string
	)

	cmd := &cobra.Command{
		Use:   "resume <instance-id>",
		Short: "Resume a suspended workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(opts)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			if env.registry == nil {
				return fmt.Errorf("resume requires --workflows to locate the definition")
			}

			inst, err := env.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			runOpts := []runtime.RunOption{runtime.WithActivityID(activityID)}
			if input != "" {
				runOpts = append(runOpts, runtime.WithInput(input))
			}

			inst, err = env.runner.Run(cmd.Context(), inst, runOpts...)
			if err != nil {
				return err
			}
			if err := env.store.Update(cmd.Context(), inst); err != nil {
				return err
			}

			return printInstance(cmd, inst)
		},
	}

	cmd.Flags().StringVar(&activityID, "activity", "", "blocking activity id to resume")
	cmd.Flags().StringVar(&input, "input", "", "signal input for the resumed activity")
	_ = cmd.MarkFlagRequired("activity")

	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(opts)
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			query := &store.Query{}
			if status != "" {
				s := instance.Status(status)
				if !s.IsValid() {
					return fmt.Errorf("unknown status %q", status)
				}
				query.Status = &s
			}

			instances, err := env.store.List(cmd.Context(), query)
			if err != nil {
				return err
			}

			for _, inst := range instances {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%d\t%s\t%s\n",
					inst.ID, inst.WorkflowDefinitionID, inst.Version, inst.Status,
					inst.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (idle, running, suspended, finished, cancelled, faulted)")

	return cmd
}

// printInstance writes a YAML summary of the instance to stdout.
func printInstance(cmd *cobra.Command, inst *instance.WorkflowInstance) error {
	summary := map[string]interface{}{
		"id":       inst.ID,
		"workflow": inst.WorkflowDefinitionID,
		"version":  inst.Version,
		"status":   string(inst.Status),
	}
	if inst.Output != nil {
		summary["output"] = inst.Output
	}
	if len(inst.BlockingActivities) > 0 {
		blocking := make([]string, len(inst.BlockingActivities))
		for i, b := range inst.BlockingActivities {
			blocking[i] = b.ActivityID
		}
		summary["blocking"] = blocking
	}
	if len(inst.Faults) > 0 {
		summary["faults"] = inst.Faults
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
