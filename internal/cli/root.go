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

// Package cli implements the conduit command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/conduit/internal/log"
)

// options carry the global CLI configuration shared by subcommands.
type options struct {
	storePath    string
	workflowsDir string
	trace        bool
	logger       *slog.Logger
	version      string
}

// NewRootCommand creates the root conduit command with all subcommands.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{
		logger:  log.New(log.FromEnv()),
		version: version,
	}

	root := &cobra.Command{
		Use:           "conduit",
		Short:         "Durable graph workflow engine",
		Long:          "Conduit runs directed graphs of activities connected by named outcomes,\nsuspending on blocking activities and resuming on external signals.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.storePath, "store", defaultStorePath(), "path to the SQLite instance store")
	root.PersistentFlags().StringVar(&opts.workflowsDir, "workflows", "", "directory of workflow definition files")
	root.PersistentFlags().BoolVar(&opts.trace, "trace", false, "emit OpenTelemetry spans to stderr")

	root.AddCommand(newValidateCommand(opts))
	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newResumeCommand(opts))
	root.AddCommand(newListCommand(opts))

	return root
}

func defaultStorePath() string {
	if path := os.Getenv("CONDUIT_STORE"); path != "" {
		return path
	}
	return "conduit.db"
}
