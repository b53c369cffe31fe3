// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd defines the ray-launcher command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ray-launcher/pkg/config"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/task"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	verbose            bool
	logLevel           string
	launcherConfigPath string
	clusterConfigPath  string

	registry = task.Builtin()
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output, including the output of every cluster CLI call.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides --verbose and "+logging.LevelEnv+".")
	rootCmd.PersistentFlags().StringVarP(&launcherConfigPath, "config", "c", "", "Path to the launcher config YAML.")
	rootCmd.PersistentFlags().StringVar(&clusterConfigPath, "cluster-config", "", "Cluster config path or remote source (https://, s3::, git::). Overrides cluster_config of the launcher config.")
}

var rootCmd = &cobra.Command{
	Use:   "ray-launcher",
	Short: "Launches parameter sweeps on a ray cluster.",
	Long: `ray-launcher submits a batch of jobs to a ray cluster. It provisions the
cluster with the ray CLI, ships a job spec and its own executable to the head
node, runs every job there on a bounded worker pool and brings the job
returns back.

The same binary is the entry point on the head node (remote-invoke).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetVerbose(true)
		}
		if logLevel != "" {
			if err := logging.SetLevel(logLevel); err != nil {
				logging.Fatal("%v", err)
			}
		}
	},
	SilenceUsage: true,
}

// Execute runs the command line. Programs that ship their own tasks pass a
// registry holding them; nil selects the built-in tasks. SIGINT and SIGTERM
// cancel the running command.
func Execute(r *task.Registry) error {
	if r != nil {
		registry = r
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadLauncherConfig reads --config, applies --cluster-config and checks that
// a cluster config is known.
func loadLauncherConfig() (*config.LauncherConfig, error) {
	cfg := config.Default()
	if launcherConfigPath != "" {
		var err error
		if cfg, err = config.LoadLauncherConfig(launcherConfigPath); err != nil {
			return nil, err
		}
	}
	if clusterConfigPath != "" {
		cfg.ClusterConfig = clusterConfigPath
	}
	if cfg.ClusterConfig == "" {
		return nil, errors.New("no cluster config: set cluster_config in the launcher config or pass --cluster-config")
	}
	return cfg, nil
}
