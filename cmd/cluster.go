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

package cmd

import (
	"context"
	"fmt"
	"os"

	"ray-launcher/pkg/cluster"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/orchestrator/ray"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(upCmd, downCmd, execCmd, headIPCmd)
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Starts the ray cluster, or reconciles it if it exists.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withCluster(cmd.Context(), true, func(ctx context.Context, c *cluster.Client) error {
			return c.Up(ctx)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Tears the ray cluster down.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withCluster(cmd.Context(), false, func(ctx context.Context, c *cluster.Client) error {
			return c.Down(ctx)
		})
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Runs a shell command on the head node and prints its output.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withCluster(cmd.Context(), false, func(ctx context.Context, c *cluster.Client) error {
			out, err := c.Exec(ctx, args[0])
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return err
		})
	},
}

var headIPCmd = &cobra.Command{
	Use:   "head-ip",
	Short: "Prints the address of the head node.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		withCluster(cmd.Context(), false, func(ctx context.Context, c *cluster.Client) error {
			ip, err := c.HeadIP(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ip)
			return nil
		})
	},
}

// withCluster resolves the cluster config, runs fn against a client for it
// and exits on failure. prepareImage builds or pins the docker image first.
func withCluster(ctx context.Context, prepareImage bool, fn func(context.Context, *cluster.Client) error) {
	if err := runWithCluster(ctx, prepareImage, fn); err != nil {
		logging.Fatal("%v", err)
	}
}

func runWithCluster(ctx context.Context, prepareImage bool, fn func(context.Context, *cluster.Client) error) error {
	cfg, err := loadLauncherConfig()
	if err != nil {
		return err
	}
	workDir, err := os.MkdirTemp("", "ray-launcher-")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	path, _, err := ray.ResolveClusterConfig(ctx, cfg, workDir, prepareImage)
	if err != nil {
		return err
	}
	return fn(ctx, ray.NewClient(cfg, path))
}
