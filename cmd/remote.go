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
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/remote"

	"github.com/spf13/cobra"
)

var skipMetrics bool

func init() {
	rootCmd.AddCommand(remoteInvokeCmd)

	remoteInvokeCmd.Flags().BoolVar(&skipMetrics, "skip-metrics", false, "Do not write the metrics textfile next to the job returns.")
}

var remoteInvokeCmd = &cobra.Command{
	Use:   "remote-invoke <dir>",
	Short: "Runs the job batch found in <dir>. Invoked on the head node by launch.",
	Long: `The 'remote-invoke' command is the entry point run on the ray head node. It
reads job_spec.bin from <dir>, runs every job on a bounded worker pool and
writes returns.bin (and metrics.prom) back into <dir>.

The instance identity comes from the EC2 metadata endpoint, or from
LAUNCHER_INSTANCE_ID when set.`,
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	Run:    runRemoteInvokeCmd,
}

func runRemoteInvokeCmd(cmd *cobra.Command, args []string) {
	inv := remote.NewInvoker(registry)
	inv.SkipMetrics = skipMetrics
	summary, err := inv.Invoke(cmd.Context(), args[0])
	if err != nil {
		logging.Fatal("remote-invoke failed: %v", err)
	}
	logging.Info("Job returns written to %s", summary.ReturnsPath)
}
