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
	"fmt"
	"io"

	"ray-launcher/pkg/task"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Lists the tasks this binary can run.",
	Long: `The 'tasks' command prints the names of the registered tasks, one per line.
Any of them can be passed to 'launch --task'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printTasks(cmd.OutOrStdout(), registry)
	},
}

func printTasks(w io.Writer, r *task.Registry) {
	for _, name := range r.Names() {
		fmt.Fprintln(w, name)
	}
}
