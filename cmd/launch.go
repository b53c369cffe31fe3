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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/orchestrator"
	"ray-launcher/pkg/orchestrator/ray"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	taskName      string
	sweepFile     string
	initialJobIdx int
	batchID       string
	keepCluster   bool
	outputPath    string
)

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().StringVarP(&taskName, "task", "t", "shell", "Name of the registered task every job runs.")
	launchCmd.Flags().StringVarP(&sweepFile, "sweep-file", "s", "", "YAML file with one override list per job. Cannot be combined with overrides on the command line.")
	launchCmd.Flags().IntVar(&initialJobIdx, "initial-job-idx", 0, "Number of the first job.")
	launchCmd.Flags().StringVar(&batchID, "batch-id", "", "Identifier of the launch. A random UUID if empty.")
	launchCmd.Flags().BoolVar(&keepCluster, "keep-cluster", false, "Leave the cluster running after the launch, regardless of stop_cluster.")
	launchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the job returns as JSON to this file, or to stdout with \"-\".")
}

var launchCmd = &cobra.Command{
	Use:   "launch [key=value[,value...]]...",
	Short: "Runs a parameter sweep on a ray cluster.",
	Long: `The 'launch' command runs one job per point of a parameter sweep on a ray
cluster and prints a result line per job.

Overrides are key=value pairs; a comma separated value sweeps over its items
and the jobs are the cartesian product of all overrides:

  ray-launcher launch -c launcher.yaml 'cmd=python train.py' lr=0.1,0.01 seed=1,2

A comma that belongs to the value is escaped with a backslash:

  ray-launcher launch -c launcher.yaml 'cmd=python train.py --ids=1\,2'

The cluster is started if needed, and stopped afterwards unless stop_cluster
is false or --keep-cluster is set.`,
	Run: runLaunchCmd,
}

func runLaunchCmd(cmd *cobra.Command, args []string) {
	logging.Info("Executing ray-launcher launch command...")
	if sweepFile != "" && len(args) > 0 {
		logging.Fatal("Cannot provide both --sweep-file and overrides.")
	}

	results, err := launch(cmd.Context(), args)
	if err != nil {
		logging.Fatal("ray-launcher launch failed: %v", err)
	}
	if outputPath != "-" {
		printResults(cmd.OutOrStdout(), results)
	}
	if outputPath != "" {
		if err := writeResults(afero.NewOsFs(), cmd.OutOrStdout(), outputPath, results); err != nil {
			logging.Fatal("%v", err)
		}
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		logging.Fatal("%d of %d jobs failed", failed, len(results))
	}
}

func launch(ctx context.Context, overrides []string) ([]jobspec.JobReturn, error) {
	cfg, err := loadLauncherConfig()
	if err != nil {
		return nil, err
	}
	if keepCluster {
		stop := false
		cfg.StopCluster = &stop
	}
	// The uploaded binary carries this registry, so an unknown task would
	// only fail on the head node.
	if cfg.Remote.Command == "" {
		if _, err := registry.Lookup(taskName); err != nil {
			return nil, err
		}
	}

	var sweep [][]string
	if sweepFile != "" {
		sweep, err = orchestrator.LoadSweepFile(sweepFile)
	} else {
		sweep, err = orchestrator.ExpandSweep(overrides)
	}
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "ray-launcher-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	launcher, err := ray.New(ctx, cfg, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create ray launcher: %w", err)
	}
	return launcher.SubmitJob(ctx, orchestrator.JobDefinition{
		TaskName:      taskName,
		Sweep:         sweep,
		InitialJobIdx: initialJobIdx,
		BatchID:       batchID,
	})
}

// printResults writes one line per job.
func printResults(w io.Writer, results []jobspec.JobReturn) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUM\tJOB ID\tSTATUS\tDURATION\tOVERRIDES\tRESULT")
	for _, r := range results {
		result := string(r.ReturnValue)
		if r.Failed() {
			result = r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Num, r.JobID, r.Status, r.Duration.Round(time.Millisecond), strings.Join(r.Overrides, " "), firstLine(result))
	}
	tw.Flush()
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " ..."
	}
	return line
}

func writeResults(fs afero.Fs, stdout io.Writer, path string, results []jobspec.JobReturn) error {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job returns: %w", err)
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = stdout.Write(b)
		return err
	}
	if err := afero.WriteFile(fs, path, b, 0644); err != nil {
		return fmt.Errorf("failed to write job returns to %s: %w", path, err)
	}
	logging.Info("Job returns written to %s", path)
	return nil
}
