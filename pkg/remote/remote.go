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

// Package remote is the entry point that runs a job batch on the head node.
package remote

import (
	"context"
	"fmt"
	"time"

	"ray-launcher/pkg/executor"
	"ray-launcher/pkg/identity"
	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/task"

	"github.com/spf13/afero"
)

// Invoker reads a job spec from an exchange directory, runs every job and
// writes the returns back into the same directory.
type Invoker struct {
	Fs       afero.Fs
	Identity identity.Provider
	Registry *task.Registry
	// SkipMetrics disables the metrics textfile.
	SkipMetrics bool
}

// NewInvoker returns an Invoker working on the local disk with the default
// identity provider.
func NewInvoker(registry *task.Registry) *Invoker {
	return &Invoker{
		Fs:       afero.NewOsFs(),
		Identity: identity.Default(),
		Registry: registry,
	}
}

// Summary describes a finished batch.
type Summary struct {
	BatchID     string
	InstanceID  string
	Jobs        int
	Failed      int
	ReturnsPath string
	MetricsPath string
	Elapsed     time.Duration
}

// Invoke runs the batch found in dir. Individual job failures are recorded
// in the returns; any other failure aborts the batch before the returns file
// is written.
func (inv *Invoker) Invoke(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()

	spec, err := jobspec.ReadSpec(inv.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load job spec: %w", err)
	}
	log := logging.WithField("batch_id", spec.BatchID)
	log.Infof("loaded %d jobs for task %q", len(spec.Jobs), spec.Task.Name)

	instanceID, err := inv.Identity.InstanceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up instance identity: %w", err)
	}
	fn, err := inv.Registry.Lookup(spec.Task.Name)
	if err != nil {
		return nil, err
	}
	if spec.Context.SweepDir != "" {
		if err := inv.Fs.MkdirAll(spec.Context.SweepDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sweep dir %s: %w", spec.Context.SweepDir, err)
		}
	}

	results, err := inv.runJobs(ctx, spec, instanceID, fn)
	if err != nil {
		return nil, err
	}

	returnsPath, err := jobspec.WriteReturns(inv.Fs, dir, spec.BatchID, results)
	if err != nil {
		return nil, fmt.Errorf("failed to save job returns: %w", err)
	}

	summary := &Summary{
		BatchID:     spec.BatchID,
		InstanceID:  instanceID,
		Jobs:        len(results),
		ReturnsPath: returnsPath,
		Elapsed:     time.Since(start),
	}
	for _, r := range results {
		if r.Failed() {
			summary.Failed++
		}
	}

	if !inv.SkipMetrics {
		m := newBatchMetrics()
		m.observe(spec, instanceID, results, summary.Elapsed, time.Now())
		// The returns are already safe; a metrics failure is only logged.
		if summary.MetricsPath, err = m.write(inv.Fs, dir); err != nil {
			log.Warnf("%v", err)
		}
	}

	log.Infof("batch finished on %s: %d jobs, %d failed, %s", instanceID, summary.Jobs, summary.Failed, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// runJobs submits every job and then waits on all of them in submission
// order.
func (inv *Invoker) runJobs(ctx context.Context, spec *jobspec.JobSpec, instanceID string, fn task.Func) ([]jobspec.JobReturn, error) {
	if len(spec.Jobs) == 0 {
		return []jobspec.JobReturn{}, nil
	}
	exec, err := executor.New(spec.Context.Executor.Workers)
	if err != nil {
		return nil, err
	}
	defer exec.Release(0)

	runCtx := spec.Context
	handles := make([]*executor.Handle[jobspec.JobReturn], 0, len(spec.Jobs))
	for _, job := range spec.Jobs {
		job.AssignID(instanceID)
		h, err := executor.Submit(ctx, exec, func(ctx context.Context) (jobspec.JobReturn, error) {
			return task.Run(ctx, inv.Fs, fn, job, runCtx), nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to submit job %s: %w", job.ID, err)
		}
		handles = append(handles, h)
	}
	logging.Debug("submitted %d jobs to %d workers, %d running", len(handles), exec.Workers(), exec.Running())

	// task.Run records failures and panics in the returns, so an error here
	// means ctx ended or the runner itself broke.
	results, err := executor.Wait(ctx, handles)
	if err != nil {
		return nil, fmt.Errorf("interrupted while waiting for jobs: %w", err)
	}
	return results, nil
}
