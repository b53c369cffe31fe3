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

package orchestrator

import (
	"context"
	"errors"

	"ray-launcher/pkg/jobspec"
)

// JobDefinition holds all the necessary parameters to define a sweep.
// This struct is intended to be general enough to support various orchestrators,
// with specific orchestrator implementations extracting the fields relevant to them.
type JobDefinition struct {
	// TaskName selects the registered task every job runs.
	TaskName string
	// Sweep holds one override list per job.
	Sweep [][]string
	// InitialJobIdx numbers the first job; later jobs count up from it.
	InitialJobIdx int
	// BatchID identifies the launch; generated when empty.
	BatchID string
}

// Validate checks that the definition can be submitted.
func (j JobDefinition) Validate() error {
	if j.TaskName == "" {
		return errors.New("job definition has no task name")
	}
	if j.InitialJobIdx < 0 {
		return errors.New("initial job index must not be negative")
	}
	return nil
}

// JobConfigs expands the sweep into numbered job configurations.
func (j JobDefinition) JobConfigs() []jobspec.JobConfig {
	jobs := make([]jobspec.JobConfig, len(j.Sweep))
	for i, overrides := range j.Sweep {
		jobs[i] = jobspec.JobConfig{
			Num:       j.InitialJobIdx + i,
			Overrides: append([]string(nil), overrides...),
		}
	}
	return jobs
}

// Orchestrator defines the interface for submitting sweeps to a cluster.
type Orchestrator interface {
	// SubmitJob runs every job of the definition and returns one result per
	// job, in sweep order.
	SubmitJob(ctx context.Context, job JobDefinition) ([]jobspec.JobReturn, error)
}
