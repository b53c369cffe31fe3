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

// Package jobspec defines the two files exchanged between the submitting
// machine and the head node: the job spec going up and the job returns
// coming back.
package jobspec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// SpecFileName is the job spec file inside the exchange directory.
	SpecFileName = "job_spec.bin"
	// ReturnsFileName is the job returns file inside the exchange directory.
	ReturnsFileName = "returns.bin"
	// FormatVersion is bumped whenever the encoded types change shape.
	FormatVersion = 1
)

// JobConfig is one job of a sweep.
type JobConfig struct {
	// Num is the index of the job within the sweep.
	Num int
	// ID is assigned on the head node, see AssignID.
	ID        string
	Overrides []string
}

// AssignID sets the job id from the identity of the node running it.
func (j *JobConfig) AssignID(instanceID string) {
	j.ID = fmt.Sprintf("%s_%d", instanceID, j.Num)
}

// Params returns the overrides as a key/value map. A leading "+", "++" or
// "~" on the key is dropped; a bare key maps to "".
func (j JobConfig) Params() map[string]string {
	params := make(map[string]string, len(j.Overrides))
	for _, o := range j.Overrides {
		key, value, _ := strings.Cut(o, "=")
		key = strings.TrimLeft(strings.TrimSpace(key), "+~")
		if key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

// TaskRef names the task function to run. The name is resolved against the
// task registry compiled into the binary on the head node.
type TaskRef struct {
	Name string
}

// ExecutorConfig sizes the task pool on the head node.
type ExecutorConfig struct {
	// Workers bounds the number of concurrently running jobs; 0 means one
	// per CPU.
	Workers int
	// TaskTimeout cancels a job's context after the given duration; 0
	// disables the timeout.
	TaskTimeout time.Duration
}

// RunContext carries everything a job needs to know about the launch it is
// part of. It is passed explicitly to every job.
type RunContext struct {
	AppName string
	// SweepDir is the root output directory on the head node.
	SweepDir string
	// SweepSubdir is the per-job directory below SweepDir; the job number
	// when empty.
	SweepSubdir string
	Env         map[string]string
	Executor    ExecutorConfig
}

// JobSpec is the batch written by the submitting side and read once by the
// entry point on the head node.
type JobSpec struct {
	Version   int
	BatchID   string
	CreatedAt time.Time
	// SourceRevision is the commit of the synced code dir, if it is a git
	// checkout.
	SourceRevision string
	Jobs           []JobConfig
	Task           TaskRef
	Context        RunContext
}

// New builds a spec for the given jobs.
func New(batchID string, jobs []JobConfig, task TaskRef, runCtx RunContext) *JobSpec {
	return &JobSpec{
		Version:   FormatVersion,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
		Jobs:      jobs,
		Task:      task,
		Context:   runCtx,
	}
}

// Status is the outcome of a job.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// JobReturn is the result of one job.
type JobReturn struct {
	Num        int      `json:"num"`
	JobID      string   `json:"job_id"`
	Overrides  []string `json:"overrides"`
	WorkingDir string   `json:"working_dir"`
	Status     Status   `json:"status"`
	// ReturnValue is the JSON encoding of what the task returned.
	ReturnValue json.RawMessage `json:"return_value,omitempty"`
	// Error is the task's error message when Status is StatusFailed.
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Failed reports whether the job failed.
func (r JobReturn) Failed() bool {
	return r.Status == StatusFailed
}

// DecodeValue unmarshals the task's return value into v.
func (r JobReturn) DecodeValue(v any) error {
	if len(r.ReturnValue) == 0 {
		return fmt.Errorf("job %s has no return value", r.JobID)
	}
	if err := json.Unmarshal(r.ReturnValue, v); err != nil {
		return fmt.Errorf("failed to decode return value of job %s: %w", r.JobID, err)
	}
	return nil
}

// Returns is the envelope written to the returns file.
type Returns struct {
	Version int
	BatchID string
	Results []JobReturn
}
