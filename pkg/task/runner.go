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

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// MetaDir is created inside every job's working dir.
	MetaDir = ".launcher"
	// OverridesFile records the overrides a job ran with.
	OverridesFile = "overrides.yaml"
)

// WorkingDir returns the directory a job runs in. SweepSubdir may reference
// the job with "{num}" and "{id}"; an empty SweepSubdir means "{num}".
func WorkingDir(runCtx jobspec.RunContext, job jobspec.JobConfig) string {
	subdir := runCtx.SweepSubdir
	if subdir == "" {
		subdir = "{num}"
	}
	subdir = strings.NewReplacer("{num}", strconv.Itoa(job.Num), "{id}", job.ID).Replace(subdir)
	return filepath.Join(runCtx.SweepDir, subdir)
}

// Run executes fn for one job and always returns a result. Errors and
// panics from fn are recorded as a failed result.
func Run(ctx context.Context, fs afero.Fs, fn Func, job jobspec.JobConfig, runCtx jobspec.RunContext) jobspec.JobReturn {
	workDir := WorkingDir(runCtx, job)
	ret := jobspec.JobReturn{
		Num:        job.Num,
		JobID:      job.ID,
		Overrides:  job.Overrides,
		WorkingDir: workDir,
		StartedAt:  time.Now().UTC(),
	}
	log := logging.WithFields(map[string]any{"job_id": job.ID, "num": job.Num})

	value, err := run(ctx, fs, fn, job, runCtx, workDir, log)
	if err == nil {
		ret.ReturnValue, err = json.Marshal(value)
		if err != nil {
			err = fmt.Errorf("failed to encode return value: %w", err)
		}
	}
	ret.Duration = time.Since(ret.StartedAt)
	if err != nil {
		ret.Status = jobspec.StatusFailed
		ret.Error = err.Error()
		ret.ReturnValue = nil
		log.Errorf("job failed after %s: %v", ret.Duration, err)
		return ret
	}
	ret.Status = jobspec.StatusCompleted
	log.Infof("job completed in %s", ret.Duration)
	return ret
}

func run(ctx context.Context, fs afero.Fs, fn Func, job jobspec.JobConfig, runCtx jobspec.RunContext, workDir string, log *logrus.Entry) (value any, err error) {
	if err := prepareWorkingDir(fs, workDir, job); err != nil {
		return nil, err
	}
	if runCtx.Executor.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runCtx.Executor.TaskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Debugf("panic stack:\n%s", debug.Stack())
			value, err = nil, fmt.Errorf("task panicked: %v", r)
		}
	}()
	log.Infof("launching job in %s with overrides %v", workDir, job.Overrides)
	return fn(ctx, &JobContext{
		Job:        job,
		Run:        runCtx,
		WorkingDir: workDir,
		Fs:         fs,
		Logger:     log,
	})
}

func prepareWorkingDir(fs afero.Fs, workDir string, job jobspec.JobConfig) error {
	metaDir := filepath.Join(workDir, MetaDir)
	if err := fs.MkdirAll(metaDir, 0755); err != nil {
		return fmt.Errorf("failed to create working dir %s: %w", workDir, err)
	}
	overrides := job.Overrides
	if overrides == nil {
		overrides = []string{}
	}
	b, err := yaml.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(metaDir, OverridesFile), b, 0644); err != nil {
		return fmt.Errorf("failed to write overrides: %w", err)
	}
	return nil
}
