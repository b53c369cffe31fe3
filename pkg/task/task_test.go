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
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ray-launcher/pkg/jobspec"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, *JobContext) (any, error) { return nil, nil }

	if err := r.Register("b", noop); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := r.Register("a", noop); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := r.Register("a", noop); err == nil {
		t.Error("Register() of duplicate name succeeded, want error")
	}
	if err := r.Register("", noop); err == nil {
		t.Error("Register() of empty name succeeded, want error")
	}
	if err := r.Register("c", nil); err == nil {
		t.Error("Register() of nil func succeeded, want error")
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Lookup("a"); err != nil {
		t.Errorf("Lookup(a) failed: %v", err)
	}
	if _, err := r.Lookup("zzz"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Lookup(zzz) error = %v, want ErrUnknownTask", err)
	}
}

func TestBuiltin(t *testing.T) {
	if _, err := Builtin().Lookup(ShellTaskName); err != nil {
		t.Errorf("builtin registry has no %s task: %v", ShellTaskName, err)
	}
}

func TestWorkingDir(t *testing.T) {
	job := jobspec.JobConfig{Num: 3, ID: "i-1_3"}
	tests := []struct {
		subdir string
		want   string
	}{
		{"", "/sweep/3"},
		{"{num}", "/sweep/3"},
		{"run_{id}", "/sweep/run_i-1_3"},
		{"fixed/{num}", "/sweep/fixed/3"},
	}
	for _, tc := range tests {
		t.Run(tc.subdir, func(t *testing.T) {
			got := WorkingDir(jobspec.RunContext{SweepDir: "/sweep", SweepSubdir: tc.subdir}, job)
			if got != tc.want {
				t.Errorf("WorkingDir() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRunCompleted(t *testing.T) {
	mem := afero.NewMemMapFs()
	job := jobspec.JobConfig{Num: 1, ID: "i-1_1", Overrides: []string{"lr=0.1"}}
	runCtx := jobspec.RunContext{AppName: "app", SweepDir: "/sweep", Env: map[string]string{"K": "V"}}

	var seen *JobContext
	fn := func(_ context.Context, jc *JobContext) (any, error) {
		seen = jc
		return map[string]float64{"loss": 0.25}, nil
	}

	ret := Run(context.Background(), mem, fn, job, runCtx)
	if ret.Status != jobspec.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED (error %q)", ret.Status, ret.Error)
	}
	if string(ret.ReturnValue) != `{"loss":0.25}` {
		t.Errorf("ReturnValue = %s", ret.ReturnValue)
	}
	if ret.JobID != "i-1_1" || ret.Num != 1 || ret.WorkingDir != "/sweep/1" {
		t.Errorf("unexpected result identity: %+v", ret)
	}
	if seen == nil || seen.WorkingDir != "/sweep/1" || seen.Run.Env["K"] != "V" || seen.Params()["lr"] != "0.1" {
		t.Errorf("task got unexpected context: %+v", seen)
	}

	b, err := afero.ReadFile(mem, filepath.Join("/sweep/1", MetaDir, OverridesFile))
	if err != nil {
		t.Fatalf("overrides file not written: %v", err)
	}
	var overrides []string
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(job.Overrides, overrides); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name    string
		fn      Func
		wantErr string
	}{
		{
			name:    "error",
			fn:      func(context.Context, *JobContext) (any, error) { return nil, errors.New("boom") },
			wantErr: "boom",
		},
		{
			name:    "panic",
			fn:      func(context.Context, *JobContext) (any, error) { panic("kaput") },
			wantErr: "task panicked: kaput",
		},
		{
			name:    "unencodable",
			fn:      func(context.Context, *JobContext) (any, error) { return make(chan int), nil },
			wantErr: "failed to encode return value",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ret := Run(context.Background(), afero.NewMemMapFs(), tc.fn, jobspec.JobConfig{ID: "x_0"}, jobspec.RunContext{SweepDir: "/s"})
			if ret.Status != jobspec.StatusFailed {
				t.Fatalf("Status = %s, want FAILED", ret.Status)
			}
			if !strings.Contains(ret.Error, tc.wantErr) {
				t.Errorf("Error = %q, want it to contain %q", ret.Error, tc.wantErr)
			}
			if ret.ReturnValue != nil {
				t.Errorf("ReturnValue = %s, want nil", ret.ReturnValue)
			}
		})
	}
}

func TestRunTimeout(t *testing.T) {
	fn := func(ctx context.Context, _ *JobContext) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	runCtx := jobspec.RunContext{SweepDir: "/s", Executor: jobspec.ExecutorConfig{TaskTimeout: 10 * time.Millisecond}}
	ret := Run(context.Background(), afero.NewMemMapFs(), fn, jobspec.JobConfig{}, runCtx)
	if ret.Status != jobspec.StatusFailed || !strings.Contains(ret.Error, "deadline exceeded") {
		t.Errorf("got %s %q, want FAILED with deadline exceeded", ret.Status, ret.Error)
	}
}

func TestShellTask(t *testing.T) {
	dir := t.TempDir()
	runCtx := jobspec.RunContext{SweepDir: dir, Env: map[string]string{"GREETING": "hello"}}
	job := jobspec.JobConfig{
		Num:       2,
		ID:        "i-9_2",
		Overrides: []string{`cmd=echo "$GREETING $LAUNCHER_JOB_ID $LAUNCHER_PARAM_MODEL_LR" && pwd`, "model.lr=0.3"},
	}

	ret := Run(context.Background(), afero.NewOsFs(), Shell, job, runCtx)
	if ret.Status != jobspec.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED (error %q)", ret.Status, ret.Error)
	}
	var out string
	if err := ret.DecodeValue(&out); err != nil {
		t.Fatal(err)
	}
	want := "hello i-9_2 0.3\n" + filepath.Join(dir, "2")
	if out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
}

func TestShellTaskFromEnv(t *testing.T) {
	runCtx := jobspec.RunContext{SweepDir: t.TempDir(), Env: map[string]string{ShellCmdEnv: "echo from-env"}}
	ret := Run(context.Background(), afero.NewOsFs(), Shell, jobspec.JobConfig{}, runCtx)
	var out string
	if err := ret.DecodeValue(&out); err != nil {
		t.Fatalf("DecodeValue() failed: %v (job error %q)", err, ret.Error)
	}
	if out != "from-env" {
		t.Errorf("stdout = %q, want from-env", out)
	}
}

func TestShellTaskErrors(t *testing.T) {
	tests := []struct {
		name      string
		overrides []string
		wantErr   string
	}{
		{"no command", nil, "needs a cmd override"},
		{"non-zero exit", []string{"cmd=echo oops >&2; exit 3"}, "exited with code 3: oops"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runCtx := jobspec.RunContext{SweepDir: t.TempDir()}
			ret := Run(context.Background(), afero.NewOsFs(), Shell, jobspec.JobConfig{Overrides: tc.overrides}, runCtx)
			if ret.Status != jobspec.StatusFailed || !strings.Contains(ret.Error, tc.wantErr) {
				t.Errorf("got %s %q, want FAILED containing %q", ret.Status, ret.Error, tc.wantErr)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"lr":          "LR",
		"model.lr":    "MODEL_LR",
		"db/user-id":  "DB_USER_ID",
		"Already_UP1": "ALREADY_UP1",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
