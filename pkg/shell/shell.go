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

package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/exec"
	"time"
)

// CommandResult holds the captured output of a finished command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is set when the command could not be started or was interrupted.
	Err error
}

// Failed reports whether the command did not start or exited non-zero.
func (r CommandResult) Failed() bool {
	return r.Err != nil || r.ExitCode != 0
}

// Runner runs external commands. It exists so callers can substitute a fake
// in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) CommandResult
}

// ExecRunner runs commands as local subprocesses.
type ExecRunner struct {
	Dir string
	Env []string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) CommandResult {
	cmd := NewCommand(name, args...)
	cmd.dir = r.Dir
	cmd.env = r.Env
	return cmd.ExecuteContext(ctx)
}

// Command is a single external command invocation.
type Command struct {
	name string
	args []string
	dir  string
	env  []string
}

// NewCommand creates a command that is not yet executed.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetDir sets the working directory of the command.
func (c *Command) SetDir(dir string) {
	c.dir = dir
}

// SetEnv sets the full environment of the command. A nil env inherits the
// current process environment.
func (c *Command) SetEnv(env []string) {
	c.env = env
}

// ExecuteContext runs the command and kills it if ctx is done first.
func (c *Command) ExecuteContext(ctx context.Context) CommandResult {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	if c.env != nil {
		cmd.Env = c.env
	}

	err := cmd.Run()
	res := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			res.Err = ctx.Err()
		}
		return res
	}
	res.ExitCode = -1
	res.Err = fmt.Errorf("failed to run %q: %w", c.name, err)
	return res
}

// RandomString returns a lowercase alphanumeric string of the given length.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	seeded := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[seeded.Intn(len(charset))]
	}
	return string(b)
}
