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
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"ray-launcher/pkg/shell"
)

const (
	// ShellTaskName is the registry name of Shell.
	ShellTaskName = "shell"
	// ShellCmdParam is the override holding the command line.
	ShellCmdParam = "cmd"
	// ShellCmdEnv is the run context env entry used when no cmd override is
	// given.
	ShellCmdEnv = "LAUNCHER_SHELL_CMD"
	// ParamEnvPrefix prefixes every override exported to the command.
	ParamEnvPrefix = "LAUNCHER_PARAM_"
)

// Shell runs a command line through /bin/sh in the job's working dir and
// returns its trimmed stdout.
func Shell(ctx context.Context, jc *JobContext) (any, error) {
	params := jc.Params()
	command := params[ShellCmdParam]
	if command == "" {
		command = jc.Run.Env[ShellCmdEnv]
	}
	if command == "" {
		return nil, errors.New("shell task needs a cmd override or " + ShellCmdEnv)
	}

	cmd := shell.NewCommand("/bin/sh", "-c", command)
	cmd.SetDir(jc.WorkingDir)
	cmd.SetEnv(shellEnv(jc, params))
	jc.Logger.Debugf("running %q", command)

	res := cmd.ExecuteContext(ctx)
	if res.Err != nil {
		return nil, res.Err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("command exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

func shellEnv(jc *JobContext, params map[string]string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "PWD=") {
			env = append(env, kv)
		}
	}
	for _, k := range sortedKeys(jc.Run.Env) {
		env = append(env, k+"="+jc.Run.Env[k])
	}
	env = append(env,
		"LAUNCHER_JOB_ID="+jc.Job.ID,
		"LAUNCHER_JOB_NUM="+strconv.Itoa(jc.Job.Num),
		"LAUNCHER_WORKING_DIR="+jc.WorkingDir,
		"PWD="+jc.WorkingDir,
	)
	for _, k := range sortedKeys(params) {
		env = append(env, ParamEnvPrefix+envKey(k)+"="+params[k])
	}
	return env
}

// envKey turns an override key such as "model.lr" into "MODEL_LR".
func envKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
