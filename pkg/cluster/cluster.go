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

// Package cluster wraps the ray cluster CLI. Every operation runs one
// subprocess against a cluster config file, logs what it printed, and turns
// a non-zero exit into an error.
package cluster

import (
	"context"
	"fmt"
	"strings"

	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/shell"
)

// Client runs cluster lifecycle commands for one cluster config.
type Client struct {
	// ConfigPath is the cluster YAML handed to every CLI call.
	ConfigPath string
	// Docker adds --docker to exec calls so commands run inside the container.
	Docker bool
	// Binary is the cluster CLI, "ray" when empty.
	Binary string
	// RsyncBinary is used by Rsync, "rsync" when empty.
	RsyncBinary string
	// Runner executes subprocesses; shell.ExecRunner when nil.
	Runner shell.Runner
}

// NewClient returns a Client for the given cluster config.
func NewClient(configPath string, docker bool) *Client {
	return &Client{ConfigPath: configPath, Docker: docker}
}

func (c *Client) binary() string {
	if c.Binary == "" {
		return "ray"
	}
	return c.Binary
}

func (c *Client) runner() shell.Runner {
	if c.Runner == nil {
		return shell.ExecRunner{}
	}
	return c.Runner
}

// run executes one command, logs its output and returns trimmed stdout.
func (c *Client) run(ctx context.Context, name string, args ...string) (string, error) {
	res := c.runner().Run(ctx, name, args...)
	out := strings.TrimSpace(res.Stdout)
	errOut := strings.TrimSpace(res.Stderr)

	var b strings.Builder
	fmt.Fprintf(&b, "command ran: %s %s", name, strings.Join(args, " "))
	if out != "" {
		fmt.Fprintf(&b, "\nout: %s", out)
	}
	if errOut != "" {
		fmt.Fprintf(&b, "\nerr: %s", errOut)
	}
	logging.Debug("%s", b.String())

	if res.Err != nil {
		return out, fmt.Errorf("%s %s failed: %w", name, subcommand(args), res.Err)
	}
	if res.ExitCode != 0 {
		return out, fmt.Errorf("%s %s failed with exit code %d: %s", name, subcommand(args), res.ExitCode, errOut)
	}
	return out, nil
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Up provisions the cluster, or reconciles it if it already exists.
func (c *Client) Up(ctx context.Context) error {
	logging.Info("%s up -y %s ...", c.binary(), c.ConfigPath)
	_, err := c.run(ctx, c.binary(), "up", "-y", c.ConfigPath)
	return err
}

// Down tears the cluster down.
func (c *Client) Down(ctx context.Context) error {
	_, err := c.run(ctx, c.binary(), "down", "-y", c.ConfigPath)
	if err != nil {
		return err
	}
	logging.Info("%s down -y %s", c.binary(), c.ConfigPath)
	return nil
}

// SyncUp copies a local path to the head node.
func (c *Client) SyncUp(ctx context.Context, localPath, remotePath string) error {
	if _, err := c.run(ctx, c.binary(), "rsync-up", c.ConfigPath, localPath, remotePath); err != nil {
		return err
	}
	logging.Info("rsync dir to ray cluster. source: %s, target: %s", localPath, remotePath)
	return nil
}

// SyncDown copies a path from the head node to the local machine.
func (c *Client) SyncDown(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.run(ctx, c.binary(), "rsync-down", c.ConfigPath, remotePath, localPath); err != nil {
		return err
	}
	logging.Info("rsync down from remote dir %s to local dir %s", remotePath, localPath)
	return nil
}

// Exec runs a shell command on the head node and returns its stdout.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	args := []string{"exec"}
	if c.Docker {
		args = append(args, "--docker")
	}
	args = append(args, c.ConfigPath, command)
	return c.run(ctx, c.binary(), args...)
}

// HeadIP returns the address of the head node.
func (c *Client) HeadIP(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.binary(), "get-head-ip", c.ConfigPath)
	if err != nil {
		return "", err
	}
	return parseHeadIP(out)
}

// TmpDir creates a fresh temporary directory on the head node.
func (c *Client) TmpDir(ctx context.Context) (string, error) {
	out, err := c.Exec(ctx, "echo $(mktemp -d)")
	if err != nil {
		return "", fmt.Errorf("failed to create remote temp dir: %w", err)
	}
	return parseRemotePath(out)
}

// RemoveDir deletes a directory on the head node.
func (c *Client) RemoveDir(ctx context.Context, dir string) error {
	if dir == "" || dir == "/" {
		return fmt.Errorf("refusing to remove remote dir %q", dir)
	}
	_, err := c.Exec(ctx, "rm -rf "+shellQuote(dir))
	return err
}

// NewDir creates a directory, and its parents, on the head node.
func (c *Client) NewDir(ctx context.Context, dir string) error {
	_, err := c.Exec(ctx, "mkdir -p "+shellQuote(dir))
	return err
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
