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

package cluster

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ray-launcher/pkg/shell"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/ssh"
)

type call struct {
	Name string
	Args []string
}

// fakeRunner records every command and answers from a table keyed by the
// CLI subcommand.
type fakeRunner struct {
	calls   []call
	results map[string]shell.CommandResult
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) shell.CommandResult {
	f.calls = append(f.calls, call{Name: name, Args: args})
	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}
	return f.results[key]
}

func TestLifecycleCommands(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		docker bool
		run    func(c *Client) error
		want   []call
	}{
		{
			name: "up",
			run:  func(c *Client) error { return c.Up(ctx) },
			want: []call{{"ray", []string{"up", "-y", "cluster.yaml"}}},
		},
		{
			name: "down",
			run:  func(c *Client) error { return c.Down(ctx) },
			want: []call{{"ray", []string{"down", "-y", "cluster.yaml"}}},
		},
		{
			name: "rsync-up",
			run:  func(c *Client) error { return c.SyncUp(ctx, "/local/dir/", "/tmp/remote") },
			want: []call{{"ray", []string{"rsync-up", "cluster.yaml", "/local/dir/", "/tmp/remote"}}},
		},
		{
			name: "rsync-down",
			run:  func(c *Client) error { return c.SyncDown(ctx, "/tmp/remote/returns.bin", "/local") },
			want: []call{{"ray", []string{"rsync-down", "cluster.yaml", "/tmp/remote/returns.bin", "/local"}}},
		},
		{
			name: "exec",
			run: func(c *Client) error {
				_, err := c.Exec(ctx, "echo hi")
				return err
			},
			want: []call{{"ray", []string{"exec", "cluster.yaml", "echo hi"}}},
		},
		{
			name:   "exec docker",
			docker: true,
			run: func(c *Client) error {
				_, err := c.Exec(ctx, "echo hi")
				return err
			},
			want: []call{{"ray", []string{"exec", "--docker", "cluster.yaml", "echo hi"}}},
		},
		{
			name: "mkdir",
			run:  func(c *Client) error { return c.NewDir(ctx, "/tmp/hydra test") },
			want: []call{{"ray", []string{"exec", "cluster.yaml", "mkdir -p '/tmp/hydra test'"}}},
		},
		{
			name: "rm",
			run:  func(c *Client) error { return c.RemoveDir(ctx, "/tmp/tmp.x1") },
			want: []call{{"ray", []string{"exec", "cluster.yaml", "rm -rf '/tmp/tmp.x1'"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			c := &Client{ConfigPath: "cluster.yaml", Docker: tt.docker, Runner: r}
			if err := tt.run(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, r.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCustomBinary(t *testing.T) {
	r := &fakeRunner{}
	c := &Client{ConfigPath: "c.yaml", Binary: "/opt/ray/bin/ray", Runner: r}
	if err := c.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if got := r.calls[0].Name; got != "/opt/ray/bin/ray" {
		t.Errorf("binary = %q, want /opt/ray/bin/ray", got)
	}
}

func TestNonZeroExitIsError(t *testing.T) {
	r := &fakeRunner{results: map[string]shell.CommandResult{
		"ray up": {ExitCode: 1, Stderr: "AWS credentials not found\n"},
	}}
	c := &Client{ConfigPath: "cluster.yaml", Runner: r}
	err := c.Up(context.Background())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, want := range []string{"up", "exit code 1", "AWS credentials not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestStartFailureIsError(t *testing.T) {
	r := &fakeRunner{results: map[string]shell.CommandResult{
		"ray down": {ExitCode: -1, Err: fmt.Errorf("executable file not found")},
	}}
	c := &Client{ConfigPath: "cluster.yaml", Runner: r}
	if err := c.Down(context.Background()); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestHeadIP(t *testing.T) {
	r := &fakeRunner{results: map[string]shell.CommandResult{
		"ray get-head-ip": {Stdout: "Fetched IP: ...\n2024-01-01 INFO loaded config\n10.0.1.17\n"},
	}}
	c := &Client{ConfigPath: "cluster.yaml", Runner: r}
	ip, err := c.HeadIP(context.Background())
	if err != nil {
		t.Fatalf("HeadIP: %v", err)
	}
	if ip != "10.0.1.17" {
		t.Errorf("HeadIP = %q, want 10.0.1.17", ip)
	}
}

func TestTmpDir(t *testing.T) {
	r := &fakeRunner{results: map[string]shell.CommandResult{
		"ray exec": {Stdout: "Shared connection to 10.0.1.17 closed.\n/tmp/tmp.Ab3XyZ\n"},
	}}
	c := &Client{ConfigPath: "cluster.yaml", Runner: r}
	dir, err := c.TmpDir(context.Background())
	if err != nil {
		t.Fatalf("TmpDir: %v", err)
	}
	if dir != "/tmp/tmp.Ab3XyZ" {
		t.Errorf("TmpDir = %q, want /tmp/tmp.Ab3XyZ", dir)
	}
	want := []string{"exec", "cluster.yaml", "echo $(mktemp -d)"}
	if diff := cmp.Diff(want, r.calls[0].Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveDirRefusesRoot(t *testing.T) {
	c := &Client{ConfigPath: "cluster.yaml", Runner: &fakeRunner{}}
	for _, dir := range []string{"", "/"} {
		if err := c.RemoveDir(context.Background(), dir); err == nil {
			t.Errorf("RemoveDir(%q) expected error, got nil", dir)
		}
	}
}

func TestParseHeadIP(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "bare", out: "54.12.3.4", want: "54.12.3.4"},
		{name: "ipv6", out: "fd00::1\n", want: "fd00::1"},
		{name: "trailing noise", out: "1.2.3.4\nShared connection closed.", want: "1.2.3.4"},
		{name: "empty", out: "", wantErr: true},
		{name: "no ip", out: "cluster not found", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHeadIP(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeadIP(%q) error = %v, wantErr %v", tt.out, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseHeadIP(%q) = %q, want %q", tt.out, got, tt.want)
			}
		})
	}
}

func TestParseRemotePath(t *testing.T) {
	tests := []struct {
		out     string
		want    string
		wantErr bool
	}{
		{out: "/tmp/tmp.abc", want: "/tmp/tmp.abc"},
		{out: "/tmp/tmp.abc\nConnection to 1.2.3.4 closed.", want: "/tmp/tmp.abc"},
		{out: "Warning: Permanently added\n/var/tmp/x\n", want: "/var/tmp/x"},
		{out: "mktemp: failed", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseRemotePath(tt.out)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseRemotePath(%q) error = %v, wantErr %v", tt.out, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseRemotePath(%q) = %q, want %q", tt.out, got, tt.want)
		}
	}
}

func writeTestKey(t *testing.T, dir string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "test")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	path := filepath.Join(dir, "id_test.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func writeClusterYaml(t *testing.T, dir, keyPath string) string {
	t.Helper()
	content := fmt.Sprintf(`cluster_name: test
provider:
  type: aws
  region: us-west-2
auth:
  ssh_user: ubuntu
  ssh_private_key: %s
`, keyPath)
	path := filepath.Join(dir, "cluster.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRsync(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeTestKey(t, dir)
	cfgPath := writeClusterYaml(t, dir, keyPath)

	tests := []struct {
		name string
		opts RsyncOptions
		want []string
	}{
		{
			name: "up",
			opts: RsyncOptions{
				Source:  "/code/",
				Target:  "/tmp/tmp.x",
				Include: []string{"*.py"},
				Exclude: []string{"*"},
				Up:      true,
			},
			want: []string{
				"--rsh", "ssh -i " + keyPath, "-avz",
				"--include=*.py", "--exclude=*", "--prune-empty-dirs",
				"/code/", "ubuntu@10.0.0.5:/tmp/tmp.x",
			},
		},
		{
			name: "down",
			opts: RsyncOptions{Source: "/tmp/out", Target: "/local/out"},
			want: []string{
				"--rsh", "ssh -i " + keyPath, "-avz", "--prune-empty-dirs",
				"ubuntu@10.0.0.5:/tmp/out", "/local/out",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{results: map[string]shell.CommandResult{
				"ray get-head-ip": {Stdout: "10.0.0.5\n"},
			}}
			c := &Client{ConfigPath: cfgPath, Runner: r}
			if err := c.Rsync(context.Background(), tt.opts); err != nil {
				t.Fatalf("Rsync: %v", err)
			}
			if len(r.calls) != 2 {
				t.Fatalf("got %d calls, want 2: %+v", len(r.calls), r.calls)
			}
			last := r.calls[1]
			if last.Name != "rsync" {
				t.Errorf("binary = %q, want rsync", last.Name)
			}
			if diff := cmp.Diff(tt.want, last.Args); diff != "" {
				t.Errorf("rsync args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRsyncMissingKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeClusterYaml(t, dir, filepath.Join(dir, "missing.pem"))
	r := &fakeRunner{}
	c := &Client{ConfigPath: cfgPath, Runner: r}
	if err := c.Rsync(context.Background(), RsyncOptions{Source: "a", Target: "b", Up: true}); err == nil {
		t.Fatalf("expected error for missing key, got nil")
	}
	if len(r.calls) != 0 {
		t.Errorf("expected no commands to run, got %+v", r.calls)
	}
}

func TestRsyncInvalidKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(keyPath, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeClusterYaml(t, dir, keyPath)
	c := &Client{ConfigPath: cfgPath, Runner: &fakeRunner{}}
	err := c.Rsync(context.Background(), RsyncOptions{Source: "a", Target: "b"})
	if err == nil || !strings.Contains(err.Error(), "invalid ssh private key") {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}
