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
	"errors"
	"fmt"
	"os"

	"ray-launcher/pkg/config"
	"ray-launcher/pkg/logging"

	"golang.org/x/crypto/ssh"
)

// RsyncOptions describes one direct rsync between the local machine and the
// head node. Source and Target are plain paths; the user@host prefix is added
// to whichever side is remote.
type RsyncOptions struct {
	Source  string
	Target  string
	Include []string
	Exclude []string
	// Up copies local Source to remote Target; otherwise remote Source is
	// copied to local Target.
	Up bool
}

// Rsync copies files over ssh with include/exclude filtering, which the
// cluster CLI's rsync-up/rsync-down do not support.
func (c *Client) Rsync(ctx context.Context, opts RsyncOptions) error {
	clusterCfg, err := config.LoadClusterConfig(c.ConfigPath)
	if err != nil {
		return err
	}
	keyPath, err := clusterCfg.PrivateKeyPath()
	if err != nil {
		return err
	}
	if err := checkPrivateKey(keyPath); err != nil {
		return err
	}
	if clusterCfg.Auth.SSHUser == "" {
		return fmt.Errorf("cluster config %s has no auth.ssh_user", c.ConfigPath)
	}
	headIP, err := c.HeadIP(ctx)
	if err != nil {
		return err
	}

	args := rsyncArgs(keyPath, clusterCfg.Auth.SSHUser, headIP, opts)
	logging.Info("rsync: %v", args)
	_, err = c.run(ctx, c.rsyncBinary(), args...)
	return err
}

func (c *Client) rsyncBinary() string {
	if c.RsyncBinary == "" {
		return "rsync"
	}
	return c.RsyncBinary
}

func rsyncArgs(keyPath, user, host string, opts RsyncOptions) []string {
	args := []string{"--rsh", "ssh -i " + keyPath, "-avz"}
	for _, i := range opts.Include {
		args = append(args, "--include="+i)
	}
	for _, e := range opts.Exclude {
		args = append(args, "--exclude="+e)
	}
	args = append(args, "--prune-empty-dirs")

	source, target := opts.Source, opts.Target
	remote := user + "@" + host + ":"
	if opts.Up {
		target = remote + target
	} else {
		source = remote + source
	}
	return append(args, source, target)
}

// checkPrivateKey makes sure the key exists and is a parseable private key.
// Passphrase-protected keys pass; ssh will prompt or use the agent.
func checkPrivateKey(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read ssh private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(b)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			logging.Debug("ssh key %s is passphrase protected", path)
			return nil
		}
		return fmt.Errorf("invalid ssh private key %s: %w", path, err)
	}
	logging.Debug("using ssh key %s (%s)", path, ssh.FingerprintSHA256(signer.PublicKey()))
	return nil
}
