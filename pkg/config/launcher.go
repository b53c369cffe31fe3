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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LauncherConfig holds every option of a launch.
type LauncherConfig struct {
	ClusterConfig string          `yaml:"cluster_config"`
	RayBinary     string          `yaml:"ray_binary"`
	Docker        DockerOptions   `yaml:"docker"`
	StopCluster   *bool           `yaml:"stop_cluster"`
	Executor      ExecutorOptions `yaml:"executor"`
	Run           RunOptions      `yaml:"run"`
	Remote        RemoteOptions   `yaml:"remote"`
	SyncUp        SyncOptions     `yaml:"sync_up"`
	SyncDown      SyncOptions     `yaml:"sync_down"`
	Archive       ArchiveOptions  `yaml:"archive"`
}

// DockerOptions controls `ray exec --docker`, image pinning and building.
type DockerOptions struct {
	Enabled   bool              `yaml:"enabled"`
	PinDigest bool              `yaml:"pin_digest"`
	Build     ImageBuildOptions `yaml:"build"`
}

// ImageBuildOptions bakes a code directory into the cluster image. The new
// image is the base image plus one layer and replaces docker.image of the
// cluster config.
type ImageBuildOptions struct {
	// BaseImage defaults to docker.image of the cluster config.
	BaseImage  string `yaml:"base_image"`
	ContextDir string `yaml:"context_dir"`
	// TargetDir is where the context lands inside the image.
	TargetDir  string `yaml:"target_dir"`
	Repository string `yaml:"repository"`
	Platform   string `yaml:"platform"`
}

// Enabled reports whether an image is built before launching.
func (b ImageBuildOptions) Enabled() bool {
	return b.Repository != ""
}

// ExecutorOptions sizes the task pool on the head node.
type ExecutorOptions struct {
	Workers     int           `yaml:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// RunOptions describes where jobs write their outputs on the cluster.
type RunOptions struct {
	AppName     string            `yaml:"app_name"`
	SweepDir    string            `yaml:"sweep_dir"`
	SweepSubdir string            `yaml:"sweep_subdir"`
	Env         map[string]string `yaml:"env"`
}

// RemoteOptions selects the entry point run on the head node. With Command
// set, nothing is uploaded and Command is invoked as-is with the temp dir
// appended.
type RemoteOptions struct {
	Binary  string `yaml:"binary"`
	Command string `yaml:"command"`
}

// SyncOptions configures an rsync between the local machine and the head node.
type SyncOptions struct {
	SourceDir string   `yaml:"source_dir"`
	TargetDir string   `yaml:"target_dir"`
	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
}

// IsSet reports whether any field of the sync section was given.
func (s SyncOptions) IsSet() bool {
	return s.SourceDir != "" || s.TargetDir != "" || len(s.Include) > 0 || len(s.Exclude) > 0
}

// ArchiveOptions enables uploading the returns file to S3.
type ArchiveOptions struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveOptions) Enabled() bool {
	return a.Bucket != ""
}

// Default returns a config with every default applied.
func Default() *LauncherConfig {
	cfg := &LauncherConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadLauncherConfig reads a launcher YAML file and applies defaults.
func LoadLauncherConfig(path string) (*LauncherConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launcher config %q: %w", path, err)
	}
	return ParseLauncherConfig(b)
}

// ParseLauncherConfig parses launcher YAML content and applies defaults.
func ParseLauncherConfig(b []byte) (*LauncherConfig, error) {
	var cfg LauncherConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse launcher config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *LauncherConfig) applyDefaults() {
	if c.RayBinary == "" {
		c.RayBinary = "ray"
	}
	if c.StopCluster == nil {
		stop := true
		c.StopCluster = &stop
	}
	if c.Run.AppName == "" {
		c.Run.AppName = "app"
	}
	if c.Run.SweepDir == "" {
		c.Run.SweepDir = "multirun"
	}
	if c.Docker.Build.Enabled() {
		if c.Docker.Build.TargetDir == "" {
			c.Docker.Build.TargetDir = "/home/ray/code"
		}
		if c.Docker.Build.Platform == "" {
			c.Docker.Build.Platform = "linux/amd64"
		}
	}
}

// ShouldStopCluster reports whether the cluster is torn down after a launch.
func (c *LauncherConfig) ShouldStopCluster() bool {
	return c.StopCluster == nil || *c.StopCluster
}

// Validate checks option combinations that cannot work.
func (c *LauncherConfig) Validate() error {
	if c.Executor.Workers < 0 {
		return fmt.Errorf("executor.workers must not be negative, got %d", c.Executor.Workers)
	}
	if c.Executor.TaskTimeout < 0 {
		return fmt.Errorf("executor.task_timeout must not be negative, got %s", c.Executor.TaskTimeout)
	}
	if c.Remote.Binary != "" && c.Remote.Command != "" {
		return fmt.Errorf("remote.binary and remote.command are mutually exclusive")
	}
	if c.Docker.Build.Enabled() && c.Docker.Build.ContextDir == "" {
		return fmt.Errorf("docker.build.repository requires docker.build.context_dir")
	}
	if c.Archive.Prefix != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.prefix requires archive.bucket")
	}
	return nil
}
