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

package ray

import (
	"context"
	"errors"
	"fmt"

	"ray-launcher/pkg/archive"
	"ray-launcher/pkg/cluster"
	"ray-launcher/pkg/config"
	"ray-launcher/pkg/image"
	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/syncignore"
)

// ResolveClusterConfig returns a local cluster config path ready for the
// CLI. Remote sources are downloaded into workDir. With prepareImage, the
// docker image is built from docker.build or pinned to its digest, and the
// config is rewritten into workDir.
func ResolveClusterConfig(ctx context.Context, cfg *config.LauncherConfig, workDir string, prepareImage bool) (string, *config.ClusterConfig, error) {
	if cfg.ClusterConfig == "" {
		return "", nil, errors.New("no cluster config given")
	}
	path, err := config.FetchClusterConfig(ctx, cfg.ClusterConfig, workDir)
	if err != nil {
		return "", nil, err
	}
	clusterCfg, err := config.LoadClusterConfig(path)
	if err != nil {
		return "", nil, err
	}
	if !prepareImage {
		return path, clusterCfg, nil
	}

	ref, err := clusterImage(cfg.Docker, clusterCfg.Docker.Image)
	if err != nil {
		return "", nil, err
	}
	if ref == clusterCfg.Docker.Image {
		return path, clusterCfg, nil
	}
	clusterCfg.SetDockerImage(ref)
	path, err = clusterCfg.WriteTemp(workDir)
	if err != nil {
		return "", nil, err
	}
	logging.Debug("cluster config with image %s written to %s", ref, path)
	return path, clusterCfg, nil
}

// clusterImage returns the image the cluster should run.
func clusterImage(opts config.DockerOptions, current string) (string, error) {
	if opts.Build.Enabled() {
		build := opts.Build
		if build.BaseImage == "" {
			build.BaseImage = current
		}
		if build.BaseImage == "" {
			return "", errors.New("docker.build needs docker.build.base_image or docker.image in the cluster config")
		}
		ignore, err := syncignore.Load(build.ContextDir, nil)
		if err != nil {
			return "", err
		}
		return image.Build(image.BuildOptions{
			BaseImage:  build.BaseImage,
			ContextDir: build.ContextDir,
			TargetDir:  build.TargetDir,
			Repository: build.Repository,
			Platform:   image.DockerPlatform(build.Platform),
			Ignore:     ignore,
		})
	}
	if opts.PinDigest && current != "" {
		platform := image.DockerPlatform(opts.Build.Platform)
		if platform == "" {
			platform = image.LinuxAMD64
		}
		return image.PinDigest(current, platform)
	}
	return current, nil
}

// NewClient builds the cluster wrapper for a launcher config.
func NewClient(cfg *config.LauncherConfig, clusterConfigPath string) *cluster.Client {
	c := cluster.NewClient(clusterConfigPath, cfg.Docker.Enabled)
	c.Binary = cfg.RayBinary
	return c
}

// New creates a Launcher from the launcher config. Temporary files, such as
// a downloaded cluster config, go to workDir.
func New(ctx context.Context, cfg *config.LauncherConfig, workDir string) (*Launcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clusterPath, clusterCfg, err := ResolveClusterConfig(ctx, cfg, workDir, true)
	if err != nil {
		return nil, err
	}

	l := &Launcher{
		Cluster: NewClient(cfg, clusterPath),
		Options: Options{
			Run: jobspec.RunContext{
				AppName:     cfg.Run.AppName,
				SweepDir:    cfg.Run.SweepDir,
				SweepSubdir: cfg.Run.SweepSubdir,
				Env:         cfg.Run.Env,
				Executor: jobspec.ExecutorConfig{
					Workers:     cfg.Executor.Workers,
					TaskTimeout: cfg.Executor.TaskTimeout,
				},
			},
			StopCluster:       cfg.ShouldStopCluster(),
			CacheStoppedNodes: clusterCfg.CacheStoppedNodes(),
			RemoteBinary:      cfg.Remote.Binary,
			RemoteCommand:     cfg.Remote.Command,
			SyncUp:            cfg.SyncUp,
			SyncDown:          cfg.SyncDown,
			StagingDir:        workDir,
		},
	}
	if cfg.Archive.Enabled() {
		a, err := archive.New(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to set up archive: %w", err)
		}
		l.Archiver = a
	}
	return l, nil
}
