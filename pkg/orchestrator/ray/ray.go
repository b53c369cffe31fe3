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

// Package ray submits sweeps to a ray cluster: it ships a job spec to the
// head node, runs the remote entry point there and brings the returns back.
package ray

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"ray-launcher/pkg/cluster"
	"ray-launcher/pkg/config"
	"ray-launcher/pkg/jobspec"
	"ray-launcher/pkg/logging"
	"ray-launcher/pkg/orchestrator"
	"ray-launcher/pkg/remote"
	"ray-launcher/pkg/syncignore"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ClusterController is the set of cluster operations a launch uses.
// *cluster.Client implements it.
type ClusterController interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	SyncUp(ctx context.Context, localPath, remotePath string) error
	SyncDown(ctx context.Context, remotePath, localPath string) error
	Exec(ctx context.Context, command string) (string, error)
	TmpDir(ctx context.Context) (string, error)
	RemoveDir(ctx context.Context, dir string) error
	NewDir(ctx context.Context, dir string) error
	Rsync(ctx context.Context, opts cluster.RsyncOptions) error
}

// Uploader archives a file of a batch.
type Uploader interface {
	Upload(ctx context.Context, batchID, localPath string) (string, error)
}

// Options controls a launch.
type Options struct {
	Run jobspec.RunContext
	// StopCluster tears the cluster down after the launch.
	StopCluster bool
	// CacheStoppedNodes mirrors provider.cache_stopped_nodes, for logging.
	CacheStoppedNodes bool
	// RemoteBinary is the executable uploaded as entry point; the running
	// executable when empty.
	RemoteBinary string
	// RemoteCommand replaces the uploaded binary with a command already
	// present on the head node. The remote dir is appended to it.
	RemoteCommand string
	SyncUp        config.SyncOptions
	SyncDown      config.SyncOptions
	// StagingDir is the parent of the local staging dirs; the system temp
	// dir when empty.
	StagingDir string
}

// Launcher implements orchestrator.Orchestrator for ray clusters.
type Launcher struct {
	Cluster  ClusterController
	Options  Options
	Archiver Uploader
}

var _ orchestrator.Orchestrator = (*Launcher)(nil)

// SubmitJob runs the sweep on the cluster and returns one result per job in
// sweep order.
func (l *Launcher) SubmitJob(ctx context.Context, def orchestrator.JobDefinition) (results []jobspec.JobReturn, err error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	batchID := def.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	log := logging.WithField("batch_id", batchID)

	spec := jobspec.New(batchID, def.JobConfigs(), jobspec.TaskRef{Name: def.TaskName}, l.Options.Run)
	if l.Options.SyncUp.IsSet() {
		rev, err := sourceRevision(l.syncUpSource())
		if err != nil {
			log.Warnf("could not determine source revision: %v", err)
		}
		spec.SourceRevision = rev
	}

	st, err := newStage(l.Options.StagingDir)
	if err != nil {
		return nil, err
	}
	defer st.cleanup()
	if err := st.writeSpec(spec); err != nil {
		return nil, err
	}
	if l.Options.RemoteCommand == "" {
		if err := st.addBinary(l.Options.RemoteBinary); err != nil {
			return nil, err
		}
	}

	log.Infof("Launching %d jobs of task %q on ray cluster", len(spec.Jobs), spec.Task.Name)
	if err := l.Cluster.Up(ctx); err != nil {
		return nil, fmt.Errorf("failed to start ray cluster: %w", err)
	}
	// Teardown must still run after an interrupt cancels ctx.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		err = errors.Join(err, l.stopCluster(cleanupCtx))
	}()

	remoteDir, err := l.Cluster.TmpDir(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("Created temp path on remote server %s", remoteDir)
	defer func() {
		if rmErr := l.Cluster.RemoveDir(cleanupCtx, remoteDir); rmErr != nil {
			log.Warnf("failed to remove remote temp dir %s: %v", remoteDir, rmErr)
		}
	}()

	if err := l.Cluster.SyncUp(ctx, withSlash(st.dir), withSlash(remoteDir)); err != nil {
		return nil, fmt.Errorf("failed to upload job spec: %w", err)
	}
	if l.Options.SyncUp.IsSet() {
		if err := l.syncUp(ctx, remoteDir); err != nil {
			return nil, err
		}
	}

	command := entryCommand(remoteDir, l.Options.RemoteCommand)
	log.Infof("Running remote entry point: %s", command)
	out, execErr := l.Cluster.Exec(ctx, command)
	if out != "" {
		logging.Debug("remote entry point output:\n%s", out)
	}
	if execErr != nil {
		log.Errorf("remote entry point failed: %v", execErr)
		execErr = fmt.Errorf("remote entry point failed: %w", execErr)
	}

	results, err = l.fetchReturns(cleanupCtx, remoteDir, st.returnsDir, execErr)
	if err != nil {
		return nil, err
	}
	if len(results) != len(spec.Jobs) {
		return nil, fmt.Errorf("got %d job returns for %d jobs", len(results), len(spec.Jobs))
	}

	if l.Options.SyncDown.IsSet() {
		if err := l.syncDown(ctx); err != nil {
			return nil, err
		}
	}
	if l.Archiver != nil {
		l.archive(ctx, batchID, st.returnsDir)
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	log.Infof("Collected %d job returns, %d failed", len(results), failed)
	return results, nil
}

// fetchReturns brings the returns file back and decodes it. When the remote
// run failed, no returns file exists and the error matches fs.ErrNotExist.
func (l *Launcher) fetchReturns(ctx context.Context, remoteDir, localDir string, execErr error) ([]jobspec.JobReturn, error) {
	remoteReturns := path.Join(remoteDir, jobspec.ReturnsFileName)
	syncErr := l.Cluster.SyncDown(ctx, remoteReturns, withSlash(localDir))
	if syncErr != nil {
		syncErr = fmt.Errorf("failed to download job returns: %w", syncErr)
	}
	if execErr == nil {
		remoteMetrics := path.Join(remoteDir, remote.MetricsFileName)
		if err := l.Cluster.SyncDown(ctx, remoteMetrics, withSlash(localDir)); err != nil {
			logging.Warn("failed to download batch metrics: %v", err)
		}
	}

	returns, readErr := jobspec.ReadReturns(afero.NewOsFs(), localDir)
	if readErr != nil {
		return nil, errors.Join(execErr, syncErr, readErr)
	}
	if execErr != nil {
		return nil, execErr
	}
	return returns.Results, nil
}

func (l *Launcher) syncUpSource() string {
	if l.Options.SyncUp.SourceDir == "" {
		return "."
	}
	return l.Options.SyncUp.SourceDir
}

// syncUp rsyncs the user's code dir to the head node. The target defaults to
// the remote temp dir.
func (l *Launcher) syncUp(ctx context.Context, remoteDir string) error {
	opts := l.Options.SyncUp
	source := l.syncUpSource()
	target := opts.TargetDir
	if target == "" {
		target = remoteDir
	}

	ignore, err := syncignore.Load(source, opts.Exclude)
	if err != nil {
		return err
	}
	stats, err := ignore.Scan(source)
	if err != nil {
		return err
	}
	logging.Info("Syncing %d files (%d bytes, %d paths ignored) from %s", stats.Files, stats.Bytes, stats.Ignored, source)
	logging.Debug("sync up ignore patterns: %v", ignore.Patterns())

	include, exclude := ignore.RsyncFilters()
	include = append(append([]string(nil), opts.Include...), include...)
	if err := l.Cluster.NewDir(ctx, target); err != nil {
		return fmt.Errorf("failed to create remote dir %s: %w", target, err)
	}
	err = l.Cluster.Rsync(ctx, cluster.RsyncOptions{
		Source:  withSlash(source),
		Target:  withSlash(target),
		Include: include,
		Exclude: exclude,
		Up:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to sync up %s: %w", source, err)
	}
	return nil
}

// syncDown rsyncs job outputs back. Source defaults to the remote sweep dir
// and target to the same path locally.
func (l *Launcher) syncDown(ctx context.Context) error {
	opts := l.Options.SyncDown
	source := opts.SourceDir
	if source == "" {
		source = l.Options.Run.SweepDir
	}
	target := opts.TargetDir
	if target == "" {
		target = filepath.FromSlash(l.Options.Run.SweepDir)
	}
	err := l.Cluster.Rsync(ctx, cluster.RsyncOptions{
		Source:  withSlash(source),
		Target:  withSlash(target),
		Include: opts.Include,
		Exclude: opts.Exclude,
	})
	if err != nil {
		return fmt.Errorf("failed to sync down %s: %w", source, err)
	}
	logging.Info("Synced job outputs from %s to %s", source, target)
	return nil
}

func (l *Launcher) stopCluster(ctx context.Context) error {
	if !l.Options.StopCluster {
		logging.Warn("NOT stopping the ray cluster; it keeps running and may incur extra cost.")
		return nil
	}
	if l.Options.CacheStoppedNodes {
		logging.Info("Stopping cluster now. provider.cache_stopped_nodes is true, so nodes are stopped and kept for reuse.")
	} else {
		logging.Info("Stopping cluster now. provider.cache_stopped_nodes is false, so nodes are terminated.")
	}
	if err := l.Cluster.Down(ctx); err != nil {
		return fmt.Errorf("failed to stop ray cluster: %w", err)
	}
	return nil
}

// archive uploads the returns and, if present, the metrics of a batch.
// Failures are logged; the results are already available locally.
func (l *Launcher) archive(ctx context.Context, batchID, dir string) {
	for _, name := range []string{jobspec.ReturnsFileName, remote.MetricsFileName} {
		p := filepath.Join(dir, name)
		if ok, _ := afero.Exists(afero.NewOsFs(), p); !ok {
			continue
		}
		if _, err := l.Archiver.Upload(ctx, batchID, p); err != nil {
			logging.Warn("failed to archive %s: %v", name, err)
		}
	}
}
