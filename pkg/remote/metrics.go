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

package remote

import (
	"fmt"
	"path/filepath"
	"time"

	"ray-launcher/pkg/jobspec"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
)

// MetricsFileName is the Prometheus textfile written next to the returns.
const MetricsFileName = "metrics.prom"

type batchMetrics struct {
	registry    *prometheus.Registry
	jobs        *prometheus.CounterVec
	jobDuration prometheus.Histogram
	batchTime   prometheus.Gauge
	finishedAt  prometheus.Gauge
	info        *prometheus.GaugeVec
}

func newBatchMetrics() *batchMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &batchMetrics{
		registry: reg,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "launcher_jobs_total",
			Help: "Jobs run in the batch, by final status",
		}, []string{"status"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "launcher_job_duration_seconds",
			Help:    "Wall time of each job in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		batchTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "launcher_batch_duration_seconds",
			Help: "Wall time from reading the job spec to collecting all returns",
		}),
		finishedAt: factory.NewGauge(prometheus.GaugeOpts{
			Name: "launcher_batch_completion_timestamp_seconds",
			Help: "Unix time the batch finished",
		}),
		info: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "launcher_batch_info",
			Help: "Constant 1, labelled with the batch identity",
		}, []string{"batch_id", "instance_id", "task"}),
	}
}

func (m *batchMetrics) observe(spec *jobspec.JobSpec, instanceID string, results []jobspec.JobReturn, elapsed time.Duration, now time.Time) {
	m.info.WithLabelValues(spec.BatchID, instanceID, spec.Task.Name).Set(1)
	// Both series exist even when no job ended that way.
	m.jobs.WithLabelValues(string(jobspec.StatusCompleted))
	m.jobs.WithLabelValues(string(jobspec.StatusFailed))
	for _, r := range results {
		m.jobs.WithLabelValues(string(r.Status)).Inc()
		m.jobDuration.Observe(r.Duration.Seconds())
	}
	m.batchTime.Set(elapsed.Seconds())
	m.finishedAt.Set(float64(now.Unix()))
}

func (m *batchMetrics) write(fs afero.Fs, dir string) (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}
	path := filepath.Join(dir, MetricsFileName)
	f, err := fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return "", fmt.Errorf("failed to write metrics to %s: %w", path, err)
		}
	}
	return path, nil
}
