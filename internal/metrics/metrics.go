// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics provides Prometheus instrumentation for the workflow runner.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records runner metrics. A nil Recorder is safe to use and
// records nothing, so instrumentation stays optional.
type Recorder struct {
	runsTotal          *prometheus.CounterVec
	activitiesTotal    prometheus.Counter
	activityDuration   prometheus.Histogram
	workflowsSuspended prometheus.Counter
}

// NewRecorder creates a Recorder and registers its collectors on the given
// registerer. Pass prometheus.DefaultRegisterer for process-wide metrics.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conduit",
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by final status.",
		}, []string{"status"}),
		activitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conduit",
			Name:      "activities_executed_total",
			Help:      "Activity dispatches across all runs.",
		}),
		activityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conduit",
			Name:      "activity_duration_seconds",
			Help:      "Wall time of individual activity dispatches.",
			Buckets:   prometheus.DefBuckets,
		}),
		workflowsSuspended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conduit",
			Name:      "workflows_suspended_total",
			Help:      "Runs that ended suspended on a blocking activity.",
		}),
	}

	reg.MustRegister(r.runsTotal, r.activitiesTotal, r.activityDuration, r.workflowsSuspended)
	return r
}

// RunCompleted records a finished run with its final status.
func (r *Recorder) RunCompleted(status string) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(status).Inc()
	if status == "suspended" {
		r.workflowsSuspended.Inc()
	}
}

// ActivityDispatched records one activity dispatch and its duration.
func (r *Recorder) ActivityDispatched(duration time.Duration) {
	if r == nil {
		return
	}
	r.activitiesTotal.Inc()
	r.activityDuration.Observe(duration.Seconds())
}
