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

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the runner.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	runs       *prometheus.CounterVec
}

// NewMetrics registers the runner collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sscgate_operations_total",
				Help: "Total number of executed operations by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sscgate_operation_duration_seconds",
				Help:    "Operation execution time in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"type"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sscgate_pipeline_runs_total",
				Help: "Total number of pipeline runs by final severity",
			},
			[]string{"severity"},
		),
	}
}

func (m *Metrics) recordOperation(typeID string, kind OutcomeKind, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(typeID, string(kind)).Inc()
	m.duration.WithLabelValues(typeID).Observe(d.Seconds())
}

func (m *Metrics) recordRun(s Severity) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(s.String()).Inc()
}
