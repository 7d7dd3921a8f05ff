// Copyright (c) 2026 John Earle
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

// Package metrics exposes Prometheus counters for the admission
// pipeline. The collector subscribes to queue lifecycle events; the
// queue itself stays metrics-agnostic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskbrief/intake/internal/events"
	"github.com/taskbrief/intake/internal/models"
)

// Metrics holds the pipeline's Prometheus instruments.
type Metrics struct {
	jobsTotal        *prometheus.CounterVec
	jobsInFlight     prometheus.Gauge
	validationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the instrument set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_jobs_total",
				Help: "Queue job state transitions by state",
			},
			[]string{"state"},
		),
		jobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "intake_jobs_in_flight",
				Help: "Jobs currently executing in the worker pool",
			},
		),
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_validations_total",
				Help: "Security pipeline verdicts by disposition",
			},
			[]string{"verdict"},
		),
		registry: registry,
	}

	registry.MustRegister(m.jobsTotal, m.jobsInFlight, m.validationsTotal)
	return m
}

// Observe subscribes the collector to the queue lifecycle events.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.EmailQueued, func(ev events.JobEvent) {
		m.jobsTotal.WithLabelValues(string(models.JobQueued)).Inc()
	})
	bus.Subscribe(events.EmailProcessingStarted, func(ev events.JobEvent) {
		m.jobsInFlight.Inc()
	})
	bus.Subscribe(events.EmailProcessingCompleted, func(ev events.JobEvent) {
		m.jobsInFlight.Dec()
		m.jobsTotal.WithLabelValues(string(models.JobCompleted)).Inc()
	})
	bus.Subscribe(events.EmailProcessingFailed, func(ev events.JobEvent) {
		m.jobsInFlight.Dec()
		m.jobsTotal.WithLabelValues(string(models.JobFailed)).Inc()
	})
}

// RecordValidation counts one pipeline verdict.
func (m *Metrics) RecordValidation(res models.ValidationResult) {
	verdict := "allowed"
	switch {
	case res.Quarantine:
		verdict = "quarantined"
	case !res.Allowed:
		verdict = "blocked"
	}
	m.validationsTotal.WithLabelValues(verdict).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
