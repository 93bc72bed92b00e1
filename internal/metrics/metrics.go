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

// Package metrics exposes Prometheus instrumentation for the Manager's
// reconciliation loop: runner counts by state and tick duration, via a
// small set of package-level promauto collectors and thin record/set
// wrapper functions around them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunnersByState tracks the current number of live runners per
	// lifecycle state, refreshed once per reconciliation tick.
	RunnersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warden_manager_runners_by_state",
			Help: "Number of runners currently in each lifecycle state",
		},
		[]string{"state"},
	)

	// ReconcileTicks counts completed reconciliation ticks.
	ReconcileTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_manager_reconcile_ticks_total",
			Help: "Total number of Manager reconciliation ticks completed",
		},
	)

	// ReconcileDuration observes the wall-clock time of one reconciliation
	// tick, including spawn/stop/revive work issued on that tick.
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_manager_reconcile_duration_seconds",
			Help:    "Duration of a single Manager reconciliation tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RunnerSpawns counts runners started, keyed by the outcome
	// ("started", "instantiate_error").
	RunnerSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_manager_runner_spawns_total",
			Help: "Total runner spawn attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RunnerRevives counts revive attempts issued against runners found in
	// Error at the end of a tick.
	RunnerRevives = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_manager_runner_revives_total",
			Help: "Total runner revive attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RunnerErrorFlapsSuppressed counts error-state log lines the
	// Manager's rate limiter dropped for a flapping runner.
	RunnerErrorFlapsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_manager_runner_error_log_suppressed_total",
			Help: "Total runner error log lines suppressed by the flap rate limiter",
		},
	)
)

// SetRunnersByState replaces the runners-by-state gauge in one shot on
// each poll rather than incrementing/decrementing it piecemeal.
func SetRunnersByState(counts map[string]int) {
	for _, state := range []string{"off", "starting", "running", "stopping", "error"} {
		RunnersByState.WithLabelValues(state).Set(float64(counts[state]))
	}
}

// RecordSpawn increments RunnerSpawns for outcome ("started" or
// "instantiate_error").
func RecordSpawn(outcome string) {
	RunnerSpawns.WithLabelValues(outcome).Inc()
}

// RecordRevive increments RunnerRevives for outcome ("revived" or
// "revive_error").
func RecordRevive(outcome string) {
	RunnerRevives.WithLabelValues(outcome).Inc()
}
