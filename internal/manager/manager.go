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

// Package manager implements the Manager: the supervisor that reconciles a
// declared set of runners (read from a Manager Config Provider) against the
// live set it currently owns, spawning, stopping, respawning and reviving
// runners each tick.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldkit-run/warden/internal/config"
	wardenlog "github.com/fieldkit-run/warden/internal/log"
	"github.com/fieldkit-run/warden/internal/metrics"
	"github.com/fieldkit-run/warden/internal/runner"
	"github.com/fieldkit-run/warden/internal/shm"
	"github.com/fieldkit-run/warden/internal/status"
)

// errorLogRate bounds how often the Manager logs the same runner's repeated
// Error-state revival at more than one event per two seconds, so a runner
// stuck flapping between Error and Starting cannot spam the logger.
const errorLogRate = rate.Limit(0.5)

// liveRunner pairs a running runner.Instance with the Factory that
// produced it, so a later tick can tell whether the declaration backing it
// has structurally changed.
type liveRunner struct {
	instance runner.Instance
	factory  runner.Factory
}

// Manager owns the set of live runners and the reconciliation tick loop
// that keeps it matching a Manager Config Provider's declaration.
type Manager struct {
	cfgProvider Provider
	reg         *shm.Registry
	coreFreq    float64
	logger      *slog.Logger
	keep        bool
	status      *status.Status

	mu          sync.Mutex
	live        map[string]*liveRunner
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	errorLogLim map[string]*rate.Limiter
}

// New constructs a Manager against cfgProvider. The Manager does not start
// reconciling until Start is called.
func New(cfgProvider Provider, opts ...Option) *Manager {
	o := buildOptions(opts)
	coreFreq := o.coreFrequency
	if coreFreq <= 0 {
		coreFreq = runner.DefaultCoreFrequency
	}
	return &Manager{
		cfgProvider: cfgProvider,
		reg:         o.registry,
		coreFreq:    coreFreq,
		logger:      o.logger.With(slog.String("component", "manager")),
		keep:        o.keepSharedMemory,
		status:      status.New(o.registry, o.name, ""),
		live:        map[string]*liveRunner{},
		errorLogLim: map[string]*rate.Limiter{},
	}
}

// Alive reports whether the Manager's own Status is neither Off nor Error.
func (m *Manager) Alive() bool {
	snap := m.status.Get()
	return snap.State != status.Off && snap.State != status.Error
}

// Start begins the reconciliation loop: an immediate tick, then one every
// core period, until ctx is cancelled or Stop is called. Start is
// idempotent — calling it while already running is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	m.status.State(status.Starting, "")
	m.status.State(status.Running, "")

	go m.run(ctx, stopCh, doneCh)
}

func (m *Manager) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	period := time.Duration(float64(time.Second) / m.coreFreq)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one reconciliation pass: diff the declared set against the
// live set, stop removed runners, stop and respawn changed ones, spawn
// new ones, and attempt to revive any runner sitting in Error.
func (m *Manager) tick() {
	start := time.Now()
	defer func() {
		metrics.ReconcileTicks.Inc()
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	declared, err := m.cfgProvider.Get()
	if err != nil {
		m.logger.Error("manager config provider failed", wardenlog.Error(err))
		return
	}

	m.mu.Lock()
	liveNames := make(map[string]struct{}, len(m.live))
	for name := range m.live {
		liveNames[name] = struct{}{}
	}
	d := computeDiff(declared, liveNames)
	wardenlog.Trace(m.logger, "reconcile tick",
		slog.Int("declared", len(declared)),
		slog.Int("added", len(d.added)),
		slog.Int("removed", len(d.removed)),
		slog.Int("retained", len(d.retained)),
	)

	for _, name := range d.removed {
		lr := m.live[name]
		delete(m.live, name)
		go func(name string, lr *liveRunner) {
			lr.instance.Stop(true)
			status.Delete(m.reg, name)
		}(name, lr)
	}

	for _, f := range d.added {
		m.spawn(f)
	}

	for _, f := range d.retained {
		prev := m.live[f.Name]
		if config.Equal(f.Spec(), prev.factory.Spec()) {
			continue
		}
		// Structurally different declaration for a name we already run:
		// stop the old instance and respawn fresh rather than trying to
		// hot-swap it in place.
		delete(m.live, f.Name)
		go func(old runner.Instance) { old.Stop(true) }(prev.instance)
		m.spawn(f)
	}

	stateCounts := make(map[string]int, 5)
	for _, lr := range m.live {
		if !lr.instance.Alive() && !lr.instance.Stopped() {
			if err := lr.instance.Revive(); err != nil {
				metrics.RecordRevive("revive_error")
				if m.errorLogLimiter(lr.instance.Name()).Allow() {
					m.logger.Error("runner revive failed", slog.String("runner", lr.instance.Name()), wardenlog.Error(err))
				} else {
					metrics.RunnerErrorFlapsSuppressed.Inc()
				}
			} else {
				metrics.RecordRevive("revived")
			}
		}
		if s, err := status.Retrieve(m.reg, lr.instance.Name()); err == nil {
			stateCounts[string(s.Get().State)]++
		}
	}
	metrics.SetRunnersByState(stateCounts)
	m.mu.Unlock()
}

// errorLogLimiter returns the per-runner rate.Limiter guarding how often a
// repeated revive failure is logged, creating one on first use. Caller must
// hold m.mu.
func (m *Manager) errorLogLimiter(name string) *rate.Limiter {
	lim, ok := m.errorLogLim[name]
	if !ok {
		lim = rate.NewLimiter(errorLogRate, 1)
		m.errorLogLim[name] = lim
	}
	return lim
}

// spawn instantiates and starts f, recording it as live. Instantiation
// failures (an unregistered Iterator kind, a malformed ConfigSpec) are
// logged and skipped for this tick rather than aborting reconciliation: a
// single bad runner declaration must never take down the Manager itself.
// Caller must hold m.mu.
func (m *Manager) spawn(f runner.Factory) {
	instance, err := f.Instantiate(m.reg)
	if err != nil {
		metrics.RecordSpawn("instantiate_error")
		m.logger.Error("runner instantiate failed", slog.String("runner", f.Name), wardenlog.Error(err))
		return
	}
	m.live[f.Name] = &liveRunner{instance: instance, factory: f}
	instance.Start()
	metrics.RecordSpawn("started")
}

// Stop stops every live runner in parallel, waits for each to reach Off
// (or for ctx to be done, whichever comes first), tears down the
// reconciliation loop, and marks the Manager's own Status Off. Shared Memory is cleared unless WithKeepSharedMemory was set.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	select {
	case <-doneCh:
	case <-ctx.Done():
	}

	m.status.State(status.Stopping, "")

	m.mu.Lock()
	live := make([]runner.Instance, 0, len(m.live))
	for _, lr := range m.live {
		live = append(live, lr.instance)
	}
	m.live = map[string]*liveRunner{}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, instance := range live {
		wg.Add(1)
		go func(instance runner.Instance) {
			defer wg.Done()
			instance.Stop(true)
		}(instance)
	}
	allOff := make(chan struct{})
	go func() {
		wg.Wait()
		close(allOff)
	}()
	select {
	case <-allOff:
	case <-ctx.Done():
	}

	m.status.State(status.Off, "")
	if !m.keep {
		status.ClearAll(m.reg)
	}
}
