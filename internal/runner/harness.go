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

package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldkit-run/warden/internal/config"
	wardenlog "github.com/fieldkit-run/warden/internal/log"
	"github.com/fieldkit-run/warden/internal/shm"
	"github.com/fieldkit-run/warden/internal/status"
	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// DefaultCoreFrequency is the harness's own polling cadence (Hz),
// independent of any runner's configured iterate frequency.
const DefaultCoreFrequency = 200.0

// InterruptPredicate is a cheap, non-blocking check that ends an
// in-progress inter-iterate wait early when it returns true. It is polled,
// never awaited.
type InterruptPredicate func() bool

// Instance is the operation set common to ThreadRunner and ProcessRunner,
// the surface the Manager drives.
type Instance interface {
	Name() string
	Start()
	Stop(blocking bool)
	Stopped() bool
	Alive() bool
	Revive() error
	GetConfig() config.Value
}

// harness owns the lifecycle state machine, the pre-iterate config-equality
// check, the cooperative core-frequency sleep loop, and the iterate-error
// catch. ThreadRunner and ProcessRunner each supply their own "work" (run
// in a goroutine, or in a spawned child process) but share this type for
// everything else.
type harness struct {
	name     string
	kind     string
	category string
	provider config.Provider
	coreFreq float64
	interrupts []InterruptPredicate
	status   *status.Status
	logger   *slog.Logger
	iterLog  *wardenlog.IterateMiddleware

	mu            sync.Mutex
	state         status.State
	appliedConfig config.Value
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func newHarness(reg *shm.Registry, name, kind, category string, provider config.Provider, coreFreq float64, interrupts []InterruptPredicate, logger *slog.Logger) *harness {
	if coreFreq <= 0 {
		coreFreq = DefaultCoreFrequency
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = wardenlog.WithRunner(logger, name, kind)
	return &harness{
		name:     name,
		kind:     kind,
		category: category,
		provider: provider,
		coreFreq: coreFreq,
		interrupts: interrupts,
		status:   status.New(reg, name, category),
		logger:   logger,
		iterLog:  wardenlog.NewIterateMiddleware(logger),
		state:    status.Off,
	}
}

// Name returns the runner's declared name.
func (h *harness) Name() string { return h.name }

// Stopped reports whether the worker has exited.
func (h *harness) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == status.Off
}

// Alive reports whether the worker is neither Off nor Error.
func (h *harness) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != status.Off && h.state != status.Error
}

// GetConfig returns the last configuration the harness observed.
func (h *harness) GetConfig() config.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appliedConfig
}

// beginStart moves Off -> Starting and arms fresh life-scoped channels. It
// returns false (a no-op) if the runner is already live, matching the
// idempotent Start() contract.
func (h *harness) beginStart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != status.Off {
		return false
	}
	h.state = status.Starting
	h.appliedConfig = nil
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.status.State(status.Starting, "")
	return true
}

// beginRevive moves Error -> Starting. Only valid from Error; it is a no-op
// from any other state.
func (h *harness) beginRevive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != status.Error {
		return false
	}
	h.state = status.Starting
	h.appliedConfig = nil
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.status.State(status.Starting, "")
	return true
}

// requestStop signals the worker to exit at its next sleep-poll boundary.
func (h *harness) requestStop() {
	h.mu.Lock()
	if h.state == status.Off {
		h.mu.Unlock()
		return
	}
	if h.state == status.Running || h.state == status.Starting {
		h.state = status.Stopping
		h.status.State(status.Stopping, "")
	}
	stopCh := h.stopCh
	h.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
}

// waitDone blocks until the current life's worker goroutine/process exits.
func (h *harness) waitDone() {
	h.mu.Lock()
	doneCh := h.doneCh
	h.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (h *harness) stopRequested() bool {
	h.mu.Lock()
	stopCh := h.stopCh
	h.mu.Unlock()
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (h *harness) markRunning() {
	h.mu.Lock()
	changed := h.state != status.Running
	if changed {
		h.state = status.Running
	}
	h.mu.Unlock()
	if changed {
		h.status.State(status.Running, "")
	}
}

func (h *harness) markOff() {
	h.mu.Lock()
	h.state = status.Off
	done := h.doneCh
	h.mu.Unlock()
	h.status.State(status.Off, "")
	if done != nil {
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

func (h *harness) markError(err error) {
	h.mu.Lock()
	h.state = status.Error
	done := h.doneCh
	h.mu.Unlock()
	h.status.State(status.Error, err.Error())
	h.logger.Error("runner iterate failed", wardenlog.Error(err))
	if done != nil {
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

func (h *harness) setAppliedConfig(cfg config.Value) {
	h.mu.Lock()
	h.appliedConfig = cfg
	h.mu.Unlock()
}

// runLoop drives one life of the harness: repeatedly fetch config, apply it
// on change, call iterate, and wait. It returns only when the loop exits
// (stop requested or iterate failed) and has already updated Status
// accordingly.
func (h *harness) runLoop(ctx context.Context, it Iterator) {
	ctx = context.WithValue(ctx, statusContextKey{}, h.status)
	handler, hasHandler := it.(ConfigChangeHandler)
	applied := config.Value{}
	first := true
	call := &wardenlog.IterateCall{Runner: h.name, Kind: h.kind}

	for {
		if h.stopRequested() {
			h.markOff()
			return
		}

		cfg, err := h.provider.Get()
		if err != nil {
			h.markError(&wardenerrors.ConfigError{Key: h.name, Reason: "config provider failed", Cause: err})
			return
		}

		if first || !config.Equal(cfg, applied) {
			if hasHandler {
				if err := handler.OnConfigChange(cfg, applied); err != nil {
					h.markError(err)
					return
				}
			}
			applied = cfg
			first = false
		}
		h.setAppliedConfig(cfg)

		if err := h.iterLog.Wrap(call, func() error { return it.Iterate(ctx) }); err != nil {
			h.markError(&wardenerrors.IterateError{Runner: h.name, Cause: err})
			return
		}
		h.markRunning()

		freq := frequencyOf(cfg)
		h.wait(freq)
	}
}

// wait performs the cooperative, interruptible sleep between iterates: it
// sleeps in core-period increments, checking stop/interrupts/elapsed after
// each one, and returns as soon as any of those three conditions holds.
func (h *harness) wait(freq float64) {
	if freq <= 0 {
		freq = 1
	}
	period := time.Duration(float64(time.Second) / h.coreFreq)
	if period <= 0 {
		period = time.Millisecond
	}
	deadline := time.Now().Add(time.Duration(float64(time.Second) / freq))

	for {
		if h.stopRequested() {
			return
		}
		for _, pred := range h.interrupts {
			if pred() {
				return
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		sleep := period
		if remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}

// frequencyOf reads the "frequency" field required of every runner
// configuration. A missing or non-numeric value falls back to 1 Hz rather
// than dividing by zero.
func frequencyOf(cfg config.Value) float64 {
	switch v := cfg["frequency"].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 1
	}
}
