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

	"github.com/fieldkit-run/warden/internal/config"
	"github.com/fieldkit-run/warden/internal/shm"
	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// options collects the optional construction parameters shared by
// ThreadRunner and ProcessRunner.
type options struct {
	registry   *shm.Registry
	kind       string
	category   string
	coreFreq   float64
	interrupts []InterruptPredicate
	logger     *slog.Logger
}

// Option configures a runner at construction time.
type Option func(*options)

// WithKind records the registered iterator kind the runner was built
// from; it tags the harness's iterate logs.
func WithKind(kind string) Option {
	return func(o *options) { o.kind = kind }
}

// WithCategory sets the Status category tag.
func WithCategory(category string) Option {
	return func(o *options) { o.category = category }
}

// WithCoreFrequency overrides the harness's polling cadence (default 200 Hz).
func WithCoreFrequency(hz float64) Option {
	return func(o *options) { o.coreFreq = hz }
}

// WithInterrupts installs interrupt predicates polled during the
// inter-iterate wait.
func WithInterrupts(preds ...InterruptPredicate) Option {
	return func(o *options) { o.interrupts = preds }
}

// WithLogger overrides the logger the harness reports through.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry binds the runner's Status to a specific shm.Registry instead
// of the process-wide default; tests use this for isolation.
func WithRegistry(reg *shm.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func buildOptions(opts []Option) *options {
	o := &options{registry: shm.Default}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ThreadRunner runs the harness loop on a goroutine of the hosting process,
// sharing its shm.Registry directly.
type ThreadRunner struct {
	h  *harness
	it Iterator
}

// NewThreadRunner constructs a ThreadRunner. it must have been wrapped with
// Guard; an unguarded Iterator fails construction with MissingGuardError.
func NewThreadRunner(name string, it Iterator, provider config.Provider, opts ...Option) (*ThreadRunner, error) {
	o := buildOptions(opts)
	if _, ok := it.(guarded); !ok {
		return nil, &wardenerrors.MissingGuardError{Kind: o.kind}
	}

	h := newHarness(o.registry, name, o.kind, o.category, provider, o.coreFreq, o.interrupts, o.logger)

	return &ThreadRunner{h: h, it: it}, nil
}

// Name implements Instance.
func (r *ThreadRunner) Name() string { return r.h.Name() }

// Start moves the runner Off -> Starting and spawns its worker goroutine.
// Idempotent if already live.
func (r *ThreadRunner) Start() {
	if !r.h.beginStart() {
		return
	}
	go r.h.runLoop(context.Background(), r.it)
}

// Stop signals the worker to exit. If blocking, it returns only once the
// runner has reached Off.
func (r *ThreadRunner) Stop(blocking bool) {
	r.h.requestStop()
	if blocking {
		r.h.waitDone()
	}
}

// Stopped reports whether the worker has exited.
func (r *ThreadRunner) Stopped() bool { return r.h.Stopped() }

// Alive reports whether the worker is neither Off nor Error.
func (r *ThreadRunner) Alive() bool { return r.h.Alive() }

// Revive restarts the runner from Error. Invalid from any other state.
func (r *ThreadRunner) Revive() error {
	if !r.h.beginRevive() {
		return nil
	}
	go r.h.runLoop(context.Background(), r.it)
	return nil
}

// GetConfig returns the last configuration the harness observed.
func (r *ThreadRunner) GetConfig() config.Value { return r.h.GetConfig() }
