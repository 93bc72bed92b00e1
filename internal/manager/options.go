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

package manager

import (
	"log/slog"

	"github.com/fieldkit-run/warden/internal/shm"
)

type options struct {
	name             string
	coreFrequency    float64
	registry         *shm.Registry
	logger           *slog.Logger
	keepSharedMemory bool
}

// Option configures a Manager at construction time, the same functional
// options shape internal/runner uses for ThreadRunner/ProcessRunner.
type Option func(*options)

// WithName sets the name the Manager's own Status is published under.
// Defaults to "manager".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithCoreFrequency overrides the Manager's own reconciliation tick rate
// (Hz). Defaults to runner.DefaultCoreFrequency.
func WithCoreFrequency(hz float64) Option {
	return func(o *options) { o.coreFrequency = hz }
}

// WithRegistry binds the Manager, and every runner it spawns, to a specific
// shm.Registry instead of the package-wide default. Tests use this for
// isolation; a real daemon normally leaves it unset.
func WithRegistry(reg *shm.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger overrides the *slog.Logger the Manager logs reconciliation
// events through.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithKeepSharedMemory keeps Shared Memory records (including every
// runner's Status) around after Stop returns, so post-mortem inspection
// still works. Default is to clear it.
func WithKeepSharedMemory() Option {
	return func(o *options) { o.keepSharedMemory = true }
}

func buildOptions(opts []Option) options {
	o := options{name: "manager", coreFrequency: 0}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = shm.Default
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
