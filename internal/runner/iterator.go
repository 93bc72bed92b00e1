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

// Package runner implements the lifecycle-managed worker contract: a
// concrete Iterator advances at a configured frequency, inside a harness
// that catches its failures, polls for stop/interrupt, and publishes a
// Status. ThreadRunner and ProcessRunner share the same harness and expose
// identical Start/Stop/Revive semantics.
package runner

import (
	"context"

	"github.com/fieldkit-run/warden/internal/status"
)

// Iterator is the single user-supplied step a runner advances at its
// configured frequency. Any error it returns is caught by the harness and
// turned into a Status error state; it never escapes to the caller.
type Iterator interface {
	Iterate(ctx context.Context) error
}

// statusContextKey keys the runner's own Status handle into the context
// the harness passes to Iterate.
type statusContextKey struct{}

// StatusFromContext returns the Status of the runner whose harness invoked
// the current Iterate call, or nil when ctx did not come from a harness.
// This is how iterate code publishes its entries and sets or clears its
// own issue; the lifecycle state itself stays the harness's to manage.
func StatusFromContext(ctx context.Context) *status.Status {
	s, _ := ctx.Value(statusContextKey{}).(*status.Status)
	return s
}

// ConfigChangeHandler is an optional interface an Iterator may implement to
// react to a configuration change observed by the harness before the next
// Iterate call. Implementing it is never required: the harness always
// applies the new configuration regardless.
type ConfigChangeHandler interface {
	OnConfigChange(newConfig, oldConfig map[string]any) error
}

// guarded is the unexported marker interface Guard attaches. Concrete
// runner constructors refuse to build from an Iterator that does not
// implement it.
type guarded interface {
	guardedMarker()
}

type guardedIterator struct {
	Iterator
}

func (guardedIterator) guardedMarker() {}

type guardedConfigIterator struct {
	Iterator
	ConfigChangeHandler
}

func (guardedConfigIterator) guardedMarker() {}

// Guard wraps it so it satisfies the unexported guarded marker: the
// invariant that no iterate error escapes unreported becomes a structural
// property of the harness, checked at construction time rather than left
// to an easily-forgotten opt-in.
func Guard(it Iterator) Iterator {
	if h, ok := it.(ConfigChangeHandler); ok {
		return guardedConfigIterator{Iterator: it, ConfigChangeHandler: h}
	}
	return guardedIterator{Iterator: it}
}
