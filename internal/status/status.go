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

// Package status implements the per-runner health record: a thin wrapper
// over one internal/shm.Record that tracks lifecycle state, running time,
// and the current/previous error and issue messages.
package status

import (
	"sync"
	"time"

	"github.com/fieldkit-run/warden/internal/shm"
	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// State is a runner lifecycle state.
type State string

const (
	// Off is the initial state and the state after a clean loop exit.
	Off State = "off"
	// Starting is entered on a start or revive request, before the first
	// successful iterate.
	Starting State = "starting"
	// Running is entered after the first successful iterate.
	Running State = "running"
	// Stopping is entered on a stop request, before the loop has exited.
	Stopping State = "stopping"
	// Error is entered when an iterate call fails. Terminal for the
	// current life; requires an explicit revive.
	Error State = "error"
)

const (
	keyCategory      = "category"
	keyState         = "state"
	keyRunningSince  = "running_since"
	keyEntries       = "entries"
	keyErrorMessage  = "error_message"
	keyErrorPrevious = "error_previous"
	keyIssueMessage  = "issue_message"
	keyIssuePrevious = "issue_previous"
	keyMisc          = "miscellaneous"
)

// Field holds a current/previous pair, used for both error and issue.
type Field struct {
	Message  string
	Previous string
}

// Snapshot is an immutable copy of a Status record at a point in time.
type Snapshot struct {
	Name          string
	Category      string
	State         State
	RunningFor    *float64
	Entries       map[string]any
	Error         Field
	Issue         Field
	Miscellaneous map[string]any
}

// Status wraps the shm.Record named after a runner. Exactly one writer
// (the owning runner) should hold a given Status; concurrent reads go
// through Get/Retrieve.
type Status struct {
	mu       sync.Mutex
	registry *shm.Registry
	name     string
	record   *shm.Record
}

// New returns a Status bound to name's record in reg. A nil reg uses the
// package-wide default registry (shm.Default).
func New(reg *shm.Registry, name, category string) *Status {
	if reg == nil {
		reg = shm.Default
	}
	s := &Status{registry: reg, name: name, record: reg.Get(name)}
	s.record.Set(keyCategory, category)
	return s
}

// Name returns the runner name this Status reports for.
func (s *Status) Name() string { return s.name }

// State updates the lifecycle state. Entering Error stores errMsg as the
// current error message; leaving Error moves any current error message to
// Previous and clears it. Entering Running (from any other state) resets
// the running_for baseline to zero; leaving Running clears it.
func (s *Status) State(newState State, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentState()

	if newState == Error {
		s.record.Set(keyErrorMessage, errMsg)
	} else if prev == Error {
		if msg, ok := s.record.Get(keyErrorMessage); ok {
			if m, _ := msg.(string); m != "" {
				s.record.Set(keyErrorPrevious, m)
			}
		}
		s.record.Set(keyErrorMessage, "")
	}

	if newState == Running {
		// Stored as Unix nanoseconds, not a time.Time: a Process Runner's
		// delta bridge (internal/shm/bridge.go) round-trips every record
		// value through encoding/json, which turns a time.Time into an
		// RFC3339 string on decode into an `any` rather than preserving
		// the concrete type. An int64 survives that round trip losslessly
		// (decoding only widens it to float64, handled in runningFor).
		s.record.Set(keyRunningSince, time.Now().UnixNano())
	} else if prev == Running {
		s.record.Delete(keyRunningSince)
	}

	s.record.Set(keyState, string(newState))
}

func (s *Status) currentState() State {
	v, ok := s.record.Get(keyState)
	if !ok {
		return Off
	}
	str, _ := v.(string)
	return State(str)
}

// SetIssue records msg as the current issue, moving any prior current issue
// to Previous. Independent of lifecycle State.
func (s *Status) SetIssue(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.record.Get(keyIssueMessage); ok {
		if m, _ := cur.(string); m != "" {
			s.record.Set(keyIssuePrevious, m)
		}
	}
	s.record.Set(keyIssueMessage, msg)
}

// RemoveIssue clears the current issue, moving it to Previous.
func (s *Status) RemoveIssue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.record.Get(keyIssueMessage); ok {
		if m, _ := cur.(string); m != "" {
			s.record.Set(keyIssuePrevious, m)
		}
	}
	s.record.Set(keyIssueMessage, "")
}

// Entries atomically replaces the user-supplied entries map.
func (s *Status) Entries(entries map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Set(keyEntries, entries)
}

// Miscellaneous atomically replaces the free-form miscellaneous map.
func (s *Status) Miscellaneous(misc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Set(keyMisc, misc)
}

// Get returns a snapshot copy of the current record contents.
func (s *Status) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Name: s.name, State: s.currentState()}

	if v, ok := s.record.Get(keyCategory); ok {
		snap.Category, _ = v.(string)
	}
	if v, ok := s.record.Get(keyEntries); ok {
		snap.Entries, _ = v.(map[string]any)
	}
	if v, ok := s.record.Get(keyMisc); ok {
		snap.Miscellaneous, _ = v.(map[string]any)
	}
	if v, ok := s.record.Get(keyErrorMessage); ok {
		snap.Error.Message, _ = v.(string)
	}
	if v, ok := s.record.Get(keyErrorPrevious); ok {
		snap.Error.Previous, _ = v.(string)
	}
	if v, ok := s.record.Get(keyIssueMessage); ok {
		snap.Issue.Message, _ = v.(string)
	}
	if v, ok := s.record.Get(keyIssuePrevious); ok {
		snap.Issue.Previous, _ = v.(string)
	}
	if v, ok := s.record.Get(keyRunningSince); ok {
		if nanos, ok := runningSinceNanos(v); ok {
			secs := time.Since(time.Unix(0, nanos)).Seconds()
			snap.RunningFor = &secs
		}
	}

	return snap
}

// runningSinceNanos normalizes a stored running_since value back to Unix
// nanoseconds. In-process writers (ThreadRunner, or a ProcessRunner parent
// applying its own Status) store an int64 directly; a value relayed over
// the cross-process delta bridge has been through a JSON round trip and
// decodes as a float64 instead.
func runningSinceNanos(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Retrieve fetches an existing Status by name, failing with
// wardenerrors.NoSuchStatusError when no record has ever been created for
// that name.
func Retrieve(reg *shm.Registry, name string) (*Status, error) {
	if reg == nil {
		reg = shm.Default
	}
	if !reg.Has(name) {
		return nil, &wardenerrors.NoSuchStatusError{Name: name}
	}
	return &Status{registry: reg, name: name, record: reg.Get(name)}, nil
}

// RetrieveAll returns a Status for every record currently in reg.
func RetrieveAll(reg *shm.Registry) []*Status {
	if reg == nil {
		reg = shm.Default
	}
	names := reg.Names()
	out := make([]*Status, 0, len(names))
	for _, name := range names {
		out = append(out, &Status{registry: reg, name: name, record: reg.Get(name)})
	}
	return out
}

// Delete removes the named Status record.
func Delete(reg *shm.Registry, name string) {
	if reg == nil {
		reg = shm.Default
	}
	reg.Delete(name)
}

// ClearAll drops every Status record in reg.
func ClearAll(reg *shm.Registry) {
	if reg == nil {
		reg = shm.Default
	}
	reg.Clear()
}
