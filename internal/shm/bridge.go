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

package shm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"reflect"
	"time"
)

// Delta is one observed change to a Record, posted by a Process Runner child
// back to its parent over the delta pipe.
type Delta struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// WriteSnapshot encodes the full registry contents as newline-delimited JSON
// onto w. Called by the parent immediately after spawning a Process Runner
// child, over the inherited snapshot pipe.
func WriteSnapshot(w io.Writer, snapshot map[string]map[string]any) error {
	return json.NewEncoder(w).Encode(snapshot)
}

// ReadSnapshot decodes a snapshot previously written by WriteSnapshot. Called
// by the child immediately on startup, before it calls SetAll.
func ReadSnapshot(r io.Reader) (map[string]map[string]any, error) {
	var snapshot map[string]map[string]any
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DeltaPoster periodically diffs a Registry against its own last-observed
// state and writes any changed (name, key, value) triples as Deltas. A
// Process Runner wires one of these in each direction — child to parent and
// parent to child — since Go has no kernel-provided shared-mapping proxy;
// correctness rests entirely on this diff-and-post loop rather than true
// shared memory.
type DeltaPoster struct {
	registry *Registry
	interval time.Duration
	last     map[string]map[string]any
}

// NewDeltaPoster returns a DeltaPoster watching reg, posting at interval.
func NewDeltaPoster(reg *Registry, interval time.Duration) *DeltaPoster {
	return &DeltaPoster{registry: reg, interval: interval, last: map[string]map[string]any{}}
}

// Run posts deltas to w on every tick until ctx is cancelled. A single
// encoding error aborts the loop and is returned; a post interval miss never
// loses data — the next tick's diff still carries the unposted change since
// it is computed against the last successfully diffed snapshot, not the last
// posted one.
func (p *DeltaPoster) Run(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.postOnce(enc); err != nil {
				return err
			}
		}
	}
}

func (p *DeltaPoster) postOnce(enc *json.Encoder) error {
	current := p.registry.GetAll()
	for name, data := range current {
		prev := p.last[name]
		for key, value := range data {
			if prevVal, ok := prev[key]; ok && Equal(prevVal, value) {
				continue
			}
			if err := enc.Encode(Delta{Name: name, Key: key, Value: value}); err != nil {
				return err
			}
		}
	}
	p.last = current
	return nil
}

// Equal reports whether two Shared Memory leaf values are identical for the
// purpose of deciding whether a delta needs posting. It uses
// reflect.DeepEqual rather than the structural Config comparator: Status
// stores its entries and miscellaneous values as nested maps, which ==
// cannot compare.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// DeltaApplier is the receiving side of the bridge: it reads Deltas posted
// by the Registry's counterpart DeltaPoster on the other side of a pipe and
// applies them to its own local Registry.
type DeltaApplier struct {
	registry *Registry
}

// NewDeltaApplier returns a DeltaApplier that writes into reg.
func NewDeltaApplier(reg *Registry) *DeltaApplier {
	return &DeltaApplier{registry: reg}
}

// Run reads newline-delimited Deltas from r and applies each to the
// registry until r is exhausted (the writer's pipe end closed, typically
// because its process exited) or ctx is cancelled.
func (a *DeltaApplier) Run(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var d Delta
		if err := dec.Decode(&d); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		a.registry.Get(d.Name).Set(d.Key, d.Value)
	}
}
