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

import "github.com/fieldkit-run/warden/internal/runner"

// diff is the three-way split between a declared runner set and the live
// set, keyed by name.
type diff struct {
	added    []runner.Factory
	removed  []string
	retained []runner.Factory
}

// computeDiff compares a freshly fetched Declaration against the names
// currently live, independent of how "live" is represented (the Manager
// passes its own liveRunner map's keys).
func computeDiff(declared Declaration, liveNames map[string]struct{}) diff {
	d := diff{}
	declaredNames := make(map[string]struct{}, len(declared))

	for _, f := range declared {
		declaredNames[f.Name] = struct{}{}
		if _, ok := liveNames[f.Name]; ok {
			d.retained = append(d.retained, f)
		} else {
			d.added = append(d.added, f)
		}
	}

	for name := range liveNames {
		if _, ok := declaredNames[name]; !ok {
			d.removed = append(d.removed, name)
		}
	}

	return d
}
