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

package status

import (
	"time"

	"github.com/fieldkit-run/warden/internal/shm"
)

// WaitFor polls the named Status until it reports want or timeout elapses,
// returning whether want was observed. Supplemented from original_source's
// pervasive `wait_for_status` test helper (tests/test_runner.py,
// tests/test_manager.py) since polling-for-state is the dominant assertion
// shape across the corpus's own test suite.
func WaitFor(reg *shm.Registry, name string, want State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s, err := Retrieve(reg, name); err == nil {
			if s.Get().State == want {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
