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

/*
Package lifecycle manages OS-process spawning and liveness for the Process
Runner variant of internal/runner.

A Process Runner re-execs the current binary as a child carrying the
shared-memory handoff on inherited pipes; this package provides that spawn
(own process group, pipe descriptors 3..N) plus the PID-based liveness
probes and the graceful-then-forced termination sequence the runner uses
for Stop.

# Spawning

	spawner := lifecycle.NewChildSpawner().WithEnv("WARDEN_CHILD_NAME=" + name)
	cmd, err := spawner.Spawn(os.Args[0], []string{subcommand}, snapR, deltaW)
	if err != nil {
	    // Handle error
	}

# Liveness and shutdown

Both are driven by a PID the parent holds in memory for as long as the
Process Runner is alive, not by a persisted PID file, consistent with the
supervisor's no-persisted-state model:

	if !lifecycle.Running(pid) {
	    // Child has already exited
	}

	if err := lifecycle.Terminate(pid, 5*time.Second, true); err != nil {
	    // Handle error
	}

OwnsChild additionally verifies that a PID still under our control belongs
to a process carrying our re-exec marker on its command line, guarding
against the OS recycling a PID for an unrelated process between polls.
*/
package lifecycle
