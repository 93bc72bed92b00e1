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

package lifecycle

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ChildSpawner launches the supervised child processes a Process Runner
// re-execs from the current binary.
type ChildSpawner struct {
	env []string
}

// NewChildSpawner creates a spawner that passes the parent's environment
// through to its children.
func NewChildSpawner() *ChildSpawner {
	return &ChildSpawner{env: os.Environ()}
}

// WithEnv appends KEY=value pairs to the child's environment.
func (s *ChildSpawner) WithEnv(pairs ...string) *ChildSpawner {
	s.env = append(s.env, pairs...)
	return s
}

// Spawn starts binary with args as a supervised child and returns the
// started command; the caller owns it and must Wait to reap it. Each entry
// of pipes is inherited by the child, mapped to descriptor 3, 4, ... in
// order.
//
// The child joins its own process group, so a terminal signal aimed at the
// supervisor's group reaches it only through the supervisor's own shutdown
// sequence. Unlike a daemonized process it keeps the parent's
// stdout/stderr and stays a direct, waitable child.
func (s *ChildSpawner) Spawn(binary string, args []string, pipes ...*os.File) (*exec.Cmd, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.env
	cmd.ExtraFiles = pipes
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start child process: %w", err)
	}

	return cmd, nil
}
