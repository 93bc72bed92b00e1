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
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

var (
	// ErrProcessNotRunning is returned when the target process does not exist.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrShutdownTimeout is returned when a child does not exit within its
	// grace period.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// pollInterval is how often WaitForExit re-probes a child's liveness.
const pollInterval = 100 * time.Millisecond

// Running reports whether a process with the given PID exists. The probe
// is signal 0, which checks existence and permission without delivering
// anything.
func Running(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; the real probe is Signal.
	return proc.Signal(syscall.Signal(0)) == nil
}

// OwnsChild reports whether pid still belongs to a child we spawned, by
// checking its command line for marker (the re-exec subcommand). Guards
// against the OS recycling a reaped child's PID between liveness polls.
func OwnsChild(pid int, marker string) bool {
	return ownsChild(pid, marker)
}

// SendSignal delivers sig to the given process.
func SendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("signal %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// WaitForExit polls until the process is gone or timeout elapses, in which
// case it returns ErrShutdownTimeout.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !Running(pid) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return ErrShutdownTimeout
}

// Terminate sends SIGTERM to a child and waits up to grace for it to exit.
// When force is set and the grace period lapses, the child is SIGKILLed.
func Terminate(pid int, grace time.Duration, force bool) error {
	if !Running(pid) {
		return ErrProcessNotRunning
	}

	if err := SendSignal(pid, syscall.SIGTERM); err != nil {
		return err
	}

	err := WaitForExit(pid, grace)
	if err == nil || !force {
		return err
	}

	if err := SendSignal(pid, syscall.SIGKILL); err != nil {
		return err
	}
	if err := WaitForExit(pid, 5*time.Second); err != nil {
		return fmt.Errorf("process %d survived SIGKILL: %w", pid, err)
	}
	return nil
}
