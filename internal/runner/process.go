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
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fieldkit-run/warden/internal/config"
	"github.com/fieldkit-run/warden/internal/lifecycle"
	"github.com/fieldkit-run/warden/internal/shm"
	"github.com/fieldkit-run/warden/internal/status"
)

// ChildSubcommand is the hidden argument cmd/wardend recognizes to re-enter
// the harness loop for exactly one registered Iterator kind, inside a
// freshly spawned process. A ProcessRunner re-execs os.Args[0] with this as
// its first argument.
const ChildSubcommand = "__runner-child"

// Environment variables used to pass a ProcessRunner child its identity and
// config spec; a pipe handles the larger shared-memory snapshot instead of
// an env var to avoid argv/environment size limits.
const (
	EnvChildName       = "WARDEN_CHILD_NAME"
	EnvChildKind       = "WARDEN_CHILD_KIND"
	EnvChildCategory   = "WARDEN_CHILD_CATEGORY"
	EnvChildConfigSpec = "WARDEN_CHILD_CONFIG_SPEC"
	EnvChildToken      = "WARDEN_CHILD_TOKEN"
)

// ProcessRunner runs the harness loop inside a freshly spawned OS process.
// Unlike ThreadRunner, the state machine lives in the child: RunChild
// builds its own harness directly (newHarness, then runLoop on the child's
// main goroutine) against the same runner name, so its Status transitions
// land in the same shm record
// the parent reads, relayed across the process boundary by the delta
// bridge (internal/shm/bridge.go) rather than a real shared-mapping proxy.
type ProcessRunner struct {
	name       string
	kind       string
	category   string
	configSpec config.ProviderSpec
	provider   config.Provider
	reg        *shm.Registry
	binary     string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped atomic.Bool

	deltaCancel context.CancelFunc
	exitedCh    chan struct{}
}

// NewProcessRunner constructs a ProcessRunner. The provider given here is
// used only for the parent-side GetConfig() accessor; the child resolves
// its own Provider instance from configSpec so the two processes never
// share Go state.
func NewProcessRunner(name, kind string, configSpec config.ProviderSpec, provider config.Provider, opts ...Option) (*ProcessRunner, error) {
	o := buildOptions(opts)
	return &ProcessRunner{
		name:       name,
		kind:       kind,
		category:   o.category,
		configSpec: configSpec,
		provider:   provider,
		reg:        o.registry,
		binary:     os.Args[0],
	}, nil
}

// Name implements Instance.
func (p *ProcessRunner) Name() string { return p.name }

// GetConfig implements Instance using the parent-side Provider copy.
func (p *ProcessRunner) GetConfig() config.Value {
	cfg, err := p.provider.Get()
	if err != nil {
		return nil
	}
	return cfg
}

// Stopped reports whether the runner's Status is Off.
func (p *ProcessRunner) Stopped() bool {
	s, err := status.Retrieve(p.reg, p.name)
	if err != nil {
		return true
	}
	return s.Get().State == status.Off
}

// Alive reports whether the runner's Status is neither Off nor Error.
func (p *ProcessRunner) Alive() bool {
	s, err := status.Retrieve(p.reg, p.name)
	if err != nil {
		return false
	}
	st := s.Get().State
	return st != status.Off && st != status.Error
}

// Start spawns the child process if the runner is currently Off.
func (p *ProcessRunner) Start() {
	if s, err := status.Retrieve(p.reg, p.name); err == nil && s.Get().State != status.Off {
		return
	}
	p.spawn()
}

// Revive respawns the child process if the runner is currently in Error.
// The respawned child always starts a fresh running_for count: see
// DESIGN.md for why this repo does not carry a cross-process baseline
// forward, contrary to an earlier draft of this design.
func (p *ProcessRunner) Revive() error {
	s, err := status.Retrieve(p.reg, p.name)
	if err != nil || s.Get().State != status.Error {
		return nil
	}
	p.spawn()
	return nil
}

func (p *ProcessRunner) spawn() {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := status.New(p.reg, p.name, "")
	s.State(status.Starting, "")

	snapR, snapW, err := os.Pipe()
	if err != nil {
		s.State(status.Error, err.Error())
		return
	}
	// fromChildR/W carries the child's own Status/record deltas back to
	// the parent; toChildR/W carries the parent's subsequent writes (to
	// records the child also touches) forward to the child. There is no
	// single bidirectional shared-mapping primitive available across a
	// process boundary, so the bridge is two independent one-directional
	// delta streams instead (internal/shm/bridge.go).
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		snapR.Close()
		snapW.Close()
		s.State(status.Error, err.Error())
		return
	}
	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		snapR.Close()
		snapW.Close()
		fromChildR.Close()
		fromChildW.Close()
		s.State(status.Error, err.Error())
		return
	}

	specJSON, err := json.Marshal(p.configSpec)
	if err != nil {
		snapR.Close()
		snapW.Close()
		fromChildR.Close()
		fromChildW.Close()
		toChildR.Close()
		toChildW.Close()
		s.State(status.Error, err.Error())
		return
	}

	spawner := lifecycle.NewChildSpawner().WithEnv(
		EnvChildName+"="+p.name,
		EnvChildKind+"="+p.kind,
		EnvChildCategory+"="+p.category,
		EnvChildConfigSpec+"="+string(specJSON),
		EnvChildToken+"="+uuid.NewString(),
	)
	cmd, err := spawner.Spawn(p.binary, []string{ChildSubcommand}, snapR, fromChildW, toChildR)
	if err != nil {
		snapR.Close()
		snapW.Close()
		fromChildR.Close()
		fromChildW.Close()
		toChildR.Close()
		toChildW.Close()
		s.State(status.Error, err.Error())
		return
	}

	// The child owns its ends now; close our copies so EOF propagates
	// correctly once the child exits.
	snapR.Close()
	fromChildW.Close()
	toChildR.Close()

	if err := shm.WriteSnapshot(snapW, p.reg.GetAll()); err != nil {
		slog.Default().Error("write shared memory snapshot to child", "error", err, "runner", p.name)
	}
	snapW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p.cmd = cmd
	p.deltaCancel = cancel
	p.stopped.Store(false)
	p.exitedCh = make(chan struct{})
	exitedCh := p.exitedCh

	go shm.NewDeltaApplier(p.reg).Run(ctx, fromChildR)
	go shm.NewDeltaPoster(p.reg, childDeltaInterval).Run(ctx, toChildW)
	go func() {
		<-ctx.Done()
		toChildW.Close()
	}()

	go func() {
		err := cmd.Wait()
		cancel()
		fromChildR.Close()
		close(exitedCh)
		if !p.stopped.Load() {
			msg := "process exited unexpectedly"
			if err != nil {
				msg = err.Error()
			}
			s.State(status.Error, msg)
		}
	}()
}

// Stop requests the child process exit gracefully (SIGTERM), and if
// blocking, waits for it to do so.
func (p *ProcessRunner) Stop(blocking bool) {
	p.mu.Lock()
	cmd := p.cmd
	exitedCh := p.exitedCh
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	p.stopped.Store(true)
	if s, err := status.Retrieve(p.reg, p.name); err == nil && s.Get().State != status.Off {
		s.State(status.Stopping, "")
	}
	_ = lifecycle.SendSignal(cmd.Process.Pid, syscall.SIGTERM)

	if !blocking {
		return
	}
	if exitedCh != nil {
		select {
		case <-exitedCh:
		case <-time.After(10 * time.Second):
			// Force-kill only a process we still own: the Wait
			// goroutine may have reaped the child and the OS
			// recycled its PID in the meantime.
			if lifecycle.Running(cmd.Process.Pid) && lifecycle.OwnsChild(cmd.Process.Pid, ChildSubcommand) {
				_ = lifecycle.SendSignal(cmd.Process.Pid, syscall.SIGKILL)
			}
			<-exitedCh
		}
	}
	if s, err := status.Retrieve(p.reg, p.name); err == nil {
		s.State(status.Off, "")
	}
}
