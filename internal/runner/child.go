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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldkit-run/warden/internal/config"
	"github.com/fieldkit-run/warden/internal/shm"
)

// childSnapshotFD, childDeltaFD and childInboundDeltaFD are the ExtraFiles
// slots ProcessRunner's spawn() wires up: fd 3 is the parent's snapshot
// pipe, fd 4 is this process's delta-posting pipe back to the parent, fd 5
// is the parent's own delta-posting pipe carrying its later writes forward
// to this child.
const (
	childSnapshotFD     = 3
	childDeltaFD        = 4
	childInboundDeltaFD = 5
)

// childDeltaInterval is how often RunChild diffs its shm.Default registry
// and posts changes back to the parent (internal/shm/bridge.go).
const childDeltaInterval = 50 * time.Millisecond

// RunChild is the body of a ProcessRunner child: cmd/wardend calls this when
// re-exec'd with ChildSubcommand. It reads its identity and config spec from
// the environment, adopts the parent's shared-memory snapshot, runs the
// harness loop in the foreground until SIGTERM or an iterate/config error,
// and posts Status deltas back to the parent throughout.
func RunChild(logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	name := os.Getenv(EnvChildName)
	kind := os.Getenv(EnvChildKind)
	category := os.Getenv(EnvChildCategory)

	var spec config.ProviderSpec
	if raw := os.Getenv(EnvChildConfigSpec); raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			fmt.Fprintf(os.Stderr, "wardend child: invalid config spec: %v\n", err)
			return 1
		}
	}

	snapFile := os.NewFile(childSnapshotFD, "warden-snapshot")
	deltaFile := os.NewFile(childDeltaFD, "warden-delta")
	inboundDeltaFile := os.NewFile(childInboundDeltaFD, "warden-inbound-delta")
	if snapFile == nil || deltaFile == nil || inboundDeltaFile == nil {
		fmt.Fprintln(os.Stderr, "wardend child: missing shared memory pipe file descriptors")
		return 1
	}
	defer deltaFile.Close()

	snapshot, err := shm.ReadSnapshot(snapFile)
	if err == nil {
		shm.SetAll(snapshot)
	}
	snapFile.Close()

	it, err := BuildIterator(kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardend child: %v\n", err)
		return 1
	}
	guardedIt := Guard(it)

	provider, err := config.Build(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardend child: %v\n", err)
		return 1
	}

	h := newHarness(shm.Default, name, kind, category, provider, 0, nil, logger)
	h.beginStart()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	go func() {
		<-ctx.Done()
		h.requestStop()
	}()

	deltaCtx, cancelDelta := context.WithCancel(context.Background())
	defer cancelDelta()
	go shm.NewDeltaPoster(shm.Default, childDeltaInterval).Run(deltaCtx, deltaFile)
	go func() {
		defer inboundDeltaFile.Close()
		shm.NewDeltaApplier(shm.Default).Run(deltaCtx, inboundDeltaFile)
	}()

	h.runLoop(context.Background(), guardedIt)
	return 0
}
