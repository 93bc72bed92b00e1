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

// Command wardend is the supervisor daemon: it loads a Manager
// configuration TOML file and reconciles the declared runner set against
// the live one until it receives SIGINT/SIGTERM.
//
// wardend also recognizes a hidden first argument, runner.ChildSubcommand,
// used only by a ProcessRunner re-exec'ing the current binary as a child —
// see internal/runner/child.go and internal/runner/process.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldkit-run/warden/internal/log"
	"github.com/fieldkit-run/warden/internal/manager"
	"github.com/fieldkit-run/warden/internal/procconfig"
	"github.com/fieldkit-run/warden/internal/runner"
)

var (
	version = "dev"
	commit  = "unknown"
)

// shutdownGrace bounds how long Stop waits for every runner to reach Off
// before returning, independent of any per-runner Stop(blocking=true) wait.
const shutdownGrace = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == runner.ChildSubcommand {
		os.Exit(runner.RunChild(log.New(log.FromEnv())))
	}

	var (
		configPath  = flag.String("config", "", "Path to the wardend process config YAML file")
		managerPath = flag.String("manager-config", "", "Path to the manager declaration TOML file (overrides -config's manager_config_path)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("wardend %s (commit: %s)\n", version, commit)
		return
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg := procconfig.Default()
	if *configPath != "" {
		loaded, err := procconfig.Load(*configPath)
		if err != nil {
			logger.Error("failed to load wardend config", log.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.LogLevel != "" || cfg.LogFormat != "" {
		logCfg := log.FromEnv()
		if cfg.LogLevel != "" {
			logCfg.Level = cfg.LogLevel
		}
		if cfg.LogFormat != "" {
			logCfg.Format = log.Format(cfg.LogFormat)
		}
		logger = log.New(logCfg)
		slog.SetDefault(logger)
	}
	if *managerPath != "" {
		cfg.ManagerConfigPath = *managerPath
	}
	if cfg.ManagerConfigPath == "" {
		logger.Error("no manager config path given: pass -manager-config or -config with manager_config_path set")
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics listener exited", log.Error(err))
			}
		}()
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
	}

	cfgProvider := manager.NewDynamicFile(cfg.ManagerConfigPath)
	defer cfgProvider.Close()

	opts := []manager.Option{}
	if cfg.CoreFrequency > 0 {
		opts = append(opts, manager.WithCoreFrequency(cfg.CoreFrequency))
	}
	if cfg.KeepSharedMemory {
		opts = append(opts, manager.WithKeepSharedMemory())
	}
	mgr := manager.New(cfgProvider, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr.Start(ctx)
	logger.Info("wardend started", slog.String("manager_config", cfg.ManagerConfigPath))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	mgr.Stop(shutdownCtx)
	logger.Info("wardend stopped")
}
