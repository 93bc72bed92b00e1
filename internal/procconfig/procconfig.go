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

// Package procconfig loads the process-level settings for a wardend
// instance: log level/format, the Manager's own core frequency, and the
// path to the manager declaration TOML file. This is distinct from the
// declarative TOML runner configuration files used for runner config —
// this is the daemon's own bootstrap settings, a small YAML-backed
// settings struct loaded once at startup.
package procconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is wardend's own process-level configuration.
type Config struct {
	// LogLevel is one of trace/debug/info/warn/error. Empty defers to
	// internal/log's own default ("info").
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFormat is "json" or "text". Empty defers to internal/log's own
	// default ("json").
	LogFormat string `yaml:"log_format,omitempty"`
	// CoreFrequency overrides the Manager's reconciliation tick rate (Hz).
	// Zero defers to runner.DefaultCoreFrequency.
	CoreFrequency float64 `yaml:"core_frequency,omitempty"`
	// ManagerConfigPath points at the TOML file enumerating runners.
	ManagerConfigPath string `yaml:"manager_config_path"`
	// KeepSharedMemory keeps every runner's Status (and any ad-hoc
	// records) around after the Manager scope exits, for post-mortem
	// inspection.
	KeepSharedMemory bool `yaml:"keep_shared_memory,omitempty"`
	// MetricsAddr, if set, is the address wardend's Prometheus
	// /metrics HTTP handler listens on (e.g. ":9090"). Empty disables it.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default returns a Config with every optional field at its zero value;
// callers still must supply ManagerConfigPath.
func Default() Config {
	return Config{}
}

// Load reads and parses a wardend process config YAML file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("procconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("procconfig: parse %s: %w", path, err)
	}
	if cfg.ManagerConfigPath == "" {
		return Config{}, fmt.Errorf("procconfig: %s: manager_config_path is required", path)
	}
	return cfg, nil
}
