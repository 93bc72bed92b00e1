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

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/fieldkit-run/warden/internal/config"
	"github.com/fieldkit-run/warden/internal/runner"
	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// RunnerSection is one top-level table of a Manager configuration file.
type RunnerSection struct {
	ClassRunner       string         `toml:"class_runner"`
	ClassConfigGetter string         `toml:"class_config_getter"`
	Args              []any          `toml:"args"`
	Kwargs            map[string]any `toml:"kwargs"`
}

// Declaration is the desired set of runners a Manager Config Provider
// returns: the list of runner.Factory values to reconcile against.
type Declaration = []runner.Factory

// Provider resolves a Manager's desired Declaration, the Manager-level
// analogue of config.Provider.
type Provider interface {
	Get() (Declaration, error)
}

// StaticFile loads a Manager configuration TOML file once and caches the
// resulting Declaration, the Manager-level sibling of config.StaticFile.
type StaticFile struct {
	Path string

	once    sync.Once
	cached  Declaration
	loadErr error
}

// Get implements Provider.
func (s *StaticFile) Get() (Declaration, error) {
	s.once.Do(func() {
		s.cached, s.loadErr = loadManagerTOML(s.Path)
	})
	return s.cached, s.loadErr
}

// DynamicFile re-reads its backing file whenever its mtime changes, the
// Manager-level sibling of config.DynamicFile — same mtime-authoritative,
// fsnotify-fast-path design (internal/config/toml.go), generalized to
// produce a Declaration instead of a config.Value.
type DynamicFile struct {
	Path string

	mu      sync.Mutex
	cached  Declaration
	loadErr error
	modTime time.Time
	loaded  bool

	watcher *fsnotify.Watcher
	dirty   bool
}

// NewDynamicFile creates a DynamicFile and starts its best-effort fsnotify
// watch, exactly as config.NewDynamicFile does.
func NewDynamicFile(path string) *DynamicFile {
	d := &DynamicFile{Path: path}
	d.startWatch()
	return d
}

func (d *DynamicFile) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	if err := w.Add(d.Path); err != nil {
		w.Close()
		return
	}
	d.watcher = w
	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				d.mu.Lock()
				d.dirty = true
				d.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Close stops the fsnotify watch, if one is running.
func (d *DynamicFile) Close() error {
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}

// Get implements Provider.
func (d *DynamicFile) Get() (Declaration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, &wardenerrors.ConfigError{Key: d.Path, Reason: "stat failed", Cause: err}
	}

	if !d.loaded || d.dirty || !info.ModTime().Equal(d.modTime) {
		d.cached, d.loadErr = loadManagerTOML(d.Path)
		d.modTime = info.ModTime()
		d.loaded = true
		d.dirty = false
	}

	return d.cached, d.loadErr
}

func loadManagerTOML(path string) (Declaration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &wardenerrors.ConfigError{Key: path, Reason: "failed to read manager config file", Cause: err}
	}

	var sections map[string]RunnerSection
	if err := toml.Unmarshal(raw, &sections); err != nil {
		return nil, &wardenerrors.ConfigError{Key: path, Reason: "invalid TOML", Cause: err}
	}

	declaration := make(Declaration, 0, len(sections))
	for name, sec := range sections {
		factory, err := factoryFromSection(name, sec)
		if err != nil {
			return nil, err
		}
		declaration = append(declaration, factory)
	}
	return declaration, nil
}

// factoryFromSection resolves one RunnerSection into a runner.Factory.
// class_runner is a "<variant>:<kind>" registry key rather than a dotted
// class path, and class_config_getter names a registered config.Provider
// kind directly.
// args/kwargs become the Provider's ProviderSpec: a positional first arg is
// treated as the "path" kwarg (the shape every file-backed Provider in this
// package expects), mirroring how the source system's file-backed
// ConfigGetters take path as their one positional constructor argument.
func factoryFromSection(name string, sec RunnerSection) (runner.Factory, error) {
	variant, kind, err := parseClassRunner(sec.ClassRunner)
	if err != nil {
		return runner.Factory{}, err
	}

	kwargs := make(map[string]any, len(sec.Kwargs)+1)
	for k, v := range sec.Kwargs {
		kwargs[k] = v
	}
	if len(sec.Args) > 0 {
		if _, ok := kwargs["path"]; !ok {
			if p, ok := sec.Args[0].(string); ok {
				kwargs["path"] = p
			}
		}
	}

	return runner.Factory{
		Name:       name,
		Kind:       kind,
		Variant:    variant,
		ConfigSpec: config.ProviderSpec{Kind: sec.ClassConfigGetter, Kwargs: kwargs},
	}, nil
}

func parseClassRunner(classRunner string) (runner.Variant, string, error) {
	if classRunner == "" {
		return "", "", &wardenerrors.ConfigError{Key: "class_runner", Reason: "class_runner is required"}
	}
	variant, kind, found := strings.Cut(classRunner, ":")
	if !found {
		return runner.VariantThread, classRunner, nil
	}
	switch runner.Variant(variant) {
	case runner.VariantThread, runner.VariantProcess:
		return runner.Variant(variant), kind, nil
	default:
		return "", "", &wardenerrors.ConfigError{Key: "class_runner", Reason: "unknown runner variant " + variant}
	}
}
