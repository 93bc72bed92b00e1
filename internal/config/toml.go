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

package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// StaticFile loads a TOML file once and caches the result. If Vars is set,
// `{{ name }}` placeholders in the raw file text are substituted before
// parsing; Override is then merged on top, the same as Fixed.
type StaticFile struct {
	Path     string
	Override Value
	Vars     Provider

	once    sync.Once
	cached  Value
	loadErr error
}

// Get implements Provider.
func (s *StaticFile) Get() (Value, error) {
	s.once.Do(func() {
		s.cached, s.loadErr = loadTOMLFile(s.Path, s.Override, s.Vars)
	})
	return s.cached, s.loadErr
}

func init() {
	Register("file.static", func(spec ProviderSpec) (Provider, error) {
		path, _ := spec.Kwargs["path"].(string)
		override, _ := spec.Kwargs["override"].(Value)
		vars, err := resolveVarsProvider(spec.Kwargs["vars"])
		if err != nil {
			return nil, err
		}
		if path == "" {
			return nil, &wardenerrors.ConfigError{Key: "path", Reason: "file.static requires a path"}
		}
		return &StaticFile{Path: path, Override: override, Vars: vars}, nil
	})
}

// DynamicFile re-reads its backing file whenever its mtime changes. The
// mtime check on Get() is authoritative; an fsnotify watch is a
// best-effort fast path that marks the cache stale between polls but is
// never relied on for correctness — a watch that fails to start, or an
// editor that doesn't emit the expected event, degrades gracefully to
// mtime-only polling.
type DynamicFile struct {
	Path     string
	Override Value
	Vars     Provider

	mu      sync.Mutex
	cached  Value
	loadErr error
	modTime time.Time
	loaded  bool

	watcher *fsnotify.Watcher
	dirty   bool
}

// NewDynamicFile creates a DynamicFile and starts its best-effort fsnotify
// watch. The watch failing to start is not an error: Get() still works via
// mtime polling alone.
func NewDynamicFile(path string, override Value, vars Provider) *DynamicFile {
	d := &DynamicFile{Path: path, Override: override, Vars: vars}
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
func (d *DynamicFile) Get() (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, &wardenerrors.ConfigError{Key: d.Path, Reason: "stat failed", Cause: err}
	}

	if !d.loaded || d.dirty || !info.ModTime().Equal(d.modTime) {
		d.cached, d.loadErr = loadTOMLFile(d.Path, d.Override, d.Vars)
		d.modTime = info.ModTime()
		d.loaded = true
		d.dirty = false
	}

	return d.cached, d.loadErr
}

func init() {
	Register("file.dynamic", func(spec ProviderSpec) (Provider, error) {
		path, _ := spec.Kwargs["path"].(string)
		override, _ := spec.Kwargs["override"].(Value)
		vars, err := resolveVarsProvider(spec.Kwargs["vars"])
		if err != nil {
			return nil, err
		}
		if path == "" {
			return nil, &wardenerrors.ConfigError{Key: "path", Reason: "file.dynamic requires a path"}
		}
		return NewDynamicFile(path, override, vars), nil
	})
}

func loadTOMLFile(path string, override Value, vars Provider) (Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &wardenerrors.ConfigError{Key: path, Reason: "failed to read config file", Cause: err}
	}

	text := string(raw)
	if vars != nil {
		varValues, err := vars.Get()
		if err != nil {
			return nil, &wardenerrors.ConfigError{Key: path, Reason: "failed to resolve variables", Cause: err}
		}
		text, err = substitute(text, Variables(varValues))
		if err != nil {
			return nil, &wardenerrors.ConfigError{Key: path, Reason: "variable substitution failed", Cause: err}
		}
	}

	var parsed Value
	if err := toml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &wardenerrors.ConfigError{Key: path, Reason: "invalid TOML", Cause: err}
	}

	return mergeOverride(parsed, override), nil
}
