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
	"fmt"
	"sync"

	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// Provider resolves the current configuration value for a runner.
type Provider interface {
	Get() (Value, error)
}

// ProviderBuilder constructs a Provider from a ProviderSpec's arguments.
type ProviderBuilder func(spec ProviderSpec) (Provider, error)

// ProviderSpec names a registered Provider kind plus the arguments to build
// it. It plays the role of a partially-applied callable: two ProviderSpecs
// compare equal exactly like a BoundCallable, via Equal.
type ProviderSpec struct {
	Kind   string
	Args   []any
	Kwargs map[string]any
}

// AsBoundCallable converts the spec to the generic comparison shape used by
// config.Equal, so a ProviderSpec embedded in a Factory compares the same
// way any other bound-callable-shaped value does.
func (s ProviderSpec) AsBoundCallable() BoundCallable {
	args := make([]any, 0, len(s.Args)+1)
	args = append(args, s.Args...)
	if len(s.Kwargs) > 0 {
		args = append(args, map[string]any(s.Kwargs))
	}
	return BoundCallable{Target: s.Kind, Args: args}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderBuilder{}
)

// Register installs a Provider kind under a stable string key. Providers
// call this from an init() function, giving an explicit registry lookup
// that needs no reflection in place of a dotted-path class lookup.
func Register(kind string, build ProviderBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = build
}

// Build resolves a ProviderSpec against the registry.
func Build(spec ProviderSpec) (Provider, error) {
	registryMu.RLock()
	build, ok := registry[spec.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, &wardenerrors.ConfigError{
			Key:    spec.Kind,
			Reason: fmt.Sprintf("no config provider registered under kind %q", spec.Kind),
		}
	}
	return build(spec)
}

// Fixed returns a constant Value, with Override applied on top of Base.
// It is the simplest Provider: no file I/O, no substitution.
type Fixed struct {
	Base     Value
	Override Value
}

// Get implements Provider.
func (f Fixed) Get() (Value, error) {
	return mergeOverride(f.Base, f.Override), nil
}

// resolveVarsProvider recovers the Vars Provider a StaticFile/DynamicFile
// spec names under its "vars" kwarg. Callers building a ProviderSpec
// in-process may set it to an already-built Provider directly; a
// ProcessRunner child instead receives a JSON round-tripped ProviderSpec
// (its own Kwargs map, decoded generically) since a live Provider value
// cannot cross the process boundary — both shapes resolve to the same
// Provider here.
func resolveVarsProvider(raw any) (Provider, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case Provider:
		return v, nil
	case ProviderSpec:
		return Build(v)
	case map[string]any:
		spec, err := providerSpecFromMap(v)
		if err != nil {
			return nil, err
		}
		return Build(spec)
	case string:
		// The manager configuration file's `vars` kwarg names a bare path
		// to a variables TOML file (original_source/tests/test_config_getter.py's
		// `vars=secret_path` usage); loaded once, same as the config file
		// it substitutes into would be if it had no vars of its own.
		if v == "" {
			return nil, nil
		}
		return &StaticFile{Path: v}, nil
	default:
		return nil, nil
	}
}

func providerSpecFromMap(m map[string]any) (ProviderSpec, error) {
	spec := ProviderSpec{}
	if k, ok := m["Kind"].(string); ok {
		spec.Kind = k
	}
	if a, ok := m["Args"].([]any); ok {
		spec.Args = a
	}
	if kw, ok := m["Kwargs"].(map[string]any); ok {
		spec.Kwargs = kw
	}
	return spec, nil
}

func init() {
	Register("fixed", func(spec ProviderSpec) (Provider, error) {
		base, _ := spec.Kwargs["base"].(Value)
		override, _ := spec.Kwargs["override"].(Value)
		return Fixed{Base: base, Override: override}, nil
	})
}

// mergeOverride recursively merges override on top of base: for each key in
// override, a nested map is merged recursively into the base's nested map
// (if any); any other value replaces the base value outright.
func mergeOverride(base, override Value) Value {
	if len(override) == 0 {
		return cloneValue(base)
	}

	result := cloneValue(base)
	if result == nil {
		result = Value{}
	}

	for k, ov := range override {
		if baseMap, ok := result[k].(Value); ok {
			if overrideMap, ok := ov.(Value); ok {
				result[k] = mergeOverride(baseMap, overrideMap)
				continue
			}
		}
		result[k] = ov
	}
	return result
}

func cloneValue(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, val := range v {
		if nested, ok := val.(Value); ok {
			out[k] = cloneValue(nested)
			continue
		}
		out[k] = val
	}
	return out
}
