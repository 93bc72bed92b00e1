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
	"fmt"
	"sync"

	"github.com/fieldkit-run/warden/internal/config"
	"github.com/fieldkit-run/warden/internal/shm"
	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

// Variant names the worker flavor a Factory spawns.
type Variant string

const (
	// VariantThread runs the iterator on a goroutine of the manager's
	// own process.
	VariantThread Variant = "thread"
	// VariantProcess runs the iterator in a freshly spawned OS process.
	VariantProcess Variant = "process"
)

// IteratorBuilder constructs a fresh, not-yet-guarded Iterator. Iterator
// kinds self-register under a stable string key at init() rather than
// being looked up by a dotted path at runtime.
type IteratorBuilder func() (Iterator, error)

var (
	iterMu  sync.RWMutex
	iterReg = map[string]IteratorBuilder{}
)

// RegisterIterator installs an Iterator kind under name.
func RegisterIterator(name string, build IteratorBuilder) {
	iterMu.Lock()
	defer iterMu.Unlock()
	iterReg[name] = build
}

// BuildIterator resolves a registered Iterator kind by name.
func BuildIterator(name string) (Iterator, error) {
	iterMu.RLock()
	build, ok := iterReg[name]
	iterMu.RUnlock()
	if !ok {
		return nil, &wardenerrors.ConfigError{Key: name, Reason: fmt.Sprintf("no runner iterator registered under kind %q", name)}
	}
	return build()
}

// Factory is a bundle of {name, iterator kind, config provider factory}
// that produces a fresh, not-yet-started runner.Instance.
type Factory struct {
	// Name is the runner's unique identity and Status/Shared-Memory key.
	Name string
	// Kind is the registered Iterator kind to build.
	Kind string
	// Variant selects Thread or Process. Empty defaults to Thread.
	Variant Variant
	// ConfigSpec resolves the runner's own Config Provider.
	ConfigSpec config.ProviderSpec
	// Options are applied to the constructed runner (interrupts, core
	// frequency, category, logger). Ignored for Process runners' sleep
	// loop, which runs inside the child and so cannot observe
	// in-process interrupt predicates or a custom logger; see
	// ProcessRunner and DESIGN.md.
	Options []Option
}

// Spec returns the tagged value Manager diffing compares Factories by:
// two Factories describe the same live runner declaration iff their Spec()s
// compare equal under config.Equal.
func (f Factory) Spec() config.BoundCallable {
	return config.BoundCallable{
		Target: string(f.variant()) + ":" + f.Kind,
		Args:   []any{f.ConfigSpec.AsBoundCallable()},
	}
}

func (f Factory) variant() Variant {
	if f.Variant == "" {
		return VariantThread
	}
	return f.Variant
}

// Instantiate builds a fresh, not-yet-started runner.Instance from f.
func (f Factory) Instantiate(reg *shm.Registry) (Instance, error) {
	provider, err := config.Build(f.ConfigSpec)
	if err != nil {
		return nil, err
	}

	opts := append([]Option{WithRegistry(reg), WithKind(f.Kind)}, f.Options...)

	switch f.variant() {
	case VariantProcess:
		return NewProcessRunner(f.Name, f.Kind, f.ConfigSpec, provider, opts...)
	default:
		it, err := BuildIterator(f.Kind)
		if err != nil {
			return nil, err
		}
		return NewThreadRunner(f.Name, Guard(it), provider, opts...)
	}
}
