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

// Package config implements the Config Provider abstraction: resolving a
// runner's configuration from a fixed value, a one-shot TOML file, or a file
// that is re-read whenever it changes on disk.
package config

// Value is a configuration payload: a nested string-keyed map whose leaves
// are nil, bool, int64, float64, string, []any, a nested Value, or a
// BoundCallable.
type Value = map[string]any

// BoundCallable stands in for a partially-applied callable (Python's
// functools.partial in the source system): a named target plus the
// arguments already bound to it. Two BoundCallables compare equal when
// Target and Args compare equal, independent of how the runtime would
// eventually resolve Target.
type BoundCallable struct {
	Target string
	Args   []any
}

// Variables is a flat namespace of substitution values used by
// StaticFile/DynamicFile to resolve `{{ name }}` placeholders before parsing.
type Variables = map[string]any
