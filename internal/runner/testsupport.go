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

import "github.com/fieldkit-run/warden/internal/config"

// NewFixedFactory returns a Factory whose ConfigSpec is a "fixed" Provider
// built from the given value, bypassing any TOML file. Supplemented from
// original_source's BasicRunnerFactory (the fixed-value sibling of its
// TomlRunnerFactory), used throughout the corpus's own test suite wherever
// a test wants a runner without writing a config file to disk.
func NewFixedFactory(name, kind string, variant Variant, value config.Value) Factory {
	return Factory{
		Name:       name,
		Kind:       kind,
		Variant:    variant,
		ConfigSpec: config.ProviderSpec{Kind: "fixed", Kwargs: map[string]any{"base": value}},
	}
}
