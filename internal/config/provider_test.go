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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldkit-run/warden/internal/config"
)

// TestFixed_OverrideMerge checks that the override wins at every leaf while
// untouched base values survive.
func TestFixed_OverrideMerge(t *testing.T) {
	base := config.Value{
		"a": int64(1),
		"b": int64(10),
		"c": config.Value{"c1": int64(-1), "c2": int64(3)},
	}
	override := config.Value{
		"a": int64(2),
		"c": config.Value{"c1": int64(4)},
	}

	p := config.Fixed{Base: base, Override: override}
	got, err := p.Get()
	require.NoError(t, err)

	assert.Equal(t, int64(2), got["a"])
	assert.Equal(t, int64(10), got["b"])

	c, ok := got["c"].(config.Value)
	require.True(t, ok)
	assert.Equal(t, int64(4), c["c1"])
	assert.Equal(t, int64(3), c["c2"])
}

func TestFixed_NoOverrideReturnsBase(t *testing.T) {
	base := config.Value{"a": int64(1)}
	p := config.Fixed{Base: base}
	got, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := config.Build(config.ProviderSpec{Kind: "no-such-kind"})
	require.Error(t, err)
}

func TestBuild_Fixed(t *testing.T) {
	spec := config.ProviderSpec{
		Kind: "fixed",
		Kwargs: map[string]any{
			"base": config.Value{"a": int64(1)},
		},
	}
	p, err := config.Build(spec)
	require.NoError(t, err)

	got, err := p.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["a"])
}

func TestProviderSpec_AsBoundCallable(t *testing.T) {
	s1 := config.ProviderSpec{Kind: "file.static", Args: []any{"a"}, Kwargs: map[string]any{"path": "x.toml"}}
	s2 := config.ProviderSpec{Kind: "file.static", Args: []any{"a"}, Kwargs: map[string]any{"path": "x.toml"}}
	s3 := config.ProviderSpec{Kind: "file.static", Args: []any{"a"}, Kwargs: map[string]any{"path": "y.toml"}}

	assert.True(t, config.Equal(s1.AsBoundCallable(), s2.AsBoundCallable()))
	assert.False(t, config.Equal(s1.AsBoundCallable(), s3.AsBoundCallable()))
}
