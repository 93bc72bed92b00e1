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

package shm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCreatesOnFirstAccess(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Has("test"))

	r := reg.Get("test")
	assert.NotNil(t, r)
	assert.True(t, reg.Has("test"))

	// Idempotent: the same name always returns the same *Record.
	assert.Same(t, r, reg.Get("test"))
}

func TestRecordGetSetDelete(t *testing.T) {
	r := newRecord()

	_, ok := r.Get("missing")
	assert.False(t, ok)

	r.Set("key", "value")
	v, ok := r.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	r.Delete("key")
	_, ok = r.Get("key")
	assert.False(t, ok)
}

func TestGetAllSetAll(t *testing.T) {
	src := NewRegistry()
	src.Get("a").Set("x", 1)
	src.Get("b").Set("y", "2")

	snapshot := src.GetAll()
	assert.Equal(t, 1, snapshot["a"]["x"])
	assert.Equal(t, "2", snapshot["b"]["y"])

	dst := NewRegistry()
	dst.SetAll(snapshot)

	v, ok := dst.Get("a").Get("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// The two registries are independent stores after SetAll: a later
	// write on one side is not observed on the other.
	src.Get("a").Set("x", 99)
	v, _ = dst.Get("a").Get("x")
	assert.Equal(t, 1, v)
}

func TestClearDropsEveryRecord(t *testing.T) {
	reg := NewRegistry()
	reg.Get("one")
	reg.Get("two")
	assert.Len(t, reg.Names(), 2)

	reg.Clear()
	assert.Empty(t, reg.Names())
}

func TestDeleteRemovesOneRecord(t *testing.T) {
	reg := NewRegistry()
	reg.Get("keep")
	reg.Get("drop")

	reg.Delete("drop")
	assert.False(t, reg.Has("drop"))
	assert.True(t, reg.Has("keep"))
}

func TestCleanRestoresEmptyOnExit(t *testing.T) {
	reg := NewRegistry()
	func() {
		defer reg.Clean()()
		reg.Get("scoped").Set("k", "v")
		assert.True(t, reg.Has("scoped"))
	}()
	assert.Empty(t, reg.Names())
}

func TestCleanRestoresEmptyOnPanic(t *testing.T) {
	reg := NewRegistry()

	func() {
		defer func() { _ = recover() }()
		defer reg.Clean()()
		reg.Get("scoped")
		panic("boom")
	}()

	assert.Empty(t, reg.Names())
}

func TestRecordConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	r := reg.Get("concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Set("k", i)
			r.Get("k")
		}(i)
	}
	wg.Wait()

	_, ok := r.Get("k")
	assert.True(t, ok)
}

func TestPackageLevelDefaultRegistry(t *testing.T) {
	defer Clean()()
	Get("pkg-level").Set("hello", "world")

	v, ok := Default.Get("pkg-level").Get("hello")
	assert.True(t, ok)
	assert.Equal(t, "world", v)

	all := GetAll()
	assert.Equal(t, "world", all["pkg-level"]["hello"])

	SetAll(map[string]map[string]any{"replaced": {"a": 1}})
	assert.False(t, Default.Has("pkg-level"))
	v, ok = Default.Get("replaced").Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	Clear()
	assert.Empty(t, Default.Names())
}
