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

package errors_test

import (
	"errors"
	"fmt"
	"testing"

	wardenerrors "github.com/fieldkit-run/warden/pkg/errors"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *wardenerrors.ConfigError
		wantMsg string
	}{
		{
			name: "with key",
			err: &wardenerrors.ConfigError{
				Key:    "frequency",
				Reason: "must be positive",
			},
			wantMsg: "config error at frequency: must be positive",
		},
		{
			name: "without key",
			err: &wardenerrors.ConfigError{
				Reason: "file not found",
			},
			wantMsg: "config error: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("file read error")
	err := &wardenerrors.ConfigError{
		Key:    "config",
		Reason: "failed to load",
		Cause:  cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("ConfigError.Unwrap() = %v, want %v", got, cause)
	}
}

func TestNoSuchStatusError_Error(t *testing.T) {
	err := &wardenerrors.NoSuchStatusError{Name: "runner1"}
	if got, want := err.Error(), `no status for "runner1"`; got != want {
		t.Errorf("NoSuchStatusError.Error() = %q, want %q", got, want)
	}
}

func TestIterateError_Error(t *testing.T) {
	cause := errors.New("boom")
	err := &wardenerrors.IterateError{Runner: "r1", Cause: cause}
	if got, want := err.Error(), `runner "r1": iterate failed: boom`; got != want {
		t.Errorf("IterateError.Error() = %q, want %q", got, want)
	}
	if err.Unwrap() != cause {
		t.Error("IterateError.Unwrap() should return the cause")
	}
}

func TestMissingGuardError_Error(t *testing.T) {
	withKind := &wardenerrors.MissingGuardError{Kind: "thread"}
	if got, want := withKind.Error(), `runner "thread": iterator not wrapped with runner.Guard`; got != want {
		t.Errorf("MissingGuardError.Error() = %q, want %q", got, want)
	}

	bare := &wardenerrors.MissingGuardError{}
	if got, want := bare.Error(), "iterator not wrapped with runner.Guard"; got != want {
		t.Errorf("MissingGuardError.Error() = %q, want %q", got, want)
	}
}

func TestErrorWrapping(t *testing.T) {
	t.Run("ConfigError preserves cause through wrapping", func(t *testing.T) {
		rootCause := errors.New("file not found")
		configErr := &wardenerrors.ConfigError{
			Key:    "frequency",
			Reason: "missing required field",
			Cause:  rootCause,
		}
		wrapped := fmt.Errorf("loading config: %w", configErr)

		var target *wardenerrors.ConfigError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find ConfigError in wrapped error")
		}

		if target.Unwrap() != rootCause {
			t.Error("ConfigError.Unwrap() should return root cause")
		}
	})

	t.Run("IterateError preserves cause through wrapping", func(t *testing.T) {
		rootCause := errors.New("division by zero")
		iterErr := &wardenerrors.IterateError{Runner: "r1", Cause: rootCause}
		wrapped := fmt.Errorf("running iterate: %w", iterErr)

		var target *wardenerrors.IterateError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find IterateError in wrapped error")
		}
		if target.Unwrap() != rootCause {
			t.Error("IterateError.Unwrap() should return root cause")
		}
	})
}

func TestErrorsIs(t *testing.T) {
	t.Run("errors.Is works with wrapped NoSuchStatusError", func(t *testing.T) {
		original := &wardenerrors.NoSuchStatusError{Name: "test"}
		wrapped := fmt.Errorf("wrapper: %w", original)

		if !errors.Is(wrapped, original) {
			t.Error("errors.Is should find original error in chain")
		}
	})
}
