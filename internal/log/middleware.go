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

package log

import (
	"log/slog"
	"time"
)

// IterateCall describes one invocation of a runner's Iterate step, for logging.
type IterateCall struct {
	// Runner is the declared name of the runner being iterated.
	Runner string

	// Kind is the runner's registered kind.
	Kind string
}

// IterateResult describes the outcome of an IterateCall.
type IterateResult struct {
	// Success indicates whether Iterate returned without error.
	Success bool

	// Error is the error message if Iterate failed.
	Error string

	// DurationMs is how long the Iterate call took.
	DurationMs int64
}

// LogIterateStart logs that a runner is about to invoke its Iterate step.
func LogIterateStart(logger *slog.Logger, call *IterateCall) {
	logger.Debug("iterate starting",
		EventKey, "iterate_start",
		RunnerNameKey, call.Runner,
		RunnerKindKey, call.Kind,
	)
}

// LogIterateResult logs the outcome of a runner's Iterate step.
func LogIterateResult(logger *slog.Logger, call *IterateCall, result *IterateResult) {
	attrs := []any{
		EventKey, "iterate_done",
		RunnerNameKey, call.Runner,
		RunnerKindKey, call.Kind,
		DurationKey, result.DurationMs,
	}

	if result.Error != "" {
		attrs = append(attrs, "error", result.Error)
	}

	level := slog.LevelDebug
	message := "iterate completed"

	if !result.Success {
		level = slog.LevelWarn
		message = "iterate failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// IterateMiddleware wraps a runner's Iterate call with structured logging.
// It logs the call when it starts and its outcome when it completes, and is
// used by the runner harness so every runner kind gets the same log shape
// without repeating the bookkeeping in each Iterator implementation.
type IterateMiddleware struct {
	logger *slog.Logger
}

// NewIterateMiddleware creates a new Iterate logging middleware.
func NewIterateMiddleware(logger *slog.Logger) *IterateMiddleware {
	return &IterateMiddleware{
		logger: logger,
	}
}

// Wrap runs fn, logging its start and outcome.
func (m *IterateMiddleware) Wrap(call *IterateCall, fn func() error) error {
	start := time.Now()

	LogIterateStart(m.logger, call)

	err := fn()

	result := &IterateResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	LogIterateResult(m.logger, call, result)

	return err
}
