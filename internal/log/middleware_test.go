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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogIterateStart(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "debug",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &IterateCall{
		Runner: "filewatcher-1",
		Kind:   "thread",
	}

	LogIterateStart(logger, call)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "iterate_start" {
		t.Errorf("expected event to be 'iterate_start', got: %v", logEntry["event"])
	}

	if logEntry[RunnerNameKey] != "filewatcher-1" {
		t.Errorf("expected %s to be 'filewatcher-1', got: %v", RunnerNameKey, logEntry[RunnerNameKey])
	}

	if logEntry[RunnerKindKey] != "thread" {
		t.Errorf("expected %s to be 'thread', got: %v", RunnerKindKey, logEntry[RunnerKindKey])
	}
}

func TestLogIterateResult_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "debug",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &IterateCall{Runner: "filewatcher-1", Kind: "thread"}
	result := &IterateResult{Success: true, DurationMs: 12}

	LogIterateResult(logger, call, result)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "iterate_done" {
		t.Errorf("expected event to be 'iterate_done', got: %v", logEntry["event"])
	}

	if logEntry["level"] != "DEBUG" {
		t.Errorf("expected level to be 'DEBUG', got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "iterate completed" {
		t.Errorf("expected msg to be 'iterate completed', got: %v", logEntry["msg"])
	}

	if logEntry[DurationKey] != float64(12) {
		t.Errorf("expected %s to be 12, got: %v", DurationKey, logEntry[DurationKey])
	}

	if _, ok := logEntry["error"]; ok {
		t.Errorf("expected no error field for successful iterate")
	}
}

func TestLogIterateResult_Failure(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "debug",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &IterateCall{Runner: "filewatcher-1", Kind: "thread"}
	result := &IterateResult{Success: false, Error: "disk read failed", DurationMs: 5}

	LogIterateResult(logger, call, result)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["level"] != "WARN" {
		t.Errorf("expected level to be 'WARN', got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "iterate failed" {
		t.Errorf("expected msg to be 'iterate failed', got: %v", logEntry["msg"])
	}

	if logEntry["error"] != "disk read failed" {
		t.Errorf("expected error to be 'disk read failed', got: %v", logEntry["error"])
	}
}

func TestIterateMiddleware_Wrap_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "debug",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewIterateMiddleware(logger)

	call := &IterateCall{Runner: "r1", Kind: "thread"}

	fnCalled := false
	err := middleware.Wrap(call, func() error {
		fnCalled = true
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if !fnCalled {
		t.Errorf("expected wrapped function to be called")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var startLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &startLog); err != nil {
		t.Fatalf("expected valid JSON for start log: %v", err)
	}
	if startLog["event"] != "iterate_start" {
		t.Errorf("expected first log to be iterate_start, got: %v", startLog["event"])
	}

	var doneLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &doneLog); err != nil {
		t.Fatalf("expected valid JSON for done log: %v", err)
	}
	if doneLog["event"] != "iterate_done" {
		t.Errorf("expected second log to be iterate_done, got: %v", doneLog["event"])
	}
	if _, ok := doneLog[DurationKey]; !ok {
		t.Errorf("expected %s to be present", DurationKey)
	}
}

func TestIterateMiddleware_Wrap_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "debug",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewIterateMiddleware(logger)

	call := &IterateCall{Runner: "r1", Kind: "thread"}

	testErr := errors.New("boom")
	err := middleware.Wrap(call, func() error {
		return testErr
	})

	if err != testErr {
		t.Errorf("expected wrapped error to be returned, got: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}

	var doneLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &doneLog); err != nil {
		t.Fatalf("expected valid JSON for done log: %v", err)
	}
	if doneLog["level"] != "WARN" {
		t.Errorf("expected level to be WARN, got: %v", doneLog["level"])
	}
	if doneLog["error"] != "boom" {
		t.Errorf("expected error to be 'boom', got: %v", doneLog["error"])
	}
}

func TestNewIterateMiddleware(t *testing.T) {
	logger := New(nil)
	middleware := NewIterateMiddleware(logger)

	if middleware == nil {
		t.Errorf("expected non-nil middleware")
	}

	if middleware.logger != logger {
		t.Errorf("expected middleware to use provided logger")
	}
}
