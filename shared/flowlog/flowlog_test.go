// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package flowlog

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
)

func captureLog(fn func()) string {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	fn()
	return buf.String()
}

func TestNew(t *testing.T) {
	l := New("engine")
	if l.Component != "engine" {
		t.Errorf("expected component %q, got %q", "engine", l.Component)
	}
}

func TestLog_EmitsStructuredJSON(t *testing.T) {
	l := New("executor")
	out := captureLog(func() {
		l.Info("wf-1", "step-1", "step completed", map[string]interface{}{"duration_ms": 42.0})
	})

	idx := strings.Index(out, "{")
	if idx < 0 {
		t.Fatalf("expected JSON log line, got %q", out)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(out[idx:]), &entry); err != nil {
		t.Fatalf("expected valid JSON log line, got %q: %v", out, err)
	}
	if entry.Level != INFO {
		t.Errorf("expected level %q, got %q", INFO, entry.Level)
	}
	if entry.Component != "executor" {
		t.Errorf("expected component %q, got %q", "executor", entry.Component)
	}
	if entry.WorkflowID != "wf-1" || entry.StepID != "step-1" {
		t.Errorf("expected workflow/step IDs to be preserved, got %+v", entry)
	}
	if entry.Fields["duration_ms"] != 42.0 {
		t.Errorf("expected duration_ms field 42.0, got %v", entry.Fields["duration_ms"])
	}
}

func TestLevelHelpers(t *testing.T) {
	cases := []struct {
		name string
		call func(l *Logger)
		want Level
	}{
		{"warn", func(l *Logger) { l.Warn("", "", "msg", nil) }, WARN},
		{"error", func(l *Logger) { l.Error("", "", "msg", nil) }, ERROR},
		{"debug", func(l *Logger) { l.Debug("", "", "msg", nil) }, DEBUG},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New("c")
			out := captureLog(func() { tc.call(l) })
			idx := strings.Index(out, "{")
			var entry Entry
			if err := json.Unmarshal([]byte(out[idx:]), &entry); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if entry.Level != tc.want {
				t.Errorf("expected level %q, got %q", tc.want, entry.Level)
			}
		})
	}
}

func TestInfoWithDuration_SetsDurationField(t *testing.T) {
	l := New("c")
	out := captureLog(func() {
		l.InfoWithDuration("wf", "step", "done", 12.5, nil)
	})
	idx := strings.Index(out, "{")
	var entry Entry
	if err := json.Unmarshal([]byte(out[idx:]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("expected duration_ms 12.5, got %v", entry.Fields["duration_ms"])
	}
}
