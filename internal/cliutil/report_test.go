package cliutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/drainexit/internal/harness"
)

func TestEncodeResultLevels(t *testing.T) {
	tests := []struct {
		name     string
		result   harness.Result
		expected string
	}{
		{name: "passed", result: harness.Result{Name: "a", Passed: true}, expected: "info"},
		{name: "failed", result: harness.Result{Name: "b", Failures: []string{"exit code 1, want 0"}}, expected: "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			var errBuf bytes.Buffer

			EncodeResult(json.NewEncoder(&out), &errBuf, tc.result)

			if errBuf.Len() != 0 {
				t.Fatalf("unexpected stderr output: %s", errBuf.String())
			}

			var record ResultRecord
			if err := json.Unmarshal(out.Bytes(), &record); err != nil {
				t.Fatalf("failed to unmarshal result record: %v", err)
			}
			if record.Level != tc.expected {
				t.Fatalf("expected level %q, got %q", tc.expected, record.Level)
			}
			if record.Scenario != tc.result.Name {
				t.Fatalf("expected scenario %q, got %q", tc.result.Name, record.Scenario)
			}
			if record.Timestamp.IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestNewResultRecordFields(t *testing.T) {
	record := NewResultRecord(harness.Result{
		Name:         "status-123",
		ExitCode:     1,
		WantExitCode: 123,
		Lines:        19,
		WantLines:    20,
		Duration:     1500 * time.Microsecond,
		Command:      []string{"drainexit", "log", "123", "10"},
		Failures:     []string{"exit code 1, want 123"},
	})

	if record.Command != "drainexit log 123 10" {
		t.Fatalf("unexpected command %q", record.Command)
	}
	if record.DurationMS != 1.5 {
		t.Fatalf("expected 1.5ms, got %v", record.DurationMS)
	}
	if record.Passed || len(record.Failures) != 1 {
		t.Fatalf("expected failed record with one failure, got %+v", record)
	}
}

func TestWriteTable(t *testing.T) {
	var out bytes.Buffer
	WriteTable(&out, []harness.Result{
		{Name: "ok-one", Passed: true, Lines: 20, WantLines: 20},
		{Name: "bad-one", ExitCode: 1, WantExitCode: 0, Failures: []string{"exit code 1, want 0", "captured 3 lines, want 4"}},
	})

	text := out.String()
	for _, want := range []string{"SCENARIO", "ok-one", "bad-one", "FAIL", "20/20", "(+1 more)", "1 passed, 1 failed"} {
		if !strings.Contains(text, want) {
			t.Fatalf("table missing %q:\n%s", want, text)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	cases := map[string]string{
		"":     FormatJSON,
		"auto": FormatJSON,
		"TEXT": FormatText,
		"json": FormatJSON,
	}
	for input, want := range cases {
		got, err := ResolveFormat(input, &buf)
		if err != nil {
			t.Fatalf("ResolveFormat(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ResolveFormat(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ResolveFormat("yaml", &buf); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
