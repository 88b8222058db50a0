package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func suiteManifest(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func runConfigLint(t *testing.T, manifest string) (string, string, string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	stdout, stderr, err := executeRoot(t, "config", "lint", "-f", path)
	return stdout, stderr, path, err
}

func TestConfigLintSuccess(t *testing.T) {
	manifest := suiteManifest(
		`version: "1"`,
		"scenarios:",
		"  - name: piped",
		"    count: 100",
		"    modes: [stdout, stderr]",
		"    pipe: true",
		"  - status: 123",
		"    count: 10",
	)
	stdout, stderr, path, err := runConfigLint(t, manifest)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	want := fmt.Sprintf("%s: OK (2 scenarios)\n", path)
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
	if stderr != "" {
		t.Fatalf("unexpected stderr output: %q", stderr)
	}
}

func TestConfigLintReportsFieldPath(t *testing.T) {
	manifest := suiteManifest(
		`version: "1"`,
		"scenarios:",
		"  - count: 10",
		"  - count: -5",
	)
	stdout, stderr, _, err := runConfigLint(t, manifest)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if stdout != "" {
		t.Fatalf("expected empty stdout, got %q", stdout)
	}
	if !strings.Contains(stderr, "scenarios[1].count") {
		t.Fatalf("stderr does not mention field path: %q", stderr)
	}
}

func TestConfigLintRequiresFile(t *testing.T) {
	t.Setenv("DRAINEXIT_SUITE", "")
	_, stderr, err := executeRoot(t, "config", "lint")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(stderr, "no suite file") {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
}
