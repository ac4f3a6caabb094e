package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunInfoReportsWithoutConfigSidecar(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("RLLVM_CONFIG", filepath.Join(home, "missing-config.json"))

	var stdout, stderr bytes.Buffer
	code := RunInfo(context.Background(), nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("code = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "rllvm-info") {
		t.Errorf("expected banner line, got %q", out)
	}
	if !strings.Contains(out, "cache hits/misses:") {
		t.Errorf("expected cache stats line, got %q", out)
	}
	if !strings.Contains(out, "tools:") {
		t.Errorf("expected tools section, got %q", out)
	}
}
