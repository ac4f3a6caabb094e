package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/h1994st/rllvm-go/internal/rconfig"
)

func TestRunInitWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	t.Setenv("RLLVM_CONFIG", configPath)

	var stdout, stderr bytes.Buffer
	code := RunInit(context.Background(), nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("code = %d, stderr = %s", code, stderr.String())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("expected config sidecar to exist: %v", err)
	}
	var cfg rconfig.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal written config: %v", err)
	}
	if cfg.ClangFilepath != "clang" {
		t.Errorf("ClangFilepath = %q, want clang", cfg.ClangFilepath)
	}
	if !filepath.IsAbs(cfg.BitcodeStorePath) {
		t.Errorf("BitcodeStorePath = %q, want an absolute path", cfg.BitcodeStorePath)
	}
	if _, err := os.Stat(cfg.BitcodeStorePath); err != nil {
		t.Errorf("expected bitcode store directory to be created: %v", err)
	}
}

func TestRunInitRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	t.Setenv("RLLVM_CONFIG", configPath)

	var stdout, stderr bytes.Buffer
	if code := RunInit(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("first RunInit failed: %d, %s", code, stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	code := RunInit(context.Background(), nil, &stdout, &stderr)
	if code == 0 {
		t.Error("expected RunInit to refuse to overwrite an existing sidecar without -f")
	}
}

func TestRunInitForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	t.Setenv("RLLVM_CONFIG", configPath)

	var stdout, stderr bytes.Buffer
	if code := RunInit(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("first RunInit failed: %d, %s", code, stderr.String())
	}
	code := RunInit(context.Background(), []string{"-f"}, &stdout, &stderr)
	if code != 0 {
		t.Errorf("code = %d, want 0 with -f", code)
	}
}
