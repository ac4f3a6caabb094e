package rconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheEnabled || cfg.BitcodeStorePath != "" {
		t.Errorf("expected zero-value config, got %+v", cfg)
	}
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"clang_filepath": "/usr/bin/clang",
		"bitcode_store_path": "/tmp/bc-store",
		"llvm_link_flags": ["-internalize"],
		"cache_enabled": true,
		"cache_dir": "/tmp/cache"
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClangFilepath != "/usr/bin/clang" {
		t.Errorf("ClangFilepath = %q", cfg.ClangFilepath)
	}
	if !cfg.CacheEnabled || cfg.CacheDir != "/tmp/cache" {
		t.Errorf("cache fields not parsed: %+v", cfg)
	}
	if len(cfg.LLVMLinkFlags) != 1 || cfg.LLVMLinkFlags[0] != "-internalize" {
		t.Errorf("LLVMLinkFlags = %v", cfg.LLVMLinkFlags)
	}
}

func TestLoadRejectsRelativeBitcodeStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"bitcode_store_path": "relative/path"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for relative bitcode_store_path")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestRLLVMCacheEnvOverridesCacheEnabled(t *testing.T) {
	t.Setenv("RLLVM_CACHE", "1")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.CacheEnabled {
		t.Error("expected RLLVM_CACHE=1 to force CacheEnabled")
	}
}

func TestEnsureBitcodeStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	cfg := &Config{BitcodeStorePath: store}
	if err := cfg.EnsureBitcodeStore(); err != nil {
		t.Fatalf("EnsureBitcodeStore: %v", err)
	}
	if info, err := os.Stat(store); err != nil || !info.IsDir() {
		t.Errorf("expected %q to exist as a directory", store)
	}
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv("RLLVM_CONFIG", "/custom/config.json")
	if got := DefaultPath(); got != "/custom/config.json" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
