// Package rconfig holds the resolved, in-memory configuration record that
// the rest of the core consumes. The full TOML configuration file (spec §6)
// and rllvm-init's llvm-config/Homebrew discovery are out of scope (spec
// §1) and remain an external-collaborator interface; this package loads
// only the narrower JSON sidecar the core packages themselves need, in the
// same spirit as the teacher's own internal/llvm.LoadConfig.
package rconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Config is the resolved configuration record described by spec §6's key
// table, minus the discovery-only fields (llvm_config_filepath) that
// belong to the out-of-scope rllvm-init collaborator.
type Config struct {
	ClangFilepath        string   `json:"clang_filepath"`
	ClangxxFilepath      string   `json:"clangxx_filepath"`
	LLVMArFilepath       string   `json:"llvm_ar_filepath"`
	LLVMLinkFilepath     string   `json:"llvm_link_filepath"`
	LLVMObjcopyFilepath  string   `json:"llvm_objcopy_filepath"`
	BitcodeStorePath     string   `json:"bitcode_store_path"`
	LLVMLinkFlags        []string `json:"llvm_link_flags"`
	LTOLDFlags           []string `json:"lto_ldflags"`
	BitcodeGenerationFlags []string `json:"bitcode_generation_flags"`
	IsConfigureOnly      bool     `json:"is_configure_only"`
	LogLevel             int      `json:"log_level"`
	CacheEnabled         bool     `json:"cache_enabled"`
	CacheDir             string   `json:"cache_dir"`
	// Jobs bounds the per-input worker pool WrapperDriver uses for
	// bitcode generation when one driver invocation names more than one
	// input file (spec §5's concurrency model). 0 or 1 means sequential.
	Jobs int `json:"jobs"`
}

// DefaultPath returns $RLLVM_CONFIG if set, else $HOME/.rllvm/config.json.
func DefaultPath() string {
	if p := os.Getenv("RLLVM_CONFIG"); strings.TrimSpace(p) != "" {
		return p
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ".rllvm/config.json"
	}
	return home + "/.rllvm/config.json"
}

// Load reads, parses, and validates a JSON configuration file. A missing
// file is not an error: Load returns a zero-value Config so callers can
// apply the CLI/environment overrides spec §6 describes on top of it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("reading config %q", path))
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, rdiag.New(rdiag.StageConfigError, err, "", "", fmt.Sprintf("parsing config %q", path))
	}

	if cfg.BitcodeStorePath != "" && !strings.HasPrefix(cfg.BitcodeStorePath, "/") {
		return nil, rdiag.New(rdiag.StageConfigError,
			fmt.Errorf("bitcode_store_path %q must be absolute", cfg.BitcodeStorePath), "", "",
			"set bitcode_store_path to an absolute directory")
	}

	// RLLVM_CACHE overrides cache_enabled at runtime, per spec §6.
	if v := os.Getenv("RLLVM_CACHE"); v == "1" {
		cfg.CacheEnabled = true
	}

	return &cfg, nil
}

// EnsureBitcodeStore creates the bitcode store directory if configured and
// missing, per spec §6 ("created if missing").
func (c *Config) EnsureBitcodeStore() error {
	if c.BitcodeStorePath == "" {
		return nil
	}
	if err := os.MkdirAll(c.BitcodeStorePath, 0o755); err != nil {
		return rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("creating bitcode store %q", c.BitcodeStorePath))
	}
	return nil
}
