package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/h1994st/rllvm-go/internal/rconfig"
)

// RunInit is the rllvm-init entrypoint (spec §6 "Init CLI"). llvm-config and
// Homebrew discovery are explicitly out of scope (spec §1); RunInit writes
// a config sidecar populated with the defaults every other binary falls
// back to when a field is empty, so the sidecar is immediately editable
// rather than an empty shell.
func RunInit(_ context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		force            bool
		bitcodeStorePath string
	)

	fs := newFlagSet(stderr, "rllvm-init [-f] [--bitcode-store <path>]",
		"Write the rllvm configuration sidecar, if one does not already exist.")
	fs.BoolVar(&force, "force", false, "Overwrite an existing config sidecar.")
	fs.BoolVar(&force, "f", false, "Overwrite an existing config sidecar (shorthand).")
	fs.StringVar(&bitcodeStorePath, "bitcode-store", "", "Absolute path for the shared bitcode store (default: <config dir>/bitcode-store).")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	path := rconfig.DefaultPath()
	if _, err := os.Stat(path); err == nil && !force {
		return cliErrorf(stderr, "config sidecar already exists at %q (use -f/--force to overwrite)", path)
	}

	if bitcodeStorePath == "" {
		bitcodeStorePath = filepath.Join(filepath.Dir(path), "bitcode-store")
	}
	if !filepath.IsAbs(bitcodeStorePath) {
		abs, err := filepath.Abs(bitcodeStorePath)
		if err != nil {
			return cliErrorf(stderr, "resolving bitcode store path: %v", err)
		}
		bitcodeStorePath = abs
	}

	cfg := &rconfig.Config{
		ClangFilepath:       "clang",
		ClangxxFilepath:     "clang++",
		LLVMArFilepath:      "llvm-ar",
		LLVMLinkFilepath:    "llvm-link",
		LLVMObjcopyFilepath: "llvm-objcopy",
		BitcodeStorePath:    bitcodeStorePath,
		LogLevel:            0,
		CacheEnabled:        false,
	}

	if err := cfg.EnsureBitcodeStore(); err != nil {
		return cliErrorf(stderr, "%v", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return cliErrorf(stderr, "encoding config: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cliErrorf(stderr, "creating config directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cliErrorf(stderr, "writing config: %v", err)
	}

	fmt.Fprintf(stdout, "wrote %s\n", path)
	return 0
}
