package cli

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/h1994st/rllvm-go/internal/cache"
)

// RunInfo is the rllvm-info entrypoint: a supplemental diagnostics binary
// (not named by spec.md, added per the expanded ambient stack) that
// reports the resolved configuration, wrapped-tool availability, and
// bitcode cache hit/miss counters, in the shape of the teacher's own
// doctor subcommand (resolved paths + a pass/warn summary).
func RunInfo(_ context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr, "rllvm-info", "Report resolved configuration, tool availability, and cache statistics.")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg := loadConfig(stderr)

	fmt.Fprintln(stdout, "rllvm-info")
	fmt.Fprintf(stdout, "  bitcode store:     %s\n", pathOrDefault(cfg.BitcodeStorePath, "(unset)"))
	fmt.Fprintf(stdout, "  cache enabled:     %v\n", cache.Enabled(cfg.CacheEnabled))
	dir, err := cache.Dir(cfg.CacheDir)
	if err != nil {
		fmt.Fprintf(stdout, "  cache dir:         (unavailable: %v)\n", err)
	} else {
		fmt.Fprintf(stdout, "  cache dir:         %s\n", dir)
	}
	hits, misses := cache.Stats()
	fmt.Fprintf(stdout, "  cache hits/misses: %d/%d\n", hits, misses)

	fmt.Fprintln(stdout, "  tools:")
	reportTool(stdout, "clang", cfg.ClangFilepath, "clang")
	reportTool(stdout, "clang++", cfg.ClangxxFilepath, "clang++")
	reportTool(stdout, "llvm-link", cfg.LLVMLinkFilepath, "llvm-link")
	reportTool(stdout, "llvm-ar", cfg.LLVMArFilepath, "llvm-ar")
	reportTool(stdout, "llvm-objcopy", cfg.LLVMObjcopyFilepath, "llvm-objcopy")

	return 0
}

func reportTool(stdout io.Writer, label, configured, fallback string) {
	name := configured
	if name == "" {
		name = fallback
	}
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(stdout, "    %-14s (not found: %s)\n", label+":", name)
		return
	}
	fmt.Fprintf(stdout, "    %-14s %s\n", label+":", path)
}

func pathOrDefault(p, fallback string) string {
	if p == "" {
		return fallback
	}
	return p
}
