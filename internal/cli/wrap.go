package cli

import (
	"context"
	"io"

	"github.com/h1994st/rllvm-go/internal/driver"
	"github.com/h1994st/rllvm-go/internal/rconfig"
)

// runWrap implements the shared shape of the rllvm-cc/rllvm-cxx CLIs (spec
// §6 "Wrapper CLI"): `-c/--compiler` overrides the configured wrapped
// compiler, `-v/--verbose` raises the log level, and every remaining
// (or post-"--") token is the wrapped compiler's own argv, untouched.
func runWrap(ctx context.Context, binaryName, defaultCompiler string, cfg *rconfig.Config, args []string, stdout, stderr io.Writer) int {
	var compilerOverride string
	var verbosity countFlag

	fs := newFlagSet(stderr, binaryName+" [-c compiler] [-v] -- <compiler-args...>",
		"Drop-in compiler wrapper that also collects whole-program LLVM bitcode.")
	fs.StringVar(&compilerOverride, "compiler", "", "Override the wrapped compiler path.")
	fs.StringVar(&compilerOverride, "c", "", "Override the wrapped compiler path (shorthand).")
	fs.Var(&verbosity, "verbose", "Raise log verbosity (repeatable).")
	fs.Var(&verbosity, "v", "Raise log verbosity (repeatable, shorthand).")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	wrappedArgv := fs.Args()
	if len(wrappedArgv) == 0 {
		return usageErrorf(fs, stderr, "no compiler arguments were given")
	}

	compiler := compilerOverride
	if compiler == "" {
		compiler = defaultCompiler
	}
	if compiler == "" {
		return cliErrorf(stderr, "no wrapped compiler configured: pass -c/--compiler or set it in the config sidecar")
	}

	wd := driver.NewWrapperDriver(compiler, cfg)
	code, err := wd.Run(ctx, wrappedArgv)
	if err != nil {
		return cliErrorf(stderr, "%v", err)
	}
	return code
}

// RunCC is the rllvm-cc entrypoint: wraps the configured C compiler
// (clang_filepath, default "clang").
func RunCC(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := loadConfig(stderr)
	defaultCompiler := cfg.ClangFilepath
	if defaultCompiler == "" {
		defaultCompiler = "clang"
	}
	return runWrap(ctx, "rllvm-cc", defaultCompiler, cfg, args, stdout, stderr)
}

// RunCXX is the rllvm-cxx entrypoint: wraps the configured C++ compiler
// (clangxx_filepath, default "clang++").
func RunCXX(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := loadConfig(stderr)
	defaultCompiler := cfg.ClangxxFilepath
	if defaultCompiler == "" {
		defaultCompiler = "clang++"
	}
	return runWrap(ctx, "rllvm-cxx", defaultCompiler, cfg, args, stdout, stderr)
}
