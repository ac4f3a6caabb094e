// Package driver sequences the external processes a single compiler-driver
// invocation needs: the wrapped compiler, and (indirectly, via
// internal/merge) the bitcode linker and archiver.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Result captures the command string and captured output of a subprocess.
type Result struct {
	Command string
	Stdout  string
	Stderr  string
}

// Run executes bin with args, inheriting nothing: stdout/stderr are
// captured rather than inherited so callers can decide whether to surface
// them. Use RunInherit for the native compiler invocation, whose stdio
// must be inherited per spec §4.5 step 2.
func Run(ctx context.Context, bin string, args ...string) (Result, error) {
	if err := ValidatePath(bin); err != nil {
		return Result{}, err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := Result{
		Command: formatCommand(bin, args),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if runErr == nil {
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return result, rdiag.New(rdiag.StageExecutionFailure, runErr, result.Command, result.Stderr,
			"the subprocess exited with a nonzero status")
	}
	return result, rdiag.New(rdiag.StageMissingFile, runErr, result.Command, "",
		fmt.Sprintf("could not start %q; is it installed and on PATH?", bin))
}

// RunInherit executes bin with args, inheriting the current process's
// stdin/stdout/stderr, and returns only the exit code. Used for the native
// build step (spec §4.5 step 2), whose output must reach the user directly.
func RunInherit(ctx context.Context, bin string, args ...string) (int, error) {
	if err := ValidatePath(bin); err != nil {
		return 1, err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, rdiag.New(rdiag.StageMissingFile, runErr, formatCommand(bin, args), "",
		fmt.Sprintf("could not start %q; is it installed and on PATH?", bin))
}

// ValidatePath rejects a binary path containing shell metacharacters. The
// driver never invokes a shell, but a path smuggled in through a forbidden
// flag or malformed config should still be rejected defensively.
func ValidatePath(binPath string) error {
	if strings.TrimSpace(binPath) == "" {
		return rdiag.New(rdiag.StageMissingFile, fmt.Errorf("empty binary path"), "", "",
			"no compiler/linker/archiver path was resolved")
	}
	if strings.ContainsAny(binPath, ";|&$`\n") {
		return rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("binary path %q contains prohibited characters", binPath), "", "",
			"configured tool paths must not contain shell metacharacters")
	}
	return nil
}

func formatCommand(bin string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(bin))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " \t\n\"'\\") {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "'\"'\"'") + "'"
}

// resolveExisting checks that path exists and is executable-ish (a regular
// file); used by config/tool-path resolution.
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", rdiag.New(rdiag.StageMissingFile, err, "", "", fmt.Sprintf("tool path %q does not exist", path))
	}
	if info.IsDir() {
		return "", rdiag.New(rdiag.StageMissingFile, fmt.Errorf("%q is a directory", path), "", "",
			"expected an executable file")
	}
	return abs, nil
}
