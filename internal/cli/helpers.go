// Package cli implements thin flag.FlagSet-based dispatch for the five
// rllvm binaries (rllvm-cc, rllvm-cxx, rllvm-get-bc, rllvm-init,
// rllvm-info). Each Run* function has the teacher's own
// Run(ctx, args, stdout, stderr) int signature.
package cli

import (
	"flag"
	"fmt"
	"io"
)

// Version is set at build time via ldflags.
var Version = "(dev)"

// newFlagSet builds a FlagSet whose usage line and one-line description
// are printed by -h/--help, writing to stderr the way every rllvm binary
// does.
func newFlagSet(stderr io.Writer, usage, description string) *flag.FlagSet {
	fs := flag.NewFlagSet(usage, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s\n\nUsage:\n  %s\n\nFlags:\n", description, usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args into fs, returning (code, false) when the caller
// should return immediately (parse error -> 2, -h/--help -> 0).
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// usageErrorf prints fs's usage followed by a one-line error and returns
// the conventional "bad usage" exit code.
func usageErrorf(fs *flag.FlagSet, stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "error: "+format+"\n", args...)
	fs.Usage()
	return 2
}

// cliErrorf prints a one-line error and returns the conventional
// "operation failed" exit code.
func cliErrorf(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "error: "+format+"\n", args...)
	return 1
}
