package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h1994st/rllvm-go/internal/merge"
	"github.com/h1994st/rllvm-go/internal/objfile/arfmt"
	"github.com/h1994st/rllvm-go/internal/objread"
)

// RunGetBC is the rllvm-get-bc entrypoint (spec §6 "Extractor CLI"):
// extract the bitcode paths embedded in a built artifact by ObjectMutator
// and merge them into a single output module (or archive) via
// MergeOrchestrator.
func RunGetBC(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		output            string
		saveManifest      bool
		buildBitcodeArchive bool
		verbosity         countFlag
	)

	fs := newFlagSet(stderr, "rllvm-get-bc [-o output] [-m] [-b] [-v] <artifact>",
		"Extract and merge the whole-program bitcode embedded in a built artifact.")
	fs.StringVar(&output, "output", "", "Merged bitcode output path.")
	fs.StringVar(&output, "o", "", "Merged bitcode output path (shorthand).")
	fs.BoolVar(&saveManifest, "save-manifest", false, "Write a sibling <output>.manifest listing every input bitcode path.")
	fs.BoolVar(&saveManifest, "m", false, "Write a sibling <output>.manifest (shorthand).")
	fs.BoolVar(&buildBitcodeArchive, "build-bitcode-archive", false, "Archive the inputs with llvm-ar instead of linking them.")
	fs.BoolVar(&buildBitcodeArchive, "b", false, "Archive the inputs instead of linking them (shorthand).")
	fs.Var(&verbosity, "verbose", "Raise log verbosity (repeatable).")
	fs.Var(&verbosity, "v", "Raise log verbosity (repeatable, shorthand).")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	positional := fs.Args()
	if len(positional) != 1 {
		return usageErrorf(fs, stderr, "expected exactly one input artifact, got %d", len(positional))
	}
	inputPath := positional[0]

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return cliErrorf(stderr, "reading %q: %v", inputPath, err)
	}

	bitcodePaths, err := objread.Extract(data)
	if err != nil {
		return cliErrorf(stderr, "%v", err)
	}
	if len(bitcodePaths) == 0 {
		return cliErrorf(stderr, "%q does not carry any embedded bitcode paths", inputPath)
	}

	if output == "" {
		output = defaultExtractorOutput(inputPath, buildBitcodeArchive)
		if !buildBitcodeArchive && bytes.HasPrefix(data, []byte(arfmt.Magic)) {
			output = strings.TrimSuffix(output, ".bc") + ".a.bc"
		}
	}

	cfg := loadConfig(stderr)
	orchestrator := &merge.Orchestrator{
		LLVMLinkPath:  firstNonEmpty(cfg.LLVMLinkFilepath, "llvm-link"),
		LLVMLinkFlags: cfg.LLVMLinkFlags,
		LLVMArPath:    firstNonEmpty(cfg.LLVMArFilepath, "llvm-ar"),
	}

	strategy := merge.StrategyFull
	if buildBitcodeArchive {
		strategy = merge.StrategyArchive
	}

	if err := orchestrator.Merge(ctx, strategy, bitcodePaths, output); err != nil {
		return cliErrorf(stderr, "%v", err)
	}

	if saveManifest {
		manifest := strings.Join(bitcodePaths, "\n") + "\n"
		if err := os.WriteFile(output+".manifest", []byte(manifest), 0o644); err != nil {
			return cliErrorf(stderr, "writing manifest: %v", err)
		}
	}

	fmt.Fprintln(stdout, output)
	return 0
}

// defaultExtractorOutput derives the default output path from the input
// artifact's stem (spec §6): "<stem>.bc" when linking, "<stem>.bca" (the
// historical get-bc extension) when archiving. RunGetBC turns the linking
// default into "<stem>.a.bc" when the input is an ar archive.
func defaultExtractorOutput(inputPath string, buildBitcodeArchive bool) string {
	name := filepath.Base(inputPath)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	dir := filepath.Dir(inputPath)
	if buildBitcodeArchive {
		return filepath.Join(dir, stem+".bca")
	}
	return filepath.Join(dir, stem+".bc")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
