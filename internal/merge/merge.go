// Package merge implements MergeOrchestrator: combine a set of extracted
// bitcode files into one output, using llvm-link or llvm-ar as an external
// subprocess exactly the way internal/driver invokes the wrapped compiler.
// The three strategies and their fallback/cleanup behavior are ported
// directly from original_source/src/merge.rs and
// original_source/src/utils/llvm_utils.rs.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/h1994st/rllvm-go/internal/driver"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Strategy selects how bitcode files are combined into a single output.
type Strategy int

const (
	// StrategyFull links every bitcode file into one module with llvm-link.
	StrategyFull Strategy = iota
	// StrategyPartial groups files by parent directory, links each group,
	// then links the per-group results into the final module.
	StrategyPartial
	// StrategyArchive archives every bitcode file with llvm-ar instead of
	// linking them.
	StrategyArchive
)

// String renders the strategy as its lowercase name ("full", "partial",
// "archive").
func (s Strategy) String() string {
	switch s {
	case StrategyFull:
		return "full"
	case StrategyPartial:
		return "partial"
	case StrategyArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Orchestrator merges bitcode files via an external llvm-link/llvm-ar
// binary, mirroring the teacher's subprocess-driven verification steps.
type Orchestrator struct {
	LLVMLinkPath  string
	LLVMLinkFlags []string
	LLVMArPath    string
}

// Merge combines bitcodeFilepaths into outputFilepath using strategy.
func (o *Orchestrator) Merge(ctx context.Context, strategy Strategy, bitcodeFilepaths []string, outputFilepath string) error {
	switch strategy {
	case StrategyFull:
		return o.linkBitcodeFiles(ctx, bitcodeFilepaths, outputFilepath)
	case StrategyPartial:
		return o.partialLinkBitcodeFiles(ctx, bitcodeFilepaths, outputFilepath)
	case StrategyArchive:
		return o.archiveBitcodeFiles(ctx, bitcodeFilepaths, outputFilepath)
	default:
		return rdiag.New(rdiag.StageInvalidArguments, fmt.Errorf("unknown merge strategy %v", strategy), "", "", "")
	}
}

// linkBitcodeFiles runs llvm-link over every input, producing a single
// merged bitcode module at outputFilepath.
func (o *Orchestrator) linkBitcodeFiles(ctx context.Context, bitcodeFilepaths []string, outputFilepath string) error {
	args := make([]string, 0, len(o.LLVMLinkFlags)+len(bitcodeFilepaths)+2)
	args = append(args, o.LLVMLinkFlags...)
	args = append(args, "-o", outputFilepath)
	args = append(args, bitcodeFilepaths...)

	_, err := driver.Run(ctx, o.LLVMLinkPath, args...)
	return err
}

// archiveBitcodeFiles runs llvm-ar to pack every input bitcode file into a
// single archive at outputFilepath, without linking them.
func (o *Orchestrator) archiveBitcodeFiles(ctx context.Context, bitcodeFilepaths []string, outputFilepath string) error {
	args := make([]string, 0, len(bitcodeFilepaths)+2)
	args = append(args, "rs", outputFilepath)
	args = append(args, bitcodeFilepaths...)

	_, err := driver.Run(ctx, o.LLVMArPath, args...)
	return err
}

// partialLinkBitcodeFiles groups bitcode files by parent directory, links
// each group into an intermediate module, then links the intermediates
// into the final output. A single group falls back to a full link.
// Intermediates are always cleaned up, even when an intermediate link
// fails partway through.
func (o *Orchestrator) partialLinkBitcodeFiles(ctx context.Context, bitcodeFilepaths []string, outputFilepath string) error {
	groups := groupByParentDir(bitcodeFilepaths)
	if len(groups) <= 1 {
		return o.linkBitcodeFiles(ctx, bitcodeFilepaths, outputFilepath)
	}

	outputDir := filepath.Dir(outputFilepath)
	outputStem := stemOf(outputFilepath)

	var intermediates []string
	for idx, dir := range sortedKeys(groups) {
		intermediate := filepath.Join(outputDir, fmt.Sprintf("%s_partial_%d.bc", outputStem, idx))
		if err := o.linkBitcodeFiles(ctx, groups[dir], intermediate); err != nil {
			cleanupFiles(append(intermediates, intermediate))
			return err
		}
		intermediates = append(intermediates, intermediate)
	}

	err := o.linkBitcodeFiles(ctx, intermediates, outputFilepath)
	cleanupFiles(intermediates)
	return err
}

// groupByParentDir buckets paths by filepath.Dir, using "" for paths
// without a meaningful parent.
func groupByParentDir(paths []string) map[string][]string {
	groups := make(map[string][]string)
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." {
			dir = ""
		}
		groups[dir] = append(groups[dir], p)
	}
	return groups
}

// sortedKeys returns groups' keys sorted lexically, so the partial-link
// pass assigns intermediate indexes deterministically across runs.
func sortedKeys(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stemOf(path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

func cleanupFiles(files []string) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			os.Remove(f)
		}
	}
}
