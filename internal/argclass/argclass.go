// Package argclass classifies a compiler driver's argv into the
// compile/link/input/output buckets the rest of the core needs, mirroring
// clang's own argument grammar closely enough to tell a plain object-file
// build from a link, an LTO build, or a build that must not get bitcode at
// all (preprocess-only, assemble-only, print-only, and friends).
package argclass

import (
	"fmt"
	"regexp"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Mode is the coarse build mode a classified invocation falls into.
type Mode int

const (
	// ModeCompiling is any invocation that is not purely a link: it has at
	// least one source/bitcode input file.
	ModeCompiling Mode = iota
	// ModeLinking is an invocation with no input files and at least one
	// link argument (object files, -l, -L, ...).
	ModeLinking
	// ModeLTO is ModeLinking plus -flto/-flto=...: the linker itself will
	// run LLVM's LTO pipeline.
	ModeLTO
)

func (m Mode) String() string {
	switch m {
	case ModeCompiling:
		return "compiling"
	case ModeLinking:
		return "linking"
	case ModeLTO:
		return "lto"
	default:
		return "unknown"
	}
}

// Args is the classified shape of a single compiler-driver invocation: the
// bucketed flags a WrapperDriver needs to run the native build, decide
// whether to generate bitcode, and reconstruct the link line.
type Args struct {
	InputArgs       []string
	InputFiles      []string
	ObjectFiles     []string
	OutputFilename  string
	CompileArgs     []string
	LinkArgs        []string
	ForbiddenFlags  []string
	IsVerbose       bool
	IsDependencyOnly bool
	IsPreprocessOnly bool
	IsAssembleOnly   bool
	IsAssembly       bool
	IsCompileOnly    bool
	IsEmitLLVM       bool
	IsLTO            bool
	IsPrintOnly      bool
}

// Mode derives the coarse build mode from the classified flags: an
// invocation is linking only when it has no input files and at least one
// link argument, and LTO is linking plus -flto.
func (a *Args) Mode() Mode {
	if len(a.InputFiles) == 0 && len(a.LinkArgs) > 0 {
		if a.IsLTO {
			return ModeLTO
		}
		return ModeLinking
	}
	return ModeCompiling
}

// SkipReason names why bitcode generation was skipped for an invocation.
type SkipReason string

const (
	SkipReasonNone             SkipReason = ""
	SkipReasonNoInputFiles     SkipReason = "the list of input files is empty"
	SkipReasonEmitLLVM         SkipReason = "the compiler will generate bitcode in emit-llvm mode"
	SkipReasonLTO              SkipReason = "the compiler will generate bitcode during the link-time optimization"
	SkipReasonAssemblyInput    SkipReason = "the input file(s) are written in assembly"
	SkipReasonAssembleOnly     SkipReason = "we are only assembling, so cannot embed the path of the bitcode"
	SkipReasonDependencyOnly   SkipReason = "we are only computing dependencies"
	SkipReasonPreprocessOnly   SkipReason = "we are only preprocessing"
	SkipReasonPrintOnly        SkipReason = "we are in print-only mode, so cannot embed the path of the bitcode"
)

// ShouldSkipBitcode reports whether bitcode generation should be skipped,
// and why. When several of the underlying conditions hold at once, the
// last one (in the fixed order below) is the reason reported: that is the
// order the Rust implementation this core was ported from walks its
// condition table, overwriting its "reason" on every match rather than
// stopping at the first one, so the last match wins there too.
func (a *Args) ShouldSkipBitcode() (bool, SkipReason) {
	skip := false
	reason := SkipReasonNone

	conditions := []struct {
		hit    bool
		reason SkipReason
	}{
		{len(a.InputFiles) == 0, SkipReasonNoInputFiles},
		{a.IsEmitLLVM, SkipReasonEmitLLVM},
		{a.IsLTO, SkipReasonLTO},
		{a.IsAssembly, SkipReasonAssemblyInput},
		{a.IsAssembleOnly, SkipReasonAssembleOnly},
		{a.IsDependencyOnly && !a.IsCompileOnly, SkipReasonDependencyOnly},
		{a.IsPreprocessOnly, SkipReasonPreprocessOnly},
		{a.IsPrintOnly, SkipReasonPrintOnly},
	}
	for _, c := range conditions {
		if c.hit {
			skip = true
			reason = c.reason
		}
	}
	return skip, reason
}

var assemblySourceRE = regexp.MustCompile(`\.(s|S)$`)

func (a *Args) inputFile(flag string) {
	a.InputFiles = append(a.InputFiles, flag)
	if assemblySourceRE.MatchString(flag) {
		a.IsAssembly = true
	}
}

func (a *Args) outputFile(params []string) {
	a.OutputFilename = params[0]
}

func (a *Args) objectFile(flag string) {
	a.ObjectFiles = append(a.ObjectFiles, flag)
	a.LinkArgs = append(a.LinkArgs, flag)
}

func (a *Args) linkerGroup(group []string) {
	a.LinkArgs = append(a.LinkArgs, group...)
}

func (a *Args) preprocessOnly()  { a.IsPreprocessOnly = true }
func (a *Args) printOnly()       { a.IsPrintOnly = true }
func (a *Args) assembleOnly()    { a.IsAssembleOnly = true }
func (a *Args) verbose()         { a.IsVerbose = true }
func (a *Args) compileOnly()     { a.IsCompileOnly = true }

func (a *Args) dependencyOnly(flag string) {
	a.IsDependencyOnly = true
	a.CompileArgs = append(a.CompileArgs, flag)
}

func (a *Args) emitLLVM() {
	a.IsEmitLLVM = true
	a.IsCompileOnly = true
}

func (a *Args) lto() { a.IsLTO = true }

func (a *Args) linkUnary(flag string) {
	a.LinkArgs = append(a.LinkArgs, flag)
}

func (a *Args) compileUnary(flag string) {
	a.CompileArgs = append(a.CompileArgs, flag)
}

func (a *Args) warningLinkUnary(flag string) {
	a.ForbiddenFlags = append(a.ForbiddenFlags, flag)
}

func (a *Args) defaultBinary() {}

func (a *Args) dependencyBinary(flag string, params []string) {
	a.CompileArgs = append(a.CompileArgs, flag, params[0])
	a.IsDependencyOnly = true
}

func (a *Args) compileBinary(flag string, params []string) {
	a.CompileArgs = append(a.CompileArgs, flag, params[0])
}

func (a *Args) linkBinary(flag string, params []string) {
	a.LinkArgs = append(a.LinkArgs, flag, params[0])
}

func (a *Args) compileLinkUnary(flag string) {
	a.CompileArgs = append(a.CompileArgs, flag)
	a.LinkArgs = append(a.LinkArgs, flag)
}

func (a *Args) compileLinkBinary(flag string, params []string) {
	a.CompileArgs = append(a.CompileArgs, flag, params[0])
	a.LinkArgs = append(a.LinkArgs, flag, params[0])
}

// apply runs the verb a flag classified to, consuming 0 or 1 parameters
// starting right after the flag itself. Linker groups are handled in
// Classify, not here.
func (a *Args) apply(verb verb, flag string, params []string) {
	switch verb {
	case verbInputFile:
		a.inputFile(flag)
	case verbOutputFile:
		a.outputFile(params)
	case verbObjectFile:
		a.objectFile(flag)
	case verbPreprocessOnly:
		a.preprocessOnly()
	case verbPrintOnly:
		a.printOnly()
	case verbAssembleOnly:
		a.assembleOnly()
	case verbVerbose:
		a.verbose()
	case verbCompileOnly:
		a.compileOnly()
	case verbDependencyOnly:
		a.dependencyOnly(flag)
	case verbEmitLLVM:
		a.emitLLVM()
	case verbLTO:
		a.lto()
	case verbLinkUnary:
		a.linkUnary(flag)
	case verbCompileUnary:
		a.compileUnary(flag)
	case verbWarningLinkUnary:
		a.warningLinkUnary(flag)
	case verbDefaultBinary:
		a.defaultBinary()
	case verbDependencyBinary:
		a.dependencyBinary(flag, params)
	case verbCompileBinary:
		a.compileBinary(flag, params)
	case verbLinkBinary:
		a.linkBinary(flag, params)
	case verbCompileLinkUnary:
		a.compileLinkUnary(flag)
	case verbCompileLinkBinary:
		a.compileLinkBinary(flag, params)
	default:
		a.compileUnary(flag)
	}
}

// Classify walks argv exactly once, producing the bucketed Args a
// WrapperDriver needs. Each position is resolved, in order, by: an exact
// flag-table match; the "-Wl,--start-group ... -Wl,--end-group" grouping
// special case; an ordered regex pattern match; and finally, for anything
// still unrecognized, a fallback that treats the token as an object file if
// it looks like a relocatable object on disk, or as an opaque compiler flag
// otherwise.
func Classify(argv []string) (*Args, error) {
	a := &Args{InputArgs: append([]string(nil), argv...)}

	i := 0
	for i < len(argv) {
		arg := argv[i]
		offset := 1

		if spec, ok := flagExactMatch[arg]; ok {
			params, err := takeParams(argv, i, spec.arity)
			if err != nil {
				return nil, err
			}
			a.apply(spec.verb, arg, params)
			offset += spec.arity
		} else if arg == "-Wl,--start-group" {
			groupEnd := -1
			for j := i; j < len(argv); j++ {
				if argv[j] == "-Wl,--end-group" {
					groupEnd = j - i
					break
				}
			}
			if groupEnd >= 0 {
				offset += groupEnd
				a.linkerGroup(argv[i : i+offset])
			} else {
				a.compileUnary(arg)
			}
		} else if spec, ok := matchPattern(arg); ok {
			params, err := takeParams(argv, i, spec.arity)
			if err != nil {
				return nil, err
			}
			a.apply(spec.verb, arg, params)
			offset += spec.arity
		} else if looksLikeObjectFile(arg) {
			a.objectFile(arg)
		} else {
			a.compileUnary(arg)
		}

		i += offset
	}

	return a, nil
}

func takeParams(argv []string, i, arity int) ([]string, error) {
	start := i + 1
	end := start + arity
	if end > len(argv) {
		return nil, rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("flag %q at position %d expects %d argument(s), only %d remain", argv[i], i, arity, len(argv)-start),
			"", "", "the wrapped invocation is missing an expected flag argument")
	}
	return argv[start:end], nil
}
