package argclass

import (
	"reflect"
	"testing"
)

func TestClassifyCompileOnly(t *testing.T) {
	a, err := Classify([]string{"-c", "foo.c", "-o", "foo.o"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !a.IsCompileOnly {
		t.Error("expected IsCompileOnly")
	}
	if !reflect.DeepEqual(a.InputFiles, []string{"foo.c"}) {
		t.Errorf("InputFiles = %v", a.InputFiles)
	}
	if a.OutputFilename != "foo.o" {
		t.Errorf("OutputFilename = %q", a.OutputFilename)
	}
	if a.Mode() != ModeCompiling {
		t.Errorf("Mode() = %v, want ModeCompiling", a.Mode())
	}
}

func TestClassifyLinkOnly(t *testing.T) {
	a, err := Classify([]string{"a.o", "b.o", "-o", "prog"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(a.InputFiles) != 0 {
		t.Errorf("expected no input files, got %v", a.InputFiles)
	}
	if !reflect.DeepEqual(a.ObjectFiles, []string{"a.o", "b.o"}) {
		t.Errorf("ObjectFiles = %v", a.ObjectFiles)
	}
	if a.Mode() != ModeLinking {
		t.Errorf("Mode() = %v, want ModeLinking", a.Mode())
	}
}

func TestClassifyLTOLink(t *testing.T) {
	a, err := Classify([]string{"-flto=thin", "a.o", "b.o", "-o", "prog"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !a.IsLTO {
		t.Error("expected IsLTO")
	}
	if a.Mode() != ModeLTO {
		t.Errorf("Mode() = %v, want ModeLTO", a.Mode())
	}
}

func TestClassifyLinkerGroup(t *testing.T) {
	argv := []string{"-Wl,--start-group", "a.o", "b.o", "-Wl,--end-group", "-o", "prog"}
	a, err := Classify(argv)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"-Wl,--start-group", "a.o", "b.o", "-Wl,--end-group"}
	if !reflect.DeepEqual(a.LinkArgs, want) {
		t.Errorf("LinkArgs = %v, want %v", a.LinkArgs, want)
	}
	if a.OutputFilename != "prog" {
		t.Errorf("OutputFilename = %q", a.OutputFilename)
	}
}

func TestClassifyUnterminatedLinkerGroupFallsBackToCompileUnary(t *testing.T) {
	argv := []string{"-Wl,--start-group", "-o", "prog"}
	a, err := Classify(argv)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(a.CompileArgs) == 0 || a.CompileArgs[0] != "-Wl,--start-group" {
		t.Errorf("expected -Wl,--start-group to fall back to compile_unary, got %v", a.CompileArgs)
	}
}

func TestClassifyPreservesOrderAndTotality(t *testing.T) {
	argv := []string{"-I/usr/include", "-DFOO=1", "-c", "foo.c", "-o", "foo.o"}
	a, err := Classify(argv)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !reflect.DeepEqual(a.InputArgs, argv) {
		t.Errorf("InputArgs = %v, want %v", a.InputArgs, argv)
	}
	// Every compile-relevant flag should have landed in CompileArgs, in order.
	want := []string{"-I/usr/include", "-DFOO=1"}
	if !reflect.DeepEqual(a.CompileArgs, want) {
		t.Errorf("CompileArgs = %v, want %v", a.CompileArgs, want)
	}
}

func TestClassifyMissingFlagArgumentIsAnError(t *testing.T) {
	_, err := Classify([]string{"-o"})
	if err == nil {
		t.Fatal("expected error for -o missing its argument")
	}
}

func TestShouldSkipBitcodeNoInputFiles(t *testing.T) {
	a := &Args{}
	skip, reason := a.ShouldSkipBitcode()
	if !skip || reason != SkipReasonNoInputFiles {
		t.Errorf("got skip=%v reason=%q", skip, reason)
	}
}

func TestShouldSkipBitcodeLastMatchWins(t *testing.T) {
	// Both "preprocess only" and "print only" hold; print-only comes later
	// in the fixed condition order, so it is the reported reason.
	a := &Args{
		InputFiles:       []string{"foo.c"},
		IsPreprocessOnly: true,
		IsPrintOnly:      true,
	}
	skip, reason := a.ShouldSkipBitcode()
	if !skip || reason != SkipReasonPrintOnly {
		t.Errorf("got skip=%v reason=%q, want SkipReasonPrintOnly", skip, reason)
	}
}

func TestShouldSkipBitcodeNormalCompileDoesNotSkip(t *testing.T) {
	a := &Args{InputFiles: []string{"foo.c"}, IsCompileOnly: true}
	if skip, reason := a.ShouldSkipBitcode(); skip {
		t.Errorf("expected no skip, got reason %q", reason)
	}
}

func TestClassifyAssemblySourceSetsIsAssembly(t *testing.T) {
	a, err := Classify([]string{"-c", "foo.s"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !a.IsAssembly {
		t.Error("expected IsAssembly for .s input")
	}
	if skip, reason := a.ShouldSkipBitcode(); !skip || reason != SkipReasonAssemblyInput {
		t.Errorf("got skip=%v reason=%q", skip, reason)
	}
}

func TestClassifyEmitLLVMImpliesCompileOnly(t *testing.T) {
	a, err := Classify([]string{"-emit-llvm", "-c", "foo.c"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !a.IsEmitLLVM || !a.IsCompileOnly {
		t.Errorf("expected both IsEmitLLVM and IsCompileOnly, got %+v", a)
	}
}
