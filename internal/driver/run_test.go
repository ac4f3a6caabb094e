package driver

import (
	"context"
	"testing"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

func TestRunSuccess(t *testing.T) {
	res, err := Run(context.Background(), "true")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Command != "true" {
		t.Errorf("Command = %q, want %q", res.Command, "true")
	}
}

func TestRunNonzeroExit(t *testing.T) {
	_, err := Run(context.Background(), "false")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if !rdiag.IsStage(err, rdiag.StageExecutionFailure) {
		t.Errorf("expected StageExecutionFailure, got %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), "this-binary-does-not-exist-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !rdiag.IsStage(err, rdiag.StageMissingFile) {
		t.Errorf("expected StageMissingFile, got %v", err)
	}
}

func TestValidatePathRejectsMetacharacters(t *testing.T) {
	if err := ValidatePath("clang; rm -rf /"); err == nil {
		t.Fatal("expected rejection of shell metacharacters")
	}
}

func TestValidatePathRejectsEmpty(t *testing.T) {
	if err := ValidatePath("  "); err == nil {
		t.Fatal("expected rejection of empty path")
	}
}

func TestFormatCommandQuotesSpaces(t *testing.T) {
	got := formatCommand("/bin/echo", []string{"hello world", "plain"})
	want := "/bin/echo 'hello world' plain"
	if got != want {
		t.Errorf("formatCommand = %q, want %q", got, want)
	}
}
