package objread

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/objfile/elf"
)

func objectWithBitcodePaths(t *testing.T, paths ...string) []byte {
	t.Helper()
	obj := &objfile.ObjectFile{
		Format:  objfile.FormatELF,
		Kind:    objfile.KindRelocatable,
		Machine: 0x3e,
		Sections: []objfile.Section{
			{Name: ".text", Kind: objfile.SectionCode, Content: []byte{0x90, 0xc3}, Alignment: 4},
			{Name: ".llvm_bc", Kind: objfile.SectionMetadata, Content: []byte(strings.Join(paths, "\n") + "\n")},
		},
	}
	var buf bytes.Buffer
	if err := elf.Write(obj, &buf); err != nil {
		t.Fatalf("elf.Write: %v", err)
	}
	return buf.Bytes()
}

func TestExtractSingleObject(t *testing.T) {
	data := objectWithBitcodePaths(t, "/tmp/foo.o.bc")
	paths, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/tmp/foo.o.bc" {
		t.Errorf("paths = %v", paths)
	}
}

func TestExtractMultiplePathsFromOneSection(t *testing.T) {
	data := objectWithBitcodePaths(t, "/tmp/a.o.bc", "/tmp/b.o.bc")
	paths, err := Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", paths)
	}
}

func TestExtractRejectsUnrecognizedFormat(t *testing.T) {
	if _, err := Extract([]byte("not an object file, long enough to not look like an archive")); err == nil {
		t.Fatal("expected error for unrecognized format")
	}
}

func TestExtractArchiveAggregatesMembers(t *testing.T) {
	obj1 := objectWithBitcodePaths(t, "/tmp/a.o.bc")
	obj2 := objectWithBitcodePaths(t, "/tmp/b.o.bc")

	var b strings.Builder
	b.WriteString("!<arch>\n")
	for i, content := range [][]byte{obj1, obj2} {
		name := fmt.Sprintf("m%d.o/", i)
		header := fmt.Sprintf("%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "100644", len(content))
		b.WriteString(header)
		b.Write(content)
		if len(content)%2 == 1 {
			b.WriteByte('\n')
		}
	}

	paths, err := Extract([]byte(b.String()))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths across archive members, got %v", paths)
	}
}
