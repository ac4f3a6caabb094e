package arfmt

import (
	"fmt"
	"strings"
	"testing"
)

// buildArchive constructs a minimal valid ar archive with the given short
// (<=15 byte) member names and contents, for use as test fixtures.
func buildArchive(members []Member) []byte {
	var b strings.Builder
	b.WriteString(Magic)
	for _, m := range members {
		name := m.Name + "/"
		header := fmt.Sprintf("%-16s%-12d%-6d%-6d%-8s%-10d`\n",
			name, 0, 0, 0, "100644", len(m.Content))
		b.WriteString(header)
		b.Write(m.Content)
		if len(m.Content)%2 == 1 {
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

func TestParseRejectsMissingMagic(t *testing.T) {
	if _, err := Parse([]byte("not an archive")); err == nil {
		t.Fatal("expected error for missing ar magic")
	}
}

func TestParseSingleMember(t *testing.T) {
	data := buildArchive([]Member{{Name: "foo.o", Content: []byte("hello")}})
	archive, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(archive.Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(archive.Members))
	}
	if archive.Members[0].Name != "foo.o" {
		t.Errorf("Name = %q", archive.Members[0].Name)
	}
	if string(archive.Members[0].Content) != "hello" {
		t.Errorf("Content = %q", archive.Members[0].Content)
	}
}

func TestParseMultipleMembersOddSized(t *testing.T) {
	data := buildArchive([]Member{
		{Name: "a.o", Content: []byte("odd")},
		{Name: "b.o", Content: []byte("even!")[:4]},
	})
	archive, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(archive.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(archive.Members))
	}
	if archive.Members[0].Name != "a.o" || archive.Members[1].Name != "b.o" {
		t.Errorf("unexpected member names: %+v", archive.Members)
	}
}

func TestParseTruncatedHeaderErrors(t *testing.T) {
	data := []byte(Magic + "short")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for truncated member header")
	}
}
