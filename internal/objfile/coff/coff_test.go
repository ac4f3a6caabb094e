package coff

import (
	"bytes"
	"testing"

	"github.com/h1994st/rllvm-go/internal/objfile"
)

func minimalObject() *objfile.ObjectFile {
	return &objfile.ObjectFile{
		Format:  objfile.FormatCOFF,
		Kind:    objfile.KindRelocatable,
		Machine: 0x8664, // IMAGE_FILE_MACHINE_AMD64
		Sections: []objfile.Section{
			{Name: ".text", Kind: objfile.SectionCode, Content: []byte{0x90, 0xc3}, Flags: 0x20},
		},
		Symbols: []objfile.Symbol{
			{Name: "main", Scope: objfile.ScopeGlobal, SectionIdx: 0},
		},
	}
}

func TestSniffRejectsPEImage(t *testing.T) {
	if Sniff([]byte{'M', 'Z', 0, 0}) {
		t.Error("expected Sniff to reject a PE image (MZ stub)")
	}
}

func TestSniffDetectsBareObjectMachine(t *testing.T) {
	if !Sniff([]byte{0x64, 0x86, 0, 0}) {
		t.Error("expected Sniff to detect IMAGE_FILE_MACHINE_AMD64")
	}
}

func TestWriteThenParseRoundTrip(t *testing.T) {
	obj := minimalObject()
	var buf bytes.Buffer
	if err := Write(obj, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Kind != objfile.KindRelocatable {
		t.Errorf("Kind = %v, want KindRelocatable", got.Kind)
	}
	if len(got.Sections) != 1 || got.Sections[0].Name != ".text" {
		t.Errorf("Sections = %+v", got.Sections)
	}
}

func TestWriteThenParsePreservesRelocationsAndComdat(t *testing.T) {
	const imageScnLnkComdat = 0x1000
	obj := &objfile.ObjectFile{
		Format:  objfile.FormatCOFF,
		Kind:    objfile.KindRelocatable,
		Machine: 0x8664, // IMAGE_FILE_MACHINE_AMD64
		Sections: []objfile.Section{
			{
				Name: ".text", Kind: objfile.SectionCode, Content: []byte{0x90, 0xc3}, Flags: 0x20 | imageScnLnkComdat,
				Relocations: []objfile.Relocation{
					{Offset: 2, TargetKind: objfile.RelocationTargetSymbol, TargetIdx: 1, Type: 4},
				},
			},
			{Name: ".data", Kind: objfile.SectionData, Content: []byte{0, 0, 0, 0}, Flags: 0x40},
		},
		Symbols: []objfile.Symbol{
			{Name: "main", Scope: objfile.ScopeGlobal, SectionIdx: 0},
			{Name: "gvar", Scope: objfile.ScopeGlobal, SectionIdx: 1},
			{Name: ".text", Kind: objfile.SymbolSection, SectionIdx: 0},
		},
		Comdats: []objfile.Comdat{
			{Kind: objfile.ComdatAny, RepresentativeSym: 2, MemberSectionIdxs: []int{0}},
		},
	}

	var buf bytes.Buffer
	if err := Write(obj, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(got.Sections) == 0 || len(got.Sections[0].Relocations) != 1 {
		t.Fatalf("expected 1 relocation on .text, got %+v", got.Sections[0].Relocations)
	}
	rel := got.Sections[0].Relocations[0]
	if rel.Offset != 2 || rel.Type != 4 {
		t.Errorf("relocation = %+v, want Offset=2 Type=4", rel)
	}
	if rel.TargetKind != objfile.RelocationTargetSymbol || got.Symbols[rel.TargetIdx].Name != "gvar" {
		t.Errorf("relocation target = %+v, want symbol gvar", rel)
	}

	if len(got.Comdats) != 1 {
		t.Fatalf("expected 1 COMDAT group, got %d", len(got.Comdats))
	}
	c := got.Comdats[0]
	if len(c.MemberSectionIdxs) != 1 || c.MemberSectionIdxs[0] != 0 {
		t.Errorf("comdat members = %v, want [0]", c.MemberSectionIdxs)
	}
	if got.Symbols[c.RepresentativeSym].Kind != objfile.SymbolSection {
		t.Errorf("comdat representative symbol kind = %v, want SymbolSection", got.Symbols[c.RepresentativeSym].Kind)
	}
}

func TestWriteAddsBitcodeSection(t *testing.T) {
	obj := minimalObject()
	placement := objfile.PlacementFor(objfile.FormatCOFF)
	obj.Sections = append(obj.Sections, objfile.Section{
		Name:    placement.Section,
		Kind:    objfile.SectionMetadata,
		Content: []byte("C:\\tmp\\foo.o.bc\n"),
	})

	var buf bytes.Buffer
	if err := Write(obj, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for _, s := range got.Sections {
		if s.Name == ".llvm_bc" {
			found = true
		}
	}
	if !found {
		t.Error("expected .llvm_bc section to round-trip")
	}
}
