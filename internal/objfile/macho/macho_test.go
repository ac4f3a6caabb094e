package macho

import (
	"bytes"
	"debug/macho"
	"testing"

	"github.com/h1994st/rllvm-go/internal/objfile"
)

func minimalObject() *objfile.ObjectFile {
	return &objfile.ObjectFile{
		Format:  objfile.FormatMachO,
		Kind:    objfile.KindRelocatable,
		Machine: uint16(macho.CpuAmd64 & 0xffff),
		Sections: []objfile.Section{
			{Name: "__text", Segment: "__TEXT", Kind: objfile.SectionCode, Content: []byte{0x90, 0xc3}, Alignment: 4},
		},
		Symbols: []objfile.Symbol{
			{Name: "_main", Scope: objfile.ScopeGlobal, SectionIdx: 0},
		},
	}
}

func TestSniffDetectsMachOMagic(t *testing.T) {
	var magic [4]byte
	magic[0], magic[1], magic[2], magic[3] = 0xcf, 0xfa, 0xed, 0xfe
	if !Sniff(magic[:]) {
		t.Error("expected Sniff to detect Mach-O 64-bit magic")
	}
	if Sniff([]byte{0, 0, 0, 0}) {
		t.Error("expected Sniff to reject non-Mach-O bytes")
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
	if len(got.Sections) != 1 || got.Sections[0].Name != "__text" {
		t.Errorf("Sections = %+v", got.Sections)
	}
}

func TestWriteThenParsePreservesRelocations(t *testing.T) {
	obj := &objfile.ObjectFile{
		Format:  objfile.FormatMachO,
		Kind:    objfile.KindRelocatable,
		Machine: uint16(macho.CpuAmd64 & 0xffff),
		Sections: []objfile.Section{
			{
				Name: "__text", Segment: "__TEXT", Kind: objfile.SectionCode, Content: []byte{0x90, 0xc3}, Alignment: 4,
				Relocations: []objfile.Relocation{
					{Offset: 1, TargetKind: objfile.RelocationTargetSymbol, TargetIdx: 1, Type: 2, PCRelative: true, Length: 2},
				},
			},
			{Name: "__data", Segment: "__DATA", Kind: objfile.SectionData, Content: []byte{0, 0, 0, 0}, Alignment: 4},
		},
		Symbols: []objfile.Symbol{
			{Name: "_main", Scope: objfile.ScopeGlobal, SectionIdx: 0},
			{Name: "_gvar", Scope: objfile.ScopeGlobal, SectionIdx: 1},
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
		t.Fatalf("expected 1 relocation on __text, got %+v", got.Sections[0].Relocations)
	}
	rel := got.Sections[0].Relocations[0]
	if rel.Offset != 1 || rel.Type != 2 || !rel.PCRelative || rel.Length != 2 {
		t.Errorf("relocation = %+v, want Offset=1 Type=2 PCRelative=true Length=2", rel)
	}
	if rel.TargetKind != objfile.RelocationTargetSymbol || got.Symbols[rel.TargetIdx].Name != "_gvar" {
		t.Errorf("relocation target = %+v, want symbol _gvar", rel)
	}
}

func TestWriteAddsBitcodeSection(t *testing.T) {
	obj := minimalObject()
	placement := objfile.PlacementFor(objfile.FormatMachO)
	obj.Sections = append(obj.Sections, objfile.Section{
		Name:    placement.Section,
		Segment: placement.Segment,
		Kind:    objfile.SectionMetadata,
		Content: []byte("/tmp/foo.o.bc\n"),
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
		if s.Name == "__llvm_bc" && s.Segment == "__RLLVM" {
			found = true
		}
	}
	if !found {
		t.Error("expected __RLLVM,__llvm_bc section to round-trip")
	}
}
