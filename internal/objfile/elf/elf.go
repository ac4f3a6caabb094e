// Package elf implements the ELF backend of ObjectMutator/ObjectReader:
// parsing a relocatable ELF object into the shared objfile model, and
// writing one back out with an added bitcode-path section.
//
// The read side is built on stdlib debug/elf's type vocabulary
// (elf.Machine, elf.SectionFlags, elf.ST_BIND/ST_TYPE); debug/elf has no
// writer, so the write side is from scratch.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Sniff reports whether data begins with the ELF magic number.
func Sniff(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte{0x7f, 'E', 'L', 'F'})
}

// Parse decodes a relocatable ELF object into the shared model. Non-
// relocatable inputs (executables, shared objects) are rejected with
// InvalidArguments per spec §4.3.
func Parse(data []byte) (*objfile.ObjectFile, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "failed to parse ELF object")
	}
	defer f.Close()

	if f.Type != elf.ET_REL {
		return nil, rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("ELF object kind %v is not relocatable", f.Type), "", "",
			"ObjectMutator only embeds into relocatable (ET_REL) objects")
	}

	// debug/elf does not expose e_flags; read it from the header directly
	// (offset 48 in ELFCLASS64, 36 in ELFCLASS32).
	flagsOff := 36
	if f.Class == elf.ELFCLASS64 {
		flagsOff = 48
	}
	var topLevelFlags uint32
	if len(data) >= flagsOff+4 {
		topLevelFlags = f.ByteOrder.Uint32(data[flagsOff : flagsOff+4])
	}

	obj := &objfile.ObjectFile{
		Format:        objfile.FormatELF,
		Kind:          objfile.KindRelocatable,
		Machine:       uint16(f.Machine),
		BigEndian:     f.ByteOrder == binary.BigEndian,
		TopLevelFlags: topLevelFlags,
	}

	sectionIdx := make(map[int]int) // input ELF section index -> output Sections index
	for i, sh := range f.Sections {
		if sh.Type == elf.SHT_NULL {
			continue
		}
		kind := objfile.SectionUnknown
		var content []byte
		switch {
		case sh.Type == elf.SHT_NOBITS:
			kind = objfile.SectionBSS
		case sh.Flags&elf.SHF_EXECINSTR != 0:
			kind = objfile.SectionCode
			content, err = sectionData(sh)
		case sh.Type == elf.SHT_PROGBITS:
			kind = objfile.SectionData
			content, err = sectionData(sh)
		default:
			// Symbol/relocation/string-table/group sections are not
			// retained as standalone output sections; they are
			// reconstructed from obj.Symbols/obj.Sections/obj.Comdats
			// directly.
			continue
		}
		if err != nil {
			return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading ELF section data")
		}

		sectionIdx[i] = len(obj.Sections)
		obj.Sections = append(obj.Sections, objfile.Section{
			Name:       sh.Name,
			Kind:       kind,
			Flags:      uint32(sh.Flags),
			Alignment:  sh.Addralign,
			Content:    content,
			Size:       sh.Size,
			InputIndex: i,
		})
	}

	symbols, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading ELF symbol table")
	}
	// rawToOutSym maps a symbol's raw symtab index (the null symbol at
	// STN_UNDEF occupies 0, so f.Symbols()[i] is raw index i+1) to its
	// position in obj.Symbols, which omits symbols referencing sections
	// this backend dropped. Relocations naming a dropped symbol are
	// themselves dropped below; there is nothing left for them to apply
	// against.
	rawToOutSym := make(map[int]int, len(symbols))
	for i, sym := range symbols {
		outIdx, ok := sectionIdx[int(sym.Section)]
		if !ok && sym.Section != elf.SHN_UNDEF && sym.Section != elf.SHN_ABS {
			continue // symbol referenced a dropped (metadata) section
		}
		secIdx := -1
		if ok {
			secIdx = outIdx
		}
		rawToOutSym[i+1] = len(obj.Symbols)
		obj.Symbols = append(obj.Symbols, objfile.Symbol{
			Name:       sym.Name,
			Value:      sym.Value,
			Size:       sym.Size,
			Kind:       symbolKind(sym.Info),
			Scope:      symbolScope(sym.Info),
			SectionIdx: secIdx,
			Flags: objfile.FormatFlags{
				ELFInfo:  sym.Info,
				ELFOther: sym.Other,
			},
		})
	}

	for i := range f.Sections {
		outIdx, ok := sectionIdx[i]
		if !ok {
			continue
		}
		rels, err := relocationsFor(f, i, rawToOutSym)
		if err != nil {
			return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading ELF relocations")
		}
		obj.Sections[outIdx].Relocations = rels
	}

	comdats, err := comdatsFor(f, sectionIdx, rawToOutSym)
	if err != nil {
		return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading ELF section groups")
	}
	obj.Comdats = comdats

	return obj, nil
}

func sectionData(sh *elf.Section) ([]byte, error) {
	return sh.Data()
}

func symbolKind(info uint8) objfile.SymbolKind {
	switch elf.ST_TYPE(info) {
	case elf.STT_FUNC:
		return objfile.SymbolFunction
	case elf.STT_OBJECT:
		return objfile.SymbolData
	case elf.STT_SECTION:
		return objfile.SymbolSection
	case elf.STT_FILE:
		return objfile.SymbolFile
	default:
		return objfile.SymbolUnknown
	}
}

func symbolScope(info uint8) objfile.SymbolScope {
	switch elf.ST_BIND(info) {
	case elf.STB_WEAK:
		return objfile.ScopeWeak
	case elf.STB_GLOBAL:
		return objfile.ScopeGlobal
	default:
		return objfile.ScopeLocal
	}
}

// relocationsFor returns the format-neutral relocations targeting the
// section at targetRawIdx (its index among f.Sections), decoded from
// whichever SHT_RELA/SHT_REL section names it via sh_info. debug/elf
// does not expose a generic, architecture-independent relocation
// decoder (callers are expected to pick elf.R_X86_64/elf.R_AARCH64/...
// by f.Machine to interpret Type), so this carries Offset/symbol/Type/
// Addend through unresolved; interpreting Type is left to whatever
// reads the reconstructed object.
func relocationsFor(f *elf.File, targetRawIdx int, rawToOutSym map[int]int) ([]objfile.Relocation, error) {
	for _, rs := range f.Sections {
		if rs.Type != elf.SHT_RELA && rs.Type != elf.SHT_REL {
			continue
		}
		if int(rs.Info) != targetRawIdx {
			continue
		}
		data, err := rs.Data()
		if err != nil {
			return nil, err
		}
		return decodeRelocations(data, rs.Type == elf.SHT_RELA, f.Class == elf.ELFCLASS64, f.ByteOrder, rawToOutSym), nil
	}
	return nil, nil
}

func decodeRelocations(data []byte, rela, is64 bool, order binary.ByteOrder, rawToOutSym map[int]int) []objfile.Relocation {
	entSize := 8
	switch {
	case is64 && rela:
		entSize = 24
	case is64 && !rela:
		entSize = 16
	case !is64 && rela:
		entSize = 12
	}

	var rels []objfile.Relocation
	for off := 0; off+entSize <= len(data); off += entSize {
		var relOffset uint64
		var rawSym int
		var typ uint32
		var addend int64
		if is64 {
			relOffset = order.Uint64(data[off : off+8])
			info := order.Uint64(data[off+8 : off+16])
			rawSym = int(elf.R_SYM64(info))
			typ = elf.R_TYPE64(info)
			if rela {
				addend = int64(order.Uint64(data[off+16 : off+24]))
			}
		} else {
			relOffset = uint64(order.Uint32(data[off : off+4]))
			info := order.Uint32(data[off+4 : off+8])
			rawSym = int(elf.R_SYM32(info))
			typ = elf.R_TYPE32(info)
			if rela {
				addend = int64(int32(order.Uint32(data[off+8 : off+12])))
			}
		}
		outSym, ok := rawToOutSym[rawSym]
		if !ok {
			continue // symbol was dropped along with a metadata section
		}
		rels = append(rels, objfile.Relocation{
			Offset:     relOffset,
			TargetKind: objfile.RelocationTargetSymbol,
			TargetIdx:  outSym,
			Type:       typ,
			Addend:     addend,
		})
	}
	return rels
}

// groupComdatFlag is ELF gABI's GRP_COMDAT section-group flag bit;
// debug/elf does not export a named constant for it.
const groupComdatFlag = 0x1

// comdatsFor decodes SHT_GROUP sections carrying the GRP_COMDAT flag
// into the shared model's Comdat list. Non-COMDAT groups (link-once
// sets without the dedup flag) are rare and not tracked.
func comdatsFor(f *elf.File, sectionIdx, rawToOutSym map[int]int) ([]objfile.Comdat, error) {
	var comdats []objfile.Comdat
	for _, sh := range f.Sections {
		if sh.Type != elf.SHT_GROUP {
			continue
		}
		data, err := sh.Data()
		if err != nil {
			return nil, err
		}
		if len(data) < 4 || f.ByteOrder.Uint32(data[:4])&groupComdatFlag == 0 {
			continue
		}
		repSym, ok := rawToOutSym[int(sh.Info)]
		if !ok {
			continue
		}
		var members []int
		for off := 4; off+4 <= len(data); off += 4 {
			rawMember := int(f.ByteOrder.Uint32(data[off : off+4]))
			if outIdx, ok := sectionIdx[rawMember]; ok {
				members = append(members, outIdx)
			}
		}
		if len(members) == 0 {
			continue
		}
		comdats = append(comdats, objfile.Comdat{
			Kind:              objfile.ComdatAny,
			RepresentativeSym: repSym,
			MemberSectionIdxs: members,
		})
	}
	return comdats, nil
}
