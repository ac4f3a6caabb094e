// Package coff implements the COFF backend of ObjectMutator/ObjectReader,
// modeled on stdlib debug/pe's File/Section/COFFSymbol vocabulary (no
// third-party COFF library appears anywhere in the retrieval pack). The
// write half is from scratch: debug/pe has no writer.
package coff

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Sniff reports whether data looks like a bare (non-PE-wrapped) COFF
// object: it lacks the "MZ" DOS stub and starts with a recognized
// IMAGE_FILE_MACHINE_* value.
func Sniff(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	if data[0] == 'M' && data[1] == 'Z' {
		return false
	}
	machine := binary.LittleEndian.Uint16(data[:2])
	switch machine {
	case 0x14c, 0x8664, 0x1c0, 0xaa64:
		return true
	}
	return false
}

const classStatic = 3
const classExternal = 2

// Parse decodes a relocatable COFF object into the shared model. debug/pe
// parses bare object files (it does not require the PE-image DOS
// stub/optional header) through the same pe.NewFile entrypoint it uses
// for executables/DLLs. pe.NewFile always reads a 96-byte DOS header
// first, so inputs shorter than that are zero-padded before parsing.
func Parse(data []byte) (*objfile.ObjectFile, error) {
	if len(data) < 96 {
		padded := make([]byte, 96)
		copy(padded, data)
		data = padded
	}
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "failed to parse COFF object")
	}
	defer f.Close()

	if f.OptionalHeader != nil {
		return nil, rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("input carries a PE optional header; not a bare relocatable object"), "", "",
			"ObjectMutator only embeds into relocatable COFF objects (no PE image wrapper)")
	}

	obj := &objfile.ObjectFile{
		Format:        objfile.FormatCOFF,
		Kind:          objfile.KindRelocatable,
		Machine:       f.Machine,
		TopLevelFlags: uint32(f.Characteristics),
	}

	sectionIdx := make(map[int]int)
	for i, sh := range f.Sections {
		kind := objfile.SectionData
		var content []byte
		const imageScnCntCode = 0x00000020
		const imageScnCntUninitializedData = 0x00000080
		switch {
		case sh.Characteristics&imageScnCntUninitializedData != 0:
			kind = objfile.SectionBSS
		case sh.Characteristics&imageScnCntCode != 0:
			kind = objfile.SectionCode
			content, err = sh.Data()
		default:
			content, err = sh.Data()
		}
		if err != nil {
			return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading COFF section data")
		}

		sectionIdx[i] = len(obj.Sections)
		obj.Sections = append(obj.Sections, objfile.Section{
			Name:       sh.Name,
			Kind:       kind,
			Flags:      sh.Characteristics,
			Size:       uint64(sh.Size),
			Content:    content,
			InputIndex: i,
		})
	}

	// rawToOutSym maps a symbol's raw slot in f.COFFSymbols (which, unlike
	// f.Symbols(), still counts the aux records interleaved after each
	// section-definition symbol) to its position in obj.Symbols. Aux
	// records occupy a raw slot but are never targeted by a relocation or
	// emitted as their own objfile.Symbol; they are folded into the
	// section-definition symbol's Flags/Comdats instead.
	rawToOutSym := make(map[int]int, len(f.COFFSymbols))
	type comdatCandidate struct {
		symOutIdx int
		selection uint8
	}
	var comdatCandidates []comdatCandidate

	aux := 0
	for i, sym := range f.COFFSymbols {
		if aux > 0 {
			aux--
			continue
		}
		aux = int(sym.NumberOfAuxSymbols)

		name, err := sym.FullName(f.StringTable)
		if err != nil {
			name = string(bytes.TrimRight(sym.Name[:], "\x00"))
		}
		secIdx := -1
		if int(sym.SectionNumber) >= 1 {
			if idx, ok := sectionIdx[int(sym.SectionNumber)-1]; ok {
				secIdx = idx
			}
		}

		kind := objfile.SymbolUnknown
		flags := objfile.FormatFlags{COFFAssociativeIndex: -1}

		if sym.StorageClass == classStatic && sym.NumberOfAuxSymbols > 0 && secIdx >= 0 {
			kind = objfile.SymbolSection
			if def, err := f.COFFSymbolReadSectionDefAux(i); err == nil && def.Selection != 0 {
				flags.COFFSelection = def.Selection
				if def.Selection == pe.IMAGE_COMDAT_SELECT_ASSOCIATIVE && def.SecNum >= 1 {
					if idx, ok := sectionIdx[int(def.SecNum)-1]; ok {
						flags.COFFAssociativeIndex = idx
					}
				}
				comdatCandidates = append(comdatCandidates, comdatCandidate{
					symOutIdx: len(obj.Symbols),
					selection: def.Selection,
				})
			}
		}

		rawToOutSym[i] = len(obj.Symbols)
		obj.Symbols = append(obj.Symbols, objfile.Symbol{
			Name:       name,
			Value:      uint64(sym.Value),
			Kind:       kind,
			Scope:      coffScope(sym.StorageClass),
			SectionIdx: secIdx,
			Flags:      flags,
		})
	}

	for i, sh := range f.Sections {
		outIdx, ok := sectionIdx[i]
		if !ok {
			continue
		}
		obj.Sections[outIdx].Relocations = relocationsFor(sh, rawToOutSym)
	}

	var comdats []objfile.Comdat
	for _, c := range comdatCandidates {
		sym := obj.Symbols[c.symOutIdx]
		if sym.SectionIdx < 0 {
			continue
		}
		members := []int{sym.SectionIdx}
		if c.selection == pe.IMAGE_COMDAT_SELECT_ASSOCIATIVE && sym.Flags.COFFAssociativeIndex >= 0 {
			members = append(members, sym.Flags.COFFAssociativeIndex)
		}
		comdats = append(comdats, objfile.Comdat{
			Kind:              comdatKindFor(c.selection),
			RepresentativeSym: c.symOutIdx,
			MemberSectionIdxs: members,
		})
	}
	obj.Comdats = comdats

	return obj, nil
}

// relocationsFor converts debug/pe's pre-decoded relocation entries
// (VirtualAddress/SymbolTableIndex/Type) into the shared model, dropping
// any relocation that targeted an aux-record slot rather than a real
// symbol (this should not happen in a well-formed object).
func relocationsFor(sh *pe.Section, rawToOutSym map[int]int) []objfile.Relocation {
	var rels []objfile.Relocation
	for _, r := range sh.Relocs {
		outSym, ok := rawToOutSym[int(r.SymbolTableIndex)]
		if !ok {
			continue
		}
		rels = append(rels, objfile.Relocation{
			Offset:     uint64(r.VirtualAddress),
			TargetKind: objfile.RelocationTargetSymbol,
			TargetIdx:  outSym,
			Type:       uint32(r.Type),
		})
	}
	return rels
}

// comdatKindFor maps COFF's IMAGE_COMDAT_SELECT_* selection value onto the
// shared ComdatKind enum.
func comdatKindFor(selection uint8) objfile.ComdatKind {
	switch selection {
	case pe.IMAGE_COMDAT_SELECT_SAME_SIZE:
		return objfile.ComdatSameSize
	case pe.IMAGE_COMDAT_SELECT_EXACT_MATCH:
		return objfile.ComdatExactMatch
	case pe.IMAGE_COMDAT_SELECT_LARGEST:
		return objfile.ComdatLargest
	case pe.IMAGE_COMDAT_SELECT_NODUPLICATES:
		return objfile.ComdatNoDuplicates
	case pe.IMAGE_COMDAT_SELECT_ASSOCIATIVE:
		return objfile.ComdatAssociative
	default:
		return objfile.ComdatAny
	}
}

// comdatSelectionFor is comdatKindFor's inverse, used when re-emitting the
// section-definition aux record on write.
func comdatSelectionFor(kind objfile.ComdatKind) uint8 {
	switch kind {
	case objfile.ComdatSameSize:
		return pe.IMAGE_COMDAT_SELECT_SAME_SIZE
	case objfile.ComdatExactMatch:
		return pe.IMAGE_COMDAT_SELECT_EXACT_MATCH
	case objfile.ComdatLargest:
		return pe.IMAGE_COMDAT_SELECT_LARGEST
	case objfile.ComdatNoDuplicates:
		return pe.IMAGE_COMDAT_SELECT_NODUPLICATES
	case objfile.ComdatAssociative:
		return pe.IMAGE_COMDAT_SELECT_ASSOCIATIVE
	default:
		return pe.IMAGE_COMDAT_SELECT_ANY
	}
}

func coffScope(storageClass uint8) objfile.SymbolScope {
	if storageClass == classExternal {
		return objfile.ScopeGlobal
	}
	return objfile.ScopeLocal
}

// Write serializes obj as a bare relocatable COFF object (no DOS stub, no
// PE optional header).
func Write(obj *objfile.ObjectFile, w io.Writer) error {
	order := binary.LittleEndian

	var strtab bytes.Buffer
	binary.Write(&strtab, order, uint32(0)) // patched below
	nameOffsets := make([]uint32, len(obj.Symbols))
	for i, sym := range obj.Symbols {
		if len(sym.Name) <= 8 {
			continue
		}
		nameOffsets[i] = uint32(strtab.Len())
		strtab.WriteString(sym.Name)
		strtab.WriteByte(0)
	}
	strtabSize := uint32(strtab.Len())
	strtabBytes := strtab.Bytes()
	binary.LittleEndian.PutUint32(strtabBytes[0:4], strtabSize)

	// comdatFor maps a symbol's output index to the Comdat it represents,
	// so the symbol-table loop below knows which symbols need a trailing
	// format-5 aux record (spec §1/§4.3: COMDAT groups must survive the
	// embed).
	comdatFor := make(map[int]objfile.Comdat, len(obj.Comdats))
	for _, c := range obj.Comdats {
		comdatFor[c.RepresentativeSym] = c
	}

	// symRawIndex maps a symbol's obj.Symbols index to its actual slot in
	// the written symbol table, which runs ahead of the plain index by one
	// for every preceding COMDAT symbol's trailing aux record.
	symRawIndex := make([]uint32, len(obj.Symbols))
	raw := uint32(0)
	for i := range obj.Symbols {
		symRawIndex[i] = raw
		raw++
		if _, ok := comdatFor[i]; ok {
			raw++
		}
	}

	var sectionData bytes.Buffer
	type secHdr struct {
		name            [8]byte
		size            uint32
		offset          uint32
		characteristics uint32
		reloff          uint32
		nreloc          uint16
	}
	const coffHeaderSize = 20
	const sectionHeaderSize = 40
	dataStart := uint32(coffHeaderSize + len(obj.Sections)*sectionHeaderSize)

	var hdrs []secHdr
	for _, s := range obj.Sections {
		var h secHdr
		copy(h.name[:], s.Name)
		h.characteristics = s.Flags
		h.nreloc = uint16(len(s.Relocations))
		if s.Kind != objfile.SectionBSS {
			h.offset = dataStart + uint32(sectionData.Len())
			h.size = uint32(len(s.Content))
			sectionData.Write(s.Content)
		} else {
			h.size = uint32(s.Size)
		}
		hdrs = append(hdrs, h)
	}

	// Relocations for all sections are packed into one blob following the
	// raw section data, IMAGE_RELOCATION entries (10 bytes each).
	var relocBlob bytes.Buffer
	relocBlobOff := dataStart + uint32(sectionData.Len())
	for i, s := range obj.Sections {
		if len(s.Relocations) == 0 {
			continue
		}
		hdrs[i].reloff = relocBlobOff + uint32(relocBlob.Len())
		if err := writeRelocs(&relocBlob, order, s.Relocations, symRawIndex); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF relocation entries")
		}
	}

	symtabOffset := relocBlobOff + uint32(relocBlob.Len())

	// NumberOfSymbols counts every raw slot, including the one aux record
	// each COMDAT-bearing symbol carries.
	numSymbolSlots := len(obj.Symbols) + len(comdatFor)

	var buf bytes.Buffer
	headerFields := []any{
		obj.Machine,
		uint16(len(obj.Sections)),
		uint32(0), // TimeDateStamp
		symtabOffset,
		uint32(numSymbolSlots),
		uint16(0), // SizeOfOptionalHeader
		uint16(obj.TopLevelFlags),
	}
	for _, f := range headerFields {
		if err := binary.Write(&buf, order, f); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF file header")
		}
	}

	for _, h := range hdrs {
		buf.Write(h.name[:])
		fields := []any{
			uint32(0), uint32(0), h.size, h.offset,
			h.reloff, uint32(0), h.nreloc, uint16(0), h.characteristics,
		}
		for _, f := range fields {
			if err := binary.Write(&buf, order, f); err != nil {
				return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF section header")
			}
		}
	}
	buf.Write(sectionData.Bytes())
	buf.Write(relocBlob.Bytes())

	for i, sym := range obj.Symbols {
		var name [8]byte
		if len(sym.Name) <= 8 {
			copy(name[:], sym.Name)
		} else {
			binary.LittleEndian.PutUint32(name[4:8], nameOffsets[i])
		}
		buf.Write(name[:])
		secNum := int16(0)
		if sym.SectionIdx >= 0 {
			secNum = int16(sym.SectionIdx + 1)
		}
		storageClass := uint8(3) // IMAGE_SYM_CLASS_STATIC
		if sym.Scope == objfile.ScopeGlobal {
			storageClass = 2 // IMAGE_SYM_CLASS_EXTERNAL
		}
		comdat, isComdat := comdatFor[i]
		numAux := uint8(0)
		if isComdat {
			numAux = 1
		}
		symFields := []any{uint32(sym.Value), secNum, uint16(0), storageClass, numAux}
		for _, f := range symFields {
			if err := binary.Write(&buf, order, f); err != nil {
				return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF symbol table entry")
			}
		}
		if isComdat {
			if err := writeSectionDefAux(&buf, order, obj, sym, comdat); err != nil {
				return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF auxiliary symbol record")
			}
		}
	}
	buf.Write(strtabBytes)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing COFF object")
	}
	return nil
}

// writeRelocs re-encodes rels as a run of IMAGE_RELOCATION entries.
// symRawIndex translates a relocation's TargetIdx (an obj.Symbols index)
// into the symbol's actual slot in the written symbol table.
func writeRelocs(buf *bytes.Buffer, order binary.ByteOrder, rels []objfile.Relocation, symRawIndex []uint32) error {
	for _, r := range rels {
		fields := []any{uint32(r.Offset), symRawIndex[r.TargetIdx], uint16(r.Type)}
		for _, f := range fields {
			if err := binary.Write(buf, order, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeSectionDefAux re-emits the IMAGE_AUX_SYMBOL_SECTION (format 5)
// record that follows a COMDAT section-definition symbol, mirroring
// debug/pe.COFFSymbolAuxFormat5's layout.
func writeSectionDefAux(buf *bytes.Buffer, order binary.ByteOrder, obj *objfile.ObjectFile, sym objfile.Symbol, c objfile.Comdat) error {
	size := uint32(0)
	if sym.SectionIdx >= 0 && sym.SectionIdx < len(obj.Sections) {
		s := obj.Sections[sym.SectionIdx]
		size = uint32(len(s.Content))
		if s.Kind == objfile.SectionBSS {
			size = uint32(s.Size)
		}
	}
	numRelocs := uint16(0)
	if sym.SectionIdx >= 0 && sym.SectionIdx < len(obj.Sections) {
		numRelocs = uint16(len(obj.Sections[sym.SectionIdx].Relocations))
	}
	secNum := uint16(0)
	if c.Kind == objfile.ComdatAssociative {
		for _, m := range c.MemberSectionIdxs {
			if m != sym.SectionIdx {
				secNum = uint16(m + 1)
				break
			}
		}
	}
	fields := []any{
		size,
		numRelocs,
		uint16(0), // NumberOfLinenumbers
		uint32(0), // Checksum
		secNum,
		comdatSelectionFor(c.Kind),
		[3]uint8{}, // padding
	}
	for _, f := range fields {
		if err := binary.Write(buf, order, f); err != nil {
			return err
		}
	}
	return nil
}
