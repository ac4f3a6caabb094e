// Package macho implements the Mach-O backend of ObjectMutator/
// ObjectReader. The shape of the in-memory model (segment+section+flags
// triad, a flat symbol table) follows blacktop-go-macho's File/FileTOC/
// Segment/Section/Symtab vocabulary; the actual parsing is done with
// stdlib debug/macho (go-macho itself has no writer and this repo needs
// both directions), and the write half is from scratch.
package macho

import (
	"bytes"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Sniff reports whether data begins with a (32- or 64-bit, either
// endianness) Mach-O magic number.
func Sniff(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	magic := binary.BigEndian.Uint32(data[:4])
	switch magic {
	case macho.Magic32, macho.Magic64, 0xcefaedfe, 0xcffaedfe:
		return true
	}
	return false
}

// Parse decodes a relocatable Mach-O object (MH_OBJECT) into the shared
// model.
func Parse(data []byte) (*objfile.ObjectFile, error) {
	f, err := macho.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "failed to parse Mach-O object")
	}
	defer f.Close()

	if f.Type != macho.TypeObj {
		return nil, rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("Mach-O file type %v is not MH_OBJECT", f.Type), "", "",
			"ObjectMutator only embeds into relocatable (MH_OBJECT) objects")
	}

	obj := &objfile.ObjectFile{
		Format:        objfile.FormatMachO,
		Kind:          objfile.KindRelocatable,
		Machine:       uint16(f.Cpu),
		BigEndian:     f.ByteOrder == binary.BigEndian,
		TopLevelFlags: f.Flags,
	}

	const sAttrSomeInstructions = 0x00000400 // S_ATTR_SOME_INSTRUCTIONS

	sectionIdx := make(map[int]int)
	for i, sh := range f.Sections {
		kind := objfile.SectionData
		var content []byte
		if sh.Flags&sAttrSomeInstructions != 0 || (sh.Name == "__text") {
			kind = objfile.SectionCode
		}
		if sh.Seg == "__DWARF" {
			continue // metadata, reconstructed elsewhere if at all
		}
		if sh.Size > 0 && sh.Offset != 0 {
			content, err = sh.Data()
			if err != nil {
				return nil, rdiag.New(rdiag.StageObjectReadError, err, "", "", "reading Mach-O section data")
			}
		} else {
			kind = objfile.SectionBSS
		}

		sectionIdx[i] = len(obj.Sections)
		obj.Sections = append(obj.Sections, objfile.Section{
			Name:       sh.Name,
			Segment:    sh.Seg,
			Kind:       kind,
			Flags:      sh.Flags,
			Alignment:  uint64(1) << sh.Align,
			Content:    content,
			Size:       sh.Size,
			InputIndex: i,
		})
	}

	if f.Symtab != nil {
		for _, sym := range f.Symtab.Syms {
			secIdx := -1
			if sym.Sect > 0 && int(sym.Sect)-1 < len(f.Sections) {
				if idx, ok := sectionIdx[int(sym.Sect)-1]; ok {
					secIdx = idx
				}
			}
			obj.Symbols = append(obj.Symbols, objfile.Symbol{
				Name:       sym.Name,
				Value:      sym.Value,
				Kind:       objfile.SymbolUnknown,
				Scope:      machoScope(sym.Type),
				SectionIdx: secIdx,
				Flags:      objfile.FormatFlags{MachODesc: sym.Desc},
			})
		}
	}

	// Relocations reference symbols by their raw position in
	// f.Symtab.Syms (Extern) or a 1-based section number (!Extern); the
	// loop above keeps every symbol in order with no filtering, so raw
	// index == obj.Symbols index directly.
	for i, sh := range f.Sections {
		outIdx, ok := sectionIdx[i]
		if !ok {
			continue
		}
		obj.Sections[outIdx].Relocations = relocationsFor(sh, sectionIdx)
	}

	return obj, nil
}

// relocationsFor converts debug/macho's already-decoded Reloc entries
// into the shared model. Scattered relocations (32-bit-only, and absent
// from MH_OBJECT x86_64/arm64 output) are not modeled and are dropped.
func relocationsFor(sh *macho.Section, sectionIdx map[int]int) []objfile.Relocation {
	var rels []objfile.Relocation
	for _, r := range sh.Relocs {
		if r.Scattered {
			continue
		}
		rel := objfile.Relocation{
			Offset:     uint64(r.Addr),
			Type:       uint32(r.Type),
			PCRelative: r.Pcrel,
			Length:     r.Len,
		}
		if r.Extern {
			rel.TargetKind = objfile.RelocationTargetSymbol
			rel.TargetIdx = int(r.Value)
		} else {
			outIdx, ok := sectionIdx[int(r.Value)-1]
			if !ok {
				continue
			}
			rel.TargetKind = objfile.RelocationTargetSection
			rel.TargetIdx = outIdx
		}
		rels = append(rels, rel)
	}
	return rels
}

func machoScope(typ uint8) objfile.SymbolScope {
	const nExt = 0x01
	if typ&nExt != 0 {
		return objfile.ScopeGlobal
	}
	return objfile.ScopeLocal
}

// Write serializes obj as a relocatable Mach-O object.
func Write(obj *objfile.ObjectFile, w io.Writer) error {
	order := binary.ByteOrder(binary.LittleEndian)
	if obj.BigEndian {
		order = binary.BigEndian
	}

	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameOffsets := make([]uint32, len(obj.Symbols))
	for i, sym := range obj.Symbols {
		nameOffsets[i] = uint32(strtab.Len())
		strtab.WriteString(sym.Name)
		strtab.WriteByte(0)
	}

	var segdata bytes.Buffer
	type secHdr struct {
		name, seg string
		addr      uint64
		size      uint64
		offset    uint32
		align     uint32
		flags     uint32
		reloff    uint32
		nreloc    uint32
	}
	var hdrs []secHdr
	for _, s := range obj.Sections {
		off := uint32(0)
		if s.Kind != objfile.SectionBSS {
			off = uint32(segdata.Len())
			segdata.Write(s.Content)
		}
		hdrs = append(hdrs, secHdr{
			name:   s.Name,
			seg:    s.Segment,
			size:   sizeOf(s),
			offset: off,
			align:  alignLog2(s.Alignment),
			flags:  s.Flags,
			nreloc: uint32(len(s.Relocations)),
		})
	}

	// One contiguous relocation blob covering every section's entries,
	// in section order; each header's reloff is patched once the blob's
	// file offset is known below.
	var relocBlob bytes.Buffer
	relocOffsets := make([]uint32, len(hdrs))
	for i, s := range obj.Sections {
		relocOffsets[i] = uint32(relocBlob.Len())
		if err := writeRelocs(&relocBlob, order, s.Relocations); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "building Mach-O relocation entries")
		}
	}

	var symtab bytes.Buffer
	for i, sym := range obj.Symbols {
		nType := uint8(0xe) // N_SECT
		if sym.Scope == objfile.ScopeGlobal || sym.Scope == objfile.ScopeWeak {
			nType |= 0x01
		}
		nSect := uint8(0)
		if sym.SectionIdx >= 0 {
			nSect = uint8(sym.SectionIdx + 1)
		}
		binary.Write(&symtab, order, nameOffsets[i])
		symtab.WriteByte(nType)
		symtab.WriteByte(nSect)
		binary.Write(&symtab, order, sym.Flags.MachODesc)
		binary.Write(&symtab, order, sym.Value)
	}

	const headerSize = 32
	const segCmdSize = 72
	const sectSize = 80
	const symtabCmdSize = 24

	segCmdLen := segCmdSize + len(hdrs)*sectSize
	sizeofcmds := segCmdLen + symtabCmdSize

	segFileOff := uint32(headerSize + sizeofcmds)
	relocBlobOff := segFileOff + uint32(segdata.Len())
	symoff := relocBlobOff + uint32(relocBlob.Len())
	stroff := symoff + uint32(symtab.Len())

	var buf bytes.Buffer
	headerFields := []any{
		uint32(macho.Magic64),
		// Machine holds the low 16 bits of cputype; the header is always
		// 64-bit, so CPU_ARCH_ABI64 is set again here.
		int32(obj.Machine) | 0x01000000,
		int32(0),
		uint32(macho.TypeObj),
		uint32(2), // ncmds: LC_SEGMENT_64 + LC_SYMTAB
		uint32(sizeofcmds),
		obj.TopLevelFlags,
		uint32(0), // reserved
	}
	for _, f := range headerFields {
		if err := binary.Write(&buf, order, f); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing Mach-O header")
		}
	}

	var segname [16]byte // empty segment name groups every section under ""
	segCmdFields := []any{
		uint32(0x19), // LC_SEGMENT_64
		uint32(segCmdLen),
		segname,
		uint64(0),             // vmaddr
		uint64(segdata.Len()), // vmsize
		uint64(segFileOff),
		uint64(segdata.Len()),
		int32(7), // maxprot: rwx
		int32(7), // initprot
		uint32(len(hdrs)),
		uint32(0), // flags
	}
	for _, f := range segCmdFields {
		if err := binary.Write(&buf, order, f); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing Mach-O segment command")
		}
	}
	for i, h := range hdrs {
		var name, seg [16]byte
		copy(name[:], h.name)
		copy(seg[:], h.seg)
		buf.Write(name[:])
		buf.Write(seg[:])
		reloff := uint32(0)
		if h.nreloc > 0 {
			reloff = relocBlobOff + relocOffsets[i]
		}
		secFields := []any{
			h.addr, h.size, h.offset + segFileOff, h.align,
			reloff, h.nreloc, h.flags, uint32(0), uint32(0), uint32(0),
		}
		for _, f := range secFields {
			if err := binary.Write(&buf, order, f); err != nil {
				return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing Mach-O section header")
			}
		}
	}

	symtabCmdFields := []any{
		uint32(0x2), // LC_SYMTAB
		uint32(symtabCmdSize),
		symoff,
		uint32(len(obj.Symbols)),
		stroff,
		uint32(strtab.Len()),
	}
	for _, f := range symtabCmdFields {
		if err := binary.Write(&buf, order, f); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing Mach-O symtab command")
		}
	}

	buf.Write(segdata.Bytes())
	buf.Write(relocBlob.Bytes())
	buf.Write(symtab.Bytes())
	buf.Write(strtab.Bytes())

	if _, err := w.Write(buf.Bytes()); err != nil {
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing Mach-O object")
	}
	return nil
}

// writeRelocs re-encodes rels as relocation_info entries: a signed
// r_address word followed by the r_symbolnum/r_pcrel/r_length/r_extern/
// r_type bitfield word.
func writeRelocs(buf *bytes.Buffer, order binary.ByteOrder, rels []objfile.Relocation) error {
	for _, r := range rels {
		extern := r.TargetKind == objfile.RelocationTargetSymbol
		value := uint32(r.TargetIdx)
		if !extern {
			value = uint32(r.TargetIdx + 1) // 1-based section number
		}

		info := value & 0xffffff
		if r.PCRelative {
			info |= 1 << 24
		}
		info |= uint32(r.Length&0x3) << 25
		if extern {
			info |= 1 << 27
		}
		info |= (r.Type & 0xf) << 28

		if err := binary.Write(buf, order, int32(r.Offset)); err != nil {
			return err
		}
		if err := binary.Write(buf, order, info); err != nil {
			return err
		}
	}
	return nil
}

func sizeOf(s objfile.Section) uint64 {
	if s.Kind == objfile.SectionBSS {
		return s.Size
	}
	return uint64(len(s.Content))
}

func alignLog2(align uint64) uint32 {
	if align == 0 {
		return 0
	}
	var log2 uint32
	for align > 1 {
		align >>= 1
		log2++
	}
	return log2
}
