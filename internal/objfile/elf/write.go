package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Write serializes obj as a 64-bit relocatable ELF object. Mangling is
// disabled: section and symbol names are emitted exactly as recorded.
func Write(obj *objfile.ObjectFile, w io.Writer) error {
	order := binary.ByteOrder(binary.LittleEndian)
	if obj.BigEndian {
		order = binary.BigEndian
	}

	shstrtab := newStringTable()
	strtab := newStringTable()

	type outSection struct {
		name      uint32
		kind      uint32
		flags     uint64
		offset    uint64
		size      uint64
		addralign uint64
		link      uint32
		info      uint32
		entsize   uint64
		content   []byte
	}

	var sections []outSection
	sections = append(sections, outSection{}) // SHN_UNDEF placeholder

	for _, s := range obj.Sections {
		typ := uint32(elf.SHT_PROGBITS)
		if s.Kind == objfile.SectionBSS {
			typ = uint32(elf.SHT_NOBITS)
		}
		sections = append(sections, outSection{
			name:      shstrtab.add(s.Name),
			kind:      typ,
			flags:     uint64(s.Flags),
			size:      sectionSize(s),
			addralign: s.Alignment,
			content:   s.Content,
		})
	}

	for _, sym := range obj.Symbols {
		strtab.add(sym.Name)
	}

	shstrtabIdx := len(sections)
	sections = append(sections, outSection{name: shstrtab.add(".shstrtab"), kind: uint32(elf.SHT_STRTAB)})
	strtabIdx := len(sections)
	sections = append(sections, outSection{name: shstrtab.add(".strtab"), kind: uint32(elf.SHT_STRTAB)})
	symtabIdx := len(sections)
	sections = append(sections, outSection{name: shstrtab.add(".symtab"), kind: uint32(elf.SHT_SYMTAB), link: uint32(strtabIdx), entsize: 24})

	sections[strtabIdx].content = strtab.bytes()
	sections[strtabIdx].size = uint64(len(sections[strtabIdx].content))

	symtabContent, err := buildSymtab(obj, strtab, order)
	if err != nil {
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "building ELF symbol table")
	}
	sections[symtabIdx].content = symtabContent
	sections[symtabIdx].size = uint64(len(symtabContent))

	// One SHT_RELA per input section that carried relocations (spec
	// §1/§4.3: relocation tables must survive the embed).
	for i, s := range obj.Sections {
		if len(s.Relocations) == 0 {
			continue
		}
		content, err := buildRelaContent(obj, s.Relocations, order)
		if err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "building ELF relocation section")
		}
		sections = append(sections, outSection{
			name:    shstrtab.add(".rela" + s.Name),
			kind:    uint32(elf.SHT_RELA),
			link:    uint32(symtabIdx),
			info:    uint32(i + 1), // +1 for the SHN_UNDEF placeholder
			entsize: 24,
			content: content,
			size:    uint64(len(content)),
		})
	}

	// One SHT_GROUP per COMDAT group (spec §1/§4.3: COMDAT groups must
	// survive the embed).
	for _, c := range obj.Comdats {
		content, err := buildGroupContent(c, order)
		if err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "building ELF section group")
		}
		sections = append(sections, outSection{
			name:    shstrtab.add(".group"),
			kind:    uint32(elf.SHT_GROUP),
			link:    uint32(symtabIdx),
			info:    uint32(c.RepresentativeSym + 1),
			entsize: 4,
			content: content,
			size:    uint64(len(content)),
		})
	}

	// .shstrtab is filled in last, once every .rela/.group name is added.
	sections[shstrtabIdx].content = shstrtab.bytes()
	sections[shstrtabIdx].size = uint64(len(sections[shstrtabIdx].content))

	const ehsize = 64
	const shentsize = 64

	offset := uint64(ehsize)
	for i := range sections {
		if sections[i].kind == uint32(elf.SHT_NOBITS) {
			continue
		}
		sections[i].offset = offset
		offset += sections[i].size
	}
	shoff := offset

	var buf bytes.Buffer
	if err := writeHeader(&buf, obj, order, shoff, uint16(len(sections)), shstrtabIdx); err != nil {
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing ELF header")
	}
	for _, s := range sections {
		if s.kind == uint32(elf.SHT_NOBITS) {
			continue
		}
		buf.Write(s.content)
	}
	for _, s := range sections {
		if err := writeSectionHeader(&buf, order, s.name, s.kind, s.flags, s.offset, s.size, s.addralign, s.link, s.info, s.entsize); err != nil {
			return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing ELF section header")
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", "writing ELF object")
	}
	return nil
}

func sectionSize(s objfile.Section) uint64 {
	if s.Kind == objfile.SectionBSS {
		return s.Size
	}
	return uint64(len(s.Content))
}

func writeHeader(buf *bytes.Buffer, obj *objfile.ObjectFile, order binary.ByteOrder, shoff uint64, shnum uint16, shstrndx int) error {
	var ident [16]byte
	copy(ident[:4], []byte{0x7f, 'E', 'L', 'F'})
	ident[4] = 2 // ELFCLASS64
	if obj.BigEndian {
		ident[5] = 2
	} else {
		ident[5] = 1
	}
	ident[6] = 1 // EV_CURRENT
	buf.Write(ident[:])

	fields := []any{
		uint16(elf.ET_REL),
		obj.Machine,
		uint32(1), // EV_CURRENT
		uint64(0), // e_entry
		uint64(0), // e_phoff
		shoff,
		obj.TopLevelFlags,
		uint16(64), // e_ehsize
		uint16(0),  // e_phentsize
		uint16(0),  // e_phnum
		uint16(64), // e_shentsize
		shnum,
		uint16(shstrndx),
	}
	for _, f := range fields {
		if err := binary.Write(buf, order, f); err != nil {
			return err
		}
	}
	return nil
}

func writeSectionHeader(buf *bytes.Buffer, order binary.ByteOrder, name, kind uint32, flags, offset, size, addralign uint64, link, info uint32, entsize uint64) error {
	fields := []any{
		name,
		kind,
		flags,
		uint64(0), // sh_addr
		offset,
		size,
		link,
		info,
		addralign,
		entsize,
	}
	for _, f := range fields {
		if err := binary.Write(buf, order, f); err != nil {
			return err
		}
	}
	return nil
}

func buildSymtab(obj *objfile.ObjectFile, strtab *stringTable, order binary.ByteOrder) ([]byte, error) {
	var buf bytes.Buffer
	// Null symbol (index 0), per ELF convention.
	if err := writeSym(&buf, order, 0, 0, 0, 0, 0, 0); err != nil {
		return nil, err
	}
	for _, sym := range obj.Symbols {
		shndx := uint16(0)
		if sym.SectionIdx >= 0 {
			shndx = uint16(sym.SectionIdx + 1) // +1 for SHN_UNDEF placeholder
		}
		info := sym.Flags.ELFInfo
		if info == 0 {
			// No st_info carried over from a parsed input: derive it
			// from the format-neutral Kind and Scope.
			typ := map[objfile.SymbolKind]elf.SymType{
				objfile.SymbolFunction: elf.STT_FUNC,
				objfile.SymbolData:     elf.STT_OBJECT,
				objfile.SymbolSection:  elf.STT_SECTION,
				objfile.SymbolFile:     elf.STT_FILE,
			}[sym.Kind]
			bind := map[objfile.SymbolScope]elf.SymBind{
				objfile.ScopeGlobal: elf.STB_GLOBAL,
				objfile.ScopeWeak:   elf.STB_WEAK,
			}[sym.Scope]
			info = elf.ST_INFO(bind, typ)
		}
		if err := writeSym(&buf, order, strtab.add(sym.Name), info, sym.Flags.ELFOther, shndx, sym.Value, sym.Size); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeSym(buf *bytes.Buffer, order binary.ByteOrder, name uint32, info, other uint8, shndx uint16, value, size uint64) error {
	fields := []any{name, info, other, shndx, value, size}
	for _, f := range fields {
		if err := binary.Write(buf, order, f); err != nil {
			return fmt.Errorf("writing symtab entry: %w", err)
		}
	}
	return nil
}

// buildRelaContent re-encodes rels as a run of Elf64_Rela entries. The
// writer is 64-bit only (writeHeader always sets ELFCLASS64), so Rela64
// is the only layout emitted regardless of the original input's class.
func buildRelaContent(obj *objfile.ObjectFile, rels []objfile.Relocation, order binary.ByteOrder) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range rels {
		sym := relocationSymIndex(obj, r)
		info := (uint64(sym) << 32) | uint64(r.Type)
		fields := []any{r.Offset, info, uint64(r.Addend)}
		for _, f := range fields {
			if err := binary.Write(&buf, order, f); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// relocationSymIndex resolves a relocation's ELF symtab index (1-based,
// since the null symbol occupies raw index 0).
func relocationSymIndex(obj *objfile.ObjectFile, r objfile.Relocation) uint32 {
	if r.TargetKind == objfile.RelocationTargetSection {
		for i, sym := range obj.Symbols {
			if sym.Kind == objfile.SymbolSection && sym.SectionIdx == r.TargetIdx {
				return uint32(i + 1)
			}
		}
		return 0
	}
	return uint32(r.TargetIdx + 1)
}

func buildGroupContent(c objfile.Comdat, order binary.ByteOrder) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, order, uint32(groupComdatFlag)); err != nil {
		return nil, err
	}
	for _, idx := range c.MemberSectionIdxs {
		if err := binary.Write(&buf, order, uint32(idx+1)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// stringTable accumulates a null-terminated ELF string table, starting
// with the mandatory leading NUL.
type stringTable struct {
	data []byte
	seen map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{data: []byte{0}, seen: map[string]uint32{"": 0}}
}

func (t *stringTable) add(s string) uint32 {
	if off, ok := t.seen[s]; ok {
		return off
	}
	off := uint32(len(t.data))
	t.data = append(t.data, []byte(s)...)
	t.data = append(t.data, 0)
	t.seen[s] = off
	return off
}

func (t *stringTable) bytes() []byte { return t.data }
