// Package objfile holds the format-neutral object-file model that the
// ELF, Mach-O, and COFF backends parse into and write back out of, and
// the platform-specific placement of the embedded bitcode-path section.
package objfile

// Format identifies which concrete binary container an ObjectFile was
// parsed from or should be written as.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
	FormatCOFF
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	case FormatCOFF:
		return "coff"
	default:
		return "unknown"
	}
}

// Kind is the coarse object kind ObjectMutator cares about: only
// KindRelocatable objects may be mutated.
type Kind int

const (
	KindUnknown Kind = iota
	KindRelocatable
	KindExecutable
	KindSharedObject
)

// SectionKind classifies a section's content for the purposes of
// reconstruction: whether bytes are copied verbatim, BSS-allocated, or
// dropped as debug metadata the writer itself reconstructs.
type SectionKind int

const (
	SectionUnknown SectionKind = iota
	SectionCode
	SectionData
	SectionBSS
	SectionMetadata
)

// Section is a format-neutral object section.
type Section struct {
	Name        string
	Segment     string // Mach-O only; empty elsewhere
	Kind        SectionKind
	Flags       uint32
	Alignment   uint64
	Content     []byte // nil for BSS
	Size        uint64 // for BSS sections, Content is nil and Size carries the length
	Relocations []Relocation

	// inputIndex is the section's position in the parsed input, used by
	// ObjectMutator to build its input-index -> output-id map.
	InputIndex int
}

// RelocationTargetKind distinguishes a relocation that points at a symbol
// from one that points directly at a section (using the section's
// canonical symbol).
type RelocationTargetKind int

const (
	RelocationTargetSymbol RelocationTargetKind = iota
	RelocationTargetSection
)

// Relocation is a format-neutral relocation entry. PCRelative and Length
// are Mach-O's relocation_info bitfields (ELF and COFF fold this
// information into Type instead and leave both zero).
type Relocation struct {
	Offset     uint64
	TargetKind RelocationTargetKind
	TargetIdx  int // index into Symbols or Sections, by TargetKind
	Type       uint32
	Addend     int64
	PCRelative bool
	Length     uint8 // log2 operand width: 0=byte, 1=word, 2=long, 3=quad
}

// SymbolKind classifies what a symbol refers to.
type SymbolKind int

const (
	SymbolUnknown SymbolKind = iota
	SymbolFunction
	SymbolData
	SymbolSection
	SymbolFile
)

// SymbolScope is the symbol's binding/visibility.
type SymbolScope int

const (
	ScopeLocal SymbolScope = iota
	ScopeGlobal
	ScopeWeak
)

// FormatFlags carries the format-specific bits ObjectMutator preserves
// verbatim across reconstruction (spec §4.3 step 2). Exactly one of the
// fields is meaningful for a given object's Format.
type FormatFlags struct {
	// ELF
	ELFInfo  uint8 // st_info
	ELFOther uint8 // st_other

	// Mach-O
	MachODesc uint16 // n_desc

	// COFF
	COFFSelection        uint8
	COFFAssociativeIndex int // remapped via the section map; -1 if none
}

// Symbol is a format-neutral object symbol.
type Symbol struct {
	Name       string
	Value      uint64
	Size       uint64
	Kind       SymbolKind
	Scope      SymbolScope
	Weak       bool
	SectionIdx int // index into Sections; -1 if undefined/absolute
	Flags      FormatFlags
}

// ComdatKind is the COMDAT selection strategy.
type ComdatKind int

const (
	ComdatAny ComdatKind = iota
	ComdatSameSize
	ComdatExactMatch
	ComdatLargest
	ComdatNoDuplicates
	ComdatAssociative
)

// Comdat is a format-neutral COMDAT group.
type Comdat struct {
	Kind               ComdatKind
	RepresentativeSym  int // index into Symbols
	MemberSectionIdxs  []int
}

// ObjectFile is the fully-decoded, in-memory representation of a
// relocatable object that ObjectMutator reconstructs and writes.
type ObjectFile struct {
	Format    Format
	Kind      Kind
	Machine   uint16
	BigEndian bool

	Sections []Section
	Symbols  []Symbol
	Comdats  []Comdat

	// TopLevelFlags is the format's own top-level container flags (ELF
	// e_flags, Mach-O header flags, COFF Characteristics), preserved
	// verbatim.
	TopLevelFlags uint32
}

// BitcodePlacement is the platform-specific (segment, section, flags)
// triad for the embedded bitcode-path section, per spec §3's table.
type BitcodePlacement struct {
	Segment string
	Section string
	Flags   uint32
}

// PlacementFor returns the BitcodePlacement for the given format.
func PlacementFor(f Format) BitcodePlacement {
	switch f {
	case FormatELF:
		return BitcodePlacement{Segment: "", Section: ".llvm_bc", Flags: 0}
	case FormatMachO:
		return BitcodePlacement{Segment: "__RLLVM", Section: "__llvm_bc", Flags: 0}
	case FormatCOFF:
		return BitcodePlacement{Segment: "", Section: ".llvm_bc", Flags: 0}
	default:
		return BitcodePlacement{}
	}
}
