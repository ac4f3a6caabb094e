package argclass

import (
	"encoding/binary"
	"os"
)

// looksLikeObjectFile is the fallback heuristic Classify applies to a token
// that matched neither the exact-match table nor a pattern: does it look
// like a relocatable object file on disk? A plain (non-directory) file is
// sniffed by magic number for the ELF, Mach-O, and PE/COFF relocatable
// forms; Mach-O (and fat) files are accepted on their magic alone,
// whatever their file type. Anything else, including a path that does not
// exist, falls back to being treated as an opaque compiler flag by the
// caller.
func looksLikeObjectFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [4]byte
	if _, err := f.Read(magic[:]); err != nil {
		return false
	}

	switch {
	case magic == [4]byte{0x7f, 'E', 'L', 'F'}:
		return isRelocatableELF(f)
	case isMachOMagic(magic):
		return true
	default:
		return isRelocatableCOFF(magic)
	}
}

func isMachOMagic(magic [4]byte) bool {
	be := binary.BigEndian.Uint32(magic[:])
	le := binary.LittleEndian.Uint32(magic[:])
	switch be {
	case 0xfeedface, 0xfeedfacf, 0xcafebabe, 0xcafebabf:
		return true
	}
	switch le {
	case 0xfeedface, 0xfeedfacf:
		return true
	}
	return false
}

// isRelocatableELF reads the ELF e_type field (ET_REL == 1) to distinguish
// a relocatable object from an executable or shared object sharing the
// same magic bytes.
func isRelocatableELF(f *os.File) bool {
	var ident [16]byte
	if _, err := f.ReadAt(ident[:], 0); err != nil {
		return false
	}
	is64 := ident[4] == 2
	littleEndian := ident[5] == 1

	var typeOff int64 = 16
	buf := make([]byte, 2)
	if _, err := f.ReadAt(buf, typeOff); err != nil {
		return false
	}
	var etype uint16
	if littleEndian {
		etype = binary.LittleEndian.Uint16(buf)
	} else {
		etype = binary.BigEndian.Uint16(buf)
	}
	_ = is64
	return etype == 1 // ET_REL
}

// isRelocatableCOFF checks for a bare COFF object's machine-type field: a
// plain relocatable .o produced by an MS-compatible toolchain has no "MZ"
// DOS stub and instead starts directly with a recognized IMAGE_FILE_MACHINE_*
// value.
func isRelocatableCOFF(magic [4]byte) bool {
	if magic[0] == 'M' && magic[1] == 'Z' {
		return false // PE image (exe/dll), not a bare object
	}
	machine := binary.LittleEndian.Uint16(magic[0:2])
	switch machine {
	case 0x14c, 0x8664, 0x1c0, 0xaa64: // i386, amd64, arm, arm64
		return true
	}
	return false
}
