// Package pathderive derives the object-file and bitcode-file paths a
// single source file's compilation produces, and rewrites a derived
// bitcode path into the configured content-addressed bitcode store.
package pathderive

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Paths is the pair of filesystem paths a single translation unit's build
// step produces: the object file the native compiler writes, and the
// sibling bitcode file the bitcode-generation step writes next to it.
type Paths struct {
	ObjectFilepath  string
	BitcodeFilepath string
}

// Derive computes the object and bitcode filepaths for srcFilepath,
// following the same naming rule regardless of platform: the bitcode file
// is always a hidden dotfile sibling of the source (".{stem}.o.bc"), and
// the object file is either the normal "{name}.o" (when the invocation is
// compile-only and so must produce a file the user expects to see) or a
// hidden ".{stem}.o" sibling (when the object file is only an intermediate
// on the way to a link, and so should not clutter the build directory).
//
// When bitcodeStore is non-empty and exists as a directory, the bitcode
// path is rebased under it as "{stem}_{hex16(hash(src_abs))}.bc" instead of
// the hidden sibling form; the hash is stable across invocations for an
// identical source path, so repeated builds of the same file land on the
// same cache key.
//
// srcFilepath must be absolute: the hidden sibling naming only makes sense
// relative to a concrete parent directory, and WrapperDriver always
// resolves its inputs to absolute paths before calling Derive.
func Derive(srcFilepath string, isCompileOnly bool, bitcodeStore string) (Paths, error) {
	if !filepath.IsAbs(srcFilepath) {
		return Paths{}, rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("src filepath must be absolute: %q", srcFilepath), "", "",
			"derive object/bitcode paths only from an absolute source path")
	}

	dir := filepath.Dir(srcFilepath)
	name := filepath.Base(srcFilepath)
	stem := name[:len(name)-len(filepath.Ext(name))]

	var objectName string
	if isCompileOnly {
		objectName = name + ".o"
	} else {
		objectName = "." + stem + ".o"
	}

	bitcodeFilepath := filepath.Join(dir, "."+stem+".o.bc")
	if bitcodeStore != "" {
		if info, err := os.Stat(bitcodeStore); err == nil && info.IsDir() {
			storedName := fmt.Sprintf("%s_%016x.bc", stem, pathHash(srcFilepath))
			bitcodeFilepath = filepath.Join(bitcodeStore, storedName)
		}
	}

	return Paths{
		ObjectFilepath:  filepath.Join(dir, objectName),
		BitcodeFilepath: bitcodeFilepath,
	}, nil
}

// pathHash is the stable 64-bit hash Derive uses to rebase a bitcode path
// into the configured bitcode store; FNV-1a over the path's raw bytes.
func pathHash(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}
