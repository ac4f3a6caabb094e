// Package objread implements ObjectReader: given a built artifact (a
// single object, or a static archive of them), extract the bitcode
// file paths embedded by ObjectMutator. The try-single-then-archive
// dispatch follows the teacher's normalizeSingle extension/format-switch
// shape, degrading gracefully between recognized input shapes.
package objread

import (
	"bufio"
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/objfile/arfmt"
	"github.com/h1994st/rllvm-go/internal/objfile/coff"
	"github.com/h1994st/rllvm-go/internal/objfile/elf"
	"github.com/h1994st/rllvm-go/internal/objfile/macho"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Extract returns the bitcode file paths embedded in data: data starting
// with the ar magic is enumerated member by member, anything else is
// parsed as a single object. Paths are returned sorted and deduplicated.
func Extract(data []byte) ([]string, error) {
	var (
		paths []string
		err   error
	)
	if arfmt.Magic == string(prefix(data, len(arfmt.Magic))) {
		paths, err = extractArchive(data)
	} else {
		paths, err = extractSingle(data)
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return slices.Compact(paths), nil
}

func prefix(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}

func extractSingle(data []byte) ([]string, error) {
	var (
		obj *objfile.ObjectFile
		err error
	)
	switch {
	case elf.Sniff(data):
		obj, err = elf.Parse(data)
	case macho.Sniff(data):
		obj, err = macho.Parse(data)
	case coff.Sniff(data):
		obj, err = coff.Parse(data)
	default:
		return nil, rdiag.New(rdiag.StageUnsupportedFormat,
			fmt.Errorf("unrecognized object format"), "", "",
			"ObjectReader only supports ELF, Mach-O, COFF objects and ar archives")
	}
	if err != nil {
		return nil, err
	}
	return bitcodePathsFrom(obj), nil
}

func extractArchive(data []byte) ([]string, error) {
	archive, err := arfmt.Parse(data)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, m := range archive.Members {
		p, err := extractSingle(m.Content)
		if err != nil {
			if rdiag.IsStage(err, rdiag.StageUnsupportedFormat) {
				continue // archives may carry non-object members (e.g. symbol indexes already stripped)
			}
			return nil, err
		}
		paths = append(paths, p...)
	}
	return paths, nil
}

// bitcodePathsFrom collects every line of every BitcodePathSection the
// object carries; a single section may hold multiple newline-terminated
// paths after linker concatenation.
func bitcodePathsFrom(obj *objfile.ObjectFile) []string {
	placement := objfile.PlacementFor(obj.Format)
	var paths []string
	for _, s := range obj.Sections {
		if s.Name != placement.Section {
			continue
		}
		if obj.Format == objfile.FormatMachO && s.Segment != placement.Segment {
			continue
		}
		scanner := bufio.NewScanner(bytes.NewReader(s.Content))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				paths = append(paths, line)
			}
		}
	}
	return paths
}
