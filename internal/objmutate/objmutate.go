// Package objmutate implements ObjectMutator: parse a relocatable object,
// add a section carrying a bitcode file path, and write the result back
// out. The stage sequencing (validate input, dispatch per format, write)
// follows internal/pipeline.Run's validate -> dispatch -> write shape;
// the atomic write-temp-then-rename is the teacher's own
// os.WriteFile-plus-cleanup idiom generalized into an explicit
// temp-then-os.Rename step.
package objmutate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/h1994st/rllvm-go/internal/objfile"
	"github.com/h1994st/rllvm-go/internal/objfile/coff"
	"github.com/h1994st/rllvm-go/internal/objfile/elf"
	"github.com/h1994st/rllvm-go/internal/objfile/macho"
	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// sniffFormat identifies an object's binary format from its magic bytes.
func sniffFormat(data []byte) objfile.Format {
	switch {
	case elf.Sniff(data):
		return objfile.FormatELF
	case macho.Sniff(data):
		return objfile.FormatMachO
	case coff.Sniff(data):
		return objfile.FormatCOFF
	default:
		return objfile.FormatUnknown
	}
}

func parse(format objfile.Format, data []byte) (*objfile.ObjectFile, error) {
	switch format {
	case objfile.FormatELF:
		return elf.Parse(data)
	case objfile.FormatMachO:
		return macho.Parse(data)
	case objfile.FormatCOFF:
		return coff.Parse(data)
	default:
		return nil, rdiag.New(rdiag.StageUnsupportedFormat,
			fmt.Errorf("unrecognized object format"), "", "",
			"ObjectMutator only supports ELF, Mach-O, and COFF relocatable objects")
	}
}

func write(obj *objfile.ObjectFile, w *bytes.Buffer) error {
	switch obj.Format {
	case objfile.FormatELF:
		return elf.Write(obj, w)
	case objfile.FormatMachO:
		return macho.Write(obj, w)
	case objfile.FormatCOFF:
		return coff.Write(obj, w)
	default:
		return rdiag.New(rdiag.StageUnsupportedFormat,
			fmt.Errorf("unrecognized object format %v", obj.Format), "", "", "")
	}
}

// Embed implements the five-step algorithm of spec §4.3: parse the input,
// reject non-relocatable kinds, add a new section holding bitcodePath's
// absolute form, and write the result to outputObjectPath (or back over
// inputObjectPath, atomically, if outputObjectPath is empty).
func Embed(bitcodePath, inputObjectPath, outputObjectPath string) error {
	data, err := os.ReadFile(inputObjectPath)
	if err != nil {
		return rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("reading object %q", inputObjectPath))
	}

	format := sniffFormat(data)
	obj, err := parse(format, data)
	if err != nil {
		return err
	}
	if obj.Kind != objfile.KindRelocatable {
		return rdiag.New(rdiag.StageInvalidArguments,
			fmt.Errorf("object %q is not relocatable", inputObjectPath), "", "",
			"ObjectMutator only embeds into relocatable objects")
	}

	absBitcodePath := bitcodePath
	if !filepath.IsAbs(absBitcodePath) {
		cwd, err := os.Getwd()
		if err != nil {
			return rdiag.New(rdiag.StageIO, err, "", "", "resolving current working directory")
		}
		absBitcodePath = filepath.Join(cwd, bitcodePath)
	}

	placement := objfile.PlacementFor(obj.Format)
	obj.Sections = append(obj.Sections, objfile.Section{
		Name:       placement.Section,
		Segment:    placement.Segment,
		Kind:       objfile.SectionMetadata,
		Flags:      placement.Flags,
		Alignment:  1,
		Content:    []byte(absBitcodePath + "\n"),
		InputIndex: len(obj.Sections),
	})

	var buf bytes.Buffer
	if err := write(obj, &buf); err != nil {
		return err
	}

	target := outputObjectPath
	if target == "" {
		target = inputObjectPath
	}
	return atomicWrite(target, buf.Bytes())
}

// atomicWrite writes data to a temp file beside target and renames it into
// place, so a crash mid-write never leaves target truncated.
func atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".rllvm-obj-*")
	if err != nil {
		return rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("creating temp file in %q", dir))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return rdiag.New(rdiag.StageObjectWriteError, err, "", "", fmt.Sprintf("writing %q", tmpPath))
	}
	if err := tmp.Close(); err != nil {
		return rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("closing %q", tmpPath))
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return rdiag.New(rdiag.StageIO, err, "", "", fmt.Sprintf("renaming %q to %q", tmpPath, target))
	}
	return nil
}
