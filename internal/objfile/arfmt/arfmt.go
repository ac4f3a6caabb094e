// Package arfmt parses the common Unix `ar` archive layout used by static
// libraries (`.a` files): a fixed "!<arch>\n" magic followed by a sequence
// of 60-byte member headers, each followed by the member's (even-padded)
// content. ObjectReader uses this to enumerate the member objects of a
// `.a` input without shelling out to `ar`/`llvm-ar`.
package arfmt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/h1994st/rllvm-go/internal/rdiag"
)

// Magic is the fixed 8-byte signature every `ar` archive starts with.
const Magic = "!<arch>\n"

const headerSize = 60

// Member is a single archive member: its name and raw content.
type Member struct {
	Name    string
	Content []byte
}

// Archive is a parsed `ar` archive: an ordered list of members. The GNU
// extended-name table ("//") and the symbol-index members ("/" and
// "/SYM64/") are consumed while parsing and never appear in Members. BSD
// "#1/<len>" long names are not decoded.
type Archive struct {
	Members []Member
}

// Parse decodes data as a Unix ar archive.
func Parse(data []byte) (*Archive, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return nil, rdiag.New(rdiag.StageObjectReadError,
			fmt.Errorf("missing ar magic"), "", "", "input is not a Unix ar archive")
	}

	var (
		archive   Archive
		extended  string // GNU extended name table ("//" member content)
		off       = len(Magic)
	)

	for off < len(data) {
		if off+headerSize > len(data) {
			return nil, rdiag.New(rdiag.StageObjectReadError,
				fmt.Errorf("truncated ar member header at offset %d", off), "", "", "")
		}
		hdr := data[off : off+headerSize]
		off += headerSize

		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeField := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeField, 10, 64)
		if err != nil {
			return nil, rdiag.New(rdiag.StageObjectReadError,
				fmt.Errorf("invalid ar member size %q: %w", sizeField, err), "", "", "")
		}
		if off+int(size) > len(data) {
			return nil, rdiag.New(rdiag.StageObjectReadError,
				fmt.Errorf("ar member %q overruns archive (size %d at offset %d)", name, size, off), "", "", "")
		}
		content := data[off : off+int(size)]
		off += int(size)
		if size%2 == 1 && off < len(data) {
			off++ // members are 2-byte aligned
		}

		switch {
		case name == "//":
			extended = string(content)
			continue
		case name == "/" || name == "/SYM64/":
			continue // symbol-table index member, not a real object
		case strings.HasPrefix(name, "/"):
			// GNU extended name: "/<offset>" into the "//" table.
			idx, err := strconv.Atoi(strings.TrimPrefix(name, "/"))
			if err != nil || idx < 0 || idx >= len(extended) {
				return nil, rdiag.New(rdiag.StageObjectReadError,
					fmt.Errorf("invalid extended ar member name %q", name), "", "", "")
			}
			name = extendedName(extended, idx)
		default:
			name = strings.TrimSuffix(name, "/") // BSD/GNU short-name terminator
		}

		archive.Members = append(archive.Members, Member{Name: name, Content: content})
	}

	return &archive, nil
}

// extendedName reads a name out of the GNU extended name table starting at
// idx: names are terminated by "/\n".
func extendedName(table string, idx int) string {
	end := strings.Index(table[idx:], "/\n")
	if end < 0 {
		end = strings.IndexByte(table[idx:], '\n')
		if end < 0 {
			return strings.TrimRight(table[idx:], "\x00")
		}
	}
	return table[idx : idx+end]
}
