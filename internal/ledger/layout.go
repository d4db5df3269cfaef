package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Account data layout. The item count is a little-endian u32 at
// LineCountOffset; lines follow it back to back, LineSize bytes each. Inside a
// line the name and URI are u32-length-prefixed fields of fixed width.
const (
	LineCountOffset = 247
	LinesOffset     = LineCountOffset + 4
	LineSize        = 240

	nameLenOffset = 0
	nameOffset    = 4
	NameSize      = 32
	uriLenOffset  = nameOffset + NameSize
	uriOffset     = uriLenOffset + 4
	URISize       = LineSize - uriOffset
)

// AccountSize is the account length needed for maxItems lines.
func AccountSize(maxItems int) int {
	return LinesOffset + LineSize*maxItems
}

func lineStart(slot int) int {
	return LinesOffset + LineSize*slot
}

// LineCount reads the item count field.
func LineCount(raw []byte) (int, error) {
	if len(raw) < LinesOffset {
		return 0, fmt.Errorf("account data too short for line count: %d bytes", len(raw))
	}
	return int(binary.LittleEndian.Uint32(raw[LineCountOffset:LinesOffset])), nil
}

// SetLineCount writes the item count field.
func SetLineCount(raw []byte, n int) error {
	if len(raw) < LinesOffset {
		return fmt.Errorf("account data too short for line count: %d bytes", len(raw))
	}
	binary.LittleEndian.PutUint32(raw[LineCountOffset:LinesOffset], uint32(n)) // #nosec G115 -- n is bounded by the account size
	return nil
}

// DecodeLine extracts the line at slot. Trailing NUL padding is removed.
func DecodeLine(raw []byte, slot int) (Line, error) {
	if slot < 0 {
		return Line{}, fmt.Errorf("negative slot %d", slot)
	}
	start := lineStart(slot)
	if len(raw) < start+LineSize {
		return Line{}, fmt.Errorf("slot %d is beyond account data (%d bytes)", slot, len(raw))
	}
	line := raw[start : start+LineSize]
	return Line{
		Name: string(bytes.TrimRight(line[nameOffset:nameOffset+NameSize], "\x00")),
		URI:  string(bytes.TrimRight(line[uriOffset:uriOffset+URISize], "\x00")),
	}, nil
}

// EncodeLine writes l into slot, padding fields with NULs.
func EncodeLine(raw []byte, slot int, l Line) error {
	if slot < 0 {
		return fmt.Errorf("negative slot %d", slot)
	}
	if err := checkLine(l); err != nil {
		return err
	}
	start := lineStart(slot)
	if len(raw) < start+LineSize {
		return fmt.Errorf("slot %d is beyond account data (%d bytes)", slot, len(raw))
	}
	line := raw[start : start+LineSize]
	clear(line)
	binary.LittleEndian.PutUint32(line[nameLenOffset:nameOffset], uint32(len(l.Name))) // #nosec G115 -- bounded by NameSize
	copy(line[nameOffset:], l.Name)
	binary.LittleEndian.PutUint32(line[uriLenOffset:uriOffset], uint32(len(l.URI))) // #nosec G115 -- bounded by URISize
	copy(line[uriOffset:], l.URI)
	return nil
}

func checkLine(l Line) error {
	if len(l.Name) > NameSize {
		return fmt.Errorf("name %q is %d bytes, limit is %d", l.Name, len(l.Name), NameSize)
	}
	if len(l.URI) > URISize {
		return fmt.Errorf("uri %q is %d bytes, limit is %d", l.URI, len(l.URI), URISize)
	}
	return nil
}
