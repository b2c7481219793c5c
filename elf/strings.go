package elf

import (
	"bytes"
)

// StringTable is the raw content of a string table section: a blob of
// null-terminated strings referenced by byte offset.
type StringTable []byte

// Get returns the null-terminated string starting at offset.  Out of bound
// offsets, empty tables, and unterminated tails all resolve to the empty
// string.  Get never reads past the end of the table.
func (table StringTable) Get(offset uint32) string {
	if offset >= uint32(len(table)) {
		return ""
	}

	chunk := table[offset:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}
