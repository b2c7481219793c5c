package elf

import (
	"encoding/binary"
)

// selectSymbolSource locates the best available {symbol table, string
// table} pair among the section headers.
//
// Primary rule: the first static symbol table, paired with the first plain
// string table whose index is not the section name table index.  The
// pairing deliberately ignores the symbol table's sh_link; a file with
// multiple plain string tables resolves symbol names against the first one
// encountered.
//
// Fallback rule, applied only when no static symbol table exists: the
// first dynamic symbol table, paired with the string table its sh_link
// names.
func selectSymbolSource(
	headers []SectionHeaderEntry,
	sectionNames SectionIndex,
) (
	SectionHeaderEntry,
	SectionHeaderEntry,
	bool,
) {
	symtab := SectionHeaderEntry{}
	strtab := SectionHeaderEntry{}
	symFound := false
	strFound := false

	for idx, header := range headers {
		switch header.SectionType {
		case SectionTypeSymbolTable:
			if !symFound {
				symtab = header
				symFound = true
			}
		case SectionTypeStringTable:
			if !strFound && SectionIndex(idx) != sectionNames {
				strtab = header
				strFound = true
			}
		}
	}

	if symFound {
		return symtab, strtab, strFound
	}

	for _, header := range headers {
		if header.SectionType == SectionTypeDynamicSymbolTable {
			symtab = header
			symFound = true
			break
		}
	}

	if !symFound {
		return SectionHeaderEntry{}, SectionHeaderEntry{}, false
	}

	if symtab.Link < uint32(len(headers)) &&
		headers[symtab.Link].SectionType == SectionTypeStringTable {

		return symtab, headers[symtab.Link], true
	}

	return SectionHeaderEntry{}, SectionHeaderEntry{}, false
}

// parseSymbols extracts the symbol collection from the selected symbol
// table.  Nothing here is fatal: no selectable table, a nonsense entry
// size, or an out of bound table all degrade to an empty symbol list while
// the file remains otherwise valid.
func (p *parser) parseSymbols() {
	symtab, strtab, ok := selectSymbolSource(
		p.SectionHeaders,
		p.SectionStringTableIndex)
	if !ok {
		return
	}

	if symtab.EntrySize == 0 {
		return
	}

	content, err := p.sectionBytes(symtab)
	if err != nil {
		return
	}

	names, err := p.sectionBytes(strtab)
	if err != nil {
		return
	}

	numEntries := symtab.Size / symtab.EntrySize

	symbols := make([]Symbol, 0, numEntries)
	for i := uint64(0); i < numEntries; i++ {
		start := i * symtab.EntrySize
		if start+Elf64SymbolEntrySize > uint64(len(content)) {
			break
		}

		entry := SymbolEntry{}
		n, err := binary.Decode(content[start:], p.ByteOrder, &entry)
		if err != nil {
			break
		}
		if n != Elf64SymbolEntrySize {
			panic("should never happen")
		}

		symbols = append(symbols, newSymbol(entry, StringTable(names)))
	}

	p.symbols = symbols
}
