package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Resources:
// https://refspecs.linuxfoundation.org/

// File is an immutable, queryable view of a parsed elf64 image.  All
// decoding happens eagerly in a single parse pass; the lookup structures
// are built once on first query and cached for the file's lifetime.
//
// Every query on an invalid file reports not-found / empty unless validity
// reporting was explicitly overridden via ForceValid.
type File struct {
	Path string

	FileHeader
	SectionHeaders []SectionHeaderEntry
	ProgramHeaders []ProgramHeaderEntry

	sections []Section
	symbols  []Symbol

	diagnostics diagnostics

	indexOnce sync.Once
	index     *lookupIndex
}

type parser struct {
	content []byte

	// NOTE: elf64 fields are decoded assuming the file matches the host's
	// little-endian 64-bit layout.  Foreign-endian files are not byte
	// swapped.
	binary.ByteOrder

	stage ParseStage

	*File
}

// Parse reads the full byte stream eagerly, then decodes it.
func Parse(reader io.Reader) (*File, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrFileUnreadable, err)
		return failedFile("", err), err
	}

	return ParseBytes(content)
}

func ParseBytes(content []byte) (*File, error) {
	return parseBytes("", content)
}

func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrFileUnreadable, err)
		return failedFile(path, err), err
	}

	return parseBytes(path, content)
}

// failedFile returns a non-nil invalid file so diagnostics remain
// inspectable even when no byte was ever decoded.
func failedFile(path string, err error) *File {
	file := &File{Path: path}
	file.diagnostics = diagnostics{
		stage:     StageHeader,
		lastError: err.Error(),
	}
	return file
}

func parseBytes(path string, content []byte) (*File, error) {
	file := &File{Path: path}
	p := parser{
		content:   content,
		ByteOrder: binary.LittleEndian,
		File:      file,
	}

	err := p.parse()
	file.diagnostics = diagnostics{
		valid:     err == nil,
		stage:     p.stage,
		lastError: "",
	}
	if err != nil {
		file.diagnostics.lastError = err.Error()
		return file, err
	}

	return file, nil
}

func (p *parser) parse() error {
	p.stage = StageHeader
	err := p.parseHeader()
	if err != nil {
		return err
	}

	p.stage = StageSectionHeaders
	err = p.parseSectionHeaders()
	if err != nil {
		return err
	}

	// A missing or unmatched symbol table is not fatal; the file degrades
	// to an empty symbol list.
	p.stage = StageSymbols
	p.parseSymbols()

	p.stage = StageProgramHeaders
	return p.parseProgramHeaders()
}

func (p *parser) parseHeader() error {
	if len(p.content) < ElfIdentifierSize {
		return fmt.Errorf(
			"%w: %d of %d identifier bytes",
			ErrTruncatedHeader,
			len(p.content),
			ElfIdentifierSize)
	}

	id := Identifier{}
	n, err := binary.Decode(p.content, p.ByteOrder, &id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTruncatedHeader, err)
	}
	if n != ElfIdentifierSize {
		panic("should never happen")
	}

	if !bytes.Equal(id.Magic[:], IdentifierMagic) {
		return fmt.Errorf("%w: % x", ErrBadMagic, id.Magic)
	}

	if id.Class != Class64 {
		return fmt.Errorf("%w: %s", ErrUnsupportedClass, id.Class)
	}

	n, err = binary.Decode(p.content, p.ByteOrder, &p.FileHeader)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTruncatedHeader, err)
	}
	if n != Elf64HeaderSize {
		panic("should never happen")
	}

	return nil
}

func (p *parser) parseSectionHeaders() error {
	if p.SectionHeaderOffset == 0 || p.NumSectionHeaderEntries == 0 {
		return ErrNoSectionHeaders
	}

	if p.SectionHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"%w: out of bound offset (%d)",
			ErrTruncatedSectionHeader,
			p.SectionHeaderOffset)
	}

	headers := make([]SectionHeaderEntry, p.NumSectionHeaderEntries)
	n, err := binary.Decode(
		p.content[p.SectionHeaderOffset:],
		p.ByteOrder,
		headers)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTruncatedSectionHeader, err)
	}
	if n != int(p.NumSectionHeaderEntries)*Elf64SectionHeaderEntrySize {
		panic("should never happen")
	}
	p.SectionHeaders = headers

	names, err := p.sectionNameTable()
	if err != nil {
		return err
	}

	sections := make([]Section, 0, len(headers))
	for _, header := range headers {
		sections = append(
			sections,
			Section{
				Name:    names.Get(header.NameIndex),
				Address: header.Address,
				Size:    header.Size,
			})
	}
	p.sections = sections

	return nil
}

func (p *parser) sectionNameTable() (StringTable, error) {
	idx := p.SectionStringTableIndex
	if idx == SectionIndexUndefined {
		// No section name table; every section name resolves to "".
		return nil, nil
	}

	if int(idx) >= len(p.SectionHeaders) {
		return nil, fmt.Errorf(
			"%w: section name table index out of bound (%d >= %d)",
			ErrTruncatedStringTable,
			idx,
			len(p.SectionHeaders))
	}

	content, err := p.sectionBytes(p.SectionHeaders[idx])
	if err != nil {
		return nil, fmt.Errorf(
			"%w: section name table %s",
			ErrTruncatedStringTable,
			err)
	}

	return StringTable(content), nil
}

func (p *parser) sectionBytes(header SectionHeaderEntry) ([]byte, error) {
	end := header.Offset + header.Size
	if end < header.Offset || end > uint64(len(p.content)) {
		return nil, fmt.Errorf(
			"content [%d, %d) out of bound (file size %d)",
			header.Offset,
			end,
			len(p.content))
	}

	return p.content[header.Offset:end], nil
}

func (p *parser) parseProgramHeaders() error {
	if p.ProgramHeaderOffset == 0 || p.NumProgramHeaderEntries == 0 {
		return nil
	}

	if p.ProgramHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"%w: out of bound offset (%d)",
			ErrTruncatedProgramHeader,
			p.ProgramHeaderOffset)
	}

	headers := make([]ProgramHeaderEntry, p.NumProgramHeaderEntries)
	n, err := binary.Decode(
		p.content[p.ProgramHeaderOffset:],
		p.ByteOrder,
		headers)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTruncatedProgramHeader, err)
	}
	if n != int(p.NumProgramHeaderEntries)*Elf64ProgramHeaderEntrySize {
		panic("should never happen")
	}

	p.ProgramHeaders = headers
	return nil
}

// Sections returns the fully resolved sections in on-disk order.  The
// returned slice is shared and must not be modified.
func (file *File) Sections() []Section {
	if !file.IsValid() {
		return nil
	}

	return file.sections
}

// Symbols returns the fully resolved symbols in on-disk order.  The
// returned slice is shared and must not be modified.
func (file *File) Symbols() []Symbol {
	if !file.IsValid() {
		return nil
	}

	return file.symbols
}

func (file *File) Metadata() Metadata {
	if !file.IsValid() {
		return Metadata{}
	}

	return Metadata{
		FileType:            file.FileType,
		MachineArchitecture: file.MachineArchitecture,
		FormatVersion:       file.FormatVersion,
		EntryPointAddress:   file.EntryPointAddress,
		ArchitectureFlags:   file.ArchitectureFlags,
	}
}

func (file *File) lookup() *lookupIndex {
	file.indexOnce.Do(func() {
		file.index = newLookupIndex(file.sections, file.symbols)
	})

	return file.index
}

// SymbolByAddress returns the symbol whose [address, address+size) range
// contains the query address.  A zero size symbol is never returned, even
// for a query at its exact address.
func (file *File) SymbolByAddress(address uint64) *Symbol {
	if !file.IsValid() {
		return nil
	}

	return file.lookup().symbolByAddress(address)
}

// NearestSymbol returns the symbol with the greatest address not exceeding
// the query address, ignoring symbol sizes.
func (file *File) NearestSymbol(address uint64) *Symbol {
	if !file.IsValid() {
		return nil
	}

	return file.lookup().nearestSymbol(address)
}

// SymbolByName returns the last-encountered symbol with the given name.
func (file *File) SymbolByName(name string) *Symbol {
	if !file.IsValid() {
		return nil
	}

	return file.lookup().symbolByName(name)
}

// SectionByAddress returns the section whose [address, address+size) range
// contains the query address.
func (file *File) SectionByAddress(address uint64) *Section {
	if !file.IsValid() {
		return nil
	}

	return file.lookup().sectionByAddress(address)
}

// SectionByName returns the last-encountered section with the given name.
func (file *File) SectionByName(name string) *Section {
	if !file.IsValid() {
		return nil
	}

	return file.lookup().sectionByName(name)
}
