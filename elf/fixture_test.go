package elf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
)

// Byte offsets of selected FileHeader fields, for corrupting images
// in-place.
const (
	programHeaderOffsetFieldOffset = 32 // e_phoff
	sectionHeaderOffsetFieldOffset = 40 // e_shoff
	sectionNamesIndexFieldOffset   = 62 // e_shstrndx

	// within one Elf64_Shdr
	sectionSizeFieldOffset = 32 // sh_size
)

// testSection describes one section of a synthetic elf64 image.  The
// builder lays section contents out sequentially after the file header.
type testSection struct {
	name        string
	sectionType SectionType
	address     uint64
	content     []byte
	link        uint32
	entrySize   uint64

	// overrides len(content) when non-zero
	sizeOverride uint64
}

// testImage composes a minimal, well-formed elf64 byte image.  The index 0
// null section and a trailing .shstrtab are added automatically, so user
// section indices start at 1 and e_shstrndx is the last index.
type testImage struct {
	fileType FileType
	machine  MachineArchitecture
	entry    uint64

	sections       []testSection
	programHeaders []ProgramHeaderEntry
}

func (image testImage) build(t *testing.T) []byte {
	sections := append([]testSection{{}}, image.sections...)

	names := []byte{0}
	nameIndices := make([]uint32, 0, len(sections)+1)
	for _, section := range sections {
		if section.name == "" {
			nameIndices = append(nameIndices, 0)
			continue
		}

		nameIndices = append(nameIndices, uint32(len(names)))
		names = append(names, []byte(section.name)...)
		names = append(names, 0)
	}

	nameIndices = append(nameIndices, uint32(len(names)))
	names = append(names, []byte(SectionStringTableName)...)
	names = append(names, 0)

	sections = append(
		sections,
		testSection{
			name:        SectionStringTableName,
			sectionType: SectionTypeStringTable,
			content:     names,
		})

	offset := uint64(Elf64HeaderSize)
	contents := bytes.Buffer{}
	headers := make([]SectionHeaderEntry, 0, len(sections))
	for idx, section := range sections {
		size := uint64(len(section.content))
		if section.sizeOverride != 0 {
			size = section.sizeOverride
		}

		header := SectionHeaderEntry{
			NameIndex:   nameIndices[idx],
			SectionType: section.sectionType,
			Address:     section.address,
			Size:        size,
			Link:        section.link,
			EntrySize:   section.entrySize,
		}

		if len(section.content) > 0 {
			header.Offset = offset
			offset += uint64(len(section.content))
			contents.Write(section.content)
		}

		headers = append(headers, header)
	}

	programHeaderOffset := uint64(0)
	if len(image.programHeaders) > 0 {
		programHeaderOffset = offset
		offset += uint64(len(image.programHeaders)) * Elf64ProgramHeaderEntrySize
	}

	fileHeader := FileHeader{
		Identifier: Identifier{
			Class:             Class64,
			DataEncoding:      DataEncodingTwosComplementLittleEndian,
			IdentifierVersion: 1,
		},
		FileType:                image.fileType,
		MachineArchitecture:     image.machine,
		FormatVersion:           1,
		EntryPointAddress:       image.entry,
		ProgramHeaderOffset:     programHeaderOffset,
		SectionHeaderOffset:     offset,
		ElfHeaderSize:           Elf64HeaderSize,
		ProgramHeaderEntrySize:  Elf64ProgramHeaderEntrySize,
		NumProgramHeaderEntries: uint16(len(image.programHeaders)),
		SectionHeaderEntrySize:  Elf64SectionHeaderEntrySize,
		NumSectionHeaderEntries: uint16(len(sections)),
		SectionStringTableIndex: SectionIndex(len(sections) - 1),
	}
	copy(fileHeader.Magic[:], IdentifierMagic)

	buffer := bytes.Buffer{}
	write := func(data any) {
		expect.Nil(t, binary.Write(&buffer, binary.LittleEndian, data))
	}

	write(fileHeader)
	buffer.Write(contents.Bytes())
	if len(image.programHeaders) > 0 {
		write(image.programHeaders)
	}
	write(headers)

	return buffer.Bytes()
}

func encodeSymbols(t *testing.T, entries []SymbolEntry) []byte {
	buffer := bytes.Buffer{}
	expect.Nil(t, binary.Write(&buffer, binary.LittleEndian, entries))
	return buffer.Bytes()
}

func symbolInfo(binding SymbolBinding, symbolType SymbolType) byte {
	return byte(binding)<<4 | byte(symbolType)
}

// helloWorldImage mimics a minimal compiled executable: a .text section
// holding _start and main, and a .rodata section holding a message, with
// one loadable segment.
//
// Section indices: 1 .text, 2 .rodata, 3 .symtab, 4 .strtab, 5 .shstrtab.
// Symbol order: null, _start, main, message, edata (zero size).
func helloWorldImage(t *testing.T) []byte {
	// offsets: 1 _start, 8 main, 13 message, 21 edata
	strtab := []byte("\x00_start\x00main\x00message\x00edata\x00")

	symbols := encodeSymbols(
		t,
		[]SymbolEntry{
			{},
			{
				NameIndex: 1,
				Info:      symbolInfo(SymbolBindingGlobal, SymbolTypeFunction),
				Value:     0x401000,
				Size:      0x10,
			},
			{
				NameIndex: 8,
				Info:      symbolInfo(SymbolBindingGlobal, SymbolTypeFunction),
				Value:     0x401010,
				Size:      0x20,
			},
			{
				NameIndex: 13,
				Info:      symbolInfo(SymbolBindingLocal, SymbolTypeObject),
				Value:     0x402000,
				Size:      0x1a,
			},
			{
				NameIndex: 21,
				Info:      symbolInfo(SymbolBindingGlobal, SymbolTypeNone),
				Value:     0x40201a,
				Size:      0,
			},
		})

	return testImage{
		fileType: FileTypeExecutable,
		machine:  MachineArchitectureX86_64,
		entry:    0x401000,
		sections: []testSection{
			{
				name:        ".text",
				sectionType: SectionTypeProgramDefinedInfo,
				address:     0x401000,
				content:     bytes.Repeat([]byte{0x90}, 0x30),
			},
			{
				name:        ".rodata",
				sectionType: SectionTypeProgramDefinedInfo,
				address:     0x402000,
				content:     bytes.Repeat([]byte{0x2e}, 0x20),
			},
			{
				name:        ".symtab",
				sectionType: SectionTypeSymbolTable,
				content:     symbols,
				link:        4,
				entrySize:   Elf64SymbolEntrySize,
			},
			{
				name:        ".strtab",
				sectionType: SectionTypeStringTable,
				content:     strtab,
			},
		},
		programHeaders: []ProgramHeaderEntry{
			{
				ProgramType:     ProgramLoadable,
				ProgramFlags:    ProgramFlagReadableBit | ProgramFlagExecutableBit,
				VirtualAddress:  0x401000,
				PhysicalAddress: 0x401000,
				FileImageSize:   0x30,
				MemoryImageSize: 0x30,
				Alignment:       0x1000,
			},
		},
	}.build(t)
}
