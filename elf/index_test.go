package elf

import (
	"bytes"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type IndexSuite struct{}

func TestIndex(t *testing.T) {
	suite.RunTests(t, &IndexSuite{})
}

// layoutImage exercises the address queries' boundary conditions:
//
// symbols (no null entry, so queries below 0x1000 miss):
//
//	alpha  FUNC   [0x1000, 0x1010)
//	beta   NOTYPE 0x1008, zero size, inside alpha
//	gamma  FUNC   [0x1010, 0x1020)
//	dup    OBJECT [0x1020, 0x1024)
//	dup    OBJECT [0x1030, 0x1034)
//
// sections:
//
//	.text   [0x1000, 0x1020)
//	.rodata [0x1020, 0x1040), adjacent to .text
//	.pad    zero size at 0x1020, shadows .rodata's start in the
//	        address-sorted order
func layoutImage(t *testing.T) []byte {
	// offsets: 1 alpha, 7 beta, 12 gamma, 18 dup
	strtab := []byte("\x00alpha\x00beta\x00gamma\x00dup\x00")

	symbols := encodeSymbols(
		t,
		[]SymbolEntry{
			{
				NameIndex: 1,
				Info:      symbolInfo(SymbolBindingGlobal, SymbolTypeFunction),
				Value:     0x1000,
				Size:      0x10,
			},
			{
				NameIndex: 7,
				Info:      symbolInfo(SymbolBindingLocal, SymbolTypeNone),
				Value:     0x1008,
				Size:      0,
			},
			{
				NameIndex: 12,
				Info:      symbolInfo(SymbolBindingGlobal, SymbolTypeFunction),
				Value:     0x1010,
				Size:      0x10,
			},
			{
				NameIndex: 18,
				Info:      symbolInfo(SymbolBindingLocal, SymbolTypeObject),
				Value:     0x1020,
				Size:      0x4,
			},
			{
				NameIndex: 18,
				Info:      symbolInfo(SymbolBindingLocal, SymbolTypeObject),
				Value:     0x1030,
				Size:      0x4,
			},
		})

	return testImage{
		fileType: FileTypeExecutable,
		machine:  MachineArchitectureX86_64,
		entry:    0x1000,
		sections: []testSection{
			{
				name:        ".text",
				sectionType: SectionTypeProgramDefinedInfo,
				address:     0x1000,
				content:     bytes.Repeat([]byte{0x90}, 0x20),
			},
			{
				name:        ".rodata",
				sectionType: SectionTypeProgramDefinedInfo,
				address:     0x1020,
				content:     bytes.Repeat([]byte{0x2e}, 0x20),
			},
			{
				name:        ".pad",
				sectionType: SectionTypeProgramDefinedInfo,
				address:     0x1020,
			},
			{
				name:        ".symtab",
				sectionType: SectionTypeSymbolTable,
				content:     symbols,
				link:        5,
				entrySize:   Elf64SymbolEntrySize,
			},
			{
				name:        ".strtab",
				sectionType: SectionTypeStringTable,
				content:     strtab,
			},
		},
	}.build(t)
}

func parseLayoutImage(t *testing.T) *File {
	file, err := ParseBytes(layoutImage(t))
	expect.Nil(t, err)
	expect.True(t, file.IsValid())
	return file
}

func (IndexSuite) TestSymbolByAddress(t *testing.T) {
	file := parseLayoutImage(t)

	symbol := file.SymbolByAddress(0x1000)
	expect.NotNil(t, symbol)
	expect.Equal(t, "alpha", symbol.Name)

	symbol = file.SymbolByAddress(0x1007)
	expect.NotNil(t, symbol)
	expect.Equal(t, "alpha", symbol.Name)

	// 0x1010 is both gamma's start and alpha's (exclusive) end
	symbol = file.SymbolByAddress(0x1010)
	expect.NotNil(t, symbol)
	expect.Equal(t, "gamma", symbol.Name)

	// past the last symbol's range
	expect.Nil(t, file.SymbolByAddress(0x1034))

	// before the first symbol
	expect.Nil(t, file.SymbolByAddress(0xfff))
}

func (IndexSuite) TestZeroSizeSymbolByAddress(t *testing.T) {
	file := parseLayoutImage(t)

	// beta is the rightmost symbol at or below 0x1008, but its zero size
	// fails the containment check; the query does not fall through to
	// alpha.
	expect.Nil(t, file.SymbolByAddress(0x1008))

	nearest := file.NearestSymbol(0x1008)
	expect.NotNil(t, nearest)
	expect.Equal(t, "beta", nearest.Name)
}

func (IndexSuite) TestNearestSymbol(t *testing.T) {
	file := parseLayoutImage(t)

	expect.Nil(t, file.NearestSymbol(0xfff))

	nearest := file.NearestSymbol(0x1000)
	expect.NotNil(t, nearest)
	expect.Equal(t, "alpha", nearest.Name)

	// gaps between symbols resolve to the preceding symbol regardless of
	// its size
	nearest = file.NearestSymbol(0x1028)
	expect.NotNil(t, nearest)
	expect.Equal(t, "dup", nearest.Name)
	expect.Equal(t, uint64(0x1020), nearest.Address)

	nearest = file.NearestSymbol(0xffffffff)
	expect.NotNil(t, nearest)
	expect.Equal(t, uint64(0x1030), nearest.Address)
}

func (IndexSuite) TestSymbolByName(t *testing.T) {
	file := parseLayoutImage(t)

	symbol := file.SymbolByName("gamma")
	expect.NotNil(t, symbol)
	expect.Equal(t, uint64(0x1010), symbol.Address)

	// duplicate names resolve to the last-encountered entry
	symbol = file.SymbolByName("dup")
	expect.NotNil(t, symbol)
	expect.Equal(t, uint64(0x1030), symbol.Address)

	expect.Nil(t, file.SymbolByName("missing"))
}

func (IndexSuite) TestSectionByAddress(t *testing.T) {
	file := parseLayoutImage(t)

	section := file.SectionByAddress(0x1000)
	expect.NotNil(t, section)
	expect.Equal(t, ".text", section.Name)

	// adjacency: the boundary address belongs to the following section
	section = file.SectionByAddress(0x101f)
	expect.NotNil(t, section)
	expect.Equal(t, ".text", section.Name)

	section = file.SectionByAddress(0x1020)
	expect.NotNil(t, section)
	expect.Equal(t, ".rodata", section.Name)

	// the zero size .pad section sorts after .rodata at the same address;
	// containment must fall back to the predecessor
	section = file.SectionByAddress(0x1025)
	expect.NotNil(t, section)
	expect.Equal(t, ".rodata", section.Name)

	section = file.SectionByAddress(0x103f)
	expect.NotNil(t, section)
	expect.Equal(t, ".rodata", section.Name)

	expect.Nil(t, file.SectionByAddress(0x1040))
}

func (IndexSuite) TestSectionByName(t *testing.T) {
	file := parseLayoutImage(t)

	section := file.SectionByName(".rodata")
	expect.NotNil(t, section)
	expect.Equal(t, uint64(0x1020), section.Address)
	expect.Equal(t, uint64(0x20), section.Size)

	expect.Nil(t, file.SectionByName(".missing"))
}

func (IndexSuite) TestRepeatedQueriesAreIdempotent(t *testing.T) {
	file := parseLayoutImage(t)

	type result struct {
		symbol  *Symbol
		section *Section
	}

	query := func() []result {
		results := []result{}
		for _, addr := range []uint64{0xfff, 0x1000, 0x1008, 0x1010, 0x1025} {
			results = append(
				results,
				result{
					symbol:  file.SymbolByAddress(addr),
					section: file.SectionByAddress(addr),
				})
		}
		return results
	}

	first := query()
	second := query()
	expect.Equal(t, len(first), len(second))
	for idx := range first {
		expect.True(t, first[idx].symbol == second[idx].symbol)
		expect.True(t, first[idx].section == second[idx].section)
	}
}

func (IndexSuite) TestHelloWorldScenario(t *testing.T) {
	file, err := ParseBytes(helloWorldImage(t))
	expect.Nil(t, err)

	byName := file.SymbolByName("main")
	expect.NotNil(t, byName)

	byAddress := file.SymbolByAddress(byName.Address)
	expect.NotNil(t, byAddress)
	expect.True(t, byName == byAddress)

	section := file.SectionByAddress(byName.Address)
	expect.NotNil(t, section)
	expect.Equal(t, ".text", section.Name)

	expect.Equal(t, MachineArchitecture(62), file.Metadata().MachineArchitecture)

	// the zero size edata symbol is reachable via nearest lookup only
	edata := file.SymbolByName("edata")
	expect.NotNil(t, edata)
	expect.Equal(t, uint64(0), edata.Size)
	expect.Nil(t, file.SymbolByAddress(edata.Address))

	nearest := file.NearestSymbol(edata.Address)
	expect.NotNil(t, nearest)
	expect.Equal(t, "edata", nearest.Name)
}
