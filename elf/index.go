package elf

import (
	"sort"
)

// lookupIndex accelerates name and address queries over the parsed
// sections and symbols.  Its content is a pure function of the parsed
// collections; building it twice from the same file yields identical query
// results.
type lookupIndex struct {
	sectionsByName map[string]*Section
	symbolsByName  map[string]*Symbol

	// ascending by address; entries tied on address keep their on-disk
	// encounter order
	sectionsByAddress []*Section
	symbolsByAddress  []*Symbol
}

func newLookupIndex(sections []Section, symbols []Symbol) *lookupIndex {
	index := &lookupIndex{
		sectionsByName:    make(map[string]*Section, len(sections)),
		symbolsByName:     make(map[string]*Symbol, len(symbols)),
		sectionsByAddress: make([]*Section, 0, len(sections)),
		symbolsByAddress:  make([]*Symbol, 0, len(symbols)),
	}

	for idx := range sections {
		section := &sections[idx]
		// last write wins on duplicate names
		index.sectionsByName[section.Name] = section
		index.sectionsByAddress = append(index.sectionsByAddress, section)
	}

	for idx := range symbols {
		symbol := &symbols[idx]
		// last write wins on duplicate names
		index.symbolsByName[symbol.Name] = symbol
		index.symbolsByAddress = append(index.symbolsByAddress, symbol)
	}

	sort.SliceStable(
		index.sectionsByAddress,
		func(i int, j int) bool {
			return index.sectionsByAddress[i].Address <
				index.sectionsByAddress[j].Address
		})

	sort.SliceStable(
		index.symbolsByAddress,
		func(i int, j int) bool {
			return index.symbolsByAddress[i].Address <
				index.symbolsByAddress[j].Address
		})

	return index
}

// index of the rightmost symbol whose address is <= the query address,
// or -1 when the query precedes every symbol.
func (index *lookupIndex) symbolFloor(address uint64) int {
	i := sort.Search(
		len(index.symbolsByAddress),
		func(i int) bool {
			return address < index.symbolsByAddress[i].Address
		})

	return i - 1
}

func (index *lookupIndex) sectionFloor(address uint64) int {
	i := sort.Search(
		len(index.sectionsByAddress),
		func(i int) bool {
			return address < index.sectionsByAddress[i].Address
		})

	return i - 1
}

func (index *lookupIndex) symbolByAddress(address uint64) *Symbol {
	i := index.symbolFloor(address)
	if i < 0 {
		return nil
	}

	symbol := index.symbolsByAddress[i]

	// NOTE: the upper bound is strict, so a zero size symbol never
	// contains any address, not even its own.
	if address < symbol.Address+symbol.Size {
		return symbol
	}

	return nil
}

func (index *lookupIndex) nearestSymbol(address uint64) *Symbol {
	i := index.symbolFloor(address)
	if i < 0 {
		return nil
	}

	return index.symbolsByAddress[i]
}

func (index *lookupIndex) sectionByAddress(address uint64) *Section {
	i := index.sectionFloor(address)
	if i < 0 {
		return nil
	}

	if index.sectionsByAddress[i].Contains(address) {
		return index.sectionsByAddress[i]
	}

	// Sections may share a start address (e.g. a zero sized section placed
	// at the end of its neighbor), in which case the floor candidate can
	// shadow a containing predecessor.
	if i > 0 && index.sectionsByAddress[i-1].Contains(address) {
		return index.sectionsByAddress[i-1]
	}

	return nil
}

func (index *lookupIndex) symbolByName(name string) *Symbol {
	return index.symbolsByName[name]
}

func (index *lookupIndex) sectionByName(name string) *Section {
	return index.sectionsByName[name]
}
