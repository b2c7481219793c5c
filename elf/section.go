package elf

import (
	"github.com/ianlancetaylor/demangle"
)

// Section is a name-resolved view of one section header entry, in on-disk
// order.  Immutable after parsing.
type Section struct {
	Name    string
	Address uint64
	Size    uint64
}

func (section Section) Contains(address uint64) bool {
	return section.Address <= address && address < section.Address+section.Size
}

// Symbol is a name-resolved view of one symbol table entry, in on-disk
// order.  Immutable after parsing.
type Symbol struct {
	Name          string
	DemangledName string // human readable c++ / rust name
	Address       uint64
	Size          uint64
	Type          SymbolType
}

func newSymbol(entry SymbolEntry, names StringTable) Symbol {
	symbol := Symbol{
		Name:    names.Get(entry.NameIndex),
		Address: entry.Value,
		Size:    entry.Size,
		Type:    SymbolInfoToType(entry.Info),
	}

	val, err := demangle.ToString(symbol.Name)
	if err == nil {
		symbol.DemangledName = val
	}

	return symbol
}

func (symbol Symbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}

	return symbol.Name
}

func (symbol Symbol) IsFunction() bool {
	return symbol.Type == SymbolTypeFunction
}

// Metadata is an on-demand summary of the file header.  Zeroed when the
// parse failed.
type Metadata struct {
	FileType
	MachineArchitecture
	FormatVersion     uint32
	EntryPointAddress uint64
	ArchitectureFlags uint32
}
