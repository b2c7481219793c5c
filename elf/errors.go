package elf

import (
	"errors"
	"fmt"
)

// Terminal parse failures.  Each error produced during a parse pass wraps
// exactly one of these sentinels so callers can classify with errors.Is.
var (
	ErrFileUnreadable         = errors.New("elf file unreadable")
	ErrTruncatedHeader        = errors.New("truncated elf header")
	ErrBadMagic               = errors.New("invalid elf magic number")
	ErrUnsupportedClass       = errors.New("unsupported elf class")
	ErrNoSectionHeaders       = errors.New("no section headers")
	ErrTruncatedSectionHeader = errors.New("truncated section header table")
	ErrTruncatedStringTable   = errors.New("truncated string table")
	ErrTruncatedProgramHeader = errors.New("truncated program header table")
)

// ParseStage identifies how far a parse pass progressed.  Stages advance
// monotonically; a failed parse freezes the stage active when the first
// fatal error occurred.
type ParseStage int

const (
	StageHeader = ParseStage(iota)
	StageSectionHeaders
	StageSymbols
	StageProgramHeaders
)

func (stage ParseStage) String() string {
	switch stage {
	case StageHeader:
		return "Header"
	case StageSectionHeaders:
		return "SectionHeaders"
	case StageSymbols:
		return "Symbols"
	case StageProgramHeaders:
		return "ProgramHeaders"
	default:
		return fmt.Sprintf("ParseStageUnknown(%d)", int(stage))
	}
}
