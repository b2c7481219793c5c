package elf

import (
	"fmt"
	"strings"
)

// diagnostics records the outcome of the single parse pass: the furthest
// stage reached and the terminal error, if any.  Read-only after parsing,
// except for the explicit force-valid override.
type diagnostics struct {
	valid     bool
	lastError string
	stage     ParseStage

	// forceValid makes IsValid report true even after a failed parse so
	// tooling can inspect partially parsed state.  Off by default.
	forceValid bool
}

func (file *File) IsValid() bool {
	return file.diagnostics.valid || file.diagnostics.forceValid
}

// ForceValid overrides validity reporting for a failed parse.  This is a
// debugging affordance: queries will operate on whatever was fully parsed
// before the terminal error.
func (file *File) ForceValid(enable bool) {
	file.diagnostics.forceValid = enable
}

// LastError returns the terminal parse error message, or "" on success.
func (file *File) LastError() string {
	return file.diagnostics.lastError
}

// FailureStage returns the stage active when the first fatal error
// occurred, or the final stage reached on success.
func (file *File) FailureStage() ParseStage {
	return file.diagnostics.stage
}

// ValidationLog composes a human-readable parse report.
func (file *File) ValidationLog() string {
	lastError := file.diagnostics.lastError
	if lastError == "" {
		lastError = "<none>"
	}

	builder := strings.Builder{}
	fmt.Fprintf(&builder, "elf validation report: %s\n", file.Path)
	fmt.Fprintf(&builder, "  valid:           %t\n", file.IsValid())
	fmt.Fprintf(&builder, "  stage reached:   %s\n", file.diagnostics.stage)
	fmt.Fprintf(&builder, "  error:           %s\n", lastError)
	fmt.Fprintf(&builder, "  sections:        %d\n", len(file.sections))
	fmt.Fprintf(&builder, "  symbols:         %d\n", len(file.symbols))
	fmt.Fprintf(&builder, "  program headers: %d\n", len(file.ProgramHeaders))

	return builder.String()
}
