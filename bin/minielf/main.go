package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"

	"github.com/trianmon/libMiniELF/elf"
	"github.com/trianmon/libMiniELF/procfs"
)

const (
	formatText = "text"
	formatYaml = "yaml"
)

type tool struct {
	file   *elf.File
	format string
}

type command struct {
	name  string
	usage string
	run   func(*tool, []string) error
}

var (
	commands = []command{
		{
			name:  "sections",
			usage: "sections",
			run:   (*tool).printSections,
		},
		{
			name:  "symbols",
			usage: "symbols",
			run:   (*tool).printSymbols,
		},
		{
			name:  "functions",
			usage: "functions",
			run:   (*tool).printFunctions,
		},
		{
			name:  "resolve",
			usage: "resolve <hex address>",
			run:   (*tool).resolveAddress,
		},
		{
			name:  "resolve-nearest",
			usage: "resolve-nearest <hex address>",
			run:   (*tool).resolveNearest,
		},
		{
			name:  "find",
			usage: "find <symbol name>",
			run:   (*tool).findSymbol,
		},
		{
			name:  "section-of",
			usage: "section-of <hex address>",
			run:   (*tool).sectionOfAddress,
		},
		{
			name:  "section",
			usage: "section <section name>",
			run:   (*tool).findSection,
		},
		{
			name:  "metadata",
			usage: "metadata",
			run:   (*tool).printMetadata,
		},
		{
			name:  "validate",
			usage: "validate",
			run:   (*tool).printValidationLog,
		},
	}
)

type sectionView struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Size    uint64 `yaml:"size"`
}

type symbolView struct {
	Name      string `yaml:"name"`
	Demangled string `yaml:"demangled,omitempty"`
	Address   string `yaml:"address"`
	Size      uint64 `yaml:"size"`
	Type      string `yaml:"type"`
}

type metadataView struct {
	Type    string `yaml:"type"`
	Machine string `yaml:"machine"`
	Version uint32 `yaml:"version"`
	Entry   string `yaml:"entry"`
	Flags   uint32 `yaml:"flags"`
}

func newSymbolView(symbol elf.Symbol) symbolView {
	return symbolView{
		Name:      symbol.Name,
		Demangled: symbol.DemangledName,
		Address:   fmt.Sprintf("%#x", symbol.Address),
		Size:      symbol.Size,
		Type:      symbol.Type.String(),
	}
}

func printYaml(data any) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(out)
	return err
}

func parseAddress(value string) (uint64, error) {
	addr, err := strconv.ParseUint(
		strings.TrimPrefix(value, "0x"),
		16,
		64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse hex address (%s): %w", value, err)
	}

	return addr, nil
}

func (t *tool) printSections(args []string) error {
	if t.format == formatYaml {
		views := []sectionView{}
		for _, section := range t.file.Sections() {
			views = append(
				views,
				sectionView{
					Name:    section.Name,
					Address: fmt.Sprintf("%#x", section.Address),
					Size:    section.Size,
				})
		}
		return printYaml(views)
	}

	for _, section := range t.file.Sections() {
		fmt.Printf(
			"%s @ 0x%x (%d bytes)\n",
			section.Name,
			section.Address,
			section.Size)
	}
	return nil
}

func (t *tool) printSymbols(args []string) error {
	if t.format == formatYaml {
		views := []symbolView{}
		for _, symbol := range t.file.Symbols() {
			views = append(views, newSymbolView(symbol))
		}
		return printYaml(views)
	}

	for _, symbol := range t.file.Symbols() {
		fmt.Printf(
			"[SYM] %s @ 0x%x (%d bytes)\n",
			symbol.Name,
			symbol.Address,
			symbol.Size)
	}
	return nil
}

func (t *tool) printFunctions(args []string) error {
	if t.format == formatYaml {
		views := []symbolView{}
		for _, symbol := range t.file.Symbols() {
			if symbol.IsFunction() {
				views = append(views, newSymbolView(symbol))
			}
		}
		return printYaml(views)
	}

	for _, symbol := range t.file.Symbols() {
		if !symbol.IsFunction() {
			continue
		}

		fmt.Printf(
			"[FUNC] %s @ 0x%x (%d bytes)\n",
			symbol.PrettyName(),
			symbol.Address,
			symbol.Size)
	}
	return nil
}

func (t *tool) resolveAddress(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: resolve <hex address>")
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	symbol := t.file.SymbolByAddress(addr)
	if symbol == nil {
		fmt.Printf("No symbol found for 0x%x\n", addr)
		return nil
	}

	fmt.Printf("Resolved: %s @ 0x%x\n", symbol.PrettyName(), symbol.Address)
	return nil
}

func (t *tool) resolveNearest(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: resolve-nearest <hex address>")
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	symbol := t.file.NearestSymbol(addr)
	if symbol == nil {
		fmt.Printf("No symbol at or below 0x%x\n", addr)
		return nil
	}

	fmt.Printf(
		"Nearest: %s @ 0x%x (+0x%x)\n",
		symbol.PrettyName(),
		symbol.Address,
		addr-symbol.Address)
	return nil
}

func (t *tool) findSymbol(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: find <symbol name>")
	}

	symbol := t.file.SymbolByName(args[0])
	if symbol == nil {
		fmt.Printf("No symbol named %s\n", args[0])
		return nil
	}

	if t.format == formatYaml {
		return printYaml(newSymbolView(*symbol))
	}

	fmt.Printf(
		"[%s] %s @ 0x%x (%d bytes)\n",
		symbol.Type,
		symbol.PrettyName(),
		symbol.Address,
		symbol.Size)
	return nil
}

func (t *tool) sectionOfAddress(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: section-of <hex address>")
	}

	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}

	section := t.file.SectionByAddress(addr)
	if section == nil {
		fmt.Printf("No section contains 0x%x\n", addr)
		return nil
	}

	fmt.Printf(
		"%s @ 0x%x (%d bytes)\n",
		section.Name,
		section.Address,
		section.Size)
	return nil
}

func (t *tool) findSection(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: section <section name>")
	}

	section := t.file.SectionByName(args[0])
	if section == nil {
		fmt.Printf("No section named %s\n", args[0])
		return nil
	}

	fmt.Printf(
		"%s @ 0x%x (%d bytes)\n",
		section.Name,
		section.Address,
		section.Size)
	return nil
}

func (t *tool) printMetadata(args []string) error {
	metadata := t.file.Metadata()

	if t.format == formatYaml {
		return printYaml(metadataView{
			Type:    metadata.FileType.String(),
			Machine: metadata.MachineArchitecture.String(),
			Version: metadata.FormatVersion,
			Entry:   fmt.Sprintf("%#x", metadata.EntryPointAddress),
			Flags:   metadata.ArchitectureFlags,
		})
	}

	fmt.Printf("type:    %s\n", metadata.FileType)
	fmt.Printf("machine: %s\n", metadata.MachineArchitecture)
	fmt.Printf("version: %d\n", metadata.FormatVersion)
	fmt.Printf("entry:   0x%x\n", metadata.EntryPointAddress)
	fmt.Printf("flags:   0x%x\n", metadata.ArchitectureFlags)
	return nil
}

func (t *tool) printValidationLog(args []string) error {
	fmt.Print(t.file.ValidationLog())
	return nil
}

func (t *tool) runCommand(name string, args []string) error {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(t, args)
		}
	}

	return fmt.Errorf("invalid command: %s", name)
}

func printUsage() {
	fmt.Println("USAGE: minielf [-p pid] [-format text|yaml] [-force] <file> [command [args]]")
	fmt.Println("commands:")
	for _, cmd := range commands {
		fmt.Println("  " + cmd.usage)
	}
}

func repl(t *tool) {
	if !t.file.IsValid() {
		fmt.Print(t.file.ValidationLog())
	}

	rl, err := readline.New("minielf > ")
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			panic(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		args := strings.Split(line, " ")
		switch args[0] {
		case "quit", "exit":
			return
		case "help":
			printUsage()
			continue
		}

		err = t.runCommand(args[0], args[1:])
		if err != nil {
			fmt.Println(err)
		}
	}
}

func main() {
	pid := 0
	format := formatText
	force := false
	flag.IntVar(&pid, "p", 0, "inspect the executable of an existing process")
	flag.StringVar(&format, "format", formatText, "output format (text or yaml)")
	flag.BoolVar(
		&force,
		"force",
		false,
		"inspect partially parsed state of an invalid file")

	flag.Parse()
	args := flag.Args()

	path := ""
	if pid != 0 {
		status, err := procfs.GetProcessStatus(pid)
		if err != nil {
			panic(err)
		}

		fmt.Printf(
			"inspecting %s (pid %d, %s)\n",
			status.Comm,
			status.Pid,
			status.State)
		path = procfs.GetExecutableSymlinkPath(pid)
	} else if len(args) == 0 {
		printUsage()
		os.Exit(1)
	} else {
		path = args[0]
		args = args[1:]
	}

	file, _ := elf.ParseFile(path)
	if force {
		file.ForceValid(true)
	}

	t := &tool{
		file:   file,
		format: format,
	}

	if len(args) == 0 {
		repl(t)
		return
	}

	if !file.IsValid() && args[0] != "validate" {
		fmt.Fprint(os.Stderr, file.ValidationLog())
		os.Exit(1)
	}

	err := t.runCommand(args[0], args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
