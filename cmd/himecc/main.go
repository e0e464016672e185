// Command himecc is the thin CLI front end around the ictiobus compilation
// pipeline: read a grammar description, run it through Compile, and write
// the resulting lexer/parser artifacts to disk. It is intentionally small
// — everything it does is a direct call into the ictiobus package: the
// compiler itself lives there, not here.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	flag "github.com/spf13/pflag"

	"github.com/dekarrin/ictiobus"
	"github.com/dekarrin/ictiobus/internal/config"
	"github.com/dekarrin/ictiobus/internal/diag"
)

// Exit codes: 0 for success, 1 for a usage mistake the user can fix
// without looking at a stack trace, 2 for a failed compilation (bad
// grammar, not bad invocation).
const (
	ExitSuccess      = 0
	ExitUsageError   = 1
	ExitCompileError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return ExitUsageError
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "-h", "--help", "help":
		usage()
		return ExitSuccess
	default:
		pterm.Error.Printfln("unknown command %q", args[0])
		usage()
		return ExitUsageError
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `himecc - lexer/parser generator compiler

Usage:
  himecc build [flags] <grammar.json>
  himecc inspect <artifact-file>

build flags:
  --method string      table-building method: lr0, slr, lr1, lalr1, rnglr, rnglalr (default "lalr1")
  --out string         output directory for compiled artifacts (default ".")
  --config string      TOML config file overriding defaults
  --digest             print the joined lexer+parser artifact digest and exit 0 without writing files
  --dump-table         print the built LR action/goto table to stdout before writing artifacts
`)
}

func runBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	method := fs.String("method", "", "table-building method")
	out := fs.String("out", "", "output directory")
	cfgPath := fs.String("config", "", "TOML config file")
	digestOnly := fs.Bool("digest", false, "print the artifact digest and exit")
	dumpTable := fs.Bool("dump-table", false, "print the built LR action/goto table before writing artifacts")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}
	if fs.NArg() != 1 {
		pterm.Error.Println("build requires exactly one grammar file argument")
		return ExitUsageError
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			pterm.Error.Printfln("reading config %s: %s", *cfgPath, err)
			return ExitUsageError
		}
		cfg = loaded
	}
	if *method != "" {
		cfg.Method = *method
	}
	if *out != "" {
		cfg.OutputDir = *out
	}

	grammarPath := fs.Arg(0)
	asts, root, err := loadGrammarFile(grammarPath)
	if err != nil {
		pterm.Error.Printfln("loading %s: %s", grammarPath, err)
		return ExitUsageError
	}

	art, diags := ictiobus.Compile(asts, root, cfg)
	printDiagnostics(diags)

	if art == nil || art.Stage == ictiobus.StageFailed {
		pterm.Error.Println("compilation failed")
		return ExitCompileError
	}

	if *dumpTable && art.Table != nil {
		fmt.Println(art.Table.String(art.Grammar))
	}

	if *digestOnly {
		fmt.Printf("%x\n", art.Digest)
		return ExitSuccess
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		pterm.Error.Printfln("creating output directory: %s", err)
		return ExitCompileError
	}

	lexPath := filepath.Join(cfg.OutputDir, root+".hlex")
	parsePath := filepath.Join(cfg.OutputDir, root+".hprs")
	if err := os.WriteFile(lexPath, art.LexerBytes, 0o644); err != nil {
		pterm.Error.Printfln("writing %s: %s", lexPath, err)
		return ExitCompileError
	}
	if err := os.WriteFile(parsePath, art.ParserBytes, 0o644); err != nil {
		pterm.Error.Printfln("writing %s: %s", parsePath, err)
		return ExitCompileError
	}

	pterm.Success.Printfln("%s: %s (%s), %s: %s (%s)",
		lexPath, humanize.Bytes(uint64(len(art.LexerBytes))), root,
		parsePath, humanize.Bytes(uint64(len(art.ParserBytes))), root)
	pterm.Info.Printfln("digest %x", art.Digest)
	return ExitSuccess
}

func printDiagnostics(diags []diag.Diagnostic) {
	for _, d := range diags {
		line := d.Error()
		switch d.Severity {
		case diag.SevFatal, diag.SevError:
			pterm.Error.Println(line)
		default:
			pterm.Warning.Println(line)
		}
	}
}
