package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"github.com/pterm/pterm"

	"github.com/dekarrin/ictiobus/internal/wire"
)

// inspectSession is the state an `himecc inspect` REPL carries across
// commands: every artifact file opened this session, kept in a sorted set
// so `files` always lists them the same way regardless of open order.
type inspectSession struct {
	opened     *treeset.Set
	lastOpened string
}

func newInspectSession() *inspectSession {
	return &inspectSession{opened: treeset.NewWith(utils.StringComparator)}
}

func runInspect(args []string) int {
	if len(args) == 0 {
		pterm.Error.Println("inspect requires an artifact file argument")
		return ExitUsageError
	}

	sess := newInspectSession()
	if code := sess.open(args[0]); code != ExitSuccess {
		return code
	}

	rl, err := readline.New("himecc> ")
	if err != nil {
		pterm.Error.Printfln("starting REPL: %s", err)
		return ExitUsageError
	}
	defer rl.Close()

	pterm.Info.Println("himecc inspect REPL. Type \"help\" for commands, \"quit\" to exit.")

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, rest := fields[0], fields[1:]

		switch cmd {
		case "quit", "exit":
			return ExitSuccess
		case "help":
			sess.printHelp()
		case "open":
			if len(rest) != 1 {
				pterm.Warning.Println("usage: open <file>")
				continue
			}
			sess.open(rest[0])
		case "files":
			sess.printFiles()
		case "header":
			sess.printHeader(currentOrArg(rest))
		case "summary":
			sess.printSummary(currentOrArg(rest))
		default:
			pterm.Warning.Printfln("unrecognized command %q (try \"help\")", cmd)
		}
	}
	return ExitSuccess
}

func currentOrArg(rest []string) string {
	if len(rest) > 0 {
		return rest[0]
	}
	return ""
}

func (s *inspectSession) printHelp() {
	fmt.Println(`commands:
  open <file>        open an artifact file, adding it to this session
  files              list every artifact file opened this session
  header [file]      print an artifact's magic/version header
  summary [file]      print an artifact's state/context counts
  help               show this message
  quit               exit the REPL`)
}

func (s *inspectSession) open(path string) int {
	f, err := os.Open(path)
	if err != nil {
		pterm.Error.Printfln("opening %s: %s", path, err)
		return ExitUsageError
	}
	defer f.Close()

	if _, err := wire.PeekHeader(f); err != nil {
		pterm.Error.Printfln("%s does not look like a himecc artifact: %s", path, err)
		return ExitUsageError
	}

	s.opened.Add(path)
	s.lastOpened = path
	pterm.Success.Printfln("opened %s", path)
	return ExitSuccess
}

func (s *inspectSession) printFiles() {
	if s.opened.Empty() {
		pterm.Info.Println("no files opened yet")
		return
	}
	for _, v := range s.opened.Values() {
		fmt.Println(v.(string))
	}
}

func (s *inspectSession) resolve(arg string) string {
	if arg != "" {
		return arg
	}
	return s.lastOpened
}

func (s *inspectSession) printHeader(arg string) {
	path := s.resolve(arg)
	if path == "" {
		pterm.Warning.Println("no file given and none opened yet")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		pterm.Error.Printfln("%s", err)
		return
	}
	defer f.Close()

	h, err := wire.PeekHeader(f)
	if err != nil {
		pterm.Error.Printfln("%s", err)
		return
	}
	fmt.Printf("%s: kind=%s version=%d\n", path, h.Kind(), h.Version)
}

func (s *inspectSession) printSummary(arg string) {
	path := s.resolve(arg)
	if path == "" {
		pterm.Warning.Println("no file given and none opened yet")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		pterm.Error.Printfln("%s", err)
		return
	}
	defer f.Close()

	h, err := wire.PeekHeader(f)
	if err != nil {
		pterm.Error.Printfln("%s", err)
		return
	}
	f.Seek(0, 0)

	switch h.Kind() {
	case "lexer":
		sum, err := wire.ReadLexerSummary(f)
		if err != nil {
			pterm.Error.Printfln("%s", err)
			return
		}
		fmt.Printf("%s: lexer, %d states, start=%d, %d contexts\n", path, sum.StateCount, sum.StartState, sum.ContextCount)
	case "parser", "rnglr-parser":
		sum, err := wire.ReadParserSummary(f)
		if err != nil {
			pterm.Error.Printfln("%s", err)
			return
		}
		tag := "deterministic"
		if sum.RNGLR {
			tag = "RNGLR"
		}
		fmt.Printf("%s: %s parser, %d states, start=%d\n", path, tag, sum.StateCount, sum.StartState)
	default:
		pterm.Warning.Printfln("%s: unrecognized artifact kind %s", path, h.Kind())
	}
}
