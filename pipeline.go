// Package ictiobus is the top-level compilation pipeline: given an
// already-parsed grammar AST set, it drives the loader, lexer builder,
// parser table builder, and wire serializer in order, accumulating
// diagnostics instead of stopping at the first one. cmd/himecc is the thin
// CLI wrapped around Compile.
package ictiobus

import (
	"bytes"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dekarrin/ictiobus/internal/automaton"
	"github.com/dekarrin/ictiobus/internal/config"
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/loader"
	"github.com/dekarrin/ictiobus/internal/lr"
	"github.com/dekarrin/ictiobus/internal/rnglr"
	"github.com/dekarrin/ictiobus/internal/rx"
	"github.com/dekarrin/ictiobus/internal/wire"
)

// Stage names one point in the compilation state machine:
// Init -> Loaded -> Resolved -> LexerBuilt -> ParserBuilt -> Serialized ->
// Done, with Failed reachable from any stage a fatal diagnostic is raised
// at.
type Stage int

const (
	StageInit Stage = iota
	StageLoaded
	StageResolved
	StageLexerBuilt
	StageParserBuilt
	StageSerialized
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "Init"
	case StageLoaded:
		return "Loaded"
	case StageResolved:
		return "Resolved"
	case StageLexerBuilt:
		return "LexerBuilt"
	case StageParserBuilt:
		return "ParserBuilt"
	case StageSerialized:
		return "Serialized"
	case StageDone:
		return "Done"
	default:
		return "Failed"
	}
}

// Artifacts is everything a successful compilation produces: the resolved
// grammar, the minimized lexer DFA, the LR table (always built) and, when
// the selected method is one of the RNG methods (rnglr1, rnglalr1), the
// right-nulled GLR augmentation of that table.
type Artifacts struct {
	Stage    Stage
	Grammar  *fagrammar.Grammar
	Lexer    *automaton.DFA
	Contexts []uint32
	Table    *lr.Table
	RNGTable *rnglr.RNGTable

	LexerBytes  []byte
	ParserBytes []byte
	Digest      [32]byte
}

// Compile runs the full pipeline for the grammar named rootName out of
// asts, using cfg to select the table-building method and whether RNGLR
// augmentation is forced. It returns the built artifacts (Stage is
// StageFailed on fatal failure; nil only when the temporary directory
// cannot be created) and every diagnostic raised, in a deterministic order:
// inheritance, then lexer, then parser, then conflicts by state-id then
// terminal-id.
//
// Failure at or before StageResolved short-circuits: neither the lexer nor
// the parser is attempted, since both need a fully resolved grammar.
// Failure partway through StageLexerBuilt or StageParserBuilt does not
// short-circuit the other: both are always attempted once the grammar
// itself resolved, so the caller sees every diagnostic from one pass
// instead of stopping at the first stage that failed.
func Compile(asts []*loader.GrammarAST, rootName string, cfg config.Config) (*Artifacts, []diag.Diagnostic) {
	var sink diag.Sink

	tmpDir, err := os.MkdirTemp("", "himecc-"+uuid.New().String())
	if err != nil {
		sink.Fatalf(diag.StageIO, "TempDirFailed", diag.Span{}, "%s", err.Error())
		return nil, sink.Items()
	}
	cleanTmp := func() { os.RemoveAll(tmpDir) }

	g, augStart, startProd, contexts, ok := loader.NewAdapter().Load(asts, rootName, &sink)
	if !ok {
		cleanTmp()
		return &Artifacts{Stage: StageFailed}, sink.Items()
	}

	art := &Artifacts{Stage: StageResolved, Grammar: g, Contexts: contexts}

	lexerOK := buildLexer(g, contexts, &sink, art)
	if lexerOK {
		art.Stage = StageLexerBuilt
	}

	// The grammar's own "Method" option wins over cfg.Method when the grammar declares one: a
	// grammar file that says Method="rnglr1" should compile that way
	// even if the caller's config/CLI default targets something else.
	methodName := cfg.Method
	if declared, ok := g.OptionString("Method"); ok {
		methodName = declared
	}
	method, methodOK := parseMethod(methodName, &sink)
	var tableOK bool
	if methodOK {
		tableOK = buildParser(g, augStart, startProd, method, methodName, &sink, art)
	}
	if tableOK {
		art.Stage = StageParserBuilt
	}

	if sink.HasFatal() {
		cleanTmp()
		art.Stage = StageFailed
		return art, sink.Items()
	}

	if lexerOK && tableOK {
		if serr := serialize(art); serr != nil {
			sink.Fatalf(diag.StageIO, "SerializeFailed", diag.Span{}, "%s", serr.Error())
			cleanTmp()
			art.Stage = StageFailed
			return art, sink.Items()
		}
		art.Stage = StageDone
	}

	cleanTmp()
	return art, sink.Items()
}

// buildLexer compiles every declared terminal's regex into one shared NFA
// (one Builder, so rx's monotonic state counter keeps every fragment's
// state names collision-free across the whole grammar), then runs subset
// construction and Hopcroft minimization.
func buildLexer(g *fagrammar.Grammar, contexts []uint32, sink *diag.Sink, art *Artifacts) bool {
	b := rx.NewBuilder()
	start := b.NewState()
	b.NFA().Start = start

	ok := true
	for _, tid := range g.SortedTerminalIDs() {
		term := g.Terminals[tid]
		if term.IsFragment {
			// fragments are never matched standalone; their patterns were
			// already inlined at every reference site during loading.
			continue
		}
		if term.Pattern == nil {
			sink.Errorf(diag.StageLexer, "MissingPattern", diag.Span{}, "terminal %q has no resolved regex", term.Name)
			ok = false
			continue
		}
		entry, exit := b.Compile(term.Pattern)
		b.NFA().AddEpsilon(start, entry)
		b.NFA().SetFinals(exit, []automaton.FinalTag{{Terminal: tid, Context: term.Context, Priority: term.Priority}})
	}
	if !ok {
		return false
	}

	dfa := automaton.SubsetConstruct(b.NFA())
	dfa = automaton.Minimize(dfa)
	if verr := dfa.Validate(); verr != nil {
		sink.Errorf(diag.StageLexer, "InvalidLexer", diag.Span{}, "%s", verr.Error())
		return false
	}

	art.Lexer = dfa
	return true
}

// buildParser constructs the LR table for the requested method. For the
// deterministic methods, conflicts are reported as diagnostics and the
// table keeps the shift-over-reduce / earliest-production resolution. For
// the RNG methods, conflicts are expected rather than reported: the table
// is augmented into a right-nulled GLR table whose cells keep every
// action, and a single ambiguity warning notes that multi-action cells
// exist.
func buildParser(g *fagrammar.Grammar, augStart, startProd uint32, method lr.Method, methodName string, sink *diag.Sink, art *Artifacts) bool {
	forceGLR := methodName == "rnglr" || methodName == "rnglr1" || methodName == "rnglalr" || methodName == "rnglalr1"

	tableSink := sink
	if forceGLR {
		// conflicts in the base table are not diagnostics under a GLR
		// method; they become parallel actions in the augmented table.
		tableSink = &diag.Sink{}
	}
	t := lr.BuildTable(g, method, augStart, startProd, tableSink)
	art.Table = t

	if forceGLR {
		for _, d := range tableSink.Items() {
			if d.Stage != diag.StageConflict {
				sink.Add(d)
			}
		}
		nullable := rnglr.NullableProductions(g)
		art.RNGTable = rnglr.Augment(t, g, augStart, nullable)
		if rnglr.Conflicted(art.RNGTable) {
			sink.Warnf(diag.StageParser, "Ambiguity", diag.Span{}, "grammar is ambiguous under %s: some cells hold multiple actions", methodName)
		}
	}
	return true
}

func parseMethod(name string, sink *diag.Sink) (lr.Method, bool) {
	switch name {
	case "", "lalr1":
		return lr.LALR1, true
	case "lr0":
		return lr.LR0, true
	case "slr":
		return lr.SLR, true
	case "lr1":
		return lr.LR1, true
	case "rnglr", "rnglr1", "rnglalr", "rnglalr1":
		// RNGLR/RNGLALR build on top of the LR1/LALR1 deterministic table;
		// buildParser augments it once built, so the base method tracks
		// which canonical construction to run.
		if name == "rnglalr" || name == "rnglalr1" {
			return lr.LALR1, true
		}
		return lr.LR1, true
	default:
		sink.Fatalf(diag.StageParser, "UnknownMethod", diag.Span{}, "unrecognized table method %q", name)
		return 0, false
	}
}

// serialize writes the lexer and parser artifacts to in-memory buffers and
// computes their joined digest.
func serialize(art *Artifacts) error {
	var lexBuf bytes.Buffer
	if err := wire.WriteLexer(&lexBuf, art.Grammar, art.Lexer, art.Contexts); err != nil {
		return fmt.Errorf("writing lexer: %w", err)
	}
	art.LexerBytes = lexBuf.Bytes()

	var parseBuf bytes.Buffer
	if art.RNGTable != nil {
		if err := wire.WriteRNGParser(&parseBuf, art.Grammar, art.RNGTable); err != nil {
			return fmt.Errorf("writing RNGLR parser: %w", err)
		}
	} else {
		if err := wire.WriteParser(&parseBuf, art.Grammar, art.Table); err != nil {
			return fmt.Errorf("writing parser: %w", err)
		}
	}
	art.ParserBytes = parseBuf.Bytes()

	joined := append(append([]byte{}, art.LexerBytes...), art.ParserBytes...)
	art.Digest = wire.Digest(joined)
	return nil
}
