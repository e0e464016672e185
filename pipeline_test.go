package ictiobus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/charset"
	"github.com/dekarrin/ictiobus/internal/config"
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/loader"
	"github.com/dekarrin/ictiobus/internal/lr"
	"github.com/dekarrin/ictiobus/internal/rx"
)

func span() diag.Span { return diag.Span{InputID: "g.gr"} }

func charsetA() charset.Set { return charset.Single('a') }

// trivialAxiomAST builds the smallest complete grammar: `g {
// options{Axiom="E";} terminals{A='a';} rules{E -> A;} }`.
func trivialAxiomAST(method string) *loader.GrammarAST {
	opts := []loader.OptionDecl{
		{Name: "Axiom", Kind: loader.OptString, Str: "E"},
	}
	if method != "" {
		opts = append(opts, loader.OptionDecl{Name: "Method", Kind: loader.OptString, Str: method})
	}
	return &loader.GrammarAST{
		Name:    "g",
		Span:    span(),
		Options: opts,
		Terminals: []loader.TerminalDecl{
			{Name: "A", Pattern: rx.Char{Set: charsetA()}, Span: span()},
		},
		Rules: []loader.RuleDecl{
			{Name: "E", Alternatives: [][]loader.BodyElem{
				{{Kind: loader.ElemSymbolRef, Name: "A"}},
			}, Span: span()},
		},
	}
}

func TestCompileTrivialGrammarReachesDone(t *testing.T) {
	assert := assert.New(t)

	art, diags := Compile([]*loader.GrammarAST{trivialAxiomAST("")}, "g", config.Default())

	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)
	assert.NotNil(art.Table)

	// S1: E -> A wraps into S' -> E $; the start state must shift on A,
	// and some state must accept once E is recognized.
	foundShift, foundAccept := false, false
	for _, row := range art.Table.Action {
		for _, act := range row {
			if act.Type == lr.LRShift {
				foundShift = true
			}
			if act.Type == lr.LRAccept {
				foundAccept = true
			}
		}
	}
	assert.True(foundShift, "expected a shift action on terminal A")
	assert.True(foundAccept, "expected an accept action once E is recognized")
	assert.NotEmpty(art.LexerBytes)
	assert.NotEmpty(art.ParserBytes)
}

func TestCompileHonorsGrammarDeclaredMethodOverCallerConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := config.Default()
	cfg.Method = "lr0"

	art, diags := Compile([]*loader.GrammarAST{trivialAxiomAST("lalr1")}, "g", cfg)

	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)
	assert.NotNil(art.Table)
	assert.Equal(lr.LALR1, art.Table.Method, "grammar's own Method option should win over cfg.Method=lr0")
}

// lit builds the regex for an exact literal string.
func lit(s string) rx.Node {
	nodes := make([]rx.Node, 0, len(s))
	for _, r := range s {
		nodes = append(nodes, rx.Char{Set: charset.Single(r)})
	}
	return rx.Seq(nodes...)
}

func symRef(name string) loader.BodyElem {
	return loader.BodyElem{Kind: loader.ElemSymbolRef, Name: name}
}

func litRef(text string) loader.BodyElem {
	return loader.BodyElem{Kind: loader.ElemLiteral, Name: text}
}

// terminalByValue finds a terminal by its display value — the way a test
// locates the generated terminal minted for an inline rule literal.
func terminalByValue(g *fagrammar.Grammar, value string) (uint32, bool) {
	for _, tid := range g.SortedTerminalIDs() {
		if g.Terminals[tid].Value == value {
			return tid, true
		}
	}
	return 0, false
}

// danglingElseAST builds the classic dangling-else grammar, with the
// keywords written as inline rule literals the way a grammar author
// would:
//
//	S -> 'if' E 'then' S 'else' S | 'if' E 'then' S | X
//
// which has exactly one shift/reduce conflict, at the state about to read
// 'else'.
func danglingElseAST(method string) *loader.GrammarAST {
	return &loader.GrammarAST{
		Name: "g",
		Span: span(),
		Options: []loader.OptionDecl{
			{Name: "Axiom", Kind: loader.OptString, Str: "S"},
			{Name: "Method", Kind: loader.OptString, Str: method},
		},
		Terminals: []loader.TerminalDecl{
			{Name: "E", Pattern: lit("e"), Span: span()},
			{Name: "X", Pattern: lit("x"), Priority: 1, Span: span()},
		},
		Rules: []loader.RuleDecl{
			{Name: "S", Alternatives: [][]loader.BodyElem{
				{litRef("if"), symRef("E"), litRef("then"), symRef("S"), litRef("else"), symRef("S")},
				{litRef("if"), symRef("E"), litRef("then"), symRef("S")},
				{symRef("X")},
			}, Span: span()},
		},
	}
}

func TestCompileRightRecursionHasNoConflicts(t *testing.T) {
	assert := assert.New(t)

	ast := &loader.GrammarAST{
		Name: "g",
		Span: span(),
		Options: []loader.OptionDecl{
			{Name: "Axiom", Kind: loader.OptString, Str: "E"},
		},
		Terminals: []loader.TerminalDecl{
			{Name: "A", Pattern: rx.Char{Set: charsetA()}, Span: span()},
		},
		Rules: []loader.RuleDecl{
			{Name: "E", Alternatives: [][]loader.BodyElem{
				{symRef("A"), symRef("E")},
				{symRef("A")},
			}, Span: span()},
		},
	}

	art, diags := Compile([]*loader.GrammarAST{ast}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)
	for _, d := range diags {
		assert.NotEqual(diag.StageConflict, d.Stage, "right-recursive grammar must compile without conflicts: %v", d)
	}
}

func TestCompileDanglingElseReportsExactlyOneShiftReduceConflict(t *testing.T) {
	assert := assert.New(t)

	art, diags := Compile([]*loader.GrammarAST{danglingElseAST("lalr1")}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "conflict must be resolved toward shift, not fail the build")

	conflicts := 0
	for _, d := range diags {
		if d.Stage == diag.StageConflict {
			conflicts++
			assert.Equal("ShiftReduceConflict", d.Kind)
		}
	}
	assert.Equal(1, conflicts, "dangling else has exactly one shift/reduce conflict: %v", diags)

	// the conflicted cell must have resolved to shift. 'else' is an
	// inline literal, so its terminal is generated: found by value, and
	// carrying the reserved name prefix.
	elseID, found := terminalByValue(art.Grammar, "else")
	assert.True(found, "expected a generated terminal for the 'else' literal")
	elseTerm := art.Grammar.Terminals[elseID]
	assert.True(elseTerm.IsGenerated)
	assert.True(strings.HasPrefix(elseTerm.Name, "$lit"))
	foundShiftOnElse := false
	for _, row := range art.Table.Action {
		if act, ok := row[elseID]; ok && act.Type == lr.LRShift {
			foundShiftOnElse = true
		}
	}
	assert.True(foundShiftOnElse)
	assert.Nil(art.RNGTable, "a deterministic method must produce a deterministic artifact even when conflicted")
}

func TestCompileDanglingElseUnderRNGLALRKeepsBothActions(t *testing.T) {
	assert := assert.New(t)

	art, diags := Compile([]*loader.GrammarAST{danglingElseAST("rnglalr1")}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)

	for _, d := range diags {
		assert.NotEqual(diag.StageConflict, d.Stage, "RNG methods must not report conflicts: %v", d)
	}
	sawAmbiguity := false
	for _, d := range diags {
		if d.Kind == "Ambiguity" {
			sawAmbiguity = true
			assert.Equal(diag.SevWarning, d.Severity)
		}
	}
	assert.True(sawAmbiguity)

	assert.NotNil(art.RNGTable)
	elseID, found := terminalByValue(art.Grammar, "else")
	assert.True(found)
	foundBoth := false
	for _, row := range art.RNGTable.Action {
		actions := row[elseID]
		if len(actions) == 2 {
			var hasShift, hasReduce bool
			for _, a := range actions {
				if a.Type == lr.LRShift {
					hasShift = true
				}
				if a.Type == lr.LRReduce {
					hasReduce = true
				}
			}
			foundBoth = hasShift && hasReduce
		}
	}
	assert.True(foundBoth, "the dangling-else cell must hold both the shift and the reduce")
}

func TestCompileSeparatorOptionPinsTerminalToDefaultContext(t *testing.T) {
	assert := assert.New(t)

	ast := &loader.GrammarAST{
		Name: "g",
		Span: span(),
		Options: []loader.OptionDecl{
			{Name: "Axiom", Kind: loader.OptString, Str: "L"},
			{Name: "Separator", Kind: loader.OptString, Str: "WS"},
		},
		Contexts: []loader.ContextDecl{{Name: "strings", Span: span()}},
		Terminals: []loader.TerminalDecl{
			{Name: "WS", Pattern: rx.Plus(rx.Char{Set: charset.Single(' ')}), Context: "strings", Span: span()},
			{Name: "ID", Pattern: rx.Plus(rx.Char{Set: charset.RangeOf('a', 'z')}), Priority: 1, Span: span()},
		},
		Rules: []loader.RuleDecl{
			{Name: "L", Alternatives: [][]loader.BodyElem{
				{symRef("ID"), symRef("ID")},
			}, Span: span()},
		},
	}

	art, diags := Compile([]*loader.GrammarAST{ast}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)

	wsID, ok := art.Grammar.IDOf("WS")
	assert.True(ok)
	ws := art.Grammar.Terminals[wsID]
	assert.True(ws.Separator, "the declared separator must be flagged")
	assert.Equal(uint32(0), ws.Context, "the separator is pinned to the default context regardless of its declaration")

	// the separator never appears in the parser's action rows.
	for id, row := range art.Table.Action {
		_, has := row[wsID]
		assert.False(has, "state %d has an action on the separator terminal", id)
	}
}

func TestCompileTemplateListExpandsToOneVariableWithTwoProductions(t *testing.T) {
	assert := assert.New(t)

	// S6: list<X> -> X | list<X> ',' X; referenced as Items -> list<INT>.
	ast := &loader.GrammarAST{
		Name: "g",
		Span: span(),
		Options: []loader.OptionDecl{
			{Name: "Axiom", Kind: loader.OptString, Str: "Items"},
		},
		Terminals: []loader.TerminalDecl{
			{Name: "INT", Pattern: rx.Plus(rx.Char{Set: charset.RangeOf('0', '9')}), Span: span()},
			{Name: "COMMA", Pattern: lit(","), Priority: 1, Span: span()},
		},
		Rules: []loader.RuleDecl{
			{
				Name:   "list",
				Params: []string{"T"},
				Alternatives: [][]loader.BodyElem{
					{symRef("T")},
					{{Kind: loader.ElemTemplateRef, Name: "list", Args: []string{"T"}}, symRef("COMMA"), symRef("T")},
				},
				Span: span(),
			},
			{Name: "Items", Alternatives: [][]loader.BodyElem{
				{{Kind: loader.ElemTemplateRef, Name: "list", Args: []string{"INT"}}},
			}, Span: span()},
		},
	}

	art, diags := Compile([]*loader.GrammarAST{ast}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)

	listID, ok := art.Grammar.IDOf("list<INT>")
	assert.True(ok, "expected one expanded list<INT> variable")
	assert.Len(art.Grammar.ByHead[listID], 2, "list<INT> expands to exactly two productions")

	for _, d := range diags {
		assert.NotEqual(diag.StageConflict, d.Stage, "left-recursive list is LALR(1)-clean: %v", d)
	}
}

func TestCompileIsByteDeterministic(t *testing.T) {
	assert := assert.New(t)

	compileOnce := func() ([]byte, []byte) {
		art, diags := Compile([]*loader.GrammarAST{danglingElseAST("lalr1")}, "g", config.Default())
		assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)
		return art.LexerBytes, art.ParserBytes
	}

	lex1, parse1 := compileOnce()
	lex2, parse2 := compileOnce()

	assert.Equal(lex1, lex2, "two compilations must produce byte-identical lexer artifacts")
	assert.Equal(parse1, parse2, "two compilations must produce byte-identical parser artifacts")
}

func TestCompileContextMasksStayWithinDeclaredContexts(t *testing.T) {
	assert := assert.New(t)

	art, diags := Compile([]*loader.GrammarAST{trivialAxiomAST("")}, "g", config.Default())
	assert.Equal(StageDone, art.Stage, "diagnostics: %v", diags)

	// Every state's context mask must be a subset of the declared
	// contexts: here only context 0 exists, so
	// every non-empty mask must be exactly bit 0.
	for id, mask := range art.Table.ContextMask {
		if mask != 0 {
			assert.Equal(uint32(1), mask, "state %d", id)
		}
	}
}
