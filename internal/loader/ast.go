// Package loader implements the seam between an already-parsed grammar
// source file and the numeric-id fagrammar.Grammar model that the rest of
// the compiler operates on: the grammar file loader is treated as a
// parser that yields an already-validated AST of grammar declarations.
//
// This package does NOT parse grammar source text — that parser is an
// out-of-scope collaborator. What it receives is a GrammarAST:
// declarations with their regexes already reduced to rx.Node
// trees (character-escape and `\p{...}` resolution is the text parser's
// job, not this one's) but everything else still in name-reference form,
// exactly as a grammar author would write it (`list<INT>`, `X*`, context
// blocks, choice markers). Adapter.Load is what turns that into interned,
// validated, template-expanded, sub-rule-extracted fagrammar IDs.
package loader

import (
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/rx"
)

// GrammarAST is one grammar file's worth of declarations ("options { }",
// "terminals { }", "rules { }" blocks), named so
// `Inherits` can reference other GrammarASTs given to the same
// compilation by name.
type GrammarAST struct {
	Name      string
	Span      diag.Span
	Options   []OptionDecl
	Inherits  []string
	Contexts  []ContextDecl
	Terminals []TerminalDecl
	Rules     []RuleDecl
}

// OptionKind mirrors fagrammar.OptionKind so this package does not need to
// import fagrammar just to describe an AST node (the Adapter is the only
// thing that translates between the two).
type OptionKind int

const (
	OptString OptionKind = iota
	OptBool
	OptInt
)

// OptionDecl is one `key = value;` entry inside an `options { }` block.
type OptionDecl struct {
	Name string
	Kind OptionKind
	Str  string
	Bool bool
	Int  int
	Span diag.Span
}

// ContextDecl declares a named terminal-context bucket. Context 0
// ("default") always exists implicitly and need not be declared.
type ContextDecl struct {
	Name string
	Span diag.Span
}

// TerminalDecl is one terminal declaration. Pattern is already a compiled
// rx.Node — character-class/escape resolution happened in the text
// parser, out of this package's scope. Priority is the terminal's
// position within its declaring file's terminal block, the tie-breaker
// used when matches are otherwise equal: longest-match then
// earlier-declared wins.
type TerminalDecl struct {
	Name    string
	Pattern rx.Node
	Context string // "" means the default context
	// Fragment marks a `fragment NAME = regex;` declaration: a terminal
	// that is never matched standalone and never emitted as a token. Its
	// pattern exists only to be inlined wherever another terminal's
	// pattern references it by name (an rx.Ref node); Load performs that
	// expansion. The grammar's separator terminal is a different concept,
	// designated by the Separator option, not by this flag.
	Fragment bool
	Priority int
	AliasOf  string // non-empty for a `NAME := OTHER_NAME;` alias declaration
	Span     diag.Span
}

// RuleDecl is one named production group: `name -> alt1 | alt2 ;` or,
// when Params is non-empty, a parametric template rule `name<T, U> -> ...;`
// that is only instantiated on demand at a reference site, never
// compiled standalone.
type RuleDecl struct {
	Name         string
	Params       []string
	Alternatives [][]BodyElem
	Span         diag.Span
}

// BodyElemKind tags one element of a production alternative's right-hand
// side, covering both the final grammar-model element kinds and the
// pre-extraction constructs (`?`, `*`, `+`, grouping, alternation) that
// sub-rule extraction lifts out.
type BodyElemKind int

const (
	ElemSymbolRef       BodyElemKind = iota // terminal, variable, or virtual by name (resolved by Load)
	ElemTemplateRef                         // name<arg1, arg2, ...>
	ElemAction                              // @actionName
	ElemSemanticPromote                     // ^
	ElemSemanticDrop                        // !
	ElemContextOpen                         // context open in a rule body: .{name}
	ElemContextClose                        // context close: .{}
	ElemGroup                               // ( alt1 | alt2 | ... )
	ElemOptional                            // X?
	ElemStar                                // X*
	ElemPlus                                // X+
	ElemLiteral                             // inline quoted literal, e.g. 'if'
)

// BodyElem is one element of a RuleDecl alternative. A pre-extraction AST
// can nest these arbitrarily (e.g. `(A B)*`): ElemGroup carries its
// alternation branches in Sub; ElemOptional/ElemStar/ElemPlus quantify
// the single sequence in Inner. An ElemLiteral carries its quoted text in
// Name; Load mints a generated terminal for it (one per distinct text).
type BodyElem struct {
	Kind  BodyElemKind
	Name  string       // symbol/context/action name for ref kinds; literal text for ElemLiteral
	Args  []string     // template argument symbol names, for ElemTemplateRef
	Sub   [][]BodyElem // alternation branches, for ElemGroup
	Inner []BodyElem   // quantified sequence, for ElemOptional/ElemStar/ElemPlus
	Span  diag.Span
}
