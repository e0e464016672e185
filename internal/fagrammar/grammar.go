// Package fagrammar implements the numeric-id grammar model. Symbol
// identity is a uint32 id rather than a string name, because the wire
// format and its "encoded element" contract address symbols by id, not
// by name; names are kept only as a side-table for diagnostics.
//
// 0 is never a valid id, 1 is reserved for epsilon, 2 is reserved for the
// end-of-input marker ($), terminal ids start at 3, and non-terminal
// (variable) ids occupy a disjoint range starting at FirstVariableID.
package fagrammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/ictiobus/internal/rx"
	"github.com/dekarrin/ictiobus/internal/util"
)

const (
	EpsilonID        uint32 = 1
	EndOfInputID     uint32 = 2
	FirstTerminalID  uint32 = 3
	FirstVariableID  uint32 = 1 << 20
)

// OptionKind distinguishes the three value shapes a grammar option can
// hold: strings, booleans, and small integers all appear in real grammar
// option declarations, e.g. a `case_sensitive: false` context option.
type OptionKind int

const (
	OptString OptionKind = iota
	OptBool
	OptInt
)

// Option is a sum-typed grammar/context configuration value.
type Option struct {
	Kind OptionKind
	Str  string
	Bool bool
	Int  int
}

// Terminal is a lexical symbol: a name, a display Value (the literal
// text for generated literal terminals, the declared name otherwise),
// its regex, a declaration-order Priority used to break DFA-merge ties,
// the Context it is scoped to, and an optional AliasOf pointing at the
// "real" terminal an alias declaration (`NAME := OTHER_NAME;`) stands
// in for.
type Terminal struct {
	ID       uint32
	Name     string
	Value    string
	Pattern  rx.Node
	Priority int
	Context  uint32
	AliasOf  *uint32
	// IsFragment marks a `fragment NAME = regex;` declaration: the
	// terminal is never matched standalone and never appears as a token;
	// its pattern exists only to be expanded at rx.Ref reference sites
	// inside other terminals' patterns. The loader performs that
	// expansion, so by lexer-build time fragment patterns have already
	// been inlined everywhere they were referenced.
	IsFragment bool
	// IsGenerated marks a terminal the loader synthesized from an inline
	// literal in a rule body rather than an explicit declaration. Its
	// Name carries the reserved "$lit" prefix; Value holds the literal
	// text it matches.
	IsGenerated bool
	// Separator is true for the grammar's declared separator terminal,
	// pinned to context 0 and consumed silently between tokens.
	Separator bool
}

// Variable is a non-terminal symbol.
type Variable struct {
	ID   uint32
	Name string
}

// Virtual is a named node that may appear in a production's right-hand
// side but is never produced by the lexer: it exists purely so semantic
// actions have something with stable identity to attach to or build a
// tree node around.
type Virtual struct {
	ID   uint32
	Name string
}

// Action is a semantic action tag attached to a production choice. It is
// a Virtual plus a user-visible callable binding; resolution of Callable
// to actual code is the emitter's job, not this core's.
type Action struct {
	ID       uint32
	Name     string
	Virtual  uint32 // Virtual.ID this action is bound to
	Callable string
}

// ElemKind is the tag of one production body element, matching the
// "encoded element" kind ordering the wire format assigns to its top 4
// bits, one-to-one.
type ElemKind int

const (
	ElemTerminal ElemKind = iota
	ElemVariable
	ElemVirtual
	ElemAction
	ElemSemanticPromote // ^ : promote this element's tree node to replace its parent
	ElemSemanticDrop     // ! : drop this element's tree node entirely
	ElemContextOpen      // begin scoping a lexer context for subsequent tokens
	ElemContextClose     // end the most recently opened context
)

// Elem is one symbol occurrence on a production's right-hand side. ID
// addresses a terminal/variable/virtual/action id for the corresponding
// ref kinds; Context addresses a context id for ElemContextOpen (ignored
// otherwise). Only ElemTerminal and ElemVariable are "consuming" —
// they're the only kinds that ever label an LR shift/goto transition;
// every other kind is skipped over automatically while building item
// closures (see lr.Normalize) since the parser never reads input
// for them.
type Elem struct {
	Kind    ElemKind
	ID      uint32
	Context uint32
}

// Consuming reports whether e corresponds to an actual input symbol the
// parser shifts: only terminal/variable positions advance the dot in the
// ordinary LR sense; virtuals, actions, and markers are resolved by the
// runtime at reduce time without consuming a token.
func (e Elem) Consuming() bool {
	return e.Kind == ElemTerminal || e.Kind == ElemVariable
}

// Production is one right-hand-side alternative of a Variable.
type Production struct {
	ID      uint32
	Head    uint32 // Variable.ID
	Symbols []Elem
}

// Grammar is the fully-resolved grammar model the loader, LR table
// builder, and RNGLR augmenter all operate on.
type Grammar struct {
	Terminals   map[uint32]Terminal
	Variables   map[uint32]Variable
	Virtuals    map[uint32]Virtual
	Actions     map[uint32]Action
	Productions map[uint32]Production
	ByHead      map[uint32][]uint32 // Variable.ID -> Production.IDs, in declaration order
	Start       uint32              // Variable.ID
	Options     map[string]Option

	nextTerm    uint32
	nextVar     uint32
	nextProd    uint32
	nextAct     uint32
	nextVirtual uint32
	byName      map[string]uint32 // name -> id, across both terminals and variables
}

// New returns an empty grammar ready to have symbols declared into it.
func New() *Grammar {
	return &Grammar{
		Terminals:   map[uint32]Terminal{},
		Variables:   map[uint32]Variable{},
		Virtuals:    map[uint32]Virtual{},
		Actions:     map[uint32]Action{},
		Productions: map[uint32]Production{},
		ByHead:      map[uint32][]uint32{},
		Options:     map[string]Option{},
		nextTerm:    FirstTerminalID,
		nextVar:     FirstVariableID,
		nextProd:    1,
		nextAct:     1,
		nextVirtual: 1,
		byName:      map[string]uint32{},
	}
}

// DuplicateSymbolError reports that name was declared more than once
// across terminals and variables, which share one namespace.
type DuplicateSymbolError struct {
	Name string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("fagrammar: symbol %q already declared", e.Name)
}

// AddTerminal declares a new terminal. Returns *DuplicateSymbolError if
// name collides with an existing terminal or variable.
func (g *Grammar) AddTerminal(name string, pattern rx.Node, priority int, context uint32) (uint32, error) {
	if _, exists := g.byName[name]; exists {
		return 0, &DuplicateSymbolError{Name: name}
	}
	id := g.nextTerm
	g.nextTerm++
	g.Terminals[id] = Terminal{ID: id, Name: name, Value: name, Pattern: pattern, Priority: priority, Context: context}
	g.byName[name] = id
	return id, nil
}

// AddVariable declares a new non-terminal.
func (g *Grammar) AddVariable(name string) (uint32, error) {
	if _, exists := g.byName[name]; exists {
		return 0, &DuplicateSymbolError{Name: name}
	}
	id := g.nextVar
	g.nextVar++
	g.Variables[id] = Variable{ID: id, Name: name}
	g.byName[name] = id
	return id, nil
}

// AddVirtual declares a virtual node, returning its id. Virtual names are
// not part of the terminal/variable namespace since they never appear as
// a symbol to shift or reduce on.
func (g *Grammar) AddVirtual(name string) uint32 {
	id := g.nextVirtual
	g.nextVirtual++
	g.Virtuals[id] = Virtual{ID: id, Name: name}
	return id
}

// AddAction declares a semantic action tag, returning its id. virtual may
// be 0 if the action is not bound to a virtual node. Action names are not
// part of the terminal/variable namespace, since they never appear as a
// symbol to shift or reduce on.
func (g *Grammar) AddAction(name string, virtual uint32, callable string) uint32 {
	id := g.nextAct
	g.nextAct++
	g.Actions[id] = Action{ID: id, Name: name, Virtual: virtual, Callable: callable}
	return id
}

// AddRule adds one production for head (a variable id), in declaration
// order. Returns the new production's id.
func (g *Grammar) AddRule(head uint32, symbols []Elem) (uint32, error) {
	if _, ok := g.Variables[head]; !ok {
		return 0, fmt.Errorf("fagrammar: AddRule: %d is not a declared variable", head)
	}
	id := g.nextProd
	g.nextProd++
	g.Productions[id] = Production{ID: id, Head: head, Symbols: symbols}
	g.ByHead[head] = append(g.ByHead[head], id)
	return id, nil
}

// IDOf looks up the id of a declared terminal or variable by name.
func (g *Grammar) IDOf(name string) (uint32, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// OptionString looks up a string-valued grammar option case-insensitively
// (grammar authors write "Method"/"Axiom"/"DefaultContext" with whatever
// casing they like), returning false if the option was never declared or
// was declared with a non-string value.
func (g *Grammar) OptionString(name string) (string, bool) {
	lower := strings.ToLower(name)
	for k, v := range g.Options {
		if strings.ToLower(k) == lower && v.Kind == OptString {
			return v.Str, true
		}
	}
	return "", false
}

// OptionBool looks up a bool-valued grammar option case-insensitively
// (e.g. "CompressAutomata"), returning false if never declared or
// declared with a non-bool value.
func (g *Grammar) OptionBool(name string) (bool, bool) {
	lower := strings.ToLower(name)
	for k, v := range g.Options {
		if strings.ToLower(k) == lower && v.Kind == OptBool {
			return v.Bool, true
		}
	}
	return false, false
}

// IsTerminal reports whether id names a terminal.
func (g *Grammar) IsTerminal(id uint32) bool {
	_, ok := g.Terminals[id]
	return ok
}

// IsVariable reports whether id names a variable.
func (g *Grammar) IsVariable(id uint32) bool {
	_, ok := g.Variables[id]
	return ok
}

// NameOf returns the declared name of a terminal or variable id, or a
// synthetic placeholder for the reserved ids (used only in diagnostics).
func (g *Grammar) NameOf(id uint32) string {
	switch id {
	case EpsilonID:
		return "ε"
	case EndOfInputID:
		return "$"
	}
	if t, ok := g.Terminals[id]; ok {
		return t.Name
	}
	if v, ok := g.Variables[id]; ok {
		return v.Name
	}
	if vi, ok := g.Virtuals[id]; ok {
		return vi.Name
	}
	return fmt.Sprintf("<unknown:%d>", id)
}

// Validate checks the structural invariants required before lexer/parser
// construction: the start symbol is declared, every production's head and
// every right-hand symbol reference a declared id, and every non-terminal
// has at least one production: a non-terminal with no productions is an
// error, not a silent empty language.
func (g *Grammar) Validate() error {
	if _, ok := g.Variables[g.Start]; !ok {
		return fmt.Errorf("fagrammar: start symbol %d is not a declared variable", g.Start)
	}
	for vid := range g.Variables {
		if len(g.ByHead[vid]) == 0 {
			return fmt.Errorf("fagrammar: variable %q has no productions", g.NameOf(vid))
		}
	}
	for pid, p := range g.Productions {
		if _, ok := g.Variables[p.Head]; !ok {
			return fmt.Errorf("fagrammar: production %d has undeclared head %d", pid, p.Head)
		}
		for _, e := range p.Symbols {
			switch e.Kind {
			case ElemTerminal:
				if _, ok := g.Terminals[e.ID]; !ok {
					return fmt.Errorf("fagrammar: production %d references undeclared terminal %d", pid, e.ID)
				}
			case ElemVariable:
				if _, ok := g.Variables[e.ID]; !ok {
					return fmt.Errorf("fagrammar: production %d references undeclared variable %d", pid, e.ID)
				}
			case ElemVirtual:
				if _, ok := g.Virtuals[e.ID]; !ok {
					return fmt.Errorf("fagrammar: production %d references undeclared virtual %d", pid, e.ID)
				}
			case ElemAction:
				if _, ok := g.Actions[e.ID]; !ok {
					return fmt.Errorf("fagrammar: production %d references undeclared action %d", pid, e.ID)
				}
			case ElemSemanticPromote, ElemSemanticDrop:
				// markers carry no id to validate
			case ElemContextOpen:
				// Context is a context id owned by the lexer side; loader
				// resolves and validates these against the declared
				// context set before handing the grammar to this package.
			case ElemContextClose:
			}
		}
	}
	return nil
}

// SortedVariableIDs returns every declared variable id, ascending — the
// order FIRST/FOLLOW fixpoint computation iterates in for determinism.
func (g *Grammar) SortedVariableIDs() []uint32 {
	ids := make([]uint32, 0, len(g.Variables))
	for id := range g.Variables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SortedTerminalIDs returns every declared terminal id, ascending.
func (g *Grammar) SortedTerminalIDs() []uint32 {
	ids := make([]uint32, 0, len(g.Terminals))
	for id := range g.Terminals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Nullable computes, for every variable, whether it can derive the empty
// string, by the standard fixpoint. Deeba Kannan's worked example (TOC
// Lecture 25) is kept as a regression fixture in grammar_test.go.
func (g *Grammar) Nullable() util.UintSet {
	nullable := util.NewUintSet()
	changed := true
	for changed {
		changed = false
		for pid, p := range g.Productions {
			_ = pid
			if nullable.Has(p.Head) {
				continue
			}
			allNullable := true
			for _, e := range p.Symbols {
				switch e.Kind {
				case ElemTerminal:
					allNullable = false
				case ElemVariable:
					if !nullable.Has(e.ID) {
						allNullable = false
					}
				default:
					// non-consuming elements (virtuals, actions, semantic
					// and context markers) never block nullability.
				}
				if !allNullable {
					break
				}
			}
			if allNullable {
				nullable.Add(p.Head)
				changed = true
			}
		}
	}
	return nullable
}
