// Package rx implements the terminal regex language as a small sum-type
// AST and its Thompson construction into an NFA fragment, targeting the
// automaton package's NFA container (AddEdge, AddEpsilon).
package rx

import (
	"fmt"

	"github.com/dekarrin/ictiobus/internal/automaton"
	"github.com/dekarrin/ictiobus/internal/charset"
)

// Node is a regex AST node. The concrete types below form a closed sum
// type; Compile switches over them exhaustively rather than using a
// visitor interface, matching the plain switch-on-concrete-type style used
// throughout the grammar package for its rule-element sum type.
type Node interface {
	node()
}

// Epsilon matches the empty string.
type Epsilon struct{}

// Char matches exactly one code point drawn from Set.
type Char struct {
	Set charset.Set
}

// Concat matches Left immediately followed by Right.
type Concat struct {
	Left, Right Node
}

// Union matches either Left or Right.
type Union struct {
	Left, Right Node
}

// Repeat matches Inner repeated between Min and Max times, inclusive. Max
// of -1 means unbounded: bounded repetition {m,n} unrolls into a
// concatenation chain, unbounded repetition closes with a Kleene-style
// loop.
type Repeat struct {
	Inner    Node
	Min, Max int
}

// Ref is a by-name reference to a fragment terminal's pattern. Refs only
// exist between loading and fragment expansion: Expand replaces every Ref
// with the referenced pattern before a tree ever reaches Compile, so
// Compile treats a surviving Ref as a caller bug.
type Ref struct {
	Name string
}

func (Epsilon) node() {}
func (Char) node()    {}
func (Concat) node()  {}
func (Union) node()   {}
func (Repeat) node()  {}
func (Ref) node()     {}

// UnresolvedRefError reports a Ref whose name the resolver could not
// supply a pattern for.
type UnresolvedRefError struct {
	Name string
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("rx: reference to undeclared fragment %q", e.Name)
}

// maxRefDepth bounds chained Ref expansion; exceeding it almost certainly
// means two fragments reference each other.
const maxRefDepth = 64

// Expand returns a copy of node with every Ref replaced by the pattern
// resolve returns for its name, applied recursively so a fragment
// referencing another fragment inlines all the way down. Returns
// *UnresolvedRefError for a name resolve cannot supply, and a depth
// error for cyclic references.
func Expand(node Node, resolve func(name string) (Node, bool)) (Node, error) {
	return expand(node, resolve, 0)
}

func expand(node Node, resolve func(name string) (Node, bool), depth int) (Node, error) {
	switch n := node.(type) {
	case Epsilon, Char:
		return node, nil
	case Ref:
		if depth+1 > maxRefDepth {
			return nil, fmt.Errorf("rx: fragment references nested deeper than %d levels (cyclic fragment?)", maxRefDepth)
		}
		target, ok := resolve(n.Name)
		if !ok {
			return nil, &UnresolvedRefError{Name: n.Name}
		}
		return expand(target, resolve, depth+1)
	case Concat:
		l, err := expand(n.Left, resolve, depth)
		if err != nil {
			return nil, err
		}
		r, err := expand(n.Right, resolve, depth)
		if err != nil {
			return nil, err
		}
		return Concat{Left: l, Right: r}, nil
	case Union:
		l, err := expand(n.Left, resolve, depth)
		if err != nil {
			return nil, err
		}
		r, err := expand(n.Right, resolve, depth)
		if err != nil {
			return nil, err
		}
		return Union{Left: l, Right: r}, nil
	case Repeat:
		inner, err := expand(n.Inner, resolve, depth)
		if err != nil {
			return nil, err
		}
		return Repeat{Inner: inner, Min: n.Min, Max: n.Max}, nil
	default:
		return nil, fmt.Errorf("rx: unhandled node type %T", node)
	}
}

// Seq is a convenience constructor for a Concat chain over 2+ nodes.
func Seq(nodes ...Node) Node {
	if len(nodes) == 0 {
		return Epsilon{}
	}
	out := nodes[0]
	for _, n := range nodes[1:] {
		out = Concat{Left: out, Right: n}
	}
	return out
}

// Alt is a convenience constructor for a Union chain over 2+ nodes.
func Alt(nodes ...Node) Node {
	if len(nodes) == 0 {
		return Epsilon{}
	}
	out := nodes[0]
	for _, n := range nodes[1:] {
		out = Union{Left: out, Right: n}
	}
	return out
}

// Star is Repeat{Min: 0, Max: -1} (zero or more).
func Star(inner Node) Node { return Repeat{Inner: inner, Min: 0, Max: -1} }

// Plus is Repeat{Min: 1, Max: -1} (one or more).
func Plus(inner Node) Node { return Repeat{Inner: inner, Min: 1, Max: -1} }

// Opt is Repeat{Min: 0, Max: 1} (zero or one).
func Opt(inner Node) Node { return Repeat{Inner: inner, Min: 0, Max: 1} }

// Builder accumulates Thompson-construction fragments into one NFA, minting
// fresh, collision-free state names across however many Compile calls it
// is given. A compilation pass shares one Builder across every terminal's
// regex so that their fragments all land in a single lexer NFA, ready to
// be connected under one shared start state.
type Builder struct {
	nfa     *automaton.NFA
	counter int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{nfa: automaton.New()}
}

// NFA returns the automaton accumulated so far.
func (b *Builder) NFA() *automaton.NFA {
	return b.nfa
}

// NewState allocates a fresh, non-accepting state in b's automaton and
// returns its name. Exposed so a caller splicing several Compile calls
// into one shared automaton (e.g. one state per lexer terminal) has a
// state to use as the common entry point, without reaching into the
// automaton package directly.
func (b *Builder) NewState() string {
	return b.fresh()
}

func (b *Builder) fresh() string {
	name := fmt.Sprintf("rx%d", b.counter)
	b.counter++
	b.nfa.AddState(name, false)
	return name
}

// Compile performs Thompson construction on node, adding its
// states and edges to b's automaton, and returns the fragment's single
// entry and single exit state. The exit state is left non-accepting; the
// caller tags it with a FinalTag once the fragment has been spliced into
// the whole-grammar NFA (this mirrors how multiple terminals' fragments
// get unioned under one shared start state before any acceptance is
// assigned).
func (b *Builder) Compile(node Node) (entry, exit string) {
	switch n := node.(type) {
	case Epsilon:
		entry, exit = b.fresh(), b.fresh()
		b.nfa.AddEpsilon(entry, exit)
		return entry, exit

	case Char:
		entry, exit = b.fresh(), b.fresh()
		b.nfa.AddEdge(entry, n.Set, exit)
		return entry, exit

	case Concat:
		e1, x1 := b.Compile(n.Left)
		e2, x2 := b.Compile(n.Right)
		b.nfa.AddEpsilon(x1, e2)
		return e1, x2

	case Union:
		entry, exit = b.fresh(), b.fresh()
		e1, x1 := b.Compile(n.Left)
		e2, x2 := b.Compile(n.Right)
		b.nfa.AddEpsilon(entry, e1)
		b.nfa.AddEpsilon(entry, e2)
		b.nfa.AddEpsilon(x1, exit)
		b.nfa.AddEpsilon(x2, exit)
		return entry, exit

	case Repeat:
		return b.compileRepeat(n)

	case Ref:
		panic(fmt.Sprintf("rx: unresolved fragment reference %q reached Compile; Expand must run first", n.Name))

	default:
		panic(fmt.Sprintf("rx: unhandled node type %T", node))
	}
}

func (b *Builder) compileRepeat(n Repeat) (entry, exit string) {
	if n.Max != -1 && n.Max < n.Min {
		panic(fmt.Sprintf("rx: invalid repeat bounds {%d,%d}", n.Min, n.Max))
	}

	// m mandatory copies, concatenated.
	var frag Node = Epsilon{}
	for i := 0; i < n.Min; i++ {
		if i == 0 {
			frag = n.Inner
		} else {
			frag = Concat{Left: frag, Right: n.Inner}
		}
	}

	if n.Max == -1 {
		// unbounded: mandatory copies followed by a Kleene star of Inner.
		starEntry, starExit := b.compileStar(n.Inner)
		if n.Min == 0 {
			return starEntry, starExit
		}
		e1, x1 := b.Compile(frag)
		b.nfa.AddEpsilon(x1, starEntry)
		return e1, starExit
	}

	// bounded: (Max - Min) further optional copies, each concatenated on.
	optional := n.Max - n.Min
	if optional == 0 {
		if n.Min == 0 {
			return b.Compile(Epsilon{})
		}
		return b.Compile(frag)
	}
	for i := 0; i < optional; i++ {
		opt := Union{Left: n.Inner, Right: Epsilon{}}
		if n.Min == 0 && i == 0 {
			frag = opt
		} else {
			frag = Concat{Left: frag, Right: opt}
		}
	}
	return b.Compile(frag)
}

// compileStar builds the classic Thompson Kleene-star fragment: a new
// entry/exit pair with an epsilon bypass, the inner fragment reachable
// from entry, and an epsilon loop-back from the inner fragment's exit to
// its own entry.
func (b *Builder) compileStar(inner Node) (entry, exit string) {
	entry, exit = b.fresh(), b.fresh()
	innerEntry, innerExit := b.Compile(inner)
	b.nfa.AddEpsilon(entry, innerEntry)
	b.nfa.AddEpsilon(entry, exit)
	b.nfa.AddEpsilon(innerExit, exit)
	b.nfa.AddEpsilon(innerExit, innerEntry)
	return entry, exit
}

// Compile is a convenience wrapper for compiling a single, standalone
// regex into its own NFA (used by this package's tests; full lexer
// construction shares one Builder across all terminals instead, see
// buildLexer in the module root's pipeline.go).
func Compile(node Node) (n *automaton.NFA, entry, exit string) {
	b := NewBuilder()
	entry, exit = b.Compile(node)
	n = b.NFA()
	n.Start = entry
	return n, entry, exit
}
