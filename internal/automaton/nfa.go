// Package automaton implements the lexer's finite automata: Thompson
// construction targets (NFA), subset construction into a DFA, and Hopcroft
// minimization. States are keyed by string name with an order counter for
// deterministic iteration; edges carry a charset.Set rather than a single
// character, because a lexer transition is a disjoint interval bundle,
// not one symbol.
package automaton

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/ictiobus/internal/charset"
	"github.com/dekarrin/ictiobus/internal/util"
)

// FinalTag marks an NFA accepting state with the terminal it accepts, the
// context it belongs to, and its declaration-order priority.
type FinalTag struct {
	Terminal uint32
	Context  uint32
	Priority int
}

// edge is one outgoing transition. Charset == nil means an epsilon move.
type edge struct {
	charset *charset.Set
	next    string
}

// NFAState is one state of an NFA: a set of outgoing edges, an
// acceptance flag, and (if accepting) the final tags that apply.
type NFAState struct {
	name        string
	order       uint64
	transitions []edge
	accepting   bool
	finals      []FinalTag
}

// NFA is a non-deterministic finite automaton whose edges are labeled with
// disjoint-or-not charset.Set values (or epsilon).
type NFA struct {
	states map[string]*NFAState
	Start  string
	order  uint64
}

// New returns an empty NFA ready to have states added to it.
func New() *NFA {
	return &NFA{states: map[string]*NFAState{}}
}

// AddState adds a new, uniquely-named state. Panics if the name is
// already in use.
func (n *NFA) AddState(name string, accepting bool) {
	if _, ok := n.states[name]; ok {
		panic(fmt.Sprintf("automaton: state %q already exists", name))
	}
	n.states[name] = &NFAState{name: name, accepting: accepting, order: n.order}
	n.order++
}

// SetFinals sets the final tags carried by an accepting state.
func (n *NFA) SetFinals(name string, tags []FinalTag) {
	s, ok := n.states[name]
	if !ok {
		panic(fmt.Sprintf("automaton: no such state %q", name))
	}
	s.finals = tags
	s.accepting = true
}

// AddEdge adds a transition from -> to on the given charset.
func (n *NFA) AddEdge(from string, cs charset.Set, to string) {
	n.addTransition(from, &cs, to)
}

// AddEpsilon adds an epsilon (unlabeled) transition from -> to.
func (n *NFA) AddEpsilon(from, to string) {
	n.addTransition(from, nil, to)
}

func (n *NFA) addTransition(from string, cs *charset.Set, to string) {
	f, ok := n.states[from]
	if !ok {
		panic(fmt.Sprintf("automaton: add transition from non-existent state %q", from))
	}
	if _, ok := n.states[to]; !ok {
		panic(fmt.Sprintf("automaton: add transition to non-existent state %q", to))
	}
	f.transitions = append(f.transitions, edge{charset: cs, next: to})
}

// States returns the names of all states in the NFA.
func (n *NFA) States() []string {
	return util.OrderedKeys(n.asStringMap())
}

func (n *NFA) asStringMap() map[string]struct{} {
	m := make(map[string]struct{}, len(n.states))
	for k := range n.states {
		m[k] = struct{}{}
	}
	return m
}

// EpsilonClosure returns the set of states reachable from s using zero or
// more epsilon moves.
func (n *NFA) EpsilonClosure(s string) map[string]bool {
	closure := map[string]bool{}
	stack := util.Stack[string]{}
	stack.Push(s)
	for !stack.Empty() {
		cur := stack.Pop()
		if closure[cur] {
			continue
		}
		closure[cur] = true
		st := n.states[cur]
		if st == nil {
			continue
		}
		for _, e := range st.transitions {
			if e.charset == nil {
				stack.Push(e.next)
			}
		}
	}
	return closure
}

func closureOfSet(n *NFA, set map[string]bool) map[string]bool {
	out := map[string]bool{}
	for s := range set {
		for k := range n.EpsilonClosure(s) {
			out[k] = true
		}
	}
	return out
}

// AllOutgoingCharsets collects the charsets labelling every non-epsilon
// edge leaving any state in set.
func (n *NFA) AllOutgoingCharsets(set map[string]bool) []charset.Set {
	var sets []charset.Set
	for s := range set {
		st := n.states[s]
		if st == nil {
			continue
		}
		for _, e := range st.transitions {
			if e.charset != nil {
				sets = append(sets, *e.charset)
			}
		}
	}
	return sets
}

// Move returns the set of states reachable from set by one transition
// whose charset contains atom's lowest code point (atom is expected to be
// one disjoint atom, so that code point stands for the whole atom).
func (n *NFA) Move(set map[string]bool, atom charset.Set) map[string]bool {
	out := map[string]bool{}
	rep := atom.Ranges()[0].Lo
	for s := range set {
		st := n.states[s]
		if st == nil {
			continue
		}
		for _, e := range st.transitions {
			if e.charset != nil && e.charset.Contains(rep) {
				out[e.next] = true
			}
		}
	}
	return out
}

// FinalsOf returns the union of final tags carried by every accepting
// state in set, ordered by ascending priority.
func (n *NFA) FinalsOf(set map[string]bool) []FinalTag {
	var tags []FinalTag
	for s := range set {
		st := n.states[s]
		if st != nil && st.accepting {
			tags = append(tags, st.finals...)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Priority < tags[j].Priority })
	return tags
}

func setKey(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Join splices other's states and edges into n and connects n's state
// `from` to other's state `otherEntry` with an epsilon edge; it returns
// nothing. Both automatons keep their original names, and a state name
// present in both keeps n's flags and gains other's edges; the caller is
// responsible for using fresh, non-colliding state names across the two.
func (n *NFA) Join(other *NFA, from, otherEntry string) {
	for name, st := range other.states {
		if _, exists := n.states[name]; !exists {
			n.states[name] = &NFAState{name: name, order: n.order, accepting: st.accepting, finals: st.finals}
			n.order++
		}
	}
	for name, st := range other.states {
		dst := n.states[name]
		dst.transitions = append(dst.transitions, st.transitions...)
	}
	n.AddEpsilon(from, otherEntry)
}
