package lr

import (
	"sort"

	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/util"
)

// Method selects which table-building algorithm BuildTable runs.
type Method int

const (
	LR0 Method = iota
	SLR
	LR1 // canonical LR(1), sometimes called CLR(1)
	LALR1
)

func (m Method) String() string {
	switch m {
	case LR0:
		return "LR(0)"
	case SLR:
		return "SLR(1)"
	case LR1:
		return "LR(1)"
	case LALR1:
		return "LALR(1)"
	default:
		return "unknown"
	}
}

// State is one state of the viable-prefix automaton: its item set and its
// outgoing transitions, keyed by symbol kind+id.
type State struct {
	ID    int
	Items *ItemSet
	Trans map[fagrammar.Elem]int
}

// Automaton is the canonical (or LALR-merged) collection of LR states.
type Automaton struct {
	States []*State
	Start  int
}

// symbolsOf returns every grammar symbol (terminals then variables,
// ascending id) that could appear after a dot — the full shift/goto
// alphabet.
func symbolsOf(g *fagrammar.Grammar) []fagrammar.Elem {
	var out []fagrammar.Elem
	for _, id := range g.SortedTerminalIDs() {
		out = append(out, fagrammar.Elem{Kind: fagrammar.ElemTerminal, ID: id})
	}
	for _, id := range g.SortedVariableIDs() {
		out = append(out, fagrammar.Elem{Kind: fagrammar.ElemVariable, ID: id})
	}
	return out
}

// BuildCanonicalCollection constructs the canonical LR(0) or LR(1)
// viable-prefix automaton for g's augmented start production. lr1
// selects LR(1) items with real lookaheads; when false, every item
// carries an empty lookahead set (LR0/SLR use the same automaton shape,
// differing only in which set decides a reduce action).
func BuildCanonicalCollection(g *fagrammar.Grammar, augmentedStart uint32, startProd uint32, first map[uint32]util.UintSet, lr1 bool) *Automaton {
	var startItems []Item
	if lr1 {
		la := util.NewUintSet()
		la.Add(fagrammar.EndOfInputID)
		startItems = []Item{Normalize(Item{Production: startProd, Dot: 0, Lookaheads: la}, g)}
	} else {
		startItems = []Item{Normalize(Item{Production: startProd, Dot: 0}, g)}
	}

	var startSet *ItemSet
	if lr1 {
		startSet = ClosureLR1(g, startItems, first)
	} else {
		startSet = ClosureLR0(g, startItems)
	}

	auto := &Automaton{}
	keyOf := func(s *ItemSet) string {
		if lr1 {
			return s.CoreKey() + "@" + lookaheadSignature(s)
		}
		return s.CoreKey()
	}

	stateIndex := map[string]int{}
	start := &State{ID: 0, Items: startSet, Trans: map[fagrammar.Elem]int{}}
	auto.States = append(auto.States, start)
	stateIndex[keyOf(startSet)] = 0
	auto.Start = 0

	symbols := symbolsOf(g)

	queue := []int{0}
	for len(queue) > 0 {
		curID := queue[0]
		queue = queue[1:]
		cur := auto.States[curID]

		for _, sym := range symbols {
			next := Goto(g, cur.Items, sym, first, lr1)
			if next.Len() == 0 {
				continue
			}
			k := keyOf(next)
			if id, exists := stateIndex[k]; exists {
				cur.Trans[sym] = id
				continue
			}
			newState := &State{ID: len(auto.States), Items: next, Trans: map[fagrammar.Elem]int{}}
			auto.States = append(auto.States, newState)
			stateIndex[k] = newState.ID
			cur.Trans[sym] = newState.ID
			queue = append(queue, newState.ID)
		}
	}

	return auto
}

func lookaheadSignature(s *ItemSet) string {
	var parts []string
	for _, it := range s.Items() {
		parts = append(parts, it.Core()+"#"+it.Lookaheads.String())
	}
	sort.Strings(parts)
	key := ""
	for _, p := range parts {
		key += p + "|"
	}
	return key
}

// MergeLALR1 merges a canonical LR(1) automaton's states by identical
// LR(0) core, producing the LALR(1) automaton. Building the full CLR(1)
// collection and merging afterwards is simpler than kernel lookahead
// propagation and yields the same table for any grammar this compiler
// accepts.
func MergeLALR1(clr1 *Automaton) *Automaton {
	coreGroup := map[string]int{}
	groupItems := map[int]*ItemSet{}
	stateToGroup := make([]int, len(clr1.States))

	nextGroup := 0
	for _, st := range clr1.States {
		core := st.Items.CoreKey()
		g, ok := coreGroup[core]
		if !ok {
			g = nextGroup
			nextGroup++
			coreGroup[core] = g
			groupItems[g] = NewItemSet()
		}
		stateToGroup[st.ID] = g
		for _, it := range st.Items.Items() {
			merged := it
			if merged.Lookaheads != nil {
				// the group's item must not share lookahead storage with the
				// canonical state it came from.
				merged.Lookaheads = merged.Lookaheads.Copy()
			}
			groupItems[g].Add(merged)
		}
	}

	merged := &Automaton{Start: stateToGroup[clr1.Start]}
	for g := 0; g < nextGroup; g++ {
		merged.States = append(merged.States, &State{ID: g, Items: groupItems[g], Trans: map[fagrammar.Elem]int{}})
	}
	for _, st := range clr1.States {
		ms := merged.States[stateToGroup[st.ID]]
		for sym, dst := range st.Trans {
			ms.Trans[sym] = stateToGroup[dst]
		}
	}
	return merged
}
