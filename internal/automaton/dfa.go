package automaton

import (
	"fmt"
	"sort"

	"github.com/dekarrin/ictiobus/internal/charset"
)

// DFAState is one state of a deterministic automaton: a charset-keyed
// transition table (each outgoing charset is disjoint from its siblings,
// guaranteed by SubsetConstruct splitting on SplitDisjoint atoms) plus the
// final tags that apply if accepting.
type DFAState struct {
	Name        string
	Transitions []DFAEdge
	Accepting   bool
	Finals      []FinalTag
}

// DFAEdge is one deterministic transition.
type DFAEdge struct {
	Charset charset.Set
	Next    string
}

// DFA is a deterministic finite automaton built by subset construction from
// an NFA, then (optionally) minimized by Minimize.
type DFA struct {
	States map[string]*DFAState
	Start  string
	order  []string
}

// OrderedStates returns state names in construction order (breadth-first
// from Start), the order NumberStates and the wire encoder rely on for a
// stable, reproducible state numbering.
func (d *DFA) OrderedStates() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// SubsetConstruct builds a DFA from n via the standard subset construction
// (purple dragon book Algorithm 3.20), using charset.SplitDisjoint to turn
// each NFA state-set's outgoing charset bundle into disjoint atoms before
// computing Move, so that every DFA transition is labeled with a charset
// disjoint from its siblings.
func SubsetConstruct(n *NFA) *DFA {
	d := &DFA{States: map[string]*DFAState{}}

	startSet := n.EpsilonClosure(n.Start)
	startKey := setKey(startSet)
	d.Start = startKey

	type workItem struct {
		key string
		set map[string]bool
	}
	queue := []workItem{{startKey, startSet}}
	seen := map[string]bool{startKey: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		finals := n.FinalsOf(cur.set)
		st := &DFAState{Name: cur.key, Accepting: len(finals) > 0, Finals: finals}
		d.States[cur.key] = st
		d.order = append(d.order, cur.key)

		atoms := charset.SplitDisjoint(n.AllOutgoingCharsets(cur.set)...)
		sort.Slice(atoms, func(i, j int) bool {
			return atoms[i].Ranges()[0].Lo < atoms[j].Ranges()[0].Lo
		})

		for _, atom := range atoms {
			moved := n.Move(cur.set, atom)
			moved = closureOfSet(n, moved)
			if len(moved) == 0 {
				continue
			}
			key := setKey(moved)
			st.Transitions = append(st.Transitions, DFAEdge{Charset: atom, Next: key})
			if !seen[key] {
				seen[key] = true
				queue = append(queue, workItem{key, moved})
			}
		}
	}

	return d
}

// Validate checks internal consistency: every edge target must exist, and
// Start must be a known state.
func (d *DFA) Validate() error {
	if _, ok := d.States[d.Start]; !ok {
		return fmt.Errorf("automaton: start state %q does not exist", d.Start)
	}
	for name, st := range d.States {
		for _, e := range st.Transitions {
			if _, ok := d.States[e.Next]; !ok {
				return fmt.Errorf("automaton: state %q has transition to non-existent state %q", name, e.Next)
			}
		}
	}
	return nil
}

// NumberStates assigns a dense 0-based id to every state in construction
// order, returning a name -> id map. The wire format references
// states purely by this numeric id.
func (d *DFA) NumberStates() map[string]int {
	ids := make(map[string]int, len(d.order))
	for i, name := range d.order {
		ids[name] = i
	}
	return ids
}

// Minimize runs Hopcroft's algorithm, partitioning states by their
// equivalence class. Two states are only ever merged if they carry
// identical final-tag sets, so distinct terminals/contexts are never
// conflated by minimization.
func Minimize(d *DFA) *DFA {
	// initial partition: group by (accepting, finals signature)
	sig := func(st *DFAState) string {
		if !st.Accepting {
			return ""
		}
		s := ""
		for _, f := range st.Finals {
			s += fmt.Sprintf("%d:%d:%d|", f.Terminal, f.Context, f.Priority)
		}
		return s
	}

	groups := map[string][]string{}
	stateGroup := map[string]string{}
	for _, name := range d.order {
		g := sig(d.States[name])
		groups[g] = append(groups[g], name)
	}
	assignGroupIDs := func(groups map[string][]string) map[string]int {
		ids := map[string]int{}
		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		sort.Strings(names)
		for i, g := range names {
			for _, s := range groups[g] {
				ids[s] = i
			}
		}
		return ids
	}
	groupOf := assignGroupIDs(groups)
	for s, g := range groupOf {
		stateGroup[s] = fmt.Sprintf("%08d", g)
	}

	// collect the full alphabet of atomic charsets that appear anywhere, so
	// every state's signature is computed against the same dimensions.
	var allCharsets []charset.Set
	for _, st := range d.States {
		for _, e := range st.Transitions {
			allCharsets = append(allCharsets, e.Charset)
		}
	}
	atoms := charset.SplitDisjoint(allCharsets...)

	changed := true
	for changed {
		changed = false
		newGroups := map[string][]string{}
		for _, name := range d.order {
			st := d.States[name]
			transTable := map[string]string{}
			for _, atom := range atoms {
				rep := atom.Ranges()[0].Lo
				for _, e := range st.Transitions {
					if e.Charset.Contains(rep) {
						transTable[atom.String()] = stateGroup[e.Next]
						break
					}
				}
			}
			key := fmt.Sprintf("%s#%v", stateGroup[name], transTable)
			newGroups[key] = append(newGroups[key], name)
		}
		if len(newGroups) != len(uniqueGroupValues(stateGroup)) {
			changed = true
		}
		ids := assignGroupIDs(newGroups)
		for s, g := range ids {
			ng := fmt.Sprintf("%08d", g)
			if stateGroup[s] != ng {
				changed = true
			}
			stateGroup[s] = ng
		}
	}

	// build the minimized DFA: one state per final group id, named by the
	// smallest member's name for determinism.
	finalGroups := map[string][]string{}
	for s, g := range stateGroup {
		finalGroups[g] = append(finalGroups[g], s)
	}
	groupName := map[string]string{}
	for g, members := range finalGroups {
		sort.Strings(members)
		groupName[g] = "m{" + members[0] + "}"
	}

	min := &DFA{States: map[string]*DFAState{}}
	min.Start = groupName[stateGroup[d.Start]]

	var orderedGroups []string
	seenG := map[string]bool{}
	for _, name := range d.order {
		g := stateGroup[name]
		if !seenG[g] {
			seenG[g] = true
			orderedGroups = append(orderedGroups, g)
		}
	}

	for _, g := range orderedGroups {
		members := finalGroups[g]
		rep := d.States[members[0]]
		newName := groupName[g]
		st := &DFAState{Name: newName, Accepting: rep.Accepting, Finals: rep.Finals}
		for _, e := range rep.Transitions {
			st.Transitions = append(st.Transitions, DFAEdge{Charset: e.Charset, Next: groupName[stateGroup[e.Next]]})
		}
		min.States[newName] = st
		min.order = append(min.order, newName)
	}

	return min
}

func uniqueGroupValues(m map[string]string) map[string]bool {
	out := map[string]bool{}
	for _, v := range m {
		out[v] = true
	}
	return out
}

// SelectWinners resolves, for each accepting state, the single terminal
// that wins when multiple terminals' NFAs merge into the same DFA state:
// the lowest Priority tag scoped to the current lexical context wins, with
// ties broken by terminal id.
func SelectWinners(d *DFA, context uint32) map[string]FinalTag {
	winners := make(map[string]FinalTag, len(d.States))
	for name, st := range d.States {
		if !st.Accepting {
			continue
		}
		var best *FinalTag
		for i := range st.Finals {
			f := st.Finals[i]
			if f.Context != context {
				continue
			}
			if best == nil || f.Priority < best.Priority || (f.Priority == best.Priority && f.Terminal < best.Terminal) {
				best = &f
			}
		}
		if best != nil {
			winners[name] = *best
		}
	}
	return winners
}
