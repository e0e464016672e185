package fagrammar

import "github.com/dekarrin/ictiobus/internal/util"

// First computes the FIRST set of every variable: the set of terminal ids
// (plus EpsilonID if the variable is nullable) that can begin a string
// derived from it. Standard worklist fixpoint (purple dragon book
// Algorithm 4.28).
func (g *Grammar) First() map[uint32]util.UintSet {
	first := make(map[uint32]util.UintSet, len(g.Variables))
	for vid := range g.Variables {
		first[vid] = util.NewUintSet()
	}
	nullable := g.Nullable()

	changed := true
	for changed {
		changed = false
		for _, vid := range g.SortedVariableIDs() {
			for _, pid := range g.ByHead[vid] {
				before := first[vid].Len()
				g.firstOfSequence(g.Productions[pid].Symbols, first, nullable, first[vid])
				if first[vid].Len() != before {
					changed = true
				}
			}
		}
	}
	return first
}

// firstOfSequence adds to acc the FIRST set of a right-hand-side symbol
// sequence (skipping action markers), stopping as soon as a non-nullable
// symbol is seen.
func (g *Grammar) firstOfSequence(symbols []Elem, first map[uint32]util.UintSet, nullable util.UintSet, acc util.UintSet) {
	allNullableSoFar := true
	for _, e := range symbols {
		switch e.Kind {
		case ElemTerminal:
			acc.Add(e.ID)
			allNullableSoFar = false
		case ElemVariable:
			for _, t := range first[e.ID].Elements() {
				if t != EpsilonID {
					acc.Add(t)
				}
			}
			if !nullable.Has(e.ID) {
				allNullableSoFar = false
			}
		default:
			continue
		}
		if !allNullableSoFar {
			return
		}
	}
	if allNullableSoFar {
		acc.Add(EpsilonID)
	}
}

// Follow computes the FOLLOW set of every variable: the set of terminal
// ids (plus EndOfInputID for the start symbol) that can immediately
// follow it in some derivation (Algorithm 4.29).
func (g *Grammar) Follow(first map[uint32]util.UintSet) map[uint32]util.UintSet {
	follow := make(map[uint32]util.UintSet, len(g.Variables))
	for vid := range g.Variables {
		follow[vid] = util.NewUintSet()
	}
	follow[g.Start].Add(EndOfInputID)
	nullable := g.Nullable()

	changed := true
	for changed {
		changed = false
		for _, pid := range g.sortedProductionIDs() {
			p := g.Productions[pid]
			for i, e := range p.Symbols {
				if e.Kind != ElemVariable {
					continue
				}
				before := follow[e.ID].Len()

				rest := p.Symbols[i+1:]
				g.firstOfSequence(rest, first, nullable, follow[e.ID])
				// if rest is nullable (including empty), head's FOLLOW flows through
				if follow[e.ID].Has(EpsilonID) {
					follow[e.ID].Remove(EpsilonID)
					for _, t := range follow[p.Head].Elements() {
						follow[e.ID].Add(t)
					}
				}
				if follow[e.ID].Len() != before {
					changed = true
				}
			}
		}
	}
	return follow
}

// FirstOfSequenceWithLookahead computes FIRST(symbols · lookahead): the
// same left-to-right scan as firstOfSequence, except that when every
// symbol in the sequence is nullable (including the empty sequence), the
// caller-supplied lookahead set is unioned into acc instead of EpsilonID.
// This is exactly the "FIRST(βa)" term LR(1) closure needs for each new
// item's lookahead set (purple dragon book Algorithm 4.56).
func (g *Grammar) FirstOfSequenceWithLookahead(symbols []Elem, first map[uint32]util.UintSet, nullable util.UintSet, lookahead util.UintSet, acc util.UintSet) {
	allNullableSoFar := true
	for _, e := range symbols {
		switch e.Kind {
		case ElemTerminal:
			acc.Add(e.ID)
			allNullableSoFar = false
		case ElemVariable:
			for _, t := range first[e.ID].Elements() {
				if t != EpsilonID {
					acc.Add(t)
				}
			}
			if !nullable.Has(e.ID) {
				allNullableSoFar = false
			}
		default:
			continue
		}
		if !allNullableSoFar {
			return
		}
	}
	if allNullableSoFar {
		for _, t := range lookahead.Elements() {
			acc.Add(t)
		}
	}
}

func (g *Grammar) sortedProductionIDs() []uint32 {
	ids := make([]uint32, 0, len(g.Productions))
	for id := range g.Productions {
		ids = append(ids, id)
	}
	// simple insertion sort is fine; production counts are small per grammar
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
