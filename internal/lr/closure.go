package lr

import (
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/util"
)

// ClosureLR0 computes the LR(0) closure of items: repeatedly add, for
// every item A -> α.Bβ with B a variable, every production B -> γ as a
// new item B -> .γ (purple dragon book Algorithm 4.53).
func ClosureLR0(g *fagrammar.Grammar, items []Item) *ItemSet {
	set := NewItemSet()
	for _, it := range items {
		set.Add(Normalize(Item{Production: it.Production, Dot: it.Dot}, g))
	}

	changed := true
	for changed {
		changed = false
		for _, it := range set.Items() {
			e, ok := it.AtDot(g)
			if !ok || e.Kind != fagrammar.ElemVariable {
				continue
			}
			for _, pid := range g.ByHead[e.ID] {
				if set.Add(Normalize(Item{Production: pid, Dot: 0}, g)) {
					changed = true
				}
			}
		}
	}
	return set
}

// ClosureLR1 computes the LR(1) closure of items (Algorithm 4.56): for
// every item [A -> α.Bβ, a] with B a variable, every production B -> γ is
// added as [B -> .γ, b] for every terminal b in FIRST(βa).
func ClosureLR1(g *fagrammar.Grammar, items []Item, first map[uint32]util.UintSet) *ItemSet {
	set := NewItemSet()
	for _, it := range items {
		set.Add(Normalize(it, g))
	}

	nullable := g.Nullable()
	changed := true
	for changed {
		changed = false
		for _, it := range set.Items() {
			e, ok := it.AtDot(g)
			if !ok || e.Kind != fagrammar.ElemVariable {
				continue
			}
			p := g.Productions[it.Production]
			rest := p.Symbols[it.Dot+1:]

			la := util.NewUintSet()
			g.FirstOfSequenceWithLookahead(rest, first, nullable, it.Lookaheads, la)

			for _, pid := range g.ByHead[e.ID] {
				newItem := Normalize(Item{Production: pid, Dot: 0, Lookaheads: la.Copy()}, g)
				if set.Add(newItem) {
					changed = true
				}
			}
		}
	}
	return set
}

// Goto computes goto(items, sym): advance the dot past sym in every item
// where sym is next, then take the closure.
func Goto(g *fagrammar.Grammar, set *ItemSet, sym fagrammar.Elem, first map[uint32]util.UintSet, lr1 bool) *ItemSet {
	var moved []Item
	for _, it := range set.Items() {
		e, ok := it.AtDot(g)
		if !ok || e.Kind != sym.Kind || e.ID != sym.ID {
			continue
		}
		adv := it.Advance()
		if adv.Lookaheads != nil {
			// the new state's closure may grow this set; it must not share
			// storage with the source state's item.
			adv.Lookaheads = adv.Lookaheads.Copy()
		}
		moved = append(moved, Normalize(adv, g))
	}
	if len(moved) == 0 {
		return NewItemSet()
	}
	if lr1 {
		return ClosureLR1(g, moved, first)
	}
	return ClosureLR0(g, moved)
}
