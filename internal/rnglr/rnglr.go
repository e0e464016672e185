// Package rnglr augments a (possibly conflicted) LR table into a
// Right-Nulled GLR table that keeps every action a conflict would
// otherwise have discarded, so a downstream GLR driver can explore them
// all instead of the single table collapsing ambiguity away at build
// time.
//
// A GLR driver needs more than an ordinary LR table can hold: one action
// per (state, terminal) cell cannot represent a shift/reduce or
// reduce/reduce alternative the driver is supposed to fork on. RNGTable
// pushes that requirement into the table itself — a cell becomes a list
// of actions instead of one — and reduce actions additionally carry the
// right-nulled metadata (split point, nullable tail) the driver needs to
// reduce productions whose suffix derives the empty string without
// rescanning.
package rnglr

import (
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/lr"
)

// NullableMarker flags a production as "right-nulled": some suffix of its
// right-hand side was able to derive the empty string, so a reduction
// using it may need to consult a "virtual" zero-width node instead of a
// real stack entry for those trailing symbols: the RNGLR extension to
// GLR lets a single reduce action pop fewer real stack nodes than the
// production's length when its tail is nullable.
type NullableMarker struct {
	Production uint32
	// SplitPoint is the right-hand-side index at which real stack nodes
	// stop and the (zero-width) nulled tail begins.
	SplitPoint int
}

// RNGAction is one action contributed to a (state, terminal) cell. Unlike
// lr.LRAction, a cell may hold several of these at once.
type RNGAction struct {
	lr.LRAction
	// Nullable is set when this reduce action's production has a nulled
	// tail (see NullableMarker); SplitPoint mirrors NullableMarker's.
	Nullable   bool
	SplitPoint int
}

// RNGTable is a GLR-ready parse table: every cell is a slice of actions
// rather than a single winner, and reduce actions additionally carry
// their nullable/split-point metadata.
type RNGTable struct {
	Start       int
	Action      map[int]map[uint32][]RNGAction
	Goto        map[int]map[uint32]int
	States      []*lr.State
	ContextMask map[int]uint32
}

// Augment rebuilds an RNGTable from an already-built (and possibly
// conflicted) LR table: canonical LR(1) or LALR(1), or an LR(0)-style
// table whose items carry no lookaheads. Rather than starting from t's
// collapsed Action map (which has already discarded every conflict
// loser), it re-derives per-state reduce items directly from the state
// set, so all shift/reduce and reduce/reduce alternatives survive into
// the augmented table: RNGLR augmentation must not lose any action a
// plain LR build would have treated as a conflict.
func Augment(t *lr.Table, g *fagrammar.Grammar, augmentedStart uint32, nullableProds map[uint32]int) *RNGTable {
	out := &RNGTable{
		Start:       t.Start,
		Action:      map[int]map[uint32][]RNGAction{},
		Goto:        t.Goto,
		States:      t.States,
		ContextMask: t.ContextMask,
	}

	for _, st := range t.States {
		out.Action[st.ID] = map[uint32][]RNGAction{}

		for sym, dst := range st.Trans {
			if sym.Kind != fagrammar.ElemTerminal {
				continue
			}
			out.Action[st.ID][sym.ID] = append(out.Action[st.ID][sym.ID], RNGAction{
				LRAction: lr.LRAction{Type: lr.LRShift, State: dst},
			})
		}

		for _, it := range st.Items.Items() {
			if _, hasNext := it.AtDot(g); hasNext {
				continue
			}
			p := g.Productions[it.Production]

			if p.Head == augmentedStart {
				out.Action[st.ID][fagrammar.EndOfInputID] = append(out.Action[st.ID][fagrammar.EndOfInputID], RNGAction{
					LRAction: lr.LRAction{Type: lr.LRAccept},
				})
				continue
			}

			reduceAction := RNGAction{LRAction: lr.LRAction{Type: lr.LRReduce, Production: it.Production}}
			if split, ok := nullableProds[it.Production]; ok {
				reduceAction.Nullable = true
				reduceAction.SplitPoint = split
			}

			lookaheads := it.Lookaheads.Elements()
			if len(lookaheads) == 0 {
				// LR0-derived table with no lookahead info: reduce is
				// valid on every terminal plus end-of-input.
				for _, tid := range g.SortedTerminalIDs() {
					lookaheads = append(lookaheads, tid)
				}
				lookaheads = append(lookaheads, fagrammar.EndOfInputID)
			}

			for _, term := range lookaheads {
				isDup := false
				for _, existing := range out.Action[st.ID][term] {
					if existing.Type == lr.LRReduce && existing.Production == reduceAction.Production {
						isDup = true
						break
					}
				}
				if !isDup {
					out.Action[st.ID][term] = append(out.Action[st.ID][term], reduceAction)
				}
			}
		}
	}

	return out
}

// NullableProductions scans g for productions whose right-hand side has a
// nullable suffix and returns, for each, the split index RNGLR needs when
// reducing it (the index of the first symbol in the nullable tail). A
// production with no nullable suffix is omitted.
func NullableProductions(g *fagrammar.Grammar) map[uint32]int {
	nullable := g.Nullable()
	out := map[uint32]int{}

	for pid, p := range g.Productions {
		split := len(p.Symbols)
		for i := len(p.Symbols) - 1; i >= 0; i-- {
			e := p.Symbols[i]
			if e.Kind == fagrammar.ElemVariable && nullable.Has(e.ID) {
				split = i
				continue
			}
			break
		}
		if split < len(p.Symbols) {
			out[pid] = split
		}
	}
	return out
}

// Conflicted reports whether any (state, terminal) cell in t holds more
// than one action — i.e. whether building the RNGLR augmentation was
// actually necessary, versus the grammar already being deterministic: a
// caller may skip RNGLR entirely when the plain table has no conflicts.
func Conflicted(t *RNGTable) bool {
	for _, row := range t.Action {
		for _, actions := range row {
			if len(actions) > 1 {
				return true
			}
		}
	}
	return false
}
