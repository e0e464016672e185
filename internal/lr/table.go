package lr

import (
	"fmt"
	"sort"

	"github.com/dekarrin/rosed"

	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
)

// LRActionType is the kind of one table cell.
type LRActionType int

const (
	LRError LRActionType = iota
	LRShift
	LRReduce
	LRAccept
)

// LRAction is one parse-table cell's instruction.
type LRAction struct {
	Type LRActionType

	// Production is used when Type is LRReduce: the production to reduce.
	Production uint32

	// State is the state to shift to or goto, used when Type is LRShift
	// (or when this came from the Goto table).
	State int
}

func (a LRAction) String() string {
	switch a.Type {
	case LRShift:
		return fmt.Sprintf("shift %d", a.State)
	case LRReduce:
		return fmt.Sprintf("reduce %d", a.Production)
	case LRAccept:
		return "accept"
	default:
		return "error"
	}
}

// Table is a complete LR parse table: per-state action entries keyed by
// terminal id, and goto entries keyed by variable id.
type Table struct {
	Method Method
	Start  int
	Action map[int]map[uint32]LRAction
	Goto   map[int]map[uint32]int
	States []*State // retained for diagnostics/inspection

	// ContextMask holds, per state id, the bitmask of lexer context ids
	// (bit N set means context N) legal to match in that state: the
	// union of every action-row terminal's declared context. The lexer DFA itself is context-free; this is
	// the per-state table C7 exposes so token emission can pick the
	// highest-priority accepting terminal whose context is legal here.
	ContextMask map[int]uint32
}

// contextMaskFor computes the set of lexer contexts reachable from a
// state's action row: every terminal this state has a shift or reduce
// entry for contributes its declared Context bit. $ (end of input) has
// no context and is skipped.
func contextMaskFor(g *fagrammar.Grammar, row map[uint32]LRAction) uint32 {
	var mask uint32
	for term := range row {
		if term == fagrammar.EndOfInputID {
			continue
		}
		if term2, ok := g.Terminals[term]; ok {
			mask |= 1 << term2.Context
		}
	}
	return mask
}

// BuildTable builds an LR parse table for g using method, accumulating
// conflict and internal diagnostics into sink instead of returning an
// error outright: diagnostics accumulate, they are not thrown.
// augmentedStart is the synthetic S' variable id and startProd is its
// sole production S' -> S.
func BuildTable(g *fagrammar.Grammar, method Method, augmentedStart uint32, startProd uint32, sink *diag.Sink) *Table {
	first := g.First()
	follow := g.Follow(first)

	lr1 := method == LR1 || method == LALR1
	auto := BuildCanonicalCollection(g, augmentedStart, startProd, first, lr1)
	if method == LALR1 {
		auto = MergeLALR1(auto)
	}

	t := &Table{
		Method:      method,
		Start:       auto.Start,
		Action:      map[int]map[uint32]LRAction{},
		Goto:        map[int]map[uint32]int{},
		States:      auto.States,
		ContextMask: map[int]uint32{},
	}

	for _, st := range auto.States {
		t.Action[st.ID] = map[uint32]LRAction{}
		t.Goto[st.ID] = map[uint32]int{}

		for sym, dst := range st.Trans {
			switch sym.Kind {
			case fagrammar.ElemTerminal:
				setAction(t, sink, g, st.ID, sym.ID, LRAction{Type: LRShift, State: dst})
			case fagrammar.ElemVariable:
				t.Goto[st.ID][sym.ID] = dst
			}
		}

		for _, it := range st.Items.Items() {
			if _, hasNext := it.AtDot(g); hasNext {
				continue
			}
			p := g.Productions[it.Production]
			if p.Head == augmentedStart {
				setAction(t, sink, g, st.ID, fagrammar.EndOfInputID, LRAction{Type: LRAccept})
				continue
			}

			var lookaheads []uint32
			switch method {
			case LR0:
				for _, tid := range g.SortedTerminalIDs() {
					lookaheads = append(lookaheads, tid)
				}
				lookaheads = append(lookaheads, fagrammar.EndOfInputID)
			case SLR:
				lookaheads = follow[p.Head].Elements()
			default: // LR1, LALR1
				lookaheads = it.Lookaheads.Elements()
			}

			for _, term := range lookaheads {
				setAction(t, sink, g, st.ID, term, LRAction{Type: LRReduce, Production: it.Production})
			}
		}
	}

	for _, st := range auto.States {
		t.ContextMask[st.ID] = contextMaskFor(g, t.Action[st.ID])
	}

	return t
}

// setAction installs act into state/term, recording a ShiftReduceConflict
// or ReduceReduceConflict diagnostic instead of silently overwriting when
// a cell is already occupied. Precedence when a conflict is recorded
// anyway (so the table stays usable): accept beats shift beats reduce.
func setAction(t *Table, sink *diag.Sink, g *fagrammar.Grammar, state int, term uint32, act LRAction) {
	existing, ok := t.Action[state][term]
	if !ok {
		t.Action[state][term] = act
		return
	}
	if existing == act {
		return
	}

	kind := "ReduceReduceConflict"
	if existing.Type == LRShift || act.Type == LRShift {
		kind = "ShiftReduceConflict"
	}
	if sink != nil {
		sink.Add(diag.Diagnostic{
			Stage:    diag.StageConflict,
			Severity: diag.SevWarning,
			Kind:     kind,
			Message:  fmt.Sprintf("state %d: conflicting actions on %q: %s vs %s", state, g.NameOf(term), existing.String(), act.String()),
			StateID:  state,
			TermID:   term,
		})
	}

	// accept > shift > reduce
	rank := func(a LRAction) int {
		switch a.Type {
		case LRAccept:
			return 3
		case LRShift:
			return 2
		default:
			return 1
		}
	}
	if rank(act) > rank(existing) {
		t.Action[state][term] = act
	}
}

// String renders t as a column-aligned action/goto table, one row per
// state and one column per terminal then variable: the start state listed
// first, "A:" columns for the action table, a "|" separator, then "G:"
// columns for goto. Used by himecc's --dump-table flag so a human can
// read a built table without decoding the wire format.
func (t *Table) String(g *fagrammar.Grammar) string {
	stateIDs := make([]int, len(t.States))
	for i, st := range t.States {
		stateIDs[i] = st.ID
	}
	sort.Ints(stateIDs)
	for i := range stateIDs {
		if stateIDs[i] == t.Start {
			stateIDs[0], stateIDs[i] = stateIDs[i], stateIDs[0]
			break
		}
	}

	terms := append([]uint32{}, g.SortedTerminalIDs()...)
	terms = append(terms, fagrammar.EndOfInputID)
	vars := g.SortedVariableIDs()

	headers := []string{"S", "|"}
	for _, term := range terms {
		headers = append(headers, fmt.Sprintf("A:%s", g.NameOf(term)))
	}
	headers = append(headers, "|")
	for _, v := range vars {
		headers = append(headers, fmt.Sprintf("G:%s", g.NameOf(v)))
	}
	data := [][]string{headers}

	for _, id := range stateIDs {
		row := []string{fmt.Sprintf("%d", id), "|"}
		for _, term := range terms {
			cell := ""
			if act, ok := t.Action[id][term]; ok {
				cell = act.String()
			}
			row = append(row, cell)
		}
		row = append(row, "|")
		for _, v := range vars {
			cell := ""
			if dst, ok := t.Goto[id][v]; ok {
				cell = fmt.Sprintf("%d", dst)
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}

	return rosed.Edit("").
		InsertTableOpts(0, data, 10, rosed.Options{
			TableHeaders:             true,
			NoTrailingLineSeparators: true,
		}).
		String()
}
