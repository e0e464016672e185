// Package lr implements LR item sets, the closure and goto operations,
// and the LR0/SLR/LR1/LALR1 table-building methods. Items are keyed by
// numeric production id and dot position, with symbols throughout
// addressed by their fagrammar uint32 ids and lookaheads held as a
// util.UintSet.
package lr

import (
	"fmt"
	"sort"

	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/util"
)

// Item is one LR(1) item: "Production, with the dot before Symbols[Dot],
// lookahead in Lookaheads". An LR(0) item is represented the same way
// with an empty Lookaheads set; callers that only need LR0 behavior
// simply never consult it.
type Item struct {
	Production uint32
	Dot        int
	Lookaheads util.UintSet
}

// Core returns the LR(0) core of the item (production + dot, ignoring
// lookahead) as a comparable key. LALR1 construction merges canonical
// LR(1) states whose item sets have identical Core keys.
func (it Item) Core() string {
	return fmt.Sprintf("%d.%d", it.Production, it.Dot)
}

func (it Item) String(g *fagrammar.Grammar) string {
	p := g.Productions[it.Production]
	s := g.NameOf(p.Head) + " ->"
	for i, e := range p.Symbols {
		if i == it.Dot {
			s += " ."
		}
		s += " " + elemName(g, e)
	}
	if it.Dot == len(p.Symbols) {
		s += " ."
	}
	return s
}

func elemName(g *fagrammar.Grammar, e fagrammar.Elem) string {
	switch e.Kind {
	case fagrammar.ElemAction:
		return fmt.Sprintf("@%s", g.Actions[e.ID].Name)
	case fagrammar.ElemVirtual:
		return fmt.Sprintf("%%%s", g.NameOf(e.ID))
	case fagrammar.ElemSemanticPromote:
		return "^"
	case fagrammar.ElemSemanticDrop:
		return "!"
	case fagrammar.ElemContextOpen:
		return ".{open}"
	case fagrammar.ElemContextClose:
		return ".{close}"
	default:
		return g.NameOf(e.ID)
	}
}

// AtDot returns the symbol immediately after the dot, and whether one
// exists (false means the item is a "reduce item", dot at the end).
func (it Item) AtDot(g *fagrammar.Grammar) (fagrammar.Elem, bool) {
	p := g.Productions[it.Production]
	if it.Dot >= len(p.Symbols) {
		return fagrammar.Elem{}, false
	}
	return p.Symbols[it.Dot], true
}

// Advance returns a copy of it with the dot moved one position forward.
func (it Item) Advance() Item {
	return Item{Production: it.Production, Dot: it.Dot + 1, Lookaheads: it.Lookaheads}
}

// Normalize advances it's dot past any run of non-consuming elements
// (virtuals, actions, semantic and context markers) immediately following
// it, stopping at the next terminal/variable or at true end-of-production.
// The automaton only ever shifts or gotos on a consuming symbol, so
// every item this package tracks is kept in this normal form:
// without it, an item whose dot sits before e.g. an action marker could
// never advance, since Goto is never invoked with an action as its key
// symbol, leaving the item permanently unreduced.
func Normalize(it Item, g *fagrammar.Grammar) Item {
	p := g.Productions[it.Production]
	dot := it.Dot
	for dot < len(p.Symbols) && !p.Symbols[dot].Consuming() {
		dot++
	}
	if dot == it.Dot {
		return it
	}
	return Item{Production: it.Production, Dot: dot, Lookaheads: it.Lookaheads}
}

// ItemSet is an unordered collection of items holding exactly one item
// per LR(0) core: adding an item whose core is already present unions the
// lookahead sets instead of storing a second entry. Keeping one entry per
// core is what makes reduce enumeration and conflict reporting see each
// (production, dot) pair exactly once per state, no matter how many
// closure passes contributed lookaheads to it.
type ItemSet struct {
	items map[string]Item
}

func NewItemSet() *ItemSet {
	return &ItemSet{items: map[string]Item{}}
}

// Add inserts it, merging lookaheads into any existing item with the same
// core. Returns whether the set changed (a new core, or an existing
// core's lookahead set grew).
func (s *ItemSet) Add(it Item) bool {
	k := it.Core()
	existing, exists := s.items[k]
	if !exists {
		s.items[k] = it
		return true
	}
	if it.Lookaheads == nil || it.Lookaheads.Empty() {
		return false
	}
	if existing.Lookaheads == nil {
		existing.Lookaheads = util.NewUintSet()
	}
	before := existing.Lookaheads.Len()
	existing.Lookaheads.AddAll(it.Lookaheads)
	s.items[k] = existing
	return existing.Lookaheads.Len() != before
}

func (s *ItemSet) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Production != out[j].Production {
			return out[i].Production < out[j].Production
		}
		return out[i].Dot < out[j].Dot
	})
	return out
}

func (s *ItemSet) Len() int { return len(s.items) }

// CoreKey returns a canonical string identifying the set's LR(0) core —
// the production+dot pairs only, sorted, ignoring lookahead. Two ItemSets
// with equal CoreKey are LALR1-merge candidates.
func (s *ItemSet) CoreKey() string {
	cores := make([]string, 0, len(s.items))
	seen := map[string]bool{}
	for _, it := range s.items {
		c := it.Core()
		if !seen[c] {
			seen[c] = true
			cores = append(cores, c)
		}
	}
	sort.Strings(cores)
	key := ""
	for _, c := range cores {
		key += c + "|"
	}
	return key
}
