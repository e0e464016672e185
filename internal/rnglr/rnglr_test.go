package rnglr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/lr"
)

// buildAmbiguousGrammar builds the small ambiguous grammar
// S' -> S, S -> A | B, A -> x, B -> x, which forces a
// reduce/reduce conflict on the lookahead that follows "x" — exactly the
// situation RNGLR augmentation is meant to preserve instead of collapse.
func buildAmbiguousGrammar(t *testing.T) (g *fagrammar.Grammar, augStart, startProd uint32) {
	t.Helper()
	assert := assert.New(t)
	g = fagrammar.New()

	x, err := g.AddTerminal("x", nil, 0, 0)
	assert.NoError(err)

	sv, _ := g.AddVariable("S")
	spv, _ := g.AddVariable("S'")
	av, _ := g.AddVariable("A")
	bv, _ := g.AddVariable("B")
	g.Start = spv

	sp, _ := g.AddRule(spv, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: sv}})
	_, _ = g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: av}})
	_, _ = g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: bv}})
	_, _ = g.AddRule(av, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: x}})
	_, _ = g.AddRule(bv, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: x}})

	return g, spv, sp
}

func TestAugmentPreservesBothReduceAlternatives(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildAmbiguousGrammar(t)

	var sink diag.Sink
	table := lr.BuildTable(g, lr.LR1, augStart, startProd, &sink)
	sawConflict := false
	for _, d := range sink.Items() {
		if d.Stage == diag.StageConflict {
			sawConflict = true
		}
	}
	assert.True(sawConflict, "ambiguous grammar should have produced a conflict diagnostic")

	rng := Augment(table, g, augStart, NullableProductions(g))
	assert.True(Conflicted(rng))

	// find the state reached after shifting 'x' and confirm both A->x and
	// B->x reduces are present on at least one lookahead cell.
	foundBoth := false
	for _, row := range rng.Action {
		for _, actions := range row {
			reduceCount := 0
			for _, a := range actions {
				if a.Type == lr.LRReduce {
					reduceCount++
				}
			}
			if reduceCount >= 2 {
				foundBoth = true
			}
		}
	}
	assert.True(foundBoth, "RNGLR augmentation must keep both reduce/reduce alternatives in one cell")
}

func TestNullableProductionsFindsNulledTail(t *testing.T) {
	assert := assert.New(t)
	g := fagrammar.New()
	a, _ := g.AddTerminal("a", nil, 0, 0)
	sv, _ := g.AddVariable("S")
	nv, _ := g.AddVariable("N")
	g.Start = sv

	pid, _ := g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: a}, {Kind: fagrammar.ElemVariable, ID: nv}})
	_, _ = g.AddRule(nv, nil)

	nullable := NullableProductions(g)
	split, ok := nullable[pid]
	assert.True(ok)
	assert.Equal(1, split)
}
