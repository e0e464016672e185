package lr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
)

// buildParenGrammar builds the small unambiguous grammar:
//
//	S' -> S
//	S  -> ( S ) | a
//
// augmented by hand (BuildTable expects its caller, the loader/pipeline,
// to have already introduced S').
func buildParenGrammar(t *testing.T) (g *fagrammar.Grammar, augStart, startProd uint32) {
	t.Helper()
	assert := assert.New(t)
	g = fagrammar.New()

	lp, err := g.AddTerminal("(", nil, 0, 0)
	assert.NoError(err)
	rp, err := g.AddTerminal(")", nil, 0, 0)
	assert.NoError(err)
	a, err := g.AddTerminal("a", nil, 0, 0)
	assert.NoError(err)

	sv, err := g.AddVariable("S")
	assert.NoError(err)
	spv, err := g.AddVariable("S'")
	assert.NoError(err)
	g.Start = spv

	sp, err := g.AddRule(spv, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: sv}})
	assert.NoError(err)

	_, err = g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: lp}, {Kind: fagrammar.ElemVariable, ID: sv}, {Kind: fagrammar.ElemTerminal, ID: rp}})
	assert.NoError(err)
	_, err = g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: a}})
	assert.NoError(err)

	return g, spv, sp
}

// conflictCount counts the conflict diagnostics in s; conflicts are
// recorded as warnings, so HasErrors alone does not see them.
func conflictCount(s *diag.Sink) int {
	n := 0
	for _, d := range s.Items() {
		if d.Stage == diag.StageConflict {
			n++
		}
	}
	return n
}

func TestBuildTableLR1HasNoConflictsForUnambiguousGrammar(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildParenGrammar(t)

	var sink diag.Sink
	table := BuildTable(g, LR1, augStart, startProd, &sink)

	assert.Zero(conflictCount(&sink), "unambiguous grammar should not produce conflicts: %v", sink.Items())
	assert.NotNil(table)
}

func TestBuildTableLALR1MergesStatesButStaysConflictFree(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildParenGrammar(t)

	var lr1Sink, lalrSink diag.Sink
	lr1 := BuildTable(g, LR1, augStart, startProd, &lr1Sink)
	lalr := BuildTable(g, LALR1, augStart, startProd, &lalrSink)

	assert.Zero(conflictCount(&lalrSink))
	assert.LessOrEqual(len(lalr.States), len(lr1.States), "LALR1 merge must not produce more states than canonical LR1")
}

func TestBuildTableSLRAcceptsSameGrammar(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildParenGrammar(t)

	var sink diag.Sink
	table := BuildTable(g, SLR, augStart, startProd, &sink)

	assert.False(sink.HasErrors())
	foundAccept := false
	for _, row := range table.Action {
		for _, act := range row {
			if act.Type == LRAccept {
				foundAccept = true
			}
		}
	}
	assert.True(foundAccept)
}

func TestBuildTableContextMaskReflectsActionRowTerminals(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildParenGrammar(t)

	var sink diag.Sink
	table := BuildTable(g, LALR1, augStart, startProd, &sink)

	for _, st := range table.States {
		var want uint32
		for term := range table.Action[st.ID] {
			if term == fagrammar.EndOfInputID {
				continue
			}
			want |= 1 << g.Terminals[term].Context
		}
		assert.Equal(want, table.ContextMask[st.ID], "state %d", st.ID)
	}
}

func TestTableStringRendersAStateRowPerState(t *testing.T) {
	assert := assert.New(t)
	g, augStart, startProd := buildParenGrammar(t)

	var sink diag.Sink
	table := BuildTable(g, LALR1, augStart, startProd, &sink)

	out := table.String(g)
	assert.Contains(out, "A:(")
	assert.Contains(out, "G:S")
	for _, st := range table.States {
		assert.Contains(out, fmt.Sprintf("%d", st.ID))
	}
}
