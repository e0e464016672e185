package fagrammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildKannanGrammar builds Deeba Kannan's epsilon-elimination worked
// example (TOC Lecture 25):
//
//	S -> A C A | A a
//	A -> B B | ε
//	B -> A | b C
//	C -> b
func buildKannanGrammar(t *testing.T) *Grammar {
	t.Helper()
	g := New()

	a, err := g.AddTerminal("a", nil, 0, 0)
	assert := assert.New(t)
	assert.NoError(err)
	b, err := g.AddTerminal("b", nil, 0, 0)
	assert.NoError(err)

	sv, err := g.AddVariable("S")
	assert.NoError(err)
	av, err := g.AddVariable("A")
	assert.NoError(err)
	bv, err := g.AddVariable("B")
	assert.NoError(err)
	cv, err := g.AddVariable("C")
	assert.NoError(err)
	g.Start = sv

	_, err = g.AddRule(sv, []Elem{{Kind: ElemVariable, ID: av}, {Kind: ElemVariable, ID: cv}, {Kind: ElemVariable, ID: av}})
	assert.NoError(err)
	_, err = g.AddRule(sv, []Elem{{Kind: ElemVariable, ID: av}, {Kind: ElemTerminal, ID: a}})
	assert.NoError(err)

	_, err = g.AddRule(av, []Elem{{Kind: ElemVariable, ID: bv}, {Kind: ElemVariable, ID: bv}})
	assert.NoError(err)
	_, err = g.AddRule(av, nil)
	assert.NoError(err)

	_, err = g.AddRule(bv, []Elem{{Kind: ElemVariable, ID: av}})
	assert.NoError(err)
	_, err = g.AddRule(bv, []Elem{{Kind: ElemTerminal, ID: b}, {Kind: ElemVariable, ID: cv}})
	assert.NoError(err)

	_, err = g.AddRule(cv, []Elem{{Kind: ElemTerminal, ID: b}})
	assert.NoError(err)

	return g
}

func TestValidateAcceptsWellFormedGrammar(t *testing.T) {
	g := buildKannanGrammar(t)
	assert.NoError(t, g.Validate())
}

func TestNullableFindsAAndB(t *testing.T) {
	assert := assert.New(t)
	g := buildKannanGrammar(t)
	nullable := g.Nullable()

	assert.True(nullable.Has(g.byName["A"]))
	assert.True(nullable.Has(g.byName["B"]))
	assert.False(nullable.Has(g.byName["C"]))
	assert.False(nullable.Has(g.byName["S"]))
}

func TestRemoveEpsilonsDropsEveryBareEpsilonProduction(t *testing.T) {
	assert := assert.New(t)
	g := buildKannanGrammar(t)
	out := g.RemoveEpsilons()

	assert.NoError(out.Validate())
	for _, p := range out.Productions {
		assert.NotEmpty(p.Symbols, "epsilon-eliminated grammar must have no bare-epsilon productions (except a nullable start symbol)")
	}
}

func TestRemoveEpsilonsPreservesTerminalSet(t *testing.T) {
	assert := assert.New(t)
	g := buildKannanGrammar(t)
	out := g.RemoveEpsilons()

	assert.Equal(len(g.Terminals), len(out.Terminals))
}

func TestDuplicateTerminalNameRejected(t *testing.T) {
	assert := assert.New(t)
	g := New()
	_, err := g.AddTerminal("x", nil, 0, 0)
	assert.NoError(err)
	_, err = g.AddTerminal("x", nil, 0, 0)
	assert.Error(err)
}

func TestInheritSkipsSymbolsAlreadyDeclaredInDerived(t *testing.T) {
	assert := assert.New(t)

	base := New()
	bt, _ := base.AddTerminal("num", nil, 0, 0)
	bv, _ := base.AddVariable("Expr")
	base.Start = bv
	_, _ = base.AddRule(bv, []Elem{{Kind: ElemTerminal, ID: bt}})

	derived := New()
	_, err := derived.AddTerminal("num", nil, 5, 1)
	assert.NoError(err)

	err = derived.Inherit(base)
	assert.NoError(err)

	assert.Equal(1, len(derived.Terminals))
	for _, t := range derived.Terminals {
		assert.Equal(5, t.Priority, "derived grammar's own terminal declaration must win over the base's")
	}
	assert.Equal(1, len(derived.Variables))
}
