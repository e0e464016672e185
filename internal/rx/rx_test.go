package rx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/automaton"
	"github.com/dekarrin/ictiobus/internal/charset"
)

func acceptTag(n *automaton.NFA, exit string) *automaton.NFA {
	n.SetFinals(exit, []automaton.FinalTag{{Terminal: 1, Context: 0, Priority: 0}})
	return n
}

func matches(t *testing.T, node Node, input string) bool {
	t.Helper()
	n, _, exit := Compile(node)
	acceptTag(n, exit)
	d := automaton.SubsetConstruct(n)

	cur := d.Start
	for _, r := range input {
		st := d.States[cur]
		next := ""
		for _, e := range st.Transitions {
			if e.Charset.Contains(r) {
				next = e.Next
				break
			}
		}
		if next == "" {
			return false
		}
		cur = next
	}
	return d.States[cur].Accepting
}

func TestConcatMatchesExactSequence(t *testing.T) {
	assert := assert.New(t)
	node := Seq(Char{charset.Single('a')}, Char{charset.Single('b')}, Char{charset.Single('c')})

	assert.True(matches(t, node, "abc"))
	assert.False(matches(t, node, "ab"))
	assert.False(matches(t, node, "abcd"))
}

func TestUnionMatchesEitherBranch(t *testing.T) {
	assert := assert.New(t)
	node := Alt(Char{charset.Single('a')}, Char{charset.Single('b')})

	assert.True(matches(t, node, "a"))
	assert.True(matches(t, node, "b"))
	assert.False(matches(t, node, "c"))
}

func TestStarMatchesZeroOrMore(t *testing.T) {
	assert := assert.New(t)
	node := Star(Char{charset.Single('a')})

	assert.True(matches(t, node, ""))
	assert.True(matches(t, node, "a"))
	assert.True(matches(t, node, "aaaaa"))
	assert.False(matches(t, node, "aaab"))
}

func TestPlusRequiresAtLeastOne(t *testing.T) {
	assert := assert.New(t)
	node := Plus(Char{charset.Single('x')})

	assert.False(matches(t, node, ""))
	assert.True(matches(t, node, "x"))
	assert.True(matches(t, node, "xxx"))
}

func TestOptMatchesZeroOrOne(t *testing.T) {
	assert := assert.New(t)
	node := Seq(Opt(Char{charset.Single('-')}), Char{charset.Single('1')})

	assert.True(matches(t, node, "1"))
	assert.True(matches(t, node, "-1"))
	assert.False(matches(t, node, "--1"))
}

func TestBoundedRepeatRespectsMinAndMax(t *testing.T) {
	assert := assert.New(t)
	node := Repeat{Inner: Char{charset.Single('a')}, Min: 2, Max: 4}

	assert.False(matches(t, node, "a"))
	assert.True(matches(t, node, "aa"))
	assert.True(matches(t, node, "aaa"))
	assert.True(matches(t, node, "aaaa"))
	assert.False(matches(t, node, "aaaaa"))
}

func TestRepeatZeroToOneIsEquivalentToOpt(t *testing.T) {
	assert := assert.New(t)
	node := Repeat{Inner: Char{charset.Single('a')}, Min: 0, Max: 1}

	assert.True(matches(t, node, ""))
	assert.True(matches(t, node, "a"))
	assert.False(matches(t, node, "aa"))
}

func TestExpandInlinesReferencesTransitively(t *testing.T) {
	assert := assert.New(t)

	frags := map[string]Node{
		"HEX":   Alt(Ref{Name: "DIGIT"}, Char{charset.RangeOf('a', 'f')}),
		"DIGIT": Char{charset.RangeOf('0', '9')},
	}
	resolve := func(name string) (Node, bool) {
		n, ok := frags[name]
		return n, ok
	}

	expanded, err := Expand(Plus(Ref{Name: "HEX"}), resolve)
	assert.NoError(err)
	assert.True(matches(t, expanded, "0a9f"))
	assert.False(matches(t, expanded, "0g"))
}

func TestExpandReportsUndeclaredReference(t *testing.T) {
	assert := assert.New(t)

	_, err := Expand(Ref{Name: "MISSING"}, func(string) (Node, bool) { return nil, false })
	assert.Error(err)

	var unresolved *UnresolvedRefError
	assert.ErrorAs(err, &unresolved)
	assert.Equal("MISSING", unresolved.Name)
}

func TestExpandRejectsCyclicReferences(t *testing.T) {
	assert := assert.New(t)

	frags := map[string]Node{
		"A": Ref{Name: "B"},
		"B": Ref{Name: "A"},
	}
	_, err := Expand(Ref{Name: "A"}, func(name string) (Node, bool) {
		n, ok := frags[name]
		return n, ok
	})
	assert.Error(err)

	var unresolved *UnresolvedRefError
	assert.False(errors.As(err, &unresolved), "a cycle is a depth error, not an unresolved name")
}
