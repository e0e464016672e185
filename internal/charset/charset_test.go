package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionMergesAdjacentAndOverlapping(t *testing.T) {
	assert := assert.New(t)

	a := RangeOf('a', 'm')
	b := RangeOf('n', 'z')
	u := Union(a, b)

	assert.Equal([]Range{{'a', 'z'}}, u.Ranges())
}

func TestIntersectPartialOverlap(t *testing.T) {
	assert := assert.New(t)

	a := RangeOf('a', 'm')
	b := RangeOf('f', 'z')

	i := Intersect(a, b)
	assert.Equal([]Range{{'f', 'm'}}, i.Ranges())
}

func TestDifferenceCarvesHole(t *testing.T) {
	assert := assert.New(t)

	a := RangeOf('a', 'z')
	b := RangeOf('m', 'n')

	d := Difference(a, b)
	assert.Equal([]Range{{'a', 'l'}, {'o', 'z'}}, d.Ranges())
}

func TestComplementExcludesSurrogates(t *testing.T) {
	assert := assert.New(t)

	c := Complement(Domain())
	assert.True(c.Empty())

	full := Complement(Set{})
	assert.False(full.Contains(SurrogateLo))
	assert.False(full.Contains(SurrogateHi))
	assert.True(full.Contains(SurrogateLo - 1))
	assert.True(full.Contains(SurrogateHi + 1))
}

func TestSplitDisjointProducesNonOverlappingAtoms(t *testing.T) {
	assert := assert.New(t)

	digits := RangeOf('0', '9')
	hex := RangeOf('a', 'f')
	letters := RangeOf('a', 'z')

	atoms := SplitDisjoint(digits, hex, letters)

	for i := 0; i < len(atoms); i++ {
		for j := i + 1; j < len(atoms); j++ {
			assert.True(Intersect(atoms[i], atoms[j]).Empty(), "atoms %v and %v overlap", atoms[i], atoms[j])
		}
	}

	// every atom must be wholly contained by at least one input set
	for _, atom := range atoms {
		r := atom.Ranges()[0]
		inDigits := digits.Contains(r.Lo) && digits.Contains(r.Hi)
		inHex := hex.Contains(r.Lo) && hex.Contains(r.Hi)
		inLetters := letters.Contains(r.Lo) && letters.Contains(r.Hi)
		assert.True(inDigits || inHex || inLetters)
	}
}

func TestFromEscapeRejectsSurrogates(t *testing.T) {
	assert := assert.New(t)

	_, err := FromEscape(0xD900)
	assert.Error(err)

	s, err := FromEscape('A')
	assert.NoError(err)
	assert.True(s.Contains('A'))
}

func TestFromUnicodeCategoryDigits(t *testing.T) {
	assert := assert.New(t)

	s, err := FromUnicodeCategory("Nd")
	assert.NoError(err)
	assert.True(s.Contains('0'))
	assert.False(s.Contains('a'))
}
