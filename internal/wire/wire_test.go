package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dekarrin/ictiobus/internal/automaton"
	"github.com/dekarrin/ictiobus/internal/charset"
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/lr"
)

func TestWriteParserEncodesContextMaskPerState(t *testing.T) {
	assert := assert.New(t)

	g := fagrammar.New()
	a, err := g.AddTerminal("a", nil, 0, 0)
	assert.NoError(err)
	sv, err := g.AddVariable("S")
	assert.NoError(err)
	spv, err := g.AddVariable("S'")
	assert.NoError(err)
	g.Start = spv
	sp, err := g.AddRule(spv, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: sv}})
	assert.NoError(err)
	_, err = g.AddRule(sv, []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: a}})
	assert.NoError(err)

	var sink diag.Sink
	table := lr.BuildTable(g, lr.LALR1, spv, sp, &sink)

	var buf bytes.Buffer
	assert.NoError(WriteParser(&buf, g, table))

	data := buf.Bytes()
	assert.Equal(MagicParser, binary.LittleEndian.Uint32(data[0:4]))
	// header: magic(4) + version(2) + method(1) + nstates(4) + start(4) = 15
	maskOffset := 15
	mask := binary.LittleEndian.Uint32(data[maskOffset : maskOffset+4])
	assert.Equal(table.ContextMask[table.States[0].ID], mask)
}

func TestEncodeDecodeElemRoundTrips(t *testing.T) {
	assert := assert.New(t)

	e := fagrammar.Elem{Kind: fagrammar.ElemVariable, ID: 12345}
	encoded := EncodeElem(e)
	kind, id := DecodeElem(encoded)

	assert.Equal(ElemKindVariable, kind)
	assert.Equal(uint32(12345), id)
}

func TestWriteLexerStartsWithMagicAndVersion(t *testing.T) {
	assert := assert.New(t)

	n := automaton.New()
	n.AddState("s0", false)
	n.AddState("s1", true)
	n.Start = "s0"
	n.AddEdge("s0", charset.Single('a'), "s1")
	n.SetFinals("s1", []automaton.FinalTag{{Terminal: 3, Context: 0, Priority: 0}})
	d := automaton.SubsetConstruct(n)

	g := fagrammar.New()

	var buf bytes.Buffer
	err := WriteLexer(&buf, g, d, []uint32{0})
	assert.NoError(err)

	data := buf.Bytes()
	assert.GreaterOrEqual(len(data), 6)
	assert.Equal(MagicLexer, binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(Version, binary.LittleEndian.Uint16(data[4:6]))
}

func TestDigestIsDeterministic(t *testing.T) {
	assert := assert.New(t)
	a := Digest([]byte("hello"))
	b := Digest([]byte("hello"))
	c := Digest([]byte("world"))

	assert.Equal(a, b)
	assert.NotEqual(a, c)
}

func TestReadLexerSummaryWalksFinalsAndTransitions(t *testing.T) {
	assert := assert.New(t)

	n := automaton.New()
	n.AddState("s0", false)
	n.AddState("s1", true)
	n.Start = "s0"
	n.AddEdge("s0", charset.RangeOf('a', 'z'), "s1")
	n.SetFinals("s1", []automaton.FinalTag{
		{Terminal: 3, Context: 0, Priority: 0},
		{Terminal: 4, Context: 1, Priority: 1},
	})
	d := automaton.SubsetConstruct(n)

	g := fagrammar.New()

	var buf bytes.Buffer
	assert.NoError(WriteLexer(&buf, g, d, []uint32{0, 1}))

	sum, err := ReadLexerSummary(&buf)
	assert.NoError(err)
	assert.Equal(uint32(2), sum.StateCount)
	assert.Equal(uint32(2), sum.ContextCount)
}
