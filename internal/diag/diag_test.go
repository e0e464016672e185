package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemsSortsByStageThenStateThenTerminal(t *testing.T) {
	assert := assert.New(t)

	var s Sink
	s.Add(Diagnostic{Stage: StageConflict, Kind: "ShiftReduceConflict", StateID: 7, TermID: 4})
	s.Add(Diagnostic{Stage: StageParser, Kind: "UnknownMethod"})
	s.Add(Diagnostic{Stage: StageConflict, Kind: "ReduceReduceConflict", StateID: 2, TermID: 9})
	s.Add(Diagnostic{Stage: StageInherit, Kind: "InheritConflict"})
	s.Add(Diagnostic{Stage: StageConflict, Kind: "ShiftReduceConflict", StateID: 2, TermID: 3})
	s.Add(Diagnostic{Stage: StageLexer, Kind: "MissingPattern"})

	got := s.Items()
	kinds := make([]string, len(got))
	for i, d := range got {
		kinds[i] = d.Kind
	}

	assert.Equal([]string{
		"InheritConflict",
		"MissingPattern",
		"UnknownMethod",
		"ShiftReduceConflict", // state 2, term 3
		"ReduceReduceConflict", // state 2, term 9
		"ShiftReduceConflict", // state 7
	}, kinds)

	assert.Equal(2, got[3].StateID)
	assert.Equal(uint32(3), got[3].TermID)
}

func TestHasFatalDistinguishesSeverities(t *testing.T) {
	assert := assert.New(t)

	var s Sink
	s.Warnf(StageLoad, "UnusedTerminal", Span{}, "x")
	assert.False(s.HasFatal())
	assert.False(s.HasErrors())

	s.Errorf(StageLoad, "EmptyLanguage", Span{}, "x")
	assert.False(s.HasFatal())
	assert.True(s.HasErrors())

	s.Fatalf(StageLoad, "MissingAxiom", Span{}, "x")
	assert.True(s.HasFatal())
}
