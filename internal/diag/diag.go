// Package diag holds the diagnostic sink shared across every compilation
// stage. Diagnostics accumulate here instead of being returned as Go
// errors from each stage, so the pipeline can keep going and the caller
// can see everything wrong with a grammar in one pass.
package diag

import (
	"fmt"
	"sort"
)

// Stage identifies which part of the pipeline raised a Diagnostic. Sink
// ordering uses this to group diagnostics deterministically.
type Stage int

const (
	StageLoad Stage = iota
	StageInherit
	StageLexer
	StageParser
	StageConflict
	StageIO
	StageInternal
)

func (s Stage) String() string {
	switch s {
	case StageLoad:
		return "load"
	case StageInherit:
		return "inherit"
	case StageLexer:
		return "lexer"
	case StageParser:
		return "parser"
	case StageConflict:
		return "conflict"
	case StageIO:
		return "io"
	case StageInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity distinguishes fatal diagnostics (which short-circuit the
// pipeline) from warnings and errors that still allow compilation to
// continue gathering feedback.
type Severity int

const (
	SevWarning Severity = iota
	SevError
	SevFatal
)

// Span locates a Diagnostic in the grammar source text that produced it.
type Span struct {
	InputID string
	Offset  int
	Length  int
}

func (s Span) String() string {
	if s.InputID == "" {
		return ""
	}
	return fmt.Sprintf("%s@%d+%d", s.InputID, s.Offset, s.Length)
}

// Diagnostic is one reported problem, located by stage, severity, an
// optional state id (for internal/table diagnostics that need to be
// re-ordered by state), and an optional terminal id for conflict
// diagnostics, which sort in state-id order then terminal-id order.
type Diagnostic struct {
	Stage    Stage
	Severity Severity
	Kind     string
	Message  string
	Span     Span
	StateID  int
	TermID   uint32
}

func (d Diagnostic) Error() string {
	if d.Span.InputID != "" {
		return fmt.Sprintf("%s: %s: %s", d.Span, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

func (d Diagnostic) IsFatal() bool { return d.Severity == SevFatal }

// Sink collects diagnostics over the lifetime of one compilation. It is
// passed explicitly through the pipeline rather than held in a package
// global, so two compilations never share state.
type Sink struct {
	items []Diagnostic
}

// Add appends a diagnostic to the sink.
func (s *Sink) Add(d Diagnostic) {
	s.items = append(s.items, d)
}

// Errorf appends a non-fatal error-severity diagnostic.
func (s *Sink) Errorf(stage Stage, kind string, span Span, format string, args ...any) {
	s.Add(Diagnostic{Stage: stage, Severity: SevError, Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Warnf appends a warning-severity diagnostic.
func (s *Sink) Warnf(stage Stage, kind string, span Span, format string, args ...any) {
	s.Add(Diagnostic{Stage: stage, Severity: SevWarning, Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Fatalf appends a fatal diagnostic. The caller is responsible for actually
// halting the pipeline; this only records the fact.
func (s *Sink) Fatalf(stage Stage, kind string, span Span, format string, args ...any) {
	s.Add(Diagnostic{Stage: stage, Severity: SevFatal, Kind: kind, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Internal appends an Internal diagnostic for an invariant violation,
// localized to the offending automaton state.
func (s *Sink) Internal(stateID int, format string, args ...any) {
	s.Add(Diagnostic{Stage: StageInternal, Severity: SevError, Kind: "Internal", StateID: stateID, Message: fmt.Sprintf(format, args...)})
}

// HasFatal returns whether any fatal diagnostic has been recorded.
func (s *Sink) HasFatal() bool {
	for _, d := range s.items {
		if d.IsFatal() {
			return true
		}
	}
	return false
}

// HasErrors returns whether any error-or-worse diagnostic has been
// recorded.
func (s *Sink) HasErrors() bool {
	for _, d := range s.items {
		if d.Severity >= SevError {
			return true
		}
	}
	return false
}

// Items returns the diagnostics collected so far, sorted deterministically:
// grouped by stage in pipeline order, then by state id, then by terminal
// id, stable within a group.
func (s *Sink) Items() []Diagnostic {
	sorted := make([]Diagnostic, len(s.items))
	copy(sorted, s.items)

	stageOrder := map[Stage]int{
		StageInherit:  0,
		StageLoad:     0,
		StageLexer:    1,
		StageParser:   2,
		StageConflict: 3,
		StageIO:       4,
		StageInternal: 5,
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		oa, ob := stageOrder[a.Stage], stageOrder[b.Stage]
		if oa != ob {
			return oa < ob
		}
		if a.StateID != b.StateID {
			return a.StateID < b.StateID
		}
		return a.TermID < b.TermID
	})
	return sorted
}
