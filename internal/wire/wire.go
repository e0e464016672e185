// Package wire implements the exact binary layout a compiled
// lexer/parser is serialized to. Every field is written with
// encoding/binary in a fixed little-endian layout, because the wire
// format is an external contract meant to be read back by a non-Go
// runtime library byte-for-byte — which is also why this package does
// not reach for a self-describing Go-value codec: generic framing would
// not produce the struct-field-exact layout the format mandates.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/dekarrin/ictiobus/internal/automaton"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/lr"
	"github.com/dekarrin/ictiobus/internal/rnglr"
)

// Magic numbers identifying each artifact kind and format version.
const (
	MagicLexer  uint32 = 0x48494D45 // "HIME" - lexer artifact
	MagicParser uint32 = 0x48495052 // "HIPR" - parser artifact
	Version     uint16 = 1
)

// Element kind tags for the "encoded element" bit layout: the
// top 4 bits of a uint32 hold the kind, the low 28 bits hold the
// terminal/variable/virtual/action id (or, for the two context-marker
// kinds, the context id). Ordering matches fagrammar.ElemKind exactly so
// EncodeElem/DecodeElem is a plain numeric cast either way.
const (
	ElemKindTerminal        uint32 = 0
	ElemKindVariable        uint32 = 1
	ElemKindVirtual         uint32 = 2
	ElemKindAction          uint32 = 3
	ElemKindSemanticPromote uint32 = 4
	ElemKindSemanticDrop    uint32 = 5
	ElemKindContextOpen     uint32 = 6
	ElemKindContextClose    uint32 = 7
	elemIDMask              uint32 = 0x0FFFFFFF
	elemKindShift                  = 28
)

// EncodeElem packs a fagrammar.Elem into the wire's 4-bit-kind/28-bit-id
// uint32 representation.
func EncodeElem(e fagrammar.Elem) uint32 {
	kind := uint32(e.Kind)
	payload := e.ID
	if e.Kind == fagrammar.ElemContextOpen {
		payload = e.Context
	}
	if payload > elemIDMask {
		panic(fmt.Sprintf("wire: symbol id %d exceeds 28-bit wire range", payload))
	}
	return kind<<elemKindShift | (payload & elemIDMask)
}

// DecodeElem unpacks a wire-encoded element back into kind+id. The caller
// is responsible for routing id into Elem.ID or Elem.Context depending on
// kind, matching EncodeElem's packing.
func DecodeElem(v uint32) (kind uint32, id uint32) {
	return v >> elemKindShift, v & elemIDMask
}

// action byte tags for LR table cells.
const (
	actionShift  uint8 = 1
	actionReduce uint8 = 2
	actionAccept uint8 = 3
	actionError  uint8 = 4
)

func writeU8(w *bufio.Writer, v uint8) error  { return w.WriteByte(v) }
func writeU16(w *bufio.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
func writeU32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeString(w *bufio.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

// WriteLexer serializes a minimized lexer DFA to w: magic, version, then
// the raw state/transition/finals data, then a per-context winner table
// for each declared context.
func WriteLexer(w io.Writer, g *fagrammar.Grammar, d *automaton.DFA, contexts []uint32) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, MagicLexer); err != nil {
		return err
	}
	if err := writeU16(bw, Version); err != nil {
		return err
	}

	ids := d.NumberStates()
	states := d.OrderedStates()

	if err := writeU32(bw, uint32(len(states))); err != nil {
		return err
	}
	startID, ok := ids[d.Start]
	if !ok {
		return fmt.Errorf("wire: lexer start state not in numbering table")
	}
	if err := writeU32(bw, uint32(startID)); err != nil {
		return err
	}

	for _, name := range states {
		st := d.States[name]
		if err := writeU32(bw, uint32(len(st.Transitions))); err != nil {
			return err
		}
		for _, e := range st.Transitions {
			ranges := e.Charset.Ranges()
			if err := writeU32(bw, uint32(len(ranges))); err != nil {
				return err
			}
			for _, r := range ranges {
				if err := writeU32(bw, uint32(r.Lo)); err != nil {
					return err
				}
				if err := writeU32(bw, uint32(r.Hi)); err != nil {
					return err
				}
			}
			if err := writeU32(bw, uint32(ids[e.Next])); err != nil {
				return err
			}
		}

		// ordered finals list: every accepting terminal of this state with
		// its context, priority-ascending (declaration order), so a runtime
		// can do longest-match then pick the first terminal whose context is
		// legal in the current parse state without re-deriving priorities.
		if err := writeU16(bw, uint16(len(st.Finals))); err != nil {
			return err
		}
		for _, f := range st.Finals {
			if err := writeU16(bw, uint16(f.Context)); err != nil {
				return err
			}
			if err := writeU16(bw, uint16(f.Terminal)); err != nil {
				return err
			}
		}
	}

	if err := writeU32(bw, uint32(len(contexts))); err != nil {
		return err
	}
	for _, ctx := range contexts {
		winners := automaton.SelectWinners(d, ctx)
		if err := writeU32(bw, ctx); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(winners))); err != nil {
			return err
		}
		for _, name := range states {
			f, ok := winners[name]
			if !ok {
				continue
			}
			if err := writeU32(bw, uint32(ids[name])); err != nil {
				return err
			}
			if err := writeU32(bw, f.Terminal); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// WriteParser serializes an LR action/goto table to w: magic,
// version, method tag, state count, start state, then per-state
// context-mask, action, and goto rows, then the production block. The
// context-mask is the bitmask of lexer context ids
// legal in that state (lr.Table.ContextMask), letting a runtime pick the
// right accepting terminal for a lexeme without the lexer DFA itself
// needing to know about parser state.
func WriteParser(w io.Writer, g *fagrammar.Grammar, t *lr.Table) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, MagicParser); err != nil {
		return err
	}
	if err := writeU16(bw, Version); err != nil {
		return err
	}
	if err := writeU8(bw, uint8(t.Method)); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(t.States))); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(t.Start)); err != nil {
		return err
	}

	for _, st := range t.States {
		if err := writeU32(bw, t.ContextMask[st.ID]); err != nil {
			return err
		}
		row := t.Action[st.ID]
		if err := writeU32(bw, uint32(len(row))); err != nil {
			return err
		}
		for _, term := range sortedUint32Keys(row) {
			act := row[term]
			if err := writeU32(bw, term); err != nil {
				return err
			}
			var tag uint8
			switch act.Type {
			case lr.LRShift:
				tag = actionShift
			case lr.LRReduce:
				tag = actionReduce
			case lr.LRAccept:
				tag = actionAccept
			default:
				tag = actionError
			}
			if err := writeU8(bw, tag); err != nil {
				return err
			}
			if err := writeU32(bw, uint32(act.State)); err != nil {
				return err
			}
			if err := writeU32(bw, act.Production); err != nil {
				return err
			}
		}

		gotoRow := t.Goto[st.ID]
		if err := writeU32(bw, uint32(len(gotoRow))); err != nil {
			return err
		}
		for _, v := range sortedUint32Keys(gotoRow) {
			if err := writeU32(bw, v); err != nil {
				return err
			}
			if err := writeU32(bw, uint32(gotoRow[v])); err != nil {
				return err
			}
		}
	}

	if err := writeProductions(bw, g); err != nil {
		return err
	}

	return bw.Flush()
}

// writeProductions emits the production block shared by both parser
// artifact kinds, in ascending production-id order so two compilations of
// the same grammar always serialize byte-identically.
func writeProductions(bw *bufio.Writer, g *fagrammar.Grammar) error {
	if err := writeU32(bw, uint32(len(g.Productions))); err != nil {
		return err
	}
	for _, pid := range sortedUint32Keys(g.Productions) {
		p := g.Productions[pid]
		if err := writeU32(bw, pid); err != nil {
			return err
		}
		if err := writeU32(bw, p.Head); err != nil {
			return err
		}
		// body-length counts only the consuming symbols — the number of
		// stack entries a reduce pops — while the element list that follows
		// also carries virtuals, actions, and markers.
		bodyLen := uint32(0)
		for _, e := range p.Symbols {
			if e.Consuming() {
				bodyLen++
			}
		}
		if err := writeU32(bw, bodyLen); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(p.Symbols))); err != nil {
			return err
		}
		for _, e := range p.Symbols {
			if err := writeU32(bw, EncodeElem(e)); err != nil {
				return err
			}
		}
	}
	return nil
}

// actionReduceNullable extends the action-kind byte set with a 5th value for a
// nullable reduce, so a reader can tell a RNGLR reduce cell needs to
// consult a zero-width virtual node for its nulled tail without a separate
// flag byte per action.
const actionReduceNullable uint8 = 5

// MagicRNGParser identifies a right-nulled GLR table artifact, distinct
// from a plain deterministic MagicParser table so a loader never mistakes
// one for the other (a RNGLR table's multi-action cells would otherwise
// silently desync a reader expecting exactly one action per cell).
const MagicRNGParser uint32 = 0x48495247 // "HIRG"

// WriteRNGParser serializes a right-nulled GLR table to w: the
// same per-state action/goto row shape as WriteParser, except that the
// header has no method byte, an action row entry is a count-prefixed
// *list* of actions instead of one, and every action record carries a
// split-point field after the production id (meaningful for a nullable
// reduce, tag 5).
func WriteRNGParser(w io.Writer, g *fagrammar.Grammar, t *rnglr.RNGTable) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, MagicRNGParser); err != nil {
		return err
	}
	if err := writeU16(bw, Version); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(len(t.States))); err != nil {
		return err
	}
	if err := writeU32(bw, uint32(t.Start)); err != nil {
		return err
	}

	for _, st := range t.States {
		if err := writeU32(bw, t.ContextMask[st.ID]); err != nil {
			return err
		}
		row := t.Action[st.ID]
		if err := writeU32(bw, uint32(len(row))); err != nil {
			return err
		}
		for _, term := range sortedUint32Keys(row) {
			actions := row[term]
			if err := writeU32(bw, term); err != nil {
				return err
			}
			if err := writeU32(bw, uint32(len(actions))); err != nil {
				return err
			}
			for _, act := range actions {
				var tag uint8
				switch {
				case act.Type == lr.LRReduce && act.Nullable:
					tag = actionReduceNullable
				case act.Type == lr.LRShift:
					tag = actionShift
				case act.Type == lr.LRReduce:
					tag = actionReduce
				case act.Type == lr.LRAccept:
					tag = actionAccept
				default:
					tag = actionError
				}
				if err := writeU8(bw, tag); err != nil {
					return err
				}
				if err := writeU32(bw, uint32(act.State)); err != nil {
					return err
				}
				if err := writeU32(bw, act.Production); err != nil {
					return err
				}
				if err := writeU32(bw, uint32(act.SplitPoint)); err != nil {
					return err
				}
			}
		}

		gotoRow := t.Goto[st.ID]
		if err := writeU32(bw, uint32(len(gotoRow))); err != nil {
			return err
		}
		for _, v := range sortedUint32Keys(gotoRow) {
			if err := writeU32(bw, v); err != nil {
				return err
			}
			if err := writeU32(bw, uint32(gotoRow[v])); err != nil {
				return err
			}
		}
	}

	if err := writeProductions(bw, g); err != nil {
		return err
	}

	return bw.Flush()
}

func sortedUint32Keys[V any](m map[uint32]V) []uint32 {
	out := make([]uint32, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Digest computes a blake2b-256 checksum of an already-serialized
// artifact, used to pin a compiled lexer/parser pair together at load
// time.
func Digest(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

func readU8(r *bufio.Reader) (uint8, error) { return r.ReadByte() }

func readU16(r *bufio.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Header is the magic+version pair every artifact opens with.
type Header struct {
	Magic   uint32
	Version uint16
}

// Kind names which artifact Magic identifies, for diagnostic display.
func (h Header) Kind() string {
	switch h.Magic {
	case MagicLexer:
		return "lexer"
	case MagicParser:
		return "parser"
	case MagicRNGParser:
		return "rnglr-parser"
	default:
		return fmt.Sprintf("unknown(0x%08X)", h.Magic)
	}
}

// PeekHeader reads just the magic number and format version off r, without
// consuming or validating the rest of the artifact. himecc's inspect
// command uses this to identify a file before deciding how to summarize it.
func PeekHeader(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)
	magic, err := readU32(br)
	if err != nil {
		return Header{}, fmt.Errorf("wire: reading magic: %w", err)
	}
	version, err := readU16(br)
	if err != nil {
		return Header{}, fmt.Errorf("wire: reading version: %w", err)
	}
	return Header{Magic: magic, Version: version}, nil
}

// LexerSummary is the coarse shape of a serialized lexer artifact, enough
// for a human to sanity-check a build without reconstructing the full DFA.
type LexerSummary struct {
	Header       Header
	StateCount   uint32
	StartState   uint32
	ContextCount uint32
}

// ReadLexerSummary walks just far enough into a WriteLexer artifact to
// report its state and context counts, skipping over the transition and
// winner-table bodies it does not need to reconstruct.
func ReadLexerSummary(r io.Reader) (LexerSummary, error) {
	br := bufio.NewReader(r)
	var sum LexerSummary
	var err error

	if sum.Header.Magic, err = readU32(br); err != nil {
		return sum, err
	}
	if sum.Header.Magic != MagicLexer {
		return sum, fmt.Errorf("wire: not a lexer artifact (got %s)", sum.Header.Kind())
	}
	if sum.Header.Version, err = readU16(br); err != nil {
		return sum, err
	}
	if sum.StateCount, err = readU32(br); err != nil {
		return sum, err
	}
	if sum.StartState, err = readU32(br); err != nil {
		return sum, err
	}

	for i := uint32(0); i < sum.StateCount; i++ {
		transCount, err := readU32(br)
		if err != nil {
			return sum, err
		}
		for j := uint32(0); j < transCount; j++ {
			rangeCount, err := readU32(br)
			if err != nil {
				return sum, err
			}
			for k := uint32(0); k < rangeCount; k++ {
				if _, err := readU32(br); err != nil { // Lo
					return sum, err
				}
				if _, err := readU32(br); err != nil { // Hi
					return sum, err
				}
			}
			if _, err := readU32(br); err != nil { // next state id
				return sum, err
			}
		}
		finalCount, err := readU16(br)
		if err != nil {
			return sum, err
		}
		for j := uint16(0); j < finalCount; j++ {
			if _, err := readU16(br); err != nil { // context
				return sum, err
			}
			if _, err := readU16(br); err != nil { // terminal id
				return sum, err
			}
		}
	}

	if sum.ContextCount, err = readU32(br); err != nil {
		return sum, err
	}
	return sum, nil
}

// ParserSummary is the coarse shape of a serialized parser artifact (either
// a plain LR table or a RNGLR table, reported the same way).
type ParserSummary struct {
	Header     Header
	RNGLR      bool
	Method     uint8
	StateCount uint32
	StartState uint32
}

// ReadParserSummary reports a parser artifact's method and state count
// without reconstructing the action/goto tables.
func ReadParserSummary(r io.Reader) (ParserSummary, error) {
	br := bufio.NewReader(r)
	var sum ParserSummary
	var err error

	if sum.Header.Magic, err = readU32(br); err != nil {
		return sum, err
	}
	if sum.Header.Magic != MagicParser && sum.Header.Magic != MagicRNGParser {
		return sum, fmt.Errorf("wire: not a parser artifact (got %s)", sum.Header.Kind())
	}
	sum.RNGLR = sum.Header.Magic == MagicRNGParser
	if sum.Header.Version, err = readU16(br); err != nil {
		return sum, err
	}
	if !sum.RNGLR {
		m, err := readU8(br)
		if err != nil {
			return sum, err
		}
		sum.Method = m
	}
	if sum.StateCount, err = readU32(br); err != nil {
		return sum, err
	}
	if sum.StartState, err = readU32(br); err != nil {
		return sum, err
	}
	return sum, nil
}
