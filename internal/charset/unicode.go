package charset

import (
	"fmt"
	"unicode"

	"golang.org/x/text/unicode/rangetable"
)

// FromUnicodeCategory resolves a `\p{Name}` escape to a charset.
// Name may be a general category ("L", "Nd", "Lu", ...) or a script name
// ("Greek", "Han", ...); both tables are consulted the way x/text's own
// rangetable-driven APIs do, since the standard library only exposes these
// as *unicode.RangeTable values rather than as a charset-shaped type.
func FromUnicodeCategory(name string) (Set, error) {
	if rt, ok := unicode.Categories[name]; ok {
		return fromRangeTable(rt), nil
	}
	if rt, ok := unicode.Scripts[name]; ok {
		return fromRangeTable(rt), nil
	}
	if rt, ok := unicode.Properties[name]; ok {
		return fromRangeTable(rt), nil
	}
	return Set{}, fmt.Errorf("charset: unknown unicode class %q", name)
}

func fromRangeTable(rt *unicode.RangeTable) Set {
	var ranges []Range
	rangetable.Visit(rt, func(r rune) {
		ranges = append(ranges, Range{r, r})
	})
	return canonicalize(ranges)
}

// FromEscape decodes one of the grammar language's codepoint escapes
// (`\uXXXX`, `\Ucccccccc`) into a single-codepoint Set. Escapes that
// resolve into the surrogate range are rejected rather than silently
// accepted.
func FromEscape(codepoint rune) (Set, error) {
	if codepoint < 0 || codepoint > MaxCodePoint {
		return Set{}, fmt.Errorf("charset: codepoint U+%X out of range", codepoint)
	}
	if codepoint >= SurrogateLo && codepoint <= SurrogateHi {
		return Set{}, fmt.Errorf("charset: escape resolves to illegal surrogate codepoint U+%X", codepoint)
	}
	return Single(codepoint), nil
}
