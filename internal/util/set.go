package util

import (
	"fmt"
	"sort"
	"strings"
)

// OrderedKeys returns the keys of m sorted ascending. Used whenever a map
// needs to be walked in a deterministic order (state tables, symbol
// tables).
func OrderedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UintSet is a set of uint32, used for symbol-id sets such as LR(1)
// lookahead sets and FIRST/FOLLOW sets.
type UintSet map[uint32]bool

// NewUintSet creates a UintSet optionally seeded from the given maps.
func NewUintSet(of ...map[uint32]bool) UintSet {
	s := UintSet{}
	for _, m := range of {
		for k := range m {
			s.Add(k)
		}
	}
	return s
}

// UintSetOf creates a UintSet from a slice of uint32.
func UintSetOf(sl []uint32) UintSet {
	s := NewUintSet()
	for _, v := range sl {
		s.Add(v)
	}
	return s
}

func (s UintSet) Add(v uint32)      { s[v] = true }
func (s UintSet) Remove(v uint32)   { delete(s, v) }
func (s UintSet) Has(v uint32) bool { return s[v] }
func (s UintSet) Len() int          { return len(s) }
func (s UintSet) Empty() bool       { return len(s) == 0 }

func (s UintSet) AddAll(o UintSet) {
	for v := range o {
		s.Add(v)
	}
}

func (s UintSet) Copy() UintSet {
	n := NewUintSet()
	n.AddAll(s)
	return n
}

func (s UintSet) Elements() []uint32 {
	el := make([]uint32, 0, len(s))
	for v := range s {
		el = append(el, v)
	}
	sort.Slice(el, func(i, j int) bool { return el[i] < el[j] })
	return el
}

func (s UintSet) Equal(o UintSet) bool {
	if len(s) != len(o) {
		return false
	}
	for v := range s {
		if !o.Has(v) {
			return false
		}
	}
	return true
}

func (s UintSet) Union(o UintSet) UintSet {
	n := s.Copy()
	n.AddAll(o)
	return n
}

func (s UintSet) String() string {
	el := s.Elements()
	parts := make([]string, len(el))
	for i, v := range el {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
