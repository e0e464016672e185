package fagrammar

// RemoveEpsilons returns a copy of g with every nullable variable's
// epsilon production removed and, for every production that references a
// nullable variable, one additional production generated for each way of
// omitting a subset of its nullable occurrences (the standard
// epsilon-elimination transform, purple dragon book §4.4, exercised by
// the "Deeba Kannan" worked example kept as a regression fixture in
// grammar_test.go). A production that would be left with an
// empty right-hand side after every nullable symbol is dropped is
// discarded rather than kept as a second epsilon rule, except for the
// grammar's own start production, which keeps its epsilon alternative
// when the start symbol is nullable: the start symbol's own nullability
// must survive epsilon elimination.
func (g *Grammar) RemoveEpsilons() *Grammar {
	nullable := g.Nullable()
	out := g.shallowCopyWithoutProductions()

	for _, vid := range g.SortedVariableIDs() {
		startIsNullable := vid == g.Start && nullable.Has(vid)
		for _, pid := range g.ByHead[vid] {
			p := g.Productions[pid]

			if len(p.Symbols) == 0 {
				// bare epsilon production; re-added once below only if
				// this is the nullable start symbol.
				continue
			}

			nullablePositions := []int{}
			for i, e := range p.Symbols {
				if e.Kind == ElemVariable && nullable.Has(e.ID) {
					nullablePositions = append(nullablePositions, i)
				}
			}

			variants := subsetsToOmit(nullablePositions)
			seen := map[string]bool{}
			for _, omit := range variants {
				omitSet := map[int]bool{}
				for _, i := range omit {
					omitSet[i] = true
				}
				var newSymbols []Elem
				for i, e := range p.Symbols {
					if omitSet[i] {
						continue
					}
					newSymbols = append(newSymbols, e)
				}
				if len(newSymbols) == 0 {
					continue
				}
				key := sequenceKey(newSymbols)
				if seen[key] {
					continue
				}
				seen[key] = true
				mustAddRule(out, p.Head, newSymbols)
			}
		}
		if startIsNullable {
			mustAddRule(out, vid, nil)
		}
	}

	return out
}

// subsetsToOmit returns every subset of positions, empty-subset-first so
// the "omit nothing" variant (the original production) is generated
// before any that drop symbols, preserving declaration-order priority.
func subsetsToOmit(positions []int) [][]int {
	n := len(positions)
	total := 1 << n
	out := make([][]int, 0, total)
	for mask := 0; mask < total; mask++ {
		var subset []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, positions[i])
			}
		}
		out = append(out, subset)
	}
	return out
}

func sequenceKey(symbols []Elem) string {
	key := ""
	for _, e := range symbols {
		key += string(rune(e.Kind)) + ":" + string(rune(e.ID)) + "|"
	}
	return key
}

func mustAddRule(g *Grammar, head uint32, symbols []Elem) {
	if _, err := g.AddRule(head, symbols); err != nil {
		panic(err.Error())
	}
}

// shallowCopyWithoutProductions copies every declared symbol but none of
// the productions, so the caller can repopulate productions under a
// transform without touching symbol identity.
func (g *Grammar) shallowCopyWithoutProductions() *Grammar {
	out := New()
	out.Start = g.Start
	for id, t := range g.Terminals {
		out.Terminals[id] = t
		out.byName[t.Name] = id
		if id >= out.nextTerm {
			out.nextTerm = id + 1
		}
	}
	for id, v := range g.Variables {
		out.Variables[id] = v
		out.byName[v.Name] = id
		if id >= out.nextVar {
			out.nextVar = id + 1
		}
	}
	for id, vi := range g.Virtuals {
		out.Virtuals[id] = vi
		if id >= out.nextVirtual {
			out.nextVirtual = id + 1
		}
	}
	for id, a := range g.Actions {
		out.Actions[id] = a
		if id >= out.nextAct {
			out.nextAct = id + 1
		}
	}
	for k, v := range g.Options {
		out.Options[k] = v
	}
	return out
}
