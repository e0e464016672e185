package fagrammar

import (
	"fmt"
	"sort"
)

// sortedIDs returns m's keys ascending, so inherited symbols always mint
// their new ids in the same order across compilations.
func sortedIDs[V any](m map[uint32]V) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Inherit merges base's declarations into g ("g" is the derived grammar),
// skipping any terminal, variable, action, or option that g already
// declares itself — the derived grammar always wins over its base. A base
// terminal whose name g already uses for a variable, or the reverse, makes
// Inherit return a *DuplicateSymbolError.
// Options are shallow-merged key-by-key; symbol tables are merged by
// name, re-minting ids in g's own numbering so the two grammars' id
// spaces never collide.
func (g *Grammar) Inherit(base *Grammar) error {
	remap := map[uint32]uint32{}

	addedTerminal := map[uint32]bool{}
	for _, id := range base.SortedTerminalIDs() {
		t := base.Terminals[id]
		if existingID, exists := g.byName[t.Name]; exists {
			if _, isTerminal := g.Terminals[existingID]; !isTerminal {
				return &DuplicateSymbolError{Name: t.Name}
			}
			// derived grammar shadows this terminal: base productions
			// referencing it must rebind to the derived symbol, not keep
			// the base's now-foreign id.
			remap[id] = existingID
			continue
		}
		newID, err := g.AddTerminal(t.Name, t.Pattern, t.Priority, t.Context)
		if err != nil {
			return fmt.Errorf("fagrammar: inherit terminal %q: %w", t.Name, err)
		}
		nt := g.Terminals[newID]
		nt.Value = t.Value
		nt.IsFragment = t.IsFragment
		nt.IsGenerated = t.IsGenerated
		nt.Separator = t.Separator
		g.Terminals[newID] = nt
		remap[id] = newID
		addedTerminal[id] = true
	}
	for _, id := range base.SortedTerminalIDs() {
		t := base.Terminals[id]
		if !addedTerminal[id] || t.AliasOf == nil {
			continue
		}
		if target, ok := remap[*t.AliasOf]; ok {
			nt := g.Terminals[remap[id]]
			nt.AliasOf = &target
			g.Terminals[remap[id]] = nt
		}
	}

	addedVariable := map[uint32]bool{}
	for _, id := range base.SortedVariableIDs() {
		v := base.Variables[id]
		if existingID, exists := g.byName[v.Name]; exists {
			if _, isVariable := g.Variables[existingID]; !isVariable {
				return &DuplicateSymbolError{Name: v.Name}
			}
			// same shadowing rebind as terminals above; its own productions
			// are superseded below, but references to it from kept base
			// rules still need to resolve to the derived symbol's id.
			remap[id] = existingID
			continue
		}
		newID, err := g.AddVariable(v.Name)
		if err != nil {
			return fmt.Errorf("fagrammar: inherit variable %q: %w", v.Name, err)
		}
		remap[id] = newID
		addedVariable[id] = true
	}

	virtualRemap := map[uint32]uint32{}
	for _, id := range sortedIDs(base.Virtuals) {
		virtualRemap[id] = g.AddVirtual(base.Virtuals[id].Name)
	}

	actionRemap := map[uint32]uint32{}
	for _, id := range sortedIDs(base.Actions) {
		a := base.Actions[id]
		merged := false
		for _, gid := range sortedIDs(g.Actions) {
			if g.Actions[gid].Name == a.Name {
				actionRemap[id] = gid
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		newVirtual := uint32(0)
		if a.Virtual != 0 {
			newVirtual = virtualRemap[a.Virtual]
		}
		actionRemap[id] = g.AddAction(a.Name, newVirtual, a.Callable)
	}

	for _, vid := range base.SortedVariableIDs() {
		if !addedVariable[vid] {
			// base variable was shadowed by g's own declaration: its
			// productions are entirely superseded, not merged.
			continue
		}
		newHead := remap[vid]
		for _, pid := range base.ByHead[vid] {
			p := base.Productions[pid]
			newSymbols := make([]Elem, len(p.Symbols))
			for i, e := range p.Symbols {
				ne := e
				switch e.Kind {
				case ElemTerminal, ElemVariable:
					if mapped, ok := remap[e.ID]; ok {
						ne.ID = mapped
					}
				case ElemVirtual:
					if mapped, ok := virtualRemap[e.ID]; ok {
						ne.ID = mapped
					}
				case ElemAction:
					if mapped, ok := actionRemap[e.ID]; ok {
						ne.ID = mapped
					}
				case ElemSemanticPromote, ElemSemanticDrop, ElemContextOpen, ElemContextClose:
					// no id translation needed; Context ids are context-set
					// ids owned by the lexer side, stable across inherit.
				}
				newSymbols[i] = ne
			}
			if _, err := g.AddRule(newHead, newSymbols); err != nil {
				return fmt.Errorf("fagrammar: inherit rule for %q: %w", base.NameOf(vid), err)
			}
		}
	}

	for k, v := range base.Options {
		if _, exists := g.Options[k]; !exists {
			g.Options[k] = v
		}
	}

	if g.Start == 0 {
		if mapped, ok := remap[base.Start]; ok {
			g.Start = mapped
		}
	}

	return nil
}
