// Package loader: see ast.go for the package-level doc comment on what
// this package does and does not own.
package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dekarrin/ictiobus/internal/charset"
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/fagrammar"
	"github.com/dekarrin/ictiobus/internal/rx"
)

// maxTemplateDepth bounds parametric rule expansion recursion (a template
// instantiating a template instantiating a template...). 64 is generous
// for any real grammar; going deeper almost certainly means a self-
// referential template rather than a legitimate derivation.
const maxTemplateDepth = 64

// Adapter walks a set of GrammarASTs into one fagrammar.Grammar, resolving
// inheritance, template instantiation, and sub-rule extraction along the
// way. The zero value is ready to use.
type Adapter struct{}

// NewAdapter returns a ready-to-use Adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Load builds the merged, fully resolved grammar rooted at rootName out of
// asts (every grammar file given to one compilation, including any bases
// named only via Inherits). It returns the built grammar plus the ids of
// the synthetic augmented-start variable and its sole production, ready to
// hand to lr.BuildTable, and the full set of declared context ids (context
// 0, "default", always included even if never explicitly declared). ok is
// false when a fatal diagnostic was recorded (cyclic inheritance, an
// undeclared base, a missing or undeclared axiom).
func (a *Adapter) Load(asts []*GrammarAST, rootName string, sink *diag.Sink) (g *fagrammar.Grammar, augmentedStart uint32, startProd uint32, contexts []uint32, ok bool) {
	byName := make(map[string]*GrammarAST, len(asts))
	for _, ast := range asts {
		byName[ast.Name] = ast
	}

	root, exists := byName[rootName]
	if !exists {
		sink.Fatalf(diag.StageLoad, "UnknownGrammar", diag.Span{}, "no grammar named %q was given to this compilation", rootName)
		return nil, 0, 0, nil, false
	}

	order, err := topoOrder(root, byName)
	if err != nil {
		sink.Fatalf(diag.StageInherit, "CyclicInheritance", root.Span, "%s", err.Error())
		return nil, 0, 0, nil, false
	}

	ctxTable := newContextTable()
	for _, astName := range order {
		for _, cd := range byName[astName].Contexts {
			ctxTable.declare(cd.Name)
		}
	}

	templates := map[string]*RuleDecl{}
	for _, astName := range order {
		ast := byName[astName]
		for i := range ast.Rules {
			rd := &ast.Rules[i]
			if len(rd.Params) > 0 {
				templates[rd.Name] = rd
			}
		}
	}

	built := map[string]*fagrammar.Grammar{}
	for _, astName := range order {
		ast := byName[astName]
		bg, err := a.loadOne(ast, byName, built, ctxTable, templates, sink)
		if err != nil {
			return nil, 0, 0, nil, false
		}
		built[astName] = bg
	}

	g = built[rootName]

	axiomName, ok := optionString(g.Options, "axiom")
	if !ok || axiomName == "" {
		sink.Fatalf(diag.StageLoad, "MissingAxiom", root.Span, "grammar %q declares no Axiom option", rootName)
		return nil, 0, 0, nil, false
	}
	startID, exists := g.IDOf(axiomName)
	if !exists || !g.IsVariable(startID) {
		sink.Fatalf(diag.StageLoad, "UndeclaredAxiom", root.Span, "axiom %q does not name a declared variable", axiomName)
		return nil, 0, 0, nil, false
	}
	g.Start = startID

	// The Separator option names the whitespace/comment terminal consumed
	// silently between tokens. It is always pinned to context 0 regardless
	// of the context its declaration sits in.
	if sepName, ok := optionString(g.Options, "separator"); ok && sepName != "" {
		sepID, exists := g.IDOf(sepName)
		if !exists || !g.IsTerminal(sepID) {
			sink.Errorf(diag.StageLoad, "UndeclaredSymbol", root.Span, "Separator %q does not name a declared terminal", sepName)
		} else {
			sep := g.Terminals[sepID]
			sep.Separator = true
			sep.Context = 0
			g.Terminals[sepID] = sep
		}
	}

	augName := "$" + axiomName
	augID, err2 := g.AddVariable(augName)
	if err2 != nil {
		// astronomically unlikely name collision; fall back to a name the
		// grammar's own namespace cannot contain.
		augID, _ = g.AddVariable(fmt.Sprintf("$augmented#%d", startID))
	}
	sp, err2 := g.AddRule(augID, []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: startID}})
	if err2 != nil {
		sink.Fatalf(diag.StageLoad, "Internal", root.Span, "failed to add augmented start production: %v", err2)
		return nil, 0, 0, nil, false
	}
	g.Start = augID

	if verr := g.Validate(); verr != nil {
		sink.Fatalf(diag.StageLoad, "InvalidGrammar", root.Span, "%s", verr.Error())
		return nil, 0, 0, nil, false
	}

	semanticChecks(g, augID, root.Span, sink)

	return g, augID, sp, ctxTable.ids(), true
}

// semanticChecks reports the whole-grammar conditions that only make
// sense after every symbol and production is in place: variables the
// axiom can never reach, terminals no production mentions, and an axiom
// that cannot derive any terminal string at all (an empty language).
// None of these are fatal — the caller still gets a full build for the
// parts of the grammar that do work.
func semanticChecks(g *fagrammar.Grammar, augStart uint32, rootSpan diag.Span, sink *diag.Sink) {
	reachable := map[uint32]bool{augStart: true}
	usedTerminals := map[uint32]bool{}

	worklist := []uint32{augStart}
	for len(worklist) > 0 {
		vid := worklist[0]
		worklist = worklist[1:]
		for _, pid := range g.ByHead[vid] {
			for _, e := range g.Productions[pid].Symbols {
				switch e.Kind {
				case fagrammar.ElemTerminal:
					usedTerminals[e.ID] = true
				case fagrammar.ElemVariable:
					if !reachable[e.ID] {
						reachable[e.ID] = true
						worklist = append(worklist, e.ID)
					}
				}
			}
		}
	}

	for _, vid := range g.SortedVariableIDs() {
		if !reachable[vid] {
			sink.Warnf(diag.StageLoad, "UnreachableVariable", rootSpan, "variable %q can never be derived from the axiom", g.NameOf(vid))
		}
	}
	for _, tid := range g.SortedTerminalIDs() {
		t := g.Terminals[tid]
		if !usedTerminals[tid] && !t.Separator && !t.IsFragment {
			sink.Warnf(diag.StageLoad, "UnusedTerminal", rootSpan, "terminal %q is never used by any rule", g.NameOf(tid))
		}
	}

	// productivity fixpoint: a variable is productive when some production
	// of it consists only of terminals and already-productive variables.
	productive := map[uint32]bool{}
	changed := true
	for changed {
		changed = false
		for _, vid := range g.SortedVariableIDs() {
			if productive[vid] {
				continue
			}
			for _, pid := range g.ByHead[vid] {
				ok := true
				for _, e := range g.Productions[pid].Symbols {
					if e.Kind == fagrammar.ElemVariable && !productive[e.ID] {
						ok = false
						break
					}
				}
				if ok {
					productive[vid] = true
					changed = true
					break
				}
			}
		}
	}
	if !productive[augStart] {
		sink.Errorf(diag.StageLoad, "EmptyLanguage", rootSpan, "the axiom cannot derive any terminal string")
	}
}

// optionString fetches a string-valued option by name, case-insensitively
// (grammar authors write "Axiom", while this package looks options up
// under lowercase names such as "axiom").
func optionString(opts map[string]fagrammar.Option, name string) (string, bool) {
	lower := strings.ToLower(name)
	for k, v := range opts {
		if strings.ToLower(k) == lower && v.Kind == fagrammar.OptString {
			return v.Str, true
		}
	}
	return "", false
}

// topoOrder returns every GrammarAST reachable from root via Inherits,
// base-before-derived (a post-order DFS), so each ast's bases are always
// already built by the time loadOne reaches it.
func topoOrder(root *GrammarAST, byName map[string]*GrammarAST) ([]string, error) {
	var order []string
	visited := map[string]int{} // 0=unvisited, 1=in-progress, 2=done

	var visit func(name string) error
	visit = func(name string) error {
		switch visited[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("cyclic inheritance involving %q", name)
		}
		visited[name] = 1
		ast, ok := byName[name]
		if !ok {
			return fmt.Errorf("grammar %q inherits from undeclared grammar %q", name, name)
		}
		for _, base := range ast.Inherits {
			if _, ok := byName[base]; !ok {
				return fmt.Errorf("grammar %q inherits from unknown grammar %q", name, base)
			}
			if err := visit(base); err != nil {
				return err
			}
		}
		visited[name] = 2
		order = append(order, name)
		return nil
	}

	if err := visit(root.Name); err != nil {
		return nil, err
	}
	return order, nil
}

// contextTable assigns stable ids to context names across an entire
// compilation, independent of which grammar file declared them. Context 0
// ("default") always exists and is never explicitly declared.
type contextTable struct {
	byName map[string]uint32
	next   uint32
}

func newContextTable() *contextTable {
	return &contextTable{byName: map[string]uint32{"default": 0}, next: 1}
}

func (c *contextTable) declare(name string) uint32 {
	if name == "" {
		return 0
	}
	if id, ok := c.byName[name]; ok {
		return id
	}
	id := c.next
	c.next++
	c.byName[name] = id
	return id
}

// lookup resolves a context reference against the declared set without
// declaring it: a context referenced but never declared is an error, not
// an implicit declaration.
func (c *contextTable) lookup(name string) (uint32, bool) {
	if name == "" {
		return 0, true
	}
	id, ok := c.byName[name]
	return id, ok
}

func (c *contextTable) ids() []uint32 {
	out := make([]uint32, 0, len(c.byName))
	for _, id := range c.byName {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// loadOne builds the fagrammar.Grammar for a single AST: its own symbols
// declared first (so they shadow an inherited symbol of the same name),
// then each declared base merged in, then rule bodies resolved against the
// now-complete namespace.
func (a *Adapter) loadOne(ast *GrammarAST, byName map[string]*GrammarAST, built map[string]*fagrammar.Grammar, ctxTable *contextTable, templates map[string]*RuleDecl, sink *diag.Sink) (*fagrammar.Grammar, error) {
	g := fagrammar.New()

	for _, od := range ast.Options {
		g.Options[od.Name] = fagrammar.Option{Kind: fagrammar.OptionKind(od.Kind), Str: od.Str, Bool: od.Bool, Int: od.Int}
	}

	for _, td := range ast.Terminals {
		ctx, declared := ctxTable.lookup(td.Context)
		if !declared {
			sink.Errorf(diag.StageLexer, "UndeclaredContext", td.Span, "terminal %q references undeclared context %q", td.Name, td.Context)
			return nil, fmt.Errorf("undeclared context %q", td.Context)
		}
		if td.AliasOf != "" {
			// alias terminals are declared after their target resolves,
			// handled in the second pass below.
			continue
		}
		id, err := g.AddTerminal(td.Name, td.Pattern, td.Priority, ctx)
		if err != nil {
			if td.Fragment && isFragmentName(g, td.Name) {
				sink.Errorf(diag.StageLexer, "DuplicateFragment", td.Span, "fragment %q declared more than once", td.Name)
			} else {
				sink.Errorf(diag.StageLoad, "DuplicateSymbol", td.Span, "%s", err.Error())
			}
			return nil, err
		}
		if td.Fragment {
			t := g.Terminals[id]
			t.IsFragment = true
			g.Terminals[id] = t
		}
	}
	for _, td := range ast.Terminals {
		if td.AliasOf == "" {
			continue
		}
		targetID, ok := g.IDOf(td.AliasOf)
		if !ok {
			sink.Errorf(diag.StageLoad, "UndeclaredSymbol", td.Span, "alias target %q is not declared", td.AliasOf)
			return nil, fmt.Errorf("undeclared alias target %q", td.AliasOf)
		}
		ctx, declared := ctxTable.lookup(td.Context)
		if !declared {
			sink.Errorf(diag.StageLexer, "UndeclaredContext", td.Span, "terminal %q references undeclared context %q", td.Name, td.Context)
			return nil, fmt.Errorf("undeclared context %q", td.Context)
		}
		newID, err := g.AddTerminal(td.Name, g.Terminals[targetID].Pattern, td.Priority, ctx)
		if err != nil {
			sink.Errorf(diag.StageLoad, "DuplicateSymbol", td.Span, "%s", err.Error())
			return nil, err
		}
		t := g.Terminals[newID]
		t.AliasOf = &targetID
		g.Terminals[newID] = t
	}

	for _, rd := range ast.Rules {
		if len(rd.Params) > 0 {
			continue // template: instantiated lazily at reference sites
		}
		if _, err := g.AddVariable(rd.Name); err != nil {
			sink.Errorf(diag.StageLoad, "DuplicateSymbol", rd.Span, "%s", err.Error())
			return nil, err
		}
	}

	for _, baseName := range ast.Inherits {
		baseG, ok := built[baseName]
		if !ok {
			err := fmt.Errorf("base grammar %q not yet built (inheritance ordering bug)", baseName)
			sink.Fatalf(diag.StageInherit, "Internal", ast.Span, "%s", err.Error())
			return nil, err
		}
		if err := g.Inherit(baseG); err != nil {
			sink.Errorf(diag.StageInherit, "InheritConflict", ast.Span, "%s", err.Error())
			return nil, err
		}
	}

	if err := expandFragmentRefs(ast, g, sink); err != nil {
		return nil, err
	}

	rc := &resolveCtx{
		g:         g,
		ctxTable:  ctxTable,
		templates: templates,
		memo:      map[string]uint32{},
		virtuals:  map[string]uint32{},
		actions:   map[string]uint32{},
		literals:  map[string]uint32{},
		subCount:  0,
		sink:      sink,
	}
	rc.seedNamesFromGrammar()

	for _, rd := range ast.Rules {
		if len(rd.Params) > 0 {
			continue
		}
		headID, _ := g.IDOf(rd.Name)
		for _, alt := range rd.Alternatives {
			symbols, err := rc.resolveSequence(alt, nil, 0)
			if err != nil {
				return nil, err
			}
			if _, err := g.AddRule(headID, symbols); err != nil {
				sink.Errorf(diag.StageLoad, "Internal", rd.Span, "%s", err.Error())
				return nil, err
			}
		}
	}

	return g, nil
}

// isFragmentName reports whether name is already declared as a fragment
// terminal in g, used to distinguish a fragment/fragment name collision
// (a lexer error in its own right) from an ordinary duplicate symbol.
func isFragmentName(g *fagrammar.Grammar, name string) bool {
	id, ok := g.IDOf(name)
	return ok && g.IsTerminal(id) && g.Terminals[id].IsFragment
}

// expandFragmentRefs inlines every fragment reference (rx.Ref) in the
// patterns of ast's own terminal declarations, resolving names against
// the grammar's full post-inheritance fragment set. Fragments referencing
// other fragments inline transitively; a reference to a name that is not
// a declared fragment, or a cyclic fragment chain, is a lexer-stage
// error. Inherited terminals were already expanded when their own file
// loaded, so only this file's declarations need the pass.
func expandFragmentRefs(ast *GrammarAST, g *fagrammar.Grammar, sink *diag.Sink) error {
	resolve := func(name string) (rx.Node, bool) {
		id, ok := g.IDOf(name)
		if !ok || !g.IsTerminal(id) {
			return nil, false
		}
		t := g.Terminals[id]
		if !t.IsFragment {
			return nil, false
		}
		return t.Pattern, true
	}

	for _, td := range ast.Terminals {
		id, ok := g.IDOf(td.Name)
		if !ok || !g.IsTerminal(id) {
			continue
		}
		t := g.Terminals[id]
		if t.Pattern == nil {
			continue
		}
		expanded, err := rx.Expand(t.Pattern, resolve)
		if err != nil {
			var unresolved *rx.UnresolvedRefError
			if errors.As(err, &unresolved) {
				sink.Errorf(diag.StageLexer, "UndeclaredFragment", td.Span, "terminal %q references undeclared fragment %q", td.Name, unresolved.Name)
			} else {
				sink.Errorf(diag.StageLexer, "FragmentExpansionTooDeep", td.Span, "terminal %q: %s", td.Name, err.Error())
			}
			return err
		}
		t.Pattern = expanded
		g.Terminals[id] = t
	}
	return nil
}

// resolveCtx carries the state one loadOne call threads through sequence
// resolution: the grammar being populated, template bindings in scope (for
// nested instantiation), and memoization/freshness counters.
type resolveCtx struct {
	g         *fagrammar.Grammar
	ctxTable  *contextTable
	templates map[string]*RuleDecl
	memo      map[string]uint32 // "tmplName:argID,argID,..." -> expanded variable id
	virtuals  map[string]uint32 // name -> virtual id, this grammar's namespace
	actions   map[string]uint32
	literals  map[string]uint32 // literal text -> generated terminal id
	subCount  int
	litCount  int
	sink      *diag.Sink
}

func (rc *resolveCtx) seedNamesFromGrammar() {
	for id, v := range rc.g.Virtuals {
		rc.virtuals[v.Name] = id
	}
	for id, a := range rc.g.Actions {
		rc.actions[a.Name] = id
	}
}

func (rc *resolveCtx) freshVarName(prefix string) string {
	rc.subCount++
	return fmt.Sprintf("$%s%d", prefix, rc.subCount)
}

// literalTerminal returns the generated terminal for an inline rule-body
// literal, minting one (reserved "$lit" name prefix, the literal text as
// its display Value, a character-sequence pattern) the first time a given
// text is seen and reusing it on every later occurrence — including
// occurrences inherited from a base grammar, found by display value.
func (rc *resolveCtx) literalTerminal(e BodyElem) (uint32, error) {
	text := e.Name
	if text == "" {
		err := fmt.Errorf("empty literal in rule body")
		rc.sink.Errorf(diag.StageLoad, "EmptyLiteral", e.Span, "%s", err.Error())
		return 0, err
	}
	if id, ok := rc.literals[text]; ok {
		return id, nil
	}
	for _, tid := range rc.g.SortedTerminalIDs() {
		t := rc.g.Terminals[tid]
		if t.IsGenerated && t.Value == text {
			rc.literals[text] = tid
			return tid, nil
		}
	}

	nodes := make([]rx.Node, 0, len(text))
	for _, r := range text {
		nodes = append(nodes, rx.Char{Set: charset.Single(r)})
	}
	pattern := rx.Seq(nodes...)

	var id uint32
	for {
		name := fmt.Sprintf("$lit%d", rc.litCount)
		rc.litCount++
		newID, err := rc.g.AddTerminal(name, pattern, len(rc.g.Terminals), 0)
		if err == nil {
			id = newID
			break
		}
		// name already taken by an inherited generated terminal; keep
		// bumping the counter until a free one is found.
	}

	t := rc.g.Terminals[id]
	t.Value = text
	t.IsGenerated = true
	rc.g.Terminals[id] = t
	rc.literals[text] = id
	return id, nil
}

// resolveSequence translates one BodyElem sequence into fagrammar.Elem
// symbols, extracting groups/quantifiers into fresh productions and
// expanding template references as it goes. bindings maps an in-scope
// template parameter name to the real symbol name it's bound to for the
// current instantiation (nil outside of a template body).
func (rc *resolveCtx) resolveSequence(elems []BodyElem, bindings map[string]string, depth int) ([]fagrammar.Elem, error) {
	out := make([]fagrammar.Elem, 0, len(elems))
	for _, e := range elems {
		resolved, err := rc.resolveElem(e, bindings, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

func (rc *resolveCtx) resolveElem(e BodyElem, bindings map[string]string, depth int) ([]fagrammar.Elem, error) {
	switch e.Kind {
	case ElemSymbolRef:
		name := e.Name
		if bindings != nil {
			if bound, ok := bindings[name]; ok {
				name = bound
			}
		}
		if id, ok := rc.g.IDOf(name); ok {
			if rc.g.IsTerminal(id) {
				if rc.g.Terminals[id].IsFragment {
					err := fmt.Errorf("fragment %q cannot appear in a rule body", name)
					rc.sink.Errorf(diag.StageLoad, "FragmentInRule", e.Span, "%s; fragments only expand inside terminal patterns", err.Error())
					return nil, err
				}
				return []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: id}}, nil
			}
			return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: id}}, nil
		}
		if id, ok := rc.virtuals[name]; ok {
			return []fagrammar.Elem{{Kind: fagrammar.ElemVirtual, ID: id}}, nil
		}
		err := fmt.Errorf("undeclared symbol %q", name)
		rc.sink.Errorf(diag.StageLoad, "UndeclaredSymbol", e.Span, "%s", err.Error())
		return nil, err

	case ElemLiteral:
		id, err := rc.literalTerminal(e)
		if err != nil {
			return nil, err
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemTerminal, ID: id}}, nil

	case ElemTemplateRef:
		return rc.resolveTemplateRef(e, bindings, depth)

	case ElemAction:
		id, ok := rc.actions[e.Name]
		if !ok {
			id = rc.g.AddAction(e.Name, 0, e.Name)
			rc.actions[e.Name] = id
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemAction, ID: id}}, nil

	case ElemSemanticPromote:
		return []fagrammar.Elem{{Kind: fagrammar.ElemSemanticPromote}}, nil

	case ElemSemanticDrop:
		return []fagrammar.Elem{{Kind: fagrammar.ElemSemanticDrop}}, nil

	case ElemContextOpen:
		ctx, declared := rc.ctxTable.lookup(e.Name)
		if !declared {
			err := fmt.Errorf("undeclared context %q", e.Name)
			rc.sink.Errorf(diag.StageLexer, "UndeclaredContext", e.Span, "%s", err.Error())
			return nil, err
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemContextOpen, Context: ctx}}, nil

	case ElemContextClose:
		return []fagrammar.Elem{{Kind: fagrammar.ElemContextClose}}, nil

	case ElemGroup:
		v, err := rc.g.AddVariable(rc.freshVarName("group"))
		if err != nil {
			return nil, err
		}
		for _, branch := range e.Sub {
			symbols, err := rc.resolveSequence(branch, bindings, depth)
			if err != nil {
				return nil, err
			}
			if _, err := rc.g.AddRule(v, symbols); err != nil {
				return nil, err
			}
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil

	case ElemOptional:
		v, err := rc.g.AddVariable(rc.freshVarName("opt"))
		if err != nil {
			return nil, err
		}
		inner, err := rc.resolveSequence(e.Inner, bindings, depth)
		if err != nil {
			return nil, err
		}
		if _, err := rc.g.AddRule(v, nil); err != nil {
			return nil, err
		}
		if _, err := rc.g.AddRule(v, inner); err != nil {
			return nil, err
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil

	case ElemStar:
		v, err := rc.g.AddVariable(rc.freshVarName("star"))
		if err != nil {
			return nil, err
		}
		inner, err := rc.resolveSequence(e.Inner, bindings, depth)
		if err != nil {
			return nil, err
		}
		if _, err := rc.g.AddRule(v, nil); err != nil {
			return nil, err
		}
		recur := append([]fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, inner...)
		if _, err := rc.g.AddRule(v, recur); err != nil {
			return nil, err
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil

	case ElemPlus:
		v, err := rc.g.AddVariable(rc.freshVarName("plus"))
		if err != nil {
			return nil, err
		}
		inner, err := rc.resolveSequence(e.Inner, bindings, depth)
		if err != nil {
			return nil, err
		}
		if _, err := rc.g.AddRule(v, inner); err != nil {
			return nil, err
		}
		recur := append([]fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, inner...)
		if _, err := rc.g.AddRule(v, recur); err != nil {
			return nil, err
		}
		return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil

	default:
		err := fmt.Errorf("unhandled body element kind %d", e.Kind)
		rc.sink.Internal(0, "%s", err.Error())
		return nil, err
	}
}

// resolveTemplateRef instantiates a parametric rule reference, memoizing
// on (template name, resolved argument ids) so `list<INT>` referenced
// twice produces one shared variable and production set, not two.
func (rc *resolveCtx) resolveTemplateRef(e BodyElem, bindings map[string]string, depth int) ([]fagrammar.Elem, error) {
	if depth+1 > maxTemplateDepth {
		err := fmt.Errorf("template %q nested deeper than %d levels", e.Name, maxTemplateDepth)
		rc.sink.Fatalf(diag.StageLoad, "TemplateRuleExpansionTooDeep", e.Span, "%s", err.Error())
		return nil, err
	}

	tmpl, ok := rc.templates[e.Name]
	if !ok {
		err := fmt.Errorf("undeclared template rule %q", e.Name)
		rc.sink.Errorf(diag.StageLoad, "UndeclaredTemplate", e.Span, "%s", err.Error())
		return nil, err
	}
	if len(tmpl.Params) != len(e.Args) {
		err := fmt.Errorf("template %q expects %d argument(s), got %d", e.Name, len(tmpl.Params), len(e.Args))
		rc.sink.Errorf(diag.StageLoad, "TemplateArityMismatch", e.Span, "%s", err.Error())
		return nil, err
	}

	argNames := make([]string, len(e.Args))
	argIDs := make([]uint32, len(e.Args))
	for i, argName := range e.Args {
		real := argName
		if bindings != nil {
			if bound, ok := bindings[argName]; ok {
				real = bound
			}
		}
		argNames[i] = real
		if id, ok := rc.g.IDOf(real); ok {
			argIDs[i] = id
		} else if id, ok := rc.virtuals[real]; ok {
			argIDs[i] = id
		} else {
			err := fmt.Errorf("template %q argument %q does not name a declared symbol", e.Name, argName)
			rc.sink.Errorf(diag.StageLoad, "UndeclaredSymbol", e.Span, "%s", err.Error())
			return nil, err
		}
	}

	key := e.Name
	for _, id := range argIDs {
		key += fmt.Sprintf(":%d", id)
	}
	if v, ok := rc.memo[key]; ok {
		return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil
	}

	name := e.Name + "<" + strings.Join(argNames, ",") + ">"
	v, err := rc.g.AddVariable(name)
	if err != nil {
		// collision from a stale previous expansion attempt under the
		// same name; mint a disambiguated one instead of failing outright.
		v, err = rc.g.AddVariable(rc.freshVarName("tmpl"))
		if err != nil {
			return nil, err
		}
	}
	rc.memo[key] = v

	childBindings := make(map[string]string, len(tmpl.Params))
	for i, p := range tmpl.Params {
		childBindings[p] = argNames[i]
	}

	for _, alt := range tmpl.Alternatives {
		symbols, err := rc.resolveSequence(alt, childBindings, depth+1)
		if err != nil {
			return nil, err
		}
		if _, err := rc.g.AddRule(v, symbols); err != nil {
			return nil, err
		}
	}

	return []fagrammar.Elem{{Kind: fagrammar.ElemVariable, ID: v}}, nil
}
