// himecc's own input format: a JSON document describing one or more
// GrammarASTs to hand to the loader. This is deliberately not grammar
// source text — parsing a grammar author's actual surface syntax (with
// its own escape sequences and character-class notation) is the
// out-of-scope text parser's job. What himecc reads instead is the AST
// that parser would have produced, with regex patterns narrowed to plain
// literal strings and single-range character classes, which is enough to
// drive a real build end to end without reimplementing that parser here.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dekarrin/ictiobus/internal/charset"
	"github.com/dekarrin/ictiobus/internal/diag"
	"github.com/dekarrin/ictiobus/internal/loader"
	"github.com/dekarrin/ictiobus/internal/rx"
)

type jsonOption struct {
	Name string `json:"name"`
	Str  string `json:"str,omitempty"`
	Bool bool   `json:"bool,omitempty"`
	Int  int    `json:"int,omitempty"`
	Kind string `json:"kind"` // "string", "bool", "int"
}

type jsonTerminal struct {
	Name    string `json:"name"`
	Literal string `json:"literal,omitempty"` // exact-match literal pattern
	CharLo  string `json:"charLo,omitempty"`  // single-rune lower bound, for a one-range class
	CharHi  string `json:"charHi,omitempty"`  // single-rune upper bound
	Ref     string `json:"ref,omitempty"`     // pattern is a reference to a fragment by name
	Context string `json:"context,omitempty"`
	// Fragment marks a fragment declaration: the terminal is never matched
	// standalone, its pattern only expands where other terminals reference
	// it via "ref".
	Fragment bool   `json:"fragment,omitempty"`
	AliasOf  string `json:"aliasOf,omitempty"`
}

type jsonBodyElem struct {
	Kind  string          `json:"kind"` // symbol, template, action, promote, drop, contextOpen, contextClose, group, optional, star, plus
	Name  string          `json:"name,omitempty"`
	Args  []string        `json:"args,omitempty"`
	Sub   [][]jsonBodyElem `json:"sub,omitempty"`
	Inner []jsonBodyElem  `json:"inner,omitempty"`
}

type jsonRule struct {
	Name         string             `json:"name"`
	Params       []string           `json:"params,omitempty"`
	Alternatives [][]jsonBodyElem   `json:"alternatives"`
}

type jsonContext struct {
	Name string `json:"name"`
}

type jsonGrammar struct {
	Name      string         `json:"name"`
	Options   []jsonOption   `json:"options,omitempty"`
	Inherits  []string       `json:"inherits,omitempty"`
	Contexts  []jsonContext  `json:"contexts,omitempty"`
	Terminals []jsonTerminal `json:"terminals,omitempty"`
	Rules     []jsonRule     `json:"rules"`
}

type jsonGrammarFile struct {
	Root     string        `json:"root"`
	Grammars []jsonGrammar `json:"grammars"`
}

var bodyElemKinds = map[string]loader.BodyElemKind{
	"symbol":       loader.ElemSymbolRef,
	"template":     loader.ElemTemplateRef,
	"action":       loader.ElemAction,
	"promote":      loader.ElemSemanticPromote,
	"drop":         loader.ElemSemanticDrop,
	"contextOpen":  loader.ElemContextOpen,
	"contextClose": loader.ElemContextClose,
	"group":        loader.ElemGroup,
	"optional":     loader.ElemOptional,
	"star":         loader.ElemStar,
	"plus":         loader.ElemPlus,
	"literal":      loader.ElemLiteral,
}

// loadGrammarFile reads and converts a himecc grammar-description JSON file
// into the GrammarAST set the pipeline's loader expects.
func loadGrammarFile(path string) (asts []*loader.GrammarAST, root string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var jf jsonGrammarFile
	if err := json.Unmarshal(data, &jf); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", path, err)
	}
	if jf.Root == "" {
		return nil, "", fmt.Errorf("%s: \"root\" is required", path)
	}

	for _, jg := range jf.Grammars {
		ast, err := jg.toAST(path)
		if err != nil {
			return nil, "", err
		}
		asts = append(asts, ast)
	}
	return asts, jf.Root, nil
}

func (jg jsonGrammar) toAST(file string) (*loader.GrammarAST, error) {
	span := diag.Span{InputID: file}

	ast := &loader.GrammarAST{
		Name:     jg.Name,
		Span:     span,
		Inherits: jg.Inherits,
	}

	for _, o := range jg.Options {
		decl := loader.OptionDecl{Name: o.Name, Span: span}
		switch o.Kind {
		case "bool":
			decl.Kind = loader.OptBool
			decl.Bool = o.Bool
		case "int":
			decl.Kind = loader.OptInt
			decl.Int = o.Int
		default:
			decl.Kind = loader.OptString
			decl.Str = o.Str
		}
		ast.Options = append(ast.Options, decl)
	}

	for _, c := range jg.Contexts {
		ast.Contexts = append(ast.Contexts, loader.ContextDecl{Name: c.Name, Span: span})
	}

	for i, t := range jg.Terminals {
		pattern, err := t.pattern()
		if err != nil {
			return nil, fmt.Errorf("%s: terminal %q: %w", file, t.Name, err)
		}
		ast.Terminals = append(ast.Terminals, loader.TerminalDecl{
			Name:     t.Name,
			Pattern:  pattern,
			Context:  t.Context,
			Fragment: t.Fragment,
			Priority: i,
			AliasOf:  t.AliasOf,
			Span:     span,
		})
	}

	for _, r := range jg.Rules {
		rule := loader.RuleDecl{Name: r.Name, Params: r.Params, Span: span}
		for _, alt := range r.Alternatives {
			converted, err := convertBody(alt)
			if err != nil {
				return nil, fmt.Errorf("%s: rule %q: %w", file, r.Name, err)
			}
			rule.Alternatives = append(rule.Alternatives, converted)
		}
		ast.Rules = append(ast.Rules, rule)
	}

	return ast, nil
}

// pattern builds this terminal's rx.Node from its JSON description. An
// alias declaration carries no pattern of its own.
func (t jsonTerminal) pattern() (rx.Node, error) {
	if t.AliasOf != "" {
		return nil, nil
	}
	if t.Ref != "" {
		return rx.Ref{Name: t.Ref}, nil
	}
	if t.CharLo != "" {
		lo := []rune(t.CharLo)
		hi := []rune(t.CharHi)
		if len(lo) != 1 || len(hi) != 1 {
			return nil, fmt.Errorf("charLo/charHi must each be exactly one rune")
		}
		return rx.Char{Set: charset.RangeOf(lo[0], hi[0])}, nil
	}
	nodes := make([]rx.Node, 0, len(t.Literal))
	for _, r := range t.Literal {
		nodes = append(nodes, rx.Char{Set: charset.Single(r)})
	}
	if len(nodes) == 0 {
		return rx.Epsilon{}, nil
	}
	return rx.Seq(nodes...), nil
}

func convertBody(elems []jsonBodyElem) ([]loader.BodyElem, error) {
	out := make([]loader.BodyElem, 0, len(elems))
	for _, e := range elems {
		kind, ok := bodyElemKinds[e.Kind]
		if !ok {
			return nil, fmt.Errorf("unrecognized body element kind %q", e.Kind)
		}
		be := loader.BodyElem{Kind: kind, Name: e.Name, Args: e.Args}
		for _, branch := range e.Sub {
			converted, err := convertBody(branch)
			if err != nil {
				return nil, err
			}
			be.Sub = append(be.Sub, converted)
		}
		if len(e.Inner) > 0 {
			converted, err := convertBody(e.Inner)
			if err != nil {
				return nil, err
			}
			be.Inner = converted
		}
		out = append(out, be)
	}
	return out, nil
}
