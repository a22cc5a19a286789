package asm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Macro is a recorded .macro body. Bodies are stored tokenized; expansion
// substitutes arguments for parameters, renames body-local labels, and
// re-renders to source lines for regular line processing.
type Macro struct {
	Name   string
	Params []string
	File   string

	body   [][]Token
	lines  []int // original line numbers, parallel to body
	labels map[string]bool
	order  int // definition sequence, enforces define-before-use
}

type macroKey struct {
	name  string
	arity int
}

// MacroPool holds every macro defined so far. The pool is closed: a macro
// body may only invoke macros defined before it, which also rules out
// recursion.
type MacroPool struct {
	macros  map[macroKey]*Macro
	seq     int
	counter int // expansions so far, for local label suffixes
}

func NewMacroPool() *MacroPool {
	return &MacroPool{macros: make(map[macroKey]*Macro)}
}

func (p *MacroPool) Define(m *Macro) error {
	key := macroKey{m.Name, len(m.Params)}
	if _, ok := p.macros[key]; ok {
		return errors.Errorf("macro %s with %d parameters already defined", m.Name, len(m.Params))
	}
	p.seq++
	m.order = p.seq
	m.labels = make(map[string]bool)
	for _, toks := range m.body {
		if len(toks) >= 2 && toks[0].Kind == TOK_IDENT && toks[1].Kind == TOK_COLON {
			m.labels[toks[0].Text] = true
		}
	}
	p.macros[key] = m
	return nil
}

// Lookup matches an invocation by name and argument count. callerOrder is
// the defining order of the macro whose body is being expanded, or 0 at
// top level.
func (p *MacroPool) Lookup(name string, arity, callerOrder int) *Macro {
	m := p.macros[macroKey{name, arity}]
	if m == nil {
		return nil
	}
	if callerOrder > 0 && m.order >= callerOrder {
		// forward reference or self-reference from inside a macro body
		return nil
	}
	return m
}

// IsMacro reports whether any macro with this name exists, regardless of
// arity. Used to produce a better diagnostic on arity mismatch.
func (p *MacroPool) IsMacro(name string) bool {
	for key := range p.macros {
		if key.name == name {
			return true
		}
	}
	return false
}

// srcLine is one line of input in flight during pass 1: original text plus
// provenance, and the order of the macro it was expanded from (0 for
// lines straight from a file).
type srcLine struct {
	file  string
	line  int
	text  string
	order int
}

// Expand substitutes args into the macro body and returns the resulting
// source lines. Labels defined in the body get a per-expansion suffix so
// repeated expansions do not collide.
func (p *MacroPool) Expand(m *Macro, args [][]Token) ([]srcLine, error) {
	if len(args) != len(m.Params) {
		return nil, errors.Errorf("macro %s wants %d arguments, got %d", m.Name, len(m.Params), len(args))
	}
	p.counter++
	suffix := fmt.Sprintf("_M%d", p.counter)
	byParam := make(map[string][]Token, len(args))
	for i, param := range m.Params {
		byParam[param] = args[i]
	}
	out := make([]srcLine, 0, len(m.body))
	for n, toks := range m.body {
		expanded := make([]Token, 0, len(toks))
		for _, t := range toks {
			switch {
			case t.Kind == TOK_MACRO_PARAM:
				arg, ok := byParam[t.Text]
				if !ok {
					return nil, errors.Errorf("macro %s: unknown parameter %s", m.Name, t.Text)
				}
				expanded = append(expanded, arg...)
			case t.Kind == TOK_IDENT && m.labels[t.Text]:
				t.Text += suffix
				expanded = append(expanded, t)
			default:
				expanded = append(expanded, t)
			}
		}
		out = append(out, srcLine{
			file:  m.File,
			line:  m.lines[n],
			text:  render(expanded),
			order: m.order,
		})
	}
	return out, nil
}

// splitArgs breaks a macro invocation's operand tokens into per-argument
// slices. One optional outer paren pair around the whole list is allowed.
func splitArgs(toks []Token) [][]Token {
	if len(toks) >= 2 && toks[0].Kind == TOK_LPAREN && toks[len(toks)-1].Kind == TOK_RPAREN {
		depth := 0
		balanced := true
		for i, t := range toks {
			switch t.Kind {
			case TOK_LPAREN:
				depth++
			case TOK_RPAREN:
				depth--
				if depth == 0 && i != len(toks)-1 {
					balanced = false
				}
			}
		}
		if balanced && depth == 0 {
			toks = toks[1 : len(toks)-1]
		}
	}
	if len(toks) == 0 {
		return nil
	}
	var args [][]Token
	start := 0
	depth := 0
	for i, t := range toks {
		switch t.Kind {
		case TOK_LPAREN:
			depth++
		case TOK_RPAREN:
			depth--
		case TOK_COMMA:
			if depth == 0 {
				args = append(args, toks[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, toks[start:])
	return args
}
