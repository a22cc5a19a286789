package asm

import (
	"encoding/binary"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/nhubbard/mars-sub006/mips"
)

// SourceFile is one input to the assembler.
type SourceFile struct {
	Name string
	Text string
}

// Options control an assembly run.
type Options struct {
	// Extended permits pseudo-instructions (li, la, move, ...).
	Extended bool
	// MaxErrors caps accumulated diagnostics; 0 means DefaultMaxErrors.
	MaxErrors int
	// ByteOrder for data directives; nil means little-endian.
	ByteOrder binary.ByteOrder
	// Include loads a .include target; nil means read from disk.
	Include func(name string) ([]byte, error)
}

// Chunk is a run of initialized bytes at an absolute address.
type Chunk struct {
	Addr  uint32
	Bytes []byte
}

// Program is the output of a successful assembly: encoded statements in
// address order, initialized data, and the symbol tables.
type Program struct {
	Stmts    []*mips.Stmt
	Data     []Chunk
	Globals  *SymbolTable
	Locals   map[string]*SymbolTable
	Entry    uint32
	HasKText bool

	// end of allocation per segment, for memory mapping
	TextEnd  uint32
	DataEnd  uint32
	KTextEnd uint32
	KDataEnd uint32
}

// StmtAt finds the statement at an exact address, nil if none.
func (p *Program) StmtAt(addr uint32) *mips.Stmt {
	lo, hi := 0, len(p.Stmts)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Stmts[mid].Addr < addr {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.Stmts) && p.Stmts[lo].Addr == addr {
		return p.Stmts[lo]
	}
	return nil
}

type opKind int

const (
	opReg opKind = iota
	opFReg
	opImm
	opLabel
	opHiLo
)

// operand is one parsed instruction operand. Memory operands off(base)
// are flattened into an opImm followed by an opReg before this stage.
type operand struct {
	kind opKind
	reg  int
	val  int64
	sym  string
	low  bool // %lo rather than %hi
	col  int
}

// textItem is a provisional instruction from pass 1, awaiting symbol
// resolution and encoding in pass 2.
type textItem struct {
	file   string
	line   int
	source string
	addr   uint32
	ins    *mips.Instruction
	ops    []operand
}

// wordFixup patches a .word slot with a label's address in pass 2.
type wordFixup struct {
	file string
	line int
	col  int
	addr uint32
	sym  string
}

type assembler struct {
	opts    Options
	order   binary.ByteOrder
	catalog *mips.Catalog
	errs    *ErrorList

	segs    *segments
	global  *SymbolTable
	locals  map[string]*SymbolTable
	items   []*textItem
	chunks  map[segmentKind][]Chunk
	fixups  []*wordFixup

	// per-file state
	file   string
	local  *SymbolTable
	pool   *MacroPool
	eqv    map[string][]Token
	globls []Token
}

// Assemble runs the two-pass assembly over a set of source files sharing
// one global symbol table and one memory layout.
func Assemble(files []SourceFile, opts Options, catalog *mips.Catalog) (*Program, error) {
	if catalog == nil {
		catalog = mips.NewCatalog()
	}
	order := opts.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	a := &assembler{
		opts:    opts,
		order:   order,
		catalog: catalog,
		errs:    NewErrorList(opts.MaxErrors),
		segs:    newSegments(),
		global:  NewSymbolTable(),
		locals:  make(map[string]*SymbolTable),
		chunks:  make(map[segmentKind][]Chunk),
	}
	for _, f := range files {
		a.passOne(f)
	}
	// pass 2 still runs after pass 1 errors so diagnostics from both
	// passes are reported together
	prog := a.passTwo()
	if !a.errs.Empty() {
		return nil, a.errs
	}
	return prog, nil
}

// AssembleFiles reads the named files from disk and assembles them.
func AssembleFiles(names []string, opts Options, catalog *mips.Catalog) (*Program, error) {
	var files []SourceFile
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, errors.Wrap(err, "read source")
		}
		files = append(files, SourceFile{Name: name, Text: string(data)})
	}
	return Assemble(files, opts, catalog)
}

func (a *assembler) include(name string) ([]byte, error) {
	if a.opts.Include != nil {
		return a.opts.Include(name)
	}
	return os.ReadFile(name)
}

func splitLines(file, text string) []srcLine {
	raw := strings.Split(text, "\n")
	out := make([]srcLine, len(raw))
	for i, t := range raw {
		out[i] = srcLine{file: file, line: i + 1, text: t}
	}
	return out
}

// passOne processes one file: records symbols and macros, expands macros
// and pseudo-instructions, allocates addresses, and emits data bytes.
func (a *assembler) passOne(f SourceFile) {
	a.file = f.Name
	a.local = NewSymbolTable()
	a.locals[f.Name] = a.local
	a.pool = NewMacroPool()
	a.eqv = make(map[string][]Token)
	a.globls = nil
	a.segs.cur = segText

	queue := splitLines(f.Name, f.Text)
	for len(queue) > 0 {
		ln := queue[0]
		queue = queue[1:]
		toks, err := tokenize(ln.text)
		if err != nil {
			a.errs.Add(ln.file, ln.line, 0, "%v", err)
			continue
		}
		toks = a.substituteEqv(toks)

		// macro recording consumes lines up to .end_macro
		if len(toks) > 0 && toks[0].Kind == TOK_DIRECTIVE && toks[0].Text == ".macro" {
			queue = a.recordMacro(ln, toks[1:], queue)
			continue
		}

		labels, rest := splitLabels(toks)
		if len(rest) > 0 && rest[0].Kind == TOK_DIRECTIVE {
			a.alignForDirective(rest[0].Text)
			a.defineLabels(ln, labels)
			queue = a.directive(ln, rest[0], rest[1:], queue)
			continue
		}
		a.defineLabels(ln, labels)
		if len(rest) == 0 {
			continue
		}
		if rest[0].Kind != TOK_IDENT {
			a.errs.Add(ln.file, ln.line, rest[0].Col, "expected instruction or directive, got %s", rest[0].Kind)
			continue
		}
		queue = a.instruction(ln, rest, queue)
	}
	a.promoteGlobals()
}

// splitLabels peels "name:" prefixes off a token line. Multiple labels on
// one line all bind to the same address.
func splitLabels(toks []Token) (labels []Token, rest []Token) {
	rest = toks
	for len(rest) >= 2 && rest[0].Kind == TOK_IDENT && rest[1].Kind == TOK_COLON {
		labels = append(labels, rest[0])
		rest = rest[2:]
	}
	return labels, rest
}

func (a *assembler) defineLabels(ln srcLine, labels []Token) {
	for _, t := range labels {
		sym := &Symbol{
			Name: t.Text,
			Addr: a.segs.pos(),
			File: ln.file,
			Line: ln.line,
			Data: !a.segs.cur.isText(),
		}
		if prev := a.local.Define(sym); prev != nil {
			a.errs.Add(ln.file, ln.line, t.Col, "label %q already defined at %s:%d", t.Text, prev.File, prev.Line)
		}
	}
}

// alignForDirective applies the natural alignment of sized data
// directives before any label on the line binds.
func (a *assembler) alignForDirective(name string) {
	if a.segs.cur.isText() {
		return
	}
	switch name {
	case ".half":
		a.segs.align(1)
	case ".word", ".float":
		a.segs.align(2)
	case ".double":
		a.segs.align(3)
	}
}

func (a *assembler) substituteEqv(toks []Token) []Token {
	if len(a.eqv) == 0 {
		return toks
	}
	// .eqv lines themselves must not have their name substituted
	if len(toks) > 0 && toks[0].Kind == TOK_DIRECTIVE && toks[0].Text == ".eqv" {
		return toks
	}
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == TOK_IDENT {
			if repl, ok := a.eqv[t.Text]; ok {
				out = append(out, repl...)
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// recordMacro consumes the macro header and body lines through
// .end_macro, defining the macro in the file's pool.
func (a *assembler) recordMacro(ln srcLine, header []Token, queue []srcLine) []srcLine {
	if len(header) == 0 || header[0].Kind != TOK_IDENT {
		a.errs.Add(ln.file, ln.line, 0, ".macro requires a name")
		header = []Token{{Kind: TOK_IDENT, Text: "_invalid"}}
	}
	m := &Macro{Name: header[0].Text, File: ln.file}
	for _, arg := range splitArgs(header[1:]) {
		if len(arg) != 1 || arg[0].Kind != TOK_MACRO_PARAM {
			a.errs.Add(ln.file, ln.line, 0, "macro parameters must be written %%name")
			continue
		}
		m.Params = append(m.Params, arg[0].Text)
	}
	for len(queue) > 0 {
		body := queue[0]
		queue = queue[1:]
		toks, err := tokenize(body.text)
		if err != nil {
			a.errs.Add(body.file, body.line, 0, "%v", err)
			continue
		}
		if len(toks) > 0 && toks[0].Kind == TOK_DIRECTIVE {
			switch toks[0].Text {
			case ".end_macro":
				if err := a.pool.Define(m); err != nil {
					a.errs.Add(ln.file, ln.line, 0, "%v", err)
				}
				return queue
			case ".macro":
				a.errs.Add(body.file, body.line, 0, "nested macro definitions are not allowed")
				continue
			}
		}
		if len(toks) == 0 {
			continue
		}
		m.body = append(m.body, toks)
		m.lines = append(m.lines, body.line)
	}
	a.errs.Add(ln.file, ln.line, 0, "macro %s has no .end_macro", m.Name)
	return queue
}

// instruction handles a mnemonic line: macro invocation, extended
// instruction, or basic instruction.
func (a *assembler) instruction(ln srcLine, toks []Token, queue []srcLine) []srcLine {
	name := toks[0].Text
	argToks := toks[1:]
	args := splitArgs(argToks)

	if m := a.pool.Lookup(name, len(args), ln.order); m != nil {
		lines, err := a.pool.Expand(m, args)
		if err != nil {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "%v", err)
			return queue
		}
		return append(lines, queue...)
	}
	if a.pool.IsMacro(name) {
		a.errs.Add(ln.file, ln.line, toks[0].Col, "no macro %s takes %d arguments", name, len(args))
		return queue
	}

	if p := mips.LookupPseudo(name); p != nil && (a.opts.Extended || p.Basic) {
		if len(args) != p.Operands {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "%s wants %d operands, got %d", name, p.Operands, len(args))
			return queue
		}
		rendered := make([]string, len(args))
		for i, arg := range args {
			rendered[i] = render(arg)
		}
		lines, err := p.Expand(rendered)
		if err != nil {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "%v", err)
			return queue
		}
		expanded := make([]srcLine, len(lines))
		for i, text := range lines {
			expanded[i] = srcLine{file: ln.file, line: ln.line, text: text, order: ln.order}
		}
		return append(expanded, queue...)
	}

	if !a.segs.cur.isText() {
		a.errs.Add(ln.file, ln.line, toks[0].Col, "instruction in %s segment", a.segs.cur)
		return queue
	}

	ops, err := parseOperands(argToks)
	if err != nil {
		a.errs.Add(ln.file, ln.line, toks[0].Col, "%s: %v", name, err)
		return queue
	}
	ins := a.catalog.FindByMnemonic(name, len(ops))
	if ins == nil {
		if p := mips.LookupPseudo(name); p != nil {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "%s is an extended instruction; extended instructions are disabled", name)
		} else if len(a.catalog.Lookup(name)) > 0 {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "wrong operand count for %s", name)
		} else {
			a.errs.Add(ln.file, ln.line, toks[0].Col, "unknown instruction %q", name)
		}
		return queue
	}
	addr := a.segs.advance(4)
	if !a.segs.inRange() {
		a.errs.Add(ln.file, ln.line, 0, "%s segment overflow", a.segs.cur)
		return queue
	}
	a.items = append(a.items, &textItem{
		file:   ln.file,
		line:   ln.line,
		source: strings.TrimSpace(ln.text),
		addr:   addr,
		ins:    ins,
		ops:    ops,
	})
	return queue
}

// parseOperands converts operand tokens to the flattened operand list.
// off(base) memory references become an immediate followed by a register.
func parseOperands(toks []Token) ([]operand, error) {
	var ops []operand
	i := 0
	for i < len(toks) {
		t := toks[i]
		switch t.Kind {
		case TOK_COMMA:
			i++
		case TOK_REGISTER:
			n, isFloat, err := mips.RegNum(t.Text)
			if err != nil {
				return nil, err
			}
			kind := opReg
			if isFloat {
				kind = opFReg
			}
			ops = append(ops, operand{kind: kind, reg: n, col: t.Col})
			i++
		case TOK_INT, TOK_CHAR:
			ops = append(ops, operand{kind: opImm, val: t.Int, col: t.Col})
			i++
			// off(base) flattens to immediate, register
			if i < len(toks) && toks[i].Kind == TOK_LPAREN {
				reg, n, err := parseBase(toks[i:])
				if err != nil {
					return nil, err
				}
				ops = append(ops, operand{kind: opReg, reg: reg, col: toks[i].Col})
				i += n
			}
		case TOK_LPAREN:
			// bare (base) means offset zero
			reg, n, err := parseBase(toks[i:])
			if err != nil {
				return nil, err
			}
			ops = append(ops,
				operand{kind: opImm, val: 0, col: t.Col},
				operand{kind: opReg, reg: reg, col: t.Col})
			i += n
		case TOK_IDENT:
			ops = append(ops, operand{kind: opLabel, sym: t.Text, col: t.Col})
			i++
		case TOK_HI, TOK_LO:
			if i+3 >= len(toks) || toks[i+1].Kind != TOK_LPAREN ||
				toks[i+2].Kind != TOK_IDENT || toks[i+3].Kind != TOK_RPAREN {
				return nil, errors.Errorf("%s requires a (label) argument", t.Text)
			}
			ops = append(ops, operand{
				kind: opHiLo,
				sym:  toks[i+2].Text,
				low:  t.Kind == TOK_LO,
				col:  t.Col,
			})
			i += 4
		default:
			return nil, errors.Errorf("unexpected %s in operands", t.Kind)
		}
	}
	return ops, nil
}

func parseBase(toks []Token) (reg, consumed int, err error) {
	if len(toks) < 3 || toks[1].Kind != TOK_REGISTER || toks[2].Kind != TOK_RPAREN {
		return 0, 0, errors.New("expected (register) base")
	}
	n, isFloat, err := mips.RegNum(toks[1].Text)
	if err != nil {
		return 0, 0, err
	}
	if isFloat {
		return 0, 0, errors.New("base register cannot be a float register")
	}
	return n, 3, nil
}

// promoteGlobals moves queued .globl symbols from the file's local table
// into the shared global table.
func (a *assembler) promoteGlobals() {
	for _, t := range a.globls {
		sym := a.local.Get(t.Text)
		if sym == nil {
			a.errs.Add(a.file, 0, 0, ".globl %s: symbol not defined in this file", t.Text)
			continue
		}
		if prev := a.global.Define(sym); prev != nil {
			a.errs.Add(sym.File, sym.Line, 0, "global symbol %q already defined at %s:%d", t.Text, prev.File, prev.Line)
			continue
		}
		a.local.Remove(t.Text)
	}
}

// emit appends initialized bytes at the current segment position,
// extending the previous chunk when contiguous.
func (a *assembler) emit(ln srcLine, b []byte) uint32 {
	if a.segs.cur.isText() {
		a.errs.Add(ln.file, ln.line, 0, "data directive in %s segment", a.segs.cur)
		return a.segs.pos()
	}
	addr := a.segs.advance(uint32(len(b)))
	if !a.segs.inRange() {
		a.errs.Add(ln.file, ln.line, 0, "%s segment overflow", a.segs.cur)
		return addr
	}
	chunks := a.chunks[a.segs.cur]
	if n := len(chunks); n > 0 {
		last := &chunks[n-1]
		if last.Addr+uint32(len(last.Bytes)) == addr {
			last.Bytes = append(last.Bytes, b...)
			return addr
		}
	}
	a.chunks[a.segs.cur] = append(chunks, Chunk{Addr: addr, Bytes: b})
	return addr
}

func (a *assembler) emitWord(ln srcLine, v uint32) uint32 {
	var b [4]byte
	a.order.PutUint32(b[:], v)
	return a.emit(ln, b[:])
}

func (a *assembler) emitHalf(ln srcLine, v uint16) {
	var b [2]byte
	a.order.PutUint16(b[:], v)
	a.emit(ln, b[:])
}

func (a *assembler) emitDouble(ln srcLine, f float64) {
	var b [8]byte
	a.order.PutUint64(b[:], math.Float64bits(f))
	a.emit(ln, b[:])
}
