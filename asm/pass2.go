package asm

import (
	"sort"

	"github.com/nhubbard/mars-sub006/mips"
)

// passTwo resolves symbols, encodes every provisional instruction, and
// patches .word label slots.
func (a *assembler) passTwo() *Program {
	prog := &Program{
		Globals:  a.global,
		Locals:   a.locals,
		Entry:    TextBase,
		TextEnd:  a.segs.next[segText],
		DataEnd:  a.segs.next[segData],
		KTextEnd: a.segs.next[segKText],
		KDataEnd: a.segs.next[segKData],
	}
	if main := a.global.Get("main"); main != nil && !main.Data {
		prog.Entry = main.Addr
	}

	for _, fx := range a.fixups {
		scope := scopedSymbols{local: a.locals[fx.file], global: a.global}
		sym := scope.lookup(fx.sym)
		if sym == nil {
			a.errs.Add(fx.file, fx.line, fx.col, "undefined symbol %q", fx.sym)
			continue
		}
		a.patchWord(fx.addr, sym.Addr)
	}

	for _, item := range a.items {
		scope := scopedSymbols{local: a.locals[item.file], global: a.global}
		vals, ok := a.resolve(item, scope)
		if !ok {
			continue
		}
		word, err := item.ins.EncodeSyntax(vals)
		if err != nil {
			a.errs.Add(item.file, item.line, 0, "%v", err)
			continue
		}
		stmt := &mips.Stmt{
			Source: item.source,
			File:   item.file,
			Line:   item.line,
			Addr:   item.addr,
			Word:   word,
			Ins:    item.ins,
			Ops:    item.ins.ExtractOps(word),
		}
		prog.Stmts = append(prog.Stmts, stmt)
		if item.addr >= KTextBase {
			prog.HasKText = true
		}
	}
	sort.Slice(prog.Stmts, func(i, j int) bool {
		return prog.Stmts[i].Addr < prog.Stmts[j].Addr
	})

	for _, kind := range []segmentKind{segData, segKData} {
		prog.Data = append(prog.Data, a.chunks[kind]...)
	}
	return prog
}

// patchWord rewrites an already-emitted .word slot in place.
func (a *assembler) patchWord(addr, val uint32) {
	for _, chunks := range a.chunks {
		for i := range chunks {
			c := &chunks[i]
			if addr >= c.Addr && addr+4 <= c.Addr+uint32(len(c.Bytes)) {
				a.order.PutUint32(c.Bytes[addr-c.Addr:], val)
				return
			}
		}
	}
}

// resolve converts an instruction's parsed operands to field values in
// assembly-syntax order, applying per-letter validation.
func (a *assembler) resolve(item *textItem, scope scopedSymbols) ([]uint32, bool) {
	syntax := item.ins.Syntax
	vals := make([]uint32, len(syntax))
	ok := true
	fail := func(col int, format string, args ...interface{}) {
		a.errs.Add(item.file, item.line, col, format, args...)
		ok = false
	}
	lookup := func(op operand) (*Symbol, bool) {
		sym := scope.lookup(op.sym)
		if sym == nil {
			fail(op.col, "undefined symbol %q", op.sym)
			return nil, false
		}
		return sym, true
	}

	for n := 0; n < len(syntax); n++ {
		op := item.ops[n]
		switch letter := syntax[n]; letter {
		case 'd', 's', 't':
			if op.kind != opReg {
				fail(op.col, "operand %d of %s must be a register", n+1, item.ins.Name)
				continue
			}
			vals[n] = uint32(op.reg)
		case 'f', 'g':
			if op.kind != opFReg {
				fail(op.col, "operand %d of %s must be a float register", n+1, item.ins.Name)
				continue
			}
			vals[n] = uint32(op.reg)
		case 'a':
			if op.kind != opImm || op.val < 0 || op.val > 31 {
				fail(op.col, "shift amount must be 0 to 31")
				continue
			}
			vals[n] = uint32(op.val)
		case 'c':
			if op.kind != opImm || op.val < 0 || op.val > 0xfffff {
				fail(op.col, "break code must be 0 to %d", 0xfffff)
				continue
			}
			vals[n] = uint32(op.val)
		case 'i':
			switch op.kind {
			case opImm:
				if op.val < -0x8000 || op.val > 0xffff {
					fail(op.col, "immediate %d does not fit in 16 bits", op.val)
					continue
				}
				vals[n] = uint32(op.val) & 0xffff
			case opHiLo:
				sym, found := lookup(op)
				if !found {
					continue
				}
				if op.low {
					vals[n] = sym.Addr & 0xffff
				} else {
					vals[n] = sym.Addr >> 16
				}
			default:
				fail(op.col, "operand %d of %s must be an immediate", n+1, item.ins.Name)
			}
		case 'b':
			switch op.kind {
			case opLabel:
				sym, found := lookup(op)
				if !found {
					continue
				}
				rel := (int64(sym.Addr) - int64(item.addr+4)) / 4
				if rel < -0x8000 || rel > 0x7fff {
					fail(op.col, "branch to %q is out of range", op.sym)
					continue
				}
				vals[n] = uint32(rel) & 0xffff
			case opImm:
				if op.val < -0x8000 || op.val > 0x7fff {
					fail(op.col, "branch offset %d does not fit in 16 bits", op.val)
					continue
				}
				vals[n] = uint32(op.val) & 0xffff
			default:
				fail(op.col, "operand %d of %s must be a label", n+1, item.ins.Name)
			}
		case 'j':
			var target uint32
			switch op.kind {
			case opLabel:
				sym, found := lookup(op)
				if !found {
					continue
				}
				target = sym.Addr
			case opImm:
				target = uint32(op.val)
			default:
				fail(op.col, "operand %d of %s must be a label or address", n+1, item.ins.Name)
				continue
			}
			if target%4 != 0 {
				fail(op.col, "jump target %#x is not word-aligned", target)
				continue
			}
			if target&0xf0000000 != (item.addr+4)&0xf0000000 {
				fail(op.col, "jump target %#x crosses a 256MB boundary", target)
				continue
			}
			vals[n] = target >> 2 & 0x03ffffff
		case 'x':
			switch {
			case op.kind == opReg:
				vals[n] = uint32(op.reg)
			case op.kind == opImm && op.val >= 0 && op.val < 32:
				vals[n] = uint32(op.val)
			default:
				fail(op.col, "operand %d of %s must be a coprocessor 0 register", n+1, item.ins.Name)
			}
		default:
			fail(op.col, "unhandled operand letter %q", letter)
		}
	}
	return vals, ok
}
