package asm

import "math"

// directive dispatches one assembler directive. It may splice lines into
// the front of the queue (.include).
func (a *assembler) directive(ln srcLine, d Token, rest []Token, queue []srcLine) []srcLine {
	switch d.Text {
	case ".text":
		a.switchSegment(ln, segText, rest)
	case ".data":
		a.switchSegment(ln, segData, rest)
	case ".ktext":
		a.switchSegment(ln, segKText, rest)
	case ".kdata":
		a.switchSegment(ln, segKData, rest)
	case ".word":
		a.dataItems(ln, rest, 4)
	case ".half":
		a.dataItems(ln, rest, 2)
	case ".byte":
		a.dataItems(ln, rest, 1)
	case ".float":
		a.floatItems(ln, rest, false)
	case ".double":
		a.floatItems(ln, rest, true)
	case ".ascii":
		a.stringItems(ln, rest, false)
	case ".asciiz":
		a.stringItems(ln, rest, true)
	case ".space":
		if len(rest) != 1 || rest[0].Kind != TOK_INT || rest[0].Int < 0 {
			a.errs.Add(ln.file, ln.line, d.Col, ".space requires a non-negative size")
			return queue
		}
		a.emit(ln, make([]byte, rest[0].Int))
	case ".align":
		if len(rest) != 1 || rest[0].Kind != TOK_INT || rest[0].Int < 0 || rest[0].Int > 3 {
			a.errs.Add(ln.file, ln.line, d.Col, ".align requires a value from 0 to 3")
			return queue
		}
		if a.segs.cur.isText() {
			a.errs.Add(ln.file, ln.line, d.Col, ".align is not valid in a text segment")
			return queue
		}
		a.segs.align(uint32(rest[0].Int))
	case ".globl", ".global":
		for _, t := range rest {
			if t.Kind == TOK_COMMA {
				continue
			}
			if t.Kind != TOK_IDENT {
				a.errs.Add(ln.file, ln.line, t.Col, ".globl requires symbol names")
				continue
			}
			a.globls = append(a.globls, t)
		}
	case ".extern":
		a.extern(ln, rest)
	case ".eqv":
		if len(rest) < 2 || rest[0].Kind != TOK_IDENT {
			a.errs.Add(ln.file, ln.line, d.Col, ".eqv requires a name and a value")
			return queue
		}
		if _, ok := a.eqv[rest[0].Text]; ok {
			a.errs.Add(ln.file, ln.line, rest[0].Col, ".eqv %s already defined", rest[0].Text)
			return queue
		}
		a.eqv[rest[0].Text] = rest[1:]
	case ".set":
		// noat/at and reorder/noreorder are accepted for source
		// compatibility; register allocation policy is not modeled
		for _, t := range rest {
			switch t.Text {
			case "noat", "at", "reorder", "noreorder":
			default:
				if t.Kind != TOK_COMMA {
					a.errs.Add(ln.file, ln.line, t.Col, "unsupported .set option %q", t.Text)
				}
			}
		}
	case ".include":
		if len(rest) != 1 || rest[0].Kind != TOK_STRING {
			a.errs.Add(ln.file, ln.line, d.Col, ".include requires a quoted file name")
			return queue
		}
		data, err := a.include(rest[0].Str)
		if err != nil {
			a.errs.Add(ln.file, ln.line, d.Col, ".include %s: %v", rest[0].Str, err)
			return queue
		}
		return append(splitLines(rest[0].Str, string(data)), queue...)
	case ".end_macro":
		a.errs.Add(ln.file, ln.line, d.Col, ".end_macro without .macro")
	default:
		a.errs.Add(ln.file, ln.line, d.Col, "unknown directive %s", d.Text)
	}
	return queue
}

// switchSegment changes the current segment, optionally repositioning it
// at an explicit address.
func (a *assembler) switchSegment(ln srcLine, kind segmentKind, rest []Token) {
	a.segs.cur = kind
	if len(rest) == 0 {
		return
	}
	if len(rest) != 1 || rest[0].Kind != TOK_INT {
		a.errs.Add(ln.file, ln.line, 0, "%s takes at most one address operand", kind)
		return
	}
	addr := uint32(rest[0].Int)
	if kind.isText() && addr%4 != 0 {
		a.errs.Add(ln.file, ln.line, rest[0].Col, "%s address %#x is not word-aligned", kind, addr)
		return
	}
	a.segs.next[kind] = addr
	if !a.segs.inRange() {
		a.errs.Add(ln.file, ln.line, rest[0].Col, "address %#x is outside the %s segment", addr, kind)
	}
}

// dataItems emits .word/.half/.byte values, with value:count repetition
// and label references in .word slots.
func (a *assembler) dataItems(ln srcLine, toks []Token, size int) {
	i := 0
	for i < len(toks) {
		t := toks[i]
		switch t.Kind {
		case TOK_COMMA:
			i++
			continue
		case TOK_IDENT:
			if size != 4 {
				a.errs.Add(ln.file, ln.line, t.Col, "label value requires .word")
				i++
				continue
			}
			addr := a.emitWord(ln, 0)
			a.fixups = append(a.fixups, &wordFixup{
				file: ln.file, line: ln.line, col: t.Col,
				addr: addr, sym: t.Text,
			})
			i++
			continue
		case TOK_INT, TOK_CHAR:
		default:
			a.errs.Add(ln.file, ln.line, t.Col, "bad data value %q", t.Text)
			i++
			continue
		}
		val := t.Int
		count := int64(1)
		i++
		if i+1 < len(toks) && toks[i].Kind == TOK_COLON {
			if toks[i+1].Kind != TOK_INT || toks[i+1].Int < 0 {
				a.errs.Add(ln.file, ln.line, toks[i+1].Col, "repetition count must be a non-negative integer")
				i += 2
				continue
			}
			count = toks[i+1].Int
			i += 2
		}
		if !fits(val, size) {
			a.errs.Add(ln.file, ln.line, t.Col, "value %d does not fit in %d bytes", val, size)
			continue
		}
		for n := int64(0); n < count; n++ {
			switch size {
			case 4:
				a.emitWord(ln, uint32(val))
			case 2:
				a.emitHalf(ln, uint16(val))
			case 1:
				a.emit(ln, []byte{byte(val)})
			}
		}
	}
}

func fits(val int64, size int) bool {
	switch size {
	case 4:
		return val >= math.MinInt32 && val <= math.MaxUint32
	case 2:
		return val >= math.MinInt16 && val <= math.MaxUint16
	case 1:
		return val >= math.MinInt8 && val <= math.MaxUint8
	}
	return false
}

func (a *assembler) floatItems(ln srcLine, toks []Token, double bool) {
	for _, t := range toks {
		switch t.Kind {
		case TOK_COMMA:
		case TOK_FLOAT, TOK_INT:
			f := t.Float
			if t.Kind == TOK_INT {
				f = float64(t.Int)
			}
			if double {
				a.emitDouble(ln, f)
			} else {
				a.emitWord(ln, math.Float32bits(float32(f)))
			}
		default:
			a.errs.Add(ln.file, ln.line, t.Col, "bad floating-point value %q", t.Text)
		}
	}
}

func (a *assembler) stringItems(ln srcLine, toks []Token, zeroTerm bool) {
	for _, t := range toks {
		switch t.Kind {
		case TOK_COMMA:
		case TOK_STRING:
			b := []byte(t.Str)
			if zeroTerm {
				b = append(b, 0)
			}
			a.emit(ln, b)
		default:
			a.errs.Add(ln.file, ln.line, t.Col, "expected a string literal")
		}
	}
}

// extern allocates zeroed space in the data segment and defines the name
// as a global symbol, regardless of the current segment.
func (a *assembler) extern(ln srcLine, toks []Token) {
	if len(toks) != 2 || toks[0].Kind != TOK_IDENT || toks[1].Kind != TOK_INT || toks[1].Int <= 0 {
		a.errs.Add(ln.file, ln.line, 0, ".extern requires a symbol name and a positive size")
		return
	}
	saved := a.segs.cur
	a.segs.cur = segData
	addr := a.emit(ln, make([]byte, toks[1].Int))
	a.segs.cur = saved
	sym := &Symbol{Name: toks[0].Text, Addr: addr, File: ln.file, Line: ln.line, Data: true}
	if prev := a.global.Define(sym); prev != nil {
		a.errs.Add(ln.file, ln.line, toks[0].Col, ".extern %s already defined at %s:%d", sym.Name, prev.File, prev.Line)
	}
}
