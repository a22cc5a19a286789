package mips

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nhubbard/mars-sub006/models/cpu"
)

// operand layout classes
type Format int

const (
	FmtR       Format = iota // register-only operands
	FmtI                     // immediate or immediate+base
	FmtIBranch               // PC-relative branch
	FmtJ                     // absolute jump
)

func (f Format) String() string {
	switch f {
	case FmtR:
		return "R"
	case FmtI:
		return "I"
	case FmtIBranch:
		return "I-branch"
	case FmtJ:
		return "J"
	}
	return "?"
}

// Field is one operand slot in a bit template: a contiguous run of the
// same placeholder letter.
type Field struct {
	Letter byte
	Shift  uint // bit position of the field's LSB
	Bits   uint
}

func (f Field) mask() uint32 {
	return (1<<f.Bits - 1) << f.Shift
}

// State is the machine surface instruction behaviors mutate. Behaviors go
// through this contract only; alignment and zero-register rules are
// enforced underneath it.
type State interface {
	Reg(n int) uint32
	SetReg(n int, val uint32)
	Hi() uint32
	Lo() uint32
	SetHi(val uint32)
	SetLo(val uint32)
	Mem() *cpu.Mem
	Cop0() *cpu.SparseRegs
	Cop1() *cpu.FloatRegs

	// Branch registers a delayed control transfer: the instruction in the
	// delay slot still executes before the target takes effect.
	Branch(target uint32)
	// Jump transfers control with no delay slot (eret).
	Jump(target uint32)

	// Syscall dispatches the service trap for the current statement.
	Syscall(st *Stmt) error
}

// Stmt is one assembled instruction occurrence: source provenance, the
// operand values in template field order, the encoded word and its
// address. Immutable once committed by the assembler.
type Stmt struct {
	Source string
	File   string
	Line   int
	Addr   uint32
	Word   uint32
	Ins    *Instruction
	Ops    []uint32
}

// Op returns the operand for a template letter, e.g. st.Op('d').
func (st *Stmt) Op(letter byte) uint32 {
	for i, f := range st.Ins.Fields {
		if f.Letter == letter {
			return st.Ops[i]
		}
	}
	return 0
}

func (st *Stmt) String() string {
	return fmt.Sprintf("%#08x: %#08x %s", st.Addr, st.Word, st.Source)
}

// Instruction is an immutable descriptor: syntax, encoding template and
// execution behavior. The template is 32 characters of fixed '0'/'1' bits
// and operand placeholder letters; Match/Mask and the operand field list
// are derived from it at catalog build time.
type Instruction struct {
	Name        string
	Example     string
	Description string
	Format      Format
	Template    string

	// operand letters in assembly-syntax order, e.g. "dst" for add
	Syntax string

	Match  uint32
	Mask   uint32
	Fields []Field

	Exec func(s State, st *Stmt) error
}

// parseTemplate derives Match, Mask and the operand fields. Fields are
// collected in template order: the first-seen placeholder letter becomes
// operand 0. Discontiguous reuse of a letter is a programming error.
func (i *Instruction) parseTemplate() error {
	t := strings.ReplaceAll(i.Template, " ", "")
	if len(t) != 32 {
		return errors.Errorf("%s: template must have 32 bits, has %d", i.Name, len(t))
	}
	seen := map[byte]bool{}
	var last byte
	for pos := 0; pos < 32; pos++ {
		c := t[pos]
		shift := uint(31 - pos)
		switch c {
		case '0':
			i.Mask |= 1 << shift
		case '1':
			i.Mask |= 1 << shift
			i.Match |= 1 << shift
		default:
			if c < 'a' || c > 'z' {
				return errors.Errorf("%s: bad template char %q", i.Name, c)
			}
			if c == last {
				f := &i.Fields[len(i.Fields)-1]
				f.Shift = shift
				f.Bits++
			} else {
				if seen[c] {
					return errors.Errorf("%s: discontiguous field %q", i.Name, c)
				}
				seen[c] = true
				i.Fields = append(i.Fields, Field{Letter: c, Shift: shift, Bits: 1})
			}
		}
		if c != '0' && c != '1' {
			last = c
		} else {
			last = 0
		}
	}
	for _, l := range []byte(i.Syntax) {
		if !seen[l] {
			return errors.Errorf("%s: syntax letter %q missing from template", i.Name, l)
		}
	}
	return nil
}

// Encode packs operand values (in template field order) into the word.
func (i *Instruction) Encode(ops []uint32) (uint32, error) {
	if len(ops) != len(i.Fields) {
		return 0, errors.Errorf("%s: want %d operands, got %d", i.Name, len(i.Fields), len(ops))
	}
	word := i.Match
	for n, f := range i.Fields {
		if ops[n] > 1<<f.Bits-1 {
			return 0, errors.Errorf("%s: operand %d value %#x exceeds %d bits", i.Name, n, ops[n], f.Bits)
		}
		word |= ops[n] << f.Shift
	}
	return word, nil
}

// EncodeSyntax packs operand values given in assembly-syntax order.
func (i *Instruction) EncodeSyntax(ops []uint32) (uint32, error) {
	if len(ops) != len(i.Syntax) {
		return 0, errors.Errorf("%s: want %d operands, got %d", i.Name, len(i.Syntax), len(ops))
	}
	byLetter := make(map[byte]uint32, len(ops))
	for n := range ops {
		byLetter[i.Syntax[n]] = ops[n]
	}
	full := make([]uint32, len(i.Fields))
	for n, f := range i.Fields {
		full[n] = byLetter[f.Letter]
	}
	return i.Encode(full)
}

// ExtractOps pulls operand values out of a matched word, template order.
func (i *Instruction) ExtractOps(word uint32) []uint32 {
	ops := make([]uint32, len(i.Fields))
	for n, f := range i.Fields {
		ops[n] = (word & f.mask()) >> f.Shift
	}
	return ops
}

// Disassemble renders a decoded word using the instruction's syntax.
func (i *Instruction) Disassemble(st *Stmt) string {
	if len(i.Syntax) == 0 {
		return i.Name
	}
	args := make([]string, len(i.Syntax))
	for n := 0; n < len(i.Syntax); n++ {
		l := i.Syntax[n]
		v := st.Op(l)
		switch l {
		case 'd', 's', 't':
			args[n] = "$" + RegNames[v]
		case 'f', 'g':
			args[n] = fmt.Sprintf("$f%d", v)
		case 'x':
			args[n] = fmt.Sprintf("$%d", v)
		case 'b':
			args[n] = fmt.Sprintf("%d", int32(signExt16(v))<<2)
		case 'j':
			args[n] = fmt.Sprintf("%#x", v<<2)
		case 'i':
			args[n] = fmt.Sprintf("%d", int32(signExt16(v)))
		default:
			args[n] = fmt.Sprintf("%d", v)
		}
	}
	return i.Name + " " + strings.Join(args, ", ")
}

func signExt16(v uint32) uint32 {
	return uint32(int32(int16(uint16(v))))
}

func signExt8(v uint32) uint32 {
	return uint32(int32(int8(uint8(v))))
}
