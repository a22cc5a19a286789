package mips

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nhubbard/mars-sub006/models/cpu"
)

// Catalog resolves raw 32-bit words to instruction descriptors and owns
// the full basic instruction set. Matching rule: (word & Mask) == Match.
// At most one descriptor may match any encoding; overlap is a build-time
// programming error.
type Catalog struct {
	list   []*Instruction
	byName map[string][]*Instruction
}

// memFault converts a memory error from the hardware model into the
// matching processing exception.
func memFault(err error, st *Stmt, store bool) error {
	if err == nil {
		return nil
	}
	cause := CAUSE_ADDRL
	if store {
		cause = CAUSE_ADDRS
	}
	if merr, ok := err.(*cpu.MemError); ok {
		return &Exception{Cause: cause, Addr: merr.Addr, Stmt: st}
	}
	return err
}

func branchTarget(st *Stmt) uint32 {
	return st.Addr + 4 + signExt16(st.Op('b'))<<2
}

func jumpTarget(st *Stmt) uint32 {
	return (st.Addr+4)&0xf0000000 | st.Op('j')<<2
}

// addOvf returns the sum and whether signed 32-bit overflow occurred.
func addOvf(a, b uint32) (uint32, bool) {
	sum := a + b
	return sum, (a^b)&0x80000000 == 0 && (a^sum)&0x80000000 != 0
}

func subOvf(a, b uint32) (uint32, bool) {
	diff := a - b
	return diff, (a^b)&0x80000000 != 0 && (a^diff)&0x80000000 != 0
}

func load(s State, st *Stmt, size int, signed bool) error {
	addr := s.Reg(int(st.Op('s'))) + signExt16(st.Op('i'))
	val, err := s.Mem().ReadUint(addr, size, cpu.PROT_READ)
	if err != nil {
		return memFault(err, st, false)
	}
	if signed {
		switch size {
		case 1:
			val = signExt8(val)
		case 2:
			val = signExt16(val)
		}
	}
	s.SetReg(int(st.Op('t')), val)
	return nil
}

func store(s State, st *Stmt, size int) error {
	addr := s.Reg(int(st.Op('s'))) + signExt16(st.Op('i'))
	val := s.Reg(int(st.Op('t')))
	err := s.Mem().WriteUint(addr, size, cpu.PROT_WRITE, val)
	return memFault(err, st, true)
}

// NewCatalog builds the instruction set and panics on template errors or
// ambiguous encodings, both of which are programming errors.
func NewCatalog() *Catalog {
	c := &Catalog{byName: make(map[string][]*Instruction)}
	for _, ins := range basicSet() {
		if err := ins.parseTemplate(); err != nil {
			panic(err)
		}
		c.list = append(c.list, ins)
		c.byName[ins.Name] = append(c.byName[ins.Name], ins)
	}
	if err := c.checkOverlap(); err != nil {
		panic(err)
	}
	return c
}

// checkOverlap verifies no two descriptors can match the same word: for a
// collision, the fixed bits both templates share must agree.
func (c *Catalog) checkOverlap() error {
	for i, a := range c.list {
		for _, b := range c.list[i+1:] {
			common := a.Mask & b.Mask
			if a.Match&common == b.Match&common {
				return errors.Errorf("ambiguous encodings: %s and %s", a.Name, b.Name)
			}
		}
	}
	return nil
}

// Decode finds the unique descriptor matching word and extracts operands.
// A word matching no descriptor is a reserved-instruction fault.
func (c *Catalog) Decode(addr, word uint32) (*Stmt, error) {
	for _, ins := range c.list {
		if word&ins.Mask == ins.Match {
			return &Stmt{
				Addr: addr,
				Word: word,
				Ins:  ins,
				Ops:  ins.ExtractOps(word),
			}, nil
		}
	}
	return nil, &Exception{
		Cause: CAUSE_RI,
		Addr:  addr,
		Msg:   fmt.Sprintf("reserved instruction %#08x", word),
	}
}

// FindByMnemonic locates the descriptor for a mnemonic with the given
// operand count, the compatibility rule pass 2 of the assembler applies.
func (c *Catalog) FindByMnemonic(name string, operands int) *Instruction {
	for _, ins := range c.byName[name] {
		if len(ins.Syntax) == operands {
			return ins
		}
	}
	return nil
}

// Lookup returns all descriptors for a mnemonic.
func (c *Catalog) Lookup(name string) []*Instruction {
	return c.byName[name]
}

// All returns every descriptor in the catalog.
func (c *Catalog) All() []*Instruction {
	return c.list
}

func basicSet() []*Instruction {
	return []*Instruction{
		// shifts
		{
			Name: "sll", Example: "sll $t1,$t2,10", Format: FmtR, Syntax: "dta",
			Description: "shift left logical",
			Template:    "000000 00000 ttttt ddddd aaaaa 000000",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('t')))<<st.Op('a'))
				return nil
			},
		},
		{
			Name: "srl", Example: "srl $t1,$t2,10", Format: FmtR, Syntax: "dta",
			Description: "shift right logical",
			Template:    "000000 00000 ttttt ddddd aaaaa 000010",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('t')))>>st.Op('a'))
				return nil
			},
		},
		{
			Name: "sra", Example: "sra $t1,$t2,10", Format: FmtR, Syntax: "dta",
			Description: "shift right arithmetic",
			Template:    "000000 00000 ttttt ddddd aaaaa 000011",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), uint32(int32(s.Reg(int(st.Op('t'))))>>st.Op('a')))
				return nil
			},
		},
		{
			Name: "sllv", Example: "sllv $t1,$t2,$t3", Format: FmtR, Syntax: "dts",
			Description: "shift left logical variable",
			Template:    "000000 sssss ttttt ddddd 00000 000100",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('t')))<<(s.Reg(int(st.Op('s')))&31))
				return nil
			},
		},
		{
			Name: "srlv", Example: "srlv $t1,$t2,$t3", Format: FmtR, Syntax: "dts",
			Description: "shift right logical variable",
			Template:    "000000 sssss ttttt ddddd 00000 000110",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('t')))>>(s.Reg(int(st.Op('s')))&31))
				return nil
			},
		},
		{
			Name: "srav", Example: "srav $t1,$t2,$t3", Format: FmtR, Syntax: "dts",
			Description: "shift right arithmetic variable",
			Template:    "000000 sssss ttttt ddddd 00000 000111",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), uint32(int32(s.Reg(int(st.Op('t'))))>>(s.Reg(int(st.Op('s')))&31)))
				return nil
			},
		},

		// jumps through registers
		{
			Name: "jr", Example: "jr $ra", Format: FmtR, Syntax: "s",
			Description: "jump register",
			Template:    "000000 sssss 00000 00000 00000 001000",
			Exec: func(s State, st *Stmt) error {
				s.Branch(s.Reg(int(st.Op('s'))))
				return nil
			},
		},
		{
			Name: "jalr", Example: "jalr $t1,$t2", Format: FmtR, Syntax: "ds",
			Description: "jump and link register",
			Template:    "000000 sssss 00000 ddddd 00000 001001",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), st.Addr+8)
				s.Branch(s.Reg(int(st.Op('s'))))
				return nil
			},
		},

		// traps
		{
			Name: "syscall", Example: "syscall", Format: FmtR, Syntax: "",
			Description: "issue a system call",
			Template:    "000000 00000 00000 00000 00000 001100",
			Exec: func(s State, st *Stmt) error {
				return s.Syscall(st)
			},
		},
		{
			Name: "break", Example: "break 100", Format: FmtR, Syntax: "c",
			Description: "break execution with code",
			Template:    "000000 cccccccccccccccccccc 001101",
			Exec: func(s State, st *Stmt) error {
				return &Exception{
					Cause: CAUSE_BREAK,
					Stmt:  st,
					Msg:   fmt.Sprintf("break instruction (code %d)", st.Op('c')),
				}
			},
		},

		// HI/LO moves
		{
			Name: "mfhi", Example: "mfhi $t1", Format: FmtR, Syntax: "d",
			Description: "move from HI",
			Template:    "000000 00000 00000 ddddd 00000 010000",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Hi())
				return nil
			},
		},
		{
			Name: "mthi", Example: "mthi $t1", Format: FmtR, Syntax: "s",
			Description: "move to HI",
			Template:    "000000 sssss 00000 00000 00000 010001",
			Exec: func(s State, st *Stmt) error {
				s.SetHi(s.Reg(int(st.Op('s'))))
				return nil
			},
		},
		{
			Name: "mflo", Example: "mflo $t1", Format: FmtR, Syntax: "d",
			Description: "move from LO",
			Template:    "000000 00000 00000 ddddd 00000 010010",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Lo())
				return nil
			},
		},
		{
			Name: "mtlo", Example: "mtlo $t1", Format: FmtR, Syntax: "s",
			Description: "move to LO",
			Template:    "000000 sssss 00000 00000 00000 010011",
			Exec: func(s State, st *Stmt) error {
				s.SetLo(s.Reg(int(st.Op('s'))))
				return nil
			},
		},

		// multiply/divide
		{
			Name: "mult", Example: "mult $t1,$t2", Format: FmtR, Syntax: "st",
			Description: "multiply, result in HI:LO",
			Template:    "000000 sssss ttttt 00000 00000 011000",
			Exec: func(s State, st *Stmt) error {
				prod := int64(int32(s.Reg(int(st.Op('s'))))) * int64(int32(s.Reg(int(st.Op('t')))))
				s.SetHi(uint32(uint64(prod) >> 32))
				s.SetLo(uint32(uint64(prod)))
				return nil
			},
		},
		{
			Name: "multu", Example: "multu $t1,$t2", Format: FmtR, Syntax: "st",
			Description: "multiply unsigned, result in HI:LO",
			Template:    "000000 sssss ttttt 00000 00000 011001",
			Exec: func(s State, st *Stmt) error {
				prod := uint64(s.Reg(int(st.Op('s')))) * uint64(s.Reg(int(st.Op('t'))))
				s.SetHi(uint32(prod >> 32))
				s.SetLo(uint32(prod))
				return nil
			},
		},
		{
			Name: "div", Example: "div $t1,$t2", Format: FmtR, Syntax: "st",
			Description: "divide, quotient in LO and remainder in HI",
			Template:    "000000 sssss ttttt 00000 00000 011010",
			Exec: func(s State, st *Stmt) error {
				a, b := int32(s.Reg(int(st.Op('s')))), int32(s.Reg(int(st.Op('t'))))
				// divide by zero leaves HI/LO unchanged, no exception
				if b == 0 {
					return nil
				}
				s.SetLo(uint32(a / b))
				s.SetHi(uint32(a % b))
				return nil
			},
		},
		{
			Name: "divu", Example: "divu $t1,$t2", Format: FmtR, Syntax: "st",
			Description: "divide unsigned, quotient in LO and remainder in HI",
			Template:    "000000 sssss ttttt 00000 00000 011011",
			Exec: func(s State, st *Stmt) error {
				a, b := s.Reg(int(st.Op('s'))), s.Reg(int(st.Op('t')))
				if b == 0 {
					return nil
				}
				s.SetLo(a / b)
				s.SetHi(a % b)
				return nil
			},
		},

		// three-register arithmetic and logic
		{
			Name: "add", Example: "add $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "add with overflow trap",
			Template:    "000000 sssss ttttt ddddd 00000 100000",
			Exec: func(s State, st *Stmt) error {
				sum, ovf := addOvf(s.Reg(int(st.Op('s'))), s.Reg(int(st.Op('t'))))
				if ovf {
					return &Exception{Cause: CAUSE_OVF, Stmt: st}
				}
				s.SetReg(int(st.Op('d')), sum)
				return nil
			},
		},
		{
			Name: "addu", Example: "addu $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "add without overflow trap",
			Template:    "000000 sssss ttttt ddddd 00000 100001",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('s')))+s.Reg(int(st.Op('t'))))
				return nil
			},
		},
		{
			Name: "sub", Example: "sub $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "subtract with overflow trap",
			Template:    "000000 sssss ttttt ddddd 00000 100010",
			Exec: func(s State, st *Stmt) error {
				diff, ovf := subOvf(s.Reg(int(st.Op('s'))), s.Reg(int(st.Op('t'))))
				if ovf {
					return &Exception{Cause: CAUSE_OVF, Stmt: st}
				}
				s.SetReg(int(st.Op('d')), diff)
				return nil
			},
		},
		{
			Name: "subu", Example: "subu $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "subtract without overflow trap",
			Template:    "000000 sssss ttttt ddddd 00000 100011",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('s')))-s.Reg(int(st.Op('t'))))
				return nil
			},
		},
		{
			Name: "and", Example: "and $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "bitwise and",
			Template:    "000000 sssss ttttt ddddd 00000 100100",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('s')))&s.Reg(int(st.Op('t'))))
				return nil
			},
		},
		{
			Name: "or", Example: "or $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "bitwise or",
			Template:    "000000 sssss ttttt ddddd 00000 100101",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('s')))|s.Reg(int(st.Op('t'))))
				return nil
			},
		},
		{
			Name: "xor", Example: "xor $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "bitwise exclusive or",
			Template:    "000000 sssss ttttt ddddd 00000 100110",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), s.Reg(int(st.Op('s')))^s.Reg(int(st.Op('t'))))
				return nil
			},
		},
		{
			Name: "nor", Example: "nor $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "bitwise nor",
			Template:    "000000 sssss ttttt ddddd 00000 100111",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('d')), ^(s.Reg(int(st.Op('s'))) | s.Reg(int(st.Op('t')))))
				return nil
			},
		},
		{
			Name: "slt", Example: "slt $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "set if less than, signed",
			Template:    "000000 sssss ttttt ddddd 00000 101010",
			Exec: func(s State, st *Stmt) error {
				var v uint32
				if int32(s.Reg(int(st.Op('s')))) < int32(s.Reg(int(st.Op('t')))) {
					v = 1
				}
				s.SetReg(int(st.Op('d')), v)
				return nil
			},
		},
		{
			Name: "sltu", Example: "sltu $t1,$t2,$t3", Format: FmtR, Syntax: "dst",
			Description: "set if less than, unsigned",
			Template:    "000000 sssss ttttt ddddd 00000 101011",
			Exec: func(s State, st *Stmt) error {
				var v uint32
				if s.Reg(int(st.Op('s'))) < s.Reg(int(st.Op('t'))) {
					v = 1
				}
				s.SetReg(int(st.Op('d')), v)
				return nil
			},
		},

		// conditional branches
		{
			Name: "bltz", Example: "bltz $t1,label", Format: FmtIBranch, Syntax: "sb",
			Description: "branch if less than zero",
			Template:    "000001 sssss 00000 bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if int32(s.Reg(int(st.Op('s')))) < 0 {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},
		{
			Name: "bgez", Example: "bgez $t1,label", Format: FmtIBranch, Syntax: "sb",
			Description: "branch if greater than or equal to zero",
			Template:    "000001 sssss 00001 bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if int32(s.Reg(int(st.Op('s')))) >= 0 {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},
		{
			Name: "beq", Example: "beq $t1,$t2,label", Format: FmtIBranch, Syntax: "stb",
			Description: "branch if equal",
			Template:    "000100 sssss ttttt bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if s.Reg(int(st.Op('s'))) == s.Reg(int(st.Op('t'))) {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},
		{
			Name: "bne", Example: "bne $t1,$t2,label", Format: FmtIBranch, Syntax: "stb",
			Description: "branch if not equal",
			Template:    "000101 sssss ttttt bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if s.Reg(int(st.Op('s'))) != s.Reg(int(st.Op('t'))) {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},
		{
			Name: "blez", Example: "blez $t1,label", Format: FmtIBranch, Syntax: "sb",
			Description: "branch if less than or equal to zero",
			Template:    "000110 sssss 00000 bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if int32(s.Reg(int(st.Op('s')))) <= 0 {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},
		{
			Name: "bgtz", Example: "bgtz $t1,label", Format: FmtIBranch, Syntax: "sb",
			Description: "branch if greater than zero",
			Template:    "000111 sssss 00000 bbbbbbbbbbbbbbbb",
			Exec: func(s State, st *Stmt) error {
				if int32(s.Reg(int(st.Op('s')))) > 0 {
					s.Branch(branchTarget(st))
				}
				return nil
			},
		},

		// absolute jumps
		{
			Name: "j", Example: "j label", Format: FmtJ, Syntax: "j",
			Description: "jump",
			Template:    "000010 jjjjjjjjjjjjjjjjjjjjjjjjjj",
			Exec: func(s State, st *Stmt) error {
				s.Branch(jumpTarget(st))
				return nil
			},
		},
		{
			Name: "jal", Example: "jal label", Format: FmtJ, Syntax: "j",
			Description: "jump and link",
			Template:    "000011 jjjjjjjjjjjjjjjjjjjjjjjjjj",
			Exec: func(s State, st *Stmt) error {
				// return address skips the delay slot
				s.SetReg(REG_RA, st.Addr+8)
				s.Branch(jumpTarget(st))
				return nil
			},
		},

		// immediate arithmetic and logic
		{
			Name: "addi", Example: "addi $t1,$t2,-100", Format: FmtI, Syntax: "tsi",
			Description: "add immediate with overflow trap",
			Template:    "001000 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				sum, ovf := addOvf(s.Reg(int(st.Op('s'))), signExt16(st.Op('i')))
				if ovf {
					return &Exception{Cause: CAUSE_OVF, Stmt: st}
				}
				s.SetReg(int(st.Op('t')), sum)
				return nil
			},
		},
		{
			Name: "addiu", Example: "addiu $t1,$t2,-100", Format: FmtI, Syntax: "tsi",
			Description: "add immediate without overflow trap",
			Template:    "001001 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('t')), s.Reg(int(st.Op('s')))+signExt16(st.Op('i')))
				return nil
			},
		},
		{
			Name: "slti", Example: "slti $t1,$t2,-100", Format: FmtI, Syntax: "tsi",
			Description: "set if less than immediate, signed",
			Template:    "001010 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				var v uint32
				if int32(s.Reg(int(st.Op('s')))) < int32(signExt16(st.Op('i'))) {
					v = 1
				}
				s.SetReg(int(st.Op('t')), v)
				return nil
			},
		},
		{
			Name: "sltiu", Example: "sltiu $t1,$t2,-100", Format: FmtI, Syntax: "tsi",
			Description: "set if less than immediate, unsigned",
			Template:    "001011 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				var v uint32
				if s.Reg(int(st.Op('s'))) < signExt16(st.Op('i')) {
					v = 1
				}
				s.SetReg(int(st.Op('t')), v)
				return nil
			},
		},
		{
			Name: "andi", Example: "andi $t1,$t2,100", Format: FmtI, Syntax: "tsi",
			Description: "bitwise and with zero-extended immediate",
			Template:    "001100 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('t')), s.Reg(int(st.Op('s')))&st.Op('i'))
				return nil
			},
		},
		{
			Name: "ori", Example: "ori $t1,$t2,100", Format: FmtI, Syntax: "tsi",
			Description: "bitwise or with zero-extended immediate",
			Template:    "001101 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('t')), s.Reg(int(st.Op('s')))|st.Op('i'))
				return nil
			},
		},
		{
			Name: "xori", Example: "xori $t1,$t2,100", Format: FmtI, Syntax: "tsi",
			Description: "bitwise exclusive or with zero-extended immediate",
			Template:    "001110 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('t')), s.Reg(int(st.Op('s')))^st.Op('i'))
				return nil
			},
		},
		{
			Name: "lui", Example: "lui $t1,100", Format: FmtI, Syntax: "ti",
			Description: "load upper immediate",
			Template:    "001111 00000 ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				s.SetReg(int(st.Op('t')), st.Op('i')<<16)
				return nil
			},
		},

		// coprocessor 0
		{
			Name: "mfc0", Example: "mfc0 $t1,$13", Format: FmtR, Syntax: "tx",
			Description: "move from coprocessor 0",
			Template:    "010000 00000 ttttt xxxxx 00000000000",
			Exec: func(s State, st *Stmt) error {
				val, err := s.Cop0().RegRead(int(st.Op('x')))
				if err != nil {
					return &Exception{Cause: CAUSE_RI, Stmt: st, Msg: err.Error()}
				}
				s.SetReg(int(st.Op('t')), val)
				return nil
			},
		},
		{
			Name: "mtc0", Example: "mtc0 $t1,$13", Format: FmtR, Syntax: "tx",
			Description: "move to coprocessor 0",
			Template:    "010000 00100 ttttt xxxxx 00000000000",
			Exec: func(s State, st *Stmt) error {
				if _, err := s.Cop0().RegWrite(int(st.Op('x')), s.Reg(int(st.Op('t')))); err != nil {
					return &Exception{Cause: CAUSE_RI, Stmt: st, Msg: err.Error()}
				}
				return nil
			},
		},
		{
			Name: "eret", Example: "eret", Format: FmtR, Syntax: "",
			Description: "return from exception handler",
			Template:    "010000 1 0000000000000000000 011000",
			Exec: func(s State, st *Stmt) error {
				status, _ := s.Cop0().RegRead(COP0_STATUS)
				s.Cop0().RegWrite(COP0_STATUS, status&^uint32(STATUS_EXL))
				epc, _ := s.Cop0().RegRead(COP0_EPC)
				s.Jump(epc)
				return nil
			},
		},

		// coprocessor 1 moves and memory access
		{
			Name: "mfc1", Example: "mfc1 $t1,$f1", Format: FmtR, Syntax: "tf",
			Description: "move word from coprocessor 1",
			Template:    "010001 00000 ttttt fffff 00000000000",
			Exec: func(s State, st *Stmt) error {
				val, _ := s.Cop1().RegRead(int(st.Op('f')))
				s.SetReg(int(st.Op('t')), val)
				return nil
			},
		},
		{
			Name: "mtc1", Example: "mtc1 $t1,$f1", Format: FmtR, Syntax: "tf",
			Description: "move word to coprocessor 1",
			Template:    "010001 00100 ttttt fffff 00000000000",
			Exec: func(s State, st *Stmt) error {
				s.Cop1().RegWrite(int(st.Op('f')), s.Reg(int(st.Op('t'))))
				return nil
			},
		},

		// loads
		{
			Name: "lb", Example: "lb $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "load byte, sign-extended",
			Template:    "100000 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return load(s, st, 1, true)
			},
		},
		{
			Name: "lh", Example: "lh $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "load half-word, sign-extended",
			Template:    "100001 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return load(s, st, 2, true)
			},
		},
		{
			Name: "lw", Example: "lw $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "load word",
			Template:    "100011 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return load(s, st, 4, false)
			},
		},
		{
			Name: "lbu", Example: "lbu $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "load byte, zero-extended",
			Template:    "100100 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return load(s, st, 1, false)
			},
		},
		{
			Name: "lhu", Example: "lhu $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "load half-word, zero-extended",
			Template:    "100101 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return load(s, st, 2, false)
			},
		},

		// stores
		{
			Name: "sb", Example: "sb $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "store byte",
			Template:    "101000 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return store(s, st, 1)
			},
		},
		{
			Name: "sh", Example: "sh $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "store half-word",
			Template:    "101001 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return store(s, st, 2)
			},
		},
		{
			Name: "sw", Example: "sw $t1,-100($t2)", Format: FmtI, Syntax: "tis",
			Description: "store word",
			Template:    "101011 sssss ttttt iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				return store(s, st, 4)
			},
		},

		// coprocessor 1 loads/stores
		{
			Name: "lwc1", Example: "lwc1 $f1,-100($t2)", Format: FmtI, Syntax: "fis",
			Description: "load word into coprocessor 1",
			Template:    "110001 sssss fffff iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				addr := s.Reg(int(st.Op('s'))) + signExt16(st.Op('i'))
				val, err := s.Mem().ReadUint(addr, 4, cpu.PROT_READ)
				if err != nil {
					return memFault(err, st, false)
				}
				s.Cop1().RegWrite(int(st.Op('f')), val)
				return nil
			},
		},
		{
			Name: "swc1", Example: "swc1 $f1,-100($t2)", Format: FmtI, Syntax: "fis",
			Description: "store word from coprocessor 1",
			Template:    "111001 sssss fffff iiiiiiiiiiiiiiii",
			Exec: func(s State, st *Stmt) error {
				addr := s.Reg(int(st.Op('s'))) + signExt16(st.Op('i'))
				val, _ := s.Cop1().RegRead(int(st.Op('f')))
				return memFault(s.Mem().WriteUint(addr, 4, cpu.PROT_WRITE, val), st, true)
			},
		},
	}
}
