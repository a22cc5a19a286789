package mars

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
	"github.com/nhubbard/mars-sub006/models"
	"github.com/nhubbard/mars-sub006/models/cpu"
)

// indexes into the special register file
const (
	SPEC_PC = iota
	SPEC_HI
	SPEC_LO
)

// register enums for RegDump and savestates: GPRs take 0..31, the rest
// follow
const (
	ENUM_PC = 32 + iota
	ENUM_HI
	ENUM_LO
	ENUM_VADDR
	ENUM_STATUS
	ENUM_CAUSE
	ENUM_EPC
)

const pageSize = 0x1000

// sizes of the fixed mapped regions
const (
	stackSize = 0x100000
	heapSize  = 0x10000
	mmioSize  = 0x10000
)

type delayState int

// delayed branch bookkeeping: a branch registers its target, the delay
// slot executes during the triggered state, then the transfer lands
const (
	delayCleared delayState = iota
	delayRegistered
	delayTriggered
)

type delaySlot struct {
	state  delayState
	target uint32
}

// Machine is one simulation session: memory, register files, the decoded
// program, and run control. A Machine is driven by Run/Step from one
// goroutine; Pause and Stop may be called from others.
type Machine struct {
	Config *models.Config

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	prog    *asm.Program
	catalog *mips.Catalog

	mem     *cpu.Mem
	gpr     *cpu.RegFile
	special *cpu.RegFile
	cop0    *cpu.SparseRegs
	cop1    *cpu.FloatRegs
	hooks   *cpu.Hooks

	gate    models.Gate
	status  RunState
	stopReq uint32

	steps       int64
	delay       delaySlot
	journal     *journal
	breakpoints map[uint32]bool

	syscall func(m *Machine, st *mips.Stmt) error
}

// NewMachine maps the memory layout, loads the program image, and leaves
// the machine ready to run at the program's entry point.
func NewMachine(prog *asm.Program, config *models.Config) (*Machine, error) {
	if config == nil {
		config = &models.Config{}
	}
	var order binary.ByteOrder = binary.LittleEndian
	if config.BigEndian {
		order = binary.BigEndian
	}
	m := &Machine{
		Config:      config,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		prog:        prog,
		catalog:     mips.NewCatalog(),
		mem:         cpu.NewMem(order),
		gpr:         cpu.NewRegFile(cpu.BANK_GPR, 32, mips.REG_ZERO),
		special:     cpu.NewRegFile(cpu.BANK_SPECIAL, 3, -1),
		cop0:        cpu.NewSparseRegs(cpu.BANK_COP0, mips.Cop0Regs),
		cop1:        cpu.NewFloatRegs(),
		breakpoints: make(map[uint32]bool),
	}
	m.hooks = cpu.NewHooks(m.mem, m.gpr, m.special, m.cop0, m.cop1.RegFile)
	if config.BackstepLimit > 0 {
		m.journal = newJournal(m, config.BackstepLimit)
	}
	if err := m.mapImage(); err != nil {
		return nil, err
	}
	m.gpr.RegWrite(mips.REG_SP, asm.StackTop)
	m.gpr.RegWrite(mips.REG_GP, 0x10008000)
	m.special.RegWrite(SPEC_PC, prog.Entry)
	return m, nil
}

func pageAlign(n uint32) uint32 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// mapImage lays out the session's memory segments and commits the
// assembled words and data bytes.
func (m *Machine) mapImage() error {
	prog := m.prog
	textEnd := pageAlign(prog.TextEnd)
	if textEnd == asm.TextBase {
		textEnd += pageSize
	}
	// segments are described by (addr, size): the MMIO region ends exactly
	// at the top of the address space, so an exclusive end would wrap
	segs := []struct {
		addr, size uint32
		prot       int
		desc       string
	}{
		{asm.TextBase, textEnd - asm.TextBase, cpu.PROT_READ | cpu.PROT_EXEC, "text"},
		{asm.DataBase, asm.HeapBase - asm.DataBase, cpu.PROT_READ | cpu.PROT_WRITE, "data"},
		{asm.HeapBase, heapSize, cpu.PROT_READ | cpu.PROT_WRITE, "heap"},
		{asm.StackTop + 4 - stackSize, stackSize, cpu.PROT_READ | cpu.PROT_WRITE, "stack"},
		{asm.MMIOBase, mmioSize, cpu.PROT_READ | cpu.PROT_WRITE, "mmio"},
	}
	if prog.HasKText {
		end := pageAlign(prog.KTextEnd)
		segs = append(segs, struct {
			addr, size uint32
			prot       int
			desc       string
		}{asm.KTextBase, end - asm.KTextBase, cpu.PROT_READ | cpu.PROT_EXEC, "ktext"})
	}
	if prog.KDataEnd > asm.KDataBase {
		end := pageAlign(prog.KDataEnd)
		segs = append(segs, struct {
			addr, size uint32
			prot       int
			desc       string
		}{asm.KDataBase, end - asm.KDataBase, cpu.PROT_READ | cpu.PROT_WRITE, "kdata"})
	}
	for _, s := range segs {
		if err := m.mem.MapSegment(s.addr, s.size, s.prot, s.desc); err != nil {
			return errors.Wrap(err, "memory layout failed")
		}
	}
	var word [4]byte
	for _, st := range prog.Stmts {
		if _, err := cpu.PackUint(m.mem.ByteOrder(), 4, word[:], st.Word); err != nil {
			return err
		}
		if err := m.mem.MemWrite(st.Addr, word[:]); err != nil {
			return errors.Wrapf(err, "loading text at %#08x", st.Addr)
		}
	}
	for _, chunk := range prog.Data {
		if err := m.mem.MemWrite(chunk.Addr, chunk.Bytes); err != nil {
			return errors.Wrapf(err, "loading data at %#08x", chunk.Addr)
		}
	}
	return nil
}

// Program returns the loaded program.
func (m *Machine) Program() *asm.Program {
	return m.prog
}

// Mem exposes the machine's memory, satisfying the instruction state
// contract.
func (m *Machine) Mem() *cpu.Mem {
	return m.mem
}

// Hooks exposes hook registration for tracing and debugging.
func (m *Machine) Hooks() *cpu.Hooks {
	return m.hooks
}

func (m *Machine) Reg(n int) uint32 {
	return m.gpr.Get(n)
}

func (m *Machine) SetReg(n int, val uint32) {
	m.gpr.RegWrite(n, val)
}

func (m *Machine) Hi() uint32 {
	return m.special.Get(SPEC_HI)
}

func (m *Machine) Lo() uint32 {
	return m.special.Get(SPEC_LO)
}

func (m *Machine) SetHi(val uint32) {
	m.special.RegWrite(SPEC_HI, val)
}

func (m *Machine) SetLo(val uint32) {
	m.special.RegWrite(SPEC_LO, val)
}

func (m *Machine) Cop0() *cpu.SparseRegs {
	return m.cop0
}

func (m *Machine) Cop1() *cpu.FloatRegs {
	return m.cop1
}

func (m *Machine) PC() uint32 {
	return m.special.Get(SPEC_PC)
}

func (m *Machine) setPC(addr uint32) {
	m.special.RegWrite(SPEC_PC, addr)
}

// Branch registers a delayed control transfer; it lands after the delay
// slot instruction completes.
func (m *Machine) Branch(target uint32) {
	m.delay = delaySlot{state: delayRegistered, target: target}
}

// Jump transfers control immediately, with no delay slot.
func (m *Machine) Jump(target uint32) {
	m.delay = delaySlot{}
	m.setPC(target)
}

// Syscall dispatches a service trap to the installed handler.
func (m *Machine) Syscall(st *mips.Stmt) error {
	m.hooks.OnIntr(m.gpr.Get(mips.REG_V0))
	if m.syscall == nil {
		return &mips.Exception{Cause: mips.CAUSE_SYSCALL, Stmt: st, Msg: "no syscall handler installed"}
	}
	return m.syscall(m, st)
}

// SetSyscallHandler installs the service dispatcher. The kernel package
// provides the standard one.
func (m *Machine) SetSyscallHandler(fn func(m *Machine, st *mips.Stmt) error) {
	m.syscall = fn
}

// Steps reports how many instructions have executed.
func (m *Machine) Steps() int64 {
	return m.steps
}

// AddBreakpoint arms a breakpoint at an instruction address.
func (m *Machine) AddBreakpoint(addr uint32) {
	m.breakpoints[addr] = true
}

func (m *Machine) DelBreakpoint(addr uint32) {
	delete(m.breakpoints, addr)
}

func (m *Machine) Breakpoints() []uint32 {
	out := make([]uint32, 0, len(m.breakpoints))
	for addr := range m.breakpoints {
		out = append(out, addr)
	}
	return out
}

var regDumpNames = []struct {
	name string
	enum int
}{
	{"pc", ENUM_PC}, {"hi", ENUM_HI}, {"lo", ENUM_LO},
	{"vaddr", ENUM_VADDR}, {"status", ENUM_STATUS},
	{"cause", ENUM_CAUSE}, {"epc", ENUM_EPC},
}

// RegDump reports the full architectural register state: GPRs first, then
// pc/hi/lo and the Coprocessor 0 registers.
func (m *Machine) RegDump() []models.RegVal {
	out := make([]models.RegVal, 0, 32+len(regDumpNames))
	for i := 0; i < 32; i++ {
		out = append(out, models.RegVal{Name: mips.RegNames[i], Enum: i, Val: m.gpr.Get(i)})
	}
	for _, r := range regDumpNames {
		val, _ := m.regByEnum(r.enum)
		out = append(out, models.RegVal{Name: r.name, Enum: r.enum, Val: val})
	}
	return out
}

func (m *Machine) regByEnum(enum int) (uint32, error) {
	switch {
	case enum >= 0 && enum < 32:
		return m.gpr.RegRead(enum)
	case enum == ENUM_PC:
		return m.special.RegRead(SPEC_PC)
	case enum == ENUM_HI:
		return m.special.RegRead(SPEC_HI)
	case enum == ENUM_LO:
		return m.special.RegRead(SPEC_LO)
	case enum == ENUM_VADDR:
		return m.cop0.RegRead(mips.COP0_VADDR)
	case enum == ENUM_STATUS:
		return m.cop0.RegRead(mips.COP0_STATUS)
	case enum == ENUM_CAUSE:
		return m.cop0.RegRead(mips.COP0_CAUSE)
	case enum == ENUM_EPC:
		return m.cop0.RegRead(mips.COP0_EPC)
	}
	return 0, errors.Errorf("unknown register enum %d", enum)
}

// RegWrite sets a register by dump enum, used by savestate restore.
func (m *Machine) RegWrite(enum int, val uint32) error {
	var err error
	switch {
	case enum >= 0 && enum < 32:
		_, err = m.gpr.RegWrite(enum, val)
	case enum == ENUM_PC:
		_, err = m.special.RegWrite(SPEC_PC, val)
	case enum == ENUM_HI:
		_, err = m.special.RegWrite(SPEC_HI, val)
	case enum == ENUM_LO:
		_, err = m.special.RegWrite(SPEC_LO, val)
	case enum == ENUM_VADDR:
		_, err = m.cop0.RegWrite(mips.COP0_VADDR, val)
	case enum == ENUM_STATUS:
		_, err = m.cop0.RegWrite(mips.COP0_STATUS, val)
	case enum == ENUM_CAUSE:
		_, err = m.cop0.RegWrite(mips.COP0_CAUSE, val)
	case enum == ENUM_EPC:
		_, err = m.cop0.RegWrite(mips.COP0_EPC, val)
	default:
		err = errors.Errorf("unknown register enum %d", enum)
	}
	return err
}

// RegEnum translates a hook's bank and register number into the dump
// enum scheme shared with savestates and traces. ok is false for
// registers outside the scheme.
func (m *Machine) RegEnum(bank, reg int) (int, bool) {
	switch bank {
	case cpu.BANK_GPR:
		return reg, true
	case cpu.BANK_SPECIAL:
		switch reg {
		case SPEC_PC:
			return ENUM_PC, true
		case SPEC_HI:
			return ENUM_HI, true
		case SPEC_LO:
			return ENUM_LO, true
		}
	case cpu.BANK_COP0:
		switch reg {
		case mips.COP0_VADDR:
			return ENUM_VADDR, true
		case mips.COP0_STATUS:
			return ENUM_STATUS, true
		case mips.COP0_CAUSE:
			return ENUM_CAUSE, true
		case mips.COP0_EPC:
			return ENUM_EPC, true
		}
	}
	return 0, false
}

// Mappings reports the mapped memory regions for savestates and the
// debugger's memory map display.
func (m *Machine) Mappings() []models.Mapping {
	pages := m.mem.Pages()
	out := make([]models.Mapping, len(pages))
	for i, p := range pages {
		out[i] = models.Mapping{Addr: p.Addr, Size: p.Size, Prot: p.Prot, Desc: p.Desc}
	}
	return out
}

func (m *Machine) MemRead(addr, size uint32) ([]byte, error) {
	return m.mem.MemRead(addr, int(size))
}

func (m *Machine) MemWrite(addr uint32, p []byte) error {
	return m.mem.MemWrite(addr, p)
}

func (m *Machine) MemMap(addr, size uint32, prot int, desc string) error {
	return m.mem.MapSegment(addr, size, prot, desc)
}
