package mars

import (
	"github.com/nhubbard/mars-sub006/models/cpu"
)

type mutKind int

const (
	mutReg mutKind = iota
	mutMem
)

// mutation is one inverse edit: the value a register or memory cell held
// before a step changed it.
type mutation struct {
	kind mutKind
	bank int
	reg  int
	addr uint32
	size int
	prev uint32
}

type stepRecord struct {
	delay delaySlot
	muts  []mutation
}

// journal is the bounded backstep buffer. Hook callbacks capture the
// previous value of every register and memory write during a step;
// undoing a step applies them in reverse.
type journal struct {
	m         *Machine
	limit     int
	recs      []stepRecord
	cur       *stepRecord
	restoring bool
}

func newJournal(m *Machine, limit int) *journal {
	j := &journal{m: m, limit: limit}
	m.hooks.HookAdd(cpu.HOOK_REG, func(bank, reg int, prev, val uint32) {
		if j.cur == nil || j.restoring {
			return
		}
		j.cur.muts = append(j.cur.muts, mutation{kind: mutReg, bank: bank, reg: reg, prev: prev})
	}, 1, 0)
	m.hooks.HookAdd(cpu.HOOK_MEM_WRITE, func(access int, addr uint32, size int, prev, val uint32) {
		if j.cur == nil || j.restoring {
			return
		}
		j.cur.muts = append(j.cur.muts, mutation{kind: mutMem, addr: addr, size: size, prev: prev})
	}, 1, 0)
	return j
}

func (j *journal) begin(delay delaySlot) {
	j.cur = &stepRecord{delay: delay}
}

// abandon discards the open record without journaling a step.
func (j *journal) abandon() {
	j.cur = nil
}

func (j *journal) commit() {
	rec := j.cur
	j.cur = nil
	if rec == nil {
		return
	}
	if len(j.recs) >= j.limit {
		copy(j.recs, j.recs[1:])
		j.recs = j.recs[:len(j.recs)-1]
	}
	j.recs = append(j.recs, *rec)
}

func (j *journal) depth() int {
	return len(j.recs)
}

// undo pops the newest step record and applies its inverse mutations in
// reverse order, restoring registers, memory and the delay slot.
func (j *journal) undo() bool {
	if len(j.recs) == 0 {
		return false
	}
	rec := j.recs[len(j.recs)-1]
	j.recs = j.recs[:len(j.recs)-1]
	j.restoring = true
	defer func() { j.restoring = false }()
	for i := len(rec.muts) - 1; i >= 0; i-- {
		mu := rec.muts[i]
		switch mu.kind {
		case mutReg:
			switch mu.bank {
			case cpu.BANK_GPR:
				j.m.gpr.RegWrite(mu.reg, mu.prev)
			case cpu.BANK_SPECIAL:
				j.m.special.RegWrite(mu.reg, mu.prev)
			case cpu.BANK_COP0:
				j.m.cop0.RegWrite(mu.reg, mu.prev)
			case cpu.BANK_COP1:
				j.m.cop1.RegWrite(mu.reg, mu.prev)
			}
		case mutMem:
			var buf [4]byte
			if _, err := cpu.PackUint(j.m.mem.ByteOrder(), mu.size, buf[:], mu.prev); err == nil {
				j.m.mem.MemWrite(mu.addr, buf[:mu.size])
			}
		}
	}
	j.m.delay = rec.delay
	return true
}
