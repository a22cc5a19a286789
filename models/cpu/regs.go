package cpu

import (
	"github.com/pkg/errors"
)

// register banks, used to qualify register hook dispatch
const (
	BANK_GPR = iota
	BANK_SPECIAL
	BANK_COP0
	BANK_COP1
)

// RegFile is a dense register file. Writes report the previous value and
// notify hooks synchronously, so observers see every mutation in-step.
type RegFile struct {
	bank  int
	vals  []uint32
	hooks *Hooks

	// index hardwired to zero; writes are discarded. -1 disables.
	zero int
}

func NewRegFile(bank, count, zero int) *RegFile {
	return &RegFile{
		bank: bank,
		vals: make([]uint32, count),
		zero: zero,
	}
}

func (r *RegFile) SetHooks(hooks *Hooks) {
	r.hooks = hooks
}

func (r *RegFile) Count() int {
	return len(r.vals)
}

func (r *RegFile) RegRead(n int) (uint32, error) {
	if n < 0 || n >= len(r.vals) {
		return 0, errors.Errorf("invalid register: %d", n)
	}
	return r.vals[n], nil
}

// RegWrite stores val and returns the previous value. Writes to the
// hardwired zero slot are no-ops that still report 0 as the previous value.
func (r *RegFile) RegWrite(n int, val uint32) (uint32, error) {
	if n < 0 || n >= len(r.vals) {
		return 0, errors.Errorf("invalid register: %d", n)
	}
	if n == r.zero {
		if r.hooks != nil {
			r.hooks.OnReg(r.bank, n, 0, 0)
		}
		return 0, nil
	}
	prev := r.vals[n]
	r.vals[n] = val
	if r.hooks != nil {
		r.hooks.OnReg(r.bank, n, prev, val)
	}
	return prev, nil
}

// Get is RegRead for registers known to be in range.
func (r *RegFile) Get(n int) uint32 {
	return r.vals[n]
}

// SparseRegs is a map-backed register file for non-contiguous register
// numbering, e.g. the exception-control registers of Coprocessor 0.
type SparseRegs struct {
	bank  int
	vals  map[int]uint32
	hooks *Hooks
}

func NewSparseRegs(bank int, enums []int) *SparseRegs {
	r := &SparseRegs{
		bank: bank,
		vals: make(map[int]uint32),
	}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

func (r *SparseRegs) SetHooks(hooks *Hooks) {
	r.hooks = hooks
}

func (r *SparseRegs) RegRead(n int) (uint32, error) {
	val, ok := r.vals[n]
	if !ok {
		return 0, errors.Errorf("invalid register: %d", n)
	}
	return val, nil
}

func (r *SparseRegs) RegWrite(n int, val uint32) (uint32, error) {
	prev, ok := r.vals[n]
	if !ok {
		return 0, errors.Errorf("invalid register: %d", n)
	}
	r.vals[n] = val
	if r.hooks != nil {
		r.hooks.OnReg(r.bank, n, prev, val)
	}
	return prev, nil
}

func (r *SparseRegs) Enums() []int {
	out := make([]int, 0, len(r.vals))
	for e := range r.vals {
		out = append(out, e)
	}
	return out
}

// FloatRegs is Coprocessor 1: 32 single-width registers where a double
// occupies an even/odd pair with the high word in the odd register.
type FloatRegs struct {
	*RegFile
}

func NewFloatRegs() *FloatRegs {
	return &FloatRegs{NewRegFile(BANK_COP1, 32, -1)}
}

func (r *FloatRegs) ReadDouble(n int) (uint64, error) {
	if n&1 != 0 || n < 0 || n > 30 {
		return 0, errors.Errorf("double requires an even register: $f%d", n)
	}
	lo, _ := r.RegRead(n)
	hi, _ := r.RegRead(n + 1)
	return uint64(hi)<<32 | uint64(lo), nil
}

func (r *FloatRegs) WriteDouble(n int, val uint64) error {
	if n&1 != 0 || n < 0 || n > 30 {
		return errors.Errorf("double requires an even register: $f%d", n)
	}
	r.RegWrite(n, uint32(val))
	r.RegWrite(n+1, uint32(val>>32))
	return nil
}
