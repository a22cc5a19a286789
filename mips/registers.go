package mips

import (
	"strconv"

	"github.com/pkg/errors"
)

// general-purpose register numbering and conventional names
const (
	REG_ZERO = 0
	REG_AT   = 1
	REG_V0   = 2
	REG_V1   = 3
	REG_A0   = 4
	REG_A1   = 5
	REG_A2   = 6
	REG_A3   = 7
	REG_T0   = 8
	REG_S0   = 16
	REG_T8   = 24
	REG_K0   = 26
	REG_K1   = 27
	REG_GP   = 28
	REG_SP   = 29
	REG_FP   = 30
	REG_RA   = 31
)

var RegNames = []string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

var regNums map[string]int

func init() {
	regNums = make(map[string]int, len(RegNames))
	for i, name := range RegNames {
		regNums[name] = i
	}
}

// RegNum resolves a register operand written as $name, $N or $fN.
// Coprocessor 1 registers return (num, true, nil).
func RegNum(s string) (int, bool, error) {
	if len(s) < 2 || s[0] != '$' {
		return 0, false, errors.Errorf("invalid register %q", s)
	}
	body := s[1:]
	if body[0] == 'f' && len(body) > 1 {
		if n, err := strconv.Atoi(body[1:]); err == nil {
			if n < 0 || n > 31 {
				return 0, false, errors.Errorf("invalid float register %q", s)
			}
			return n, true, nil
		}
		// falls through: $fp is a GPR name
	}
	if n, ok := regNums[body]; ok {
		return n, false, nil
	}
	if n, err := strconv.Atoi(body); err == nil {
		if n < 0 || n > 31 {
			return 0, false, errors.Errorf("register %q out of range", s)
		}
		return n, false, nil
	}
	return 0, false, errors.Errorf("invalid register %q", s)
}

// Coprocessor 0 exception-control register numbers. The set is sparse:
// these four are the only numbers the simulator models.
const (
	COP0_VADDR  = 8
	COP0_STATUS = 12
	COP0_CAUSE  = 13
	COP0_EPC    = 14
)

var Cop0Regs = []int{COP0_VADDR, COP0_STATUS, COP0_CAUSE, COP0_EPC}

var Cop0Names = map[int]string{
	COP0_VADDR:  "vaddr",
	COP0_STATUS: "status",
	COP0_CAUSE:  "cause",
	COP0_EPC:    "epc",
}

// STATUS register bits
const (
	STATUS_IE  = 1 << 0 // interrupt enable
	STATUS_EXL = 1 << 1 // exception level (in handler)
)
