package mips

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Pseudo is an extended (assembler-synthesized) instruction. Expansion
// happens textually during pass 1: the operand tokens are substituted
// into one or more basic instruction lines, which are then assembled in
// place of the original. The line count is fixed once expanded, so pass 1
// address assignment stays exact.
type Pseudo struct {
	Name     string
	Example  string
	Operands int
	// Basic marks forms available even when extended instructions are
	// disabled (nop is universal shorthand for sll $zero,$zero,0).
	Basic  bool
	Expand func(ops []string) ([]string, error)
}

func parsePseudoImm(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		// allow the full unsigned 32-bit range written without a sign
		u, uerr := strconv.ParseUint(s, 0, 32)
		if uerr != nil {
			return 0, errors.Errorf("invalid immediate %q", s)
		}
		return int64(u), nil
	}
	return v, nil
}

// liExpansion picks the shortest sequence that materializes val.
func liExpansion(dst string, val int64) ([]string, error) {
	if val < -0x80000000 || val > 0xffffffff {
		return nil, errors.Errorf("immediate %d out of 32-bit range", val)
	}
	w := uint32(val)
	switch {
	case val >= -0x8000 && val <= 0x7fff:
		return []string{fmt.Sprintf("addiu %s, $zero, %d", dst, val)}, nil
	case val >= 0 && val <= 0xffff:
		return []string{fmt.Sprintf("ori %s, $zero, %d", dst, val)}, nil
	case w&0xffff == 0:
		return []string{fmt.Sprintf("lui %s, %d", dst, w>>16)}, nil
	default:
		return []string{
			fmt.Sprintf("lui %s, %d", dst, w>>16),
			fmt.Sprintf("ori %s, %s, %d", dst, dst, w&0xffff),
		}, nil
	}
}

func isNumeric(s string) bool {
	_, err := parsePseudoImm(s)
	return err == nil
}

func pseudoSet() []*Pseudo {
	return []*Pseudo{
		{
			Name: "nop", Example: "nop", Operands: 0, Basic: true,
			Expand: func(ops []string) ([]string, error) {
				return []string{"sll $zero, $zero, 0"}, nil
			},
		},
		{
			Name: "move", Example: "move $t1,$t2", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("addu %s, $zero, %s", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "not", Example: "not $t1,$t2", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("nor %s, %s, $zero", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "neg", Example: "neg $t1,$t2", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("sub %s, $zero, %s", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "negu", Example: "negu $t1,$t2", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("subu %s, $zero, %s", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "li", Example: "li $t1,0x12345678", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				val, err := parsePseudoImm(ops[1])
				if err != nil {
					return nil, err
				}
				return liExpansion(ops[0], val)
			},
		},
		{
			Name: "la", Example: "la $t1,label", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				if isNumeric(ops[1]) {
					val, err := parsePseudoImm(ops[1])
					if err != nil {
						return nil, err
					}
					return liExpansion(ops[0], val)
				}
				// symbol value is not known until pass 2; fixed two-line
				// form with %hi/%lo keeps addresses stable
				return []string{
					fmt.Sprintf("lui $at, %%hi(%s)", ops[1]),
					fmt.Sprintf("ori %s, $at, %%lo(%s)", ops[0], ops[1]),
				}, nil
			},
		},
		{
			Name: "b", Example: "b label", Operands: 1,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("bgez $zero, %s", ops[0])}, nil
			},
		},
		{
			Name: "beqz", Example: "beqz $t1,label", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("beq %s, $zero, %s", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "bnez", Example: "bnez $t1,label", Operands: 2,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("bne %s, $zero, %s", ops[0], ops[1])}, nil
			},
		},
		{
			Name: "blt", Example: "blt $t1,$t2,label", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("slt $at, %s, %s", ops[0], ops[1]),
					fmt.Sprintf("bne $at, $zero, %s", ops[2]),
				}, nil
			},
		},
		{
			Name: "ble", Example: "ble $t1,$t2,label", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("slt $at, %s, %s", ops[1], ops[0]),
					fmt.Sprintf("beq $at, $zero, %s", ops[2]),
				}, nil
			},
		},
		{
			Name: "bgt", Example: "bgt $t1,$t2,label", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("slt $at, %s, %s", ops[1], ops[0]),
					fmt.Sprintf("bne $at, $zero, %s", ops[2]),
				}, nil
			},
		},
		{
			Name: "bge", Example: "bge $t1,$t2,label", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("slt $at, %s, %s", ops[0], ops[1]),
					fmt.Sprintf("beq $at, $zero, %s", ops[2]),
				}, nil
			},
		},
		{
			Name: "sgt", Example: "sgt $t1,$t2,$t3", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{fmt.Sprintf("slt %s, %s, %s", ops[0], ops[2], ops[1])}, nil
			},
		},
		{
			Name: "sge", Example: "sge $t1,$t2,$t3", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("slt %s, %s, %s", ops[0], ops[1], ops[2]),
					fmt.Sprintf("xori %s, %s, 1", ops[0], ops[0]),
				}, nil
			},
		},
		{
			Name: "mul", Example: "mul $t1,$t2,$t3", Operands: 3,
			Expand: func(ops []string) ([]string, error) {
				return []string{
					fmt.Sprintf("mult %s, %s", ops[1], ops[2]),
					fmt.Sprintf("mflo %s", ops[0]),
				}, nil
			},
		},
	}
}

var pseudos = func() map[string]*Pseudo {
	m := make(map[string]*Pseudo)
	for _, p := range pseudoSet() {
		if _, ok := m[p.Name]; ok {
			panic("duplicate pseudo-instruction " + p.Name)
		}
		m[p.Name] = p
	}
	return m
}()

// LookupPseudo returns the extended instruction for a mnemonic, or nil.
func LookupPseudo(name string) *Pseudo {
	return pseudos[name]
}
