package cpu

import (
	"fmt"
	"testing"
)

func TestRegFile(t *testing.T) {
	r := NewRegFile(BANK_GPR, 32, 0)
	if _, err := r.RegWrite(8, 0x1234); err != nil {
		t.Fatal(err)
	}
	if val, _ := r.RegRead(8); val != 0x1234 {
		t.Fatalf("register readback mismatch: %#x", val)
	}
	prev, err := r.RegWrite(8, 0x5678)
	if err != nil {
		t.Fatal(err)
	}
	if prev != 0x1234 {
		t.Fatalf("previous value mismatch: %#x", prev)
	}
	if _, err := r.RegRead(32); err == nil {
		t.Fatal("out-of-range read succeeded")
	}
}

func TestZeroRegister(t *testing.T) {
	r := NewRegFile(BANK_GPR, 32, 0)
	prev, err := r.RegWrite(0, 0xffffffff)
	if err != nil {
		t.Fatal(err)
	}
	if prev != 0 {
		t.Fatalf("zero register previous value should be 0, got %#x", prev)
	}
	if val, _ := r.RegRead(0); val != 0 {
		t.Fatalf("zero register must always read 0, got %#x", val)
	}
}

func TestSparseRegs(t *testing.T) {
	r := NewSparseRegs(BANK_COP0, []int{8, 12, 13, 14})
	if _, err := r.RegWrite(13, 0x20); err != nil {
		t.Fatal(err)
	}
	if val, _ := r.RegRead(13); val != 0x20 {
		t.Fatal("sparse register readback mismatch")
	}
	if _, err := r.RegRead(9); err == nil {
		t.Fatal("unmapped sparse register read succeeded")
	}
	if _, err := r.RegWrite(0, 1); err == nil {
		t.Fatal("unmapped sparse register write succeeded")
	}
}

func TestFloatRegsDouble(t *testing.T) {
	r := NewFloatRegs()
	if err := r.WriteDouble(12, 0x1122334455667788); err != nil {
		t.Fatal(err)
	}
	// high word lands in the odd register of the pair
	if hi, _ := r.RegRead(13); hi != 0x11223344 {
		t.Fatalf("double high word mismatch: %#x", hi)
	}
	if lo, _ := r.RegRead(12); lo != 0x55667788 {
		t.Fatalf("double low word mismatch: %#x", lo)
	}
	val, err := r.ReadDouble(12)
	if err != nil {
		t.Fatal(err)
	}
	if val != 0x1122334455667788 {
		t.Fatalf("double readback mismatch: %#x", val)
	}
	if err := r.WriteDouble(13, 0); err == nil {
		t.Fatal("odd register accepted as a double target")
	}
}

func TestRegHooks(t *testing.T) {
	r := NewRegFile(BANK_GPR, 32, 0)
	h := NewHooks(nil, r)
	var results []string
	cb := func(bank, reg int, prev, val uint32) {
		results = append(results, fmt.Sprintf("reg(%d, %d, %#x, %#x)", bank, reg, prev, val))
	}
	if _, err := h.HookAdd(HOOK_REG, cb, 1, 0); err != nil {
		t.Fatal(err)
	}
	r.RegWrite(9, 5)
	r.RegWrite(9, 6)
	r.RegWrite(0, 7)
	compare := []string{
		"reg(0, 9, 0x0, 0x5)",
		"reg(0, 9, 0x5, 0x6)",
		"reg(0, 0, 0x0, 0x0)",
	}
	if len(results) != len(compare) {
		t.Fatalf("hook dispatch count mismatch: %v", results)
	}
	for i, v := range compare {
		if results[i] != v {
			t.Fatalf("hook dispatch mismatch: %s != %s", results[i], v)
		}
	}
}
