package kernel

import (
	"bytes"
	"testing"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
	"github.com/nhubbard/mars-sub006/models"
)

type session struct {
	m   *mars.Machine
	k   *Kernel
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newSession(t *testing.T, src, input string) *session {
	t.Helper()
	prog, err := asm.Assemble([]asm.SourceFile{{Name: "test.asm", Text: src}},
		asm.Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	m, err := mars.NewMachine(prog, &models.Config{})
	if err != nil {
		t.Fatal(err)
	}
	s := &session{m: m, in: bytes.NewBufferString(input), out: &bytes.Buffer{}}
	m.Stdin = s.in
	m.Stdout = s.out
	m.Stderr = s.out
	s.k, err = New(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPrintIntAndExit(t *testing.T) {
	s := newSession(t, `
	li $t0, 2
	li $t1, 4
	add $a0, $t0, $t1
	li $v0, 1
	syscall
	li $v0, 10
	syscall
`, "")
	err := s.m.Run()
	status, ok := err.(models.ExitStatus)
	if !ok {
		t.Fatalf("run ended with %v", err)
	}
	if status != 0 {
		t.Fatalf("exit status %d", status)
	}
	if got := s.out.String(); got != "6" {
		t.Fatalf("output %q", got)
	}
}

func TestExit2Status(t *testing.T) {
	s := newSession(t, `
	li $a0, 42
	li $v0, 17
	syscall
`, "")
	err := s.m.Run()
	if status, ok := err.(models.ExitStatus); !ok || status != 42 {
		t.Fatalf("run ended with %v", err)
	}
	if s.m.Status() != mars.StateStopped {
		t.Fatalf("status %v", s.m.Status())
	}
}

func TestPrintString(t *testing.T) {
	s := newSession(t, `
.data
msg:	.asciiz "hello\n"
.text
	la $a0, msg
	li $v0, 4
	syscall
	li $v0, 10
	syscall
`, "")
	if _, ok := s.m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	if got := s.out.String(); got != "hello\n" {
		t.Fatalf("output %q", got)
	}
}

func TestReadIntEchoesNegative(t *testing.T) {
	s := newSession(t, `
	li $v0, 5
	syscall
	move $a0, $v0
	li $v0, 1
	syscall
	li $v0, 10
	syscall
`, "-37\n")
	if _, ok := s.m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	if got := s.out.String(); got != "-37" {
		t.Fatalf("output %q", got)
	}
}

func TestReadStringIsBounded(t *testing.T) {
	s := newSession(t, `
.data
buf:	.space 8
.text
	la $a0, buf
	li $a1, 4
	li $v0, 8
	syscall
	la $a0, buf
	li $v0, 4
	syscall
	li $v0, 10
	syscall
`, "abcdefgh\n")
	if _, ok := s.m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	// 4-byte buffer keeps 3 characters plus the terminator
	if got := s.out.String(); got != "abc" {
		t.Fatalf("output %q", got)
	}
}

func TestSbrkReturnsDistinctBlocks(t *testing.T) {
	s := newSession(t, `
	li $a0, 16
	li $v0, 9
	syscall
	move $t0, $v0
	li $a0, 16
	li $v0, 9
	syscall
	move $t1, $v0
	li $v0, 10
	syscall
`, "")
	if _, ok := s.m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	first := s.m.Reg(mips.REG_T0)
	second := s.m.Reg(9)
	if first != asm.HeapBase {
		t.Fatalf("first block %#08x", first)
	}
	if second != first+16 {
		t.Fatalf("second block %#08x", second)
	}
	// allocated memory must be writable
	if err := s.m.Mem().WriteUint(first, 4, 0, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
}

func TestSbrkGrowsHeap(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	addr, err := s.k.sbrk(0x20000) // beyond the initial heap mapping
	if err != nil {
		t.Fatal(err)
	}
	if addr != asm.HeapBase {
		t.Fatalf("block %#08x", addr)
	}
	if err := s.m.Mem().WriteUint(addr+0x1fffc, 4, 0, 1); err != nil {
		t.Fatalf("grown heap not writable: %v", err)
	}
}

func TestPrintIntHexAndBinary(t *testing.T) {
	s := newSession(t, `
	li $a0, 0xff
	li $v0, 34
	syscall
	li $a0, 5
	li $v0, 35
	syscall
	li $v0, 10
	syscall
`, "")
	if _, ok := s.m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	want := "0x000000ff" + "00000000000000000000000000000101"
	if got := s.out.String(); got != want {
		t.Fatalf("output %q", got)
	}
}

func TestRandomSeededRange(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	// seed stream 1, then draw from it
	s.m.SetReg(mips.REG_A0, 1)
	s.m.SetReg(mips.REG_A1, 99)
	if err := s.k.services[40].Fn(s.k, nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		s.m.SetReg(mips.REG_A0, 1)
		s.m.SetReg(mips.REG_A1, 10)
		if err := s.k.services[42].Fn(s.k, nil); err != nil {
			t.Fatal(err)
		}
		if got := s.m.Reg(mips.REG_A0); got >= 10 {
			t.Fatalf("draw %d out of range", got)
		}
	}
}

func TestUnknownServiceFaults(t *testing.T) {
	s := newSession(t, `
	li $v0, 999
	syscall
`, "")
	err := s.m.Run()
	exc, ok := err.(*mips.Exception)
	if !ok || exc.Cause != mips.CAUSE_SYSCALL {
		t.Fatalf("want syscall fault, got %v", err)
	}
}

func TestServiceOverride(t *testing.T) {
	prog, err := asm.Assemble([]asm.SourceFile{{Name: "test.asm", Text: `
	li $v0, 1
	syscall
	li $v0, 10
	syscall
`}}, asm.Options{Extended: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := mars.NewMachine(prog, &models.Config{})
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	m.Stdout = out
	m.Stdin = &bytes.Buffer{}
	called := false
	_, err = New(m, Service{Num: 1, Name: "PrintIntStub", Fn: func(k *Kernel, st *mips.Stmt) error {
		called = true
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Run().(models.ExitStatus); !ok {
		t.Fatal("program did not exit")
	}
	if !called {
		t.Fatal("override not dispatched")
	}
	if out.Len() != 0 {
		t.Fatalf("stub produced output %q", out.String())
	}
}

func TestDuplicateOverrideRejected(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	stub := func(k *Kernel, st *mips.Stmt) error { return nil }
	_, err := New(s.m,
		Service{Num: 1, Name: "First", Fn: stub},
		Service{Num: 1, Name: "Second", Fn: stub})
	if err == nil {
		t.Fatal("duplicate override accepted")
	}
}

func TestRenumberByName(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	if err := s.k.Renumber(map[string]uint32{"PrintInt": 90}); err != nil {
		t.Fatal(err)
	}
	if svc := s.k.Lookup(90); svc == nil || svc.Name != "PrintInt" {
		t.Fatalf("service 90 = %+v", svc)
	}
	if s.k.Lookup(1) != nil {
		t.Fatal("old number still bound")
	}
}

func TestRenumberSwap(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	if err := s.k.Renumber(map[string]uint32{"PrintInt": 10, "Exit": 1}); err != nil {
		t.Fatal(err)
	}
	if svc := s.k.Lookup(10); svc == nil || svc.Name != "PrintInt" {
		t.Fatalf("service 10 = %+v", svc)
	}
	if svc := s.k.Lookup(1); svc == nil || svc.Name != "Exit" {
		t.Fatalf("service 1 = %+v", svc)
	}
}

func TestRenumberCollisionRejected(t *testing.T) {
	s := newSession(t, "\tnop\n", "")
	// Exit holds 10 and is not moving
	if err := s.k.Renumber(map[string]uint32{"PrintInt": 10}); err == nil {
		t.Fatal("collision accepted")
	}
	if svc := s.k.Lookup(1); svc == nil || svc.Name != "PrintInt" {
		t.Fatal("failed renumber mutated the table")
	}
	if err := s.k.Renumber(map[string]uint32{"PrintInt": 91, "Exit": 91}); err == nil {
		t.Fatal("double assignment accepted")
	}
	if err := s.k.Renumber(map[string]uint32{"NoSuchService": 92}); err == nil {
		t.Fatal("unknown name accepted")
	}
}

func TestDuplicateBaseServicePanics(t *testing.T) {
	seen := make(map[uint32]bool)
	for _, svc := range baseServices() {
		if seen[svc.Num] {
			t.Fatalf("service %d defined twice", svc.Num)
		}
		seen[svc.Num] = true
	}
}
