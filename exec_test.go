package mars

import (
	"runtime"
	"testing"

	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
	"github.com/nhubbard/mars-sub006/models"
)

func buildMachine(t *testing.T, src string, config *models.Config) *Machine {
	t.Helper()
	prog, err := asm.Assemble([]asm.SourceFile{{Name: "test.asm", Text: src}},
		asm.Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	if config == nil {
		config = &models.Config{BackstepLimit: 100}
	}
	m, err := NewMachine(prog, config)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDelaySlotExecutes(t *testing.T) {
	m := buildMachine(t, `
	li $t0, 1
	j target
	addi $t0, $t0, 1	# delay slot, must execute
	addi $t0, $t0, 10	# jumped over, must not
target:	nop
`, nil)
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	if got := m.Reg(mips.REG_T0); got != 2 {
		t.Fatalf("$t0 = %d, want 2", got)
	}
}

func TestBranchNotTakenSkipsTarget(t *testing.T) {
	m := buildMachine(t, `
	li $t0, 1
	beq $t0, $zero, over	# not taken
	addi $t1, $t1, 1	# delay slot
	addi $t1, $t1, 2	# falls through
over:	nop
`, nil)
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	if got := m.Reg(9); got != 3 {
		t.Fatalf("$t1 = %d, want 3", got)
	}
}

func TestJalLinksPastDelaySlot(t *testing.T) {
	m := buildMachine(t, `
	jal sub
	nop
	nop
sub:	nop
`, nil)
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	// return address skips the delay slot
	if got := m.Reg(mips.REG_RA); got != 0x00400008 {
		t.Fatalf("$ra = %#08x", got)
	}
}

func TestOverflowFaultLeavesDestination(t *testing.T) {
	m := buildMachine(t, `
	lui $t0, 0x7fff
	ori $t0, $t0, 0xffff
	li $t1, 1
	add $t2, $t0, $t1
`, nil)
	err := m.Run()
	exc, ok := err.(*mips.Exception)
	if !ok {
		t.Fatalf("want exception, got %v", err)
	}
	if exc.Cause != mips.CAUSE_OVF {
		t.Fatalf("cause %d", exc.Cause)
	}
	if m.Status() != StateFaulted {
		t.Fatalf("status %v", m.Status())
	}
	if got := m.Reg(10); got != 0 {
		t.Fatalf("$t2 written on overflow: %#x", got)
	}
	epc, _ := m.Cop0().RegRead(mips.COP0_EPC)
	if epc != 0x0040000c {
		t.Fatalf("epc %#08x", epc)
	}
	cause, _ := m.Cop0().RegRead(mips.COP0_CAUSE)
	if cause != uint32(mips.CAUSE_OVF)<<2 {
		t.Fatalf("cause register %#x", cause)
	}
}

func TestAddressErrorOnLoad(t *testing.T) {
	m := buildMachine(t, `
	li $t0, 3
	lw $t1, 0($t0)	# unaligned
`, nil)
	err := m.Run()
	exc, ok := err.(*mips.Exception)
	if !ok || exc.Cause != mips.CAUSE_ADDRL {
		t.Fatalf("want address error on load, got %v", err)
	}
	vaddr, _ := m.Cop0().RegRead(mips.COP0_VADDR)
	if vaddr != 3 {
		t.Fatalf("vaddr %#x", vaddr)
	}
}

func TestKernelHandlerFieldsFault(t *testing.T) {
	m := buildMachine(t, `
	lui $t0, 0x7fff
	ori $t0, $t0, 0xffff
	li $t1, 1
	add $t2, $t0, $t1	# overflows into the handler
	nop
.ktext 0x80000180
	mfc0 $k0, $14
	addiu $k0, $k0, 4
	mtc0 $k0, $14
	eret
`, nil)
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	status, _ := m.Cop0().RegRead(mips.COP0_STATUS)
	if status&mips.STATUS_EXL != 0 {
		t.Fatal("exception level still set after eret")
	}
	epc, _ := m.Cop0().RegRead(mips.COP0_EPC)
	if epc != 0x00400010 {
		t.Fatalf("epc %#08x", epc)
	}
}

func TestBackstepUndoesRegisterAndMemory(t *testing.T) {
	m := buildMachine(t, `
	li $t0, 5
	sw $t0, 0($sp)
	li $t0, 9
`, nil)
	for i := 0; i < 3; i++ {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Reg(mips.REG_T0); got != 9 {
		t.Fatalf("$t0 = %d", got)
	}
	if !m.Backstep() {
		t.Fatal("backstep failed")
	}
	if got := m.Reg(mips.REG_T0); got != 5 {
		t.Fatalf("$t0 after backstep = %d", got)
	}
	if got := m.PC(); got != 0x00400008 {
		t.Fatalf("pc after backstep = %#08x", got)
	}
	if !m.Backstep() {
		t.Fatal("second backstep failed")
	}
	sp := m.Reg(mips.REG_SP)
	word, err := m.Mem().ReadUint(sp, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if word != 0 {
		t.Fatalf("store not undone: %#x", word)
	}
	if !m.Backstep() {
		t.Fatal("third backstep failed")
	}
	if m.Backstep() {
		t.Fatal("backstep past the beginning")
	}
	if got := m.PC(); got != 0x00400000 {
		t.Fatalf("pc fully rewound to %#08x", got)
	}
}

func TestBackstepUndoesFetchFaultTrap(t *testing.T) {
	m := buildMachine(t, `
	li $t0, 2
	jr $t0		# lands on an unaligned address
	nop
.ktext 0x80000180
	nop
`, nil)
	for i := 0; i < 4; i++ {
		if err := m.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.PC(); got != asm.ExceptionHandlerAddr {
		t.Fatalf("pc = %#08x, want the exception handler", got)
	}
	if m.Steps() != 4 {
		t.Fatalf("trap step not counted: steps %d", m.Steps())
	}
	epc, _ := m.Cop0().RegRead(mips.COP0_EPC)
	if epc != 2 {
		t.Fatalf("epc = %#x, want the faulting fetch address", epc)
	}
	status, _ := m.Cop0().RegRead(mips.COP0_STATUS)
	if status&mips.STATUS_EXL == 0 {
		t.Fatal("exception level not set by the trap")
	}
	if !m.Backstep() {
		t.Fatal("backstep failed")
	}
	if got := m.PC(); got != 2 {
		t.Fatalf("pc after backstep = %#08x, want 2", got)
	}
	status, _ = m.Cop0().RegRead(mips.COP0_STATUS)
	if status&mips.STATUS_EXL != 0 {
		t.Fatal("exception level not undone")
	}
	epc, _ = m.Cop0().RegRead(mips.COP0_EPC)
	if epc != 0 {
		t.Fatalf("epc after backstep = %#x", epc)
	}
	if m.Steps() != 3 {
		t.Fatalf("steps after backstep = %d", m.Steps())
	}
	// replaying the step must trap identically
	if err := m.Step(); err != nil {
		t.Fatal(err)
	}
	if got := m.PC(); got != asm.ExceptionHandlerAddr {
		t.Fatalf("pc after re-step = %#08x", got)
	}
}

func TestBackstepRestoresDelaySlot(t *testing.T) {
	m := buildMachine(t, `
	j target
	nop
	nop
target:	nop
`, nil)
	m.Step() // j: branch registered
	m.Step() // delay slot: branch lands
	if got := m.PC(); got != 0x0040000c {
		t.Fatalf("pc = %#08x", got)
	}
	m.Backstep()
	if got := m.PC(); got != 0x00400004 {
		t.Fatalf("pc after backstep = %#08x", got)
	}
	// stepping forward again must retake the branch
	m.Step()
	if got := m.PC(); got != 0x0040000c {
		t.Fatalf("pc after re-step = %#08x", got)
	}
}

func TestBreakpoint(t *testing.T) {
	m := buildMachine(t, "\tnop\n\tnop\n\tnop\n", nil)
	m.AddBreakpoint(0x00400004)
	if err := m.Run(); err != ErrBreakpoint {
		t.Fatalf("run ended with %v", err)
	}
	if got := m.PC(); got != 0x00400004 {
		t.Fatalf("stopped at %#08x", got)
	}
	if m.Status() != StatePaused {
		t.Fatalf("status %v", m.Status())
	}
	// resuming executes the instruction under the breakpoint
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("resume ended with %v", err)
	}
}

func TestMaxSteps(t *testing.T) {
	m := buildMachine(t, "loop:\tb loop\n\tnop\n",
		&models.Config{MaxSteps: 5})
	if err := m.Run(); err != ErrMaxSteps {
		t.Fatalf("run ended with %v", err)
	}
	if m.Steps() != 5 {
		t.Fatalf("steps %d", m.Steps())
	}
}

func TestRunOffBottom(t *testing.T) {
	m := buildMachine(t, "\tnop\n", nil)
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	if m.Status() != StateStopped {
		t.Fatalf("status %v", m.Status())
	}
}

func TestEntryAtMain(t *testing.T) {
	m := buildMachine(t, `
	nop
.globl main
main:	li $t0, 7
`, nil)
	if got := m.PC(); got != 0x00400004 {
		t.Fatalf("entry %#08x", got)
	}
	if err := m.Run(); err != ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	if got := m.Reg(mips.REG_T0); got != 7 {
		t.Fatalf("$t0 = %d", got)
	}
}

func TestPauseFromAnotherGoroutine(t *testing.T) {
	m := buildMachine(t, "loop:\tb loop\n\tnop\n", &models.Config{})
	done := make(chan error, 1)
	go func() {
		done <- m.Run()
	}()
	for m.Status() != StateRunning {
		runtime.Gosched()
	}
	m.Pause()
	if err := <-done; err != nil {
		t.Fatalf("paused run returned %v", err)
	}
	if m.Status() != StatePaused {
		t.Fatalf("status %v", m.Status())
	}
}
