package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
	"github.com/nhubbard/mars-sub006/models"
)

func session(t *testing.T, src string) (*Debugger, *mars.Machine, *bytes.Buffer) {
	t.Helper()
	prog, err := asm.Assemble([]asm.SourceFile{{Name: "test.asm", Text: src}},
		asm.Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	m, err := mars.NewMachine(prog, &models.Config{BackstepLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return New(m, out, false), m, out
}

func TestStepAndRepeat(t *testing.T) {
	d, m, out := session(t, `
	li $t0, 1
	li $t1, 2
	nop
`)
	if quit := d.Exec("s"); quit {
		t.Fatal("step quit the session")
	}
	if m.PC() != 0x00400004 {
		t.Fatalf("pc %#08x", m.PC())
	}
	if !strings.Contains(out.String(), "addiu") {
		t.Fatalf("no disassembly in output:\n%s", out.String())
	}
	// empty line repeats the last command
	d.Exec("")
	if m.PC() != 0x00400008 {
		t.Fatalf("pc after repeat %#08x", m.PC())
	}
}

func TestBackstepCommand(t *testing.T) {
	d, m, _ := session(t, "\tli $t0, 1\n\tli $t1, 2\n")
	d.Exec("s 2")
	d.Exec("sb")
	if m.PC() != 0x00400004 {
		t.Fatalf("pc %#08x", m.PC())
	}
	if got := m.Reg(9); got != 0 {
		t.Fatalf("$t1 = %d after backstep", got)
	}
}

func TestBreakpointCommands(t *testing.T) {
	d, m, out := session(t, "\tnop\n\tnop\n\tnop\n")
	d.Exec("b 0x00400008")
	d.Exec("bl")
	if !strings.Contains(out.String(), "0x00400008") {
		t.Fatalf("bl did not list breakpoint:\n%s", out.String())
	}
	d.Exec("c")
	d.wait()
	if m.PC() != 0x00400008 {
		t.Fatalf("stopped at %#08x", m.PC())
	}
	d.Exec("db 0x00400008")
	if len(m.Breakpoints()) != 0 {
		t.Fatal("breakpoint not deleted")
	}
}

func TestBreakpointOnSymbol(t *testing.T) {
	d, m, _ := session(t, `
	nop
stop:	nop
	nop
`)
	d.Exec("b stop")
	d.Exec("c")
	d.wait()
	if m.PC() != 0x00400004 {
		t.Fatalf("stopped at %#08x", m.PC())
	}
}

func TestContinueLeavesPromptResponsive(t *testing.T) {
	d, m, out := session(t, "loop:\tb loop\n\tnop\n")
	// a synchronous continue would never return on this program
	if quit := d.Exec("c"); quit {
		t.Fatal("continue quit the session")
	}
	// other commands still answer while the guest runs
	d.Exec("map")
	if !strings.Contains(out.String(), "text") {
		t.Fatalf("prompt wedged during run:\n%s", out.String())
	}
	out.Reset()
	d.Exec("s")
	if !strings.Contains(out.String(), "running") {
		t.Fatalf("step during run not rejected:\n%s", out.String())
	}
	out.Reset()
	d.Exec("pause")
	if m.Status() != mars.StatePaused {
		t.Fatalf("status %v after pause", m.Status())
	}
	if !strings.Contains(out.String(), "paused") {
		t.Fatalf("pause not reported:\n%s", out.String())
	}
	// a paused run resumes and can be stopped for good
	out.Reset()
	d.Exec("c")
	d.Exec("stop")
	if m.Status() != mars.StateStopped {
		t.Fatalf("status %v after stop", m.Status())
	}
	out.Reset()
	d.Exec("pause")
	if !strings.Contains(out.String(), "not running") {
		t.Fatalf("pause without a run not diagnosed:\n%s", out.String())
	}
}

func TestMemCommand(t *testing.T) {
	d, _, out := session(t, `
.data
msg:	.asciiz "hi"
.text
	nop
`)
	d.Exec("mem msg 8")
	if !strings.Contains(out.String(), "hi") {
		t.Fatalf("hexdump missing ascii tail:\n%s", out.String())
	}
}

func TestSymCommand(t *testing.T) {
	d, _, out := session(t, `
.data
greeting: .word 0
.text
.globl main
main:	nop
`)
	d.Exec("sym")
	text := out.String()
	if !strings.Contains(text, "main") || !strings.Contains(text, "greeting") {
		t.Fatalf("symbols missing:\n%s", text)
	}
	out.Reset()
	d.Exec("sym gre")
	if strings.Contains(out.String(), "main") {
		t.Fatalf("prefix filter ignored:\n%s", out.String())
	}
}

func TestMapCommand(t *testing.T) {
	d, _, out := session(t, "\tnop\n")
	d.Exec("map")
	text := out.String()
	if !strings.Contains(text, "text") || !strings.Contains(text, "stack") {
		t.Fatalf("mappings missing:\n%s", text)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d, m, _ := session(t, "\tli $t0, 7\n\tnop\n")
	path := filepath.Join(t.TempDir(), "state")
	d.Exec("s")
	if quit := d.Exec("save " + path); quit {
		t.Fatal("save quit")
	}
	d.Exec("s")
	m.SetReg(mips.REG_T0, 99)
	d.Exec("load " + path)
	if got := m.Reg(mips.REG_T0); got != 7 {
		t.Fatalf("$t0 = %d after restore", got)
	}
	if m.PC() != 0x00400004 {
		t.Fatalf("pc %#08x after restore", m.PC())
	}
}

func TestTraceCommand(t *testing.T) {
	d, _, out := session(t, "\tli $t0, 1\n\tnop\n")
	path := filepath.Join(t.TempDir(), "run.trace")
	d.Exec("trace " + path)
	d.Exec("s 2")
	d.Exec("trace off")
	if strings.Contains(out.String(), "error:") {
		t.Fatalf("trace session reported errors:\n%s", out.String())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("trace file is empty")
	}
	out.Reset()
	d.Exec("trace off")
	if !strings.Contains(out.String(), "not active") {
		t.Fatalf("double stop not diagnosed:\n%s", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	d, _, out := session(t, "\tnop\n")
	if quit := d.Exec("bogus"); quit {
		t.Fatal("unknown command quit")
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("no diagnostic:\n%s", out.String())
	}
}

func TestQuit(t *testing.T) {
	d, _, _ := session(t, "\tnop\n")
	if !d.Exec("q") {
		t.Fatal("quit did not end the session")
	}
}
