package asm

import (
	"strings"
	"testing"
)

func assemble(t *testing.T, text string) *Program {
	t.Helper()
	prog, err := Assemble([]SourceFile{{Name: "test.asm", Text: text}}, Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	return prog
}

func wantWords(t *testing.T, prog *Program, words ...uint32) {
	t.Helper()
	if len(prog.Stmts) != len(words) {
		t.Fatalf("want %d statements, got %d", len(words), len(prog.Stmts))
	}
	for i, w := range words {
		if prog.Stmts[i].Word != w {
			t.Fatalf("statement %d (%s): got %#08x, want %#08x",
				i, prog.Stmts[i].Source, prog.Stmts[i].Word, w)
		}
	}
}

func TestAssembleHelloSkeleton(t *testing.T) {
	prog := assemble(t, `
.data
msg: .asciiz "hi"
.text
main:
	la $t0, msg
	li $v0, 4
	syscall
`)
	wantWords(t, prog,
		0x3c011001, // lui $at, 0x1001
		0x34280000, // ori $t0, $at, 0
		0x24020004, // addiu $v0, $zero, 4
		0x0000000c, // syscall
	)
	for i, st := range prog.Stmts {
		if want := uint32(0x00400000 + 4*i); st.Addr != want {
			t.Fatalf("statement %d at %#08x, want %#08x", i, st.Addr, want)
		}
	}
	if len(prog.Data) != 1 || prog.Data[0].Addr != 0x10010000 {
		t.Fatalf("data chunk misplaced: %+v", prog.Data)
	}
	if got := string(prog.Data[0].Bytes); got != "hi\x00" {
		t.Fatalf("data bytes %q", got)
	}
	msg := prog.Locals["test.asm"].Get("msg")
	if msg == nil || msg.Addr != 0x10010000 || !msg.Data {
		t.Fatalf("msg symbol: %+v", msg)
	}
}

func TestBackwardBranch(t *testing.T) {
	prog := assemble(t, `
loop:	addi $t0, $t0, 1
	bne $t0, $t1, loop
`)
	wantWords(t, prog,
		0x21080001,
		0x1509fffe, // offset -2 relative to the delay slot
	)
}

func TestForwardBranchAndJump(t *testing.T) {
	prog := assemble(t, `
	beq $zero, $zero, done
	nop
done:	j done
`)
	// beq at +0 branches over one instruction: offset +1
	wantWords(t, prog,
		0x10000001,
		0x00000000,
		0x08100002, // j 0x00400008
	)
}

func TestGlobalSymbolAcrossFiles(t *testing.T) {
	prog, err := Assemble([]SourceFile{
		{Name: "a.asm", Text: `
.data
shared: .word 42
.globl shared
`},
		{Name: "b.asm", Text: `
.text
	la $t0, shared
`},
	}, Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	sym := prog.Globals.Get("shared")
	if sym == nil || sym.Addr != 0x10010000 {
		t.Fatalf("global symbol: %+v", sym)
	}
	if prog.Locals["a.asm"].Get("shared") != nil {
		t.Fatal("promoted symbol still in local table")
	}
	wantWords(t, prog,
		0x3c011001, // lui $at, %hi(shared)
		0x34280000, // ori $t0, $at, %lo(shared)
	)
}

func TestLocalSymbolHiddenAcrossFiles(t *testing.T) {
	// without .globl the definition stays file-local
	_, err := Assemble([]SourceFile{
		{Name: "a.asm", Text: `
.data
hidden:	.word 42
`},
		{Name: "b.asm", Text: `
.text
	la $t0, hidden
`},
	}, Options{Extended: true}, nil)
	if err == nil {
		t.Fatal("local symbol resolved from another file")
	}
	if !strings.Contains(err.Error(), "undefined symbol") {
		t.Fatalf("wrong diagnostic:\n%v", err)
	}
}

func TestGlobalMainSetsEntry(t *testing.T) {
	prog := assemble(t, `
.text
	nop
.globl main
main:	nop
`)
	if prog.Entry != 0x00400004 {
		t.Fatalf("entry %#08x", prog.Entry)
	}
}

func TestMacroExpansion(t *testing.T) {
	prog := assemble(t, `
.macro push (%r)
	addiu $sp, $sp, -4
	sw %r, 0($sp)
.end_macro
	push ($t0)
	push ($t1)
`)
	wantWords(t, prog,
		0x27bdfffc,
		0xafa80000,
		0x27bdfffc,
		0xafa90000,
	)
}

func TestMacroLocalLabels(t *testing.T) {
	// the label inside the body must get a fresh name per expansion
	prog := assemble(t, `
.macro spin
wait:	bne $t0, $zero, wait
.end_macro
	spin
	spin
`)
	wantWords(t, prog, 0x1500ffff, 0x1500ffff)
}

func TestMacroForwardReferenceRejected(t *testing.T) {
	_, err := Assemble([]SourceFile{{Name: "test.asm", Text: `
.macro outer
	inner
.end_macro
.macro inner
	nop
.end_macro
	outer
`}}, Options{Extended: true}, nil)
	if err == nil {
		t.Fatal("forward macro reference accepted")
	}
}

func TestEqvSubstitution(t *testing.T) {
	prog := assemble(t, `
.eqv LIMIT 10
	li $t0, LIMIT
`)
	wantWords(t, prog, 0x2408000a)
}

func TestWordRepetitionAndFixup(t *testing.T) {
	prog := assemble(t, `
.data
ptr:	.word later, 7:2
later:	.word 99
`)
	if len(prog.Data) != 1 {
		t.Fatalf("chunks: %+v", prog.Data)
	}
	b := prog.Data[0].Bytes
	if len(b) != 16 {
		t.Fatalf("data length %d", len(b))
	}
	words := []uint32{
		0x1001000c, // address of later
		7, 7, 99,
	}
	for i, w := range words {
		got := uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
		if got != w {
			t.Fatalf("word %d: got %#x, want %#x", i, got, w)
		}
	}
}

func TestDataAlignment(t *testing.T) {
	prog := assemble(t, `
.data
	.byte 1
val:	.word 2
`)
	local := prog.Locals["test.asm"]
	if sym := local.Get("val"); sym == nil || sym.Addr != 0x10010004 {
		t.Fatalf("val not word-aligned: %+v", local.Get("val"))
	}
}

func TestKernelSegments(t *testing.T) {
	prog := assemble(t, `
.ktext
handler: eret
.kdata
save:	.word 0
`)
	if !prog.HasKText {
		t.Fatal("kernel text not detected")
	}
	if prog.Stmts[0].Addr != 0x80000000 {
		t.Fatalf("ktext at %#08x", prog.Stmts[0].Addr)
	}
	if prog.Data[0].Addr != 0x90000000 {
		t.Fatalf("kdata at %#08x", prog.Data[0].Addr)
	}
}

func TestErrorAccumulation(t *testing.T) {
	_, err := Assemble([]SourceFile{{Name: "test.asm", Text: `
	frobnicate $t0
dup:	nop
dup:	nop
	beq $t0, $t1, nowhere
`}}, Options{Extended: true}, nil)
	if err == nil {
		t.Fatal("bad program assembled")
	}
	list, ok := err.(*ErrorList)
	if !ok {
		t.Fatalf("want *ErrorList, got %T", err)
	}
	if len(list.Errors) != 3 {
		t.Fatalf("want 3 errors, got %d:\n%v", len(list.Errors), err)
	}
	text := err.Error()
	for _, want := range []string{"unknown instruction", "already defined", "undefined symbol"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestExtendedDisabled(t *testing.T) {
	_, err := Assemble([]SourceFile{{Name: "test.asm", Text: "\tli $t0, 5\n"}},
		Options{Extended: false}, nil)
	if err == nil {
		t.Fatal("pseudo-instruction accepted with extended instructions disabled")
	}
}

func TestNopAvailableInBasicMode(t *testing.T) {
	prog, err := Assemble([]SourceFile{{Name: "test.asm", Text: "\tnop\n"}},
		Options{Extended: false}, nil)
	if err != nil {
		t.Fatalf("nop rejected in basic mode:\n%v", err)
	}
	wantWords(t, prog, 0x00000000)
}

func TestSetComparisonPseudos(t *testing.T) {
	prog := assemble(t, `
	sgt $t0, $t1, $t2
	sge $t0, $t1, $t2
`)
	wantWords(t, prog,
		0x0149402a, // slt $t0, $t2, $t1
		0x012a402a, // slt $t0, $t1, $t2
		0x39080001, // xori $t0, $t0, 1
	)
}

func TestInclude(t *testing.T) {
	opts := Options{
		Extended: true,
		Include: func(name string) ([]byte, error) {
			if name != "lib.asm" {
				t.Fatalf("unexpected include %q", name)
			}
			return []byte("helper:\tjr $ra\n"), nil
		},
	}
	prog, err := Assemble([]SourceFile{{Name: "test.asm", Text: `
.include "lib.asm"
	nop
`}}, opts, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	if sym := prog.Locals["test.asm"].Get("helper"); sym == nil || sym.Addr != 0x00400000 {
		t.Fatalf("helper symbol: %+v", sym)
	}
}

func TestStmtAt(t *testing.T) {
	prog := assemble(t, "\tnop\n\tnop\n")
	if st := prog.StmtAt(0x00400004); st == nil || st.Addr != 0x00400004 {
		t.Fatal("StmtAt missed a statement")
	}
	if prog.StmtAt(0x00400008) != nil {
		t.Fatal("StmtAt found a statement past the end")
	}
}
