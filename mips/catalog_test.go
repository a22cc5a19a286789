package mips

import (
	"strings"
	"testing"
)

func TestCatalogRoundTrip(t *testing.T) {
	c := NewCatalog()
	for _, ins := range c.All() {
		// varied in-range operand values exercise every field
		ops := make([]uint32, len(ins.Fields))
		for n, f := range ins.Fields {
			ops[n] = uint32(n+5) & (1<<f.Bits - 1)
		}
		word, err := ins.Encode(ops)
		if err != nil {
			t.Fatalf("%s: encode: %v", ins.Name, err)
		}
		st, err := c.Decode(0x00400000, word)
		if err != nil {
			t.Fatalf("%s: decode %#08x: %v", ins.Name, word, err)
		}
		if st.Ins != ins {
			t.Fatalf("%s: decoded as %s", ins.Name, st.Ins.Name)
		}
		back, err := st.Ins.Encode(st.Ops)
		if err != nil {
			t.Fatalf("%s: re-encode: %v", ins.Name, err)
		}
		if back != word {
			t.Fatalf("%s: round trip %#08x != %#08x", ins.Name, back, word)
		}
	}
}

func TestDecodeReservedInstruction(t *testing.T) {
	c := NewCatalog()
	_, err := c.Decode(0x00400000, 0xffffffff)
	if err == nil {
		t.Fatal("undecodable word did not fault")
	}
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("want Exception, got %T", err)
	}
	if exc.Cause != CAUSE_RI {
		t.Fatalf("want cause %d, got %d", CAUSE_RI, exc.Cause)
	}
}

func TestEncodeKnownWords(t *testing.T) {
	c := NewCatalog()
	// independently computed encodings
	for _, tc := range []struct {
		name string
		ops  []uint32 // assembly-syntax order
		word uint32
	}{
		{"add", []uint32{9, 10, 11}, 0x014b4820},  // add $t1,$t2,$t3
		{"addi", []uint32{9, 10, 100}, 0x21490064}, // addi $t1,$t2,100
		{"sll", []uint32{9, 10, 4}, 0x000a4900},    // sll $t1,$t2,4
		{"jal", []uint32{0x100000}, 0x0c100000},    // jal 0x00400000
		{"lw", []uint32{9, 8, 29}, 0x8fa90008},     // lw $t1,8($sp)
		{"syscall", nil, 0x0000000c},
	} {
		ins := c.FindByMnemonic(tc.name, len(tc.ops))
		if ins == nil {
			t.Fatalf("%s/%d not in catalog", tc.name, len(tc.ops))
		}
		word, err := ins.EncodeSyntax(tc.ops)
		if err != nil {
			t.Fatal(err)
		}
		if word != tc.word {
			t.Fatalf("%s: got %#08x, want %#08x", tc.name, word, tc.word)
		}
	}
}

func TestDisassemble(t *testing.T) {
	c := NewCatalog()
	st, err := c.Decode(0x00400000, 0x014b4820) // add $t1,$t2,$t3
	if err != nil {
		t.Fatal(err)
	}
	want := "add $t1, $t2, $t3"
	if got := st.Ins.Disassemble(st); got != want {
		t.Fatalf("disassembly %q != %q", got, want)
	}
}

func TestTemplateRejectsDiscontiguousField(t *testing.T) {
	ins := &Instruction{
		Name:     "bogus",
		Template: "000000 sssss 00000 sssss 00000 000000",
	}
	if err := ins.parseTemplate(); err == nil {
		t.Fatal("discontiguous field accepted")
	}
}

func TestRegNum(t *testing.T) {
	for _, tc := range []struct {
		in    string
		num   int
		float bool
	}{
		{"$t1", 9, false},
		{"$zero", 0, false},
		{"$31", 31, false},
		{"$fp", 30, false},
		{"$f12", 12, true},
		{"$ra", 31, false},
	} {
		n, f, err := RegNum(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if n != tc.num || f != tc.float {
			t.Fatalf("%s: got (%d, %v)", tc.in, n, f)
		}
	}
	for _, bad := range []string{"$t10", "t1", "$32", "$f32", "$"} {
		if _, _, err := RegNum(bad); err == nil {
			t.Fatalf("%s: accepted", bad)
		}
	}
}

func TestPseudoExpansion(t *testing.T) {
	for _, tc := range []struct {
		name string
		ops  []string
		want []string
	}{
		{"move", []string{"$t1", "$t2"}, []string{"addu $t1, $zero, $t2"}},
		{"li", []string{"$t1", "100"}, []string{"addiu $t1, $zero, 100"}},
		{"li", []string{"$t1", "0x8000"}, []string{"ori $t1, $zero, 32768"}},
		{"li", []string{"$t1", "0x12345678"}, []string{
			"lui $t1, 4660",
			"ori $t1, $t1, 22136",
		}},
		{"la", []string{"$t1", "msg"}, []string{
			"lui $at, %hi(msg)",
			"ori $t1, $at, %lo(msg)",
		}},
		{"blt", []string{"$t1", "$t2", "loop"}, []string{
			"slt $at, $t1, $t2",
			"bne $at, $zero, loop",
		}},
		{"nop", nil, []string{"sll $zero, $zero, 0"}},
	} {
		p := LookupPseudo(tc.name)
		if p == nil {
			t.Fatalf("%s: not a pseudo-instruction", tc.name)
		}
		got, err := p.Expand(tc.ops)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if strings.Join(got, "\n") != strings.Join(tc.want, "\n") {
			t.Fatalf("%s: expansion mismatch:\n%s", tc.name, strings.Join(got, "\n"))
		}
	}
}

func TestLiRejectsOutOfRange(t *testing.T) {
	p := LookupPseudo("li")
	if _, err := p.Expand([]string{"$t1", "0x100000000"}); err == nil {
		t.Fatal("out-of-range immediate accepted")
	}
}
