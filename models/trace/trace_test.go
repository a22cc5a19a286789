package trace

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// these OPs are ordered to be semi-valid, so not by number
var allButSyscall = []Op{
	&OpNop{},
	&OpMemMap{0x00400000, 0x1000, 5, "text"},
	&OpMemMap{0x10010000, 0x1000, 3, ""},
	&OpMemWrite{0x10010000, []byte{0x68, 0x69, 0x00}},
	&OpStep{0x00400000, 0x3c011001},
	&OpReg{1, 0x10010000},
	&OpReg{32, 0x00400004}, // pc
	&OpExit{0},
}

var testSyscall = &OpSyscall{
	Num: 4,
	Ops: allButSyscall,
}

var allUnframed = append(allButSyscall, testSyscall)

var testFrame = &OpFrame{Ops: allUnframed}
var testKeyframe = &OpKeyframe{Ops: allUnframed}

func TestOpFrame(t *testing.T) {
	buf := make([]byte, testFrame.Sizeof())
	testFrame.Pack(buf)
	op, _, err := Unpack(bytes.NewReader(buf), false)
	if err != nil {
		t.Fatal(err)
	}

	buf2 := make([]byte, op.Sizeof())
	op.Pack(buf2)
	if _, _, err = Unpack(bytes.NewReader(buf2), false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, buf2) {
		t.Error("encoded forms differ")
	}
}

func TestNestedFrameRejected(t *testing.T) {
	inner := &OpFrame{Ops: []Op{&OpNop{}}}
	outer := &OpFrame{Ops: []Op{inner}}
	buf := make([]byte, outer.Sizeof())
	outer.Pack(buf)
	if _, _, err := Unpack(bytes.NewReader(buf), false); err == nil {
		t.Fatal("nested frame accepted")
	}
}

type bufCloser struct {
	bytes.Buffer
}

func (b *bufCloser) Close() error { return nil }

func TestFileRoundTrip(t *testing.T) {
	buf := &bufCloser{}
	w, err := NewWriter(buf, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Pack(testKeyframe); err != nil {
		t.Fatal(err)
	}
	if err := w.Pack(testFrame); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(io.NopCloser(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	if r.Header.ISA != "mips32" {
		t.Fatalf("isa %q", r.Header.ISA)
	}
	if r.Header.Order != binary.LittleEndian {
		t.Fatal("wrong byte order")
	}
	op, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := op.(*OpKeyframe); !ok {
		t.Fatalf("first op %T", op)
	}
	op, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	frame, ok := op.(*OpFrame)
	if !ok {
		t.Fatalf("second op %T", op)
	}
	if len(frame.Ops) != len(testFrame.Ops) {
		t.Fatalf("frame has %d ops", len(frame.Ops))
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestBadMagicRejected(t *testing.T) {
	data := append([]byte("XXXX"), make([]byte, 64)...)
	if _, err := NewReader(io.NopCloser(bytes.NewReader(data))); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func BenchmarkPack(b *testing.B) {
	for i := 0; i < b.N; i++ {
		tmp := make([]byte, testFrame.Sizeof())
		testFrame.Pack(tmp)
	}
}

func BenchmarkUnpack(b *testing.B) {
	tmp := make([]byte, testFrame.Sizeof())
	testFrame.Pack(tmp)
	r := bytes.NewReader(tmp)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Seek(0, 0)
		if _, _, err := Unpack(r, false); err != nil {
			b.Fatal(err)
		}
	}
}
