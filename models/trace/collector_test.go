package trace

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/models"
)

func TestCollectorRecordsRun(t *testing.T) {
	prog, err := asm.Assemble([]asm.SourceFile{{Name: "test.asm", Text: `
	li $t0, 7
	sw $t0, 0($sp)
	nop
`}}, asm.Options{Extended: true}, nil)
	if err != nil {
		t.Fatalf("assembly failed:\n%v", err)
	}
	m, err := mars.NewMachine(prog, &models.Config{})
	if err != nil {
		t.Fatal(err)
	}
	buf := &bufCloser{}
	c, err := NewCollector(buf, m, binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(); err != mars.ErrRanOff {
		t.Fatalf("run ended with %v", err)
	}
	c.Exit(0)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(io.NopCloser(bytes.NewReader(buf.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	op, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	kf, ok := op.(*OpKeyframe)
	if !ok {
		t.Fatalf("first op %T", op)
	}
	var sawText bool
	for _, sub := range kf.Ops {
		if mm, ok := sub.(*OpMemMap); ok && mm.Desc == "text" {
			sawText = true
		}
	}
	if !sawText {
		t.Fatal("keyframe missing text mapping")
	}

	var frames int
	var sawStore bool
	var exited bool
	for {
		op, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		switch op := op.(type) {
		case *OpFrame:
			frames++
			step, ok := op.Ops[0].(*OpStep)
			if !ok {
				t.Fatalf("frame starts with %T", op.Ops[0])
			}
			if frames == 1 && step.Addr != asm.TextBase {
				t.Fatalf("first step at %#08x", step.Addr)
			}
			for _, sub := range op.Ops[1:] {
				if mw, ok := sub.(*OpMemWrite); ok && len(mw.Data) == 4 {
					if binary.LittleEndian.Uint32(mw.Data) == 7 {
						sawStore = true
					}
				}
			}
		case *OpExit:
			exited = true
		}
	}
	if frames != 3 {
		t.Fatalf("recorded %d frames", frames)
	}
	if !sawStore {
		t.Fatal("store not recorded")
	}
	if !exited {
		t.Fatal("exit not recorded")
	}
}
