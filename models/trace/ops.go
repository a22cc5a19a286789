package trace

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var order = binary.LittleEndian

// Op is one trace record. Pack writes into a pre-sized buffer; Unpack
// reads the body that follows the op byte.
type Op interface {
	Sizeof() int
	Pack(p []byte)
	Unpack(r io.Reader) (int, error)
}

const (
	OP_NOP       = 0
	OP_FRAME     = 1
	OP_KEYFRAME  = 2
	OP_STEP      = 3
	OP_REG       = 4
	OP_MEM_WRITE = 5
	OP_MEM_MAP   = 6
	OP_SYSCALL   = 7
	OP_EXIT      = 8
)

// used by frame, keyframe, and syscall
func packOps(p []byte, ops []Op) {
	for _, op := range ops {
		op.Pack(p)
		p = p[op.Sizeof():]
	}
}

// used by frame, keyframe, and syscall
func unpackOps(r io.Reader, count int) (ops []Op, total int, err error) {
	ops = make([]Op, count)
	for i := 0; i < count; i++ {
		op, n, err := Unpack(r, true)
		if err != nil {
			return ops, total + n, errors.Wrap(err, "unpacking op list")
		}
		total += n
		ops[i] = op
	}
	return ops, total, nil
}

func Unpack(r io.Reader, nested bool) (Op, int, error) {
	var tmp [1]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, 0, err
	}
	var op Op
	switch tmp[0] {
	case OP_NOP:
		op = &OpNop{}
	case OP_STEP:
		op = &OpStep{}
	case OP_REG:
		op = &OpReg{}
	case OP_MEM_WRITE:
		op = &OpMemWrite{}
	case OP_MEM_MAP:
		op = &OpMemMap{}
	case OP_SYSCALL:
		op = &OpSyscall{}
	case OP_FRAME:
		op = &OpFrame{}
	case OP_KEYFRAME:
		op = &OpKeyframe{}
	case OP_EXIT:
		op = &OpExit{}
	default:
		return nil, 0, errors.Errorf("unknown op: %d", tmp[0])
	}
	if nested && (tmp[0] == OP_FRAME || tmp[0] == OP_KEYFRAME) {
		return nil, 0, errors.New("fatal: nested frame")
	}
	n, err := op.Unpack(r)
	return op, n + 1, err
}

type OpNop struct{}

func (o *OpNop) Sizeof() int   { return 1 }
func (o *OpNop) Pack(p []byte) { p[0] = OP_NOP }

func (o *OpNop) Unpack(r io.Reader) (int, error) { return 0, nil }

// OpStep records one executed instruction: its address and word.
type OpStep struct {
	Addr uint32
	Word uint32
}

func (o *OpStep) Sizeof() int { return 1 + 4 + 4 }
func (o *OpStep) Pack(p []byte) {
	p[0] = OP_STEP
	order.PutUint32(p[1:], o.Addr)
	order.PutUint32(p[5:], o.Word)
}

func (o *OpStep) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint32(tmp[:])
		o.Word = order.Uint32(tmp[4:])
	}
	return n, err
}

// OpReg records a register write, numbered in the dump enum scheme.
type OpReg struct {
	Enum uint16
	Val  uint32
}

func (o *OpReg) Sizeof() int { return 1 + 2 + 4 }
func (o *OpReg) Pack(p []byte) {
	p[0] = OP_REG
	order.PutUint16(p[1:], o.Enum)
	order.PutUint32(p[3:], o.Val)
}

func (o *OpReg) Unpack(r io.Reader) (int, error) {
	var tmp [2 + 4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Enum = order.Uint16(tmp[:])
		o.Val = order.Uint32(tmp[2:])
	}
	return n, err
}

type OpMemWrite struct {
	Addr uint32
	Data []byte
}

func (o *OpMemWrite) Sizeof() int { return 1 + 4 + 4 + len(o.Data) }
func (o *OpMemWrite) Pack(p []byte) {
	p[0] = OP_MEM_WRITE
	order.PutUint32(p[1:], o.Addr)
	order.PutUint32(p[5:], uint32(len(o.Data)))
	copy(p[9:], o.Data)
}

func (o *OpMemWrite) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 4]byte
	total, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint32(tmp[:])
		size := order.Uint32(tmp[4:])
		o.Data = make([]byte, size)
		n, err := io.ReadFull(r, o.Data)
		return total + n, err
	}
	return total, err
}

type OpMemMap struct {
	Addr uint32
	Size uint32
	Prot uint8
	Desc string
}

func (o *OpMemMap) Sizeof() int {
	return 1 + 4 + 4 + 1 + 2 + len([]byte(o.Desc))
}
func (o *OpMemMap) Pack(p []byte) {
	desc := []byte(o.Desc)
	p[0] = OP_MEM_MAP
	order.PutUint32(p[1:], o.Addr)
	order.PutUint32(p[5:], o.Size)
	p[9] = o.Prot
	order.PutUint16(p[10:], uint16(len(desc)))
	copy(p[12:], desc)
}

func (o *OpMemMap) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 4 + 1 + 2]byte
	total, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Addr = order.Uint32(tmp[:])
		o.Size = order.Uint32(tmp[4:])
		o.Prot = tmp[8]
		dlen := order.Uint16(tmp[9:])
		buf := make([]byte, dlen)
		n, err := io.ReadFull(r, buf)
		total += n
		if err != nil {
			return total, err
		}
		o.Desc = string(buf)
	}
	return total, err
}

// OpSyscall records a service dispatch with the mutations it caused.
type OpSyscall struct {
	Num uint32
	Ops []Op
}

func (o *OpSyscall) Sizeof() int {
	size := 1 + 4 + 2
	for _, op := range o.Ops {
		size += op.Sizeof()
	}
	return size
}
func (o *OpSyscall) Pack(p []byte) {
	p[0] = OP_SYSCALL
	order.PutUint32(p[1:], o.Num)
	order.PutUint16(p[5:], uint16(len(o.Ops)))
	packOps(p[7:], o.Ops)
}

func (o *OpSyscall) Unpack(r io.Reader) (int, error) {
	var tmp [4 + 2]byte
	total, err := io.ReadFull(r, tmp[:])
	if err != nil {
		return total, errors.Wrap(err, "syscall unpack")
	}
	o.Num = order.Uint32(tmp[:])
	count := int(order.Uint16(tmp[4:]))
	ops, n, err := unpackOps(r, count)
	o.Ops = ops
	return total + n, err
}

type OpExit struct {
	Status uint32
}

func (o *OpExit) Sizeof() int { return 1 + 4 }
func (o *OpExit) Pack(p []byte) {
	p[0] = OP_EXIT
	order.PutUint32(p[1:], o.Status)
}

func (o *OpExit) Unpack(r io.Reader) (int, error) {
	var tmp [4]byte
	n, err := io.ReadFull(r, tmp[:])
	if err == nil {
		o.Status = order.Uint32(tmp[:])
	}
	return n, err
}

// OpFrame groups the ops of one instruction step.
type OpFrame struct {
	Ops []Op
}

func (o *OpFrame) Sizeof() int {
	size := 1 + 4
	for _, op := range o.Ops {
		size += op.Sizeof()
	}
	return size
}
func (o *OpFrame) Pack(p []byte) {
	p[0] = OP_FRAME
	order.PutUint32(p[1:], uint32(len(o.Ops)))
	packOps(p[1+4:], o.Ops)
}

func (o *OpFrame) Unpack(r io.Reader) (int, error) {
	var tmp [4]byte
	total, err := io.ReadFull(r, tmp[:])
	if err != nil {
		return total, errors.Wrap(err, "frame unpack")
	}
	count := int(order.Uint32(tmp[:]))
	ops, n, err := unpackOps(r, count)
	o.Ops = ops
	return total + n, err
}

// OpKeyframe is a full machine snapshot: register values and mapped
// memory with contents. A replay can start from any keyframe.
type OpKeyframe struct {
	Ops []Op
}

func (o *OpKeyframe) Sizeof() int {
	size := 1 + 4
	for _, op := range o.Ops {
		size += op.Sizeof()
	}
	return size
}
func (o *OpKeyframe) Pack(p []byte) {
	p[0] = OP_KEYFRAME
	order.PutUint32(p[1:], uint32(len(o.Ops)))
	packOps(p[1+4:], o.Ops)
}

func (o *OpKeyframe) Unpack(r io.Reader) (int, error) {
	return (*OpFrame)(o).Unpack(r)
}
