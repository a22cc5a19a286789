package trace

import (
	"encoding/binary"
	"io"

	"github.com/nhubbard/mars-sub006/models"
	"github.com/nhubbard/mars-sub006/models/cpu"
)

// Source is the machine surface a collector observes.
type Source interface {
	models.RegDumper
	RegEnum(bank, reg int) (int, bool)
	Mappings() []models.Mapping
	MemRead(addr, size uint32) ([]byte, error)
	Hooks() *cpu.Hooks
}

// Collector records an execution trace through the hook fanout: one
// keyframe up front, then one frame per executed instruction holding
// the register and memory mutations it caused.
type Collector struct {
	tf    *Writer
	src   Source
	order binary.ByteOrder
	hooks []cpu.Hook
	frame *OpFrame
	err   error
}

func NewCollector(w io.WriteCloser, src Source, order binary.ByteOrder) (*Collector, error) {
	tf, err := NewWriter(w, order)
	if err != nil {
		return nil, err
	}
	c := &Collector{tf: tf, src: src, order: order}
	if err := c.keyframe(); err != nil {
		tf.Close()
		return nil, err
	}

	h := src.Hooks()
	codeHook, _ := h.HookAdd(cpu.HOOK_CODE, func(addr uint32, word uint32) {
		c.flush()
		c.frame = &OpFrame{Ops: []Op{&OpStep{Addr: addr, Word: word}}}
	}, 1, 0)
	regHook, _ := h.HookAdd(cpu.HOOK_REG, func(bank, reg int, prev, val uint32) {
		enum, ok := src.RegEnum(bank, reg)
		if !ok || c.frame == nil {
			return
		}
		c.frame.Ops = append(c.frame.Ops, &OpReg{Enum: uint16(enum), Val: val})
	}, 1, 0)
	memHook, _ := h.HookAdd(cpu.HOOK_MEM_WRITE, func(access int, addr uint32, size int, prev, val uint32) {
		if c.frame == nil {
			return
		}
		data := make([]byte, size)
		cpu.PackUint(c.order, size, data, val)
		c.frame.Ops = append(c.frame.Ops, &OpMemWrite{Addr: addr, Data: data})
	}, 1, 0)
	intrHook, _ := h.HookAdd(cpu.HOOK_INTR, func(num uint32) {
		if c.frame == nil {
			return
		}
		c.frame.Ops = append(c.frame.Ops, &OpSyscall{Num: num})
	}, 1, 0)
	c.hooks = []cpu.Hook{codeHook, regHook, memHook, intrHook}
	return c, nil
}

// keyframe snapshots every register and mapped region so a replay can
// start from the head of the file.
func (c *Collector) keyframe() error {
	kf := &OpKeyframe{}
	for _, r := range c.src.RegDump() {
		kf.Ops = append(kf.Ops, &OpReg{Enum: uint16(r.Enum), Val: r.Val})
	}
	for _, mp := range c.src.Mappings() {
		kf.Ops = append(kf.Ops, &OpMemMap{Addr: mp.Addr, Size: mp.Size, Prot: uint8(mp.Prot), Desc: mp.Desc})
		mem, err := c.src.MemRead(mp.Addr, mp.Size)
		if err != nil {
			return err
		}
		kf.Ops = append(kf.Ops, &OpMemWrite{Addr: mp.Addr, Data: mem})
	}
	return c.tf.Pack(kf)
}

func (c *Collector) flush() {
	if c.frame == nil {
		return
	}
	if err := c.tf.Pack(c.frame); err != nil && c.err == nil {
		c.err = err
	}
	c.frame = nil
}

// Exit closes the open frame and records the program's exit status.
func (c *Collector) Exit(status uint32) {
	c.flush()
	if err := c.tf.Pack(&OpExit{Status: status}); err != nil && c.err == nil {
		c.err = err
	}
}

// Close flushes the trailing frame, detaches from the machine, and
// closes the underlying stream.
func (c *Collector) Close() error {
	c.flush()
	h := c.src.Hooks()
	for _, hook := range c.hooks {
		h.HookDel(hook)
	}
	cerr := c.tf.Close()
	if c.err != nil {
		return c.err
	}
	return cerr
}
