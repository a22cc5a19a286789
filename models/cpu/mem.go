package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Mem wraps MemSim with sized, alignment-checked accessors and synchronous
// hook dispatch. Word accesses must be 4-byte aligned, half-word accesses
// 2-byte aligned; a violation errors out before any state changes.
type Mem struct {
	// Mem.hooks is set when passing *Mem to NewHooks()
	hooks *Hooks
	sim   *MemSim

	order binary.ByteOrder
}

func NewMem(order binary.ByteOrder) *Mem {
	return &Mem{
		sim:   &MemSim{},
		order: order,
	}
}

func (m *Mem) ByteOrder() binary.ByteOrder {
	return m.order
}

func (m *Mem) MapSegment(addr, size uint32, prot int, desc string) error {
	_, err := m.sim.Map(addr, size, prot, desc)
	return err
}

func (m *Mem) Grow(addr, size uint32) error {
	return m.sim.Grow(addr, size)
}

func (m *Mem) Pages() Pages {
	return m.sim.Mem
}

func (m *Mem) MemReadInto(p []byte, addr uint32) error {
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr uint32, size int) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

// MemWrite stores raw bytes without alignment checks or hook dispatch.
// The assembler uses it to commit assembled words and data directives.
func (m *Mem) MemWrite(addr uint32, p []byte) error {
	return m.sim.Write(addr, p, 0)
}

func checkAlign(addr uint32, size, enum int) *MemError {
	switch size {
	case 4:
		if addr&3 != 0 {
			return &MemError{Addr: addr, Size: size, Enum: enum}
		}
	case 2:
		if addr&1 != 0 {
			return &MemError{Addr: addr, Size: size, Enum: enum}
		}
	}
	return nil
}

// ReadUint performs a protection- and alignment-checked sized read, the
// path used by executing instructions and syscall handlers.
func (m *Mem) ReadUint(addr uint32, size, prot int) (uint32, error) {
	if size != 1 && size != 2 && size != 4 {
		return 0, errors.Errorf("unsupported read size: %d", size)
	}
	alignEnum := MEM_READ_UNALIGNED
	if prot&PROT_EXEC == PROT_EXEC {
		alignEnum = MEM_FETCH_UNALIGNED
	}
	if merr := checkAlign(addr, size, alignEnum); merr != nil {
		if m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, 0)
		}
		return 0, merr
	}
	p := make([]byte, size)
	if err := m.sim.Read(addr, p, prot); err != nil {
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, 0)
		}
		return 0, err
	}
	val, err := UnpackUint(m.order, size, p)
	if err != nil {
		return 0, err
	}
	if m.hooks != nil {
		if prot&PROT_EXEC == PROT_EXEC {
			m.hooks.OnMem(MEM_FETCH, addr, size, val, val)
		} else {
			m.hooks.OnMem(MEM_READ, addr, size, val, val)
		}
	}
	return val, nil
}

// WriteUint performs a protection- and alignment-checked sized write.
// Hooks observe (prev, new) so tooling can journal the inverse mutation.
func (m *Mem) WriteUint(addr uint32, size int, prot int, val uint32) error {
	if size != 1 && size != 2 && size != 4 {
		return errors.Errorf("unsupported write size: %d", size)
	}
	if merr := checkAlign(addr, size, MEM_WRITE_UNALIGNED); merr != nil {
		if m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, val)
		}
		return merr
	}
	var old [4]byte
	var prev uint32
	if err := m.sim.Read(addr, old[:size], 0); err == nil {
		prev, _ = UnpackUint(m.order, size, old[:size])
	}
	var buf [4]byte
	if _, err := PackUint(m.order, size, buf[:], val); err != nil {
		return err
	}
	err := m.sim.Write(addr, buf[:size], prot)
	if err != nil {
		if merr, ok := err.(*MemError); ok && m.hooks != nil {
			m.hooks.OnFault(merr.Enum, addr, size, val)
		}
		return err
	}
	if m.hooks != nil {
		m.hooks.OnMem(MEM_WRITE, addr, size, prev, val)
	}
	return nil
}

// ReadStrAt reads a NUL-terminated string, the form syscall buffers take.
func (m *Mem) ReadStrAt(addr uint32) (string, error) {
	var out []byte
	var buf [64]byte
	for {
		n := len(buf)
		// clamp to the mapped page so short strings near a boundary still read
		if page := m.sim.Mem.Find(addr); page != nil {
			if left := int(page.Addr + page.Size - addr); left < n {
				n = left
			}
		}
		if err := m.sim.Read(addr, buf[:n], 0); err != nil {
			return "", err
		}
		for i := 0; i < n; i++ {
			if buf[i] == 0 {
				return string(append(out, buf[:i]...)), nil
			}
		}
		out = append(out, buf[:n]...)
		addr += uint32(n)
	}
}
