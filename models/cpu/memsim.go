package cpu

import (
	"fmt"
	"sort"
)

// MemError reports a failed or illegal access. It doubles as the
// address-error condition the engine converts into a processing fault.
type MemError struct {
	Addr uint32
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_READ_UNALIGNED:
		reason = "unaligned read"
	case MEM_WRITE_UNALIGNED:
		reason = "unaligned write"
	case MEM_FETCH_UNALIGNED:
		reason = "unaligned fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	}
	return fmt.Sprintf("%s at %#08x(%d)", reason, m.Addr, m.Size)
}

// MemSim models sparse byte-addressable memory as a sorted page list.
// Segments are mapped once per session; the heap segment may grow.
type MemSim struct {
	Mem Pages
}

// Checks whether the address range lies inside currently-mapped memory.
// If prot > 0, also checks that every covering page carries the full mask.
func (m *MemSim) RangeValid(addr uint32, size int, prot int) (mapGood bool, protGood bool) {
	first := m.Mem.bsearch(addr)
	if first == -1 {
		return false, false
	}
	protGood = true
	end := uint64(addr) + uint64(size)
	pos := uint64(addr)
	for _, mm := range m.Mem[first:] {
		if mm.Contains(uint32(pos)) {
			if prot > 0 && mm.Prot&prot != prot {
				protGood = false
			}
			pos = uint64(mm.Addr) + uint64(mm.Size)
			if pos >= end {
				break
			}
		} else {
			break
		}
	}
	return pos >= end, protGood
}

// Maps addr..addr+size with prot. Overlapping maps are a programming error
// in segment configuration, caught when the machine is built.
func (m *MemSim) Map(addr, size uint32, prot int, desc string) (*Page, error) {
	// 64-bit ends: a segment may run to the top of the address space
	for _, mm := range m.Mem {
		if uint64(addr) < uint64(mm.Addr)+uint64(mm.Size) && uint64(mm.Addr) < uint64(addr)+uint64(size) {
			return nil, fmt.Errorf("segment %q overlaps %s", desc, mm)
		}
	}
	page := &Page{Addr: addr, Size: size, Prot: prot, Data: make([]byte, size), Desc: desc}
	m.Mem = append(m.Mem, page)
	sort.Sort(m.Mem)
	return page, nil
}

// Grow extends the page containing addr by size bytes. Used by sbrk.
func (m *MemSim) Grow(addr, size uint32) error {
	page := m.Mem.Find(addr)
	if page == nil {
		return &MemError{Addr: addr, Size: int(size), Enum: MEM_WRITE_UNMAPPED}
	}
	next := m.Mem.Find(page.Addr + page.Size + size - 1)
	if next != nil && next != page {
		return fmt.Errorf("segment %q cannot grow into %q", page.Desc, next.Desc)
	}
	page.Data = append(page.Data, make([]byte, size)...)
	page.Size += size
	return nil
}

func (m *MemSim) Read(addr uint32, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, len(p), prot); !gmap {
		if prot&PROT_EXEC == PROT_EXEC {
			return &MemError{Addr: addr, Size: len(p), Enum: MEM_FETCH_UNMAPPED}
		}
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_UNMAPPED}
	} else if !gprot {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_UNMAPPED}
	}
	i := m.Mem.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.Mem[i:] {
			if !mm.Contains(addr) {
				break
			}
			o := addr - mm.Addr
			n := copy(p, mm.Data[o:])
			addr, p = addr+uint32(n), p[n:]
			if len(p) == 0 {
				break
			}
		}
	}
	return nil
}

func (m *MemSim) Write(addr uint32, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, len(p), prot); !gmap {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	} else if !gprot {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_PROT}
	}
	i := m.Mem.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.Mem[i:] {
			if !mm.Contains(addr) {
				break
			}
			o := addr - mm.Addr
			n := copy(mm.Data[o:], p)
			addr, p = addr+uint32(n), p[n:]
			if len(p) == 0 {
				break
			}
		}
	}
	return nil
}
