package cpu

import (
	"github.com/pkg/errors"
)

type Hook interface{}

type hookInfo struct {
	htype int
	start uint32
	end   uint32
}

func (h *hookInfo) Type() int {
	return h.htype
}

func (h *hookInfo) Contains(addr uint32) bool {
	return h.start > h.end || addr >= h.start && addr <= h.end
}

type hinfo interface {
	Type() int
}

type codeHook struct {
	hookInfo
	cb func(addr uint32, word uint32)
}

type intrHook struct {
	hookInfo
	cb func(intno uint32)
}

type regHook struct {
	hookInfo
	cb func(bank, reg int, prev, val uint32)
}

type memHook struct {
	hookInfo
	cb func(access int, addr uint32, size int, prev, val uint32)
}

type memFaultHook struct {
	hookInfo
	cb func(access int, addr uint32, size int, val uint32) bool
}

// Hooks fans mutations out to registered observers. Dispatch is always
// synchronous and in-step: a callback returns before the write that caused
// it does.
type Hooks struct {
	code     []*codeHook
	intr     []*intrHook
	reg      []*regHook
	mem      []*memHook
	memFault []*memFaultHook
}

// creates &Hooks{}, attaching to a *Mem and any number of register files
func NewHooks(mem *Mem, regs ...interface{ SetHooks(*Hooks) }) *Hooks {
	h := &Hooks{}
	if mem != nil {
		mem.hooks = h
	}
	for _, r := range regs {
		r.SetHooks(h)
	}
	return h
}

func (h *Hooks) HookAdd(htype int, cb interface{}, start, end uint32) (Hook, error) {
	info := hookInfo{htype, start, end}
	var hook interface{}
	switch htype {
	case HOOK_CODE:
		hh := &codeHook{info, cb.(func(uint32, uint32))}
		h.code, hook = append(h.code, hh), hh

	case HOOK_INTR:
		hh := &intrHook{info, cb.(func(uint32))}
		h.intr, hook = append(h.intr, hh), hh

	case HOOK_REG:
		hh := &regHook{info, cb.(func(int, int, uint32, uint32))}
		h.reg, hook = append(h.reg, hh), hh

	case HOOK_MEM_READ, HOOK_MEM_WRITE, HOOK_MEM:
		hh := &memHook{info, cb.(func(int, uint32, int, uint32, uint32))}
		h.mem, hook = append(h.mem, hh), hh

	case HOOK_MEM_ERR:
		hh := &memFaultHook{info, cb.(func(int, uint32, int, uint32) bool)}
		h.memFault, hook = append(h.memFault, hh), hh

	default:
		return nil, errors.New("unknown hook type")
	}
	return hook, nil
}

func (h *Hooks) HookDel(hh Hook) error {
	switch hh.(hinfo).Type() {
	case HOOK_CODE:
		var tmp []*codeHook
		for _, v := range h.code {
			if v != hh {
				tmp = append(tmp, v)
			}
		}
		h.code = tmp
	case HOOK_INTR:
		var tmp []*intrHook
		for _, v := range h.intr {
			if v != hh {
				tmp = append(tmp, v)
			}
		}
		h.intr = tmp
	case HOOK_REG:
		var tmp []*regHook
		for _, v := range h.reg {
			if v != hh {
				tmp = append(tmp, v)
			}
		}
		h.reg = tmp
	case HOOK_MEM_READ, HOOK_MEM_WRITE, HOOK_MEM:
		var tmp []*memHook
		for _, v := range h.mem {
			if v != hh {
				tmp = append(tmp, v)
			}
		}
		h.mem = tmp
	case HOOK_MEM_ERR:
		var tmp []*memFaultHook
		for _, v := range h.memFault {
			if v != hh {
				tmp = append(tmp, v)
			}
		}
		h.memFault = tmp
	}
	return nil
}

func (h *Hooks) OnCode(addr uint32, word uint32) {
	for _, v := range h.code {
		if v.Contains(addr) {
			v.cb(addr, word)
		}
	}
}

func (h *Hooks) OnIntr(intno uint32) {
	for _, v := range h.intr {
		v.cb(intno)
	}
}

func (h *Hooks) OnReg(bank, reg int, prev, val uint32) {
	for _, v := range h.reg {
		v.cb(bank, reg, prev, val)
	}
}

func (h *Hooks) OnMem(access int, addr uint32, size int, prev, val uint32) {
	for _, v := range h.mem {
		if v.Contains(addr) {
			match := v.htype&HOOK_MEM_WRITE != 0 && access == MEM_WRITE ||
				v.htype&HOOK_MEM_READ != 0 && access != MEM_WRITE
			if match {
				v.cb(access, addr, size, prev, val)
			}
		}
	}
}

func (h *Hooks) OnFault(access int, addr uint32, size int, val uint32) bool {
	for _, v := range h.memFault {
		if v.Contains(addr) {
			if v.cb(access, addr, size, val) {
				return true
			}
		}
	}
	return false
}
