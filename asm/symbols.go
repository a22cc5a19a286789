package asm

import "sort"

// Symbol is one label definition: the address it resolved to and where it
// was defined.
type Symbol struct {
	Name string
	Addr uint32
	File string
	Line int
	Data bool // defined in a data segment
}

// SymbolTable maps label names to definitions. Each source file gets a
// local table; .globl promotes entries into the shared global table at
// end of file.
type SymbolTable struct {
	syms map[string]*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{syms: make(map[string]*Symbol)}
}

func (t *SymbolTable) Get(name string) *Symbol {
	return t.syms[name]
}

// Define adds a symbol, returning the prior definition when the name is
// already taken.
func (t *SymbolTable) Define(sym *Symbol) *Symbol {
	if prev, ok := t.syms[sym.Name]; ok {
		return prev
	}
	t.syms[sym.Name] = sym
	return nil
}

func (t *SymbolTable) Remove(name string) {
	delete(t.syms, name)
}

func (t *SymbolTable) Len() int {
	return len(t.syms)
}

// All returns symbols sorted by address, for symbol-table display.
func (t *SymbolTable) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// scopedSymbols is the two-level lookup used during pass 2: file-local
// names shadow globals.
type scopedSymbols struct {
	local  *SymbolTable
	global *SymbolTable
}

func (s scopedSymbols) lookup(name string) *Symbol {
	if sym := s.local.Get(name); sym != nil {
		return sym
	}
	return s.global.Get(name)
}
