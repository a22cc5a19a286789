package kernel

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
)

// Service is one system service: its number in $v0 and its behavior.
type Service struct {
	Num  uint32
	Name string
	Fn   func(k *Kernel, st *mips.Stmt) error
}

// fdEntry is an open file descriptor. The standard descriptors wrap the
// machine's streams and have no Closer.
type fdEntry struct {
	name string
	r    io.Reader
	w    io.Writer
	c    io.Closer
}

// Kernel owns the service table, open file descriptors, the heap break,
// and the pseudo-random streams. One kernel serves one machine.
type Kernel struct {
	m     *mars.Machine
	stdin *bufio.Reader

	services map[uint32]*Service

	fds    map[uint32]*fdEntry
	nextFd uint32

	brk     uint32
	heapEnd uint32

	rng map[uint32]*rand.Rand
}

// New builds a kernel over the standard service table, applies overrides
// by service number, and installs the dispatcher on the machine.
// Duplicate numbers in the base table are a programming error; a
// duplicate among the overrides is a configuration error.
func New(m *mars.Machine, overrides ...Service) (*Kernel, error) {
	k := &Kernel{
		m:        m,
		stdin:    bufio.NewReader(m.Stdin),
		services: make(map[uint32]*Service),
		fds:      make(map[uint32]*fdEntry),
		nextFd:   3,
		brk:      asm.HeapBase,
		heapEnd:  asm.HeapBase + 0x10000,
		rng:      make(map[uint32]*rand.Rand),
	}
	for _, svc := range baseServices() {
		if _, ok := k.services[svc.Num]; ok {
			panic(fmt.Sprintf("duplicate service number %d (%s)", svc.Num, svc.Name))
		}
		s := svc
		k.services[svc.Num] = &s
	}
	seen := make(map[uint32]string, len(overrides))
	for _, svc := range overrides {
		if prev, ok := seen[svc.Num]; ok {
			return nil, errors.Errorf("service %d overridden twice (%s, %s)", svc.Num, prev, svc.Name)
		}
		seen[svc.Num] = svc.Name
		s := svc
		k.services[svc.Num] = &s
	}
	k.fds[0] = &fdEntry{name: "stdin", r: k.stdin}
	k.fds[1] = &fdEntry{name: "stdout", w: m.Stdout}
	k.fds[2] = &fdEntry{name: "stderr", w: m.Stderr}
	m.SetSyscallHandler(k.dispatch)
	return k, nil
}

// Renumber moves services to new numbers by name. The whole move set is
// validated before the table changes: an unknown name, two names assigned
// the same number, or a target number still held by a service that is not
// itself moving are all configuration errors.
func (k *Kernel) Renumber(names map[string]uint32) error {
	byName := make(map[string]*Service, len(k.services))
	for _, svc := range k.services {
		byName[svc.Name] = svc
	}
	targets := make(map[uint32]*Service, len(names))
	moving := make(map[uint32]bool, len(names))
	for name, num := range names {
		svc := byName[name]
		if svc == nil {
			return errors.Errorf("renumber: no service named %q", name)
		}
		if prev := targets[num]; prev != nil {
			return errors.Errorf("renumber: %s and %s both assigned number %d", prev.Name, svc.Name, num)
		}
		targets[num] = svc
		moving[svc.Num] = true
	}
	for num, svc := range targets {
		if other, ok := k.services[num]; ok && other != svc && !moving[other.Num] {
			return errors.Errorf("renumber: number %d is already %s", num, other.Name)
		}
	}
	for _, svc := range targets {
		delete(k.services, svc.Num)
	}
	for num, svc := range targets {
		svc.Num = num
		k.services[num] = svc
	}
	return nil
}

// Lookup returns the service bound to a number, nil if none.
func (k *Kernel) Lookup(num uint32) *Service {
	return k.services[num]
}

func (k *Kernel) dispatch(m *mars.Machine, st *mips.Stmt) error {
	num := m.Reg(mips.REG_V0)
	svc := k.services[num]
	if svc == nil {
		return &mips.Exception{
			Cause: mips.CAUSE_SYSCALL,
			Stmt:  st,
			Msg:   fmt.Sprintf("unknown system service %d", num),
		}
	}
	return svc.Fn(k, st)
}

// serviceError wraps a service failure as a syscall processing fault so
// the exception handler (when present) can field it.
func serviceError(st *mips.Stmt, format string, args ...interface{}) error {
	return &mips.Exception{
		Cause: mips.CAUSE_SYSCALL,
		Stmt:  st,
		Msg:   fmt.Sprintf(format, args...),
	}
}

// sbrk extends the heap break, growing the heap mapping when the break
// passes its current end. The returned address is the old break.
func (k *Kernel) sbrk(size uint32) (uint32, error) {
	// word-align every allocation
	size = (size + 3) &^ 3
	addr := k.brk
	newBrk := k.brk + size
	if newBrk < k.brk {
		return 0, errors.New("sbrk: heap exhausted")
	}
	if newBrk > k.heapEnd {
		grow := ((newBrk - k.heapEnd) + 0xffff) &^ 0xffff
		if err := k.m.Mem().Grow(asm.HeapBase, grow); err != nil {
			return 0, errors.Wrap(err, "sbrk")
		}
		k.heapEnd += grow
	}
	k.brk = newBrk
	return addr, nil
}

// open allocates a descriptor for a host file. MARS flag values: 0 read,
// 1 write/create/truncate, 9 write/create/append.
func (k *Kernel) open(name string, flags uint32) (uint32, error) {
	var mode int
	switch flags {
	case 0:
		mode = os.O_RDONLY
	case 1:
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 9:
		mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return 0, errors.Errorf("unsupported open flags %d", flags)
	}
	f, err := os.OpenFile(name, mode, 0644)
	if err != nil {
		return 0, err
	}
	fd := k.nextFd
	k.nextFd++
	entry := &fdEntry{name: name, c: f}
	if flags == 0 {
		entry.r = f
	} else {
		entry.w = f
	}
	k.fds[fd] = entry
	return fd, nil
}

func (k *Kernel) close(fd uint32) {
	if entry, ok := k.fds[fd]; ok && entry.c != nil {
		entry.c.Close()
		delete(k.fds, fd)
	}
}

// random returns the stream for an id, seeding it from the clock the
// first time unless service 40 seeded it explicitly.
func (k *Kernel) random(id uint32) *rand.Rand {
	r, ok := k.rng[id]
	if !ok {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
		k.rng[id] = r
	}
	return r
}
