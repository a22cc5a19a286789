package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/models"
	"github.com/nhubbard/mars-sub006/models/trace"
)

// Debugger is the interactive command loop over one machine. continue
// detaches the engine onto its own goroutine so the prompt stays
// responsive; runDone carries the run's outcome back to the loop.
type Debugger struct {
	m    *mars.Machine
	out  io.Writer
	diff *models.StatusDiff

	color     bool
	last      string
	collector *trace.Collector
	runDone   chan error
}

func New(m *mars.Machine, out io.Writer, color bool) *Debugger {
	if out == nil {
		out = os.Stderr
	}
	return &Debugger{
		m:     m,
		out:   out,
		diff:  &models.StatusDiff{D: m},
		color: color,
	}
}

func historyPath() string {
	configDirs := configdir.New("mars", "debug")
	cacheDir := configDirs.QueryCacheFolder()
	if err := cacheDir.MkdirAll(); err == nil {
		return filepath.Join(cacheDir.Path, "history")
	}
	return ""
}

// Run reads and executes commands until quit or EOF.
func (d *Debugger) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "\n",
		HistoryFile:     historyPath(),
	})
	if err != nil {
		return errors.Wrap(err, "readline failed")
	}
	defer rl.Close()
	d.out = rl.Stdout()
	// prime the register snapshot so the first "regs" shows no churn
	d.diff.Changes(false)
	for {
		// report a detached run that finished while the prompt was up
		select {
		case err := <-d.runDone:
			d.runDone = nil
			d.report(err)
			d.showChanged()
		default:
		}
		rl.SetPrompt(fmt.Sprintf("%#08x> ", d.m.PC()))
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if d.runDone != nil {
				d.stopRun()
			} else {
				d.m.Stop()
			}
			continue
		} else if err != nil {
			return nil
		}
		if d.Exec(line) {
			return nil
		}
	}
}

// Exec runs one command line. It reports true when the session should
// end. An empty line repeats the previous command.
func (d *Debugger) Exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		line = d.last
	}
	if line == "" {
		return false
	}
	d.last = line
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	var err error
	switch cmd {
	case "q", "quit":
		if d.runDone != nil {
			d.stopRun()
		}
		if d.collector != nil {
			d.collector.Close()
			d.collector = nil
		}
		return true
	case "h", "help", "?":
		d.help()
	case "regs":
		fmt.Fprint(d.out, d.diff.Changes(false).String(d.color))
	case "s", "step":
		err = d.step(args)
	case "sb", "back":
		err = d.backstep(args)
	case "c", "continue":
		err = d.cont()
	case "pause":
		err = d.pauseRun()
	case "stop":
		err = d.stopRun()
	case "b", "break":
		err = d.breakpoint(args, true)
	case "db":
		err = d.breakpoint(args, false)
	case "bl":
		d.listBreakpoints()
	case "dis":
		err = d.dis(args)
	case "mem":
		err = d.mem(args)
	case "sym":
		d.symbols(args)
	case "map":
		d.mappings()
	case "trace":
		err = d.trace(args)
	case "save":
		err = d.save(args)
	case "load":
		err = d.load(args)
	default:
		fmt.Fprintf(d.out, "unknown command %q (try help)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(d.out, "error: %v\n", err)
	}
	return false
}

func (d *Debugger) help() {
	fmt.Fprint(d.out, `commands:
  s [n]          step n instructions (default 1)
  sb [n]         step n instructions backwards
  c              continue in the background until halt or breakpoint
  pause          pause a continued run
  stop           stop a continued run
  b <addr|sym>   set breakpoint
  db <addr|sym>  delete breakpoint
  bl             list breakpoints
  regs           dump registers, highlighting changes
  dis [addr] [n] disassemble n instructions (default pc, 8)
  mem <addr> [n] hexdump n bytes (default 64)
  sym [prefix]   list symbols
  map            list memory mappings
  trace <file>   record an execution trace (trace off stops)
  save <file>    write machine state to file
  load <file>    restore machine state from file
  q              quit
`)
}

// resolve parses an address argument: a number in any base, or a label
// looked up in the global then file-local symbol tables.
func (d *Debugger) resolve(arg string) (uint32, error) {
	if n, err := strconv.ParseUint(arg, 0, 32); err == nil {
		return uint32(n), nil
	}
	prog := d.m.Program()
	if sym := prog.Globals.Get(arg); sym != nil {
		return sym.Addr, nil
	}
	for _, tbl := range prog.Locals {
		if sym := tbl.Get(arg); sym != nil {
			return sym.Addr, nil
		}
	}
	return 0, errors.Errorf("cannot resolve %q", arg)
}

func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, errors.Errorf("bad count %q", args[0])
	}
	return n, nil
}

// errRunning rejects commands that would drive or mutate the machine
// while a detached run holds it.
var errRunning = errors.New("machine is running (pause or stop first)")

func (d *Debugger) step(args []string) error {
	if d.runDone != nil {
		return errRunning
	}
	n, err := parseCount(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pc := d.m.PC()
		if err := d.m.Step(); err != nil {
			fmt.Fprintf(d.out, "%s\n", d.m.Disassemble(pc))
			d.report(err)
			break
		}
		fmt.Fprintf(d.out, "%s\n", d.m.Disassemble(pc))
	}
	d.showChanged()
	return nil
}

func (d *Debugger) backstep(args []string) error {
	if d.runDone != nil {
		return errRunning
	}
	n, err := parseCount(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if !d.m.Backstep() {
			fmt.Fprintln(d.out, "nothing to undo")
			break
		}
	}
	d.showChanged()
	return nil
}

// cont detaches the engine onto its own goroutine so the command loop
// keeps taking input while the guest runs.
func (d *Debugger) cont() error {
	if d.runDone != nil {
		return errRunning
	}
	done := make(chan error, 1)
	d.runDone = done
	go func() {
		done <- d.m.Run()
	}()
	return nil
}

// wait blocks until the detached run ends and reports its outcome.
func (d *Debugger) wait() {
	if d.runDone == nil {
		return
	}
	err := <-d.runDone
	d.runDone = nil
	d.report(err)
	d.showChanged()
}

// waitRunning spins until the detached run is inside the engine, so a
// pause or stop request cannot land before the run loop arms itself. It
// reports false, draining the result, when the run already finished.
func (d *Debugger) waitRunning() bool {
	for d.m.Status() != mars.StateRunning {
		select {
		case err := <-d.runDone:
			d.runDone = nil
			d.report(err)
			d.showChanged()
			return false
		default:
			runtime.Gosched()
		}
	}
	return true
}

func (d *Debugger) pauseRun() error {
	if d.runDone == nil {
		return errors.New("machine is not running")
	}
	if d.waitRunning() {
		d.m.Pause()
		d.wait()
	}
	return nil
}

func (d *Debugger) stopRun() error {
	if d.runDone == nil {
		return errors.New("machine is not running")
	}
	if d.waitRunning() {
		d.m.Stop()
		d.wait()
	}
	return nil
}

// report explains why execution stopped.
func (d *Debugger) report(err error) {
	switch err {
	case nil:
		if d.m.Status() == mars.StateStopped {
			fmt.Fprintln(d.out, "stopped")
		} else {
			fmt.Fprintln(d.out, "paused")
		}
	case mars.ErrBreakpoint:
		fmt.Fprintf(d.out, "breakpoint at %#08x\n", d.m.PC())
	default:
		if status, ok := err.(models.ExitStatus); ok {
			fmt.Fprintf(d.out, "program exited with status %d\n", int(status))
		} else {
			fmt.Fprintf(d.out, "stopped: %v\n", err)
		}
	}
}

func (d *Debugger) showChanged() {
	changes := d.diff.Changes(true)
	if changes.Count() > 0 {
		fmt.Fprint(d.out, changes.String(d.color))
	}
}

func (d *Debugger) breakpoint(args []string, set bool) error {
	if d.runDone != nil {
		return errRunning
	}
	if len(args) != 1 {
		return errors.New("usage: b <addr|sym>")
	}
	addr, err := d.resolve(args[0])
	if err != nil {
		return err
	}
	if set {
		d.m.AddBreakpoint(addr)
	} else {
		d.m.DelBreakpoint(addr)
	}
	return nil
}

func (d *Debugger) listBreakpoints() {
	bps := d.m.Breakpoints()
	sort.Slice(bps, func(i, j int) bool { return bps[i] < bps[j] })
	for _, addr := range bps {
		fmt.Fprintf(d.out, "%#08x\n", addr)
	}
}

func (d *Debugger) dis(args []string) error {
	addr := d.m.PC()
	if len(args) > 0 {
		var err error
		if addr, err = d.resolve(args[0]); err != nil {
			return err
		}
		args = args[1:]
	}
	n, err := parseCount(args, 8)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(d.out, "%s\n", d.m.Disassemble(addr+uint32(i*4)))
	}
	return nil
}

func (d *Debugger) mem(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: mem <addr|sym> [len]")
	}
	addr, err := d.resolve(args[0])
	if err != nil {
		return err
	}
	n, err := parseCount(args[1:], 64)
	if err != nil {
		return err
	}
	mem, err := d.m.MemRead(addr, uint32(n))
	if err != nil {
		return err
	}
	for _, line := range models.HexDump(addr, mem) {
		fmt.Fprintln(d.out, line)
	}
	return nil
}

func (d *Debugger) symbols(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	prog := d.m.Program()
	type entry struct {
		name   string
		addr   uint32
		global bool
	}
	var syms []entry
	for _, s := range prog.Globals.All() {
		syms = append(syms, entry{s.Name, s.Addr, true})
	}
	for _, tbl := range prog.Locals {
		for _, s := range tbl.All() {
			syms = append(syms, entry{s.Name, s.Addr, false})
		}
	}
	sort.Slice(syms, func(i, j int) bool {
		return sortorder.NaturalLess(syms[i].name, syms[j].name)
	})
	for _, s := range syms {
		if !strings.HasPrefix(s.name, prefix) {
			continue
		}
		scope := "local"
		if s.global {
			scope = "global"
		}
		fmt.Fprintf(d.out, "%#08x %-6s %s\n", s.addr, scope, s.name)
	}
}

func (d *Debugger) mappings() {
	for _, mp := range d.m.Mappings() {
		prot := []byte("---")
		if mp.Prot&1 != 0 {
			prot[0] = 'r'
		}
		if mp.Prot&2 != 0 {
			prot[1] = 'w'
		}
		if mp.Prot&4 != 0 {
			prot[2] = 'x'
		}
		fmt.Fprintf(d.out, "%#08x-%#08x %s %s\n", mp.Addr, mp.Addr+mp.Size, prot, mp.Desc)
	}
}

func (d *Debugger) trace(args []string) error {
	if d.runDone != nil {
		return errRunning
	}
	if len(args) != 1 {
		return errors.New("usage: trace <file|off>")
	}
	if args[0] == "off" {
		if d.collector == nil {
			return errors.New("tracing is not active")
		}
		err := d.collector.Close()
		d.collector = nil
		return err
	}
	if d.collector != nil {
		return errors.New("tracing already active (trace off first)")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	c, err := trace.NewCollector(f, d.m, d.m.Mem().ByteOrder())
	if err != nil {
		return err
	}
	d.collector = c
	return nil
}

func (d *Debugger) save(args []string) error {
	if d.runDone != nil {
		return errRunning
	}
	if len(args) != 1 {
		return errors.New("usage: save <file>")
	}
	data, err := models.Save(d.m)
	if err != nil {
		return err
	}
	return os.WriteFile(args[0], data, 0644)
}

func (d *Debugger) load(args []string) error {
	if d.runDone != nil {
		return errRunning
	}
	if len(args) != 1 {
		return errors.New("usage: load <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := models.Restore(d.m, data); err != nil {
		return err
	}
	d.showChanged()
	return nil
}
