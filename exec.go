package mars

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/mips"
)

// RunState is the machine's lifecycle position.
type RunState int32

const (
	StateReady RunState = iota
	StateRunning
	StatePaused
	StateStopped
	StateFaulted
)

func (s RunState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// stop request values
const (
	reqNone = iota
	reqPause
	reqStop
)

var (
	// ErrRanOff reports the program counter moving past the last
	// statement without an exit service.
	ErrRanOff = errors.New("program dropped off the bottom")
	// ErrBreakpoint reports a run halted by an armed breakpoint.
	ErrBreakpoint = errors.New("breakpoint")
	// ErrMaxSteps reports a run halted by the step limit.
	ErrMaxSteps = errors.New("maximum step count reached")
)

// Status reports the machine's run state.
func (m *Machine) Status() RunState {
	return RunState(atomic.LoadInt32((*int32)(&m.status)))
}

func (m *Machine) setStatus(s RunState) {
	atomic.StoreInt32((*int32)(&m.status), int32(s))
}

// Run executes until the program halts, faults, hits a breakpoint or step
// limit, or another goroutine calls Pause or Stop. It returns nil only
// for a pause; a finished program surfaces its models.ExitStatus.
func (m *Machine) Run() error {
	m.gate.Start()
	defer m.gate.Stop()
	atomic.StoreUint32(&m.stopReq, reqNone)
	m.setStatus(StateRunning)

	first := true
	for {
		switch atomic.LoadUint32(&m.stopReq) {
		case reqPause:
			m.setStatus(StatePaused)
			return nil
		case reqStop:
			m.setStatus(StateStopped)
			return nil
		}
		if m.Config.MaxSteps > 0 && m.steps >= m.Config.MaxSteps {
			m.setStatus(StatePaused)
			return ErrMaxSteps
		}
		if !first && m.breakpoints[m.PC()] {
			m.setStatus(StatePaused)
			return ErrBreakpoint
		}
		first = false
		if err := m.step(); err != nil {
			return m.finish(err)
		}
	}
}

// Step executes exactly one instruction from outside a run.
func (m *Machine) Step() error {
	m.gate.Lock()
	defer m.gate.Unlock()
	if err := m.step(); err != nil {
		return m.finish(err)
	}
	m.setStatus(StatePaused)
	return nil
}

// finish classifies a terminal step error into a machine status.
func (m *Machine) finish(err error) error {
	switch err.(type) {
	case *mips.Exception:
		m.setStatus(StateFaulted)
	default:
		m.setStatus(StateStopped)
	}
	return err
}

// Pause requests a halt at the next step boundary and waits for the run
// loop to release the gate.
func (m *Machine) Pause() {
	atomic.CompareAndSwapUint32(&m.stopReq, reqNone, reqPause)
	m.gate.Lock()
	m.gate.Unlock()
}

// Stop requests a permanent halt and waits for it.
func (m *Machine) Stop() {
	atomic.StoreUint32(&m.stopReq, reqStop)
	m.gate.Lock()
	m.gate.Unlock()
	m.setStatus(StateStopped)
}

// step runs the fetch-execute cycle for one instruction, including
// delayed branch bookkeeping and trap handling.
func (m *Machine) step() error {
	pc := m.PC()
	// the journal opens before fetch so a fetch fault's trap mutations
	// (EPC, CAUSE, STATUS, the vector jump) are journaled with the step
	if m.journal != nil {
		m.journal.begin(m.delay)
	}
	st, err := m.fetch(pc)
	if err != nil {
		if _, ok := err.(*mips.Exception); !ok {
			// running off the end mutates nothing; the record is noise
			if m.journal != nil {
				m.journal.abandon()
			}
			return err
		}
		err = m.trap(err)
		m.steps++
		if m.journal != nil {
			m.journal.commit()
		}
		return err
	}
	m.hooks.OnCode(pc, st.Word)
	m.setPC(pc + 4)

	execErr := st.Ins.Exec(m, st)
	if execErr != nil {
		// trap processing is journaled with the step so a backstep
		// also unwinds the exception state
		execErr = m.trap(execErr)
	} else {
		switch m.delay.state {
		case delayTriggered:
			m.setPC(m.delay.target)
			m.delay = delaySlot{}
		case delayRegistered:
			m.delay.state = delayTriggered
		}
	}
	m.steps++
	if m.journal != nil {
		m.journal.commit()
	}
	return execErr
}

// fetch locates the statement at pc. Execution happens only from
// assembled statements; running past them ends the program.
func (m *Machine) fetch(pc uint32) (*mips.Stmt, error) {
	if pc&3 != 0 {
		return nil, &mips.Exception{Cause: mips.CAUSE_ADDRL, Addr: pc, Msg: "unaligned instruction fetch"}
	}
	st := m.prog.StmtAt(pc)
	if st == nil {
		return nil, ErrRanOff
	}
	return st, nil
}

// trap routes a step error. Processing exceptions transfer to the
// exception handler when kernel text exists; otherwise they terminate
// the run. Other errors (exit status, stream failures) pass through.
func (m *Machine) trap(err error) error {
	exc, ok := err.(*mips.Exception)
	if !ok {
		return err
	}
	// fetch faults carry no statement; the exception's address is the
	// faulting fetch address
	epc := exc.Addr
	if exc.Stmt != nil {
		epc = exc.Stmt.Addr
	}
	m.cop0.RegWrite(mips.COP0_EPC, epc)
	m.cop0.RegWrite(mips.COP0_CAUSE, uint32(exc.Cause)<<2)
	if exc.Cause == mips.CAUSE_ADDRL || exc.Cause == mips.CAUSE_ADDRS {
		m.cop0.RegWrite(mips.COP0_VADDR, exc.Addr)
	}
	status, _ := m.cop0.RegRead(mips.COP0_STATUS)
	m.cop0.RegWrite(mips.COP0_STATUS, status|mips.STATUS_EXL)
	if m.prog.HasKText && m.prog.StmtAt(asm.ExceptionHandlerAddr) != nil {
		m.Jump(asm.ExceptionHandlerAddr)
		return nil
	}
	return exc
}

// Backstep undoes the most recent instruction. It reports false when the
// journal is empty or backstepping is disabled.
func (m *Machine) Backstep() bool {
	if m.journal == nil {
		return false
	}
	m.gate.Lock()
	defer m.gate.Unlock()
	if !m.journal.undo() {
		return false
	}
	m.steps--
	m.setStatus(StatePaused)
	return true
}

// BackstepDepth reports how many instructions can currently be undone.
func (m *Machine) BackstepDepth() int {
	if m.journal == nil {
		return 0
	}
	return m.journal.depth()
}

// Disassemble renders the statement at an address, preferring original
// source when available.
func (m *Machine) Disassemble(addr uint32) string {
	st := m.prog.StmtAt(addr)
	if st == nil {
		return fmt.Sprintf("%#08x: <no instruction>", addr)
	}
	dis := st.Ins.Disassemble(st)
	if st.Source != "" && st.Source != dis {
		return fmt.Sprintf("%#08x: %#08x %-28s ; %s", st.Addr, st.Word, dis, st.Source)
	}
	return fmt.Sprintf("%#08x: %#08x %s", st.Addr, st.Word, dis)
}
