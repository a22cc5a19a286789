package mips

import "fmt"

// MIPS exception cause codes as stored in the CAUSE register
const (
	CAUSE_INT     = 0  // external interrupt
	CAUSE_ADDRL   = 4  // address error on load or fetch
	CAUSE_ADDRS   = 5  // address error on store
	CAUSE_SYSCALL = 8  // syscall instruction
	CAUSE_BREAK   = 9  // break instruction
	CAUSE_RI      = 10 // reserved (undecodable) instruction
	CAUSE_OVF     = 12 // arithmetic overflow
)

// address the processor transfers to when an exception is raised
const ExceptionVector = 0x80000180

func causeString(cause int) string {
	switch cause {
	case CAUSE_INT:
		return "interrupt"
	case CAUSE_ADDRL:
		return "address error on load"
	case CAUSE_ADDRS:
		return "address error on store"
	case CAUSE_SYSCALL:
		return "syscall exception"
	case CAUSE_BREAK:
		return "break instruction"
	case CAUSE_RI:
		return "reserved instruction"
	case CAUSE_OVF:
		return "arithmetic overflow"
	}
	return "processing exception"
}

// Exception is a runtime processing fault. It carries the faulting
// statement (when one was decoded), the cause code that lands in CAUSE,
// and the bad address for address errors.
type Exception struct {
	Cause int
	Addr  uint32
	Stmt  *Stmt
	Msg   string
}

func (e *Exception) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = causeString(e.Cause)
	}
	where := ""
	if e.Stmt != nil {
		where = fmt.Sprintf(" at pc=%#08x (%s)", e.Stmt.Addr, e.Stmt.Source)
	}
	switch e.Cause {
	case CAUSE_ADDRL, CAUSE_ADDRS:
		return fmt.Sprintf("%s: bad address %#08x%s", msg, e.Addr, where)
	}
	return msg + where
}
