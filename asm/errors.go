package asm

import (
	"fmt"
	"strings"
)

// DefaultMaxErrors caps how many assembly errors accumulate before the
// assembler gives up on a source set.
const DefaultMaxErrors = 200

// Error is one diagnostic tied to a source position.
type Error struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return e.Msg
}

// ErrorList accumulates diagnostics so one bad line does not hide the
// rest of the file. It stops collecting past a cap.
type ErrorList struct {
	Errors []*Error
	Max    int
	capped bool
}

func NewErrorList(max int) *ErrorList {
	if max <= 0 {
		max = DefaultMaxErrors
	}
	return &ErrorList{Max: max}
}

func (l *ErrorList) Add(file string, line, col int, format string, args ...interface{}) {
	if len(l.Errors) >= l.Max {
		l.capped = true
		return
	}
	l.Errors = append(l.Errors, &Error{File: file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)})
}

func (l *ErrorList) Empty() bool {
	return len(l.Errors) == 0
}

func (l *ErrorList) Error() string {
	var b strings.Builder
	for i, e := range l.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Error())
	}
	if l.capped {
		fmt.Fprintf(&b, "\ntoo many errors (limit %d)", l.Max)
	}
	return b.String()
}

// Err returns the list as an error, or nil when no diagnostics were
// recorded.
func (l *ErrorList) Err() error {
	if l.Empty() {
		return nil
	}
	return l
}
