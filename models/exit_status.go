package models

import "fmt"

// ExitStatus is the error form of a guest program's exit code, so it can
// propagate through error returns up to main.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}
