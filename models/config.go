package models

// Config carries the run settings shared by the command line and the
// interactive debugger.
type Config struct {
	// Color enables ANSI colors in register diffs and the debugger.
	Color bool
	// Extended permits pseudo-instructions during assembly.
	Extended bool
	// BigEndian selects big-endian memory; the default is little.
	BigEndian bool
	// MaxSteps stops the run after this many instructions; 0 is unlimited.
	MaxSteps int64
	// BackstepLimit bounds the undo journal; 0 disables backstepping.
	BackstepLimit int
	// MaxErrors caps accumulated assembly diagnostics.
	MaxErrors int
	// TracePath, when set, streams an execution trace to this file.
	TracePath string
	// Verbose prints each statement as it executes.
	Verbose bool
}
