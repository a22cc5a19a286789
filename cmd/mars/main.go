package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	mars "github.com/nhubbard/mars-sub006"
	"github.com/nhubbard/mars-sub006/asm"
	"github.com/nhubbard/mars-sub006/debug"
	"github.com/nhubbard/mars-sub006/kernel"
	"github.com/nhubbard/mars-sub006/models"
	"github.com/nhubbard/mars-sub006/models/cpu"
	"github.com/nhubbard/mars-sub006/models/trace"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// printError prints an error, and the innermost frames of a stacktrace
// if one is attached.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			method := fmt.Sprintf("%n", f)
			fmt.Fprintf(os.Stderr, "  %s:%d %s()\n", f, f, method)
			if method == "main.main" {
				break
			}
		}
	}
}

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("mars", flag.ExitOnError)
	steps := fs.Int64("steps", 0, "maximum instructions to execute (0 means no limit)")
	backsteps := fs.Int("backsteps", 1000, "undo journal depth (0 disables backstepping)")
	maxerr := fs.Int("maxerr", asm.DefaultMaxErrors, "assembler diagnostic cap")
	basic := fs.Bool("basic", false, "reject extended (pseudo) instructions")
	bigendian := fs.Bool("be", false, "big-endian memory")
	tracefile := fs.String("to", "", "binary trace output file")
	dbg := fs.Bool("debug", false, "start the interactive debugger instead of running")
	verbose := fs.Bool("v", false, "print each instruction as it executes")
	nocolor := fs.Bool("nc", false, "disable colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.asm> [file.asm...]\n\nOptions:\n", argv[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -debug program.asm\n", argv[0])
	}
	fs.Parse(argv[1:])

	files := fs.Args()
	if len(files) < 1 {
		fs.Usage()
		return 1
	}

	color := !*nocolor && isatty.IsTerminal(os.Stdout.Fd())
	var stdout io.Writer = os.Stdout
	if color {
		stdout = colorable.NewColorableStdout()
	}

	config := &models.Config{
		Color:         color,
		Extended:      !*basic,
		BigEndian:     *bigendian,
		MaxSteps:      *steps,
		BackstepLimit: *backsteps,
		MaxErrors:     *maxerr,
		TracePath:     *tracefile,
		Verbose:       *verbose,
	}

	var order binary.ByteOrder = binary.LittleEndian
	if config.BigEndian {
		order = binary.BigEndian
	}
	prog, err := asm.AssembleFiles(files, asm.Options{
		Extended:  config.Extended,
		MaxErrors: config.MaxErrors,
		ByteOrder: order,
	}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	m, err := mars.NewMachine(prog, config)
	if err != nil {
		printError(err)
		return 1
	}
	m.Stdout = stdout
	if _, err := kernel.New(m); err != nil {
		printError(err)
		return 1
	}

	if config.Verbose {
		m.Hooks().HookAdd(cpu.HOOK_CODE, func(addr uint32, word uint32) {
			fmt.Fprintln(os.Stderr, m.Disassemble(addr))
		}, 1, 0)
	}

	var collector *trace.Collector
	if config.TracePath != "" {
		f, err := os.Create(config.TracePath)
		if err != nil {
			printError(err)
			return 1
		}
		collector, err = trace.NewCollector(f, m, m.Mem().ByteOrder())
		if err != nil {
			printError(err)
			return 1
		}
	}

	if *dbg {
		d := debug.New(m, nil, color)
		err := d.Run()
		if collector != nil {
			collector.Close()
		}
		if err != nil {
			printError(err)
			return 1
		}
		return 0
	}

	err = m.Run()
	if collector != nil {
		if status, ok := err.(models.ExitStatus); ok {
			collector.Exit(uint32(status))
		}
		if cerr := collector.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "trace error: %v\n", cerr)
		}
	}
	switch e := err.(type) {
	case nil:
		return 0
	case models.ExitStatus:
		return int(e)
	default:
		if err == mars.ErrRanOff {
			fmt.Fprintln(os.Stderr, "warning: program dropped off the bottom without an exit service")
			return 0
		}
		printError(err)
		return 1
	}
}
