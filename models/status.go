package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

// RegVal is one register's name, identity and current value, as reported
// by RegDump.
type RegVal struct {
	Name string
	Enum int
	Val  uint32
}

// RegDumper is anything that can report its full register state.
type RegDumper interface {
	RegDump() []RegVal
}

// StatusDiff renders register state between calls, highlighting what
// changed since the last snapshot.
type StatusDiff struct {
	D       RegDumper
	oldRegs map[int]uint32
}

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

func colorPad(s, color string, pad int) string {
	length := len(s)
	s = color + s + ansi.Reset
	if length < pad {
		s = strings.Repeat(" ", pad-length) + s
	}
	return s
}

type ChangeMask struct {
	Old, New string
	Changed  bool
}

type Change struct {
	Old, New uint32
	Enum     int
	Name     string
}

func (c *Change) Changed() bool {
	return c.Old != c.New
}

// Mask splits the hex form of the new value into runs that match or
// differ from the old value, so only changed digits get highlighted.
func (c *Change) Mask() []ChangeMask {
	s1, s2 := fmt.Sprintf("%08x", c.New), fmt.Sprintf("%08x", c.Old)
	pos := 0
	matching := true
	masks := make([]ChangeMask, 0, len(s1))
	for i := range s1 {
		if (s1[i] == s2[i]) != matching {
			if i > pos {
				masks = append(masks, ChangeMask{
					New:     s1[pos:i],
					Old:     s2[pos:i],
					Changed: !matching,
				})
				pos = i
			}
			matching = !matching
		}
	}
	if pos < len(s1) {
		masks = append(masks, ChangeMask{
			New:     s1[pos:],
			Old:     s2[pos:],
			Changed: !matching,
		})
	}
	return masks
}

func (c *Change) String(color bool) string {
	var out []string
	lineStart := fmt.Sprintf("%5s 0x", c.Name)
	if c.Changed() {
		if color {
			out = append(out, fmt.Sprintf("%s 0x", colorPad(c.Name, chNew, 5)))
			for _, mask := range c.Mask() {
				col := chSame
				if mask.Changed {
					col = chNew
				}
				out = append(out, col+mask.New)
			}
			out = append(out, ansi.Reset)
		} else {
			out = append(out, fmt.Sprintf(lineStart+"%08x *", c.New))
		}
	} else {
		out = append(out, fmt.Sprintf(lineStart+"%08x", c.New))
	}
	return strings.Join(out, "")
}

type Changes struct {
	Changes []*Change
}

// String renders the register set column-wise, four per row.
func (cs *Changes) String(color bool) string {
	var out []string
	cols := 4
	changes := cs.Changes
	rows := (len(changes) + cols - 1) / cols
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			n := j*rows + i
			if n >= len(changes) {
				continue
			}
			out = append(out, changes[n].String(color), " ")
		}
		out = append(out, "\n")
	}
	return strings.Join(out, "")
}

func (cs *Changes) Changed() []*Change {
	ret := make([]*Change, 0, cs.Count())
	for _, c := range cs.Changes {
		if c.Changed() {
			ret = append(ret, c)
		}
	}
	return ret
}

func (cs *Changes) Count() int {
	ret := 0
	for _, c := range cs.Changes {
		if c.Changed() {
			ret++
		}
	}
	return ret
}

func (cs *Changes) Find(enum int) *Change {
	for _, c := range cs.Changes {
		if c.Enum == enum {
			return c
		}
	}
	return nil
}

// Changes snapshots the current registers against the previous snapshot.
// With onlyChanged set, unchanged registers are filtered out.
func (s *StatusDiff) Changes(onlyChanged bool) *Changes {
	regs := s.D.RegDump()
	cs := make([]*Change, 0, len(regs))
	for _, reg := range regs {
		var oldReg uint32
		if s.oldRegs != nil {
			oldReg = s.oldRegs[reg.Enum]
		}
		change := &Change{Name: reg.Name, Enum: reg.Enum, New: reg.Val, Old: oldReg}
		if !onlyChanged || change.Changed() {
			cs = append(cs, change)
		}
	}
	s.oldRegs = make(map[int]uint32, len(regs))
	for _, r := range regs {
		s.oldRegs[r.Enum] = r.Val
	}
	return &Changes{Changes: cs}
}
