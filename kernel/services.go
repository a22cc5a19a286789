package kernel

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/nhubbard/mars-sub006/mips"
	"github.com/nhubbard/mars-sub006/models"
	"github.com/nhubbard/mars-sub006/models/cpu"
)

// baseServices is the standard system service table, dispatched on $v0.
func baseServices() []Service {
	return []Service{
		{1, "PrintInt", printInt},
		{2, "PrintFloat", printFloat},
		{3, "PrintDouble", printDouble},
		{4, "PrintString", printString},
		{5, "ReadInt", readInt},
		{6, "ReadFloat", readFloat},
		{7, "ReadDouble", readDouble},
		{8, "ReadString", readString},
		{9, "Sbrk", sbrk},
		{10, "Exit", exit},
		{11, "PrintChar", printChar},
		{12, "ReadChar", readChar},
		{13, "Open", open},
		{14, "Read", read},
		{15, "Write", write},
		{16, "Close", closeFd},
		{17, "Exit2", exit2},
		{30, "Time", timeNow},
		{32, "Sleep", sleep},
		{34, "PrintIntHex", printIntHex},
		{35, "PrintIntBinary", printIntBinary},
		{36, "PrintIntUnsigned", printIntUnsigned},
		{40, "RandSeed", randSeed},
		{41, "RandInt", randInt},
		{42, "RandIntRange", randIntRange},
	}
}

// readLine consumes input through a newline, tolerating EOF on the last
// line of input.
func (k *Kernel) readLine() (string, error) {
	line, err := k.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return line, nil
}

// writeBytes stores a buffer through the checked write path so hooks and
// the backstep journal observe service output.
func (k *Kernel) writeBytes(addr uint32, p []byte) error {
	for i, b := range p {
		if err := k.m.Mem().WriteUint(addr+uint32(i), 1, cpu.PROT_WRITE, uint32(b)); err != nil {
			return err
		}
	}
	return nil
}

func printInt(k *Kernel, st *mips.Stmt) error {
	fmt.Fprintf(k.m.Stdout, "%d", int32(k.m.Reg(mips.REG_A0)))
	return nil
}

func printFloat(k *Kernel, st *mips.Stmt) error {
	bits, _ := k.m.Cop1().RegRead(12)
	fmt.Fprintf(k.m.Stdout, "%v", math.Float32frombits(bits))
	return nil
}

func printDouble(k *Kernel, st *mips.Stmt) error {
	bits, err := k.m.Cop1().ReadDouble(12)
	if err != nil {
		return serviceError(st, "PrintDouble: %v", err)
	}
	fmt.Fprintf(k.m.Stdout, "%v", math.Float64frombits(bits))
	return nil
}

func printString(k *Kernel, st *mips.Stmt) error {
	s, err := k.m.Mem().ReadStrAt(k.m.Reg(mips.REG_A0))
	if err != nil {
		return serviceError(st, "PrintString: %v", err)
	}
	io.WriteString(k.m.Stdout, s)
	return nil
}

func readInt(k *Kernel, st *mips.Stmt) error {
	line, err := k.readLine()
	if err != nil {
		return serviceError(st, "ReadInt: %v", err)
	}
	val, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil || val < math.MinInt32 || val > math.MaxUint32 {
		return serviceError(st, "ReadInt: invalid input %q", strings.TrimSpace(line))
	}
	k.m.SetReg(mips.REG_V0, uint32(val))
	return nil
}

func readFloat(k *Kernel, st *mips.Stmt) error {
	line, err := k.readLine()
	if err != nil {
		return serviceError(st, "ReadFloat: %v", err)
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(line), 32)
	if err != nil {
		return serviceError(st, "ReadFloat: invalid input %q", strings.TrimSpace(line))
	}
	k.m.Cop1().RegWrite(0, math.Float32bits(float32(val)))
	return nil
}

func readDouble(k *Kernel, st *mips.Stmt) error {
	line, err := k.readLine()
	if err != nil {
		return serviceError(st, "ReadDouble: %v", err)
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return serviceError(st, "ReadDouble: invalid input %q", strings.TrimSpace(line))
	}
	return k.m.Cop1().WriteDouble(0, math.Float64bits(val))
}

// readString implements fgets semantics: up to maxlen-1 bytes, newline
// kept when it fits, always NUL-terminated.
func readString(k *Kernel, st *mips.Stmt) error {
	buf := k.m.Reg(mips.REG_A0)
	maxlen := int32(k.m.Reg(mips.REG_A1))
	if maxlen < 1 {
		return nil
	}
	line, err := k.readLine()
	if err != nil {
		return serviceError(st, "ReadString: %v", err)
	}
	b := []byte(line)
	if len(b) > int(maxlen)-1 {
		b = b[:maxlen-1]
	}
	if err := k.writeBytes(buf, append(b, 0)); err != nil {
		return serviceError(st, "ReadString: %v", err)
	}
	return nil
}

func sbrk(k *Kernel, st *mips.Stmt) error {
	addr, err := k.sbrk(k.m.Reg(mips.REG_A0))
	if err != nil {
		return serviceError(st, "%v", err)
	}
	k.m.SetReg(mips.REG_V0, addr)
	return nil
}

func exit(k *Kernel, st *mips.Stmt) error {
	return models.ExitStatus(0)
}

func exit2(k *Kernel, st *mips.Stmt) error {
	return models.ExitStatus(int32(k.m.Reg(mips.REG_A0)))
}

func printChar(k *Kernel, st *mips.Stmt) error {
	fmt.Fprintf(k.m.Stdout, "%c", rune(k.m.Reg(mips.REG_A0)))
	return nil
}

func readChar(k *Kernel, st *mips.Stmt) error {
	c, err := k.stdin.ReadByte()
	if err != nil {
		return serviceError(st, "ReadChar: %v", err)
	}
	k.m.SetReg(mips.REG_V0, uint32(c))
	return nil
}

// file services report failure as -1 in $v0 instead of faulting

func open(k *Kernel, st *mips.Stmt) error {
	name, err := k.m.Mem().ReadStrAt(k.m.Reg(mips.REG_A0))
	if err != nil {
		return serviceError(st, "Open: %v", err)
	}
	fd, err := k.open(name, k.m.Reg(mips.REG_A1))
	if err != nil {
		k.m.SetReg(mips.REG_V0, ^uint32(0))
		return nil
	}
	k.m.SetReg(mips.REG_V0, fd)
	return nil
}

func read(k *Kernel, st *mips.Stmt) error {
	entry := k.fds[k.m.Reg(mips.REG_A0)]
	if entry == nil || entry.r == nil {
		k.m.SetReg(mips.REG_V0, ^uint32(0))
		return nil
	}
	buf := make([]byte, k.m.Reg(mips.REG_A2))
	n, err := entry.r.Read(buf)
	if n > 0 {
		if werr := k.writeBytes(k.m.Reg(mips.REG_A1), buf[:n]); werr != nil {
			return serviceError(st, "Read: %v", werr)
		}
	}
	if err != nil && err != io.EOF {
		k.m.SetReg(mips.REG_V0, ^uint32(0))
		return nil
	}
	k.m.SetReg(mips.REG_V0, uint32(n))
	return nil
}

func write(k *Kernel, st *mips.Stmt) error {
	entry := k.fds[k.m.Reg(mips.REG_A0)]
	if entry == nil || entry.w == nil {
		k.m.SetReg(mips.REG_V0, ^uint32(0))
		return nil
	}
	size := k.m.Reg(mips.REG_A2)
	buf, err := k.m.Mem().MemRead(k.m.Reg(mips.REG_A1), int(size))
	if err != nil {
		return serviceError(st, "Write: %v", err)
	}
	n, err := entry.w.Write(buf)
	if err != nil {
		k.m.SetReg(mips.REG_V0, ^uint32(0))
		return nil
	}
	k.m.SetReg(mips.REG_V0, uint32(n))
	return nil
}

func closeFd(k *Kernel, st *mips.Stmt) error {
	k.close(k.m.Reg(mips.REG_A0))
	return nil
}

func timeNow(k *Kernel, st *mips.Stmt) error {
	ms := time.Now().UnixMilli()
	k.m.SetReg(mips.REG_A0, uint32(ms))
	k.m.SetReg(mips.REG_A1, uint32(ms>>32))
	return nil
}

func sleep(k *Kernel, st *mips.Stmt) error {
	time.Sleep(time.Duration(k.m.Reg(mips.REG_A0)) * time.Millisecond)
	return nil
}

func printIntHex(k *Kernel, st *mips.Stmt) error {
	fmt.Fprintf(k.m.Stdout, "0x%08x", k.m.Reg(mips.REG_A0))
	return nil
}

func printIntBinary(k *Kernel, st *mips.Stmt) error {
	fmt.Fprintf(k.m.Stdout, "%032b", k.m.Reg(mips.REG_A0))
	return nil
}

func printIntUnsigned(k *Kernel, st *mips.Stmt) error {
	fmt.Fprintf(k.m.Stdout, "%d", k.m.Reg(mips.REG_A0))
	return nil
}

func randSeed(k *Kernel, st *mips.Stmt) error {
	id := k.m.Reg(mips.REG_A0)
	seed := k.m.Reg(mips.REG_A1)
	k.rng[id] = rand.New(rand.NewSource(int64(seed)))
	return nil
}

func randInt(k *Kernel, st *mips.Stmt) error {
	r := k.random(k.m.Reg(mips.REG_A0))
	k.m.SetReg(mips.REG_A0, r.Uint32())
	return nil
}

func randIntRange(k *Kernel, st *mips.Stmt) error {
	id := k.m.Reg(mips.REG_A0)
	upper := int32(k.m.Reg(mips.REG_A1))
	if upper <= 0 {
		return serviceError(st, "RandIntRange: upper bound must be positive")
	}
	r := k.random(id)
	k.m.SetReg(mips.REG_A0, uint32(r.Int31n(upper)))
	return nil
}
