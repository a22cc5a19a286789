package models

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// savestate format:
//
// file header
// uint32(savestate format version)
// uint32(crc32 of compressed data)
// uint32(length of compressed data)
// remainder is gzip-compressed
//
// -- uncompressed data start --
// registers
// uint32(number of registers)
// 1..num: uint32(register enum), uint32(register value)
//
// memory
// uint32(number of mapped sections)
// 1..num: uint32(addr), uint32(len), uint32(prot), <raw memory bytes of len>

const saveStateVersion = 1

// Mapping describes one mapped memory region.
type Mapping struct {
	Addr uint32
	Size uint32
	Prot int
	Desc string
}

// MachineState is the surface needed to snapshot and restore a machine.
type MachineState interface {
	RegDumper
	RegWrite(enum int, val uint32) error
	Mappings() []Mapping
	MemRead(addr, size uint32) ([]byte, error)
	MemMap(addr, size uint32, prot int, desc string) error
	MemWrite(addr uint32, p []byte) error
}

// Save serializes registers and memory into a versioned, checksummed,
// compressed blob.
func Save(m MachineState) ([]byte, error) {
	var buf bytes.Buffer
	s := StrucStream{Stream: &buf, Order: binary.BigEndian}

	regs := m.RegDump()
	s.Pack(uint32(len(regs)))
	for _, reg := range regs {
		s.Pack(uint32(reg.Enum), reg.Val)
	}

	mappings := m.Mappings()
	s.Pack(uint32(len(mappings)))
	for _, mp := range mappings {
		s.Pack(mp.Addr, mp.Size, uint32(mp.Prot))
		mem, err := m.MemRead(mp.Addr, mp.Size)
		if err != nil {
			return nil, err
		}
		buf.Write(mem)
	}
	if s.Err != nil {
		return nil, s.Err
	}

	var tmp bytes.Buffer
	gz := gzip.NewWriter(&tmp)
	if _, err := buf.WriteTo(gz); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	data := tmp.Bytes()

	var final bytes.Buffer
	s = StrucStream{Stream: &final, Order: binary.BigEndian}
	s.Pack(uint32(saveStateVersion), crc32.ChecksumIEEE(data), uint32(len(data)))
	if s.Err != nil {
		return nil, s.Err
	}
	tmp.WriteTo(&final)
	return final.Bytes(), nil
}

// Restore applies a Save blob to a machine: registers are rewritten and
// each section is mapped (if needed) and filled.
func Restore(m MachineState, data []byte) error {
	r := bytes.NewReader(data)
	s := StrucStream{Stream: readWriter{r}, Order: binary.BigEndian}
	var version, sum, size uint32
	if err := s.Unpack(&version, &sum, &size); err != nil {
		return errors.Wrap(err, "bad savestate header")
	}
	if version != saveStateVersion {
		return errors.Errorf("unsupported savestate version %d", version)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return errors.Wrap(err, "truncated savestate")
	}
	if crc32.ChecksumIEEE(body) != sum {
		return errors.New("savestate checksum mismatch")
	}
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "bad savestate compression")
	}
	s = StrucStream{Stream: readWriter{gz}, Order: binary.BigEndian}

	var nregs uint32
	if err := s.Unpack(&nregs); err != nil {
		return err
	}
	for i := uint32(0); i < nregs; i++ {
		var enum, val uint32
		if err := s.Unpack(&enum, &val); err != nil {
			return err
		}
		if err := m.RegWrite(int(enum), val); err != nil {
			return err
		}
	}

	var nsect uint32
	if err := s.Unpack(&nsect); err != nil {
		return err
	}
	mapped := make(map[uint32]bool)
	for _, mp := range m.Mappings() {
		mapped[mp.Addr] = true
	}
	for i := uint32(0); i < nsect; i++ {
		var addr, size, prot uint32
		if err := s.Unpack(&addr, &size, &prot); err != nil {
			return err
		}
		mem := make([]byte, size)
		if _, err := io.ReadFull(gz, mem); err != nil {
			return errors.Wrap(err, "truncated savestate section")
		}
		if !mapped[addr] {
			if err := m.MemMap(addr, size, int(prot), "restored"); err != nil {
				return err
			}
		}
		if err := m.MemWrite(addr, mem); err != nil {
			return err
		}
	}
	return nil
}

// readWriter adapts a read-only stream to StrucStream's ReadWriter.
type readWriter struct {
	io.Reader
}

func (readWriter) Write(p []byte) (int, error) {
	return 0, errors.New("read-only stream")
}
