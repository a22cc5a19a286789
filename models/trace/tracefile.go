package trace

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var TRACE_MAGIC = "MSTR"

type Header struct {
	// MAGIC ("MSTR")
	Magic string `struc:"[4]byte" json:"-"`
	// file format version
	Version uint32 `json:"version"`

	// Instruction set name, right-null-padded. Currently "mips32".
	ISA string `struc:"[16]byte" json:"isa"`

	// Byte order of the traced machine - 0 for little, 1 for big
	OrderNum  uint8            `json:"-"`
	OrderName string           `struc:"skip" json:"order"`
	Order     binary.ByteOrder `struc:"skip" json:"-"`
}

// Writer packs one struc header and a stream of snappy-framed ops.
type Writer struct {
	w  io.WriteCloser
	zw io.WriteCloser
}

func NewWriter(w io.WriteCloser, machineOrder binary.ByteOrder) (*Writer, error) {
	var num uint8
	var name string
	if machineOrder == binary.BigEndian {
		num, name = 1, "big"
	} else {
		num, name = 0, "little"
	}
	header := &Header{
		Magic:     TRACE_MAGIC,
		Version:   1,
		ISA:       "mips32",
		OrderNum:  num,
		OrderName: name,
		Order:     machineOrder,
	}
	if err := struc.Pack(w, header); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

// write a frame at a time
func (t *Writer) Pack(frame Op) error {
	p := make([]byte, frame.Sizeof())
	frame.Pack(p)
	_, err := t.zw.Write(p)
	return err
}

func (t *Writer) Close() error {
	if err := t.zw.Close(); err != nil {
		t.w.Close()
		return err
	}
	return t.w.Close()
}

type Reader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header Header
}

func NewReader(r io.ReadCloser) (*Reader, error) {
	t := &Reader{r: r}
	if err := struc.Unpack(r, &t.Header); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	t.Header.ISA = strings.TrimRight(t.Header.ISA, "\x00")
	switch t.Header.OrderNum {
	case 0:
		t.Header.Order, t.Header.OrderName = binary.LittleEndian, "little"
	case 1:
		t.Header.Order, t.Header.OrderName = binary.BigEndian, "big"
	default:
		return nil, errors.Errorf("invalid byte order %d", t.Header.OrderNum)
	}
	t.zr = snappy.NewReader(r)
	return t, nil
}

func (t *Reader) Next() (Op, error) {
	op, _, err := Unpack(t.zr, false)
	return op, err
}

func (t *Reader) Close() error {
	t.zr.Reset(nil)
	return t.r.Close()
}
