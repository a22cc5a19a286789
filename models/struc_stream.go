package models

import (
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
)

// StrucStream packs and unpacks values on a stream with a fixed byte
// order, collecting the first error so call sites can stay unchecked.
type StrucStream struct {
	Stream io.ReadWriter
	Order  binary.ByteOrder
	Err    error
}

func (s *StrucStream) options() *struc.Options {
	return &struc.Options{Order: s.Order}
}

func (s *StrucStream) Pack(vals ...interface{}) error {
	for _, v := range vals {
		if s.Err != nil {
			return s.Err
		}
		s.Err = struc.PackWithOptions(s.Stream, v, s.options())
	}
	return s.Err
}

func (s *StrucStream) Unpack(vals ...interface{}) error {
	for _, v := range vals {
		if s.Err != nil {
			return s.Err
		}
		s.Err = struc.UnpackWithOptions(s.Stream, v, s.options())
	}
	return s.Err
}
