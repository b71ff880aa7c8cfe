package encoder

import (
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
)

type OpKind uint8

const (
	OpKindDelete OpKind = iota
	OpKindSet
)

// ErrCorrupt is returned by Parse for values that weren't produced by Encode.
var ErrCorrupt = errors.New("corrupt encoded value")

type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

type EncodedValue struct {
	val    []byte
	opKind OpKind
}

/*
Encoded value layout: opKind (1B) | snappy block of the raw value.
Tombstones carry an empty snappy block.
*/
func (e *Encoder) Encode(opKind OpKind, val []byte) []byte {
	buf := make([]byte, 1+snappy.MaxEncodedLen(len(val)))
	buf[0] = byte(opKind)
	n := len(snappy.Encode(buf[1:], val))
	return buf[:1+n]
}

func (e *Encoder) Parse(val []byte) (*EncodedValue, error) {
	if len(val) == 0 {
		return nil, errors.Wrap(ErrCorrupt, "empty value")
	}
	opKind := OpKind(val[0])
	if opKind != OpKindDelete && opKind != OpKindSet {
		return nil, errors.Wrapf(ErrCorrupt, "unknown op kind %d", opKind)
	}
	buf, err := snappy.Decode(nil, val[1:])
	if err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "snappy: %v", err)
	}
	return &EncodedValue{val: buf, opKind: opKind}, nil
}

func (ev *EncodedValue) Value() []byte {
	return ev.val
}

func (ev *EncodedValue) IsTombstone() bool {
	return ev.opKind == OpKindDelete
}
