package sstable

import (
	"encoding/binary"

	"btreekv/encoder"

	"github.com/cockroachdb/errors"
)

// Reader walks the entries of a snapshot loaded in memory.
type Reader struct {
	buf        []byte // data entries
	offsets    []byte // part of the index block holding the offsets (4B each)
	numOffsets int
	encoder    *encoder.Encoder
}

func NewReader(data []byte) (*Reader, error) {
	if len(data) < 4 {
		return nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: %d bytes is too short for a footer", len(data))
	}
	numOffsets := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	indexStart := len(data) - 4 - numOffsets*4
	if numOffsets < 0 || indexStart < 0 {
		return nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: index of %d entries doesn't fit", numOffsets)
	}
	r := &Reader{
		buf:        data[:indexStart],
		offsets:    data[indexStart : len(data)-4],
		numOffsets: numOffsets,
		encoder:    encoder.NewEncoder(),
	}
	for i := 0; i < numOffsets; i++ {
		if int(r.offsetAt(i)) >= len(r.buf) {
			return nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: entry %d points past the data", i)
		}
	}
	return r, nil
}

func (r *Reader) Len() int {
	return r.numOffsets
}

func (r *Reader) offsetAt(pos int) uint32 {
	return binary.LittleEndian.Uint32(r.offsets[pos*4 : pos*4+4])
}

// fetchDataFor returns the key and encoded value of the entry at pos.
func (r *Reader) fetchDataFor(pos int) (key, val []byte, err error) {
	offset := int(r.offsetAt(pos))
	keyLen, n := binary.Uvarint(r.buf[offset:])
	if n <= 0 {
		return nil, nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: entry %d key length", pos)
	}
	offset += n
	valLen, n := binary.Uvarint(r.buf[offset:])
	if n <= 0 {
		return nil, nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: entry %d value length", pos)
	}
	offset += n
	if uint64(len(r.buf)-offset) < keyLen+valLen {
		return nil, nil, errors.Wrapf(encoder.ErrCorrupt, "sstable: entry %d is truncated", pos)
	}
	key = r.buf[offset : offset+int(keyLen)]
	offset += int(keyLen)
	val = r.buf[offset : offset+int(valLen)]
	return key, val, nil
}

// Scan calls fn for every entry in key order and stops at the first error.
func (r *Reader) Scan(fn func(key []byte, val *encoder.EncodedValue) error) error {
	for i := 0; i < r.numOffsets; i++ {
		key, raw, err := r.fetchDataFor(i)
		if err != nil {
			return err
		}
		val, err := r.encoder.Parse(raw)
		if err != nil {
			return err
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}
