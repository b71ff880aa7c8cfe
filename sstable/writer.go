package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// 2 methods -- `Close() error` and `Sync() error`
type syncCloser interface {
	io.Closer
	Sync() error
}

// Writer streams sorted entries into a snapshot file followed by an index block.
type Writer struct {
	file       syncCloser
	bw         *bufio.Writer
	buf        *bytes.Buffer
	offsets    []uint32 // offsets of each data entry in the file
	nextOffset uint32   // offset at the end of the most recently added entry
	lastKey    []byte
}

func NewWriter(file io.Writer) *Writer {
	w := &Writer{}
	w.file, _ = file.(syncCloser)
	w.bw = bufio.NewWriter(file)
	w.buf = bytes.NewBuffer(make([]byte, 0, 1024))
	return w
}

// use byte slice as an in-mem staging area for creating data entries
func (w *Writer) scratchBuf(needed int) []byte {
	w.buf.Reset()
	if needed > w.buf.Available() {
		w.buf.Grow(needed)
	}
	return w.buf.AvailableBuffer()[:needed]
}

/*
data entry: keyLen (uvarint) | valLen (uvarint) | key | encoded val
Only n + keyLen + valLen bytes are used instead of fixed-width lengths.
Keys must arrive in strictly ascending order so readers can binary search.
*/
func (w *Writer) Add(key, encodedVal []byte) error {
	if w.lastKey != nil && bytes.Compare(key, w.lastKey) <= 0 {
		return errors.Newf("sstable: key %x added after %x", key, w.lastKey)
	}
	keyLen, valLen := len(key), len(encodedVal)
	buf := w.scratchBuf(2*binary.MaxVarintLen64 + keyLen + valLen)

	n := binary.PutUvarint(buf, uint64(keyLen))
	n += binary.PutUvarint(buf[n:], uint64(valLen))
	copy(buf[n:], key)
	copy(buf[n+keyLen:], encodedVal)

	used := n + keyLen + valLen
	if _, err := w.bw.Write(buf[:used]); err != nil {
		return errors.Wrap(err, "sstable: write entry")
	}
	w.addIndexEntry(used)
	w.lastKey = append(w.lastKey[:0], key...)
	return nil
}

// track starting offsets of each data entry
func (w *Writer) addIndexEntry(n int) {
	w.offsets = append(w.offsets, w.nextOffset)
	w.nextOffset += uint32(n)
}

// index block: offset (4B) per entry, then the number of entries (4B)
func (w *Writer) writeIndexBlock() error {
	numOffsets := len(w.offsets)
	needed := (numOffsets + 1) * 4
	buf := w.scratchBuf(needed)
	for i, offset := range w.offsets {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], offset)
	}
	binary.LittleEndian.PutUint32(buf[needed-4:needed], uint32(numOffsets))
	if _, err := w.bw.Write(buf); err != nil {
		return errors.Wrap(err, "sstable: write index")
	}
	return nil
}

// Close writes the index block, flushes buffered data and syncs the file before closing it.
func (w *Writer) Close() error {
	if err := w.writeIndexBlock(); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return errors.Wrap(err, "sstable: flush")
	}
	w.bw = nil
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "sstable: sync")
	}
	err := w.file.Close()
	w.file = nil
	return errors.Wrap(err, "sstable: close")
}
