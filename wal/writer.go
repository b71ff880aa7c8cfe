package wal

import (
	"bytes"
	"encoding/binary"
	"io"

	"btreekv/encoder"

	"github.com/cockroachdb/errors"
)

const headerSize = 3

const (
	chunkTypeFull   = 1
	chunkTypeFirst  = 2
	chunkTypeMiddle = 3
	chunkTypeLast   = 4
)

const blockSize = 4 << 10 // 4 KiB

type block struct {
	buf    [blockSize]byte // scratch space for the block being written or read
	offset int             // current position within the block
	len    int             // bytes loaded into buf (can be <blockSize for the last block)
}

type syncWriteCloser interface {
	io.WriteCloser
	Sync() error
}

// Writer assembles chunks in a block-sized buffer and appends them to the log file.
type Writer struct {
	block   *block
	file    syncWriteCloser
	encoder *encoder.Encoder
	buf     *bytes.Buffer // staging area for the full record before it is split into chunks
}

func NewWriter(logFile syncWriteCloser) *Writer {
	return &Writer{
		block:   &block{},
		file:    logFile,
		encoder: encoder.NewEncoder(),
		buf:     &bytes.Buffer{},
	}
}

func (w *Writer) scratchBuf(needed int) []byte {
	w.buf.Reset()
	if needed > w.buf.Available() {
		w.buf.Grow(needed)
	}
	return w.buf.AvailableBuffer()[:needed]
}

// writeAndSync makes sure p is on stable storage, not only in the page cache.
func (w *Writer) writeAndSync(p []byte) error {
	if _, err := w.file.Write(p); err != nil {
		return errors.Wrap(err, "wal: write")
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "wal: sync")
	}
	return nil
}

// sealBlock zero pads the tail of the current block, which is too short to hold another chunk.
func (w *Writer) sealBlock() error {
	b := w.block
	clear(b.buf[b.offset:])
	if err := w.writeAndSync(b.buf[b.offset:]); err != nil {
		return err
	}
	b.offset = 0
	return nil
}

/*
record payload: keyLen (uvarint) | valLen (uvarint) | key | encoded val.
The payload is split into chunks so that no chunk crosses a block boundary.
chunk: dataLen (2B) | chunkType (1B) | data
*/
func (w *Writer) record(key, val []byte) error {
	keyLen, valLen := len(key), len(val)
	scratch := w.scratchBuf(2*binary.MaxVarintLen64 + keyLen + valLen)
	n := binary.PutUvarint(scratch, uint64(keyLen))
	n += binary.PutUvarint(scratch[n:], uint64(valLen))
	copy(scratch[n:], key)
	copy(scratch[n+keyLen:], val)
	scratch = scratch[:n+keyLen+valLen]

	for chunk := 0; len(scratch) > 0; chunk++ {
		b := w.block
		if blockSize-b.offset <= headerSize {
			if err := w.sealBlock(); err != nil {
				return err
			}
		}
		buf := b.buf[b.offset:]
		dataLen := copy(buf[headerSize:], scratch)
		binary.LittleEndian.PutUint16(buf, uint16(dataLen))
		last := dataLen == len(scratch)
		switch {
		case chunk == 0 && last:
			buf[2] = chunkTypeFull
		case chunk == 0:
			buf[2] = chunkTypeFirst
		case last:
			buf[2] = chunkTypeLast
		default:
			buf[2] = chunkTypeMiddle
		}
		scratch = scratch[dataLen:]
		b.offset += headerSize + dataLen

		if err := w.writeAndSync(buf[:headerSize+dataLen]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) RecordInsertion(key, val []byte) error {
	return w.record(key, w.encoder.Encode(encoder.OpKindSet, val))
}

func (w *Writer) RecordDeletion(key []byte) error {
	return w.record(key, w.encoder.Encode(encoder.OpKindDelete, nil))
}

// Close leaves the last block unsealed; the reader treats a short block as the end of the log.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Wrap(err, "wal: close")
}
