package wal

import (
	"bytes"
	"encoding/binary"
	"io"

	"btreekv/encoder"

	"github.com/cockroachdb/errors"
)

// Reader retrieves records from a log file, one block at a time.
type Reader struct {
	file     io.Reader
	blockNum int // -1 -> no blocks loaded yet
	block    *block
	encoder  *encoder.Encoder
	buf      *bytes.Buffer
}

func NewReader(logFile io.Reader) *Reader {
	return &Reader{
		file:     logFile,
		blockNum: -1,
		block:    &block{},
		encoder:  encoder.NewEncoder(),
		buf:      &bytes.Buffer{},
	}
}

// The last block of a log is usually shorter than blockSize, so a short read is not an error.
func (r *Reader) loadNextBlock() error {
	b := r.block
	n, err := io.ReadFull(r.file, b.buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "wal: read block")
	}
	b.len, b.offset = n, 0
	r.blockNum++
	return nil
}

// nextChunk makes sure a chunk header is available at the block offset.
func (r *Reader) nextChunk() error {
	b := r.block
	for b.len-b.offset <= headerSize {
		if r.blockNum >= 0 && b.len < blockSize {
			return io.EOF
		}
		if err := r.loadNextBlock(); err != nil {
			return err
		}
	}
	return nil
}

/*
Next reassembles the chunks of the next record and returns its key and parsed value.
It returns io.EOF once the log is exhausted and io.ErrUnexpectedEOF when the log ends
in the middle of a record, as happens after a crash during a write.
*/
func (r *Reader) Next() (key []byte, val *encoder.EncodedValue, err error) {
	b := r.block
	r.buf.Reset()
	for {
		if err = r.nextChunk(); err != nil {
			if err == io.EOF && r.buf.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
		start := b.offset
		dataLen := int(binary.LittleEndian.Uint16(b.buf[start : start+2]))
		chunkType := b.buf[start+2]
		end := start + headerSize + dataLen
		if chunkType == 0 || end > b.len {
			if r.buf.Len() == 0 && chunkType == 0 {
				return nil, nil, io.EOF
			}
			return nil, nil, io.ErrUnexpectedEOF
		}
		r.buf.Write(b.buf[start+headerSize : end])
		b.offset = end
		if chunkType == chunkTypeFull || chunkType == chunkTypeLast {
			break
		}
	}

	scratch := r.buf.Bytes()
	keyLen, n := binary.Uvarint(scratch)
	valLen, m := binary.Uvarint(scratch[n:])
	if n <= 0 || m <= 0 || uint64(len(scratch)) != uint64(n+m)+keyLen+valLen {
		return nil, nil, errors.Wrapf(encoder.ErrCorrupt, "wal: malformed record in block %d", r.blockNum)
	}
	key = make([]byte, keyLen)
	copy(key, scratch[n+m:n+m+int(keyLen)])
	val, err = r.encoder.Parse(scratch[n+m+int(keyLen):])
	if err != nil {
		return nil, nil, err
	}
	return key, val, nil
}
