package store

import (
	"cmp"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"btreekv/encoder"
	"btreekv/sstable"
	"btreekv/wal"

	"github.com/cockroachdb/errors"
	"github.com/emirpasic/gods/maps/treemap"
	"go.uber.org/zap"
)

const (
	snapshotFile = "rows.sst"
	walFile      = "wal.log"
)

var (
	ErrKeyExists   = errors.New("key already exists")
	ErrKeyNotFound = errors.New("key not found")
)

// Row is a single key-value pair of the table.
type Row struct {
	Key   int64
	Value string
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

/*
Store is the key-value table.
Rows live in an ordered in-memory map. Every mutation is appended to the write-ahead log
before the map changes; a checkpoint writes all rows to a snapshot and starts a fresh log.
*/
type Store struct {
	dir     string
	rows    *treemap.Map // int64 -> string
	wal     *wal.Writer
	encoder *encoder.Encoder
	logger  *zap.Logger
}

// Open loads the snapshot and replays the log found in dir, creating the directory if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	rows := treemap.NewWith(func(a, b interface{}) int {
		return cmp.Compare(a.(int64), b.(int64))
	})
	s := &Store{
		dir:     dir,
		rows:    rows,
		encoder: encoder.NewEncoder(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "store: create %s", dir)
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := s.replayWAL(); err != nil {
		return nil, err
	}
	if err := s.Checkpoint(); err != nil {
		return nil, err
	}
	s.logger.Info("store opened", zap.String("dir", dir), zap.Int("rows", s.rows.Size()))
	return s, nil
}

func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "store: read snapshot")
	}
	r, err := sstable.NewReader(data)
	if err != nil {
		return err
	}
	s.logger.Debug("loading snapshot", zap.Int("rows", r.Len()))
	return r.Scan(func(key []byte, val *encoder.EncodedValue) error {
		k, err := decodeKey(key)
		if err != nil {
			return err
		}
		s.rows.Put(k, string(val.Value()))
		return nil
	})
}

// replayWAL applies logged mutations in order; a record torn by a crash ends the replay.
func (s *Store) replayWAL() error {
	f, err := os.Open(filepath.Join(s.dir, walFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "store: open wal")
	}
	defer f.Close()

	r := wal.NewReader(f)
	replayed := 0
	for {
		key, val, err := r.Next()
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			s.logger.Warn("ignoring torn record at the end of the wal", zap.Int("replayed", replayed))
			break
		}
		if err != nil {
			return errors.Wrap(err, "store: replay wal")
		}
		k, err := decodeKey(key)
		if err != nil {
			return err
		}
		if val.IsTombstone() {
			s.rows.Remove(k)
		} else {
			s.rows.Put(k, string(val.Value()))
		}
		replayed++
	}
	s.logger.Debug("wal replayed", zap.Int("records", replayed))
	return nil
}

/*
Checkpoint writes every row to a temporary snapshot, renames it over the previous one
and truncates the write-ahead log. The current log stays in use until the new snapshot
is installed, so a failed checkpoint leaves the store writable.
*/
func (s *Store) Checkpoint() error {
	if err := s.writeSnapshot(); err != nil {
		return err
	}

	logFile, err := os.Create(filepath.Join(s.dir, walFile))
	if err != nil {
		return errors.Wrap(err, "store: reset wal")
	}
	prev := s.wal
	s.wal = wal.NewWriter(logFile)
	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing the previous wal", zap.Error(err))
		}
	}
	s.logger.Debug("checkpoint written", zap.Int("rows", s.rows.Size()))
	return nil
}

func (s *Store) writeSnapshot() (err error) {
	tmp := filepath.Join(s.dir, snapshotFile+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "store: create snapshot")
	}
	defer func() {
		if err != nil {
			err = errors.CombineErrors(err, os.Remove(tmp))
		}
	}()

	w := sstable.NewWriter(f)
	it := s.rows.Iterator()
	for it.Next() {
		err := w.Add(encodeKey(it.Key().(int64)), s.encoder.Encode(encoder.OpKindSet, []byte(it.Value().(string))))
		if err != nil {
			return errors.CombineErrors(err, f.Close())
		}
	}
	if err := w.Close(); err != nil {
		return errors.CombineErrors(err, f.Close())
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, snapshotFile)); err != nil {
		return errors.Wrap(err, "store: install snapshot")
	}
	return nil
}

func (s *Store) Get(key int64) (string, bool) {
	val, found := s.rows.Get(key)
	if !found {
		return "", false
	}
	return val.(string), true
}

func (s *Store) Insert(key int64, val string) error {
	if _, found := s.rows.Get(key); found {
		return errors.Wrapf(ErrKeyExists, "insert %d", key)
	}
	return s.put(key, val)
}

func (s *Store) Update(key int64, val string) error {
	if _, found := s.rows.Get(key); !found {
		return errors.Wrapf(ErrKeyNotFound, "update %d", key)
	}
	return s.put(key, val)
}

func (s *Store) put(key int64, val string) error {
	if err := s.wal.RecordInsertion(encodeKey(key), []byte(val)); err != nil {
		return err
	}
	s.rows.Put(key, val)
	return nil
}

func (s *Store) Delete(key int64) error {
	if _, found := s.rows.Get(key); !found {
		return errors.Wrapf(ErrKeyNotFound, "delete %d", key)
	}
	if err := s.wal.RecordDeletion(encodeKey(key)); err != nil {
		return err
	}
	s.rows.Remove(key)
	return nil
}

func (s *Store) Len() int {
	return s.rows.Size()
}

// Rows returns all rows in ascending key order.
func (s *Store) Rows() []Row {
	rows := make([]Row, 0, s.rows.Size())
	it := s.rows.Iterator()
	for it.Next() {
		rows = append(rows, Row{Key: it.Key().(int64), Value: it.Value().(string)})
	}
	return rows
}

// Close checkpoints the table and releases the log file.
func (s *Store) Close() error {
	err := s.Checkpoint()
	err = errors.CombineErrors(err, s.wal.Close())
	s.wal = nil
	return err
}

// keys are stored big endian with the sign bit flipped so byte order matches numeric order
func encodeKey(key int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(key)^(1<<63))
	return buf[:]
}

func decodeKey(buf []byte) (int64, error) {
	if len(buf) != 8 {
		return 0, errors.Wrapf(encoder.ErrCorrupt, "store: key of %d bytes", len(buf))
	}
	return int64(binary.BigEndian.Uint64(buf) ^ (1 << 63)), nil
}

