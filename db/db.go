package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"btreekv/btree"
	"btreekv/store"
	"btreekv/telemetry"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Config struct {
	Dir     string // directory of the key-value table
	Degree  int    // minimum degree of the key index
	LogPath string // CSV operation log; relative paths are resolved against the working directory
	Logger  *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Dir:     "demo",
		Degree:  2,
		LogPath: "log_operations.csv",
	}
}

/*
DB keeps every key in an in-memory B-tree index and the key-value pairs in a persistent table.
The table is authoritative: the index is rebuilt from it on open and is never shrunk, because
the tree does not support deletion.
*/
type DB struct {
	tree     *btree.Tree[int64]
	store    *store.Store
	recorder *telemetry.Recorder
	logger   *zap.Logger
}

func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Degree < 2 {
		return nil, errors.Newf("db: degree must be at least 2, got %d", cfg.Degree)
	}

	s, err := store.Open(cfg.Dir, store.WithLogger(cfg.Logger.Named("store")))
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.CombineErrors(errors.Wrap(err, "db: create log directory"), s.Close())
		}
	}
	logFile, err := os.Create(cfg.LogPath)
	if err != nil {
		return nil, errors.CombineErrors(errors.Wrap(err, "db: create operation log"), s.Close())
	}
	rec, err := telemetry.NewRecorder(logFile, cfg.Logger.Named("ops"))
	if err != nil {
		return nil, errors.CombineErrors(err, errors.CombineErrors(logFile.Close(), s.Close()))
	}

	d := &DB{
		tree:     btree.NewOrdered[int64](cfg.Degree),
		store:    s,
		recorder: rec,
		logger:   cfg.Logger,
	}
	for _, row := range s.Rows() {
		d.tree.Insert(row.Key)
	}
	d.logger.Info("index rebuilt", zap.Int("keys", d.tree.Len()), zap.Int("height", d.tree.Height()))
	return d, nil
}

func (d *DB) record(op telemetry.Op, key int64, val string, start time.Time, ok bool) error {
	status := telemetry.StatusSuccess
	if !ok {
		status = telemetry.StatusFailed
	}
	return d.recorder.Record(telemetry.Entry{
		Op:      op,
		Key:     key,
		Value:   val,
		Elapsed: time.Since(start),
		Status:  status,
	})
}

// Create adds a new key. It returns false when the key already exists.
func (d *DB) Create(key int64, val string) (bool, error) {
	start := time.Now()
	_, found, err := d.Read(key)
	if err != nil {
		return false, err
	}
	if found {
		return false, d.record(telemetry.OpCreate, key, val, start, false)
	}

	// A key deleted from the table is still indexed.
	if !d.tree.Has(key) {
		d.tree.Insert(key)
	}
	if err := d.store.Insert(key, val); err != nil {
		return false, err
	}
	return true, d.record(telemetry.OpCreate, key, val, start, true)
}

func (d *DB) Read(key int64) (string, bool, error) {
	start := time.Now()
	val, found := d.store.Get(key)
	return val, found, d.record(telemetry.OpRead, key, val, start, found)
}

// Update replaces the value of an existing key. It returns false when the key is missing.
func (d *DB) Update(key int64, val string) (bool, error) {
	start := time.Now()
	_, found, err := d.Read(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, d.record(telemetry.OpUpdate, key, val, start, false)
	}
	if err := d.store.Update(key, val); err != nil {
		return false, err
	}
	return true, d.record(telemetry.OpUpdate, key, val, start, true)
}

// Delete removes a key from the table. It returns false when the key is missing.
func (d *DB) Delete(key int64) (bool, error) {
	start := time.Now()
	_, found, err := d.Read(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, d.record(telemetry.OpDelete, key, "", start, false)
	}
	if err := d.store.Delete(key); err != nil {
		return false, err
	}
	d.tree.Delete(key)
	return true, d.record(telemetry.OpDelete, key, "", start, true)
}

func (d *DB) Tree() *btree.Tree[int64] {
	return d.tree
}

func (d *DB) Rows() []store.Row {
	return d.store.Rows()
}

func (d *DB) Summary() map[telemetry.Op]telemetry.Stats {
	return d.recorder.Summary()
}

// MemoryUsage returns the process memory in MiB.
func (d *DB) MemoryUsage() float64 {
	return telemetry.MemoryUsageMB()
}

func (d *DB) String() string {
	var sb strings.Builder
	sb.WriteString("B-tree:\n")
	sb.WriteString(d.tree.String())
	sb.WriteString("Rows:\n[")
	for i, row := range d.store.Rows() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "(%d, %q)", row.Key, row.Value)
	}
	sb.WriteString("]")
	return sb.String()
}

func (d *DB) Close() error {
	return errors.CombineErrors(d.store.Close(), d.recorder.Close())
}
