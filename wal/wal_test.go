package wal

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

type testRecord struct {
	key, val []byte
	deleted  bool
}

func writeLog(t *testing.T, path string, records []testRecord) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := NewWriter(f)
	for _, rec := range records {
		if rec.deleted {
			err = w.RecordDeletion(rec.key)
		} else {
			err = w.RecordInsertion(rec.key, rec.val)
		}
		if err != nil {
			t.Fatalf("record %q: %v", rec.key, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestWriteRead(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var records []testRecord
	for i := 0; i < 300; i++ {
		rec := testRecord{key: []byte(fmt.Sprintf("key-%04d", i))}
		switch {
		case i%10 == 0:
			rec.deleted = true
		case i%33 == 0:
			// spans several blocks
			rec.val = randomBytes(rng, 3*blockSize+17)
		default:
			rec.val = randomBytes(rng, rng.Intn(200))
		}
		records = append(records, rec)
	}

	path := filepath.Join(t.TempDir(), "wal.log")
	writeLog(t, path, records)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	r := NewReader(f)
	for i, want := range records {
		key, val, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: Next: %v", i, err)
		}
		if !bytes.Equal(key, want.key) {
			t.Fatalf("record %d: key %q, want %q", i, key, want.key)
		}
		if val.IsTombstone() != want.deleted {
			t.Fatalf("record %d: tombstone=%t, want %t", i, val.IsTombstone(), want.deleted)
		}
		if !want.deleted && !bytes.Equal(val.Value(), want.val) {
			t.Fatalf("record %d: value mismatch", i)
		}
	}
	if _, _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next after last record = %v, want io.EOF", err)
	}
}

func TestEmptyLog(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next on empty log = %v, want io.EOF", err)
	}
}

func TestTornTail(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	path := filepath.Join(t.TempDir(), "wal.log")
	writeLog(t, path, []testRecord{
		{key: []byte("a"), val: []byte("first")},
		{key: []byte("b"), val: randomBytes(rng, 2*blockSize+500)},
	})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	for _, size := range []int64{info.Size() - 100, 2 * blockSize} {
		t.Run(fmt.Sprintf("truncated to %d", size), func(t *testing.T) {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			r := NewReader(bytes.NewReader(data[:size]))
			key, _, err := r.Next()
			if err != nil || string(key) != "a" {
				t.Fatalf("first record = %q, %v", key, err)
			}
			if _, _, err := r.Next(); err != io.ErrUnexpectedEOF {
				t.Fatalf("torn record err = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}
