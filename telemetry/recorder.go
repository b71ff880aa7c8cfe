package telemetry

import (
	"encoding/csv"
	"io"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type Op string

const (
	OpCreate Op = "CREATE"
	OpRead   Op = "READ"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Entry describes one completed operation.
type Entry struct {
	Op      Op
	Key     int64
	Value   string
	Elapsed time.Duration
	Status  Status
}

// Stats aggregates the entries recorded for one operation.
type Stats struct {
	Count   int
	Failed  int
	Elapsed time.Duration
}

var csvHeader = []string{"Operation", "Key", "Value", "Elapsed (seconds)", "Status"}

// Recorder writes every operation to the console log and to a CSV file.
type Recorder struct {
	w       io.Writer
	csv     *csv.Writer
	logger  *zap.Logger
	summary map[Op]Stats
}

// NewRecorder writes the CSV header to w. A nil logger disables console output.
func NewRecorder(w io.Writer, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		w:       w,
		csv:     csv.NewWriter(w),
		logger:  logger,
		summary: make(map[Op]Stats),
	}
	if err := r.writeRow(csvHeader); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeRow(row []string) error {
	if err := r.csv.Write(row); err != nil {
		return errors.Wrap(err, "telemetry: write csv row")
	}
	r.csv.Flush()
	return errors.Wrap(r.csv.Error(), "telemetry: flush csv")
}

func (r *Recorder) Record(e Entry) error {
	r.logger.Info(message(e),
		zap.String("op", string(e.Op)),
		zap.Int64("key", e.Key),
		zap.String("value", e.Value),
		zap.Duration("elapsed", e.Elapsed),
		zap.String("status", string(e.Status)),
	)

	st := r.summary[e.Op]
	st.Count++
	st.Elapsed += e.Elapsed
	if e.Status == StatusFailed {
		st.Failed++
	}
	r.summary[e.Op] = st

	return r.writeRow([]string{
		string(e.Op),
		strconv.FormatInt(e.Key, 10),
		e.Value,
		strconv.FormatFloat(e.Elapsed.Seconds(), 'f', -1, 64),
		string(e.Status),
	})
}

func message(e Entry) string {
	ok := e.Status == StatusSuccess
	switch e.Op {
	case OpCreate:
		if ok {
			return "key created"
		}
		return "key already exists"
	case OpRead:
		if ok {
			return "key found"
		}
		return "key not found"
	case OpUpdate:
		if ok {
			return "key updated"
		}
		return "key not found"
	case OpDelete:
		if ok {
			return "key deleted"
		}
		return "key not found"
	}
	return string(e.Op)
}

// Summary returns a copy of the per-operation aggregates.
func (r *Recorder) Summary() map[Op]Stats {
	out := make(map[Op]Stats, len(r.summary))
	for op, st := range r.summary {
		out[op] = st
	}
	return out
}

// Close flushes the CSV writer and closes the destination when it is an io.Closer.
func (r *Recorder) Close() error {
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		return errors.Wrap(err, "telemetry: flush csv")
	}
	if c, ok := r.w.(io.Closer); ok {
		return errors.Wrap(c.Close(), "telemetry: close csv")
	}
	return nil
}

// MemoryUsageMB returns the memory obtained from the OS by the Go runtime, in MiB.
func MemoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Sys) / (1024 * 1024)
}
