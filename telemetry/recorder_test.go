package telemetry

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordWritesCSVAndLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var buf bytes.Buffer
	r, err := NewRecorder(&buf, zap.New(core))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	entries := []Entry{
		{Op: OpCreate, Key: 10, Value: "Value 10", Elapsed: 1500 * time.Microsecond, Status: StatusSuccess},
		{Op: OpRead, Key: 7, Elapsed: time.Millisecond, Status: StatusFailed},
		{Op: OpRead, Key: 10, Value: "Value, with comma", Elapsed: 2 * time.Millisecond, Status: StatusSuccess},
	}
	for _, e := range entries {
		if err := r.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := [][]string{
		csvHeader,
		{"CREATE", "10", "Value 10", "0.0015", "Success"},
		{"READ", "7", "", "0.001", "Failed"},
		{"READ", "10", "Value, with comma", "0.002", "Success"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d csv rows, want %d", len(rows), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}

	if logs.Len() != 3 {
		t.Fatalf("got %d log entries, want 3", logs.Len())
	}
	if msg := logs.All()[1].Message; msg != "key not found" {
		t.Errorf("second log message = %q", msg)
	}
	if ctx := logs.All()[0].ContextMap(); ctx["op"] != "CREATE" || ctx["status"] != "Success" {
		t.Errorf("log fields = %v", ctx)
	}

	sum := r.Summary()
	if sum[OpRead].Count != 2 || sum[OpRead].Failed != 1 || sum[OpRead].Elapsed != 3*time.Millisecond {
		t.Errorf("READ summary = %+v", sum[OpRead])
	}
	if sum[OpCreate].Count != 1 {
		t.Errorf("CREATE summary = %+v", sum[OpCreate])
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMemoryUsage(t *testing.T) {
	if mb := MemoryUsageMB(); mb <= 0 {
		t.Fatalf("MemoryUsageMB = %f", mb)
	}
}
