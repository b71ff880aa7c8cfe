package db

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"btreekv/telemetry"

	"github.com/go-faker/faker/v4"
	"go.uber.org/zap/zaptest"
)

func openDB(t *testing.T, dir string) *DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(dir, "data")
	cfg.LogPath = filepath.Join(dir, "log_operations.csv")
	cfg.Logger = zaptest.NewLogger(t)
	d, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

// mustOK fails the test on error and passes the boolean result through.
func mustOK(t *testing.T) func(bool, error) bool {
	return func(ok bool, err error) bool {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return ok
	}
}

func TestPerformanceSequence(t *testing.T) {
	dir := t.TempDir()
	d := openDB(t, dir)
	must := mustOK(t)

	for _, k := range []int64{10, 20, 5, 6} {
		if !must(d.Create(k, "Value")) {
			t.Fatalf("Create(%d) failed", k)
		}
	}
	if must(d.Create(10, "dup")) {
		t.Fatalf("duplicate Create succeeded")
	}
	if v, ok, err := d.Read(10); err != nil || !ok || v != "Value" {
		t.Fatalf("Read(10) = %q, %t, %v", v, ok, err)
	}
	if !must(d.Update(10, "New Value 10")) {
		t.Fatalf("Update failed")
	}
	if v, _, _ := d.Read(10); v != "New Value 10" {
		t.Fatalf("Read after Update = %q", v)
	}
	if !must(d.Delete(10)) {
		t.Fatalf("Delete failed")
	}
	if must(d.Delete(10)) || must(d.Update(10, "x")) {
		t.Fatalf("operations on a deleted key succeeded")
	}

	// the index keeps deleted keys
	if !d.Tree().Has(10) || d.Tree().Len() != 4 {
		t.Fatalf("index Has(10)=%t Len=%d", d.Tree().Has(10), d.Tree().Len())
	}
	if err := d.Tree().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := "B-tree:\n└─[10]\n  ├─[5, 6]\n  └─[20]\n" +
		`Rows:` + "\n" + `[(5, "Value"), (6, "Value"), (20, "Value")]`
	if got := d.String(); got != want {
		t.Fatalf("String() =\n%s\nwant\n%s", got, want)
	}

	sum := d.Summary()
	if sum[telemetry.OpCreate].Count != 5 || sum[telemetry.OpCreate].Failed != 1 {
		t.Errorf("CREATE summary = %+v", sum[telemetry.OpCreate])
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "log_operations.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	var ops []string
	for _, row := range rows[1:] {
		ops = append(ops, row[0]+":"+row[4])
	}
	wantOps := []string{
		"READ:Failed", "CREATE:Success",
		"READ:Failed", "CREATE:Success",
		"READ:Failed", "CREATE:Success",
		"READ:Failed", "CREATE:Success",
		"READ:Success", "CREATE:Failed",
		"READ:Success",
		"READ:Success", "UPDATE:Success",
		"READ:Success",
		"READ:Success", "DELETE:Success",
		"READ:Failed", "DELETE:Failed",
		"READ:Failed", "UPDATE:Failed",
	}
	if len(ops) != len(wantOps) {
		t.Fatalf("csv ops = %v", ops)
	}
	for i := range ops {
		if ops[i] != wantOps[i] {
			t.Fatalf("csv op %d = %s, want %s", i, ops[i], wantOps[i])
		}
	}
}

func TestRecreateDeletedKeyDoesNotDuplicateIndex(t *testing.T) {
	d := openDB(t, t.TempDir())
	must := mustOK(t)
	defer d.Close()
	must(d.Create(1, "a"))
	must(d.Delete(1))
	if !must(d.Create(1, "b")) {
		t.Fatalf("re-Create after Delete failed")
	}
	if d.Tree().Len() != 1 {
		t.Fatalf("index Len = %d, want 1", d.Tree().Len())
	}
}

func TestIndexRebuiltOnOpen(t *testing.T) {
	dir := t.TempDir()
	d := openDB(t, dir)
	must := mustOK(t)
	values := make(map[int64]string)
	for k := int64(0); k < 200; k++ {
		values[k*3] = faker.Sentence()
		must(d.Create(k*3, values[k*3]))
	}
	must(d.Delete(3))
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d = openDB(t, dir)
	defer d.Close()
	for k, want := range values {
		got, ok, err := d.Read(k)
		if err != nil {
			t.Fatalf("Read(%d): %v", k, err)
		}
		if k == 3 {
			if ok {
				t.Fatalf("deleted key 3 read back as %q", got)
			}
			continue
		}
		if !ok || got != want {
			t.Fatalf("Read(%d) = %q, %t, want %q", k, got, ok, want)
		}
	}
	if d.Tree().Len() != 199 {
		t.Fatalf("index Len after reopen = %d, want 199", d.Tree().Len())
	}
	if err := d.Tree().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.Tree().Has(3) || !d.Tree().Has(6) {
		t.Fatalf("rebuilt index Has(3)=%t Has(6)=%t", d.Tree().Has(3), d.Tree().Has(6))
	}
}

func TestOpenRejectsBadDegree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.Degree = 1
	if _, err := Open(cfg); err == nil {
		t.Fatalf("Open with degree 1 succeeded")
	}
}

func TestOpenFailureClosesStore(t *testing.T) {
	dir := t.TempDir()
	d := openDB(t, dir)
	must := mustOK(t)
	word := faker.Word()
	must(d.Create(7, word))
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Dir = filepath.Join(dir, "data")
	cfg.LogPath = filepath.Join(dir, "csv-is-a-dir")
	cfg.Logger = zaptest.NewLogger(t)
	if err := os.Mkdir(cfg.LogPath, 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Open(cfg)
	if err == nil {
		t.Fatalf("Open with a directory as the operation log succeeded")
	}
	if !strings.Contains(err.Error(), "create operation log") {
		t.Fatalf("Open error = %v", err)
	}

	d = openDB(t, dir)
	defer d.Close()
	if v, ok, err := d.Read(7); err != nil || !ok || v != word {
		t.Fatalf("Read(7) = %q, %t, %v, want %q", v, ok, err, word)
	}
}
