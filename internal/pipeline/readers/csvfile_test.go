package readers_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"scrub/internal/pipeline"
	"scrub/internal/pipeline/readers"
)

// ─────────────────────────────────────────────────────────────
// CSV reader tests
// ─────────────────────────────────────────────────────────────

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func collect(t *testing.T, typ string, cfg readers.Config) ([]pipeline.SourceRow, error) {
	t.Helper()
	r, err := readers.Get(typ)
	if err != nil {
		t.Fatalf("get reader: %v", err)
	}
	rows, errCh := r.Rows(context.Background(), cfg)
	var got []pipeline.SourceRow
	for sr := range rows {
		got = append(got, sr)
	}
	return got, <-errCh
}

func TestCSV_StreamsRows(t *testing.T) {
	path := writeTemp(t, "people.csv", "name,email,age\nann,ann@x.com,34\nbob,bob@x.com,28\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Row.Num != 1 || rows[1].Row.Num != 2 {
		t.Errorf("row numbers should be 1-based data positions: %d, %d", rows[0].Row.Num, rows[1].Row.Num)
	}
	if rows[0].Row.Values["name"] != "ann" {
		t.Errorf("expected name=ann, got %v", rows[0].Row.Values["name"])
	}
	// Numeric cells are inferred.
	if rows[0].Row.Values["age"] != 34.0 {
		t.Errorf("expected age inferred as 34.0, got %v (%T)", rows[0].Row.Values["age"], rows[0].Row.Values["age"])
	}
}

func TestCSV_ShortLineIsRowFailureNotStreamAbort(t *testing.T) {
	path := writeTemp(t, "short.csv", "name,email,age\nann,ann@x.com,34\nbob\ncarol,carol@x.com,41\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path})
	if err != nil {
		t.Fatalf("a short line must not abort the stream: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Err == nil {
		t.Error("row 2 should carry a structural failure")
	}
	if rows[2].Err != nil || rows[2].Row.Values["name"] != "carol" {
		t.Errorf("rows after the failure must keep streaming: %+v", rows[2])
	}
}

func TestCSV_ExtraCellsGetSyntheticLabels(t *testing.T) {
	path := writeTemp(t, "extra.csv", "name,email\nann,ann@x.com,stray\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if rows[0].Err != nil {
		t.Fatalf("extra cells should not fail the row: %v", rows[0].Err)
	}
	if rows[0].Row.Values["col_3"] != "stray" {
		t.Errorf("expected extra cell under col_3, got %v", rows[0].Row.Values)
	}
}

func TestCSV_NullMarkersBecomeNil(t *testing.T) {
	path := writeTemp(t, "nulls.csv", "name,email\nann,N/A\nbob,\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if rows[0].Row.Values["email"] != nil {
		t.Errorf("N/A should infer to nil, got %v", rows[0].Row.Values["email"])
	}
	if rows[1].Row.Values["email"] != nil {
		t.Errorf("empty cell should infer to nil, got %v", rows[1].Row.Values["email"])
	}
}

func TestCSV_NoHeader(t *testing.T) {
	path := writeTemp(t, "raw.csv", "ann,ann@x.com\nbob,bob@x.com\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path, "hasHeader": "false"})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Row.Values["col_1"] != "ann" {
		t.Errorf("expected synthetic col_1 label, got %v", rows[0].Row.Values)
	}
}

func TestCSV_CustomDelimiter(t *testing.T) {
	path := writeTemp(t, "semi.csv", "name;email\nann;ann@x.com\n")

	rows, err := collect(t, "csv_file", readers.Config{"filePath": path, "delimiter": ";"})
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if rows[0].Row.Values["email"] != "ann@x.com" {
		t.Errorf("semicolon delimiter not honored: %v", rows[0].Row.Values)
	}
}

func TestCSV_MissingFileIsStreamError(t *testing.T) {
	rows, err := collect(t, "csv_file", readers.Config{"filePath": "/nonexistent/file.csv"})
	if err == nil {
		t.Fatal("expected a stream-level error for a missing file")
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestCSV_Discover(t *testing.T) {
	path := writeTemp(t, "cols.csv", "name,email,age\nann,ann@x.com,34\n")

	r, err := readers.Get("csv_file")
	if err != nil {
		t.Fatalf("get reader: %v", err)
	}
	cols, err := r.Discover(context.Background(), readers.Config{"filePath": path})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []string{"name", "email", "age"}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d: got %q, want %q", i, cols[i], want[i])
		}
	}
}

func TestOpen_UnknownReaderType(t *testing.T) {
	if _, err := readers.Open("carrier_pigeon", nil); err == nil {
		t.Error("expected an error for an unregistered reader type")
	}
}

func TestList_IncludesFileReaders(t *testing.T) {
	types := map[string]bool{}
	for _, spec := range readers.List() {
		types[spec.Type] = true
	}
	for _, want := range []string{"csv_file", "jsonl_file"} {
		if !types[want] {
			t.Errorf("reader %q not registered", want)
		}
	}
}
