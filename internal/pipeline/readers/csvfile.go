package readers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"scrub/internal/pipeline"
)

// ── CSV File Reader ─────────────────────────────────────────
// Streams rows from a local CSV file. Legacy exports are messy:
// short lines, stray quotes, inconsistent spacing. A malformed line
// becomes a row-level structural failure; only an unreadable file
// kills the stream.

type csvFileReader struct{}

func init() { Register(&csvFileReader{}) }

func (r *csvFileReader) Spec() Spec {
	return Spec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (r *csvFileReader) Discover(ctx context.Context, cfg Config) ([]string, error) {
	f, reader, err := openCSV(cfg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read first row: %w", err)
	}
	if hasHeader(cfg) {
		return first, nil
	}
	return syntheticHeaders(len(first)), nil
}

func (r *csvFileReader) Rows(ctx context.Context, cfg Config) (<-chan pipeline.SourceRow, <-chan error) {
	out := make(chan pipeline.SourceRow, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, reader, err := openCSV(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer f.Close()

		var headers []string
		if hasHeader(cfg) {
			headers, err = reader.Read()
			if err != nil {
				errCh <- fmt.Errorf("read header: %w", err)
				return
			}
		}

		rowNum := 0
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			rowNum++

			var sr pipeline.SourceRow
			switch {
			case err != nil:
				// Broken quoting or similar — the row is unreadable,
				// the stream continues.
				sr = pipeline.SourceRow{
					Row: pipeline.RawRow{Num: rowNum},
					Err: fmt.Errorf("malformed line: %w", err),
				}
			case headers != nil && len(record) < len(headers):
				// A line carrying fewer cells than the header has lost
				// column alignment; values cannot be attributed to
				// columns safely.
				sr = pipeline.SourceRow{
					Row: pipeline.RawRow{Num: rowNum},
					Err: fmt.Errorf("short line: %d of %d columns", len(record), len(headers)),
				}
			default:
				if headers == nil {
					headers = syntheticHeaders(len(record))
				}
				sr = pipeline.SourceRow{Row: buildRow(rowNum, headers, record)}
			}

			select {
			case out <- sr:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

func openCSV(cfg Config) (*os.File, *csv.Reader, error) {
	filePath, _ := cfg["filePath"].(string)
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	reader := csv.NewReader(f)
	if delim, ok := cfg["delimiter"].(string); ok && len(delim) > 0 {
		reader.Comma = rune(delim[0])
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = false
	// Ragged rows are handled per row, not as parse errors.
	reader.FieldsPerRecord = -1

	return f, reader, nil
}

func hasHeader(cfg Config) bool {
	if h, ok := cfg["hasHeader"].(string); ok {
		return strings.ToLower(h) != "false"
	}
	if h, ok := cfg["hasHeader"].(bool); ok {
		return h
	}
	return true
}

func syntheticHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers
}

// buildRow maps cells to header labels. Extra cells beyond the header
// get synthetic labels so no value silently disappears.
func buildRow(num int, headers, record []string) pipeline.RawRow {
	values := make(map[string]any, len(record))
	for i, cell := range record {
		label := fmt.Sprintf("col_%d", i+1)
		if i < len(headers) {
			label = headers[i]
		}
		values[label] = inferValue(cell)
	}
	return pipeline.RawRow{Num: num, Values: values}
}
