package readers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"scrub/internal/pipeline"
)

// ── JSON Lines Reader ───────────────────────────────────────
// Streams rows from a file with one JSON object per line. A line that
// is not a JSON object is a row-level structural failure, never a
// stream abort.

type jsonlFileReader struct{}

func init() { Register(&jsonlFileReader{}) }

func (r *jsonlFileReader) Spec() Spec {
	return Spec{
		Type:  "jsonl_file",
		Label: "JSON Lines File",
		ConfigFields: []ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the .jsonl file"},
		},
	}
}

func (r *jsonlFileReader) Discover(ctx context.Context, cfg Config) ([]string, error) {
	filePath, _ := cfg["filePath"].(string)
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue // sample the first readable object
		}
		cols := make([]string, 0, len(obj))
		for k := range obj {
			cols = append(cols, k)
		}
		sort.Strings(cols)
		return cols, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return nil, fmt.Errorf("no readable object in %s", filePath)
}

func (r *jsonlFileReader) Rows(ctx context.Context, cfg Config) (<-chan pipeline.SourceRow, <-chan error) {
	out := make(chan pipeline.SourceRow, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		filePath, _ := cfg["filePath"].(string)
		if filePath == "" {
			errCh <- fmt.Errorf("filePath is required")
			return
		}
		f, err := os.Open(filePath)
		if err != nil {
			errCh <- fmt.Errorf("open file: %w", err)
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		rowNum := 0
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			rowNum++

			var sr pipeline.SourceRow
			var obj map[string]any
			if err := json.Unmarshal([]byte(line), &obj); err != nil {
				sr = pipeline.SourceRow{
					Row: pipeline.RawRow{Num: rowNum},
					Err: fmt.Errorf("not a JSON object: %w", err),
				}
			} else {
				sr = pipeline.SourceRow{Row: pipeline.RawRow{Num: rowNum, Values: obj}}
			}

			select {
			case out <- sr:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("scan: %w", err)
		}
	}()

	return out, errCh
}
