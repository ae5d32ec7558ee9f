// Package ingest reads measurement CSV files back into telemetry rows and
// digital twin input samples.
package ingest

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Parser reads rows of type T from a CSV source.
type Parser[T any] interface {
	Parse(r io.Reader) ([]T, error)
}

// Open opens path for reading, decompressing it when it ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip %s: %w", path, err)
	}
	return gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// columns maps header names to their positions.
type columns map[string]int

func readHeader(cr *csv.Reader) (columns, error) {
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols, nil
}

// find returns the position of the first of names present in the header.
func (c columns) find(names ...string) (int, error) {
	for _, n := range names {
		if i, ok := c[n]; ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("missing column %q", names[0])
}

func (c columns) require(names ...[]string) ([]int, error) {
	idx := make([]int, len(names))
	for i, alts := range names {
		var err error
		if idx[i], err = c.find(alts...); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// eachRecord calls fn for every data row. lineNum counts the header as line 1.
func eachRecord(cr *csv.Reader, fn func(record []string, lineNum int) error) error {
	lineNum := 1
	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}
		if err := fn(record, lineNum); err != nil {
			return err
		}
	}
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseFloat(record []string, i, lineNum int, name string) (float64, error) {
	s := field(record, i)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: parsing %s %q: %w", lineNum, name, s, err)
	}
	return v, nil
}

func parseBool(record []string, i, lineNum int, name string) (bool, error) {
	s := field(record, i)
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("line %d: parsing %s %q: %w", lineNum, name, s, err)
	}
	return v, nil
}

func parseTime(record []string, i, lineNum int) (time.Time, error) {
	s := field(record, i)
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Try alternate formats
		ts, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("line %d: parsing timestamp %q: %w", lineNum, s, err)
		}
	}
	return ts.UTC(), nil
}
