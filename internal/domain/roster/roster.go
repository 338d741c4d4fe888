// Package roster parses student roster uploads.
package roster

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/okian/rollcall/internal/domain/model"
)

// Supported upload extensions.
const (
	ExtText = ".txt"
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
)

const utf8BOM = "\uFEFF"

// Supported reports whether filename has an importable extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ExtText, ExtCSV, ExtXLSX:
		return true
	}
	return false
}

// Parse reads a roster upload. The format is chosen by the file extension:
// .txt holds one name per line; .csv and .xlsx (first sheet) hold the name
// in the first column below a header row. Names are trimmed and blank
// entries skipped. Every student starts at count 0.
func Parse(filename string, r io.Reader) ([]model.Student, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrMissingFilename
	}

	var (
		names []string
		err   error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ExtText:
		names, err = parseText(r)
	case ExtCSV:
		names, err = parseCSV(r)
	case ExtXLSX:
		names, err = parseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrEmptyFile
	}

	students := make([]model.Student, len(names))
	for i, n := range names {
		students[i] = model.Student{Name: n}
	}
	return students, nil
}

func parseText(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
			first = false
		}
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read text roster: %w", err)
	}
	return names, nil
}

func parseCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var names []string
	header := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %w", ErrMalformedFile, err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) == 0 {
			continue
		}
		if name := strings.TrimSpace(rec[0]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// parseXLSX reads the first column of the first sheet.
func parseXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if f != nil {
		defer func() { _ = f.Close() }()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %w", ErrMalformedFile, err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %w", ErrMalformedFile, err)
	}

	var names []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if name := strings.TrimSpace(row[0]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
