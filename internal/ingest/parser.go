package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Report is a fully validated report file.
type Report struct {
	Schema    Schema
	Delimiter rune
	Rows      []Row
}

// Parse sniffs the CSV dialect, selects the schema from the first data row's model_name
// and validates every row. It stops at the first invalid row.
func Parse(r io.Reader) (*Report, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	sample, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if len(bytes.TrimSpace(sample)) == 0 {
		return nil, ErrEmptyReport
	}

	delim, err := SniffDelimiter(sample)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyReport
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	if !containsColumn(header, ColumnModelName) {
		return nil, ErrMissingModelColumn
	}

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyReport
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}

	firstRaw := rawRow(header, first)
	modelName := ""
	if v := firstRaw[ColumnModelName]; v != nil {
		modelName = *v
	}
	schema, err := SchemaFor(modelName)
	if err != nil {
		return nil, err
	}

	report := &Report{Schema: schema, Delimiter: delim}

	line, _ := cr.FieldPos(0)
	row, err := schema.Validate(line, firstRaw)
	if err != nil {
		return nil, err
	}
	report.Rows = append(report.Rows, *row)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}
		if isBlank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		row, err := schema.Validate(line, rawRow(header, record))
		if err != nil {
			return nil, err
		}
		report.Rows = append(report.Rows, *row)
	}

	return report, nil
}

// rawRow pairs header names with values. "None" and missing trailing cells become nil;
// an empty cell stays an empty string and fails validation.
func rawRow(header, record []string) map[string]*string {
	raw := make(map[string]*string, len(header))
	for i, name := range header {
		if i >= len(record) {
			raw[name] = nil
			continue
		}
		v := record[i]
		if strings.TrimSpace(v) == noneLiteral {
			raw[name] = nil
			continue
		}
		raw[name] = &v
	}
	return raw
}

func containsColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
