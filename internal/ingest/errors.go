package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedArchive = errors.New("file is neither a zip nor a gzip archive")
	ErrMissingReportEntry = errors.New("zip archive has no report.csv entry")
	ErrUnknownDialect     = errors.New("could not determine delimiter")
	ErrMissingModelColumn = errors.New("report has no model_name column")
	ErrEmptyReport        = errors.New("report has no data rows")
	ErrMalformedCSV       = errors.New("malformed csv")
	ErrInvalidRow         = errors.New("invalid report row")
	ErrPoolClosed         = errors.New("ingestion pool is shut down")
)

// RowError reports the first row that failed validation.
type RowError struct {
	Line   int
	Field  string
	Value  string
	Reason string
	Raw    map[string]*string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: field %q: %s", e.Line, e.Field, e.Reason)
}

func (e *RowError) Unwrap() error { return ErrInvalidRow }

// RawRow renders the offending row with "None" for absent values, columns sorted.
func (e *RowError) RawRow() map[string]string {
	out := make(map[string]string, len(e.Raw))
	for k, v := range e.Raw {
		if v == nil {
			out[k] = noneLiteral
			continue
		}
		out[k] = *v
	}
	return out
}
