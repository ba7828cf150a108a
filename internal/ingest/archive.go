package ingest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ReportEntryName is the CSV entry read from zip uploads.
const ReportEntryName = "report.csv"

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte("\x1f\x8b")
)

// ArchiveKind is the container format detected from the leading bytes.
type ArchiveKind string

const (
	ArchiveZip     ArchiveKind = "zip"
	ArchiveGzip    ArchiveKind = "gzip"
	ArchiveUnknown ArchiveKind = "unknown"
)

// DetectArchive sniffs the magic number of data.
func DetectArchive(data []byte) ArchiveKind {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return ArchiveZip
	case bytes.HasPrefix(data, gzipMagic):
		return ArchiveGzip
	default:
		return ArchiveUnknown
	}
}

// OpenReport returns the decompressed CSV stream held in data.
func OpenReport(data []byte) (io.ReadCloser, error) {
	switch DetectArchive(data) {
	case ArchiveZip:
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to read zip archive: %w", err)
		}
		for _, f := range zr.File {
			if f.Name == ReportEntryName {
				return f.Open()
			}
		}
		return nil, ErrMissingReportEntry
	case ArchiveGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read gzip stream: %w", err)
		}
		return gr, nil
	default:
		return nil, ErrUnsupportedArchive
	}
}
