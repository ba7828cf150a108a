package ingest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

const tf2Header = "image_proc,image_capt,camera_ref,model_name,car,person,bicycle,motorcycle,bus,truck,warnings"

func csvLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, entry, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entry)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func setupIngester(t *testing.T) (*Ingester, *repository.SQLiteRepository) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(conn)
	return NewIngester(repo, cameras.NewService(repo), 2), repo
}
