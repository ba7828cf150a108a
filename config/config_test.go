package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CCTV_SERVER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("CCTV_LOG_FILE", filepath.Join(dir, "logs", "cctv.log"))
	t.Setenv("CCTV_DB_FILE", filepath.Join(dir, "db", "cctv.db"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "123", cfg.Server.UploadPIN)
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9100
  data_dir: ` + filepath.Join(dir, "data") + `
log:
  file: ` + filepath.Join(dir, "cctv.log") + `
db:
  file: ` + filepath.Join(dir, "cctv.db") + `
ingest:
  batch_size: 250
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("CCTV_SERVER_UPLOAD_PIN", "9876")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Ingest.BatchSize)
	assert.Equal(t, "9876", cfg.Server.UploadPIN)
}
