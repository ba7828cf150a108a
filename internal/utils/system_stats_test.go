package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", FormatBytes(1024*1024*1024))
}

func TestGetSystemStatsWithoutPool(t *testing.T) {
	stats := GetSystemStats(nil)
	assert.Positive(t, stats.NumCPU)
	assert.Positive(t, stats.GoRoutines)
	assert.Zero(t, stats.WorkerCount)
	assert.NotEmpty(t, stats.MemoryHuman)
}
