package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMigratesAndSeedsDefaultGroup(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)

	var group models.CameraGroup
	require.NoError(t, conn.First(&group, models.DefaultGroupID).Error)
	assert.Equal(t, models.DefaultGroupName, group.Name)

	// A second migration must not duplicate the seed.
	require.NoError(t, Migrate(conn))
	var count int64
	require.NoError(t, conn.Model(&models.CameraGroup{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCameraDeletionIsRestricted(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)

	cam := models.Camera{Ref: "Cam 01"}
	require.NoError(t, conn.Create(&cam).Error)
	assert.Equal(t, "cam01", cam.Ref)
	assert.False(t, cam.IsComplete)

	rec := models.RecordValues{CameraID: cam.ID, Timestamp: time.Now(), Counts: map[string]int{"cars": 1}}.TF2()
	require.NoError(t, conn.Create(&rec).Error)

	assert.Error(t, conn.Delete(&cam).Error)
}

func TestCameraCompletenessRecomputedOnSave(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)

	cam := models.Camera{Ref: "cam02"}
	require.NoError(t, conn.Create(&cam).Error)
	assert.False(t, cam.IsComplete)

	label, lon, lat := "George Square", -4.25, 55.86
	cam.Label, cam.Longitude, cam.Latitude = &label, &lon, &lat
	require.NoError(t, conn.Save(&cam).Error)

	var stored models.Camera
	require.NoError(t, conn.First(&stored, cam.ID).Error)
	assert.True(t, stored.IsComplete)

	cam.Latitude = nil
	require.NoError(t, conn.Save(&cam).Error)
	require.NoError(t, conn.First(&stored, cam.ID).Error)
	assert.False(t, stored.IsComplete)
}
