package cameras

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)
	return repository.NewSQLiteRepository(conn)
}

func TestGetOrCreateCreatesIncompleteCameraInDefaultGroup(t *testing.T) {
	repo := setup(t)
	svc := NewService(repo)
	ctx := context.Background()

	cam, created, err := svc.GetOrCreate(ctx, " Cam 07 ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cam07", cam.Ref)
	assert.False(t, cam.IsComplete)

	group, err := repo.GetGroupByID(ctx, models.DefaultGroupID)
	require.NoError(t, err)
	require.Len(t, group.Cameras, 1)
	assert.Equal(t, cam.ID, group.Cameras[0].ID)

	again, created, err := svc.GetOrCreate(ctx, "CAM07")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cam.ID, again.ID)
}

func TestCreateRunsCustomHooksOnce(t *testing.T) {
	repo := setup(t)
	calls := 0
	svc := NewService(repo, func(ctx context.Context, _ repository.Repository, _ *models.Camera) error {
		calls++
		return nil
	})

	_, _, err := svc.GetOrCreate(context.Background(), "cam01")
	require.NoError(t, err)
	_, _, err = svc.GetOrCreate(context.Background(), "cam01")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHookFailureRollsBackInsideTransaction(t *testing.T) {
	repo := setup(t)
	boom := errors.New("boom")
	svc := NewService(repo, func(context.Context, repository.Repository, *models.Camera) error { return boom })

	err := repo.Transaction(context.Background(), func(tx repository.Repository) error {
		_, _, err := svc.With(tx).GetOrCreate(context.Background(), "cam09")
		return err
	})
	require.ErrorIs(t, err, boom)

	cam, err := repo.GetCameraByRef(context.Background(), "cam09")
	require.NoError(t, err)
	assert.Nil(t, cam)
}
