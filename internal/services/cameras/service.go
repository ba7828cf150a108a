package cameras

import (
	"context"
	"fmt"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Hook runs after a camera has been created, on the same repository (and transaction).
type Hook func(ctx context.Context, repo repository.Repository, camera *models.Camera) error

// Service is the camera-creation use case. Every creation goes through Create so that the
// post-create hooks run exactly once per new camera.
type Service struct {
	repo     repository.Repository
	onCreate []Hook
}

// NewService creates the service. Without hooks, new cameras join the default group.
func NewService(repo repository.Repository, hooks ...Hook) *Service {
	if len(hooks) == 0 {
		hooks = []Hook{AddToDefaultGroup}
	}
	return &Service{repo: repo, onCreate: hooks}
}

// With returns a copy of the service bound to repo, typically a transaction.
func (s *Service) With(repo repository.Repository) *Service {
	return &Service{repo: repo, onCreate: s.onCreate}
}

// Create saves a new camera and runs the post-create hooks.
func (s *Service) Create(ctx context.Context, camera *models.Camera) error {
	if camera.ID != 0 {
		return fmt.Errorf("camera %d already exists", camera.ID)
	}
	if err := s.repo.SaveCamera(ctx, camera); err != nil {
		return fmt.Errorf("failed to create camera %q: %w", camera.Ref, err)
	}
	for _, hook := range s.onCreate {
		if err := hook(ctx, s.repo, camera); err != nil {
			return fmt.Errorf("post-create hook for camera %q failed: %w", camera.Ref, err)
		}
	}
	return nil
}

// GetOrCreate returns the camera with ref, creating an incomplete placeholder when it
// does not exist yet. created reports whether a camera was created.
func (s *Service) GetOrCreate(ctx context.Context, ref string) (camera *models.Camera, created bool, err error) {
	normalized := models.NormalizeCameraRef(ref)
	camera, err = s.repo.GetCameraByRef(ctx, normalized)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up camera %q: %w", normalized, err)
	}
	if camera != nil {
		return camera, false, nil
	}

	camera = &models.Camera{Ref: normalized}
	if err := s.Create(ctx, camera); err != nil {
		return nil, false, err
	}
	log.WithFields(log.Fields{
		"camera_ref": camera.Ref,
		"camera_pk":  camera.ID,
	}).Warn("Camera not found, created an incomplete placeholder camera")
	return camera, true, nil
}

// AddToDefaultGroup is the default post-create hook.
func AddToDefaultGroup(ctx context.Context, repo repository.Repository, camera *models.Camera) error {
	return repo.AddCameraToGroup(ctx, camera.ID, models.DefaultGroupID)
}
