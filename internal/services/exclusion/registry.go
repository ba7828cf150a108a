// Package exclusion manages the time ranges during which a camera's records for one
// detector model are hidden from the read APIs.
package exclusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/intervals"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// ErrDuplicate is returned by Add when an identical range is already stored.
var ErrDuplicate = errors.New("exclusion range already exists")

// Filter narrows a lookup. Zero values match everything.
type Filter struct {
	Model     models.DetectorModel
	CameraRef string
	CameraID  uint
}

// CameraExclusions holds the merged intervals of one camera and model.
type CameraExclusions struct {
	CameraID           uint                           `json:"camera_id"`
	Model              models.DetectorModel           `json:"model"`
	ExclusionIntervals []intervals.Interval[time.Time] `json:"exclusion_intervals"`
}

// Registry stores exclusion ranges and serves them merged.
type Registry struct {
	repo repository.Repository
}

func NewRegistry(repo repository.Repository) *Registry {
	return &Registry{repo: repo}
}

// ExclusionIntervals returns one entry per (camera, model) pair that has ranges, ordered by
// camera id then model, each with its ranges merged.
func (r *Registry) ExclusionIntervals(ctx context.Context, f Filter) ([]CameraExclusions, error) {
	ranges, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}

	out := []CameraExclusions{}
	for start := 0; start < len(ranges); {
		end := start + 1
		for end < len(ranges) && ranges[end].CameraID == ranges[start].CameraID && ranges[end].Model == ranges[start].Model {
			end++
		}
		out = append(out, CameraExclusions{
			CameraID:           ranges[start].CameraID,
			Model:              ranges[start].Model,
			ExclusionIntervals: merge(ranges[start:end]),
		})
		start = end
	}
	return out, nil
}

// CameraIntervals returns the merged intervals of a single camera and model. The result
// is empty, not nil, when nothing is excluded.
func (r *Registry) CameraIntervals(ctx context.Context, cameraID uint, model models.DetectorModel) ([]intervals.Interval[time.Time], error) {
	if !model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedModel, model)
	}
	ranges, err := r.repo.GetExclusionRanges(ctx, model, cameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion ranges: %w", err)
	}
	if len(ranges) == 0 {
		return []intervals.Interval[time.Time]{}, nil
	}
	return merge(ranges), nil
}

// List returns the stored ranges unmerged, ordered by camera, model, from and to.
func (r *Registry) List(ctx context.Context, f Filter) ([]models.ExclusionRange, error) {
	if f.Model != "" && !f.Model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedModel, f.Model)
	}

	cameraID := f.CameraID
	if f.CameraRef != "" {
		camera, err := r.repo.GetCameraByRef(ctx, f.CameraRef)
		if err != nil {
			return nil, fmt.Errorf("failed to look up camera %q: %w", f.CameraRef, err)
		}
		if camera == nil || (cameraID != 0 && camera.ID != cameraID) {
			return []models.ExclusionRange{}, nil
		}
		cameraID = camera.ID
	}

	ranges, err := r.repo.GetExclusionRanges(ctx, f.Model, cameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion ranges: %w", err)
	}
	return ranges, nil
}

// Add validates and stores rng. Validation failures, including an unknown camera, are
// returned as *models.ValidationError.
func (r *Registry) Add(ctx context.Context, rng *models.ExclusionRange) error {
	verr := &models.ValidationError{}
	if err := rng.Validate(); err != nil {
		errors.As(err, &verr)
	}
	if rng.CameraID != 0 {
		camera, err := r.repo.GetCameraByID(ctx, rng.CameraID)
		if err != nil {
			return fmt.Errorf("failed to look up camera %d: %w", rng.CameraID, err)
		}
		if camera == nil {
			verr.Add("camera_id", fmt.Sprintf("camera %d does not exist.", rng.CameraID))
		}
	}
	if err := verr.Err(); err != nil {
		return err
	}

	existing, err := r.repo.FindExclusionRange(ctx, rng.CameraID, rng.Model, rng.From, rng.To)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate range: %w", err)
	}
	if existing != nil {
		return ErrDuplicate
	}

	if err := r.repo.SaveExclusionRange(ctx, rng); err != nil {
		return fmt.Errorf("failed to save exclusion range: %w", err)
	}
	log.WithFields(log.Fields{
		"camera_id": rng.CameraID,
		"model":     rng.Model,
		"from":      rng.From,
		"to":        rng.To,
	}).Info("Exclusion range added")
	return nil
}

// Delete removes the range with id. models.ErrNotFound is returned if there is none.
func (r *Registry) Delete(ctx context.Context, id uint) error {
	if err := r.repo.DeleteExclusionRange(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete exclusion range %d: %w", id, err)
	}
	log.WithField("id", id).Info("Exclusion range deleted")
	return nil
}

func merge(ranges []models.ExclusionRange) []intervals.Interval[time.Time] {
	in := make([]intervals.Interval[time.Time], len(ranges))
	for i, rng := range ranges {
		in[i] = intervals.New(rng.From.UTC(), rng.To.UTC())
	}
	return intervals.MergeTimes(in)
}
