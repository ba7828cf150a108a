// Package sync keeps cameras and exclusion ranges in step with operator-maintained
// spreadsheets.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

var (
	cameraColumns    = []string{"camera_id", "label", "longitude", "latitude"}
	exclusionColumns = []string{"camera_id", "model", "from_datetime", "to_datetime", "delete_mark"}
)

// CameraSyncStats is the outcome of SyncCameras.
type CameraSyncStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Exported  int `json:"exported"`
}

// ExclusionSyncStats is the outcome of SyncExclusions.
type ExclusionSyncStats struct {
	Created  int `json:"created"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	NotFound int `json:"not_found"`
	Exported int `json:"exported"`
}

// Service imports spreadsheets into the database and exports the result back.
type Service struct {
	repo    repository.Repository
	cameras *cameras.Service
}

func NewService(repo repository.Repository, cams *cameras.Service) *Service {
	return &Service{repo: repo, cameras: cams}
}

// SyncCameras creates cameras missing from the database, updates the label and
// coordinates of existing ones and rewrites path with every camera. A missing file is
// only exported.
func (s *Service) SyncCameras(ctx context.Context, path string) (*CameraSyncStats, error) {
	stats := &CameraSyncStats{}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if fileExists(path) {
		rows, err := readSheet(path, cameraColumns)
		if err != nil {
			return nil, err
		}
		err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
			cams := s.cameras.With(tx)
			for _, row := range rows {
				if err := syncCamera(ctx, tx, cams, row, stats); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"created":   stats.Created,
			"updated":   stats.Updated,
			"unchanged": stats.Unchanged,
			"skipped":   stats.Skipped,
		}).Info("Camera sync complete")
	} else {
		log.Warnf("Spreadsheet not found at %s, exporting current cameras", path)
	}

	all, err := s.repo.GetCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cameras: %w", err)
	}
	out := make([][]interface{}, len(all))
	for i, cam := range all {
		out[i] = []interface{}{cam.Ref, deref(cam.Label), derefFloat(cam.Longitude), derefFloat(cam.Latitude)}
	}
	if err := writeSheet(path, "Cameras", cameraColumns, out); err != nil {
		return nil, err
	}
	stats.Exported = len(out)
	return stats, nil
}

func syncCamera(ctx context.Context, tx repository.Repository, cams *cameras.Service, row sheetRow, stats *CameraSyncStats) error {
	ref := models.NormalizeCameraRef(row.get("camera_id"))
	if ref == "" {
		stats.Skipped++
		return nil
	}
	lon, errLon := parseOptionalFloat(row.get("longitude"))
	lat, errLat := parseOptionalFloat(row.get("latitude"))
	if errLon != nil || errLat != nil {
		log.WithField("camera_ref", ref).Warn("Skipping camera with invalid coordinates")
		stats.Skipped++
		return nil
	}
	label := optionalString(row.get("label"))

	existing, err := tx.GetCameraByRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to look up camera %q: %w", ref, err)
	}
	if existing == nil {
		cam := &models.Camera{Ref: ref, Label: label, Longitude: lon, Latitude: lat}
		if err := cams.Create(ctx, cam); err != nil {
			return err
		}
		stats.Created++
		return nil
	}

	if equalString(existing.Label, label) && equalFloat(existing.Longitude, lon) && equalFloat(existing.Latitude, lat) {
		stats.Unchanged++
		return nil
	}
	existing.Label, existing.Longitude, existing.Latitude = label, lon, lat
	if err := tx.SaveCamera(ctx, existing); err != nil {
		return fmt.Errorf("failed to update camera %q: %w", ref, err)
	}
	stats.Updated++
	return nil
}

// SyncExclusions deletes the ranges whose delete_mark is yes, true or 1, creates the
// other rows unless they already exist and rewrites path with every stored range and an
// empty delete_mark column. Rows that cannot be applied are counted and skipped.
func (s *Service) SyncExclusions(ctx context.Context, path string) (*ExclusionSyncStats, error) {
	stats := &ExclusionSyncStats{}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if fileExists(path) {
		rows, err := readSheet(path, exclusionColumns)
		if err != nil {
			return nil, err
		}
		err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
			reg := exclusion.NewRegistry(tx)
			for _, row := range rows {
				if err := syncExclusion(ctx, tx, reg, row, stats); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"created":   stats.Created,
			"deleted":   stats.Deleted,
			"skipped":   stats.Skipped,
			"not_found": stats.NotFound,
		}).Info("Exclusion range sync complete")
	} else {
		log.Warnf("Spreadsheet not found at %s, exporting current exclusion ranges", path)
	}

	ranges, err := s.repo.GetExclusionRanges(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion ranges: %w", err)
	}
	all, err := s.repo.GetCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cameras: %w", err)
	}
	refs := make(map[uint]string, len(all))
	for _, cam := range all {
		refs[cam.ID] = cam.Ref
	}

	out := make([][]interface{}, len(ranges))
	for i, rng := range ranges {
		out[i] = []interface{}{
			refs[rng.CameraID],
			string(rng.Model),
			rng.From.UTC().Format(time.RFC3339),
			rng.To.UTC().Format(time.RFC3339),
			"",
		}
	}
	if err := writeSheet(path, "record_filter", exclusionColumns, out); err != nil {
		return nil, err
	}
	stats.Exported = len(out)
	return stats, nil
}

func syncExclusion(ctx context.Context, tx repository.Repository, reg *exclusion.Registry, row sheetRow, stats *ExclusionSyncStats) error {
	ref := models.NormalizeCameraRef(row.get("camera_id"))
	model := models.DetectorModel(strings.ToLower(row.get("model")))
	fromStr, toStr := row.get("from_datetime"), row.get("to_datetime")
	logger := log.WithFields(log.Fields{"camera_ref": ref, "model": model, "from": fromStr, "to": toStr})

	if ref == "" || model == "" || fromStr == "" || toStr == "" {
		logger.Warn("Skipping exclusion row with missing required fields")
		stats.Skipped++
		return nil
	}
	from, errFrom := timezone.Parse(fromStr)
	to, errTo := timezone.Parse(toStr)
	if errFrom != nil || errTo != nil {
		logger.Warn("Skipping exclusion row with invalid datetime")
		stats.Skipped++
		return nil
	}

	camera, err := tx.GetCameraByRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to look up camera %q: %w", ref, err)
	}
	if camera == nil {
		logger.Warn("Skipping exclusion row for unknown camera")
		stats.Skipped++
		return nil
	}

	if isDeleteMark(row.get("delete_mark")) {
		existing, err := tx.FindExclusionRange(ctx, camera.ID, model, from, to)
		if err != nil {
			return fmt.Errorf("failed to look up exclusion range: %w", err)
		}
		if existing == nil {
			logger.Info("No exclusion range matches the row marked for deletion")
			stats.NotFound++
			return nil
		}
		if err := reg.Delete(ctx, existing.ID); err != nil {
			return err
		}
		stats.Deleted++
		return nil
	}

	err = reg.Add(ctx, &models.ExclusionRange{CameraID: camera.ID, Model: model, From: from, To: to})
	var verr *models.ValidationError
	switch {
	case err == nil:
		stats.Created++
	case errors.Is(err, exclusion.ErrDuplicate):
		stats.Skipped++
	case errors.As(err, &verr):
		logger.WithError(err).Warn("Skipping invalid exclusion row")
		stats.Skipped++
	default:
		return err
	}
	return nil
}

func isDeleteMark(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		return true
	}
	return false
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) interface{} {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) interface{} {
	if f == nil {
		return ""
	}
	return *f
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
