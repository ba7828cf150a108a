package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the database operations of the ingestion and read paths.
type Repository interface {
	// Transaction runs fn against a repository bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	// DB exposes the underlying handle for query composition.
	DB() *gorm.DB

	// Camera methods
	GetCameraByID(ctx context.Context, id uint) (*models.Camera, error)
	GetCameraByRef(ctx context.Context, ref string) (*models.Camera, error)
	GetCameras(ctx context.Context) ([]models.Camera, error)
	GetCamerasWithRecords(ctx context.Context, onlyComplete bool) ([]models.Camera, error)
	SaveCamera(ctx context.Context, camera *models.Camera) error
	IncompleteCameraIDs(ctx context.Context) ([]uint, error)

	// Group methods
	GetGroups(ctx context.Context, includeDefault bool) ([]models.CameraGroup, error)
	GetGroupByID(ctx context.Context, id uint) (*models.CameraGroup, error)
	AddCameraToGroup(ctx context.Context, cameraID, groupID uint) error

	// Record methods
	UpsertRecords(ctx context.Context, model models.DetectorModel, values []models.RecordValues, overwrite bool, batchSize int) (int64, error)
	CountRecords(ctx context.Context, model models.DetectorModel) (int64, error)
	LatestRecordTime(ctx context.Context) (*time.Time, error)

	// Exclusion range methods
	GetExclusionRanges(ctx context.Context, model models.DetectorModel, cameraID uint) ([]models.ExclusionRange, error)
	GetExclusionRangeByID(ctx context.Context, id uint) (*models.ExclusionRange, error)
	FindExclusionRange(ctx context.Context, cameraID uint, model models.DetectorModel, from, to time.Time) (*models.ExclusionRange, error)
	SaveExclusionRange(ctx context.Context, rng *models.ExclusionRange) error
	DeleteExclusionRange(ctx context.Context, id uint) error

	// Upload audit methods
	SaveUpload(ctx context.Context, upload *models.ReportUpload) error
	GetUploads(ctx context.Context, limit int) ([]models.ReportUpload, error)
	DeleteUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on GORM with the SQLite dialector.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) DB() *gorm.DB { return r.db }

func (r *SQLiteRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLiteRepository{db: tx})
	})
}

// Camera methods

// GetCameraByID returns nil, nil when no camera has the id.
func (r *SQLiteRepository) GetCameraByID(ctx context.Context, id uint) (*models.Camera, error) {
	var camera models.Camera
	result := r.db.WithContext(ctx).First(&camera, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &camera, nil
}

// GetCameraByRef looks a camera up by its normalized reference. Returns nil, nil if absent.
func (r *SQLiteRepository) GetCameraByRef(ctx context.Context, ref string) (*models.Camera, error) {
	var camera models.Camera
	result := r.db.WithContext(ctx).Where("camera_ref = ?", models.NormalizeCameraRef(ref)).First(&camera)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &camera, nil
}

func (r *SQLiteRepository) GetCameras(ctx context.Context) ([]models.Camera, error) {
	var cameras []models.Camera
	err := r.db.WithContext(ctx).Order("camera_ref").Find(&cameras).Error
	return cameras, err
}

// GetCamerasWithRecords returns cameras referenced by at least one detection record.
func (r *SQLiteRepository) GetCamerasWithRecords(ctx context.Context, onlyComplete bool) ([]models.Camera, error) {
	db := r.db.WithContext(ctx)
	q := db.Model(&models.Camera{}).Where(
		db.Where("id IN (?)", db.Model(&models.TF1Record{}).Distinct("camera_id")).
			Or("id IN (?)", db.Model(&models.TF2Record{}).Distinct("camera_id")).
			Or("id IN (?)", db.Model(&models.YOLORecord{}).Distinct("camera_id")),
	)
	if onlyComplete {
		q = q.Where("is_complete = ?", true)
	}

	var cameras []models.Camera
	err := q.Order("id").Find(&cameras).Error
	return cameras, err
}

func (r *SQLiteRepository) SaveCamera(ctx context.Context, camera *models.Camera) error {
	return r.db.WithContext(ctx).Save(camera).Error
}

// IncompleteCameraIDs lists the ids of all cameras missing a label or coordinates.
func (r *SQLiteRepository) IncompleteCameraIDs(ctx context.Context) ([]uint, error) {
	ids := []uint{}
	err := r.db.WithContext(ctx).Model(&models.Camera{}).
		Where("is_complete = ?", false).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// Group methods

func (r *SQLiteRepository) GetGroups(ctx context.Context, includeDefault bool) ([]models.CameraGroup, error) {
	q := r.db.WithContext(ctx).Preload("Cameras")
	if !includeDefault {
		q = q.Where("id <> ?", models.DefaultGroupID)
	}
	var groups []models.CameraGroup
	err := q.Order("id").Find(&groups).Error
	return groups, err
}

func (r *SQLiteRepository) GetGroupByID(ctx context.Context, id uint) (*models.CameraGroup, error) {
	var group models.CameraGroup
	result := r.db.WithContext(ctx).Preload("Cameras").First(&group, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &group, nil
}

func (r *SQLiteRepository) AddCameraToGroup(ctx context.Context, cameraID, groupID uint) error {
	err := r.db.WithContext(ctx).Table("camera_group_members").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]interface{}{"camera_group_id": groupID, "camera_id": cameraID}).Error
	if err != nil {
		return fmt.Errorf("failed to add camera %d to group %d: %w", cameraID, groupID, err)
	}
	return nil
}

// Record methods

// UpsertRecords bulk inserts values into the model's table. Rows whose (camera, timestamp)
// already exists are skipped, or have their counts and health flag replaced when
// overwrite is set. The result is the number of rows inserted or updated.
func (r *SQLiteRepository) UpsertRecords(ctx context.Context, model models.DetectorModel, values []models.RecordValues, overwrite bool, batchSize int) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	spec := models.SpecFor(model)

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "camera_id"}, {Name: "timestamp"}},
	}
	if overwrite {
		conflict.DoUpdates = clause.AssignmentColumns(append(spec.CountColumns, "camera_ok"))
	} else {
		conflict.DoNothing = true
	}
	q := r.db.WithContext(ctx).Clauses(conflict)

	switch model {
	case models.ModelTF1:
		return createInBatches(q, convert(values, models.RecordValues.TF1), batchSize)
	case models.ModelTF2:
		return createInBatches(q, convert(values, models.RecordValues.TF2), batchSize)
	case models.ModelYOLO:
		return createInBatches(q, convert(values, models.RecordValues.YOLO), batchSize)
	}
	panic(fmt.Sprintf("repository: unhandled detector model %q", model))
}

func convert[T any](values []models.RecordValues, fn func(models.RecordValues) T) []T {
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = fn(v)
	}
	return out
}

func createInBatches[T any](q *gorm.DB, records []T, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	result := q.CreateInBatches(&records, batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("bulk insert failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *SQLiteRepository) CountRecords(ctx context.Context, model models.DetectorModel) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table(models.SpecFor(model).Table).Count(&n).Error
	return n, err
}

// LatestRecordTime returns the newest record timestamp over all models, nil when empty.
func (r *SQLiteRepository) LatestRecordTime(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	for _, m := range models.SupportedModels {
		var ts []time.Time
		err := r.db.WithContext(ctx).Table(models.SpecFor(m).Table).
			Order("timestamp DESC").Limit(1).Pluck("timestamp", &ts).Error
		if err != nil {
			return nil, err
		}
		if len(ts) == 1 && (latest == nil || ts[0].After(*latest)) {
			t := ts[0]
			latest = &t
		}
	}
	return latest, nil
}

// Exclusion range methods

// GetExclusionRanges filters by model and camera; zero values mean any.
func (r *SQLiteRepository) GetExclusionRanges(ctx context.Context, model models.DetectorModel, cameraID uint) ([]models.ExclusionRange, error) {
	q := r.db.WithContext(ctx)
	if model != "" {
		q = q.Where("model = ?", model)
	}
	if cameraID != 0 {
		q = q.Where("camera_id = ?", cameraID)
	}
	var ranges []models.ExclusionRange
	err := q.Order("camera_id, model, from_datetime, to_datetime").Find(&ranges).Error
	return ranges, err
}

func (r *SQLiteRepository) GetExclusionRangeByID(ctx context.Context, id uint) (*models.ExclusionRange, error) {
	var rng models.ExclusionRange
	result := r.db.WithContext(ctx).First(&rng, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rng, nil
}

// FindExclusionRange returns the range with exactly these attributes, nil, nil if none.
func (r *SQLiteRepository) FindExclusionRange(ctx context.Context, cameraID uint, model models.DetectorModel, from, to time.Time) (*models.ExclusionRange, error) {
	var rng models.ExclusionRange
	result := r.db.WithContext(ctx).
		Where("camera_id = ? AND model = ? AND from_datetime = ? AND to_datetime = ?", cameraID, model, from.UTC(), to.UTC()).
		First(&rng)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rng, nil
}

func (r *SQLiteRepository) SaveExclusionRange(ctx context.Context, rng *models.ExclusionRange) error {
	return r.db.WithContext(ctx).Save(rng).Error
}

func (r *SQLiteRepository) DeleteExclusionRange(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.ExclusionRange{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Upload audit methods

func (r *SQLiteRepository) SaveUpload(ctx context.Context, upload *models.ReportUpload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

func (r *SQLiteRepository) GetUploads(ctx context.Context, limit int) ([]models.ReportUpload, error) {
	var uploads []models.ReportUpload
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&uploads).Error
	return uploads, err
}

func (r *SQLiteRepository) DeleteUploadsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.ReportUpload{})
	return result.RowsAffected, result.Error
}
