// Package query builds the read-side record queries: filters, exclusion subtraction,
// pagination and time-bucket aggregation.
package query

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000

	scanBatchSize = 1000
)

// Health values accepted by RecordFilter.Health.
const (
	HealthUnknown = "unknown"
	HealthTrue    = "true"
	HealthFalse   = "false"
)

// RecordFilter narrows a record query. Zero values match everything.
type RecordFilter struct {
	CameraIDs  []uint
	CameraRefs []string
	DateAfter  *time.Time
	DateBefore *time.Time
	// DayBefore is a calendar day; records up to the end of that day match.
	DayBefore *time.Time
	Health    []string
	// OnlyComplete restricts results to cameras with a label and coordinates.
	OnlyComplete bool
}

// Page selects a slice of an ordered result. Number starts at 1.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// RecordPage is one page of records plus the total count.
type RecordPage struct {
	Count    int64           `json:"count"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Results  []models.Record `json:"results"`
}

// Composer assembles record queries against the repository's database.
type Composer struct {
	repo       repository.Repository
	exclusions *exclusion.Registry
}

func NewComposer(repo repository.Repository, exclusions *exclusion.Registry) *Composer {
	return &Composer{repo: repo, exclusions: exclusions}
}

// Exclude adds one NOT (camera AND timestamp range) condition per merged exclusion
// interval of model. With cameraIDs set, only those cameras' intervals are applied.
func (c *Composer) Exclude(ctx context.Context, q *gorm.DB, model models.DetectorModel, cameraIDs []uint) (*gorm.DB, error) {
	entries, err := c.exclusions.ExclusionIntervals(ctx, exclusion.Filter{Model: model})
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, e := range entries {
		if len(cameraIDs) > 0 && !slices.Contains(cameraIDs, e.CameraID) {
			continue
		}
		for _, iv := range e.ExclusionIntervals {
			q = q.Where("NOT (camera_id = ? AND timestamp BETWEEN ? AND ?)", e.CameraID, iv.Start.UTC(), iv.End.UTC())
			applied++
		}
	}
	log.WithFields(log.Fields{"model": model, "intervals": applied}).Debug("Applied exclusion intervals")
	return q, nil
}

// Filtered returns the query over model's table with f and the exclusions applied.
func (c *Composer) Filtered(ctx context.Context, model models.DetectorModel, f RecordFilter) (*gorm.DB, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedModel, model)
	}
	db := c.repo.DB().WithContext(ctx)
	q := db.Table(models.SpecFor(model).Table)

	if len(f.CameraIDs) > 0 {
		q = q.Where("camera_id IN ?", f.CameraIDs)
	}
	if len(f.CameraRefs) > 0 {
		refs := make([]string, len(f.CameraRefs))
		for i, ref := range f.CameraRefs {
			refs[i] = models.NormalizeCameraRef(ref)
		}
		q = q.Where("camera_id IN (?)", db.Model(&models.Camera{}).Select("id").Where("camera_ref IN ?", refs))
	}
	if f.DateAfter != nil {
		q = q.Where("timestamp >= ?", f.DateAfter.UTC())
	}
	if f.DateBefore != nil {
		q = q.Where("timestamp <= ?", f.DateBefore.UTC())
	}
	if f.DayBefore != nil {
		q = q.Where("timestamp < ?", f.DayBefore.AddDate(0, 0, 1).UTC())
	}
	if len(f.Health) > 0 {
		cond, err := healthCondition(db, f.Health)
		if err != nil {
			return nil, err
		}
		q = q.Where(cond)
	}
	if f.OnlyComplete {
		q = q.Where("camera_id IN (?)", db.Model(&models.Camera{}).Select("id").Where("is_complete = ?", true))
	}

	return c.Exclude(ctx, q, model, f.CameraIDs)
}

func healthCondition(db *gorm.DB, values []string) (*gorm.DB, error) {
	cond := db.Session(&gorm.Session{NewDB: true})
	for i, v := range values {
		var expr string
		var args []interface{}
		switch v {
		case HealthUnknown:
			expr = "camera_ok IS NULL"
		case HealthTrue:
			expr, args = "camera_ok = ?", []interface{}{true}
		case HealthFalse:
			expr, args = "camera_ok = ?", []interface{}{false}
		default:
			return nil, &models.ValidationError{Fields: map[string]string{
				"camera_ok": fmt.Sprintf("%q is not one of unknown, true, false.", v),
			}}
		}
		if i == 0 {
			cond = cond.Where(expr, args...)
		} else {
			cond = cond.Or(expr, args...)
		}
	}
	return cond, nil
}

// Records returns one page of model's records, newest first.
func (c *Composer) Records(ctx context.Context, model models.DetectorModel, f RecordFilter, page Page) (*RecordPage, error) {
	q, err := c.Filtered(ctx, model, f)
	if err != nil {
		return nil, err
	}
	q = q.Session(&gorm.Session{})
	page = page.normalize()

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s records: %w", model, err)
	}

	paged := q.Order("timestamp DESC, camera_id").Offset((page.Number - 1) * page.Size).Limit(page.Size)
	results, err := findRecords(paged, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", model, err)
	}
	return &RecordPage{Count: count, Page: page.Number, PageSize: page.Size, Results: results}, nil
}

func findRecords(q *gorm.DB, model models.DetectorModel) ([]models.Record, error) {
	switch model {
	case models.ModelTF1:
		return find[models.TF1Record](q)
	case models.ModelTF2:
		return find[models.TF2Record](q)
	case models.ModelYOLO:
		return find[models.YOLORecord](q)
	}
	panic(fmt.Sprintf("query: unhandled detector model %q", model))
}

func find[T models.Record](q *gorm.DB) ([]models.Record, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

// Aggregate buckets the rows of q by unit and reduces every count column of model with
// reducer. Buckets are ordered by start.
func (c *Composer) Aggregate(ctx context.Context, q *gorm.DB, model models.DetectorModel, unit Unit, reducer Reducer) ([]Bucket, error) {
	columns := models.SpecFor(model).CountColumns
	acc := map[time.Time]map[string]*accumulator{}

	visit := func(r models.Record) {
		start := unit.Truncate(r.RecordedAt())
		bucket, ok := acc[start]
		if !ok {
			bucket = make(map[string]*accumulator, len(columns))
			for _, col := range columns {
				bucket[col] = &accumulator{}
			}
			acc[start] = bucket
		}
		for col, v := range r.Counts() {
			bucket[col].add(float64(v))
		}
	}

	q = q.WithContext(ctx).Session(&gorm.Session{})
	var err error
	switch model {
	case models.ModelTF1:
		err = scan[models.TF1Record](q, visit)
	case models.ModelTF2:
		err = scan[models.TF2Record](q, visit)
	case models.ModelYOLO:
		err = scan[models.YOLORecord](q, visit)
	default:
		panic(fmt.Sprintf("query: unhandled detector model %q", model))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s records: %w", model, err)
	}

	buckets := make([]Bucket, 0, len(acc))
	for start, cols := range acc {
		values := make(map[string]float64, len(cols))
		for col, a := range cols {
			values[col] = a.value(reducer)
		}
		buckets = append(buckets, Bucket{Start: start, Values: values})
	}
	slices.SortFunc(buckets, func(a, b Bucket) int { return a.Start.Compare(b.Start) })
	return buckets, nil
}

func scan[T models.Record](q *gorm.DB, visit func(models.Record)) error {
	var batch []T
	return q.FindInBatches(&batch, scanBatchSize, func(tx *gorm.DB, _ int) error {
		for _, r := range batch {
			visit(r)
		}
		return nil
	}).Error
}
