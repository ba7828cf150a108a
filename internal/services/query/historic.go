package query

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
)

// HistoricDateLayout is the dd-mm-YYYY format of the historic date bounds.
const HistoricDateLayout = "02-01-2006"

// HistoricQuery selects a per-bucket summary over some object classes and cameras.
type HistoricQuery struct {
	Unit       Unit
	Reducer    Reducer
	DateAfter  *time.Time
	DateBefore *time.Time
	// Objects are count columns; empty means all of the model's columns.
	Objects   []string
	CameraIDs []uint
}

type HistoricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type HistoricResult struct {
	Aggregation       Unit            `json:"aggregation"`
	AggregationMethod Reducer         `json:"aggregation_method"`
	DateAfter         *time.Time      `json:"date_after"`
	DateBefore        *time.Time      `json:"date_before"`
	ObjectTypes       []string        `json:"object_types"`
	CameraLocations   []uint          `json:"camera_locations"`
	Records           []HistoricPoint `json:"records"`
}

// Historic aggregates the records of complete cameras that have data, then folds the
// selected object classes of every bucket into one value with the same reducer.
func (c *Composer) Historic(ctx context.Context, model models.DetectorModel, hq HistoricQuery) (*HistoricResult, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedModel, model)
	}
	spec := models.SpecFor(model)

	objects := hq.Objects
	if len(objects) == 0 {
		objects = spec.CountColumns
	}
	for _, o := range objects {
		if !spec.HasColumn(o) {
			return nil, &models.ValidationError{Fields: map[string]string{
				"object": fmt.Sprintf("%q is not an object type of %s.", o, model),
			}}
		}
	}

	cameras, err := c.repo.GetCamerasWithRecords(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load cameras: %w", err)
	}
	locations := []uint{}
	for _, cam := range cameras {
		if len(hq.CameraIDs) == 0 || slices.Contains(hq.CameraIDs, cam.ID) {
			locations = append(locations, cam.ID)
		}
	}

	q, err := c.Filtered(ctx, model, RecordFilter{
		CameraIDs:  locations,
		DateAfter:  hq.DateAfter,
		DateBefore: hq.DateBefore,
	})
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		q = q.Where("1 = 0")
	}

	buckets, err := c.Aggregate(ctx, q, model, hq.Unit, hq.Reducer)
	if err != nil {
		return nil, err
	}

	points := make([]HistoricPoint, len(buckets))
	for i, b := range buckets {
		values := make([]float64, len(objects))
		for j, o := range objects {
			values[j] = b.Values[o]
		}
		points[i] = HistoricPoint{Timestamp: b.Start, Value: hq.Reducer.Apply(values)}
	}

	return &HistoricResult{
		Aggregation:       hq.Unit,
		AggregationMethod: hq.Reducer,
		DateAfter:         hq.DateAfter,
		DateBefore:        hq.DateBefore,
		ObjectTypes:       objects,
		CameraLocations:   locations,
		Records:           points,
	}, nil
}
