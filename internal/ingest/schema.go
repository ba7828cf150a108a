package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"
)

// Report column names shared by every detector model.
const (
	ColumnImageProcessed = "image_proc"
	ColumnImageCaptured  = "image_capt"
	ColumnCameraRef      = "camera_ref"
	ColumnModelName      = "model_name"
	ColumnWarnings       = "warnings"

	noneLiteral = "None"
)

// FieldMapping maps a report column onto its storage column.
type FieldMapping struct {
	Source string
	Column string
}

// Schema validates and normalizes the rows of one detector model's reports.
// The set of implementations is closed: TF1Schema, TF2Schema and YOLOSchema.
type Schema interface {
	Model() models.DetectorModel
	CountFields() []FieldMapping
	Validate(line int, raw map[string]*string) (*Row, error)
	sealed()
}

// Row is one validated report line.
type Row struct {
	Line           int
	ImageProcessed time.Time
	ImageCaptured  time.Time
	CameraRef      string
	ModelName      string
	Counts         map[string]int
	Warnings       *int
}

// Timestamp is the instant the row is stored under.
func (r Row) Timestamp() time.Time { return r.ImageCaptured }

// CameraOK derives the health flag: nil when warnings are unknown, true for zero
// warnings, false otherwise.
func (r Row) CameraOK() *bool {
	if r.Warnings == nil {
		return nil
	}
	ok := *r.Warnings == 0
	return &ok
}

// CanonicalCounts returns a copy of the counts keyed by storage column.
func (r Row) CanonicalCounts() map[string]int {
	out := make(map[string]int, len(r.Counts))
	for k, v := range r.Counts {
		out[k] = v
	}
	return out
}

var tfFields = []FieldMapping{
	{Source: "car", Column: "cars"},
	{Source: "person", Column: "persons"},
	{Source: "bicycle", Column: "bicycles"},
	{Source: "motorcycle", Column: "motorcycles"},
	{Source: "bus", Column: "buses"},
	{Source: "truck", Column: "trucks"},
}

var yoloFields = []FieldMapping{
	{Source: "car", Column: "cars"},
	{Source: "pedestrian", Column: "pedestrians"},
	{Source: "cyclist", Column: "cyclists"},
	{Source: "motorcycle", Column: "motorcycles"},
	{Source: "bus", Column: "buses"},
	{Source: "lorry", Column: "lorries"},
	{Source: "van", Column: "vans"},
	{Source: "taxi", Column: "taxis"},
}

type TF1Schema struct{}

func (TF1Schema) Model() models.DetectorModel { return models.ModelTF1 }
func (TF1Schema) CountFields() []FieldMapping { return tfFields }
func (s TF1Schema) Validate(line int, raw map[string]*string) (*Row, error) {
	return validateRow(s, line, raw)
}
func (TF1Schema) sealed() {}

type TF2Schema struct{}

func (TF2Schema) Model() models.DetectorModel { return models.ModelTF2 }
func (TF2Schema) CountFields() []FieldMapping { return tfFields }
func (s TF2Schema) Validate(line int, raw map[string]*string) (*Row, error) {
	return validateRow(s, line, raw)
}
func (TF2Schema) sealed() {}

type YOLOSchema struct{}

func (YOLOSchema) Model() models.DetectorModel { return models.ModelYOLO }
func (YOLOSchema) CountFields() []FieldMapping { return yoloFields }
func (s YOLOSchema) Validate(line int, raw map[string]*string) (*Row, error) {
	return validateRow(s, line, raw)
}
func (YOLOSchema) sealed() {}

var schemas = map[models.DetectorModel]Schema{
	models.ModelTF1:  TF1Schema{},
	models.ModelTF2:  TF2Schema{},
	models.ModelYOLO: YOLOSchema{},
}

// SchemaFor selects the schema named by a report's model_name value.
func SchemaFor(modelName string) (Schema, error) {
	m, err := models.ParseDetectorModel(modelName)
	if err != nil {
		return nil, err
	}
	return schemas[m], nil
}

func validateRow(s Schema, line int, raw map[string]*string) (*Row, error) {
	fail := func(field, reason string) error {
		value := noneLiteral
		if v := raw[field]; v != nil {
			value = *v
		}
		return &RowError{Line: line, Field: field, Value: value, Reason: reason, Raw: raw}
	}

	row := &Row{Line: line, Counts: make(map[string]int, len(s.CountFields()))}

	var err error
	if row.ImageProcessed, err = requiredTime(raw, ColumnImageProcessed); err != nil {
		return nil, fail(ColumnImageProcessed, err.Error())
	}
	if row.ImageCaptured, err = requiredTime(raw, ColumnImageCaptured); err != nil {
		return nil, fail(ColumnImageCaptured, err.Error())
	}
	if row.CameraRef, err = requiredString(raw, ColumnCameraRef); err != nil {
		return nil, fail(ColumnCameraRef, err.Error())
	}
	if row.ModelName, err = requiredString(raw, ColumnModelName); err != nil {
		return nil, fail(ColumnModelName, err.Error())
	}

	for _, f := range s.CountFields() {
		v, present, err := optionalInt(raw, f.Source)
		if err != nil {
			return nil, fail(f.Source, err.Error())
		}
		if !present {
			return nil, fail(f.Source, "field required")
		}
		row.Counts[f.Column] = v
	}

	w, present, err := optionalInt(raw, ColumnWarnings)
	if err != nil {
		return nil, fail(ColumnWarnings, err.Error())
	}
	if present {
		row.Warnings = &w
	}

	return row, nil
}

func requiredString(raw map[string]*string, field string) (string, error) {
	v := raw[field]
	if v == nil {
		return "", fmt.Errorf("field required")
	}
	s := strings.ToLower(strings.TrimSpace(*v))
	if s == "" {
		return "", fmt.Errorf("field required")
	}
	return s, nil
}

func requiredTime(raw map[string]*string, field string) (time.Time, error) {
	v := raw[field]
	if v == nil {
		return time.Time{}, fmt.Errorf("field required")
	}
	return timezone.Parse(*v)
}

func optionalInt(raw map[string]*string, field string) (int, bool, error) {
	v := raw[field]
	if v == nil {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil {
		return 0, true, fmt.Errorf("value is not a valid integer: %q", *v)
	}
	return n, true, nil
}
