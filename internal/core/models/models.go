package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DetectorModel identifies the object-counting algorithm that produced a report.
type DetectorModel string

const (
	ModelTF1  DetectorModel = "tf1"
	ModelTF2  DetectorModel = "tf2"
	ModelYOLO DetectorModel = "yolo"
)

// SupportedModels lists every detector model with its own record table.
var SupportedModels = []DetectorModel{ModelTF1, ModelTF2, ModelYOLO}

// Valid reports whether m is one of the supported detector models.
func (m DetectorModel) Valid() bool {
	for _, s := range SupportedModels {
		if m == s {
			return true
		}
	}
	return false
}

// ParseDetectorModel normalizes s and checks it against the supported models.
func ParseDetectorModel(s string) (DetectorModel, error) {
	m := DetectorModel(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
	}
	return m, nil
}

// Camera is the single source of truth for camera identity.
type Camera struct {
	ID         uint          `gorm:"primaryKey" json:"camera_pk"`
	Ref        string        `gorm:"column:camera_ref;uniqueIndex;not null" json:"camera_ref"`
	Label      *string       `json:"label"`
	Longitude  *float64      `json:"longitude"`
	Latitude   *float64      `json:"latitude"`
	IsComplete bool          `gorm:"index;not null;default:false" json:"is_complete"`
	Groups     []CameraGroup `gorm:"many2many:camera_group_members;" json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NormalizeCameraRef lower-cases a camera reference and strips all spaces.
func NormalizeCameraRef(ref string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(ref)), " ", "")
}

// Complete reports whether label and both coordinates are populated.
func (c *Camera) Complete() bool {
	return c.Label != nil && strings.TrimSpace(*c.Label) != "" && c.Longitude != nil && c.Latitude != nil
}

// BeforeSave keeps the reference normalized and recomputes completeness on every save.
func (c *Camera) BeforeSave(tx *gorm.DB) error {
	c.Ref = NormalizeCameraRef(c.Ref)
	if c.Ref == "" {
		return &ValidationError{Fields: map[string]string{"camera_id": "camera_id must not be empty."}}
	}
	c.IsComplete = c.Complete()
	return nil
}

// DefaultGroupID is the group every new camera joins. It is seeded by the migration and
// hidden from the public group listing.
const (
	DefaultGroupID   uint = 1
	DefaultGroupName      = "all cameras"
)

// CameraGroup is a named collection of cameras.
type CameraGroup struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	Cameras     []Camera  `gorm:"many2many:camera_group_members;" json:"cameras,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TF1Record is a single TF1 detection row.
type TF1Record struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CameraID    uint      `gorm:"not null;uniqueIndex:idx_tf1_camera_timestamp,priority:1" json:"camera_pk"`
	Camera      *Camera   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Timestamp   time.Time `gorm:"not null;uniqueIndex:idx_tf1_camera_timestamp,priority:2" json:"timestamp"`
	CameraOK    *bool     `json:"camera_ok"`
	Cars        int       `json:"cars"`
	Persons     int       `json:"persons"`
	Bicycles    int       `json:"bicycles"`
	Motorcycles int       `json:"motorcycles"`
	Buses       int       `json:"buses"`
	Trucks      int       `json:"trucks"`
}

// TF2Record is a single TF2 detection row.
type TF2Record struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CameraID    uint      `gorm:"not null;uniqueIndex:idx_tf2_camera_timestamp,priority:1" json:"camera_pk"`
	Camera      *Camera   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Timestamp   time.Time `gorm:"not null;uniqueIndex:idx_tf2_camera_timestamp,priority:2" json:"timestamp"`
	CameraOK    *bool     `json:"camera_ok"`
	Cars        int       `json:"cars"`
	Persons     int       `json:"persons"`
	Bicycles    int       `json:"bicycles"`
	Motorcycles int       `json:"motorcycles"`
	Buses       int       `json:"buses"`
	Trucks      int       `json:"trucks"`
}

// YOLORecord is a single YOLO detection row.
type YOLORecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CameraID    uint      `gorm:"not null;uniqueIndex:idx_yolo_camera_timestamp,priority:1" json:"camera_pk"`
	Camera      *Camera   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Timestamp   time.Time `gorm:"not null;uniqueIndex:idx_yolo_camera_timestamp,priority:2" json:"timestamp"`
	CameraOK    *bool     `json:"camera_ok"`
	Cars        int       `json:"cars"`
	Pedestrians int       `json:"pedestrians"`
	Cyclists    int       `json:"cyclists"`
	Motorcycles int       `json:"motorcycles"`
	Buses       int       `json:"buses"`
	Lorries     int       `json:"lorries"`
	Vans        int       `json:"vans"`
	Taxis       int       `json:"taxis"`
}

func (TF1Record) TableName() string  { return "tf1_records" }
func (TF2Record) TableName() string  { return "tf2_records" }
func (YOLORecord) TableName() string { return "yolo_records" }

// ExclusionRange hides the records of one camera and model between From and To (inclusive).
type ExclusionRange struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CameraID  uint          `gorm:"not null;index:idx_exclusion_camera_model,priority:1" json:"camera_id"`
	Camera    *Camera       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Model     DetectorModel `gorm:"type:varchar(10);not null;index:idx_exclusion_camera_model,priority:2" json:"model"`
	From      time.Time     `gorm:"column:from_datetime;not null" json:"from_datetime"`
	To        time.Time     `gorm:"column:to_datetime;not null" json:"to_datetime"`
	CreatedAt time.Time     `json:"created_at"`
}

// Validate checks the model and both directions of the from/to ordering.
func (e *ExclusionRange) Validate() error {
	verr := &ValidationError{}
	if !e.Model.Valid() {
		verr.Add("model", fmt.Sprintf("%q is not a supported model.", e.Model))
	}
	if e.CameraID == 0 {
		verr.Add("camera_id", "camera_id is required.")
	}
	if e.To.Before(e.From) {
		verr.Add("to_datetime", "to_datetime must be greater than from_datetime.")
	}
	if e.From.After(e.To) {
		verr.Add("from_datetime", "from_datetime must less than to_datetime.")
	}
	return verr.Err()
}

// BeforeSave rejects invalid ranges on every write and stores both bounds in UTC.
func (e *ExclusionRange) BeforeSave(tx *gorm.DB) error {
	e.From = e.From.UTC()
	e.To = e.To.UTC()
	return e.Validate()
}

// ReportUpload is the audit trail of one ingestion run.
type ReportUpload struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	RunID       string         `gorm:"uniqueIndex;not null" json:"run_id"`
	Source      string         `json:"source"`
	Model       DetectorModel  `gorm:"type:varchar(10)" json:"model"`
	Overwrite   bool           `json:"overwrite"`
	RowsParsed  int            `json:"rows_parsed"`
	RowsWritten int64          `json:"rows_written"`
	RowsSkipped int64          `json:"rows_skipped"`
	Status      string         `gorm:"index" json:"status"`
	Error       string         `json:"error,omitempty"`
	Summary     datatypes.JSON `gorm:"type:json" json:"summary,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}
