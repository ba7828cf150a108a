package models

import (
	"fmt"
	"time"
)

// Record is implemented by every detection record variant.
type Record interface {
	TableName() string
	RecordedAt() time.Time
	// Counts returns the object-class counts keyed by their storage column.
	Counts() map[string]int
}

// ModelSpec describes the storage layout of one detector model.
type ModelSpec struct {
	Model        DetectorModel
	Table        string
	CountColumns []string
}

var (
	tfColumns   = []string{"cars", "persons", "bicycles", "motorcycles", "buses", "trucks"}
	yoloColumns = []string{"cars", "pedestrians", "cyclists", "motorcycles", "buses", "lorries", "vans", "taxis"}

	specs = map[DetectorModel]ModelSpec{
		ModelTF1:  {Model: ModelTF1, Table: TF1Record{}.TableName(), CountColumns: tfColumns},
		ModelTF2:  {Model: ModelTF2, Table: TF2Record{}.TableName(), CountColumns: tfColumns},
		ModelYOLO: {Model: ModelYOLO, Table: YOLORecord{}.TableName(), CountColumns: yoloColumns},
	}
)

// SpecFor returns the storage layout of m. An unsupported model at this point is a
// programming error and panics.
func SpecFor(m DetectorModel) ModelSpec {
	s, ok := specs[m]
	if !ok {
		panic(fmt.Sprintf("models: no storage layout for detector model %q", m))
	}
	s.CountColumns = append([]string(nil), s.CountColumns...)
	return s
}

// HasColumn reports whether column is a count column of the model.
func (s ModelSpec) HasColumn(column string) bool {
	for _, c := range s.CountColumns {
		if c == column {
			return true
		}
	}
	return false
}

// RecordValues is the storage-ready form of one normalized report row.
type RecordValues struct {
	CameraID  uint
	Timestamp time.Time
	CameraOK  *bool
	Counts    map[string]int
}

func (v RecordValues) TF1() TF1Record {
	return TF1Record{
		CameraID:    v.CameraID,
		Timestamp:   v.Timestamp.UTC(),
		CameraOK:    v.CameraOK,
		Cars:        v.Counts["cars"],
		Persons:     v.Counts["persons"],
		Bicycles:    v.Counts["bicycles"],
		Motorcycles: v.Counts["motorcycles"],
		Buses:       v.Counts["buses"],
		Trucks:      v.Counts["trucks"],
	}
}

func (v RecordValues) TF2() TF2Record {
	return TF2Record{
		CameraID:    v.CameraID,
		Timestamp:   v.Timestamp.UTC(),
		CameraOK:    v.CameraOK,
		Cars:        v.Counts["cars"],
		Persons:     v.Counts["persons"],
		Bicycles:    v.Counts["bicycles"],
		Motorcycles: v.Counts["motorcycles"],
		Buses:       v.Counts["buses"],
		Trucks:      v.Counts["trucks"],
	}
}

func (v RecordValues) YOLO() YOLORecord {
	return YOLORecord{
		CameraID:    v.CameraID,
		Timestamp:   v.Timestamp.UTC(),
		CameraOK:    v.CameraOK,
		Cars:        v.Counts["cars"],
		Pedestrians: v.Counts["pedestrians"],
		Cyclists:    v.Counts["cyclists"],
		Motorcycles: v.Counts["motorcycles"],
		Buses:       v.Counts["buses"],
		Lorries:     v.Counts["lorries"],
		Vans:        v.Counts["vans"],
		Taxis:       v.Counts["taxis"],
	}
}

func (r TF1Record) RecordedAt() time.Time { return r.Timestamp }
func (r TF1Record) Counts() map[string]int {
	return map[string]int{
		"cars": r.Cars, "persons": r.Persons, "bicycles": r.Bicycles,
		"motorcycles": r.Motorcycles, "buses": r.Buses, "trucks": r.Trucks,
	}
}

func (r TF2Record) RecordedAt() time.Time { return r.Timestamp }
func (r TF2Record) Counts() map[string]int {
	return map[string]int{
		"cars": r.Cars, "persons": r.Persons, "bicycles": r.Bicycles,
		"motorcycles": r.Motorcycles, "buses": r.Buses, "trucks": r.Trucks,
	}
}

func (r YOLORecord) RecordedAt() time.Time { return r.Timestamp }
func (r YOLORecord) Counts() map[string]int {
	return map[string]int{
		"cars": r.Cars, "pedestrians": r.Pedestrians, "cyclists": r.Cyclists,
		"motorcycles": r.Motorcycles, "buses": r.Buses, "lorries": r.Lorries,
		"vans": r.Vans, "taxis": r.Taxis,
	}
}
