package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidUnit    = errors.New("invalid aggregation unit")
	ErrInvalidReducer = errors.New("invalid aggregation method")
)

// Unit is the width of an aggregation bucket.
type Unit string

const (
	UnitHour    Unit = "hour"
	UnitDay     Unit = "day"
	UnitWeek    Unit = "week"
	UnitMonth   Unit = "month"
	UnitQuarter Unit = "quarter"
	UnitYear    Unit = "year"
)

var Units = []Unit{UnitHour, UnitDay, UnitWeek, UnitMonth, UnitQuarter, UnitYear}

// ParseUnit accepts a unit name in any case.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Units {
		if u == known {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Truncate returns the start of the UTC bucket containing t. Weeks start on Monday.
func (u Unit) Truncate(t time.Time) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	switch u {
	case UnitHour:
		return t.Truncate(time.Hour)
	case UnitDay:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case UnitWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
	case UnitMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case UnitQuarter:
		return time.Date(y, m-(m-1)%3, 1, 0, 0, 0, 0, time.UTC)
	case UnitYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	panic(fmt.Sprintf("query: unhandled aggregation unit %q", u))
}

// Reducer folds the values of one column inside a bucket.
type Reducer string

const (
	ReduceSum     Reducer = "sum"
	ReduceAverage Reducer = "average"
	ReduceMin     Reducer = "min"
	ReduceMax     Reducer = "max"
)

var Reducers = []Reducer{ReduceSum, ReduceAverage, ReduceMax, ReduceMin}

func ParseReducer(s string) (Reducer, error) {
	r := Reducer(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Reducers {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReducer, s)
}

// Apply reduces values. It returns 0 for an empty slice.
func (r Reducer) Apply(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var acc accumulator
	for _, v := range values {
		acc.add(v)
	}
	return acc.value(r)
}

type accumulator struct {
	sum, min, max float64
	n             int
}

func (a *accumulator) add(v float64) {
	if a.n == 0 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	a.sum += v
	a.n++
}

func (a *accumulator) value(r Reducer) float64 {
	switch r {
	case ReduceSum:
		return a.sum
	case ReduceAverage:
		if a.n == 0 {
			return 0
		}
		return a.sum / float64(a.n)
	case ReduceMin:
		return a.min
	case ReduceMax:
		return a.max
	}
	panic(fmt.Sprintf("query: unhandled reducer %q", r))
}

// Bucket is one aggregated row. Values is keyed by count column.
type Bucket struct {
	Start  time.Time
	Values map[string]float64
}

// MarshalJSON encodes the bucket as {"dateAgg": start, "<column>Agg": value, ...}.
func (b Bucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(b.Values)+1)
	out["dateAgg"] = b.Start
	for column, v := range b.Values {
		out[column+"Agg"] = v
	}
	return json.Marshal(out)
}
