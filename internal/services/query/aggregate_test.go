package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitTruncate(t *testing.T) {
	// Thursday
	ts := time.Date(2023, 8, 17, 13, 45, 12, 0, time.UTC)
	cases := map[Unit]time.Time{
		UnitHour:    time.Date(2023, 8, 17, 13, 0, 0, 0, time.UTC),
		UnitDay:     time.Date(2023, 8, 17, 0, 0, 0, 0, time.UTC),
		UnitWeek:    time.Date(2023, 8, 14, 0, 0, 0, 0, time.UTC),
		UnitMonth:   time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
		UnitQuarter: time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
		UnitYear:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for unit, want := range cases {
		assert.Equal(t, want, unit.Truncate(ts), unit)
	}
}

func TestWeekStartsOnMonday(t *testing.T) {
	sunday := time.Date(2023, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2022, 12, 26, 0, 0, 0, 0, time.UTC), UnitWeek.Truncate(sunday))

	monday := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, UnitWeek.Truncate(monday))
}

func TestTruncateConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2023, 1, 1, 1, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), UnitDay.Truncate(ts))
}

func TestParseUnitAndReducer(t *testing.T) {
	u, err := ParseUnit(" Week ")
	require.NoError(t, err)
	assert.Equal(t, UnitWeek, u)
	_, err = ParseUnit("fortnight")
	assert.ErrorIs(t, err, ErrInvalidUnit)

	r, err := ParseReducer("AVERAGE")
	require.NoError(t, err)
	assert.Equal(t, ReduceAverage, r)
	_, err = ParseReducer("median")
	assert.ErrorIs(t, err, ErrInvalidReducer)
}

func TestReducerApply(t *testing.T) {
	values := []float64{4, 1, 7}
	assert.Equal(t, 12.0, ReduceSum.Apply(values))
	assert.Equal(t, 4.0, ReduceAverage.Apply(values))
	assert.Equal(t, 1.0, ReduceMin.Apply(values))
	assert.Equal(t, 7.0, ReduceMax.Apply(values))
	assert.Zero(t, ReduceMax.Apply(nil))
}
