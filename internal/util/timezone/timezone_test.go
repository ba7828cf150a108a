package timezone

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	want := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"2023-01-01T12:00:00Z":           want,
		"2023-01-01 12:00:00":            want,
		"2023-01-01T13:00:00+01:00":      want,
		"2023-01-01 13:00:00+0100":       want,
		"2023-01-01 12:00:00.250000":     want.Add(250 * time.Millisecond),
		"2023-01-01T12:00":               want,
		"1672574400":                     want,
		"1672574400000":                  want,
		"  2023-01-01T12:00:00.5+00:00 ": want.Add(500 * time.Millisecond),
	}
	for in, expected := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.True(t, expected.Equal(got), "%q: got %s", in, got)
		assert.Equal(t, time.UTC, got.Location(), in)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"", "yesterday", "2023-13-45 99:00:00",
		"NaN", "Inf", "-Inf", "+Inf", "1e300", "0x1p10", "1_672_574_400",
		"99999999999999999999",
	} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestParseUnixFraction(t *testing.T) {
	got, err := Parse("1672574400.5")
	require.NoError(t, err)
	assert.True(t, time.Date(2023, 1, 1, 12, 0, 0, 500000000, time.UTC).Equal(got))

	got, err = Parse("-86400")
	require.NoError(t, err)
	assert.True(t, time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC).Equal(got))
}

func TestParseNaiveUsesConfiguredZone(t *testing.T) {
	Initialize("Europe/London")
	t.Cleanup(func() { Initialize("UTC") })

	got, err := Parse("2023-07-01 12:00:00")
	require.NoError(t, err)
	assert.True(t, time.Date(2023, 7, 1, 11, 0, 0, 0, time.UTC).Equal(got))
}
