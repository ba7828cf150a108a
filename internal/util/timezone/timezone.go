package timezone

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	currentLocation *time.Location
	mu              sync.RWMutex
)

// Initialize sets the zone used for naive timestamps. An empty name falls back
// to the TZ environment variable and then to UTC.
func Initialize(name string) {
	if name == "" {
		name = os.Getenv("TZ")
	}
	if name == "" {
		name = "UTC"
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", name, err)
		loc = time.UTC
	} else {
		log.Infof("Timezone set to %s", name)
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
}

// Location returns the configured zone, UTC until Initialize is called.
func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	if currentLocation == nil {
		return time.UTC
	}
	return currentLocation
}

// Layouts with an explicit offset. Fractional seconds are accepted by time.Parse after the
// seconds field even though the layouts do not spell them out.
var zonedLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Unix timestamps are plain decimals within years 1 to 9999.
var unixPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

const (
	minUnixSeconds = -62135596800
	maxUnixSeconds = 253402300799
)

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse reads a report timestamp: ISO 8601 with a 'T' or space separator, optional
// fraction and optional offset, or Unix seconds (milliseconds when the value is too large
// for seconds). Naive values are interpreted in the configured zone. The result is UTC.
func Parse(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if unixPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid unix timestamp: %q", value)
		}
		return fromUnix(f)
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	loc := Location()
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime format: %q", value)
}

func fromUnix(f float64) (time.Time, error) {
	if math.Abs(f) > 2e10 {
		f /= 1000
	}
	if math.IsNaN(f) || f < minUnixSeconds || f > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("unix timestamp out of range: %v", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}
