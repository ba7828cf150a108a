package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"

	"github.com/gin-gonic/gin"
)

// DateLayout is the YYYY-MM-DD format of the record filters.
const DateLayout = "2006-01-02"

// queryList returns every value of a repeated parameter, also splitting comma lists.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryUints(c *gin.Context, key string, verr *models.ValidationError) []uint {
	var out []uint
	for _, v := range queryList(c, key) {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			verr.Add(key, fmt.Sprintf("%q is not a valid id.", v))
			continue
		}
		out = append(out, uint(n))
	}
	return out
}

func queryInt(c *gin.Context, key string, verr *models.ValidationError) int {
	v := c.Query(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		verr.Add(key, fmt.Sprintf("%q is not a positive integer.", v))
		return 0
	}
	return n
}

// queryDate parses a date parameter in the configured timezone; nil when absent.
func queryDate(c *gin.Context, key, layout string, verr *models.ValidationError) *time.Time {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	t, err := time.ParseInLocation(layout, v, timezone.Location())
	if err != nil {
		verr.Add(key, fmt.Sprintf("%q does not match the date format %s.", v, layout))
		return nil
	}
	return &t
}

func paramID(c *gin.Context) (uint, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
