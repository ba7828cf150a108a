package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/middleware"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/util/timezone"

	"github.com/gin-gonic/gin"
)

// PINHeader carries the upload PIN on API write requests.
const PINHeader = "X-Upload-Pin"

// ExclusionHandler serves the exclusion ranges.
type ExclusionHandler struct {
	registry *exclusion.Registry
	pin      string
}

func NewExclusionHandler(registry *exclusion.Registry, pin string) *ExclusionHandler {
	return &ExclusionHandler{registry: registry, pin: pin}
}

func (h *ExclusionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/exclusions", h.ListIntervals)
	router.GET("/exclusions/ranges", h.ListRanges)

	write := router.Group("/exclusions/ranges", RequirePIN(h.pin))
	write.POST("", h.CreateRange)
	write.DELETE("/:id", h.DeleteRange)
}

// RequirePIN rejects requests whose PINHeader does not match pin.
func RequirePIN(pin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(PINHeader)), []byte(pin)) != 1 {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

func (h *ExclusionHandler) filter(c *gin.Context) (exclusion.Filter, bool) {
	f := exclusion.Filter{CameraRef: c.Query("camera")}
	if v := c.Query("model"); v != "" {
		m, err := models.ParseDetectorModel(v)
		if err != nil {
			respondError(c, err)
			return f, false
		}
		f.Model = m
	}
	if v := c.Query("camera_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "errors.invalid_id")})
			return f, false
		}
		f.CameraID = uint(n)
	}
	return f, true
}

// ListIntervals returns the merged exclusion intervals per camera and model.
func (h *ExclusionHandler) ListIntervals(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	entries, err := h.registry.ExclusionIntervals(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// ListRanges returns the stored ranges without merging.
func (h *ExclusionHandler) ListRanges(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	ranges, err := h.registry.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if ranges == nil {
		ranges = []models.ExclusionRange{}
	}
	c.JSON(http.StatusOK, ranges)
}

type createRangeRequest struct {
	CameraID uint   `json:"camera_id"`
	Model    string `json:"model"`
	From     string `json:"from_datetime"`
	To       string `json:"to_datetime"`
}

// CreateRange stores a new exclusion range. Datetimes without an offset are read in the
// configured timezone.
func (h *ExclusionHandler) CreateRange(c *gin.Context) {
	var req createRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	verr := &models.ValidationError{}
	rng := &models.ExclusionRange{
		CameraID: req.CameraID,
		Model:    models.DetectorModel(strings.ToLower(strings.TrimSpace(req.Model))),
	}
	if from, err := timezone.Parse(req.From); err != nil {
		verr.Add("from_datetime", fmt.Sprintf("%q is not a valid datetime.", req.From))
	} else {
		rng.From = from
	}
	if to, err := timezone.Parse(req.To); err != nil {
		verr.Add("to_datetime", fmt.Sprintf("%q is not a valid datetime.", req.To))
	} else {
		rng.To = to
	}
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	if err := h.registry.Add(c.Request.Context(), rng); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rng)
}

func (h *ExclusionHandler) DeleteRange(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "errors.invalid_id")})
		return
	}
	if err := h.registry.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Exclusion range deleted successfully"})
}
