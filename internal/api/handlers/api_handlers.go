package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/middleware"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/query"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the read-only record, camera and group endpoints.
type APIHandler struct {
	cfg      *config.Config
	repo     repository.Repository
	composer *query.Composer
}

func NewAPIHandler(cfg *config.Config, repo repository.Repository, composer *query.Composer) *APIHandler {
	return &APIHandler{cfg: cfg, repo: repo, composer: composer}
}

// RegisterRoutes registers the API routes below router.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// records per detector model
	router.GET("/:model/records", h.ListRecords)
	router.GET("/:model/aggregate", h.AggregateRecords)
	router.GET("/:model/historic", h.HistoricRecords)

	router.GET("/cameras", h.ListCameras)
	router.GET("/cameras/:id", h.GetCamera)
	router.GET("/camera-groups", h.ListGroups)
	router.GET("/camera-groups/:id", h.GetGroup)

	router.GET("/version", h.GetVersion)
}

func (h *APIHandler) model(c *gin.Context) (models.DetectorModel, bool) {
	m, err := models.ParseDetectorModel(c.Param("model"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "errors.invalid_model")})
		return "", false
	}
	return m, true
}

// recordFilter reads the filter parameters shared by the record endpoints.
func recordFilter(c *gin.Context, verr *models.ValidationError) query.RecordFilter {
	return query.RecordFilter{
		CameraIDs:    queryUints(c, "camera_id", verr),
		CameraRefs:   queryList(c, "camera"),
		DateAfter:    queryDate(c, "date_after", DateLayout, verr),
		DayBefore:    queryDate(c, "date_before", DateLayout, verr),
		Health:       queryList(c, "camera_ok"),
		OnlyComplete: true,
	}
}

// ListRecords returns one page of records of a model, newest first.
func (h *APIHandler) ListRecords(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}

	verr := &models.ValidationError{}
	filter := recordFilter(c, verr)
	page := query.Page{
		Number: queryInt(c, "page", verr),
		Size:   queryInt(c, "page_size", verr),
	}
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.composer.Records(c.Request.Context(), model, filter, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AggregateRecords buckets the filtered records by aggregation and reduces each count
// column with aggregation_method.
func (h *APIHandler) AggregateRecords(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}

	unit, err := query.ParseUnit(c.DefaultQuery("aggregation", string(query.UnitDay)))
	if err != nil {
		respondError(c, err)
		return
	}
	reducer, err := query.ParseReducer(c.DefaultQuery("aggregation_method", string(query.ReduceSum)))
	if err != nil {
		respondError(c, err)
		return
	}

	verr := &models.ValidationError{}
	filter := recordFilter(c, verr)
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	q, err := h.composer.Filtered(ctx, model, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	buckets, err := h.composer.Aggregate(ctx, q, model, unit, reducer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

// HistoricRecords returns one value per bucket over the selected object types and
// camera locations. Dates use dd-mm-YYYY.
func (h *APIHandler) HistoricRecords(c *gin.Context) {
	model, ok := h.model(c)
	if !ok {
		return
	}

	unit, err := query.ParseUnit(c.DefaultQuery("aggregation", string(query.UnitDay)))
	if err != nil {
		respondError(c, err)
		return
	}
	reducer, err := query.ParseReducer(c.DefaultQuery("aggregation_method", string(query.ReduceSum)))
	if err != nil {
		respondError(c, err)
		return
	}

	verr := &models.ValidationError{}
	hq := query.HistoricQuery{
		Unit:       unit,
		Reducer:    reducer,
		DateAfter:  queryDate(c, "date_after", query.HistoricDateLayout, verr),
		DateBefore: queryDate(c, "date_before", query.HistoricDateLayout, verr),
		Objects:    queryList(c, "object"),
		CameraIDs:  queryUints(c, "camera_id", verr),
	}
	if err := verr.Err(); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.composer.Historic(c.Request.Context(), model, hq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListCameras returns the complete cameras that have at least one record.
func (h *APIHandler) ListCameras(c *gin.Context) {
	cameras, err := h.repo.GetCamerasWithRecords(c.Request.Context(), true)
	if err != nil {
		respondError(c, fmt.Errorf("failed to fetch cameras: %w", err))
		return
	}
	if cameras == nil {
		cameras = []models.Camera{}
	}
	c.JSON(http.StatusOK, cameras)
}

func (h *APIHandler) GetCamera(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "errors.invalid_id")})
		return
	}
	camera, err := h.repo.GetCameraByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if camera == nil {
		respondError(c, models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, camera)
}

// ListGroups returns all groups except the implicit default group.
func (h *APIHandler) ListGroups(c *gin.Context) {
	groups, err := h.repo.GetGroups(c.Request.Context(), false)
	if err != nil {
		respondError(c, fmt.Errorf("failed to fetch camera groups: %w", err))
		return
	}
	if groups == nil {
		groups = []models.CameraGroup{}
	}
	c.JSON(http.StatusOK, groups)
}

func (h *APIHandler) GetGroup(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "errors.invalid_id")})
		return
	}
	if id == models.DefaultGroupID {
		respondError(c, models.ErrNotFound)
		return
	}
	group, err := h.repo.GetGroupByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if group == nil {
		respondError(c, models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, group)
}

// GetVersion reports the application version and the newest record timestamp.
func (h *APIHandler) GetVersion(c *gin.Context) {
	latest, err := h.repo.LatestRecordTime(c.Request.Context())
	if err != nil {
		respondError(c, fmt.Errorf("failed to read latest record time: %w", err))
		return
	}
	var latestUTC *time.Time
	if latest != nil {
		t := latest.UTC()
		latestUTC = &t
	}
	c.JSON(http.StatusOK, gin.H{
		"version":            h.cfg.Server.Version,
		"latest_record_time": latestUTC,
	})
}
