package handlers

import (
	"fmt"
	"net/http"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/utils"

	"github.com/gin-gonic/gin"
)

const defaultUploadLimit = 50

// SystemHandler serves runtime statistics and the ingestion audit log.
type SystemHandler struct {
	repo repository.Repository
	pool *ingest.Pool
}

func NewSystemHandler(repo repository.Repository, pool *ingest.Pool) *SystemHandler {
	return &SystemHandler{repo: repo, pool: pool}
}

func (h *SystemHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)
	router.GET("/uploads", h.ListUploads)
}

// GetStatus returns CPU, memory, goroutine and ingestion pool statistics.
func (h *SystemHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"system": utils.GetSystemStats(h.pool),
	})
}

// ListUploads returns the most recent ingestion runs, newest first.
func (h *SystemHandler) ListUploads(c *gin.Context) {
	limit := defaultUploadLimit
	if v := c.Query("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
	}
	uploads, err := h.repo.GetUploads(c.Request.Context(), limit)
	if err != nil {
		respondError(c, fmt.Errorf("failed to fetch uploads: %w", err))
		return
	}
	if uploads == nil {
		uploads = []models.ReportUpload{}
	}
	c.JSON(http.StatusOK, uploads)
}
