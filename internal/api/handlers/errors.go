package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/api/middleware"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/query"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// reportErrors are rejections of an uploaded file as a whole.
var reportErrors = []error{
	ingest.ErrUnsupportedArchive,
	ingest.ErrMissingReportEntry,
	ingest.ErrUnknownDialect,
	ingest.ErrMissingModelColumn,
	ingest.ErrEmptyReport,
	ingest.ErrMalformedCSV,
	models.ErrUnsupportedModel,
}

// unauthorized writes the body clients of the upload form already expect.
func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status_code": http.StatusUnauthorized,
		"message":     "unauthorized",
	})
}

// respondReportError maps an ingestion failure to the upload response format.
func respondReportError(c *gin.Context, source string, err error) {
	var rowErr *ingest.RowError
	if errors.As(err, &rowErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  ingest.StatusError,
			"message": rowErr.Error(),
			"file":    source,
			"line":    rowErr.Line,
			"field":   rowErr.Field,
			"value":   rowErr.Value,
			"row":     rowErr.RawRow(),
		})
		return
	}
	for _, target := range reportErrors {
		if errors.Is(err, target) {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  ingest.StatusError,
				"message": err.Error(),
				"file":    source,
			})
			return
		}
	}
	if errors.Is(err, ingest.ErrPoolClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": ingest.StatusError, "message": err.Error()})
		return
	}
	respondError(c, err)
}

// respondError maps service errors to a JSON error response.
func respondError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, models.ErrUnsupportedModel),
		errors.Is(err, query.ErrInvalidUnit),
		errors.Is(err, query.ErrInvalidReducer):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "errors.not_found")})
	case errors.Is(err, exclusion.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		// client went away
		c.Status(499)
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": middleware.T(c, "errors.internal")})
	}
}
