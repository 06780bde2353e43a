package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/repository"
	"github.com/calin/convohist/internal/service"
	"github.com/gin-gonic/gin"
)

// ExportHandler handles export job endpoints
type ExportHandler struct {
	exports *service.ExportService
	audit   *repository.ExportHistoryRepository
}

// NewExportHandler creates a new export handler.
// Parameters:
//   - exports: export job service.
//   - audit: export history repository; may be nil when auditing is disabled.
func NewExportHandler(exports *service.ExportService, audit *repository.ExportHistoryRepository) *ExportHandler {
	return &ExportHandler{exports: exports, audit: audit}
}

// StartExportRequest is the request body for starting an export
type StartExportRequest struct {
	ContactID  string            `json:"contactId" binding:"required"`
	LocationID string            `json:"locationId" binding:"required"`
	Contact    domain.Contact    `json:"contact"`
	DateRange  *domain.DateRange `json:"dateRange,omitempty"`
}

// StartExport creates an export job and returns its id immediately.
// The job runs asynchronously; poll GetStatus for progress.
func (h *ExportHandler) StartExport(c *gin.Context) {
	var req StartExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	jobID, err := h.exports.StartExport(c.Request.Context(), &service.StartExportRequest{
		ContactID:  req.ContactID,
		LocationID: req.LocationID,
		Contact:    req.Contact,
		DateRange:  req.DateRange,
	})
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to start export: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": domain.JobStatusProcessing,
	})
}

// GetStatus returns the current status and progress of an export job
func (h *ExportHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("id")

	status, err := h.exports.GetStatus(jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "export job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Download streams the finished PDF artifact for a job
func (h *ExportHandler) Download(c *gin.Context) {
	jobID := c.Param("id")

	reader, fileName, err := h.exports.OpenArtifact(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "export job not found"})
		case errors.Is(err, service.ErrJobNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "export job is not complete"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		// Headers already sent, log only
		logger.CtxError(c.Request.Context(), "Failed to stream artifact: job_id=%s, error=%v", jobID, err)
	}
}

// History lists past exports for a location from the audit log
func (h *ExportHandler) History(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "export history is disabled"})
		return
	}

	locationID := c.Query("locationId")
	if locationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "locationId is required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.audit.ListByLocation(c.Request.Context(), locationID, limit, offset)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list export history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list export history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history": entries,
		"count":   len(entries),
	})
}

// HistoryByJob returns the audit record for a single export job
func (h *ExportHandler) HistoryByJob(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "export history is disabled"})
		return
	}

	jobID := c.Param("jobId")
	record, err := h.audit.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "export history record not found"})
			return
		}
		logger.CtxError(c.Request.Context(), "Failed to look up export history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up export history"})
		return
	}

	c.JSON(http.StatusOK, record)
}
