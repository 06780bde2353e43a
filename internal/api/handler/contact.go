package handler

import (
	"net/http"

	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/logger"
	"github.com/gin-gonic/gin"
)

// ContactHandler handles contact lookup endpoints
type ContactHandler struct {
	contacts *crm.ContactService
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contacts *crm.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Search looks up contacts in a location by name, email or phone fragment
func (h *ContactHandler) Search(c *gin.Context) {
	locationID := c.Query("locationId")
	if locationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "locationId is required"})
		return
	}
	query := c.Query("query")

	results, err := h.contacts.Search(c.Request.Context(), locationID, query)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Contact search failed: location_id=%s, error=%v", locationID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "contact search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts": results,
		"count":    len(results),
	})
}
