package handler

import (
	"net/http"

	"github.com/calin/convohist/internal/crm"
	"github.com/calin/convohist/internal/logger"
	"github.com/gin-gonic/gin"
)

// OAuthHandler handles the marketplace OAuth callback
type OAuthHandler struct {
	tokens *crm.TokenStore
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(tokens *crm.TokenStore) *OAuthHandler {
	return &OAuthHandler{tokens: tokens}
}

// Callback exchanges the authorization code for tokens and stores them
// keyed by the location that installed the app.
func (h *OAuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	locationID, err := h.tokens.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		logger.CtxError(c.Request.Context(), "OAuth code exchange failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "authorization failed"})
		return
	}

	logger.CtxInfo(c.Request.Context(), "OAuth installation complete: location_id=%s", locationID)
	c.JSON(http.StatusOK, gin.H{
		"locationId": locationID,
		"status":     "installed",
	})
}
