package handler

import (
	"encoding/json"
	"net/http"

	"github.com/calin/convohist/internal/logger"
	"github.com/calin/convohist/internal/sso"
	"github.com/gin-gonic/gin"
)

// SSOHandler decrypts marketplace SSO session payloads for the embedded UI
type SSOHandler struct {
	decryptor *sso.Decryptor
}

// NewSSOHandler creates a new SSO handler. The decryptor may be nil when
// no SSO key is configured; requests then return 501.
func NewSSOHandler(decryptor *sso.Decryptor) *SSOHandler {
	return &SSOHandler{decryptor: decryptor}
}

type ssoDecryptRequest struct {
	Key string `json:"key" binding:"required"`
}

// Decrypt decodes an encrypted SSO payload and returns the session claims
func (h *SSOHandler) Decrypt(c *gin.Context) {
	if h.decryptor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sso is not configured"})
		return
	}

	var req ssoDecryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	plaintext, err := h.decryptor.Decrypt(req.Key)
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "SSO payload decryption failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid sso payload"})
		return
	}

	var session map[string]interface{}
	if err := json.Unmarshal(plaintext, &session); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid sso session"})
		return
	}

	c.JSON(http.StatusOK, session)
}
