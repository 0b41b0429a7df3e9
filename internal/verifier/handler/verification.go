// Package handler exposes the verification flow over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bluecheck-id/bluecheck/internal/verifier/service"
)

// VerificationHandler handles HTTP requests for the handle verification flow.
type VerificationHandler struct {
	svc    *service.VerificationService
	logger *zap.Logger
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(svc *service.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, logger: logger}
}

// Register mounts the verification routes on the given router.
func (h *VerificationHandler) Register(r gin.IRouter) {
	r.POST("/check-twitter", h.CheckTwitter)
	r.POST("/start-verification", h.StartVerification)
	r.POST("/create-dns", h.CreateDNS)
}

// CheckTwitter handles POST /check-twitter.
//
// Request body: {"username": "alice"}
//
// Response: {"verified": bool} — current badge status only; the pending
// store is not consulted.
func (h *VerificationHandler) CheckTwitter(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verified := h.svc.CheckBadge(c.Request.Context(), req.Username)
	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

// StartVerification handles POST /start-verification.
//
// Request body: {"username": "alice"}
//
// Response: the issued token and the instruction the handle owner must
// follow. Calling again before the token is consumed replaces it.
func (h *VerificationHandler) StartVerification(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, message, err := h.svc.StartChallenge(req.Username)
	if err != nil {
		h.logger.Error("start verification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start verification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verificationId": token,
		"message":        message,
	})
}

// CreateDNS handles POST /create-dns.
//
// Request body: {"host": "example.com", "value": "abc123", "username": "alice"}
//
// On success the provider's record payload is returned. Domain rejections
// map to 4xx with a specific message; only provisioning failures are 500s.
func (h *VerificationHandler) CreateDNS(c *gin.Context) {
	var req struct {
		Host     string `json:"host" binding:"required"`
		Value    string `json:"value" binding:"required"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.svc.CreateRecord(c.Request.Context(), req.Username, req.Host, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotVerified), errors.Is(err, service.ErrProofNotFound):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNoChallenge):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("create DNS record", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, record)
}
