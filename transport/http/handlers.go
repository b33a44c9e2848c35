package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/service"
)

// AuthHandlers contains HTTP handlers for the verification endpoints.
type AuthHandlers struct {
	verifier *service.Verifier
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(verifier *service.Verifier) *AuthHandlers {
	return &AuthHandlers{verifier: verifier}
}

// Verify handles the signature verification request and issues a JWT.
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	token, err := h.verifier.Verify(c.Request.Context(), req.Address, req.Message, req.Signature)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Verification failed"

		switch {
		case errors.Is(err, core.ErrInvalidMessage):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid sign-in message"
		case errors.Is(err, core.ErrChallengeExpired):
			statusCode = http.StatusBadRequest
			errorMsg = "Challenge expired"
		case errors.Is(err, core.ErrInvalidAddress):
			statusCode = http.StatusBadRequest
			errorMsg = "Address mismatch"
		case errors.Is(err, core.ErrInvalidSignature):
			statusCode = http.StatusUnauthorized
			errorMsg = "Invalid signature"
		case errors.Is(err, core.ErrNonceUsed):
			statusCode = http.StatusUnauthorized
			errorMsg = "Nonce already used"
		}

		c.JSON(statusCode, gin.H{"message": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jwt": token})
}

// Me returns information about the authenticated session.
func (h *AuthHandlers) Me(c *gin.Context) {
	address, exists := c.Get("walletAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Session not found in context"})
		return
	}
	userID, _ := c.Get("userID")

	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"user_id": userID,
	})
}

// Authorize reports whether the bearer token is valid; the middleware
// has already done the work by the time this handler runs.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	address, exists := c.Get("walletAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Session not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}
