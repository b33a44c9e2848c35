package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/service"
)

// AuthMiddleware creates middleware that validates bearer tokens.
func AuthMiddleware(verifier *service.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid authorization header"})
			return
		}

		token := auth[7:]

		session, err := verifier.ValidateToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			}
			return
		}

		c.Set("walletAddress", session.Address)
		c.Set("userID", session.UserID)

		c.Next()
	}
}
