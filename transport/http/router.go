package http

import (
	"github.com/gin-gonic/gin"

	"github.com/veritasvault/vv-auth/service"
)

// SetupRouter sets up the Gin router.
func SetupRouter(verifier *service.Verifier) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(verifier)

	auth := router.Group("/auth")
	{
		auth.POST("/web3/verify", handlers.Verify)
	}

	api := router.Group("/api")
	api.Use(AuthMiddleware(verifier))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
