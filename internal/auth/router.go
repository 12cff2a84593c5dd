package auth

import (
	"evently-waitlist/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAuthRoutes(router *gin.RouterGroup, controller *Controller, mw *middleware.Auth) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", controller.Register)
		auth.POST("/login", controller.Login)

		protected := auth.Group("")
		protected.Use(mw.JWTAuth())
		{
			protected.GET("/me", controller.GetMe)
		}
	}
}
