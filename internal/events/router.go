package events

import (
	"evently-waitlist/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupEventRoutes(router *gin.RouterGroup, controller *Controller, auth *middleware.Auth) {
	// Public routes - anyone can browse events and their availability
	publicEvents := router.Group("/events")
	{
		publicEvents.GET("", controller.ListEvents)
		publicEvents.GET("/:event_id", controller.GetEvent)
	}

	adminEvents := router.Group("/admin/events")
	adminEvents.Use(auth.JWTAuth(), middleware.RequireAdmin())
	{
		adminEvents.POST("", controller.CreateEvent)
		adminEvents.PUT("/:event_id", controller.UpdateEvent)
	}
}
