package waitlist

import (
	"evently-waitlist/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes configures the user and admin waitlist routes
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller, auth *middleware.Auth) {
	waitlist := rg.Group("/waitlist")
	{
		// Health check - no auth required
		waitlist.GET("/health", controller.HealthCheck)

		authenticated := waitlist.Group("")
		authenticated.Use(auth.JWTAuth(), middleware.RequireRoles("USER", "ADMIN"))
		{
			authenticated.POST("", controller.JoinWaitlist)
			authenticated.DELETE("/:event_id", controller.LeaveWaitlist)
			authenticated.GET("/status/:event_id", controller.GetWaitlistStatus)
			authenticated.GET("/offers", controller.GetMyOffers)
			authenticated.POST("/offers/:offer_id/respond", controller.RespondToOffer)
		}
	}

	adminWaitlist := rg.Group("/admin/waitlist")
	adminWaitlist.Use(auth.JWTAuth(), middleware.RequireAdmin())
	{
		adminWaitlist.GET("/stats/:event_id", controller.GetWaitlistStats)
		adminWaitlist.GET("/entries/:event_id", controller.GetWaitlistEntries)
		adminWaitlist.POST("/release/:event_id", controller.ReleaseTickets)
		adminWaitlist.POST("/recalculate/:event_id", controller.RecalculatePositions)
		adminWaitlist.POST("/sweep", controller.SweepExpiredOffers)
		adminWaitlist.POST("/entries/:entry_id/upgrade", controller.UpgradePriority)

		bulk := adminWaitlist.Group("/bulk")
		{
			bulk.POST("/update", controller.BulkUpdate)
			bulk.POST("/remove", controller.BulkRemove)
			bulk.POST("/import", controller.BulkImport)
			bulk.POST("/adjust", controller.BulkAdjustPositions)
		}
	}
}
