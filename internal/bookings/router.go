package bookings

import (
	"evently-waitlist/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes configures all booking-related routes
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller, auth *middleware.Auth) {
	bookings := rg.Group("/bookings")
	bookings.Use(auth.JWTAuth(), middleware.RequireRoles("USER", "ADMIN"))
	{
		bookings.GET("/:id", controller.GetBooking)            // GET /api/v1/bookings/:id
		bookings.POST("/:id/cancel", controller.CancelBooking) // POST /api/v1/bookings/:id/cancel
	}

	users := rg.Group("/users")
	users.Use(auth.JWTAuth(), middleware.RequireRoles("USER", "ADMIN"))
	{
		users.GET("/bookings", controller.GetUserBookings) // GET /api/v1/users/bookings
	}
}

// Key flow with the waitlist:
// 1. A user accepts a waitlist offer; the waitlist engine calls Service.Reserve
// 2. Reserve locks the event row, checks capacity and writes the booking
// 3. Cancelling a booking frees its tickets and enqueues a CANCELLATION release batch
