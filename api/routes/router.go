// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	_ "evently-waitlist/docs"
	"evently-waitlist/internal/app"
	"evently-waitlist/internal/auth"
	"evently-waitlist/internal/bookings"
	"evently-waitlist/internal/events"
	"evently-waitlist/internal/shared/middleware"
	"evently-waitlist/internal/waitlist"
	"evently-waitlist/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router holds all route dependencies
type Router struct {
	app *app.App
}

// NewRouter creates a new router instance
func NewRouter(a *app.App) *Router {
	return &Router{app: a}
}

// Engine builds the gin engine with global middleware and every route
func (r *Router) Engine() *gin.Engine {
	engine := gin.New()
	log := r.app.Logger

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(middleware.RequestLogger(log), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if r.app.Config.RateLimit.Enabled {
		engine.Use(ratelimit.Middleware(r.app.RateLimiter, log))
	}

	r.SetupRoutes(engine)
	return engine
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	if r.app.Config.IsDevelopment() {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := engine.Group(r.app.Config.GetAPIBasePath())
	{
		auth.SetupAuthRoutes(api, auth.NewController(r.app.Accounts), r.app.Auth)
		waitlist.SetupWaitlistRoutes(api, waitlist.NewController(r.app.Engine, r.app.Scheduler), r.app.Auth)
		events.SetupEventRoutes(api, events.NewController(r.app.Events), r.app.Auth)
		bookings.SetupBookingRoutes(api, bookings.NewController(r.app.Bookings), r.app.Auth)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.app.DB.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "evently-waitlist",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "evently-waitlist",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.app.Config.APIVersion,
		})
	})
}
