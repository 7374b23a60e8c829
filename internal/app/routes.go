package app

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"booking-scheduler/internal/logging"
)

// RouterConfig carries the pieces of the router that live outside App.
type RouterConfig struct {
	Auth           *Authenticator
	StripeWebhook  gin.HandlerFunc
	Metrics        http.Handler
	RequestsPerMin int
	CORSOrigins    []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(a *App, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(a.logger), logging.GinRecovery(a.logger))
	r.Use(cors.New(corsConfig(rc.CORSOrigins)))
	r.Use(RateLimit(rc.RequestsPerMin, a.logger))

	r.GET("/healthz", a.HealthHandler)
	if rc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rc.Metrics))
	}
	// OAuth2 callback (must be outside the auth middleware)
	r.GET("/oauth2callback", a.OAuth2CallbackHandler)
	if rc.StripeWebhook != nil {
		r.POST("/webhooks/stripe", rc.StripeWebhook)
	}

	api := r.Group("/api")
	api.Use(rc.Auth.Middleware())
	{
		providers := api.Group("/providers")
		{
			providers.GET("/:id/availability", a.ListAvailabilityHandler)
			providers.PUT("/:id/availability", a.SetAvailabilityHandler)
			providers.GET("/:id/services", a.ListServicesHandler)
			providers.POST("/:id/services", a.CreateServiceHandler)
			providers.GET("/:id/slots", a.SlotsHandler)
			providers.GET("/:id/conflicts", a.ConflictsHandler)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", a.CreateBookingHandler)
			bookings.GET("", a.ListBookingsHandler)
			bookings.GET("/:id", a.GetBookingHandler)
			bookings.DELETE("/:id", a.CancelBookingHandler)
			bookings.POST("/:id/confirm", a.ConfirmBookingHandler)
			bookings.POST("/:id/cancel", a.CancelBookingHandler)
			bookings.POST("/:id/reschedule", a.RescheduleBookingHandler)
			bookings.POST("/:id/complete", a.CompleteBookingHandler)
		}

		api.GET("/notifications", a.ListNotificationsHandler)

		cal := api.Group("/calendar")
		{
			cal.GET("/auth", a.CalendarAuthHandler)
			cal.POST("/sync", a.CalendarSyncHandler)
			cal.GET("/busy", a.CalendarBusyHandler)
			cal.DELETE("", a.CalendarDisconnectHandler)
		}

		admin := api.Group("/admin", requireAdmin)
		{
			admin.POST("/calendar/sync-all", a.EnqueueSyncAllHandler)
			admin.POST("/providers/:id/calendar/sync", a.EnqueueSyncHandler)
		}
	}
	return r
}
