package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/app"
	iauth "github.com/ncastellanos/vecino/internal/auth"
	"github.com/ncastellanos/vecino/internal/handlers"
	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
// The returned alert service is shared with the maintenance sweep.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub, rateStore middleware.RateStore) (*gin.Engine, *services.AlertService, error) {
	if db == nil {
		return nil, nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Generous window: panel agents poll the roster and the limiter must never
	// starve an emergency submit.
	r.Use(middleware.RateLimit(rateStore, 300, time.Minute))

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	requireAuth := middleware.Auth(jwt)

	alertHandler, err := handlers.NewAlertHandler(db, hub)
	if err != nil {
		return nil, nil, err
	}
	settingsHandler, err := handlers.NewSettingsHandler(db)
	if err != nil {
		return nil, nil, err
	}
	residentHandler, err := handlers.NewResidentHandler(db, hub)
	if err != nil {
		return nil, nil, err
	}

	// Realtime socket: auth runs first so the hub binds a verified identity.
	r.GET("/ws", requireAuth, handlers.Realtime(hub))

	api := r.Group("/api")
	api.Use(requireAuth)

	alerts := api.Group("/alerts")
	{
		alerts.POST("", alertHandler.Create)
		alerts.GET("", alertHandler.List)
		alerts.GET("/:id", alertHandler.Get)
		alerts.POST("/:id/ack", alertHandler.Acknowledge)
		alerts.POST("/:id/resolve", alertHandler.Resolve)
	}

	settings := api.Group("/settings")
	{
		settings.GET("/panic", settingsHandler.Get)
		settings.PATCH("/panic", settingsHandler.Update)
	}

	residents := api.Group("/residents")
	{
		residents.GET("/me", residentHandler.Me)
		residents.GET("/roster", residentHandler.Roster)
		residents.GET("/:id", residentHandler.Get)
		residents.POST("", residentHandler.Create)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, alertHandler.Service(), nil
}
