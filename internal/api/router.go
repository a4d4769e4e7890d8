package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/roomnotify/internal/app"
	iauth "github.com/charlesng35/roomnotify/internal/auth"
	"github.com/charlesng35/roomnotify/internal/handlers"
	"github.com/charlesng35/roomnotify/internal/middleware"
	"github.com/charlesng35/roomnotify/internal/pushrules"
)

// Dependencies carries everything the HTTP surface reads from.
type Dependencies struct {
	Config        *app.Config
	JWT           *iauth.JWTService
	Notifications handlers.NotificationLister
	RuleStore     handlers.RuleSetStore
	Rules         *pushrules.Cache
	// Stream is optional; without it the websocket endpoint answers 404.
	Stream handlers.StreamServer
	// Ping backs the health check; nil reports healthy unconditionally.
	Ping handlers.Pinger
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification store must be provided")
	}
	if deps.Rules == nil || deps.RuleStore == nil {
		return nil, fmt.Errorf("push rules cache and store must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, deps.Config, deps.Ping)
	registerMonitoringRoutes(r, deps.Config)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	notificationHandler := handlers.NewNotificationHandler(
		deps.Notifications,
		deps.Stream,
		deps.Config.Notifications.DefaultFetchLimit,
	)
	registerNotificationRoutes(api, notificationHandler)

	pushRulesHandler := handlers.NewPushRulesHandler(deps.Rules, deps.RuleStore, deps.Config.Notifications.UserID)
	registerPushRuleRoutes(api, pushRulesHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
