package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/roomnotify/internal/app"
	"github.com/charlesng35/roomnotify/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, ping handlers.Pinger) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}
	r.GET("/health", handlers.Health(ping))
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
