package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/roomnotify/internal/handlers"
	"github.com/charlesng35/roomnotify/internal/middleware"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	api.GET("/rooms/:roomID/notifications", middleware.RequireRoomAccess("roomID"), handler.List)
	api.GET("/notifications/stream", handler.Stream)
}

func registerPushRuleRoutes(api *gin.RouterGroup, handler *handlers.PushRulesHandler) {
	group := api.Group("/pushrules")
	{
		group.GET("", handler.Get)
		group.PUT("", handler.Put)
	}
}
