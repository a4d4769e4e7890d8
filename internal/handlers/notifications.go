package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/roomnotify/internal/delivery"
	"github.com/charlesng35/roomnotify/internal/middleware"
	"github.com/charlesng35/roomnotify/internal/notification"
	"github.com/charlesng35/roomnotify/internal/store"
	"github.com/charlesng35/roomnotify/pkg/errors"
	"github.com/charlesng35/roomnotify/pkg/response"
)

// NotificationLister reads stored notifications newest first.
type NotificationLister interface {
	List(ctx context.Context, input store.ListInput) ([]notification.StoredNotification, error)
}

// StreamServer attaches websocket clients to the update fan-out.
type StreamServer interface {
	Serve(sub delivery.Subscription, w http.ResponseWriter, r *http.Request)
}

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	lister       NotificationLister
	hub          StreamServer
	defaultLimit int
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(lister NotificationLister, hub StreamServer, defaultLimit int) *NotificationHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &NotificationHandler{
		lister:       lister,
		hub:          hub,
		defaultLimit: defaultLimit,
	}
}

type listNotificationsQuery struct {
	Limit  int    `form:"limit" json:"limit" validate:"omitempty,min=1,max=500"`
	Before string `form:"before" json:"before" validate:"omitempty,hexadecimal,len=24"`
}

// List returns the notifications of one room, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomID"))
	if roomID == "" {
		response.Error(c, errors.NewBadRequest("room id is required"))
		return
	}

	var query listNotificationsQuery
	if !bindQueryAndValidate(c, &query) {
		return
	}
	limit := query.Limit
	if limit == 0 {
		limit = h.defaultLimit
	}

	items, err := h.lister.List(requestContext(c), store.ListInput{
		RoomID: roomID,
		Limit:  limit,
		Before: query.Before,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]notification.View, 0, len(items))
	for _, item := range items {
		views = append(views, notification.NewView(item))
	}

	meta := &response.Meta{Limit: limit, Count: len(views)}
	if len(views) == limit {
		meta.NextBefore = views[len(views)-1].SortKey
	}
	response.SuccessWithMeta(c, http.StatusOK, views, meta)
}

// Stream upgrades the connection to a WebSocket carrying notification updates.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	rooms := c.QueryArray("room")
	for _, roomID := range rooms {
		if !claims.CanRead(roomID) {
			response.Error(c, errors.ErrForbidden)
			return
		}
	}

	h.hub.Serve(delivery.Subscription{
		Subject: claims.UserID,
		Rooms:   rooms,
		Allow:   claims.CanRead,
	}, c.Writer, c.Request)
}
