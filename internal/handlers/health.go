package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/roomnotify/pkg/errors"
	"github.com/charlesng35/roomnotify/pkg/response"
)

// Pinger checks a backing dependency.
type Pinger func(ctx context.Context) error

// Health returns a simple status payload useful for readiness checks.
func Health(ping Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(requestContext(c)); err != nil {
				response.Error(c, errors.New("UNAVAILABLE", "Database unavailable", http.StatusServiceUnavailable).WithInternal(err))
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
