package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/response"
)

// Realtime upgrades the request to a websocket session bound to the
// authenticated user. Auth middleware runs before this handler; browsers can
// pass the token as a query parameter since they cannot set upgrade headers.
func Realtime(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			response.Error(c, errors.ErrNotFound)
			return
		}

		userID := c.GetString(middleware.CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			return
		}

		hub.Serve(userID, c.Writer, c.Request)
	}
}
