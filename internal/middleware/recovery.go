package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/logger"
	"github.com/ncastellanos/vecino/pkg/response"
)

// Recovery turns a handler panic into a sanitized 500. One malformed
// request must not take the alert pipeline down for everyone else.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.WithModule("http").Error("panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)

			c.Abort()
			if !c.Writer.Written() {
				response.Error(c, errors.ErrInternalServer)
			}
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the standard error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.New(
		errors.ErrNotFound.Code,
		fmt.Sprintf("route %s not found", c.Request.URL.Path),
		http.StatusNotFound,
	))
}
