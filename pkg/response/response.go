// Package response writes the portal's JSON envelope. Success and failure
// share one top-level shape so panel clients decode every reply the same way.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/logger"
)

// Response is the envelope for every API payload.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo carries the client-safe part of a failure. Internal causes
// never leave the server through this struct.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// Success writes data wrapped in a successful envelope.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// SuccessWithMeta writes a successful envelope with pagination metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error maps err onto its AppError envelope. Server-side failures log the
// internal cause before the client sees the sanitized message; a durable
// write that dies mid-alert must still leave a trace.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.WithModule("http").Error("request failed",
			zap.String("code", appErr.Code),
			zap.String("path", c.Request.URL.Path),
			zap.Error(appErr),
		)
	}

	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: appErr.Code, Message: appErr.Message},
	})
}
