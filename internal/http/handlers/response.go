// Package handlers provides the HTTP handlers of the movie catalogue: the
// JSON API under /movies and /api/movies, and the server-rendered HTML pages.
//
// This file defines the response utilities shared by every endpoint so that
// success and failure bodies keep one predictable shape.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "detail": "Movie not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-movies-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable detail (safe to show to users)
	Detail string `json:"detail" example:"Movie not found"`
}

// MessageResponse is a bare confirmation body.
type MessageResponse struct {
	Message string `json:"message" example:"movie deleted"`
}

// fail aborts the request with the error envelope. 5xx responses are also
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, detail string) {
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code)
		if cause := c.Errors.Last(); cause != nil {
			ev = ev.Err(cause.Err)
		}
		ev.Msg(detail)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      code,
		Detail:    detail,
	})
}

// requestID prefers the id stored by the RequestID middleware and falls back
// to whatever was already written to the response header.
func requestID(c *gin.Context) string {
	if rid := middleware.RequestIDFrom(c); rid != "" {
		return rid
	}
	return c.Writer.Header().Get(middleware.HeaderRequestID)
}

// Fail is the exported variant of fail(), used by the router for 404/405.
func Fail(c *gin.Context, status int, code, detail string) { fail(c, status, code, detail) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// seeOther redirects the browser to location after a form submission.
func seeOther(c *gin.Context, location string) {
	c.Redirect(http.StatusSeeOther, location)
}
