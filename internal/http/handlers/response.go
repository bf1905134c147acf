// Package handlers implements the web pages and the JSON API over stored
// tweets.
//
// This file holds the response helpers shared by both surfaces. JSON errors
// always use ErrorResponse:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "tweet not found"
//	}
//
// HTML errors render message.html with the same status. Server errors are
// logged with the request-scoped logger in both cases.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/twola/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every JSON endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"tweet not found"`
}

// fail aborts with a JSON ErrorResponse. 5xx responses are logged.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.GetRequestID(c),
		Code:      code,
		Message:   msg,
	})
}

// failPage aborts with an HTML page titled title. 5xx responses are logged.
func failPage(c *gin.Context, status int, title, msg string, err error) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Int("status", status).Msg("page error")
	}
	c.HTML(status, "message.html", gin.H{"title": title, "message": msg})
	c.Abort()
}

// ok writes a JSON success body.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// NotFound serves unmatched routes: an HTML page for browsers, the JSON
// envelope for everyone else.
func NotFound(c *gin.Context) {
	if wantsHTML(c) {
		failPage(c, http.StatusNotFound, "Not found", "There is nothing at this address.", nil)
		return
	}
	fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
}

// MethodNotAllowed serves routes that exist for other methods.
func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
}

func wantsHTML(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}
