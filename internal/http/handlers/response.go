package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the canonical error envelope returned by every failing
// endpoint. The request_id echoes the X-Request-ID assigned by middleware so
// clients can correlate failures with server logs.
type ErrorResponse struct {
	RequestID string `json:"request_id" example:"e1b9be03-4999-4289-9f03-999b042d65d6"`
	Code      string `json:"code" example:"conflict"`
	Message   string `json:"message" example:"lead already has a pending transfer"`
}

// fail writes the standard error envelope and aborts the request.
func fail(c *gin.Context, status int, code, msg string) {
	reqID, _ := c.Get("request_id")
	rid, _ := reqID.(string)
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: rid,
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant used by middleware and the router for errors
// raised outside this package (404/405, rate limits, auth).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
