package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Failures carry a machine-readable Code
// next to the human-readable Error.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Generic failure codes for responses that have no domain-specific outcome.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL"
)

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// Error aborts the chain with a failure envelope.
func Error(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Code: code, Error: msg})
}

// BadRequest sends 400.
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, msg)
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, msg string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, msg)
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, CodeNotFound, msg)
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, CodeConflict, msg)
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, msg string) {
	Error(c, http.StatusTooManyRequests, CodeRateLimited, msg)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	Error(c, http.StatusServiceUnavailable, CodeUnavailable, msg)
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, CodeInternal, msg)
}
