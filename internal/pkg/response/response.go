package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/pkg/apperr"
)

// fail writes the error envelope. "error" mirrors "message" for clients that
// read the extension's original {error} shape.
func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message, "error": message})
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Accepted sends a 202 response.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	fail(c, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context) {
	fail(c, http.StatusForbidden, "Forbidden")
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message)
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, "Method not allowed")
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, message)
}

// InternalError sends a 500 error response. The error itself is never echoed.
func InternalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "Internal server error")
}

// Error maps a classified error to its status and public message.
func Error(c *gin.Context, err error) {
	fail(c, apperr.HTTPStatus(err), apperr.PublicMessage(err))
}

// InternalErrorWithMessage sends a 500 whose message names the failed step
// while "error" stays generic.
func InternalErrorWithMessage(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"ok":      0,
		"code":    http.StatusInternalServerError,
		"error":   "Internal server error",
		"message": message,
	})
}
