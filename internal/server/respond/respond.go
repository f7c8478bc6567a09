// Package respond writes the {ok, data} / {ok:false, error} JSON envelope used by every HTTP handler.
package respond

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared across handlers.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
)

// ErrorBody is the error member of a failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// OK writes {ok:true, data}.
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{OK: true, Data: data})
}

// Fail writes {ok:false, error:{code, message, details}} and aborts the chain.
func Fail(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, envelope{OK: false, Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// Invalid writes a 400 VALIDATION_ERROR.
func Invalid(c *gin.Context, message string, details any) {
	Fail(c, http.StatusBadRequest, CodeValidation, message, details)
}

// Internal logs err and writes a generic 500. The error text is only exposed outside release mode.
func Internal(c *gin.Context, err error) {
	log.Printf("http: %s %s: %v", c.Request.Method, c.FullPath(), err)
	var details any
	if gin.Mode() != gin.ReleaseMode && err != nil {
		details = err.Error()
	}
	Fail(c, http.StatusInternalServerError, CodeInternal, "internal error", details)
}
