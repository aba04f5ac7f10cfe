package mw

import (
	"github.com/gin-gonic/gin"

	"machine-alert-backend/internal/apperr"
)

// ErrorResponse is the error payload of every failed request.
type ErrorResponse struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// AbortWithError writes err as an ErrorResponse with the matching status.
// Store failures are reported generically; the cause is attached to the
// context for the request log.
func AbortWithError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()
	if code == apperr.CodeStoreUnavailable {
		_ = c.Error(err)
		msg = "service temporarily unavailable"
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), ErrorResponse{Code: code, Message: msg})
}
