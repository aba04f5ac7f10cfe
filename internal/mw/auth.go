package mw

import (
	"strings"

	"github.com/gin-gonic/gin"

	"machine-alert-backend/internal/apperr"
	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/clock"
)

// Authenticate verifies the bearer token and stores the caller's identity in
// the request context. The token may also come as ?token= so that download
// links work without custom headers.
func Authenticate(v *authz.Verifier, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			AbortWithError(c, apperr.NewUnauthorized("not authorized, no token"))
			return
		}

		id, err := v.Verify(token, clk.Now())
		if err != nil {
			AbortWithError(c, apperr.NewUnauthorized("not authorized, invalid token"))
			return
		}
		c.Request = c.Request.WithContext(authz.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireCapability rejects callers whose roles lack the wanted capability.
func RequireCapability(want authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := authz.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, apperr.NewUnauthorized("not authorized"))
			return
		}
		if !id.Can(want) {
			AbortWithError(c, apperr.NewForbidden("role not allowed"))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
