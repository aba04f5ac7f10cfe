package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

const ctxKeyLogger = "logger"

// Middleware returns a Gin middleware that injects request_id and logs request summaries.
func Middleware(l logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(HeaderRequestID, rid)

		reqLogger := l.WithField("request_id", rid)
		c.Set(ctxKeyLogger, reqLogger)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := reqLogger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request")
			return
		}
		entry.Info("request")
	}
}

// FromGin pulls the request-scoped logger from the Gin context.
func FromGin(c *gin.Context) logrus.FieldLogger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(logrus.FieldLogger); ok && l != nil {
			return l
		}
	}
	return logrus.StandardLogger()
}
