package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"machine-alert-backend/internal/authz"
	"machine-alert-backend/internal/clock"
	"machine-alert-backend/internal/logger"
	"machine-alert-backend/internal/mw"
)

// RouterOptions configures the HTTP surface.
type RouterOptions struct {
	Verifier        *authz.Verifier
	Clock           clock.Clock
	Logger          logrus.FieldLogger
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	useJSONFieldNames()
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(opts.Logger))

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	if opts.RateLimitPerSec > 0 {
		api.Use(mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst))
	}
	api.Use(mw.Authenticate(opts.Verifier, opts.Clock))
	{
		// GET /api/calls?machineId&date&status&factoryId&categoryId&page&limit
		api.GET("/calls", mw.RequireCapability(authz.CapViewCalls), h.ListCalls)
		api.GET("/calls/export", mw.RequireCapability(authz.CapExportCalls), h.ExportCalls)

		api.POST("/calls", mw.RequireCapability(authz.CapCreateCall), h.CreateCall)
		// Role checks for these live in the engine.
		api.PUT("/calls/:id/complete", h.CompleteCall)
		api.DELETE("/calls/:id", h.DeleteCall)

		api.POST("/calls/check-expired", mw.RequireCapability(authz.CapSweepCalls), h.CheckExpired)
	}

	return r
}
