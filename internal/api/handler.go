package api

import (
	"context"
	"time"

	"machine-alert-backend/internal/calls"
)

// Sweeps runs an on-demand expiration sweep, serialized with the scheduler.
type Sweeps interface {
	Tick(ctx context.Context) (calls.SweepResult, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine *calls.Engine
	query  *calls.QueryService
	sweeps Sweeps
	db     Pinger
	loc    *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(engine *calls.Engine, query *calls.QueryService, sweeps Sweeps, db Pinger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		engine: engine,
		query:  query,
		sweeps: sweeps,
		db:     db,
		loc:    loc,
	}
}
