// Package handlers implements the operational HTTP API: health, audit
// trail access, guard status, and a websocket event stream.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"groupwarden/internal/events"
	"groupwarden/internal/guard"

	"github.com/rs/zerolog/log"
)

// AuditSource reads the enforcement audit trail.
type AuditSource interface {
	ListRecent(ctx context.Context, limit int) ([]guard.ActionRecord, error)
	ListByGroup(ctx context.Context, groupID string, limit int) ([]guard.ActionRecord, error)
	ListAll(ctx context.Context) ([]guard.ActionRecord, error)
	Count(ctx context.Context) (int, error)
}

// ClosedInstanceCounter reports how many instances the guard has closed.
type ClosedInstanceCounter interface {
	ClosedInstanceCount() int
}

// Handler contains all HTTP handler methods and their dependencies.
// Dependencies are injected via the constructor for better testability.
type Handler struct {
	engine    PolicyEngine
	audit     AuditSource
	rateLimit *guard.RateLimitState
	closed    ClosedInstanceCounter
	bus       *events.Bus
	now       func() time.Time
}

// NewHandler creates a new Handler with all required dependencies.
func NewHandler(engine PolicyEngine, audit AuditSource, rateLimit *guard.RateLimitState, closed ClosedInstanceCounter, bus *events.Bus) *Handler {
	return &Handler{
		engine:    engine,
		audit:     audit,
		rateLimit: rateLimit,
		closed:    closed,
		bus:       bus,
		now:       time.Now,
	}
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, v interface{}, entityName string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode " + entityName + " response")
	}
}

// HandleHealthz reports process liveness.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, "healthz")
}
