package handlers

import (
	"net/http"
	"time"
)

// GuardStatusResponse is the payload for GET /api/guard/status.
type GuardStatusResponse struct {
	Paused          bool       `json:"paused"`
	PausedUntil     *time.Time `json:"paused_until,omitempty"`
	ClosedInstances int        `json:"closed_instances"`
	AuditRecords    int        `json:"audit_records"`
	Subscribers     int        `json:"subscribers"`
}

// HandleGuardStatus reports the enforcement loop's pause state and counters.
func (h *Handler) HandleGuardStatus(w http.ResponseWriter, r *http.Request) {
	resp := GuardStatusResponse{
		Subscribers: h.bus.SubscriberCount(),
	}

	if paused, until := h.rateLimit.Paused(h.now()); paused {
		resp.Paused = true
		resp.PausedUntil = &until
	}

	if h.closed != nil {
		resp.ClosedInstances = h.closed.ClosedInstanceCount()
	}

	if count, err := h.audit.Count(r.Context()); err == nil {
		resp.AuditRecords = count
	}

	writeJSON(w, resp, "guard status")
}
