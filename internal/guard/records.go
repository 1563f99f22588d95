package guard

import "time"

// ActionKind labels what enforcement was taken.
const (
	ActionInstanceClosed = "INSTANCE_CLOSED"
)

// ModuleInstanceGuard identifies this module in audit records.
const ModuleInstanceGuard = "instance_guard"

// ActionRecord is one append-only entry in the enforcement audit trail.
type ActionRecord struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	ActorID          string            `json:"actor_id"`
	ActorDisplayName string            `json:"actor_display_name"`
	GroupID          string            `json:"group_id"`
	Action           string            `json:"action"`
	Reason           string            `json:"reason"`
	Module           string            `json:"module"`
	Details          map[string]string `json:"details,omitempty"`
}

// ClosedInstanceEvent is the payload published to UI observers when an
// instance is closed.
type ClosedInstanceEvent struct {
	GroupID          string    `json:"group_id"`
	WorldID          string    `json:"world_id"`
	InstanceID       string    `json:"instance_id"`
	ActorID          string    `json:"actor_id"`
	ActorDisplayName string    `json:"actor_display_name"`
	Reason           string    `json:"reason"`
	ClosedAt         time.Time `json:"closed_at"`
}

// EventInstanceClosed is the event name published on the notification bus.
const EventInstanceClosed = "guard.instance_closed"
