package platform

import "time"

// User is a snapshot of a platform account as seen by the policy engine.
// Optional text fields may be empty; absence is not a violation by itself.
type User struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"displayName"`
	Bio                   string   `json:"bio,omitempty"`
	Status                string   `json:"status,omitempty"`
	StatusDescription     string   `json:"statusDescription,omitempty"`
	Pronouns              string   `json:"pronouns,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
	AgeVerificationStatus string   `json:"ageVerificationStatus,omitempty"`
}

// AuditEvent is one entry from a group's audit log, most-recent-first as
// delivered by the platform.
type AuditEvent struct {
	ID               string    `json:"id"`
	EventType        string    `json:"eventType"`
	ActorID          string    `json:"actorId"`
	ActorDisplayName string    `json:"actorDisplayName"`
	TargetID         string    `json:"targetId"`
	CreatedAt        time.Time `json:"created_at"`
}

// EventTypeInstanceCreate is the audit event type emitted when a group
// instance is opened.
const EventTypeInstanceCreate = "group.instance.create"

// Role is a group-scoped permission bundle.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Member is a user's membership record within a group.
type Member struct {
	UserID  string   `json:"userId"`
	RoleIDs []string `json:"roleIds"`
}

// UserGroup is one of a user's group memberships, as returned by the
// user-groups endpoint.
type UserGroup struct {
	GroupID   string `json:"groupId"`
	Name      string `json:"name"`
	ShortCode string `json:"shortCode"`
}

// Permission strings relevant to the instance guard. A role carrying the
// wildcard holds every permission.
const (
	PermissionWildcard = "*"

	PermissionInstanceOpenCreate       = "group-instance-open-create"
	PermissionInstancePlusCreate       = "group-instance-plus-create"
	PermissionInstancePublicCreate     = "group-instance-public-create"
	PermissionInstanceRestrictedCreate = "group-instance-restricted-create"
)

// InstanceCreatePermissions lists every permission that authorizes opening
// a group instance.
func InstanceCreatePermissions() []string {
	return []string{
		PermissionInstanceOpenCreate,
		PermissionInstancePlusCreate,
		PermissionInstancePublicCreate,
		PermissionInstanceRestrictedCreate,
	}
}
