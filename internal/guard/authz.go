package guard

import (
	"strings"

	"groupwarden/internal/platform"
)

// parseInstanceTarget splits an audit event target into world and instance
// ids. Targets look like "wrld_abc123:12345~private(...)".
func parseInstanceTarget(target string) (worldID, instanceID string, ok bool) {
	worldID, instanceID, found := strings.Cut(target, ":")
	if !found || worldID == "" || instanceID == "" {
		return "", "", false
	}
	if !strings.HasPrefix(worldID, "wrld_") {
		return "", "", false
	}
	return worldID, instanceID, true
}

// instanceKey builds the guard-state key for an instance.
func instanceKey(worldID, instanceID string) string {
	return worldID + ":" + instanceID
}

// permissionTable maps role ids to their permission sets.
func permissionTable(roles []platform.Role) map[string][]string {
	table := make(map[string][]string, len(roles))
	for _, r := range roles {
		table[r.ID] = r.Permissions
	}
	return table
}

// canCreateInstances reports whether any of the member's roles grants an
// instance-creation permission or the wildcard. Roles missing from the
// table grant nothing.
func canCreateInstances(roleIDs []string, table map[string][]string) bool {
	allowed := make(map[string]struct{})
	for _, p := range platform.InstanceCreatePermissions() {
		allowed[p] = struct{}{}
	}

	for _, roleID := range roleIDs {
		for _, perm := range table[roleID] {
			if perm == platform.PermissionWildcard {
				return true
			}
			if _, ok := allowed[perm]; ok {
				return true
			}
		}
	}
	return false
}
