package policy

import "strings"

// trustLevel is one rung on the platform's trust ladder.
type trustLevel struct {
	Name string
	Tag  string
}

// trustLadder orders trust levels lowest to highest. Visitor carries no tag
// and is the baseline for accounts with trust tags that map to nothing
// higher.
var trustLadder = []trustLevel{
	{"Visitor", ""},
	{"Basic", "system_trust_basic"},
	{"Known", "system_trust_known"},
	{"Trusted", "system_trust_trusted"},
	{"Veteran", "system_trust_veteran"},
	{"Legend", "system_trust_legend"},
}

const trustTagPrefix = "system_trust_"

// resolveTrustLevel finds the ladder position whose name contains the
// configured minimum (case-insensitive). Returns -1 when nothing matches,
// which callers treat as a configuration error.
func resolveTrustLevel(minimum string) int {
	needle := strings.ToLower(strings.TrimSpace(minimum))
	if needle == "" {
		return -1
	}
	for i, level := range trustLadder {
		if strings.Contains(strings.ToLower(level.Name), needle) {
			return i
		}
	}
	return -1
}

// userTrustLevel reduces a user's tags to the highest ladder position
// present. hasTrustData reports whether the user carried any trust tags at
// all, distinguishing "data not available" from known low trust.
func userTrustLevel(tags []string) (position int, hasTrustData bool) {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
		if strings.HasPrefix(t, trustTagPrefix) {
			hasTrustData = true
		}
	}

	position = 0
	for i, level := range trustLadder {
		if level.Tag == "" {
			continue
		}
		if _, ok := tagSet[level.Tag]; ok {
			position = i
		}
	}
	return position, hasTrustData
}

func trustLevelName(position int) string {
	if position < 0 || position >= len(trustLadder) {
		return "Unknown"
	}
	return trustLadder[position].Name
}
