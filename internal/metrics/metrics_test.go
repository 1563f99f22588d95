package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Exact routes (no normalization needed)
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/ws", "/ws"},
		{"/api/audit", "/api/audit"},
		{"/api/audit/export", "/api/audit/export"},
		{"/api/guard/status", "/api/guard/status"},

		// Group-scoped routes carry a group id, rule routes a rule id too
		{"/api/groups/grp_12345", "/api/groups/:id"},
		{"/api/groups/grp_12345/scan", "/api/groups/:id/scan"},
		{"/api/groups/grp_12345/rules", "/api/groups/:id/rules"},
		{"/api/groups/grp_12345/rules/rule_67890/whitelist", "/api/groups/:id/rules/:ruleId/whitelist"},

		// Unknown paths pass through
		{"/favicon.ico", "/favicon.ico"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}
